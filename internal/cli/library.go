package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/AlecAivazis/survey/v2"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dpshade/pocket-capsules/internal/api"
	"github.com/dpshade/pocket-capsules/internal/catalog"
	"github.com/dpshade/pocket-capsules/internal/clipboard"
	"github.com/dpshade/pocket-capsules/internal/config"
	"github.com/dpshade/pocket-capsules/internal/errors"
	"github.com/dpshade/pocket-capsules/internal/models"
	"github.com/dpshade/pocket-capsules/internal/validation"
)

func (a *App) validateCommand() *cobra.Command {
	var data string

	cmd := &cobra.Command{
		Use:   "validate <schema>",
		Short: "Validate a form payload against a schema",
		Long: `Validate a JSON object against one of the form schemas:
  ` + strings.Join(validation.FormSchemas, ", ") + `

The payload is read from --data, or from stdin when --data is omitted.
On success the normalised payload is printed.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw := []byte(data)
			if data == "" {
				var err error
				raw, err = io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return errors.Wrap(err, errors.ErrCodeInvalidInput, "Failed to read payload from stdin")
				}
			}

			var payload map[string]interface{}
			if err := json.Unmarshal(raw, &payload); err != nil {
				return errors.Wrap(err, errors.ErrCodeInvalidFormat, "Payload must be a JSON object")
			}

			result, err := a.run(cmd, "validate-form", map[string]interface{}{"schema": args[0], "data": payload})
			if err != nil {
				return err
			}
			return a.printJSON(result.Data)
		},
	}

	cmd.Flags().StringVarP(&data, "data", "d", "", "JSON payload")
	return cmd
}

func (a *App) exportCommand() *cobra.Command {
	var output string
	var metadataOnly bool

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the catalog snapshot and verify it",
		Long: `Write the catalog as a JSON snapshot. The written file is read back
and compared with the catalog before the command reports success.

Use --output - to write to stdout without verification.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if output == "-" {
				return a.svc.Export(a.out, metadataOnly)
			}
			if output == "" {
				output = a.cfg.ExportPath
				if metadataOnly {
					output = a.cfg.MetadataPath
				}
			}

			snap, err := a.svc.ExportToFile(output, metadataOnly)
			if err != nil {
				return err
			}
			a.printf("%s\n", successStyle.Render(fmt.Sprintf("✓ Exported %d capsules in %d categories to %s",
				snap.Metadata.TotalCapsules, len(snap.Metadata.Categories), output)))
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (default from config)")
	cmd.Flags().BoolVar(&metadataOnly, "metadata-only", false, "omit capsule source code")
	return cmd
}

func (a *App) importCommand() *cobra.Command {
	var overwrite bool

	cmd := &cobra.Command{
		Use:   "import <snapshot.json>",
		Short: "Import capsules from an exported snapshot into the library",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			snap, err := catalog.ReadSnapshotFile(args[0])
			if err != nil {
				return errors.Wrap(err, errors.ErrCodeFileCorrupted, "Failed to read snapshot")
			}
			if err := a.svc.InitLibrary(); err != nil {
				return err
			}

			result, err := a.svc.Import(snap, overwrite)
			if err != nil {
				return err
			}
			for _, skip := range result.Skipped {
				a.printf("%s %s: %s\n", warnStyle.Render("skipped"), skip.ID, skip.Reason)
			}
			a.printf("%s\n", successStyle.Render(fmt.Sprintf("✓ Imported %d capsules", len(result.Imported))))
			return nil
		},
	}

	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "replace library capsules with the same id")
	return cmd
}

func (a *App) initCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create the library directory and a default capsules.toml",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.svc.InitLibrary(); err != nil {
				return err
			}

			path := filepath.Join(a.svc.LibraryDir(), config.FileName)
			if _, err := os.Stat(path); os.IsNotExist(err) {
				if err := a.cfg.Save(path); err != nil {
					return errors.StorageError("write config", err)
				}
				a.logger.Info("config written", zap.String("path", path))
			}

			a.printf("%s\n", successStyle.Render("✓ Library ready at "+a.svc.LibraryDir()))
			return nil
		},
	}
}

func (a *App) newCommand() *cobra.Command {
	var c models.Capsule
	var tags, codeFile string
	var interactive bool

	cmd := &cobra.Command{
		Use:   "new",
		Short: "Add a capsule to the library",
		Long: `Add a capsule to the library. The code is read from --code-file
("-" for stdin). With --interactive, missing fields are prompted for.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if tags != "" {
				for _, t := range strings.Split(tags, ",") {
					c.Tags = append(c.Tags, strings.TrimSpace(t))
				}
			}
			if codeFile != "" {
				code, err := readInput(cmd, codeFile)
				if err != nil {
					return err
				}
				c.Code = code
			}
			if interactive {
				if err := askCapsule(&c); err != nil {
					return err
				}
			}

			if err := a.svc.InitLibrary(); err != nil {
				return err
			}
			created, err := a.svc.CreateCapsule(&c)
			if err != nil {
				return err
			}
			a.printf("%s\n", successStyle.Render(fmt.Sprintf("✓ Created %s", created.ID)))
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&c.ID, "id", "", "capsule id (lowercase letters, digits, hyphens)")
	flags.StringVar(&c.Name, "name", "", "display name")
	flags.StringVar(&c.Category, "category", "", "category")
	flags.StringVar(&c.Description, "description", "", "short description")
	flags.StringVar(&tags, "tags", "", "comma-separated tags")
	flags.StringVar(&c.Platform, "platform", "", "web, mobile or desktop (default web)")
	flags.StringVar(&c.Version, "version", "", "semantic version")
	flags.StringVar(&c.Author, "author", "", "author")
	flags.StringVar(&c.NPMPackage, "npm", "", "npm package")
	flags.StringVar(&codeFile, "code-file", "", "file holding the component source, - for stdin")
	flags.BoolVarP(&interactive, "interactive", "i", false, "prompt for missing fields")
	return cmd
}

func readInput(cmd *cobra.Command, path string) (string, error) {
	var data []byte
	var err error
	if path == "-" {
		data, err = io.ReadAll(cmd.InOrStdin())
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return "", errors.Wrap(err, errors.ErrCodeFileNotFound, fmt.Sprintf("Failed to read %s", path))
	}
	return string(data), nil
}

// askCapsule prompts for the fields still empty on c
func askCapsule(c *models.Capsule) error {
	var qs []*survey.Question
	ask := func(name, message string, target string) {
		if target == "" {
			qs = append(qs, &survey.Question{
				Name:     name,
				Prompt:   &survey.Input{Message: message},
				Validate: survey.Required,
			})
		}
	}
	ask("id", "Capsule id:", c.ID)
	ask("name", "Name:", c.Name)
	ask("category", "Category:", c.Category)
	ask("description", "Description:", c.Description)

	answers := struct {
		ID          string `survey:"id"`
		Name        string `survey:"name"`
		Category    string `survey:"category"`
		Description string `survey:"description"`
	}{c.ID, c.Name, c.Category, c.Description}

	if len(qs) > 0 {
		if err := survey.Ask(qs, &answers); err != nil {
			return err
		}
	}
	c.ID, c.Name, c.Category, c.Description = answers.ID, answers.Name, answers.Category, answers.Description

	if c.Code == "" {
		if err := survey.AskOne(&survey.Editor{Message: "Component source:", FileName: "*.tsx"}, &c.Code); err != nil {
			return err
		}
	}
	return nil
}

func (a *App) deleteCommand() *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:     "delete <id>",
		Aliases: []string{"rm"},
		Short:   "Remove a capsule from the library",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			if _, err := a.svc.GetCapsule(id); err != nil {
				return err
			}
			if !yes {
				ok, err := a.confirm(fmt.Sprintf("Delete capsule '%s'?", id))
				if err != nil {
					return err
				}
				if !ok {
					a.printf("%s\n", mutedStyle.Render("Cancelled"))
					return nil
				}
			}
			if err := a.svc.DeleteCapsule(id); err != nil {
				return err
			}
			a.printf("%s\n", successStyle.Render("✓ Deleted "+id))
			return nil
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "do not ask for confirmation")
	return cmd
}

func (a *App) copyCommand() *cobra.Command {
	var payload string

	cmd := &cobra.Command{
		Use:   "copy <id>",
		Short: "Copy a capsule's code, id or install command to the clipboard",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.svc.GetCapsule(args[0])
			if err != nil {
				return err
			}
			msg, err := clipboard.CopyCapsule(c, clipboard.Payload(payload))
			if err != nil {
				return errors.Wrap(err, errors.ErrCodeCommandFailed, err.Error())
			}
			a.printf("%s\n", successStyle.Render("✓ "+msg))
			return nil
		},
	}

	cmd.Flags().StringVarP(&payload, "payload", "p", string(clipboard.PayloadCode), "what to copy: code, id, install")
	return cmd
}

func (a *App) searchesCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "searches",
		Aliases: []string{"saved"},
		Short:   "Manage saved tag expression searches",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List saved searches",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			result, err := a.run(cmd, "list-saved-searches", nil)
			if err != nil {
				return err
			}
			for _, s := range result.Data.([]models.SavedSearch) {
				line := idStyle.Render(s.Name) + "  " + s.Expression.String()
				if s.TextQuery != "" {
					line += mutedStyle.Render(" + \"" + s.TextQuery + "\"")
				}
				a.printf("%s\n", line)
			}
			return nil
		},
	})

	var description, textQuery string
	save := &cobra.Command{
		Use:   "save <name> <expression>",
		Short: "Save a tag expression under a name",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			expr, err := models.ParseBooleanExpression(args[1])
			if err != nil {
				return errors.NewAppError(errors.ErrCodeInvalidExpression, "Invalid expression").WithDetails(err.Error())
			}
			if err := a.svc.SaveBooleanSearch(models.SavedSearch{
				Name:        args[0],
				Description: description,
				Expression:  expr,
				TextQuery:   textQuery,
			}); err != nil {
				return err
			}
			a.printf("%s\n", successStyle.Render("✓ Saved "+args[0]))
			return nil
		},
	}
	save.Flags().StringVar(&description, "description", "", "description")
	save.Flags().StringVar(&textQuery, "query", "", "fuzzy text query applied to the results")
	cmd.AddCommand(save)

	var query, format string
	run := &cobra.Command{
		Use:   "run <name>",
		Short: "Run a saved search",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			result, err := a.run(cmd, "execute-saved-search", map[string]interface{}{"name": args[0], "query": query})
			if err != nil {
				return err
			}
			return a.printCapsules(result.Data.([]*models.Capsule), format)
		},
	}
	run.Flags().StringVar(&query, "query", "", "narrow the results with a fuzzy text query")
	run.Flags().StringVarP(&format, "format", "f", "text", "output format: text, json, ids")
	cmd.AddCommand(run)

	cmd.AddCommand(&cobra.Command{
		Use:   "delete <name>",
		Short: "Delete a saved search",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.svc.DeleteSavedSearch(args[0]); err != nil {
				return err
			}
			a.printf("%s\n", successStyle.Render("✓ Deleted "+args[0]))
			return nil
		},
	})

	return cmd
}

func (a *App) serveCommand() *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if port == 0 {
				port = a.cfg.Port
			}
			return serve(cmd.Context(), api.NewAPIServer(a.svc, port, a.logger), a.logger)
		},
	}

	cmd.Flags().IntVarP(&port, "port", "p", 0, "port to listen on (default from config)")
	return cmd
}

// serve runs srv until ctx is done, then shuts it down gracefully
func serve(ctx context.Context, srv *api.APIServer, logger *zap.Logger) error {
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down API server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Stop(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}
