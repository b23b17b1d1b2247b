package cli

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dpshade/pocket-capsules/internal/catalog"
	"github.com/dpshade/pocket-capsules/internal/commands"
	"github.com/dpshade/pocket-capsules/internal/models"
	"github.com/dpshade/pocket-capsules/internal/renderer"
	"github.com/dpshade/pocket-capsules/internal/service"
)

func (a *App) listCommand() *cobra.Command {
	var category, tag, platform, format string

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List capsules",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			params := map[string]interface{}{
				"category": category,
				"tag":      tag,
				"platform": platform,
			}
			if format == "ids" {
				params["format"] = "ids"
			}
			result, err := a.run(cmd, "list", params)
			if err != nil {
				return err
			}
			if ids, ok := result.Data.([]string); ok {
				a.printf("%s\n", strings.Join(ids, "\n"))
				return nil
			}
			return a.printCapsules(result.Data.([]*models.Capsule), format)
		},
	}

	cmd.Flags().StringVar(&category, "category", "", "only capsules in this category")
	cmd.Flags().StringVar(&tag, "tag", "", "only capsules carrying this tag")
	cmd.Flags().StringVar(&platform, "platform", "", "only capsules for this platform (web, mobile, desktop)")
	cmd.Flags().StringVarP(&format, "format", "f", "text", "output format: text, json, ids")
	return cmd
}

func (a *App) printCapsules(capsules []*models.Capsule, format string) error {
	switch format {
	case "json":
		return a.printJSON(capsules)
	case "ids":
		for _, c := range capsules {
			a.printf("%s\n", c.ID)
		}
	default:
		for _, c := range capsules {
			a.printf("%s\n", capsuleLine(c))
		}
		a.printf("%s\n", mutedStyle.Render(fmt.Sprintf("%d capsules", len(capsules))))
	}
	return nil
}

func (a *App) showCommand() *cobra.Command {
	var format string
	var noCode bool

	cmd := &cobra.Command{
		Use:     "show <id>",
		Aliases: []string{"get"},
		Short:   "Show one capsule",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			result, err := a.run(cmd, "get", map[string]interface{}{"id": args[0]})
			if err != nil {
				return err
			}
			r := renderer.NewRenderer(result.Data.(*models.Capsule))

			switch format {
			case "json":
				out, err := r.RenderJSON(!noCode)
				if err != nil {
					return err
				}
				a.printf("%s\n", out)
			case "markdown", "md":
				a.printf("%s", r.RenderMarkdown(!noCode))
			default:
				out, err := r.RenderTerminal(!noCode, 100)
				if err != nil {
					return err
				}
				a.printf("%s", out)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "text", "output format: text, markdown, json")
	cmd.Flags().BoolVar(&noCode, "no-code", false, "omit the source code")
	return cmd
}

func (a *App) searchCommand() *cobra.Command {
	var category, format string
	var limit int
	var boolean bool

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Fuzzy search, or tag expression search with --boolean",
		Long: `Search capsule names, descriptions, ids and tags.

With --boolean the query is a tag expression:
  pocket-capsules search --boolean "forms AND (input OR select) AND NOT legacy"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.Join(args, " ")

			var result *commands.CommandResult
			var err error
			if boolean {
				result, err = a.run(cmd, "boolean-search", map[string]interface{}{"expression": query})
			} else {
				result, err = a.run(cmd, "search", map[string]interface{}{
					"query":    query,
					"category": category,
					"limit":    limit,
				})
			}
			if err != nil {
				return err
			}
			return a.printCapsules(result.Data.([]*models.Capsule), format)
		},
	}

	cmd.Flags().StringVar(&category, "category", "", "restrict fuzzy search to a category")
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum results for fuzzy search")
	cmd.Flags().BoolVarP(&boolean, "boolean", "b", false, "treat the query as a tag expression")
	cmd.Flags().StringVarP(&format, "format", "f", "text", "output format: text, json, ids")
	return cmd
}

func (a *App) tagsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "tags",
		Short: "List all tags",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			result, err := a.run(cmd, "list-tags", nil)
			if err != nil {
				return err
			}
			for _, t := range result.Data.([]string) {
				a.printf("%s\n", t)
			}
			return nil
		},
	}
}

func (a *App) categoriesCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "categories",
		Short: "List categories with capsule counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			result, err := a.run(cmd, "list-categories", nil)
			if err != nil {
				return err
			}
			for _, c := range result.Data.([]catalog.CategoryCount) {
				a.printf("%-16s %d\n", c.Name, c.Count)
			}
			return nil
		},
	}
}

func (a *App) statsCommand() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Catalog statistics and AI-friendliness",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			result, err := a.run(cmd, "stats", nil)
			if err != nil {
				return err
			}
			st := result.Data.(catalog.Stats)
			if asJSON {
				return a.printJSON(st)
			}
			a.printStats(st)
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print the report as JSON")
	return cmd
}

func (a *App) printStats(st catalog.Stats) {
	a.printf("%s\n", titleStyle.Render("Catalog"))
	a.printf("  capsules      %d (%d unique ids)\n", st.TotalCapsules, st.UniqueIDs)
	a.printf("  tags          %d\n", st.UniqueTags)

	a.printf("%s\n", titleStyle.Render("Categories"))
	names := make([]string, 0, len(st.Categories))
	for name := range st.Categories {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		a.printf("  %-13s %d\n", name, st.Categories[name])
	}

	a.printf("%s\n", titleStyle.Render("Top tags"))
	for _, t := range st.TopTags {
		a.printf("  %-13s %d\n", t.Tag, t.Count)
	}

	ai := st.AIFriendliness
	a.printf("%s\n", titleStyle.Render("AI-friendliness"))
	a.printf("  well tagged   %d (%.1f%%)\n", ai.WellTagged, ai.WellTaggedPct)
	a.printf("  client        %d (%.1f%%)\n", ai.ClientComponents, ai.ClientPct)
	a.printf("  described     %d (%.1f%%)\n", ai.WithDescription, ai.WithDescriptionPct)
	a.printf("  with ports    %d (%.1f%%)\n", ai.WithPorts, ai.WithPortsPct)

	if len(st.DuplicateIDs) > 0 {
		a.printf("%s\n", warnStyle.Render(fmt.Sprintf("%d duplicated ids", len(st.DuplicateIDs))))
	}
}

func (a *App) verifyCommand() *cobra.Command {
	var snapshot string

	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Check the catalog, or an exported snapshot, for consistency",
		Long: `Check the catalog for duplicate ids, missing fields and unknown port types.

With --snapshot, check that an exported file still matches the catalog.
Exits non-zero when any issue is found.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if snapshot != "" {
				if err := a.svc.VerifySnapshotFile(snapshot); err != nil {
					return err
				}
				a.printf("%s\n", successStyle.Render("✓ "+snapshot+" matches the catalog"))
				return nil
			}

			result, err := a.run(cmd, "verify", nil)
			if err != nil {
				if result != nil {
					if issues, ok := result.Data.([]catalog.Issue); ok {
						for _, issue := range issues {
							a.printf("%s %s\n", warnStyle.Render("["+issue.Kind+"]"), issue.Message)
						}
					}
				}
				return err
			}
			a.printf("%s\n", successStyle.Render("✓ "+result.Message))
			return nil
		},
	}

	cmd.Flags().StringVar(&snapshot, "snapshot", "", "exported snapshot file to verify")
	return cmd
}

func (a *App) compatCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "compat <from-type> <to-type>",
		Short: "Check whether an output data type can feed an input type",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			result, err := a.run(cmd, "compat", map[string]interface{}{"from": args[0], "to": args[1]})
			if err != nil {
				return err
			}
			res := result.Data.(commands.CompatResult)
			style := successStyle
			if !res.Compatible {
				style = warnStyle
			}
			a.printf("%s\n", style.Render(result.Message))
			targets := make([]string, 0, len(res.Targets))
			for _, t := range res.Targets {
				targets = append(targets, string(t))
			}
			a.printf("%s\n", mutedStyle.Render(fmt.Sprintf("%s can feed: %s", res.From, strings.Join(targets, ", "))))
			return nil
		},
	}
}

func (a *App) connectCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "connect <capsule[.output]> <capsule[.input]>",
		Short: "Check whether one capsule's output can be wired to another's input",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			result, err := a.run(cmd, "connect", map[string]interface{}{"from": args[0], "to": args[1]})
			if err != nil {
				return err
			}
			check := result.Data.(*service.ConnectionCheck)
			if check.Compatible {
				a.printf("%s\n", successStyle.Render("✓ "+result.Message))
				return nil
			}
			a.printf("%s\n", warnStyle.Render("✗ "+result.Message))
			return nil
		},
	}
}

func (a *App) suggestCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "suggest <data-type>",
		Short: "Suggest capsules that can consume a data type",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			result, err := a.run(cmd, "suggest", map[string]interface{}{"type": args[0]})
			if err != nil {
				return err
			}
			s := result.Data.(*service.Suggestions)

			a.printf("%s\n", titleStyle.Render("Suggested"))
			for _, c := range s.Suggested {
				a.printf("  %s\n", capsuleLine(c))
			}
			a.printf("%s\n", titleStyle.Render(fmt.Sprintf("Accepting %s", s.Type)))
			for _, c := range s.Accepting {
				a.printf("  %s\n", idStyle.Render(c.ID))
			}
			return nil
		},
	}
}
