// Command capsule-dedupe renames library capsules whose id is already taken
// by an embedded capsule or by an earlier library file. The first occurrence
// keeps its id; later ones become <id>-2, <id>-3 and so on.
package main

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"

	"github.com/AlecAivazis/survey/v2"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dpshade/pocket-capsules/internal/catalog"
	"github.com/dpshade/pocket-capsules/internal/config"
	"github.com/dpshade/pocket-capsules/internal/logging"
	"github.com/dpshade/pocket-capsules/internal/models"
	"github.com/dpshade/pocket-capsules/internal/storage"
)

// rename moves one duplicated library capsule to a fresh id
type rename struct {
	capsule *models.Capsule
	newID   string
}

func main() {
	if err := newCommand(os.Stdout).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newCommand(out io.Writer) *cobra.Command {
	var libraryDir string
	var yes, dryRun, noBuiltin bool

	cmd := &cobra.Command{
		Use:          "capsule-dedupe",
		Short:        "Rename library capsules with duplicated ids",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load("")
			if err != nil {
				return err
			}
			if libraryDir != "" {
				cfg.LibraryDir = libraryDir
			}
			logger, err := logging.New(cfg.LogLevel, false)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			store, err := storage.NewStorage(cfg.LibraryDir, logger)
			if err != nil {
				return err
			}

			confirm := surveyConfirm
			if yes {
				confirm = func(string) (bool, error) { return true, nil }
			}
			return run(out, store, cfg.IncludeBuiltin && !noBuiltin, dryRun, confirm, logger)
		},
	}

	cmd.Flags().StringVar(&libraryDir, "library", "", "library directory (default from config)")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "rename without asking")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "only list the planned renames")
	cmd.Flags().BoolVar(&noBuiltin, "no-builtin", false, "ignore clashes with embedded capsules")
	return cmd
}

func surveyConfirm(message string) (bool, error) {
	ok := false
	err := survey.AskOne(&survey.Confirm{Message: message}, &ok)
	return ok, err
}

func run(out io.Writer, store *storage.Storage, includeBuiltin, dryRun bool, confirm func(string) (bool, error), logger *zap.Logger) error {
	var builtin []*models.Capsule
	if includeBuiltin {
		sources, err := catalog.Builtin()
		if err != nil {
			return err
		}
		for _, src := range sources {
			builtin = append(builtin, src.Capsules...)
		}
	}

	library, err := store.ListCapsules()
	if err != nil {
		return fmt.Errorf("failed to list library: %w", err)
	}

	renames := planRenames(builtin, library, store.Exists)
	if len(renames) == 0 {
		fmt.Fprintln(out, "No duplicated ids found")
		return nil
	}

	fmt.Fprintf(out, "Found %d capsules with duplicated ids:\n", len(renames))
	for _, r := range renames {
		fmt.Fprintf(out, "  - %s (%s) -> %s\n", r.capsule.ID, r.capsule.FilePath, r.newID)
	}
	if dryRun {
		return nil
	}

	ok, err := confirm("Rename these capsules?")
	if err != nil {
		return err
	}
	if !ok {
		fmt.Fprintln(out, "Cancelled")
		return nil
	}

	renamed := applyRenames(store, renames, logger)
	fmt.Fprintf(out, "Renamed %d of %d capsules\n", renamed, len(renames))
	if renamed < len(renames) {
		return fmt.Errorf("%d renames failed", len(renames)-renamed)
	}
	return nil
}

// planRenames walks library in file order. exists reports whether a capsule
// file for an id is already on disk, so a new id never overwrites a file.
func planRenames(builtin, library []*models.Capsule, exists func(id string) bool) []rename {
	taken := make(map[string]bool)
	for _, c := range builtin {
		taken[c.ID] = true
	}
	for _, c := range library {
		taken[c.ID] = true
	}

	ordered := make([]*models.Capsule, len(library))
	copy(ordered, library)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].FilePath < ordered[j].FilePath })

	seen := make(map[string]bool)
	for _, c := range builtin {
		seen[c.ID] = true
	}

	var renames []rename
	for _, c := range ordered {
		if !seen[c.ID] {
			seen[c.ID] = true
			continue
		}
		for n := 2; ; n++ {
			candidate := c.ID + "-" + strconv.Itoa(n)
			if !taken[candidate] && !exists(candidate) {
				taken[candidate] = true
				seen[candidate] = true
				renames = append(renames, rename{capsule: c, newID: candidate})
				break
			}
		}
	}
	return renames
}

// applyRenames writes each capsule under its new id and removes the old file.
// It returns how many succeeded.
func applyRenames(store *storage.Storage, renames []rename, logger *zap.Logger) int {
	done := 0
	for _, r := range renames {
		moved := *r.capsule
		moved.ID = r.newID
		moved.FilePath = ""
		if err := store.SaveCapsule(&moved); err != nil {
			logger.Error("failed to write renamed capsule", zap.String("id", r.newID), zap.Error(err))
			continue
		}
		if err := store.DeleteCapsule(r.capsule); err != nil {
			logger.Warn("could not remove old capsule file",
				zap.String("path", r.capsule.FilePath), zap.Error(err))
			continue
		}
		logger.Info("capsule renamed",
			zap.String("from", r.capsule.ID),
			zap.String("to", r.newID),
			zap.String("path", moved.FilePath))
		done++
	}
	return done
}
