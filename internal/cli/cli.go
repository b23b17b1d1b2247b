// Package cli implements the pocket-capsules command line.
//
// Every subcommand shares one App: the configuration, the zap logger and the
// service are built once in the root command's PersistentPreRunE and torn
// down in PersistentPostRun. Read-only commands go through the command
// executor so the CLI reports validation failures with the same messages as
// the HTTP API; library edits call the service directly.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/AlecAivazis/survey/v2"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dpshade/pocket-capsules/internal/commands"
	"github.com/dpshade/pocket-capsules/internal/config"
	"github.com/dpshade/pocket-capsules/internal/errors"
	"github.com/dpshade/pocket-capsules/internal/logging"
	"github.com/dpshade/pocket-capsules/internal/service"
	"github.com/dpshade/pocket-capsules/internal/ui"
)

// App holds the state shared by all subcommands
type App struct {
	version string

	configPath string
	libraryDir string
	logLevel   string
	verbose    bool
	noBuiltin  bool
	noColor    bool

	in     io.Reader
	out    io.Writer
	errOut io.Writer

	logger     *zap.Logger
	cfg        *config.Config
	svc        *service.Service
	executor   *commands.CommandExecutor
	errHandler *errors.CLIErrorHandler

	// confirm asks a yes/no question; tests replace it
	confirm func(message string) (bool, error)
	// browse runs the terminal UI; tests replace it
	browse func(svc *service.Service, logger *zap.Logger) error
}

// NewApp creates an App writing to the process streams
func NewApp(version string) *App {
	return &App{
		version: version,
		in:      os.Stdin,
		out:     os.Stdout,
		errOut:  os.Stderr,
		confirm: surveyConfirm,
		browse:  ui.Run,
	}
}

func surveyConfirm(message string) (bool, error) {
	ok := false
	err := survey.AskOne(&survey.Confirm{Message: message, Default: false}, &ok)
	return ok, err
}

// Execute runs the command line and returns the process exit code
func Execute(version string) int {
	app := NewApp(version)
	root := app.RootCommand()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := root.ExecuteContext(ctx); err != nil {
		handler := app.errHandler
		if handler == nil {
			handler = errors.NewCLIErrorHandler(app.logger, app.verbose)
		}
		fmt.Fprintln(app.errOut, handler.FormatError(err))
		return 1
	}
	return 0
}

// RootCommand builds the command tree
func (a *App) RootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "pocket-capsules",
		Short: "Browse, search and validate a catalog of UI capsules",
		Long: `pocket-capsules manages a catalog of reusable UI and AI building blocks.

The catalog combines the embedded capsules with your library of capsule
files. Run without arguments to open the interactive browser.`,
		Version:           a.version,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.setup,
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.logger != nil {
				_ = a.logger.Sync()
			}
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.browse(a.svc, a.logger)
		},
	}

	root.SetIn(a.in)
	root.SetOut(a.out)
	root.SetErr(a.errOut)

	flags := root.PersistentFlags()
	flags.StringVar(&a.configPath, "config", "", "path to capsules.toml")
	flags.StringVar(&a.libraryDir, "library", "", "library directory (default ~/.pocket-capsules)")
	flags.StringVar(&a.logLevel, "log-level", "", "log level: debug, info, warn, error")
	flags.BoolVarP(&a.verbose, "verbose", "v", false, "enable debug logging and error causes")
	flags.BoolVar(&a.noBuiltin, "no-builtin", false, "exclude the embedded capsules")
	flags.BoolVar(&a.noColor, "no-color", false, "disable coloured output")

	root.AddCommand(
		a.listCommand(),
		a.showCommand(),
		a.searchCommand(),
		a.tagsCommand(),
		a.categoriesCommand(),
		a.statsCommand(),
		a.verifyCommand(),
		a.compatCommand(),
		a.connectCommand(),
		a.suggestCommand(),
		a.validateCommand(),
		a.exportCommand(),
		a.importCommand(),
		a.initCommand(),
		a.newCommand(),
		a.deleteCommand(),
		a.copyCommand(),
		a.searchesCommand(),
		a.serveCommand(),
		a.browseCommand(),
	)
	return root
}

// setup loads configuration and builds the logger and service
func (a *App) setup(cmd *cobra.Command, args []string) error {
	if a.noColor || os.Getenv("NO_COLOR") != "" {
		lipgloss.SetColorProfile(termenv.Ascii)
	}

	cfg, err := config.Load(a.configPath)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInvalidInput, "Failed to load configuration")
	}
	if a.libraryDir != "" {
		cfg.LibraryDir = a.libraryDir
	}
	if a.logLevel != "" {
		cfg.LogLevel = a.logLevel
	}
	if a.noBuiltin {
		cfg.IncludeBuiltin = false
	}
	if err := cfg.Validate(); err != nil {
		return errors.Wrap(err, errors.ErrCodeInvalidInput, "Invalid configuration")
	}
	a.cfg = cfg

	if a.logger == nil {
		logger, err := logging.New(cfg.LogLevel, a.verbose)
		if err != nil {
			return err
		}
		a.logger = logger
	}
	a.errHandler = errors.NewCLIErrorHandler(a.logger, a.verbose)

	a.logger.Debug("configuration loaded",
		zap.String("source", cfg.Source),
		zap.String("library", cfg.LibraryDir),
		zap.Bool("include_builtin", cfg.IncludeBuiltin))

	svc, err := service.FromConfig(cfg, a.logger)
	if err != nil {
		return err
	}
	a.svc = svc
	a.executor = commands.NewCommandExecutor(svc)
	return nil
}

// run executes a command and turns a failed result into an error
func (a *App) run(cmd *cobra.Command, name string, params map[string]interface{}) (*commands.CommandResult, error) {
	result, err := a.executor.Execute(cmd.Context(), name, params)
	if err != nil {
		return nil, err
	}
	if !result.Success {
		return result, result.AppError()
	}
	a.logger.Debug("command executed", zap.String("command", name), zap.String("message", result.Message))
	return result, nil
}

func (a *App) printJSON(v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode JSON: %w", err)
	}
	fmt.Fprintln(a.out, string(data))
	return nil
}

func (a *App) printf(format string, args ...interface{}) {
	fmt.Fprintf(a.out, format, args...)
}

func (a *App) browseCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "browse",
		Short: "Open the interactive catalog browser",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.browse(a.svc, a.logger)
		},
	}
}
