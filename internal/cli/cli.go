// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// cli.go - Root command and per-invocation wiring for docchat.
package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync/atomic"

	"github.com/spf13/cobra"

	"github.com/jeranaias/docchat/internal/api"
	"github.com/jeranaias/docchat/internal/chat"
	"github.com/jeranaias/docchat/internal/config"
	"github.com/jeranaias/docchat/internal/logging"
	"github.com/jeranaias/docchat/internal/notify"
	"github.com/jeranaias/docchat/internal/session"
)

// Version information (can be overridden at build time)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// annotationOffline marks commands that never talk to the backend.
const annotationOffline = "offline"

// Options wires the CLI to its environment. Zero fields fall back to the
// process's standard streams, the default config file and an HTTP client.
type Options struct {
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer

	// ConfigPath overrides ~/.docchat/config.toml.
	ConfigPath string
	// Backend replaces the HTTP client built from the configuration.
	Backend chat.Backend
	// Logger replaces the logger built from the configuration.
	Logger *slog.Logger
}

// App is the state shared by the commands of one invocation.
type App struct {
	opts Options

	in     io.Reader
	out    io.Writer
	errOut io.Writer

	configPath string
	cfg        *config.Config
	logger     *slog.Logger
	closeLog   func() error

	backend chat.Backend
	engine  *chat.Engine
	printer *Printer

	// Flags
	jsonOutput bool
	verbose    bool
	chatID     int64
	apiURL     string

	startChatID int64
	errorShown  atomic.Bool
}

func newApp(opts Options) *App {
	a := &App{
		opts:     opts,
		in:       opts.Stdin,
		out:      opts.Stdout,
		errOut:   opts.Stderr,
		closeLog: func() error { return nil },
	}
	if a.in == nil {
		a.in = os.Stdin
	}
	if a.out == nil {
		a.out = os.Stdout
	}
	if a.errOut == nil {
		a.errOut = os.Stderr
	}
	return a
}

// Execute runs docchat with args and returns the process exit code.
func Execute(ctx context.Context, args []string, opts Options) int {
	a := newApp(opts)
	root := a.rootCmd()
	root.SetArgs(args)

	err := root.ExecuteContext(ctx)
	if cerr := a.close(); err == nil {
		err = cerr
	}
	if err == nil {
		return ExitSuccess
	}

	if a.jsonOutput {
		_ = NewJSONErrorResponse(root.Name(), err).Write(a.out)
	} else if !a.errorShown.Load() {
		fmt.Fprintln(a.errOut, ErrorStyle.Render("Error:"), chat.UserMessage(err))
	}
	return GetExitCode(err)
}

func (a *App) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "docchat",
		Short:         "Chat with your documents from the terminal",
		Version:       fmt.Sprintf("%s (commit %s, built %s)", Version, GitCommit, BuildDate),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			useColorProfileFor(a.out)
			if cmd.Annotations[annotationOffline] == "true" {
				return a.resolveConfigPath()
			}
			return a.setup(cmd.Context())
		},
	}
	root.SetIn(a.in)
	root.SetOut(a.out)
	root.SetErr(a.errOut)
	root.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return &UsageError{Arg: "flag", Reason: err.Error()}
	})

	flags := root.PersistentFlags()
	flags.StringVar(&a.configPath, "config", a.opts.ConfigPath, "config file (default ~/.docchat/config.toml)")
	flags.StringVar(&a.apiURL, "api-url", "", "backend URL (overrides config)")
	flags.Int64Var(&a.chatID, "chat", 0, "chat to open (default: last used)")
	flags.BoolVar(&a.jsonOutput, "json", false, "output in JSON format")
	flags.BoolVarP(&a.verbose, "verbose", "v", false, "log to stderr at debug level")

	root.AddCommand(
		a.chatsCmd(),
		a.newCmd(),
		a.renameCmd(),
		a.showCmd(),
		a.askCmd(),
		a.chatCmd(),
		a.filesCmd(),
		a.uploadCmd(),
		a.attachCmd(),
		a.detachCmd(),
		a.linkCmd(),
		a.statusCmd(),
		a.configCmd(),
	)
	return root
}

// =============================================================================
// SETUP AND TEARDOWN
// =============================================================================

func (a *App) resolveConfigPath() error {
	if a.configPath != "" {
		return nil
	}
	path, err := config.ConfigPath()
	if err != nil {
		return configError(err)
	}
	a.configPath = path
	return nil
}

func (a *App) loadConfig() error {
	if a.cfg != nil {
		return nil
	}
	if err := a.resolveConfigPath(); err != nil {
		return err
	}

	var cfg *config.Config
	if _, err := os.Stat(a.configPath); err == nil {
		cfg, err = config.LoadFromPath(a.configPath)
		if err != nil {
			return configError(err)
		}
	} else {
		cfg = config.Default()
		cfg.ApplyEnvOverrides()
	}

	if a.apiURL != "" {
		cfg.API.BaseURL = a.apiURL
	}
	if a.verbose {
		cfg.Log.Level = "debug"
	}
	if err := cfg.Validate(); err != nil {
		return configError(err)
	}
	a.cfg = cfg
	return nil
}

// newLogger logs to the configured file. Without one, logs go to stderr
// only in verbose mode so they do not interleave with replies.
func (a *App) newLogger() error {
	switch {
	case a.opts.Logger != nil:
		a.logger = a.opts.Logger
	case a.cfg.Log.File == "" && !a.verbose:
		a.logger = logging.Discard()
	default:
		logger, closeFn, err := logging.New(a.cfg.Log)
		if err != nil {
			return configError(err)
		}
		a.logger, a.closeLog = logger, closeFn
	}
	return nil
}

func (a *App) setup(ctx context.Context) error {
	if err := a.loadConfig(); err != nil {
		return err
	}
	if err := a.newLogger(); err != nil {
		return err
	}

	a.backend = a.opts.Backend
	if a.backend == nil {
		a.backend = api.NewClient(api.Options{
			BaseURL:           a.cfg.API.BaseURL,
			Timeout:           a.cfg.API.Timeout(),
			RequestsPerSecond: a.cfg.API.RequestsPerSecond,
			Burst:             a.cfg.API.Burst,
			Logger:            a.logger,
		}, api.StaticToken(a.cfg.API.Token))
	}

	a.printer = NewPrinter(a.out, a.cfg.UI)
	toasts := notify.NewManager(
		notify.WithDuration(a.cfg.Notify.Duration()),
		notify.WithMaxToasts(a.cfg.Notify.MaxToasts),
		notify.WithLogger(a.logger.With("component", "notify")),
		notify.WithSink(a.showToast),
	)
	a.engine = chat.NewEngine(a.backend, session.NewStore(),
		chat.WithLogger(a.logger.With("component", "chat")),
		chat.WithNotifier(toasts),
		chat.WithTitleMaxRunes(a.cfg.Chat.TitleMaxRunes),
	)

	a.startChatID = a.cfg.Chat.LastChatID
	preferred := a.startChatID
	if a.chatID != 0 {
		preferred = a.chatID
	}
	if err := a.engine.Initialize(ctx, preferred); err != nil {
		return err
	}
	if a.chatID != 0 && a.engine.Store().SelectedChatID() != a.chatID {
		return a.engine.SelectChat(ctx, a.chatID)
	}
	return nil
}

// showToast prints a notification on stderr. Error toasts mark the
// failure as reported.
func (a *App) showToast(t notify.Toast) {
	if t.Kind == notify.KindError {
		a.errorShown.Store(true)
	}
	if a.jsonOutput {
		return
	}
	fmt.Fprintln(a.errOut, notify.RenderLine(t, TerminalWidth(a.errOut, 0), t.ExpiresAt()))
}

// close waits for background work and remembers the selected chat.
func (a *App) close() error {
	if a.engine != nil {
		a.engine.Wait()
		if id := a.engine.Store().SelectedChatID(); id != 0 && id != a.startChatID {
			if err := rememberChat(a.configPath, id); err != nil {
				a.logger.Warn("could not remember chat", "chat_id", id, "error", err)
			}
		}
	}
	return a.closeLog()
}

// rememberChat stores the chat to reopen next time. Only the file's own
// values are rewritten so environment overrides are never persisted.
func rememberChat(path string, id int64) error {
	cfg := config.Default()
	if _, err := os.Stat(path); err == nil {
		if err := config.LoadTOML(cfg, path); err != nil {
			return err
		}
	}
	cfg.Chat.LastChatID = id
	return config.SaveTOML(cfg, path)
}

// =============================================================================
// HELPERS
// =============================================================================

// writeJSON writes a successful --json result.
func (a *App) writeJSON(command string, data any) error {
	return NewJSONResponse(command, data).Write(a.out)
}

// requireChat returns the selected chat ID.
func (a *App) requireChat() (int64, error) {
	id := a.engine.Store().SelectedChatID()
	if id == 0 {
		return 0, chat.ErrNoChatSelected
	}
	return id, nil
}
