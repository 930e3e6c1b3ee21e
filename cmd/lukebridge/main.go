package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"lukebridge/internal/bridge"
	"lukebridge/internal/bus"
	"lukebridge/internal/config"
	"lukebridge/internal/discovery"
	"lukebridge/internal/domain"
	"lukebridge/internal/drawing"
	"lukebridge/internal/editor"
	"lukebridge/internal/journal"
	"lukebridge/internal/metrics"

	"github.com/spf13/cobra"
)

var (
	version     = "0.1.0"
	logger      *slog.Logger
	configPath  string // overridable via --config flag
	targetFile  string // --file: document to draw into; defaults to the editor's active file
	showMetrics bool
)

func main() {
	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	root := &cobra.Command{
		Use:           "lukebridge",
		Short:         "lukebridge: drive a running Luke editor from the command line",
		Long:          "lukebridge discovers the editor's command endpoint and sends it drawing and query commands.",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config.json or config.yaml (default: ~/.lukebridge/config.json)")
	root.PersistentFlags().StringVarP(&targetFile, "file", "f", "", "target .luke file (default: the editor's active file)")
	root.PersistentFlags().BoolVar(&showMetrics, "metrics", false, "print bridge metrics to stderr when done")

	root.AddCommand(initCmd())
	root.AddCommand(discoverCmd())
	root.AddCommand(activeCmd())
	root.AddCommand(openCmd())
	root.AddCommand(circleCmd())
	root.AddCommand(rectCmd())
	root.AddCommand(elementsCmd())
	root.AddCommand(elementCmd())
	root.AddCommand(editorCmd())
	root.AddCommand(historyCmd())
	root.AddCommand(doctorCmd())
	root.AddCommand(configCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		if hint := errorHint(err); hint != "" {
			fmt.Fprintln(os.Stderr, "hint:", hint)
		}
		os.Exit(1)
	}
}

// errorHint tells the user which corrective action fits the failure.
func errorHint(err error) string {
	var remote *bridge.RemoteError
	switch {
	case errors.Is(err, bridge.ErrEndpointNotFound):
		return "the editor is not running; open a .luke file in the editor so it publishes its port"
	case errors.Is(err, bridge.ErrConnect):
		return "a port marker was found but nothing answered; the editor may have exited and left a stale marker"
	case errors.Is(err, bridge.ErrTransport):
		return "the editor stopped responding; the next command will reconnect"
	case errors.Is(err, bridge.ErrCanceled):
		return "the editor did not answer in time; raise editor.requestTimeoutSeconds if it is busy"
	case errors.Is(err, drawing.ErrNoTarget):
		return "pass --file or focus a .luke file in the editor"
	case errors.As(err, &remote):
		return "the editor rejected the " + string(remote.Command) + " command"
	default:
		return ""
	}
}

// resolveConfigPath returns the config path from --config flag or default.
func resolveConfigPath() string {
	if configPath != "" {
		return configPath
	}
	return config.DefaultConfigPath()
}

// loadConfig loads the config file, falling back to defaults when it is absent.
func loadConfig() (*config.Config, error) {
	cfgPath := resolveConfigPath()
	cfg, err := config.Load(cfgPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			logger.Debug("config not found, using defaults", "path", cfgPath)
			cfg = config.Defaults()
			cfg.Journal.DBPath = config.ExpandPath(cfg.Journal.DBPath)
			return cfg, nil
		}
		return nil, err
	}
	return cfg, nil
}

// newLogger builds the process logger from general.logLevel and general.logFile.
func newLogger(cfg *config.Config) (*slog.Logger, io.Closer, error) {
	var out io.Writer = os.Stderr
	var closer io.Closer
	if cfg.General.LogFile != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.General.LogFile), 0o755); err != nil {
			return nil, nil, fmt.Errorf("create log directory: %w", err)
		}
		f, err := os.OpenFile(cfg.General.LogFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file: %w", err)
		}
		out, closer = f, f
	}
	h := slog.NewTextHandler(out, &slog.HandlerOptions{Level: parseLogLevel(cfg.General.LogLevel)})
	return slog.New(h), closer, nil
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// bridgeRuntime bundles what a single CLI invocation needs to talk to the editor.
type bridgeRuntime struct {
	cfg     *config.Config
	session *bridge.Session
	client  *drawing.Client
	journal *journal.SQLiteStore
	closers []io.Closer
}

func openRuntime() (*bridgeRuntime, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	rt := &bridgeRuntime{cfg: cfg}

	l, closer, err := newLogger(cfg)
	if err != nil {
		return nil, err
	}
	logger = l
	if closer != nil {
		rt.closers = append(rt.closers, closer)
	}

	session := bridge.NewSession(bridge.SessionConfig{
		Locator: discovery.NewLocator(discovery.LocatorConfig{
			Candidates: cfg.Editor.PortFiles,
			Logger:     logger,
		}),
		Host:             cfg.Editor.Host,
		HandshakeTimeout: cfg.Editor.DialTimeout(),
		RequestTimeout:   cfg.Editor.RequestTimeout(),
		Logger:           logger,
	})
	rt.session = session

	clientCfg := drawing.ClientConfig{Sender: session, Logger: logger}
	if cfg.Journal.Enabled {
		store, err := journal.NewSQLiteStore(cfg.Journal.DBPath, logger)
		if err != nil {
			rt.Close()
			return nil, err
		}
		rt.journal = store
		clientCfg.Recorder = store

		if days := cfg.Journal.RetentionDays; days > 0 {
			cutoff := time.Now().AddDate(0, 0, -days)
			if _, err := store.Prune(context.Background(), cutoff); err != nil {
				logger.Warn("journal prune failed", "err", err)
			}
		}
	}
	rt.client = drawing.NewClient(clientCfg)
	return rt, nil
}

func (rt *bridgeRuntime) Close() {
	if rt.session != nil {
		rt.session.Close()
	}
	if rt.journal != nil {
		rt.journal.Close()
	}
	if showMetrics {
		metrics.Collector.Render(os.Stderr)
	}
	for _, c := range rt.closers {
		c.Close()
	}
}

// withClient runs fn against a client whose target is --file, or the editor's
// active file when needsTarget is set and no --file was given.
func withClient(needsTarget bool, fn func(ctx context.Context, c *drawing.Client) (any, error)) error {
	rt, err := openRuntime()
	if err != nil {
		return err
	}
	defer rt.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if needsTarget {
		if targetFile != "" {
			if _, err := rt.client.SetFile(ctx, targetFile); err != nil {
				return fmt.Errorf("set file: %w", err)
			}
		} else if _, err := rt.client.GetActiveFile(ctx); err != nil {
			return fmt.Errorf("get active file: %w", err)
		}
	}

	out, err := fn(ctx, rt.client)
	if err != nil {
		return err
	}
	return printJSON(out)
}

func printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

func initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Write a default config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			if _, err := os.Stat(cfgPath); err == nil {
				return fmt.Errorf("config already exists at %s", cfgPath)
			}
			if err := config.Save(cfgPath, config.Defaults()); err != nil {
				return err
			}
			logger.Info("initialized", "config", cfgPath)
			return nil
		},
	}
}

func discoverCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "discover",
		Short: "Show which port marker the bridge would use",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			loc := discovery.NewLocator(discovery.LocatorConfig{Candidates: cfg.Editor.PortFiles, Logger: logger})
			ep, ok := loc.Discover()
			if !ok {
				return fmt.Errorf("%w (searched %s)", bridge.ErrEndpointNotFound, strings.Join(loc.Candidates(), ", "))
			}
			return printJSON(map[string]any{"port": ep.Port, "marker": ep.Source})
		},
	}
}

func activeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "active",
		Short: "Show the editor's active file",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(false, func(ctx context.Context, c *drawing.Client) (any, error) {
				active, err := c.GetActiveFile(ctx)
				if err != nil {
					return nil, err
				}
				if len(active.Raw) > 0 {
					return active.Raw, nil
				}
				return active, nil
			})
		},
	}
}

func openCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "open [file]",
		Short: "Open a .luke file in the editor and make it the target",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := filepath.Abs(args[0])
			if err != nil {
				return err
			}
			return withClient(false, func(ctx context.Context, c *drawing.Client) (any, error) {
				return c.SetFile(ctx, path)
			})
		},
	}
}

func circleCmd() *cobra.Command {
	var circle domain.Circle
	cmd := &cobra.Command{
		Use:   "circle",
		Short: "Draw a circle",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(true, func(ctx context.Context, c *drawing.Client) (any, error) {
				return c.DrawCircle(ctx, circle)
			})
		},
	}
	cmd.Flags().StringVar(&circle.ID, "id", "", "unique element id")
	cmd.Flags().Float64Var(&circle.X, "x", 0, "center x")
	cmd.Flags().Float64Var(&circle.Y, "y", 0, "center y")
	cmd.Flags().Float64Var(&circle.Radius, "radius", 0, "radius")
	cmd.Flags().StringVar(&circle.Color, "color", domain.DefaultColor, "hex color")
	cmd.MarkFlagRequired("id")
	cmd.MarkFlagRequired("radius")
	return cmd
}

func rectCmd() *cobra.Command {
	var rect domain.Rectangle
	cmd := &cobra.Command{
		Use:   "rect",
		Short: "Draw a rectangle",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(true, func(ctx context.Context, c *drawing.Client) (any, error) {
				return c.DrawRectangle(ctx, rect)
			})
		},
	}
	cmd.Flags().StringVar(&rect.ID, "id", "", "unique element id")
	cmd.Flags().Float64Var(&rect.X, "x", 0, "top-left x")
	cmd.Flags().Float64Var(&rect.Y, "y", 0, "top-left y")
	cmd.Flags().Float64Var(&rect.Width, "width", 0, "width")
	cmd.Flags().Float64Var(&rect.Height, "height", 0, "height")
	cmd.Flags().StringVar(&rect.Color, "color", domain.DefaultColor, "hex color")
	cmd.MarkFlagRequired("id")
	cmd.MarkFlagRequired("width")
	cmd.MarkFlagRequired("height")
	return cmd
}

func elementsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "elements",
		Short: "List the target file's elements",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(true, func(ctx context.Context, c *drawing.Client) (any, error) {
				return c.GetElements(ctx)
			})
		},
	}
}

func elementCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "element [id]",
		Short: "Show one element of the target file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(true, func(ctx context.Context, c *drawing.Client) (any, error) {
				el, found, err := c.GetElementByID(ctx, args[0])
				if err != nil {
					return nil, err
				}
				if !found {
					return map[string]any{"id": args[0], "found": false}, nil
				}
				return el, nil
			})
		},
	}
}

func editorCmd() *cobra.Command {
	var port int
	var portFile string
	cmd := &cobra.Command{
		Use:   "editor",
		Short: "Run the in-memory reference editor endpoint",
		Long: `Starts a websocket endpoint that behaves like the editor extension: it
publishes its port in a marker file and keeps an in-memory scene per file.
Useful for trying the bridge without the editor. Press Ctrl+C to stop.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			l, closer, err := newLogger(cfg)
			if err != nil {
				return err
			}
			logger = l
			if closer != nil {
				defer closer.Close()
			}
			if !cmd.Flags().Changed("port") {
				port = cfg.Editor.ListenPort
			}

			events := bus.NewEventBus(logger, 0)
			events.On("*", func(e bus.Event) {
				logger.Info("scene event", "type", e.Type, "file", e.FilePath, "id", e.ElementID, "detail", e.Detail)
			})

			edCfg := editor.Config{
				Host:     cfg.Editor.ListenHost,
				Port:     port,
				PortFile: portFile,
				Events:   events,
				Logger:   logger,
			}
			if cfg.Metrics.Enabled {
				edCfg.MetricsPath = cfg.Metrics.Endpoint
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return editor.New(edCfg).Start(ctx)
		},
	}
	cmd.Flags().IntVar(&port, "port", 0, "listen port (0 picks a free port)")
	cmd.Flags().StringVar(&portFile, "port-file", discovery.SharedMarkerPath, "marker file to publish the port in")
	return cmd
}

func historyCmd() *cobra.Command {
	var limit int
	var sessionID string
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent round trips from the journal",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if !cfg.Journal.Enabled {
				return errors.New("journal is disabled; set journal.enabled to true")
			}
			store, err := journal.NewSQLiteStore(cfg.Journal.DBPath, logger)
			if err != nil {
				return err
			}
			defer store.Close()

			var entries []journal.Entry
			if sessionID != "" {
				entries, err = store.ForSession(context.Background(), sessionID)
			} else {
				entries, err = store.Recent(context.Background(), limit)
			}
			if err != nil {
				return err
			}
			for _, e := range entries {
				status := "ok"
				if !e.Success {
					status = "FAIL " + e.Error
				}
				target := e.FilePath
				if e.ElementID != "" {
					target += "#" + e.ElementID
				}
				fmt.Printf("%s  %-18s %-32s %6s  %s\n",
					e.CreatedAt.Format(time.DateTime), e.Command, target, e.Duration.Round(time.Millisecond), status)
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of entries")
	cmd.Flags().StringVar(&sessionID, "session", "", "show every round trip of one session instead")
	return cmd
}

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "View and modify configuration",
		Long:  "Get, set, and list configuration values. Changes are saved to the config file.",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "get [path]",
		Short: "Get a config value (e.g. editor.host)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			val, err := config.GetByPath(cfg, args[0])
			if err != nil {
				return err
			}
			return printJSON(val)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "set [path] [value]",
		Short: "Set a config value (e.g. editor.requestTimeoutSeconds 60)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			cfg, err := loadConfig()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if err := config.SetByPath(cfg, args[0], args[1]); err != nil {
				return fmt.Errorf("set value: %w", err)
			}
			if err := config.Save(cfgPath, cfg); err != nil {
				return fmt.Errorf("save config: %w", err)
			}
			logger.Info("config updated", "path", args[0], "value", args[1], "file", cfgPath)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List all config values",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			return printJSON(config.ListPaths(cfg))
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Show config file path",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(resolveConfigPath())
		},
	})

	return cmd
}
