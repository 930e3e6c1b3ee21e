package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"time"

	"lukebridge/internal/bridge"
	"lukebridge/internal/config"
	"lukebridge/internal/discovery"
	"lukebridge/internal/journal"

	"github.com/spf13/cobra"
)

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Run diagnostic checks on the bridge setup",
		Long: `Verifies that lukebridge's configuration, port markers, editor connectivity,
and journal are correctly set up. Reports pass/fail for each check.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			fmt.Printf("lukebridge doctor v%s\n", version)
			fmt.Printf("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n\n")

			passed := 0
			failed := 0
			warned := 0

			// 1. Config file
			var cfg *config.Config
			if _, err := os.Stat(cfgPath); err != nil {
				printWarn("Config file", fmt.Sprintf("not found at %s (using defaults)", cfgPath))
				warned++
				cfg = config.Defaults()
				cfg.Journal.DBPath = config.ExpandPath(cfg.Journal.DBPath)
			} else {
				printPass("Config file", cfgPath)
				passed++

				cfg, err = config.Load(cfgPath)
				if err != nil {
					printFail("Config validation", err.Error())
					failed++
					fmt.Printf("\n%d passed, %d failed\n", passed, failed)
					return fmt.Errorf("%d check(s) failed", failed)
				}
				printPass("Config validation", "valid")
				passed++
			}

			// 2. Port markers
			loc := discovery.NewLocator(discovery.LocatorConfig{Candidates: cfg.Editor.PortFiles, Logger: logger})
			ep, found := loc.Discover()
			for _, path := range loc.Candidates() {
				port, err := discovery.ReadPortFile(path)
				switch {
				case os.IsNotExist(err):
					continue
				case err != nil:
					printWarn("Port marker", fmt.Sprintf("%s: %v", path, err))
					warned++
				default:
					printPass("Port marker", fmt.Sprintf("%s -> %d", path, port))
					passed++
				}
			}
			if !found {
				printFail("Editor endpoint", "no port marker found; is the editor running?")
				failed++
			} else if err := checkEndpoint(cfg, ep); err != nil {
				printFail("Editor endpoint", err.Error())
				failed++
			} else {
				printPass("Editor endpoint", fmt.Sprintf("ws://%s:%d", cfg.Editor.Host, ep.Port))
				passed++
			}

			// 3. Journal writable
			if cfg.Journal.Enabled {
				if err := checkJournal(cfg.Journal.DBPath); err != nil {
					printFail("Journal", err.Error())
					failed++
				} else {
					printPass("Journal", cfg.Journal.DBPath)
					passed++
				}
			}

			// 4. Reference editor port
			if cfg.Editor.ListenPort != 0 {
				if err := checkPort(cfg.Editor.ListenHost, cfg.Editor.ListenPort); err != nil {
					printWarn("Listen port", fmt.Sprintf("port %d may be in use: %v", cfg.Editor.ListenPort, err))
					warned++
				} else {
					printPass("Listen port", fmt.Sprintf(":%d available", cfg.Editor.ListenPort))
					passed++
				}
			}

			// 5. Log file writable
			if cfg.General.LogFile != "" {
				if err := os.MkdirAll(filepath.Dir(cfg.General.LogFile), 0o755); err != nil {
					printWarn("Log file", fmt.Sprintf("cannot create log directory: %v", err))
					warned++
				} else {
					printPass("Log file", cfg.General.LogFile)
					passed++
				}
			}

			fmt.Printf("\n━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n")
			fmt.Printf("Results: %d passed, %d warnings, %d failed\n", passed, warned, failed)
			if failed > 0 {
				return fmt.Errorf("%d check(s) failed", failed)
			}
			if warned > 0 {
				fmt.Printf("\nThe bridge should work but consider fixing the warnings.\n")
			} else {
				fmt.Printf("\nAll checks passed! The editor is reachable.\n")
			}
			return nil
		},
	}
}

// checkEndpoint opens and closes one session against the discovered marker.
func checkEndpoint(cfg *config.Config, ep discovery.Endpoint) error {
	session := bridge.NewSession(bridge.SessionConfig{
		Locator:          fixedLocator{ep},
		Host:             cfg.Editor.Host,
		HandshakeTimeout: cfg.Editor.DialTimeout(),
		Logger:           logger,
	})
	defer session.Close()

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Editor.DialTimeout()+time.Second)
	defer cancel()
	return session.Connect(ctx)
}

type fixedLocator struct{ ep discovery.Endpoint }

func (f fixedLocator) Discover() (discovery.Endpoint, bool) { return f.ep, true }

func checkJournal(dbPath string) error {
	store, err := journal.NewSQLiteStore(dbPath, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := store.Recent(ctx, 1); err != nil {
		return fmt.Errorf("not readable: %w", err)
	}
	return nil
}

func checkPort(host string, port int) error {
	ln, err := net.Listen("tcp", net.JoinHostPort(host, fmt.Sprint(port)))
	if err != nil {
		return err
	}
	ln.Close()
	return nil
}

func printPass(check, detail string) {
	fmt.Printf("  [PASS] %-20s %s\n", check, detail)
}

func printFail(check, detail string) {
	fmt.Printf("  [FAIL] %-20s %s\n", check, detail)
}

func printWarn(check, detail string) {
	fmt.Printf("  [WARN] %-20s %s\n", check, detail)
}
