// Package main is the entry point for the toolgate CLI.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/flemzord/toolgate/internal/bridge"
	"github.com/flemzord/toolgate/internal/config"
	"github.com/flemzord/toolgate/internal/core"
	"github.com/flemzord/toolgate/internal/tracing"

	// Modules register themselves via init.
	_ "github.com/flemzord/toolgate/modules/approvalmodule"
	_ "github.com/flemzord/toolgate/internal/gateway"
	_ "github.com/flemzord/toolgate/modules/channel/telegram"
	_ "github.com/flemzord/toolgate/modules/channel/term"
	_ "github.com/flemzord/toolgate/modules/channel/wsops"
)

// Set by goreleaser ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "toolgate",
		Short:         "An approval broker that gates agent tool calls behind human review",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(versionCmd(), startCmd(), configCmd(), mcpCmd(), serviceCmd())
	return root
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version and compiled modules",
		Run: func(_ *cobra.Command, _ []string) {
			fmt.Printf("toolgate %s (commit: %s, built: %s)\n", version, commit, date)
			mods := core.GetModules()
			if len(mods) == 0 {
				fmt.Println("\nNo compiled modules.")
				return
			}
			fmt.Println("\nCompiled modules:")
			for _, mod := range mods {
				fmt.Printf("  %s\n", mod.ID)
			}
		},
	}
}

// loadApp loads the config and builds the module app without starting it.
func loadApp(cfgPath string) (*core.App, *config.Config, error) {
	if cfgPath == "" {
		resolved, err := resolveConfigPath()
		if err != nil {
			return nil, nil, err
		}
		cfgPath = resolved
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, nil, err
	}
	if err := config.Validate(cfg); err != nil {
		return nil, nil, err
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	appCtx := core.NewAppContext(logger, defaultDataDir(), defaultWorkspace())
	appCtx = appCtx.WithModuleConfigs(cfg.Modules)

	app := core.NewApp(appCtx)
	if err := app.LoadModules(config.Resolve(cfg)); err != nil {
		return nil, nil, err
	}
	return app, cfg, nil
}

func startCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start toolgate with all configured modules",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfgPath, _ := cmd.Flags().GetString("config")
			app, cfg, err := loadApp(cfgPath)
			if err != nil {
				return err
			}

			shutdown, err := tracing.Setup(context.Background(), tracing.Config{
				Enabled:  cfg.Tracing.Enabled,
				Endpoint: cfg.Tracing.Endpoint,
				Insecure: cfg.Tracing.Insecure,
			}, version)
			if err != nil {
				return err
			}
			defer func() { _ = shutdown(context.Background()) }()

			return app.Run()
		},
	}
	cmd.Flags().StringP("config", "c", "", "Path to configuration file")
	return cmd
}

func mcpCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Serve the gated tools over MCP on stdin/stdout",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfgPath, _ := cmd.Flags().GetString("config")
			app, _, err := loadApp(cfgPath)
			if err != nil {
				return err
			}
			defer app.Stop()

			if err := app.Start(); err != nil {
				return err
			}

			svc, ok := app.Context().Service("bridge.mcp")
			if !ok {
				return errors.New("bridge.mcp module is not configured")
			}
			b, ok := svc.(*bridge.Bridge)
			if !ok {
				return errors.New("bridge.mcp service has unexpected type")
			}
			return b.ServeStdio()
		},
	}
	cmd.Flags().StringP("config", "c", "", "Path to configuration file")
	return cmd
}

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "check <path>",
		Short: "Validate configuration",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			app, cfg, err := loadApp(args[0])
			if err != nil {
				return err
			}
			defer app.Stop()

			fmt.Printf("Configuration OK (%d modules)\n", len(cfg.Modules))
			for _, id := range config.Resolve(cfg) {
				fmt.Printf("  %s\n", id)
			}
			return nil
		},
	})
	return cmd
}

// resolveConfigPath searches for a config file in standard locations.
// Search order: $XDG_CONFIG_HOME/toolgate/toolgate.yaml → ./toolgate.yaml
func resolveConfigPath() (string, error) {
	var candidates []string

	if xdg, ok := os.LookupEnv("XDG_CONFIG_HOME"); ok {
		candidates = append(candidates, filepath.Join(xdg, "toolgate", "toolgate.yaml"))
	} else if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, ".config", "toolgate", "toolgate.yaml"))
	}

	candidates = append(candidates, "toolgate.yaml")

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}

	return "", fmt.Errorf("no configuration file found (searched: %v)", candidates)
}

func defaultDataDir() string {
	if dir, ok := os.LookupEnv("XDG_DATA_HOME"); ok {
		return filepath.Join(dir, "toolgate")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "toolgate", "data")
}

func defaultWorkspace() string {
	dir, _ := os.Getwd()
	return dir
}
