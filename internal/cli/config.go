// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// config.go - Config command implementation for docchat.
//
// Command: config [subcommand]
// Short:   View and modify configuration
//
// Subcommands:
//
//	show (default)      Display the effective configuration
//	get <key>           Print one value
//	set <key> <value>   Set a value in the config file
//	reset               Reset the config file to defaults
//	keys                List configuration keys
//	path                Show configuration file path
//
// Examples:
//
//	docchat config set api.base_url https://chat.example.com
//	docchat config set ui.markdown false
//	docchat config get chat.title_max_runes
package cli

import (
	"crypto/sha256"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jeranaias/docchat/internal/config"
)

func (a *App) configCmd() *cobra.Command {
	offline := map[string]string{annotationOffline: "true"}

	cmd := &cobra.Command{
		Use:         "config",
		Short:       "View and modify configuration",
		Annotations: offline,
		Args:        cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.configShow()
		},
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:         "show",
			Short:       "Display the effective configuration",
			Annotations: offline,
			Args:        cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return a.configShow()
			},
		},
		&cobra.Command{
			Use:         "get <key>",
			Short:       "Print one configuration value",
			Annotations: offline,
			Args:        cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				if err := a.loadConfig(); err != nil {
					return err
				}
				value, err := a.cfg.Get(normalizeKey(args[0]))
				if err != nil {
					return &UsageError{Arg: "key", Reason: err.Error()}
				}
				shown := maskIfSecret(args[0], fmt.Sprint(value))
				if a.jsonOutput {
					return a.writeJSON("config get", map[string]string{"key": args[0], "value": shown})
				}
				fmt.Fprintln(a.out, shown)
				return nil
			},
		},
		&cobra.Command{
			Use:         "set <key> <value>",
			Short:       "Set a value in the config file",
			Annotations: offline,
			Args:        cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				return a.configSet(args[0], args[1])
			},
		},
		&cobra.Command{
			Use:         "reset",
			Short:       "Reset the config file to defaults",
			Annotations: offline,
			Args:        cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				if err := config.SaveTOML(config.Default(), a.configPath); err != nil {
					return configError(err)
				}
				fmt.Fprintln(a.out, SuccessStyle.Render("[OK]"), "Configuration reset to defaults")
				return nil
			},
		},
		&cobra.Command{
			Use:         "keys",
			Short:       "List configuration keys",
			Annotations: offline,
			Args:        cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				if a.jsonOutput {
					return a.writeJSON("config keys", config.GetAllKeys())
				}
				for _, key := range config.GetAllKeys() {
					fmt.Fprintln(a.out, key)
				}
				return nil
			},
		},
		&cobra.Command{
			Use:         "path",
			Short:       "Show configuration file path",
			Annotations: offline,
			Args:        cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				fmt.Fprintln(a.out, a.configPath)
				if _, err := os.Stat(a.configPath); os.IsNotExist(err) {
					fmt.Fprintln(a.errOut, DimStyle.Render("(file does not exist, it is created on first save)"))
				}
				return nil
			},
		},
	)
	return cmd
}

func (a *App) configShow() error {
	if err := a.loadConfig(); err != nil {
		return err
	}
	if a.jsonOutput {
		safe := a.cfg.Clone()
		safe.API.Token = maskAPIKey(safe.API.Token)
		return a.writeJSON("config show", safe)
	}
	fmt.Fprintln(a.out, TitleStyle.Render("docchat configuration"))
	fmt.Fprintln(a.out, DimStyle.Render("# "+a.configPath))
	fmt.Fprint(a.out, a.cfg.String())
	return nil
}

// configSet changes one key in the config file. The file's own values are
// loaded so environment overrides are never written back.
func (a *App) configSet(key, value string) error {
	cfg := config.Default()
	if _, err := os.Stat(a.configPath); err == nil {
		if err := config.LoadTOML(cfg, a.configPath); err != nil {
			return configError(err)
		}
	}

	key = normalizeKey(key)
	if err := cfg.Set(key, value); err != nil {
		return &UsageError{Arg: "key", Reason: err.Error()}
	}
	if err := cfg.Validate(); err != nil {
		return &UsageError{Arg: "value", Reason: err.Error()}
	}
	if err := config.SaveTOML(cfg, a.configPath); err != nil {
		return configError(err)
	}

	if a.jsonOutput {
		return a.writeJSON("config set", map[string]string{"key": key, "value": maskIfSecret(key, value)})
	}
	fmt.Fprintf(a.out, "%s %s = %s\n", SuccessStyle.Render("[OK]"), key, maskIfSecret(key, value))
	return nil
}

// normalizeKey accepts "API.Base-URL" style spellings of "api.base_url".
func normalizeKey(key string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(key)), "-", "_")
}

// =============================================================================
// HELPERS
// =============================================================================

// maskAPIKey masks a credential for display with a SHA-256 fingerprint, so
// no prefix of the key is ever shown.
func maskAPIKey(key string) string {
	if key == "" {
		return "(not set)"
	}
	hash := sha256.Sum256([]byte(key))
	return fmt.Sprintf("sha256:%x...", hash[:4])
}

// maskIfSecret masks the value if the key names a secret field.
func maskIfSecret(key, value string) string {
	keyLower := strings.ToLower(key)
	for _, s := range []string{"key", "secret", "token", "password"} {
		if strings.Contains(keyLower, s) {
			return maskAPIKey(value)
		}
	}
	return value
}
