// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/hfpull/hfpull/pkg/hfpull"
)

const configName = "hfpull"

// DefaultConfig returns the default configuration.
func DefaultConfig() map[string]any {
	return map[string]any{
		"output":     hfpull.DefaultOutputDir,
		"ext":        []string{hfpull.DefaultExtension},
		"threads":    hfpull.DefaultThreads,
		"mirror":     false,
		"chunk-size": hfpull.DefaultChunkSize,
		"progress":   "auto",
		"token":      "",
	}
}

// configCandidates lists the default config locations in lookup order.
func configCandidates() []string {
	home, _ := os.UserHomeDir()
	dir := filepath.Join(home, ".config")
	return []string{
		filepath.Join(dir, configName+".json"),
		filepath.Join(dir, configName+".yaml"),
		filepath.Join(dir, configName+".yml"),
	}
}

// findConfig returns the explicit path, or the first default location that
// exists, or "".
func findConfig(explicit string) string {
	if explicit != "" {
		return explicit
	}
	for _, p := range configCandidates() {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

func readConfig(path string) (map[string]any, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg map[string]any
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return nil, fmt.Errorf("invalid YAML config file: %w", err)
		}
	default:
		if err := json.Unmarshal(b, &cfg); err != nil {
			return nil, fmt.Errorf("invalid JSON config file: %w", err)
		}
	}
	return cfg, nil
}

// applySettingsDefaults fills every flag the user did not set from the config
// file.
func applySettingsDefaults(cmd *cobra.Command, ro *RootOpts, po *pullOpts, dst *hfpull.Settings) error {
	path := findConfig(ro.Config)
	if path == "" {
		return nil
	}
	cfg, err := readConfig(path)
	if err != nil {
		return err
	}

	lookup := func(flagName string) (any, bool) {
		if cmd.Flags().Changed(flagName) {
			return nil, false
		}
		v, ok := cfg[flagName]
		return v, ok && v != nil
	}
	setStr := func(flagName string, set func(string)) {
		if v, ok := lookup(flagName); ok {
			set(fmt.Sprint(v))
		}
	}
	setInt := func(flagName string, set func(int)) {
		if v, ok := lookup(flagName); ok {
			var x int
			if _, err := fmt.Sscan(fmt.Sprint(v), &x); err == nil {
				set(x)
			}
		}
	}
	setBool := func(flagName string, set func(bool)) {
		if v, ok := lookup(flagName); ok {
			set(fmt.Sprint(v) == "true")
		}
	}

	setStr("output", func(v string) { dst.OutputDir = v })
	setInt("threads", func(v int) { dst.Threads = v })
	setBool("mirror", func(v bool) { dst.Mirror = v })
	setInt("chunk-size", func(v int) { dst.ChunkSize = v })
	setStr("progress", func(v string) { po.Progress = v })
	setStr("token", func(v string) { po.Token = v })
	if v, ok := lookup("ext"); ok {
		dst.Extensions = toStrings(v)
	}
	return nil
}

// toStrings accepts a list or a comma separated string.
func toStrings(v any) []string {
	switch x := v.(type) {
	case []any:
		out := make([]string, 0, len(x))
		for _, s := range x {
			out = append(out, fmt.Sprint(s))
		}
		return out
	case []string:
		return x
	default:
		return []string{fmt.Sprint(x)}
	}
}

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration",
	}

	cmd.AddCommand(newConfigInitCmd())
	cmd.AddCommand(newConfigShowCmd())
	cmd.AddCommand(newConfigPathCmd())

	return cmd
}

func newConfigInitCmd() *cobra.Command {
	var (
		force   bool
		useYAML bool
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create a default configuration file",
		Long: `Creates a default configuration file at ~/.config/hfpull.json (or .yaml)

The configuration file sets default values for the download flags.
Flags given on the command line always win.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			configPath := configCandidates()[0]
			if useYAML {
				configPath = configCandidates()[1]
			}
			if p, _ := cmd.Flags().GetString("config"); p != "" {
				configPath = p
				useYAML = strings.HasSuffix(p, ".yaml") || strings.HasSuffix(p, ".yml")
			}

			if _, err := os.Stat(configPath); err == nil && !force {
				return fmt.Errorf("config file already exists: %s\nUse --force to overwrite", configPath)
			}
			if err := os.MkdirAll(filepath.Dir(configPath), 0o755); err != nil {
				return fmt.Errorf("could not create config directory: %w", err)
			}

			var (
				data []byte
				err  error
			)
			if useYAML {
				data, err = yaml.Marshal(DefaultConfig())
			} else {
				data, err = json.MarshalIndent(DefaultConfig(), "", "  ")
			}
			if err != nil {
				return err
			}
			if err := os.WriteFile(configPath, data, 0o644); err != nil {
				return fmt.Errorf("could not write config file: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "✓ Created config file: %s\n", configPath)
			fmt.Fprintln(out, "Edit it to set your token, output directory or default extensions.")
			return nil
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "Overwrite existing config file")
	cmd.Flags().BoolVar(&useYAML, "yaml", false, "Create YAML config instead of JSON")

	return cmd
}

func newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			explicit, _ := cmd.Flags().GetString("config")
			out := cmd.OutOrStdout()
			configPath := findConfig(explicit)
			if configPath == "" {
				fmt.Fprintln(out, "No config file found.")
				fmt.Fprintf(out, "Run 'hfpull config init' to create one at:\n  %s\n", configCandidates()[0])
				return nil
			}

			data, err := os.ReadFile(configPath)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "Config file: %s\n\n", configPath)
			fmt.Fprintln(out, string(data))
			return nil
		},
	}
}

func newConfigPathCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print the config file path",
		Run: func(cmd *cobra.Command, args []string) {
			explicit, _ := cmd.Flags().GetString("config")
			p := findConfig(explicit)
			if p == "" {
				p = configCandidates()[0]
			}
			fmt.Fprintln(cmd.OutOrStdout(), p)
		},
	}
}
