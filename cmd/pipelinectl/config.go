package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/genbatch/pipeline/internal/config"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "config", Short: "Inspect and edit the coordinator's local config file"}
	cmd.AddCommand(newConfigShowCmd(), newConfigGetCmd(), newConfigSetCmd(), newConfigInitCmd(), newConfigPathCmd())
	return cmd
}

func newConfigPathCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print the config file path Load reads from",
		RunE: func(cmd *cobra.Command, args []string) error {
			abs, err := filepath.Abs(config.ResolvePath())
			if err != nil {
				return err
			}
			fmt.Println(abs)
			return nil
		},
	}
}

func newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the effective config (file + environment overrides)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			return printObject(cfg)
		},
	}
}

func newConfigGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <dotted.key>",
		Short: "Read one field from the effective config, e.g. rate_limit.default_rpm",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			val, err := lookupDotted(cfg, args[0])
			if err != nil {
				return usageErrorf("%s", err)
			}
			fmt.Println(val)
			return nil
		},
	}
}

func newConfigSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set <dotted.key> <value>",
		Short: "Write one field into the config file on disk",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.ResolvePath()
			raw, err := os.ReadFile(path)
			doc := map[string]any{}
			if err == nil {
				if uerr := yaml.Unmarshal(raw, &doc); uerr != nil {
					return fmt.Errorf("parse existing config file: %w", uerr)
				}
			} else if !os.IsNotExist(err) {
				return err
			}
			if err := setDotted(doc, args[0], args[1]); err != nil {
				return usageErrorf("%s", err)
			}
			out, err := yaml.Marshal(doc)
			if err != nil {
				return err
			}
			if dir := filepath.Dir(path); dir != "." {
				if err := os.MkdirAll(dir, 0o755); err != nil {
					return err
				}
			}
			return os.WriteFile(path, out, 0o644)
		},
	}
}

func newConfigInitCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a fresh config file populated with defaults",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.ResolvePath()
			if _, err := os.Stat(path); err == nil && !force {
				return usageErrorf("%s already exists; pass --force to overwrite", path)
			}
			out, err := yaml.Marshal(config.New())
			if err != nil {
				return err
			}
			if dir := filepath.Dir(path); dir != "." {
				if err := os.MkdirAll(dir, 0o755); err != nil {
					return err
				}
			}
			return os.WriteFile(path, out, 0o644)
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing config file")
	return cmd
}

// lookupDotted walks cfg (marshalled to a generic map so dotted paths work
// over any nested struct) along a dot-separated key path.
func lookupDotted(cfg any, dotted string) (any, error) {
	raw, err := yaml.Marshal(cfg)
	if err != nil {
		return nil, err
	}
	var doc map[string]any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	var cur any = doc
	for _, part := range strings.Split(dotted, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%q is not a nested field", dotted)
		}
		v, ok := m[part]
		if !ok {
			return nil, fmt.Errorf("unknown config key %q", dotted)
		}
		cur = v
	}
	return cur, nil
}

// setDotted writes value into doc along a dot-separated key path, creating
// intermediate maps as needed.
func setDotted(doc map[string]any, dotted, value string) error {
	parts := strings.Split(dotted, ".")
	cur := doc
	for _, part := range parts[:len(parts)-1] {
		next, ok := cur[part]
		if !ok {
			m := map[string]any{}
			cur[part] = m
			cur = m
			continue
		}
		m, ok := next.(map[string]any)
		if !ok {
			return fmt.Errorf("%q is not a nested field", dotted)
		}
		cur = m
	}
	cur[parts[len(parts)-1]] = value
	return nil
}
