package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"medialink/internal/config"
	"medialink/internal/output"
)

func newConfigCommand(ctx *commandContext) *cobra.Command {
	configCmd := &cobra.Command{
		Use:         "config",
		Short:       "Configuration utilities",
		Annotations: map[string]string{"skipConfigLoad": "true"},
	}
	configCmd.AddCommand(newConfigInitCommand(ctx))
	configCmd.AddCommand(newConfigCheckCommand(ctx))
	return configCmd
}

func newConfigInitCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create a sample configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			target := ctx.configArg()
			if target == "" {
				target = config.DefaultPath
			}
			resolved, err := config.ExpandPath(target)
			if err != nil {
				return fmt.Errorf("resolve config path: %w", err)
			}
			if err := config.CreateSample(resolved); err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Wrote sample configuration to %s\n", resolved)
			fmt.Fprintln(out, "Set the paths and API keys (or export MIXED_PATH, TMDB_API_KEY, LLM_API_KEY) before running medialink.")
			return nil
		},
	}
}

func newConfigCheckCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Report every problem with the configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, path, err := parseForCheck(ctx.configArg())
			if err != nil {
				return err
			}
			out := ctx.output(cmd)
			out.Info("Config path: %s", path)

			result := config.Check(cfg)
			issues := append(append([]config.ValidationIssue(nil), result.Errors...), result.Warnings...)
			if len(issues) > 0 {
				rows := make([][]string, 0, len(issues))
				for _, issue := range issues {
					rows = append(rows, []string{strings.ToUpper(string(issue.Severity)), issue.Field, issue.Message})
				}
				out.Info("%s", output.Table([]string{"Severity", "Field", "Message"}, rows, nil))
			}
			if !result.Valid {
				return fmt.Errorf("configuration has %d error(s)", len(result.Errors))
			}
			out.Info("Configuration valid")
			return nil
		},
	}
}

// parseForCheck decodes the configuration without rejecting it, so every
// issue can be listed at once. A missing default file checks the defaults.
func parseForCheck(arg string) (*config.Config, string, error) {
	target := arg
	if target == "" {
		target = config.DefaultPath
	}
	path, err := config.ExpandPath(target)
	if err != nil {
		return nil, "", fmt.Errorf("resolve config path: %w", err)
	}
	data, err := os.ReadFile(path)
	if err != nil && (arg != "" || !errors.Is(err, fs.ErrNotExist)) {
		return nil, path, fmt.Errorf("read config: %w", err)
	}
	cfg, err := config.Parse(data)
	if err != nil {
		return nil, path, err
	}
	return cfg, path, nil
}
