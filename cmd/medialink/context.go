package main

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"medialink/internal/config"
	"medialink/internal/logging"
	"medialink/internal/output"
)

const defaultConfigHint = config.DefaultPath

type commandContext struct {
	configFlag *string
	verbose    *bool

	configOnce sync.Once
	config     *config.Config
	configPath string
	configErr  error
}

func newCommandContext(configFlag *string, verbose *bool) *commandContext {
	return &commandContext{configFlag: configFlag, verbose: verbose}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		cfg, path, err := config.Load(c.configArg())
		if err != nil {
			c.configErr = fmt.Errorf("load config: %w", err)
			return
		}
		c.config = cfg
		c.configPath = path
	})
	return c.config, c.configErr
}

func (c *commandContext) configArg() string {
	if c.configFlag == nil {
		return ""
	}
	return strings.TrimSpace(*c.configFlag)
}

func (c *commandContext) isVerbose() bool {
	return c.verbose != nil && *c.verbose
}

// logger builds the process logger. --verbose raises the level to debug.
func (c *commandContext) logger(cfg *config.Config, w io.Writer) (*slog.Logger, error) {
	level := cfg.Logging.Level
	if c.isVerbose() {
		level = "debug"
	}
	return logging.New(logging.Options{
		Level:      level,
		Format:     cfg.Logging.Format,
		File:       cfg.Logging.File,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
		Writer:     w,
	})
}

func (c *commandContext) output(cmd *cobra.Command) *output.Output {
	conf := output.DefaultConfig(c.isVerbose())
	conf.Writer = cmd.OutOrStdout()
	conf.ErrWriter = cmd.ErrOrStderr()
	return output.New(conf)
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}
