package main

import (
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"github.com/knakamura13/twitch-open-cv/internal/config"
	"github.com/knakamura13/twitch-open-cv/internal/logging"
	"github.com/knakamura13/twitch-open-cv/internal/resolver"
)

type commandContext struct {
	configFlag *string

	configOnce sync.Once
	config     *config.Config
	configErr  error

	// lister overrides streamlink; tests set it.
	lister resolver.Lister
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, _, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if _, err := logging.Setup(cfg.Logging.Format, cfg.Logging.Level); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

func (c *commandContext) setupDefaultLogging() error {
	def := config.Default()
	_, err := logging.Setup(def.Logging.Format, def.Logging.Level)
	return err
}

func (c *commandContext) streamLister() resolver.Lister {
	if c.lister != nil {
		return c.lister
	}
	return resolver.NewStreamlink()
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
