package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	if err := c.normalizeScoring(); err != nil {
		return err
	}
	c.normalizePipeline()
	c.normalizeLLM()
	c.normalizeNotifications()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if c.Paths.StagingDir, err = expandPath(c.Paths.StagingDir); err != nil {
		return fmt.Errorf("paths.staging_dir: %w", err)
	}
	if c.Paths.MediaDir, err = expandPath(c.Paths.MediaDir); err != nil {
		return fmt.Errorf("paths.media_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	if c.Paths.APIBind == "" {
		c.Paths.APIBind = defaultAPIBind
	}
	c.Paths.APIToken = strings.TrimSpace(c.Paths.APIToken)
	return nil
}

func (c *Config) normalizeScoring() error {
	var err error
	if strings.TrimSpace(c.Scoring.TemplateDir) == "" {
		c.Scoring.TemplateDir = defaultTemplateDir
	}
	if c.Scoring.TemplateDir, err = expandPath(c.Scoring.TemplateDir); err != nil {
		return fmt.Errorf("scoring.template_dir: %w", err)
	}
	if strings.TrimSpace(c.Scoring.DefaultTemplate) == "" {
		c.Scoring.DefaultTemplate = defaultTemplate
	}
	return nil
}

func (c *Config) normalizePipeline() {
	c.Pipeline.ResourceProfile = strings.ToLower(strings.TrimSpace(c.Pipeline.ResourceProfile))
	if c.Pipeline.ResourceProfile == "" {
		c.Pipeline.ResourceProfile = defaultResourceProfile
	}
	if c.Pipeline.Workers <= 0 {
		c.Pipeline.Workers = defaultWorkers
	}
	if c.Pipeline.StageRetries < 0 {
		c.Pipeline.StageRetries = defaultStageRetries
	}
}

func (c *Config) normalizeLLM() {
	if c.LLM.APIKey == "" {
		if value, ok := os.LookupEnv("CALLAUDIT_LLM_API_KEY"); ok {
			c.LLM.APIKey = value
		}
	}
	c.LLM.BaseURL = strings.TrimSpace(c.LLM.BaseURL)
	c.LLM.Model = strings.TrimSpace(c.LLM.Model)
	if c.LLM.TimeoutSeconds <= 0 {
		c.LLM.TimeoutSeconds = defaultLLMTimeout
	}
}

func (c *Config) normalizeNotifications() {
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	if c.Notifications.RequestTimeout <= 0 {
		c.Notifications.RequestTimeout = defaultNtfyTimeout
	}
	if c.Notifications.RatePerSecond <= 0 {
		c.Notifications.RatePerSecond = defaultNotifyRate
	}
	if c.Notifications.Burst <= 0 {
		c.Notifications.Burst = defaultNotifyBurst
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
