package config

import (
	"errors"
	"fmt"
	"sort"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePipeline(); err != nil {
		return err
	}
	if err := c.validateAudio(); err != nil {
		return err
	}
	if err := c.validateNotifications(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validatePipeline() error {
	if err := ensurePositiveMap(map[string]int{
		"pipeline.workers":              c.Pipeline.Workers,
		"pipeline.queue_poll_interval":  c.Pipeline.QueuePollInterval,
		"pipeline.error_retry_interval": c.Pipeline.ErrorRetryInterval,
		"pipeline.reap_interval":        c.Pipeline.ReapInterval,
		"pipeline.max_run_minutes":      c.Pipeline.MaxRunMinutes,
	}); err != nil {
		return err
	}
	if c.Pipeline.StageRetries < 0 {
		return errors.New("pipeline.stage_retries must not be negative")
	}
	switch c.Pipeline.ResourceProfile {
	case "cpu", "gpu":
	default:
		return fmt.Errorf("pipeline.resource_profile must be \"cpu\" or \"gpu\", got %q", c.Pipeline.ResourceProfile)
	}
	for profile, limits := range c.Pipeline.StageTimeouts {
		if profile != "cpu" && profile != "gpu" {
			return fmt.Errorf("pipeline.stage_timeouts: unknown profile %q", profile)
		}
		for stage, secs := range limits {
			if secs <= 0 {
				return fmt.Errorf("pipeline.stage_timeouts.%s.%s must be positive", profile, stage)
			}
		}
	}
	return nil
}

func (c *Config) validateAudio() error {
	if c.Audio.SampleRate <= 0 {
		return errors.New("audio.sample_rate must be positive")
	}
	if c.Audio.Channels <= 0 {
		return errors.New("audio.channels must be positive")
	}
	if c.Audio.Codec == "" {
		return errors.New("audio.codec must be set")
	}
	return nil
}

func (c *Config) validateNotifications() error {
	if c.Notifications.RequestTimeout <= 0 {
		return errors.New("notifications.request_timeout must be positive")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "", "console", "json":
	default:
		return fmt.Errorf("logging.format must be \"console\" or \"json\", got %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be one of debug, info, warn, error; got %q", c.Logging.Level)
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		if values[key] <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
