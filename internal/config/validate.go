package config

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

var validPrivacy = map[string]struct{}{
	"private":  {},
	"unlisted": {},
	"public":   {},
}

// Validate ensures the configuration is usable. It also compiles room conditions,
// so it must run before any room rule is evaluated.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateProcessing(); err != nil {
		return err
	}
	if err := c.validateUpload(); err != nil {
		return err
	}
	if err := c.validateNotifications(); err != nil {
		return err
	}
	if err := c.compileRooms(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validatePaths() error {
	if strings.TrimSpace(c.Paths.RecorderDir) == "" {
		return errors.New("paths.recorder_dir must be set")
	}
	if strings.TrimSpace(c.Paths.WorkDir) == "" {
		return errors.New("paths.work_dir must be set")
	}
	if strings.TrimSpace(c.Paths.StateDir) == "" {
		return errors.New("paths.state_dir must be set")
	}
	return nil
}

func (c *Config) validateProcessing() error {
	if c.Processing.Workers < 1 {
		return errors.New("processing.workers must be at least 1")
	}
	if c.Processing.ToolTimeoutSeconds <= 0 {
		return errors.New("processing.tool_timeout_seconds must be positive")
	}
	if c.Processing.VideoExtension == c.Processing.ChatLogExtension {
		return errors.New("processing.video_extension and processing.chatlog_extension must differ")
	}
	return nil
}

func (c *Config) validateUpload() error {
	if c.Upload.Workers < 1 {
		return errors.New("upload.workers must be at least 1")
	}
	if _, _, err := parseClock(c.Upload.Schedule); err != nil {
		return fmt.Errorf("upload.schedule: %w", err)
	}
	if _, ok := validPrivacy[c.Upload.Privacy]; !ok {
		return fmt.Errorf("upload.privacy must be private, unlisted or public, got %q", c.Upload.Privacy)
	}
	if !c.Upload.Enabled {
		return nil
	}
	if c.Upload.ClientID == "" || c.Upload.ClientSecret == "" {
		return errors.New("upload.client_id and upload.client_secret must be set when upload.enabled is true (or set YOUTUBE_CLIENT_ID / YOUTUBE_CLIENT_SECRET)")
	}
	if strings.TrimSpace(c.Upload.CredentialFile) == "" {
		return errors.New("upload.credential_file must be set when upload.enabled is true")
	}
	return nil
}

func (c *Config) validateNotifications() error {
	for i, hook := range c.Notifications.Webhooks {
		parsed, err := url.Parse(hook)
		if err != nil {
			return fmt.Errorf("notifications.webhooks[%d]: %w", i, err)
		}
		if (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
			return fmt.Errorf("notifications.webhooks[%d] must be an absolute http(s) URL, got %q", i, hook)
		}
	}
	return nil
}

func parseClock(value string) (int, int, error) {
	parts := strings.Split(strings.TrimSpace(value), ":")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("expected HH:MM, got %q", value)
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, fmt.Errorf("invalid hour in %q", value)
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("invalid minute in %q", value)
	}
	return hour, minute, nil
}
