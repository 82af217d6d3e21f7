// Package config provides application configuration management.
package config

import (
	"cmp"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"reflect"
	"slices"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/oszuidwest/zwfm-audioswitch/internal/audio"
	"github.com/oszuidwest/zwfm-audioswitch/internal/platform"
	"github.com/oszuidwest/zwfm-audioswitch/internal/switcher"
	"github.com/oszuidwest/zwfm-audioswitch/internal/util"
)

// Configuration defaults are used when values are not specified.
const (
	DefaultWebPort         = 8080
	DefaultPlatformVersion = "14"
	DefaultArchivePrefix   = "audioswitch"
)

// validate checks struct tags, reporting JSON field names.
var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return fld.Name
		}
		return name
	})
	return v
}

// SystemConfig holds system-level settings that require restart.
type SystemConfig struct {
	Port   int    `json:"port" validate:"gte=1,lte=65535"` // HTTP server port
	APIKey string `json:"api_key" validate:"max=128"`      // API key for HTTP and WebSocket access
}

// PlatformConfig describes the simulated OS audio subsystem.
type PlatformConfig struct {
	Version     string                `json:"version" validate:"required"` // OS version, mapped to a capability level
	Telephony   bool                  `json:"telephony"`                   // Telephony hardware present (earpiece)
	AudioOutput bool                  `json:"audio_output"`                // Audio output feature present
	Devices     []platform.DeviceSpec `json:"devices" validate:"dive"`     // Devices attached at startup
	Ambient     audio.AmbientState    `json:"ambient"`                     // OS audio state before any session
	DenyFocus   bool                  `json:"deny_focus"`                  // Refuse every focus request
}

// AudioConfig holds the values applied to the OS when a session starts.
type AudioConfig struct {
	Mode             audio.Mode        `json:"mode" validate:"omitempty,oneof=normal ringtone in_call in_communication"`
	FocusGain        audio.FocusGain   `json:"focus_gain" validate:"omitempty,oneof=gain gain_transient gain_transient_may_duck gain_transient_exclusive"`
	StreamType       audio.StreamType  `json:"stream_type" validate:"omitempty,oneof=voice_call system ring music alarm notification"`
	Usage            audio.Usage       `json:"usage" validate:"omitempty,oneof=media voice_communication voice_communication_signalling alarm notification"`
	ContentType      audio.ContentType `json:"content_type" validate:"omitempty,oneof=unknown speech music movie sonification"`
	PreferredDevices []string          `json:"preferred_devices"` // Route preference, most preferred first
	Strict           bool              `json:"strict"`            // Panic on precondition violations
}

// WebhookConfig holds webhook notification settings.
type WebhookConfig struct {
	URL          string   `json:"url" validate:"omitempty,url"`       // Webhook URL for route events
	TokenURL     string   `json:"token_url" validate:"omitempty,url"` // OAuth2 token endpoint (optional)
	ClientID     string   `json:"client_id"`                          // OAuth2 client ID
	ClientSecret string   `json:"client_secret"`                      // OAuth2 client secret
	Scopes       []string `json:"scopes"`                             // OAuth2 scopes
}

// LogConfig holds log file notification settings.
type LogConfig struct {
	Path string `json:"path"` // Event log file path
}

// NotificationsConfig holds all notification channel settings.
type NotificationsConfig struct {
	Webhook WebhookConfig `json:"webhook"`
	Log     LogConfig     `json:"log"`
}

// ArchiveConfig holds S3-compatible storage settings for session reports.
type ArchiveConfig struct {
	Endpoint        string `json:"endpoint" validate:"omitempty,url"`
	Bucket          string `json:"bucket"`
	AccessKeyID     string `json:"access_key_id"`
	SecretAccessKey string `json:"secret_access_key"`
	Prefix          string `json:"prefix"`
}

// Config holds all application configuration. It is safe for concurrent use.
type Config struct {
	System        SystemConfig        `json:"system"`
	Platform      PlatformConfig      `json:"platform"`
	Audio         AudioConfig         `json:"audio"`
	Notifications NotificationsConfig `json:"notifications"`
	Archive       ArchiveConfig       `json:"archive"`

	mu       sync.RWMutex
	filePath string
}

// New creates a new Config with default values.
func New(filePath string) *Config {
	def := audio.DefaultOptions()
	return &Config{
		System: SystemConfig{
			Port: DefaultWebPort,
		},
		Platform: PlatformConfig{
			Version:     DefaultPlatformVersion,
			Telephony:   true,
			AudioOutput: true,
			Devices: []platform.DeviceSpec{
				{Type: audio.TypeBuiltinEarpiece},
				{Type: audio.TypeBuiltinSpeaker},
			},
			Ambient: audio.AmbientState{Mode: audio.ModeNormal},
		},
		Audio: AudioConfig{
			Mode:        def.Mode,
			FocusGain:   def.FocusGain,
			StreamType:  def.StreamType,
			Usage:       def.Usage,
			ContentType: def.ContentType,
		},
		Archive:  ArchiveConfig{Prefix: DefaultArchivePrefix},
		filePath: filePath,
	}
}

// Load reads config from file, creating a default with a fresh API key if
// none exists.
func (c *Config) Load() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	data, err := os.ReadFile(c.filePath)
	if os.IsNotExist(err) {
		key, err := GenerateAPIKey()
		if err != nil {
			return util.WrapError("generate API key", err)
		}
		c.System.APIKey = key
		return c.saveLocked()
	}
	if err != nil {
		return fmt.Errorf("failed to read config: %w", err)
	}

	if err := json.Unmarshal(data, c); err != nil {
		return util.WrapError("parse config", err)
	}

	c.applyDefaults()

	if err := c.validate(); err != nil {
		return err
	}

	return nil
}

// validate checks all configuration fields for correctness.
func (c *Config) validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			e := verrs[0]
			return fmt.Errorf("invalid %s %q: failed %q validation", e.Namespace(), fmt.Sprint(e.Value()), e.Tag())
		}
		return util.WrapError("validate config", err)
	}
	if _, err := audio.ParseLevel(c.Platform.Version); err != nil {
		return fmt.Errorf("invalid platform version %q: %w", c.Platform.Version, err)
	}
	if _, err := switcher.PreferredKinds(c.Audio.PreferredDevices); err != nil {
		return err
	}
	for _, d := range c.Platform.Devices {
		if d.Type == "" {
			return fmt.Errorf("invalid platform device: type is required")
		}
	}
	if c.Notifications.Log.Path != "" {
		if err := util.ValidatePath("notifications.log.path", c.Notifications.Log.Path); err != nil {
			return err
		}
	}
	return nil
}

// applyDefaults sets default values for zero-value fields.
func (c *Config) applyDefaults() {
	def := audio.DefaultOptions()
	c.System.Port = cmp.Or(c.System.Port, DefaultWebPort)
	c.Platform.Version = cmp.Or(c.Platform.Version, DefaultPlatformVersion)
	c.Platform.Ambient.Mode = cmp.Or(c.Platform.Ambient.Mode, audio.ModeNormal)
	c.Audio.Mode = cmp.Or(c.Audio.Mode, def.Mode)
	c.Audio.FocusGain = cmp.Or(c.Audio.FocusGain, def.FocusGain)
	c.Audio.StreamType = cmp.Or(c.Audio.StreamType, def.StreamType)
	c.Audio.Usage = cmp.Or(c.Audio.Usage, def.Usage)
	c.Audio.ContentType = cmp.Or(c.Audio.ContentType, def.ContentType)
	c.Archive.Prefix = cmp.Or(c.Archive.Prefix, DefaultArchivePrefix)
}

// saveLocked persists configuration. Caller must hold c.mu.
func (c *Config) saveLocked() error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return util.WrapError("marshal config", err)
	}

	dir := filepath.Dir(c.filePath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return util.WrapError("create config directory", err)
	}

	if err := os.WriteFile(c.filePath, data, 0o600); err != nil {
		return util.WrapError("write config", err)
	}

	return nil
}

// SetPreferredDevices validates and stores the route preference list.
func (c *Config) SetPreferredDevices(names []string) error {
	if _, err := switcher.PreferredKinds(names); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Audio.PreferredDevices = slices.Clone(names)
	return c.saveLocked()
}

// SetWebhookURL updates the webhook URL and saves the configuration.
func (c *Config) SetWebhookURL(url string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Notifications.Webhook.URL = url
	return c.saveLocked()
}

// --- Snapshot for atomic reads ---

// Snapshot is a point-in-time copy of configuration values.
type Snapshot struct {
	// System
	WebPort int
	APIKey  string

	// Platform
	Level    audio.Level
	Platform platform.Config

	// Audio
	AudioOptions audio.Options
	Preferred    []audio.Kind

	// Notifications
	WebhookURL          string
	WebhookTokenURL     string
	WebhookClientID     string
	WebhookClientSecret string
	WebhookScopes       []string
	LogPath             string

	// Archive
	ArchiveEndpoint        string
	ArchiveBucket          string
	ArchiveAccessKeyID     string
	ArchiveSecretAccessKey string
	ArchivePrefix          string
}

// Snapshot returns a point-in-time copy of all configuration values.
// Values are validated by Load, so parse errors fall back to defaults.
func (c *Config) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	level, err := audio.ParseLevel(c.Platform.Version)
	if err != nil {
		level, _ = audio.ParseLevel(DefaultPlatformVersion)
	}
	preferred, err := switcher.PreferredKinds(c.Audio.PreferredDevices)
	if err != nil {
		preferred = slices.Clone(audio.DefaultPriority)
	}

	return Snapshot{
		// System
		WebPort: c.System.Port,
		APIKey:  c.System.APIKey,

		// Platform
		Level: level,
		Platform: platform.Config{
			Level:       level,
			Telephony:   c.Platform.Telephony,
			AudioOutput: c.Platform.AudioOutput,
			Devices:     slices.Clone(c.Platform.Devices),
			Ambient:     c.Platform.Ambient,
			DenyFocus:   c.Platform.DenyFocus,
		},

		// Audio
		AudioOptions: audio.Options{
			Mode:        c.Audio.Mode,
			FocusGain:   c.Audio.FocusGain,
			StreamType:  c.Audio.StreamType,
			Usage:       c.Audio.Usage,
			ContentType: c.Audio.ContentType,
			Strict:      c.Audio.Strict,
		},
		Preferred: preferred,

		// Notifications
		WebhookURL:          c.Notifications.Webhook.URL,
		WebhookTokenURL:     c.Notifications.Webhook.TokenURL,
		WebhookClientID:     c.Notifications.Webhook.ClientID,
		WebhookClientSecret: c.Notifications.Webhook.ClientSecret,
		WebhookScopes:       slices.Clone(c.Notifications.Webhook.Scopes),
		LogPath:             c.Notifications.Log.Path,

		// Archive
		ArchiveEndpoint:        c.Archive.Endpoint,
		ArchiveBucket:          c.Archive.Bucket,
		ArchiveAccessKeyID:     c.Archive.AccessKeyID,
		ArchiveSecretAccessKey: c.Archive.SecretAccessKey,
		ArchivePrefix:          c.Archive.Prefix,
	}
}

// HasWebhook reports whether a webhook URL is configured.
func (s *Snapshot) HasWebhook() bool {
	return s.WebhookURL != ""
}

// HasWebhookAuth reports whether OAuth2 client credentials are configured
// for the webhook.
func (s *Snapshot) HasWebhookAuth() bool {
	return util.IsConfigured(s.WebhookTokenURL, s.WebhookClientID, s.WebhookClientSecret)
}

// HasLogPath reports whether a log path is configured.
func (s *Snapshot) HasLogPath() bool {
	return s.LogPath != ""
}

// HasArchive reports whether session report archiving is configured.
func (s *Snapshot) HasArchive() bool {
	return util.IsConfigured(s.ArchiveBucket, s.ArchiveAccessKeyID, s.ArchiveSecretAccessKey)
}

// --- Utility functions ---

// GenerateAPIKey generates a new random 32-character alphanumeric API key.
func GenerateAPIKey() (string, error) {
	const chars = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	const length = 32
	result := make([]byte, length)
	for i := range result {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(chars))))
		if err != nil {
			return "", err
		}
		result[i] = chars[n.Int64()]
	}
	return string(result), nil
}
