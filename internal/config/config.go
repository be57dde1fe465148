// Package config loads the publisher configuration from YAML.
//
// Every field is optional. Omitted fields keep their defaults, which the
// Get* accessors supply, so a partial file is always safe.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/banshee-data/range.report/internal/fsutil"
	"github.com/banshee-data/range.report/internal/telemetry"
)

const (
	DefaultBus                    = ""
	DefaultAddress                = 0x29
	DefaultBootAttempts           = 100
	DefaultBootInterval           = 10 * time.Millisecond
	DefaultPollInterval           = 10 * time.Millisecond
	DefaultMaxConsecutiveFailures = 50
	DefaultStreamListen           = ":5555"
	DefaultHTTPListen             = ":8080"
	DefaultMQTTTopic              = "range-report/tof"

	maxFileSize = 1 * 1024 * 1024
)

// Config is the root of the YAML file.
type Config struct {
	Sensor    SensorConfig    `yaml:"sensor"`
	Poll      PollConfig      `yaml:"poll"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	Journal   JournalConfig   `yaml:"journal"`
	HTTP      HTTPConfig      `yaml:"http"`
}

type SensorConfig struct {
	Bus          *string `yaml:"bus"`     // "1", "/dev/i2c-1"; empty picks the first bus
	Address      *int    `yaml:"address"` // 7-bit
	BootAttempts *int    `yaml:"boot_attempts"`
	BootInterval *string `yaml:"boot_interval"` // duration string like "10ms"
}

type PollConfig struct {
	Interval               *string `yaml:"interval"`
	MaxConsecutiveFailures *int    `yaml:"max_consecutive_failures"` // 0 = never give up
}

type TelemetryConfig struct {
	Topic     *string `yaml:"topic"`
	Listen    *string `yaml:"listen"`
	QueueSize *int    `yaml:"queue_size"`
}

// MQTTConfig enables the broker bridge when Broker is set.
type MQTTConfig struct {
	Broker   *string `yaml:"broker"`
	Topic    *string `yaml:"topic"`
	ClientID *string `yaml:"client_id"`
	Username *string `yaml:"username"`
	Password *string `yaml:"password"`
}

// JournalConfig enables the transition journal when Path is set.
type JournalConfig struct {
	Path *string `yaml:"path"`
}

type HTTPConfig struct {
	Listen *string `yaml:"listen"`
}

// Empty returns a config with every field unset.
func Empty() *Config { return &Config{} }

// Load reads and validates a YAML config file. Unknown keys are rejected.
func Load(path string) (*Config, error) {
	return LoadFS(fsutil.OSFileSystem{}, path)
}

// LoadFS is Load reading from fsys.
func LoadFS(fsys fsutil.FileSystem, path string) (*Config, error) {
	clean := filepath.Clean(path)
	if ext := filepath.Ext(clean); ext != ".yaml" && ext != ".yml" {
		return nil, fmt.Errorf("config file must have .yaml or .yml extension, got %q", ext)
	}

	info, err := fsys.Stat(clean)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if info.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxFileSize)
	}

	data, err := fsys.ReadFile(clean)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates YAML config data.
func Parse(data []byte) (*Config, error) {
	cfg := Empty()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse config YAML: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks the values that are set.
func (c *Config) Validate() error {
	if a := c.Sensor.Address; a != nil && (*a < 0x08 || *a > 0x77) {
		return fmt.Errorf("sensor.address must be a 7-bit device address (0x08-0x77), got %#x", *a)
	}
	if n := c.Sensor.BootAttempts; n != nil && *n <= 0 {
		return fmt.Errorf("sensor.boot_attempts must be positive, got %d", *n)
	}
	if err := checkDuration("sensor.boot_interval", c.Sensor.BootInterval, true); err != nil {
		return err
	}
	if err := checkDuration("poll.interval", c.Poll.Interval, false); err != nil {
		return err
	}
	if n := c.Poll.MaxConsecutiveFailures; n != nil && *n < 0 {
		return fmt.Errorf("poll.max_consecutive_failures must be non-negative, got %d", *n)
	}
	if t := c.Telemetry.Topic; t != nil {
		if err := telemetry.ValidateTopic(*t); err != nil {
			return fmt.Errorf("telemetry.topic: %w", err)
		}
	}
	if n := c.Telemetry.QueueSize; n != nil && *n <= 0 {
		return fmt.Errorf("telemetry.queue_size must be positive, got %d", *n)
	}
	if c.MQTT.Topic != nil && *c.MQTT.Topic == "" {
		return errors.New("mqtt.topic must not be empty")
	}
	return nil
}

func checkDuration(name string, v *string, allowZero bool) error {
	if v == nil || *v == "" {
		return nil
	}
	d, err := time.ParseDuration(*v)
	if err != nil {
		return fmt.Errorf("invalid %s '%s': %w", name, *v, err)
	}
	if d < 0 || (!allowZero && d == 0) {
		return fmt.Errorf("%s must be positive, got %s", name, d)
	}
	return nil
}

func durationOr(v *string, def time.Duration) time.Duration {
	if v == nil || *v == "" {
		return def
	}
	d, err := time.ParseDuration(*v)
	if err != nil {
		return def
	}
	return d
}

func stringOr(v *string, def string) string {
	if v == nil {
		return def
	}
	return *v
}

func intOr(v *int, def int) int {
	if v == nil {
		return def
	}
	return *v
}

// GetBus returns sensor.bus or the default (first bus found).
func (c *Config) GetBus() string { return stringOr(c.Sensor.Bus, DefaultBus) }

// GetAddress returns sensor.address or 0x29.
func (c *Config) GetAddress() uint8 { return uint8(intOr(c.Sensor.Address, DefaultAddress)) }

// GetBootAttempts returns sensor.boot_attempts or the default.
func (c *Config) GetBootAttempts() int { return intOr(c.Sensor.BootAttempts, DefaultBootAttempts) }

// GetBootInterval returns sensor.boot_interval or the default.
func (c *Config) GetBootInterval() time.Duration {
	return durationOr(c.Sensor.BootInterval, DefaultBootInterval)
}

// GetPollInterval returns poll.interval or the default.
func (c *Config) GetPollInterval() time.Duration {
	return durationOr(c.Poll.Interval, DefaultPollInterval)
}

// GetMaxConsecutiveFailures returns poll.max_consecutive_failures or the
// default.
func (c *Config) GetMaxConsecutiveFailures() int {
	return intOr(c.Poll.MaxConsecutiveFailures, DefaultMaxConsecutiveFailures)
}

// GetTopic returns telemetry.topic or "tof".
func (c *Config) GetTopic() string { return stringOr(c.Telemetry.Topic, telemetry.DefaultTopic) }

// GetStreamListen returns telemetry.listen or the default.
func (c *Config) GetStreamListen() string { return stringOr(c.Telemetry.Listen, DefaultStreamListen) }

// GetQueueSize returns telemetry.queue_size or the hub default.
func (c *Config) GetQueueSize() int { return intOr(c.Telemetry.QueueSize, telemetry.DefaultQueueSize) }

// GetMQTTBroker returns mqtt.broker; empty disables the bridge.
func (c *Config) GetMQTTBroker() string { return stringOr(c.MQTT.Broker, "") }

// GetMQTTTopic returns mqtt.topic or the default.
func (c *Config) GetMQTTTopic() string { return stringOr(c.MQTT.Topic, DefaultMQTTTopic) }

// GetMQTTClientID returns mqtt.client_id; empty picks a random id.
func (c *Config) GetMQTTClientID() string { return stringOr(c.MQTT.ClientID, "") }

// GetMQTTUsername returns mqtt.username.
func (c *Config) GetMQTTUsername() string { return stringOr(c.MQTT.Username, "") }

// GetMQTTPassword returns mqtt.password.
func (c *Config) GetMQTTPassword() string { return stringOr(c.MQTT.Password, "") }

// GetJournalPath returns journal.path; empty disables the journal.
func (c *Config) GetJournalPath() string { return stringOr(c.Journal.Path, "") }

// GetHTTPListen returns http.listen or the default.
func (c *Config) GetHTTPListen() string { return stringOr(c.HTTP.Listen, DefaultHTTPListen) }

// SetStreamListen overrides telemetry.listen.
func (c *Config) SetStreamListen(v string) { c.Telemetry.Listen = &v }

// SetHTTPListen overrides http.listen.
func (c *Config) SetHTTPListen(v string) { c.HTTP.Listen = &v }

// SetBus overrides sensor.bus.
func (c *Config) SetBus(v string) { c.Sensor.Bus = &v }
