package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete acquisition session configuration
type Config struct {
	Subject          SubjectConfig  `yaml:"subject"`
	Sitting          int            `yaml:"sitting"`  // 0 = next unused for this subject
	Position         int            `yaml:"position"` // arm position index, 1-based
	DatasetDir       string         `yaml:"dataset_dir"`
	ShutdownTimeoutS int            `yaml:"shutdown_timeout_s"` // graceful shutdown timeout in seconds (default: 5)
	Gestures         []string       `yaml:"gestures"`
	Schedule         ScheduleConfig `yaml:"schedule"`
	EMG              EMGConfig      `yaml:"emg"`
	Tracker          TrackerConfig  `yaml:"tracker"`
	MQTT             MQTTConfig     `yaml:"mqtt"`
	Prompt           PromptConfig   `yaml:"prompt"`
}

// SubjectConfig identifies the subject being recorded
type SubjectConfig struct {
	ID     string `yaml:"id"`
	Age    int    `yaml:"age"`
	Gender string `yaml:"gender"` // f, m, other
}

// ScheduleConfig defines the trial schedule
type ScheduleConfig struct {
	NumRepetition    int     `yaml:"num_repetition"`
	GestureDurationS float64 `yaml:"gesture_duration_s"`
	RestDurationS    float64 `yaml:"rest_duration_s"`
	Randomize        bool    `yaml:"randomize"`
	Seed             int64   `yaml:"seed"` // 0 = derive from wall clock
}

// EMGConfig contains sEMG bridge settings
type EMGConfig struct {
	Addr         string  `yaml:"addr"` // host:port of the acquisition bridge
	DialTimeoutS float64 `yaml:"dial_timeout_s"`
}

// TrackerConfig contains hand tracker settings
type TrackerConfig struct {
	URL string `yaml:"url"` // websocket endpoint of the tracking service
}

// MQTTConfig contains optional live telemetry settings. An empty broker
// disables telemetry.
type MQTTConfig struct {
	Broker      string `yaml:"broker"`
	TopicPrefix string `yaml:"topic_prefix"`
}

// PromptConfig selects the operator/subject prompt surface
type PromptConfig struct {
	Mode string `yaml:"mode"` // tui, headless
}

// GestureDuration returns the hold duration.
func (c *Config) GestureDuration() time.Duration {
	return time.Duration(c.Schedule.GestureDurationS * float64(time.Second))
}

// RestDuration returns the inter-trial rest duration.
func (c *Config) RestDuration() time.Duration {
	return time.Duration(c.Schedule.RestDurationS * float64(time.Second))
}

// EMGDialTimeout returns the bridge dial timeout.
func (c *Config) EMGDialTimeout() time.Duration {
	return time.Duration(c.EMG.DialTimeoutS * float64(time.Second))
}

// ShutdownTimeout returns the graceful shutdown timeout.
func (c *Config) ShutdownTimeout() time.Duration {
	return time.Duration(c.ShutdownTimeoutS) * time.Second
}

// Load reads and parses a YAML configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}
