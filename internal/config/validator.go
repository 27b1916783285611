package config

import (
	"fmt"
	"regexp"
)

var subjectIDPattern = regexp.MustCompile(`^[a-z0-9\-_]+$`)

// Validate checks if the configuration is valid and fills in defaults.
func Validate(cfg *Config) error {
	// Validate subject
	if cfg.Subject.ID == "" {
		return fmt.Errorf("subject.id is required")
	}
	if !subjectIDPattern.MatchString(cfg.Subject.ID) {
		return fmt.Errorf("subject.id must match pattern [a-z0-9-_]+")
	}
	if cfg.Subject.Age < 0 {
		return fmt.Errorf("subject.age must be >= 0")
	}
	switch cfg.Subject.Gender {
	case "", "f", "m", "other":
	default:
		return fmt.Errorf("subject.gender must be one of f, m, other")
	}

	if cfg.Sitting < 0 {
		return fmt.Errorf("sitting must be >= 0")
	}
	if cfg.Position <= 0 {
		return fmt.Errorf("position must be >= 1")
	}

	if cfg.DatasetDir == "" {
		cfg.DatasetDir = "dataset" // default, relative to working dir
	}
	if cfg.ShutdownTimeoutS <= 0 {
		cfg.ShutdownTimeoutS = 5
	}

	// Validate gestures
	if len(cfg.Gestures) == 0 {
		return fmt.Errorf("at least one gesture is required")
	}
	seen := make(map[string]bool, len(cfg.Gestures))
	for _, g := range cfg.Gestures {
		if g == "" {
			return fmt.Errorf("gesture names must be non-empty")
		}
		if seen[g] {
			return fmt.Errorf("duplicate gesture %q", g)
		}
		seen[g] = true
	}

	// Validate schedule
	if cfg.Schedule.NumRepetition <= 0 {
		return fmt.Errorf("schedule.num_repetition must be > 0")
	}
	if cfg.Schedule.GestureDurationS <= 0 {
		return fmt.Errorf("schedule.gesture_duration_s must be > 0")
	}
	if cfg.Schedule.RestDurationS <= 0 {
		return fmt.Errorf("schedule.rest_duration_s must be > 0")
	}

	// Validate adapters
	if cfg.EMG.Addr == "" {
		cfg.EMG.Addr = "127.0.0.1:20001"
	}
	if cfg.EMG.DialTimeoutS <= 0 {
		cfg.EMG.DialTimeoutS = 10
	}
	if cfg.Tracker.URL == "" {
		cfg.Tracker.URL = "ws://127.0.0.1:6437/v6.json"
	}

	// MQTT is optional; defaults apply only when a broker is configured
	if cfg.MQTT.Broker != "" && cfg.MQTT.TopicPrefix == "" {
		cfg.MQTT.TopicPrefix = fmt.Sprintf("fpe/acquisition/%s", cfg.Subject.ID)
	}

	switch cfg.Prompt.Mode {
	case "":
		cfg.Prompt.Mode = "tui"
	case "tui", "headless":
	default:
		return fmt.Errorf("prompt.mode must be 'tui' or 'headless'")
	}

	return nil
}
