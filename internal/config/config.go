// Package config loads the YAML runtime configuration of the shvideo tool
// and the encoder control file.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config represents the complete runtime configuration.
type Config struct {
	InstanceID       string        `yaml:"instance_id"`
	ShutdownTimeoutS int           `yaml:"shutdown_timeout_s"` // graceful shutdown timeout in seconds (default: 5)
	LogLevel         string        `yaml:"log_level"`          // debug, info, warn, error
	Decode           DecodeConfig  `yaml:"decode"`
	Encode           EncodeConfig  `yaml:"encode"`
	Notify           NotifyConfig  `yaml:"notify"`
	Metrics          MetricsConfig `yaml:"metrics"`
}

// DecodeConfig contains decode sink settings.
type DecodeConfig struct {
	BufferSizeKB int    `yaml:"buffer_size_kb"` // pre-buffering watermark, 0 disables
	Display      string `yaml:"display"`        // null, gst
	StartPaused  bool   `yaml:"start_paused"`   // stay in pre-roll until resumed
	// Simulated decoder
	FrameBytes int  `yaml:"frame_bytes"`
	HoldLast   bool `yaml:"hold_last"`
}

// EncodeConfig contains encoder element settings.
type EncodeConfig struct {
	ControlFile string `yaml:"control_file"`
	Pull        bool   `yaml:"pull"` // read planes straight from the input file
}

// NotifyConfig selects where session notifications go.
type NotifyConfig struct {
	Log  bool       `yaml:"log"`
	MQTT MQTTConfig `yaml:"mqtt"`
}

// MQTTConfig contains MQTT broker settings.
type MQTTConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Broker      string `yaml:"broker"`
	TopicPrefix string `yaml:"topic_prefix"`
	QoS         byte   `yaml:"qos"`
	Encoding    string `yaml:"encoding"` // json, msgpack
}

// MetricsConfig contains the Prometheus endpoint settings.
type MetricsConfig struct {
	Listen string `yaml:"listen"` // empty disables the endpoint
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	cfg := &Config{
		InstanceID: "shvideo",
		Notify:     NotifyConfig{Log: true},
	}
	_ = Validate(cfg)
	return cfg
}

// Load reads and parses a YAML configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse parses and validates YAML configuration.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("config: invalid: %w", err)
	}
	return &cfg, nil
}
