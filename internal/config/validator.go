package config

import (
	"fmt"
	"regexp"
	"strings"
)

var instanceIDPattern = regexp.MustCompile(`^[a-z0-9\-]+$`)

// Validate checks the configuration and fills defaults.
func Validate(cfg *Config) error {
	if cfg.InstanceID == "" {
		cfg.InstanceID = "shvideo"
	}
	if !instanceIDPattern.MatchString(cfg.InstanceID) {
		return fmt.Errorf("instance_id must match pattern [a-z0-9-]+")
	}
	if cfg.ShutdownTimeoutS <= 0 {
		cfg.ShutdownTimeoutS = 5
	}

	switch strings.ToLower(cfg.LogLevel) {
	case "":
		cfg.LogLevel = "info"
	case "debug", "info", "warn", "error":
		cfg.LogLevel = strings.ToLower(cfg.LogLevel)
	default:
		return fmt.Errorf("log_level %q must be one of debug, info, warn, error", cfg.LogLevel)
	}

	if cfg.Decode.BufferSizeKB < 0 {
		return fmt.Errorf("decode.buffer_size_kb must be >= 0")
	}
	switch cfg.Decode.Display {
	case "":
		cfg.Decode.Display = "null"
	case "null", "gst":
	default:
		return fmt.Errorf("decode.display %q must be null or gst", cfg.Decode.Display)
	}
	if cfg.Decode.FrameBytes <= 0 {
		cfg.Decode.FrameBytes = 4096
	}

	if cfg.Notify.MQTT.Enabled {
		if cfg.Notify.MQTT.Broker == "" {
			return fmt.Errorf("notify.mqtt.broker is required when mqtt is enabled")
		}
		if cfg.Notify.MQTT.QoS > 2 {
			return fmt.Errorf("notify.mqtt.qos must be 0, 1 or 2")
		}
	}
	if cfg.Notify.MQTT.TopicPrefix == "" {
		cfg.Notify.MQTT.TopicPrefix = fmt.Sprintf("shvideo/%s", cfg.InstanceID)
	}
	switch cfg.Notify.MQTT.Encoding {
	case "":
		cfg.Notify.MQTT.Encoding = "msgpack"
	case "json", "msgpack":
	default:
		return fmt.Errorf("notify.mqtt.encoding %q must be json or msgpack", cfg.Notify.MQTT.Encoding)
	}

	return nil
}
