// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package config

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/relabs-tech/delivery_analyzer/internal/analysis"
	"github.com/relabs-tech/delivery_analyzer/internal/recording"
)

// Config holds all application configuration values.
type Config struct {
	// MQTT
	MQTTBroker           string
	MQTTClientIDRecorder string
	MQTTClientIDProducer string
	MQTTClientIDConsole  string
	MQTTClientIDWeb      string
	MQTTClientIDDisplay  string

	// Topics
	TopicSamples string // imu.Reading JSON from producers
	TopicControl string // app.ControlMessage JSON
	TopicThrows  string // app.ThrowMessage JSON
	TopicSummary string // app.SummaryMessage JSON (retained)
	TopicEvents  string // recording.Event JSON

	// IMU Hardware
	IMUSPIDevice string
	IMUCSPin     string
	// Accelerometer: 0=±2g, 1=±4g, 2=±8g, 3=±16g
	IMUAccelRange byte
	// Gyroscope: 0=±250°/s, 1=±500°/s, 2=±1000°/s, 3=±2000°/s
	IMUGyroRange byte
	// Samples averaged at rest and subtracted from every reading
	IMUBaselineSamples int

	// Serial IMU feed
	SerialPort     string
	SerialBaudRate int

	// Timing
	IMUSampleInterval     int     // milliseconds
	MockThrowInterval     float64 // seconds between synthetic deliveries
	DisplayUpdateInterval int     // milliseconds

	// Storage
	DBPath      string
	SessionName string

	// Web Server
	WebServerPort int

	// Display
	DisplayI2CBus  string
	DisplayI2CAddr uint16

	// Pipeline tuning
	Analysis analysis.Params
	AutoStop recording.Params
}

// Package-level state for the singleton: InitGlobal sets it once, Get reads
// it under the read lock.
var (
	globalConfig *Config
	configOnce   sync.Once
	configMu     sync.RWMutex
)

// Default returns a configuration with every optional key at its stock value.
func Default() *Config {
	return &Config{
		MQTTBroker:           "tcp://localhost:1883",
		MQTTClientIDRecorder: "delivery-recorder",
		MQTTClientIDProducer: "delivery-producer",
		MQTTClientIDConsole:  "delivery-console",
		MQTTClientIDWeb:      "delivery-web",
		MQTTClientIDDisplay:  "delivery-display",

		TopicSamples: "delivery/imu",
		TopicControl: "delivery/control",
		TopicThrows:  "delivery/throws",
		TopicSummary: "delivery/summary",
		TopicEvents:  "delivery/events",

		IMUSPIDevice:       "/dev/spidev0.0",
		IMUCSPin:           "",
		IMUAccelRange:      2,
		IMUGyroRange:       1,
		IMUBaselineSamples: 100,

		SerialPort:     "/dev/ttyUSB0",
		SerialBaudRate: 115200,

		IMUSampleInterval:     20,
		MockThrowInterval:     5,
		DisplayUpdateInterval: 500,

		DBPath:      "delivery.db",
		SessionName: "practice",

		WebServerPort: 8080,

		DisplayI2CBus:  "",
		DisplayI2CAddr: 0x3C,

		Analysis: analysis.DefaultParams(),
		AutoStop: recording.DefaultParams(),
	}
}

// Load reads the configuration file and returns a Config struct.
func Load(configPath string) (*Config, error) {
	file, err := os.Open(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer file.Close()
	return Parse(file)
}

// Parse reads KEY=VALUE lines on top of Default(). Blank lines and lines
// starting with # are skipped.
func Parse(r io.Reader) (*Config, error) {
	cfg := Default()
	scanner := bufio.NewScanner(r)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid config line %d: %q", lineNum, line)
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		if err := cfg.setValue(key, value); err != nil {
			return nil, fmt.Errorf("config line %d: %w", lineNum, err)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// setValue sets a config value based on the key.
func (c *Config) setValue(key, value string) error {
	var err error
	switch key {
	// MQTT
	case "MQTT_BROKER":
		c.MQTTBroker = value
	case "MQTT_CLIENT_ID_RECORDER":
		c.MQTTClientIDRecorder = value
	case "MQTT_CLIENT_ID_PRODUCER":
		c.MQTTClientIDProducer = value
	case "MQTT_CLIENT_ID_CONSOLE":
		c.MQTTClientIDConsole = value
	case "MQTT_CLIENT_ID_WEB":
		c.MQTTClientIDWeb = value
	case "MQTT_CLIENT_ID_DISPLAY":
		c.MQTTClientIDDisplay = value

	// Topics
	case "TOPIC_SAMPLES":
		c.TopicSamples = value
	case "TOPIC_CONTROL":
		c.TopicControl = value
	case "TOPIC_THROWS":
		c.TopicThrows = value
	case "TOPIC_SUMMARY":
		c.TopicSummary = value
	case "TOPIC_EVENTS":
		c.TopicEvents = value

	// IMU Hardware
	case "IMU_SPI_DEVICE":
		c.IMUSPIDevice = value
	case "IMU_CS_PIN":
		c.IMUCSPin = value
	case "IMU_ACCEL_RANGE":
		var v int
		if v, err = intInRange(key, value, 0, 3); err == nil {
			c.IMUAccelRange = byte(v)
		}
	case "IMU_GYRO_RANGE":
		var v int
		if v, err = intInRange(key, value, 0, 3); err == nil {
			c.IMUGyroRange = byte(v)
		}
	case "IMU_BASELINE_SAMPLES":
		c.IMUBaselineSamples, err = intInRange(key, value, 0, 10000)

	// Serial feed
	case "SERIAL_PORT":
		c.SerialPort = value
	case "SERIAL_BAUD_RATE":
		c.SerialBaudRate, err = intInRange(key, value, 1, 4000000)

	// Timing
	case "IMU_SAMPLE_INTERVAL":
		c.IMUSampleInterval, err = intInRange(key, value, 1, 60000)
	case "MOCK_THROW_INTERVAL":
		c.MockThrowInterval, err = nonNegativeFloat(key, value)
	case "DISPLAY_UPDATE_INTERVAL":
		c.DisplayUpdateInterval, err = intInRange(key, value, 1, 3600000)

	// Storage
	case "DB_PATH":
		c.DBPath = value
	case "SESSION_NAME":
		c.SessionName = value

	// Web Server
	case "WEB_SERVER_PORT":
		c.WebServerPort, err = intInRange(key, value, 1, 65535)

	// Display
	case "DISPLAY_I2C_BUS":
		c.DisplayI2CBus = value
	case "DISPLAY_I2C_ADDR":
		addr, perr := strconv.ParseUint(value, 0, 16)
		if perr != nil {
			return fmt.Errorf("invalid DISPLAY_I2C_ADDR %q: %w", value, perr)
		}
		c.DisplayI2CAddr = uint16(addr)

	// Trimming
	case "TRIM_START_THRESHOLD":
		c.Analysis.StartThreshold, err = nonNegativeFloat(key, value)
	case "TRIM_PRE_ROLL":
		c.Analysis.PreRoll, err = intInRange(key, value, 0, 100000)
	case "TRIM_END_SEARCH_OFFSET":
		c.Analysis.EndSearchOffset, err = intInRange(key, value, 0, 100000)
	case "TRIM_CALM_THRESHOLD":
		c.Analysis.CalmThreshold, err = nonNegativeFloat(key, value)
	case "TRIM_CALM_RUN":
		c.Analysis.CalmRun, err = intInRange(key, value, 1, 100000)
	case "TRIM_SETTLE_MARGIN":
		c.Analysis.SettleMargin, err = intInRange(key, value, 0, 100000)

	// Stability and metrics
	case "STABILITY_HALF_WINDOW":
		c.Analysis.StabilityHalfWindow, err = intInRange(key, value, 0, 1000)
	case "STABILITY_AXES":
		c.Analysis.StabilityAxes, err = analysis.ParseAxes(value)
	case "PUSHOFF_FRACTION":
		c.Analysis.PushoffFraction, err = nonNegativeFloat(key, value)
	case "GLIDE_POOR_ABOVE":
		c.Analysis.GlidePoorAbove, err = nonNegativeFloat(key, value)
	case "GLIDE_VERY_GOOD_BELOW":
		c.Analysis.GlideVeryGoodBelow, err = nonNegativeFloat(key, value)
	case "GLIDE_EXCELLENT_BELOW":
		c.Analysis.GlideExcellentBelow, err = nonNegativeFloat(key, value)

	// Auto-stop
	case "AUTOSTOP_GRACE_PERIOD":
		c.AutoStop.GracePeriod, err = nonNegativeFloat(key, value)
	case "AUTOSTOP_CHECK_INTERVAL":
		c.AutoStop.CheckInterval, err = nonNegativeFloat(key, value)
	case "AUTOSTOP_CALM_WINDOW":
		c.AutoStop.CalmWindow, err = nonNegativeFloat(key, value)
	case "AUTOSTOP_CALM_THRESHOLD":
		c.AutoStop.CalmThreshold, err = nonNegativeFloat(key, value)

	default:
		return fmt.Errorf("unknown config key: %q", key)
	}

	return err
}

func intInRange(key, value string, lo, hi int) (int, error) {
	v, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	if v < lo || v > hi {
		return 0, fmt.Errorf("%s must be %d-%d, got %d", key, lo, hi, v)
	}
	return v, nil
}

func nonNegativeFloat(key, value string) (float64, error) {
	v, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	if v < 0 {
		return 0, fmt.Errorf("%s must not be negative, got %v", key, v)
	}
	return v, nil
}

// validate checks that all required fields are set.
func (c *Config) validate() error {
	if c.MQTTBroker == "" {
		return fmt.Errorf("MQTT_BROKER is required")
	}
	if c.TopicSamples == "" || c.TopicControl == "" {
		return fmt.Errorf("TOPIC_SAMPLES and TOPIC_CONTROL are required")
	}
	if c.DBPath == "" {
		return fmt.Errorf("DB_PATH is required")
	}
	if err := c.Analysis.Validate(); err != nil {
		return fmt.Errorf("pipeline tuning: %w", err)
	}
	if c.AutoStop.CheckInterval <= 0 || c.AutoStop.CalmWindow <= 0 {
		return fmt.Errorf("AUTOSTOP_CHECK_INTERVAL and AUTOSTOP_CALM_WINDOW must be positive")
	}
	return nil
}

// Pipeline returns the tuning for the analysis pipeline and the recorder.
func (c *Config) Pipeline() (analysis.Params, recording.Params) {
	return c.Analysis, c.AutoStop
}

// InitGlobal initializes the global configuration from file. Only the first
// call has any effect.
func InitGlobal(configPath string) error {
	var err error
	configOnce.Do(func() {
		configMu.Lock()
		defer configMu.Unlock()
		globalConfig, err = Load(configPath)
	})
	return err
}

// Get returns the global configuration instance, or nil before InitGlobal.
func Get() *Config {
	configMu.RLock()
	defer configMu.RUnlock()
	return globalConfig
}
