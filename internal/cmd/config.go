package main

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/speakuphq/gdhub/internal/matchqueue"
)

// Config is the application configuration file. Environment variables cover
// secrets and endpoints; the file covers product tuning.
type Config struct {
	Queue struct {
		TeamSize      int      `yaml:"team_size"`
		MaxWait       string   `yaml:"max_wait"`
		SweepInterval string   `yaml:"sweep_interval"`
		Topics        []string `yaml:"topics"`
	} `yaml:"queue"`
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func loadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	return &config, nil
}

// queueConfig maps the file settings onto the queue manager defaults.
func queueConfig(config *Config) (matchqueue.Config, error) {
	cfg := matchqueue.DefaultConfig()
	if config == nil {
		return cfg, nil
	}

	if config.Queue.TeamSize > 0 {
		cfg.TeamSize = config.Queue.TeamSize
	}
	if config.Queue.MaxWait != "" {
		d, err := time.ParseDuration(config.Queue.MaxWait)
		if err != nil {
			return cfg, fmt.Errorf("invalid queue.max_wait: %w", err)
		}
		cfg.MaxWait = d
	}
	if config.Queue.SweepInterval != "" {
		d, err := time.ParseDuration(config.Queue.SweepInterval)
		if err != nil {
			return cfg, fmt.Errorf("invalid queue.sweep_interval: %w", err)
		}
		cfg.SweepInterval = d
	}
	if len(config.Queue.Topics) > 0 {
		cfg.Topics = config.Queue.Topics
	}
	return cfg, nil
}
