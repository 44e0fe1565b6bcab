package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

const (
	storeMemory   = "memory"
	storePostgres = "postgres"
)

type Config struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`

	Store struct {
		// Driver is "postgres" or "memory".
		Driver string `yaml:"driver"`
	} `yaml:"store"`

	NATS struct {
		URL           string `yaml:"url"`
		Stream        string `yaml:"stream"`
		SubjectPrefix string `yaml:"subject_prefix"`
	} `yaml:"nats"`

	Outbox struct {
		// Embedded runs the outbox relay inside the server. Turn it off when
		// a separate relay process publishes to JetStream.
		Embedded bool `yaml:"embedded"`
	} `yaml:"outbox"`

	Draft struct {
		OptionsPerTurn  int    `yaml:"options_per_turn"`
		MaxParticipants int    `yaml:"max_participants"`
		Seed            uint64 `yaml:"seed"`
	} `yaml:"draft"`
}

func defaultConfig() *Config {
	var c Config
	c.Server.Port = "8080"
	c.Store.Driver = storeMemory
	c.Outbox.Embedded = true
	c.Draft.OptionsPerTurn = 3
	c.Draft.MaxParticipants = 12
	return &c
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
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

// loadConfig reads the YAML file at path on top of the defaults and then
// applies environment overrides. A missing file is not an error.
func loadConfig(path string) (*Config, error) {
	config := defaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	default:
		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	config.Server.Port = getEnv("PORT", config.Server.Port)
	config.Store.Driver = getEnv("STORE_DRIVER", config.Store.Driver)
	config.NATS.URL = getEnv("NATS_URL", config.NATS.URL)
	config.Outbox.Embedded = getEnvAsBool("OUTBOX_EMBEDDED", config.Outbox.Embedded)
	config.Draft.OptionsPerTurn = getEnvAsInt("DRAFT_OPTIONS_PER_TURN", config.Draft.OptionsPerTurn)
	config.Draft.MaxParticipants = getEnvAsInt("DRAFT_MAX_PARTICIPANTS", config.Draft.MaxParticipants)

	if err := config.validate(); err != nil {
		return nil, err
	}
	return config, nil
}

func (c *Config) validate() error {
	if c.Store.Driver != storeMemory && c.Store.Driver != storePostgres {
		return fmt.Errorf("unknown store driver %q", c.Store.Driver)
	}
	if c.Draft.OptionsPerTurn < 1 {
		return fmt.Errorf("options_per_turn must be positive, got %d", c.Draft.OptionsPerTurn)
	}
	if c.Draft.MaxParticipants < 2 {
		return fmt.Errorf("max_participants must be at least 2, got %d", c.Draft.MaxParticipants)
	}
	if c.Store.Driver == storeMemory && !c.Outbox.Embedded {
		return errors.New("the memory store needs the embedded outbox relay")
	}
	if !c.Outbox.Embedded && c.NATS.URL == "" {
		return errors.New("a nats url is required when the outbox relay runs out of process")
	}
	return nil
}
