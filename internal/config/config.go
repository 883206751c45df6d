package config

import (
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config holds the server settings, sourced from the environment with an
// optional .env file for local development.
type Config struct {
	Port             string        `envconfig:"PORT" default:"8080"`
	DBPath           string        `envconfig:"DB_PATH" default:"./data/codepair.db"`
	PersistInterval  time.Duration `envconfig:"PERSIST_FLUSH_INTERVAL" default:"2s"`
	PersistQueueSize int           `envconfig:"PERSIST_QUEUE_SIZE" default:"1024"`
}

func Load() (*Config, error) {
	// A missing .env is fine; deployments set the environment directly.
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
