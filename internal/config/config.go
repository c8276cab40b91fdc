// Package config provides process-level settings sourced from GROUNDWORK_*
// environment variables. Command-line flags take precedence over these.
package config

import (
	"fmt"
	"os"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Settings struct {
	LogLevel    string `env:"GROUNDWORK_LOG_LEVEL" envDefault:"info"`
	NoColor     bool   `env:"GROUNDWORK_NO_COLOR"`
	Parallelism int    `env:"GROUNDWORK_PARALLELISM" envDefault:"10"`
	StatePath   string `env:"GROUNDWORK_STATE_PATH"`
	Backend     string `env:"GROUNDWORK_BACKEND"` // "local" (default) or "s3"
	S3Bucket    string `env:"GROUNDWORK_S3_BUCKET"`
	S3Key       string `env:"GROUNDWORK_S3_KEY"`
	S3Region    string `env:"GROUNDWORK_S3_REGION"`
	S3Profile   string `env:"GROUNDWORK_S3_PROFILE"`
	LockTable   string `env:"GROUNDWORK_LOCK_TABLE"`
	PipelineDB  string `env:"GROUNDWORK_PIPELINE_DB"`
	Workers     int    `env:"GROUNDWORK_WORKERS" envDefault:"4"`
}

// Load parses Settings from the environment, folding in a .env file from the
// working directory when one exists.
func Load() (*Settings, error) {
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(); err != nil {
			return nil, fmt.Errorf("loading .env: %w", err)
		}
	}
	var s Settings
	if err := env.Parse(&s); err != nil {
		return nil, fmt.Errorf("parsing environment: %w", err)
	}
	return &s, nil
}
