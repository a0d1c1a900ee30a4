package config

import "github.com/caarlos0/env/v11"

// LogConfig controls the process-wide logger. LOG_FILE switches output from
// stdout to a size-limited file; LOG_SAMPLE_EVERY above 1 samples events,
// useful when a busy table floods the turn/broadcast logs.
type LogConfig struct {
	Level       string `env:"LOG_LEVEL" envDefault:"info"`
	Pretty      bool   `env:"LOG_PRETTY" envDefault:"false"`
	SampleEvery int    `env:"LOG_SAMPLE_EVERY" envDefault:"0"`
	File        string `env:"LOG_FILE"`
	MaxMB       int    `env:"LOG_MAX_MB" envDefault:"10"`
}

func LoadLog() (LogConfig, error) {
	var cfg LogConfig
	err := env.Parse(&cfg)
	return cfg, err
}
