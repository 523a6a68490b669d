package main

import (
	"errors"
	"fmt"
	"io/fs"
	"log"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// serverEnv holds settings that come from the process environment rather
// than flags. A .env file in the working directory is loaded first.
type serverEnv struct {
	DeployEnv string `env:"DEPLOY_ENV" envDefault:"dev"`

	AuthSecret string `env:"AH_AUTH_SECRET"`
	AuthIssuer string `env:"AH_AUTH_ISSUER" envDefault:"auctionhouse"`

	IndexBackend     string `env:"AH_INDEX_BACKEND" envDefault:"sqlite"`
	IndexIngestURL   string `env:"AH_INDEX_INGEST_URL"`
	IndexIngestToken string `env:"AH_INDEX_INGEST_TOKEN"`
	IndexFlushMS     int    `env:"AH_INDEX_FLUSH_MS" envDefault:"500"`
	IndexBatchSize   int    `env:"AH_INDEX_BATCH_SIZE" envDefault:"128"`

	EnableAdminHTTP *bool `env:"AH_ENABLE_ADMIN_HTTP"`
	EnablePprofHTTP bool  `env:"AH_ENABLE_PPROF_HTTP" envDefault:"false"`
}

func loadServerEnv(logger *log.Logger) (serverEnv, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		logger.Printf(".env: %v", err)
	}
	var cfg serverEnv
	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("parse env: %w", err)
	}
	if strings.TrimSpace(cfg.AuthSecret) == "" {
		return cfg, fmt.Errorf("AH_AUTH_SECRET is required")
	}
	return cfg, nil
}

func (e serverEnv) adminHTTPEnabled() bool {
	if e.EnableAdminHTTP != nil {
		return *e.EnableAdminHTTP
	}
	switch strings.ToLower(strings.TrimSpace(e.DeployEnv)) {
	case "staging", "production":
		return false
	default:
		return true
	}
}
