// Package config loads the loader's settings from the environment (which
// main populates from a .env file first).
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds all configuration for the application. It is built once by
// the caller and passed down; nothing reads the environment after this.
type Config struct {
	Warehouse WarehouseConfig `envPrefix:"WAREHOUSE_"`
	Stage     StageConfig     `envPrefix:"STAGE_"`
	Reddit    RedditConfig    `envPrefix:"REDDIT_"`
	History   HistoryConfig   `envPrefix:"HISTORY_"`

	LoadTimeout time.Duration `env:"LOAD_TIMEOUT" envDefault:"30m"`
	LogFile     string        `env:"LOG_FILE"`
	LogDebug    bool          `env:"LOG_DEBUG"`
}

type WarehouseConfig struct {
	Engine   string `env:"ENGINE" envDefault:"redshift"`
	Host     string `env:"HOST"`
	Port     int    `env:"PORT"`
	User     string `env:"USER"`
	Password string `env:"PASSWORD"`
	Database string `env:"DATABASE"`
	// DSN overrides the parts above when set.
	DSN   string `env:"DSN"`
	Table string `env:"TABLE" envDefault:"reddit"`

	// Credential is handed to the bulk copy as is. When empty it is derived
	// from RoleName and AccountID.
	Credential string `env:"BULK_CREDENTIAL"`
	RoleName   string `env:"ROLE"`
	AccountID  string `env:"ACCOUNT_ID"`
}

// BulkCredential returns the credential for the warehouse's bulk copy.
func (w WarehouseConfig) BulkCredential() string {
	if w.Credential != "" {
		return w.Credential
	}
	if w.RoleName != "" && w.AccountID != "" {
		return fmt.Sprintf("arn:aws:iam::%s:role/%s", w.AccountID, w.RoleName)
	}
	return ""
}

func (w WarehouseConfig) Validate() error {
	if w.DSN == "" && w.Engine != "duckdb" {
		var missing []string
		if w.Host == "" {
			missing = append(missing, "WAREHOUSE_HOST")
		}
		if w.User == "" {
			missing = append(missing, "WAREHOUSE_USER")
		}
		if w.Database == "" {
			missing = append(missing, "WAREHOUSE_DATABASE")
		}
		if len(missing) > 0 {
			return fmt.Errorf("%s must be set (or WAREHOUSE_DSN)", strings.Join(missing, ", "))
		}
	}
	if w.Table == "" {
		return errors.New("WAREHOUSE_TABLE must not be empty")
	}
	if w.Engine == "redshift" && w.BulkCredential() == "" {
		return errors.New("WAREHOUSE_BULK_CREDENTIAL or WAREHOUSE_ROLE and WAREHOUSE_ACCOUNT_ID must be set for redshift")
	}
	return nil
}

type StageConfig struct {
	// Backend is "s3" or "local".
	Backend string `env:"BACKEND" envDefault:"s3"`
	Bucket  string `env:"BUCKET"`
	Region  string `env:"REGION" envDefault:"us-east-1"`
	// Endpoint and PathStyle target S3-compatible stores.
	Endpoint        string `env:"ENDPOINT"`
	PathStyle       bool   `env:"PATH_STYLE"`
	AccessKeyID     string `env:"ACCESS_KEY_ID"`
	SecretAccessKey string `env:"SECRET_ACCESS_KEY"`
	// LocalDir is where extracted CSVs are written before staging, and the
	// stage itself for the local backend.
	LocalDir string `env:"LOCAL_DIR" envDefault:"/tmp"`
}

func (s StageConfig) Validate() error {
	switch s.Backend {
	case "s3":
		if s.Bucket == "" {
			return errors.New("STAGE_BUCKET must be set for the s3 backend")
		}
		if (s.AccessKeyID == "") != (s.SecretAccessKey == "") {
			return errors.New("STAGE_ACCESS_KEY_ID and STAGE_SECRET_ACCESS_KEY must be set together")
		}
	case "local":
	default:
		return fmt.Errorf("STAGE_BACKEND must be s3 or local, got %q", s.Backend)
	}
	if s.LocalDir == "" {
		return errors.New("STAGE_LOCAL_DIR must not be empty")
	}
	return nil
}

type RedditConfig struct {
	ClientID   string `env:"CLIENT_ID"`
	Secret     string `env:"SECRET"`
	UserAgent  string `env:"USER_AGENT" envDefault:"stageload/1.0"`
	Subreddit  string `env:"SUBREDDIT" envDefault:"personalfinance"`
	TimeFilter string `env:"TIME_FILTER" envDefault:"day"`
	// Limit caps the posts fetched per run; 0 fetches every page.
	Limit int `env:"LIMIT"`
}

func (r RedditConfig) Validate() error {
	if r.ClientID == "" || r.Secret == "" {
		return errors.New("REDDIT_CLIENT_ID and REDDIT_SECRET must be set")
	}
	switch r.TimeFilter {
	case "hour", "day", "week", "month", "year", "all":
	default:
		return fmt.Errorf("REDDIT_TIME_FILTER %q is not one of hour, day, week, month, year, all", r.TimeFilter)
	}
	if r.Limit < 0 {
		return errors.New("REDDIT_LIMIT must not be negative")
	}
	return nil
}

// HistoryConfig points at the Mongo collection recording load attempts.
// An empty URI disables the ledger.
type HistoryConfig struct {
	MongoURI   string `env:"MONGO_URI"`
	Database   string `env:"DATABASE" envDefault:"stageload"`
	Collection string `env:"COLLECTION" envDefault:"loads"`
}

func (h HistoryConfig) Enabled() bool { return h.MongoURI != "" }

// LoadConfig parses the environment into a Config.
func LoadConfig() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	cfg.Warehouse.Engine = strings.ToLower(strings.TrimSpace(cfg.Warehouse.Engine))
	cfg.Stage.Backend = strings.ToLower(strings.TrimSpace(cfg.Stage.Backend))
	if cfg.LoadTimeout < 0 {
		return nil, errors.New("LOAD_TIMEOUT must not be negative")
	}
	return cfg, nil
}
