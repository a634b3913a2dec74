package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"

	"bakelite_bot/internal/store"
)

type Config struct {
	TelegramToken string `json:"telegram_token" env:"TELEGRAM_TOKEN"`
	AdminID       int64  `json:"admin_id" env:"ADMIN_ID"`

	StorageBackend  string `json:"storage_backend" env:"STORAGE_BACKEND"`
	MongoURI        string `json:"mongo_uri" env:"MONGO_URI"`
	MongoDatabase   string `json:"mongo_database" env:"MONGO_DATABASE"`
	SpreadsheetID   string `json:"spreadsheet_id" env:"SPREADSHEET_ID"`
	CredentialsPath string `json:"credentials_path" env:"CREDENTIALS_PATH"`

	HealthPort string        `json:"health_port" env:"PORT"`
	SessionTTL time.Duration `json:"-" env:"SESSION_TTL"`
	LogLevel   string        `json:"log_level" env:"LOG_LEVEL"`
	Debug      bool          `json:"debug" env:"DEBUG"`
}

// Load reads .env (if any), then the JSON file at path (if it exists), then
// environment variables, which win over the file. The result is not
// validated.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(errors.Cause(err)) {
		return nil, errors.Wrap(err, "load .env")
	}

	var cfg Config
	if path != "" {
		if err := readFile(path, &cfg); err != nil {
			return nil, err
		}
	}
	if err := env.Parse(&cfg); err != nil {
		return nil, errors.Wrap(err, "parse env")
	}

	cfg.setDefaults()
	return &cfg, nil
}

func readFile(path string, cfg *Config) error {
	file, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return errors.Wrapf(err, "open config %s", path)
	}
	defer file.Close()

	if err := json.NewDecoder(file).Decode(cfg); err != nil {
		return errors.Wrapf(err, "decode config %s", path)
	}
	return nil
}

func (c *Config) setDefaults() {
	if c.StorageBackend == "" {
		c.StorageBackend = store.BackendMongo
	}
	if c.MongoDatabase == "" {
		c.MongoDatabase = "bakelite"
	}
	if c.CredentialsPath == "" {
		c.CredentialsPath = "./credentials.json"
	}
	if c.HealthPort == "" {
		c.HealthPort = "8080"
	}
	if c.SessionTTL <= 0 {
		c.SessionTTL = 24 * time.Hour
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}

// ValidateSheets checks the settings of the spreadsheet backend only.
func (c *Config) ValidateSheets() error {
	if c.SpreadsheetID == "" {
		return errors.New("SPREADSHEET_ID is required for the sheets backend")
	}
	return nil
}

// Validate checks that the settings needed to run the bot are present.
func (c *Config) Validate() error {
	if c.TelegramToken == "" {
		return errors.New("TELEGRAM_TOKEN is required")
	}
	if c.AdminID == 0 {
		return errors.New("ADMIN_ID is required")
	}
	switch c.StorageBackend {
	case store.BackendMongo:
		if c.MongoURI == "" {
			return errors.New("MONGO_URI is required for the mongo backend")
		}
	case store.BackendSheets:
		return c.ValidateSheets()
	case store.BackendMemory:
	default:
		return errors.Errorf("unknown storage backend %q", c.StorageBackend)
	}
	return nil
}
