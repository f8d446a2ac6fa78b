package config

import (
	"fmt"
	"os"
	"strconv"
)

type Config struct {
	Server  ServerConfig
	Storage StorageConfig
	Search  SearchConfig
	Sync    SyncConfig
	Log     LogConfig
}

type ServerConfig struct {
	Port       int
	AdminToken string
}

type StorageConfig struct {
	DBPath string
}

type SearchConfig struct {
	UserDictPath string
}

type SyncConfig struct {
	APIURL     string
	AdminToken string

	// Adapter credentials.
	WecomCookies string
	PDDCookie    string
	PDDJSONPath  string
}

type LogConfig struct {
	Level string
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port:       3456,
			AdminToken: "dev-token",
		},
		Storage: StorageConfig{
			DBPath: "./data/specfusion.db",
		},
		Sync: SyncConfig{
			APIURL:     "http://127.0.0.1:3456",
			AdminToken: "dev-token",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load builds the configuration from defaults overridden by environment
// variables. Call godotenv.Load in main before this if a .env file should
// be honored.
func Load() (Config, error) {
	cfg := defaults()

	if v := os.Getenv("PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil || port <= 0 || port > 65535 {
			return Config{}, fmt.Errorf("invalid PORT %q", v)
		}
		cfg.Server.Port = port
	}
	if v := os.Getenv("DB_PATH"); v != "" {
		cfg.Storage.DBPath = v
	}
	if v := os.Getenv("ADMIN_TOKEN"); v != "" {
		cfg.Server.AdminToken = v
		cfg.Sync.AdminToken = v
	}
	if v := os.Getenv("USERDICT_PATH"); v != "" {
		cfg.Search.UserDictPath = v
	}
	if v := os.Getenv("SPECFUSION_API_URL"); v != "" {
		cfg.Sync.APIURL = v
	}
	if v := os.Getenv("WECOM_COOKIES"); v != "" {
		cfg.Sync.WecomCookies = v
	}
	if v := os.Getenv("PDD_COOKIE"); v != "" {
		cfg.Sync.PDDCookie = v
	}
	if v := os.Getenv("PDD_JSON_PATH"); v != "" {
		cfg.Sync.PDDJSONPath = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}

	return cfg, nil
}
