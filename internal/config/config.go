package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config aggregates runtime configuration for the bot and supporting services.
type Config struct {
	LineChannelSecret string
	LineChannelToken  string
	OpenAIAPIKey      string
	OpenAIBaseURL     string
	VisionModel       string
	CaptionModel      string
	RequestTimeout    time.Duration
	OpenAIRPS         float64
	FreeDailyCaptions int
	MySQLDSN          string
	ListenAddr        string
	AdminListenAddr   string
	AdminUsername     string
	AdminPassword     string
	TemplatePath      string

	Templates Templates
}

// Load reads configuration from environment variables, applying sane defaults,
// then loads and validates the template file. Template problems are startup
// errors, never per-request ones.
func Load() (Config, error) {
	if err := loadEnvFile(); err != nil {
		return Config{}, err
	}

	cfg := Config{
		OpenAIBaseURL:     getEnv("OPENAI_BASE_URL", "https://api.openai.com"),
		VisionModel:       getEnv("OPENAI_VISION_MODEL", "gpt-4o"),
		CaptionModel:      getEnv("OPENAI_CAPTION_MODEL", "gpt-4o"),
		RequestTimeout:    time.Second * time.Duration(getInt("HTTP_TIMEOUT_SECONDS", 60)),
		OpenAIRPS:         getFloat("OPENAI_RPS", 2),
		FreeDailyCaptions: getInt("FREE_DAILY_CAPTIONS", 3),
		ListenAddr:        getEnv("LISTEN_ADDR", ":5000"),
		AdminListenAddr:   getEnv("ADMIN_LISTEN_ADDR", ":8080"),
		AdminUsername:     getEnv("ADMIN_USERNAME", "admin"),
		AdminPassword:     getEnv("ADMIN_PASSWORD", "change-me"),
		TemplatePath:      getEnv("TEMPLATE_CONFIG_PATH", filepath.Join("configs", "templates.json")),
	}

	cfg.LineChannelSecret = os.Getenv("LINE_CHANNEL_SECRET")
	cfg.LineChannelToken = os.Getenv("LINE_CHANNEL_TOKEN")
	cfg.OpenAIAPIKey = os.Getenv("OPENAI_API_KEY")
	cfg.MySQLDSN = os.Getenv("MYSQL_DSN")

	var missing []string
	if cfg.LineChannelSecret == "" {
		missing = append(missing, "LINE_CHANNEL_SECRET")
	}
	if cfg.LineChannelToken == "" {
		missing = append(missing, "LINE_CHANNEL_TOKEN")
	}
	if cfg.OpenAIAPIKey == "" {
		missing = append(missing, "OPENAI_API_KEY")
	}
	if cfg.MySQLDSN == "" {
		missing = append(missing, "MYSQL_DSN")
	}
	if len(missing) > 0 {
		return Config{}, fmt.Errorf("missing required environment variables: %v", missing)
	}
	if cfg.FreeDailyCaptions < 0 {
		return Config{}, fmt.Errorf("FREE_DAILY_CAPTIONS cannot be negative")
	}

	templates, err := LoadTemplates(cfg.TemplatePath)
	if err != nil {
		return Config{}, err
	}
	cfg.Templates = templates

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return i
}

func getFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}

func loadEnvFile() error {
	candidates := []string{}
	if custom, ok := os.LookupEnv("CONFIG_ENV_PATH"); ok && custom != "" {
		candidates = append(candidates, custom)
	}
	candidates = append(candidates,
		filepath.Join("configs", ".env"),
		".env",
	)

	for _, path := range candidates {
		info, err := os.Stat(path)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return fmt.Errorf("access env file %s: %w", path, err)
		}
		if info.IsDir() {
			continue
		}
		if err := godotenv.Overload(path); err != nil {
			return fmt.Errorf("load env file %s: %w", path, err)
		}
		return nil
	}
	// Running purely off the process environment is fine.
	return nil
}
