package main

import (
	"log"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	SlackBotToken string `yaml:"slack_bot_token"`
	SlackAppToken string `yaml:"slack_app_token"`

	TrackerURL    string `yaml:"tracker_url"`
	TrackerToken  string `yaml:"tracker_token"`
	TrackerOrgID  string `yaml:"tracker_org_id"`
	TrackerDomain string `yaml:"tracker_domain"` // web URL domain; defaults to the API host

	TimerFieldID     string   `yaml:"timer_field_id"`
	Scopes           []string `yaml:"scopes"` // board ids, in scan priority order
	MaxPagesPerScope int      `yaml:"max_pages_per_scope"`

	DBPath           string `yaml:"db_path"`
	Timezone         string `yaml:"timezone"`
	ReminderSchedule string `yaml:"reminder_schedule"`

	ExternalHTTPTimeoutSeconds int `yaml:"external_http_timeout_seconds"`

	Location *time.Location `yaml:"-"`
}

func LoadConfig() Config {
	var cfg Config

	// Load from config.yaml if it exists
	configPath := "config.yaml"
	if envPath := os.Getenv("CONFIG_PATH"); envPath != "" {
		configPath = envPath
	}
	if data, err := os.ReadFile(configPath); err == nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			log.Fatalf("Error parsing %s: %v", configPath, err)
		}
		log.Printf("Loaded config from %s", configPath)
	}

	// Env vars override YAML values
	envOverride(&cfg.SlackBotToken, "SLACK_BOT_TOKEN")
	envOverride(&cfg.SlackAppToken, "SLACK_APP_TOKEN")
	envOverride(&cfg.TrackerURL, "TRACKER_URL")
	envOverride(&cfg.TrackerToken, "TRACKER_TOKEN")
	envOverride(&cfg.TrackerOrgID, "TRACKER_ORG_ID")
	envOverride(&cfg.TrackerDomain, "TRACKER_DOMAIN")
	envOverride(&cfg.TimerFieldID, "TIMER_FIELD_ID")
	envOverride(&cfg.DBPath, "DB_PATH")
	envOverride(&cfg.Timezone, "TIMEZONE")
	envOverride(&cfg.ReminderSchedule, "REMINDER_SCHEDULE")
	envOverrideInt(&cfg.MaxPagesPerScope, "MAX_PAGES_PER_SCOPE")
	envOverrideInt(&cfg.ExternalHTTPTimeoutSeconds, "EXTERNAL_HTTP_TIMEOUT_SECONDS")

	if scopes := os.Getenv("SCOPES"); scopes != "" {
		cfg.Scopes = nil
		for _, scope := range strings.Split(scopes, ",") {
			scope = strings.TrimSpace(scope)
			if scope != "" {
				cfg.Scopes = append(cfg.Scopes, scope)
			}
		}
	}

	// Defaults
	if cfg.MaxPagesPerScope == 0 {
		cfg.MaxPagesPerScope = 10
	}
	if cfg.DBPath == "" {
		cfg.DBPath = "./timesheetbot.db"
	}
	if cfg.Timezone == "" {
		cfg.Timezone = "Local"
	}
	if cfg.ExternalHTTPTimeoutSeconds == 0 {
		cfg.ExternalHTTPTimeoutSeconds = int(defaultExternalHTTPTimeout / time.Second)
	}
	if cfg.TrackerDomain == "" {
		if u, err := url.Parse(cfg.TrackerURL); err == nil {
			cfg.TrackerDomain = u.Hostname()
		}
	}

	// Validate required fields
	required := map[string]string{
		"slack_bot_token": cfg.SlackBotToken,
		"slack_app_token": cfg.SlackAppToken,
		"tracker_url":     cfg.TrackerURL,
		"tracker_token":   cfg.TrackerToken,
		"tracker_org_id":  cfg.TrackerOrgID,
		"timer_field_id":  cfg.TimerFieldID,
	}
	for name, val := range required {
		if val == "" {
			log.Fatalf("Required config '%s' is not set (via config.yaml or env var)", name)
		}
	}
	if len(cfg.Scopes) == 0 {
		log.Fatalf("Required config 'scopes' is not set: at least one board id is needed for key resolution")
	}
	if cfg.MaxPagesPerScope < 1 {
		log.Fatalf("invalid max_pages_per_scope '%d': must be >= 1", cfg.MaxPagesPerScope)
	}

	if strings.EqualFold(cfg.Timezone, "Local") {
		cfg.Location = time.Local
		cfg.Timezone = time.Local.String()
	} else {
		loc, err := time.LoadLocation(cfg.Timezone)
		if err != nil {
			log.Fatalf("invalid timezone '%s': %v", cfg.Timezone, err)
		}
		cfg.Location = loc
	}

	return cfg
}

func envOverride(field *string, envKey string) {
	if val := os.Getenv(envKey); val != "" {
		*field = val
	}
}

func envOverrideInt(field *int, envKey string) {
	if val := os.Getenv(envKey); val != "" {
		parsed, err := strconv.Atoi(val)
		if err != nil {
			log.Fatalf("invalid %s '%s': %v", envKey, val, err)
		}
		*field = parsed
	}
}
