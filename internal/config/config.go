package config

import (
	"log"
	"time"

	"github.com/spf13/viper"
)

// SessionConfig holds credentials for the session-based authentication
// strategy: long-lived keys are exchanged at TokenURL for a short-lived web
// token plus the webserver hostname to log in against.
type SessionConfig struct {
	TokenURL  string `mapstructure:"token_url"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
}

// AirflowConfig configures the upstream gateway. Exactly one of APIToken,
// Username/Password, or Session must be set; the gateway constructor rejects
// anything else.
type AirflowConfig struct {
	BaseURL               string        `mapstructure:"base_url"`
	APIToken              string        `mapstructure:"api_token"`
	Username              string        `mapstructure:"username"`
	Password              string        `mapstructure:"password"`
	Session               SessionConfig `mapstructure:"session"`
	MaxConcurrentRequests int           `mapstructure:"max_concurrent_requests"`
	RequestTimeout        time.Duration `mapstructure:"request_timeout"`
	ConnectTimeout        time.Duration `mapstructure:"connect_timeout"`
}

type CacheConfig struct {
	TTL        time.Duration `mapstructure:"ttl"`
	BadgerPath string        `mapstructure:"badger_path"`
}

type AnalysisConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	APIKey  string        `mapstructure:"api_key"`
	Model   string        `mapstructure:"model"`
	BaseURL string        `mapstructure:"base_url"`
	TTL     time.Duration `mapstructure:"ttl"`
}

type SlackConfig struct {
	WebhookURL string `mapstructure:"webhook_url"`
}

type SchedulerConfig struct {
	RefreshInterval time.Duration `mapstructure:"refresh_interval"`
	ReportSlots     []string      `mapstructure:"report_slots"`
}

type Config struct {
	ServerPort   string          `mapstructure:"server_port"`
	DashboardURL string          `mapstructure:"dashboard_url"`
	CORSOrigins  []string        `mapstructure:"cors_origins"`
	Airflow      AirflowConfig   `mapstructure:"airflow"`
	Cache        CacheConfig     `mapstructure:"cache"`
	Analysis     AnalysisConfig  `mapstructure:"analysis"`
	Slack        SlackConfig     `mapstructure:"slack"`
	Scheduler    SchedulerConfig `mapstructure:"scheduler"`
}

// Load reads the configuration from a YAML file and returns a Config instance.
func Load() *Config {
	v := viper.New()

	// Look for config in the current directory and ./config
	v.AddConfigPath(".")
	v.SetConfigName("config")
	v.AddConfigPath("./config")
	v.SetConfigType("yaml")
	v.SetEnvPrefix("DAGPULSE")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		log.Fatalf("Error reading config file: %v", err)
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		log.Fatalf("Error unmarshalling config: %v", err)
	}

	// Fallback defaults
	if config.ServerPort == "" {
		config.ServerPort = "8000"
	}
	if len(config.CORSOrigins) == 0 {
		config.CORSOrigins = []string{"http://localhost:3000"}
	}

	if config.Airflow.BaseURL == "" {
		log.Fatal("airflow.base_url must be set in the config file")
	}
	if config.Airflow.MaxConcurrentRequests <= 0 {
		config.Airflow.MaxConcurrentRequests = 16
	}
	if config.Airflow.RequestTimeout == 0 {
		config.Airflow.RequestTimeout = 30 * time.Second
	}
	if config.Airflow.ConnectTimeout == 0 {
		config.Airflow.ConnectTimeout = 10 * time.Second
	}

	if config.Cache.TTL == 0 {
		config.Cache.TTL = 120 * time.Second
	}

	if config.Analysis.Model == "" {
		config.Analysis.Model = "gpt-4o-mini"
	}
	if config.Analysis.TTL == 0 {
		config.Analysis.TTL = 10 * time.Minute
	}

	if config.Scheduler.RefreshInterval == 0 {
		config.Scheduler.RefreshInterval = 300 * time.Second
	}
	if len(config.Scheduler.ReportSlots) == 0 {
		config.Scheduler.ReportSlots = []string{"10:00", "19:00"}
	}

	return &config
}
