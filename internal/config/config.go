package config

import (
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Apollo        ApolloConfig        `yaml:"apollo"`
	Clay          ClayConfig          `yaml:"clay"`
	BetterContact BetterContactConfig `yaml:"bettercontact"`
	Instantly     InstantlyConfig     `yaml:"instantly"`
	GHL           GHLConfig           `yaml:"ghl"`
	SES           SESConfig           `yaml:"ses"`
	Scoring       ScoringConfig       `yaml:"scoring"`
	RL            RLConfig            `yaml:"rl"`
	Annealing     AnnealingConfig     `yaml:"annealing"`
	Compliance    ComplianceConfig    `yaml:"compliance"`
	Safety        SafetyConfig        `yaml:"safety"`
	Storage       StorageConfig       `yaml:"storage"`
	Warehouse     WarehouseConfig     `yaml:"warehouse"`
	Redis         RedisConfig         `yaml:"redis"`
	Pipeline      PipelineConfig      `yaml:"pipeline"`
	Scraper       ScraperConfig       `yaml:"scraper"`
	Crafter       CrafterConfig       `yaml:"crafter"`
	Database      DatabaseConfig      `yaml:"database"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port int    `yaml:"port"`
	Host string `yaml:"host"`
}

// GetHost returns the server host, with container detection
func (c ServerConfig) GetHost() string {
	// On ECS/container, listen on all interfaces
	if os.Getenv("ECS_CONTAINER_METADATA_URI") != "" || os.Getenv("AWS_EXECUTION_ENV") != "" {
		return "0.0.0.0"
	}
	if host := os.Getenv("SERVER_HOST"); host != "" {
		return host
	}
	return c.Host
}

// ApolloConfig holds Apollo.io enrichment API configuration
type ApolloConfig struct {
	APIKey         string `yaml:"api_key"`
	BaseURL        string `yaml:"base_url"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	Enabled        bool   `yaml:"enabled"`
}

// Timeout returns the configured timeout as a duration
func (c ApolloConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// ClayConfig holds Clay enrichment webhook/API configuration
type ClayConfig struct {
	APIKey         string `yaml:"api_key"`
	BaseURL        string `yaml:"base_url"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	Enabled        bool   `yaml:"enabled"`
}

// Timeout returns the configured timeout as a duration
func (c ClayConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// BetterContactConfig holds BetterContact enrichment API configuration
type BetterContactConfig struct {
	APIKey         string `yaml:"api_key"`
	BaseURL        string `yaml:"base_url"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	Enabled        bool   `yaml:"enabled"`
	PollSeconds    int    `yaml:"poll_seconds"` // async job polling interval
}

// Timeout returns the configured timeout as a duration
func (c BetterContactConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// InstantlyConfig holds Instantly outreach platform configuration
type InstantlyConfig struct {
	APIKey         string `yaml:"api_key"`
	BaseURL        string `yaml:"base_url"`
	CampaignID     string `yaml:"campaign_id"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	Enabled        bool   `yaml:"enabled"`
}

// Timeout returns the configured timeout as a duration
func (c InstantlyConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// GHLConfig holds GoHighLevel CRM configuration
type GHLConfig struct {
	ClientID       string `yaml:"client_id"`
	ClientSecret   string `yaml:"client_secret"`
	TokenURL       string `yaml:"token_url"`
	BaseURL        string `yaml:"base_url"`
	LocationID     string `yaml:"location_id"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	Enabled        bool   `yaml:"enabled"`
}

// Timeout returns the configured timeout as a duration
func (c GHLConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// SESConfig holds AWS SES fallback sender configuration
type SESConfig struct {
	Region    string `yaml:"region"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	FromEmail string `yaml:"from_email"`
	Enabled   bool   `yaml:"enabled"`
}

// ScoringConfig holds ICP scoring weights and tier thresholds
type ScoringConfig struct {
	TargetIndustries []string `yaml:"target_industries"`
	TargetTitles     []string `yaml:"target_titles"`
	TargetTech       []string `yaml:"target_tech"`
	TargetGeos       []string `yaml:"target_geos"`
	IdealSizeMin     int      `yaml:"ideal_size_min"`
	IdealSizeMax     int      `yaml:"ideal_size_max"`

	HotThreshold     float64 `yaml:"hot_threshold"`
	WarmThreshold    float64 `yaml:"warm_threshold"`
	NurtureThreshold float64 `yaml:"nurture_threshold"`
}

// RLConfig holds Q-learning engine parameters
type RLConfig struct {
	Alpha        float64 `yaml:"alpha"`         // learning rate
	Gamma        float64 `yaml:"gamma"`         // discount factor
	Epsilon      float64 `yaml:"epsilon"`       // initial exploration rate
	EpsilonMin   float64 `yaml:"epsilon_min"`   // exploration floor
	EpsilonDecay float64 `yaml:"epsilon_decay"` // multiplicative decay per update
	StatePath    string  `yaml:"state_path"`    // Q-table JSON location
}

// AnnealingConfig holds self-annealing loop parameters
type AnnealingConfig struct {
	OutcomeLogPath  string  `yaml:"outcome_log_path"`
	WindowSize      int     `yaml:"window_size"`       // outcomes considered for pattern detection
	MinSupport      int     `yaml:"min_support"`       // occurrences before a pattern is reported
	FailureRateTrip float64 `yaml:"failure_rate_trip"` // sustained failure rate that engages safe mode
	MinOutcomesTrip int     `yaml:"min_outcomes_trip"` // outcomes required before the trip check applies
}

// ComplianceConfig holds compliance rule settings
type ComplianceConfig struct {
	PhysicalAddress    string   `yaml:"physical_address"`
	UnsubscribeURL     string   `yaml:"unsubscribe_url"`
	BannedPhrases      []string `yaml:"banned_phrases"`
	DailyEmailCap      int      `yaml:"daily_email_cap"`
	DailyLinkedInCap   int      `yaml:"daily_linkedin_cap"`
	RequireLawfulBasis bool     `yaml:"require_lawful_basis"`
}

// SafetyConfig holds kill-switch settings
type SafetyConfig struct {
	KillSwitchPath string `yaml:"kill_switch_path"`
}

// StorageConfig holds storage configuration
type StorageConfig struct {
	Type          string `yaml:"type"` // "local", "s3", or "dynamodb"
	LocalPath     string `yaml:"local_path"`
	S3Bucket      string `yaml:"s3_bucket"`
	DynamoDBTable string `yaml:"dynamodb_table"`
	AWSRegion     string `yaml:"aws_region"`
	AWSProfile    string `yaml:"aws_profile"` // Empty string uses default credential chain
}

// GetAWSProfile returns the AWS profile, with environment variable override
func (c StorageConfig) GetAWSProfile() string {
	if envProfile := os.Getenv("AWS_PROFILE_OVERRIDE"); envProfile != "" {
		if envProfile == "none" || envProfile == "iam" {
			return ""
		}
		return envProfile
	}
	// On ECS/Lambda, don't use a profile - use IAM role
	if os.Getenv("ECS_CONTAINER_METADATA_URI") != "" || os.Getenv("AWS_EXECUTION_ENV") != "" {
		return ""
	}
	return c.AWSProfile
}

// WarehouseConfig holds Snowflake export configuration
type WarehouseConfig struct {
	Account   string `yaml:"account"`
	User      string `yaml:"user"`
	Password  string `yaml:"password"`
	Database  string `yaml:"database"`
	Schema    string `yaml:"schema"`
	Warehouse string `yaml:"warehouse"`
	Enabled   bool   `yaml:"enabled"`
}

// RedisConfig holds Redis connection settings for rate limiting and locks
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// PipelineConfig holds pipeline runner settings
type PipelineConfig struct {
	BatchSize           int  `yaml:"batch_size"`
	TickIntervalSeconds int  `yaml:"tick_interval_seconds"`
	Sandbox             bool `yaml:"sandbox"`
}

// TickInterval returns the worker tick interval as a duration
func (c PipelineConfig) TickInterval() time.Duration {
	return time.Duration(c.TickIntervalSeconds) * time.Second
}

// ScraperConfig holds lead source settings
type ScraperConfig struct {
	CSVPath         string `yaml:"csv_path"`
	LinkedInEnabled bool   `yaml:"linkedin_enabled"`
}

// CrafterConfig holds campaign crafting settings
type CrafterConfig struct {
	TemplateDir     string `yaml:"template_dir"`
	NewsHookEnabled bool   `yaml:"news_hook_enabled"`
	BedrockEnabled  bool   `yaml:"bedrock_enabled"`
	BedrockModelID  string `yaml:"bedrock_model_id"`
	BedrockRegion   string `yaml:"bedrock_region"`
}

// DatabaseConfig holds Postgres settings for the lead repository
type DatabaseConfig struct {
	URL     string `yaml:"url"`
	Enabled bool   `yaml:"enabled"`
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	// Set defaults
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Apollo.BaseURL == "" {
		cfg.Apollo.BaseURL = "https://api.apollo.io/api/v1"
	}
	if cfg.Apollo.TimeoutSeconds == 0 {
		cfg.Apollo.TimeoutSeconds = 30
	}
	if cfg.Clay.BaseURL == "" {
		cfg.Clay.BaseURL = "https://api.clay.com/v3"
	}
	if cfg.Clay.TimeoutSeconds == 0 {
		cfg.Clay.TimeoutSeconds = 30
	}
	if cfg.BetterContact.BaseURL == "" {
		cfg.BetterContact.BaseURL = "https://app.bettercontact.rocks/api/v2"
	}
	if cfg.BetterContact.TimeoutSeconds == 0 {
		cfg.BetterContact.TimeoutSeconds = 60
	}
	if cfg.BetterContact.PollSeconds == 0 {
		cfg.BetterContact.PollSeconds = 2
	}
	if cfg.Instantly.BaseURL == "" {
		cfg.Instantly.BaseURL = "https://api.instantly.ai/api/v2"
	}
	if cfg.Instantly.TimeoutSeconds == 0 {
		cfg.Instantly.TimeoutSeconds = 30
	}
	if cfg.GHL.BaseURL == "" {
		cfg.GHL.BaseURL = "https://services.leadconnectorhq.com"
	}
	if cfg.GHL.TokenURL == "" {
		cfg.GHL.TokenURL = "https://services.leadconnectorhq.com/oauth/token"
	}
	if cfg.GHL.TimeoutSeconds == 0 {
		cfg.GHL.TimeoutSeconds = 30
	}
	if cfg.SES.Region == "" {
		cfg.SES.Region = "us-west-2"
	}
	if cfg.Scoring.HotThreshold == 0 {
		cfg.Scoring.HotThreshold = 80
	}
	if cfg.Scoring.WarmThreshold == 0 {
		cfg.Scoring.WarmThreshold = 60
	}
	if cfg.Scoring.NurtureThreshold == 0 {
		cfg.Scoring.NurtureThreshold = 40
	}
	if cfg.Scoring.IdealSizeMin == 0 {
		cfg.Scoring.IdealSizeMin = 11
	}
	if cfg.Scoring.IdealSizeMax == 0 {
		cfg.Scoring.IdealSizeMax = 200
	}
	if cfg.RL.Alpha == 0 {
		cfg.RL.Alpha = 0.1
	}
	if cfg.RL.Gamma == 0 {
		cfg.RL.Gamma = 0.9
	}
	if cfg.RL.Epsilon == 0 {
		cfg.RL.Epsilon = 0.2
	}
	if cfg.RL.EpsilonMin == 0 {
		cfg.RL.EpsilonMin = 0.02
	}
	if cfg.RL.EpsilonDecay == 0 {
		cfg.RL.EpsilonDecay = 0.995
	}
	if cfg.RL.StatePath == "" {
		cfg.RL.StatePath = "./data/qtable.json"
	}
	if cfg.Annealing.OutcomeLogPath == "" {
		cfg.Annealing.OutcomeLogPath = "./data/outcomes.json"
	}
	if cfg.Annealing.WindowSize == 0 {
		cfg.Annealing.WindowSize = 500
	}
	if cfg.Annealing.MinSupport == 0 {
		cfg.Annealing.MinSupport = 5
	}
	if cfg.Annealing.FailureRateTrip == 0 {
		cfg.Annealing.FailureRateTrip = 0.5
	}
	if cfg.Annealing.MinOutcomesTrip == 0 {
		cfg.Annealing.MinOutcomesTrip = 20
	}
	if cfg.Compliance.DailyEmailCap == 0 {
		cfg.Compliance.DailyEmailCap = 500
	}
	if cfg.Compliance.DailyLinkedInCap == 0 {
		cfg.Compliance.DailyLinkedInCap = 80
	}
	if cfg.Safety.KillSwitchPath == "" {
		cfg.Safety.KillSwitchPath = "./data/KILL_SWITCH"
	}
	if cfg.Storage.Type == "" {
		cfg.Storage.Type = "local"
	}
	if cfg.Storage.LocalPath == "" {
		cfg.Storage.LocalPath = "./data"
	}
	if cfg.Warehouse.Database == "" {
		cfg.Warehouse.Database = "LEADFLOW_ANALYTICS"
	}
	if cfg.Warehouse.Schema == "" {
		cfg.Warehouse.Schema = "OUTCOMES"
	}
	if cfg.Redis.Addr == "" {
		cfg.Redis.Addr = "localhost:6379"
	}
	if cfg.Pipeline.BatchSize == 0 {
		cfg.Pipeline.BatchSize = 25
	}
	if cfg.Pipeline.TickIntervalSeconds == 0 {
		cfg.Pipeline.TickIntervalSeconds = 300
	}
	if cfg.Crafter.TemplateDir == "" {
		cfg.Crafter.TemplateDir = "./templates"
	}
	if cfg.Crafter.BedrockModelID == "" {
		cfg.Crafter.BedrockModelID = "anthropic.claude-3-haiku-20240307-v1:0"
	}
	if cfg.Crafter.BedrockRegion == "" {
		cfg.Crafter.BedrockRegion = "us-west-2"
	}

	return &cfg, nil
}

// LoadFromEnv loads configuration with environment variable overrides.
// It automatically loads a .env file (if present) before reading env vars,
// so secrets can live in .env locally and in real env vars on ECS.
func LoadFromEnv(path string) (*Config, error) {
	// Load .env file if it exists (no error if missing)
	_ = godotenv.Load()

	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	// Override with environment variables if present
	if v := os.Getenv("APOLLO_API_KEY"); v != "" {
		cfg.Apollo.APIKey = v
	}
	if v := os.Getenv("APOLLO_BASE_URL"); v != "" {
		cfg.Apollo.BaseURL = v
	}
	if v := os.Getenv("CLAY_API_KEY"); v != "" {
		cfg.Clay.APIKey = v
	}
	if v := os.Getenv("CLAY_BASE_URL"); v != "" {
		cfg.Clay.BaseURL = v
	}
	if v := os.Getenv("BETTERCONTACT_API_KEY"); v != "" {
		cfg.BetterContact.APIKey = v
	}
	if v := os.Getenv("BETTERCONTACT_BASE_URL"); v != "" {
		cfg.BetterContact.BaseURL = v
	}
	if v := os.Getenv("INSTANTLY_API_KEY"); v != "" {
		cfg.Instantly.APIKey = v
	}
	if v := os.Getenv("INSTANTLY_BASE_URL"); v != "" {
		cfg.Instantly.BaseURL = v
	}
	if v := os.Getenv("GHL_CLIENT_ID"); v != "" {
		cfg.GHL.ClientID = v
	}
	if v := os.Getenv("GHL_CLIENT_SECRET"); v != "" {
		cfg.GHL.ClientSecret = v
	}
	if v := os.Getenv("AWS_SES_ACCESS_KEY"); v != "" {
		cfg.SES.AccessKey = v
	}
	if v := os.Getenv("AWS_SES_SECRET_KEY"); v != "" {
		cfg.SES.SecretKey = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("SNOWFLAKE_PASSWORD"); v != "" {
		cfg.Warehouse.Password = v
	}

	// Database override (critical for ECS deployment where config.yaml has local defaults)
	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		cfg.Database.URL = dbURL
		if !cfg.Database.Enabled {
			cfg.Database.Enabled = true
		}
	}

	if v := os.Getenv("LEAD_CSV_PATH"); v != "" {
		cfg.Scraper.CSVPath = v
	}

	// Sandbox override for local runs and CI
	if v := os.Getenv("LEADFLOW_SANDBOX"); v == "1" || v == "true" {
		cfg.Pipeline.Sandbox = true
	}

	return cfg, nil
}
