package config

import (
	"errors"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"

	defaultJWTSecret = "dev_secret"
)

// Evidence store drivers.
const (
	EvidenceDriverLocal  = "local"
	EvidenceDriverPinata = "pinata"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database    DatabaseConfig
	Redis       RedisConfig
	JWT         JWTConfig
	CORS        CORSConfig
	Log         LogConfig
	Evidence    EvidenceConfig
	Roster      RosterConfig
	Notary      NotaryConfig
	Classifier  ClassifierConfig
	Mail        MailConfig
	Rollbar     RollbarConfig
	Leaderboard LeaderboardConfig
}

type DatabaseConfig struct {
	// URL takes precedence over the discrete fields when set.
	URL          string
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
	AutoMigrate  bool
}

type RedisConfig struct {
	Enabled  bool
	URL      string
	Host     string
	Port     int
	Password string
	DB       int
}

// JWTConfig describes how access tokens issued by the identity provider are verified.
type JWTConfig struct {
	Secret   string
	Issuer   string
	Audience []string
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// EvidenceConfig controls where complaint evidence is stored.
type EvidenceConfig struct {
	Driver           string
	StorageDir       string
	SignedURLSecret  string
	SignedURLTTL     time.Duration
	MaxFileSizeBytes int64
	AllowedMIMEs     []string
	PinataJWT        string
	PinataAPIURL     string
	PinataGatewayURL string
}

// RosterConfig bounds roster downloads.
type RosterConfig struct {
	FetchTimeout   time.Duration
	MaxBytes       int64
	HeaderScanRows int
	AwardWorkers   int
}

// NotaryConfig points at the on-chain notarization contract.
type NotaryConfig struct {
	Enabled         bool
	RPCURL          string
	ContractAddress string
	PrivateKey      string
	ExplorerURL     string
	ReceiptTimeout  time.Duration
}

// ClassifierConfig configures SDG classification of new activities.
type ClassifierConfig struct {
	Enabled    bool
	APIKey     string
	APIURL     string
	Model      string
	Timeout    time.Duration
	Workers    int
	MaxRetries int
}

// MailConfig configures decision notifications.
type MailConfig struct {
	Enabled        bool
	SendGridAPIKey string
	FromEmail      string
	AppName        string
	Workers        int
}

// RollbarConfig configures error reporting for reconciliation failures.
type RollbarConfig struct {
	Enabled     bool
	Token       string
	CodeVersion string
	ServerHost  string
}

// LeaderboardConfig governs the cached leaderboard.
type LeaderboardConfig struct {
	CacheTTL time.Duration
	Size     int
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}

	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.Database = DatabaseConfig{
		URL:          v.GetString("DATABASE_URL"),
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
		AutoMigrate:  v.GetBool("DB_AUTO_MIGRATE"),
	}

	cfg.Redis = RedisConfig{
		Enabled:  v.GetBool("REDIS_ENABLED"),
		URL:      v.GetString("REDIS_URL"),
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.JWT = JWTConfig{
		Secret:   v.GetString("JWT_SECRET"),
		Issuer:   v.GetString("JWT_ISSUER"),
		Audience: splitAndTrim(v.GetString("JWT_AUDIENCE")),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	maxEvidenceSize := v.GetInt64("EVIDENCE_MAX_FILE_SIZE")
	if maxEvidenceSize <= 0 {
		maxEvidenceSize = 5 * 1024 * 1024
	}
	cfg.Evidence = EvidenceConfig{
		Driver:           strings.ToLower(v.GetString("EVIDENCE_DRIVER")),
		StorageDir:       v.GetString("EVIDENCE_STORAGE_DIR"),
		SignedURLSecret:  v.GetString("EVIDENCE_SIGNED_URL_SECRET"),
		SignedURLTTL:     parseDuration(v.GetString("EVIDENCE_SIGNED_URL_TTL"), time.Hour),
		MaxFileSizeBytes: maxEvidenceSize,
		AllowedMIMEs:     splitAndTrim(v.GetString("EVIDENCE_ALLOWED_MIME_TYPES")),
		PinataJWT:        v.GetString("PINATA_JWT"),
		PinataAPIURL:     v.GetString("PINATA_API_URL"),
		PinataGatewayURL: v.GetString("PINATA_GATEWAY_URL"),
	}

	maxRosterBytes := v.GetInt64("ROSTER_MAX_BYTES")
	if maxRosterBytes <= 0 {
		maxRosterBytes = 10 * 1024 * 1024
	}
	cfg.Roster = RosterConfig{
		FetchTimeout:   parseDuration(v.GetString("ROSTER_FETCH_TIMEOUT"), 15*time.Second),
		MaxBytes:       maxRosterBytes,
		HeaderScanRows: v.GetInt("ROSTER_HEADER_SCAN_ROWS"),
		AwardWorkers:   v.GetInt("ROSTER_AWARD_WORKERS"),
	}

	cfg.Notary = NotaryConfig{
		Enabled:         v.GetBool("NOTARY_ENABLED"),
		RPCURL:          v.GetString("NOTARY_RPC_URL"),
		ContractAddress: v.GetString("NOTARY_CONTRACT_ADDRESS"),
		PrivateKey:      v.GetString("NOTARY_PRIVATE_KEY"),
		ExplorerURL:     v.GetString("NOTARY_EXPLORER_URL"),
		ReceiptTimeout:  parseDuration(v.GetString("NOTARY_RECEIPT_TIMEOUT"), 2*time.Minute),
	}

	cfg.Classifier = ClassifierConfig{
		Enabled:    v.GetBool("ENABLE_CLASSIFIER"),
		APIKey:     v.GetString("GROQ_API_KEY"),
		APIURL:     v.GetString("GROQ_API_URL"),
		Model:      v.GetString("GROQ_MODEL"),
		Timeout:    parseDuration(v.GetString("CLASSIFIER_TIMEOUT"), 20*time.Second),
		Workers:    v.GetInt("CLASSIFIER_WORKERS"),
		MaxRetries: v.GetInt("CLASSIFIER_MAX_RETRIES"),
	}

	cfg.Mail = MailConfig{
		Enabled:        v.GetBool("ENABLE_MAIL"),
		SendGridAPIKey: v.GetString("SENDGRID_API_KEY"),
		FromEmail:      v.GetString("MAIL_FROM"),
		AppName:        v.GetString("MAIL_APP_NAME"),
		Workers:        v.GetInt("MAIL_WORKERS"),
	}

	cfg.Rollbar = RollbarConfig{
		Enabled:     v.GetBool("ROLLBAR_ENABLED"),
		Token:       v.GetString("ROLLBAR_TOKEN"),
		CodeVersion: v.GetString("BUILD_VERSION"),
		ServerHost:  v.GetString("SERVER_HOST"),
	}

	cfg.Leaderboard = LeaderboardConfig{
		CacheTTL: parseDuration(v.GetString("LEADERBOARD_CACHE_TTL"), 5*time.Minute),
		Size:     v.GetInt("LEADERBOARD_SIZE"),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Env == EnvProduction && (c.JWT.Secret == "" || c.JWT.Secret == defaultJWTSecret) {
		return errors.New("config: JWT_SECRET must be set to a non-default value in production")
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "activity_points")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)
	v.SetDefault("DB_AUTO_MIGRATE", false)

	v.SetDefault("REDIS_ENABLED", false)
	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", defaultJWTSecret)
	v.SetDefault("JWT_ISSUER", "")
	v.SetDefault("JWT_AUDIENCE", "")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("EVIDENCE_DRIVER", EvidenceDriverLocal)
	v.SetDefault("EVIDENCE_STORAGE_DIR", "./evidence")
	v.SetDefault("EVIDENCE_SIGNED_URL_SECRET", "dev_evidence_secret")
	v.SetDefault("EVIDENCE_SIGNED_URL_TTL", "1h")
	v.SetDefault("EVIDENCE_MAX_FILE_SIZE", 5*1024*1024)
	v.SetDefault("EVIDENCE_ALLOWED_MIME_TYPES", "image/jpeg,image/png,image/webp,image/gif")
	v.SetDefault("PINATA_JWT", "")
	v.SetDefault("PINATA_API_URL", "https://api.pinata.cloud/pinning/pinFileToIPFS")
	v.SetDefault("PINATA_GATEWAY_URL", "https://gateway.pinata.cloud/ipfs/")

	v.SetDefault("ROSTER_FETCH_TIMEOUT", "15s")
	v.SetDefault("ROSTER_MAX_BYTES", 10*1024*1024)
	v.SetDefault("ROSTER_HEADER_SCAN_ROWS", 10)
	v.SetDefault("ROSTER_AWARD_WORKERS", 4)

	v.SetDefault("NOTARY_ENABLED", false)
	v.SetDefault("NOTARY_RPC_URL", "https://rpc-amoy.polygon.technology/")
	v.SetDefault("NOTARY_CONTRACT_ADDRESS", "")
	v.SetDefault("NOTARY_PRIVATE_KEY", "")
	v.SetDefault("NOTARY_EXPLORER_URL", "https://amoy.polygonscan.com/tx/")
	v.SetDefault("NOTARY_RECEIPT_TIMEOUT", "2m")

	v.SetDefault("ENABLE_CLASSIFIER", false)
	v.SetDefault("GROQ_API_KEY", "")
	v.SetDefault("GROQ_API_URL", "https://api.groq.com/openai/v1/chat/completions")
	v.SetDefault("GROQ_MODEL", "llama-3.3-70b-versatile")
	v.SetDefault("CLASSIFIER_TIMEOUT", "20s")
	v.SetDefault("CLASSIFIER_WORKERS", 1)
	v.SetDefault("CLASSIFIER_MAX_RETRIES", 2)

	v.SetDefault("ENABLE_MAIL", false)
	v.SetDefault("SENDGRID_API_KEY", "")
	v.SetDefault("MAIL_FROM", "no-reply@localhost")
	v.SetDefault("MAIL_APP_NAME", "Activity Points")
	v.SetDefault("MAIL_WORKERS", 1)

	v.SetDefault("ROLLBAR_ENABLED", false)
	v.SetDefault("ROLLBAR_TOKEN", "")
	v.SetDefault("BUILD_VERSION", "dev")
	v.SetDefault("SERVER_HOST", "localhost")

	v.SetDefault("LEADERBOARD_CACHE_TTL", "5m")
	v.SetDefault("LEADERBOARD_SIZE", 20)
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
