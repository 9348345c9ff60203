package common

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	Server   ServerConfig
	OCR      OCRConfig
	Registry RegistryConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Kafka    KafkaConfig
	Auth     AuthConfig
	Log      LogConfig
}

// ServerConfig holds HTTP and gRPC listener configuration
type ServerConfig struct {
	HTTPAddr        string
	GRPCAddr        string
	MaxUploadBytes  int64
	ShutdownTimeout time.Duration
}

// OCRConfig holds OCR-related configuration
type OCRConfig struct {
	Tesseract           string
	TesseractLang       string
	TessdataDir         string
	HeicConverter       string
	ArtifactCacheDir    string
	PSM                 int
	OEM                 int
	DPI                 int
	MaxPages            int
	EnableTSVConfidence bool
	Timeout             time.Duration
}

// RegistryConfig selects and locates the registry backend
type RegistryConfig struct {
	Backend     string // memory | leveldb | sqlite | postgres | redis
	LevelDBPath string
	SQLitePath  string
}

// DatabaseConfig holds database-related configuration
type DatabaseConfig struct {
	DSN              string
	MaxConns         int32
	MinConns         int32
	MaxConnLifetime  time.Duration
	MaxConnIdleTime  time.Duration
	DialTimeout      time.Duration
	StatementTimeout time.Duration
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

// KafkaConfig enables audit events when Brokers is non-empty
type KafkaConfig struct {
	Brokers        []string
	Topic          string
	PublishTimeout time.Duration
}

// AuthConfig enables bearer-token role checks when JWTSecret is set
type AuthConfig struct {
	JWTSecret string
	Issuer    string
}

type LogConfig struct {
	Level  string
	Format string // text | json
}

// Registry backends.
const (
	BackendMemory   = "memory"
	BackendLevelDB  = "leveldb"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
)

// envConfig mirrors the environment one key per field.
type envConfig struct {
	HTTPAddr        string        `mapstructure:"HTTP_ADDR"`
	GRPCAddr        string        `mapstructure:"GRPC_ADDR"`
	MaxUploadBytes  int64         `mapstructure:"MAX_UPLOAD_BYTES"`
	ShutdownTimeout time.Duration `mapstructure:"SHUTDOWN_TIMEOUT"`

	Tesseract        string        `mapstructure:"TESSERACT_BIN"`
	TesseractLang    string        `mapstructure:"TESSERACT_LANG"`
	TessdataDir      string        `mapstructure:"TESSDATA_PREFIX"`
	HeicConverter    string        `mapstructure:"HEIC_CONVERTER"`
	ArtifactCacheDir string        `mapstructure:"ARTIFACT_CACHE_DIR"`
	OCRPSM           int           `mapstructure:"OCR_PSM"`
	OCROEM           int           `mapstructure:"OCR_OEM"`
	OCRDPI           int           `mapstructure:"OCR_DPI"`
	OCRMaxPages      int           `mapstructure:"OCR_MAX_PAGES"`
	OCRTSVConfidence bool          `mapstructure:"OCR_TSV_CONFIDENCE"`
	OCRTimeout       time.Duration `mapstructure:"OCR_TIMEOUT"`

	RegistryBackend string `mapstructure:"REGISTRY_BACKEND"`
	LevelDBPath     string `mapstructure:"LEVELDB_PATH"`
	SQLitePath      string `mapstructure:"SQLITE_PATH"`

	DBURL              string        `mapstructure:"DB_URL"`
	DBMaxConns         int32         `mapstructure:"DB_MAX_CONNS"`
	DBMinConns         int32         `mapstructure:"DB_MIN_CONNS"`
	DBMaxConnLifetime  time.Duration `mapstructure:"DB_MAX_CONN_LIFETIME"`
	DBMaxConnIdleTime  time.Duration `mapstructure:"DB_MAX_CONN_IDLE_TIME"`
	DBDialTimeout      time.Duration `mapstructure:"DB_DIAL_TIMEOUT"`
	DBStatementTimeout time.Duration `mapstructure:"DB_STATEMENT_TIMEOUT"`

	RedisAddr     string `mapstructure:"REDIS_ADDR"`
	RedisPassword string `mapstructure:"REDIS_PASSWORD"`
	RedisDB       int    `mapstructure:"REDIS_DB"`
	RedisPrefix   string `mapstructure:"REDIS_PREFIX"`

	KafkaBrokers        string        `mapstructure:"KAFKA_BROKERS"`
	KafkaTopic          string        `mapstructure:"KAFKA_TOPIC"`
	KafkaPublishTimeout time.Duration `mapstructure:"KAFKA_PUBLISH_TIMEOUT"`

	AuthJWTSecret string `mapstructure:"AUTH_JWT_SECRET"`
	AuthIssuer    string `mapstructure:"AUTH_ISSUER"`

	LogLevel  string `mapstructure:"LOG_LEVEL"`
	LogFormat string `mapstructure:"LOG_FORMAT"`
}

var defaults = map[string]any{
	"HTTP_ADDR":             ":8080",
	"GRPC_ADDR":             ":9090",
	"MAX_UPLOAD_BYTES":      10 << 20,
	"SHUTDOWN_TIMEOUT":      "15s",
	"TESSERACT_BIN":         "tesseract",
	"TESSERACT_LANG":        "eng",
	"HEIC_CONVERTER":        "magick",
	"ARTIFACT_CACHE_DIR":    "./tmp",
	"OCR_DPI":               300,
	"OCR_TSV_CONFIDENCE":    true,
	"OCR_TIMEOUT":           "2m",
	"REGISTRY_BACKEND":      BackendMemory,
	"LEVELDB_PATH":          "./data/ledger",
	"SQLITE_PATH":           "./data/registry.db",
	"DB_MAX_CONNS":          20,
	"DB_MIN_CONNS":          5,
	"DB_MAX_CONN_LIFETIME":  "30m",
	"DB_MAX_CONN_IDLE_TIME": "5m",
	"DB_DIAL_TIMEOUT":       "3s",
	"DB_STATEMENT_TIMEOUT":  "0s",
	"REDIS_ADDR":            "localhost:6379",
	"REDIS_PREFIX":          "rxverify:",
	"KAFKA_TOPIC":           "rxverify.audit",
	"KAFKA_PUBLISH_TIMEOUT": "5s",
	"LOG_LEVEL":             "info",
	"LOG_FORMAT":            "text",
}

// ConfigFileEnv names an optional env/yaml/json config file read before the environment.
const ConfigFileEnv = "RXVERIFY_CONFIG"

// LoadConfig loads configuration from an optional config file and environment variables.
// Environment variables win over file values.
func LoadConfig() (*Config, error) {
	v := viper.New()
	for k, d := range defaults {
		v.SetDefault(k, d)
	}

	explicit := os.Getenv(ConfigFileEnv)
	if explicit != "" {
		v.SetConfigFile(explicit)
	} else {
		v.SetConfigFile(".env")
		v.SetConfigType("env")
	}
	v.AutomaticEnv()
	for k := range defaults {
		_ = v.BindEnv(k)
	}
	for _, k := range []string{"TESSDATA_PREFIX", "DB_URL", "REDIS_PASSWORD", "REDIS_DB", "KAFKA_BROKERS",
		"AUTH_JWT_SECRET", "AUTH_ISSUER", "OCR_PSM", "OCR_OEM", "OCR_MAX_PAGES"} {
		_ = v.BindEnv(k)
	}

	if err := v.ReadInConfig(); err != nil && explicit != "" {
		return nil, NewAppError("CONFIG_ERROR", "read config file "+explicit, err)
	}

	var env envConfig
	if err := v.Unmarshal(&env); err != nil {
		return nil, NewAppError("CONFIG_ERROR", "unmarshal config", err)
	}
	return env.toConfig(), nil
}

func (e envConfig) toConfig() *Config {
	return &Config{
		Server: ServerConfig{
			HTTPAddr:        e.HTTPAddr,
			GRPCAddr:        e.GRPCAddr,
			MaxUploadBytes:  e.MaxUploadBytes,
			ShutdownTimeout: e.ShutdownTimeout,
		},
		OCR: OCRConfig{
			Tesseract:           e.Tesseract,
			TesseractLang:       e.TesseractLang,
			TessdataDir:         e.TessdataDir,
			HeicConverter:       e.HeicConverter,
			ArtifactCacheDir:    e.ArtifactCacheDir,
			PSM:                 e.OCRPSM,
			OEM:                 e.OCROEM,
			DPI:                 e.OCRDPI,
			MaxPages:            e.OCRMaxPages,
			EnableTSVConfidence: e.OCRTSVConfidence,
			Timeout:             e.OCRTimeout,
		},
		Registry: RegistryConfig{
			Backend:     strings.ToLower(strings.TrimSpace(e.RegistryBackend)),
			LevelDBPath: e.LevelDBPath,
			SQLitePath:  e.SQLitePath,
		},
		Database: DatabaseConfig{
			DSN:              e.DBURL,
			MaxConns:         e.DBMaxConns,
			MinConns:         e.DBMinConns,
			MaxConnLifetime:  e.DBMaxConnLifetime,
			MaxConnIdleTime:  e.DBMaxConnIdleTime,
			DialTimeout:      e.DBDialTimeout,
			StatementTimeout: e.DBStatementTimeout,
		},
		Redis: RedisConfig{
			Addr:     e.RedisAddr,
			Password: e.RedisPassword,
			DB:       e.RedisDB,
			Prefix:   e.RedisPrefix,
		},
		Kafka: KafkaConfig{
			Brokers:        splitList(e.KafkaBrokers),
			Topic:          e.KafkaTopic,
			PublishTimeout: e.KafkaPublishTimeout,
		},
		Auth: AuthConfig{
			JWTSecret: e.AuthJWTSecret,
			Issuer:    e.AuthIssuer,
		},
		Log: LogConfig{
			Level:  strings.ToLower(e.LogLevel),
			Format: strings.ToLower(e.LogFormat),
		},
	}
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Validate checks the loaded configuration
func (c *Config) Validate() error {
	if c.Server.HTTPAddr == "" {
		return NewAppError("CONFIG_ERROR", "HTTP_ADDR is required", ErrInvalidInput)
	}
	if c.Server.MaxUploadBytes <= 0 {
		return NewAppError("CONFIG_ERROR", "MAX_UPLOAD_BYTES must be positive", ErrInvalidInput)
	}
	switch c.Registry.Backend {
	case BackendMemory:
	case BackendLevelDB:
		if c.Registry.LevelDBPath == "" {
			return NewAppError("CONFIG_ERROR", "LEVELDB_PATH is required for the leveldb registry", ErrInvalidInput)
		}
	case BackendSQLite:
		if c.Registry.SQLitePath == "" {
			return NewAppError("CONFIG_ERROR", "SQLITE_PATH is required for the sqlite registry", ErrInvalidInput)
		}
	case BackendPostgres:
		if c.Database.DSN == "" {
			return NewAppError("CONFIG_ERROR", "DB_URL is required for the postgres registry", ErrInvalidInput)
		}
	case BackendRedis:
		if c.Redis.Addr == "" {
			return NewAppError("CONFIG_ERROR", "REDIS_ADDR is required for the redis registry", ErrInvalidInput)
		}
	default:
		return NewAppError("CONFIG_ERROR", fmt.Sprintf("unknown REGISTRY_BACKEND %q", c.Registry.Backend), ErrInvalidInput)
	}
	if len(c.Kafka.Brokers) > 0 && c.Kafka.Topic == "" {
		return NewAppError("CONFIG_ERROR", "KAFKA_TOPIC is required when KAFKA_BROKERS is set", ErrInvalidInput)
	}
	if _, err := ParseLevel(c.Log.Level); err != nil {
		return NewAppError("CONFIG_ERROR", "invalid LOG_LEVEL", err)
	}
	return nil
}
