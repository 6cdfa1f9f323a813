package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	HTTPAddr    string

	OTLPEndpoint string

	Platform PlatformConfig

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int
	DBConnMaxIdleTime int
	DBSlowQueryMS     int

	RedisAddr     string
	RedisPassword string

	// Operator mutation throttle, per principal. Only active when a redis
	// address is configured.
	MutationRatePerSecond float64
	MutationBurst         int

	// Bearer tokens issued by login expire after this many minutes.
	TokenTTLMinutes int64

	BootstrapOperatorEmail    string
	BootstrapOperatorName     string
	BootstrapOperatorPassword string
}

type PlatformConfig struct {
	DeploymentID   string
	DeploymentName string
	Metrics        PlatformMetricsConfig
}

type PlatformMetricsConfig struct {
	Enabled   bool
	Exporter  string
	Endpoint  string
	AuthToken string
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	environment := getenv("ENVIRONMENT", "development")

	cfg := Config{
		AppName:      getenv("APP_SERVICE", "gatehouse"),
		AppVersion:   getenv("APP_VERSION", "0.1.0"),
		Environment:  environment,
		HTTPAddr:     getenv("HTTP_ADDR", ":8080"),
		OTLPEndpoint: getenv("OTLP_ENDPOINT", "localhost:4317"),
		Platform: PlatformConfig{
			DeploymentID:   strings.TrimSpace(getenv("PLATFORM_DEPLOYMENT_ID", "")),
			DeploymentName: getenv("PLATFORM_DEPLOYMENT_NAME", ""),
			Metrics: PlatformMetricsConfig{
				Enabled:   getenvBool("PLATFORM_METRICS_ENABLED", true),
				Exporter:  strings.ToLower(getenv("PLATFORM_METRICS_EXPORTER", "")),
				Endpoint:  strings.TrimSpace(getenv("PLATFORM_METRICS_ENDPOINT", "")),
				AuthToken: strings.TrimSpace(getenv("PLATFORM_METRICS_AUTH_TOKEN", "")),
			},
		},
		DBType:                    getenv("DATABASE_TYPE", "postgres"),
		DBHost:                    getenv("DATABASE_HOST", "localhost"),
		DBPort:                    getenv("DATABASE_PORT", "5432"),
		DBName:                    getenv("DATABASE_NAME", "gatehouse"),
		DBUser:                    getenv("DATABASE_USER", "postgres"),
		DBPassword:                getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:                 getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:             getenvInt("DATABASE_MAX_IDLE_CONN", 4),
		DBMaxOpenConn:             getenvInt("DATABASE_MAX_OPEN_CONN", 32),
		DBConnMaxLifetime:         getenvInt("DATABASE_CONN_MAX_LIFETIME", 30),
		DBConnMaxIdleTime:         getenvInt("DATABASE_CONN_MAX_IDLE_TIME", 5),
		DBSlowQueryMS:             getenvInt("DATABASE_SLOW_QUERY_MS", 200),
		RedisAddr:                 strings.TrimSpace(getenv("REDIS_ADDR", "")),
		RedisPassword:             getenv("REDIS_PASSWORD", ""),
		MutationRatePerSecond:     getenvFloat("MUTATION_RATE_PER_SECOND", 5),
		MutationBurst:             getenvInt("MUTATION_BURST", 10),
		TokenTTLMinutes:           getenvInt64("TOKEN_TTL_MINUTES", 12*60),
		BootstrapOperatorEmail:    strings.TrimSpace(getenv("BOOTSTRAP_OPERATOR_EMAIL", "")),
		BootstrapOperatorName:     getenv("BOOTSTRAP_OPERATOR_NAME", "Platform Operator"),
		BootstrapOperatorPassword: getenv("BOOTSTRAP_OPERATOR_PASSWORD", ""),
	}

	return cfg
}

// IsManaged reports whether this deployment is registered with the Haulboard
// control plane.
func (c Config) IsManaged() bool {
	return strings.TrimSpace(c.Platform.DeploymentID) != ""
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvBool(key string, def bool) bool {
	value := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if value == "" {
		return def
	}
	switch value {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return def
	}
}

func getenvInt(key string, def int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return parsed
}

func getenvFloat(key string, def float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return def
	}
	return parsed
}

func getenvInt64(key string, def int64) int64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return def
	}
	return parsed
}
