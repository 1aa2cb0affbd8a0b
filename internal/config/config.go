package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds application configuration.
type Config struct {
	Server  ServerConfig
	Mongo   MongoConfig
	Auth    AuthConfig
	MQTT    MQTTConfig
	Log     LogConfig
	Storage StorageConfig
	Import  ImportConfig
}

// ServerConfig holds HTTP settings.
type ServerConfig struct {
	Port           string
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	RateLimit      int      `mapstructure:"rate_limit"`
	RateWindow     int      `mapstructure:"rate_window"`
	// TrustProxy reads client IPs from forwarding headers for rate limiting.
	TrustProxy bool `mapstructure:"trust_proxy"`
}

// MongoConfig holds MongoDB connection settings.
type MongoConfig struct {
	URI      string
	Database string
}

// AuthConfig holds token settings.
type AuthConfig struct {
	JWTSecret string        `mapstructure:"jwt_secret"`
	JWTExpiry time.Duration `mapstructure:"jwt_expiry"`
}

// MQTTConfig holds alert broker settings. An empty broker disables MQTT.
type MQTTConfig struct {
	Broker      string
	ClientID    string `mapstructure:"client_id"`
	TopicPrefix string `mapstructure:"topic_prefix"`
}

// LogConfig holds logrus settings.
type LogConfig struct {
	Level  string
	Format string
}

// StorageConfig selects the persistence backend: "mongo" or "memory".
type StorageConfig struct {
	Driver string
}

// ImportConfig bounds CSV uploads.
type ImportConfig struct {
	MaxBytes int64 `mapstructure:"max_bytes"`
}

// env maps config keys to the environment variables that override them.
var env = map[string]string{
	"server.port":            "PORT",
	"server.allowed_origins": "CORS_ALLOWED_ORIGINS",
	"server.rate_limit":      "RATE_LIMIT",
	"server.rate_window":     "RATE_WINDOW",
	"server.trust_proxy":     "TRUST_PROXY",
	"mongo.uri":              "MONGO_URI",
	"mongo.database":         "MONGO_DB",
	"auth.jwt_secret":        "JWT_SECRET",
	"auth.jwt_expiry":        "JWT_EXPIRY",
	"mqtt.broker":            "MQTT_BROKER",
	"mqtt.client_id":         "MQTT_CLIENT_ID",
	"mqtt.topic_prefix":      "MQTT_TOPIC_PREFIX",
	"log.level":              "LOG_LEVEL",
	"log.format":             "LOG_FORMAT",
	"storage.driver":         "STORAGE_DRIVER",
	"import.max_bytes":       "IMPORT_MAX_BYTES",
}

// Load reads configuration from an optional .env file, an optional config
// file named by FUELSCOPE_CONFIG, and the environment.
func Load() (Config, error) {
	// .env is optional
	_ = godotenv.Load()

	v := viper.New()

	v.SetDefault("server.port", "8080")
	v.SetDefault("server.allowed_origins", []string{"http://localhost:3000"})
	v.SetDefault("server.rate_limit", 100)
	v.SetDefault("server.rate_window", 60)
	v.SetDefault("server.trust_proxy", false)
	v.SetDefault("mongo.uri", "mongodb://localhost:27017")
	v.SetDefault("mongo.database", "fuelscope")
	v.SetDefault("auth.jwt_secret", "default-secret-key-change-in-production")
	v.SetDefault("auth.jwt_expiry", "24h")
	v.SetDefault("mqtt.broker", "")
	v.SetDefault("mqtt.client_id", "fuelscope")
	v.SetDefault("mqtt.topic_prefix", "fuelscope")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("storage.driver", "mongo")
	v.SetDefault("import.max_bytes", 5<<20)

	if cfgPath := os.Getenv("FUELSCOPE_CONFIG"); cfgPath != "" {
		v.SetConfigFile(cfgPath)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", cfgPath, err)
		}
	}

	for key, name := range env {
		if err := v.BindEnv(key, name); err != nil {
			return Config{}, fmt.Errorf("bind %s: %w", name, err)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	c.Server.AllowedOrigins = splitOrigins(c.Server.AllowedOrigins)
	c.Storage.Driver = strings.ToLower(strings.TrimSpace(c.Storage.Driver))

	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate rejects settings the server cannot start with.
func (c Config) Validate() error {
	switch c.Storage.Driver {
	case "mongo", "memory":
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}
	if c.Auth.JWTExpiry <= 0 {
		return fmt.Errorf("jwt expiry must be positive, got %s", c.Auth.JWTExpiry)
	}
	if c.Import.MaxBytes <= 0 {
		return fmt.Errorf("import max bytes must be positive, got %d", c.Import.MaxBytes)
	}
	return nil
}

// splitOrigins flattens comma separated entries and drops blanks.
func splitOrigins(in []string) []string {
	var out []string
	for _, entry := range in {
		for _, origin := range strings.Split(entry, ",") {
			if origin = strings.TrimSpace(origin); origin != "" {
				out = append(out, origin)
			}
		}
	}
	return out
}
