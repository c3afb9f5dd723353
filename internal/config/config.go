package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	AppHost  string
	HTTPPort string
	AppEnv   string
	LogLevel string

	// KafkaBrokers/KafkaTopicTicket: ticket domain events. Empty disables the producer.
	KafkaBrokers     []string
	KafkaTopicTicket string

	// StoreDriver selects the ticket store: "postgres" or "memory".
	StoreDriver string

	// WSAllowedOrigins restricts WebSocket upgrades; empty allows any origin.
	WSAllowedOrigins []string
	// WSRequestTimeout bounds one RPC; WSSendBuffer is the per-socket outbound queue.
	WSRequestTimeout time.Duration
	WSSendBuffer     int

	DB struct {
		Host     string
		Port     string
		User     string
		Password string
		Database string
		SSLMode  string
	}

	Auth struct {
		JWTSecret   string
		ServiceURL  string
		InternalKey string
		CacheTTL    time.Duration
		CacheSize   int
	}

	SMTP struct {
		Host     string
		Port     string
		User     string
		Password string
		From     string
	}

	MQTT struct {
		Broker      string
		ClientID    string
		TopicPrefix string
	}

	Notify struct {
		Tick            time.Duration
		DefaultTimezone string
	}
}

func Load() (*Config, error) {
	_ = godotenv.Load(".env")
	_ = godotenv.Load("../.env")

	cfg := &Config{
		AppHost:          getEnv("APP_HOST", "0.0.0.0"),
		HTTPPort:         firstEnv("APP_PORT", "HTTP_PORT", "8098"),
		AppEnv:           getEnv("APP_ENV", "development"),
		LogLevel:         getEnv("LOG_LEVEL", "info"),
		KafkaBrokers:     splitList(getEnv("KAFKA_BROKERS", "")),
		KafkaTopicTicket: getEnv("KAFKA_TOPIC_TICKET", "support.tickets"),
		WSAllowedOrigins: splitList(getEnv("WS_ALLOWED_ORIGINS", "")),
		StoreDriver:      getEnv("DB_DRIVER", "postgres"),
	}
	cfg.DB.Host = getEnv("DB_HOST", "localhost")
	cfg.DB.Port = getEnv("DB_PORT", "5432")
	cfg.DB.User = getEnv("DB_USER", "postgres")
	cfg.DB.Password = getEnv("DB_PASSWORD", "postgres")
	cfg.DB.Database = getEnv("DB_DATABASE", "support_chat")
	cfg.DB.SSLMode = getEnv("DB_SSLMODE", "disable")

	cfg.Auth.JWTSecret = getEnv("AUTH_JWT_SECRET", "")
	cfg.Auth.ServiceURL = getEnv("AUTH_SERVICE_URL", "")
	cfg.Auth.InternalKey = getEnv("AUTH_INTERNAL_KEY", "")

	cfg.SMTP.Host = getEnv("SMTP_HOST", "")
	cfg.SMTP.Port = getEnv("SMTP_PORT", "587")
	cfg.SMTP.User = getEnv("SMTP_USER", "")
	cfg.SMTP.Password = getEnv("SMTP_PASSWORD", "")
	cfg.SMTP.From = getEnv("SMTP_FROM", "no-reply@incubator.local")

	cfg.MQTT.Broker = getEnv("MQTT_BROKER", "")
	cfg.MQTT.ClientID = getEnv("MQTT_CLIENT_ID", "support-chat")
	cfg.MQTT.TopicPrefix = getEnv("MQTT_TOPIC_PREFIX", "incubator")

	cfg.Notify.DefaultTimezone = getEnv("NOTIFY_DEFAULT_TZ", "Europe/Paris")

	var err error
	if cfg.Auth.CacheTTL, err = getDuration("AUTH_CACHE_TTL", 5*time.Minute); err != nil {
		return nil, err
	}
	if cfg.Notify.Tick, err = getDuration("NOTIFY_TICK", time.Minute); err != nil {
		return nil, err
	}
	if cfg.WSRequestTimeout, err = getDuration("WS_REQUEST_TIMEOUT", 10*time.Second); err != nil {
		return nil, err
	}
	if cfg.WSSendBuffer, err = getInt("WS_SEND_BUFFER", 64); err != nil {
		return nil, err
	}
	if cfg.Auth.CacheSize, err = getInt("AUTH_CACHE_SIZE", 1024); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	switch c.StoreDriver {
	case "postgres", "memory":
	default:
		return fmt.Errorf("config: unknown DB_DRIVER %q", c.StoreDriver)
	}
	if c.StoreDriver == "postgres" && (c.DB.Host == "" || c.DB.Database == "") {
		return errors.New("config: DB_HOST and DB_DATABASE are required")
	}
	if c.StoreDriver == "postgres" && c.AppEnv == "production" && c.DB.Password == "" {
		return errors.New("config: in production DB_PASSWORD is required")
	}
	if c.Auth.JWTSecret == "" && c.Auth.ServiceURL == "" {
		return errors.New("config: one of AUTH_JWT_SECRET or AUTH_SERVICE_URL is required")
	}
	if c.Auth.CacheTTL <= 0 {
		return errors.New("config: AUTH_CACHE_TTL must be positive")
	}
	if c.WSRequestTimeout <= 0 || c.WSSendBuffer <= 0 {
		return errors.New("config: WS_REQUEST_TIMEOUT and WS_SEND_BUFFER must be positive")
	}
	if c.Notify.Tick <= 0 {
		return errors.New("config: NOTIFY_TICK must be positive")
	}
	if _, err := time.LoadLocation(c.Notify.DefaultTimezone); err != nil {
		return fmt.Errorf("config: NOTIFY_DEFAULT_TZ: %w", err)
	}
	return nil
}

func (c *Config) DSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.DB.Host, c.DB.Port, c.DB.User, c.DB.Password, c.DB.Database, c.DB.SSLMode)
}

func (c *Config) DatabaseURL() string {
	pass := url.QueryEscape(c.DB.Password)
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.DB.User, pass, c.DB.Host, c.DB.Port, c.DB.Database, c.DB.SSLMode)
}

func (c *Config) Addr() string {
	return c.AppHost + ":" + c.HTTPPort
}

func firstEnv(keysAndDef ...string) string {
	if len(keysAndDef) == 0 {
		return ""
	}
	def := keysAndDef[len(keysAndDef)-1]
	for _, k := range keysAndDef[:len(keysAndDef)-1] {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return def
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getDuration(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("config: %s: %w", key, err)
	}
	return d, nil
}

func getInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("config: %s: %w", key, err)
	}
	return n, nil
}

// splitList splits "a,b , c" into a slice, dropping blanks.
func splitList(s string) []string {
	var out []string
	for _, t := range strings.Split(s, ",") {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	return out
}
