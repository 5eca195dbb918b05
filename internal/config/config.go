// config предоставляет структуру конфигурации сервиса и функции
// загрузки из файла/переменных окружения с предсказуемым приоритетом.
package config

import (
	"fmt"
	"net"
	"os"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/ilyakaznacheev/cleanenv"
)

// Драйверы хранилищ и почты.
const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
	DriverMongo    = "mongo"

	MailSMTP = "smtp"
	MailLog  = "log"
)

// Config — корневая конфигурация сервиса.
// Источники значений (по убыванию приоритета):
//  1. явный путь через флаг --config;
//  2. путь в переменной окружения CONFIG_PATH;
//  3. файл local.yaml из рабочей директории;
//  4. переменные окружения (cleanenv).
type Config struct {
	Env       string          `yaml:"env" env:"ENV" env-default:"local"`
	HTTP      HTTPConfig      `yaml:"http"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	App       AppConfig       `yaml:"app"`
	Auth      AuthConfig      `yaml:"auth"`
	Links     LinksConfig     `yaml:"links"`
	Mail      MailConfig      `yaml:"mail"`
	Storage   StorageConfig   `yaml:"storage"`
	DB        DBConfig        `yaml:"db"`
	Mongo     MongoConfig     `yaml:"mongo"`
	Redis     RedisConfig     `yaml:"redis"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Timeouts  TimeoutConfig   `yaml:"timeouts"`
}

// TimeoutConfig — таймауты сервиса.
type TimeoutConfig struct {
	Service  time.Duration `yaml:"service" env:"SERVICE_TIMEOUT" env-default:"5s"`
	Shutdown time.Duration `yaml:"shutdown" env:"SHUTDOWN_TIMEOUT" env-default:"10s"`
}

// HTTPConfig — сетевые настройки публичного HTTP API.
type HTTPConfig struct {
	Host string `yaml:"host" env:"HTTP_HOST" env-default:"0.0.0.0"`
	Port string `yaml:"port" env:"HTTP_PORT" env-default:"8080"`
	// TrustProxyHeaders — брать адрес клиента из X-Forwarded-For / X-Real-IP.
	// Включать только за доверенным прокси: иначе заголовки подделываются.
	TrustProxyHeaders bool `yaml:"trust_proxy_headers" env:"HTTP_TRUST_PROXY_HEADERS" env-default:"false"`
}

// MetricsConfig — служебный сервер (/metrics, /livez, /healthz).
type MetricsConfig struct {
	Host string `yaml:"host" env:"METRICS_HOST" env-default:"0.0.0.0"`
	Port string `yaml:"port" env:"METRICS_PORT" env-default:"9090"`
}

// Addr возвращает адрес в формате host:port.
func (h HTTPConfig) Addr() string {
	return net.JoinHostPort(h.Host, h.Port)
}

// Addr возвращает адрес в формате host:port.
func (m MetricsConfig) Addr() string {
	return net.JoinHostPort(m.Host, m.Port)
}

// AppConfig — публичный адрес приложения, из него строятся ссылки в письмах.
type AppConfig struct {
	URL string `yaml:"url" env:"APP_URL" env-default:"http://localhost:8080"`
}

// AuthConfig содержит параметры выпуска и валидации токенов.
// RefreshSecret/RefreshIV — ключ (32 байта) и IV (16 байт) шифра refresh-токенов.
type AuthConfig struct {
	JWTSecret       string        `yaml:"jwt_secret" env:"JWT_SECRET" env-required:"true"`
	AccessTokenTTL  time.Duration `yaml:"access_token_ttl" env:"ACCESS_TOKEN_TTL" env-default:"15m"`
	RefreshTokenTTL time.Duration `yaml:"refresh_token_ttl" env:"REFRESH_TOKEN_TTL" env-default:"720h"`
	RefreshSecret   string        `yaml:"refresh_secret" env:"REFRESH_SECRET" env-required:"true"`
	RefreshIV       string        `yaml:"refresh_iv" env:"REFRESH_IV" env-required:"true"`
	Issuer          string        `yaml:"issuer" env:"ISSUER" env-default:"auth-service"`
	Audience        []string      `yaml:"audience" env:"AUDIENCE" env-default:"api-gateway"`
	BcryptCost      int           `yaml:"bcrypt_cost" env:"BCRYPT_COST" env-default:"10"`
}

// LinksConfig — шифр ссылок подтверждения/сброса (ключ отдельный от refresh).
// TTL == 0 — ссылки бессрочные и детерминированные.
type LinksConfig struct {
	Secret string        `yaml:"secret" env:"LINK_SECRET" env-required:"true"`
	IV     string        `yaml:"iv" env:"LINK_IV" env-required:"true"`
	TTL    time.Duration `yaml:"ttl" env:"LINK_TTL" env-default:"24h"`
}

// MailConfig — доставка писем: smtp или log (письмо пишется в лог).
type MailConfig struct {
	Driver      string `yaml:"driver" env:"MAIL_DRIVER" env-default:"log"`
	Host        string `yaml:"host" env:"SMTP_HOST" env-default:"localhost"`
	Port        int    `yaml:"port" env:"SMTP_PORT" env-default:"587"`
	User        string `yaml:"user" env:"SMTP_USER"`
	Password    string `yaml:"password" env:"SMTP_PASSWORD"`
	From        string `yaml:"from" env:"SMTP_FROM" env-default:"no-reply@localhost"`
	ImplicitTLS bool   `yaml:"implicit_tls" env:"SMTP_IMPLICIT_TLS" env-default:"false"`
}

// StorageConfig — выбор хранилищ.
// TokenStore пустой — refresh-токены хранятся там же, где пользователи.
type StorageConfig struct {
	Driver        string        `yaml:"driver" env:"STORAGE_DRIVER" env-default:"postgres"`
	TokenStore    string        `yaml:"token_store" env:"TOKEN_STORE"`
	JanitorPeriod time.Duration `yaml:"janitor_period" env:"JANITOR_PERIOD" env-default:"30m"`
}

// DBConfig — настройки подключения к PostgreSQL.
type DBConfig struct {
	DatabaseURL string `yaml:"db_url" env:"DATABASE_URL"`
}

// MongoConfig — настройки подключения к MongoDB (token_store=mongo).
type MongoConfig struct {
	URL      string `yaml:"url" env:"MONGO_URL"`
	Database string `yaml:"database" env:"MONGO_DATABASE" env-default:"auth"`
}

// RedisConfig — Redis для отметок о погашенных ссылках (опционально).
type RedisConfig struct {
	RedisURL string `yaml:"redis_url" env:"REDIS_URL"`
}

// RateLimitConfig — лимит запросов на IP для чувствительных ручек.
type RateLimitConfig struct {
	RequestsPerMinute int `yaml:"requests_per_minute" env:"RATE_LIMIT_RPM" env-default:"60"`
	Burst             int `yaml:"burst" env:"RATE_LIMIT_BURST" env-default:"10"`
}

// TokenStoreDriver возвращает фактическое хранилище refresh-токенов.
func (s StorageConfig) TokenStoreDriver() string {
	if s.TokenStore == "" {
		return s.Driver
	}

	return s.TokenStore
}

// Validate проверяет согласованность значений, которые cleanenv не проверяет:
// длины ключей/IV, драйверы и зависящие от них адреса.
func (c *Config) Validate() error {
	tokenStore := c.Storage.TokenStoreDriver()
	needPostgres := c.Storage.Driver == DriverPostgres || tokenStore == DriverPostgres

	dbRules := []validation.Rule{}
	if needPostgres {
		dbRules = append(dbRules, validation.Required)
	}
	mongoRules := []validation.Rule{}
	if tokenStore == DriverMongo {
		mongoRules = append(mongoRules, validation.Required)
	}
	smtpRules := []validation.Rule{}
	if c.Mail.Driver == MailSMTP {
		smtpRules = append(smtpRules, validation.Required)
	}

	return validation.Errors{
		"env": validation.Validate(c.Env, validation.In("local", "dev", "prod")),
		"app": validation.ValidateStruct(&c.App,
			validation.Field(&c.App.URL, validation.Required),
		),
		"auth": validation.ValidateStruct(&c.Auth,
			validation.Field(&c.Auth.JWTSecret, validation.Required),
			validation.Field(&c.Auth.RefreshSecret, validation.Required, validation.Length(32, 32)),
			validation.Field(&c.Auth.RefreshIV, validation.Required, validation.Length(16, 16)),
			validation.Field(&c.Auth.AccessTokenTTL, validation.Required),
			validation.Field(&c.Auth.RefreshTokenTTL, validation.Required),
		),
		"links": validation.ValidateStruct(&c.Links,
			validation.Field(&c.Links.Secret, validation.Required, validation.Length(32, 32)),
			validation.Field(&c.Links.IV, validation.Required, validation.Length(16, 16)),
			validation.Field(&c.Links.TTL, validation.Min(time.Duration(0))),
		),
		"mail": validation.ValidateStruct(&c.Mail,
			validation.Field(&c.Mail.Driver, validation.In(MailSMTP, MailLog)),
			validation.Field(&c.Mail.Host, smtpRules...),
			validation.Field(&c.Mail.From, smtpRules...),
		),
		"storage": validation.ValidateStruct(&c.Storage,
			validation.Field(&c.Storage.Driver, validation.Required, validation.In(DriverPostgres, DriverMemory)),
			validation.Field(&c.Storage.TokenStore, validation.In(DriverPostgres, DriverMongo, DriverMemory)),
		),
		"db": validation.ValidateStruct(&c.DB,
			validation.Field(&c.DB.DatabaseURL, dbRules...),
		),
		"mongo": validation.ValidateStruct(&c.Mongo,
			validation.Field(&c.Mongo.URL, mongoRules...),
		),
	}.Filter()
}

// MustLoad — обёртка над Load с panic при ошибке.
func MustLoad(path string) *Config {
	cfg, err := Load(path)
	if err != nil {
		panic(err)
	}

	return cfg
}

// Load загружает конфигурацию по приоритету:
// 1) явный путь; 2) CONFIG_PATH; 3) ./local.yaml; 4) ENV.
// После чтения файла ENV-переменные накладываются поверх значений из YAML,
// затем выполняется Validate.
func Load(path string) (*Config, error) {
	cfg, err := read(path)
	if err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

func read(path string) (*Config, error) {
	var cfg Config

	// чтение файла + overlay ENV.
	tryRead := func(p string) (*Config, error) {
		if _, err := os.Stat(p); err != nil {
			return nil, fmt.Errorf("config file does not exist: %q: %w", p, err)
		}

		if err := cleanenv.ReadConfig(p, &cfg); err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}

		if err := cleanenv.ReadEnv(&cfg); err != nil {
			return nil, fmt.Errorf("failed to overlay env: %w", err)
		}

		return &cfg, nil
	}

	// 1) Явный путь.
	if path != "" {
		return tryRead(path)
	}

	// 2) CONFIG_PATH.
	if envPath := os.Getenv("CONFIG_PATH"); envPath != "" {
		return tryRead(envPath)
	}

	// 3) ./local.yaml.
	if _, err := os.Stat("local.yaml"); err == nil {
		return tryRead("local.yaml")
	}

	// 4) Только ENV.
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("config not found: provide --config, CONFIG_PATH, local.yaml or env vars: %w", err)
	}

	return &cfg, nil
}
