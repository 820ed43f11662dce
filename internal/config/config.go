package config

import (
	"time"

	"github.com/caarlos0/env/v10"
)

// Config centraliza la configuración del servicio.
type Config struct {
	HTTPPort    string `env:"HTTP_PORT" envDefault:"8000"`
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	DatabaseURL string `env:"DATABASE_URL"`

	JWTSecret     string `env:"JWT_SECRET,required"`
	AppName       string `env:"APP_NAME" envDefault:"scrippt"`
	Domain        string `env:"DOMAIN" envDefault:"scrippt.tech"`
	TokenTTLHours int    `env:"TOKEN_TTL_HOURS" envDefault:"24"`

	Google GoogleConfig

	RedisAddr     string `env:"REDIS_ADDR"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`

	VerificationCodeTTLMinutes    int `env:"VERIFICATION_CODE_TTL_MINUTES" envDefault:"10"`
	VerificationRequestsPerWindow int `env:"VERIFICATION_REQUESTS_PER_WINDOW" envDefault:"3"`
	ProfileCollectionLimit        int `env:"PROFILE_COLLECTION_LIMIT" envDefault:"5"`

	SMTPHost     string `env:"SMTP_HOST"`
	SMTPPort     int    `env:"SMTP_PORT" envDefault:"587"`
	SMTPUser     string `env:"SMTP_USER"`
	SMTPPass     string `env:"SMTP_PASS"`
	SMTPFrom     string `env:"SMTP_FROM"`
	SMTPFromName string `env:"SMTP_FROM_NAME" envDefault:"Scrippt"`
	SMTPUseTLS   bool   `env:"SMTP_USE_TLS" envDefault:"false"`
}

// GoogleConfig agrupa lo necesario para verificar ID tokens de Google.
type GoogleConfig struct {
	ClientID            string `env:"GOOGLE_CLIENT_ID"`
	CertsURL            string `env:"GOOGLE_CERTS_URL" envDefault:"https://www.googleapis.com/oauth2/v3/certs"`
	JWKSCachePath       string `env:"GOOGLE_JWKS_CACHE_PATH" envDefault:"google_jwk.json"`
	FetchTimeoutSeconds int    `env:"GOOGLE_FETCH_TIMEOUT_SECONDS" envDefault:"10"`
}

// LoadGoogleConfig carga solo la sección de Google; no exige JWT_SECRET.
func LoadGoogleConfig() (*GoogleConfig, error) {
	var cfg GoogleConfig
	if err := env.Parse(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (g GoogleConfig) FetchTimeout() time.Duration {
	return time.Duration(g.FetchTimeoutSeconds) * time.Second
}

// LoadConfig carga la configuración desde variables de entorno.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// IsTest indica si el servicio corre en modo test (sin envio de correos).
func (c *Config) IsTest() bool {
	return c.Environment == "test"
}

// IsProduction indica si el servicio corre en produccion.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

func (c *Config) TokenTTL() time.Duration {
	return time.Duration(c.TokenTTLHours) * time.Hour
}

func (c *Config) VerificationCodeTTL() time.Duration {
	return time.Duration(c.VerificationCodeTTLMinutes) * time.Minute
}
