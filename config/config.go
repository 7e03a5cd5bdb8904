package config

import (
	"errors"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

const EnvProduction = "production"

type Config struct {
	AppName      string   `env:"RECORDS_APP_NAME" envDefault:"record-service"`
	AppEnv       string   `env:"RECORDS_APP_ENV" envDefault:"local"`
	LogLevel     string   `env:"RECORDS_LOG_LEVEL" envDefault:"info"`
	HTTPHost     string   `env:"RECORDS_HTTP_HOST" envDefault:"0.0.0.0"`
	HTTPPort     string   `env:"RECORDS_HTTP_PORT" envDefault:"8000"`
	HTTPBasePath string   `env:"RECORDS_HTTP_BASE_PATH" envDefault:"/api/v1"`
	CORSOrigins  []string `env:"RECORDS_CORS_ORIGINS" envSeparator:"," envDefault:"http://localhost:3000"`

	DBHost     string `env:"RECORDS_DB_HOST" envDefault:"localhost"`
	DBPort     string `env:"RECORDS_DB_PORT" envDefault:"5432"`
	DBUser     string `env:"RECORDS_DB_USER" envDefault:"postgres"`
	DBPassword string `env:"RECORDS_DB_PASSWORD" envDefault:"postgres"`
	DBName     string `env:"RECORDS_DB_NAME" envDefault:"records"`
	DBSSLMode  string `env:"RECORDS_DB_SSLMODE" envDefault:"disable"`

	RedisAddr     string `env:"RECORDS_REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPassword string `env:"RECORDS_REDIS_PASSWORD"`
	RedisDB       int    `env:"RECORDS_REDIS_DB" envDefault:"0"`

	JWTSecret   string        `env:"RECORDS_JWT_SECRET,required,notEmpty"`
	JWTIssuer   string        `env:"RECORDS_JWT_ISSUER" envDefault:"record-service"`
	JWTAudience string        `env:"RECORDS_JWT_AUDIENCE" envDefault:"frontend"`
	AccessTTL   time.Duration `env:"RECORDS_JWT_ACCESS_TTL" envDefault:"30m"`
	RefreshTTL  time.Duration `env:"RECORDS_JWT_REFRESH_TTL" envDefault:"168h"`

	OTPExpiry time.Duration `env:"RECORDS_OTP_EXPIRY" envDefault:"30m"`
	OTPLength int           `env:"RECORDS_OTP_LENGTH" envDefault:"6"`

	DeviceCookieMaxAge time.Duration `env:"RECORDS_DEVICE_COOKIE_MAX_AGE" envDefault:"8760h"`
	SessionSweepEvery  time.Duration `env:"RECORDS_SESSION_SWEEP_INTERVAL" envDefault:"1h"`

	NATSURL           string `env:"NATS_URL" envDefault:"nats://localhost:4222"`
	NATSMailSubject   string `env:"NATS_SUBJECT_MAIL_OTP" envDefault:"mail.otp-verification"`
	NATSVerifySubject string `env:"NATS_SUBJECT_VERIFY_JWT" envDefault:"auth.verifyJWT"`

	SMTPHost     string `env:"RECORDS_SMTP_HOST" envDefault:"smtp.gmail.com"`
	SMTPPort     int    `env:"RECORDS_SMTP_PORT" envDefault:"465"`
	SMTPUser     string `env:"RECORDS_SMTP_USER"`
	SMTPPassword string `env:"RECORDS_SMTP_PASSWORD"`
	SMTPSSL      bool   `env:"RECORDS_SMTP_SSL" envDefault:"true"`
	MailFrom     string `env:"RECORDS_MAIL_FROM" envDefault:"no-reply@example.com"`
	MailFromName string `env:"RECORDS_MAIL_FROM_NAME" envDefault:"Record Service"`

	UploadMaxBytes   int64         `env:"RECORDS_UPLOAD_MAX_BYTES" envDefault:"20971520"`
	UploadMaxRows    int           `env:"RECORDS_UPLOAD_MAX_ROWS" envDefault:"500000"`
	UploadMaxColumns int           `env:"RECORDS_UPLOAD_MAX_COLUMNS" envDefault:"300"`
	BulkInsertChunk  int           `env:"RECORDS_BULK_INSERT_CHUNK" envDefault:"100"`
	MaxPageSize      int           `env:"RECORDS_MAX_PAGE_SIZE" envDefault:"100"`
	JobStateTTL      time.Duration `env:"RECORDS_JOB_STATE_TTL" envDefault:"1h"`
}

func (c *Config) IsProduction() bool { return c.AppEnv == EnvProduction }

func Load() (*Config, error) {
	_ = godotenv.Load()
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	// Refresh cookies travel cross-site, so origins must be listed explicitly.
	for _, origin := range cfg.CORSOrigins {
		if origin == "*" {
			return nil, errors.New("RECORDS_CORS_ORIGINS must list origins explicitly: credentialed requests reject a wildcard")
		}
	}
	return cfg, nil
}
