package config

import (
	"os"

	"gopkg.in/yaml.v3"
)

// Config top-level struct
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Postgres  PostgresConfig  `yaml:"postgres"`
	Redis     RedisConfig     `yaml:"redis"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	RateLimit RateLimitConfig `yaml:"ratelimit"`
	Payout    PayoutConfig    `yaml:"payout"`
	OTP       OTPConfig       `yaml:"otp"`
}

type ServerConfig struct {
	Port int `yaml:"port"`
}

type PostgresConfig struct {
	DSN string `yaml:"dsn"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

type RateLimitConfig struct {
	RPS   int `yaml:"rps"`
	Burst int `yaml:"burst"`
}

// PayoutConfig holds the B2C disbursement gateway settings.
type PayoutConfig struct {
	BaseURL            string `yaml:"base_url"`
	ShortCode          string `yaml:"short_code"`
	InitiatorName      string `yaml:"initiator_name"`
	SecurityCredential string `yaml:"security_credential"`
	ResultURL          string `yaml:"result_url"`
	QueueTimeoutURL    string `yaml:"queue_timeout_url"`
	TimeoutSeconds     int    `yaml:"timeout_seconds"`
}

// OTPConfig tunes the phone-verification store.
type OTPConfig struct {
	TTLSeconds     int `yaml:"ttl_seconds"`
	MaxSendPerHour int `yaml:"max_send_per_hour"`
	MaxAttempts    int `yaml:"max_attempts"`
}

// Load reads yaml file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	// secrets come from the environment, never the checked-in yaml
	if pw := os.Getenv("POSTGRES_PASSWORD"); pw != "" {
		cfg.Postgres.DSN = cfg.Postgres.DSN + " password=" + pw
	}
	if cred := os.Getenv("PAYOUT_SECURITY_CREDENTIAL"); cred != "" {
		cfg.Payout.SecurityCredential = cred
	}
	if cfg.Payout.TimeoutSeconds == 0 {
		cfg.Payout.TimeoutSeconds = 30
	}
	if cfg.OTP.TTLSeconds == 0 {
		cfg.OTP.TTLSeconds = 300
	}
	if cfg.OTP.MaxSendPerHour == 0 {
		cfg.OTP.MaxSendPerHour = 5
	}
	if cfg.OTP.MaxAttempts == 0 {
		cfg.OTP.MaxAttempts = 5
	}
	return &cfg, nil
}
