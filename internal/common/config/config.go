package config

import (
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

type Config struct {
	Debug bool `env:"DEBUG" envDefault:"false"`

	Server struct {
		Port   int    `env:"PORT" envDefault:"8080"`
		Origin string `env:"ORIGIN" envDefault:"http://localhost:3000"`

		// Public base URL of this backend as seen from the attestation
		// service's companion app. Loopback/private values disable the
		// relay channel.
		PublicBaseURL string `env:"PUBLIC_BASE_URL" envDefault:"http://localhost:8080"`
	}

	Redis struct {
		Host     string `env:"REDIS_HOST" envDefault:"localhost"`
		Port     int    `env:"REDIS_PORT" envDefault:"6379"`
		Password string `env:"REDIS_PASSWORD" envDefault:""`
		DB       int    `env:"REDIS_DB" envDefault:"0"`
	}

	Telegram struct {
		BotToken string `env:"BOT_TOKEN,required"`
		Debug    bool   `env:"TELEGRAM_DEBUG" envDefault:"false"`
	}

	Attestation struct {
		BaseURL   string `env:"ATTESTATION_BASE_URL" envDefault:"https://api.reclaimprotocol.org"`
		AppID     string `env:"ATTESTATION_APP_ID,required"`
		AppSecret string `env:"ATTESTATION_APP_SECRET,required"`
	}

	Ledger struct {
		BaseURL string `env:"LEDGER_BASE_URL,required"`
		Token   string `env:"LEDGER_TOKEN" envDefault:""`
	}

	Verification struct {
		// Relay polling cadence. Ceiling = PollInterval * PollAttempts.
		PollInitialDelay time.Duration `env:"VERIFICATION_POLL_INITIAL_DELAY" envDefault:"3s"`
		PollInterval     time.Duration `env:"VERIFICATION_POLL_INTERVAL" envDefault:"2s"`
		PollAttempts     int           `env:"VERIFICATION_POLL_ATTEMPTS" envDefault:"30"`

		// Grace window during which SDK errors are held while the tab
		// is hidden. Delays error reporting only, never polling.
		HiddenGraceWindow time.Duration `env:"VERIFICATION_HIDDEN_GRACE_WINDOW" envDefault:"120s"`

		// TTL for proofs parked on the relay.
		RelayProofTTL time.Duration `env:"RELAY_PROOF_TTL" envDefault:"10m"`
	}
}

func Load() *Config {
	if err := godotenv.Load(); err != nil {
		// Игнорируем ошибку, если .env файл не найден
		// В production окружении переменные могут быть установлены напрямую
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		panic(err)
	}

	return cfg
}
