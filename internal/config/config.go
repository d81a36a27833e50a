package config

import (
	"log"
	"os"
	"strconv"
	"strings"
)

type Config struct {
	TelegramBotToken string
	DatabaseURL      string
	RedisURL         string
	BinancePollSecs  int

	HTTPPort int
	APIKey   string

	OpenAIAPIKey string
	OpenAIModel  string

	SSHPort                   int
	SSHHostKeyPath            string
	SSHAuthorizedFingerprints []string

	MonitorEnabled    bool
	MonitorInterval   string
	MonitorPollSecs   int
	MonitorTimeframes []string
	CandleHistoryBars int
}

func Load() *Config {
	cfg := &Config{
		TelegramBotToken: os.Getenv("TELEGRAM_BOT_TOKEN"),
		DatabaseURL:      os.Getenv("DATABASE_URL"),
		RedisURL:         os.Getenv("REDIS_URL"),
		APIKey:           strings.TrimSpace(os.Getenv("API_KEY")),
	}

	if cfg.TelegramBotToken == "" {
		log.Println("Warning: TELEGRAM_BOT_TOKEN not set")
	}
	if cfg.DatabaseURL == "" {
		log.Println("Warning: DATABASE_URL not set")
	}
	if cfg.RedisURL == "" {
		log.Println("Warning: REDIS_URL not set, defaulting to localhost:6379")
		cfg.RedisURL = "localhost:6379"
	}

	cfg.BinancePollSecs = 60
	if v := os.Getenv("BINANCE_POLL_SECS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.BinancePollSecs = n
		}
	}

	cfg.HTTPPort = 8080
	if v := strings.TrimSpace(os.Getenv("HTTP_PORT")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.HTTPPort = n
		}
	}

	cfg.OpenAIAPIKey = os.Getenv("OPENAI_API_KEY")
	if cfg.OpenAIAPIKey == "" {
		log.Println("Warning: OPENAI_API_KEY not set, signal briefings will be disabled")
	}

	cfg.OpenAIModel = strings.TrimSpace(os.Getenv("OPENAI_MODEL"))
	if cfg.OpenAIModel == "" {
		cfg.OpenAIModel = "gpt-4o-mini"
	}

	cfg.SSHPort = 2222
	if v := strings.TrimSpace(os.Getenv("SSH_PORT")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.SSHPort = n
		}
	}

	cfg.SSHHostKeyPath = strings.TrimSpace(os.Getenv("SSH_HOST_KEY_PATH"))
	if cfg.SSHHostKeyPath == "" {
		cfg.SSHHostKeyPath = ".ssh/pulsewave_host_key"
	}

	// Comma-separated SHA256 public key fingerprints allowed to open the
	// dashboard. Empty list means the SSH surface rejects everyone.
	if v := strings.TrimSpace(os.Getenv("SSH_AUTHORIZED_FINGERPRINTS")); v != "" {
		for _, fp := range strings.Split(v, ",") {
			if fp = strings.TrimSpace(fp); fp != "" {
				cfg.SSHAuthorizedFingerprints = append(cfg.SSHAuthorizedFingerprints, fp)
			}
		}
	}
	if len(cfg.SSHAuthorizedFingerprints) == 0 {
		log.Println("Warning: SSH_AUTHORIZED_FINGERPRINTS not set, SSH dashboard will deny all logins")
	}

	cfg.MonitorEnabled = !strings.EqualFold(strings.TrimSpace(os.Getenv("MONITOR_ENABLED")), "false")

	cfg.MonitorInterval = strings.TrimSpace(os.Getenv("MONITOR_INTERVAL"))
	if cfg.MonitorInterval == "" {
		cfg.MonitorInterval = "1h"
	}

	cfg.MonitorPollSecs = 300
	if v := strings.TrimSpace(os.Getenv("MONITOR_POLL_SECS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.MonitorPollSecs = n
		}
	}

	cfg.MonitorTimeframes = []string{"1h", "4h"}
	if v := strings.TrimSpace(os.Getenv("MONITOR_TIMEFRAMES")); v != "" {
		var tfs []string
		for _, tf := range strings.Split(v, ",") {
			if tf = strings.TrimSpace(tf); tf != "" {
				tfs = append(tfs, tf)
			}
		}
		if len(tfs) > 0 {
			cfg.MonitorTimeframes = tfs
		}
	}

	cfg.CandleHistoryBars = 400
	if v := strings.TrimSpace(os.Getenv("CANDLE_HISTORY_BARS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.CandleHistoryBars = n
		}
	}

	return cfg
}
