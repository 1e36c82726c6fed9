// Package config loads the pipeline's typed configuration from the
// environment and fails fast, before any component starts, if a
// mandatory variable is missing.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	KafkaBrokers []string
	RedisAddr    string
	RedisDB      int
	BadgerDir    string
	DeltaLogDir  string
	RulesPath    string

	UpstreamGRPCAddr     string
	UpstreamToken        string
	SinkBaseURL          string
	ConsumerNameOverride string
	ClusterBadgerDir     string
	DeltaLogIndexDir     string

	HTTPAddr string // /metrics, /healthz

	ConfidenceFloor   float64
	HotTTL            time.Duration
	WarmToColdAfter   time.Duration
	AlertCooldown     time.Duration
	TopKSize          int
	BackpressureQueue int64

	ConsumerCount     int
	DeltaLogRetention time.Duration

	BackpressureLagWarn    time.Duration
	BackpressureLagCrit    time.Duration
	BackpressureBufferWarn int64
	BackpressureBufferCrit int64

	DiscordWebhookURL string
	TelegramBotToken  string
	TelegramChatID    string
	AlertRatePerSec   float64
	AlertBurst        int
	AlertQueueDir     string
	AlertQueueCap     int

	ScorerWorkers int
}

// Load reads every variable, collecting all missing-mandatory errors
// together rather than failing on the first one, so an operator fixes a
// misconfigured environment in one pass.
func Load() (Config, error) {
	var errs []error
	get := func(name string) string {
		v := os.Getenv(name)
		if v == "" {
			errs = append(errs, fmt.Errorf("missing required env var %s", name))
		}
		return v
	}
	getDefault := func(name, def string) string {
		if v := os.Getenv(name); v != "" {
			return v
		}
		return def
	}
	getFloat := func(name string, def float64) float64 {
		v := os.Getenv(name)
		if v == "" {
			return def
		}
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("env var %s: %w", name, err))
			return def
		}
		return f
	}
	getInt := func(name string, def int) int {
		v := os.Getenv(name)
		if v == "" {
			return def
		}
		i, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("env var %s: %w", name, err))
			return def
		}
		return i
	}
	getDuration := func(name string, def time.Duration) time.Duration {
		v := os.Getenv(name)
		if v == "" {
			return def
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("env var %s: %w", name, err))
			return def
		}
		return d
	}
	// getSeconds reads an integer count of seconds (the *_SECONDS/*_S env
	// var convention spec.md §6 uses) and returns it as a Duration.
	getSeconds := func(name string, defSeconds int) time.Duration {
		return time.Duration(getInt(name, defSeconds)) * time.Second
	}

	cfg := Config{
		KafkaBrokers:         strings.Split(getDefault("KAFKA_BROKERS", "localhost:9092"), ","),
		RedisAddr:            get("COUNTER_STORE_URL"),
		RedisDB:              getInt("REDIS_DB", 0),
		BadgerDir:            getDefault("BADGER_DIR", "./data/badger"),
		DeltaLogDir:          getDefault("DELTA_LOG_DIR", "./data/deltalog"),
		RulesPath:            getDefault("RULES_PATH", "./config/rules.yaml"),
		UpstreamGRPCAddr:     get("STREAM_ENDPOINT"),
		UpstreamToken:        get("STREAM_TOKEN"),
		SinkBaseURL:          get("APPEND_SINK_URL"),
		ConsumerNameOverride: getDefault("CONSUMER_NAME", ""),
		ClusterBadgerDir:     getDefault("CLUSTER_BADGER_DIR", "./data/cluster"),
		DeltaLogIndexDir:     getDefault("DELTA_LOG_INDEX_DIR", "./data/deltalog-idx"),
		HTTPAddr:             getDefault("HTTP_ADDR", ":9100"),
		ConfidenceFloor:      getFloat("MIN_SWAP_CONFIDENCE", 0.7),
		HotTTL:               getSeconds("HOT_TOKEN_TTL_SECONDS", 3600),
		WarmToColdAfter:      getSeconds("WARM_TOKEN_TTL_SECONDS", 1800),
		AlertCooldown:        getSeconds("ALERT_COOLDOWN_SECONDS", 300),
		TopKSize:             getInt("TOP_K_SIZE", 3),
		BackpressureQueue:    int64(getInt("BACKPRESSURE_QUEUE_CAPACITY", 100_000)),

		ConsumerCount:     getInt("STREAM_CONSUMER_COUNT", 1),
		DeltaLogRetention: getDuration("DELTA_LOG_RETENTION", 48*time.Hour),

		BackpressureLagWarn:    getSeconds("BP_LAG_WARN_S", 2),
		BackpressureLagCrit:    getSeconds("BP_LAG_CRIT_S", 10),
		BackpressureBufferWarn: int64(getInt("BP_BUF_WARN", 10_000)),
		BackpressureBufferCrit: int64(getInt("BP_BUF_CRIT", 50_000)),

		DiscordWebhookURL: getDefault("DISCORD_WEBHOOK_URL", ""),
		TelegramBotToken:  getDefault("TELEGRAM_BOT_TOKEN", ""),
		TelegramChatID:    getDefault("TELEGRAM_CHAT_ID", ""),
		AlertRatePerSec:   getFloat("ALERT_RATE_PER_SEC", 1.0),
		AlertBurst:        getInt("ALERT_BURST", 5),
		AlertQueueDir:     getDefault("ALERT_QUEUE_DIR", "./data/alerts"),
		AlertQueueCap:     getInt("ALERT_QUEUE_CAPACITY", 10_000),

		ScorerWorkers: getInt("SCORER_WORKERS", 4),
	}

	if len(errs) > 0 {
		return Config{}, fmt.Errorf("config: %d error(s): %w", len(errs), joinErrs(errs))
	}
	return cfg, nil
}

func joinErrs(errs []error) error {
	msg := ""
	for i, e := range errs {
		if i > 0 {
			msg += "; "
		}
		msg += e.Error()
	}
	return fmt.Errorf("%s", msg)
}
