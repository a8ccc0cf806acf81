// Package config loads process configuration from the environment, with an
// optional .env file. Values are fixed at startup.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/DoyleJ11/train-seat-backend/internal/inventory"
)

var ErrInvalidConfig = errors.New("invalid config")

type Config struct {
	Env  string // "dev" or "prod"; picks the log encoder
	Port string
	// OriginPatterns are extra hosts allowed to open /ws cross-origin,
	// e.g. "localhost:*".
	OriginPatterns []string

	CoachCount    int
	SeatsPerCoach int
	UnitPrice     int
	Train         inventory.TrainMeta

	HoldTTL             time.Duration // 0 disables hold expiry
	ReleaseOnDisconnect bool

	RedisAddr string // empty disables rate limiting
	RateLimit RateLimitConfig

	RabbitURL string // empty disables booking notifications
}

type RateLimitConfig struct {
	Capacity       int
	RefillInterval time.Duration
	TTL            time.Duration
	Prefix         string
}

// Load reads .env (if present) and the environment. It never fails on a
// missing .env; malformed values are reported by Validate.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	cfg := Config{
		Env:            envStr("APP_ENV", "dev"),
		Port:           envStr("PORT", "3000"),
		OriginPatterns: envList("ALLOWED_ORIGINS"),
		CoachCount:     envInt("COACH_COUNT", 6),
		SeatsPerCoach:  envInt("SEATS_PER_COACH", 20),
		UnitPrice:      envInt("UNIT_PRICE", 20),
		Train: inventory.TrainMeta{
			TrainNumber:   envStr("TRAIN_NUMBER", "12345"),
			DepartureTime: envStr("DEPARTURE_TIME", "10:00 AM"),
			ArrivalTime:   envStr("ARRIVAL_TIME", "2:00 PM"),
		},
		HoldTTL:             envDur("HOLD_TTL", 0),
		ReleaseOnDisconnect: envBool("RELEASE_ON_DISCONNECT", false),
		RedisAddr:           envStr("REDIS_ADDR", ""),
		RateLimit: RateLimitConfig{
			Capacity:       envInt("RATE_LIMIT_CAPACITY", 60),
			RefillInterval: envDur("RATE_LIMIT_REFILL_INTERVAL", time.Second),
			TTL:            envDur("RATE_LIMIT_TTL", 10*time.Minute),
			Prefix:         envStr("RATE_LIMIT_PREFIX", "rl"),
		},
		RabbitURL: envStr("RABBITMQ_URL", ""),
	}
	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	switch {
	case c.CoachCount <= 0:
		return fmt.Errorf("%w: COACH_COUNT must be positive, got %d", ErrInvalidConfig, c.CoachCount)
	case c.SeatsPerCoach <= 0:
		return fmt.Errorf("%w: SEATS_PER_COACH must be positive, got %d", ErrInvalidConfig, c.SeatsPerCoach)
	case c.UnitPrice < 0:
		return fmt.Errorf("%w: UNIT_PRICE must not be negative, got %d", ErrInvalidConfig, c.UnitPrice)
	case c.HoldTTL < 0:
		return fmt.Errorf("%w: HOLD_TTL must not be negative, got %s", ErrInvalidConfig, c.HoldTTL)
	case c.Port == "":
		return fmt.Errorf("%w: PORT is empty", ErrInvalidConfig)
	case c.RateLimit.Capacity < 1 || c.RateLimit.RefillInterval <= 0:
		return fmt.Errorf("%w: rate limit needs capacity >= 1 and a positive refill interval", ErrInvalidConfig)
	case c.RateLimit.TTL < time.Second:
		// redis EXPIRE takes whole seconds; 0 would drop the bucket on every request
		return fmt.Errorf("%w: RATE_LIMIT_TTL must be at least 1s, got %s", ErrInvalidConfig, c.RateLimit.TTL)
	}
	return nil
}

func (c Config) Addr() string { return ":" + c.Port }

func envStr(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}

func envList(k string) []string {
	var out []string
	for _, p := range strings.Split(os.Getenv(k), ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func envBool(k string, d bool) bool {
	v := os.Getenv(k)
	if v == "" {
		return d
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return d
	}
	return b
}

// envInt keeps a malformed value as -1 so Validate rejects it instead of
// silently falling back.
func envInt(k string, d int) int {
	v := os.Getenv(k)
	if v == "" {
		return d
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return -1
	}
	return n
}

func envDur(k string, d time.Duration) time.Duration {
	v := os.Getenv(k)
	if v == "" {
		return d
	}
	dur, err := time.ParseDuration(v)
	if err != nil {
		return -1
	}
	return dur
}
