package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"pill-reminder/internal/utils"
)

type Config struct {
	Telegram struct {
		Token string
	}
	Server struct {
		Address   string
		JWTSecret string
	}
	Database struct {
		Path string
		URL  string
	}
	Schedule struct {
		Timezone       string
		ReminderTime   string
		EscalationTime string
		WindowDays     int
	}
	Push struct {
		ExpoURL         string
		ExpoAccessToken string
		SNSEnabled      bool
		AWSRegion       string
		Timeout         time.Duration
	}
	Kafka struct {
		Brokers []string
		Topic   string
	}
}

func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("⚠️ .env not loaded: %v", err)
	}

	cfg := &Config{}
	cfg.Telegram.Token = getEnv("TG_TOKEN", "")
	cfg.Server.Address = getEnv("HTTP_ADDRESS", ":8080")
	cfg.Server.JWTSecret = getEnv("JWT_SECRET", "")
	cfg.Database.Path = getEnv("DB_PATH", "/data/pill-reminder.db")
	cfg.Database.URL = getEnv("DATABASE_URL", "")
	cfg.Schedule.Timezone = getEnv("TIMEZONE", utils.DefaultTimezone)
	cfg.Schedule.ReminderTime = getEnv("REMINDER_TIME", "20:00")
	cfg.Schedule.EscalationTime = getEnv("ESCALATION_TIME", "22:00")
	cfg.Push.ExpoURL = getEnv("EXPO_PUSH_URL", "https://exp.host/--/api/v2/push/send")
	cfg.Push.ExpoAccessToken = getEnv("EXPO_ACCESS_TOKEN", "")
	cfg.Push.AWSRegion = getEnv("AWS_REGION", "us-east-1")
	cfg.Kafka.Topic = getEnv("KAFKA_TOPIC", "pill-reminder.escalations")
	cfg.Kafka.Brokers = splitList(getEnv("KAFKA_BROKERS", ""))

	var err error
	if cfg.Schedule.WindowDays, err = getIntEnv("REMINDER_WINDOW_DAYS", 7); err != nil {
		return nil, err
	}
	if cfg.Push.SNSEnabled, err = getBoolEnv("SNS_ENABLED", false); err != nil {
		return nil, err
	}
	if cfg.Push.Timeout, err = getDurationEnv("PUSH_TIMEOUT", 10*time.Second); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	log.Printf("✅ Config loaded: http=%s, tz=%s, reminder=%s, escalation=%s, window=%d",
		cfg.Server.Address, cfg.Schedule.Timezone, cfg.Schedule.ReminderTime,
		cfg.Schedule.EscalationTime, cfg.Schedule.WindowDays)
	return cfg, nil
}

func (c *Config) Validate() error {
	var errs []error
	if _, err := utils.ParseHourMinute(c.Schedule.ReminderTime); err != nil {
		errs = append(errs, fmt.Errorf("REMINDER_TIME: %w", err))
	}
	if _, err := utils.ParseHourMinute(c.Schedule.EscalationTime); err != nil {
		errs = append(errs, fmt.Errorf("ESCALATION_TIME: %w", err))
	}
	if c.Schedule.WindowDays < 1 {
		errs = append(errs, fmt.Errorf("REMINDER_WINDOW_DAYS must be at least 1, got %d", c.Schedule.WindowDays))
	}
	if _, err := time.LoadLocation(c.Schedule.Timezone); err != nil {
		log.Printf("⚠️ TIMEZONE %q unavailable, falling back to a fixed offset: %v", c.Schedule.Timezone, err)
	}
	if c.Push.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("PUSH_TIMEOUT must be positive"))
	}
	return errors.Join(errs...)
}

// Location resolves the configured timezone.
func (c *Config) Location() *time.Location {
	return utils.LoadLocation(c.Schedule.Timezone)
}

func (c *Config) ReminderCutoff() utils.HourMinute {
	hm, _ := utils.ParseHourMinute(c.Schedule.ReminderTime)
	return hm
}

func (c *Config) EscalationAt() utils.HourMinute {
	hm, _ := utils.ParseHourMinute(c.Schedule.EscalationTime)
	return hm
}

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getIntEnv(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func getBoolEnv(key string, defaultValue bool) (bool, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %w", key, err)
	}
	return b, nil
}

func getDurationEnv(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
