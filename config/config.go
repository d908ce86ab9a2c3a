package config

import (
	"log"
	"os"
	"strconv"
	"strings"
)

// AppConfig holds environment driven configuration values.
// Sensitive data should never have defaults inside code and must be provided via the environment.
type AppConfig struct {
	AppPort   string
	GinMode   string
	JWTSecret string

	// Telegram Mini-App authentication and outbound notifications
	TelegramBotToken string

	DatabaseURI string
	DBHost      string
	DBPort      string
	DBUser      string
	DBPassword  string
	DBName      string

	// Redis for caching, rate windows, quotas and token blacklist
	RedisHost     string
	RedisPort     int
	RedisDB       int
	RedisPassword string

	AllowedOrigins []string

	// Logging configuration
	LogLevel      string
	LogPath       string
	GinPath       string
	LogMaxSizeMB  int
	LogMaxBackups int
	LogMaxAgeDays int
	LogCompress   bool

	// Abuse prevention
	RateLimitPerMinute int

	// Free-tier daily quotas (premium bypasses)
	FreeLettersPerDay int

	// Reward amounts
	CheckinBaseXP     int
	CheckinComebackXP int
	LetterRewardXP    int
	QuestRewardXP     int
	ProfileRewardXP   int

	// Dead-man-switch defaults, overridable per user
	DeadManWindowSec     int
	ReminderIntervalSec  int
	SchedulerIntervalSec int
	StreakRiskCooldownH  int
}

var (
	cfg    AppConfig
	loaded bool
)

// Load reads configuration from the environment with sane defaults for
// everything except secrets.
func Load() AppConfig {
	cfg = AppConfig{
		AppPort:   getEnv("APP_PORT", "8080"),
		GinMode:   getEnv("GIN_MODE", "release"),
		JWTSecret: getEnv("JWT_SECRET", ""),

		TelegramBotToken: getEnv("TELEGRAM_BOT_TOKEN", ""),

		DatabaseURI: getEnv("DATABASE_URI", ""),
		DBHost:      getEnv("DB_HOST", "127.0.0.1"),
		DBPort:      getEnv("DB_PORT", "3306"),
		DBUser:      getEnv("DB_USER", "imalive"),
		DBPassword:  getEnv("DB_PASSWORD", ""),
		DBName:      getEnv("DB_NAME", "imalive"),

		RedisHost:     getEnv("REDIS_HOST", "127.0.0.1"),
		RedisPort:     getEnvInt("REDIS_PORT", 6379),
		RedisDB:       getEnvInt("REDIS_DB", 0),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),

		AllowedOrigins: splitCSV(getEnv("ALLOWED_ORIGINS", "*")),

		LogLevel:      getEnv("LOG_LEVEL", "info"),
		LogPath:       getEnv("LOG_PATH", "logs/app.log"),
		GinPath:       getEnv("GIN_LOG_PATH", "logs/gin.log"),
		LogMaxSizeMB:  getEnvInt("LOG_MAX_SIZE_MB", 100),
		LogMaxBackups: getEnvInt("LOG_MAX_BACKUPS", 3),
		LogMaxAgeDays: getEnvInt("LOG_MAX_AGE_DAYS", 7),
		LogCompress:   getEnvBool("LOG_COMPRESS", true),

		RateLimitPerMinute: getEnvInt("RATE_LIMIT_PER_MINUTE", 60),

		FreeLettersPerDay: getEnvInt("FREE_LETTERS_PER_DAY", 3),

		CheckinBaseXP:     getEnvInt("CHECKIN_BASE_XP", 10),
		CheckinComebackXP: getEnvInt("CHECKIN_COMEBACK_XP", 25),
		LetterRewardXP:    getEnvInt("LETTER_REWARD_XP", 30),
		QuestRewardXP:     getEnvInt("QUEST_REWARD_XP", 20),
		ProfileRewardXP:   getEnvInt("PROFILE_REWARD_XP", 15),

		DeadManWindowSec:     getEnvInt("DEADMAN_WINDOW_SEC", 48*3600),
		ReminderIntervalSec:  getEnvInt("REMINDER_INTERVAL_SEC", 24*3600),
		SchedulerIntervalSec: getEnvInt("SCHEDULER_INTERVAL_SEC", 300),
		StreakRiskCooldownH:  getEnvInt("STREAK_RISK_COOLDOWN_H", 12),
	}

	if cfg.JWTSecret == "" {
		log.Fatal("JWT_SECRET must be set in environment variables")
	}

	loaded = true
	return cfg
}

// Get returns the cached configuration, loading it if necessary.
func Get() AppConfig {
	if !loaded {
		return Load()
	}
	return cfg
}

// SetForTesting replaces the cached configuration. Tests only.
func SetForTesting(c AppConfig) {
	cfg = c
	loaded = true
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			return n
		}
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return defaultVal
}

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
