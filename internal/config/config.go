package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	HTTPAddr    string
	Environment string

	// DatabaseURL empty means the service runs on the in-memory store.
	DatabaseURL   string
	Migrate       bool
	MigrationsDir string

	// RedisAddr empty disables the queue board cache.
	RedisAddr string
	BoardTTL  time.Duration

	AvgConsultationMinutes int
	DefaultMaxCapacity     int
	NoShowTimeout          time.Duration

	WeightEmergency int
	WeightPriority  int
	WeightFollowUp  int
	WeightOnline    int
	WeightWalkIn    int

	ShutdownTimeout time.Duration
}

func Load() Config {
	// Optional .env for local runs; real deployments set the
	// environment directly.
	_ = godotenv.Load(".env")

	return Config{
		HTTPAddr:    readString("HTTP_ADDR", ":8080"),
		Environment: readString("APP_ENV", "production"),

		DatabaseURL:   os.Getenv("DATABASE_URL"),
		Migrate:       readBool("MIGRATE", true),
		MigrationsDir: readString("MIGRATIONS_DIR", "migrations"),

		RedisAddr: os.Getenv("REDIS_ADDR"),
		BoardTTL:  readDurationSeconds("REDIS_BOARD_TTL_SECONDS", 60),

		AvgConsultationMinutes: readInt("AVG_CONSULTATION_MINUTES", 10),
		DefaultMaxCapacity:     readInt("DEFAULT_MAX_CAPACITY", 6),
		NoShowTimeout:          readDurationMinutes("NO_SHOW_TIMEOUT_MINUTES", 15),

		WeightEmergency: readInt("WEIGHT_EMERGENCY", 1000),
		WeightPriority:  readInt("WEIGHT_PRIORITY", 500),
		WeightFollowUp:  readInt("WEIGHT_FOLLOWUP", 300),
		WeightOnline:    readInt("WEIGHT_ONLINE", 200),
		WeightWalkIn:    readInt("WEIGHT_WALKIN", 100),

		ShutdownTimeout: readDurationSeconds("SHUTDOWN_TIMEOUT_SECONDS", 10),
	}
}

func readString(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func readInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func readBool(key string, fallback bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func readDurationSeconds(key string, fallback int) time.Duration {
	return time.Duration(readInt(key, fallback)) * time.Second
}

func readDurationMinutes(key string, fallback int) time.Duration {
	return time.Duration(readInt(key, fallback)) * time.Minute
}
