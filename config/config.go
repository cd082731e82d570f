package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	Host           string
	Port           string
	Env            string
	TTL            time.Duration
	MaxUploadBytes int64
	UploadDir      string
}

func Load() Config {
	host := getEnv("HOST", "0.0.0.0")
	port := getEnv("PORT", "8080")
	env := getEnv("APP_ENV", "dev")
	ttlSeconds := getEnvAsInt("TTL", 1800)
	if ttlSeconds <= 0 {
		ttlSeconds = 1800
	}
	maxUpload := getEnvAsInt64("MAX_UPLOAD_BYTES", 512<<20)
	uploadDir := getEnv("UPLOAD_DIR", "uploads")

	return Config{
		Host:           host,
		Port:           port,
		Env:            env,
		TTL:            time.Duration(ttlSeconds) * time.Second,
		MaxUploadBytes: maxUpload,
		UploadDir:      uploadDir,
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}
