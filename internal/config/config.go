package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

type Config struct {
	ListenAddr string
	DBDSN      string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Azure AI Content Safety
	ContentSafetyEndpoint   string
	ContentSafetyKey        string
	ContentSafetyAPIVersion string

	// Azure Blob Storage
	BlobAccount   string
	BlobKey       string
	BlobContainer string

	RateLimitPerMinute int
	HistoryPageSize    int

	// cron spec for the daily usage reset
	ResetCron string
}

func Load() Config {
	// DSN demo:
	// app:apppass@tcp(127.0.0.1:3306)/moderation?charset=utf8mb4&parseTime=true&loc=Local
	dsn := os.Getenv("DB_DSN")
	if dsn == "" {
		dsn = fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=true&loc=Local",
			"app", "apppass", "127.0.0.1", "3306", "moderation",
		)
	}

	listenAddr := os.Getenv("LISTEN_ADDR")
	if listenAddr == "" {
		listenAddr = ":8080"
	}

	redisAddr := os.Getenv("REDIS_ADDR")
	if redisAddr == "" {
		redisAddr = "127.0.0.1:6379"
	}

	redisDB := 0
	if v := os.Getenv("REDIS_DB"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			redisDB = n
		}
	}

	endpoint := strings.TrimRight(os.Getenv("AZURE_CONTENT_ENDPOINT"), "/")

	apiVersion := os.Getenv("AZURE_CONTENT_API_VERSION")
	if apiVersion == "" {
		apiVersion = "2024-09-01"
	}

	ratePerMinute := 30
	if v := os.Getenv("RATE_LIMIT_PER_MINUTE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			ratePerMinute = n
		}
	}

	pageSize := 20
	if v := os.Getenv("HISTORY_PAGE_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			pageSize = n
		}
	}

	resetCron := os.Getenv("RESET_CRON")
	if resetCron == "" {
		resetCron = "0 0 * * *"
	}

	return Config{
		ListenAddr: listenAddr,
		DBDSN:      dsn,

		RedisAddr:     redisAddr,
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       redisDB,

		ContentSafetyEndpoint:   endpoint,
		ContentSafetyKey:        os.Getenv("AZURE_CONTENT_KEY"),
		ContentSafetyAPIVersion: apiVersion,

		BlobAccount:   os.Getenv("AZURE_BLOB_ACCOUNT"),
		BlobKey:       os.Getenv("AZURE_BLOB_KEY"),
		BlobContainer: os.Getenv("AZURE_BLOB_CONTAINER"),

		RateLimitPerMinute: ratePerMinute,
		HistoryPageSize:    pageSize,

		ResetCron: resetCron,
	}
}
