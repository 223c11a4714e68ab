package config

import (
	"log"
	"os"
	"path/filepath"
	"runtime"
	"strconv"

	"github.com/joho/godotenv"
)

// Config stores the application configuration.
type Config struct {
	DataDir          string // per-user application data directory
	DBPath           string // sqlite database file
	LogPath          string // rotated log file, empty disables file logging
	LogLevel         string
	ListenAddr       string // HTTP shell listen address
	SampleRate       int    // canonical engine sample rate
	BufferSize       int    // requested frames per output buffer
	CacheBudgetBytes int64  // decoded-song cache budget
	DecodeWorkers    int    // parallel stem decodes per song load
	WatchLibrary     bool   // fsnotify watcher over imported stem files
}

// getEnv gets an environment variable or returns a default value.
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

// getEnvInt gets an environment variable as int or returns a default value.
func getEnvInt(key string, fallback int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return fallback
}

// getEnvInt64 gets an environment variable as int64 or returns a default value.
func getEnvInt64(key string, fallback int64) int64 {
	if value, exists := os.LookupEnv(key); exists {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return fallback
}

// getEnvBool gets an environment variable as bool or returns a default value.
func getEnvBool(key string, fallback bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return fallback
}

// defaultDataDir resolves the per-user application data directory.
func defaultDataDir() string {
	base, err := os.UserConfigDir()
	if err != nil {
		home, herr := os.UserHomeDir()
		if herr != nil {
			return ".stemdeck"
		}
		base = home
	}
	return filepath.Join(base, "stemdeck")
}

// defaultDecodeWorkers follows the logical CPU count, clamped to
// [2, 8] to keep memory spikes under control on big machines.
func defaultDecodeWorkers() int {
	n := runtime.NumCPU()
	if n < 2 {
		return 2
	}
	if n > 8 {
		return 8
	}
	return n
}

// Load loads configuration from environment variables (via .env file) or defaults.
func Load() *Config {
	// godotenv.Load will not override variables already set.
	err := godotenv.Load()
	if err != nil {
		log.Println("No .env file found, relying on existing environment variables and defaults.")
	}

	dataDir := getEnv("STEMDECK_DATA_DIR", defaultDataDir())

	return &Config{
		DataDir:          dataDir,
		DBPath:           getEnv("STEMDECK_DB_PATH", filepath.Join(dataDir, "stemdeck.db")),
		LogPath:          getEnv("STEMDECK_LOG_PATH", filepath.Join(dataDir, "logs", "stemdeck.log")),
		LogLevel:         getEnv("STEMDECK_LOG_LEVEL", "info"),
		ListenAddr:       getEnv("STEMDECK_LISTEN_ADDR", "127.0.0.1:8090"),
		SampleRate:       getEnvInt("STEMDECK_SAMPLE_RATE", 48000),
		BufferSize:       getEnvInt("STEMDECK_BUFFER_SIZE", 512),
		CacheBudgetBytes: getEnvInt64("STEMDECK_CACHE_BUDGET_BYTES", 2<<30),
		DecodeWorkers:    getEnvInt("STEMDECK_DECODE_WORKERS", defaultDecodeWorkers()),
		WatchLibrary:     getEnvBool("STEMDECK_WATCH_LIBRARY", true),
	}
}
