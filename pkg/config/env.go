package config

import (
	"os"
	"strconv"
	"time"
)

// GetEnv returns the environment variable value for key, or def if unset or empty.
func GetEnv(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

// GetEnvInt returns the environment variable value for key parsed as int, or def if unset or invalid.
func GetEnvInt(key string, def int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return def
}

// GetEnvDuration parses key as a time.Duration ("30s") or, failing that, as
// whole seconds ("30"). Returns def if unset or invalid.
func GetEnvDuration(key string, def time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return def
	}
	if d, err := time.ParseDuration(val); err == nil {
		return d
	}
	if n, err := strconv.ParseFloat(val, 64); err == nil {
		return time.Duration(n * float64(time.Second))
	}
	return def
}

// GetEnvBool accepts the strconv.ParseBool spellings plus yes/no and on/off.
func GetEnvBool(key string, def bool) bool {
	switch val := os.Getenv(key); val {
	case "":
		return def
	case "yes", "YES", "Yes", "on", "ON", "On":
		return true
	case "no", "NO", "No", "off", "OFF", "Off":
		return false
	default:
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
		return def
	}
}
