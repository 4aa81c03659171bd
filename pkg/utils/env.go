package utils

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cast"
)

// LoadEnv loads .env.<env> (when env is set) followed by .env.
// Variables already present in the process environment are never overridden.
func LoadEnv(env string) error {
	var files []string
	if env != "" {
		candidate := fmt.Sprintf(".env.%s", env)
		if _, err := os.Stat(candidate); err == nil {
			files = append(files, candidate)
		}
	}
	if _, err := os.Stat(".env"); err == nil {
		files = append(files, ".env")
	}
	if len(files) == 0 {
		return fmt.Errorf("no env file found for %q", env)
	}
	return godotenv.Load(files...)
}

// GetEnv returns the trimmed value of an environment variable
func GetEnv(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

// GetIntEnv returns 0 when the variable is unset or not a number
func GetIntEnv(key string) int64 {
	v := GetEnv(key)
	if v == "" {
		return 0
	}
	n, err := cast.ToInt64E(v)
	if err != nil {
		return 0
	}
	return n
}

// GetBoolEnv accepts the usual spellings of true (1, t, true, yes, on)
func GetBoolEnv(key string) bool {
	v := strings.ToLower(GetEnv(key))
	switch v {
	case "yes", "on", "y":
		return true
	}
	return cast.ToBool(v)
}
