package utils

import (
	"fmt"
	"math/rand"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cast"
)

// LoadEnv loads .env files for the given environment. Files are optional;
// the caller decides whether a missing file matters. Load order:
// .env.<env>.local, .env.<env>, .env.local, .env — first value wins, so the
// most specific file takes precedence.
func LoadEnv(env string) error {
	candidates := []string{".env.local", ".env"}
	if env != "" {
		candidates = append([]string{
			fmt.Sprintf(".env.%s.local", env),
			fmt.Sprintf(".env.%s", env),
		}, candidates...)
	}

	loaded := false
	for _, name := range candidates {
		if _, err := os.Stat(name); err != nil {
			continue
		}
		if err := godotenv.Load(name); err != nil {
			return fmt.Errorf("load %s: %w", name, err)
		}
		loaded = true
	}
	if !loaded {
		return fmt.Errorf("no .env file found")
	}
	return nil
}

// GetEnv returns the trimmed value of an environment variable.
func GetEnv(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

// GetBoolEnv parses a boolean environment variable; empty or invalid values
// are false.
func GetBoolEnv(key string) bool {
	return cast.ToBool(GetEnv(key))
}

// GetIntEnv parses an integer environment variable; empty or invalid values
// are zero.
func GetIntEnv(key string) int64 {
	return cast.ToInt64(GetEnv(key))
}

// GetDurationEnv parses a duration environment variable ("2s", "500ms");
// empty or invalid values are zero.
func GetDurationEnv(key string) time.Duration {
	v := GetEnv(key)
	if v == "" {
		return 0
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0
	}
	return d
}

const randChars = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// RandText returns a random alphanumeric string of length n.
func RandText(n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = randChars[rand.Intn(len(randChars))]
	}
	return string(b)
}
