// Package config holds the viper-backed runtime configuration. Values come
// from config.yaml, NINBOX_* environment variables and built-in defaults, in
// that order of precedence (env highest).
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config keys.
const (
	// Storage
	KeyDBPath = "db.path"

	// HTTP surface
	KeyHTTPAddr           = "http.addr"
	KeyHTTPAllowedOrigins = "http.allowed-origins"

	// Transport
	KeyBotToken = "telegram.bot-token"

	// Model providers
	KeyOpenAIKey       = "openai.api-key"
	KeyAnthropicKey    = "anthropic.api-key"
	KeyAnthropicModel  = "anthropic.model"
	KeyAgentProvider   = "agent.provider" // "openai" | "anthropic"

	// Reminder scheduler
	KeyReminderInterval = "reminder.interval"
)

var v *viper.Viper

// Initialize sets up the viper singleton. Safe to call more than once; each
// call rebuilds the instance (used by tests for isolation).
func Initialize() error {
	v = viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config/ninbox")

	v.SetEnvPrefix("NINBOX")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	registerDefaults()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			// No config file is fine; env and defaults carry the day.
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}
	return nil
}

func registerDefaults() {
	v.SetDefault(KeyDBPath, "ninbox.db")
	v.SetDefault(KeyHTTPAddr, ":8080")
	v.SetDefault(KeyHTTPAllowedOrigins, []string{})
	v.SetDefault(KeyAgentProvider, "openai")
	v.SetDefault(KeyAnthropicModel, "")
	v.SetDefault(KeyReminderInterval, time.Minute)
}

// GetString returns a string config value.
func GetString(key string) string {
	if v == nil {
		return ""
	}
	return v.GetString(key)
}

// GetBool returns a boolean config value.
func GetBool(key string) bool {
	if v == nil {
		return false
	}
	return v.GetBool(key)
}

// GetInt returns an integer config value.
func GetInt(key string) int {
	if v == nil {
		return 0
	}
	return v.GetInt(key)
}

// GetDuration returns a duration config value.
func GetDuration(key string) time.Duration {
	if v == nil {
		return 0
	}
	return v.GetDuration(key)
}

// GetStringSlice returns a string-list config value.
func GetStringSlice(key string) []string {
	if v == nil {
		return nil
	}
	return v.GetStringSlice(key)
}

// Set overrides a value on the live instance. Intended for flag binding and
// tests.
func Set(key string, value any) {
	if v == nil {
		return
	}
	v.Set(key, value)
}
