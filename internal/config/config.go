package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config aggregates all client settings.
type Config struct {
	API    APIConfig
	Upload UploadConfig
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	api, err := loadAPIConfig()
	if err != nil {
		return nil, err
	}

	upload, err := loadUploadConfig()
	if err != nil {
		return nil, err
	}

	return &Config{API: api, Upload: upload}, nil
}

// APIConfig describes how to reach the conversation service.
type APIConfig struct {
	BaseURL        string
	Token          string
	RequestTimeout time.Duration
	// StreamTimeout bounds a whole streaming exchange. Zero means no
	// deadline; the stream is then only bounded by target switches.
	StreamTimeout time.Duration
}

// UploadConfig bounds client-side file uploads.
type UploadConfig struct {
	MaxBytes int64
}

const (
	defaultBaseURL        = "http://localhost:8000"
	defaultRequestTimeout = 30 * time.Second
	// The service rejects uploads above 10 MiB; checking locally avoids
	// sending a body that is guaranteed to fail.
	defaultUploadMaxBytes = 10 << 20
)

func loadAPIConfig() (APIConfig, error) {
	base := getEnvOrDefault("CHAT_API_BASE_URL", defaultBaseURL)
	parsed, err := url.Parse(base)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return APIConfig{}, fmt.Errorf("invalid CHAT_API_BASE_URL value %q", base)
	}

	requestTimeout := defaultRequestTimeout
	if seconds, err := parseOptionalIntEnv("CHAT_REQUEST_TIMEOUT"); err != nil {
		return APIConfig{}, err
	} else if seconds != nil {
		if *seconds <= 0 {
			return APIConfig{}, fmt.Errorf("CHAT_REQUEST_TIMEOUT must be positive, got %d", *seconds)
		}
		requestTimeout = time.Duration(*seconds) * time.Second
	}

	var streamTimeout time.Duration
	if seconds, err := parseOptionalIntEnv("CHAT_STREAM_TIMEOUT"); err != nil {
		return APIConfig{}, err
	} else if seconds != nil {
		if *seconds < 0 {
			return APIConfig{}, fmt.Errorf("CHAT_STREAM_TIMEOUT must not be negative, got %d", *seconds)
		}
		streamTimeout = time.Duration(*seconds) * time.Second
	}

	return APIConfig{
		BaseURL:        strings.TrimSuffix(base, "/"),
		Token:          strings.TrimSpace(os.Getenv("CHAT_API_TOKEN")),
		RequestTimeout: requestTimeout,
		StreamTimeout:  streamTimeout,
	}, nil
}

func loadUploadConfig() (UploadConfig, error) {
	maxBytes := int64(defaultUploadMaxBytes)
	if override, err := parseOptionalInt64Env("CHAT_UPLOAD_MAX_BYTES"); err != nil {
		return UploadConfig{}, err
	} else if override != nil {
		if *override <= 0 {
			return UploadConfig{}, fmt.Errorf("CHAT_UPLOAD_MAX_BYTES must be positive, got %d", *override)
		}
		maxBytes = *override
	}

	return UploadConfig{MaxBytes: maxBytes}, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func parseOptionalIntEnv(key string) (*int, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.Atoi(value)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}

func parseOptionalInt64Env(key string) (*int64, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}
