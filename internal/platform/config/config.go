package config

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	defaultEnvFile      = ".env"
	defaultPort         = "8080"
	defaultReadTimeout  = 15 * time.Second
	defaultWriteTimeout = 30 * time.Second
	defaultIdleTimeout  = 120 * time.Second
	defaultCountry      = "RW"
	defaultCurrency     = "RWF"
	defaultMailTopic    = "order-mail-jobs"
)

// Config captures all runtime configuration organised by concern.
type Config struct {
	Server    ServerConfig
	Firebase  FirebaseConfig
	Firestore FirestoreConfig
	PubSub    PubSubConfig
	Commerce  CommerceConfig
}

// ServerConfig configures HTTP server parameters.
type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// FirebaseConfig stores Firebase project settings used for admin token verification.
type FirebaseConfig struct {
	ProjectID       string
	CredentialsFile string
}

// FirestoreConfig stores database parameters.
type FirestoreConfig struct {
	ProjectID    string
	EmulatorHost string
}

// PubSubConfig names the topic used for asynchronous mail dispatch.
type PubSubConfig struct {
	ProjectID string
	MailTopic string
}

// CommerceConfig carries storefront defaults applied when requests omit them.
type CommerceConfig struct {
	DefaultCountry  string
	DefaultCurrency string
}

// Load reads configuration from the environment, optionally merging a local
// .env file (environment variables win).
func Load() (Config, error) {
	values, err := EnvironmentValues()
	if err != nil {
		return Config{}, err
	}

	lookup := func(key, fallback string) string {
		if value, ok := values[key]; ok && strings.TrimSpace(value) != "" {
			return strings.TrimSpace(value)
		}
		return fallback
	}

	cfg := Config{
		Server: ServerConfig{
			Port:         lookup("API_PORT", defaultPort),
			ReadTimeout:  durationValue(values, "API_READ_TIMEOUT", defaultReadTimeout),
			WriteTimeout: durationValue(values, "API_WRITE_TIMEOUT", defaultWriteTimeout),
			IdleTimeout:  durationValue(values, "API_IDLE_TIMEOUT", defaultIdleTimeout),
		},
		Firebase: FirebaseConfig{
			ProjectID:       lookup("API_FIREBASE_PROJECT_ID", ""),
			CredentialsFile: lookup("API_FIREBASE_CREDENTIALS_FILE", ""),
		},
		Firestore: FirestoreConfig{
			ProjectID:    lookup("API_FIRESTORE_PROJECT_ID", lookup("API_FIREBASE_PROJECT_ID", "")),
			EmulatorHost: lookup("API_FIRESTORE_EMULATOR_HOST", ""),
		},
		PubSub: PubSubConfig{
			ProjectID: lookup("API_PUBSUB_PROJECT_ID", lookup("API_FIREBASE_PROJECT_ID", "")),
			MailTopic: lookup("API_PUBSUB_MAIL_TOPIC", defaultMailTopic),
		},
		Commerce: CommerceConfig{
			DefaultCountry:  strings.ToUpper(lookup("API_DEFAULT_COUNTRY", defaultCountry)),
			DefaultCurrency: strings.ToUpper(lookup("API_DEFAULT_CURRENCY", defaultCurrency)),
		},
	}

	if len(cfg.Commerce.DefaultCountry) != 2 {
		return Config{}, fmt.Errorf("config: API_DEFAULT_COUNTRY must be a 2-letter code, got %q", cfg.Commerce.DefaultCountry)
	}

	return cfg, nil
}

// EnvironmentValues merges the optional .env file with the process environment.
// Process environment variables take precedence.
func EnvironmentValues() (map[string]string, error) {
	values, err := readEnvFile(defaultEnvFile)
	if err != nil {
		return nil, err
	}
	for _, entry := range os.Environ() {
		parts := strings.SplitN(entry, "=", 2)
		if len(parts) != 2 {
			continue
		}
		values[parts[0]] = parts[1]
	}
	return values, nil
}

func readEnvFile(path string) (map[string]string, error) {
	values := make(map[string]string)

	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return values, nil
		}
		return nil, fmt.Errorf("config: open %s: %w", path, err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		value := strings.Trim(strings.TrimSpace(parts[1]), `"'`)
		if key == "" {
			continue
		}
		values[key] = value
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return values, nil
}

func durationValue(values map[string]string, key string, fallback time.Duration) time.Duration {
	raw := strings.TrimSpace(values[key])
	if raw == "" {
		return fallback
	}
	if parsed, err := time.ParseDuration(raw); err == nil && parsed > 0 {
		return parsed
	}
	if seconds, err := strconv.Atoi(raw); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	return fallback
}
