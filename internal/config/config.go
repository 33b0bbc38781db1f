// Package config loads server configuration from the environment: plain
// env vars with .env-file defaults, no config-file parser.
package config

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"limit/internal/crypto"
)

// Config holds every runtime knob the server reads from the environment.
type Config struct {
	ServerURL      string
	DatabasePath   string
	DatabasePool   int
	JWTSecret      string
	ServerSecret   string // base64 ECDH private scalar
	ServerPublic   string // base64 ECDH public point
	PerUserLimit   int
	MetricsAddr    string
	AuthRatePerMin int
	ListenAddr     string
}

var insecureJWTSecrets = map[string]bool{
	"":                                   true,
	"change-this-secret-in-production":   true,
	"change-me-use-a-long-random-string": true,
}

// Load reads environment variables (after applying any .env file in the
// working directory), persisting a freshly generated ECDH keypair on first
// run if none is configured. It logs and calls os.Exit(1) on a fatal
// misconfiguration.
func Load(logger *slog.Logger) Config {
	loadDotenv(".env")

	jwtSecret := os.Getenv("JWT_SECRET")
	if insecureJWTSecrets[jwtSecret] {
		logger.Error("JWT_SECRET is not set or is using an insecure default value",
			"hint", "generate one with: openssl rand -hex 32")
		os.Exit(1)
	}

	dataDir := getEnv("DATA_DIR", "./data")
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		logger.Error("failed to create data directory", "dir", dataDir, "error", err)
		os.Exit(1)
	}

	secretKey, publicKey, err := loadOrGenerateKeypair(filepath.Join(dataDir, "server.keys"))
	if err != nil {
		logger.Error("failed to load or generate server keypair", "error", err)
		os.Exit(1)
	}

	return Config{
		ServerURL:      getEnv("SERVER_URL", "https://localhost:8443"),
		DatabasePath:   getEnv("DATABASE_PATH", filepath.Join(dataDir, "limit.db")),
		DatabasePool:   getEnvInt("DATABASE_POOL_SIZE", 8),
		JWTSecret:      jwtSecret,
		ServerSecret:   secretKey,
		ServerPublic:   publicKey,
		PerUserLimit:   getEnvInt("PER_USER_MESSAGE_LIMIT", 100),
		MetricsAddr:    getEnv("METRICS_ADDR", ":9090"),
		AuthRatePerMin: getEnvInt("REQUEST_AUTH_RATE_PER_MINUTE", 5),
		ListenAddr:     getEnv("LISTEN_ADDR", ":8080"),
	}
}

// loadOrGenerateKeypair loads the long-term ECDH keypair from disk, or
// generates and persists one on first run. Format on disk: two lines,
// "<secret_b64>\n<public_b64>\n".
func loadOrGenerateKeypair(path string) (secret, public string, err error) {
	if envSecret, envPublic := os.Getenv("SERVER_SECRET_KEY"), os.Getenv("SERVER_PUBLIC_KEY"); envSecret != "" && envPublic != "" {
		return envSecret, envPublic, nil
	}

	if data, readErr := os.ReadFile(path); readErr == nil {
		lines := strings.Split(strings.TrimSpace(string(data)), "\n")
		if len(lines) == 2 {
			return lines[0], lines[1], nil
		}
	}

	secret, public, err = crypto.GenerateKeypair()
	if err != nil {
		return "", "", fmt.Errorf("generate keypair: %w", err)
	}
	if err := os.WriteFile(path, []byte(secret+"\n"+public+"\n"), 0600); err != nil {
		return "", "", fmt.Errorf("persist keypair: %w", err)
	}
	return secret, public, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

// loadDotenv reads a .env file and sets any environment variables not
// already present. Silently does nothing if the file doesn't exist.
func loadDotenv(path string) {
	f, err := os.Open(path)
	if err != nil {
		return
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		idx := strings.IndexByte(line, '=')
		if idx < 1 {
			continue
		}
		key := strings.TrimSpace(line[:idx])
		val := strings.TrimSpace(line[idx+1:])

		if len(val) >= 2 {
			if (val[0] == '"' && val[len(val)-1] == '"') ||
				(val[0] == '\'' && val[len(val)-1] == '\'') {
				val = val[1 : len(val)-1]
			}
		}

		if os.Getenv(key) == "" {
			os.Setenv(key, val)
		}
	}
}
