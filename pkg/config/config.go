// Package config collects all runtime configuration into a single immutable
// record. Values come from command-line flags with environment fallbacks;
// a .env file in the working directory is loaded before parsing (see cmd/silly).
package config

import (
	"crypto/rand"
	"flag"
	"fmt"
	"math/big"
	"os"
)

// Config is the process-wide configuration. It is built once in main and
// passed by value to every component constructor; nothing reads the
// environment after startup.
type Config struct {
	// Host and Port bind the web UI and API listener.
	Host string
	Port int

	// Aria2Host is the daemon RPC host, ws:// or wss:// scheme.
	Aria2Host string
	// Aria2Port is the daemon RPC port.
	Aria2Port string
	// Aria2Secret is the RPC token, empty when the daemon runs without one.
	Aria2Secret string

	// DataDir holds the database, logs and anything else we persist.
	DataDir string

	// JWTSecret signs auth cookies. Random per-process when unset.
	JWTSecret string

	// Verbose switches log level to debug.
	Verbose bool
}

// Aria2URL returns the daemon JSON-RPC WebSocket endpoint.
func (c Config) Aria2URL() string {
	return fmt.Sprintf("%s:%s/jsonrpc", c.Aria2Host, c.Aria2Port)
}

// Addr returns the HTTP listen address.
func (c Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Load parses flags and environment into a Config. Call after godotenv so
// .env values are visible as environment fallbacks.
func Load(args []string) (Config, error) {
	fs := flag.NewFlagSet("silly", flag.ContinueOnError)

	var cfg Config
	fs.StringVar(&cfg.Host, "host", getEnv("SILLY_HOST", "0.0.0.0"), "Host to bind the server to")
	fs.IntVar(&cfg.Port, "port", getEnvInt("SILLY_PORT", 8080), "Port to serve the web UI and API")
	fs.StringVar(&cfg.Aria2Host, "aria2-host", getEnv("ARIA2_HOST", "ws://127.0.0.1"), "Aria2 RPC host (ws or wss)")
	fs.StringVar(&cfg.Aria2Port, "aria2-port", getEnv("ARIA2_PORT", "6800"), "Aria2 RPC port")
	fs.StringVar(&cfg.Aria2Secret, "aria2-secret", os.Getenv("ARIA2_SECRET"), "Aria2 RPC secret token")
	fs.StringVar(&cfg.DataDir, "data-dir", getEnv("SILLY_DATA_DIR", "silly"), "Directory to store application data")
	fs.StringVar(&cfg.JWTSecret, "jwt-secret", os.Getenv("SILLY_JWT_SECRET"), "JWT signing secret (random when unset)")
	fs.BoolVar(&cfg.Verbose, "verbose", false, "Enable verbose logging")

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	if cfg.JWTSecret == "" {
		secret, err := randomSecret(32)
		if err != nil {
			return Config{}, fmt.Errorf("failed to generate jwt secret: %w", err)
		}
		cfg.JWTSecret = secret
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		var n int
		if _, err := fmt.Sscanf(value, "%d", &n); err == nil {
			return n
		}
	}
	return defaultValue
}

const secretAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// randomSecret draws n alphanumeric characters from crypto/rand.
func randomSecret(n int) (string, error) {
	out := make([]byte, n)
	max := big.NewInt(int64(len(secretAlphabet)))
	for i := range out {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		out[i] = secretAlphabet[idx.Int64()]
	}
	return string(out), nil
}
