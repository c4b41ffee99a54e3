// internal/config/config.go
package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/davrbx/basslink/internal/lavalink"
)

func init() {
	err := godotenv.Load()
	if err != nil {
		log.Println("No .env file found, falling back to system environment variables")
	}
}

// Config is the process configuration, parsed once at startup.
type Config struct {
	DiscordToken string        `env:"DISCORD_TOKEN"`
	Nodes        string        `env:"LAVALINK_NODES"`
	Codec        string        `env:"CODEC" envDefault:"std"`
	RestTimeout  time.Duration `env:"REST_TIMEOUT" envDefault:"30s"`
	CleanupTTL   time.Duration `env:"CLEANUP_TTL" envDefault:"5m"`
	IdleTimeout  time.Duration `env:"IDLE_TIMEOUT" envDefault:"5m"`
	MetricsAddr  string        `env:"METRICS_ADDR"`

	NodeConfigs []lavalink.NodeConfig `env:"-"`
}

// New loads and validates the configuration. Malformed node descriptors and
// missing required values halt startup; nothing else does.
func New() *Config {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		log.Fatalf("[ERR] Failed to parse environment: %v", err)
	}

	if cfg.DiscordToken == "" {
		log.Fatal("DISCORD_TOKEN is not set")
	}
	if cfg.Nodes == "" {
		log.Fatal("LAVALINK_NODES is not set")
	}

	nodes, err := ParseNodes(cfg.Nodes)
	if err != nil {
		log.Fatalf("[ERR] Invalid LAVALINK_NODES: %v", err)
	}
	cfg.NodeConfigs = nodes

	return cfg
}

// ParseNodes parses a semicolon-separated list of node descriptors, each
// "host:port,password[,tls]" where tls is one of true/enabled/on
// (case-insensitive). A malformed entry is an error, never a silent skip.
func ParseNodes(value string) ([]lavalink.NodeConfig, error) {
	var nodes []lavalink.NodeConfig

	for i, raw := range strings.Split(value, ";") {
		descriptor := strings.TrimSpace(raw)
		if descriptor == "" {
			continue
		}

		parts := strings.Split(descriptor, ",")
		if len(parts) < 2 || len(parts) > 3 {
			return nil, fmt.Errorf("descriptor %d (%q): want host:port,password[,tls]", i+1, descriptor)
		}

		address := strings.TrimSpace(parts[0])
		host, port, ok := strings.Cut(address, ":")
		if !ok || host == "" || port == "" {
			return nil, fmt.Errorf("descriptor %d (%q): address %q is not host:port", i+1, descriptor, address)
		}

		password := strings.TrimSpace(parts[1])
		if password == "" {
			return nil, fmt.Errorf("descriptor %d (%q): empty password", i+1, descriptor)
		}

		secure := false
		if len(parts) == 3 {
			switch strings.ToLower(strings.TrimSpace(parts[2])) {
			case "true", "enabled", "on":
				secure = true
			default:
				return nil, fmt.Errorf("descriptor %d (%q): unknown tls flag %q", i+1, descriptor, parts[2])
			}
		}

		nodes = append(nodes, lavalink.NodeConfig{
			Name:     fmt.Sprintf("node-%d", len(nodes)),
			Address:  address,
			Password: password,
			Secure:   secure,
		})
	}

	if len(nodes) == 0 {
		return nil, fmt.Errorf("no node descriptors in %q", value)
	}
	return nodes, nil
}
