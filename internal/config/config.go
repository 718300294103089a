// Package config loads the node's configuration from file, environment
// and defaults.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config is the full node configuration.
type Config struct {
	Node       NodeConfig       `mapstructure:"node"`
	Membership MembershipConfig `mapstructure:"membership"`
	Election   ElectionConfig   `mapstructure:"election"`
	Scheduler  SchedulerConfig  `mapstructure:"scheduler"`
	Lease      LeaseConfig      `mapstructure:"lease"`
	Cache      CacheConfig      `mapstructure:"cache"`
}

// NodeConfig identifies the local node and the cluster view.
type NodeConfig struct {
	ID     string `mapstructure:"id"`
	Listen string `mapstructure:"listen"`
	Addr   string `mapstructure:"addr"`
	// Peers lists every other cluster member as "id=addr" pairs. The
	// cluster view is fixed at startup.
	Peers []string `mapstructure:"peers"`
}

// MembershipConfig tunes heartbeat liveness tracking.
type MembershipConfig struct {
	LivenessTimeoutMS int `mapstructure:"liveness_timeout_ms"`
	SweepIntervalMS   int `mapstructure:"sweep_interval_ms"`
}

// ElectionConfig tunes the leader election timers.
type ElectionConfig struct {
	TimeoutMinMS        int `mapstructure:"timeout_min_ms"`
	TimeoutMaxMS        int `mapstructure:"timeout_max_ms"`
	HeartbeatIntervalMS int `mapstructure:"heartbeat_interval_ms"`
}

// SchedulerConfig tunes task dispatch.
type SchedulerConfig struct {
	DispatchIntervalMS int `mapstructure:"dispatch_interval_ms"`
	NodeCapacity       int `mapstructure:"node_capacity"`
	Workers            int `mapstructure:"workers"`
}

// LeaseConfig tunes the lock service.
type LeaseConfig struct {
	DurationMS      int `mapstructure:"duration_ms"`
	PollIntervalMS  int `mapstructure:"poll_interval_ms"`
	RenewIntervalMS int `mapstructure:"renew_interval_ms"`
	RenewWindowMS   int `mapstructure:"renew_window_ms"`
}

// CacheConfig tunes the replicated cache.
type CacheConfig struct {
	Capacity        int `mapstructure:"capacity"`
	RefreshTTLMS    int `mapstructure:"refresh_ttl_ms"`
	SweepIntervalMS int `mapstructure:"sweep_interval_ms"`
}

// Load reads configuration from the given file (optional), the
// environment (QUORUM_ prefix) and defaults, in that order of
// precedence.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("quorum")
	v.SetConfigType("yaml")

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/quorum")
	}

	setDefaults(v)

	v.AutomaticEnv()
	v.SetEnvPrefix("QUORUM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && configPath != "" {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Default returns the built-in defaults without touching file or env.
// The defaults are static so decoding them cannot fail; if it ever does,
// the binary is miscompiled and panicking beats running misconfigured.
func Default() *Config {
	v := viper.New()
	setDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		panic(fmt.Sprintf("config: built-in defaults failed to decode: %v", err))
	}
	return &cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("node.id", "")
	v.SetDefault("node.listen", ":8080")
	v.SetDefault("node.addr", "http://127.0.0.1:8080")
	v.SetDefault("node.peers", []string{})

	v.SetDefault("membership.liveness_timeout_ms", 30000)
	v.SetDefault("membership.sweep_interval_ms", 5000)

	v.SetDefault("election.timeout_min_ms", 150)
	v.SetDefault("election.timeout_max_ms", 300)
	v.SetDefault("election.heartbeat_interval_ms", 50)

	v.SetDefault("scheduler.dispatch_interval_ms", 100)
	v.SetDefault("scheduler.node_capacity", 4)
	v.SetDefault("scheduler.workers", 8)

	v.SetDefault("lease.duration_ms", 30000)
	v.SetDefault("lease.poll_interval_ms", 100)
	v.SetDefault("lease.renew_interval_ms", 1000)
	v.SetDefault("lease.renew_window_ms", 10000)

	v.SetDefault("cache.capacity", 0)
	v.SetDefault("cache.refresh_ttl_ms", 60000)
	v.SetDefault("cache.sweep_interval_ms", 1000)
}

func validate(cfg *Config) error {
	if cfg.Election.TimeoutMaxMS <= cfg.Election.TimeoutMinMS {
		return fmt.Errorf("election.timeout_max_ms must exceed election.timeout_min_ms")
	}
	if cfg.Scheduler.NodeCapacity < 0 {
		return fmt.Errorf("scheduler.node_capacity must not be negative")
	}
	if cfg.Cache.Capacity < 0 {
		return fmt.Errorf("cache.capacity must not be negative")
	}
	for _, peer := range cfg.Node.Peers {
		if !strings.Contains(peer, "=") {
			return fmt.Errorf("node.peers entry %q is not an id=addr pair", peer)
		}
	}
	return nil
}

// ParsePeers splits "id=addr" peer entries into pairs. Entries were
// validated at load time; malformed ones are skipped here.
func ParsePeers(peers []string) [][2]string {
	out := make([][2]string, 0, len(peers))
	for _, p := range peers {
		id, addr, ok := strings.Cut(p, "=")
		if !ok {
			continue
		}
		out = append(out, [2]string{id, addr})
	}
	return out
}
