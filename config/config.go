// Package config loads the gateway core process configuration: the
// Kafka brokers/topics, trusted indexer list, TTLs, and signer key path
// that cmd/gatewaycore needs to wire the four core components
// together. Loading itself is explicitly out of spec.md's scope (§1);
// this package exists only because the ambient stack still needs a
// config surface, following the same YAML-with-parsed-fields shape as
// the teacher's sidecar.PricingConfig.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the gateway core's process configuration.
type Config struct {
	// GatewayEnvID identifies this gateway deployment in reported
	// records (ClientQueryProtobuf.gateway_id, spec §4.6).
	GatewayEnvID string `yaml:"gateway_env_id"`

	// SignerKeyPath points at a file holding the hex-encoded receipt
	// signing private key. It is read once at startup and never
	// serialized back out (spec §5).
	SignerKeyPath string `yaml:"signer_key_path"`
	ChainID       uint64 `yaml:"chain_id"`
	// VerifyingContract is the on-chain TAP/GraphTallyCollector address
	// both EIP-712 domains are scoped to (spec §4.1).
	VerifyingContract string `yaml:"verifying_contract"`

	TrustedIndexers []string `yaml:"trusted_indexers"`

	KafkaBrokers      []string `yaml:"kafka_brokers"`
	QueriesTopic      string   `yaml:"queries_topic"`
	AttestationsTopic string   `yaml:"attestations_topic"`

	HorizonCheckIntervalStr     string `yaml:"horizon_check_interval"`
	TopologyRefreshIntervalStr  string `yaml:"topology_refresh_interval"`
	PoiCacheTTLStr              string `yaml:"poi_cache_ttl"`
	PoiFetchTimeoutStr          string `yaml:"poi_fetch_timeout"`

	HorizonCheckInterval    time.Duration `yaml:"-"`
	TopologyRefreshInterval time.Duration `yaml:"-"`
	PoiCacheTTL             time.Duration `yaml:"-"`
	PoiFetchTimeout         time.Duration `yaml:"-"`
}

// Load reads and parses a YAML config file at path, applying defaults
// for any duration field left blank.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %q: %w", path, err)
	}
	return Parse(data)
}

// Parse parses YAML config bytes, the same split Load/Parse shape as
// sidecar.LoadPricingConfig/ParsePricingConfig.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parsing yaml: %w", err)
	}

	var err error
	if cfg.HorizonCheckInterval, err = parseDurationOrDefault(cfg.HorizonCheckIntervalStr, 30*time.Second); err != nil {
		return nil, fmt.Errorf("config: invalid horizon_check_interval: %w", err)
	}
	if cfg.TopologyRefreshInterval, err = parseDurationOrDefault(cfg.TopologyRefreshIntervalStr, 20*time.Second); err != nil {
		return nil, fmt.Errorf("config: invalid topology_refresh_interval: %w", err)
	}
	if cfg.PoiCacheTTL, err = parseDurationOrDefault(cfg.PoiCacheTTLStr, 20*time.Minute); err != nil {
		return nil, fmt.Errorf("config: invalid poi_cache_ttl: %w", err)
	}
	if cfg.PoiFetchTimeout, err = parseDurationOrDefault(cfg.PoiFetchTimeoutStr, 5*time.Second); err != nil {
		return nil, fmt.Errorf("config: invalid poi_fetch_timeout: %w", err)
	}

	if cfg.QueriesTopic == "" {
		cfg.QueriesTopic = "queries"
	}
	if cfg.AttestationsTopic == "" {
		cfg.AttestationsTopic = "attestations"
	}

	return &cfg, nil
}

func parseDurationOrDefault(s string, def time.Duration) (time.Duration, error) {
	if s == "" {
		return def, nil
	}
	return time.ParseDuration(s)
}
