// Package config loads the vault's YAML configuration.
package config

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v2"

	"custody/domain/asset"
	"custody/logging"
)

type Config struct {
	Server    Server         `yaml:"server"`
	Vault     Vault          `yaml:"vault"`
	Exchange  Exchange       `yaml:"exchange"`
	Storage   Storage        `yaml:"storage"`
	Broadcast Broadcast      `yaml:"broadcast"`
	Log       logging.Config `yaml:"log"`
	Dev       Dev            `yaml:"dev"`
}

type Server struct {
	Listen        string   `yaml:"listen"`
	MetricsListen string   `yaml:"metrics_listen"`
	APIKeys       []APIKey `yaml:"api_keys"`
}

// APIKey binds the SHA-256 of a bearer key to the address it acts as.
type APIKey struct {
	Account   string `yaml:"account"`
	KeySHA256 string `yaml:"key_sha256"`
}

type Vault struct {
	Owner              string  `yaml:"owner"`
	Custody            string  `yaml:"custody"`
	CapacityLimit      string  `yaml:"capacity_limit"`
	ComparisonDecimals uint8   `yaml:"comparison_decimals"`
	FallbackDecimals   *uint8  `yaml:"fallback_decimals"`
	Reference          Asset   `yaml:"reference"`
	Assets             []Asset `yaml:"assets"`
}

// Asset leaves precision unknown when Decimals is omitted.
type Asset struct {
	ID       string `yaml:"id"`
	Decimals *uint8 `yaml:"decimals"`
	Route    string `yaml:"route"`
}

type Exchange struct {
	// Mode is sim (in-process AMM), remote (gRPC venue) or none.
	Mode                string        `yaml:"mode"`
	Target              string        `yaml:"target"`
	Venue               string        `yaml:"venue"`
	Bridge              string        `yaml:"bridge"`
	SlippageTolerance   string        `yaml:"slippage_tolerance"`
	DeadlineGrace       time.Duration `yaml:"deadline_grace"`
	ConsecutiveFailures uint32        `yaml:"breaker_consecutive_failures"`
	BreakerTimeout      time.Duration `yaml:"breaker_timeout"`
	Pools               []Pool        `yaml:"pools"`
}

// Pool seeds the simulated venue.
type Pool struct {
	A        string `yaml:"a"`
	ReserveA string `yaml:"reserve_a"`
	B        string `yaml:"b"`
	ReserveB string `yaml:"reserve_b"`
	FeeBps   uint64 `yaml:"fee_bps"`
}

type Storage struct {
	EntryDir         string        `yaml:"entry_dir"`
	ExitDir          string        `yaml:"exit_dir"`
	SnapshotDir      string        `yaml:"snapshot_dir"`
	SegmentSize      int64         `yaml:"segment_size"`
	SyncEveryAppend  bool          `yaml:"sync_every_append"`
	SnapshotInterval time.Duration `yaml:"snapshot_interval"`
}

type Broadcast struct {
	// Driver is sarama, kafka-go or none.
	Driver      string        `yaml:"driver"`
	Brokers     []string      `yaml:"brokers"`
	Topic       string        `yaml:"topic"`
	Interval    time.Duration `yaml:"interval"`
	DialTimeout time.Duration `yaml:"dial_timeout"`
}

// Dev funds the in-memory transfer book at startup.
type Dev struct {
	Mint []Mint `yaml:"mint"`
}

type Mint struct {
	Asset   string `yaml:"asset"`
	Account string `yaml:"account"`
	Amount  string `yaml:"amount"`
}

func Defaults() Config {
	return Config{
		Server: Server{
			Listen:        ":50051",
			MetricsListen: ":9100",
		},
		Vault: Vault{
			ComparisonDecimals: 8,
		},
		Exchange: Exchange{
			Mode:                "sim",
			Venue:               "0x00000000000000000000000000000000000000ee",
			SlippageTolerance:   "0.005",
			DeadlineGrace:       30 * time.Second,
			ConsecutiveFailures: 5,
			BreakerTimeout:      30 * time.Second,
		},
		Storage: Storage{
			EntryDir:         "data/entry",
			ExitDir:          "data/exit",
			SnapshotDir:      "data/snapshot",
			SegmentSize:      64 << 20,
			SnapshotInterval: time.Minute,
		},
		Broadcast: Broadcast{
			Driver:      "none",
			Topic:       "custody.events",
			Interval:    200 * time.Millisecond,
			DialTimeout: 30 * time.Second,
		},
		Log: logging.Defaults(),
	}
}

// Load reads path over the defaults and validates the result.
func Load(path string) (Config, error) {
	cfg := Defaults()
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.UnmarshalStrict(b, &cfg); err != nil {
		return cfg, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	var errs []error
	if _, err := asset.ParseAddress(c.Vault.Owner); err != nil {
		errs = append(errs, fmt.Errorf("vault.owner: %w", err))
	}
	if _, err := asset.ParseAddress(c.Vault.Custody); err != nil {
		errs = append(errs, fmt.Errorf("vault.custody: %w", err))
	}
	if _, err := uint256.FromDecimal(c.Vault.CapacityLimit); err != nil {
		errs = append(errs, fmt.Errorf("vault.capacity_limit: %w", err))
	}
	if c.Vault.Reference.Decimals == nil {
		errs = append(errs, errors.New("vault.reference.decimals is required"))
	}
	if _, err := c.Registry(); err != nil {
		errs = append(errs, fmt.Errorf("vault assets: %w", err))
	}

	switch c.Exchange.Mode {
	case "none":
	case "sim":
		if _, err := asset.ParseAddress(c.Exchange.Venue); err != nil {
			errs = append(errs, fmt.Errorf("exchange.venue: %w", err))
		}
	case "remote":
		if c.Exchange.Target == "" {
			errs = append(errs, errors.New("exchange.target is required in remote mode"))
		}
	default:
		errs = append(errs, fmt.Errorf("exchange.mode %q: want sim, remote or none", c.Exchange.Mode))
	}
	if _, err := c.Exchange.Tolerance(); err != nil {
		errs = append(errs, fmt.Errorf("exchange.slippage_tolerance: %w", err))
	}
	if c.Exchange.DeadlineGrace <= 0 {
		errs = append(errs, errors.New("exchange.deadline_grace must be positive"))
	}

	switch c.Broadcast.Driver {
	case "none":
	case "sarama", "kafka-go":
		if len(c.Broadcast.Brokers) == 0 {
			errs = append(errs, fmt.Errorf("broadcast.brokers is required for driver %s", c.Broadcast.Driver))
		}
	default:
		errs = append(errs, fmt.Errorf("broadcast.driver %q: want sarama, kafka-go or none", c.Broadcast.Driver))
	}

	for i, k := range c.Server.APIKeys {
		if _, err := asset.ParseAddress(k.Account); err != nil {
			errs = append(errs, fmt.Errorf("server.api_keys[%d].account: %w", i, err))
		}
		if raw, err := hex.DecodeString(k.KeySHA256); err != nil || len(raw) != sha256.Size {
			errs = append(errs, fmt.Errorf("server.api_keys[%d].key_sha256: want %d hex bytes", i, sha256.Size))
		}
	}

	if c.Storage.SegmentSize <= 0 {
		errs = append(errs, errors.New("storage.segment_size must be positive"))
	}
	return errors.Join(errs...)
}

// Registry builds the asset registry from the vault section.
func (c Config) Registry() (*asset.Registry, error) {
	ref, err := c.Vault.Reference.descriptor()
	if err != nil {
		return nil, err
	}
	others := make([]asset.Descriptor, 0, len(c.Vault.Assets))
	for _, a := range c.Vault.Assets {
		d, err := a.descriptor()
		if err != nil {
			return nil, err
		}
		others = append(others, d)
	}
	return asset.NewRegistry(ref, others...)
}

func (a Asset) descriptor() (asset.Descriptor, error) {
	hint, err := asset.ParseRouteHint(a.Route)
	if err != nil {
		return asset.Descriptor{}, err
	}
	d := asset.Descriptor{ID: asset.ID(a.ID), Route: hint}
	if a.Decimals != nil {
		d.Decimals = *a.Decimals
		d.DecimalsKnown = true
	}
	return d, d.Validate()
}

func (e Exchange) Tolerance() (decimal.Decimal, error) {
	return decimal.NewFromString(e.SlippageTolerance)
}
