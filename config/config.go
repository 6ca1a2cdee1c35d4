package config

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v3"
)

const (
	PlatformEVM      = "evm"
	PlatformSimulate = "simulate"

	// PrivateKeyEnv names the environment variable holding the signing key.
	// The key is never read from the config file.
	PrivateKeyEnv = "ESTATE_PRIVATE_KEY"

	defaultReadConcurrency  = 8
	defaultFinalityTimeout  = 2 * time.Minute
	defaultRefreshInterval  = 30 * time.Second
	defaultMaxDisplayReason = 50
	defaultSnapshotDir      = "./wal/snapshots"
	defaultJournalDir       = "./wal/mutations"
	defaultWebAddr          = ":8080"
)

type Config struct {
	Platform         string
	RPCURL           string
	ContractAddress  common.Address
	Account          common.Address
	PrivateKey       string
	ReadConcurrency  int
	ReadsPerSecond   float64
	FinalityTimeout  time.Duration
	RefreshInterval  time.Duration
	SnapshotDir      string
	JournalDir       string
	WebAddr          string
	MaxDisplayReason int

	// TLSDomains switches the web view to HTTPS with ACME certificates.
	TLSDomains  []string
	TLSCacheDir string

	// Setup asks the caller to run the interactive wizard before starting.
	Setup bool
}

// ConfigTmp is the yaml representation of Config.
type ConfigTmp struct {
	Platform            string        `yaml:"platform"`
	RPCURL              string        `yaml:"rpc_url,omitempty"`
	ContractAddress     string        `yaml:"contract_address,omitempty"`
	Account             string        `yaml:"account,omitempty"`
	ReadConcurrencyStr  string        `yaml:"read_concurrency,omitempty"`
	ReadsPerSecondStr   string        `yaml:"reads_per_second,omitempty"`
	FinalityTimeout     time.Duration `yaml:"finality_timeout,omitempty"`
	RefreshInterval     time.Duration `yaml:"refresh_interval,omitempty"`
	SnapshotDir         string        `yaml:"snapshot_dir,omitempty"`
	JournalDir          string        `yaml:"journal_dir,omitempty"`
	WebAddr             string        `yaml:"web_addr,omitempty"`
	MaxDisplayReasonStr string        `yaml:"max_display_reason,omitempty"`
	TLSDomainsStr       string        `yaml:"tls_domains,omitempty"`
	TLSCacheDir         string        `yaml:"tls_cache_dir,omitempty"`
}

// Get reads the configuration from the process arguments.
func Get() (Config, error) {
	return Parse(os.Args[1:])
}

// Parse reads the configuration from args. With --config the yaml file is
// used and the remaining flags are ignored.
func Parse(args []string) (Config, error) {
	fs := flag.NewFlagSet("estate", flag.ContinueOnError)
	path := fs.String("config", "", "path to yaml config")
	setup := fs.Bool("setup", false, "run the interactive config wizard")

	tmp := ConfigTmp{}
	fs.StringVar(&tmp.Platform, "platform", PlatformSimulate, "ledger platform: evm or simulate")
	fs.StringVar(&tmp.RPCURL, "rpc", "", "json-rpc endpoint of the evm node")
	fs.StringVar(&tmp.ContractAddress, "contract", "", "registry contract address")
	fs.StringVar(&tmp.Account, "account", "", "address to view when no private key is set")
	fs.StringVar(&tmp.ReadConcurrencyStr, "read-concurrency", strconv.Itoa(defaultReadConcurrency), "ledger reads in flight per snapshot")
	fs.StringVar(&tmp.ReadsPerSecondStr, "reads-per-second", "0", "ledger read rate limit, 0 disables it")
	fs.DurationVar(&tmp.FinalityTimeout, "finality-timeout", defaultFinalityTimeout, "how long to wait for a mutation to become final")
	fs.DurationVar(&tmp.RefreshInterval, "refresh-interval", defaultRefreshInterval, "snapshot refresh period")
	fs.StringVar(&tmp.SnapshotDir, "snapshot-dir", defaultSnapshotDir, "snapshot history wal directory")
	fs.StringVar(&tmp.JournalDir, "journal-dir", defaultJournalDir, "mutation journal wal directory")
	fs.StringVar(&tmp.WebAddr, "web", defaultWebAddr, "web view listen address, empty disables it")
	fs.StringVar(&tmp.MaxDisplayReasonStr, "max-reason", strconv.Itoa(defaultMaxDisplayReason), "failure reason display length")
	fs.StringVar(&tmp.TLSDomainsStr, "tls-domains", "", "comma separated domains served over https with acme certificates")
	fs.StringVar(&tmp.TLSCacheDir, "tls-cache-dir", "", "acme certificate cache directory")

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	var (
		cfg Config
		err error
	)
	if *path != "" {
		cfg, err = Load(*path)
	} else {
		cfg, err = tmp.toConfig()
	}
	if err != nil {
		return Config{}, err
	}
	cfg.Setup = *setup

	return cfg, nil
}

// Load reads a yaml config file.
func Load(path string) (Config, error) {
	f, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}

	var tmp ConfigTmp
	if err := yaml.Unmarshal(f, &tmp); err != nil {
		return Config{}, fmt.Errorf("failed to parse yaml config %s: %w", path, err)
	}

	return tmp.toConfig()
}

func (c ConfigTmp) toConfig() (Config, error) {
	cfg := Config{
		Platform:         c.Platform,
		RPCURL:           c.RPCURL,
		PrivateKey:       os.Getenv(PrivateKeyEnv),
		ReadConcurrency:  defaultReadConcurrency,
		FinalityTimeout:  c.FinalityTimeout,
		RefreshInterval:  c.RefreshInterval,
		SnapshotDir:      c.SnapshotDir,
		JournalDir:       c.JournalDir,
		WebAddr:          c.WebAddr,
		MaxDisplayReason: defaultMaxDisplayReason,
		TLSCacheDir:      c.TLSCacheDir,
	}

	if cfg.Platform == "" {
		cfg.Platform = PlatformSimulate
	}
	if cfg.Platform != PlatformEVM && cfg.Platform != PlatformSimulate {
		return Config{}, fmt.Errorf("incorrect 'platform' param in config: %q (must be %s or %s)", c.Platform, PlatformEVM, PlatformSimulate)
	}

	if cfg.Platform == PlatformEVM {
		if cfg.RPCURL == "" {
			return Config{}, fmt.Errorf("'rpc_url' param is required for platform %s", PlatformEVM)
		}
		if !common.IsHexAddress(c.ContractAddress) {
			return Config{}, fmt.Errorf("incorrect 'contract_address' param in config: %q", c.ContractAddress)
		}
		cfg.ContractAddress = common.HexToAddress(c.ContractAddress)
	}

	if c.Account != "" {
		if !common.IsHexAddress(c.Account) {
			return Config{}, fmt.Errorf("incorrect 'account' param in config: %q", c.Account)
		}
		cfg.Account = common.HexToAddress(c.Account)
	}

	if c.ReadConcurrencyStr != "" {
		n, err := strconv.Atoi(c.ReadConcurrencyStr)
		if err != nil || n < 1 {
			return Config{}, fmt.Errorf("incorrect 'read_concurrency' param in config (must be a positive integer): %q", c.ReadConcurrencyStr)
		}
		cfg.ReadConcurrency = n
	}

	if c.ReadsPerSecondStr != "" {
		rps, err := strconv.ParseFloat(c.ReadsPerSecondStr, 64)
		if err != nil || rps < 0 {
			return Config{}, fmt.Errorf("incorrect 'reads_per_second' param in config (must be a non-negative number): %q", c.ReadsPerSecondStr)
		}
		cfg.ReadsPerSecond = rps
	}

	if c.MaxDisplayReasonStr != "" {
		n, err := strconv.Atoi(c.MaxDisplayReasonStr)
		if err != nil || n < 1 {
			return Config{}, fmt.Errorf("incorrect 'max_display_reason' param in config (must be a positive integer): %q", c.MaxDisplayReasonStr)
		}
		cfg.MaxDisplayReason = n
	}

	for _, d := range strings.Split(c.TLSDomainsStr, ",") {
		if d = strings.TrimSpace(d); d != "" {
			cfg.TLSDomains = append(cfg.TLSDomains, d)
		}
	}
	if len(cfg.TLSDomains) > 0 && cfg.WebAddr == "" {
		return Config{}, fmt.Errorf("'tls_domains' param needs 'web_addr' to be set")
	}

	if cfg.FinalityTimeout <= 0 {
		cfg.FinalityTimeout = defaultFinalityTimeout
	}
	if cfg.RefreshInterval <= 0 {
		cfg.RefreshInterval = defaultRefreshInterval
	}
	if cfg.SnapshotDir == "" {
		cfg.SnapshotDir = defaultSnapshotDir
	}
	if cfg.JournalDir == "" {
		cfg.JournalDir = defaultJournalDir
	}

	return cfg, nil
}
