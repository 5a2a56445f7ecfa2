// Package config loads strategy-instance settings from a yaml file.
package config

import (
	"flag"
	"os"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Defaults applied when a yaml field is omitted.
const (
	DefaultStale         = 10 * time.Second
	DefaultMaxGap        = 10 * time.Second
	DefaultFillTimeout   = 15 * time.Second
	DefaultOpenInterval  = 2 * time.Second
	DefaultCloseInterval = 2 * time.Second
	DefaultDepthLevel    = 5
	DefaultMinExpiryDays = 30
	DefaultMetricsAddr   = ":9109"
)

// PairSpec names one tracked spot/future instrument pair.
type PairSpec struct {
	Currency string `yaml:"currency"`
	Spot     string `yaml:"spot"`
	Future   string `yaml:"future"`
}

// OKX holds venue connection settings for one account.
type OKX struct {
	RESTBaseURL  string `yaml:"rest_base_url"`
	PublicWSURL  string `yaml:"public_ws_url"`
	PrivateWSURL string `yaml:"private_ws_url"`
	APIKey       string `yaml:"api_key"`
	APISecret    string `yaml:"api_secret"`
	Passphrase   string `yaml:"passphrase"`
	Testnet      bool   `yaml:"testnet"`
}

// Telegram holds operator alert settings.
type Telegram struct {
	Token  string `yaml:"token"`
	ChatID int64  `yaml:"chat_id"`
}

// Instance is the validated configuration of one strategy instance (one
// account).
type Instance struct {
	Name            string
	Enabled         bool
	PerOrderUSD     decimal.Decimal
	MaxPositions    int
	OpenYieldPct    decimal.Decimal
	CloseYieldPct   decimal.Decimal
	Stale           time.Duration
	ExecutionPolicy string
	MaxGap          time.Duration
	FillTimeout     time.Duration
	MinExpiryDays   int
	DepthLevel      int
	OpenInterval    time.Duration
	CloseInterval   time.Duration
	Pairs           []PairSpec
	WalDir          string
	PostgresDSN     string
	Telegram        Telegram
	OKX             OKX
}

// Config is the full process configuration.
type Config struct {
	MetricsAddr string
	Instances   []Instance
}

type instanceTmp struct {
	Name            string     `yaml:"name"`
	Enabled         *bool      `yaml:"enabled"`
	PerOrderUSD     string     `yaml:"per_order_usd"`
	MaxPositions    int        `yaml:"max_positions"`
	OpenYieldPct    string     `yaml:"open_yield_pct"`
	CloseYieldPct   string     `yaml:"close_yield_pct"`
	StaleMs         int        `yaml:"stale_ms,omitempty"`
	ExecutionPolicy string     `yaml:"execution_policy,omitempty"`
	MaxGapMs        int        `yaml:"max_gap_ms,omitempty"`
	FillTimeoutMs   int        `yaml:"fill_timeout_ms,omitempty"`
	MinExpiryDays   *int       `yaml:"min_expiry_days,omitempty"`
	DepthLevel      int        `yaml:"depth_level,omitempty"`
	OpenIntervalMs  int        `yaml:"open_interval_ms,omitempty"`
	CloseIntervalMs int        `yaml:"close_interval_ms,omitempty"`
	Pairs           []PairSpec `yaml:"pairs"`
	WalDir          string     `yaml:"wal_dir,omitempty"`
	PostgresDSN     string     `yaml:"postgres_dsn,omitempty"`
	Telegram        Telegram   `yaml:"telegram,omitempty"`
	OKX             OKX        `yaml:"okx"`
}

type configTmp struct {
	MetricsAddr string        `yaml:"metrics_addr,omitempty"`
	Instances   []instanceTmp `yaml:"instances"`
}

// Get loads configuration from the path given by the -config flag.
func Get() (*Config, error) {
	path := flag.String("config", "config.yaml", "path to yaml config")
	flag.Parse()
	return Load(*path)
}

// Load reads and validates the yaml file at path.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read config file")
	}

	var tmp configTmp
	if err := yaml.Unmarshal(raw, &tmp); err != nil {
		return nil, errors.Wrap(err, "parse config yaml")
	}
	if len(tmp.Instances) == 0 {
		return nil, errors.New("config has no instances")
	}

	cfg := &Config{MetricsAddr: tmp.MetricsAddr}
	if cfg.MetricsAddr == "" {
		cfg.MetricsAddr = DefaultMetricsAddr
	}

	for _, it := range tmp.Instances {
		inst, err := parseInstance(it)
		if err != nil {
			return nil, errors.Wrapf(err, "instance %q", it.Name)
		}
		cfg.Instances = append(cfg.Instances, inst)
	}
	return cfg, nil
}

func parseInstance(it instanceTmp) (Instance, error) {
	var inst Instance

	if it.Name == "" {
		return inst, errors.New("'name' is required")
	}
	inst.Name = it.Name

	inst.Enabled = true
	if it.Enabled != nil {
		inst.Enabled = *it.Enabled
	}

	perOrder, err := decimal.NewFromString(it.PerOrderUSD)
	if err != nil || perOrder.LessThanOrEqual(decimal.Zero) {
		return inst, errors.Errorf("incorrect 'per_order_usd' param: %q", it.PerOrderUSD)
	}
	inst.PerOrderUSD = perOrder

	if it.MaxPositions <= 0 {
		return inst, errors.Errorf("incorrect 'max_positions' param: %d", it.MaxPositions)
	}
	inst.MaxPositions = it.MaxPositions

	openYield, err := decimal.NewFromString(it.OpenYieldPct)
	if err != nil {
		return inst, errors.Errorf("incorrect 'open_yield_pct' param: %q", it.OpenYieldPct)
	}
	inst.OpenYieldPct = openYield

	closeYield, err := decimal.NewFromString(it.CloseYieldPct)
	if err != nil {
		return inst, errors.Errorf("incorrect 'close_yield_pct' param: %q", it.CloseYieldPct)
	}
	if closeYield.GreaterThanOrEqual(openYield) {
		return inst, errors.New("'close_yield_pct' must be below 'open_yield_pct'")
	}
	inst.CloseYieldPct = closeYield

	inst.Stale = msOrDefault(it.StaleMs, DefaultStale)
	inst.MaxGap = msOrDefault(it.MaxGapMs, DefaultMaxGap)
	inst.FillTimeout = msOrDefault(it.FillTimeoutMs, DefaultFillTimeout)
	inst.OpenInterval = msOrDefault(it.OpenIntervalMs, DefaultOpenInterval)
	inst.CloseInterval = msOrDefault(it.CloseIntervalMs, DefaultCloseInterval)

	switch it.ExecutionPolicy {
	case "", "simultaneous":
		inst.ExecutionPolicy = "simultaneous"
	case "sequenced":
		inst.ExecutionPolicy = "sequenced"
	default:
		return inst, errors.Errorf("incorrect 'execution_policy' param: %q", it.ExecutionPolicy)
	}

	inst.MinExpiryDays = DefaultMinExpiryDays
	if it.MinExpiryDays != nil {
		inst.MinExpiryDays = *it.MinExpiryDays
	}

	inst.DepthLevel = it.DepthLevel
	if inst.DepthLevel <= 0 {
		inst.DepthLevel = DefaultDepthLevel
	}
	if it.OKX.Testnet {
		// testnet books are too thin for deep levels
		inst.DepthLevel = 1
	}

	if len(it.Pairs) == 0 {
		return inst, errors.New("'pairs' is required")
	}
	for _, p := range it.Pairs {
		if p.Currency == "" || p.Spot == "" || p.Future == "" {
			return inst, errors.Errorf("incomplete pair spec: %+v", p)
		}
	}
	inst.Pairs = it.Pairs

	inst.WalDir = it.WalDir
	inst.PostgresDSN = it.PostgresDSN
	inst.Telegram = it.Telegram
	inst.OKX = it.OKX
	return inst, nil
}

func msOrDefault(ms int, def time.Duration) time.Duration {
	if ms <= 0 {
		return def
	}
	return time.Duration(ms) * time.Millisecond
}
