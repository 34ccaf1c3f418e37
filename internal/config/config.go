// =================================
// File: internal/config/config.go
// =================================
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/hlhdaiaaii/trophy-token/internal/chain"
)

// TokenConfig is the fee-ledger deployment section. Amounts are decimal
// strings in whole-token units.
type TokenConfig struct {
	Name            string         `mapstructure:"name"`
	Symbol          string         `mapstructure:"symbol"`
	Owner           string         `mapstructure:"owner"`
	FeeRateBps      uint64         `mapstructure:"fee_rate_bps"`
	BurnShareBps    uint64         `mapstructure:"burn_share_bps"`
	BurnAddress     string         `mapstructure:"burn_address"`
	FeeRecipients   []FeeRecipient `mapstructure:"fee_recipients"`
	LiquidityTo     string         `mapstructure:"liquidity_to"`
	BridgeThreshold string         `mapstructure:"bridge_threshold"`
}

type FeeRecipient struct {
	Address  string `mapstructure:"address"`
	ShareBps uint64 `mapstructure:"share_bps"`
}

// SaleConfig is the crowdsale deployment section. Times are RFC 3339.
type SaleConfig struct {
	Price        string `mapstructure:"price"`
	ListingPrice string `mapstructure:"listing_price"`
	MinPurchase  string `mapstructure:"min_purchase"`
	MaxPurchase  string `mapstructure:"max_purchase"`
	HardCap      string `mapstructure:"hard_cap"`
	StartTime    string `mapstructure:"start_time"`
	EndTime      string `mapstructure:"end_time"`
	LpPercentBps uint64 `mapstructure:"lp_percent_bps"`
}

// MonitorConfig controls the market monitor cadence.
type MonitorConfig struct {
	PriceDelay int `mapstructure:"price_delay"` // milliseconds between price samples
	Retries    int `mapstructure:"retries"`     // pair discovery attempts
}

type Config struct {
	Token   TokenConfig   `mapstructure:"token"`
	Sale    SaleConfig    `mapstructure:"sale"`
	Monitor MonitorConfig `mapstructure:"monitor"`

	ScenarioFile string `mapstructure:"scenario_file"`
	ExportDir    string `mapstructure:"export_dir"`
	PostgresURL  string `mapstructure:"postgres_url"`
	MetricsAddr  string `mapstructure:"metrics_addr"`
	DebugLogging bool   `mapstructure:"debug_logging"`
	LogFile      string `mapstructure:"log_file"`
}

const (
	DefaultPriceDelay   = 500
	DefaultRetries      = 3
	DefaultExportDir    = "exports"
	DefaultLogFile      = "trophy.log"
	DefaultFeeRateBps   = 500
	DefaultLpPercentBps = 5000
)

func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)

	defaults := map[string]interface{}{
		"monitor.price_delay": DefaultPriceDelay,
		"monitor.retries":     DefaultRetries,
		"export_dir":          DefaultExportDir,
		"log_file":            DefaultLogFile,
		"token.fee_rate_bps":  DefaultFeeRateBps,
		"sale.lp_percent_bps": DefaultLpPercentBps,
	}
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	loadEnvironmentVariables(v, &cfg)

	return &cfg, validateConfig(&cfg)
}

func validateConfig(cfg *Config) error {
	if cfg.Token.Name == "" || cfg.Token.Symbol == "" {
		return errors.New("token name and symbol are required")
	}
	if cfg.Token.Owner == "" {
		return errors.New("token owner is required")
	}
	if cfg.Token.BurnAddress == "" {
		return errors.New("token burn_address is required")
	}
	if cfg.Token.LiquidityTo == "" {
		return errors.New("token liquidity_to is required")
	}
	if err := validateBps(cfg); err != nil {
		return err
	}
	for _, field := range []struct{ name, value string }{
		{"token.bridge_threshold", cfg.Token.BridgeThreshold},
		{"sale.price", cfg.Sale.Price},
		{"sale.listing_price", cfg.Sale.ListingPrice},
		{"sale.min_purchase", cfg.Sale.MinPurchase},
		{"sale.max_purchase", cfg.Sale.MaxPurchase},
		{"sale.hard_cap", cfg.Sale.HardCap},
	} {
		if _, err := chain.ParseUnits(field.value); err != nil {
			return fmt.Errorf("%s: %w", field.name, err)
		}
	}
	start, err := time.Parse(time.RFC3339, cfg.Sale.StartTime)
	if err != nil {
		return fmt.Errorf("sale.start_time: %w", err)
	}
	end, err := time.Parse(time.RFC3339, cfg.Sale.EndTime)
	if err != nil {
		return fmt.Errorf("sale.end_time: %w", err)
	}
	if end.Before(start) {
		return errors.New("sale.end_time before sale.start_time")
	}
	if cfg.Monitor.PriceDelay <= 0 {
		return errors.New("invalid monitor.price_delay")
	}
	if cfg.Monitor.Retries < 0 {
		return errors.New("invalid monitor.retries count")
	}
	return nil
}

func validateBps(cfg *Config) error {
	if cfg.Token.FeeRateBps > chain.BpsDenom {
		return errors.New("token.fee_rate_bps above 10000")
	}
	total := cfg.Token.BurnShareBps
	for _, r := range cfg.Token.FeeRecipients {
		if r.Address == "" {
			return errors.New("fee recipient address is empty")
		}
		total += r.ShareBps
	}
	if total > chain.BpsDenom {
		return errors.New("fee shares sum above 10000 bps")
	}
	if cfg.Sale.LpPercentBps > chain.BpsDenom {
		return errors.New("sale.lp_percent_bps above 10000")
	}
	return nil
}

// loadEnvironmentVariables applies TROPHY_* overrides for the values
// that differ between deployments.
func loadEnvironmentVariables(v *viper.Viper, cfg *Config) {
	v.AutomaticEnv()
	v.SetEnvPrefix("TROPHY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if pg := v.GetString("POSTGRES_URL"); pg != "" {
		cfg.PostgresURL = pg
	}
	if dir := v.GetString("EXPORT_DIR"); dir != "" {
		cfg.ExportDir = dir
	}
	if addr := v.GetString("METRICS_ADDR"); addr != "" {
		cfg.MetricsAddr = addr
	}
}

// SaleWindow parses the validated RFC 3339 window.
func (c *SaleConfig) SaleWindow() (start, end time.Time, err error) {
	start, err = time.Parse(time.RFC3339, c.StartTime)
	if err != nil {
		return
	}
	end, err = time.Parse(time.RFC3339, c.EndTime)
	return
}
