package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// ScanConfig holds settings shared by every command that runs scans.
type ScanConfig struct {
	RPCURL       string
	Addresses    []string
	FromBlock    uint64
	ToBlock      uint64
	BatchSize    uint64
	Concurrency  int
	CallTimeout  time.Duration
	ScanTimeout  time.Duration
	MaxRetries   int
	RetryBackoff time.Duration
	PriceURL     string
	PriceTTL     time.Duration
	PriceTimeout time.Duration
	NoPrice      bool
	Out          string
	PGDSN        string
	LogLevel     string
}

// Load merges config file, environment variables, and flags into ScanConfig.
func Load(cfgFile string, flags *pflag.FlagSet) (ScanConfig, error) {
	v, err := newViper(cfgFile, flags)
	if err != nil {
		return ScanConfig{}, err
	}
	return scanConfigFrom(v), nil
}

func newViper(cfgFile string, flags *pflag.FlagSet) (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix("APPROVALS")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault("batch-size", uint64(0))
	v.SetDefault("concurrency", 8)
	v.SetDefault("call-timeout", 15*time.Second)
	v.SetDefault("scan-timeout", time.Duration(0))
	v.SetDefault("max-retries", 3)
	v.SetDefault("retry-backoff", 500*time.Millisecond)
	v.SetDefault("price-url", "https://api.coingecko.com/api/v3/simple/price")
	v.SetDefault("price-ttl", 5*time.Minute)
	v.SetDefault("price-timeout", 10*time.Second)
	v.SetDefault("log-level", "info")

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return nil, fmt.Errorf("bind flags: %w", err)
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}
	return v, nil
}

func scanConfigFrom(v *viper.Viper) ScanConfig {
	return ScanConfig{
		RPCURL:       v.GetString("rpc"),
		Addresses:    getStringSlice(v, "address"),
		FromBlock:    v.GetUint64("from"),
		ToBlock:      v.GetUint64("to"),
		BatchSize:    v.GetUint64("batch-size"),
		Concurrency:  v.GetInt("concurrency"),
		CallTimeout:  v.GetDuration("call-timeout"),
		ScanTimeout:  v.GetDuration("scan-timeout"),
		MaxRetries:   v.GetInt("max-retries"),
		RetryBackoff: v.GetDuration("retry-backoff"),
		PriceURL:     v.GetString("price-url"),
		PriceTTL:     v.GetDuration("price-ttl"),
		PriceTimeout: v.GetDuration("price-timeout"),
		NoPrice:      v.GetBool("no-price"),
		Out:          v.GetString("out"),
		PGDSN:        v.GetString("pg-dsn"),
		LogLevel:     v.GetString("log-level"),
	}
}

func getStringSlice(v *viper.Viper, key string) []string {
	if !v.IsSet(key) {
		return nil
	}

	val := v.Get(key)
	switch typed := val.(type) {
	case []string:
		return cleanStrings(typed)
	case string:
		return splitAndClean(typed)
	case []interface{}:
		items := make([]string, 0, len(typed))
		for _, item := range typed {
			items = append(items, fmt.Sprintf("%v", item))
		}
		return cleanStrings(items)
	default:
		return nil
	}
}

func splitAndClean(input string) []string {
	if input == "" {
		return nil
	}
	parts := strings.Split(input, ",")
	return cleanStrings(parts)
}

func cleanStrings(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		out = append(out, item)
	}
	return out
}
