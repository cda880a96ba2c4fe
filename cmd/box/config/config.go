// Package config parses the configuration of a box.
//
// Values come from command-line flags, then environment variables, then
// defaults, in that order of precedence.
//
//	cfg := config.ParseFlags()
//	awareness, err := energy.New(cfg.Energy(), logger)
package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/HatiCode/enerbox/pkg/energy"
	"github.com/HatiCode/enerbox/pkg/httpx"
	"github.com/HatiCode/enerbox/pkg/remote"
	"github.com/HatiCode/enerbox/pkg/storage"
)

// Config holds all box configuration.
type Config struct {
	Listen     string
	GRPCListen string
	LogFormat  string
	LogLevel   string

	ServiceName      string
	Remotes          []remote.Target
	ParentURL        string
	CostCoefficients []float64

	SampleCapacity  int
	FilterThreshold int
	FilterWidth     int
	FilterDepth     int
	Scale           int
	Fairness        float64
	MergeGap        float64
	StaleAfter      time.Duration

	SyncInterval time.Duration
	CallTimeout  time.Duration

	Storage       string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisTTL      time.Duration
}

// ParseFlags parses os.Args and the environment, exiting on invalid input.
func ParseFlags() *Config {
	cfg, err := Parse(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	return cfg
}

// Parse parses args and the environment into a validated Config.
func Parse(args []string) (*Config, error) {
	cfg := &Config{}
	fs := flag.NewFlagSet("box", flag.ContinueOnError)

	var remotes, coefficients string

	fs.StringVar(&cfg.Listen, "listen", getEnv("LISTEN", ":8080"), "HTTP listen address")
	fs.StringVar(&cfg.GRPCListen, "grpc-listen", getEnv("GRPC_LISTEN", ":9090"), "gRPC health listen address (empty to disable)")
	fs.StringVar(&cfg.LogFormat, "log-format", getEnv("LOG_FORMAT", "text"), "Log format: text or json")
	fs.StringVar(&cfg.LogLevel, "log-level", getEnv("LOG_LEVEL", "info"), "Log level: debug, info, warn, error")

	fs.StringVar(&cfg.ServiceName, "service-name", getEnv("SERVICE_NAME", ""), "Name of this service (required)")
	fs.StringVar(&remotes, "remotes", getEnv("REMOTES", ""), "Downstream services: name=url@progress,...")
	fs.StringVar(&cfg.ParentURL, "parent-url", getEnv("PARENT_URL", ""), "Box to push the combined intervals to")
	fs.StringVar(&coefficients, "cost-coefficients", getEnv("COST_COEFFICIENTS", "0"), "Local cost model c0,c1,... in milliseconds")

	fs.IntVar(&cfg.SampleCapacity, "sample-capacity", getEnvInt("SAMPLE_CAPACITY", energy.DefaultCapacity), "Local samples kept")
	fs.IntVar(&cfg.FilterThreshold, "filter-threshold", getEnvInt("FILTER_THRESHOLD", energy.DefaultThreshold), "Sightings of an argument vector before allocating")
	fs.IntVar(&cfg.FilterWidth, "filter-width", getEnvInt("FILTER_WIDTH", energy.DefaultFilterWidth), "Counters per sketch row")
	fs.IntVar(&cfg.FilterDepth, "filter-depth", getEnvInt("FILTER_DEPTH", energy.DefaultFilterDepth), "Sketch rows")
	fs.IntVar(&cfg.Scale, "scale", getEnvInt("SCALE", energy.DefaultScale), "Integer budget the objective is mapped onto")
	fs.Float64Var(&cfg.Fairness, "fairness", getEnvFloat("FAIRNESS", 0), "Fairness weight in [0,1]")
	fs.Float64Var(&cfg.MergeGap, "merge-gap", getEnvFloat("MERGE_GAP", 0), "Merge local costs closer than this")
	fs.DurationVar(&cfg.StaleAfter, "stale-after", getEnvDuration("STALE_AFTER", 0), "Ignore remote reports older than this (0 = never)")

	fs.DurationVar(&cfg.SyncInterval, "sync-interval", getEnvDuration("SYNC_INTERVAL", 30*time.Second), "Report sync interval")
	fs.DurationVar(&cfg.CallTimeout, "call-timeout", getEnvDuration("CALL_TIMEOUT", 10*time.Second), "Timeout of downstream calls")

	fs.StringVar(&cfg.Storage, "storage", getEnv("STORAGE", "memory"), "Report storage: memory or redis")
	fs.StringVar(&cfg.RedisAddr, "redis-addr", getEnv("REDIS_ADDR", "localhost:6379"), "Redis server address")
	fs.StringVar(&cfg.RedisPassword, "redis-password", getEnv("REDIS_PASSWORD", ""), "Redis password")
	fs.IntVar(&cfg.RedisDB, "redis-db", getEnvInt("REDIS_DB", 0), "Redis database number")
	fs.DurationVar(&cfg.RedisTTL, "redis-ttl", getEnvDuration("REDIS_TTL", 30*time.Minute), "Redis report TTL")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	targets, err := remote.ParseTargets(remotes)
	if err != nil {
		return nil, err
	}
	cfg.Remotes = targets

	cfg.CostCoefficients, err = httpx.ParseFloats(coefficients)
	if err != nil {
		return nil, fmt.Errorf("cost coefficients: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports values that cannot be used.
func (c *Config) Validate() error {
	if err := storage.ValidateService(c.ServiceName); err != nil {
		return fmt.Errorf("service name: %w", err)
	}
	for _, t := range c.Remotes {
		if t.Name == c.ServiceName {
			return fmt.Errorf("remote %q has the name of this service", t.Name)
		}
		if err := storage.ValidateService(t.Name); err != nil {
			return fmt.Errorf("remote name: %w", err)
		}
	}
	if err := c.Energy().Validate(); err != nil {
		return err
	}
	if c.SampleCapacity <= 0 || c.FilterThreshold <= 0 || c.FilterWidth <= 0 || c.FilterDepth <= 0 || c.Scale <= 0 {
		return errors.New("sample capacity, filter sizes and scale must be > 0")
	}
	if c.MergeGap < 0 {
		return errors.New("merge gap cannot be negative")
	}
	if c.SyncInterval <= 0 {
		return errors.New("sync interval must be > 0")
	}
	if c.CallTimeout <= 0 {
		return errors.New("call timeout must be > 0")
	}
	switch c.Storage {
	case "memory":
	case "redis":
		if c.RedisAddr == "" {
			return errors.New("redis address required when storage=redis")
		}
	default:
		return fmt.Errorf("invalid storage %q (must be memory or redis)", c.Storage)
	}
	return nil
}

// Energy returns the allocator configuration.
func (c *Config) Energy() energy.Config {
	return energy.Config{
		Name:        c.ServiceName,
		Capacity:    c.SampleCapacity,
		MergeGap:    c.MergeGap,
		Threshold:   c.FilterThreshold,
		FilterWidth: c.FilterWidth,
		FilterDepth: c.FilterDepth,
		Scale:       c.Scale,
		Fairness:    c.Fairness,
		StaleAfter:  c.StaleAfter,
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
