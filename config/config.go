/*
config.go - Server configuration

PURPOSE:
  Collects the settings the server needs from three layers, later layers
  overriding earlier ones:
    1. Defaults
    2. Environment (FREIGHT_*), optionally loaded from a .env file
    3. Command-line flags

ENVIRONMENT:
  FREIGHT_PORT                HTTP port (8080)
  FREIGHT_DB                  SQLite path (freight.db); ":memory:" allowed
  FREIGHT_LOG_LEVEL           logrus level (info)
  FREIGHT_LOG_FILE            rotate logs into this file; empty = stderr
  FREIGHT_TIMEOUT             per unit-of-work timeout (5s)
  FREIGHT_VEHICLE_POLICY      keep-active | in-use (keep-active)
  FREIGHT_RECONCILE_INTERVAL  balance reconciliation period; 0 disables (1h)
  FREIGHT_CORS_ORIGINS        comma separated allowed origins
  FREIGHT_TIMEZONE            IANA zone for "today" and "this month" (Local)
*/
package config

import (
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/warp/freight-engine/freight"
)

type Config struct {
	Port              int
	DBPath            string
	LogLevel          logrus.Level
	LogFile           string
	Timeout           time.Duration
	VehiclePolicy     string
	ReconcileInterval time.Duration
	CORSOrigins       []string
	Location          *time.Location
}

func Default() Config {
	return Config{
		Port:              8080,
		DBPath:            "freight.db",
		LogLevel:          logrus.InfoLevel,
		Timeout:           5 * time.Second,
		VehiclePolicy:     "keep-active",
		ReconcileInterval: time.Hour,
		CORSOrigins:       []string{"http://localhost:5173", "http://localhost:8080"},
		Location:          time.Local,
	}
}

// Load reads .env (if present), the environment and then args.
func Load(args []string) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("failed to load .env: %w", err)
	}
	cfg := Default()
	if err := cfg.fromEnv(os.Getenv); err != nil {
		return Config{}, err
	}
	if err := cfg.fromFlags(args); err != nil {
		return Config{}, err
	}
	return cfg, cfg.Validate()
}

func (c *Config) fromEnv(getenv func(string) string) error {
	var errs []error
	if v := getenv("FREIGHT_PORT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("FREIGHT_PORT: %w", err))
		}
		c.Port = n
	}
	if v := getenv("FREIGHT_DB"); v != "" {
		c.DBPath = v
	}
	if v := getenv("FREIGHT_LOG_LEVEL"); v != "" {
		lvl, err := logrus.ParseLevel(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("FREIGHT_LOG_LEVEL: %w", err))
		}
		c.LogLevel = lvl
	}
	if v := getenv("FREIGHT_LOG_FILE"); v != "" {
		c.LogFile = v
	}
	if v := getenv("FREIGHT_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("FREIGHT_TIMEOUT: %w", err))
		}
		c.Timeout = d
	}
	if v := getenv("FREIGHT_VEHICLE_POLICY"); v != "" {
		c.VehiclePolicy = v
	}
	if v := getenv("FREIGHT_RECONCILE_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("FREIGHT_RECONCILE_INTERVAL: %w", err))
		}
		c.ReconcileInterval = d
	}
	if v := getenv("FREIGHT_CORS_ORIGINS"); v != "" {
		c.CORSOrigins = splitList(v)
	}
	if v := getenv("FREIGHT_TIMEZONE"); v != "" {
		loc, err := time.LoadLocation(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("FREIGHT_TIMEZONE: %w", err))
		}
		c.Location = loc
	}
	return errors.Join(errs...)
}

func (c *Config) fromFlags(args []string) error {
	set := flag.NewFlagSet("server", flag.ContinueOnError)
	set.IntVar(&c.Port, "port", c.Port, "HTTP server port")
	set.StringVar(&c.DBPath, "db", c.DBPath, "SQLite database path")
	set.StringVar(&c.LogFile, "log-file", c.LogFile, "rotating log file (stderr when empty)")
	set.DurationVar(&c.Timeout, "timeout", c.Timeout, "unit-of-work timeout")
	set.StringVar(&c.VehiclePolicy, "vehicle-policy", c.VehiclePolicy, "keep-active or in-use")
	set.DurationVar(&c.ReconcileInterval, "reconcile-interval", c.ReconcileInterval, "balance reconciliation period (0 disables)")
	level := set.String("log-level", c.LogLevel.String(), "log level")
	if err := set.Parse(args); err != nil {
		return err
	}
	lvl, err := logrus.ParseLevel(*level)
	if err != nil {
		return fmt.Errorf("-log-level: %w", err)
	}
	c.LogLevel = lvl
	return nil
}

// Validate checks values no parser catches.
func (c Config) Validate() error {
	var errs []error
	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("port %d out of range", c.Port))
	}
	if c.DBPath == "" {
		errs = append(errs, errors.New("db path is required"))
	}
	if c.Timeout < 0 {
		errs = append(errs, errors.New("timeout must not be negative"))
	}
	if _, err := freight.VehiclePolicyByName(c.VehiclePolicy); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
