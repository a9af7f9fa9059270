package config

import (
	"flag"
	"os"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

const (
	// DefaultConfigPath is where the setup wizard writes its result.
	DefaultConfigPath = "config.yaml"

	defaultListenAddr       = ":8000"
	defaultPricesFile       = "test.csv"
	defaultRotationInterval = 15 * time.Second
	defaultStartingCash     = "10000"
	defaultDBPath           = "data/mocktrader.db"
	defaultWALDir           = "wal/trades"
	defaultTokenTTL         = 24 * time.Hour
)

// Config holds the full service configuration.
type Config struct {
	ListenAddr       string
	PricesFile       string
	RotationInterval time.Duration
	StartingCash     decimal.Decimal
	DBPath           string
	WALDir           string
	JWTSecret        string
	TokenTTL         time.Duration

	// RunSetup is set by the -setup flag: run the interactive wizard and exit.
	RunSetup bool
}

type configTmp struct {
	ListenAddr       string        `yaml:"listen_addr"`
	PricesFile       string        `yaml:"prices_file"`
	RotationInterval time.Duration `yaml:"rotation_interval"`
	StartingCash     string        `yaml:"starting_cash"`
	DBPath           string        `yaml:"db_path"`
	WALDir           string        `yaml:"wal_dir"`
	JWTSecret        string        `yaml:"jwt_secret"`
	TokenTTL         time.Duration `yaml:"token_ttl"`
}

// Get builds the configuration from an optional YAML file plus flag and
// environment overrides. Flags win over the file; the MOCKTRADER_JWT_SECRET
// environment variable wins over both.
func Get() (*Config, error) {
	var (
		configPath = flag.String("config", "", "path to yaml config")
		setup      = flag.Bool("setup", false, "run the interactive setup wizard and exit")
		listen     = flag.String("listen", "", "listen address, example: :8000")
		prices     = flag.String("prices", "", "path to the price CSV file")
		rotation   = flag.Duration("rotation", 0, "price rotation interval")
	)
	flag.Parse()

	cfg := defaults()

	if *configPath != "" {
		fileCfg, err := fromYaml(*configPath)
		if err != nil {
			return nil, err
		}
		cfg = fileCfg
	}

	if *listen != "" {
		cfg.ListenAddr = *listen
	}
	if *prices != "" {
		cfg.PricesFile = *prices
	}
	if *rotation > 0 {
		cfg.RotationInterval = *rotation
	}
	if secret := os.Getenv("MOCKTRADER_JWT_SECRET"); secret != "" {
		cfg.JWTSecret = secret
	}
	cfg.RunSetup = *setup

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func defaults() *Config {
	return &Config{
		ListenAddr:       defaultListenAddr,
		PricesFile:       defaultPricesFile,
		RotationInterval: defaultRotationInterval,
		StartingCash:     decimal.RequireFromString(defaultStartingCash),
		DBPath:           defaultDBPath,
		WALDir:           defaultWALDir,
		JWTSecret:        "jwtsecretkey",
		TokenTTL:         defaultTokenTTL,
	}
}

func fromYaml(path string) (*Config, error) {
	payload, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read config")
	}

	var tmp configTmp
	if err := yaml.Unmarshal(payload, &tmp); err != nil {
		return nil, errors.Wrap(err, "parse config")
	}

	cfg := defaults()
	if tmp.ListenAddr != "" {
		cfg.ListenAddr = tmp.ListenAddr
	}
	if tmp.PricesFile != "" {
		cfg.PricesFile = tmp.PricesFile
	}
	if tmp.RotationInterval > 0 {
		cfg.RotationInterval = tmp.RotationInterval
	}
	if tmp.StartingCash != "" {
		cash, err := decimal.NewFromString(tmp.StartingCash)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid starting_cash %q", tmp.StartingCash)
		}
		cfg.StartingCash = cash
	}
	if tmp.DBPath != "" {
		cfg.DBPath = tmp.DBPath
	}
	if tmp.WALDir != "" {
		cfg.WALDir = tmp.WALDir
	}
	if tmp.JWTSecret != "" {
		cfg.JWTSecret = tmp.JWTSecret
	}
	if tmp.TokenTTL > 0 {
		cfg.TokenTTL = tmp.TokenTTL
	}
	return cfg, nil
}

// Validate checks the configuration for values the service cannot run with.
func (c *Config) Validate() error {
	if c.ListenAddr == "" {
		return errors.New("listen address is required")
	}
	if c.PricesFile == "" {
		return errors.New("prices file is required")
	}
	if c.RotationInterval <= 0 {
		return errors.New("rotation interval must be positive")
	}
	if c.StartingCash.IsNegative() {
		return errors.New("starting cash must not be negative")
	}
	if c.JWTSecret == "" {
		return errors.New("jwt secret is required")
	}
	if c.TokenTTL <= 0 {
		return errors.New("token ttl must be positive")
	}
	return nil
}

// Write serializes the configuration to a YAML file, used by the setup
// wizard.
func (c *Config) Write(path string) error {
	tmp := configTmp{
		ListenAddr:       c.ListenAddr,
		PricesFile:       c.PricesFile,
		RotationInterval: c.RotationInterval,
		StartingCash:     c.StartingCash.String(),
		DBPath:           c.DBPath,
		WALDir:           c.WALDir,
		JWTSecret:        c.JWTSecret,
		TokenTTL:         c.TokenTTL,
	}
	payload, err := yaml.Marshal(tmp)
	if err != nil {
		return errors.Wrap(err, "marshal config")
	}
	if err := os.WriteFile(path, payload, 0o644); err != nil {
		return errors.Wrap(err, "write config")
	}
	return nil
}
