package config

import (
	"flag"
	"fmt"
	"os"
	"strings"
)

// Flags holds parsed command-line flags.
type Flags struct {
	// Commands
	Help    bool
	Version bool

	// Core
	Network string
	DataDir string
	Config  string

	// Chain
	ChainID       uint64
	Endpoints     string
	Confirmations uint64

	// Invoice
	InvoiceTTL int64

	// Wallet
	Keystore string

	// HTTP
	HTTP        bool
	HTTPAddr    string
	HTTPPort    int
	HTTPAllowed string
	HTTPCORS    string

	// Logging
	LogLevel string
	LogFile  string
	LogJSON  bool

	// Remaining args
	Args []string

	// Explicitly-set bool flags (for true/false overrides).
	SetHTTP    bool
	SetLogJSON bool
}

// ParseFlags parses command-line flags.
func ParseFlags() *Flags {
	f := &Flags{}
	fs := flag.NewFlagSet("chainvoice", flag.ContinueOnError)

	// Commands
	fs.BoolVar(&f.Help, "help", false, "Show help message")
	fs.BoolVar(&f.Help, "h", false, "Show help message (shorthand)")
	fs.BoolVar(&f.Version, "version", false, "Show version information")
	fs.BoolVar(&f.Version, "v", false, "Show version (shorthand)")

	// Core
	fs.StringVar(&f.Network, "network", "", "Network type (mainnet or testnet)")
	fs.StringVar(&f.Network, "testnet", "", "Use testnet (shorthand for --network=testnet)")
	fs.StringVar(&f.DataDir, "datadir", "", "Data directory path")
	fs.StringVar(&f.Config, "config", "", "Config file path")
	fs.StringVar(&f.Config, "c", "", "Config file path (shorthand)")

	// Chain
	fs.Uint64Var(&f.ChainID, "chain-id", 0, "Target chain ID")
	fs.StringVar(&f.Endpoints, "endpoints", "", "Upstream RPC endpoints (comma-separated, tried in order)")
	fs.Uint64Var(&f.Confirmations, "confirmations", 0, "Required confirmations before an invoice completes")

	// Invoice
	fs.Int64Var(&f.InvoiceTTL, "invoice-ttl", 0, "Invoice lifetime in seconds")

	// Wallet
	fs.StringVar(&f.Keystore, "keystore", "", "Directory holding the encrypted master-seed keystore")

	// HTTP
	fs.BoolVar(&f.HTTP, "http", true, "Enable the HTTP API server")
	fs.StringVar(&f.HTTPAddr, "http-addr", "", "HTTP listen address")
	fs.IntVar(&f.HTTPPort, "http-port", 0, "HTTP listen port")
	fs.StringVar(&f.HTTPAllowed, "http-allowed", "", "Allowed client IPs (comma-separated)")
	fs.StringVar(&f.HTTPCORS, "http-cors", "", "Allowed CORS origins (comma-separated)")

	// Logging
	fs.StringVar(&f.LogLevel, "log-level", "", "Log level (debug, info, warn, error)")
	fs.StringVar(&f.LogFile, "log-file", "", "Log file path")
	fs.BoolVar(&f.LogJSON, "log-json", false, "Output logs as JSON")

	// Custom usage
	fs.Usage = func() {
		printUsage()
	}

	// Parse
	if err := fs.Parse(os.Args[1:]); err != nil {
		if err == flag.ErrHelp {
			os.Exit(0)
		}
		os.Exit(1)
	}

	// Handle --testnet shorthand
	if isFlagSet(fs, "testnet") {
		f.Network = "testnet"
	}
	f.SetHTTP = isFlagSet(fs, "http")
	f.SetLogJSON = isFlagSet(fs, "log-json")

	f.Args = fs.Args()

	// Detect unparsed flags caused by positional arguments stopping the parser.
	for _, arg := range f.Args {
		if strings.HasPrefix(arg, "-") {
			fmt.Fprintf(os.Stderr, "Error: flag %q was not parsed (positional argument stopped parsing)\n", arg)
			os.Exit(1)
		}
	}

	return f
}

// ApplyFlags applies command-line flags to a Config struct.
func ApplyFlags(cfg *Config, f *Flags) {
	// Core
	if f.Network != "" {
		cfg.Network = NetworkType(f.Network)
	}
	if f.DataDir != "" {
		cfg.DataDir = f.DataDir
	}

	// Chain
	if f.ChainID != 0 {
		cfg.Chain.ChainID = f.ChainID
	}
	if f.Endpoints != "" {
		cfg.Chain.Endpoints = parseStringList(f.Endpoints)
	}
	if f.Confirmations != 0 {
		cfg.Chain.RequiredConfirmations = f.Confirmations
	}

	// Invoice
	if f.InvoiceTTL != 0 {
		cfg.Invoice.TTLSeconds = f.InvoiceTTL
	}

	// Wallet
	if f.Keystore != "" {
		cfg.Wallet.KeystoreDir = f.Keystore
	}

	// HTTP
	if f.SetHTTP {
		cfg.HTTP.Enabled = f.HTTP
	}
	if f.HTTPAddr != "" {
		cfg.HTTP.Addr = f.HTTPAddr
	}
	if f.HTTPPort != 0 {
		cfg.HTTP.Port = f.HTTPPort
	}
	if f.HTTPAllowed != "" {
		cfg.HTTP.AllowedIPs = parseStringList(f.HTTPAllowed)
	}
	if f.HTTPCORS != "" {
		cfg.HTTP.CORSOrigins = parseStringList(f.HTTPCORS)
	}

	// Logging
	if f.LogLevel != "" {
		cfg.Log.Level = f.LogLevel
	}
	if f.LogFile != "" {
		cfg.Log.File = f.LogFile
	}
	if f.SetLogJSON {
		cfg.Log.JSON = f.LogJSON
	}
}

// isFlagSet checks if a flag was explicitly set.
func isFlagSet(fs *flag.FlagSet, name string) bool {
	found := false
	fs.Visit(func(f *flag.Flag) {
		if f.Name == name {
			found = true
		}
	})
	return found
}

func printUsage() {
	usage := `Chainvoice Gateway - invoice payment monitoring daemon

Usage:
  chainvoiced [options]
  chainvoiced --help

Commands:
  --help, -h      Show this help message
  --version, -v   Show version information

Core Options:
  --network       Network type: mainnet (default) or testnet
  --testnet       Shorthand for --network=testnet
  --datadir       Data directory (default: ~/.chainvoice)
  --config, -c    Config file path (default: <datadir>/chainvoice.conf)

Chain Options:
  --chain-id         Target chain ID (mainnet: 1, testnet: 11155111)
  --endpoints        Upstream RPC endpoints, comma-separated, tried in order
  --confirmations    Confirmations required before an invoice completes

Invoice Options:
  --invoice-ttl   Invoice lifetime in seconds (default: 300)

Wallet Options:
  --keystore      Directory holding the encrypted master-seed keystore

HTTP Options:
  --http          Enable the HTTP API server (default: true)
  --http-addr     HTTP listen address (default: 127.0.0.1)
  --http-port     HTTP port (mainnet: 8090, testnet: 8091)
  --http-allowed  Allowed client IPs (comma-separated)
  --http-cors     Allowed CORS origins (comma-separated)

Logging Options:
  --log-level     Log level: debug, info, warn, error (default: info)
  --log-file      Log file path (default: stdout)
  --log-json      Output logs as JSON

Examples:
  # Start against mainnet with defaults
  chainvoiced

  # Start against Sepolia with custom endpoints
  chainvoiced --testnet --endpoints=https://rpc.sepolia.org

  # Start with custom data directory
  chainvoiced --datadir=/path/to/data

Note:
  The keystore passphrase is read from the environment variable named
  by wallet.passphrase_env (default CHAINVOICE_PASSPHRASE). Data
  directories are created automatically on first start.
`
	fmt.Print(usage)
}

// Load loads configuration with the following precedence:
// 1. Default values
// 2. Auto-create data dirs + default config (idempotent)
// 3. Config file
// 4. Command-line flags
func Load() (*Config, *Flags, error) {
	flags := ParseFlags()

	// Handle help/version
	if flags.Help {
		printUsage()
		os.Exit(0)
	}
	if flags.Version {
		fmt.Println("chainvoiced version 0.1.0")
		os.Exit(0)
	}

	// Determine network first (needed for defaults)
	network := Mainnet
	if strings.ToLower(flags.Network) == "testnet" {
		network = Testnet
	}

	// Start with defaults
	cfg := Default(network)

	// Override datadir if specified
	if flags.DataDir != "" {
		cfg.DataDir = flags.DataDir
	}

	// Auto-create data directories and default config on first start.
	if err := EnsureDataDirs(cfg); err != nil {
		return nil, nil, fmt.Errorf("ensuring data dirs: %w", err)
	}

	// Determine config file path
	configPath := flags.Config
	if configPath == "" {
		configPath = cfg.ConfigFile()
	}

	// Load config file
	fileValues, err := LoadFile(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("loading config file: %w", err)
	}

	// Apply file config
	if err := ApplyFileConfig(cfg, fileValues); err != nil {
		return nil, nil, fmt.Errorf("applying config file: %w", err)
	}

	// Apply flags (highest precedence)
	ApplyFlags(cfg, flags)
	if err := Validate(cfg); err != nil {
		return nil, nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, flags, nil
}

// EnsureDataDirs creates the data directory structure and a default
// config file if they don't already exist. Idempotent.
func EnsureDataDirs(cfg *Config) error {
	dirs := []string{
		cfg.DataDir,
		cfg.NetworkDataDir(),
		cfg.InvoicesDir(),
		cfg.KeystoreDir(),
		cfg.LogsDir(),
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("creating directory %s: %w", dir, err)
		}
	}

	// Create default config if it doesn't exist.
	configPath := cfg.ConfigFile()
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		if err := WriteDefaultConfig(configPath, cfg.Network); err != nil {
			return fmt.Errorf("writing config file: %w", err)
		}
	}

	return nil
}
