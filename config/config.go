// Package config handles application configuration.
//
// Configuration is layered: built-in defaults, then the .conf file in
// the data directory, then command-line flags.
package config

import (
	"os"
	"path/filepath"
	"runtime"
)

// NetworkType identifies mainnet or testnet.
type NetworkType string

const (
	Mainnet NetworkType = "mainnet"
	Testnet NetworkType = "testnet"
)

// Config holds runtime configuration for the gateway daemon.
type Config struct {
	// Core
	Network NetworkType `conf:"network"`
	DataDir string      `conf:"datadir"`

	// Chain access
	Chain ChainConfig

	// Invoice issuance
	Invoice InvoiceConfig

	// Master-seed wallet
	Wallet WalletConfig

	// Wallet-signature login
	Auth AuthConfig

	// HTTP API
	HTTP HTTPConfig

	// Logging
	Log LogConfig
}

// ChainConfig holds upstream RPC settings for the target chain.
type ChainConfig struct {
	ChainID               uint64   `conf:"chain.id"`
	Endpoints             []string `conf:"chain.endpoints"` // Ordered; failover walks this list.
	RequiredConfirmations uint64   `conf:"chain.confirmations"`
	FallbackGasPriceWei   string   `conf:"chain.fallback_gas_price"` // Used when every endpoint fails.
}

// InvoiceConfig holds payment-request settings.
type InvoiceConfig struct {
	Amount       string `conf:"invoice.amount"`     // Decimal, display only.
	AmountWei    string `conf:"invoice.amount_wei"` // Authoritative integer amount.
	TTLSeconds   int64  `conf:"invoice.ttl"`
	AddressSpace uint32 `conf:"invoice.address_space"` // Modulus of the id -> index hash.
}

// WalletConfig holds master-seed settings. The passphrase itself is
// never written to the config file; only the env var name is.
type WalletConfig struct {
	KeystoreDir   string `conf:"wallet.keystore_dir"`
	PassphraseEnv string `conf:"wallet.passphrase_env"`
}

// AuthConfig holds nonce/session lifetimes.
type AuthConfig struct {
	NonceTTLSeconds   int64 `conf:"auth.nonce_ttl"`
	SessionTTLSeconds int64 `conf:"auth.session_ttl"`
}

// HTTPConfig holds the API server settings.
type HTTPConfig struct {
	Enabled       bool     `conf:"http.enabled"`
	Addr          string   `conf:"http.addr"`
	Port          int      `conf:"http.port"`
	AllowedIPs    []string `conf:"http.allowed"`
	CORSOrigins   []string `conf:"http.cors"` // Allowed CORS origins ("*" = all).
	CreatePerMin  int      `conf:"http.create_per_min"`
	CreateBurst   int      `conf:"http.create_burst"`
	MaxBodyBytes  int64    `conf:"http.max_body"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `conf:"log.level"`
	File  string `conf:"log.file"`
	JSON  bool   `conf:"log.json"`
}

// DefaultDataDir returns the platform-specific default data directory.
//
//	Linux:   ~/.chainvoice
//	macOS:   ~/Library/Application Support/Chainvoice
//	Windows: %APPDATA%\Chainvoice
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".chainvoice"
	}
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", "Chainvoice")
	case "windows":
		appData := os.Getenv("APPDATA")
		if appData != "" {
			return filepath.Join(appData, "Chainvoice")
		}
		return filepath.Join(home, "AppData", "Roaming", "Chainvoice")
	default:
		return filepath.Join(home, ".chainvoice")
	}
}

// NetworkDataDir returns the network-specific data directory.
func (c *Config) NetworkDataDir() string {
	return filepath.Join(c.DataDir, string(c.Network))
}

// InvoicesDir returns the invoice database directory.
func (c *Config) InvoicesDir() string {
	return filepath.Join(c.NetworkDataDir(), "invoices")
}

// KeystoreDir returns the keystore directory.
func (c *Config) KeystoreDir() string {
	return filepath.Join(c.NetworkDataDir(), "keystore")
}

// LogsDir returns the logs directory.
func (c *Config) LogsDir() string {
	return filepath.Join(c.DataDir, "logs")
}

// ConfigFile returns the config file path.
func (c *Config) ConfigFile() string {
	return filepath.Join(c.DataDir, "chainvoice.conf")
}

// ResolvedKeystoreDir returns the configured keystore directory,
// defaulting under the network data directory.
func (c *Config) ResolvedKeystoreDir() string {
	if c.Wallet.KeystoreDir != "" {
		return c.Wallet.KeystoreDir
	}
	return c.KeystoreDir()
}
