package config

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// LoadFile loads configuration from a .conf file.
// Format: key = value (one per line, # for comments)
func LoadFile(path string) (map[string]string, error) {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return make(map[string]string), nil
		}
		return nil, err
	}
	defer file.Close()

	values := make(map[string]string)
	scanner := bufio.NewScanner(file)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())

		// Skip empty lines and comments
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		// Parse key = value
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("line %d: invalid format (expected key = value)", lineNum)
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		// Remove quotes if present
		if len(value) >= 2 {
			if (value[0] == '"' && value[len(value)-1] == '"') ||
				(value[0] == '\'' && value[len(value)-1] == '\'') {
				value = value[1 : len(value)-1]
			}
		}

		values[key] = value
	}

	return values, scanner.Err()
}

// ApplyFileConfig applies file configuration to a Config struct.
func ApplyFileConfig(cfg *Config, values map[string]string) error {
	for key, value := range values {
		if err := setConfigValue(cfg, key, value); err != nil {
			return fmt.Errorf("config key %q: %w", key, err)
		}
	}
	return nil
}

// setConfigValue sets a config value by key.
func setConfigValue(cfg *Config, key, value string) error {
	switch key {
	// Core
	case "network":
		cfg.Network = NetworkType(value)
	case "datadir":
		cfg.DataDir = value

	// Chain
	case "chain.id":
		id, err := strconv.ParseUint(value, 10, 64)
		if err != nil {
			return err
		}
		cfg.Chain.ChainID = id
	case "chain.endpoints":
		cfg.Chain.Endpoints = parseStringList(value)
	case "chain.confirmations":
		n, err := strconv.ParseUint(value, 10, 64)
		if err != nil {
			return err
		}
		cfg.Chain.RequiredConfirmations = n
	case "chain.fallback_gas_price":
		cfg.Chain.FallbackGasPriceWei = value

	// Invoice
	case "invoice.amount":
		cfg.Invoice.Amount = value
	case "invoice.amount_wei":
		cfg.Invoice.AmountWei = value
	case "invoice.ttl":
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return err
		}
		cfg.Invoice.TTLSeconds = n
	case "invoice.address_space":
		n, err := strconv.ParseUint(value, 10, 32)
		if err != nil {
			return err
		}
		cfg.Invoice.AddressSpace = uint32(n)

	// Wallet
	case "wallet.keystore_dir":
		cfg.Wallet.KeystoreDir = value
	case "wallet.passphrase_env":
		cfg.Wallet.PassphraseEnv = value

	// Auth
	case "auth.nonce_ttl":
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return err
		}
		cfg.Auth.NonceTTLSeconds = n
	case "auth.session_ttl":
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return err
		}
		cfg.Auth.SessionTTLSeconds = n

	// HTTP
	case "http.enabled", "http":
		cfg.HTTP.Enabled = parseBool(value)
	case "http.addr":
		cfg.HTTP.Addr = value
	case "http.port":
		port, err := strconv.Atoi(value)
		if err != nil {
			return err
		}
		cfg.HTTP.Port = port
	case "http.allowed":
		cfg.HTTP.AllowedIPs = parseStringList(value)
	case "http.cors":
		cfg.HTTP.CORSOrigins = parseStringList(value)
	case "http.create_per_min":
		n, err := strconv.Atoi(value)
		if err != nil {
			return err
		}
		cfg.HTTP.CreatePerMin = n
	case "http.create_burst":
		n, err := strconv.Atoi(value)
		if err != nil {
			return err
		}
		cfg.HTTP.CreateBurst = n
	case "http.max_body":
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return err
		}
		cfg.HTTP.MaxBodyBytes = n

	// Logging
	case "log.level":
		cfg.Log.Level = value
	case "log.file":
		cfg.Log.File = value
	case "log.json":
		cfg.Log.JSON = parseBool(value)

	default:
		// Unknown keys are ignored
	}
	return nil
}

// parseBool parses a boolean value.
func parseBool(s string) bool {
	s = strings.ToLower(s)
	return s == "true" || s == "1" || s == "yes" || s == "on"
}

// parseStringList parses a comma-separated list.
func parseStringList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}

// WriteDefaultConfig writes a default configuration file.
func WriteDefaultConfig(path string, network NetworkType) error {
	def := Default(network)
	content := `# Chainvoice Gateway Configuration

# Network: mainnet or testnet
network = ` + string(network) + `

# Data directory (default: ~/.chainvoice)
# datadir = ~/.chainvoice

# ============================================================================
# Chain Access
# ============================================================================

chain.id = ` + strconv.FormatUint(def.Chain.ChainID, 10) + `

# Upstream JSON-RPC endpoints, comma-separated and tried in order.
chain.endpoints = ` + strings.Join(def.Chain.Endpoints, ",") + `

# Blocks on top of the payment transaction before an invoice completes.
chain.confirmations = ` + strconv.FormatUint(def.Chain.RequiredConfirmations, 10) + `

# Gas price estimate (wei) returned when every endpoint is down.
chain.fallback_gas_price = ` + def.Chain.FallbackGasPriceWei + `

# ============================================================================
# Invoices
# ============================================================================

# Fixed invoice amount; the wei form is authoritative.
invoice.amount = ` + def.Invoice.Amount + `
invoice.amount_wei = ` + def.Invoice.AmountWei + `

# Seconds until an unpaid invoice expires.
invoice.ttl = 300

# Size of the derivation index space (modulus of the id hash).
invoice.address_space = 1000000

# ============================================================================
# Wallet
# ============================================================================

# Directory holding the encrypted master-seed keystore
# (default: <datadir>/<network>/keystore).
# wallet.keystore_dir =

# Environment variable holding the keystore passphrase.
wallet.passphrase_env = CHAINVOICE_PASSPHRASE

# ============================================================================
# Wallet Login
# ============================================================================

# Nonce and session lifetimes in seconds.
auth.nonce_ttl = 300
auth.session_ttl = 86400

# ============================================================================
# HTTP API
# ============================================================================

http.enabled = true
http.addr = 127.0.0.1
http.port = ` + strconv.Itoa(def.HTTP.Port) + `

# Restrict callers by IP (empty = allow all)
# http.allowed = 127.0.0.1

# CORS allowed origins ("*" for all)
# http.cors = http://localhost:3000

# Invoice-creation rate limit per client IP.
http.create_per_min = 10
http.create_burst = 5

# ============================================================================
# Logging
# ============================================================================

log.level = info
# log.file =
log.json = false
`
	return os.WriteFile(path, []byte(content), 0644)
}
