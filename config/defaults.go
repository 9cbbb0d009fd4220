package config

// DefaultMainnet returns the default gateway configuration for mainnet.
func DefaultMainnet() *Config {
	return &Config{
		Network: Mainnet,
		DataDir: DefaultDataDir(),
		Chain: ChainConfig{
			ChainID: 1,
			Endpoints: []string{
				"https://eth.llamarpc.com",
				"https://rpc.ankr.com/eth",
				"https://cloudflare-eth.com",
			},
			RequiredConfirmations: 12,
			FallbackGasPriceWei:   "20000000000", // 20 gwei
		},
		Invoice: InvoiceConfig{
			Amount:       "0.001",
			AmountWei:    "1000000000000000",
			TTLSeconds:   300,
			AddressSpace: 1_000_000,
		},
		Wallet: WalletConfig{
			PassphraseEnv: "CHAINVOICE_PASSPHRASE",
		},
		Auth: AuthConfig{
			NonceTTLSeconds:   300,
			SessionTTLSeconds: 86400,
		},
		HTTP: HTTPConfig{
			Enabled:      true,
			Addr:         "127.0.0.1",
			Port:         8090,
			AllowedIPs:   []string{},
			CORSOrigins:  []string{},
			CreatePerMin: 10,
			CreateBurst:  5,
			MaxBodyBytes: 1 << 20,
		},
		Log: LogConfig{
			Level: "info",
			JSON:  false,
		},
	}
}

// DefaultTestnet returns the default gateway configuration for the
// Sepolia testnet.
func DefaultTestnet() *Config {
	cfg := DefaultMainnet()
	cfg.Network = Testnet
	cfg.Chain.ChainID = 11155111
	cfg.Chain.Endpoints = []string{
		"https://rpc.sepolia.org",
		"https://ethereum-sepolia-rpc.publicnode.com",
	}
	cfg.Chain.RequiredConfirmations = 3
	cfg.HTTP.Port = 8091
	return cfg
}

// Default returns the default configuration for the given network.
func Default(network NetworkType) *Config {
	switch network {
	case Testnet:
		return DefaultTestnet()
	default:
		return DefaultMainnet()
	}
}
