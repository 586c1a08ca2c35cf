// Package config handles configuration loading and validation.
package config

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds experiment driver configuration. It is built once at
// startup and passed by reference into each component; nothing reads
// the environment after Load returns.
type Config struct {
	NodeID string

	// Chain endpoints and identity.
	RPCURL       string // Tendermint JSON-RPC endpoint
	LCDURL       string // Cosmos LCD REST endpoint
	WSURL        string // Tendermint websocket endpoint (optional fast confirm path)
	ChainID      string
	Bech32Prefix string
	Contract     string

	// Signing credential; exactly one of these must be set for the worker.
	Mnemonic   string
	PrivKeyHex string

	// Fee strategy (fixed, no estimation).
	Denom     string
	FeeAmount int64
	GasLimit  uint64

	// Broadcast worker process.
	WorkerBin     string
	WorkerTimeout time.Duration

	// Experiment loop.
	NTrials           int // 0 = unbounded
	SleepBetween      time.Duration
	DisplayHold       time.Duration
	DisplayURL        string // empty = no-op display
	SendFullPayload   bool
	IncludeTxHashInQR bool

	// Confirmation polling.
	ConfirmEnabled  bool
	ConfirmPolls    int
	ConfirmInterval time.Duration

	// Outputs.
	CSVFilename  string
	DatabasePath string // empty = no trial history store
	MetricsAddr  string // empty = no Prometheus endpoint
}

// Defaults
const (
	DefaultNodeID          = "node-t-8821"
	DefaultRPCURL          = "http://localhost:26657"
	DefaultLCDURL          = "http://localhost:1317"
	DefaultChainID         = "yamalog-1"
	DefaultBech32Prefix    = "wasm"
	DefaultDenom           = "ustake"
	DefaultFeeAmount       = 5000
	DefaultGasLimit        = 300000
	DefaultWorkerBin       = "sendworker"
	DefaultWorkerTimeout   = 180 * time.Second
	DefaultDisplayHold     = 20 * time.Second
	DefaultCSVFilename     = "qr_tx_log_spec.csv"
	DefaultConfirmPolls    = 45
	DefaultConfirmInterval = 2000 * time.Millisecond
)

// Load reads configuration from environment variables and command-line
// flags. Flags take precedence over environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		NodeID:            DefaultNodeID,
		RPCURL:            DefaultRPCURL,
		LCDURL:            DefaultLCDURL,
		ChainID:           DefaultChainID,
		Bech32Prefix:      DefaultBech32Prefix,
		Denom:             DefaultDenom,
		FeeAmount:         DefaultFeeAmount,
		GasLimit:          DefaultGasLimit,
		WorkerBin:         DefaultWorkerBin,
		WorkerTimeout:     DefaultWorkerTimeout,
		DisplayHold:       DefaultDisplayHold,
		CSVFilename:       DefaultCSVFilename,
		ConfirmPolls:      DefaultConfirmPolls,
		ConfirmInterval:   DefaultConfirmInterval,
		SendFullPayload:   true,
		IncludeTxHashInQR: true,
	}

	loadEnv(cfg)

	var (
		rpcURL    = flag.String("rpc", cfg.RPCURL, "Tendermint RPC URL")
		lcdURL    = flag.String("lcd", cfg.LCDURL, "LCD REST URL")
		wsURL     = flag.String("ws", cfg.WSURL, "Tendermint websocket URL (optional)")
		contract  = flag.String("contract", cfg.Contract, "Contract address")
		trials    = flag.Int("trials", cfg.NTrials, "Number of trials (0 = unbounded)")
		out       = flag.String("out", cfg.CSVFilename, "CSV output path")
		dbPath    = flag.String("db", cfg.DatabasePath, "SQLite trial history path (optional)")
		workerBin = flag.String("worker", cfg.WorkerBin, "Broadcast worker binary")
	)
	flag.Parse()

	cfg.RPCURL = *rpcURL
	cfg.LCDURL = *lcdURL
	cfg.WSURL = *wsURL
	cfg.Contract = *contract
	cfg.NTrials = *trials
	cfg.CSVFilename = *out
	cfg.DatabasePath = *dbPath
	cfg.WorkerBin = *workerBin

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadEnv fills cfg from environment variables.
func loadEnv(cfg *Config) {
	if v := os.Getenv("NODE_ID"); v != "" {
		cfg.NodeID = v
	}
	if v := os.Getenv("RPC_URL"); v != "" {
		cfg.RPCURL = v
	}
	if v := os.Getenv("LCD_URL"); v != "" {
		cfg.LCDURL = v
	}
	if v := os.Getenv("WS_URL"); v != "" {
		cfg.WSURL = v
	}
	if v := os.Getenv("CHAIN_ID"); v != "" {
		cfg.ChainID = v
	}
	if v := os.Getenv("BECH32_PREFIX"); v != "" {
		cfg.Bech32Prefix = v
	}
	if v := os.Getenv("CONTRACT"); v != "" {
		cfg.Contract = v
	}
	if v := os.Getenv("MNEMONIC"); v != "" {
		cfg.Mnemonic = v
	}
	if v := os.Getenv("PRIV_KEY_HEX"); v != "" {
		cfg.PrivKeyHex = v
	}
	if v := os.Getenv("DENOM"); v != "" {
		cfg.Denom = v
	}
	if v := os.Getenv("FEE_AMOUNT"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n >= 0 {
			cfg.FeeAmount = n
		}
	}
	if v := os.Getenv("GAS_LIMIT"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil && n > 0 {
			cfg.GasLimit = n
		}
	}
	if v := os.Getenv("WORKER_BIN"); v != "" {
		cfg.WorkerBin = v
	}
	if v := os.Getenv("WORKER_TIMEOUT_SEC"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.WorkerTimeout = time.Duration(n) * time.Second
		}
	}
	if v := os.Getenv("N_TRIALS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			cfg.NTrials = n
		}
	}
	if v := os.Getenv("SLEEP_BETWEEN_SEC"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f >= 0 {
			cfg.SleepBetween = time.Duration(f * float64(time.Second))
		}
	}
	if v := os.Getenv("SLEEP_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			cfg.SleepBetween = time.Duration(n) * time.Millisecond
		}
	}
	if v := os.Getenv("DISPLAY_HOLD_SEC"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			cfg.DisplayHold = time.Duration(n) * time.Second
		}
	}
	if v := os.Getenv("DISPLAY_URL"); v != "" {
		cfg.DisplayURL = v
	}
	if v := os.Getenv("CSV_FILENAME"); v != "" {
		cfg.CSVFilename = v
	}
	if v := os.Getenv("OUT"); v != "" {
		cfg.CSVFilename = v
	}
	if v := os.Getenv("DATABASE_PATH"); v != "" {
		cfg.DatabasePath = v
	}
	if v := os.Getenv("METRICS_ADDR"); v != "" {
		cfg.MetricsAddr = v
	}
	if v := os.Getenv("CONFIRM_EXPECTED"); v != "" {
		cfg.ConfirmEnabled = v == "1" || v == "true"
	}
	if v := os.Getenv("CONFIRM_POLLS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.ConfirmPolls = n
		}
	}
	if v := os.Getenv("CONFIRM_INTERVAL_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.ConfirmInterval = time.Duration(n) * time.Millisecond
		}
	}
	if v := os.Getenv("SEND_FULL_PAYLOAD"); v != "" {
		cfg.SendFullPayload = v == "1" || v == "true"
	}
	if v := os.Getenv("INCLUDE_TXHASH_IN_QR"); v != "" {
		cfg.IncludeTxHashInQR = v == "1" || v == "true"
	}
}

// Validate validates the configuration. Failures here are fatal at
// startup; no trial runs with a partially valid config.
func (c *Config) Validate() error {
	if c.RPCURL == "" {
		return fmt.Errorf("RPC URL is required")
	}
	if c.LCDURL == "" {
		return fmt.Errorf("LCD URL is required")
	}
	if c.ChainID == "" {
		return fmt.Errorf("chain ID is required")
	}
	if c.Contract == "" {
		return fmt.Errorf("contract address is required")
	}
	if c.CSVFilename == "" {
		return fmt.Errorf("CSV output path is required")
	}
	if c.NTrials < 0 {
		return fmt.Errorf("trial count cannot be negative")
	}
	if c.ConfirmPolls <= 0 {
		return fmt.Errorf("confirm poll count must be positive")
	}
	if c.ConfirmInterval <= 0 {
		return fmt.Errorf("confirm poll interval must be positive")
	}
	if c.WorkerTimeout <= 0 {
		return fmt.Errorf("worker timeout must be positive")
	}
	return nil
}

// ValidateCredential checks that a signing credential is present.
// Only the broadcast worker needs this; the orchestrator never holds
// the key.
func (c *Config) ValidateCredential() error {
	if c.Mnemonic == "" && c.PrivKeyHex == "" {
		return fmt.Errorf("a signing credential is required: set MNEMONIC or PRIV_KEY_HEX")
	}
	if c.Mnemonic != "" && c.PrivKeyHex != "" {
		return fmt.Errorf("set only one of MNEMONIC or PRIV_KEY_HEX")
	}
	return nil
}

// LoadWorker reads the worker-side configuration from the environment
// only. The worker is invoked as a child process and must not consume
// the orchestrator's flag set.
func LoadWorker() (*Config, error) {
	cfg := &Config{
		NodeID:          DefaultNodeID,
		RPCURL:          DefaultRPCURL,
		LCDURL:          DefaultLCDURL,
		ChainID:         DefaultChainID,
		Bech32Prefix:    DefaultBech32Prefix,
		Denom:           DefaultDenom,
		FeeAmount:       DefaultFeeAmount,
		GasLimit:        DefaultGasLimit,
		WorkerTimeout:   DefaultWorkerTimeout,
		CSVFilename:     DefaultCSVFilename,
		ConfirmPolls:    DefaultConfirmPolls,
		ConfirmInterval: DefaultConfirmInterval,
	}
	loadEnv(cfg)

	if cfg.Contract == "" {
		return nil, fmt.Errorf("contract address is required")
	}
	if err := cfg.ValidateCredential(); err != nil {
		return nil, err
	}
	return cfg, nil
}
