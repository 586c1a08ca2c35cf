package config

import (
	"testing"
	"time"
)

func validConfig() *Config {
	return &Config{
		RPCURL:          DefaultRPCURL,
		LCDURL:          DefaultLCDURL,
		ChainID:         DefaultChainID,
		Contract:        "wasm1contract",
		CSVFilename:     DefaultCSVFilename,
		ConfirmPolls:    DefaultConfirmPolls,
		ConfirmInterval: DefaultConfirmInterval,
		WorkerTimeout:   DefaultWorkerTimeout,
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{
			name:    "valid config",
			mutate:  func(c *Config) {},
			wantErr: false,
		},
		{
			name:    "unbounded trials allowed",
			mutate:  func(c *Config) { c.NTrials = 0 },
			wantErr: false,
		},
		{
			name:    "missing RPC URL",
			mutate:  func(c *Config) { c.RPCURL = "" },
			wantErr: true,
		},
		{
			name:    "missing LCD URL",
			mutate:  func(c *Config) { c.LCDURL = "" },
			wantErr: true,
		},
		{
			name:    "missing chain ID",
			mutate:  func(c *Config) { c.ChainID = "" },
			wantErr: true,
		},
		{
			name:    "missing contract",
			mutate:  func(c *Config) { c.Contract = "" },
			wantErr: true,
		},
		{
			name:    "missing CSV path",
			mutate:  func(c *Config) { c.CSVFilename = "" },
			wantErr: true,
		},
		{
			name:    "negative trials",
			mutate:  func(c *Config) { c.NTrials = -1 },
			wantErr: true,
		},
		{
			name:    "zero confirm polls",
			mutate:  func(c *Config) { c.ConfirmPolls = 0 },
			wantErr: true,
		},
		{
			name:    "zero confirm interval",
			mutate:  func(c *Config) { c.ConfirmInterval = 0 },
			wantErr: true,
		},
		{
			name:    "zero worker timeout",
			mutate:  func(c *Config) { c.WorkerTimeout = 0 },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateCredential(t *testing.T) {
	tests := []struct {
		name       string
		mnemonic   string
		privKeyHex string
		wantErr    bool
	}{
		{name: "mnemonic only", mnemonic: "word ...", wantErr: false},
		{name: "hex key only", privKeyHex: "9d61", wantErr: false},
		{name: "neither", wantErr: true},
		{name: "both", mnemonic: "word ...", privKeyHex: "9d61", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{Mnemonic: tt.mnemonic, PrivKeyHex: tt.privKeyHex}
			err := cfg.ValidateCredential()
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateCredential() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestLoadWorkerFromEnv(t *testing.T) {
	t.Setenv("CONTRACT", "wasm1contract")
	t.Setenv("PRIV_KEY_HEX", "9d61")
	t.Setenv("CHAIN_ID", "testing-1")
	t.Setenv("FEE_AMOUNT", "7500")
	t.Setenv("GAS_LIMIT", "400000")

	cfg, err := LoadWorker()
	if err != nil {
		t.Fatalf("LoadWorker: %v", err)
	}
	if cfg.Contract != "wasm1contract" {
		t.Errorf("Contract = %q", cfg.Contract)
	}
	if cfg.ChainID != "testing-1" {
		t.Errorf("ChainID = %q", cfg.ChainID)
	}
	if cfg.FeeAmount != 7500 {
		t.Errorf("FeeAmount = %d", cfg.FeeAmount)
	}
	if cfg.GasLimit != 400000 {
		t.Errorf("GasLimit = %d", cfg.GasLimit)
	}
	if cfg.RPCURL != DefaultRPCURL {
		t.Errorf("RPCURL = %q, want default", cfg.RPCURL)
	}
}

func TestLoadWorkerRequiresContract(t *testing.T) {
	t.Setenv("CONTRACT", "")
	t.Setenv("PRIV_KEY_HEX", "9d61")

	if _, err := LoadWorker(); err == nil {
		t.Error("LoadWorker without CONTRACT did not error")
	}
}

func TestSleepEnvVariants(t *testing.T) {
	t.Run("SLEEP_BETWEEN_SEC", func(t *testing.T) {
		cfg := &Config{}
		t.Setenv("SLEEP_BETWEEN_SEC", "1.5")
		loadEnv(cfg)
		if cfg.SleepBetween != 1500*time.Millisecond {
			t.Errorf("SleepBetween = %v, want 1.5s", cfg.SleepBetween)
		}
	})

	t.Run("SLEEP_MS overrides", func(t *testing.T) {
		cfg := &Config{}
		t.Setenv("SLEEP_BETWEEN_SEC", "1.5")
		t.Setenv("SLEEP_MS", "250")
		loadEnv(cfg)
		if cfg.SleepBetween != 250*time.Millisecond {
			t.Errorf("SleepBetween = %v, want 250ms", cfg.SleepBetween)
		}
	})
}
