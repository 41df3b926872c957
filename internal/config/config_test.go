package config

import (
	"errors"
	"os"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testToken = "0x455e53CBB86018Ac2B8092FdCd39d8444aFFC3F6"

var testEnvKeys = []string{
	"LOG_ZAP_MODE",
	"PRINT_CONFIGURATION_TO_LOGS",
	"ETHEREUM_NODE_URL",
	"TOKEN_CONTRACT_ADDRESS",
	"CONFIRMATIONS",
	"LABELED_ADDRESSES",
	"STORE_UNLABELED_TRANSFERS",
	"KAFKA_BROKERS",
}

func clearEnv() {
	for _, key := range testEnvKeys {
		os.Unsetenv(key)
	}
}

func validConfig() Config {
	return Config{
		EthereumNodeUrl:           "ws://localhost:8546",
		TokenContractAddress:      testToken,
		TokenSymbol:               "POL",
		TokenDecimals:             18,
		Confirmations:             20,
		MaxPendingBlockSpan:       1024,
		DBPath:                    "./db/sqlite/netflow",
		BadgerPath:                "./db/badger",
		LabeledAddressesLabel:     "binance",
		RPCPort:                   8080,
		ReplayMaxChunkSize:        2000,
		StreamQueueSize:           256,
		ReconnectMaxAttempts:      8,
		ReconnectInitialBackoffMs: 500,
		ReconnectMaxBackoffMs:     30000,
		LedgerApplyMaxAttempts:    3,
		KafkaTopic:                "netflow.transfers",
	}
}

func TestGet(t *testing.T) {
	clearEnv()
	os.Setenv("LOG_ZAP_MODE", "test_mode")
	os.Setenv("ETHEREUM_NODE_URL", "ws://node:8546")
	os.Setenv("PRINT_CONFIGURATION_TO_LOGS", "true")

	cfg := Get()

	assert.Equal(t, "test_mode", cfg.LogZapMode)
	assert.Equal(t, "ws://node:8546", cfg.EthereumNodeUrl)
	assert.Equal(t, "true", cfg.PrintConfigurationToLogs)

	// Test singleton behavior
	cfg2 := Get()
	assert.Equal(t, cfg, cfg2)
}

func TestLoadConfigDefaults(t *testing.T) {
	viper.Reset()
	clearEnv()

	cfg := loadConfig()

	assert.Equal(t, uint64(20), cfg.Confirmations)
	assert.Equal(t, uint64(1024), cfg.MaxPendingBlockSpan)
	assert.Equal(t, "POL", cfg.TokenSymbol)
	assert.Equal(t, int32(18), cfg.TokenDecimals)
	assert.Equal(t, 8080, cfg.RPCPort)
	assert.True(t, cfg.StoreUnlabeledTransfers)
	assert.Equal(t, "binance", cfg.LabeledAddressesLabel)
	assert.Equal(t, "netflow.transfers", cfg.KafkaTopic)
}

func TestLoadConfigWithEnvVars(t *testing.T) {
	viper.Reset()
	clearEnv()
	os.Setenv("LOG_ZAP_MODE", "debug")
	os.Setenv("CONFIRMATIONS", "0")
	os.Setenv("STORE_UNLABELED_TRANSFERS", "false")
	os.Setenv("TOKEN_CONTRACT_ADDRESS", testToken)

	cfg := loadConfig()

	assert.Equal(t, "debug", cfg.LogZapMode)
	assert.Equal(t, uint64(0), cfg.Confirmations, "zero confirmations is a legal setting")
	assert.False(t, cfg.StoreUnlabeledTransfers)
	assert.Equal(t, testToken, cfg.TokenContractAddress)
}

func TestLoadConfigWithConfigFile(t *testing.T) {
	viper.Reset()
	clearEnv()

	content := []byte(`
LOG_ZAP_MODE=prod
ETHEREUM_NODE_URL=ws://file:8546
CONFIRMATIONS=12
`)
	err := os.WriteFile("config.env", content, 0644)
	require.NoError(t, err)
	defer os.Remove("config.env")

	cfg := loadConfig()

	assert.Equal(t, "prod", cfg.LogZapMode)
	assert.Equal(t, "ws://file:8546", cfg.EthereumNodeUrl)
	assert.Equal(t, uint64(12), cfg.Confirmations)
}

func TestEnvOverridesConfigFile(t *testing.T) {
	viper.Reset()
	clearEnv()
	content := []byte(`
LOG_ZAP_MODE=prod
CONFIRMATIONS=12
`)
	err := os.WriteFile("config.env", content, 0644)
	require.NoError(t, err)
	defer os.Remove("config.env")

	os.Setenv("CONFIRMATIONS", "3")

	cfg := loadConfig()

	assert.Equal(t, uint64(3), cfg.Confirmations)
	assert.Equal(t, "prod", cfg.LogZapMode)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{"valid", func(c *Config) {}, false},
		{"missing node url", func(c *Config) { c.EthereumNodeUrl = "" }, true},
		{"bad token address", func(c *Config) { c.TokenContractAddress = "0x1234" }, true},
		{"zero confirmations", func(c *Config) { c.Confirmations = 0 }, false},
		{"span not above confirmations", func(c *Config) { c.MaxPendingBlockSpan = 20 }, true},
		{"backoff limit below start", func(c *Config) { c.ReconnectMaxBackoffMs = 10 }, true},
		{"malformed address list", func(c *Config) { c.LabeledAddresses = "0xabc,nothex" }, true},
		{"brokers without topic", func(c *Config) {
			c.KafkaBrokers = "localhost:9092"
			c.KafkaTopic = ""
		}, true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validConfig()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if tc.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrInvalidConfig))
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestLabeledAddressList(t *testing.T) {
	t.Run("defaults when unset", func(t *testing.T) {
		cfg := validConfig()
		list, err := cfg.LabeledAddressList()
		require.NoError(t, err)
		require.Len(t, list, len(DefaultLabeledAddresses))
		assert.Equal(t, "0xf977814e90da44bfa03b6295a0616a897441acec", list[0].Address)
		assert.Equal(t, "binance", list[0].Label)
	})

	t.Run("explicit labels, whitespace and duplicates", func(t *testing.T) {
		cfg := validConfig()
		cfg.LabeledAddresses = " 0xAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA:okx , 0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb,,0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
		list, err := cfg.LabeledAddressList()
		require.NoError(t, err)
		require.Len(t, list, 2)
		assert.Equal(t, "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa", list[0].Address)
		assert.Equal(t, "okx", list[0].Label)
		assert.Equal(t, "binance", list[1].Label)
	})

	t.Run("only separators", func(t *testing.T) {
		cfg := validConfig()
		cfg.LabeledAddresses = " , ,"
		_, err := cfg.LabeledAddressList()
		assert.ErrorIs(t, err, ErrInvalidConfig)
	})
}

func TestKafkaBrokerList(t *testing.T) {
	cfg := validConfig()
	assert.Empty(t, cfg.KafkaBrokerList())

	cfg.KafkaBrokers = "a:9092, b:9092,"
	assert.Equal(t, []string{"a:9092", "b:9092"}, cfg.KafkaBrokerList())
}

// Reset the test environment after each test
func TestMain(m *testing.M) {
	code := m.Run()

	os.Remove("config.env")
	clearEnv()

	os.Exit(code)
}
