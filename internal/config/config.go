package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"reflect"
	"strings"
	"sync"

	"github.com/6529-Collections/netflow/pkg/netflow/models"
	"github.com/ethereum/go-ethereum/common"
	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

type Config struct {
	LogZapMode                string `mapstructure:"LOG_ZAP_MODE"`
	PrintConfigurationToLogs  string `mapstructure:"PRINT_CONFIGURATION_TO_LOGS"`
	EthereumNodeUrl           string `mapstructure:"ETHEREUM_NODE_URL" validate:"required,url"`
	TokenContractAddress      string `mapstructure:"TOKEN_CONTRACT_ADDRESS" validate:"required,eth_addr"`
	TokenSymbol               string `mapstructure:"TOKEN_SYMBOL" validate:"required"`
	TokenDecimals             int32  `mapstructure:"TOKEN_DECIMALS" validate:"gte=0,lte=77"`
	Confirmations             uint64 `mapstructure:"CONFIRMATIONS"`
	MaxPendingBlockSpan       uint64 `mapstructure:"MAX_PENDING_BLOCK_SPAN" validate:"gtfield=Confirmations"`
	DBPath                    string `mapstructure:"DB_PATH" validate:"required"`
	BadgerPath                string `mapstructure:"BADGER_PATH" validate:"required"`
	LabeledAddresses          string `mapstructure:"LABELED_ADDRESSES"`
	LabeledAddressesLabel     string `mapstructure:"LABELED_ADDRESSES_LABEL" validate:"required"`
	StoreUnlabeledTransfers   bool   `mapstructure:"STORE_UNLABELED_TRANSFERS"`
	RPCPort                   int    `mapstructure:"RPC_PORT" validate:"gt=0,lte=65535"`
	ReplayMaxChunkSize        uint64 `mapstructure:"REPLAY_MAX_CHUNK_SIZE" validate:"gt=0"`
	StreamQueueSize           int    `mapstructure:"STREAM_QUEUE_SIZE" validate:"gt=0"`
	ReconnectMaxAttempts      int    `mapstructure:"RECONNECT_MAX_ATTEMPTS" validate:"gt=0"`
	ReconnectInitialBackoffMs int    `mapstructure:"RECONNECT_INITIAL_BACKOFF_MS" validate:"gt=0"`
	ReconnectMaxBackoffMs     int    `mapstructure:"RECONNECT_MAX_BACKOFF_MS" validate:"gtefield=ReconnectInitialBackoffMs"`
	LedgerApplyMaxAttempts    int    `mapstructure:"LEDGER_APPLY_MAX_ATTEMPTS" validate:"gt=0"`
	KafkaBrokers              string `mapstructure:"KAFKA_BROKERS"`
	KafkaTopic                string `mapstructure:"KAFKA_TOPIC" validate:"required_with=KafkaBrokers"`
}

// Binance hot wallets on Polygon, used when LABELED_ADDRESSES is not set.
var DefaultLabeledAddresses = []string{
	"0xF977814e90dA44bFA03b6295A0616a897441aceC",
	"0xe7804c37c13166fF0b37F5aE0BB07A3aEbb6e245",
	"0x505e71695E9bc45943c58adEC1650577BcA68fD9",
	"0x290275e3db66394C52272398959845170E4DCb88",
	"0xD5C08681719445A5Fdce2Bda98b341A49050d821",
	"0x082489A616aB4D46d1947eE3F912e080815b08DA",
}

var defaults = map[string]any{
	"LOG_ZAP_MODE":                 "production",
	"TOKEN_SYMBOL":                 "POL",
	"TOKEN_DECIMALS":               18,
	"CONFIRMATIONS":                20,
	"MAX_PENDING_BLOCK_SPAN":       1024,
	"DB_PATH":                      "./db/sqlite/netflow",
	"BADGER_PATH":                  "./db/badger",
	"LABELED_ADDRESSES_LABEL":      "binance",
	"STORE_UNLABELED_TRANSFERS":    true,
	"RPC_PORT":                     8080,
	"REPLAY_MAX_CHUNK_SIZE":        2000,
	"STREAM_QUEUE_SIZE":            256,
	"RECONNECT_MAX_ATTEMPTS":       8,
	"RECONNECT_INITIAL_BACKOFF_MS": 500,
	"RECONNECT_MAX_BACKOFF_MS":     30000,
	"LEDGER_APPLY_MAX_ATTEMPTS":    3,
	"KAFKA_TOPIC":                  "netflow.transfers",
}

var lock = &sync.Mutex{}
var config *Config

var Get = get

func get() Config {
	if config == nil {
		lock.Lock()
		defer lock.Unlock()
		if config == nil {
			c := loadConfig()
			config = &c
		}
	}
	return *config
}

func loadConfig() Config {
	viperAddConfigFile()
	viperAddDefaults()
	viperAddEnv()
	cfg := initializeCfg()
	debugConfig(cfg)
	return cfg
}

func viperAddConfigFile() {
	viper.AddConfigPath(".")
	viper.SetConfigName("config")
	viper.SetConfigType("env")
}

func viperAddDefaults() {
	for key, value := range defaults {
		viper.SetDefault(key, value)
	}
}

func viperAddEnv() {
	viper.AutomaticEnv()
	// This makes sure that all envs are binded even if they are not represented in config file (https://github.com/spf13/viper/issues/584)
	valueOfConfig := reflect.ValueOf(&Config{}).Elem()
	fieldsOfConfig := reflect.TypeOf(&Config{}).Elem()
	for i := 0; i < valueOfConfig.NumField(); i++ {
		field, _ := fieldsOfConfig.FieldByName(valueOfConfig.Type().Field(i).Name)
		mapStructureVal := field.Tag.Get("mapstructure")
		err := viper.BindEnv(mapStructureVal)
		if err != nil {
			panic(fmt.Sprintf("Error binding env val '%v': %v", mapStructureVal, err))
		}
	}
}

func initializeCfg() Config {
	var cfg Config
	err := viper.ReadInConfig()
	if err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
		} else {
			panic(fmt.Sprintf("fatal error reading config file: %v", err))
		}
	}

	err = viper.Unmarshal(&cfg)
	if err != nil {
		panic(fmt.Sprintf("error unmarshaling config: %v", err))
	}
	return cfg
}

func debugConfig(cfg Config) {
	if cfg.PrintConfigurationToLogs == "true" {
		b, err := json.Marshal(cfg)
		var result string
		if err != nil {
			result = "[FAILED TO CONVERT CONF TO STRING]"
		} else {
			result = string(b)
		}
		log.Printf("[APP CONFIGURATION]: %v\n", result)
	}
}

var ErrInvalidConfig = errors.New("invalid configuration")

var validate = validator.New()

// Validate checks everything the indexer needs before it opens storage or
// dials the node.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if _, err := c.LabeledAddressList(); err != nil {
		return err
	}
	return nil
}

// LabeledAddressList parses LABELED_ADDRESSES ("address[:label]" entries,
// comma separated). Addresses come back lower-cased.
func (c Config) LabeledAddressList() ([]models.LabeledAddress, error) {
	entries := DefaultLabeledAddresses
	if strings.TrimSpace(c.LabeledAddresses) != "" {
		entries = strings.Split(c.LabeledAddresses, ",")
	}
	result := make([]models.LabeledAddress, 0, len(entries))
	seen := make(map[string]struct{}, len(entries))
	for _, entry := range entries {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		address, label, found := strings.Cut(entry, ":")
		address = strings.TrimSpace(address)
		label = strings.TrimSpace(label)
		if !found || label == "" {
			label = c.LabeledAddressesLabel
		}
		if !common.IsHexAddress(address) {
			return nil, fmt.Errorf("%w: malformed labeled address %q", ErrInvalidConfig, entry)
		}
		normalized := strings.ToLower(common.HexToAddress(address).Hex())
		if _, dup := seen[normalized]; dup {
			continue
		}
		seen[normalized] = struct{}{}
		result = append(result, models.LabeledAddress{Address: normalized, Label: label})
	}
	if len(result) == 0 {
		return nil, fmt.Errorf("%w: labeled address list is empty", ErrInvalidConfig)
	}
	return result, nil
}

// KafkaBrokerList splits KAFKA_BROKERS; empty means publishing is disabled.
func (c Config) KafkaBrokerList() []string {
	var brokers []string
	for _, b := range strings.Split(c.KafkaBrokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}
