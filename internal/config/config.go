package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"monadswap/internal/swap"
	"monadswap/internal/token"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ErrNoWallets means neither WALLET_* variables nor the key vault supplied
// a private key.
var ErrNoWallets = errors.New("no wallets configured: add WALLET_1=<private key> to .env")

const walletPrefix = "WALLET_"

// AppConfig is everything the driver needs, resolved from the environment.
type AppConfig struct {
	Wallets     []string
	WalletIndex int // 1-based, 0 = ask
	Network     NetworkConfig
	Bot         swap.Config
	Tokens      *token.Registry
	Vault       VaultConfig
	Ledger      LedgerConfig
	Service     ServiceConfig
	Log         LogConfig
}

type NetworkConfig struct {
	RPCURL          string
	ChainID         int64
	ApproveGasLimit int64 // 0 lets the node estimate
	SwapGasLimit    int64
	RPCTimeout      time.Duration
	ReceiptTimeout  time.Duration
}

type VaultConfig struct {
	Enabled  bool
	KeyPath  string
	DataPath string
}

type LedgerConfig struct {
	Backend     string
	Path        string
	PostgresDSN string
}

type ServiceConfig struct {
	HTTPPort      int
	HMACSecret    string
	HMACClockSkew time.Duration
}

type LogConfig struct {
	Level  string
	Format string
}

const (
	LedgerMemory   = "memory"
	LedgerFile     = "file"
	LedgerPostgres = "postgres"
)

const (
	defaultRPCURL   = "https://testnet-rpc.monad.xyz"
	defaultChainID  = 10143
	defaultRouter   = "0xCa810D095e90Daae6e867c19DF6D9A8C56db2c89"
	defaultExplorer = "https://testnet.monadexplorer.com/tx/"
)

// Load reads .env (if present) and then the process environment. Variables
// already set in the environment win over the file.
func Load() (*AppConfig, error) {
	envFile := envOr("ENV_FILE", ".env")
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load %s: %w", envFile, err)
	}

	tokens := token.Default()
	if path := envOr("TOKENS_PATH", ""); path != "" {
		entries, err := LoadTokens(path)
		if err != nil {
			return nil, fmt.Errorf("load tokens: %w", err)
		}
		if tokens, err = token.NewRegistry(entries); err != nil {
			return nil, fmt.Errorf("load tokens: %w", err)
		}
	}

	routerHex := envOr("ROUTER_ADDRESS", defaultRouter)
	if !common.IsHexAddress(routerHex) {
		return nil, fmt.Errorf("ROUTER_ADDRESS %q is not an address", routerHex)
	}

	bot := swap.DefaultConfig()
	bot.Router = common.HexToAddress(routerHex)
	bot.ExplorerURL = envOr("EXPLORER_URL", defaultExplorer)
	bot.SwapRatioBps = int64(envOrInt("SWAP_RATIO_BPS", int(bot.SwapRatioBps)))
	bot.SlippageBps = int64(envOrInt("SLIPPAGE_BPS", int(bot.SlippageBps)))
	bot.Deadline = envOrSeconds("DEADLINE_SECONDS", bot.Deadline)
	bot.ApprovalDelay = envOrDelay("APPROVAL", bot.ApprovalDelay)
	bot.IdleDelay = envOrDelay("IDLE", bot.IdleDelay)
	bot.SwapDelay = envOrDelay("SWAP", bot.SwapDelay)
	bot.ErrorDelay = envOrDelay("ERROR", bot.ErrorDelay)

	cfg := &AppConfig{
		Wallets:     walletKeys(os.Environ()),
		WalletIndex: envOrInt("WALLET_INDEX", 0),
		Network: NetworkConfig{
			RPCURL:          envOr("RPC_URL", defaultRPCURL),
			ChainID:         int64(envOrInt("CHAIN_ID", defaultChainID)),
			ApproveGasLimit: int64(envOrInt("APPROVE_GAS_LIMIT", 200000)),
			SwapGasLimit:    int64(envOrInt("SWAP_GAS_LIMIT", 300000)),
			RPCTimeout:      envOrSeconds("RPC_TIMEOUT_SECONDS", 30*time.Second),
			ReceiptTimeout:  envOrSeconds("RECEIPT_TIMEOUT_SECONDS", 180*time.Second),
		},
		Bot:    bot,
		Tokens: tokens,
		Vault: VaultConfig{
			Enabled:  envOrBool("KEYVAULT_ENABLED", false),
			KeyPath:  envOr("KEYVAULT_KEY_PATH", "secret.key"),
			DataPath: envOr("KEYVAULT_DATA_PATH", "encrypted_data.txt"),
		},
		Ledger: LedgerConfig{
			Backend:     strings.ToLower(envOr("LEDGER_BACKEND", LedgerMemory)),
			Path:        envOr("LEDGER_PATH", "trades.json"),
			PostgresDSN: envOr("LEDGER_POSTGRES_DSN", ""),
		},
		Service: ServiceConfig{
			HTTPPort:      envOrInt("STATUS_HTTP_PORT", 0),
			HMACSecret:    envOr("STATUS_HMAC_SECRET", ""),
			HMACClockSkew: envOrSeconds("STATUS_HMAC_SKEW_SECONDS", 60*time.Second),
		},
		Log: LogConfig{
			Level:  envOr("LOG_LEVEL", "info"),
			Format: envOr("LOG_FORMAT", "console"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *AppConfig) Validate() error {
	if len(c.Wallets) == 0 && !c.Vault.Enabled {
		return ErrNoWallets
	}
	if n := c.WalletCount(); c.WalletIndex < 0 || c.WalletIndex > n {
		return fmt.Errorf("WALLET_INDEX %d out of range 1-%d", c.WalletIndex, n)
	}
	if c.Network.RPCURL == "" {
		return errors.New("RPC_URL is required")
	}
	if c.Network.ChainID <= 0 {
		return fmt.Errorf("invalid CHAIN_ID %d", c.Network.ChainID)
	}
	if c.Network.ApproveGasLimit < 0 {
		return fmt.Errorf("invalid APPROVE_GAS_LIMIT %d", c.Network.ApproveGasLimit)
	}
	if c.Network.SwapGasLimit < 0 {
		return fmt.Errorf("invalid SWAP_GAS_LIMIT %d", c.Network.SwapGasLimit)
	}
	if c.Network.RPCTimeout <= 0 || c.Network.ReceiptTimeout <= 0 {
		return errors.New("RPC and receipt timeouts must be positive")
	}
	if err := c.Bot.Validate(); err != nil {
		return fmt.Errorf("bot config: %w", err)
	}
	switch c.Ledger.Backend {
	case LedgerMemory:
	case LedgerFile:
		if c.Ledger.Path == "" {
			return errors.New("LEDGER_PATH is required for the file ledger")
		}
	case LedgerPostgres:
		if c.Ledger.PostgresDSN == "" {
			return errors.New("LEDGER_POSTGRES_DSN is required for the postgres ledger")
		}
	default:
		return fmt.Errorf("unknown LEDGER_BACKEND %q", c.Ledger.Backend)
	}
	if c.Service.HTTPPort < 0 || c.Service.HTTPPort > 65535 {
		return fmt.Errorf("invalid STATUS_HTTP_PORT %d", c.Service.HTTPPort)
	}
	return nil
}

// WalletCount is the number of selectable wallets. The vault wallet, when
// enabled, comes after every WALLET_* key.
func (c *AppConfig) WalletCount() int {
	if c.Vault.Enabled {
		return len(c.Wallets) + 1
	}
	return len(c.Wallets)
}

type tokenFile struct {
	Tokens []token.Entry `yaml:"tokens"`
}

// LoadTokens reads a YAML token table.
func LoadTokens(path string) ([]token.Entry, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var f tokenFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return f.Tokens, nil
}

// walletKeys returns the non-empty WALLET_* values ordered by variable
// name, with numeric suffixes compared as numbers.
func walletKeys(environ []string) []string {
	type kv struct{ name, value string }
	var found []kv
	for _, pair := range environ {
		name, value, ok := strings.Cut(pair, "=")
		if !ok || !strings.HasPrefix(name, walletPrefix) || name == "WALLET_INDEX" {
			continue
		}
		if value = strings.TrimSpace(value); value == "" {
			continue
		}
		found = append(found, kv{name, value})
	}
	sort.Slice(found, func(i, j int) bool {
		a, b := strings.TrimPrefix(found[i].name, walletPrefix), strings.TrimPrefix(found[j].name, walletPrefix)
		na, errA := strconv.Atoi(a)
		nb, errB := strconv.Atoi(b)
		if errA == nil && errB == nil {
			return na < nb
		}
		return found[i].name < found[j].name
	})

	keys := make([]string, 0, len(found))
	for _, f := range found {
		keys = append(keys, f.value)
	}
	return keys
}

func envOr(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok && val != "" {
		return val
	}
	return fallback
}

func envOrInt(key string, fallback int) int {
	if val, ok := os.LookupEnv(key); ok && val != "" {
		var parsed int
		if _, err := fmt.Sscanf(val, "%d", &parsed); err == nil {
			return parsed
		}
	}
	return fallback
}

func envOrBool(key string, fallback bool) bool {
	if val, ok := os.LookupEnv(key); ok && val != "" {
		if parsed, err := strconv.ParseBool(val); err == nil {
			return parsed
		}
	}
	return fallback
}

func envOrSeconds(key string, fallback time.Duration) time.Duration {
	return time.Duration(envOrInt(key, int(fallback/time.Second))) * time.Second
}

// envOrDelay reads <PREFIX>_DELAY_MIN_SECONDS and <PREFIX>_DELAY_MAX_SECONDS.
func envOrDelay(prefix string, fallback swap.Delay) swap.Delay {
	return swap.Delay{
		Min: envOrSeconds(prefix+"_DELAY_MIN_SECONDS", fallback.Min),
		Max: envOrSeconds(prefix+"_DELAY_MAX_SECONDS", fallback.Max),
	}
}
