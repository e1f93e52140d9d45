package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"monadswap/internal/chain"
	"monadswap/internal/config"
	"monadswap/internal/keyvault"
	"monadswap/internal/ledger"
	"monadswap/internal/logging"
	"monadswap/internal/metrics"
	"monadswap/internal/report"
	"monadswap/internal/server"
	"monadswap/internal/swap"
	"monadswap/internal/wallet"
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.Load()
	if err != nil {
		log := logging.NewLogger("info", "console", os.Stderr)
		if errors.Is(err, config.ErrNoWallets) {
			log.Error().Msg("no wallets found in .env file")
			log.Error().Msg("please add wallets with format WALLET_1=private_key")
		} else {
			log.Error().Err(err).Msg("config error")
		}
		return 1
	}
	log := logging.NewLogger(cfg.Log.Level, cfg.Log.Format, os.Stdout)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	wallets, err := loadWallets(cfg)
	if err != nil {
		log.Error().Err(err).Msg("wallet error")
		return 1
	}
	selected, err := wallet.Select(wallets, cfg.WalletIndex, os.Stdin, os.Stdout)
	if err != nil {
		log.Error().Err(err).Msg("wallet selection failed")
		return 1
	}

	client, err := chain.NewEthClient(ctx, chain.EthClientConfig{
		RPCURL:          cfg.Network.RPCURL,
		ChainID:         cfg.Network.ChainID,
		PrivateKey:      selected.PrivateKey,
		RouterAddress:   cfg.Bot.Router.Hex(),
		ApproveGasLimit: uint64(cfg.Network.ApproveGasLimit),
		SwapGasLimit:    uint64(cfg.Network.SwapGasLimit),
		CallTimeout:     cfg.Network.RPCTimeout,
		ReceiptTimeout:  cfg.Network.ReceiptTimeout,
	})
	if err != nil {
		log.Error().Err(err).Str("rpc", cfg.Network.RPCURL).Msg("chain client error")
		return 1
	}
	defer client.Close()

	store, closeStore, err := openLedger(ctx, cfg.Ledger)
	if err != nil {
		log.Error().Err(err).Str("backend", cfg.Ledger.Backend).Msg("ledger error")
		return 1
	}
	defer closeStore()

	m := metrics.NewRegistry()
	bot, err := swap.NewBot(client, cfg.Tokens, cfg.Bot,
		swap.WithReporter(report.NewLogger(log)),
		swap.WithTradeRecorder(store),
		swap.WithMetrics(m),
	)
	if err != nil {
		log.Error().Err(err).Msg("bot config error")
		return 1
	}

	if cfg.Service.HTTPPort > 0 {
		api := server.NewServer(cfg.Service, bot, store, client, m, log)
		go func() {
			if err := api.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error().Err(err).Msg("status API stopped")
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = api.Shutdown(shutdownCtx)
		}()
	}

	log.Info().
		Str("wallet", selected.Address.Hex()).
		Int("tokens", cfg.Tokens.Len()).
		Str("ledger", cfg.Ledger.Backend).
		Msg("swap bot ready")

	if err := bot.Run(ctx); err != nil {
		log.Error().Err(err).Msg("fatal error")
		return 1
	}
	return 0
}

// loadWallets parses WALLET_* keys and, when enabled, appends the key held
// in the encrypted vault.
func loadWallets(cfg *config.AppConfig) ([]wallet.Wallet, error) {
	wallets, err := wallet.LoadAll(cfg.Wallets)
	if err != nil {
		return nil, err
	}
	if !cfg.Vault.Enabled {
		return wallets, nil
	}

	vault := keyvault.New(cfg.Vault.KeyPath, cfg.Vault.DataPath)
	raw, err := vault.LoadPrivateKey()
	if err != nil {
		return nil, fmt.Errorf("key vault: %w", err)
	}
	w, err := wallet.FromHex(string(raw))
	if err != nil {
		return nil, fmt.Errorf("key vault: %w", err)
	}
	return append(wallets, w), nil
}

func openLedger(ctx context.Context, cfg config.LedgerConfig) (ledger.Store, func(), error) {
	nop := func() {}
	switch cfg.Backend {
	case config.LedgerFile:
		store, err := ledger.NewFileStore(cfg.Path)
		if err != nil {
			return nil, nop, err
		}
		return store, nop, nil
	case config.LedgerPostgres:
		store, err := ledger.NewPostgresStore(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, nop, err
		}
		return store, store.Close, nil
	default:
		return ledger.NewMemoryStore(), nop, nil
	}
}
