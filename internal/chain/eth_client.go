package chain

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"monadswap/internal/contracts"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
)

const defaultPollInterval = 2 * time.Second

// EthClient talks to the router and token contracts through a JSON-RPC node.
type EthClient struct {
	client         *ethclient.Client
	erc20          abi.ABI
	router         *bind.BoundContract
	routerAddress  common.Address
	address        common.Address
	chainID        *big.Int
	transacts      *bind.TransactOpts
	approveGas     uint64
	swapGas        uint64
	callTimeout    time.Duration
	receiptTimeout time.Duration
	pollInterval   time.Duration
}

type EthClientConfig struct {
	RPCURL          string
	ChainID         int64
	PrivateKey      *ecdsa.PrivateKey
	RouterAddress   string
	ApproveGasLimit uint64
	SwapGasLimit    uint64
	CallTimeout     time.Duration
	ReceiptTimeout  time.Duration
}

func NewEthClient(ctx context.Context, cfg EthClientConfig) (*EthClient, error) {
	if cfg.RPCURL == "" {
		return nil, fmt.Errorf("rpc url is required")
	}
	if !common.IsHexAddress(cfg.RouterAddress) {
		return nil, fmt.Errorf("invalid router address %q", cfg.RouterAddress)
	}
	if cfg.PrivateKey == nil {
		return nil, fmt.Errorf("private key is required for signing swaps")
	}

	cli, err := ethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, classify("dial rpc", err)
	}

	erc20ABI, err := abi.JSON(strings.NewReader(contracts.ERC20ABI))
	if err != nil {
		cli.Close()
		return nil, fmt.Errorf("parse erc20 abi: %w", err)
	}
	routerABI, err := abi.JSON(strings.NewReader(contracts.RouterABI))
	if err != nil {
		cli.Close()
		return nil, fmt.Errorf("parse router abi: %w", err)
	}

	chainID, err := cli.ChainID(ctx)
	if err != nil {
		cli.Close()
		return nil, classify("fetch chain id", err)
	}
	if cfg.ChainID != 0 && chainID.Int64() != cfg.ChainID {
		cli.Close()
		return nil, fmt.Errorf("rpc serves chain %s, expected %d", chainID, cfg.ChainID)
	}

	txOpts, err := bind.NewKeyedTransactorWithChainID(cfg.PrivateKey, chainID)
	if err != nil {
		cli.Close()
		return nil, fmt.Errorf("transactor: %w", err)
	}
	txOpts.Context = ctx
	txOpts.GasPrice = nil // let node suggest
	txOpts.Nonce = nil

	routerAddress := common.HexToAddress(cfg.RouterAddress)
	return &EthClient{
		client:         cli,
		erc20:          erc20ABI,
		router:         bind.NewBoundContract(routerAddress, routerABI, cli, cli, cli),
		routerAddress:  routerAddress,
		address:        crypto.PubkeyToAddress(cfg.PrivateKey.PublicKey),
		chainID:        chainID,
		transacts:      txOpts,
		approveGas:     cfg.ApproveGasLimit,
		swapGas:        cfg.SwapGasLimit,
		callTimeout:    cfg.CallTimeout,
		receiptTimeout: cfg.ReceiptTimeout,
		pollInterval:   defaultPollInterval,
	}, nil
}

func (c *EthClient) Close() {
	c.client.Close()
}

func (c *EthClient) Address() common.Address {
	return c.address
}

func (c *EthClient) ChainID() *big.Int {
	return new(big.Int).Set(c.chainID)
}

func (c *EthClient) NativeBalance(ctx context.Context) (*big.Int, error) {
	ctx, cancel := c.withCallTimeout(ctx)
	defer cancel()
	bal, err := c.client.BalanceAt(ctx, c.address, nil)
	if err != nil {
		return nil, classify("native balance", err)
	}
	return bal, nil
}

func (c *EthClient) TokenBalance(ctx context.Context, token common.Address) (*big.Int, error) {
	out, err := c.callUint(ctx, token, contracts.MethodBalanceOf, c.address)
	if err != nil {
		return nil, classify("balanceOf "+token.Hex(), err)
	}
	return out, nil
}

func (c *EthClient) Allowance(ctx context.Context, token, spender common.Address) (*big.Int, error) {
	out, err := c.callUint(ctx, token, contracts.MethodAllowance, c.address, spender)
	if err != nil {
		return nil, classify("allowance "+token.Hex(), err)
	}
	return out, nil
}

func (c *EthClient) Approve(ctx context.Context, token, spender common.Address, amount *big.Int) (Receipt, error) {
	bound := bind.NewBoundContract(token, c.erc20, c.client, c.client, c.client)
	return c.submit(ctx, "approve", bound, c.approveGas, contracts.MethodApprove, spender, amount)
}

func (c *EthClient) Swap(ctx context.Context, req SwapRequest) (Receipt, error) {
	if err := validateSwapRequest(req); err != nil {
		return Receipt{}, err
	}

	return c.submit(ctx, "swap", c.router, c.swapGas, contracts.MethodSwap,
		req.AmountIn, req.AmountOutMin, req.Path, req.Recipient, req.Deadline)
}

func (c *EthClient) Ping(ctx context.Context) error {
	if c.client == nil {
		return fmt.Errorf("rpc client not configured")
	}
	ctx, cancel := c.withCallTimeout(ctx)
	defer cancel()
	_, err := c.client.BlockNumber(ctx)
	return err
}

func (c *EthClient) callUint(ctx context.Context, token common.Address, method string, args ...interface{}) (*big.Int, error) {
	ctx, cancel := c.withCallTimeout(ctx)
	defer cancel()

	bound := bind.NewBoundContract(token, c.erc20, c.client, c.client, c.client)
	var out []interface{}
	if err := bound.Call(&bind.CallOpts{Context: ctx}, &out, method, args...); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%s returned no values", method)
	}
	return abi.ConvertType(out[0], new(big.Int)).(*big.Int), nil
}

// submit signs and sends a transaction, then waits for its receipt. Everything
// up to the send shares one RPC timeout; the receipt wait has its own.
func (c *EthClient) submit(ctx context.Context, op string, contract *bind.BoundContract, gasLimit uint64, method string, args ...interface{}) (Receipt, error) {
	sendCtx, cancel := c.withCallTimeout(ctx)
	tx, err := contract.Transact(c.txOpts(sendCtx, gasLimit), method, args...)
	cancel()
	if err != nil {
		return Receipt{}, classify(op+" tx", err)
	}
	return c.waitMined(ctx, op, tx)
}

func (c *EthClient) txOpts(ctx context.Context, gasLimit uint64) *bind.TransactOpts {
	opts := *c.transacts
	opts.Context = ctx
	opts.GasLimit = gasLimit // 0 lets the node estimate
	return &opts
}

func (c *EthClient) withCallTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.callTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.callTimeout)
}

func (c *EthClient) waitMined(ctx context.Context, op string, tx *types.Transaction) (Receipt, error) {
	if c.receiptTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.receiptTimeout)
		defer cancel()
	}

	receipt, err := WaitForReceipt(ctx, c.client, tx.Hash(), c.pollInterval)
	if err != nil {
		return Receipt{TxHash: tx.Hash()}, classify(op+" receipt "+tx.Hash().Hex(), err)
	}

	out := Receipt{
		TxHash:  receipt.TxHash,
		GasUsed: receipt.GasUsed,
		Success: receipt.Status == types.ReceiptStatusSuccessful,
	}
	if receipt.BlockNumber != nil {
		out.BlockNumber = receipt.BlockNumber.Uint64()
	}
	if !out.Success {
		return out, fmt.Errorf("%s %s: %w: transaction reverted", op, tx.Hash().Hex(), ErrContractCall)
	}
	return out, nil
}

func validateSwapRequest(req SwapRequest) error {
	if req.AmountIn == nil || req.AmountIn.Sign() <= 0 {
		return fmt.Errorf("amountIn must be positive")
	}
	if req.AmountOutMin == nil || req.AmountOutMin.Sign() < 0 {
		return fmt.Errorf("amountOutMin must not be negative")
	}
	if len(req.Path) < 2 {
		return fmt.Errorf("swap path needs at least two tokens")
	}
	if req.Deadline == nil || req.Deadline.Sign() <= 0 {
		return fmt.Errorf("deadline required")
	}
	return nil
}

// ReceiptFetcher is the subset of ethclient used while polling for receipts.
type ReceiptFetcher interface {
	TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error)
}

// WaitForReceipt polls until the transaction is mined or context cancelled.
func WaitForReceipt(ctx context.Context, client ReceiptFetcher, hash common.Hash, every time.Duration) (*types.Receipt, error) {
	if every <= 0 {
		every = defaultPollInterval
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		receipt, err := client.TransactionReceipt(ctx, hash)
		if receipt != nil {
			return receipt, nil
		}
		if err != nil && !errors.Is(err, ethereum.NotFound) {
			return nil, err
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}
