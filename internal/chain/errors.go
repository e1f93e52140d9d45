package chain

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"

	"github.com/ethereum/go-ethereum/rpc"
)

var (
	// ErrNetwork marks RPC transport failures and timeouts.
	ErrNetwork = errors.New("network error")
	// ErrContractCall marks reverted calls and transactions.
	ErrContractCall = errors.New("contract call error")
)

// classify wraps err with ErrNetwork or ErrContractCall. Context
// cancellation is returned untouched so callers can tell a stop apart
// from a failure.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return fmt.Errorf("%s: %w", op, err)
	}
	if errors.Is(err, ErrNetwork) || errors.Is(err, ErrContractCall) {
		return fmt.Errorf("%s: %w", op, err)
	}
	if isContractError(err) {
		return fmt.Errorf("%s: %w: %w", op, ErrContractCall, err)
	}
	return fmt.Errorf("%s: %w: %w", op, ErrNetwork, err)
}

// codeExecutionReverted is the JSON-RPC error code geth-style nodes return
// for a revert during eth_call or eth_estimateGas.
const codeExecutionReverted = 3

// isContractError reports whether err came from the EVM rather than from the
// node or the transport. Any other JSON-RPC error, such as a provider rate
// limit, counts as a network failure.
func isContractError(err error) bool {
	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) && rpcErr.ErrorCode() == codeExecutionReverted {
		return true
	}
	var urlErr *url.Error
	var netErr net.Error
	if errors.As(err, &urlErr) || errors.As(err, &netErr) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "execution reverted"),
		strings.Contains(msg, "insufficient funds"),
		strings.Contains(msg, "gas required exceeds"),
		strings.Contains(msg, "nonce too low"),
		strings.Contains(msg, "replacement transaction underpriced"):
		return true
	}
	return false
}
