// Package ledger keeps a history of swap outcomes.
package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"time"
)

const (
	StatusSuccess  = "success"
	StatusFailed   = "failed"
	StatusReverted = "reverted"
)

// Trade is one swap attempt. Amounts are decimal strings in raw token units.
type Trade struct {
	ID           int64     `json:"id"`
	Wallet       string    `json:"wallet"`
	TokenIn      string    `json:"tokenIn"`
	TokenOut     string    `json:"tokenOut"`
	AmountIn     string    `json:"amountIn"`
	MinAmountOut string    `json:"minAmountOut"`
	TxHash       string    `json:"txHash,omitempty"`
	GasUsed      uint64    `json:"gasUsed"`
	Fee          string    `json:"fee,omitempty"` // wei
	Status       string    `json:"status"`
	Error        string    `json:"error,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Store abstracts trade persistence. Save assigns the ID.
type Store interface {
	Save(ctx context.Context, trade Trade) (Trade, error)
	Recent(ctx context.Context, limit int) ([]Trade, error)
}

// MemoryStore is mostly for testing and for runs without persistence.
type MemoryStore struct {
	mu     sync.RWMutex
	trades []Trade
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (m *MemoryStore) Save(_ context.Context, trade Trade) (Trade, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	trade.ID = int64(len(m.trades) + 1)
	m.trades = append(m.trades, trade)
	return trade, nil
}

func (m *MemoryStore) Recent(_ context.Context, limit int) ([]Trade, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return newestFirst(m.trades, limit), nil
}

// FileStore persists trades to a JSON file. Suitable for a single bot
// process; use PostgresStore when several bots share a history.
type FileStore struct {
	path   string
	mu     sync.Mutex
	trades []Trade
}

func NewFileStore(path string) (*FileStore, error) {
	fs := &FileStore{path: path}
	if err := fs.load(); err != nil {
		return nil, err
	}
	return fs, nil
}

func (f *FileStore) load() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	blob, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	if len(blob) == 0 {
		return nil
	}
	return json.Unmarshal(blob, &f.trades)
}

func (f *FileStore) persist() error {
	if err := os.MkdirAll(filepath.Dir(f.path), 0o755); err != nil {
		return err
	}
	blob, err := json.MarshalIndent(f.trades, "", "  ")
	if err != nil {
		return err
	}
	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, blob, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, f.path)
}

func (f *FileStore) Save(_ context.Context, trade Trade) (Trade, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var last int64
	if n := len(f.trades); n > 0 {
		last = f.trades[n-1].ID
	}
	trade.ID = last + 1
	f.trades = append(f.trades, trade)
	if err := f.persist(); err != nil {
		f.trades = f.trades[:len(f.trades)-1]
		return Trade{}, err
	}
	return trade, nil
}

func (f *FileStore) Recent(_ context.Context, limit int) ([]Trade, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return newestFirst(f.trades, limit), nil
}

func newestFirst(trades []Trade, limit int) []Trade {
	if limit <= 0 || limit > len(trades) {
		limit = len(trades)
	}
	out := make([]Trade, 0, limit)
	for i := len(trades) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, trades[i])
	}
	return out
}
