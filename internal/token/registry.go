// Package token holds the immutable table of tradable tokens.
package token

import (
	"errors"
	"fmt"
	"math/big"
	"math/rand"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

var ErrTooFewTokens = errors.New("registry needs at least two tokens")

type Token struct {
	Symbol   string
	Address  common.Address
	Decimals int
}

// Format renders a raw amount in whole-token units with six decimals.
func (t Token) Format(raw *big.Int) string {
	return FormatUnits(raw, t.Decimals, 6)
}

// Registry is a read-only, ordered token table. Build one with NewRegistry
// and share it freely.
type Registry struct {
	tokens   []Token
	bySymbol map[string]int
}

// Entry is the unvalidated form of a token, as read from configuration.
type Entry struct {
	Symbol   string `yaml:"symbol"`
	Address  string `yaml:"address"`
	Decimals int    `yaml:"decimals"`
}

func NewRegistry(entries []Entry) (*Registry, error) {
	if len(entries) < 2 {
		return nil, ErrTooFewTokens
	}
	r := &Registry{
		tokens:   make([]Token, 0, len(entries)),
		bySymbol: make(map[string]int, len(entries)),
	}
	seenAddr := make(map[common.Address]string, len(entries))
	for _, e := range entries {
		symbol := strings.TrimSpace(e.Symbol)
		if symbol == "" {
			return nil, fmt.Errorf("token with address %q has no symbol", e.Address)
		}
		if !common.IsHexAddress(e.Address) {
			return nil, fmt.Errorf("token %s: invalid address %q", symbol, e.Address)
		}
		if e.Decimals < 0 || e.Decimals > 77 {
			return nil, fmt.Errorf("token %s: decimals %d out of range", symbol, e.Decimals)
		}
		if _, dup := r.bySymbol[symbol]; dup {
			return nil, fmt.Errorf("duplicate token symbol %s", symbol)
		}
		addr := common.HexToAddress(e.Address)
		if other, dup := seenAddr[addr]; dup {
			return nil, fmt.Errorf("tokens %s and %s share address %s", other, symbol, addr.Hex())
		}
		seenAddr[addr] = symbol
		r.bySymbol[symbol] = len(r.tokens)
		r.tokens = append(r.tokens, Token{Symbol: symbol, Address: addr, Decimals: e.Decimals})
	}
	return r, nil
}

// Default returns the registry of the twelve Monad testnet tokens the bot
// trades unless configured otherwise.
func Default() *Registry {
	r, err := NewRegistry(DefaultEntries())
	if err != nil {
		panic(err)
	}
	return r
}

func DefaultEntries() []Entry {
	return []Entry{
		{Symbol: "YAKI", Address: "0xfe140e1dCe99Be9F4F15d657CD9b7BF622270C50", Decimals: 18},
		{Symbol: "USDC", Address: "0xf817257fed379853cDe0fa4F97AB987181B1E5Ea", Decimals: 6},
		{Symbol: "aprMON", Address: "0xb2f82D0f38dc453D596Ad40A37799446Cc89274A", Decimals: 18},
		{Symbol: "WMON", Address: "0x760AfE86e5de5fa0Ee542fc7B7B713e1c5425701", Decimals: 18},
		{Symbol: "CHOG", Address: "0xE0590015A873bF326bd645c3E1266d4db41C4E6B", Decimals: 18},
		{Symbol: "DAK", Address: "0x0F0BDEbF0F83cD1EE3974779Bcb7315f9808c714", Decimals: 18},
		{Symbol: "BEAN", Address: "0x268E4E24E0051EC27b3D27A95977E71cE6875a05", Decimals: 18},
		{Symbol: "10k Returns", Address: "0xc7765d451A86F4EB14d28582d131A6afe0b39790", Decimals: 18},
		{Symbol: "JAI", Address: "0xCc5B42F9d6144DFDFb6fb3987a2A916af902F5f8", Decimals: 6},
		{Symbol: "gMON", Address: "0xaEef2f6B429Cb59C9B2D7bB2141ADa993E8571c3", Decimals: 18},
		{Symbol: "MIST", Address: "0xb38bb873cca844b20A9eE448a87Af3626a6e1EF5", Decimals: 18},
		{Symbol: "MONAI", Address: "0x7348FAC1b35bE27B0b636F0881AFc9449eC54bA5", Decimals: 18},
	}
}

func (r *Registry) Len() int { return len(r.tokens) }

// All returns a copy of the tokens in registry order.
func (r *Registry) All() []Token {
	out := make([]Token, len(r.tokens))
	copy(out, r.tokens)
	return out
}

func (r *Registry) Lookup(symbol string) (Token, bool) {
	i, ok := r.bySymbol[symbol]
	if !ok {
		return Token{}, false
	}
	return r.tokens[i], true
}

// RandomPair draws two distinct tokens uniformly without replacement.
func (r *Registry) RandomPair(rng *rand.Rand) (Token, Token, error) {
	n := len(r.tokens)
	if n < 2 {
		return Token{}, Token{}, ErrTooFewTokens
	}
	i := rng.Intn(n)
	j := rng.Intn(n - 1)
	if j >= i {
		j++
	}
	return r.tokens[i], r.tokens[j], nil
}

// FormatUnits converts a raw integer amount to a fixed-point string.
func FormatUnits(raw *big.Int, decimals int, places int32) string {
	if raw == nil {
		return decimal.Zero.StringFixed(places)
	}
	return decimal.NewFromBigInt(raw, -int32(decimals)).StringFixed(places)
}
