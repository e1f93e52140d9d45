// Package wallet turns configured private keys into signing wallets.
package wallet

import (
	"bufio"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

var ErrNoSelection = errors.New("no wallet selected")

type Wallet struct {
	PrivateKey *ecdsa.PrivateKey
	Address    common.Address
}

// Short renders the address as 0x1234...abcd.
func (w Wallet) Short() string {
	hex := w.Address.Hex()
	return hex[:6] + "..." + hex[len(hex)-4:]
}

func FromHex(hexKey string) (Wallet, error) {
	hexKey = strings.TrimPrefix(strings.TrimSpace(hexKey), "0x")
	key, err := crypto.HexToECDSA(hexKey)
	if err != nil {
		return Wallet{}, fmt.Errorf("parse private key: %w", err)
	}
	return Wallet{PrivateKey: key, Address: crypto.PubkeyToAddress(key.PublicKey)}, nil
}

// LoadAll parses every key, reporting the position of the first bad one.
func LoadAll(keys []string) ([]Wallet, error) {
	out := make([]Wallet, 0, len(keys))
	for i, k := range keys {
		w, err := FromHex(k)
		if err != nil {
			return nil, fmt.Errorf("wallet %d: %w", i+1, err)
		}
		out = append(out, w)
	}
	return out, nil
}

// Select picks a wallet by 1-based index. With index 0 and more than one
// wallet, it lists the masked addresses on out and reads the choice from in
// until a valid number arrives.
func Select(wallets []Wallet, index int, in io.Reader, out io.Writer) (Wallet, error) {
	if len(wallets) == 0 {
		return Wallet{}, ErrNoSelection
	}
	if index != 0 {
		if index < 1 || index > len(wallets) {
			return Wallet{}, fmt.Errorf("wallet index %d out of range 1-%d", index, len(wallets))
		}
		return wallets[index-1], nil
	}
	if len(wallets) == 1 {
		return wallets[0], nil
	}

	fmt.Fprintln(out, "Available wallets:")
	for i, w := range wallets {
		fmt.Fprintf(out, "%d. %s\n", i+1, w.Short())
	}

	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprintf(out, "Select wallet (1-%d): ", len(wallets))
		if !scanner.Scan() {
			if err := scanner.Err(); err != nil {
				return Wallet{}, fmt.Errorf("read selection: %w", err)
			}
			return Wallet{}, ErrNoSelection
		}
		choice, err := strconv.Atoi(strings.TrimSpace(scanner.Text()))
		if err != nil {
			fmt.Fprintln(out, "Please enter a number")
			continue
		}
		if choice < 1 || choice > len(wallets) {
			fmt.Fprintln(out, "Invalid selection")
			continue
		}
		return wallets[choice-1], nil
	}
}
