package main

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"monadswap/internal/keyvault"
	"monadswap/internal/logging"
	"monadswap/internal/wallet"
)

const usage = `usage: keyvault <command> [flags]

commands:
  keygen    create the encryption key file if it does not exist
  save      encrypt a private key (from -key or stdin) into the data file
  address   decrypt the stored key and print its address
`

func main() {
	log := logging.NewLogger(os.Getenv("LOG_LEVEL"), os.Getenv("LOG_FORMAT"), os.Stderr)
	if err := run(os.Args[1:], os.Stdin, os.Stdout); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(2)
		}
		log.Error().Err(err).Msg("keyvault")
		os.Exit(1)
	}
}

func run(args []string, stdin io.Reader, stdout io.Writer) error {
	if len(args) == 0 {
		fmt.Fprint(stdout, usage)
		return flag.ErrHelp
	}

	cmd := args[0]
	fs := flag.NewFlagSet(cmd, flag.ContinueOnError)
	fs.SetOutput(stdout)
	keyPath := fs.String("key-file", envOr("KEYVAULT_KEY_PATH", keyvault.DefaultKeyPath), "encryption key file")
	dataPath := fs.String("data-file", envOr("KEYVAULT_DATA_PATH", keyvault.DefaultDataPath), "encrypted private key file")
	var privateKey *string
	if cmd == "save" {
		privateKey = fs.String("key", "", "hex private key; read from stdin when empty")
	}
	if err := fs.Parse(args[1:]); err != nil {
		return err
	}
	vault := keyvault.New(*keyPath, *dataPath)

	switch cmd {
	case "keygen":
		if _, err := vault.LoadOrCreateKey(); err != nil {
			return err
		}
		fmt.Fprintf(stdout, "key ready at %s\n", vault.KeyPath)
		return nil

	case "save":
		hexKey := *privateKey
		if hexKey == "" {
			line, err := bufio.NewReader(stdin).ReadString('\n')
			if err != nil && !errors.Is(err, io.EOF) {
				return fmt.Errorf("read private key: %w", err)
			}
			hexKey = strings.TrimSpace(line)
		}
		w, err := wallet.FromHex(hexKey)
		if err != nil {
			return err
		}
		if err := vault.SavePrivateKey([]byte(strings.TrimSpace(hexKey))); err != nil {
			return err
		}
		fmt.Fprintf(stdout, "stored key for %s in %s\n", w.Address.Hex(), vault.DataPath)
		return nil

	case "address":
		raw, err := vault.LoadPrivateKey()
		if err != nil {
			return err
		}
		w, err := wallet.FromHex(string(raw))
		if err != nil {
			return err
		}
		fmt.Fprintln(stdout, w.Address.Hex())
		return nil

	default:
		fmt.Fprint(stdout, usage)
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func envOr(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok && val != "" {
		return val
	}
	return fallback
}
