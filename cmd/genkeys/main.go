// genkeys generates fresh key pairs and writes them as layout key sections.
//
// Usage:
//
//	genkeys [--type omac1|ecdsa] [-n NAME]... -o keys.ini
//
// The output can be merged with an area layout by bootloaderconfig or passed
// next to it with -c. A .yaml or .yml output stores ECDSA keys as PEM.
package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/moffa90/go-otap/internal/cli"
	"github.com/moffa90/go-otap/keyring"
	"github.com/moffa90/go-otap/layout"
)

func main() {
	prog := filepath.Base(os.Args[0])
	if err := run(os.Args[1:]); err != nil {
		cli.Fail(prog, err)
	}
}

func run(args []string) error {
	var (
		typeName string
		names    []string
		output   string
		verbose  bool
	)

	flags := pflag.NewFlagSet("genkeys", pflag.ContinueOnError)
	flags.StringVarP(&typeName, "type", "t", "omac1", "key type: omac1 or ecdsa")
	flags.StringArrayVarP(&names, "name", "n", nil, "key name (repeatable, default \"default\")")
	flags.StringVarP(&output, "output", "o", "", "write the key sections here")
	flags.BoolVarP(&verbose, "verbose", "v", false, "debug logging")
	if err := flags.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if output == "" {
		return fmt.Errorf("--output is required")
	}
	if len(names) == 0 {
		names = []string{"default"}
	}

	logger, err := cli.NewLogger(verbose)
	if err != nil {
		return err
	}
	defer logger.Sync()

	t, err := keyring.ParseKeyType(typeName)
	if err != nil {
		return err
	}
	keys, err := generate(t, names)
	if err != nil {
		return err
	}

	l := &layout.Layout{Keys: keys}
	if err := l.Save(output); err != nil {
		return err
	}
	logger.Info("keys written",
		zap.String("path", output),
		zap.Stringer("type", t),
		zap.Strings("names", names),
	)
	return nil
}

func generate(t keyring.KeyType, names []string) ([]keyring.KeyPair, error) {
	if len(names) > keyring.MaxKeys {
		return nil, fmt.Errorf("%d keys requested, at most %d fit the key table", len(names), keyring.MaxKeys)
	}
	seen := make(map[string]bool, len(names))
	keys := make([]keyring.KeyPair, 0, len(names))
	for _, name := range names {
		if seen[name] {
			return nil, fmt.Errorf("duplicate key name %q", name)
		}
		seen[name] = true

		k, err := keyring.Generate(name, t, nil)
		if err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, nil
}
