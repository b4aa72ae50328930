// bootloaderconfig merges layout files into one, optionally checking it.
//
// Usage:
//
//	bootloaderconfig -i base.ini -i keys.ini [--overlay KEY:VALUE] [--check] [-o merged.ini]
//
// The output format follows the extension of -o: .yaml and .yml write YAML,
// anything else INI.
package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/moffa90/go-otap/internal/cli"
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
		inputs   []string
		overlays []string
		output   string
		check    bool
		verbose  bool
	)

	flags := pflag.NewFlagSet("bootloaderconfig", pflag.ContinueOnError)
	flags.StringArrayVarP(&inputs, "in_file", "i", nil, "layout file to merge (repeatable)")
	flags.StringVarP(&output, "out_file", "o", "", "write the merged layout here")
	flags.StringArrayVar(&overlays, "overlay", nil, "substitute a symbolic area id, as KEY:VALUE (repeatable)")
	flags.BoolVarP(&check, "check", "c", false, "validate the merged layout")
	flags.BoolVarP(&verbose, "verbose", "v", false, "debug logging")
	if err := flags.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if len(inputs) == 0 {
		return fmt.Errorf("at least one --in_file is required")
	}

	logger, err := cli.NewLogger(verbose)
	if err != nil {
		return err
	}
	defer logger.Sync()

	overlay, err := cli.ParseOverlays(overlays)
	if err != nil {
		return err
	}
	l, err := layout.Load(inputs, layout.WithOverlay(overlay), layout.WithLogger(logger))
	if err != nil {
		return err
	}
	if check {
		if err := l.Validate(); err != nil {
			return err
		}
		logger.Info("layout is valid", zap.Int("areas", len(l.Areas)), zap.Int("keys", len(l.Keys)))
	}
	if output == "" {
		return nil
	}
	if err := l.Save(output); err != nil {
		return err
	}
	logger.Info("layout written", zap.String("path", output))
	return nil
}
