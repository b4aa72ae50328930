// genhex creates a flashable Intel HEX image: the bootloader with its
// settings and, optionally, firmware placed in its areas.
//
// Usage:
//
//	genhex -c layout.ini -b bootloader.hex OUTFILE [INFILESPEC...]
package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/moffa90/go-otap/flashimage"
	"github.com/moffa90/go-otap/hexfile"
	"github.com/moffa90/go-otap/infile"
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
		configs    []string
		overlays   []string
		bootloader string
		quiet      bool
		verbose    bool
	)

	flags := pflag.NewFlagSet("genhex", pflag.ContinueOnError)
	flags.StringArrayVarP(&configs, "configfile", "c", nil, "layout file with keys and areas (repeatable)")
	flags.StringArrayVar(&overlays, "overlay", nil, "substitute a symbolic area id, as KEY:VALUE (repeatable)")
	flags.StringVarP(&bootloader, "bootloader", "b", "", "bootloader Intel HEX file")
	flags.BoolVarP(&quiet, "quiet", "q", false, "no progress output")
	flags.BoolVarP(&verbose, "verbose", "v", false, "debug logging")
	if err := flags.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if bootloader == "" {
		return fmt.Errorf("bootloader file is mandatory")
	}
	if len(configs) == 0 {
		return fmt.Errorf("at least one --configfile is required")
	}
	if flags.NArg() < 1 {
		return fmt.Errorf("need OUTFILE")
	}
	out, specs := flags.Arg(0), flags.Args()[1:]

	logger, err := cli.NewLogger(verbose)
	if err != nil {
		return err
	}
	defer logger.Sync()

	overlay, err := cli.ParseOverlays(overlays)
	if err != nil {
		return err
	}
	l, err := layout.Load(configs, layout.WithOverlay(overlay), layout.WithLogger(logger))
	if err != nil {
		return err
	}
	bl, err := hexfile.Parse(bootloader)
	if err != nil {
		return err
	}
	c, err := flashimage.New(l, bl, flashimage.WithLogger(logger))
	if err != nil {
		return err
	}

	if len(specs) == 0 {
		return save(logger, c.BootloaderImage(), out)
	}

	bar := cli.NewProgressBar(len(specs), os.Stderr, quiet)
	for _, spec := range specs {
		f, err := infile.Load(spec)
		if err != nil {
			bar.Finish()
			return err
		}
		bar.Set("file", filepath.Base(f.Path))
		if err := c.Add(f); err != nil {
			bar.Finish()
			return err
		}
		bar.Increment()
	}
	bar.Finish()
	return save(logger, c.Image(), out)
}

func save(logger *zap.Logger, m *hexfile.Memory, path string) error {
	if err := hexfile.Save(m, path, hexfile.FormatHex); err != nil {
		return err
	}
	logger.Info("image written",
		zap.String("path", path),
		zap.Int("bytes", m.Len()),
		zap.Int("ranges", m.NumRanges()),
	)
	return nil
}
