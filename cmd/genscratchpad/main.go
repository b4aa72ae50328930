// genscratchpad builds a compressed, encrypted and authenticated scratchpad
// from firmware files.
//
// Usage:
//
//	genscratchpad -c layout.ini [-k default] OUTFILE INFILESPEC...
//	genscratchpad --custom OUTFILE DATAFILE
//
// An INFILESPEC is [version|config-file:]area_id[,nocompress][,noencrypt]:path.
package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/moffa90/go-otap/infile"
	"github.com/moffa90/go-otap/internal/atomicfile"
	"github.com/moffa90/go-otap/internal/cli"
	"github.com/moffa90/go-otap/layout"
	"github.com/moffa90/go-otap/scratchpad"
)

func main() {
	prog := filepath.Base(os.Args[0])
	if err := run(os.Args[1:]); err != nil {
		cli.Fail(prog, err)
	}
}

func run(args []string) error {
	var (
		configs  []string
		overlays []string
		keyName  string
		custom   bool
		level    int
		quiet    bool
		verbose  bool
	)

	flags := pflag.NewFlagSet("genscratchpad", pflag.ContinueOnError)
	flags.StringArrayVarP(&configs, "configfile", "c", nil, "layout file with keys and areas (repeatable)")
	flags.StringArrayVar(&overlays, "overlay", nil, "substitute a symbolic area id, as KEY:VALUE (repeatable)")
	flags.StringVarP(&keyName, "keyname", "k", "default", "name of the key used for encryption and authentication")
	flags.BoolVar(&custom, "custom", false, "wrap a single data file in a custom readable scratchpad")
	flags.IntVar(&level, "level", 9, "compression level, 1..9")
	flags.BoolVarP(&quiet, "quiet", "q", false, "no progress output")
	flags.BoolVarP(&verbose, "verbose", "v", false, "debug logging")
	flags.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: genscratchpad [flags] OUTFILE INFILESPEC...\n\n")
		flags.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nINFILESPEC is [version|config-file:]area_id[,nocompress][,noencrypt]:path\n")
	}
	if err := flags.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	logger, err := cli.NewLogger(verbose)
	if err != nil {
		return err
	}
	defer logger.Sync()

	rest := flags.Args()
	if custom {
		if len(rest) != 2 {
			return fmt.Errorf("--custom takes OUTFILE and one DATAFILE")
		}
		return writeCustom(rest[0], rest[1])
	}
	if len(rest) < 2 {
		flags.Usage()
		return fmt.Errorf("need OUTFILE and at least one INFILESPEC")
	}
	if len(configs) == 0 {
		return fmt.Errorf("at least one --configfile is required")
	}

	overlay, err := cli.ParseOverlays(overlays)
	if err != nil {
		return err
	}
	l, err := layout.Load(configs, layout.WithOverlay(overlay), layout.WithLogger(logger))
	if err != nil {
		return err
	}
	key, ok := l.Key(keyName)
	if !ok {
		return fmt.Errorf("key not found in configuration: %s", keyName)
	}

	files := make([]infile.File, 0, len(rest)-1)
	for _, spec := range rest[1:] {
		f, err := infile.Load(spec)
		if err != nil {
			return err
		}
		files = append(files, f)
	}

	bar := cli.NewProgressBar(len(files), os.Stderr, quiet)
	b, err := scratchpad.NewBuilder(key,
		scratchpad.WithLogger(logger),
		scratchpad.WithCounterOrder(l.CounterOrder()),
		scratchpad.WithCompressionLevel(level),
		scratchpad.WithProgressCallback(func(p scratchpad.Progress) {
			if p.Phase == scratchpad.PhaseFile {
				bar.Set("file", fmt.Sprintf("area 0x%08x", p.AreaID))
				bar.Increment()
			}
		}),
	)
	if err != nil {
		return err
	}
	for _, f := range files {
		if err := b.AddFile(f); err != nil {
			return err
		}
	}
	data, err := b.Finalize()
	bar.Finish()
	if err != nil {
		return err
	}

	if area, ok := l.ScratchpadArea(); ok && uint64(len(data)) > uint64(area.Length) {
		logger.Warn("scratchpad larger than its storage area",
			zap.String("area", area.Name),
			zap.Uint32("area_length", area.Length),
			zap.Int("size", len(data)),
		)
	}
	if err := atomicfile.WriteFile(rest[0], data, 0o644); err != nil {
		return err
	}
	logger.Info("scratchpad written",
		zap.String("path", rest[0]),
		zap.Int("files", len(files)),
		zap.Int("size", len(data)),
		zap.String("key", key.Name),
	)
	return nil
}

func writeCustom(out, in string) error {
	data, err := os.ReadFile(in)
	if err != nil {
		return err
	}
	sp, err := scratchpad.BuildCustom(data)
	if err != nil {
		return err
	}
	return atomicfile.WriteFile(out, sp, 0o644)
}
