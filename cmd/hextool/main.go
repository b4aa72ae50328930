// hextool loads, merges, trims and converts Intel HEX and binary images.
//
// Usage:
//
//	hextool [-o OUTFILESPEC] [-g 0xFF] [-d start-end]... [-i] [-p] INFILESPEC...
//
// INFILESPEC is [hex[@offset]|bin[@start]:]filename and OUTFILESPEC is
// [hex|bin[@[start]-[end]]:]filename. Numbers may be decimal or 0x-prefixed.
package main

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/moffa90/go-otap/hexfile"
	"github.com/moffa90/go-otap/internal/atomicfile"
	"github.com/moffa90/go-otap/internal/cli"
)

func main() {
	prog := filepath.Base(os.Args[0])
	if err := run(os.Args[1:], os.Stdout); err != nil {
		cli.Fail(prog, err)
	}
}

func run(args []string, out io.Writer) error {
	var (
		output  string
		gapfill string
		deletes []string
		info    bool
		overlap bool
		verbose bool
	)

	flags := pflag.NewFlagSet("hextool", pflag.ContinueOnError)
	flags.StringVarP(&output, "output", "o", "", "output file, [hex|bin[@[start]-[end]]:]filename")
	flags.StringVarP(&gapfill, "gapfill", "g", "0x00", "byte used to fill gaps in binary output")
	flags.StringArrayVarP(&deletes, "delete", "d", nil, "delete the address range start-end, end exclusive (repeatable)")
	flags.BoolVarP(&info, "information", "i", false, "show the address ranges holding data")
	flags.BoolVarP(&overlap, "overlap", "p", false, "allow overlapping data")
	flags.BoolVarP(&verbose, "verbose", "v", false, "debug logging")
	if err := flags.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if flags.NArg() == 0 {
		return fmt.Errorf("need at least one INFILESPEC")
	}

	logger, err := cli.NewLogger(verbose)
	if err != nil {
		return err
	}
	defer logger.Sync()

	fill, err := cli.ParseByte(gapfill)
	if err != nil {
		return err
	}

	m := hexfile.NewMemory()
	for _, arg := range flags.Args() {
		spec, err := parseInputSpec(arg)
		if err != nil {
			return err
		}
		if err := load(m, spec, overlap); err != nil {
			return fmt.Errorf("%s: %w", spec.path, err)
		}
		logger.Debug("loaded", zap.String("path", spec.path), zap.Stringer("format", spec.format), zap.Int64("offset", spec.offset))
	}

	for _, r := range deletes {
		start, end, err := cli.ParseRange(r)
		if err != nil {
			return err
		}
		m.Delete(start, end)
	}

	if info {
		printRanges(out, m)
	}
	if output == "" {
		return nil
	}

	spec, err := parseOutputSpec(output)
	if err != nil {
		return err
	}
	m.GapFill = fill
	if err := save(m, spec); err != nil {
		return err
	}
	logger.Info("written", zap.String("path", spec.path), zap.Stringer("format", spec.format))
	return nil
}

func load(m *hexfile.Memory, spec fileSpec, overlap bool) error {
	if spec.format == hexfile.FormatBinary {
		return hexfile.Load(m, spec.path, hexfile.FormatBinary, uint64(spec.offset), overlap)
	}
	f, err := os.Open(spec.path)
	if err != nil {
		return err
	}
	defer f.Close()
	return hexfile.Decode(m, f, spec.offset, overlap)
}

func save(m *hexfile.Memory, spec fileSpec) error {
	if spec.format == hexfile.FormatHex {
		return hexfile.Save(m, spec.path, hexfile.FormatHex)
	}
	start := spec.start
	if !spec.startSet {
		start, _ = m.MinAddress()
	}
	var buf bytes.Buffer
	if err := hexfile.WriteBinary(&buf, m, start, spec.end); err != nil {
		return err
	}
	return atomicfile.WriteFile(spec.path, buf.Bytes(), 0o644)
}

func printRanges(w io.Writer, m *hexfile.Memory) {
	ranges := m.Ranges()
	if len(ranges) == 0 {
		fmt.Fprintln(w, cli.DimStyle.Render("no data"))
		return
	}
	width := len(fmt.Sprintf("%x", ranges[len(ranges)-1].End()))
	if width < 4 {
		width = 4
	}
	for _, r := range ranges {
		span := fmt.Sprintf("0x%0*x - 0x%0*x", width, r.Start, width, r.End())
		fmt.Fprintf(w, "%s: %d bytes\n", cli.LabelStyle.Render(span), len(r.Data))
	}
	if len(ranges) > 1 {
		fmt.Fprintln(w, cli.DimStyle.Render(fmt.Sprintf("%d bytes in %d ranges, largest gap %d bytes", m.Len(), len(ranges), m.MaxGap())))
	}
}
