// scratchpadinfo examines a scratchpad: framing, files, authentication and,
// optionally, decrypted contents.
//
// Usage:
//
//	scratchpadinfo [-c layout.ini] [-k NAME] [-d PREFIX [--plain AREA]...] INFILE
package main

import (
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/moffa90/go-otap/internal/atomicfile"
	"github.com/moffa90/go-otap/internal/cli"
	"github.com/moffa90/go-otap/keyring"
	"github.com/moffa90/go-otap/layout"
	"github.com/moffa90/go-otap/scratchpad"
)

func main() {
	prog := filepath.Base(os.Args[0])
	if err := run(os.Args[1:], os.Stdout); err != nil {
		cli.Fail(prog, err)
	}
}

func run(args []string, out io.Writer) error {
	var (
		configs []string
		keyName string
		dump    string
		plain   []string
		quiet   bool
		verbose bool
	)

	flags := pflag.NewFlagSet("scratchpadinfo", pflag.ContinueOnError)
	flags.StringArrayVarP(&configs, "configfile", "c", nil, "layout file with keys (repeatable)")
	flags.StringVarP(&keyName, "keyname", "k", "", "only try this key (default: try all)")
	flags.StringVarP(&dump, "dump", "d", "", "write decrypted, decompressed files with this filename prefix")
	flags.StringArrayVar(&plain, "plain", nil, "area id stored without encryption, used when dumping (repeatable)")
	flags.BoolVarP(&quiet, "quiet", "q", false, "reduce output")
	flags.BoolVarP(&verbose, "verbose", "v", false, "debug logging")
	if err := flags.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if flags.NArg() != 1 {
		return fmt.Errorf("need exactly one INFILE")
	}

	logger, err := cli.NewLogger(verbose)
	if err != nil {
		return err
	}
	defer logger.Sync()

	var keys []keyring.KeyPair
	l := &layout.Layout{}
	switch {
	case len(configs) > 0:
		if l, err = layout.Load(configs, layout.WithLogger(logger)); err != nil {
			return err
		}
		keys = l.Keys
		if keyName != "" {
			k, ok := l.Key(keyName)
			if !ok {
				return fmt.Errorf("key not found in configuration file: %s", keyName)
			}
			keys = []keyring.KeyPair{k}
		}
	case keyName != "":
		return fmt.Errorf("key given without configuration file")
	}

	p, err := scratchpad.ParseFile(flags.Arg(0),
		scratchpad.WithLogger(logger),
		scratchpad.WithCounterOrder(l.CounterOrder()),
	)
	if err != nil {
		return err
	}

	if !quiet {
		printPackage(out, flags.Arg(0), p)
	}
	if p.Custom() {
		if dump != "" {
			return atomicfile.WriteFile(dump+"0000", p.CustomData, 0o644)
		}
		return nil
	}

	if len(keys) == 0 {
		if !quiet {
			fmt.Fprintln(out, cli.DimStyle.Render("No keys, data not authenticated"))
		}
		return nil
	}
	valid := p.Authenticate(keys...)
	switch {
	case len(valid) == 0 && keyName != "":
		return fmt.Errorf("failed authentication with key: %s", keyName)
	case len(valid) == 0:
		return fmt.Errorf("authentication failed")
	case !quiet:
		fmt.Fprintln(out, cli.GoodStyle.Render("Authentication succeeded with: "+strings.Join(valid, " ")))
	}

	if dump == "" {
		return nil
	}
	plainAreas := make([]uint32, 0, len(plain))
	for _, v := range plain {
		id, err := cli.ParseAddress(v)
		if err != nil || id > math.MaxUint32 {
			return fmt.Errorf("invalid area id %q", v)
		}
		plainAreas = append(plainAreas, uint32(id))
	}
	key, _ := l.Key(valid[0])
	files, err := p.Decrypt(key, plainAreas...)
	if err != nil {
		return err
	}
	for i, f := range files {
		if f.Encryption == scratchpad.EncryptionUnknown {
			logger.Warn("cannot tell whether the file was encrypted, dumping decrypted bytes; use --plain for areas stored in the clear",
				zap.Int("file", i),
				zap.Uint32("area_id", f.AreaID),
			)
		}
		name := fmt.Sprintf("%s%04d", dump, i)
		if err := atomicfile.WriteFile(name, f.Data, 0o644); err != nil {
			return err
		}
		logger.Info("file dumped",
			zap.String("path", name),
			zap.Uint32("area_id", f.AreaID),
			zap.Int("size", len(f.Data)),
			zap.Bool("inflated", f.Inflated),
			zap.Stringer("encryption", f.Encryption),
		)
	}
	return nil
}

func printPackage(w io.Writer, path string, p *scratchpad.Package) {
	fmt.Fprintln(w, cli.TitleStyle.Render(path))
	fmt.Fprintln(w, cli.Field("Length", p.Header.Length))
	fmt.Fprintln(w, cli.Field("CRC", fmt.Sprintf("0x%04x", p.Header.CRC)))
	fmt.Fprintln(w, cli.Field("Sequence", p.Header.Seq))
	fmt.Fprintln(w, cli.Field("Type", fmt.Sprintf("0x%08x", p.Header.Type)))
	fmt.Fprintln(w, cli.Field("Status", fmt.Sprintf("0x%08x", p.Header.Status)))
	fmt.Fprintln(w)

	if p.Custom() {
		fmt.Fprintln(w, cli.Field("Custom readable data", fmt.Sprintf("%d bytes", len(p.CustomData))))
		fmt.Fprintln(w)
		return
	}

	scheme := keyring.Omac1AES128CTR
	if p.Signed() {
		scheme = keyring.ECDSAP256AES128CTR
	}
	fmt.Fprintln(w, cli.Field("Authentication", scheme))
	fmt.Fprintln(w, cli.Field("CMAC / OMAC1", layout.FormatHexBytes(p.AuthTag)))
	fmt.Fprintln(w, cli.Field("Initial counter block", layout.FormatHexBytes(p.SecureHeader)))
	fmt.Fprintln(w)

	for i, e := range p.Entries {
		title := fmt.Sprintf("File %d", i)
		if e.Signature() {
			title += " (signature)"
		}
		fmt.Fprintln(w, cli.LabelStyle.Bold(true).Render(title))
		fmt.Fprintln(w, cli.Field("Area ID", fmt.Sprintf("0x%08x", e.AreaID)))
		fmt.Fprintln(w, cli.Field("Stored length", e.Length))
		fmt.Fprintln(w, cli.Field("Version", e.Version))
		fmt.Fprintln(w, cli.Field("Pad field", e.Pad))
		fmt.Fprintln(w)
	}
}
