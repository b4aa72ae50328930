// Package cli holds what the commands share: logger setup, report styling,
// flag value parsing and progress bars.
package cli

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/cheggaaa/pb/v3"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Report styles.
var (
	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	LabelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87CEEB"))

	GoodStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#90EE90"))

	BadStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	DimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

// NewLogger returns a console logger on stderr: debug level when verbose,
// warnings and errors otherwise.
func NewLogger(verbose bool) (*zap.Logger, error) {
	cfg := zap.NewDevelopmentConfig()
	cfg.OutputPaths = []string{"stderr"}
	cfg.DisableStacktrace = true
	if !verbose {
		cfg.Level = zap.NewAtomicLevelAt(zapcore.WarnLevel)
		cfg.DisableCaller = true
	}
	return cfg.Build()
}

// Fail prints err for program prog and exits with status 1.
func Fail(prog string, err error) {
	fmt.Fprintf(os.Stderr, "%s: %s\n", prog, BadStyle.Render(err.Error()))
	os.Exit(1)
}

// Field renders one "label: value" report line.
func Field(label string, value interface{}) string {
	return LabelStyle.Render(label+":") + " " + fmt.Sprint(value)
}

// ParseOverlays parses KEY:VALUE entries into a map.
func ParseOverlays(entries []string) (map[string]string, error) {
	out := make(map[string]string, len(entries))
	for _, e := range entries {
		parts := strings.Split(e, ":")
		if len(parts) != 2 || parts[0] == "" {
			return nil, fmt.Errorf("invalid overlay entry %q, want KEY:VALUE", e)
		}
		out[parts[0]] = parts[1]
	}
	return out, nil
}

// ParseAddress parses a decimal or 0x-prefixed hexadecimal address.
func ParseAddress(s string) (uint64, error) {
	v, err := strconv.ParseUint(strings.TrimSpace(s), 0, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid address %q", s)
	}
	return v, nil
}

// ParseRange parses "start-end" with ParseAddress values.
func ParseRange(s string) (uint64, uint64, error) {
	parts := strings.Split(s, "-")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid address range %q, want start-end", s)
	}
	start, err := ParseAddress(parts[0])
	if err != nil {
		return 0, 0, err
	}
	end, err := ParseAddress(parts[1])
	if err != nil {
		return 0, 0, err
	}
	if end < start {
		return 0, 0, fmt.Errorf("invalid address range %q, end before start", s)
	}
	return start, end, nil
}

// ParseByte parses a byte value such as "0xff" or "255".
func ParseByte(s string) (byte, error) {
	v, err := strconv.ParseUint(strings.TrimSpace(s), 0, 8)
	if err != nil {
		return 0, fmt.Errorf("invalid byte value %q", s)
	}
	return byte(v), nil
}

// NewProgressBar starts a bar counting total items on w. A nil w or quiet
// returns a bar that renders nothing.
func NewProgressBar(total int, w io.Writer, quiet bool) *pb.ProgressBar {
	bar := pb.New(total)
	if quiet || w == nil {
		bar.SetWriter(io.Discard)
	} else {
		bar.SetWriter(w)
	}
	bar.SetTemplateString(`{{counters . }} {{bar . }} {{percent . }} {{string . "file"}}`)
	return bar.Start()
}
