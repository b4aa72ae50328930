package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/moffa90/go-otap/hexfile"
)

func TestParseInputSpec(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    fileSpec
		wantErr bool
		errMsg  string
	}{
		{
			name: "plain hex",
			in:   "app.hex",
			want: fileSpec{path: "app.hex", format: hexfile.FormatHex},
		},
		{
			name: "plain binary by extension",
			in:   "app.bin",
			want: fileSpec{path: "app.bin", format: hexfile.FormatBinary},
		},
		{
			name: "binary at address",
			in:   "bin@0x8000:app.img",
			want: fileSpec{path: "app.img", format: hexfile.FormatBinary, offset: 0x8000},
		},
		{
			name: "hex with negative offset",
			in:   "hex@-0x1000:app.hex",
			want: fileSpec{path: "app.hex", format: hexfile.FormatHex, offset: -0x1000},
		},
		{
			name: "colon in path without parameter",
			in:   "dir:app.hex",
			want: fileSpec{path: "dir:app.hex", format: hexfile.FormatHex},
		},
		{
			name:    "negative binary address",
			in:      "bin@-1:app.bin",
			wantErr: true,
			errMsg:  "negative load address",
		},
		{
			name:    "bad number",
			in:      "bin@zz:app.bin",
			wantErr: true,
			errMsg:  "invalid address",
		},
		{
			name:    "no filename",
			in:      "hex:",
			wantErr: true,
			errMsg:  "no filename",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseInputSpec(tt.in)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("parseInputSpec(%q) expected error", tt.in)
				}
				if !strings.Contains(err.Error(), tt.errMsg) {
					t.Errorf("error = %q, want containing %q", err, tt.errMsg)
				}
				return
			}
			if err != nil {
				t.Fatalf("parseInputSpec(%q) error = %v", tt.in, err)
			}
			if diff := cmp.Diff(tt.want, got, cmp.AllowUnexported(fileSpec{})); diff != "" {
				t.Errorf("parseInputSpec(%q) mismatch (-want +got):\n%s", tt.in, diff)
			}
		})
	}
}

func TestParseOutputSpec(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    fileSpec
		wantErr bool
		errMsg  string
	}{
		{
			name: "default is hex",
			in:   "out.bin",
			want: fileSpec{path: "out.bin", format: hexfile.FormatHex},
		},
		{
			name: "binary whole image",
			in:   "bin:out.bin",
			want: fileSpec{path: "out.bin", format: hexfile.FormatBinary},
		},
		{
			name: "binary range",
			in:   "bin@0x100-0x200:out.bin",
			want: fileSpec{path: "out.bin", format: hexfile.FormatBinary, start: 0x100, end: 0x200, startSet: true},
		},
		{
			name: "binary open end",
			in:   "bin@0x100-:out.bin",
			want: fileSpec{path: "out.bin", format: hexfile.FormatBinary, start: 0x100, startSet: true},
		},
		{
			name: "binary open start",
			in:   "bin@-0x200:out.bin",
			want: fileSpec{path: "out.bin", format: hexfile.FormatBinary, end: 0x200},
		},
		{
			name:    "hex with range",
			in:      "hex@0-1:out.hex",
			wantErr: true,
			errMsg:  "no address range",
		},
		{
			name:    "missing dash",
			in:      "bin@0x100:out.bin",
			wantErr: true,
			errMsg:  "[start]-[end]",
		},
		{
			name:    "reversed range",
			in:      "bin@0x200-0x100:out.bin",
			wantErr: true,
			errMsg:  "before start",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseOutputSpec(tt.in)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("parseOutputSpec(%q) expected error", tt.in)
				}
				if !strings.Contains(err.Error(), tt.errMsg) {
					t.Errorf("error = %q, want containing %q", err, tt.errMsg)
				}
				return
			}
			if err != nil {
				t.Fatalf("parseOutputSpec(%q) error = %v", tt.in, err)
			}
			if diff := cmp.Diff(tt.want, got, cmp.AllowUnexported(fileSpec{})); diff != "" {
				t.Errorf("parseOutputSpec(%q) mismatch (-want +got):\n%s", tt.in, diff)
			}
		})
	}
}

func TestRunMergeAndConvert(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.bin")
	b := filepath.Join(dir, "b.bin")
	out := filepath.Join(dir, "out.bin")
	if err := os.WriteFile(a, []byte{1, 2, 3, 4}, 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(b, []byte{5, 6}, 0o644); err != nil {
		t.Fatal(err)
	}

	var info bytes.Buffer
	args := []string{
		"-g", "0xFF",
		"-d", "0x1001-0x1002",
		"-i",
		"-o", "bin:" + out,
		"bin@0x1000:" + a,
		"bin@0x1006:" + b,
	}
	if err := run(args, &info); err != nil {
		t.Fatalf("run() error = %v", err)
	}

	got, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	want := []byte{1, 0xFF, 3, 4, 0xFF, 0xFF, 5, 6}
	if !bytes.Equal(got, want) {
		t.Errorf("output = % X, want % X", got, want)
	}
	if n := strings.Count(info.String(), " - 0x"); n != 3 {
		t.Errorf("information listed %d ranges, want 3:\n%s", n, info.String())
	}
	if !strings.Contains(info.String(), "largest gap 2 bytes") {
		t.Errorf("information missing the gap summary:\n%s", info.String())
	}
}

func TestRunOverlap(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.bin")
	if err := os.WriteFile(a, []byte{1, 2, 3, 4}, 0o644); err != nil {
		t.Fatal(err)
	}

	err := run([]string{a, "bin@2:" + a}, &bytes.Buffer{})
	if err == nil || !strings.Contains(err.Error(), "overlaps") {
		t.Fatalf("run() error = %v, want overlap error", err)
	}
	if err := run([]string{"-p", a, "bin@2:" + a}, &bytes.Buffer{}); err != nil {
		t.Fatalf("run(-p) error = %v", err)
	}
}

func TestRunNeedsInput(t *testing.T) {
	if err := run(nil, &bytes.Buffer{}); err == nil {
		t.Fatal("run() without inputs expected error")
	}
}
