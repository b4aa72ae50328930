package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/moffa90/go-otap/hexfile"
)

// fileSpec is a parsed [param:]filename argument.
//
// Inputs: hex[@address_offset] (offset may be negative) or bin[@start].
// Outputs: hex or bin[@[start]-[end]].
type fileSpec struct {
	path   string
	format hexfile.Format

	// offset shifts hex records or places binary data
	offset int64

	// start and end bound binary output; zero end means the end of data
	start, end uint64
	startSet   bool
}

func splitParam(s string) (param, path string) {
	i := strings.Index(s, ":")
	if i < 0 {
		return "", s
	}
	head := strings.ToLower(s[:i])
	if strings.HasPrefix(head, "hex") || strings.HasPrefix(head, "bin") {
		return head, s[i+1:]
	}
	return "", s
}

func parseInputSpec(s string) (fileSpec, error) {
	param, path := splitParam(s)
	spec := fileSpec{path: path, format: hexfile.FormatFromPath(path)}
	if path == "" {
		return spec, fmt.Errorf("invalid input %q: no filename", s)
	}
	if param == "" {
		return spec, nil
	}

	kind, arg, hasArg := strings.Cut(param, "@")
	switch kind {
	case "hex":
		spec.format = hexfile.FormatHex
	case "bin":
		spec.format = hexfile.FormatBinary
	default:
		return spec, fmt.Errorf("invalid input parameter %q", param)
	}
	if !hasArg {
		return spec, nil
	}
	v, err := strconv.ParseInt(arg, 0, 64)
	if err != nil {
		return spec, fmt.Errorf("invalid address %q in %q", arg, s)
	}
	if v < 0 && spec.format == hexfile.FormatBinary {
		return spec, fmt.Errorf("negative load address in %q", s)
	}
	spec.offset = v
	return spec, nil
}

func parseOutputSpec(s string) (fileSpec, error) {
	param, path := splitParam(s)
	spec := fileSpec{path: path, format: hexfile.FormatHex}
	if path == "" {
		return spec, fmt.Errorf("invalid output %q: no filename", s)
	}
	if param == "" {
		return spec, nil
	}

	kind, arg, hasArg := strings.Cut(param, "@")
	switch kind {
	case "hex":
		if hasArg {
			return spec, fmt.Errorf("hex output takes no address range: %q", s)
		}
	case "bin":
		spec.format = hexfile.FormatBinary
	default:
		return spec, fmt.Errorf("invalid output parameter %q", param)
	}
	if !hasArg {
		return spec, nil
	}

	from, to, ok := strings.Cut(arg, "-")
	if !ok {
		return spec, fmt.Errorf("invalid address range %q, want [start]-[end]", arg)
	}
	if from != "" {
		v, err := strconv.ParseUint(from, 0, 64)
		if err != nil {
			return spec, fmt.Errorf("invalid start address %q", from)
		}
		spec.start, spec.startSet = v, true
	}
	if to != "" {
		v, err := strconv.ParseUint(to, 0, 64)
		if err != nil {
			return spec, fmt.Errorf("invalid end address %q", to)
		}
		spec.end = v
	}
	if spec.end != 0 && spec.end < spec.start {
		return spec, fmt.Errorf("end address before start in %q", s)
	}
	return spec, nil
}
