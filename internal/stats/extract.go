// Package stats parses the kernel power statistics files: a label line opens
// a group and the "key: value" lines after it carry the group's counters.
package stats

import (
	"bufio"
	"math"
	"os"
	"strconv"
	"strings"

	"codeberg.org/mutker/socpowerd/internal/errors"
)

const (
	initialLineSize = 128
	maxLineSize     = 64 * 1024
)

// NewResult allocates a zeroed Result sized for table.
func NewResult(table Table) Result {
	return make(Result, table.Size())
}

// ExtractPlatform reads the platform RPM statistics into out.
func ExtractPlatform(out Result) error {
	return Extract(PlatformTable(""), out)
}

// ExtractWLAN reads the WLAN power statistics into out.
func ExtractWLAN(out Result) error {
	return Extract(WLANTable(""), out)
}

// Extract scans table.Path and stores every parameter it finds in out. Slots
// of groups or parameters absent from the file keep their previous value.
// When the file can't be opened out is left untouched. A line longer than
// 64 KiB aborts the extraction with ErrAllocation.
func Extract(table Table, out Result) error {
	errFactory := errors.New()

	if len(out) < table.Size() {
		return errFactory.WithData(ErrInvalidArgument, struct {
			Table string
			Want  int
			Got   int
		}{
			Table: table.Name,
			Want:  table.Size(),
			Got:   len(out),
		})
	}

	f, err := os.Open(table.Path)
	if err != nil {
		return errFactory.Wrap(ErrNotFound, err)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, initialLineSize), maxLineSize)

	matched := make([]bool, len(table.Groups))
	remaining := len(table.Groups)

	for remaining > 0 && sc.Scan() {
		line := strings.TrimLeft(sc.Text(), " \t")

		i := matchGroup(table.Groups, matched, line)
		if i < 0 {
			continue
		}
		matched[i] = true
		remaining--

		g := table.Groups[i]
		parseParams(sc, g.Params, out[g.ID*table.Stride:])
	}

	if err := sc.Err(); err != nil {
		if errors.Is(err, bufio.ErrTooLong) {
			return errFactory.WithData(ErrAllocation, table.Path)
		}
		return errFactory.Wrap(ErrIO, err)
	}

	return nil
}

// matchGroup returns the first group not yet matched whose label prefixes
// line, or -1.
func matchGroup(groups []Group, matched []bool, line string) int {
	for i, g := range groups {
		if !matched[i] && strings.HasPrefix(line, g.Label) {
			return i
		}
	}

	return -1
}

// parseParams consumes lines from sc until every param has been seen once or
// the input ends. Lines are shared with the label scan, so a parameter line
// is never taken for the next label.
func parseParams(sc *bufio.Scanner, params []string, slots Result) {
	seen := make([]bool, len(params))
	found := 0

	for found < len(params) && sc.Scan() {
		key, value, ok := strings.Cut(strings.TrimLeft(sc.Text(), " \t"), ":")
		if !ok {
			continue
		}

		for i, p := range params {
			if key != p {
				continue
			}
			slots[i] = parseValue(value)
			if !seen[i] {
				seen[i] = true
				found++
			}
			break
		}
	}
}

// parseValue reads the leading unsigned integer of s the way strtoull does
// with base 0: leading space is skipped, a minus negates modulo 2^64, 0x
// selects hex and a leading 0 octal. Parsing stops at the first invalid
// digit. No digits yields 0, overflow yields the maximum.
func parseValue(s string) uint64 {
	s = strings.TrimLeft(s, " \t\n\v\f\r")

	neg := false
	if s != "" && (s[0] == '+' || s[0] == '-') {
		neg = s[0] == '-'
		s = s[1:]
	}

	base := 10
	switch {
	case len(s) > 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') && digitIn(s[2], 16):
		base = 16
		s = s[2:]
	case s != "" && s[0] == '0':
		base = 8
	}

	n := 0
	for n < len(s) && digitIn(s[n], base) {
		n++
	}
	if n == 0 {
		return 0
	}

	v, err := strconv.ParseUint(s[:n], base, 64)
	if err != nil {
		return math.MaxUint64
	}
	if neg {
		return -v
	}

	return v
}

func digitIn(c byte, base int) bool {
	var d int
	switch {
	case c >= '0' && c <= '9':
		d = int(c - '0')
	case c >= 'a' && c <= 'f':
		d = int(c-'a') + 10
	case c >= 'A' && c <= 'F':
		d = int(c-'A') + 10
	default:
		return false
	}

	return d < base
}
