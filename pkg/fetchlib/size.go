package fetchlib

import (
	"strconv"
	"strings"
)

// Size unit constants for byte conversions.
const (
	// B represents one byte.
	B int64 = 1
	// KB represents one kilobyte (1024 bytes).
	KB = 1024 * B
	// MB represents one megabyte (1024 kilobytes).
	MB = 1024 * KB
	// GB represents one gigabyte (1024 megabytes).
	GB = 1024 * MB
	// TB represents one terabyte (1024 gigabytes).
	TB = 1024 * GB
)

// ByteCount is a byte total that knows how to render itself in
// human-readable units. A value of -1 means the total is unknown.
type ByteCount int64

func (c ByteCount) v() (n int64) {
	return int64(c)
}

// IsUnknown reports whether the total is indeterminate.
func (c ByteCount) IsUnknown() (unknown bool) {
	return c.v() == -1
}

func (c ByteCount) String() (s string) {
	s = c.Format(
		" ",
		SizeOptionTB,
		SizeOptionGB,
		SizeOptionMB,
		SizeOptionKB,
	)
	if s == "" {
		s = "undefined"
	}
	return
}

// Format renders the count using the provided size units, joined by sep.
func (c ByteCount) Format(sep string, sizeOpts ...SizeOption) (s string) {
	b := strings.Builder{}
	n := len(sizeOpts) - 1
	for i, opt := range sizeOpts {
		siz, rem := opt.Get(c)
		c = ByteCount(rem)
		if siz == 0 {
			continue
		}
		b.WriteString(opt.StringFrom(siz))
		if i == n {
			break
		}
		b.WriteString(sep)
	}
	s = b.String()
	return
}

// SizeOption provides size unit conversion and formatting utilities.
// It holds a value representing the unit size and a suffix for display.
type SizeOption struct {
	val int64
	fmt string
}

// Get divides the ByteCount by the unit size and returns the quotient and remainder.
func (s *SizeOption) Get(l ByteCount) (siz, rem int64) {
	siz = l.v() / s.val
	rem = l.v() % s.val
	return
}

// StringFrom returns the given int64 value formatted with the unit suffix.
func (s *SizeOption) StringFrom(l int64) string {
	return strconv.FormatInt(l, 10) + s.fmt
}

var (
	// SizeOptionBy is a SizeOption configured for bytes.
	SizeOptionBy = SizeOption{B, "Bytes"}
	// SizeOptionKB is a SizeOption configured for kilobytes.
	SizeOptionKB = SizeOption{KB, "KB"}
	// SizeOptionMB is a SizeOption configured for megabytes.
	SizeOptionMB = SizeOption{MB, "MB"}
	// SizeOptionGB is a SizeOption configured for gigabytes.
	SizeOptionGB = SizeOption{GB, "GB"}
	// SizeOptionTB is a SizeOption configured for terabytes.
	SizeOptionTB = SizeOption{TB, "TB"}
)
