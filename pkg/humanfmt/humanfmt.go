// Package humanfmt renders byte sizes, record counts, durations, and rates
// for the human-readable companion fields of log lines.
package humanfmt

import (
	"fmt"
	"strconv"
	"time"
)

// Binary (IEC) units for bytes.
const (
	KiB = 1024
	MiB = 1024 * KiB
	GiB = 1024 * MiB
	TiB = 1024 * GiB
)

type unit struct {
	size   float64
	suffix string
}

var byteUnits = []unit{{TiB, "TiB"}, {GiB, "GiB"}, {MiB, "MiB"}, {KiB, "KiB"}}

var countUnits = []unit{{1e9, "B"}, {1e6, "M"}, {1e3, "K"}}

// scale picks the largest unit not exceeding v.
func scale(v float64, units []unit) (float64, string, bool) {
	for _, u := range units {
		if v >= u.size {
			return v / u.size, u.suffix, true
		}
	}
	return v, "", false
}

// Bytes formats a byte count with IEC units, e.g. "1.50 MiB".
func Bytes(b int64) string {
	if b < 0 {
		return strconv.FormatInt(b, 10) + " B"
	}
	if v, suffix, ok := scale(float64(b), byteUnits); ok {
		return fmt.Sprintf("%.2f %s", v, suffix)
	}
	return strconv.FormatInt(b, 10) + " B"
}

// BytesUint64 is like Bytes but for uint64.
func BytesUint64(b uint64) string {
	return Bytes(int64(b))
}

// Duration formats d compactly: "1.23s", "45.6ms", "1m30s", "2h15m".
func Duration(d time.Duration) string {
	switch {
	case d < 0:
		return d.String()
	case d >= time.Hour:
		return compound(int64(d/time.Hour), "h", int64(d%time.Hour/time.Minute), "m")
	case d >= time.Minute:
		return compound(int64(d/time.Minute), "m", int64(d%time.Minute/time.Second), "s")
	case d >= time.Second:
		return fmt.Sprintf("%.2fs", d.Seconds())
	case d >= time.Millisecond:
		return fmt.Sprintf("%.1fms", float64(d)/float64(time.Millisecond))
	case d >= time.Microsecond:
		return fmt.Sprintf("%.1fµs", float64(d)/float64(time.Microsecond))
	default:
		return strconv.FormatInt(d.Nanoseconds(), 10) + "ns"
	}
}

func compound(major int64, majorSuffix string, minor int64, minorSuffix string) string {
	s := strconv.FormatInt(major, 10) + majorSuffix
	if minor != 0 {
		s += strconv.FormatInt(minor, 10) + minorSuffix
	}
	return s
}

// Throughput formats bytes moved over d as a rate, e.g. "123.40 MiB/s".
func Throughput(bytes int64, d time.Duration) string {
	if d <= 0 {
		return "∞"
	}
	perSec := float64(bytes) / d.Seconds()
	if v, suffix, ok := scale(perSec, byteUnits); ok {
		return fmt.Sprintf("%.2f %s/s", v, suffix)
	}
	return fmt.Sprintf("%.0f B/s", perSec)
}

// Count formats a record count with decimal suffixes, e.g. "1.23M".
func Count(n int64) string {
	if n < 0 {
		return strconv.FormatInt(n, 10)
	}
	if v, suffix, ok := scale(float64(n), countUnits); ok {
		return fmt.Sprintf("%.2f%s", v, suffix)
	}
	return strconv.FormatInt(n, 10)
}

// Rate formats n items handled over d as items per second, e.g. "2.50M/s".
func Rate(n int64, d time.Duration) string {
	if d <= 0 {
		return "∞"
	}
	perSec := float64(n) / d.Seconds()
	if v, suffix, ok := scale(perSec, countUnits); ok {
		return fmt.Sprintf("%.2f%s/s", v, suffix)
	}
	return fmt.Sprintf("%.0f/s", perSec)
}
