// Package types holds the small value types shared across lazytail's core
// packages: severity, parser/format flags, and the enumerations that back
// the flags column of a columnar index.
package types

// Severity classifies a log line's level. The numeric values match the low
// 4 bits of a columnar index's flags column (spec §6).
type Severity uint32

const (
	SeverityUnknown Severity = 0
	SeverityTrace   Severity = 1
	SeverityDebug   Severity = 2
	SeverityInfo    Severity = 3
	SeverityWarn    Severity = 4
	SeverityError   Severity = 5
	SeverityFatal   Severity = 6
)

func (s Severity) String() string {
	switch s {
	case SeverityTrace:
		return "trace"
	case SeverityDebug:
		return "debug"
	case SeverityInfo:
		return "info"
	case SeverityWarn:
		return "warn"
	case SeverityError:
		return "error"
	case SeverityFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// SeverityCount is the number of distinct severity buckets, including
// Unknown — used to size checkpoint histograms (spec §6's [u32; 7]).
const SeverityCount = 7

// Format flags occupy bits 4-7 of the flags column.
const (
	FlagSeverityMask uint32 = 0x0F
	FlagJSON         uint32 = 1 << 4
	FlagLogfmt       uint32 = 1 << 5
)

// FlagsOf packs a severity and format bits into one flags-column word.
func FlagsOf(sev Severity, format uint32) uint32 {
	return uint32(sev)&FlagSeverityMask | (format &^ FlagSeverityMask)
}

// SeverityOf extracts the severity from a flags-column word.
func SeverityOf(flags uint32) Severity {
	return Severity(flags & FlagSeverityMask)
}
