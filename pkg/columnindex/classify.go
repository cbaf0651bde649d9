package columnindex

import (
	"bytes"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/lazytail-go/lazytail/pkg/types"
)

var severityWords = []struct {
	word string
	sev  types.Severity
}{
	{"trace", types.SeverityTrace},
	{"debug", types.SeverityDebug},
	{"info", types.SeverityInfo},
	{"warn", types.SeverityWarn},
	{"warning", types.SeverityWarn},
	{"error", types.SeverityError},
	{"err", types.SeverityError},
	{"fatal", types.SeverityFatal},
	{"panic", types.SeverityFatal},
	{"critical", types.SeverityFatal},
}

// classifyLine derives the flags-column word for one line: format bits
// (JSON/logfmt) plus a best-effort severity, and a best-effort epoch
// microsecond timestamp (0 if none is found).
func classifyLine(line []byte) (flags uint32, tsMicros uint64) {
	trimmed := bytes.TrimSpace(line)
	if len(trimmed) == 0 {
		return types.FlagsOf(types.SeverityUnknown, 0), 0
	}

	if trimmed[0] == '{' && gjson.ValidBytes(trimmed) {
		sev := severityFromJSON(trimmed)
		ts := timestampFromJSON(trimmed)
		return types.FlagsOf(sev, types.FlagJSON), ts
	}

	if looksLikeLogfmt(trimmed) {
		sev := severityFromWords(trimmed)
		ts := timestampFromPrefix(trimmed)
		return types.FlagsOf(sev, types.FlagLogfmt), ts
	}

	sev := severityFromWords(trimmed)
	ts := timestampFromPrefix(trimmed)
	return types.FlagsOf(sev, 0), ts
}

func looksLikeLogfmt(line []byte) bool {
	eq := bytes.IndexByte(line, '=')
	if eq <= 0 {
		return false
	}
	space := bytes.IndexByte(line, ' ')
	return space < 0 || eq < space || bytes.Contains(line, []byte("="))
}

func severityFromJSON(line []byte) types.Severity {
	for _, field := range []string{"level", "severity", "loglevel", "log_level"} {
		v := gjson.GetBytes(line, field)
		if v.Exists() {
			if sev, ok := matchSeverityWord(v.String()); ok {
				return sev
			}
		}
	}
	return types.SeverityUnknown
}

func timestampFromJSON(line []byte) uint64 {
	for _, field := range []string{"timestamp", "time", "ts", "@timestamp"} {
		v := gjson.GetBytes(line, field)
		if v.Exists() {
			if us, ok := parseTimestampString(v.String()); ok {
				return us
			}
		}
	}
	return 0
}

func severityFromWords(line []byte) types.Severity {
	lower := strings.ToLower(string(line))
	for _, sw := range severityWords {
		if strings.Contains(lower, sw.word) {
			return sw.sev
		}
	}
	return types.SeverityUnknown
}

func matchSeverityWord(s string) (types.Severity, bool) {
	lower := strings.ToLower(strings.TrimSpace(s))
	for _, sw := range severityWords {
		if lower == sw.word {
			return sw.sev, true
		}
	}
	return types.SeverityUnknown, false
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.000Z0700",
	"2006-01-02 15:04:05.000",
	"2006-01-02 15:04:05",
}

func parseTimestampString(s string) (uint64, bool) {
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return uint64(t.UnixMicro()), true
		}
	}
	return 0, false
}

func timestampFromPrefix(line []byte) uint64 {
	s := string(line)
	for _, layout := range timestampLayouts {
		n := len(layout)
		if len(s) < n {
			continue
		}
		if t, err := time.Parse(layout, s[:n]); err == nil {
			return uint64(t.UnixMicro())
		}
	}
	return 0
}
