package logger

import "strings"

// Level is the minimal severity a logger or writer lets through.
type Level uint32

// Severity levels, from the most verbose to none at all.
const (
	LevelTrace Level = iota
	LevelDebug
	LevelInfo
	LevelWarn
	LevelError
	LevelCritical
	LevelOff
)

var levelTags = map[Level]string{
	LevelTrace:    "TRC",
	LevelDebug:    "DBG",
	LevelInfo:     "INF",
	LevelWarn:     "WRN",
	LevelError:    "ERR",
	LevelCritical: "CRT",
}

var levelsByName = map[string]Level{
	"trace":    LevelTrace,
	"debug":    LevelDebug,
	"info":     LevelInfo,
	"warn":     LevelWarn,
	"error":    LevelError,
	"critical": LevelCritical,
	"off":      LevelOff,
}

// LevelFromString parses either a level name ("debug") or its tag ("DBG"),
// case insensitively. Unknown input yields LevelInfo and false.
func LevelFromString(s string) (Level, bool) {
	lower := strings.ToLower(s)
	if level, ok := levelsByName[lower]; ok {
		return level, true
	}
	for level, tag := range levelTags {
		if strings.ToLower(tag) == lower {
			return level, true
		}
	}
	return LevelInfo, false
}

// String returns the three letter tag printed in log entries.
func (l Level) String() string {
	if tag, ok := levelTags[l]; ok {
		return tag
	}
	return "OFF"
}
