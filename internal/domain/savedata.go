package domain

import (
	"fmt"
	"strings"
)

// Persistence formats understood by the bundled inspector sinks. Inspectors
// are free to accept other values.
const (
	SaveCSV      = "csv"
	SaveJSON     = "json"
	SaveSQLite   = "sqlite"
	SavePostgres = "postgres"
	SaveS3       = "s3"
)

// SaveData selects where and how an inspector persists what it logged. The
// engine only forwards it; its meaning belongs to the inspector.
type SaveData struct {
	Format string
	Target string
}

// ParseSaveData parses "format:target" (e.g. "csv:results.csv"). An empty
// string yields nil, meaning no specific destination was requested.
func ParseSaveData(s string) (*SaveData, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	format, target, _ := strings.Cut(s, ":")
	format = strings.ToLower(strings.TrimSpace(format))
	if format == "" {
		return nil, fmt.Errorf("save data %q: missing format", s)
	}
	return &SaveData{Format: format, Target: strings.TrimSpace(target)}, nil
}

func (d *SaveData) String() string {
	if d == nil {
		return "none"
	}
	if d.Target == "" {
		return d.Format
	}
	return d.Format + ":" + d.Target
}
