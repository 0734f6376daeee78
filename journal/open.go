package journal

import "fmt"

// Options selects a journal backend.
type Options struct {
	Type   string // "csv", "sqlite", "none" or ""
	CSV    CSVPaths
	DBPath string
}

// Open returns the configured journal. "none" and "" give a Nop journal.
func Open(o Options) (Journal, error) {
	switch o.Type {
	case "", "none":
		return Nop{}, nil
	case "csv":
		return NewCSV(o.CSV)
	case "sqlite":
		return NewSQLite(o.DBPath)
	default:
		return nil, fmt.Errorf("unknown journal type %q", o.Type)
	}
}
