package docstore

import (
	"fmt"
	"path/filepath"
)

// Options selects and configures a Backend.
type Options struct {
	Driver      string // file, sqlite or postgres
	DataDir     string
	SQLitePath  string
	DatabaseURL string
}

// Open returns the backend named by opts.Driver.
func Open(opts Options) (Backend, error) {
	switch opts.Driver {
	case "", "file":
		return NewFileBackend(opts.DataDir)
	case "sqlite":
		path := opts.SQLitePath
		if path == "" {
			path = filepath.Join(opts.DataDir, "portal.db")
		}
		return NewSQLiteBackend(path)
	case "postgres":
		if opts.DatabaseURL == "" {
			return nil, fmt.Errorf("postgres driver requires DATABASE_URL")
		}
		return NewPostgresBackend(opts.DatabaseURL)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", opts.Driver)
	}
}
