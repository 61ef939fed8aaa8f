package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

const defaultDBName = "bugline.db"

const (
	DriverMemory = "memory"
	DriverSQLite = "sqlite"
)

type Config struct {
	Driver    string
	Workspace string
}

func dbPath(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, ".bugline", defaultDBName)
}

// EnsureWorkspace creates workspace directory if missing.
func EnsureWorkspace(workspace string) (string, error) {
	path := filepath.Join(workspace, ".bugline")
	if err := os.MkdirAll(path, 0o755); err != nil {
		return "", err
	}
	return path, nil
}

// Open opens the bug database. The memory driver gets a private in-memory
// database that lives as long as the returned handle.
func Open(cfg Config) (*sql.DB, error) {
	var dsn string
	switch cfg.Driver {
	case DriverMemory:
		dsn = fmt.Sprintf("file:bugline-%s?mode=memory&cache=shared", uuid.NewString())
	case DriverSQLite, "":
		if _, err := EnsureWorkspace(cfg.Workspace); err != nil {
			return nil, err
		}
		dsn = fmt.Sprintf("file:%s?cache=shared&_pragma=busy_timeout(5000)", dbPath(cfg.Workspace))
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	// one connection keeps the shared in-memory db alive and serializes writers
	conn.SetMaxOpenConns(1)
	return conn, nil
}

// Path returns the db path for the workspace.
func Path(workspace string) string {
	return dbPath(workspace)
}
