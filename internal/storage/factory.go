package storage

import (
	"errors"
	"fmt"
	"strings"
)

// Result store backends.
const (
	KindMemory = "memory"
	KindSQLite = "sqlite"
)

var ErrUnsupportedBackend = errors.New("unsupported store backend")

// Kinds lists the backend names NewStore accepts, default first.
func Kinds() []string {
	return []string{KindMemory, KindSQLite}
}

// NewStore opens a result store. Kind is KindMemory (also the empty string),
// a per-process store, or KindSQLite, which persists validation results and
// trajectories in the database file at sqlitePath and is only available in
// builds tagged sqlite. Kind is matched case-insensitively.
func NewStore(kind, sqlitePath string) (Store, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "", KindMemory:
		return NewMemoryStore(), nil
	case KindSQLite:
		if strings.TrimSpace(sqlitePath) == "" {
			return nil, errors.New("sqlite store requires a database path")
		}
		return newSQLiteStore(sqlitePath)
	default:
		return nil, fmt.Errorf("%w: %q (valid: %s)", ErrUnsupportedBackend, kind, strings.Join(Kinds(), ", "))
	}
}

// CloseIfSupported closes stores that hold resources, such as the sqlite
// connection.
func CloseIfSupported(store Store) error {
	closer, ok := store.(interface{ Close() error })
	if !ok {
		return nil
	}
	return closer.Close()
}
