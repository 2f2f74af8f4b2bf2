//go:build !sqlite

package storage

import "fmt"

func newSQLiteStore(path string) (Store, error) {
	return nil, fmt.Errorf("sqlite result store %s: backend not compiled in, rebuild with -tags sqlite", path)
}
