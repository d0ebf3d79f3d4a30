package fdb

import (
	"errors"

	"firestige.xyz/swctl/internal/core"
)

// ListStatic returns every valid static entry, skipping unused slots.
func (db *Database) ListStatic() ([]core.FdbEntry, error) {
	var out []core.FdbEntry
	for i := 0; ; i++ {
		e, err := db.GetStatic(i)
		switch {
		case err == nil:
			out = append(out, e)
		case errors.Is(err, core.ErrInvalidEntry):
		case errors.Is(err, core.ErrEndOfTable):
			return out, nil
		default:
			return out, err
		}
	}
}

// ListDynamic returns every learned entry, stopping after limit entries
// when limit is positive.
func (db *Database) ListDynamic(limit int) ([]core.FdbEntry, error) {
	var out []core.FdbEntry
	for i := 0; limit <= 0 || i < limit; i++ {
		e, err := db.GetDynamic(i)
		switch {
		case err == nil:
			out = append(out, e)
		case errors.Is(err, core.ErrEndOfTable):
			return out, nil
		default:
			return out, err
		}
	}
	return out, nil
}
