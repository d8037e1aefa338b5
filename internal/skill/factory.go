package skill

import (
	"context"
	"strings"
)

// NewStore picks a backend from databaseURL: empty selects the in-memory
// store, a sqlite:// or file: URL selects SQLite, anything else postgres.
func NewStore(ctx context.Context, databaseURL string) (Store, error) {
	databaseURL = strings.TrimSpace(databaseURL)
	switch {
	case databaseURL == "":
		return NewInMemoryStore(), nil
	case strings.HasPrefix(databaseURL, "sqlite://"):
		return NewSQLiteStore(ctx, strings.TrimPrefix(databaseURL, "sqlite://"))
	case strings.HasPrefix(databaseURL, "file:"):
		return NewSQLiteStore(ctx, databaseURL)
	default:
		return NewPostgresStore(ctx, databaseURL)
	}
}
