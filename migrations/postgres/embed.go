// Package postgres embeds the schema migrations and applies them in
// lexical order. Statements are idempotent, so re-running is safe.
package postgres

import (
	"context"
	"embed"
	"sort"

	"github.com/Abraxas-365/cabina/pkg/errx"
	"github.com/jmoiron/sqlx"
)

//go:embed *.sql
var files embed.FS

// Apply runs every embedded migration against the database.
func Apply(ctx context.Context, db *sqlx.DB) error {
	entries, err := files.ReadDir(".")
	if err != nil {
		return errx.Wrap(err, "failed to read embedded migrations", errx.TypeInternal)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)

	for _, name := range names {
		sqlBytes, err := files.ReadFile(name)
		if err != nil {
			return errx.Wrap(err, "failed to read migration", errx.TypeInternal).WithDetail("file", name)
		}
		if _, err := db.ExecContext(ctx, string(sqlBytes)); err != nil {
			return errx.Wrap(err, "failed to apply migration", errx.TypeInternal).WithDetail("file", name)
		}
	}
	return nil
}
