package postgres

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"sort"

	"github.com/rs/zerolog"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Migrations nombres de los scripts embebidos, en orden de aplicación.
func Migrations() ([]string, error) {
	names, err := fs.Glob(migrationsFS, "migrations/*.sql")
	if err != nil {
		return nil, err
	}
	sort.Strings(names)
	return names, nil
}

// MigrationSQL contenido del script embebido.
func MigrationSQL(name string) (string, error) {
	sql, err := migrationsFS.ReadFile(name)
	if err != nil {
		return "", fmt.Errorf("leer migración %s: %w", name, err)
	}
	return string(sql), nil
}

// RunMigrations aplica los scripts embebidos en orden. Son idempotentes (IF NOT EXISTS).
func RunMigrations(ctx context.Context, q Querier, log zerolog.Logger) error {
	names, err := Migrations()
	if err != nil {
		return fmt.Errorf("listar migraciones: %w", err)
	}
	for _, name := range names {
		sql, err := MigrationSQL(name)
		if err != nil {
			return err
		}
		if _, err := q.Exec(ctx, sql); err != nil {
			return fmt.Errorf("aplicar migración %s: %w", name, err)
		}
		log.Info().Str("file", name).Msg("migración aplicada")
	}
	return nil
}
