package postgres

import (
	"errors"
	"fmt"
	"net/url"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
)

// Migrate applies every pending migration found under migrationsPath.
// It reports whether anything was applied.
func Migrate(dbUrl, migrationsPath, migrationsTable string) (bool, error) {
	u, err := url.Parse(dbUrl)
	if err != nil {
		return false, fmt.Errorf("parse db url: %w", err)
	}
	q := u.Query()
	q.Set("x-migrations-table", migrationsTable)
	u.RawQuery = q.Encode()

	m, err := migrate.New("file://"+migrationsPath, u.String())
	if err != nil {
		return false, err
	}
	defer func() {
		_, _ = m.Close()
	}()

	if err := m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			return false, nil
		}
		return false, err
	}

	return true, nil
}
