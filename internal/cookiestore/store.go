// Package cookiestore persists session cookies in a local SQLite
// database and imports cookies from Netscape-format cookies.txt files.
package cookiestore

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/opfetch/opfetch/pkg/fetchlib"
)

const schema = `
CREATE TABLE IF NOT EXISTS cookies (
	name    TEXT NOT NULL,
	value   TEXT NOT NULL,
	domain  TEXT NOT NULL,
	path    TEXT NOT NULL,
	expiry  INTEGER NOT NULL,
	secure  INTEGER NOT NULL,
	PRIMARY KEY (name, domain, path)
);`

// Store is a SQLite-backed cookie store. It satisfies the engine's
// persistence interface: Load at session start, Save at request finish.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the cookie database at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("error: cannot open cookie database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("error: cannot initialize cookie schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Load returns every unexpired cookie in the database. Session cookies
// are stored with expiry 0 and survive until explicitly cleared.
func (s *Store) Load() ([]fetchlib.Cookie, error) {
	now := time.Now().Unix()
	rows, err := s.db.Query(`
        SELECT name, value, domain, path, expiry, secure
        FROM cookies
        WHERE expiry = 0 OR expiry > ?
        ORDER BY domain ASC, path DESC, name ASC
    `, now)
	if err != nil {
		return nil, fmt.Errorf("error: failed to query cookies: %w", err)
	}
	defer rows.Close()

	var cookies []fetchlib.Cookie
	for rows.Next() {
		var (
			name, value, domain, path string
			expiry                    int64
			secure                    int
		)
		if err := rows.Scan(&name, &value, &domain, &path, &expiry, &secure); err != nil {
			return nil, fmt.Errorf("error: failed to scan cookie row: %w", err)
		}
		c := fetchlib.Cookie{
			Name:   name,
			Value:  value,
			Domain: domain,
			Path:   path,
			Secure: secure != 0,
		}
		if expiry != 0 {
			c.Expires = time.Unix(expiry, 0)
		}
		cookies = append(cookies, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error: failed to iterate cookie rows: %w", err)
	}
	return cookies, nil
}

// Save replaces the stored cookies with the given set.
func (s *Store) Save(cookies []fetchlib.Cookie) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("error: failed to begin cookie save: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM cookies`); err != nil {
		return fmt.Errorf("error: failed to clear cookies: %w", err)
	}
	stmt, err := tx.Prepare(`
        INSERT INTO cookies (name, value, domain, path, expiry, secure)
        VALUES (?, ?, ?, ?, ?, ?)
    `)
	if err != nil {
		return fmt.Errorf("error: failed to prepare cookie insert: %w", err)
	}
	defer stmt.Close()

	for _, c := range cookies {
		var expiry int64
		if !c.Expires.IsZero() {
			expiry = c.Expires.Unix()
		}
		secure := 0
		if c.Secure {
			secure = 1
		}
		if _, err := stmt.Exec(c.Name, c.Value, c.Domain, c.Path, expiry, secure); err != nil {
			return fmt.Errorf("error: failed to insert cookie %q: %w", c.Name, err)
		}
	}
	return tx.Commit()
}

// Clear drops every stored cookie.
func (s *Store) Clear() error {
	_, err := s.db.Exec(`DELETE FROM cookies`)
	if err != nil {
		return fmt.Errorf("error: failed to clear cookies: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

var _ fetchlib.CookieStore = (*Store)(nil)
