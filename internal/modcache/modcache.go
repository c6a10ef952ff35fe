// Package modcache persists the bodies of URL-imported modules so a second
// run can resolve them offline (spec.md §4.I.2: fetched content may be
// cached addressed by SHA-256 of the URL).
package modcache

import (
	"crypto/sha256"
	"database/sql"
	"database/sql/driver"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	libsql "github.com/tursodatabase/libsql-client-go/libsql"
	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// FetchedModule is one cached URL-import body, keyed by the SHA-256 of the
// URL it was fetched from.
type FetchedModule struct {
	URLDigest string `gorm:"primaryKey;type:varchar(64)"`
	URL       string `gorm:"type:text;not null"`
	Body      string `gorm:"type:text"`

	// Meta records body digest and size for cache inspection tooling.
	Meta datatypes.JSON `gorm:"type:jsonb"`

	FetchedAt time.Time `gorm:"autoCreateTime"`
}

func (FetchedModule) TableName() string {
	return "fetched_modules"
}

// Store wraps the gorm handle with the two operations the resolver needs.
type Store struct {
	db *gorm.DB
}

// Connect establishes a database connection and runs migrations. A URL DSN
// selects the libsql connector (shared/remote cache, e.g. Turso); anything
// else is treated as a local SQLite file path.
func Connect(dsn string, debug bool) (*Store, error) {
	if !isURL(dsn) {
		dir := filepath.Dir(dsn)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create cache directory: %w", err)
		}
	}

	config := &gorm.Config{}
	if debug {
		config.Logger = logger.Default.LogMode(logger.Info)
	} else {
		config.Logger = logger.Default.LogMode(logger.Silent)
	}

	var (
		dialector gorm.Dialector
		conn      *sql.DB
	)
	if isURL(dsn) {
		var (
			connector driver.Connector
			err       error
		)

		token := os.Getenv("ECRUN_LIBSQL_AUTH_TOKEN")
		if token != "" {
			connector, err = libsql.NewConnector(dsn, libsql.WithAuthToken(token))
		} else {
			connector, err = libsql.NewConnector(dsn)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to create libsql connector: %w", err)
		}

		conn = sql.OpenDB(connector)
		dialector = sqlite.New(sqlite.Config{
			DriverName: "libsql",
			Conn:       conn,
			DSN:        dsn,
		})
	} else {
		dialector = sqlite.Open(dsn)
	}

	db, err := gorm.Open(dialector, config)
	if err != nil {
		if conn != nil {
			conn.Close()
		}
		return nil, fmt.Errorf("failed to connect: %w", err)
	}

	if err := Migrate(db); err != nil {
		return nil, fmt.Errorf("migration failed: %w", err)
	}

	return &Store{db: db}, nil
}

// isURL checks if the DSN is a URL (for Turso) or file path
func isURL(dsn string) bool {
	return len(dsn) > 7 && (dsn[:7] == "http://" || dsn[:8] == "https://" || dsn[:6] == "libsql")
}

// Migrate runs database migrations
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(&FetchedModule{})
}

// Digest returns the SHA-256 hex digest the cache keys a URL by.
func Digest(url string) string {
	sum := sha256.Sum256([]byte(url))
	return hex.EncodeToString(sum[:])
}

// Get returns the cached body for url, or ok=false on a miss.
func (s *Store) Get(url string) (body string, ok bool, err error) {
	var rec FetchedModule
	res := s.db.First(&rec, "url_digest = ?", Digest(url))
	if res.Error != nil {
		if errors.Is(res.Error, gorm.ErrRecordNotFound) {
			return "", false, nil
		}
		return "", false, res.Error
	}
	return rec.Body, true, nil
}

// Put stores (or refreshes) the body fetched for url.
func (s *Store) Put(url, body string) error {
	meta, _ := json.Marshal(map[string]any{
		"sha256": Digest(body),
		"bytes":  len(body),
	})
	rec := FetchedModule{URLDigest: Digest(url), URL: url, Body: body, Meta: meta}
	return s.db.Save(&rec).Error
}
