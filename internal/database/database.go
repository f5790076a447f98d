// Package database selects the attendance ledger backend from configuration.
package database

import (
	"fmt"
	"strings"

	"github.com/kozaktomas/face-attendance/internal/attendance"
	"github.com/kozaktomas/face-attendance/internal/config"
	"github.com/kozaktomas/face-attendance/internal/database/jsonfile"
	"github.com/kozaktomas/face-attendance/internal/database/mariadb"
	"github.com/kozaktomas/face-attendance/internal/database/postgres"
)

// Backend names
const (
	BackendJSON     = "json"
	BackendPostgres = "postgres"
	BackendMariaDB  = "mariadb"
)

// Backend is an opened ledger store together with its connection, if any.
type Backend struct {
	Name     string
	Location string
	Store    attendance.Store
	close    func() error
}

// Close releases the backend connection.
func (b *Backend) Close() error {
	if b.close == nil {
		return nil
	}
	return b.close()
}

// BackendFor reports which backend a database URL selects.
func BackendFor(url string) string {
	switch {
	case url == "":
		return BackendJSON
	case strings.HasPrefix(url, "postgres://"), strings.HasPrefix(url, "postgresql://"):
		return BackendPostgres
	case strings.HasPrefix(url, "mysql://"), strings.HasPrefix(url, "mariadb://"):
		return BackendMariaDB
	default:
		return ""
	}
}

// Open opens the ledger store configured by cfg. Without DATABASE_URL the
// ledger lives in the JSON attendance file.
func Open(cfg *config.Config) (*Backend, error) {
	switch BackendFor(cfg.Database.URL) {
	case BackendJSON:
		return &Backend{
			Name:     BackendJSON,
			Location: cfg.Storage.AttendanceFile,
			Store:    jsonfile.NewLedgerStore(cfg.Storage.AttendanceFile),
		}, nil

	case BackendPostgres:
		pool, err := postgres.Open(&cfg.Database)
		if err != nil {
			return nil, err
		}
		return &Backend{
			Name:     BackendPostgres,
			Location: redact(cfg.Database.URL),
			Store:    postgres.NewLedgerStore(pool),
			close:    pool.Close,
		}, nil

	case BackendMariaDB:
		dbCfg := cfg.Database
		dbCfg.URL = mysqlDSN(cfg.Database.URL)
		pool, err := mariadb.Open(&dbCfg)
		if err != nil {
			return nil, err
		}
		return &Backend{
			Name:     BackendMariaDB,
			Location: redact(dbCfg.URL),
			Store:    mariadb.NewLedgerStore(pool),
			close:    pool.Close,
		}, nil
	}
	return nil, fmt.Errorf("unsupported DATABASE_URL scheme: %s", redact(cfg.Database.URL))
}

// mysqlDSN strips the URL scheme, leaving a go-sql-driver DSN.
func mysqlDSN(url string) string {
	for _, prefix := range []string{"mysql://", "mariadb://"} {
		if strings.HasPrefix(url, prefix) {
			return strings.TrimPrefix(url, prefix)
		}
	}
	return url
}

// redact hides the password part of a connection string.
func redact(url string) string {
	at := strings.LastIndex(url, "@")
	if at < 0 {
		return url
	}
	head := url[:at]
	start := strings.Index(head, "://")
	if start >= 0 {
		start += 3
	} else {
		start = 0
	}
	colon := strings.Index(head[start:], ":")
	if colon < 0 {
		return url
	}
	return head[:start+colon+1] + "***" + url[at:]
}
