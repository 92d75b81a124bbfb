package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/mysqldialect"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	_ "modernc.org/sqlite"
)

const (
	DriverMySQL    = "mysql"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Config is bound from DB_* environment variables. MySQL DSNs need
// parseTime=true so DATETIME columns scan into time.Time.
type Config struct {
	Driver          string `split_words:"true" default:"mysql"`
	DSN             string `split_words:"true" default:"root:root@tcp(localhost:3306)/multiagent?parseTime=true"`
	MaxOpenConns    int    `split_words:"true" default:"10"`
	MaxIdleConns    int    `split_words:"true" default:"5"`
	ConnMaxLifetime int    `split_words:"true" default:"300"`
}

// Open connects to the configured database and wraps it in a bun.DB with the
// matching dialect.
func (c *Config) Open(ctx context.Context) (*bun.DB, error) {
	driver := strings.ToLower(strings.TrimSpace(c.Driver))
	sqlDriver, err := sqlDriverName(driver)
	if err != nil {
		return nil, err
	}

	sqlDB, err := sql.Open(sqlDriver, c.DSN)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}

	if driver == DriverSQLite {
		// a single connection keeps :memory: databases shared and avoids SQLITE_BUSY
		sqlDB.SetMaxOpenConns(1)
	} else {
		if c.MaxOpenConns > 0 {
			sqlDB.SetMaxOpenConns(c.MaxOpenConns)
		}
		if c.MaxIdleConns > 0 {
			sqlDB.SetMaxIdleConns(c.MaxIdleConns)
		}
		if c.ConnMaxLifetime > 0 {
			sqlDB.SetConnMaxLifetime(time.Duration(c.ConnMaxLifetime) * time.Second)
		}
	}

	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping %s: %w", driver, err)
	}

	return NewBunDB(sqlDB, driver), nil
}

// NewBunDB wraps sqlDB with the dialect for driver. Unknown drivers fall back
// to the SQLite dialect; callers validate the driver before reaching here.
func NewBunDB(sqlDB *sql.DB, driver string) *bun.DB {
	switch driver {
	case DriverMySQL:
		return bun.NewDB(sqlDB, mysqldialect.New())
	case DriverPostgres:
		return bun.NewDB(sqlDB, pgdialect.New())
	default:
		return bun.NewDB(sqlDB, sqlitedialect.New())
	}
}

func sqlDriverName(driver string) (string, error) {
	switch driver {
	case DriverMySQL:
		return "mysql", nil
	case DriverPostgres:
		return "pgx", nil
	case DriverSQLite:
		return "sqlite", nil
	default:
		return "", fmt.Errorf("unsupported database driver %q (want mysql, postgres or sqlite)", driver)
	}
}
