package db

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"

	mysqldriver "github.com/go-sql-driver/mysql"
	"github.com/zulandar/humpyard/internal/config"
	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// DSN builds a MySQL DSN for the run history database.
func DSN(host string, port int, user, database string) string {
	c := mysqldriver.NewConfig()
	c.User = user
	c.Net = "tcp"
	c.Addr = net.JoinHostPort(host, strconv.Itoa(port))
	c.DBName = database
	c.ParseTime = true
	return c.FormatDSN()
}

// Connect opens the run history database described by cfg. sqlitePath is
// the resolved sqlite file; it is ignored for mysql.
func Connect(cfg config.DatabaseConfig, sqlitePath string) (*gorm.DB, error) {
	gcfg := &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)}

	switch cfg.Driver {
	case "mysql":
		dsn := DSN(cfg.Host, cfg.Port, cfg.User, cfg.Name)
		db, err := gorm.Open(mysql.Open(dsn), gcfg)
		if err != nil {
			return nil, fmt.Errorf("db: connect to %s:%d/%s: %w", cfg.Host, cfg.Port, cfg.Name, err)
		}
		return db, nil
	case "sqlite", "":
		if sqlitePath != ":memory:" {
			if err := os.MkdirAll(filepath.Dir(sqlitePath), 0755); err != nil {
				return nil, fmt.Errorf("db: create dir for %s: %w", sqlitePath, err)
			}
		}
		db, err := gorm.Open(sqlite.Open(sqlitePath), gcfg)
		if err != nil {
			return nil, fmt.Errorf("db: open %s: %w", sqlitePath, err)
		}
		return db, nil
	}
	return nil, fmt.Errorf("db: unsupported driver %q", cfg.Driver)
}

// Open connects using the full config and migrates the schema.
func Open(cfg *config.Config) (*gorm.DB, error) {
	db, err := Connect(cfg.Database, cfg.DatabasePath())
	if err != nil {
		return nil, err
	}
	if err := AutoMigrate(db); err != nil {
		return nil, err
	}
	return db, nil
}
