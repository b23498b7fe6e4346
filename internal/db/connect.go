// Package db opens and migrates the typeset job/module store.
package db

import (
	"fmt"

	"github.com/calebt/typeset/internal/config"
	gomysql "github.com/go-sql-driver/mysql"
	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// DSN builds a MySQL DSN from database config.
func DSN(dc config.DatabaseConfig) string {
	mc := gomysql.NewConfig()
	mc.User = dc.User
	mc.Passwd = dc.Password
	mc.Net = "tcp"
	mc.Addr = fmt.Sprintf("%s:%d", dc.Host, dc.Port)
	mc.DBName = dc.Name
	mc.ParseTime = true
	return mc.FormatDSN()
}

// Connect opens a GORM connection using the configured driver. SQLite is
// used for development and tests, MySQL in production.
func Connect(dc config.DatabaseConfig) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch dc.Driver {
	case "sqlite":
		dialector = sqlite.Open(dc.Path)
	case "mysql":
		dialector = mysql.Open(DSN(dc))
	default:
		return nil, fmt.Errorf("db: unsupported driver %q", dc.Driver)
	}
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("db: connect (%s): %w", dc.Driver, err)
	}
	return db, nil
}
