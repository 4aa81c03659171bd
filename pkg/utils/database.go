package utils

import (
	"fmt"
	"io"
	"log"
	"strings"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	glog "gorm.io/gorm/logger"
)

const (
	DriverSqlite   = "sqlite"
	DriverMysql    = "mysql"
	DriverPostgres = "postgres"
)

// InitDatabase opens a gorm connection for the given driver.
// SQL logs go to logWriter; a nil writer silences them.
func InitDatabase(logWriter io.Writer, driver, dsn string) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch strings.ToLower(driver) {
	case DriverMysql:
		dialector = mysql.Open(dsn)
	case DriverPostgres, "postgresql", "pg":
		dialector = postgres.Open(dsn)
	case DriverSqlite, "":
		dialector = sqlite.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported db driver: %s", driver)
	}

	cfg := &gorm.Config{}
	if logWriter == nil {
		cfg.Logger = glog.Default.LogMode(glog.Silent)
	} else {
		cfg.Logger = glog.New(
			log.New(logWriter, "\r\n", log.LstdFlags),
			glog.Config{
				SlowThreshold:             200 * time.Millisecond,
				LogLevel:                  glog.Warn,
				IgnoreRecordNotFoundError: true,
				Colorful:                  false,
			},
		)
	}

	db, err := gorm.Open(dialector, cfg)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	if strings.ToLower(driver) == DriverSqlite || driver == "" {
		// sqlite serialises writers anyway; one connection keeps in-memory databases shared
		sqlDB.SetMaxOpenConns(1)
	} else {
		sqlDB.SetMaxOpenConns(50)
		sqlDB.SetMaxIdleConns(10)
		sqlDB.SetConnMaxLifetime(30 * time.Minute)
	}
	return db, nil
}

// MakeMigrates auto-migrates every model in order
func MakeMigrates(db *gorm.DB, models []any) error {
	for _, m := range models {
		if err := db.AutoMigrate(m); err != nil {
			return fmt.Errorf("migrate %T: %w", m, err)
		}
	}
	return nil
}
