package db

import (
	"fmt"
	"net"
	"strconv"

	mysqldrv "github.com/go-sql-driver/mysql"
	"github.com/zulandar/switchboard/internal/config"
	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// MemoryPath opens a private in-memory sqlite database.
const MemoryPath = ":memory:"

// DSN builds a MySQL DSN for the configured store. An empty database name
// yields a server-level DSN, used for CREATE DATABASE.
func DSN(sc config.StoreConfig) string {
	c := mysqldrv.NewConfig()
	c.User = sc.User
	c.Passwd = sc.Password
	c.Net = "tcp"
	c.Addr = net.JoinHostPort(sc.Host, strconv.Itoa(sc.Port))
	c.DBName = sc.Database
	c.ParseTime = true
	c.Params = map[string]string{"charset": "utf8mb4"}
	return c.FormatDSN()
}

// Connect opens a GORM connection for the configured SQL driver.
func Connect(sc config.StoreConfig) (*gorm.DB, error) {
	switch sc.Driver {
	case config.DriverSQLite:
		return openSQLite(sc.Path)
	case config.DriverMySQL:
		db, err := gorm.Open(mysql.Open(DSN(sc)), gormConfig())
		if err != nil {
			return nil, fmt.Errorf("db: connect to %s:%d/%s: %w", sc.Host, sc.Port, sc.Database, err)
		}
		return db, nil
	default:
		return nil, fmt.Errorf("db: driver %q is not a SQL driver", sc.Driver)
	}
}

// ConnectAdmin opens a connection to the MySQL server without selecting a
// database.
func ConnectAdmin(sc config.StoreConfig) (*gorm.DB, error) {
	sc.Database = ""
	db, err := gorm.Open(mysql.Open(DSN(sc)), gormConfig())
	if err != nil {
		return nil, fmt.Errorf("db: admin connect to %s:%d: %w", sc.Host, sc.Port, err)
	}
	return db, nil
}

// CreateDatabase creates the named database if it doesn't already exist.
func CreateDatabase(adminDB *gorm.DB, name string) error {
	sql := fmt.Sprintf("CREATE DATABASE IF NOT EXISTS `%s` CHARACTER SET utf8mb4", name)
	if err := adminDB.Exec(sql).Error; err != nil {
		return fmt.Errorf("db: create database %s: %w", name, err)
	}
	return nil
}

// OpenMemory opens an empty, migrated in-memory sqlite database.
func OpenMemory() (*gorm.DB, error) {
	db, err := openSQLite(MemoryPath)
	if err != nil {
		return nil, err
	}
	if err := AutoMigrate(db); err != nil {
		return nil, err
	}
	return db, nil
}

func openSQLite(path string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(path), gormConfig())
	if err != nil {
		return nil, fmt.Errorf("db: open sqlite %s: %w", path, err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("db: open sqlite %s: %w", path, err)
	}
	// sqlite has a single writer, and every :memory: connection is its own
	// database.
	sqlDB.SetMaxOpenConns(1)
	return db, nil
}

func gormConfig() *gorm.Config {
	return &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	}
}
