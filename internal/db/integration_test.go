//go:build integration

package db

import (
	"os"
	"strconv"
	"testing"

	"github.com/zulandar/switchboard/internal/config"
)

// mysqlStore returns the MySQL server under test, configured through
// SB_TEST_MYSQL_HOST and SB_TEST_MYSQL_PORT.
func mysqlStore(t *testing.T, database string) config.StoreConfig {
	t.Helper()
	host := os.Getenv("SB_TEST_MYSQL_HOST")
	if host == "" {
		t.Skip("SB_TEST_MYSQL_HOST not set")
	}
	port := 3306
	if p := os.Getenv("SB_TEST_MYSQL_PORT"); p != "" {
		n, err := strconv.Atoi(p)
		if err != nil {
			t.Fatalf("SB_TEST_MYSQL_PORT: %v", err)
		}
		port = n
	}
	return config.StoreConfig{
		Driver:   config.DriverMySQL,
		Host:     host,
		Port:     port,
		User:     "root",
		Password: os.Getenv("SB_TEST_MYSQL_PASSWORD"),
		Database: database,
	}
}

func TestIntegration_CreateAndMigrate(t *testing.T) {
	sc := mysqlStore(t, "switchboard_it")

	adminDB, err := ConnectAdmin(sc)
	if err != nil {
		t.Fatalf("ConnectAdmin: %v", err)
	}
	if err := CreateDatabase(adminDB, sc.Database); err != nil {
		t.Fatalf("CreateDatabase: %v", err)
	}

	gdb, err := Connect(sc)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if err := AutoMigrate(gdb); err != nil {
		t.Fatalf("AutoMigrate: %v", err)
	}

	var tables []string
	if err := gdb.Raw("SHOW TABLES").Scan(&tables).Error; err != nil {
		t.Fatalf("SHOW TABLES: %v", err)
	}
	found := make(map[string]bool)
	for _, tbl := range tables {
		found[tbl] = true
	}
	for _, want := range []string{"threads", "messages"} {
		if !found[want] {
			t.Errorf("table %q not found after migrate", want)
		}
	}
}
