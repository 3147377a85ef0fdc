package threadstore

import (
	"strings"
	"testing"

	"github.com/zulandar/switchboard/internal/config"
)

func TestNewGormStore_RequiresDB(t *testing.T) {
	_, err := NewGormStore(GormOpts{})
	if err == nil {
		t.Fatal("expected error for nil db")
	}
	if !strings.Contains(err.Error(), "db is required") {
		t.Errorf("error = %q, want to contain %q", err.Error(), "db is required")
	}
}

func TestOpen_Drivers(t *testing.T) {
	tests := []struct {
		name string
		sc   config.StoreConfig
	}{
		{"sqlite", config.StoreConfig{Driver: config.DriverSQLite, Path: t.TempDir() + "/chat.db"}},
		{"pebble", config.StoreConfig{Driver: config.DriverPebble, Path: t.TempDir()}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := Open(tt.sc)
			if err != nil {
				t.Fatalf("Open: %v", err)
			}
			if err := s.Close(); err != nil {
				t.Errorf("Close: %v", err)
			}
		})
	}
}

func TestOpen_UnknownDriver(t *testing.T) {
	if _, err := Open(config.StoreConfig{Driver: "redis"}); err == nil {
		t.Fatal("expected error for unknown driver")
	}
}
