package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/zulandar/switchboard/internal/config"
	"github.com/zulandar/switchboard/internal/db"
)

func newDBCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "db",
		Short: "Database management commands",
	}
	cmd.AddCommand(newDBMigrateCmd())
	return cmd
}

func newDBMigrateCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Create or upgrade the thread store tables",
		Long:  "Creates the MySQL database if needed and migrates the threads and messages tables. Pebble stores need no migration.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDBMigrate(cmd, configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to Switchboard config file")
	return cmd
}

func runDBMigrate(cmd *cobra.Command, configPath string) error {
	out := cmd.OutOrStdout()

	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	sc := cfg.Store

	switch sc.Driver {
	case config.DriverPebble:
		fmt.Fprintf(out, "Pebble store at %s needs no migration\n", sc.Path)
		return nil
	case config.DriverMySQL:
		adminDB, err := db.ConnectAdmin(sc)
		if err != nil {
			return fmt.Errorf("connect to MySQL at %s:%d: %w", sc.Host, sc.Port, err)
		}
		if err := db.CreateDatabase(adminDB, sc.Database); err != nil {
			return err
		}
		fmt.Fprintf(out, "Database %s ready\n", sc.Database)
	}

	gormDB, err := db.Connect(sc)
	if err != nil {
		return err
	}
	if sqlDB, err := gormDB.DB(); err == nil {
		defer sqlDB.Close()
	}
	if err := db.AutoMigrate(gormDB); err != nil {
		return err
	}
	fmt.Fprintf(out, "Migrated %d tables (%s)\n", len(db.AllModels()), sc.Driver)
	return nil
}
