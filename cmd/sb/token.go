package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/zulandar/switchboard/internal/auth"
	"github.com/zulandar/switchboard/internal/config"
	"golang.org/x/term"
)

func newTokenCmd() *cobra.Command {
	var (
		configPath string
		subject    string
		role       string
		ttl        time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint an operator token for development",
		Long: `Signs an HS256 operator token with auth.secret.

The secret comes from SB_AUTH_SECRET, then the config file. When neither
supplies one and stdin is a terminal, it is read without echo.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runToken(cmd, configPath, subject, role, ttl)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to Switchboard config file")
	cmd.Flags().StringVar(&subject, "subject", "operator", "token subject")
	cmd.Flags().StringVar(&role, "role", "operator", "role claim")
	cmd.Flags().DurationVar(&ttl, "ttl", 12*time.Hour, "token lifetime")
	return cmd
}

func runToken(cmd *cobra.Command, configPath, subject, role string, ttl time.Duration) error {
	if ttl <= 0 {
		return fmt.Errorf("--ttl must be positive")
	}
	secret, err := resolveSecret(cmd, configPath)
	if err != nil {
		return err
	}
	tok, err := auth.Mint(secret, subject, role, ttl, time.Now())
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), tok)
	return nil
}

func resolveSecret(cmd *cobra.Command, configPath string) (string, error) {
	if err := loadDotEnv(); err != nil {
		return "", err
	}
	if s := os.Getenv(config.EnvPrefix + "AUTH_SECRET"); s != "" {
		return s, nil
	}
	if cfg, err := config.Load(configPath); err == nil && cfg.Auth.Secret != "" {
		return cfg.Auth.Secret, nil
	}

	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", fmt.Errorf("no auth secret: set %sAUTH_SECRET or auth.secret in %s", config.EnvPrefix, configPath)
	}
	fmt.Fprint(cmd.ErrOrStderr(), "Auth secret: ")
	raw, err := term.ReadPassword(fd)
	fmt.Fprintln(cmd.ErrOrStderr())
	if err != nil {
		return "", fmt.Errorf("read secret: %w", err)
	}
	secret := strings.TrimSpace(string(raw))
	if secret == "" {
		return "", fmt.Errorf("auth secret is empty")
	}
	return secret, nil
}
