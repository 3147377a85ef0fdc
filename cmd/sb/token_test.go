package main

import (
	"strings"
	"testing"

	"github.com/zulandar/switchboard/internal/auth"
)

func TestTokenCmd_FromEnv(t *testing.T) {
	t.Setenv("SB_AUTH_SECRET", testSecret)

	out, err := runCmd(t, "", "token", "--role", "admin", "--ttl", "1h", "-c", "/nonexistent.yaml")
	if err != nil {
		t.Fatalf("token: %v", err)
	}
	v, _ := auth.NewVerifier(testSecret, []string{"admin"})
	claims, err := v.Verify(strings.TrimSpace(out))
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if claims.Role != "admin" || claims.Subject != "operator" {
		t.Errorf("claims = %+v", claims)
	}
}

func TestTokenCmd_FromConfig(t *testing.T) {
	t.Setenv("SB_AUTH_SECRET", "")
	path, _ := writeConfig(t, "")

	out, err := runCmd(t, "", "token", "--subject", "sam", "-c", path)
	if err != nil {
		t.Fatalf("token: %v", err)
	}
	v, _ := auth.NewVerifier(testSecret, []string{"operator"})
	claims, err := v.Verify(strings.TrimSpace(out))
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if claims.Subject != "sam" {
		t.Errorf("Subject = %q, want sam", claims.Subject)
	}
}

func TestTokenCmd_BadTTL(t *testing.T) {
	t.Setenv("SB_AUTH_SECRET", testSecret)
	if _, err := runCmd(t, "", "token", "--ttl", "-1h"); err == nil {
		t.Fatal("expected error for negative ttl")
	}
}
