package models

import (
	"reflect"
	"strings"
	"testing"
	"time"
)

// gormTag extracts the gorm tag from a struct field.
func gormTag(t *testing.T, typ reflect.Type, fieldName string) string {
	t.Helper()
	f, ok := typ.FieldByName(fieldName)
	if !ok {
		t.Fatalf("%s.%s: field not found", typ.Name(), fieldName)
	}
	return f.Tag.Get("gorm")
}

// assertGormTag checks that a struct field's gorm tag contains the expected value.
func assertGormTag(t *testing.T, typ reflect.Type, fieldName, expected string) {
	t.Helper()
	tag := gormTag(t, typ, fieldName)
	if !strings.Contains(tag, expected) {
		t.Errorf("%s.%s gorm tag = %q, want to contain %q", typ.Name(), fieldName, tag, expected)
	}
}

func TestMessage_Fields(t *testing.T) {
	typ := reflect.TypeOf(Message{})

	assertGormTag(t, typ, "ID", "primaryKey")
	assertGormTag(t, typ, "ThreadID", "uniqueIndex:idx_thread_seq")
	assertGormTag(t, typ, "Seq", "uniqueIndex:idx_thread_seq")
	assertGormTag(t, typ, "Role", "not null")
	assertGormTag(t, typ, "Text", "type:text")
	assertGormTag(t, typ, "SentAt", "not null")
}

func TestThread_Fields(t *testing.T) {
	typ := reflect.TypeOf(Thread{})

	assertGormTag(t, typ, "ThreadID", "primaryKey")
	assertGormTag(t, typ, "ThreadID", "size:64")
	assertGormTag(t, typ, "MessageCount", "default:0")
	assertGormTag(t, typ, "LastActivityAt", "index")
}

func TestRole_Valid(t *testing.T) {
	tests := []struct {
		role Role
		want bool
	}{
		{RoleGuest, true},
		{RoleOperator, true},
		{Role("admin"), false},
		{Role(""), false},
	}
	for _, tt := range tests {
		if got := tt.role.Valid(); got != tt.want {
			t.Errorf("Role(%q).Valid() = %v, want %v", tt.role, got, tt.want)
		}
	}
}

func TestThread_Summary(t *testing.T) {
	now := time.Date(2026, 10, 16, 9, 0, 0, 0, time.UTC)
	th := Thread{
		ThreadID:       "01JABC",
		Name:           "Lan",
		Contact:        "lan@example.com",
		MessageCount:   3,
		LastText:       "thanks",
		LastRole:       RoleGuest,
		LastActivityAt: now,
	}
	s := th.Summary()
	if s.ThreadID != "01JABC" || s.Count != 3 || s.LastText != "thanks" {
		t.Errorf("Summary() = %+v", s)
	}
	if !s.LastActivityAt.Equal(now) {
		t.Errorf("LastActivityAt = %v, want %v", s.LastActivityAt, now)
	}
	if !s.AwaitingReply() {
		t.Error("AwaitingReply() = false, want true when guest spoke last")
	}
	s.LastRole = RoleOperator
	if s.AwaitingReply() {
		t.Error("AwaitingReply() = true, want false when operator spoke last")
	}
}
