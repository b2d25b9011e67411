package session

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ecrbeachresorts/portal/internal/core/domain"
)

func sampleRecord() *Record {
	return &Record{
		Identity: &domain.Identity{
			ID:           "ECO2547001",
			Name:         "Alice",
			Email:        "alice@x.com",
			Role:         domain.RoleOwner,
			KYCStatus:    domain.KYCPending,
			PasswordHash: "$2a$10$hash",
		},
		Token:     "token",
		ExpiresAt: time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestFileSlot_SaveLoadClear(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", SlotKey+".json")
	slot := NewFileSlot(path)

	if _, err := slot.Load(); !errors.Is(err, ErrNoSession) {
		t.Fatalf("expected ErrNoSession, got %v", err)
	}

	if err := slot.Save(sampleRecord()); err != nil {
		t.Fatalf("Save returned error: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Fatalf("expected 0600, got %o", perm)
	}

	rec, err := slot.Load()
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if rec.Identity.ID != "ECO2547001" || rec.Token != "token" || !rec.ExpiresAt.Equal(sampleRecord().ExpiresAt) {
		t.Fatalf("unexpected record: %+v", rec)
	}
	if rec.Identity.PasswordHash != "" {
		t.Fatalf("password hash must never be written")
	}

	if err := slot.Clear(); err != nil {
		t.Fatalf("Clear returned error: %v", err)
	}
	if err := slot.Clear(); err != nil {
		t.Fatalf("Clear on an empty slot should succeed, got %v", err)
	}
	if _, err := slot.Load(); !errors.Is(err, ErrNoSession) {
		t.Fatalf("expected ErrNoSession after Clear, got %v", err)
	}
}

func TestFileSlot_CorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	_, err := NewFileSlot(path).Load()
	if !errors.Is(err, ErrCorruptSession) {
		t.Fatalf("expected ErrCorruptSession, got %v", err)
	}
}

func TestFileSlot_StoresIdentityUnderUserKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	if err := NewFileSlot(path).Save(sampleRecord()); err != nil {
		t.Fatalf("Save returned error: %v", err)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !strings.Contains(string(raw), `"user":{`) {
		t.Fatalf("expected identity under \"user\", got %s", raw)
	}
	if strings.Contains(string(raw), "$2a$") {
		t.Fatalf("password hash leaked: %s", raw)
	}
}

func TestMemorySlot(t *testing.T) {
	slot := NewMemorySlot()

	if _, err := slot.Load(); !errors.Is(err, ErrNoSession) {
		t.Fatalf("expected ErrNoSession, got %v", err)
	}
	if err := slot.Save(sampleRecord()); err != nil {
		t.Fatalf("Save returned error: %v", err)
	}
	rec, err := slot.Load()
	if err != nil || rec.Identity.Role != domain.RoleOwner {
		t.Fatalf("unexpected load: %+v, %v", rec, err)
	}

	slot.SetRaw([]byte(`{"user":{"id":""}}`))
	if _, err := slot.Load(); !errors.Is(err, ErrCorruptSession) {
		t.Fatalf("expected ErrCorruptSession, got %v", err)
	}

	_ = slot.Clear()
	if _, err := slot.Load(); !errors.Is(err, ErrNoSession) {
		t.Fatalf("expected ErrNoSession, got %v", err)
	}
}
