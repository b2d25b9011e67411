package session

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/bytedance/sonic"

	"github.com/ecrbeachresorts/portal/internal/core/domain"
)

// SlotKey names the single durable session entry.
const SlotKey = "ecr_beach_resorts_user"

var (
	ErrNoSession      = errors.New("no persisted session")
	ErrCorruptSession = errors.New("persisted session is malformed")
)

// Record is what survives a restart.
type Record struct {
	Identity   *domain.Identity `json:"user"`
	ActingRole domain.Role      `json:"acting_role,omitempty"`
	Token      string           `json:"token,omitempty"`
	ExpiresAt  time.Time        `json:"expires_at,omitempty"`
}

// Slot is durable client storage for one session. Writes are last-writer-wins.
type Slot interface {
	// Load returns ErrNoSession when nothing is stored and an error wrapping
	// ErrCorruptSession when the stored entry cannot be decoded.
	Load() (*Record, error)
	Save(rec *Record) error
	Clear() error
}

func encodeRecord(rec *Record) ([]byte, error) {
	return sonic.Marshal(rec)
}

func decodeRecord(data []byte) (*Record, error) {
	if len(data) == 0 {
		return nil, ErrCorruptSession
	}
	var rec Record
	if err := sonic.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptSession, err)
	}
	if rec.Identity == nil || rec.Identity.ID == "" {
		return nil, fmt.Errorf("%w: missing identity", ErrCorruptSession)
	}
	return &rec, nil
}

// FileSlot keeps the session in a JSON file readable only by the current user.
type FileSlot struct {
	path string
}

// NewFileSlot stores the session at path.
func NewFileSlot(path string) *FileSlot {
	return &FileSlot{path: path}
}

// DefaultSlotPath places the slot under the user's configuration directory.
func DefaultSlotPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("session slot: %w", err)
	}
	return filepath.Join(dir, "ecr-portal", SlotKey+".json"), nil
}

func (s *FileSlot) Path() string { return s.path }

func (s *FileSlot) Load() (*Record, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNoSession
		}
		return nil, fmt.Errorf("read session slot: %w", err)
	}
	return decodeRecord(data)
}

// Save writes through a temporary file so a crash never leaves half a record.
func (s *FileSlot) Save(rec *Record) error {
	data, err := encodeRecord(rec)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("session slot dir: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".session-*")
	if err != nil {
		return fmt.Errorf("session slot: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write session slot: %w", err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("session slot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("session slot: %w", err)
	}
	return os.Rename(tmp.Name(), s.path)
}

func (s *FileSlot) Clear() error {
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("clear session slot: %w", err)
	}
	return nil
}

// MemorySlot is a process-local Slot. It stores the encoded bytes so it
// behaves like durable storage, including for malformed entries.
type MemorySlot struct {
	mu   sync.Mutex
	data []byte
}

func NewMemorySlot() *MemorySlot {
	return &MemorySlot{}
}

// SetRaw replaces the stored bytes verbatim.
func (s *MemorySlot) SetRaw(data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = append([]byte(nil), data...)
}

func (s *MemorySlot) Load() (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.data == nil {
		return nil, ErrNoSession
	}
	return decodeRecord(s.data)
}

func (s *MemorySlot) Save(rec *Record) error {
	data, err := encodeRecord(rec)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	s.SetRaw(data)
	return nil
}

func (s *MemorySlot) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = nil
	return nil
}
