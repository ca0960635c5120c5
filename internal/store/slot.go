package store

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/spf13/afero"
)

// Slot is a durable key-value backend holding one encoded transcript per
// room id. Save replaces the whole value.
type Slot interface {
	Load(ctx context.Context, roomID string) (data []byte, ok bool, err error)
	Save(ctx context.Context, roomID string, data []byte) error
}

// FileSlot stores each room in its own file on an afero filesystem.
type FileSlot struct {
	fs  afero.Fs
	dir string
}

// NewFileSlot creates a FileSlot rooted at dir on fs.
func NewFileSlot(fs afero.Fs, dir string) *FileSlot {
	return &FileSlot{fs: fs, dir: dir}
}

// NewMemorySlot returns a FileSlot on an in-memory filesystem. Nothing
// survives the process.
func NewMemorySlot() *FileSlot {
	return NewFileSlot(afero.NewMemMapFs(), "/")
}

// Path returns the file holding roomID. Room ids are encoded so any id is
// a safe file name.
func (s *FileSlot) Path(roomID string) string {
	name := "chatroom_messages_" + base64.RawURLEncoding.EncodeToString([]byte(roomID)) + ".pb"
	return filepath.Join(s.dir, name)
}

// Load reads the slot for roomID.
func (s *FileSlot) Load(ctx context.Context, roomID string) ([]byte, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	data, err := afero.ReadFile(s.fs, s.Path(roomID))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read slot: %w", err)
	}
	return data, true, nil
}

// Save overwrites the slot for roomID. The write goes to a temporary file
// first so a crash never leaves a half-written transcript.
func (s *FileSlot) Save(ctx context.Context, roomID string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.fs.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create slot dir: %w", err)
	}
	path := s.Path(roomID)
	tmp := path + ".tmp"
	if err := afero.WriteFile(s.fs, tmp, data, 0o600); err != nil {
		return fmt.Errorf("failed to write slot: %w", err)
	}
	if err := s.fs.Rename(tmp, path); err != nil {
		_ = s.fs.Remove(tmp)
		return fmt.Errorf("failed to replace slot: %w", err)
	}
	return nil
}

// NewOSFileSlot is a FileSlot on the real filesystem under dir.
func NewOSFileSlot(dir string) (*FileSlot, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create store dir: %w", err)
	}
	return NewFileSlot(afero.NewOsFs(), dir), nil
}
