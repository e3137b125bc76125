package streams

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// DefaultFile is the name under which the remote stream definitions are stored.
const DefaultFile = "remote_streams.json"

var ErrInvalidName = errors.New("streams: invalid file name")

// Store keeps named text documents in a directory.
type Store struct {
	Dir string
}

func (s *Store) path(name string) (string, error) {
	if name == "" || name == "." || name == ".." || filepath.Base(name) != name {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return filepath.Join(s.Dir, name), nil
}

// Save replaces the document called name with text. Readers observe either the previous or the
// new contents, never a partial write.
func (s *Store) Save(name, text string) error {
	target, err := s.path(name)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(s.Dir, 0700); err != nil {
		return fmt.Errorf("streams: failed to create %s: %w", s.Dir, err)
	}
	file, err := os.CreateTemp(s.Dir, "."+name+".*")
	if err != nil {
		return fmt.Errorf("streams: failed to save %s: %w", name, err)
	}
	tmp := file.Name()
	defer os.Remove(tmp)

	if _, err := file.WriteString(text); err != nil {
		file.Close()
		return fmt.Errorf("streams: failed to save %s: %w", name, err)
	}
	if err := file.Sync(); err != nil {
		file.Close()
		return fmt.Errorf("streams: failed to save %s: %w", name, err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("streams: failed to save %s: %w", name, err)
	}
	if err := os.Rename(tmp, target); err != nil {
		return fmt.Errorf("streams: failed to save %s: %w", name, err)
	}
	return nil
}

// Load returns the document called name. The error wraps fs.ErrNotExist if it has never been
// saved.
func (s *Store) Load(name string) (string, error) {
	target, err := s.path(name)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(target)
	if err != nil {
		return "", fmt.Errorf("streams: failed to load %s: %w", name, err)
	}
	return string(data), nil
}
