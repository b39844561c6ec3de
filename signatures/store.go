// Package signatures keeps signature images the user saved for reuse.
package signatures

import (
	"bytes"
	"errors"
	"fmt"
	"image/png"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/google/uuid"

	"github.com/georgepadayatti/pdfflatten/pdf/images"
)

// Common errors
var (
	ErrInvalidName = errors.New("invalid signature name")
	ErrNotFound    = errors.New("signature not found")
)

// Store is a directory of signature PNGs. Saved images are opaque: any
// transparency is composited over white before writing.
type Store struct {
	dir string
	// maxPixels bounds the area of saved bitmaps; 0 is the images default.
	maxPixels int
	// newName returns a fresh file name; replaced in tests.
	newName func() string
}

// NewStore returns a store over dir, creating it if needed.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create signature directory: %w", err)
	}
	return &Store{dir: dir, newName: randomName}, nil
}

func randomName() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "") + ".png"
}

// SetMaxPixels bounds the area of bitmaps Save accepts.
func (s *Store) SetMaxPixels(n int) {
	s.maxPixels = n
}

// Dir returns the store's directory.
func (s *Store) Dir() string {
	return s.dir
}

// Save decodes a base64 data URL, flattens the image over white and
// stores it as a PNG. It returns the new file name.
func (s *Store) Save(dataURL string) (string, error) {
	data, err := images.DecodeDataURL(dataURL)
	if err != nil {
		return "", err
	}
	img, _, err := images.Decode(data, s.maxPixels)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, images.FlattenOnWhite(img)); err != nil {
		return "", fmt.Errorf("encode signature: %w", err)
	}

	name := s.newName()
	tmp, err := os.CreateTemp(s.dir, ".sig-*")
	if err != nil {
		return "", fmt.Errorf("save signature: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		return "", fmt.Errorf("save signature: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("save signature: %w", err)
	}
	if err := os.Rename(tmp.Name(), filepath.Join(s.dir, name)); err != nil {
		return "", fmt.Errorf("save signature: %w", err)
	}
	return name, nil
}

// List returns the names of the stored signatures in lexical order.
func (s *Store) List() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("list signatures: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.Type().IsRegular() && !strings.HasPrefix(e.Name(), ".") {
			names = append(names, e.Name())
		}
	}
	slices.Sort(names)
	return names, nil
}

// Path returns the file path of a stored signature. Names that would
// leave the directory are rejected.
func (s *Store) Path(name string) (string, error) {
	if !ValidName(name) {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return filepath.Join(s.dir, name), nil
}

// Open reads a stored signature.
func (s *Store) Open(name string) ([]byte, error) {
	path, err := s.Path(name)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return data, err
}

// ValidName reports whether name is a plain file name: not empty, not
// hidden and without any path separator.
func ValidName(name string) bool {
	return name != "" &&
		!strings.HasPrefix(name, ".") &&
		!strings.ContainsAny(name, `/\`+"\x00") &&
		filepath.IsLocal(name)
}
