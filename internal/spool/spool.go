// Package spool keeps uploaded files on local disk between the mapping step
// and the import run.
//
// Each upload is stored as <uuid><ext> inside the spool directory; that file
// name doubles as the upload id handed back to clients.
package spool

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"github.com/JonMunkholm/sheetimport/internal/rowstream"
)

var (
	// ErrTooLarge is returned when an upload exceeds the size limit.
	ErrTooLarge = errors.New("file too large")

	// ErrNotFound is returned for unknown or malformed upload ids.
	ErrNotFound = errors.New("upload not found")
)

var idRe = regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}\.[a-z]{3,4}$`)

// Upload describes a spooled file.
type Upload struct {
	ID   string `json:"upload_id"`
	Name string `json:"file_name"` // original client file name
	Path string `json:"-"`
	Size int64  `json:"size"`
}

// Store is a directory of spooled uploads.
type Store struct {
	dir     string
	maxSize int64
}

// New creates the spool directory if needed. maxSize <= 0 disables the
// size limit.
func New(dir string, maxSize int64) (*Store, error) {
	if dir == "" {
		dir = filepath.Join(os.TempDir(), "sheetimport")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create spool dir: %w", err)
	}
	return &Store{dir: dir, maxSize: maxSize}, nil
}

// Dir returns the spool directory.
func (s *Store) Dir() string { return s.dir }

// Save copies r into a new spool file named after a fresh uuid and the
// extension of name. Files of a type no reader supports are rejected.
func (s *Store) Save(name string, r io.Reader) (Upload, error) {
	if rowstream.DetectFormat(name) == rowstream.FormatUnknown {
		return Upload{}, fmt.Errorf("%w: %s", rowstream.ErrUnsupportedFormat, filepath.Ext(name))
	}

	id := uuid.NewString() + strings.ToLower(filepath.Ext(name))
	path := filepath.Join(s.dir, id)

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return Upload{}, fmt.Errorf("create spool file: %w", err)
	}

	src := r
	if s.maxSize > 0 {
		src = io.LimitReader(r, s.maxSize+1)
	}
	n, err := io.Copy(f, src)
	if cErr := f.Close(); err == nil {
		err = cErr
	}
	if err == nil && s.maxSize > 0 && n > s.maxSize {
		err = ErrTooLarge
	}
	if err != nil {
		_ = os.Remove(path)
		if errors.Is(err, ErrTooLarge) {
			return Upload{}, err
		}
		return Upload{}, fmt.Errorf("write spool file: %w", err)
	}

	return Upload{ID: id, Name: filepath.Base(name), Path: path, Size: n}, nil
}

// Path resolves an upload id to its file. Ids that are not of the form
// Save produces are rejected without touching the file system.
func (s *Store) Path(id string) (string, error) {
	if !idRe.MatchString(id) {
		return "", ErrNotFound
	}
	path := filepath.Join(s.dir, id)
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", ErrNotFound
		}
		return "", err
	}
	return path, nil
}

// Remove deletes an upload. Removing a missing upload is not an error.
func (s *Store) Remove(id string) error {
	if !idRe.MatchString(id) {
		return ErrNotFound
	}
	err := os.Remove(filepath.Join(s.dir, id))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}
