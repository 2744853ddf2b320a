package export

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/youruser/collageapp/internal/errors"
	"github.com/youruser/collageapp/internal/util"
)

// Record is one entry in a media store.
type Record struct {
	ID           string    `json:"id"`
	DisplayName  string    `json:"display_name"`
	RelativePath string    `json:"relative_path"`
	MIME         string    `json:"mime"`
	Pending      bool      `json:"pending"`
	CreatedAt    time.Time `json:"created_at"`
	File         string    `json:"file"`
}

// MediaStore is a shared media library that saved collages are inserted
// into.
type MediaStore interface {
	// Insert creates a record and reserves its storage.
	Insert(ctx context.Context, rec Record) (Record, error)
	// OpenWriter returns a writer for the record's bytes.
	OpenWriter(ctx context.Context, id string) (io.WriteCloser, error)
	// SetPending toggles visibility of a record to other readers.
	SetPending(ctx context.Context, id string, pending bool) error
	// Delete removes a record and its bytes.
	Delete(ctx context.Context, id string) error
	// SupportsPending reports whether records can be inserted hidden.
	SupportsPending() bool
}

// FileMediaStore keeps media under a root directory. Each record has a
// JSON sidecar in root/.records; the bytes live at
// root/<relative path>/<display name><ext>.
type FileMediaStore struct {
	root     string
	twoPhase bool

	mu sync.Mutex
}

// NewFileMediaStore creates root if needed. twoPhase enables pending
// inserts.
func NewFileMediaStore(root string, twoPhase bool) (*FileMediaStore, error) {
	if err := util.EnsureDir(filepath.Join(root, ".records")); err != nil {
		return nil, err
	}
	return &FileMediaStore{root: root, twoPhase: twoPhase}, nil
}

func (s *FileMediaStore) SupportsPending() bool { return s.twoPhase }

// Insert writes the sidecar and reserves a unique file name, adding " (n)"
// when the display name is taken.
func (s *FileMediaStore) Insert(ctx context.Context, rec Record) (Record, error) {
	if rec.Pending && !s.twoPhase {
		return Record{}, fmt.Errorf("pending inserts are not supported")
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	dir := filepath.Join(s.root, filepath.FromSlash(rec.RelativePath))
	if !strings.HasPrefix(filepath.Clean(dir)+string(filepath.Separator), filepath.Clean(s.root)+string(filepath.Separator)) {
		return Record{}, fmt.Errorf("relative path %q escapes the store", rec.RelativePath)
	}
	if err := util.EnsureDir(dir); err != nil {
		return Record{}, err
	}

	ext := extensionFor(rec.MIME)
	for n := 0; ; n++ {
		name := rec.DisplayName + ext
		if n > 0 {
			name = fmt.Sprintf("%s (%d)%s", rec.DisplayName, n, ext)
		}
		f, err := os.OpenFile(filepath.Join(dir, name), os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
		if os.IsExist(err) {
			continue
		}
		if err != nil {
			return Record{}, err
		}
		f.Close()
		rec.File = filepath.ToSlash(filepath.Join(rec.RelativePath, name))
		break
	}

	if err := s.writeRecord(rec); err != nil {
		os.Remove(s.filePath(rec))
		return Record{}, err
	}
	return rec, nil
}

func (s *FileMediaStore) OpenWriter(ctx context.Context, id string) (io.WriteCloser, error) {
	rec, err := s.Get(id)
	if err != nil {
		return nil, err
	}
	return os.OpenFile(s.filePath(rec), os.O_WRONLY|os.O_TRUNC, 0o644)
}

func (s *FileMediaStore) SetPending(ctx context.Context, id string, pending bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, err := s.readRecord(id)
	if err != nil {
		return err
	}
	rec.Pending = pending
	return s.writeRecord(rec)
}

func (s *FileMediaStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, err := s.readRecord(id)
	if err != nil {
		return err
	}
	if err := os.Remove(s.filePath(rec)); err != nil && !os.IsNotExist(err) {
		return err
	}
	return os.Remove(s.recordPath(id))
}

// Get returns a record, pending or not.
func (s *FileMediaStore) Get(id string) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readRecord(id)
}

// Path returns the absolute location of a record's bytes.
func (s *FileMediaStore) Path(rec Record) string { return s.filePath(rec) }

// List returns published records, oldest first.
func (s *FileMediaStore) List() ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(filepath.Join(s.root, ".records"))
	if err != nil {
		return nil, err
	}
	var out []Record
	for _, e := range entries {
		id, ok := strings.CutSuffix(e.Name(), ".json")
		if !ok {
			continue
		}
		rec, err := s.readRecord(id)
		if err != nil || rec.Pending {
			continue
		}
		out = append(out, rec)
	}
	slices.SortFunc(out, func(a, b Record) int { return a.CreatedAt.Compare(b.CreatedAt) })
	return out, nil
}

func (s *FileMediaStore) readRecord(id string) (Record, error) {
	if _, err := uuid.Parse(id); err != nil {
		return Record{}, errors.New(errors.ErrCodeNotFound, "media record %s not found", id)
	}
	data, err := os.ReadFile(s.recordPath(id))
	if os.IsNotExist(err) {
		return Record{}, errors.New(errors.ErrCodeNotFound, "media record %s not found", id)
	}
	if err != nil {
		return Record{}, err
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return Record{}, fmt.Errorf("media record %s: %w", id, err)
	}
	return rec, nil
}

func (s *FileMediaStore) writeRecord(rec Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	tmp := s.recordPath(rec.ID) + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, s.recordPath(rec.ID))
}

func (s *FileMediaStore) recordPath(id string) string {
	return filepath.Join(s.root, ".records", id+".json")
}

func (s *FileMediaStore) filePath(rec Record) string {
	return filepath.Join(s.root, filepath.FromSlash(rec.File))
}

func extensionFor(mime string) string {
	switch mime {
	case "image/jpeg":
		return ".jpg"
	case "image/png":
		return ".png"
	}
	return ""
}

var _ MediaStore = (*FileMediaStore)(nil)
