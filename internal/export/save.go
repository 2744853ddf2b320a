package export

import (
	"context"
	"image"
	"path"
	"time"

	"github.com/charmbracelet/log"

	"github.com/youruser/collageapp/internal/errors"
	imagepkg "github.com/youruser/collageapp/internal/image"
)

const (
	// SaveMIME is the content type of saved collages.
	SaveMIME = "image/jpeg"
	// DefaultAlbum is the album saved collages land in.
	DefaultAlbum = "CollageApp"

	displayNameLayout = "20060102_150405"
)

// DisplayName is the media-store name for a collage saved at t.
func DisplayName(t time.Time) string {
	return "COLLAGE_" + t.Format(displayNameLayout) + "_"
}

// Saver writes collages into a MediaStore.
type Saver struct {
	Store   MediaStore
	Album   string
	Quality int
	Logger  *log.Logger

	now func() time.Time
}

// NewSaver returns a saver into Pictures/<album> at the default quality.
func NewSaver(store MediaStore, album string, quality int, logger *log.Logger) *Saver {
	if album == "" {
		album = DefaultAlbum
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Saver{Store: store, Album: album, Quality: quality, Logger: logger, now: time.Now}
}

// Save inserts one JPEG record for img. On stores with pending support the
// record stays hidden until its bytes are written. Any failure after the
// insert deletes the record again.
func (s *Saver) Save(ctx context.Context, img image.Image) (rec Record, err error) {
	pending := s.Store.SupportsPending()
	rec, err = s.Store.Insert(ctx, Record{
		DisplayName:  DisplayName(s.now()),
		RelativePath: path.Join("Pictures", s.Album),
		MIME:         SaveMIME,
		Pending:      pending,
	})
	if err != nil {
		return Record{}, errors.Wrap(errors.ErrCodeExport, err, "insert media record")
	}

	defer func() {
		if err == nil {
			return
		}
		if derr := s.Store.Delete(context.WithoutCancel(ctx), rec.ID); derr != nil {
			s.Logger.Error("remove partial media record", "id", rec.ID, "err", derr)
		}
		rec = Record{}
	}()

	w, err := s.Store.OpenWriter(ctx, rec.ID)
	if err != nil {
		return rec, errors.Wrap(errors.ErrCodeExport, err, "open media record")
	}
	if err := imagepkg.EncodeJPEG(w, img, s.Quality); err != nil {
		w.Close()
		return rec, errors.Wrap(errors.ErrCodeExport, err, "encode collage")
	}
	if err := w.Close(); err != nil {
		return rec, errors.Wrap(errors.ErrCodeExport, err, "write collage")
	}

	if pending {
		if err := s.Store.SetPending(ctx, rec.ID, false); err != nil {
			return rec, errors.Wrap(errors.ErrCodeExport, err, "publish media record")
		}
		rec.Pending = false
	}

	s.Logger.Info("saved collage", "id", rec.ID, "name", rec.DisplayName, "file", rec.File)
	return rec, nil
}
