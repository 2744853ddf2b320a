// Package export hands finished collages to the outside world.
//
// Sharing writes a PNG into a private temporary directory and issues an
// unguessable token for it. Saving writes a JPEG into a MediaStore using a
// pending → write → publish sequence and removes the record if anything
// fails. Neither operation modifies the raster it is given.
package export

import (
	"context"
	"image"
	"os"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/youruser/collageapp/internal/errors"
	imagepkg "github.com/youruser/collageapp/internal/image"
	"github.com/youruser/collageapp/internal/util"
)

// ShareMIME is the content type of shared collages.
const ShareMIME = "image/png"

// DefaultShareTTL is how long a share token stays valid.
const DefaultShareTTL = time.Hour

// Share is a capability to read one shared collage.
type Share struct {
	Token     string    `json:"token"`
	Path      string    `json:"-"`
	MIME      string    `json:"mime"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Handoff passes a share to whatever delivers it to the user.
type Handoff interface {
	Handoff(ctx context.Context, s Share) error
}

// HandoffFunc adapts a function to Handoff.
type HandoffFunc func(ctx context.Context, s Share) error

func (f HandoffFunc) Handoff(ctx context.Context, s Share) error { return f(ctx, s) }

// Sharer manages transient shares in a private directory.
type Sharer struct {
	Dir     string
	TTL     time.Duration
	Handoff Handoff
	Logger  *log.Logger

	now    func() time.Time
	mu     sync.Mutex
	shares map[string]Share
}

// NewSharer creates dir with owner-only permissions.
func NewSharer(dir string, ttl time.Duration, logger *log.Logger) (*Sharer, error) {
	if err := util.EnsurePrivateDir(dir); err != nil {
		return nil, errors.Wrap(errors.ErrCodeExport, err, "create share directory")
	}
	if ttl <= 0 {
		ttl = DefaultShareTTL
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Sharer{
		Dir:    dir,
		TTL:    ttl,
		Logger: logger,
		now:    time.Now,
		shares: make(map[string]Share),
	}, nil
}

// Share encodes img as PNG and registers a token for it. When a Handoff is
// configured it receives the share; a handoff failure revokes the share.
func (s *Sharer) Share(ctx context.Context, img image.Image) (Share, error) {
	f, err := os.CreateTemp(s.Dir, "collage-*.png")
	if err != nil {
		return Share{}, errors.Wrap(errors.ErrCodeExport, err, "create share file")
	}
	path := f.Name()
	if err := imagepkg.EncodePNG(f, img); err != nil {
		f.Close()
		os.Remove(path)
		return Share{}, errors.Wrap(errors.ErrCodeExport, err, "encode share")
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return Share{}, errors.Wrap(errors.ErrCodeExport, err, "write share")
	}

	now := s.now()
	sh := Share{
		Token:     uuid.NewString(),
		Path:      path,
		MIME:      ShareMIME,
		CreatedAt: now,
		ExpiresAt: now.Add(s.TTL),
	}
	s.mu.Lock()
	s.shares[sh.Token] = sh
	s.mu.Unlock()

	if s.Handoff != nil {
		if err := s.Handoff.Handoff(ctx, sh); err != nil {
			s.revoke(sh.Token)
			return Share{}, errors.Wrap(errors.ErrCodeExport, err, "hand off share")
		}
	}
	s.Logger.Info("shared collage", "token", sh.Token, "path", path)
	return sh, nil
}

// Open resolves a token. Unknown and expired tokens are NOT_FOUND.
func (s *Sharer) Open(token string) (Share, error) {
	s.mu.Lock()
	sh, ok := s.shares[token]
	s.mu.Unlock()
	if !ok {
		return Share{}, errors.New(errors.ErrCodeNotFound, "share %s not found", token)
	}
	if !s.now().Before(sh.ExpiresAt) {
		s.revoke(token)
		return Share{}, errors.New(errors.ErrCodeNotFound, "share %s expired", token)
	}
	return sh, nil
}

// Prune removes expired shares and their files, returning how many went.
func (s *Sharer) Prune() int {
	now := s.now()
	var expired []string
	s.mu.Lock()
	for token, sh := range s.shares {
		if !now.Before(sh.ExpiresAt) {
			expired = append(expired, token)
		}
	}
	s.mu.Unlock()

	for _, token := range expired {
		s.revoke(token)
	}
	if len(expired) > 0 {
		s.Logger.Debug("pruned shares", "count", len(expired))
	}
	return len(expired)
}

func (s *Sharer) revoke(token string) {
	s.mu.Lock()
	sh, ok := s.shares[token]
	delete(s.shares, token)
	s.mu.Unlock()
	if ok {
		if err := os.Remove(sh.Path); err != nil && !os.IsNotExist(err) {
			s.Logger.Warn("remove share file", "path", sh.Path, "err", err)
		}
	}
}
