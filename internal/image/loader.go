package imagepkg

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"io"
	"math"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/disintegration/imaging"
	"github.com/vincent-petithory/dataurl"
	_ "golang.org/x/image/webp"

	"github.com/youruser/collageapp/internal/errors"
	"github.com/youruser/collageapp/internal/util"
)

// DefaultMaxBytes caps the encoded size of one source image.
const DefaultMaxBytes = 64 << 20

// Loader resolves a locator to a decoded image. width and height describe
// the slot the image is headed for; implementations may use them to decode
// a smaller image but must still cover that size.
type Loader interface {
	Load(ctx context.Context, locator string, width, height int) (image.Image, error)
}

// LoaderFunc adapts a function to Loader.
type LoaderFunc func(ctx context.Context, locator string, width, height int) (image.Image, error)

func (f LoaderFunc) Load(ctx context.Context, locator string, width, height int) (image.Image, error) {
	return f(ctx, locator, width, height)
}

// Validator is implemented by loaders that can reject a locator without
// reading it.
type Validator interface {
	Validate(locator string) error
}

// SourceLoader reads local paths, file:// and data: URIs and http(s) URLs.
type SourceLoader struct {
	FetchTimeout time.Duration
	// FetchAttempts bounds tries per remote source; transient failures
	// (timeouts, 429, 5xx) are retried with doubling delay.
	FetchAttempts int
	RetryDelay    time.Duration
	// MaxBytes caps the encoded size of a single source; zero is unlimited.
	MaxBytes int64
	// Downsample shrinks sources larger than needed to cover their slot.
	Downsample bool
	// NoLocal rejects plain paths and file:// locators.
	NoLocal bool
	// LocalRoot, when set, confines plain paths and file:// locators to this
	// directory. Relative paths are taken from it.
	LocalRoot string
	// Fetch overrides remote retrieval, mainly for tests.
	Fetch func(ctx context.Context, url string) ([]byte, error)
}

// NewSourceLoader returns a loader with downsampling and fetch retries
// enabled and unrestricted local access.
func NewSourceLoader() *SourceLoader {
	return &SourceLoader{
		FetchTimeout:  util.DefaultFetchTimeout,
		FetchAttempts: util.DefaultFetchAttempts,
		RetryDelay:    util.DefaultRetryDelay,
		MaxBytes:      DefaultMaxBytes,
		Downsample:    true,
	}
}

// Load reads and decodes locator, applying EXIF orientation.
func (l *SourceLoader) Load(ctx context.Context, locator string, width, height int) (image.Image, error) {
	data, err := l.read(ctx, locator)
	if err != nil {
		return nil, err
	}
	img, err := Decode(data)
	if err != nil {
		return nil, err
	}
	if l.Downsample {
		img = DownsampleToCover(img, width, height)
	}
	return img, nil
}

type sourceKind int

const (
	localSource sourceKind = iota
	remoteSource
	dataSource
)

// resolve classifies locator and, for local sources, returns the path to
// open after applying NoLocal and LocalRoot. It never touches the disk.
func (l *SourceLoader) resolve(locator string) (sourceKind, string, error) {
	locator = strings.TrimSpace(locator)
	if locator == "" {
		return 0, "", errors.New(errors.ErrCodeInvalidInput, "empty locator")
	}

	u, err := url.Parse(locator)
	if err != nil || len(u.Scheme) <= 1 {
		// Plain path, including Windows drive letters such as C:\.
		path, err := l.localPath(locator)
		return localSource, path, err
	}

	switch strings.ToLower(u.Scheme) {
	case "file":
		p := u.Path
		if p == "" {
			p = u.Opaque
		}
		path, err := l.localPath(p)
		return localSource, path, err
	case "http", "https":
		return remoteSource, locator, nil
	case "data":
		return dataSource, locator, nil
	}
	return 0, "", errors.New(errors.ErrCodeInvalidInput, "unsupported locator scheme %q", u.Scheme)
}

func (l *SourceLoader) localPath(p string) (string, error) {
	if l.NoLocal {
		return "", errors.New(errors.ErrCodeInvalidInput, "local file locators are not allowed")
	}
	if l.LocalRoot == "" {
		return p, nil
	}
	root := filepath.Clean(l.LocalRoot)
	if !filepath.IsAbs(p) {
		p = filepath.Join(root, p)
	}
	p = filepath.Clean(p)
	if !within(root, p) {
		return "", errors.New(errors.ErrCodeInvalidInput, "local locator outside the allowed directory")
	}
	return p, nil
}

// within reports whether path is root or below it. Both must be clean.
func within(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	return err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// Validate checks locator against the loader's scheme and local-access
// rules without reading anything.
func (l *SourceLoader) Validate(locator string) error {
	_, _, err := l.resolve(locator)
	return err
}

func (l *SourceLoader) read(ctx context.Context, locator string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	kind, target, err := l.resolve(locator)
	if err != nil {
		return nil, err
	}

	switch kind {
	case remoteSource:
		return l.fetch(ctx, target)
	case dataSource:
		return decodeDataURI(target)
	}
	return l.readFile(target)
}

func (l *SourceLoader) fetch(ctx context.Context, rawURL string) ([]byte, error) {
	if l.Fetch != nil {
		return l.Fetch(ctx, rawURL)
	}
	var data []byte
	err := util.Retry(ctx, l.FetchAttempts, l.RetryDelay, func() error {
		var err error
		data, err = util.GetBytes(ctx, rawURL, l.FetchTimeout, l.MaxBytes)
		return err
	})
	return data, err
}

func (l *SourceLoader) readFile(path string) ([]byte, error) {
	if l.LocalRoot != "" {
		// symlinks must not lead out of the root either
		root, err := filepath.EvalSymlinks(filepath.Clean(l.LocalRoot))
		if err != nil {
			return nil, err
		}
		resolved, err := filepath.EvalSymlinks(path)
		if err != nil {
			return nil, err
		}
		if !within(root, resolved) {
			return nil, errors.New(errors.ErrCodeInvalidInput, "local locator outside the allowed directory")
		}
		path = resolved
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var r io.Reader = f
	if l.MaxBytes > 0 {
		r = io.LimitReader(f, l.MaxBytes+1)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	if l.MaxBytes > 0 && int64(len(data)) > l.MaxBytes {
		return nil, fmt.Errorf("%s exceeds %d bytes", path, l.MaxBytes)
	}
	return data, nil
}

// decodeDataURI handles data:[<mediatype>][;base64],<payload>.
func decodeDataURI(uri string) ([]byte, error) {
	du, err := dataurl.DecodeString(uri)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidInput, err, "malformed data URI")
	}
	return du.Data, nil
}

// Decode decodes any registered format, honouring EXIF orientation.
func Decode(data []byte) (image.Image, error) {
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	return img, nil
}

// DownsampleToCover shrinks img to the smallest size that still covers a
// width x height slot. Images that are already small enough are returned
// unchanged; images are never enlarged here.
func DownsampleToCover(img image.Image, width, height int) image.Image {
	if width <= 0 || height <= 0 {
		return img
	}
	b := img.Bounds()
	srcW, srcH := float64(b.Dx()), float64(b.Dy())
	scale, _, _ := CoverFit(srcW, srcH, float64(width), float64(height))
	if scale >= 1 {
		return img
	}
	w := max(int(math.Ceil(srcW*scale)), 1)
	h := max(int(math.Ceil(srcH*scale)), 1)
	return imaging.Resize(img, w, h, imaging.Lanczos)
}
