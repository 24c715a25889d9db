// Package blob keeps transient, memory-backed preview handles for uploads
// that the backend has not confirmed yet. Every handle must be revoked
// exactly once.
package blob

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/disintegration/imaging"
	"github.com/lithammer/shortuuid/v4"
)

const (
	Scheme              = "blob:"
	DefaultThumbnailMax = 320
)

var ErrEmptyPreview = errors.New("preview source is empty")

type Handle struct {
	URL    string
	Width  int
	Height int
}

func (h Handle) Empty() bool {
	return h.URL == ""
}

type Registry struct {
	mu       sync.Mutex
	live     map[string][]byte
	thumbMax int
	created  int
	revoked  int
}

func NewRegistry(thumbMax int) *Registry {
	if thumbMax <= 0 {
		thumbMax = DefaultThumbnailMax
	}
	return &Registry{
		live:     map[string][]byte{},
		thumbMax: thumbMax,
	}
}

// CreatePreview decodes an image and registers a PNG thumbnail of it. Width
// and Height on the handle are the source image's dimensions.
func (r *Registry) CreatePreview(src io.Reader) (Handle, error) {
	if src == nil {
		return Handle{}, ErrEmptyPreview
	}
	img, err := imaging.Decode(src, imaging.AutoOrientation(true))
	if err != nil {
		return Handle{}, fmt.Errorf("decode preview: %w", err)
	}
	bounds := img.Bounds()
	thumb := imaging.Fit(img, r.thumbMax, r.thumbMax, imaging.Lanczos)
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, thumb, imaging.PNG); err != nil {
		return Handle{}, fmt.Errorf("encode preview: %w", err)
	}
	handle := r.Create(buf.Bytes())
	handle.Width = bounds.Dx()
	handle.Height = bounds.Dy()
	return handle, nil
}

func (r *Registry) Create(data []byte) Handle {
	url := Scheme + shortuuid.New()
	r.mu.Lock()
	defer r.mu.Unlock()
	r.live[url] = append([]byte(nil), data...)
	r.created++
	return Handle{URL: url}
}

func (r *Registry) Open(url string) ([]byte, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	data, ok := r.live[url]
	if !ok {
		return nil, false
	}
	return append([]byte(nil), data...), true
}

// Revoke releases a handle. It reports false when the handle is unknown or
// was already revoked.
func (r *Registry) Revoke(url string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.live[url]; !ok {
		return false
	}
	delete(r.live, url)
	r.revoked++
	return true
}

func (r *Registry) Live() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.live)
}

func (r *Registry) Stats() (created, revoked int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.created, r.revoked
}

func IsBlob(url string) bool {
	return strings.HasPrefix(url, Scheme)
}
