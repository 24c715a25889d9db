package blob

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"strings"
	"testing"
)

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		img.Set(x, 0, color.RGBA{R: 200, A: 255})
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode: %v", err)
	}
	return buf.Bytes()
}

func TestCreatePreviewScalesAndRecordsDimensions(t *testing.T) {
	reg := NewRegistry(64)
	handle, err := reg.CreatePreview(bytes.NewReader(pngBytes(t, 640, 320)))
	if err != nil {
		t.Fatalf("CreatePreview: %v", err)
	}
	if !IsBlob(handle.URL) {
		t.Fatalf("expected blob url, got %q", handle.URL)
	}
	if handle.Width != 640 || handle.Height != 320 {
		t.Fatalf("unexpected dimensions: %dx%d", handle.Width, handle.Height)
	}
	data, ok := reg.Open(handle.URL)
	if !ok {
		t.Fatalf("expected preview data")
	}
	thumb, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("decode thumb: %v", err)
	}
	if b := thumb.Bounds(); b.Dx() != 64 || b.Dy() != 32 {
		t.Fatalf("unexpected thumbnail size: %v", b)
	}
}

func TestCreatePreviewRejectsNonImage(t *testing.T) {
	reg := NewRegistry(0)
	if _, err := reg.CreatePreview(strings.NewReader("not an image")); err == nil {
		t.Fatalf("expected decode error")
	}
	if reg.Live() != 0 {
		t.Fatalf("failed preview must not register a handle")
	}
}

func TestRevokeIsExactlyOnce(t *testing.T) {
	reg := NewRegistry(0)
	h := reg.Create([]byte("x"))
	if reg.Live() != 1 {
		t.Fatalf("expected one live handle")
	}
	if !reg.Revoke(h.URL) {
		t.Fatalf("first revoke should succeed")
	}
	if reg.Revoke(h.URL) {
		t.Fatalf("second revoke must be a no-op")
	}
	created, revoked := reg.Stats()
	if created != 1 || revoked != 1 || reg.Live() != 0 {
		t.Fatalf("unexpected stats created=%d revoked=%d live=%d", created, revoked, reg.Live())
	}
}
