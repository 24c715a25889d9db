package upload

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"
)

// File is the binary payload of an upload. Open may be called more than once
// (preview generation and the transfer each read the content).
type File interface {
	Name() string
	Size() int64
	ContentType() string
	Open() (io.ReadCloser, error)
}

type LocalFile struct {
	path        string
	name        string
	size        int64
	contentType string
}

func OpenLocal(path string) (*LocalFile, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("file path is required")
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%s is a directory", path)
	}
	contentType, err := detectContentType(path)
	if err != nil {
		return nil, err
	}
	return &LocalFile{
		path:        path,
		name:        filepath.Base(path),
		size:        info.Size(),
		contentType: contentType,
	}, nil
}

func (f *LocalFile) Name() string        { return f.name }
func (f *LocalFile) Size() int64         { return f.size }
func (f *LocalFile) ContentType() string { return f.contentType }
func (f *LocalFile) Path() string        { return f.path }

func (f *LocalFile) Open() (io.ReadCloser, error) {
	return os.Open(f.path)
}

func detectContentType(path string) (string, error) {
	if byExt := mime.TypeByExtension(strings.ToLower(filepath.Ext(path))); byExt != "" {
		return byExt, nil
	}
	file, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer file.Close()
	head := make([]byte, 512)
	n, err := io.ReadFull(file, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return "", err
	}
	return http.DetectContentType(head[:n]), nil
}

// MemoryFile is an upload held entirely in memory, e.g. a pasted image.
type MemoryFile struct {
	name        string
	contentType string
	data        []byte
}

func NewMemoryFile(name, contentType string, data []byte) *MemoryFile {
	if strings.TrimSpace(contentType) == "" {
		contentType = http.DetectContentType(data)
	}
	if strings.TrimSpace(name) == "" {
		name = "pasted-file"
		if strings.HasPrefix(contentType, "image/") {
			name = "pasted-image.png"
		}
	}
	return &MemoryFile{name: name, contentType: contentType, data: data}
}

func (f *MemoryFile) Name() string        { return f.name }
func (f *MemoryFile) Size() int64         { return int64(len(f.data)) }
func (f *MemoryFile) ContentType() string { return f.contentType }

func (f *MemoryFile) Open() (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(f.data)), nil
}
