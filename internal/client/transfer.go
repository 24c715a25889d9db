package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"

	"sendme/internal/logging"
	"sendme/internal/types"
	"sendme/internal/upload"
)

const uploadFieldName = "file"

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

// UploadFile streams the file as a multipart body. onProgress receives the
// number of file bytes handed to the connection so far; it may be nil.
func (c *Client) UploadFile(ctx context.Context, file upload.File, device types.Device, onProgress func(loaded, total int64)) (*types.ServerRecord, error) {
	if file == nil {
		return nil, errors.New("file is required")
	}
	query := url.Values{}
	query.Set("device", string(device))

	pr, pw := io.Pipe()
	defer pr.Close()
	req, err := c.newRequest(ctx, http.MethodPost, "/upload?"+query.Encode(), pr, true)
	if err != nil {
		return nil, err
	}
	src, err := file.Open()
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", file.Name(), err)
	}

	mw := multipart.NewWriter(pw)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	go func() {
		defer src.Close()
		err := writeFilePart(mw, file, &progressReader{r: src, total: file.Size(), onProgress: onProgress})
		if err == nil {
			err = mw.Close()
		}
		_ = pw.CloseWithError(err)
	}()

	var rec types.ServerRecord
	if err := c.send(c.transfer, req, &rec); err != nil {
		return nil, err
	}
	c.logger.Info("uploaded", logging.F("file", file.Name()), logging.F("bytes", file.Size()), logging.F("id", rec.ID))
	return &rec, nil
}

func writeFilePart(mw *multipart.Writer, file upload.File, body io.Reader) error {
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`, uploadFieldName, quoteEscaper.Replace(file.Name())))
	contentType := file.ContentType()
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	header.Set("Content-Type", contentType)
	part, err := mw.CreatePart(header)
	if err != nil {
		return err
	}
	_, err = io.Copy(part, body)
	return err
}

type progressReader struct {
	r          io.Reader
	loaded     int64
	total      int64
	onProgress func(loaded, total int64)
}

func (p *progressReader) Read(buf []byte) (int, error) {
	n, err := p.r.Read(buf)
	if n > 0 {
		p.loaded += int64(n)
		if p.onProgress != nil {
			p.onProgress(p.loaded, p.total)
		}
	}
	return n, err
}

// Download streams a stored file to w and returns the number of bytes
// written.
func (c *Client) Download(ctx context.Context, filePath string, w io.Writer) (int64, error) {
	filePath = strings.TrimLeft(strings.TrimSpace(filePath), "/")
	if filePath == "" {
		return 0, errors.New("file path is required")
	}
	req, err := c.newRequest(ctx, http.MethodGet, "/download/"+escapePath(filePath), nil, true)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Accept", "*/*")
	resp, err := c.transfer.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return 0, decodeAPIError(resp)
	}
	n, err := io.Copy(w, resp.Body)
	if err != nil {
		return n, fmt.Errorf("download %s: %w", filePath, err)
	}
	return n, nil
}

// DownloadURL is the absolute URL for a stored file.
func (c *Client) DownloadURL(filePath string) string {
	return c.baseURL + "/download/" + escapePath(strings.TrimLeft(filePath, "/"))
}

// ViewURL is the absolute URL the backend serves images from.
func (c *Client) ViewURL(filePath string) string {
	return c.baseURL + "/view/" + escapePath(strings.TrimLeft(filePath, "/"))
}

func escapePath(path string) string {
	parts := strings.Split(path, "/")
	for i, part := range parts {
		parts[i] = url.PathEscape(part)
	}
	return strings.Join(parts, "/")
}
