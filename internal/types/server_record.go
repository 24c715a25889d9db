package types

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ServerRecord is the authoritative message shape returned by the backend.
type ServerRecord struct {
	ID        string    `json:"id"`
	Kind      Kind      `json:"type"`
	Status    string    `json:"status,omitempty"`
	Content   string    `json:"content,omitempty"`
	FileName  string    `json:"fileName,omitempty"`
	FileType  string    `json:"fileType,omitempty"`
	FilePath  string    `json:"filePath,omitempty"`
	ImageURL  string    `json:"imageUrl,omitempty"`
	FileSize  string    `json:"fileSize,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	Device    Device    `json:"device,omitempty"`
	Error     string    `json:"error,omitempty"`
}

var serverTimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05",
}

// ParseServerTime accepts RFC3339 timestamps and the naive ISO-8601 form the
// backend emits for columns without a zone, which are taken as UTC.
func ParseServerTime(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, nil
	}
	for _, layout := range serverTimeLayouts {
		if ts, err := time.Parse(layout, raw); err == nil {
			return ts.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", raw)
}

func (r *ServerRecord) UnmarshalJSON(data []byte) error {
	type alias ServerRecord
	var raw struct {
		alias
		ID        json.RawMessage `json:"id"`
		FileSize  json.RawMessage `json:"fileSize"`
		CreatedAt string          `json:"created_at"`
		Timestamp string          `json:"timestamp"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*r = ServerRecord(raw.alias)
	r.ID = rawScalar(raw.ID)
	r.FileSize = rawScalar(raw.FileSize)
	if n, err := strconv.ParseInt(r.FileSize, 10, 64); err == nil {
		r.FileSize = DisplaySize(n)
	}
	stamp := raw.CreatedAt
	if stamp == "" {
		stamp = raw.Timestamp
	}
	ts, err := ParseServerTime(stamp)
	if err != nil {
		return err
	}
	r.CreatedAt = ts
	return nil
}

// rawScalar flattens a JSON string or number into its text form.
func rawScalar(raw json.RawMessage) string {
	text := strings.TrimSpace(string(raw))
	if text == "" || text == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return text
}

// DisplayHandle is what an image or file record shows once reconciled.
func (r *ServerRecord) DisplayHandle() string {
	if r == nil {
		return ""
	}
	if r.ImageURL != "" {
		return r.ImageURL
	}
	return r.FilePath
}

// ToRecord converts a fetched server record into a reconciled Record.
func (r *ServerRecord) ToRecord() Record {
	kind := r.Kind
	if !kind.Valid() {
		kind = KindFile
		if r.FileName == "" && r.FilePath == "" {
			kind = KindText
		}
	}
	rec := Record{
		ID:        r.ID,
		Kind:      kind,
		Status:    StatusSuccess,
		CreatedAt: r.CreatedAt,
		Device:    ParseDevice(string(r.Device)),
	}
	if kind == KindText {
		rec.Payload = TextPayload{Content: r.Content}
		return rec
	}
	rec.Progress = 100
	rec.Payload = FilePayload{
		Handle:    r.DisplayHandle(),
		Name:      r.FileName,
		SizeLabel: r.FileSize,
		MIME:      r.FileType,
		Path:      r.FilePath,
	}
	return rec
}
