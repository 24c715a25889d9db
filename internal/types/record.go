package types

import (
	"encoding/json"
	"strings"
	"time"
)

type Kind string

const (
	KindText  Kind = "text"
	KindImage Kind = "image"
	KindFile  Kind = "file"
)

func (k Kind) Valid() bool {
	switch k {
	case KindText, KindImage, KindFile:
		return true
	default:
		return false
	}
}

// KindForMIME classifies an upload by its content type: image/* renders as an
// image record, everything else as a generic file.
func KindForMIME(mime string) Kind {
	if strings.HasPrefix(strings.ToLower(strings.TrimSpace(mime)), "image/") {
		return KindImage
	}
	return KindFile
}

type Status string

const (
	StatusPending Status = "pending"
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

func (s Status) Terminal() bool {
	return s == StatusSuccess || s == StatusError
}

type Device string

const (
	DeviceDesktop Device = "desktop"
	DevicePhone   Device = "phone"
)

func ParseDevice(raw string) Device {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case string(DevicePhone), "mobile":
		return DevicePhone
	default:
		return DeviceDesktop
	}
}

// Payload is implemented only by TextPayload and FilePayload.
type Payload interface {
	payloadKind() Kind
}

type TextPayload struct {
	Content string `json:"content"`
}

func (TextPayload) payloadKind() Kind { return KindText }

// FilePayload backs both image and file records. Handle is a transient
// blob: reference while the upload is local and a server URL or path once
// reconciled.
type FilePayload struct {
	Handle    string `json:"handle,omitempty"`
	Name      string `json:"name"`
	Size      int64  `json:"size,omitempty"`
	SizeLabel string `json:"size_label,omitempty"`
	MIME      string `json:"mime,omitempty"`
	Path      string `json:"path,omitempty"`
	Width     int    `json:"width,omitempty"`
	Height    int    `json:"height,omitempty"`
}

func (FilePayload) payloadKind() Kind { return KindFile }

// Record is one unit of conversation history. Ref stays fixed for the whole
// session; ID moves from a temporary id to the server id on success.
type Record struct {
	Ref         uint64    `json:"ref"`
	ID          string    `json:"id"`
	Kind        Kind      `json:"kind"`
	Status      Status    `json:"status"`
	Payload     Payload   `json:"-"`
	Progress    int       `json:"progress"`
	ErrorDetail string    `json:"error,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	Device      Device    `json:"device"`
	Copied      bool      `json:"copied"`
}

func (r Record) Text() (TextPayload, bool) {
	p, ok := r.Payload.(TextPayload)
	return p, ok
}

func (r Record) File() (FilePayload, bool) {
	p, ok := r.Payload.(FilePayload)
	return p, ok
}

func (r Record) Pending() bool {
	return r.Status == StatusPending
}

// Copyable reports whether the clipboard action applies to the record.
func (r Record) Copyable() bool {
	return r.Kind == KindText && r.Status == StatusSuccess
}

// CopyTextContent returns what a copy action places on the clipboard.
func CopyTextContent(r Record) string {
	switch r.Kind {
	case KindText:
		if p, ok := r.Text(); ok {
			return p.Content
		}
	case KindImage:
		if p, ok := r.File(); ok {
			return p.Handle
		}
	case KindFile:
		if p, ok := r.File(); ok {
			return p.Name
		}
	}
	return ""
}

// Summary is a single-line description used by list views and logs.
func (r Record) Summary() string {
	switch p := r.Payload.(type) {
	case TextPayload:
		return strings.Join(strings.Fields(p.Content), " ")
	case FilePayload:
		if p.SizeLabel != "" {
			return p.Name + " (" + p.SizeLabel + ")"
		}
		return p.Name
	default:
		return ""
	}
}

func (r Record) MarshalJSON() ([]byte, error) {
	type alias Record
	return json.Marshal(struct {
		alias
		Payload Payload `json:"payload,omitempty"`
	}{alias: alias(r), Payload: r.Payload})
}
