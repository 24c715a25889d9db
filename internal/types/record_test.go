package types

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestCopyTextContentByKind(t *testing.T) {
	text := Record{Kind: KindText, Status: StatusSuccess, Payload: TextPayload{Content: "hello"}}
	image := Record{Kind: KindImage, Status: StatusSuccess, Payload: FilePayload{Handle: "http://x/view/a.png", Name: "a.png"}}
	file := Record{Kind: KindFile, Status: StatusSuccess, Payload: FilePayload{Handle: "uploads/b.pdf", Name: "b.pdf"}}

	if got := CopyTextContent(text); got != "hello" {
		t.Fatalf("text copy: %q", got)
	}
	if got := CopyTextContent(image); got != "http://x/view/a.png" {
		t.Fatalf("image copy: %q", got)
	}
	if got := CopyTextContent(file); got != "b.pdf" {
		t.Fatalf("file copy: %q", got)
	}
	if CopyTextContent(Record{Kind: KindText}) != "" {
		t.Fatalf("expected empty copy for missing payload")
	}
}

func TestCopyableOnlyForSuccessfulText(t *testing.T) {
	if !(Record{Kind: KindText, Status: StatusSuccess}).Copyable() {
		t.Fatalf("expected successful text to be copyable")
	}
	if (Record{Kind: KindText, Status: StatusPending}).Copyable() {
		t.Fatalf("pending text should not be copyable")
	}
	if (Record{Kind: KindImage, Status: StatusSuccess}).Copyable() {
		t.Fatalf("images should not be copyable")
	}
}

func TestKindForMIME(t *testing.T) {
	if KindForMIME("image/png") != KindImage || KindForMIME(" IMAGE/JPEG") != KindImage {
		t.Fatalf("expected image kind")
	}
	if KindForMIME("application/pdf") != KindFile || KindForMIME("") != KindFile {
		t.Fatalf("expected file kind")
	}
}

func TestRecordMarshalIncludesPayload(t *testing.T) {
	rec := Record{ID: "text_1", Kind: KindText, Status: StatusPending, Payload: TextPayload{Content: "hi"}}
	data, err := json.Marshal(rec)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !strings.Contains(string(data), `"payload":{"content":"hi"}`) {
		t.Fatalf("payload missing from %s", data)
	}
}
