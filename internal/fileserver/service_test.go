package fileserver

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/chatdesk/internal/model"
)

func newService(t *testing.T) *Service {
	t.Helper()
	s, err := New(t.TempDir(), 1024)
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestStoreWritesUnderChatDir(t *testing.T) {
	s := newService(t)

	stored, err := s.ValidateAndStore("chat1", "photo.PNG", "image/png", 5, bytes.NewReader([]byte("hello")))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(stored.URL, "chats/chat1/") {
		t.Errorf("url %q not namespaced by chat", stored.URL)
	}
	if !strings.HasSuffix(stored.URL, ".png") {
		t.Errorf("extension not preserved (lowercased): %q", stored.URL)
	}
	if stored.Type != model.AttachmentImage {
		t.Errorf("type = %q, want image", stored.Type)
	}
	if stored.Name != "photo.PNG" {
		t.Errorf("display name = %q", stored.Name)
	}

	f, err := s.Open(stored.URL)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	data, _ := io.ReadAll(f)
	if string(data) != "hello" {
		t.Errorf("content round trip: %q", data)
	}
}

func TestDeclaredSizeRejectedBeforeWrite(t *testing.T) {
	dir := t.TempDir()
	s, err := New(dir, 1024)
	if err != nil {
		t.Fatal(err)
	}

	_, err = s.ValidateAndStore("chat1", "big.png", "image/png", 2048, bytes.NewReader(nil))
	if !errors.Is(err, ErrFileTooLarge) {
		t.Fatalf("got %v, want ErrFileTooLarge", err)
	}
	entries, _ := os.ReadDir(filepath.Join(dir, "chats"))
	if len(entries) != 0 {
		t.Error("oversized upload reached disk")
	}
}

func TestActualSizeEnforcedDespiteLyingClient(t *testing.T) {
	s := newService(t)

	// Declared small, actually over the cap.
	payload := bytes.Repeat([]byte("x"), 2048)
	_, err := s.ValidateAndStore("chat1", "big.png", "image/png", 10, bytes.NewReader(payload))
	if !errors.Is(err, ErrFileTooLarge) {
		t.Fatalf("got %v, want ErrFileTooLarge", err)
	}
}

func TestUnsupportedTypeRejected(t *testing.T) {
	s := newService(t)

	_, err := s.ValidateAndStore("chat1", "setup.exe", "application/x-msdownload", 5, bytes.NewReader([]byte("MZ")))
	if !errors.Is(err, ErrUnsupportedType) {
		t.Fatalf("got %v, want ErrUnsupportedType", err)
	}
}

func TestCategorize(t *testing.T) {
	cases := []struct {
		mime string
		want model.AttachmentType
	}{
		{"image/webp", model.AttachmentImage},
		{"video/webm", model.AttachmentVideo},
		{"application/pdf", model.AttachmentDocument},
		{"application/vnd.openxmlformats-officedocument.wordprocessingml.document", model.AttachmentDocument},
		{"audio/wav", model.AttachmentAudio},
	}
	for _, tc := range cases {
		got, err := Categorize(tc.mime)
		if err != nil {
			t.Errorf("%s: %v", tc.mime, err)
			continue
		}
		if got != tc.want {
			t.Errorf("%s -> %q, want %q", tc.mime, got, tc.want)
		}
	}
	if _, err := Categorize("text/html"); !errors.Is(err, ErrUnsupportedType) {
		t.Errorf("text/html accepted")
	}
}

func TestOpenRejectsTraversal(t *testing.T) {
	s := newService(t)

	if _, err := s.Open("../secrets.txt"); err == nil {
		t.Fatal("path traversal allowed")
	}
}
