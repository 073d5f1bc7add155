// Package fileserver stores and serves chat attachments on local disk.
// Uploads are size-capped and restricted to a MIME allowlist.
package fileserver

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/chatdesk/internal/logger"
	"github.com/chatdesk/internal/model"
)

var (
	ErrFileTooLarge    = errors.New("file exceeds the upload size limit")
	ErrUnsupportedType = errors.New("unsupported file type")
)

// allowedTypes maps accepted MIME types to their attachment category.
var allowedTypes = map[string]model.AttachmentType{
	"image/jpeg": model.AttachmentImage,
	"image/png":  model.AttachmentImage,
	"image/gif":  model.AttachmentImage,
	"image/webp": model.AttachmentImage,

	"video/mp4":  model.AttachmentVideo,
	"video/webm": model.AttachmentVideo,
	"video/ogg":  model.AttachmentVideo,

	"application/pdf":    model.AttachmentDocument,
	"application/msword": model.AttachmentDocument,
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": model.AttachmentDocument,

	"audio/mpeg": model.AttachmentAudio,
	"audio/wav":  model.AttachmentAudio,
	"audio/ogg":  model.AttachmentAudio,
}

// Stored describes a successfully saved attachment.
type Stored struct {
	URL      string // path under the files route, e.g. chats/<chatID>/<id>.png
	Type     model.AttachmentType
	Name     string // original file name, for display
	SizeByte int64
}

type Service struct {
	baseDir string
	maxSize int64
}

func New(baseDir string, maxSize int64) (*Service, error) {
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("fileserver: create base dir: %w", err)
	}
	return &Service{baseDir: baseDir, maxSize: maxSize}, nil
}

// MaxSize returns the upload cap in bytes.
func (s *Service) MaxSize() int64 { return s.maxSize }

// Categorize returns the attachment category for a MIME type, or an error
// when the type is not allowed.
func Categorize(mimeType string) (model.AttachmentType, error) {
	t, ok := allowedTypes[mimeType]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnsupportedType, mimeType)
	}
	return t, nil
}

// ValidateAndStore checks size and MIME type, then writes the file under
// chats/<chatID>/ with a generated name. declaredSize, when positive, is
// rejected before any bytes are read; the copy is capped regardless, so a
// lying client cannot sneak past the limit.
func (s *Service) ValidateAndStore(chatID, fileName, mimeType string, declaredSize int64, r io.Reader) (*Stored, error) {
	defer logger.DeferLogDuration("fileserver.ValidateAndStore", time.Now())()

	if declaredSize > s.maxSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrFileTooLarge, declaredSize)
	}
	attType, err := Categorize(mimeType)
	if err != nil {
		return nil, err
	}

	ext := strings.ToLower(filepath.Ext(fileName))
	generated := uuid.NewString() + ext
	rel := filepath.Join("chats", chatID, generated)

	dir := filepath.Join(s.baseDir, "chats", chatID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("fileserver: create chat dir: %w", err)
	}
	dst := filepath.Join(dir, generated)

	f, err := os.Create(dst)
	if err != nil {
		return nil, fmt.Errorf("fileserver: create file: %w", err)
	}
	n, err := io.Copy(f, io.LimitReader(r, s.maxSize+1))
	closeErr := f.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(dst)
		return nil, fmt.Errorf("fileserver: write file: %w", err)
	}
	if n > s.maxSize {
		os.Remove(dst)
		return nil, fmt.Errorf("%w: %d bytes", ErrFileTooLarge, n)
	}

	return &Stored{
		URL:      filepath.ToSlash(rel),
		Type:     attType,
		Name:     filepath.Base(fileName),
		SizeByte: n,
	}, nil
}

// Open resolves a stored attachment path for serving. Path traversal outside
// the base dir is rejected.
func (s *Service) Open(rel string) (*os.File, error) {
	clean := filepath.Clean("/" + rel)
	full := filepath.Join(s.baseDir, clean)
	if !strings.HasPrefix(full, filepath.Clean(s.baseDir)+string(os.PathSeparator)) {
		return nil, fmt.Errorf("fileserver: invalid path %q", rel)
	}
	f, err := os.Open(full)
	if err != nil {
		return nil, fmt.Errorf("fileserver: open %s: %w", rel, err)
	}
	return f, nil
}
