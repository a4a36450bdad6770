package uploads

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

var (
	ErrTooLarge = errors.New("uploads: file too large")
	ErrEmpty    = errors.New("uploads: empty file")
)

// DefaultMaxBytes matches what the transcription service accepts.
const DefaultMaxBytes = 200 << 20

// LocalStore keeps uploaded audio in a single directory. The reference
// handed to the pipeline is the file name within that directory, which is
// also what the transcription service resolves against its shared mount.
type LocalStore struct {
	dir      string
	maxBytes int64
}

func NewLocalStore(dir string, maxBytes int64) (*LocalStore, error) {
	if dir == "" {
		return nil, errors.New("uploads: directory is required")
	}
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("uploads: create dir: %w", err)
	}
	return &LocalStore{dir: dir, maxBytes: maxBytes}, nil
}

func (s *LocalStore) Dir() string { return s.dir }

// Save writes r under a fresh unique name and returns that name.
func (s *LocalStore) Save(r io.Reader, filename string) (string, error) {
	sample := make([]byte, 512)
	n, err := io.ReadFull(r, sample)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("uploads: read sample: %w", err)
	}
	sample = sample[:n]
	if n == 0 {
		return "", ErrEmpty
	}

	ext := extension(filename, http.DetectContentType(sample))
	name := uuid.NewString() + ext
	path := filepath.Join(s.dir, name)

	if err := s.writeWithLimit(path, sample, r); err != nil {
		return "", err
	}
	return name, nil
}

// Path resolves a reference returned by Save. References that would escape
// the upload directory are rejected.
func (s *LocalStore) Path(ref string) (string, error) {
	if ref == "" || ref != filepath.Base(ref) || strings.HasPrefix(ref, ".") {
		return "", fmt.Errorf("uploads: invalid reference %q", ref)
	}
	return filepath.Join(s.dir, ref), nil
}

func (s *LocalStore) Remove(ref string) error {
	path, err := s.Path(ref)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("uploads: remove: %w", err)
	}
	return nil
}

func (s *LocalStore) writeWithLimit(path string, head []byte, rest io.Reader) (err error) {
	out, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("uploads: create: %w", err)
	}
	defer func() {
		if cerr := out.Close(); err == nil && cerr != nil {
			err = fmt.Errorf("uploads: close: %w", cerr)
		}
		if err != nil {
			_ = os.Remove(path)
		}
	}()

	if _, err := out.Write(head); err != nil {
		return fmt.Errorf("uploads: write: %w", err)
	}
	remaining := s.maxBytes - int64(len(head))
	written, err := io.Copy(out, io.LimitReader(rest, remaining+1))
	if err != nil {
		return fmt.Errorf("uploads: write: %w", err)
	}
	if written > remaining {
		return ErrTooLarge
	}
	return nil
}

var mimeExt = map[string]string{
	"audio/wave":      ".wav",
	"audio/wav":       ".wav",
	"audio/x-wav":     ".wav",
	"audio/mpeg":      ".mp3",
	"audio/ogg":       ".ogg",
	"application/ogg": ".ogg",
	"audio/webm":      ".webm",
	"video/webm":      ".webm",
	"audio/mp4":       ".m4a",
	"video/mp4":       ".mp4",
	"audio/aiff":      ".aiff",
}

func extension(filename, contentType string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	if ext != "" && len(ext) <= 6 && !strings.ContainsAny(ext, `/\`) {
		return ext
	}
	if i := strings.IndexByte(contentType, ';'); i >= 0 {
		contentType = contentType[:i]
	}
	if e, ok := mimeExt[strings.TrimSpace(contentType)]; ok {
		return e
	}
	return ".bin"
}
