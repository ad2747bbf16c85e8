// Package load turns files, URLs, and uploads into normalized documents.
package load

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"github.com/ppiankov/clausewise/internal/model"
)

// Source is raw document content awaiting format-specific extraction
type Source struct {
	Name   string       // File path, URL, or upload name
	Format model.Format // Declared format; empty means detect
	Reader io.Reader
	Size   int64 // Byte length when known, -1 otherwise

	// MaxBytes bounds the text a loader may extract; 0 means no limit.
	// Formats that decompress their content must enforce it while reading.
	MaxBytes int64
}

// Loader extracts plain text from one family of formats
type Loader interface {
	Name() string
	Formats() []string
	Load(ctx context.Context, src Source) (*model.Document, error)
}

// formatAliases maps user-facing format names and file extensions to formats
var formatAliases = map[string]model.Format{
	"txt":      model.FormatText,
	"text":     model.FormatText,
	"md":       model.FormatText,
	"markdown": model.FormatText,
	"pdf":      model.FormatPDF,
	"docx":     model.FormatDOCX,
	"html":     model.FormatHTML,
	"htm":      model.FormatHTML,
	"xhtml":    model.FormatHTML,
}

// ParseFormat resolves a format name or extension ("md", ".htm", "PDF")
func ParseFormat(name string) (model.Format, bool) {
	f, ok := formatAliases[strings.ToLower(strings.TrimPrefix(name, "."))]
	return f, ok
}

// Registry selects a loader per document and enforces the size limit
type Registry struct {
	loaders  map[model.Format]Loader
	maxBytes int64
	fetcher  *Fetcher
	logger   *zap.Logger
	now      func() time.Time
}

// NewRegistry creates a registry with the built-in text, PDF, DOCX, and HTML loaders
func NewRegistry(cfg model.LoadConfig, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}

	r := &Registry{
		loaders:  make(map[model.Format]Loader),
		maxBytes: cfg.MaxBytes,
		fetcher:  NewFetcherFromConfig(cfg),
		logger:   logger,
		now:      time.Now,
	}

	r.Register(&TextLoader{})
	r.Register(&PDFLoader{})
	r.Register(&DOCXLoader{})
	r.Register(&HTMLLoader{})

	return r
}

// Register adds a loader for every format it declares, replacing earlier ones
func (r *Registry) Register(l Loader) {
	for _, name := range l.Formats() {
		if f, ok := ParseFormat(name); ok {
			r.loaders[f] = l
		}
	}
}

// Formats lists the accepted format names
func (r *Registry) Formats() []string {
	var names []string
	for name, f := range formatAliases {
		if _, ok := r.loaders[f]; ok {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// Load reads the source, picks a loader, and returns the normalized document
func (r *Registry) Load(ctx context.Context, src Source) (*model.Document, error) {
	if src.Size > 0 && r.maxBytes > 0 && src.Size > r.maxBytes {
		return nil, tooLarge(src, r.maxBytes)
	}

	data, err := readLimited(src.Reader, r.maxBytes)
	if err != nil {
		if errors.Is(err, ErrTooLarge) {
			return nil, tooLarge(src, r.maxBytes)
		}
		return nil, &model.LoadError{Source: src.Name, Format: src.Format, Kind: model.LoadUnreadable, Err: err}
	}

	format := src.Format
	if format == "" {
		format = DetectFormat(src.Name, data)
	}
	if format == "" {
		return nil, &model.LoadError{Source: src.Name, Kind: model.LoadUnsupported, Err: errors.New("cannot determine document format")}
	}

	loader, ok := r.loaders[format]
	if !ok {
		return nil, &model.LoadError{Source: src.Name, Format: format, Kind: model.LoadUnsupported, Err: fmt.Errorf("no loader for format %q", format)}
	}

	doc, err := loader.Load(ctx, Source{
		Name:   src.Name,
		Format: format,
		Reader:   bytes.NewReader(data),
		Size:     int64(len(data)),
		MaxBytes: r.maxBytes,
	})
	if err != nil {
		return nil, err
	}
	if r.maxBytes > 0 && int64(len(doc.Text)) > r.maxBytes {
		return nil, tooLarge(Source{Name: src.Name, Format: format}, r.maxBytes)
	}

	doc.ID = ulid.Make().String()
	doc.Source = src.Name
	doc.Format = format
	doc.Text = Normalize(doc.Text)
	doc.LoadedAt = r.now().UTC()

	r.logger.Debug("document loaded",
		zap.String("id", doc.ID),
		zap.String("source", doc.Source),
		zap.String("format", string(doc.Format)),
		zap.String("loader", loader.Name()),
		zap.Int("bytes", len(data)),
		zap.Int("text_len", len(doc.Text)),
	)

	return doc, nil
}

// LoadFile loads a document from disk. format may be empty to detect it.
func (r *Registry) LoadFile(ctx context.Context, path string, format string) (*model.Document, error) {
	declared, err := declaredFormat(path, format)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, &model.LoadError{Source: path, Format: declared, Kind: model.LoadUnreadable, Err: err}
	}
	defer func() { _ = f.Close() }()

	size := int64(-1)
	if info, err := f.Stat(); err == nil {
		if info.IsDir() {
			return nil, &model.LoadError{Source: path, Format: declared, Kind: model.LoadUnreadable, Err: errors.New("is a directory")}
		}
		size = info.Size()
	}

	return r.Load(ctx, Source{Name: path, Format: declared, Reader: f, Size: size})
}

// LoadURL fetches and loads a document over HTTP(S). format may be empty to
// infer it from the Content-Type header or the content itself.
func (r *Registry) LoadURL(ctx context.Context, rawURL string, format string) (*model.Document, error) {
	declared, err := declaredFormat(rawURL, format)
	if err != nil {
		return nil, err
	}

	res, err := r.fetcher.FetchWithRetry(ctx, rawURL)
	if err != nil {
		if errors.Is(err, ErrTooLarge) {
			return nil, tooLarge(Source{Name: rawURL, Format: declared}, r.maxBytes)
		}
		return nil, &model.LoadError{Source: rawURL, Format: declared, Kind: model.LoadUnreadable, Err: err}
	}

	if declared == "" {
		declared = formatFromContentType(res.ContentType)
	}

	return r.Load(ctx, Source{
		Name:   res.FinalURL,
		Format: declared,
		Reader: bytes.NewReader(res.Body),
		Size:   int64(len(res.Body)),
	})
}

// IsURL reports whether the argument should be fetched rather than opened
func IsURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

func declaredFormat(name, format string) (model.Format, error) {
	if format == "" {
		return "", nil
	}
	f, ok := ParseFormat(format)
	if !ok {
		return "", &model.LoadError{Source: name, Kind: model.LoadUnsupported, Err: fmt.Errorf("unknown format %q", format)}
	}
	return f, nil
}

// DetectFormat infers a format from the file extension, then from the leading bytes
func DetectFormat(name string, data []byte) model.Format {
	if ext := filepath.Ext(stripQuery(name)); ext != "" {
		if f, ok := ParseFormat(ext); ok {
			return f
		}
	}

	head := data
	if len(head) > 512 {
		head = head[:512]
	}
	switch {
	case bytes.HasPrefix(head, []byte("%PDF-")):
		return model.FormatPDF
	case bytes.HasPrefix(head, []byte("PK\x03\x04")):
		return model.FormatDOCX
	}

	lower := bytes.ToLower(bytes.TrimSpace(head))
	if bytes.HasPrefix(lower, []byte("<!doctype html")) || bytes.HasPrefix(lower, []byte("<html")) {
		return model.FormatHTML
	}

	// Extensionless names such as uploads and stdin fall back to text when the bytes look like text
	if filepath.Ext(stripQuery(name)) == "" && utf8.Valid(data) && !bytes.ContainsRune(head, 0) {
		return model.FormatText
	}

	return ""
}

func formatFromContentType(ct string) model.Format {
	mediaType, _, err := mime.ParseMediaType(ct)
	if err != nil {
		return ""
	}
	switch mediaType {
	case "text/html", "application/xhtml+xml":
		return model.FormatHTML
	case "application/pdf":
		return model.FormatPDF
	case "application/vnd.openxmlformats-officedocument.wordprocessingml.document":
		return model.FormatDOCX
	case "text/plain", "text/markdown":
		return model.FormatText
	}
	return ""
}

func stripQuery(name string) string {
	if i := strings.IndexAny(name, "?#"); i >= 0 {
		return name[:i]
	}
	return name
}

// ErrTooLarge is wrapped by load errors for documents over the size limit
var ErrTooLarge = errors.New("document too large")

// readLimited reads at most limit bytes and fails with ErrTooLarge beyond that
func readLimited(r io.Reader, limit int64) ([]byte, error) {
	if r == nil {
		return nil, errors.New("no content")
	}
	if limit <= 0 {
		return io.ReadAll(r)
	}
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > limit {
		return nil, ErrTooLarge
	}
	return data, nil
}

func tooLarge(src Source, limit int64) error {
	return &model.LoadError{
		Source: src.Name,
		Format: src.Format,
		Kind:   model.LoadCorrupt,
		Err:    fmt.Errorf("%w: exceeds %d bytes", ErrTooLarge, limit),
	}
}

// Normalize converts line endings to LF, drops NUL bytes and a leading BOM
func Normalize(text string) string {
	text = strings.TrimPrefix(text, "\ufeff")
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	return strings.ReplaceAll(text, "\x00", "")
}
