package load

import (
	"context"
	"errors"
	"fmt"
	"io"
	"unicode/utf8"

	"github.com/ppiankov/clausewise/internal/model"
)

// TextLoader reads plain text and Markdown as UTF-8
type TextLoader struct{}

func (l *TextLoader) Name() string      { return "text" }
func (l *TextLoader) Formats() []string { return []string{"txt", "md"} }

func (l *TextLoader) Load(ctx context.Context, src Source) (*model.Document, error) {
	data, err := io.ReadAll(src.Reader)
	if err != nil {
		return nil, &model.LoadError{Source: src.Name, Format: model.FormatText, Kind: model.LoadUnreadable, Err: err}
	}
	if !utf8.Valid(data) {
		return nil, &model.LoadError{
			Source: src.Name,
			Format: model.FormatText,
			Kind:   model.LoadCorrupt,
			Err:    errors.New("content is not valid UTF-8"),
		}
	}
	return &model.Document{Text: string(data)}, nil
}

func corrupt(src Source, format model.Format, err error) error {
	return &model.LoadError{Source: src.Name, Format: format, Kind: model.LoadCorrupt, Err: err}
}

func corruptf(src Source, format model.Format, msg string, args ...any) error {
	return corrupt(src, format, fmt.Errorf(msg, args...))
}
