package load

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/ppiankov/clausewise/internal/model"
)

// PDFLoader extracts the text layer of a PDF, one page per line block
type PDFLoader struct{}

func (l *PDFLoader) Name() string      { return "pdf" }
func (l *PDFLoader) Formats() []string { return []string{"pdf"} }

func (l *PDFLoader) Load(ctx context.Context, src Source) (doc *model.Document, err error) {
	data, err := io.ReadAll(src.Reader)
	if err != nil {
		return nil, &model.LoadError{Source: src.Name, Format: model.FormatPDF, Kind: model.LoadUnreadable, Err: err}
	}

	// The PDF parser panics on some malformed inputs
	defer func() {
		if r := recover(); r != nil {
			doc = nil
			err = corruptf(src, model.FormatPDF, "parse pdf: %v", r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, corrupt(src, model.FormatPDF, fmt.Errorf("open pdf: %w", err))
	}

	pages := make([]string, 0, reader.NumPage())
	for i := 1; i <= reader.NumPage(); i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return nil, corrupt(src, model.FormatPDF, fmt.Errorf("page %d: %w", i, err))
		}
		pages = append(pages, strings.TrimRight(text, " \n"))
	}

	return &model.Document{Text: strings.Join(pages, "\n\n")}, nil
}
