package load

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/ppiankov/clausewise/internal/model"
)

const docxMainPart = "word/document.xml"

// docxMarkupFactor allows for WordprocessingML markup around the text when
// bounding the decompressed main part
const docxMarkupFactor = 4

// DOCXLoader extracts paragraph text from Office Open XML documents
type DOCXLoader struct{}

func (l *DOCXLoader) Name() string      { return "docx" }
func (l *DOCXLoader) Formats() []string { return []string{"docx"} }

func (l *DOCXLoader) Load(ctx context.Context, src Source) (*model.Document, error) {
	data, err := io.ReadAll(src.Reader)
	if err != nil {
		return nil, &model.LoadError{Source: src.Name, Format: model.FormatDOCX, Kind: model.LoadUnreadable, Err: err}
	}

	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, corrupt(src, model.FormatDOCX, fmt.Errorf("open archive: %w", err))
	}

	var part *zip.File
	for _, f := range zr.File {
		if f.Name == docxMainPart {
			part = f
			break
		}
	}
	if part == nil {
		return nil, corruptf(src, model.FormatDOCX, "missing %s", docxMainPart)
	}

	var limit int64
	if src.MaxBytes > 0 {
		limit = src.MaxBytes * docxMarkupFactor
		// The header can lie, so the read below is bounded as well
		if part.UncompressedSize64 > uint64(limit) {
			return nil, tooLarge(src, src.MaxBytes)
		}
	}

	rc, err := part.Open()
	if err != nil {
		return nil, corrupt(src, model.FormatDOCX, fmt.Errorf("open %s: %w", docxMainPart, err))
	}
	defer func() { _ = rc.Close() }()

	xmlData, err := readLimited(rc, limit)
	if errors.Is(err, ErrTooLarge) {
		return nil, tooLarge(src, src.MaxBytes)
	}
	if err != nil {
		return nil, corrupt(src, model.FormatDOCX, fmt.Errorf("read %s: %w", docxMainPart, err))
	}

	text, err := docxParagraphs(bytes.NewReader(xmlData))
	if err != nil {
		return nil, corrupt(src, model.FormatDOCX, err)
	}
	return &model.Document{Text: text}, nil
}

// docxParagraphs walks WordprocessingML and joins paragraph text with newlines.
// Tabs and breaks inside a paragraph become a tab and a newline.
func docxParagraphs(r io.Reader) (string, error) {
	dec := xml.NewDecoder(r)

	var (
		out        strings.Builder
		para       strings.Builder
		inText     bool
		paragraphs int
	)

	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("parse %s: %w", docxMainPart, err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "t":
				inText = true
			case "tab":
				para.WriteByte('\t')
			case "br", "cr":
				para.WriteByte('\n')
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				if paragraphs > 0 {
					out.WriteByte('\n')
				}
				out.WriteString(para.String())
				para.Reset()
				paragraphs++
			}
		case xml.CharData:
			if inText {
				para.Write(t)
			}
		}
	}

	if para.Len() > 0 {
		if paragraphs > 0 {
			out.WriteByte('\n')
		}
		out.WriteString(para.String())
	}

	return out.String(), nil
}
