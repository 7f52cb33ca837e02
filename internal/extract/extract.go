// Package extract converts uploaded resume documents to plain text.
package extract

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"

	"github.com/resumind/resumind/internal/core"
)

// wordprocessingml main namespace; document.xml of every mainstream
// docx writer (Word, LibreOffice, Google Docs) uses it.
const wmlNamespace = "http://schemas.openxmlformats.org/wordprocessingml/2006/main"

// Text extracts plain text from an uploaded document based on its file
// extension. Unsupported or unreadable inputs return validation errors.
func Text(filename string, data []byte) (string, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	switch ext {
	case ".pdf":
		return pdfText(data)
	case ".docx":
		return docxText(data)
	case ".doc":
		return "", core.ErrValidation("doc_unsupported",
			"Legacy .doc files are not supported, please convert to .docx")
	case ".txt", ".md":
		if !utf8.Valid(data) {
			return "", core.ErrValidation("invalid_encoding",
				"File is not valid UTF-8 text")
		}
		return string(data), nil
	default:
		if utf8.Valid(data) {
			return string(data), nil
		}
		return "", core.ErrValidation("unsupported_format",
			"Unsupported file format: "+strings.TrimPrefix(ext, "."))
	}
}

// pdfText joins page-wise plain text with newlines.
func pdfText(data []byte) (text string, err error) {
	// The parser panics on some malformed files.
	defer func() {
		if r := recover(); r != nil {
			text = ""
			err = core.ErrValidation("invalid_pdf", "Could not read PDF file").
				WithCause(fmt.Errorf("pdf parser panic: %v", r))
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", core.ErrValidation("invalid_pdf", "Could not read PDF file").WithCause(err)
	}

	var pages []string
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			pages = append(pages, "")
			continue
		}
		pageText, err := page.GetPlainText(nil)
		if err != nil {
			pages = append(pages, "")
			continue
		}
		pages = append(pages, pageText)
	}
	return strings.Join(pages, "\n"), nil
}

// docxText walks word/document.xml of the OPC container and joins
// paragraph texts with newlines.
func docxText(data []byte) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", core.ErrValidation("invalid_docx", "Could not read DOCX file").WithCause(err)
	}

	var doc io.ReadCloser
	for _, f := range zr.File {
		if f.Name == "word/document.xml" {
			doc, err = f.Open()
			if err != nil {
				return "", core.ErrValidation("invalid_docx", "Could not read DOCX file").WithCause(err)
			}
			break
		}
	}
	if doc == nil {
		return "", core.ErrValidation("invalid_docx", "Could not read DOCX file").
			WithCause(fmt.Errorf("word/document.xml missing"))
	}
	defer doc.Close()

	var (
		paragraphs []string
		current    strings.Builder
		inText     bool
	)
	decoder := xml.NewDecoder(doc)
	for {
		tok, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", core.ErrValidation("invalid_docx", "Could not read DOCX file").WithCause(err)
		}

		switch el := tok.(type) {
		case xml.StartElement:
			if el.Name.Space != wmlNamespace {
				continue
			}
			switch el.Name.Local {
			case "t":
				inText = true
			case "tab":
				current.WriteByte('\t')
			case "br", "cr":
				current.WriteByte('\n')
			}
		case xml.CharData:
			if inText {
				current.Write(el)
			}
		case xml.EndElement:
			if el.Name.Space != wmlNamespace {
				continue
			}
			switch el.Name.Local {
			case "t":
				inText = false
			case "p":
				paragraphs = append(paragraphs, current.String())
				current.Reset()
			}
		}
	}
	return strings.Join(paragraphs, "\n"), nil
}
