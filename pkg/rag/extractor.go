package rag

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"
	"github.com/nguyenthenguyen/docx"
	"github.com/xuri/excelize/v2"
)

// Extractor extracts plain text from one family of file formats.
type Extractor interface {
	// CanExtract reports whether this extractor handles the file.
	CanExtract(path string) bool

	// Extract reads the file and returns its text content. The
	// returned document has Content, Title, SourcePath and format
	// metadata set; the caller assigns the ID.
	Extract(ctx context.Context, path string) (*Document, error)

	// Extensions lists the file extensions this extractor handles.
	Extensions() []string
}

// ExtractorRegistry dispatches files to the extractor that handles
// their format.
type ExtractorRegistry struct {
	extractors []Extractor
}

// NewExtractorRegistry creates a registry with the built in extractors
// for PDF, Office and plain text formats.
func NewExtractorRegistry() *ExtractorRegistry {
	return &ExtractorRegistry{
		extractors: []Extractor{
			&pdfExtractor{},
			&officeExtractor{},
			&textExtractor{},
		},
	}
}

// Extract dispatches to the extractor for the file's format. Returns
// ErrUnsupportedFormat when no extractor handles it.
func (r *ExtractorRegistry) Extract(ctx context.Context, path string) (*Document, error) {
	for _, e := range r.extractors {
		if e.CanExtract(path) {
			return e.Extract(ctx, path)
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Ext(path))
}

// Supported reports whether any extractor handles the file.
func (r *ExtractorRegistry) Supported(path string) bool {
	for _, e := range r.extractors {
		if e.CanExtract(path) {
			return true
		}
	}
	return false
}

// Extensions lists every supported file extension.
func (r *ExtractorRegistry) Extensions() []string {
	var exts []string
	for _, e := range r.extractors {
		exts = append(exts, e.Extensions()...)
	}
	return exts
}

// pdfExtractor extracts text from PDF files page by page.
type pdfExtractor struct{}

func (p *pdfExtractor) CanExtract(path string) bool {
	return strings.ToLower(filepath.Ext(path)) == ".pdf"
}

func (p *pdfExtractor) Extensions() []string {
	return []string{".pdf"}
}

func (p *pdfExtractor) Extract(ctx context.Context, path string) (*Document, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, NewExtractionError("pdf", path, err)
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, NewExtractionError("pdf", path, err)
	}
	defer file.Close()

	reader, err := pdf.NewReader(file, info.Size())
	if err != nil {
		return nil, NewExtractionError("pdf", path, err)
	}

	var parts []string
	totalPages := reader.NumPage()

	for pageNum := 1; pageNum <= totalPages; pageNum++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		page := reader.Page(pageNum)
		if page.V.IsNull() {
			continue
		}

		text, err := page.GetPlainText(nil)
		if err != nil {
			parts = append(parts, fmt.Sprintf("--- Page %d (extraction failed: %v) ---", pageNum, err))
			continue
		}
		if strings.TrimSpace(text) != "" {
			parts = append(parts, fmt.Sprintf("--- Page %d ---\n%s", pageNum, text))
		}
	}

	return &Document{
		Content:    strings.Join(parts, "\n\n"),
		Title:      filepath.Base(path),
		SourcePath: path,
		Pages:      totalPages,
		Metadata: map[string]string{
			"type":  "PDF Document",
			"pages": fmt.Sprintf("%d", totalPages),
		},
	}, nil
}

// officeExtractor extracts text from Word and Excel documents.
type officeExtractor struct{}

func (o *officeExtractor) CanExtract(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".docx" || ext == ".xlsx"
}

func (o *officeExtractor) Extensions() []string {
	return []string{".docx", ".xlsx"}
}

func (o *officeExtractor) Extract(ctx context.Context, path string) (*Document, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".docx":
		return o.extractWord(path)
	case ".xlsx":
		return o.extractExcel(ctx, path)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Ext(path))
	}
}

func (o *officeExtractor) extractWord(path string) (*Document, error) {
	doc, err := docx.ReadDocxFile(path)
	if err != nil {
		return nil, NewExtractionError("docx", path, err)
	}
	defer doc.Close()

	// GetContent returns the raw document XML, strip the tags to get
	// the readable text.
	content := stripXMLTags(doc.Editable().GetContent())

	return &Document{
		Content:    content,
		Title:      filepath.Base(path),
		SourcePath: path,
		Metadata: map[string]string{
			"type": "Word Document",
		},
	}, nil
}

func (o *officeExtractor) extractExcel(ctx context.Context, path string) (*Document, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, NewExtractionError("xlsx", path, err)
	}
	defer f.Close()

	var parts []string
	sheets := f.GetSheetList()

	for _, sheetName := range sheets {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		var sheetText strings.Builder
		sheetText.WriteString(fmt.Sprintf("--- Sheet: %s ---\n", sheetName))

		rows, err := f.GetRows(sheetName)
		if err != nil {
			sheetText.WriteString(fmt.Sprintf("Error reading sheet: %v\n", err))
			continue
		}

		cellCount := 0
		maxCells := 1000 // Limit cells per sheet to avoid huge outputs

		for rowIndex, row := range rows {
			if cellCount >= maxCells {
				sheetText.WriteString("... (truncated)\n")
				break
			}
			for colIndex, cell := range row {
				if cellCount >= maxCells {
					break
				}
				if text := strings.TrimSpace(cell); text != "" {
					cellRef := fmt.Sprintf("%s%d", columnLetter(colIndex), rowIndex+1)
					sheetText.WriteString(fmt.Sprintf("%s: %s\n", cellRef, text))
					cellCount++
				}
			}
		}

		if text := strings.TrimSpace(sheetText.String()); text != "" {
			parts = append(parts, text)
		}
	}

	return &Document{
		Content:    strings.Join(parts, "\n\n"),
		Title:      filepath.Base(path),
		SourcePath: path,
		Metadata: map[string]string{
			"type":   "Excel Spreadsheet",
			"sheets": fmt.Sprintf("%d", len(sheets)),
		},
	}, nil
}

// textExtractor reads plain text formats. Content is sniffed so a
// binary file wearing a text extension is rejected instead of filling
// the index with garbage.
type textExtractor struct{}

func (t *textExtractor) CanExtract(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".txt", ".md", ".markdown":
		return true
	}
	return false
}

func (t *textExtractor) Extensions() []string {
	return []string{".txt", ".md", ".markdown"}
}

func (t *textExtractor) Extract(_ context.Context, path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, NewExtractionError("text", path, err)
	}

	head := data
	if len(head) > 512 {
		head = head[:512]
	}
	if len(head) > 0 && !isTextMimeType(http.DetectContentType(head)) {
		return nil, NewExtractionError("text", path, fmt.Errorf("binary content"))
	}

	content := cleanUTF8(string(data))
	if content == "" && len(data) > 0 {
		return nil, NewExtractionError("text", path, fmt.Errorf("content is not valid UTF-8"))
	}

	return &Document{
		Content:    content,
		Title:      filepath.Base(path),
		SourcePath: path,
		Metadata: map[string]string{
			"type": "Text Document",
		},
	}, nil
}

func isTextMimeType(mimeType string) bool {
	return strings.HasPrefix(mimeType, "text/") ||
		mimeType == "application/json" ||
		mimeType == "application/xml" ||
		strings.Contains(mimeType, "javascript")
}

// cleanUTF8 strips invalid byte sequences. Files that are mostly
// invalid are rejected by returning empty.
func cleanUTF8(content string) string {
	if utf8.ValidString(content) {
		return content
	}
	cleaned := strings.ToValidUTF8(content, "")
	if float64(len(content)-len(cleaned)) > 0.5*float64(len(content)) {
		return ""
	}
	return cleaned
}

// columnLetter converts a 0-based column index to an Excel column
// letter (A, B, ..., Z, AA, AB, ...).
func columnLetter(index int) string {
	result := ""
	for {
		result = string(rune('A'+index%26)) + result
		index = index/26 - 1
		if index < 0 {
			break
		}
	}
	return result
}

// stripXMLTags drops markup from an XML fragment, keeping the text
// nodes.
func stripXMLTags(s string) string {
	var b strings.Builder
	inTag := false
	for _, r := range s {
		switch {
		case r == '<':
			inTag = true
		case r == '>':
			inTag = false
		case !inTag:
			b.WriteRune(r)
		}
	}
	return strings.TrimSpace(b.String())
}
