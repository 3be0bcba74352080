package pdfquiz

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"
	"github.com/sirupsen/logrus"
)

// DefaultMinChars is the least amount of text a document must yield.
const DefaultMinChars = 100

// PageText is the outcome of reading one page. Err is set when the page
// could not be read; such pages are skipped.
type PageText struct {
	Page int
	Text string
	Err  error
}

// PageReader reads every page of a PDF in file order. An error means the
// document as a whole could not be opened.
type PageReader interface {
	ReadPages(ctx context.Context, data []byte) ([]PageText, error)
}

// NativeReader reads pages with github.com/ledongthuc/pdf.
type NativeReader struct{}

// ReadPages implements PageReader.
func (NativeReader) ReadPages(ctx context.Context, data []byte) (pages []PageText, err error) {
	// The reader panics on some malformed object graphs.
	defer func() {
		if r := recover(); r != nil {
			pages = nil
			err = fmt.Errorf("pdf reader panic: %v", r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, err
	}

	numPages := reader.NumPage()
	pages = make([]PageText, 0, numPages)
	for i := 1; i <= numPages; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		pages = append(pages, readNativePage(reader, i))
	}
	return pages, nil
}

func readNativePage(reader *pdf.Reader, num int) (pt PageText) {
	pt.Page = num
	defer func() {
		if r := recover(); r != nil {
			pt.Text = ""
			pt.Err = fmt.Errorf("page %d: %v", num, r)
		}
	}()

	page := reader.Page(num)
	if page.V.IsNull() {
		pt.Err = fmt.Errorf("page %d: page object missing", num)
		return pt
	}
	text, err := page.GetPlainText(nil)
	if err != nil {
		pt.Err = fmt.Errorf("page %d: %w", num, err)
		return pt
	}
	pt.Text = text
	return pt
}

// TextExtractor turns PDF bytes into one normalized text blob.
type TextExtractor struct {
	reader   PageReader
	minChars int
	logger   *logrus.Logger
}

// NewTextExtractor creates an extractor. A nil reader selects NativeReader and
// a non-positive minChars selects DefaultMinChars.
func NewTextExtractor(reader PageReader, minChars int, logger *logrus.Logger) *TextExtractor {
	if reader == nil {
		reader = NativeReader{}
	}
	if minChars <= 0 {
		minChars = DefaultMinChars
	}
	return &TextExtractor{reader: reader, minChars: minChars, logger: orDiscard(logger)}
}

// Extract reads all pages, skips the ones that fail, and joins the rest with a
// blank line. It fails with ErrExtractionFailed when the PDF cannot be opened
// and with ErrInsufficientText when too little text comes out.
func (te *TextExtractor) Extract(ctx context.Context, doc Document) (*ExtractedText, error) {
	if len(doc.Data) == 0 {
		return nil, newError(StageExtraction, ErrExtractionFailed, "document is empty", nil)
	}
	if !bytes.HasPrefix(doc.Data, []byte("%PDF-")) {
		return nil, newError(StageExtraction, ErrExtractionFailed, "missing %PDF- header", nil)
	}

	pages, err := te.reader.ReadPages(ctx, doc.Data)
	if err != nil {
		return nil, newError(StageExtraction, ErrExtractionFailed, "could not read PDF", err)
	}

	result := &ExtractedText{Pages: len(pages)}
	texts := make([]string, 0, len(pages))
	for _, p := range pages {
		if p.Err != nil {
			te.logger.WithFields(logrus.Fields{
				"file": doc.Filename,
				"page": p.Page,
			}).WithError(p.Err).Warn("Skipping unreadable page")
			result.SkippedPages = append(result.SkippedPages, SkippedPage{Page: p.Page, Reason: Excerpt(p.Err.Error(), maxDetail)})
			continue
		}
		text := normalizePageText(p.Text)
		if text == "" {
			continue
		}
		result.PagesWithText++
		texts = append(texts, text)
	}

	result.Text = strings.TrimSpace(strings.Join(texts, "\n\n"))
	chars := utf8.RuneCountInString(result.Text)
	if result.Pages == 0 || chars < te.minChars {
		return result, newError(StageExtraction, ErrInsufficientText,
			fmt.Sprintf("PDF appears to be scanned/image-based: %d characters of text from %d pages, need %d", chars, result.Pages, te.minChars),
			nil)
	}
	return result, nil
}

// normalizePageText unifies line endings, drops control characters and
// collapses runs of spaces.
func normalizePageText(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")

	var b strings.Builder
	b.Grow(len(s))
	lastSpace := false
	for _, r := range s {
		switch {
		case r == '\n':
			b.WriteRune(r)
			lastSpace = false
		case r == utf8.RuneError, unicode.IsControl(r) && r != '\t':
			continue
		case unicode.IsSpace(r):
			if !lastSpace {
				b.WriteByte(' ')
			}
			lastSpace = true
		default:
			b.WriteRune(r)
			lastSpace = false
		}
	}

	lines := strings.Split(b.String(), "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(line)
	}
	return strings.TrimSpace(collapseBlankLines(lines))
}

func collapseBlankLines(lines []string) string {
	out := make([]string, 0, len(lines))
	blank := 0
	for _, line := range lines {
		if line == "" {
			blank++
			if blank > 1 {
				continue
			}
		} else {
			blank = 0
		}
		out = append(out, line)
	}
	return strings.Join(out, "\n")
}

