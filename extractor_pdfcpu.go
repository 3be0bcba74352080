package pdfquiz

import (
	"context"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// PdfcpuReader reads pages by dumping each page's content stream with pdfcpu
// and decoding its text-show operators. It copes with some files the native
// reader rejects, at the cost of ignoring font encodings.
type PdfcpuReader struct {
	// TempDir is the parent for scratch directories; empty means os.TempDir.
	TempDir string
}

const pdfcpuSourceName = "source"

// ReadPages implements PageReader.
func (r PdfcpuReader) ReadPages(ctx context.Context, data []byte) (pages []PageText, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			pages = nil
			err = fmt.Errorf("pdfcpu panic: %v", rec)
		}
	}()

	dir, err := os.MkdirTemp(r.TempDir, "pdfquiz_*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp directory: %w", err)
	}
	defer os.RemoveAll(dir)

	source := filepath.Join(dir, pdfcpuSourceName+".pdf")
	if err := os.WriteFile(source, data, 0600); err != nil {
		return nil, fmt.Errorf("failed to write temp PDF: %w", err)
	}

	pageCount, err := api.PageCountFile(source)
	if err != nil {
		return nil, fmt.Errorf("failed to count pages: %w", err)
	}

	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed

	pages = make([]PageText, 0, pageCount)
	for i := 1; i <= pageCount; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		pages = append(pages, r.readPage(source, dir, i, conf))
	}
	return pages, nil
}

func (r PdfcpuReader) readPage(source, dir string, num int, conf *model.Configuration) (pt PageText) {
	pt.Page = num
	defer func() {
		if rec := recover(); rec != nil {
			pt.Err = fmt.Errorf("page %d: %v", num, rec)
		}
	}()

	outDir := filepath.Join(dir, "page_"+strconv.Itoa(num))
	if err := os.MkdirAll(outDir, 0700); err != nil {
		pt.Err = fmt.Errorf("page %d: %w", num, err)
		return pt
	}
	if err := api.ExtractContentFile(source, outDir, []string{strconv.Itoa(num)}, conf); err != nil {
		pt.Err = fmt.Errorf("page %d: failed to extract content: %w", num, err)
		return pt
	}

	content, err := os.ReadFile(filepath.Join(outDir, fmt.Sprintf("%s_Content_page_%d.txt", pdfcpuSourceName, num)))
	if err != nil {
		pt.Err = fmt.Errorf("page %d: failed to read content: %w", num, err)
		return pt
	}
	pt.Text = decodeTextOperators(string(content))
	return pt
}

// decodeTextOperators pulls the strings shown by Tj, TJ, ' and " out of a
// page content stream. Line-moving operators become newlines.
func decodeTextOperators(content string) string {
	var out, pending strings.Builder
	newline := func() {
		if out.Len() > 0 && !strings.HasSuffix(out.String(), "\n") {
			out.WriteByte('\n')
		}
	}

	for i := 0; i < len(content); {
		c := content[i]
		switch {
		case c == '(':
			s, next := readLiteralString(content, i)
			pending.WriteString(s)
			i = next
		case c == '<' && i+1 < len(content) && content[i+1] == '<':
			i += 2
		case c == '>' && i+1 < len(content) && content[i+1] == '>':
			i += 2
		case c == '<':
			s, next := readHexString(content, i)
			pending.WriteString(s)
			i = next
		case c == '%':
			for i < len(content) && content[i] != '\n' && content[i] != '\r' {
				i++
			}
		case c == '[' || c == ']' || c == '{' || c == '}' || isPDFSpace(c):
			i++
		case c == '/':
			i++
			for i < len(content) && !isPDFDelimiter(content[i]) {
				i++
			}
		case c == '\'' || c == '"':
			newline()
			out.WriteString(pending.String())
			pending.Reset()
			i++
		default:
			start := i
			for i < len(content) && !isPDFDelimiter(content[i]) && content[i] != '\'' && content[i] != '"' {
				i++
			}
			if i == start {
				// stray ')' or '>'
				i++
				continue
			}
			word := content[start:i]
			if n, err := strconv.ParseFloat(word, 64); err == nil {
				// Large negative kerning inside TJ usually separates words.
				if n < -200 && pending.Len() > 0 {
					pending.WriteByte(' ')
				}
				continue
			}
			switch word {
			case "Tj", "TJ":
				out.WriteString(pending.String())
			case "T*", "Td", "TD", "ET":
				newline()
			}
			pending.Reset()
		}
	}
	return out.String()
}

func readLiteralString(s string, start int) (string, int) {
	var b strings.Builder
	depth := 0
	i := start
	for i < len(s) {
		c := s[i]
		switch c {
		case '\\':
			i++
			if i >= len(s) {
				return b.String(), i
			}
			switch e := s[i]; e {
			case 'n':
				b.WriteByte('\n')
			case 'r':
				b.WriteByte('\r')
			case 't':
				b.WriteByte('\t')
			case 'b', 'f':
			case '\r', '\n':
				// line continuation
			case '0', '1', '2', '3', '4', '5', '6', '7':
				j := i
				for j < len(s) && j < i+3 && s[j] >= '0' && s[j] <= '7' {
					j++
				}
				v, _ := strconv.ParseUint(s[i:j], 8, 8)
				b.WriteRune(rune(v))
				i = j
				continue
			default:
				b.WriteByte(e)
			}
			i++
			continue
		case '(':
			depth++
			if depth > 1 {
				b.WriteByte(c)
			}
		case ')':
			depth--
			if depth == 0 {
				return b.String(), i + 1
			}
			b.WriteByte(c)
		default:
			b.WriteByte(c)
		}
		i++
	}
	return b.String(), i
}

// readHexString decodes <...>; glyph-id strings that do not decode to
// printable ASCII are dropped.
func readHexString(s string, start int) (string, int) {
	end := strings.IndexByte(s[start:], '>')
	if end < 0 {
		return "", len(s)
	}
	digits := strings.Map(func(r rune) rune {
		if isPDFSpace(byte(r)) {
			return -1
		}
		return r
	}, s[start+1:start+end])
	if len(digits)%2 == 1 {
		digits += "0"
	}
	raw, err := hex.DecodeString(digits)
	if err != nil {
		return "", start + end + 1
	}
	for _, c := range raw {
		if c < 0x20 || c > 0x7e {
			return "", start + end + 1
		}
	}
	return string(raw), start + end + 1
}

func isPDFSpace(c byte) bool {
	return c == ' ' || c == '\n' || c == '\r' || c == '\t' || c == '\f' || c == 0
}

func isPDFDelimiter(c byte) bool {
	return isPDFSpace(c) || strings.IndexByte("()<>[]{}/%", c) >= 0
}
