package ui

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/alecthomas/chroma"
	"github.com/alecthomas/chroma/formatters"
	"github.com/alecthomas/chroma/lexers"
	"github.com/alecthomas/chroma/styles"
)

// XMLHighlighter colors raw XML responses for the terminal.
type XMLHighlighter struct {
	formatter chroma.Formatter
	style     *chroma.Style
	lexer     chroma.Lexer
}

// NewXMLHighlighter returns a highlighter using the named chroma style and
// formatter. Unknown names fall back to the github style and plain output.
func NewXMLHighlighter(styleName, formatterName string) *XMLHighlighter {
	formatter := formatters.Get(formatterName)
	if formatter == nil {
		formatter = formatters.Fallback
	}
	style := styles.Get(styleName)
	if style == nil {
		style = styles.GitHub
	}
	lexer := lexers.Get("xml")
	if lexer == nil {
		lexer = lexers.Fallback
	}
	return &XMLHighlighter{
		formatter: formatter,
		style:     style,
		lexer:     chroma.Coalesce(lexer),
	}
}

// Highlight returns raw colored by the configured style. On failure the
// input is returned with the error.
func (h *XMLHighlighter) Highlight(raw string) (string, error) {
	iterator, err := h.lexer.Tokenise(nil, raw)
	if err != nil {
		return raw, err
	}
	var out strings.Builder
	if err := h.formatter.Format(&out, h.style, iterator); err != nil {
		return raw, err
	}
	return out.String(), nil
}

// Indent re-encodes a single-line XML document with one element per line.
func Indent(raw []byte) (string, error) {
	dec := xml.NewDecoder(bytes.NewReader(raw))
	var buf bytes.Buffer
	enc := xml.NewEncoder(&buf)
	enc.Indent("", "  ")
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return string(raw), fmt.Errorf("indent: %w", err)
		}
		if cd, ok := tok.(xml.CharData); ok && len(bytes.TrimSpace(cd)) == 0 {
			continue
		}
		if err := enc.EncodeToken(xml.CopyToken(tok)); err != nil {
			return string(raw), fmt.Errorf("indent: %w", err)
		}
	}
	if err := enc.Flush(); err != nil {
		return string(raw), fmt.Errorf("indent: %w", err)
	}
	return buf.String(), nil
}
