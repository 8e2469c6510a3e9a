package content

import (
	"bytes"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
)

// Raw HTML in model output is not passed through.
var markdown = goldmark.New(
	goldmark.WithExtensions(
		extension.GFM,
		extension.Typographer,
	),
	goldmark.WithParserOptions(
		parser.WithAutoHeadingID(),
	),
)

// RenderHTML converts markdown to HTML.
func RenderHTML(md string) (string, error) {
	var buf bytes.Buffer
	if err := markdown.Convert([]byte(md), &buf); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// splitTitle takes the first "# " heading as the title and returns the rest
// as the body. Without a heading the fallback title is used.
func splitTitle(md, fallback string) (string, string) {
	md = strings.TrimSpace(md)
	first, rest, _ := strings.Cut(md, "\n")
	if title, ok := strings.CutPrefix(strings.TrimSpace(first), "# "); ok && strings.TrimSpace(title) != "" {
		return strings.TrimSpace(title), strings.TrimSpace(rest)
	}
	return fallback, md
}
