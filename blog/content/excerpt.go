package content

import (
	"strings"
	"unicode/utf8"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/text"
)

const (
	// ExcerptLength is the maximum number of characters kept before the ellipsis.
	ExcerptLength = 150
	ellipsis      = "..."
)

var parser = goldmark.New(
	goldmark.WithExtensions(
		extension.GFM,
		extension.Strikethrough,
		extension.TaskList,
	),
).Parser()

// Excerpt strips markdown from content and truncates the plain text to
// ExcerptLength characters, cutting on a word boundary and appending "...".
func Excerpt(markdown string) string {
	plain := PlainText(markdown)
	if utf8.RuneCountInString(plain) <= ExcerptLength {
		return plain
	}

	runes := []rune(plain)
	cut := string(runes[:ExcerptLength])
	if lastSpace := strings.LastIndexAny(cut, " \t"); lastSpace > 0 {
		cut = cut[:lastSpace]
	}

	return strings.TrimRight(cut, " \t.,;:") + ellipsis
}

// PlainText renders markdown as a single line of text.
// Code blocks, raw HTML and images are dropped; link text is kept.
func PlainText(markdown string) string {
	src := []byte(markdown)
	doc := parser.Parse(text.NewReader(src))

	var sb strings.Builder
	ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		switch node := n.(type) {
		case *ast.FencedCodeBlock, *ast.CodeBlock, *ast.HTMLBlock, *ast.RawHTML, *ast.Image:
			return ast.WalkSkipChildren, nil
		case *ast.Text:
			if entering {
				sb.Write(node.Segment.Value(src))
				if node.SoftLineBreak() || node.HardLineBreak() {
					sb.WriteByte(' ')
				}
			}
		case *ast.String:
			if entering {
				sb.Write(node.Value)
			}
		case *ast.AutoLink:
			if entering {
				sb.Write(node.Label(src))
			}
		default:
			if !entering && n.Type() == ast.TypeBlock {
				sb.WriteByte(' ')
			}
		}
		return ast.WalkContinue, nil
	})

	return strings.Join(strings.Fields(sb.String()), " ")
}
