// Package render serialises a block forest into a standalone HTML page.
package render

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/alantheprice/sitebuilder/pkg/blocks"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// ErrUnsupportedBlock is returned by Block for a type with no renderer.
var ErrUnsupportedBlock = errors.New("no renderer for block type")

const shellHead = `<!DOCTYPE html>
<html>
  <head>
    <meta charset="utf-8">
    <title>Preview</title>
    <style>
      body { font-family: sans-serif; padding: 20px; }
      section { margin-bottom: 20px; padding: 20px; border: 1px solid #ccc; }
      img { max-width: 100%; }
      .btn {
        background: #2563eb;
        color: white;
        padding: 10px 18px;
        border-radius: 4px;
        text-decoration: none;
      }
    </style>
  </head>
  <body>
    `

const shellTail = `
  </body>
</html>
`

type renderFunc func(b blocks.Block) *html.Node

var renderers map[blocks.Type]renderFunc

func init() {
	renderers = map[blocks.Type]renderFunc{
		blocks.TypeSection: renderSection,
		blocks.TypeText:    renderText,
		blocks.TypeImage:   renderImage,
		blocks.TypeButton:  renderButton,
	}
}

// HTML renders forest inside the fixed page shell. Blocks of unknown type
// render as nothing. Output is byte-identical for identical input.
func HTML(forest []blocks.Block) string {
	var buf bytes.Buffer
	buf.WriteString(shellHead)
	buf.WriteString(Fragment(forest))
	buf.WriteString(shellTail)
	return buf.String()
}

// Fragment renders forest without the page shell.
func Fragment(forest []blocks.Block) string {
	var buf bytes.Buffer
	for _, b := range forest {
		// Unsupported blocks are skipped, other write errors cannot happen
		// on a bytes.Buffer.
		_ = Block(&buf, b)
	}
	return buf.String()
}

// Block writes the markup for a single block and its descendants.
func Block(w io.Writer, b blocks.Block) error {
	n := node(b)
	if n == nil {
		return fmt.Errorf("%w: %q", ErrUnsupportedBlock, b.Type)
	}
	return html.Render(w, n)
}

func node(b blocks.Block) *html.Node {
	fn, ok := renderers[b.Type]
	if !ok {
		return nil
	}
	return fn(b)
}

func element(a atom.Atom, attrs ...html.Attribute) *html.Node {
	return &html.Node{Type: html.ElementNode, DataAtom: a, Data: a.String(), Attr: attrs}
}

func textNode(s string) *html.Node {
	return &html.Node{Type: html.TextNode, Data: s}
}

func renderSection(b blocks.Block) *html.Node {
	n := element(atom.Section)
	for _, child := range b.Children {
		if c := node(child); c != nil {
			n.AppendChild(c)
		}
	}
	return n
}

func renderText(b blocks.Block) *html.Node {
	n := element(atom.P)
	if content := b.Prop("content", "text"); content != "" {
		n.AppendChild(textNode(content))
	}
	return n
}

func renderImage(b blocks.Block) *html.Node {
	return element(atom.Img,
		html.Attribute{Key: "src", Val: b.Prop("content", "src")},
		html.Attribute{Key: "alt", Val: b.Prop("alt")},
	)
}

func renderButton(b blocks.Block) *html.Node {
	link := b.Prop("link", "href")
	if link == "" {
		link = "#"
	}
	label := b.Prop("content", "text")
	if label == "" {
		label = "Button"
	}
	n := element(atom.A,
		html.Attribute{Key: "href", Val: link},
		html.Attribute{Key: "class", Val: "btn"},
	)
	n.AppendChild(textNode(label))
	return n
}
