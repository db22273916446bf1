package injector

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// lineBreaks is the number of line breaks a block element puts around its
// content when rendered as text
var lineBreaks = map[atom.Atom]int{
	atom.P:          2,
	atom.Address:    1,
	atom.Article:    1,
	atom.Aside:      1,
	atom.Blockquote: 1,
	atom.Dd:         1,
	atom.Div:        1,
	atom.Dl:         1,
	atom.Dt:         1,
	atom.Fieldset:   1,
	atom.Figcaption: 1,
	atom.Figure:     1,
	atom.Footer:     1,
	atom.Form:       1,
	atom.H1:         1,
	atom.H2:         1,
	atom.H3:         1,
	atom.H4:         1,
	atom.H5:         1,
	atom.H6:         1,
	atom.Header:     1,
	atom.Hr:         1,
	atom.Li:         1,
	atom.Main:       1,
	atom.Nav:        1,
	atom.Ol:         1,
	atom.Pre:        1,
	atom.Section:    1,
	atom.Table:      1,
	atom.Tr:         1,
	atom.Ul:         1,
}

var hiddenElements = map[atom.Atom]bool{
	atom.Script:   true,
	atom.Style:    true,
	atom.Template: true,
	atom.Noscript: true,
	atom.Head:     true,
}

// textRenderer lays out a subtree as rendered text. Breaks requested by
// adjacent blocks merge into the largest one and breaks at either end are
// dropped.
type textRenderer struct {
	lines   []string
	current strings.Builder
	pending int
}

// innerText returns the rendered text of the selection's first element.
// Whitespace collapses, br and block boundaries become newlines and each
// line is trimmed.
func innerText(sel *goquery.Selection) string {
	if sel.Length() == 0 {
		return ""
	}

	r := &textRenderer{}
	for c := sel.Nodes[0].FirstChild; c != nil; c = c.NextSibling {
		r.walk(c)
	}
	if strings.TrimSpace(r.current.String()) != "" {
		r.flushLine()
	}

	return strings.Join(r.lines, "\n")
}

func (r *textRenderer) walk(n *html.Node) {
	switch n.Type {
	case html.TextNode:
		if strings.TrimSpace(n.Data) != "" {
			r.placeBreaks()
		}
		r.current.WriteString(n.Data)
		return
	case html.ElementNode:
	default:
		return
	}

	if hiddenElements[n.DataAtom] {
		return
	}
	if n.DataAtom == atom.Br {
		r.placeBreaks()
		r.flushLine()
		return
	}

	breaks := lineBreaks[n.DataAtom]
	r.requestBreaks(breaks)
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		r.walk(c)
	}
	r.requestBreaks(breaks)
}

func (r *textRenderer) requestBreaks(n int) {
	if n > r.pending {
		r.pending = n
	}
}

// placeBreaks emits the pending breaks before new content
func (r *textRenderer) placeBreaks() {
	if r.pending == 0 {
		return
	}
	if len(r.lines) > 0 || strings.TrimSpace(r.current.String()) != "" {
		r.flushLine()
		for i := 1; i < r.pending; i++ {
			r.lines = append(r.lines, "")
		}
	}
	r.pending = 0
}

func (r *textRenderer) flushLine() {
	r.lines = append(r.lines, strings.Join(strings.Fields(r.current.String()), " "))
	r.current.Reset()
}
