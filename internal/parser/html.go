package parser

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/dgallion1/sopmaster/internal/persist"
	"github.com/dgallion1/sopmaster/internal/sop"
	"golang.org/x/net/html"
)

var bom = []byte("\ufeff")

// WordHTMLParser reads the Word-compatible HTML sheet (.doc).
type WordHTMLParser struct{}

func (p *WordHTMLParser) Parse(r io.Reader, filename string) (*persist.ProjectFile, error) {
	br := bufio.NewReader(r)
	if head, err := br.Peek(len(bom)); err == nil && bytes.Equal(head, bom) {
		_, _ = br.Discard(len(bom))
	}
	doc, err := html.Parse(br)
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	pf := newProject(baseTitle(filename))
	if title := findTitle(doc); title != "" {
		pf.DocInfo.Title = title
	}

	root := findBody(doc)
	if root == nil {
		root = doc
	}
	if header := findFirst(root, isClass("div", "doc-header")); header != nil {
		if h1 := findFirst(header, isTag("h1")); h1 != nil && textContent(h1) != "" {
			pf.DocInfo.Title = textContent(h1)
		}
		readMetadata(header, &pf.DocInfo.Metadata)
	}

	if parts := findFirst(root, isClass("table", "parts")); parts != nil {
		pf.DocInfo.Parts = readParts(parts)
	}

	for _, cell := range findAll(root, isClass("td", "step-cell")) {
		pf.Steps = append(pf.Steps, readStepCell(cell))
	}
	if len(pf.Steps) == 0 {
		return nil, fmt.Errorf("no steps found in %s", filename)
	}
	return pf, nil
}

// readMetadata prefers tagged value spans and falls back to the plain
// "Label: value | ..." line older sheets carry.
func readMetadata(header *html.Node, md *sop.Metadata) {
	spans := findAll(header, isClass("span", "meta-value"))
	for _, s := range spans {
		if key := attr(s, "data-field"); key != "" {
			md.Set(key, textContent(s))
		}
	}
	if len(spans) > 0 {
		return
	}
	for _, para := range findAll(header, isTag("p")) {
		parseMetaLine(textContent(para), md)
	}
}

func readParts(table *html.Node) []sop.PartRow {
	var rows []sop.PartRow
	for _, tr := range findAll(table, isTag("tr")) {
		cells := children(tr, "td")
		if len(cells) == 0 {
			continue
		}
		vals := make([]string, 4)
		for i := range min(len(cells), len(vals)) {
			vals[i] = textContent(cells[i])
		}
		rows = append(rows, sop.PartRow{PartNumber: vals[0], PartName: vals[1], Description: vals[2], Quantity: vals[3]})
	}
	return rows
}

func readStepCell(cell *html.Node) persist.ProjectStep {
	ps := persist.ProjectStep{ID: attr(cell, "data-step-id")}
	if wrapper := findFirst(cell, isClass("div", "image-wrapper")); wrapper != nil {
		if img := findFirst(wrapper, isTag("img")); img != nil {
			if src := attr(img, "src"); strings.HasPrefix(src, "data:") {
				ps.ImageData = src
			}
		}
	}
	if desc := findFirst(cell, isClass("div", "desc-text")); desc != nil {
		ps.Description = linesContent(desc)
	}
	return ps
}

// linesContent returns the text of n with <br> elements as newlines.
func linesContent(n *html.Node) string {
	var buf strings.Builder
	var extract func(*html.Node)
	extract = func(n *html.Node) {
		switch {
		case n.Type == html.TextNode:
			buf.WriteString(n.Data)
		case n.Type == html.ElementNode && n.Data == "br":
			buf.WriteByte('\n')
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			extract(c)
		}
	}
	extract(n)
	return buf.String()
}

func textContent(n *html.Node) string {
	var buf strings.Builder
	var extract func(*html.Node)
	extract = func(n *html.Node) {
		if n.Type == html.TextNode {
			buf.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			extract(c)
		}
	}
	extract(n)
	return strings.TrimSpace(buf.String())
}

func findTitle(n *html.Node) string {
	if t := findFirst(n, isTag("title")); t != nil {
		return textContent(t)
	}
	return ""
}

func findBody(n *html.Node) *html.Node {
	return findFirst(n, isTag("body"))
}

func isTag(tag string) func(*html.Node) bool {
	return func(n *html.Node) bool { return n.Data == tag }
}

func isClass(tag, class string) func(*html.Node) bool {
	return func(n *html.Node) bool {
		if n.Data != tag {
			return false
		}
		for _, c := range strings.Fields(attr(n, "class")) {
			if c == class {
				return true
			}
		}
		return false
	}
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func findFirst(n *html.Node, match func(*html.Node) bool) *html.Node {
	if n.Type == html.ElementNode && match(n) {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if f := findFirst(c, match); f != nil {
			return f
		}
	}
	return nil
}

func findAll(n *html.Node, match func(*html.Node) bool) []*html.Node {
	var out []*html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && match(n) {
			out = append(out, n)
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return out
}

func children(n *html.Node, tag string) []*html.Node {
	var out []*html.Node
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && c.Data == tag {
			out = append(out, c)
		}
	}
	return out
}
