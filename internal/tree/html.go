package tree

import (
	"fmt"
	"io"
	"net/url"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// ParseHTML parses an HTML document and builds a Document from its <body>.
func ParseHTML(r io.Reader, base *url.URL) (*Document, error) {
	parsed, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}
	body := findBody(parsed)
	if body == nil {
		return nil, fmt.Errorf("document has no body element")
	}

	doc := NewDocument(base)
	for _, a := range body.Attr {
		doc.root.attrs = append(doc.root.attrs, Attribute{Name: a.Key, Value: a.Val})
	}
	for c := body.FirstChild; c != nil; c = c.NextSibling {
		if n := doc.fromHTML(c); n != nil {
			doc.root.AppendChild(n)
		}
	}
	return doc, nil
}

func findBody(n *html.Node) *html.Node {
	if n.Type == html.ElementNode && n.DataAtom == atom.Body {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findBody(c); found != nil {
			return found
		}
	}
	return nil
}

func (d *Document) fromHTML(h *html.Node) *Node {
	switch h.Type {
	case html.TextNode:
		return d.CreateText(h.Data)
	case html.ElementNode:
		n := d.CreateElement(h.Data)
		for _, a := range h.Attr {
			n.attrs = append(n.attrs, Attribute{Name: a.Key, Value: a.Val})
		}
		for c := h.FirstChild; c != nil; c = c.NextSibling {
			if child := d.fromHTML(c); child != nil {
				n.AppendChild(child)
			}
		}
		return n
	default:
		// Comments and doctypes carry no bindings.
		return nil
	}
}

// RenderHTML writes n and its subtree as HTML.
func RenderHTML(w io.Writer, n *Node) error {
	return html.Render(w, toHTML(n))
}

func toHTML(n *Node) *html.Node {
	if n.kind == TextNode {
		return &html.Node{Type: html.TextNode, Data: n.data}
	}
	h := &html.Node{
		Type:     html.ElementNode,
		Data:     n.tag,
		DataAtom: atom.Lookup([]byte(n.tag)),
	}
	for _, a := range n.attrs {
		h.Attr = append(h.Attr, html.Attribute{Key: a.Name, Val: a.Value})
	}
	for _, c := range n.children {
		h.AppendChild(toHTML(c))
	}
	return h
}
