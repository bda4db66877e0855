// Package dom holds the live HTML document a session scans: text units,
// annotations, editable surfaces and mutation notifications.
// A Document is not safe for concurrent use; sessions confine it to one event loop.
package dom

import (
	"fmt"
	"io"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/kailas-cloud/toxfilter/internal/domain"
)

// Mutation lists nodes attached to or detached from the document by one change.
type Mutation struct {
	Added   []*html.Node
	Removed []*html.Node
}

// Document is a parsed HTML tree plus the bookkeeping the pipeline needs.
type Document struct {
	root *html.Node

	units  map[*html.Node]UnitID
	nextID UnitID

	annotations map[string]*Annotation
	order       []string

	surfaces     map[*html.Node]Surface
	surfacesByID map[string]Surface

	observers map[int]func(Mutation)
	nextObs   int
}

// Parse reads a full HTML document.
func Parse(r io.Reader) (*Document, error) {
	root, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	return &Document{
		root:         root,
		units:        make(map[*html.Node]UnitID),
		annotations:  make(map[string]*Annotation),
		surfaces:     make(map[*html.Node]Surface),
		surfacesByID: make(map[string]Surface),
		observers:    make(map[int]func(Mutation)),
	}, nil
}

// ParseString reads a full HTML document from s.
func ParseString(s string) (*Document, error) {
	return Parse(strings.NewReader(s))
}

// Root returns the document node.
func (d *Document) Root() *html.Node { return d.root }

// Body returns the body element, or the root when there is none.
func (d *Document) Body() *html.Node {
	if b := findElement(d.root, func(n *html.Node) bool { return n.DataAtom == atom.Body }); b != nil {
		return b
	}
	return d.root
}

// ElementByID finds an element by its id attribute.
func (d *Document) ElementByID(id string) *html.Node {
	return findElement(d.root, func(n *html.Node) bool { return attr(n, "id") == id })
}

// Subscribe registers fn for every mutation. The returned func unsubscribes.
func (d *Document) Subscribe(fn func(Mutation)) func() {
	id := d.nextObs
	d.nextObs++
	d.observers[id] = fn
	return func() { delete(d.observers, id) }
}

// Append parses an HTML fragment in the context of the element with parentID
// (the body when empty) and appends it, notifying subscribers.
func (d *Document) Append(parentID, fragment string) ([]*html.Node, error) {
	parent := d.Body()
	if parentID != "" {
		parent = d.ElementByID(parentID)
		if parent == nil {
			return nil, fmt.Errorf("parent %q: %w", parentID, domain.ErrNodeNotFound)
		}
	}
	ctxNode := parent
	if ctxNode.Type != html.ElementNode {
		ctxNode = &html.Node{Type: html.ElementNode, Data: "body", DataAtom: atom.Body}
	}

	nodes, err := html.ParseFragment(strings.NewReader(fragment), ctxNode)
	if err != nil {
		return nil, fmt.Errorf("parse fragment: %w", err)
	}
	for _, n := range nodes {
		parent.AppendChild(n)
	}
	d.notify(Mutation{Added: nodes})
	return nodes, nil
}

// Remove detaches the element with the given id, notifying subscribers.
func (d *Document) Remove(id string) error {
	n := d.ElementByID(id)
	if n == nil || n.Parent == nil {
		return fmt.Errorf("node %q: %w", id, domain.ErrNodeNotFound)
	}
	n.Parent.RemoveChild(n)
	d.notify(Mutation{Removed: []*html.Node{n}})
	return nil
}

// Attached reports whether n is still reachable from the document root.
func (d *Document) Attached(n *html.Node) bool {
	for p := n; p != nil; p = p.Parent {
		if p == d.root {
			return true
		}
	}
	return false
}

// Render serializes the document. Text is escaped by the renderer.
func (d *Document) Render(w io.Writer) error {
	if err := html.Render(w, d.root); err != nil {
		return fmt.Errorf("render html: %w", err)
	}
	return nil
}

// HTML returns the serialized document.
func (d *Document) HTML() (string, error) {
	var sb strings.Builder
	if err := d.Render(&sb); err != nil {
		return "", err
	}
	return sb.String(), nil
}

func (d *Document) notify(m Mutation) {
	for _, fn := range d.observers {
		fn(m)
	}
}

func findElement(n *html.Node, pred func(*html.Node) bool) *html.Node {
	if n.Type == html.ElementNode && pred(n) {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findElement(c, pred); found != nil {
			return found
		}
	}
	return nil
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func hasAttr(n *html.Node, key string) bool {
	for _, a := range n.Attr {
		if a.Key == key {
			return true
		}
	}
	return false
}

func setAttr(n *html.Node, key, val string) {
	for i, a := range n.Attr {
		if a.Key == key {
			n.Attr[i].Val = val
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: val})
}

func removeAttr(n *html.Node, keys ...string) {
	out := n.Attr[:0]
	for _, a := range n.Attr {
		drop := false
		for _, k := range keys {
			if a.Key == k {
				drop = true
				break
			}
		}
		if !drop {
			out = append(out, a)
		}
	}
	n.Attr = out
}

func hasClass(n *html.Node, class string) bool {
	for _, c := range strings.Fields(attr(n, "class")) {
		if c == class {
			return true
		}
	}
	return false
}

func removeClass(n *html.Node, class string) {
	fields := strings.Fields(attr(n, "class"))
	out := fields[:0]
	for _, c := range fields {
		if c != class {
			out = append(out, c)
		}
	}
	if len(out) == 0 {
		removeAttr(n, "class")
		return
	}
	setAttr(n, "class", strings.Join(out, " "))
}

func element(a atom.Atom, attrs ...html.Attribute) *html.Node {
	return &html.Node{Type: html.ElementNode, Data: a.String(), DataAtom: a, Attr: attrs}
}

func textNode(s string) *html.Node {
	return &html.Node{Type: html.TextNode, Data: s}
}

func textContent(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return sb.String()
}
