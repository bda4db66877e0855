package dom

import (
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Classes marking regions the scanner must never descend into.
const (
	ClassWordBlur   = "toxic-word-blur"
	ClassAIWrap     = "ai-blur-wrap"
	ClassAIBlurred  = "ai-blurred"
	ClassAIBadge    = "ai-badge"
	ClassWarning    = "toxic-composer-warning"
	attrScanWrapped = "data-toxic-scan"
)

// Parents whose text is not rendered content. Title, textarea and the raw-text
// elements are serialized without parsing markup, so wrapping them would show tags as text.
var skipParents = map[atom.Atom]bool{
	atom.Script:    true,
	atom.Style:     true,
	atom.Noscript:  true,
	atom.Textarea:  true,
	atom.Input:     true,
	atom.Template:  true,
	atom.Title:     true,
	atom.Iframe:    true,
	atom.Noembed:   true,
	atom.Noframes:  true,
	atom.Xmp:       true,
	atom.Plaintext: true,
}

var annotatedClasses = []string{ClassWordBlur, ClassAIWrap, ClassAIBlurred, ClassWarning}

// UnitID identifies a text node for the lifetime of its document.
type UnitID uint64

// Unit is one scannable text node.
type Unit struct {
	ID   UnitID
	node *html.Node
}

// Text returns the node's current text.
func (u Unit) Text() string { return u.node.Data }

// Node returns the backing text node.
func (u Unit) Node() *html.Node { return u.node }

// Units returns the text nodes under root in document order, assigning ids on first sight.
func (d *Document) Units(root *html.Node) []Unit {
	var out []Unit
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			out = append(out, d.unit(n))
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)
	return out
}

// UnitOf returns the unit for a text node.
func (d *Document) UnitOf(n *html.Node) (Unit, bool) {
	if n == nil || n.Type != html.TextNode {
		return Unit{}, false
	}
	return d.unit(n), true
}

// Eligible reports whether a unit holds page content: not inside script, style or
// form controls, and not inside a region already annotated or wrapped.
func (d *Document) Eligible(u Unit) bool {
	p := u.node.Parent
	if p == nil || p.Type != html.ElementNode || skipParents[p.DataAtom] {
		return false
	}
	for n := p; n != nil; n = n.Parent {
		if n.Type != html.ElementNode {
			continue
		}
		if n.DataAtom == atom.Head {
			return false
		}
		if hasAttr(n, attrScanWrapped) {
			return false
		}
		for _, c := range annotatedClasses {
			if hasClass(n, c) {
				return false
			}
		}
	}
	return true
}

func (d *Document) unit(n *html.Node) Unit {
	id, ok := d.units[n]
	if !ok {
		d.nextID++
		id = d.nextID
		d.units[n] = id
	}
	return Unit{ID: id, node: n}
}

// forgetUnits drops ids of text nodes under a detached subtree and returns them.
func (d *Document) forgetUnits(root *html.Node) []UnitID {
	var ids []UnitID
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if id, ok := d.units[n]; ok {
			ids = append(ids, id)
			delete(d.units, n)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)
	return ids
}

// ReleaseUnits forgets the ids of text nodes under n. Call after n was detached.
func (d *Document) ReleaseUnits(n *html.Node) []UnitID {
	if d.Attached(n) {
		return nil
	}
	return d.forgetUnits(n)
}
