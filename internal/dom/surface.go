package dom

import (
	"sort"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/kailas-cloud/toxfilter/internal/domain"
)

const attrSurfaceID = "data-surface-id"

// Surface is an editable element a composer guard can watch.
type Surface interface {
	ID() string
	Kind() string
	Text() string
	SetText(text string)
	SetWarning(w domain.Warning)
	ClearWarning()
	Warning() (domain.Warning, bool)
}

// DiscoverSurfaces attaches surfaces to editable elements under root
// (textarea, text and search inputs, contenteditable) and returns the new ones.
func (d *Document) DiscoverSurfaces(root *html.Node) []Surface {
	var out []Surface
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			if _, seen := d.surfaces[n]; !seen {
				if s := d.newSurface(n); s != nil {
					out = append(out, s)
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)
	return out
}

// Surface looks up a surface by id.
func (d *Document) Surface(id string) (Surface, bool) {
	s, ok := d.surfacesByID[id]
	return s, ok
}

// Surfaces returns every known surface ordered by id.
func (d *Document) Surfaces() []Surface {
	out := make([]Surface, 0, len(d.surfacesByID))
	for _, s := range d.surfaces {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}

// ReleaseSurfaces forgets surfaces under n and returns their ids. Call after n was detached.
func (d *Document) ReleaseSurfaces(n *html.Node) []string {
	if d.Attached(n) {
		return nil
	}
	var ids []string
	var walk func(*html.Node)
	walk = func(c *html.Node) {
		if s, ok := d.surfaces[c]; ok {
			ids = append(ids, s.ID())
			delete(d.surfaces, c)
			delete(d.surfacesByID, s.ID())
		}
		for k := c.FirstChild; k != nil; k = k.NextSibling {
			walk(k)
		}
	}
	walk(n)
	return ids
}

func (d *Document) newSurface(n *html.Node) Surface {
	base := warningHost{doc: d, el: n}
	var s Surface
	switch {
	case n.DataAtom == atom.Textarea:
		s = &InputSurface{warningHost: base}
	case n.DataAtom == atom.Input && isTextInput(n):
		s = &InputSurface{warningHost: base}
	case strings.EqualFold(attr(n, "contenteditable"), "true"):
		s = &EditableSurface{warningHost: base}
	default:
		return nil
	}

	id := attr(n, attrSurfaceID)
	if id == "" {
		id = uuid.NewString()
		setAttr(n, attrSurfaceID, id)
	}
	switch v := s.(type) {
	case *InputSurface:
		v.id = id
	case *EditableSurface:
		v.id = id
	}
	d.surfaces[n] = s
	d.surfacesByID[id] = s
	return s
}

func isTextInput(n *html.Node) bool {
	switch strings.ToLower(attr(n, "type")) {
	case "", "text", "search":
		return true
	}
	return false
}

// warningHost renders the warning block right after the element in document flow.
type warningHost struct {
	id      string
	doc     *Document
	el      *html.Node
	warning *html.Node
	current domain.Warning
	visible bool
}

func (h *warningHost) ID() string { return h.id }

// Warning returns the warning currently shown, if any.
func (h *warningHost) Warning() (domain.Warning, bool) { return h.current, h.visible }

// SetWarning shows or updates the warning. Detached elements are ignored.
func (h *warningHost) SetWarning(w domain.Warning) {
	if h.el.Parent == nil || !h.doc.Attached(h.el) {
		return
	}
	if h.warning == nil || h.warning.Parent == nil {
		h.warning = element(atom.Div, html.Attribute{Key: "role", Val: "alert"})
		h.el.Parent.InsertBefore(h.warning, h.el.NextSibling)
	}
	setAttr(h.warning, "class", ClassWarning+" "+w.Severity.Class())
	for c := h.warning.FirstChild; c != nil; c = h.warning.FirstChild {
		h.warning.RemoveChild(c)
	}
	label := element(atom.Span, html.Attribute{Key: "class", Val: "toxic-composer-label"})
	label.AppendChild(textNode(w.Label))
	detail := element(atom.Span, html.Attribute{Key: "class", Val: "toxic-composer-detail"})
	detail.AppendChild(textNode(w.Detail))
	h.warning.AppendChild(label)
	h.warning.AppendChild(detail)

	h.current = w
	h.visible = true
}

// ClearWarning removes the warning block.
func (h *warningHost) ClearWarning() {
	if h.warning != nil && h.warning.Parent != nil {
		h.warning.Parent.RemoveChild(h.warning)
	}
	h.warning = nil
	h.current = domain.Warning{}
	h.visible = false
}

// InputSurface is a textarea or text input. Its text is the control's value.
type InputSurface struct {
	warningHost
}

// Kind returns "input".
func (s *InputSurface) Kind() string { return "input" }

// Text returns the current value.
func (s *InputSurface) Text() string {
	if s.el.DataAtom == atom.Textarea {
		return textContent(s.el)
	}
	return attr(s.el, "value")
}

// SetText replaces the value.
func (s *InputSurface) SetText(text string) {
	if s.el.DataAtom == atom.Textarea {
		replaceChildren(s.el, text)
		return
	}
	setAttr(s.el, "value", text)
}

// EditableSurface is a contenteditable element. Its text is the element's text content.
type EditableSurface struct {
	warningHost
}

// Kind returns "editable".
func (s *EditableSurface) Kind() string { return "editable" }

// Text returns the text content.
func (s *EditableSurface) Text() string { return textContent(s.el) }

// SetText replaces the content with plain text.
func (s *EditableSurface) SetText(text string) { replaceChildren(s.el, text) }

func replaceChildren(n *html.Node, text string) {
	for c := n.FirstChild; c != nil; c = n.FirstChild {
		n.RemoveChild(c)
	}
	if text != "" {
		n.AppendChild(textNode(text))
	}
}
