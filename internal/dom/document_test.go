package dom

import (
	"errors"
	"strings"
	"testing"

	"github.com/kailas-cloud/toxfilter/internal/domain"
	"github.com/kailas-cloud/toxfilter/internal/domain/severity"
)

func mustParse(t *testing.T, s string) *Document {
	t.Helper()
	d, err := ParseString(s)
	if err != nil {
		t.Fatalf("ParseString: %v", err)
	}
	return d
}

func mustHTML(t *testing.T, d *Document) string {
	t.Helper()
	out, err := d.HTML()
	if err != nil {
		t.Fatalf("HTML: %v", err)
	}
	return out
}

func texts(units []Unit) []string {
	out := make([]string, len(units))
	for i, u := range units {
		out[i] = u.Text()
	}
	return out
}

func TestUnits_StableIDs(t *testing.T) {
	d := mustParse(t, `<p>one</p><p>two</p>`)

	first := d.Units(d.Body())
	second := d.Units(d.Body())
	if len(first) != 2 {
		t.Fatalf("got %d units: %v", len(first), texts(first))
	}
	for i := range first {
		if first[i].ID != second[i].ID {
			t.Errorf("unit %d id changed: %d -> %d", i, first[i].ID, second[i].ID)
		}
	}
	if first[0].ID == first[1].ID {
		t.Error("distinct nodes share an id")
	}
}

func TestEligible(t *testing.T) {
	d := mustParse(t, `<body>
<p>visible</p>
<script>var x = 1;</script>
<style>p{}</style>
<textarea>typed</textarea>
<span class="toxic-word-blur severity-low"><b>inside</b></span>
<span class="ai-blur-wrap"><span class="ai-blurred">ai</span></span>
</body>`)

	var eligible []string
	for _, u := range d.Units(d.Body()) {
		if d.Eligible(u) && strings.TrimSpace(u.Text()) != "" {
			eligible = append(eligible, u.Text())
		}
	}
	if len(eligible) != 1 || eligible[0] != "visible" {
		t.Errorf("eligible = %q, want [visible]", eligible)
	}
}

func TestEligible_HeadAndRawText(t *testing.T) {
	d := mustParse(t, `<html><head><title>you jerk</title><meta charset="utf-8"></head><body>
<p>visible</p>
<iframe>frame jerk</iframe>
<noembed>noembed jerk</noembed>
<noframes>noframes jerk</noframes>
<xmp>xmp jerk</xmp>
<plaintext>plain jerk`)

	var eligible []string
	for _, u := range d.Units(d.Root()) {
		if d.Eligible(u) && strings.TrimSpace(u.Text()) != "" {
			eligible = append(eligible, u.Text())
		}
	}
	if len(eligible) != 1 || eligible[0] != "visible" {
		t.Errorf("eligible = %q, want [visible]", eligible)
	}
}

func TestAppend_NotifiesSubscribers(t *testing.T) {
	d := mustParse(t, `<div id="feed"></div>`)

	var got []Mutation
	unsub := d.Subscribe(func(m Mutation) { got = append(got, m) })

	nodes, err := d.Append("feed", `<p>new post</p>text`)
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	if len(nodes) != 2 {
		t.Fatalf("got %d nodes, want 2", len(nodes))
	}
	if len(got) != 1 || len(got[0].Added) != 2 {
		t.Fatalf("mutations = %+v", got)
	}

	unsub()
	if _, err := d.Append("", `<p>more</p>`); err != nil {
		t.Fatalf("Append to body: %v", err)
	}
	if len(got) != 1 {
		t.Error("unsubscribed observer still notified")
	}

	if _, err := d.Append("missing", `<p>x</p>`); !errors.Is(err, domain.ErrNodeNotFound) {
		t.Errorf("err = %v, want ErrNodeNotFound", err)
	}
}

func TestRemove(t *testing.T) {
	d := mustParse(t, `<div id="a"><p>gone</p></div>`)
	units := d.Units(d.Body())

	var removed int
	d.Subscribe(func(m Mutation) { removed += len(m.Removed) })

	if err := d.Remove("a"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if removed != 1 {
		t.Errorf("removed = %d, want 1", removed)
	}
	if d.Attached(units[0].Node()) {
		t.Error("unit still attached")
	}
	if ids := d.ReleaseUnits(units[0].Node().Parent.Parent); len(ids) != 1 {
		t.Errorf("released %d ids, want 1", len(ids))
	}
	if err := d.Remove("a"); !errors.Is(err, domain.ErrNodeNotFound) {
		t.Errorf("err = %v, want ErrNodeNotFound", err)
	}
}

func TestWrapSpans(t *testing.T) {
	d := mustParse(t, `<p>you <b>x</b> idiot & fool</p>`)
	u := d.Units(d.Body())[2]
	if u.Text() != " idiot & fool" {
		t.Fatalf("unexpected unit %q", u.Text())
	}

	w, err := d.WrapSpans(u, []Span{
		{Start: 1, End: 6, Word: "idiot", Severity: severity.Medium},
		{Start: 9, End: 13, Word: "fool", Severity: severity.Low},
	})
	if err != nil {
		t.Fatalf("WrapSpans: %v", err)
	}
	if len(w.Annotations) != 2 {
		t.Fatalf("got %d annotations", len(w.Annotations))
	}
	if got := texts(w.Fragments); strings.Join(got, "|") != " |idiot| & |fool" {
		t.Errorf("fragments = %q", got)
	}

	out := mustHTML(t, d)
	for _, want := range []string{
		`<span data-toxic-scan="wrapped"> <span class="toxic-word-blur severity-medium" data-word="idiot"`,
		`title="Click to reveal">idiot</span> &amp; <span class="toxic-word-blur severity-low"`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if d.Attached(u.Node()) {
		t.Error("original unit still attached")
	}
	for _, f := range w.Fragments {
		if d.Eligible(f) {
			t.Errorf("fragment %q is eligible for rescanning", f.Text())
		}
	}

	if _, err := d.WrapSpans(u, nil); !errors.Is(err, domain.ErrUnitDetached) {
		t.Errorf("err = %v, want ErrUnitDetached", err)
	}
}

func TestWrapSpans_EscapesMarkup(t *testing.T) {
	d := mustParse(t, `<p>&lt;script&gt;alert(1)&lt;/script&gt; bad</p>`)
	u := d.Units(d.Body())[0]
	text := u.Text()
	start := strings.Index(text, "bad")

	if _, err := d.WrapSpans(u, []Span{{Start: start, End: start + 3, Word: "bad", Severity: severity.Low}}); err != nil {
		t.Fatalf("WrapSpans: %v", err)
	}
	out := mustHTML(t, d)
	if strings.Contains(out, "<script>") {
		t.Errorf("markup injected:\n%s", out)
	}
}

func TestAnnotation_SeverityAndReveal(t *testing.T) {
	d := mustParse(t, `<p>bad</p>`)
	u := d.Units(d.Body())[0]
	w, _ := d.WrapSpans(u, []Span{{Start: 0, End: 3, Word: "bad", Severity: severity.Low}})
	a := w.Annotations[0]

	if a.Severity() != severity.Low {
		t.Fatalf("Severity = %q", a.Severity())
	}
	if !a.SetSeverity(severity.High) || a.Severity() != severity.High {
		t.Errorf("upgrade failed: %q", a.Severity())
	}

	if err := d.Reveal(a.ID()); err != nil {
		t.Fatalf("Reveal: %v", err)
	}
	if err := d.Reveal(a.ID()); !errors.Is(err, domain.ErrAlreadyRevealed) {
		t.Errorf("second reveal err = %v", err)
	}
	if a.SetSeverity(severity.Medium) {
		t.Error("revealed annotation accepted a severity change")
	}
	if strings.Contains(mustHTML(t, d), ClassWordBlur) {
		t.Error("revealed annotation still blurred")
	}
	if err := d.Reveal("nope"); !errors.Is(err, domain.ErrAnnotationNotFound) {
		t.Errorf("err = %v, want ErrAnnotationNotFound", err)
	}
}

func TestWrapAI(t *testing.T) {
	d := mustParse(t, `<p>some implicitly hateful sentence here</p>`)
	u := d.Units(d.Body())[0]

	a, created, err := d.WrapAI(u, severity.Medium, 0.734)
	if err != nil {
		t.Fatalf("WrapAI: %v", err)
	}
	if a.Kind() != KindAI || a.Severity() != severity.Medium {
		t.Errorf("annotation = %s/%s", a.Kind(), a.Severity())
	}
	for _, c := range created {
		if d.Eligible(c) {
			t.Errorf("created unit %q is eligible", c.Text())
		}
	}
	out := mustHTML(t, d)
	if !strings.Contains(out, `<span class="ai-badge">AI 73%</span>`) {
		t.Errorf("badge missing:\n%s", out)
	}

	if err := d.Reveal(a.ID()); err != nil {
		t.Fatalf("Reveal: %v", err)
	}
	out = mustHTML(t, d)
	if strings.Contains(out, ClassAIBadge) || strings.Contains(out, ClassAIBlurred) {
		t.Errorf("reveal left redaction:\n%s", out)
	}
	if err := d.Reveal(a.ID()); !errors.Is(err, domain.ErrAlreadyRevealed) {
		t.Errorf("AI annotation revealed twice: %v", err)
	}

	if _, _, err := d.WrapAI(u, severity.Low, 0.5); !errors.Is(err, domain.ErrUnitDetached) {
		t.Errorf("err = %v, want ErrUnitDetached", err)
	}
}
