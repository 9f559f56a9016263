package selector_test

import (
	"context"
	"errors"
	"testing"

	"webflowwizard/engine/internal/selector"
	"webflowwizard/engine/internal/target/htmlpage"
)

const fixture = `<!doctype html>
<html><body>
  <div id="app">
    <form>
      <input name="email" class="field">
      <input name="email" class="field">
      <input name="user" class="field">
      <button id="submit-btn" class="btn btn_primary">Go</button>
      <button data-testid="cancel" data-role="x">Cancel</button>
    </form>
    <ul class="menu">
      <li class="item random-83hd">One</li>
      <li class="item">Two</li>
    </ul>
    <p class="note css-1x2y3z">hello</p>
  </div>
  <section>
    <span>a</span><span>b</span>
    <div class="dup"><em>x</em></div>
    <div class="dup"><em>y</em></div>
  </section>
  <span id="dupe">1</span><span id="dupe">2</span>
</body></html>`

func newTestPage(t *testing.T) *htmlpage.Page {
	t.Helper()
	p, err := htmlpage.New(fixture)
	if err != nil {
		t.Fatalf("parse fixture: %v", err)
	}
	return p
}

func synthesize(t *testing.T, p *htmlpage.Page, query string) string {
	t.Helper()
	el, err := p.Element(query)
	if err != nil {
		t.Fatalf("element %q: %v", query, err)
	}
	return selector.NewSynthesizer(p, nil).Synthesize(context.Background(), el)
}

func TestSynthesizeStrategies(t *testing.T) {
	t.Parallel()

	p := newTestPage(t)
	tests := []struct {
		name  string
		query string
		want  string
	}{
		{"unique id", "#submit-btn", "#submit-btn"},
		{"unique name", "input[name=user]", `input[name="user"]`},
		{"first data attribute", "[data-role]", `[data-testid="cancel"]`},
		{"volatile classes dropped", "p", ".note"},
		{"id ancestor anchors path", "li.random-83hd", "div#app > ul > li:nth-child(1)"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := synthesize(t, p, tt.query); got != tt.want {
				t.Fatalf("Synthesize(%s) = %q, want %q", tt.query, got, tt.want)
			}
		})
	}
}

func TestSynthesizeFallbackResolvesToElement(t *testing.T) {
	t.Parallel()

	p := newTestPage(t)
	for _, query := range []string{"section > span:nth-child(2)", "section > div:nth-child(4) > em", "input[name=email]"} {
		sel := synthesize(t, p, query)
		if sel == "" {
			t.Fatalf("%s: empty selector", query)
		}
		n, err := p.Count(context.Background(), sel)
		if err != nil || n != 1 {
			t.Fatalf("%s: selector %q matched %d elements (%v)", query, sel, n, err)
		}
		want, _ := p.Text(query)
		got, _ := p.Text(sel)
		if got != want {
			t.Fatalf("%s: selector %q resolved to %q, want %q", query, sel, got, want)
		}
	}
}

func TestSynthesizeSkipsDuplicateIDs(t *testing.T) {
	t.Parallel()

	p := newTestPage(t)
	sel := synthesize(t, p, "#dupe")
	if sel == "#dupe" {
		t.Fatal("non-unique id must not be accepted")
	}
	if n, _ := p.Count(context.Background(), sel); n != 1 {
		t.Fatalf("fallback %q matched %d elements", sel, n)
	}
}

type failingQuerier struct{}

func (failingQuerier) Count(context.Context, string) (int, error) {
	return 0, errors.New("page gone")
}

func TestSynthesizeTreatsQueryErrorsAsNotUnique(t *testing.T) {
	t.Parallel()

	body := &selector.Element{Tag: "body", Index: 2, Parent: &selector.Element{Tag: "html", Index: 1}}
	el := &selector.Element{Tag: "a", ID: "home", Index: 3, SameTagSiblings: true, Parent: body}

	got := selector.NewSynthesizer(failingQuerier{}, nil).Synthesize(context.Background(), el)
	if want := "html > body > a:nth-child(3)"; got != want {
		t.Fatalf("Synthesize = %q, want %q", got, want)
	}
}

func TestCustomVolatilePatterns(t *testing.T) {
	t.Parallel()

	patterns, err := selector.CompilePatterns([]string{`^note$`})
	if err != nil {
		t.Fatalf("CompilePatterns: %v", err)
	}
	p := newTestPage(t)
	el, _ := p.Element("p")
	got := selector.NewSynthesizer(p, patterns).Synthesize(context.Background(), el)
	if got != ".css-1x2y3z" {
		t.Fatalf("Synthesize = %q", got)
	}

	if _, err := selector.CompilePatterns([]string{"("}); err == nil {
		t.Fatal("expected error for invalid pattern")
	}
}

func TestEscape(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"plain":   "plain",
		"1abc":    `\31 abc`,
		"-1x":     `-\31 x`,
		"-":       `\-`,
		"a.b":     `a\.b`,
		"a:b c":   `a\:b\ c`,
		"naïve":   "naïve",
		"x_y-z":   "x_y-z",
		"tab\tin": `tab\9 in`,
	}
	for in, want := range tests {
		if got := selector.Escape(in); got != want {
			t.Errorf("Escape(%q) = %q, want %q", in, got, want)
		}
	}
	if got := selector.QuoteAttr(`say "hi"`); got != `"say \"hi\""` {
		t.Errorf("QuoteAttr = %s", got)
	}
}
