// Package selector builds CSS selectors that re-identify a recorded element.
//
// Candidates are tried in a fixed order (id, name, first data attribute,
// stable classes) and the first one that matches exactly one element in the
// current document wins. The structural path is the terminal fallback.
package selector

import (
	"context"
	"fmt"
	"regexp"
	"strings"
)

// Attribute is one attribute of a captured element, in document order.
type Attribute struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Element is a snapshot of a DOM element and its ancestor chain. Index is the
// 1-based position among the parent's element children.
type Element struct {
	Tag             string      `json:"tag"`
	ID              string      `json:"id,omitempty"`
	Attributes      []Attribute `json:"attributes,omitempty"`
	Classes         []string    `json:"classes,omitempty"`
	Index           int         `json:"index"`
	SameTagSiblings bool        `json:"sameTagSiblings"`
	Parent          *Element    `json:"parent,omitempty"`
}

// Attr returns the value of the named attribute.
func (e *Element) Attr(name string) (string, bool) {
	for _, a := range e.Attributes {
		if a.Name == name {
			return a.Value, true
		}
	}
	return "", false
}

// Querier reports how many elements of the current document match a selector.
type Querier interface {
	Count(ctx context.Context, selector string) (int, error)
}

// DefaultVolatilePatterns match class names generated by frameworks or build
// tooling that will not survive a rebuild or reload.
var DefaultVolatilePatterns = []string{
	`^random-`,
	`_`,
	`^css-[0-9a-z]{4,}$`,
	`^jsx-[0-9]+$`,
	`^sc-[A-Za-z0-9]{4,}$`,
}

func CompilePatterns(patterns []string) ([]*regexp.Regexp, error) {
	out := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("volatile class pattern %q: %w", p, err)
		}
		out = append(out, re)
	}
	return out, nil
}

type Synthesizer struct {
	querier  Querier
	volatile []*regexp.Regexp
}

// NewSynthesizer returns a synthesizer bound to one document. A nil volatile
// list selects DefaultVolatilePatterns.
func NewSynthesizer(q Querier, volatile []*regexp.Regexp) *Synthesizer {
	if volatile == nil {
		volatile, _ = CompilePatterns(DefaultVolatilePatterns)
	}
	return &Synthesizer{querier: q, volatile: volatile}
}

type strategy func(*Element) string

// Synthesize returns a non-empty selector for el. When any candidate resolves
// to exactly one element at call time that candidate is returned.
func (s *Synthesizer) Synthesize(ctx context.Context, el *Element) string {
	strategies := []strategy{
		idSelector,
		nameSelector,
		dataAttributeSelector,
		s.classSelector,
		anchoredPathSelector,
	}
	for _, fn := range strategies {
		if sel := fn(el); sel != "" && s.unique(ctx, sel) {
			return sel
		}
	}
	return PathSelector(el)
}

func (s *Synthesizer) unique(ctx context.Context, sel string) bool {
	n, err := s.querier.Count(ctx, sel)
	return err == nil && n == 1
}

func idSelector(el *Element) string {
	if el.ID == "" {
		return ""
	}
	return "#" + Escape(el.ID)
}

func nameSelector(el *Element) string {
	name, ok := el.Attr("name")
	if !ok || name == "" {
		return ""
	}
	return fmt.Sprintf("%s[name=%s]", strings.ToLower(el.Tag), QuoteAttr(name))
}

func dataAttributeSelector(el *Element) string {
	for _, a := range el.Attributes {
		if strings.HasPrefix(a.Name, "data-") {
			return fmt.Sprintf("[%s=%s]", Escape(a.Name), QuoteAttr(a.Value))
		}
	}
	return ""
}

func (s *Synthesizer) classSelector(el *Element) string {
	var b strings.Builder
	for _, c := range el.Classes {
		if c == "" || s.isVolatile(c) {
			continue
		}
		b.WriteByte('.')
		b.WriteString(Escape(c))
	}
	return b.String()
}

func (s *Synthesizer) isVolatile(class string) bool {
	for _, re := range s.volatile {
		if re.MatchString(class) {
			return true
		}
	}
	return false
}

func anchoredPathSelector(el *Element) string {
	return pathSelector(el, true)
}

// PathSelector walks from el to the document root and never fails.
func PathSelector(el *Element) string {
	return pathSelector(el, false)
}

// pathSelector emits one level per ancestor joined by child combinators. With
// stopAtID the walk ends at the first ancestor carrying an id.
func pathSelector(el *Element, stopAtID bool) string {
	var levels []string
	for cur := el; cur != nil; cur = cur.Parent {
		tag := strings.ToLower(cur.Tag)
		if tag == "" {
			tag = "*"
		}
		if stopAtID && cur != el && cur.ID != "" {
			levels = append(levels, tag+"#"+Escape(cur.ID))
			break
		}
		if cur.SameTagSiblings && cur.Index > 0 {
			tag = fmt.Sprintf("%s:nth-child(%d)", tag, cur.Index)
		}
		levels = append(levels, tag)
	}
	for i, j := 0, len(levels)-1; i < j; i, j = i+1, j-1 {
		levels[i], levels[j] = levels[j], levels[i]
	}
	return strings.Join(levels, " > ")
}
