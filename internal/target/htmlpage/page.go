// Package htmlpage is an in-memory page backed by goquery. It implements the
// replay target and the selector oracle without a browser, which is what the
// offline replay mode and the package tests drive.
package htmlpage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"

	"webflowwizard/engine/internal/executor"
	"webflowwizard/engine/internal/models"
	"webflowwizard/engine/internal/selector"
)

var (
	ErrNoLoader      = errors.New("page has no loader")
	ErrNoElement     = errors.New("no element matches selector")
	ErrScriptMissing = errors.New("custom code is not available offline")
)

// Loader fetches the document behind a URL.
type Loader interface {
	Load(ctx context.Context, url string) (io.ReadCloser, error)
}

// MapLoader serves fixed documents keyed by absolute URL.
type MapLoader map[string]string

func (m MapLoader) Load(_ context.Context, u string) (io.ReadCloser, error) {
	doc, ok := m[u]
	if !ok {
		return nil, fmt.Errorf("no document for %s", u)
	}
	return io.NopCloser(strings.NewReader(doc)), nil
}

type httpLoader struct {
	client *http.Client
}

// HTTPLoader fetches documents with client, or http.DefaultClient when nil.
func HTTPLoader(client *http.Client) Loader {
	if client == nil {
		client = http.DefaultClient
	}
	return &httpLoader{client: client}
}

func (l *httpLoader) Load(ctx context.Context, u string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	resp, err := l.client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		resp.Body.Close()
		return nil, fmt.Errorf("GET %s: %s", u, resp.Status)
	}
	return resp.Body, nil
}

// Script stands in for a custom code snippet; Evaluate looks it up by the
// exact code string.
type Script func(ctx context.Context, p *Page, step models.Step, inv executor.Invocation) error

// Dispatched is one action the page received.
type Dispatched struct {
	Action   executor.Action
	Selector string
	Value    string
}

type Page struct {
	mu       sync.Mutex
	doc      *goquery.Document
	url      string
	loader   Loader
	waiters  map[chan struct{}]struct{}
	stalled  bool
	occluded []string
	scripts  map[string]Script
	log      []Dispatched
}

// New parses a static document.
func New(document string) (*Page, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(document))
	if err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}
	return newPage(doc), nil
}

// Open loads u through loader.
func Open(ctx context.Context, loader Loader, u string) (*Page, error) {
	p := newPage(nil)
	p.loader = loader
	if err := p.load(ctx, u); err != nil {
		return nil, err
	}
	return p, nil
}

func newPage(doc *goquery.Document) *Page {
	return &Page{
		doc:     doc,
		waiters: make(map[chan struct{}]struct{}),
		scripts: make(map[string]Script),
	}
}

func (p *Page) SetLoader(l Loader) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.loader = l
}

// Stall stops load signals from firing, as for a page that never finishes
// loading.
func (p *Page) Stall() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stalled = true
}

// Occlude makes elements matching sel report as covered by another element.
func (p *Page) Occlude(sel string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.occluded = append(p.occluded, sel)
}

func (p *Page) RegisterScript(code string, fn Script) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.scripts[code] = fn
}

func (p *Page) URL() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.url
}

// Dispatched returns the actions received so far.
func (p *Page) Dispatched() []Dispatched {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Dispatched(nil), p.log...)
}

func (p *Page) Count(_ context.Context, sel string) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	found, err := p.findLocked(sel)
	if err != nil {
		return 0, err
	}
	return found.Length(), nil
}

func (p *Page) Exists(ctx context.Context, sel string) (bool, error) {
	n, err := p.Count(ctx, sel)
	return n > 0, err
}

func (p *Page) ScrollIntoView(_ context.Context, sel string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, err := p.firstLocked(sel)
	return err
}

// Clickable reports false for hidden elements, elements under a hidden
// ancestor, and elements registered with Occlude.
func (p *Page) Clickable(_ context.Context, sel string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	el, err := p.firstLocked(sel)
	if err != nil {
		return false, err
	}
	for n := el.Get(0); n != nil; n = n.Parent {
		if n.Type == html.ElementNode && hidden(n) {
			return false, nil
		}
	}
	for _, o := range p.occluded {
		if found, err := p.findLocked(o); err == nil && found.IsSelection(el) {
			return false, nil
		}
	}
	return true, nil
}

func (p *Page) Dispatch(ctx context.Context, action executor.Action, sel, value string) error {
	p.mu.Lock()
	el, err := p.firstLocked(sel)
	if err != nil {
		p.mu.Unlock()
		return err
	}
	p.log = append(p.log, Dispatched{Action: action, Selector: sel, Value: value})

	var follow string
	switch action {
	case executor.ActionClick:
		if goquery.NodeName(el) == "a" {
			follow, _ = el.Attr("href")
		} else if isSubmitButton(el) {
			follow = p.formTargetLocked(el.Closest("form"))
		}
	case executor.ActionClear:
		setValue(el, "")
	case executor.ActionAppend:
		setValue(el, currentValue(el)+value)
	case executor.ActionChange:
	case executor.ActionSubmit:
		form := el
		if goquery.NodeName(el) != "form" {
			form = el.Closest("form")
		}
		follow = p.formTargetLocked(form)
	default:
		p.mu.Unlock()
		return fmt.Errorf("unsupported action %q", action)
	}
	p.mu.Unlock()

	if follow == "" {
		return nil
	}
	return p.Navigate(ctx, follow)
}

// Navigate loads u, resolved against the current URL, and fires the load
// signal. Without a loader only the signal fires.
func (p *Page) Navigate(ctx context.Context, u string) error {
	p.mu.Lock()
	target := p.resolveLocked(u)
	hasLoader := p.loader != nil
	p.mu.Unlock()

	if !hasLoader {
		p.mu.Lock()
		p.url = target
		p.mu.Unlock()
		p.fireLoad()
		return nil
	}
	return p.load(ctx, target)
}

// LoadSignal returns a channel closed by the next completed load. The
// subscription is dropped when ctx ends.
func (p *Page) LoadSignal(ctx context.Context) (<-chan struct{}, error) {
	ch := make(chan struct{})
	p.mu.Lock()
	p.waiters[ch] = struct{}{}
	p.mu.Unlock()

	go func() {
		<-ctx.Done()
		p.mu.Lock()
		delete(p.waiters, ch)
		p.mu.Unlock()
	}()
	return ch, nil
}

func (p *Page) Evaluate(ctx context.Context, code string, step models.Step, inv executor.Invocation) error {
	p.mu.Lock()
	fn, ok := p.scripts[code]
	p.mu.Unlock()
	if !ok {
		return ErrScriptMissing
	}
	return fn(ctx, p, step, inv)
}

// Value reads the current value of a form control.
func (p *Page) Value(sel string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	el, err := p.firstLocked(sel)
	if err != nil {
		return "", err
	}
	return currentValue(el), nil
}

// Text returns the trimmed text content of the first match.
func (p *Page) Text(sel string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	el, err := p.firstLocked(sel)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(el.Text()), nil
}

// Element snapshots the first element matching sel with its ancestors.
func (p *Page) Element(sel string) (*selector.Element, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	el, err := p.firstLocked(sel)
	if err != nil {
		return nil, err
	}
	return Snapshot(el.Get(0)), nil
}

func (p *Page) load(ctx context.Context, u string) error {
	p.mu.Lock()
	loader := p.loader
	p.mu.Unlock()
	if loader == nil {
		return ErrNoLoader
	}

	body, err := loader.Load(ctx, u)
	if err != nil {
		return fmt.Errorf("load %s: %w", u, err)
	}
	defer body.Close()
	doc, err := goquery.NewDocumentFromReader(body)
	if err != nil {
		return fmt.Errorf("parse %s: %w", u, err)
	}

	p.mu.Lock()
	p.doc = doc
	p.url = u
	p.mu.Unlock()
	p.fireLoad()
	return nil
}

func (p *Page) fireLoad() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stalled {
		return
	}
	for ch := range p.waiters {
		close(ch)
		delete(p.waiters, ch)
	}
}

func (p *Page) findLocked(sel string) (*goquery.Selection, error) {
	if _, err := cascadia.Compile(sel); err != nil {
		return nil, fmt.Errorf("invalid selector %q: %w", sel, err)
	}
	if p.doc == nil {
		return nil, ErrNoLoader
	}
	return p.doc.Find(sel), nil
}

func (p *Page) firstLocked(sel string) (*goquery.Selection, error) {
	found, err := p.findLocked(sel)
	if err != nil {
		return nil, err
	}
	if found.Length() == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoElement, sel)
	}
	return found.First(), nil
}

func (p *Page) formTargetLocked(form *goquery.Selection) string {
	if form.Length() == 0 {
		return ""
	}
	if action, ok := form.Attr("action"); ok && action != "" {
		return action
	}
	if p.url != "" {
		return p.url
	}
	return "about:blank"
}

func (p *Page) resolveLocked(u string) string {
	if p.url == "" {
		return u
	}
	base, err := url.Parse(p.url)
	if err != nil {
		return u
	}
	ref, err := url.Parse(u)
	if err != nil {
		return u
	}
	return base.ResolveReference(ref).String()
}

func hidden(n *html.Node) bool {
	for _, a := range n.Attr {
		switch a.Key {
		case "hidden":
			return true
		case "style":
			style := strings.ReplaceAll(strings.ToLower(a.Val), " ", "")
			if strings.Contains(style, "display:none") || strings.Contains(style, "visibility:hidden") {
				return true
			}
		}
	}
	return false
}

func isSubmitButton(el *goquery.Selection) bool {
	typ, _ := el.Attr("type")
	switch goquery.NodeName(el) {
	case "button":
		return typ == "" || typ == "submit"
	case "input":
		return typ == "submit"
	}
	return false
}

func currentValue(el *goquery.Selection) string {
	if goquery.NodeName(el) == "textarea" {
		return el.Text()
	}
	v, _ := el.Attr("value")
	return v
}

func setValue(el *goquery.Selection, v string) {
	if goquery.NodeName(el) == "textarea" {
		el.SetText(v)
		return
	}
	el.SetAttr("value", v)
}
