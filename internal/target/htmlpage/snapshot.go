package htmlpage

import (
	"strings"

	"golang.org/x/net/html"

	"webflowwizard/engine/internal/selector"
)

// Snapshot captures n and its element ancestors the way the recording
// script does in a live browser.
func Snapshot(n *html.Node) *selector.Element {
	if n == nil || n.Type != html.ElementNode {
		return nil
	}
	el := &selector.Element{Tag: strings.ToLower(n.Data)}
	for _, a := range n.Attr {
		el.Attributes = append(el.Attributes, selector.Attribute{Name: a.Key, Value: a.Val})
		switch a.Key {
		case "id":
			el.ID = a.Val
		case "class":
			el.Classes = strings.Fields(a.Val)
		}
	}

	index := 0
	if parent := n.Parent; parent != nil {
		for c := parent.FirstChild; c != nil; c = c.NextSibling {
			if c.Type != html.ElementNode {
				continue
			}
			index++
			if c == n {
				el.Index = index
			} else if c.Data == n.Data {
				el.SameTagSiblings = true
			}
		}
		el.Parent = Snapshot(parent)
	}
	if el.Index == 0 {
		el.Index = 1
	}
	return el
}
