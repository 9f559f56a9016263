package recorder

import (
	"strings"

	"webflowwizard/engine/internal/models"
	"webflowwizard/engine/internal/selector"
)

type EventType string

const (
	EventClick      EventType = "click"
	EventDblClick   EventType = "dblclick"
	EventInput      EventType = "input"
	EventSubmit     EventType = "submit"
	EventKeydown    EventType = "keydown"
	EventNavigation EventType = "navigation"
	EventTabSwitch  EventType = "tab_switch"
	EventTabClosed  EventType = "tab_closed"
)

// FormField is one named control of a submitted form.
type FormField struct {
	Name  string `json:"name"`
	Value string `json:"value"`
	Type  string `json:"type,omitempty"`
}

// RawEvent is what the capture layer reports for one page or browser event.
// Timestamp is Unix milliseconds; zero means "now".
type RawEvent struct {
	Type      EventType         `json:"type"`
	Target    *selector.Element `json:"target,omitempty"`
	InnerText string            `json:"innerText,omitempty"`
	Value     string            `json:"value,omitempty"`
	InputType string            `json:"inputType,omitempty"`
	Form      []FormField       `json:"form,omitempty"`
	Key       string            `json:"key,omitempty"`
	CtrlKey   bool              `json:"ctrlKey,omitempty"`
	MetaKey   bool              `json:"metaKey,omitempty"`
	AltKey    bool              `json:"altKey,omitempty"`
	ShiftKey  bool              `json:"shiftKey,omitempty"`
	URL       string            `json:"url,omitempty"`
	Title     string            `json:"title,omitempty"`
	TabID     string            `json:"tabId,omitempty"`
	Timestamp int64             `json:"timestamp,omitempty"`
}

func isSecret(inputType string) bool {
	return strings.EqualFold(inputType, "password")
}

// recordedChord reports whether a keydown is one of the kept chords: Enter,
// Escape, copy and paste.
func recordedChord(ev RawEvent) bool {
	switch ev.Key {
	case "Enter", "Escape":
		return true
	case "c", "C", "v", "V":
		return ev.CtrlKey || ev.MetaKey
	}
	return false
}

// elementAttributes drops the same volatile names the selector rules ignore.
func elementAttributes(el *selector.Element) map[string]string {
	if el == nil || len(el.Attributes) == 0 {
		return nil
	}
	attrs := make(map[string]string, len(el.Attributes))
	for _, a := range el.Attributes {
		if strings.HasPrefix(a.Name, "random-") || strings.Contains(a.Name, "_") {
			continue
		}
		attrs[a.Name] = a.Value
	}
	return attrs
}

func formData(fields []FormField) map[string]string {
	if len(fields) == 0 {
		return nil
	}
	data := make(map[string]string, len(fields))
	for _, f := range fields {
		if f.Name == "" || f.Value == "" {
			continue
		}
		if isSecret(f.Type) {
			data[f.Name] = models.PasswordMask
			continue
		}
		data[f.Name] = f.Value
	}
	return data
}
