package models

import (
	"encoding/json"
	"errors"
	"fmt"
)

type StepType string

const (
	StepNavigation StepType = "navigation"
	StepClick      StepType = "click"
	StepInput      StepType = "input"
	StepSubmit     StepType = "submit"
	StepWait       StepType = "wait"
	StepCustom     StepType = "custom"
	StepTabSwitch  StepType = "tab_switch"
	StepTabClosed  StepType = "tab_closed"
)

// PasswordMask replaces the recorded value of secret input fields.
const PasswordMask = "*****"

// ErrInvalidConfig marks a step whose config violates its required-field contract.
var ErrInvalidConfig = errors.New("invalid step config")

func ParseStepType(s string) (StepType, error) {
	switch t := StepType(s); t {
	case StepNavigation, StepClick, StepInput, StepSubmit, StepWait, StepCustom, StepTabSwitch, StepTabClosed:
		return t, nil
	}
	return "", fmt.Errorf("unknown step type: %s", s)
}

// StepConfig is the per-type payload of a Step. Only the config structs in this
// file implement it.
type StepConfig interface {
	StepType() StepType
	Validate() error
}

type NavigationConfig struct {
	URL   string `json:"url"`
	Title string `json:"title,omitempty"`
}

type ClickConfig struct {
	Selector   string            `json:"selector"`
	InnerText  string            `json:"innerText,omitempty"`
	Tag        string            `json:"tag,omitempty"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

type InputConfig struct {
	Selector   string `json:"selector"`
	Value      string `json:"value"`
	InputType  string `json:"type,omitempty"`
	IsPassword bool   `json:"isPassword"`
}

type SubmitConfig struct {
	Selector string            `json:"selector"`
	FormData map[string]string `json:"formData,omitempty"`
}

// WaitConfig holds either a duration in milliseconds or a selector to poll for.
type WaitConfig struct {
	Duration int64  `json:"duration,omitempty"`
	Selector string `json:"selector,omitempty"`
}

type CustomConfig struct {
	Code string `json:"code"`
}

type TabSwitchConfig struct {
	TabID string `json:"tabId"`
}

type TabClosedConfig struct {
	TabID string `json:"tabId"`
}

func (NavigationConfig) StepType() StepType { return StepNavigation }
func (ClickConfig) StepType() StepType      { return StepClick }
func (InputConfig) StepType() StepType      { return StepInput }
func (SubmitConfig) StepType() StepType     { return StepSubmit }
func (WaitConfig) StepType() StepType       { return StepWait }
func (CustomConfig) StepType() StepType     { return StepCustom }
func (TabSwitchConfig) StepType() StepType  { return StepTabSwitch }
func (TabClosedConfig) StepType() StepType  { return StepTabClosed }

func (c NavigationConfig) Validate() error {
	if c.URL == "" {
		return fmt.Errorf("%w: URL is required for navigation step", ErrInvalidConfig)
	}
	return nil
}

func (c ClickConfig) Validate() error {
	return requireSelector(c.Selector, StepClick)
}

func (c InputConfig) Validate() error {
	return requireSelector(c.Selector, StepInput)
}

func (c SubmitConfig) Validate() error {
	return requireSelector(c.Selector, StepSubmit)
}

func (c WaitConfig) Validate() error {
	switch {
	case c.Selector != "" && c.Duration > 0:
		return fmt.Errorf("%w: wait step takes either duration or selector, not both", ErrInvalidConfig)
	case c.Selector == "" && c.Duration <= 0:
		return fmt.Errorf("%w: Wait step requires either duration or selector", ErrInvalidConfig)
	}
	return nil
}

func (c CustomConfig) Validate() error {
	if c.Code == "" {
		return fmt.Errorf("%w: Custom action requires code", ErrInvalidConfig)
	}
	return nil
}

func (c TabSwitchConfig) Validate() error {
	return requireTab(c.TabID, StepTabSwitch)
}

func (c TabClosedConfig) Validate() error {
	return requireTab(c.TabID, StepTabClosed)
}

func requireSelector(selector string, t StepType) error {
	if selector == "" {
		return fmt.Errorf("%w: selector is required for %s step", ErrInvalidConfig, t)
	}
	return nil
}

func requireTab(id string, t StepType) error {
	if id == "" {
		return fmt.Errorf("%w: tabId is required for %s step", ErrInvalidConfig, t)
	}
	return nil
}

// Step is one recorded unit of interaction. Timestamp is Unix milliseconds.
type Step struct {
	ID        string     `json:"id"`
	Type      StepType   `json:"type"`
	Config    StepConfig `json:"config"`
	Timestamp int64      `json:"timestamp"`
}

// NewStep builds a step whose Type always agrees with its config.
func NewStep(id string, cfg StepConfig, timestamp int64) Step {
	return Step{ID: id, Type: cfg.StepType(), Config: cfg, Timestamp: timestamp}
}

// Validate checks the type tag against the config and the config's own contract.
func (s Step) Validate() error {
	if s.Config == nil {
		return fmt.Errorf("%w: step %s has no config", ErrInvalidConfig, s.ID)
	}
	if s.Config.StepType() != s.Type {
		return fmt.Errorf("%w: step %s is tagged %s but carries %s config", ErrInvalidConfig, s.ID, s.Type, s.Config.StepType())
	}
	return s.Config.Validate()
}

type stepWire struct {
	ID        string          `json:"id"`
	Type      StepType        `json:"type"`
	Config    json.RawMessage `json:"config"`
	Timestamp int64           `json:"timestamp"`
}

func (s *Step) UnmarshalJSON(data []byte) error {
	var w stepWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	t, err := ParseStepType(string(w.Type))
	if err != nil {
		return err
	}
	cfg, err := decodeConfig(t, w.Config)
	if err != nil {
		return fmt.Errorf("step %s: %w", w.ID, err)
	}
	*s = Step{ID: w.ID, Type: t, Config: cfg, Timestamp: w.Timestamp}
	return nil
}

func decodeConfig(t StepType, raw json.RawMessage) (StepConfig, error) {
	if len(raw) == 0 || string(raw) == "null" {
		raw = json.RawMessage("{}")
	}
	var cfg StepConfig
	var err error
	switch t {
	case StepNavigation:
		var c NavigationConfig
		err = json.Unmarshal(raw, &c)
		cfg = c
	case StepClick:
		var c ClickConfig
		err = json.Unmarshal(raw, &c)
		cfg = c
	case StepInput:
		var c InputConfig
		err = json.Unmarshal(raw, &c)
		cfg = c
	case StepSubmit:
		var c SubmitConfig
		err = json.Unmarshal(raw, &c)
		cfg = c
	case StepWait:
		var c WaitConfig
		err = json.Unmarshal(raw, &c)
		cfg = c
	case StepCustom:
		var c CustomConfig
		err = json.Unmarshal(raw, &c)
		cfg = c
	case StepTabSwitch:
		var c TabSwitchConfig
		err = json.Unmarshal(raw, &c)
		cfg = c
	case StepTabClosed:
		var c TabClosedConfig
		err = json.Unmarshal(raw, &c)
		cfg = c
	default:
		return nil, fmt.Errorf("unknown step type: %s", t)
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s config: %w", t, err)
	}
	return cfg, nil
}
