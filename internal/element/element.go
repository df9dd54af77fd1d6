// Package element provides headless stand-ins for the visual elements a
// scheme declares. Each keeps its properties in memory, publishes them
// through an accessor table and notifies observers on every write, so a
// renderer (or a test) can follow what bindings push into it.
package element

import (
	"maps"
	"slices"

	"github.com/pkg/errors"

	"github.com/matthewbaird/bindery/internal/keypath"
	"github.com/matthewbaird/bindery/internal/observe"
	"github.com/matthewbaird/bindery/internal/scheme"
)

// ErrNoAction is returned by Trigger when no action is wired.
var ErrNoAction = errors.New("element: no action")

// Properties every element accepts.
const (
	KeyHidden  = "hidden"
	KeyEnabled = "enabled"
	KeyAlpha   = "alpha"
)

// Element is implemented by every kind in this package.
type Element interface {
	keypath.Object
	observe.Observable
	Identifier() string
	Kind() string
	Snapshot() map[string]any
}

func init() {
	scheme.Register("Label", func() any { return NewLabel() })
	scheme.Register("Button", func() any { return NewButton() })
	scheme.Register("TextField", func() any { return NewTextField() })
	scheme.Register("Switch", func() any { return NewSwitch() })
	scheme.Register("ImageView", func() any { return NewImageView() })
	scheme.Register("ActivityIndicator", func() any { return NewActivityIndicator() })
	scheme.Register("View", func() any { return NewView() })
	scheme.Register("ListView", func() any { return NewListView() })
}

// Base holds the property store shared by all kinds.
type Base struct {
	observe.Subject

	id       string
	kind     string
	valueKey string
	keys     []string
	values   map[string]any
	action   func()
}

func (b *Base) init(kind, valueKey string, keys ...string) {
	b.kind = kind
	b.valueKey = valueKey
	b.keys = append(keys, KeyHidden, KeyEnabled, KeyAlpha)
	b.values = map[string]any{KeyEnabled: true, KeyAlpha: 1.0}
}

func (b *Base) Identifier() string      { return b.id }
func (b *Base) SetIdentifier(id string) { b.id = id }
func (b *Base) Kind() string            { return b.kind }

// Get returns the stored value of key.
func (b *Base) Get(key string) any {
	if key == "value" {
		key = b.valueKey
	}
	return b.values[key]
}

// Put stores v under key and notifies observers of key, and of "value"
// when key is the element's primary property.
func (b *Base) Put(key string, v any) {
	if key == "value" {
		key = b.valueKey
	}
	b.values[key] = v
	b.Notify(key)
	if key == b.valueKey {
		b.Notify("value")
	}
}

// SetAction wires the function run by Trigger.
func (b *Base) SetAction(fn func()) {
	b.action = fn
}

// Trigger runs the wired action, as a tap would.
func (b *Base) Trigger() error {
	if b.action == nil {
		return errors.Wrapf(ErrNoAction, "%s %q", b.kind, b.id)
	}
	if enabled, ok := b.values[KeyEnabled].(bool); ok && !enabled {
		return errors.Errorf("element: %s %q is disabled", b.kind, b.id)
	}
	b.action()
	return nil
}

// Snapshot copies the current property values.
func (b *Base) Snapshot() map[string]any {
	return maps.Clone(b.values)
}

// Keys lists the accepted properties.
func (b *Base) Keys() []string {
	return slices.Clone(b.keys)
}

func (b *Base) Properties() keypath.Properties {
	props := make(keypath.Properties, len(b.keys)+2)
	for _, key := range b.keys {
		props[key] = keypath.Property{
			Get: func() any { return b.values[key] },
			Set: func(v any) error { b.Put(key, v); return nil },
		}
	}
	props["identifier"] = keypath.Property{Get: func() any { return b.id }}
	if b.valueKey != "" {
		props["value"] = props[b.valueKey]
	}
	return props
}

// Label displays text.
type Label struct{ Base }

func NewLabel() *Label {
	l := &Label{}
	l.init("Label", "text", "text", "textColor", "font", "numberOfLines")
	return l
}

func (l *Label) Text() string { return keypath.String(l.Get("text")) }

// Button is a tappable title.
type Button struct{ Base }

func NewButton() *Button {
	b := &Button{}
	b.init("Button", "title", "title", "image", "selected")
	return b
}

// TextField is an editable single line of text.
type TextField struct{ Base }

func NewTextField() *TextField {
	t := &TextField{}
	t.init("TextField", "text", "text", "placeholder", "secure")
	return t
}

// Edit replaces the text as user input does, then fires the action.
func (f *TextField) Edit(text string) {
	f.Put("text", text)
	if f.action != nil {
		f.action()
	}
}

// Switch is an on/off toggle.
type Switch struct{ Base }

func NewSwitch() *Switch {
	s := &Switch{}
	s.init("Switch", "on", "on")
	return s
}

func (s *Switch) On() bool {
	on, _ := s.Get("on").(bool)
	return on
}

// Toggle flips the switch and fires the action.
func (s *Switch) Toggle() {
	s.Put("on", !s.On())
	if s.action != nil {
		s.action()
	}
}

// ImageView shows an image by URL or name. Loading is left to the renderer.
type ImageView struct{ Base }

func NewImageView() *ImageView {
	i := &ImageView{}
	i.init("ImageView", "image", "image", "contentMode")
	return i
}

// ActivityIndicator shows progress while animating.
type ActivityIndicator struct{ Base }

func NewActivityIndicator() *ActivityIndicator {
	a := &ActivityIndicator{}
	a.init("ActivityIndicator", "animating", "animating")
	return a
}
