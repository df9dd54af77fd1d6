// Package scheme turns JSON scheme documents into a wired object graph.
//
// A document is keyed by screen identifier. Each screen declares non-visual
// objects and the UI elements they drive:
//
//	{"Inbox": {
//	    "objects":  {"messages": {"type": "ManagedObjects", "attrs": {"entity": "message"}}},
//	    "elements": {"list": {"outlets": {"provider": "messages"},
//	                          "bindings": [{"to": "hidden", "from": "messages.totalCount",
//	                                        "predicateFormat": "self = 0"}]}}
//	}}
package scheme

import (
	"bytes"
	"encoding/json"
	"sort"

	"github.com/pkg/errors"
)

// Document is a parsed scheme file.
type Document struct {
	Screens map[string]*Screen
	raw     []byte
}

// Screen is the declaration set for one screen.
type Screen struct {
	Objects  Declarations `json:"objects"`
	Elements Declarations `json:"elements"`
}

// Declaration describes one object or element.
type Declaration struct {
	Type       string                    `json:"type,omitempty"`
	Alias      string                    `json:"alias,omitempty"`
	Name       string                    `json:"name,omitempty"`
	Dependency string                    `json:"dependency,omitempty"`
	Attrs      map[string]any            `json:"attrs,omitempty"`
	Evals      map[string]map[string]any `json:"evals,omitempty"`
	Outlets    map[string]Outlet         `json:"outlets,omitempty"`
	Bindings   []map[string]any          `json:"bindings,omitempty"`
	Action     *Action                   `json:"action,omitempty"`
	Layout     map[string]float64        `json:"layout,omitempty"`
}

// Action wires an element's trigger to a selector on a target.
type Action struct {
	Target   string `json:"target"`
	Selector string `json:"selector"`
	Args     []any  `json:"args,omitempty"`
}

// Outlet names one or more targets. Multi is set when the JSON value was an
// array, which selects array-accumulating assignment.
type Outlet struct {
	IDs   []string
	Multi bool
}

func (o *Outlet) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '[' {
		o.Multi = true
		return json.Unmarshal(b, &o.IDs)
	}
	var id string
	if err := json.Unmarshal(b, &id); err != nil {
		return errors.Wrap(err, "outlet must be an identifier or a list of identifiers")
	}
	o.IDs = []string{id}
	return nil
}

func (o Outlet) MarshalJSON() ([]byte, error) {
	if o.Multi {
		return json.Marshal(o.IDs)
	}
	if len(o.IDs) == 0 {
		return []byte(`""`), nil
	}
	return json.Marshal(o.IDs[0])
}

// Declarations keeps declarations in document order.
type Declarations struct {
	Order []string
	ByID  map[string]*Declaration
}

// Get returns the declaration for id.
func (d Declarations) Get(id string) (*Declaration, bool) {
	decl, ok := d.ByID[id]
	return decl, ok
}

// Len returns the number of declarations.
func (d Declarations) Len() int { return len(d.Order) }

// Add appends a declaration. An existing id keeps its position.
func (d *Declarations) Add(id string, decl *Declaration) {
	if d.ByID == nil {
		d.ByID = make(map[string]*Declaration)
	}
	if _, ok := d.ByID[id]; !ok {
		d.Order = append(d.Order, id)
	}
	d.ByID[id] = decl
}

func (d *Declarations) UnmarshalJSON(b []byte) error {
	dec := json.NewDecoder(bytes.NewReader(b))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if tok == nil {
		return nil
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return errors.Errorf("declarations must be an object, got %v", tok)
	}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		id := keyTok.(string)
		decl := &Declaration{}
		if err := dec.Decode(decl); err != nil {
			return errors.Wrapf(err, "declaration %q", id)
		}
		d.Add(id, decl)
	}
	_, err = dec.Token()
	return err
}

func (d Declarations) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, id := range d.Order {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, _ := json.Marshal(id)
		v, err := json.Marshal(d.ByID[id])
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Parse validates and decodes a scheme document.
func Parse(data []byte) (*Document, error) {
	if err := Validate(data); err != nil {
		return nil, err
	}
	var screens map[string]*Screen
	if err := json.Unmarshal(data, &screens); err != nil {
		return nil, errors.Wrap(err, "decode scheme")
	}
	return &Document{Screens: screens, raw: append([]byte(nil), data...)}, nil
}

// Screen returns the declarations for id.
func (d *Document) Screen(id string) (*Screen, bool) {
	s, ok := d.Screens[id]
	return s, ok && s != nil
}

// ScreenIDs lists the screens of the document.
func (d *Document) ScreenIDs() []string {
	ids := make([]string, 0, len(d.Screens))
	for id := range d.Screens {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Bytes returns the source the document was parsed from.
func (d *Document) Bytes() []byte { return d.raw }
