package scheme

import (
	"encoding/json"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_KeepsDeclarationOrder(t *testing.T) {
	doc := mustParse(t, `{"S": {
	  "objects":  {"zeta": {"type": "Object"}, "alpha": {"type": "Object"}, "mid": {"type": "Object"}},
	  "elements": {"b": {"outlets": {"items": ["zeta", "alpha"], "one": "mid"}}, "a": {}}
	}}`)
	s, ok := doc.Screen("S")
	require.True(t, ok)
	assert.Equal(t, []string{"zeta", "alpha", "mid"}, s.Objects.Order)
	assert.Equal(t, []string{"b", "a"}, s.Elements.Order)

	b, _ := s.Elements.Get("b")
	assert.Equal(t, Outlet{IDs: []string{"zeta", "alpha"}, Multi: true}, b.Outlets["items"])
	assert.Equal(t, Outlet{IDs: []string{"mid"}}, b.Outlets["one"])

	out, err := json.Marshal(s.Objects)
	require.NoError(t, err)
	assert.JSONEq(t, `{"zeta":{"type":"Object"},"alpha":{"type":"Object"},"mid":{"type":"Object"}}`, string(out))
	assert.Regexp(t, `^\{"zeta".*"alpha".*"mid"`, string(out))

	assert.Equal(t, []string{"S"}, doc.ScreenIDs())
	_, ok = doc.Screen("T")
	assert.False(t, ok)
}

func TestParse_Rejects(t *testing.T) {
	for name, src := range map[string]string{
		"not json":         `{"S": `,
		"outlet number":    `{"S": {"objects": {"a": {"outlets": {"x": 3}}}}}`,
		"order not int":    `{"S": {"elements": {"a": {"bindings": [{"to": "text", "order": "first"}]}}}}`,
		"unknown decl key": `{"S": {"objects": {"a": {"kind": "Object"}}}}`,
		"action no target": `{"S": {"elements": {"a": {"action": {"selector": "go"}}}}}`,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(src))
			require.Error(t, err)
			assert.Equal(t, ErrInvalid, errors.Cause(err))
		})
	}
}

func TestParse_UnknownBindingOptionsPass(t *testing.T) {
	doc := mustParse(t, `{"S": {"elements": {"a": {
	  "bindings": [{"to": "text", "from": "x", "animated": true}],
	  "evals": {"text": {"format": "%@", "locale": "fr"}}
	}}}}`)
	s, _ := doc.Screen("S")
	a, _ := s.Elements.Get("a")
	assert.Equal(t, true, a.Bindings[0]["animated"])
}
