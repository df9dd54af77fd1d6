package action

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/matthewbaird/bindery/internal/evaluation"
	"github.com/matthewbaird/bindery/internal/keypath"
)

var (
	// ErrNoResult is the data error of a response without the configured
	// result.
	ErrNoResult = errors.New("action: response has no result")
	// ErrCanceled is reported when a request is cancelled.
	ErrCanceled = errors.New("action: canceled")
	// ErrUnknownAction is returned for actions without a definition.
	ErrUnknownAction = errors.New("action: unknown action")
)

// Request is one dispatch of an action.
type Request struct {
	Action string
	Params any
	// Ready is called once the response headers arrived. It may be nil.
	Ready func()
}

// Performer executes action requests. Perform blocks until the result is
// known and is called off the loop.
type Performer interface {
	Perform(ctx context.Context, req Request) (any, error)
}

// PerformerFunc adapts a function to Performer.
type PerformerFunc func(ctx context.Context, req Request) (any, error)

func (f PerformerFunc) Perform(ctx context.Context, req Request) (any, error) {
	return f(ctx, req)
}

// TransportError is a non-success HTTP response.
type TransportError struct {
	Status  int
	Payload any
}

func (e *TransportError) Error() string {
	if e.Payload != nil {
		return fmt.Sprintf("action: server returned %d: %v", e.Status, e.Payload)
	}
	return fmt.Sprintf("action: server returned %d", e.Status)
}

// Definition describes how an action maps onto an HTTP request. Path may
// contain $tokens resolved against the request parameters.
type Definition struct {
	Method  string            `yaml:"method" json:"method"`
	Path    string            `yaml:"path" json:"path"`
	Headers map[string]string `yaml:"headers,omitempty" json:"headers,omitempty"`
	// Body is "json" (default for methods with a body), "form" or "query".
	Body string `yaml:"body,omitempty" json:"body,omitempty"`
	// ResultKeyPath selects the result inside the decoded response.
	ResultKeyPath string `yaml:"result,omitempty" json:"result,omitempty"`
	// RequireResult turns a missing result into ErrNoResult.
	RequireResult bool `yaml:"requireResult,omitempty" json:"requireResult,omitempty"`
	// ErrorKeyPath selects the server error payload of failed responses.
	ErrorKeyPath string `yaml:"error,omitempty" json:"error,omitempty"`
}

// Definitions is the action configuration document.
type Definitions struct {
	BaseURL string                `yaml:"baseURL" json:"baseURL"`
	Headers map[string]string     `yaml:"headers,omitempty" json:"headers,omitempty"`
	Actions map[string]Definition `yaml:"actions" json:"actions"`
}

// ParseDefinitions decodes a YAML definitions document.
func ParseDefinitions(data []byte) (*Definitions, error) {
	var defs Definitions
	if err := yaml.Unmarshal(data, &defs); err != nil {
		return nil, errors.Wrap(err, "parse action definitions")
	}
	for name, d := range defs.Actions {
		if d.Path == "" {
			return nil, errors.Errorf("action %q: missing path", name)
		}
		if d.Method == "" {
			d.Method = http.MethodGet
		}
		d.Method = strings.ToUpper(d.Method)
		defs.Actions[name] = d
	}
	return &defs, nil
}

// LoadDefinitions reads a YAML definitions file.
func LoadDefinitions(path string) (*Definitions, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read action definitions")
	}
	return ParseDefinitions(data)
}

// HTTPPerformer performs actions as HTTP requests with JSON responses.
type HTTPPerformer struct {
	Defs   *Definitions
	Client *http.Client
}

func NewHTTPPerformer(defs *Definitions) *HTTPPerformer {
	return &HTTPPerformer{Defs: defs, Client: http.DefaultClient}
}

func (p *HTTPPerformer) Perform(ctx context.Context, req Request) (any, error) {
	def, ok := p.Defs.Actions[req.Action]
	if !ok {
		return nil, errors.Wrapf(ErrUnknownAction, "%q", req.Action)
	}
	hreq, err := p.build(ctx, def, req.Params)
	if err != nil {
		return nil, errors.Wrapf(err, "action %s", req.Action)
	}
	resp, err := p.Client.Do(hreq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, errors.Wrapf(ErrCanceled, "action %s", req.Action)
		}
		return nil, errors.Wrapf(err, "action %s", req.Action)
	}
	defer resp.Body.Close()
	if req.Ready != nil {
		req.Ready()
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		if ctx.Err() != nil {
			return nil, errors.Wrapf(ErrCanceled, "action %s", req.Action)
		}
		return nil, errors.Wrapf(err, "action %s: read response", req.Action)
	}
	var body any
	if len(bytes.TrimSpace(data)) > 0 {
		if err := json.Unmarshal(data, &body); err != nil {
			if resp.StatusCode >= 400 {
				return nil, &TransportError{Status: resp.StatusCode, Payload: string(data)}
			}
			return nil, errors.Wrapf(err, "action %s: decode response", req.Action)
		}
	}

	if resp.StatusCode >= 400 {
		terr := &TransportError{Status: resp.StatusCode}
		if def.ErrorKeyPath != "" {
			terr.Payload, _ = keypath.Get(body, def.ErrorKeyPath)
		}
		return nil, terr
	}
	if def.ResultKeyPath == "" {
		return body, nil
	}
	result, ok := keypath.Get(body, def.ResultKeyPath)
	if (!ok || result == nil) && def.RequireResult {
		return nil, errors.Wrapf(ErrNoResult, "action %s: %s", req.Action, def.ResultKeyPath)
	}
	return result, nil
}

func (p *HTTPPerformer) build(ctx context.Context, def Definition, params any) (*http.Request, error) {
	u, err := url.Parse(strings.TrimRight(p.Defs.BaseURL, "/") + evaluation.Substitute(def.Path, params, nil))
	if err != nil {
		return nil, errors.Wrap(err, "build url")
	}
	mode := def.Body
	if mode == "" {
		mode = "json"
		if def.Method == http.MethodGet || def.Method == http.MethodDelete {
			mode = "query"
		}
	}

	var body io.Reader
	var contentType string
	switch mode {
	case "query":
		q := u.Query()
		for k, v := range flatParams(params) {
			q.Set(k, v)
		}
		u.RawQuery = q.Encode()
	case "form":
		form := url.Values{}
		for k, v := range flatParams(params) {
			form.Set(k, v)
		}
		body, contentType = strings.NewReader(form.Encode()), "application/x-www-form-urlencoded"
	case "json":
		data, err := json.Marshal(params)
		if err != nil {
			return nil, errors.Wrap(err, "encode body")
		}
		body, contentType = bytes.NewReader(data), "application/json"
	default:
		return nil, errors.Errorf("unknown body mode %q", mode)
	}

	req, err := http.NewRequestWithContext(ctx, def.Method, u.String(), body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	for _, headers := range []map[string]string{p.Defs.Headers, def.Headers} {
		for k, v := range headers {
			req.Header.Set(k, evaluation.Substitute(v, params, nil))
		}
	}
	return req, nil
}

// flatParams renders the top-level scalar parameters as strings.
func flatParams(params any) map[string]string {
	out := map[string]string{}
	m, ok := params.(map[string]any)
	if !ok {
		return out
	}
	for k, v := range m {
		out[k] = keypath.String(v)
	}
	return out
}
