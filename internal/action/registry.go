package action

// Key identifies an in-flight request.
type Key struct {
	Action    string
	Requester string
}

type inflight struct {
	token  uint64
	cancel func()
}

// Registry tracks the requests currently in flight. It is not safe for
// concurrent use; it is only touched from the loop.
type Registry struct {
	next     uint64
	requests map[Key]inflight
}

func NewRegistry() *Registry {
	return &Registry{requests: make(map[Key]inflight)}
}

// Add registers a request for key, cancelling any request it replaces, and
// returns the token its completion must present.
func (r *Registry) Add(key Key, cancel func()) uint64 {
	r.Cancel(key)
	r.next++
	r.requests[key] = inflight{token: r.next, cancel: cancel}
	return r.next
}

// Cancel cancels and forgets the request for key.
func (r *Registry) Cancel(key Key) bool {
	req, ok := r.requests[key]
	if !ok {
		return false
	}
	delete(r.requests, key)
	if req.cancel != nil {
		req.cancel()
	}
	return true
}

// Complete forgets the request for key if it is still the one identified
// by token. A false result means the completion must be dropped.
func (r *Registry) Complete(key Key, token uint64) bool {
	req, ok := r.requests[key]
	if !ok || req.token != token {
		return false
	}
	delete(r.requests, key)
	return true
}

// Pending reports whether the request identified by token is still live.
func (r *Registry) Pending(key Key, token uint64) bool {
	req, ok := r.requests[key]
	return ok && req.token == token
}

func (r *Registry) Len() int { return len(r.requests) }
