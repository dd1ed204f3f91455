package hearth

import "github.com/albertbausili/hearth/internal/h1"

// Request is a parsed HTTP/1.x request.
type Request = h1.Request

// Response is the response a handler fills in.
type Response = h1.Response

// Method is a recognized HTTP method.
type Method = h1.Method

// Recognized methods.
const (
	MethodGet     = h1.MethodGet
	MethodPost    = h1.MethodPost
	MethodPut     = h1.MethodPut
	MethodDelete  = h1.MethodDelete
	MethodOptions = h1.MethodOptions
)

// NewRequest builds a request outside the parser, mostly for tests.
func NewRequest(method Method, target string) *Request {
	return h1.NewRequest(method, target)
}

// NewResponse creates a 200 OK response, mostly for tests.
func NewResponse() *Response {
	return h1.NewResponse(h1.Version11, false)
}

// Handler defines the interface for request handlers. A returned error is
// turned into a 500 response carrying the error text.
type Handler interface {
	Serve(req *Request, resp *Response) error
}

// HandlerFunc is an adapter to allow ordinary functions to be used as handlers.
type HandlerFunc func(req *Request, resp *Response) error

// Serve calls f(req, resp).
func (f HandlerFunc) Serve(req *Request, resp *Response) error {
	return f(req, resp)
}

// Action tells the server what to do after a hook's Before step.
type Action uint8

const (
	// Continue runs the remaining hooks and then the routed handler.
	Continue Action = iota
	// Respond skips the remaining hooks and the handler; the response
	// prepared so far is sent.
	Respond
)

// Hook observes or short-circuits request handling. Before runs in
// registration order ahead of routing; After runs in reverse order once the
// response is ready, for every hook whose Before ran.
type Hook interface {
	Before(req *Request, resp *Response) (Action, error)
	After(req *Request, resp *Response) error
}

// HookFuncs builds a Hook from optional functions.
type HookFuncs struct {
	BeforeFunc func(req *Request, resp *Response) (Action, error)
	AfterFunc  func(req *Request, resp *Response) error
}

// Before calls BeforeFunc when set.
func (h HookFuncs) Before(req *Request, resp *Response) (Action, error) {
	if h.BeforeFunc == nil {
		return Continue, nil
	}
	return h.BeforeFunc(req, resp)
}

// After calls AfterFunc when set.
func (h HookFuncs) After(req *Request, resp *Response) error {
	if h.AfterFunc == nil {
		return nil
	}
	return h.AfterFunc(req, resp)
}
