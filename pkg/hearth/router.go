package hearth

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync/atomic"
)

// ErrRouterFrozen is the panic value raised when routes are registered
// after the server has started.
var ErrRouterFrozen = errors.New("hearth: routes cannot be added after the server has started")

// Router maps a method and path to a handler. Exact routes are looked up in
// a table and always win; template routes such as /user/:id are tried in
// registration order afterwards.
type Router struct {
	exact    map[routeKey]Handler
	patterns []*patternRule
	order    []RouteInfo
	frozen   atomic.Bool
}

type routeKey struct {
	method Method
	path   string
}

type patternRule struct {
	method  Method
	re      *regexp.Regexp
	names   []string
	handler Handler
}

// RouteInfo describes a registered route.
type RouteInfo struct {
	Method  Method
	Path    string
	Pattern bool
}

// NewRouter creates an empty router.
func NewRouter() *Router {
	return &Router{exact: make(map[routeKey]Handler)}
}

// GET registers a handler for GET requests.
func (r *Router) GET(path string, handler any) {
	r.Handle(MethodGet, path, handler)
}

// POST registers a handler for POST requests.
func (r *Router) POST(path string, handler any) {
	r.Handle(MethodPost, path, handler)
}

// PUT registers a handler for PUT requests.
func (r *Router) PUT(path string, handler any) {
	r.Handle(MethodPut, path, handler)
}

// DELETE registers a handler for DELETE requests.
func (r *Router) DELETE(path string, handler any) {
	r.Handle(MethodDelete, path, handler)
}

// OPTIONS registers a handler for OPTIONS requests.
func (r *Router) OPTIONS(path string, handler any) {
	r.Handle(MethodOptions, path, handler)
}

// Handle registers a handler. Paths containing a ":name" segment become
// template routes; all others are exact.
func (r *Router) Handle(method Method, path string, handler any) {
	if isTemplate(path) {
		r.HandlePattern(method, path, handler)
		return
	}
	r.addExact(method, path, wrapHandler(handler))
}

// HandlePattern registers a template route even when the path has no
// parameter segment.
func (r *Router) HandlePattern(method Method, template string, handler any) {
	h := wrapHandler(handler)
	r.checkRegistration(method, template)
	re, names := compileTemplate(template)
	r.patterns = append(r.patterns, &patternRule{method: method, re: re, names: names, handler: h})
	r.order = append(r.order, RouteInfo{Method: method, Path: template, Pattern: true})
}

func (r *Router) addExact(method Method, path string, h Handler) {
	r.checkRegistration(method, path)
	key := routeKey{method: method, path: path}
	if _, ok := r.exact[key]; !ok {
		r.order = append(r.order, RouteInfo{Method: method, Path: path})
	}
	r.exact[key] = h
}

func (r *Router) checkRegistration(method Method, path string) {
	if r.frozen.Load() {
		panic(ErrRouterFrozen)
	}
	if path == "" || path[0] != '/' {
		panic("path must begin with '/'")
	}
	if method.String() == "INVALID" {
		panic(fmt.Sprintf("invalid method for route %s", path))
	}
}

// wrapHandler accepts the handler shapes the registration helpers allow.
func wrapHandler(handler any) Handler {
	switch h := handler.(type) {
	case Handler:
		return h
	case func(*Request, *Response) error:
		return HandlerFunc(h)
	case func(*Request, *Response):
		return HandlerFunc(func(req *Request, resp *Response) error {
			h(req, resp)
			return nil
		})
	default:
		panic(fmt.Sprintf("invalid handler type: %T", handler))
	}
}

func isTemplate(path string) bool {
	for _, seg := range strings.Split(path, "/") {
		if len(seg) > 1 && seg[0] == ':' {
			return true
		}
	}
	return false
}

// compileTemplate turns each ":name" segment into a single-segment capture
// and quotes everything else literally. The expression matches whole paths.
func compileTemplate(template string) (*regexp.Regexp, []string) {
	segments := strings.Split(template, "/")
	var names []string
	for i, seg := range segments {
		if len(seg) > 1 && seg[0] == ':' {
			names = append(names, seg[1:])
			segments[i] = "([^/]+)"
			continue
		}
		segments[i] = regexp.QuoteMeta(seg)
	}
	return regexp.MustCompile("^" + strings.Join(segments, "/") + "$"), names
}

// Route finds the handler for req. On a template match the captured values
// are bound on req as param1, param2, ... in order and under their
// declared names.
func (r *Router) Route(req *Request) (Handler, bool) {
	if h, ok := r.exact[routeKey{method: req.Method(), path: req.Path()}]; ok {
		return h, true
	}
	for _, rule := range r.patterns {
		if rule.method != req.Method() {
			continue
		}
		m := rule.re.FindStringSubmatch(req.Path())
		if m == nil {
			continue
		}
		for i, v := range m[1:] {
			req.SetParam(rule.names[i], v)
		}
		// Positional names are bound last so they win over a declared
		// name that happens to look like one.
		for i, v := range m[1:] {
			req.SetParam("param"+strconv.Itoa(i+1), v)
		}
		return rule.handler, true
	}
	return nil, false
}

// Routes lists registered routes in registration order.
func (r *Router) Routes() []RouteInfo {
	out := make([]RouteInfo, len(r.order))
	copy(out, r.order)
	return out
}

// Freeze rejects further registrations. The server calls it on start.
func (r *Router) Freeze() { r.frozen.Store(true) }
