package dispatch

import (
	"sort"
	"strings"
)

// Route holds the callbacks for one correlation identifier. Nil fields are
// skipped.
type Route struct {
	OnStart     func(c Consumer, req *Request)
	OnProgress  func(c Consumer, req *Request, percent int)
	OnSuccess   func(c Consumer, req *Request, body []byte)
	OnFailure   func(c Consumer, req *Request, status int, reason string)
	OnException func(c Consumer, req *Request, err error)
}

type prefixRoute struct {
	prefix string
	route  Route
}

// Routes dispatches outcomes by correlation identifier: exact matches first,
// then the longest matching prefix, then the fallback. Configure it before
// handing it to a Handler; it is read-only afterwards.
type Routes struct {
	exact    map[string]Route
	prefixes []prefixRoute
	fallback Route
}

func NewRoutes() *Routes {
	return &Routes{exact: make(map[string]Route)}
}

// Handle registers route for the correlation identifier id.
func (r *Routes) Handle(id string, route Route) *Routes {
	r.exact[id] = route
	return r
}

// HandlePrefix registers route for every identifier that starts with prefix.
func (r *Routes) HandlePrefix(prefix string, route Route) *Routes {
	r.prefixes = append(r.prefixes, prefixRoute{prefix: prefix, route: route})
	sort.SliceStable(r.prefixes, func(i, j int) bool {
		return len(r.prefixes[i].prefix) > len(r.prefixes[j].prefix)
	})
	return r
}

// Fallback registers the route used when nothing else matches.
func (r *Routes) Fallback(route Route) *Routes {
	r.fallback = route
	return r
}

func (r *Routes) lookup(id string) Route {
	if route, ok := r.exact[id]; ok {
		return route
	}
	for _, p := range r.prefixes {
		if strings.HasPrefix(id, p.prefix) {
			return p.route
		}
	}
	return r.fallback
}

func (r *Routes) OnStart(c Consumer, req *Request) {
	if fn := r.lookup(req.CorrelationID()).OnStart; fn != nil {
		fn(c, req)
	}
}

func (r *Routes) OnProgress(c Consumer, req *Request, percent int) {
	if fn := r.lookup(req.CorrelationID()).OnProgress; fn != nil {
		fn(c, req, percent)
	}
}

func (r *Routes) OnSuccess(c Consumer, req *Request, body []byte) {
	if fn := r.lookup(req.CorrelationID()).OnSuccess; fn != nil {
		fn(c, req, body)
	}
}

func (r *Routes) OnFailure(c Consumer, req *Request, status int, reason string) {
	if fn := r.lookup(req.CorrelationID()).OnFailure; fn != nil {
		fn(c, req, status, reason)
	}
}

func (r *Routes) OnException(c Consumer, req *Request, err error) {
	if fn := r.lookup(req.CorrelationID()).OnException; fn != nil {
		fn(c, req, err)
	}
}
