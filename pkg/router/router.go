package router

import (
	"net/url"
	"strings"

	"github.com/valyala/fasthttp"
)

// Router is a minimal fasthttp router. It supports parameterised paths
// using {name} and dispatches handlers by HTTP method. Parameters are
// matched against the raw request path and then unescaped, so a key phrase
// may contain an encoded slash.
type Router struct {
	routes   map[string][]route
	notFound fasthttp.RequestHandler
	wrap     []func(fasthttp.RequestHandler) fasthttp.RequestHandler
}

type route struct {
	segments []segment
	handler  fasthttp.RequestHandler
}

type segment struct {
	name    string
	isParam bool
}

func New() *Router {
	return &Router{routes: make(map[string][]route)}
}

// Use adds middleware applied to every matched and unmatched request.
// Middleware registered first runs outermost.
func (r *Router) Use(mw func(fasthttp.RequestHandler) fasthttp.RequestHandler) {
	r.wrap = append(r.wrap, mw)
}

// Handler returns the router as a fasthttp handler with middleware applied.
func (r *Router) Handler() fasthttp.RequestHandler {
	h := fasthttp.RequestHandler(r.dispatch)
	for i := len(r.wrap) - 1; i >= 0; i-- {
		h = r.wrap[i](h)
	}
	return h
}

func (r *Router) dispatch(ctx *fasthttp.RequestCtx) {
	method := string(ctx.Method())
	path := string(ctx.Request.URI().PathOriginal())
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	allowed := false
	for m, list := range r.routes {
		for _, rt := range list {
			values, ok := match(path, rt.segments)
			if !ok {
				continue
			}
			if m != method {
				allowed = true
				continue
			}
			for k, v := range values {
				ctx.SetUserValue(k, v)
			}
			rt.handler(ctx)
			return
		}
	}
	if allowed {
		ctx.SetStatusCode(fasthttp.StatusMethodNotAllowed)
		return
	}
	if r.notFound != nil {
		r.notFound(ctx)
		return
	}
	ctx.SetStatusCode(fasthttp.StatusNotFound)
}

func (r *Router) GET(path string, h fasthttp.RequestHandler)    { r.add("GET", path, h) }
func (r *Router) POST(path string, h fasthttp.RequestHandler)   { r.add("POST", path, h) }
func (r *Router) PUT(path string, h fasthttp.RequestHandler)    { r.add("PUT", path, h) }
func (r *Router) DELETE(path string, h fasthttp.RequestHandler) { r.add("DELETE", path, h) }

// NotFound registers a handler for unmatched routes.
func (r *Router) NotFound(h fasthttp.RequestHandler) {
	r.notFound = h
}

func (r *Router) add(method, path string, h fasthttp.RequestHandler) {
	r.routes[method] = append(r.routes[method], route{segments: parse(path), handler: h})
}

func parse(path string) []segment {
	path = strings.TrimPrefix(path, "/")
	if path == "" {
		return []segment{{}}
	}
	parts := strings.Split(path, "/")
	segs := make([]segment, len(parts))
	for i, part := range parts {
		if strings.HasPrefix(part, "{") && strings.HasSuffix(part, "}") && len(part) > 2 {
			segs[i] = segment{name: part[1 : len(part)-1], isParam: true}
		} else {
			segs[i] = segment{name: part}
		}
	}
	return segs
}

func match(path string, segs []segment) (map[string]string, bool) {
	path = strings.TrimPrefix(path, "/")
	if len(segs) == 1 && !segs[0].isParam && segs[0].name == "" {
		return map[string]string{}, path == ""
	}
	var parts []string
	if path != "" {
		parts = strings.Split(path, "/")
	}
	if len(parts) != len(segs) {
		return nil, false
	}
	values := make(map[string]string)
	for i, seg := range segs {
		if seg.isParam {
			v, err := url.PathUnescape(parts[i])
			if err != nil || v == "" {
				return nil, false
			}
			values[seg.name] = v
			continue
		}
		if seg.name != parts[i] {
			return nil, false
		}
	}
	return values, true
}

// PathParam returns a path parameter captured by the router.
func PathParam(ctx *fasthttp.RequestCtx, name string) string {
	if s, ok := ctx.UserValue(name).(string); ok {
		return s
	}
	return ""
}
