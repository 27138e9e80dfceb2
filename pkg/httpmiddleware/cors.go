package httpmiddleware

import (
	"net/http"
	"strconv"
	"strings"
)

// CORSConfig configures the CORS middleware.
type CORSConfig struct {
	// AllowOrigins lists origins allowed to make cross-origin requests.
	// Empty, or the single entry "*", allows every origin.
	AllowOrigins []string

	// AllowMethods lists the methods clients may use. Defaults to
	// "GET, POST, PUT, PATCH, DELETE, OPTIONS" when empty.
	AllowMethods []string

	// AllowHeaders lists the request headers clients may send. When empty
	// the middleware echoes the preflight Access-Control-Request-Headers.
	AllowHeaders []string

	// ExposeHeaders lists response headers scripts may read.
	ExposeHeaders []string

	// AllowCredentials permits cookies and Authorization headers on
	// cross-origin requests. Incompatible with the wildcard origin; the
	// middleware then echoes the specific origin instead.
	AllowCredentials bool

	// MaxAge is the preflight cache lifetime in seconds. Zero omits the
	// header, negative sends "0".
	MaxAge int
}

// corsPolicy is the precomputed per-server CORS state.
type corsPolicy struct {
	allowAll    bool
	echoAny     bool              // wildcard with credentials: allow any origin but echo it
	origins     map[string]string // lowercased -> as configured
	methods     string
	headers     string
	expose      string
	credentials bool
	maxAge      string
}

func newCORSPolicy(cfg CORSConfig) *corsPolicy {
	p := &corsPolicy{
		allowAll:    len(cfg.AllowOrigins) == 0,
		origins:     make(map[string]string, len(cfg.AllowOrigins)),
		credentials: cfg.AllowCredentials,
		expose:      strings.Join(cfg.ExposeHeaders, ", "),
		headers:     strings.Join(cfg.AllowHeaders, ", "),
	}
	for _, o := range cfg.AllowOrigins {
		if o == "*" {
			p.allowAll = true
			break
		}
		p.origins[strings.ToLower(o)] = o
	}

	// The spec forbids "*" together with credentials; echo the specific
	// origin instead.
	if p.credentials && p.allowAll {
		p.allowAll = false
		p.echoAny = true
	}

	p.methods = strings.Join(cfg.AllowMethods, ", ")
	if p.methods == "" {
		p.methods = "GET, POST, PUT, PATCH, DELETE, OPTIONS"
	}

	switch {
	case cfg.MaxAge > 0:
		p.maxAge = strconv.Itoa(cfg.MaxAge)
	case cfg.MaxAge < 0:
		p.maxAge = "0"
	}

	return p
}

// resolve maps a request origin to the Access-Control-Allow-Origin value,
// or "" when the origin is not allowed. Matching is case-insensitive; the
// configured casing is echoed back.
func (p *corsPolicy) resolve(origin string) string {
	if p.allowAll {
		return "*"
	}
	if p.echoAny {
		return origin
	}
	return p.origins[strings.ToLower(origin)]
}

// preflight answers an OPTIONS probe. Always 204; CORS headers appear only
// for allowed origins.
func (p *corsPolicy) preflight(w http.ResponseWriter, r *http.Request, allowOrigin string) {
	h := w.Header()
	h.Add("Vary", "Origin")
	h.Add("Vary", "Access-Control-Request-Method")
	h.Add("Vary", "Access-Control-Request-Headers")

	if allowOrigin == "" {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	h.Set("Access-Control-Allow-Origin", allowOrigin)
	h.Set("Access-Control-Allow-Methods", p.methods)

	if p.headers != "" {
		h.Set("Access-Control-Allow-Headers", p.headers)
	} else if requested := r.Header.Get("Access-Control-Request-Headers"); requested != "" {
		h.Set("Access-Control-Allow-Headers", requested)
	}
	if p.credentials {
		h.Set("Access-Control-Allow-Credentials", "true")
	}
	if p.maxAge != "" {
		h.Set("Access-Control-Max-Age", p.maxAge)
	}

	w.WriteHeader(http.StatusNoContent)
}

// actual decorates a non-preflight cross-origin response.
func (p *corsPolicy) actual(w http.ResponseWriter, allowOrigin string) {
	h := w.Header()
	if !p.allowAll {
		h.Add("Vary", "Origin")
	}
	if allowOrigin == "" {
		return
	}

	h.Set("Access-Control-Allow-Origin", allowOrigin)
	if p.credentials {
		h.Set("Access-Control-Allow-Credentials", "true")
	}
	if p.expose != "" {
		h.Set("Access-Control-Expose-Headers", p.expose)
	}
}

// CORS handles Cross-Origin Resource Sharing: preflight OPTIONS requests
// are answered directly, actual requests get the allow headers. Vary is
// always set on origin-dependent responses so shared caches stay correct.
func CORS(cfg CORSConfig) Middleware {
	policy := newCORSPolicy(cfg)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin == "" {
				// Same-origin request, but caches still need the Vary hint.
				if !policy.allowAll {
					w.Header().Add("Vary", "Origin")
				}
				next.ServeHTTP(w, r)
				return
			}

			allowOrigin := policy.resolve(origin)

			if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
				policy.preflight(w, r, allowOrigin)
				return
			}

			policy.actual(w, allowOrigin)
			next.ServeHTTP(w, r)
		})
	}
}
