package httpmiddleware

import (
	"net/http"
	"strconv"
	"strings"
)

// CORSConfig describes the cross-origin policy served by CORS.
type CORSConfig struct {
	// AllowOrigins lists origins allowed to call the API. Empty or
	// containing "*" allows any origin. With AllowCredentials set the
	// wildcard is replaced by echoing the caller's origin, since the
	// Fetch standard forbids the "*"/credentials combination.
	AllowOrigins []string

	// AllowMethods for preflight responses. Defaults to the common verb set.
	AllowMethods []string

	// AllowHeaders lists request headers clients may send. Empty means the
	// preflight echoes whatever headers were requested.
	AllowHeaders []string

	// ExposeHeaders lists response headers scripts may read.
	ExposeHeaders []string

	// AllowCredentials permits cookies and authorization headers.
	AllowCredentials bool

	// MaxAge is the preflight cache lifetime in seconds. Zero omits the
	// header; negative disables caching.
	MaxAge int
}

// corsPolicy is the precompiled form of CORSConfig.
type corsPolicy struct {
	anyOrigin   bool
	origins     map[string]string // lowercased -> configured spelling
	methods     string
	headers     string
	expose      string
	credentials bool
	maxAge      string
}

func compileCORS(cfg CORSConfig) *corsPolicy {
	p := &corsPolicy{
		anyOrigin:   len(cfg.AllowOrigins) == 0,
		origins:     make(map[string]string, len(cfg.AllowOrigins)),
		methods:     strings.Join(cfg.AllowMethods, ", "),
		headers:     strings.Join(cfg.AllowHeaders, ", "),
		expose:      strings.Join(cfg.ExposeHeaders, ", "),
		credentials: cfg.AllowCredentials,
	}
	for _, o := range cfg.AllowOrigins {
		if o == "*" {
			p.anyOrigin = true
			continue
		}
		p.origins[strings.ToLower(o)] = o
	}
	if p.credentials {
		// Wildcard + credentials is forbidden; echo the origin instead.
		p.anyOrigin = false
	}
	if p.methods == "" {
		p.methods = "GET, POST, PUT, DELETE, OPTIONS"
	}
	switch {
	case cfg.MaxAge > 0:
		p.maxAge = strconv.Itoa(cfg.MaxAge)
	case cfg.MaxAge < 0:
		p.maxAge = "0"
	}
	return p
}

// allowValue resolves the Access-Control-Allow-Origin value for an
// incoming Origin header, or "" when the origin is not allowed.
func (p *corsPolicy) allowValue(origin string) string {
	if p.anyOrigin {
		return "*"
	}
	if v, ok := p.origins[strings.ToLower(origin)]; ok {
		return v
	}
	if p.credentials && len(p.origins) == 0 {
		return origin
	}
	return ""
}

// CORS serves cross-origin headers for both preflight and actual
// requests. Responses vary on Origin so shared caches cannot leak a
// policy across origins.
func CORS(cfg CORSConfig) Middleware {
	p := compileCORS(cfg)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin == "" {
				// Same-origin or non-browser traffic.
				if !p.anyOrigin {
					w.Header().Add("Vary", "Origin")
				}
				next.ServeHTTP(w, r)
				return
			}

			allow := p.allowValue(origin)
			preflight := r.Method == http.MethodOptions &&
				r.Header.Get("Access-Control-Request-Method") != ""

			if preflight {
				w.Header().Add("Vary", "Origin")
				w.Header().Add("Vary", "Access-Control-Request-Method")
				w.Header().Add("Vary", "Access-Control-Request-Headers")

				if allow != "" {
					h := w.Header()
					h.Set("Access-Control-Allow-Origin", allow)
					h.Set("Access-Control-Allow-Methods", p.methods)
					if p.headers != "" {
						h.Set("Access-Control-Allow-Headers", p.headers)
					} else if req := r.Header.Get("Access-Control-Request-Headers"); req != "" {
						h.Set("Access-Control-Allow-Headers", req)
					}
					if p.credentials {
						h.Set("Access-Control-Allow-Credentials", "true")
					}
					if p.maxAge != "" {
						h.Set("Access-Control-Max-Age", p.maxAge)
					}
				}
				w.WriteHeader(http.StatusNoContent)
				return
			}

			if !p.anyOrigin {
				w.Header().Add("Vary", "Origin")
			}
			if allow != "" {
				h := w.Header()
				h.Set("Access-Control-Allow-Origin", allow)
				if p.credentials {
					h.Set("Access-Control-Allow-Credentials", "true")
				}
				if p.expose != "" {
					h.Set("Access-Control-Expose-Headers", p.expose)
				}
			}

			next.ServeHTTP(w, r)
		})
	}
}
