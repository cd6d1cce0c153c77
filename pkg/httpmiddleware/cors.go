package httpmiddleware

import (
	"net/http"
	"strconv"
	"strings"
)

// CORSConfig lists the browser origins allowed to call the API. An empty list
// or "*" allows any origin.
type CORSConfig struct {
	Origins []string
	Headers []string
	MaxAge  int
}

// CORS answers preflight requests and sets Access-Control headers for
// allowed origins. Disallowed origins get no CORS headers at all.
func CORS(cfg CORSConfig) Middleware {
	allowAny := len(cfg.Origins) == 0
	allowed := make(map[string]struct{}, len(cfg.Origins))
	for _, o := range cfg.Origins {
		if o == "*" {
			allowAny = true
		}
		allowed[strings.ToLower(o)] = struct{}{}
	}
	headers := strings.Join(cfg.Headers, ", ")
	if headers == "" {
		headers = "Content-Type, " + HeaderRequestID
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			w.Header().Add("Vary", "Origin")

			_, ok := allowed[strings.ToLower(origin)]
			if origin == "" || (!allowAny && !ok) {
				next.ServeHTTP(w, r)
				return
			}

			h := w.Header()
			h.Set("Access-Control-Allow-Origin", origin)
			h.Set("Access-Control-Expose-Headers", HeaderRequestID)

			if r.Method != http.MethodOptions || r.Header.Get("Access-Control-Request-Method") == "" {
				next.ServeHTTP(w, r)
				return
			}
			h.Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			h.Set("Access-Control-Allow-Headers", headers)
			if cfg.MaxAge > 0 {
				h.Set("Access-Control-Max-Age", strconv.Itoa(cfg.MaxAge))
			}
			w.WriteHeader(http.StatusNoContent)
		})
	}
}
