package transport

import (
	"net"
	"net/http"
	"net/url"
	"strings"
)

const originHeader = "Origin"

// OriginPolicy decides which browser origins may drive the API. Requests without an
// Origin header come from non-browser clients and are allowed.
type OriginPolicy struct {
	allowed map[string]struct{}
}

// NewOriginPolicy allows local pages (file://, "null" and loopback hosts) plus the given origins.
func NewOriginPolicy(allowed ...string) OriginPolicy {
	policy := OriginPolicy{allowed: make(map[string]struct{}, len(allowed))}
	for _, origin := range allowed {
		policy.allowed[strings.TrimSuffix(origin, "/")] = struct{}{}
	}
	return policy
}

func (policy OriginPolicy) Allowed(origin string) bool {
	if origin == "" || origin == "null" {
		return true
	}
	if _, ok := policy.allowed[origin]; ok {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	switch u.Scheme {
	case "file":
		return true
	case "http", "https":
		host := u.Hostname()
		if host == "localhost" {
			return true
		}
		ip := net.ParseIP(host)
		return ip != nil && ip.IsLoopback()
	default:
		return false
	}
}

// CheckOrigin matches the websocket.Upgrader hook.
func (policy OriginPolicy) CheckOrigin(r *http.Request) bool {
	return policy.Allowed(r.Header.Get(originHeader))
}

// Middleware rejects foreign origins and answers CORS for the allowed ones.
func (policy OriginPolicy) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get(originHeader)
		if !policy.Allowed(origin) {
			writeJSON(w, http.StatusForbidden, ErrorResponse{Error: "origin " + origin + " is not allowed"})
			return
		}
		if origin != "" {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Add("Vary", originHeader)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		}
		next.ServeHTTP(w, r)
	})
}
