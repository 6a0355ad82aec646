package api

import (
    "errors"
    "net/http"
    "strings"

    "github.com/gorilla/mux"

    "routecap/internal/auth"
)

var errNoCredentials = errors.New("missing credentials")

// getPrincipal resolves the caller.
//   - Authorization: Bearer is checked with the configured verifier.
//   - Otherwise, in dev mode only, X-Tenant-Id / X-Role headers are trusted.
//
// ok is false when the request carries no identity at all.
func (s *Server) getPrincipal(r *http.Request) (p auth.Principal, ok bool, err error) {
    authz := r.Header.Get("Authorization")
    if len(authz) > 7 && strings.EqualFold(authz[:7], "bearer ") {
        p, err := s.Auth.Verify(strings.TrimSpace(authz[7:]))
        if err != nil { return auth.Principal{}, false, err }
        return p, true, nil
    }
    if tenant := r.Header.Get("X-Tenant-Id"); tenant != "" {
        if !s.Auth.Dev() { return auth.Principal{}, false, errNoCredentials }
        role := strings.ToLower(r.Header.Get("X-Role"))
        if role == "" { role = "user" }
        return auth.Principal{Tenant: tenant, Role: role}, true, nil
    }
    if s.Auth.Dev() { return auth.Principal{}, false, nil }
    return auth.Principal{}, false, errNoCredentials
}

// tenantGuard rejects callers bound to a different tenant than the {id} path
// variable unless they are platform admins.
func (s *Server) tenantGuard(next http.Handler) http.Handler {
    return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
        tenant := mux.Vars(r)["id"]
        p, ok, err := s.getPrincipal(r)
        if err != nil {
            w.Header().Set("WWW-Authenticate", "Bearer")
            writeProblem(w, http.StatusUnauthorized, "Unauthorized", err.Error(), r.URL.Path)
            return
        }
        if ok && !p.CanAccess(tenant) {
            writeProblem(w, http.StatusForbidden, "Forbidden", "principal is not bound to tenant "+tenant, r.URL.Path)
            return
        }
        next.ServeHTTP(w, r)
    })
}

func tenantID(r *http.Request) string { return mux.Vars(r)["id"] }
