// Package api implements HTTP handlers and helpers for the weighgate service.
package api

import (
    "net/http"
    "strings"
)

type Principal struct {
	Tenant    string
	Role      string // admin, dispatcher, operator
	StationID string
}

// getPrincipal extracts tenant and role from JWT or headers.
// - If Authorization: Bearer is present, uses configured verifier (dev/hmac/jwks).
// - Else falls back to headers for dev.
func (s *Server) getPrincipal(r *http.Request) Principal {
    authz := r.Header.Get("Authorization")
    if strings.HasPrefix(strings.ToLower(authz), "bearer ") && s.Auth != nil {
        tok := strings.TrimSpace(authz[len("Bearer "):])
        if pr, err := s.Auth.Verify(tok); err == nil {
            t := s.normalizeTenantID(pr.Tenant)
            return Principal{Tenant: t, Role: pr.Role, StationID: pr.StationID}
        }
    }
    tenant := r.Header.Get("X-Tenant-Id")
    role := r.Header.Get("X-Role")
    stationID := r.Header.Get("X-Station-Id")
    if tenant == "" {
        tenant = "t_demo"
    }
    tenant = s.normalizeTenantID(tenant)
    if role == "" {
        role = "admin"
    }
    return Principal{Tenant: tenant, Role: role, StationID: stationID}
}

// normalizeTenantID maps friendly aliases onto stored tenant ids.
func (s *Server) normalizeTenantID(t string) string {
    if t == "demo" { return "t_demo" }
    return t
}

// IsAdmin reports whether the principal has the admin role.
func (p Principal) IsAdmin() bool { return p.Role == "admin" }

// CanAuthor reports whether the principal may edit rules and catalog.
func (p Principal) CanAuthor() bool { return p.Role == "admin" || p.Role == "dispatcher" }
