// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package api

import (
	"net/http"

	"github.com/samber/oops"

	"github.com/gatehouse/gatehouse/internal/auth"
)

func (h *handler) register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := h.decode(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	result, err := h.svc.Register(r.Context(), auth.RegisterInput{
		Email:    req.Email,
		Name:     req.Name,
		Password: req.Password,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, AuthResponse{User: newUserResponse(result.User), Token: result.Token})
}

func (h *handler) login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := h.decode(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	result, err := h.svc.Login(r.Context(), auth.LoginInput{Email: req.Email, Password: req.Password})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, AuthResponse{User: newUserResponse(result.User), Token: result.Token})
}

func (h *handler) me(w http.ResponseWriter, r *http.Request) {
	p, ok := PrincipalFromContext(r.Context())
	if !ok {
		h.writeError(w, r, oops.Code("API_PRINCIPAL_MISSING").Errorf("principal missing from context"))
		return
	}
	writeJSON(w, http.StatusOK, MeResponse{
		User:    newUserResponse(p.User),
		Session: newSessionResponse(p.Session),
	})
}

func (h *handler) logout(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Logout(r.Context(), tokenFromContext(r.Context())); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) logoutAll(w http.ResponseWriter, r *http.Request) {
	p, ok := PrincipalFromContext(r.Context())
	if !ok {
		h.writeError(w, r, oops.Code("API_PRINCIPAL_MISSING").Errorf("principal missing from context"))
		return
	}

	n, err := h.svc.LogoutAll(r.Context(), p.User.ID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, LogoutAllResponse{Revoked: n})
}

func (h *handler) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handler) notFound(w http.ResponseWriter, r *http.Request) {
	h.writeErrorBody(w, r, http.StatusNotFound, KindNotFound, "Cannot "+r.Method+" "+r.URL.Path)
}

func (h *handler) methodNotAllowed(w http.ResponseWriter, r *http.Request) {
	h.writeErrorBody(w, r, http.StatusMethodNotAllowed, KindMethodNotAllowed, "method "+r.Method+" not allowed")
}
