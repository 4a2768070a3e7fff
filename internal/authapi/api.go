// Package authapi serves the session endpoints: POST /login issues the
// cookie pair, POST /logout expires it, and POST /verify independently
// confirms a verification token matches a claimed descriptor.
package authapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/gateward/gateward/internal/access"
	"github.com/gateward/gateward/internal/log"
	"github.com/gateward/gateward/internal/session"
	"github.com/gateward/gateward/internal/token"
	"github.com/gateward/gateward/internal/userstore"
)

// Recorder is the metrics surface the API increments. All methods must
// be safe for concurrent use.
type Recorder interface {
	IncLogin(result string)
	IncLogout()
	IncVerifyFailure(kind string)
}

type nopRecorder struct{}

func (nopRecorder) IncLogin(string)         {}
func (nopRecorder) IncLogout()              {}
func (nopRecorder) IncVerifyFailure(string) {}

// API wires the credential authenticator, verification service, and
// session teardown onto a chi router.
type API struct {
	store   userstore.Store
	codec   *token.Codec
	cookies session.CookieWriter
	logger  log.Logger
	rec     Recorder
}

type Options struct {
	Store   userstore.Store
	Codec   *token.Codec
	Cookies session.CookieWriter
	Logger  log.Logger
	Metrics Recorder
}

func New(opts Options) (*API, error) {
	if opts.Store == nil {
		return nil, errors.New("authapi: Store is nil")
	}
	if opts.Codec == nil {
		return nil, errors.New("authapi: Codec is nil")
	}
	if opts.Logger == nil {
		opts.Logger = log.Nop()
	}
	if opts.Metrics == nil {
		opts.Metrics = nopRecorder{}
	}
	return &API{
		store:   opts.Store,
		codec:   opts.Codec,
		cookies: opts.Cookies,
		logger:  opts.Logger,
		rec:     opts.Metrics,
	}, nil
}

// RegisterRoutes attaches the auth endpoints to the main router.
func (a *API) RegisterRoutes(r chi.Router) {
	r.Post("/login", a.handleLogin)
	r.Post("/logout", a.handleLogout)
	r.Post("/verify", a.handleVerify)
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginUser struct {
	Email string       `json:"email"`
	Name  string       `json:"name"`
	Level access.Level `json:"level"`
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	L := log.FromContext(ctx)

	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.rec.IncLogin("invalid")
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Email == "" || req.Password == "" {
		a.rec.IncLogin("invalid")
		writeError(w, http.StatusBadRequest, "email and password are required")
		return
	}

	user, err := a.store.FindByEmail(ctx, req.Email)
	if err != nil && !errors.Is(err, userstore.ErrNotFound) {
		// storage fault, not a credential problem
		L.Error(ctx, err, "login: user lookup failed")
		a.rec.IncLogin("error")
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	// the unknown-user and wrong-password paths must be indistinguishable
	if err != nil || !user.CheckPassword(req.Password) {
		a.rec.IncLogin("rejected")
		writeError(w, http.StatusUnauthorized, "invalid email or password")
		return
	}

	desc := session.Descriptor{
		UserID:   user.ID,
		Email:    user.Email,
		UserName: user.Name,
		Level:    user.Level,
	}
	canonical, err := desc.CanonicalJSON()
	if err != nil {
		L.Error(ctx, err, "login: descriptor serialization failed")
		a.rec.IncLogin("error")
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	tok, err := a.codec.Encrypt(canonical)
	if err != nil {
		L.Error(ctx, err, "login: token encryption failed")
		a.rec.IncLogin("error")
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	a.cookies.Set(w, tok, canonical)
	a.rec.IncLogin("success")
	L.Info(ctx, "login succeeded", "user_id", user.ID, "level", user.Level)

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"user":    loginUser{Email: user.Email, Name: user.Name, Level: user.Level},
	})
}

func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	// stateless teardown: always succeeds, authenticated or not
	a.cookies.Clear(w)
	a.rec.IncLogout()
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "logged out",
	})
}

type verifyRequest struct {
	Verification string              `json:"verification"`
	UserData     *session.Descriptor `json:"userData"`
}

func (a *API) handleVerify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	L := log.FromContext(ctx)

	var req verifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.rec.IncVerifyFailure("validation")
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Verification == "" || req.UserData == nil {
		a.rec.IncVerifyFailure("validation")
		writeError(w, http.StatusBadRequest, "verification and userData are required")
		return
	}

	plaintext, err := a.codec.Decrypt(req.Verification)
	if err != nil {
		// a single generic outcome for every decrypt failure - no oracle
		a.rec.IncVerifyFailure("decrypt")
		writeError(w, http.StatusUnauthorized, "invalid verification token")
		return
	}

	canonical, err := req.UserData.CanonicalJSON()
	if err != nil {
		L.Error(ctx, err, "verify: descriptor serialization failed")
		a.rec.IncVerifyFailure("internal")
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	if strings.TrimSpace(plaintext) != strings.TrimSpace(canonical) {
		// token decrypts but doesnt match the claimed descriptor: tampering
		L.Warn(ctx, "verify: token/descriptor mismatch",
			"user_id", req.UserData.UserID,
			"claimed_level", req.UserData.Level,
		)
		a.rec.IncVerifyFailure("mismatch")
		writeError(w, http.StatusUnauthorized, "verification failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"valid":  true,
		"userId": req.UserData.UserID,
		"level":  req.UserData.Level,
	})
}

// VerifyLocal runs the same comparison as POST /verify in-process. The
// gateway uses it when no external verifier URL is configured.
func (a *API) VerifyLocal(_ context.Context, verification string, desc session.Descriptor) bool {
	plaintext, err := a.codec.Decrypt(verification)
	if err != nil {
		return false
	}
	canonical, err := desc.CanonicalJSON()
	if err != nil {
		return false
	}
	return strings.TrimSpace(plaintext) == strings.TrimSpace(canonical)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
