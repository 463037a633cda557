// Package httpapi exposes the authentication engine over HTTP. All domain
// endpoints speak JSON; the root path serves a minimal login page so the
// service is usable from a browser without a separate frontend.
package httpapi

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	authgate "github.com/authgate/authgate"
	promexport "github.com/authgate/authgate/metrics/export/prometheus"
	"github.com/redis/go-redis/v9"
)

const tokenCookieName = "auth_token"

// ReadyProbe reports whether the backing stores answer. The redis client is
// required; the database handle is only set when the postgres credential
// store is in use.
type ReadyProbe struct {
	Redis *redis.Client
	DB    *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.Redis != nil {
		if err := rp.Redis.Ping(ctx).Err(); err != nil {
			return err
		}
	}
	if rp.DB != nil {
		return rp.DB.PingContext(ctx)
	}
	return nil
}

// API is the HTTP layer over an engine.
type API struct {
	mux        *http.ServeMux
	engine     *authgate.Engine
	readyProbe ReadyProbe
	version    string
}

func New(engine *authgate.Engine, rp ReadyProbe, version string) *API {
	registerHTTPMetrics()

	a := &API{
		mux:        http.NewServeMux(),
		engine:     engine,
		readyProbe: rp,
		version:    version,
	}

	a.mux.HandleFunc("/signup", a.Signup)
	a.mux.HandleFunc("/login", a.Login)
	a.mux.HandleFunc("/verify-2fa", a.Verify2FA)
	a.mux.HandleFunc("/verify-token", a.VerifyToken)
	a.mux.HandleFunc("/logout", a.Logout)

	a.mux.HandleFunc("/healthz", a.Healthz)
	a.mux.HandleFunc("/readyz", a.Ready)

	// HTTP-layer metrics and the engine counter snapshot, side by side.
	a.mux.Handle("/metrics", metricsHandler())
	a.mux.Handle("/metrics/engine", promexport.NewPrometheusExporter(engine).Handler())

	a.mux.HandleFunc("/", a.Root)

	return a
}

// Handler returns the full middleware chain ready for http.Server.
func (a *API) Handler() http.Handler {
	return instrument(securityHeaders(withRequestContext(a.mux)))
}

// --- domain handlers ---

type signupRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (a *API) Signup(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}

	var req signupRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	if err := a.engine.Signup(r.Context(), req.Email, req.Password); err != nil {
		a.handleAuthError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"message": "user created",
	})
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (a *API) Login(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}

	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	result, err := a.engine.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		a.handleAuthError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"message":    "2fa code sent",
		"attempt_id": result.AttemptID,
	})
}

type verify2FARequest struct {
	AttemptID string `json:"attempt_id"`
	Code      string `json:"code"`
}

func (a *API) Verify2FA(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}

	var req verify2FARequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	token, err := a.engine.Verify2FA(r.Context(), req.AttemptID, req.Code)
	if err != nil {
		a.handleAuthError(w, r, err)
		return
	}

	// Browsers get a session cookie, API clients read the body.
	http.SetCookie(w, &http.Cookie{
		Name:     tokenCookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	writeJSON(w, http.StatusOK, map[string]any{
		"token": token,
	})
}

type verifyTokenRequest struct {
	Token string `json:"token"`
}

func (a *API) VerifyToken(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}

	var req verifyTokenRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	identity, err := a.engine.VerifyToken(r.Context(), req.Token)
	if err != nil {
		a.handleAuthError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"email":      identity.Email,
		"token_id":   identity.TokenID,
		"expires_at": identity.ExpiresAt.UTC().Format(time.RFC3339),
	})
}

type logoutRequest struct {
	Token string `json:"token"`
}

// Logout accepts the token either in the JSON body or in the session cookie,
// so both API clients and the browser UI can revoke.
func (a *API) Logout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}

	token := ""
	if r.Body != nil && r.ContentLength != 0 {
		var req logoutRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		token = req.Token
	}
	if token == "" {
		if c, err := r.Cookie(tokenCookieName); err == nil {
			token = c.Value
		}
	}
	if token == "" {
		writeError(w, r, http.StatusBadRequest, "token is required")
		return
	}

	if err := a.engine.Logout(r.Context(), token); err != nil {
		a.handleAuthError(w, r, err)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     tokenCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	writeJSON(w, http.StatusOK, map[string]any{
		"message": "logged out",
	})
}

// --- service handlers ---

func (a *API) Root(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, authPage)
}

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "authgate",
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if err := a.readyProbe.Check(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
	})
}

// --- helpers ---

// handleAuthError maps engine sentinels to statuses. Anything unrecognized
// is reported as a plain 500 so store failures never leak detail to callers.
func (a *API) handleAuthError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, authgate.ErrInvalidInput):
		writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, authgate.ErrDuplicateUser):
		writeError(w, r, http.StatusConflict, err.Error())
	case errors.Is(err, authgate.ErrInvalidCredentials),
		errors.Is(err, authgate.ErrInvalidOrExpiredCode),
		errors.Is(err, authgate.ErrInvalidToken):
		writeError(w, r, http.StatusUnauthorized, err.Error())
	default:
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	payload := map[string]any{
		"error": msg,
	}
	if rid := w.Header().Get(requestIDHeader); rid != "" {
		payload["request_id"] = rid
	}
	writeJSON(w, code, payload)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	reader := http.MaxBytesReader(w, r.Body, 1<<20)
	defer reader.Close()
	dec := json.NewDecoder(reader)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return errors.New("unexpected data after JSON body")
		}
		return err
	}
	return nil
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request, allowed ...string) {
	w.Header().Set("Allow", strings.Join(allowed, ", "))
	writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
}
