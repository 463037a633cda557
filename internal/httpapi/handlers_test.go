package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	authgate "github.com/authgate/authgate"
	"github.com/redis/go-redis/v9"
)

type captureSink struct {
	mu    sync.Mutex
	codes map[string]string
}

func (s *captureSink) Deliver(_ context.Context, email, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.codes[email] = code
	return nil
}

func (s *captureSink) codeFor(email string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.codes[email]
}

func newTestAPI(t *testing.T) (*httptest.Server, *captureSink) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	cfg := authgate.DefaultConfig()
	cfg.Token.SigningMethod = "hs256"
	cfg.Token.PrivateKey = []byte("0123456789abcdef0123456789abcdef")
	cfg.Token.Leeway = 0
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1

	sink := &captureSink{codes: map[string]string{}}

	engine, err := authgate.New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithCodeSink(sink).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(engine.Close)

	api := New(engine, ReadyProbe{Redis: rdb}, "test")
	srv := httptest.NewServer(api.Handler())
	t.Cleanup(srv.Close)

	return srv, sink
}

func postJSON(t *testing.T, url string, body any) (*http.Response, map[string]any) {
	t.Helper()

	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("POST %s failed: %v", url, err)
	}
	t.Cleanup(func() { resp.Body.Close() })

	var decoded map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return resp, decoded
}

func TestRootServesAuthUI(t *testing.T) {
	srv, _ := newTestAPI(t)

	resp, err := http.Get(srv.URL + "/")
	if err != nil {
		t.Fatalf("GET / failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Fatalf("Content-Type = %q, want text/html", ct)
	}
	if resp.Header.Get("X-Request-Id") == "" {
		t.Fatal("missing X-Request-Id header")
	}
}

func TestFullFlowOverHTTP(t *testing.T) {
	srv, sink := newTestAPI(t)

	resp, _ := postJSON(t, srv.URL+"/signup", map[string]string{
		"email":    "user@example.com",
		"password": "secret123",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("signup status = %d, want 201", resp.StatusCode)
	}

	resp, body := postJSON(t, srv.URL+"/login", map[string]string{
		"email":    "user@example.com",
		"password": "secret123",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login status = %d, want 200", resp.StatusCode)
	}
	attemptID, _ := body["attempt_id"].(string)
	if attemptID == "" {
		t.Fatal("login response missing attempt_id")
	}

	code := sink.codeFor("user@example.com")
	if code == "" {
		t.Fatal("no 2fa code delivered")
	}

	resp, body = postJSON(t, srv.URL+"/verify-2fa", map[string]string{
		"attempt_id": attemptID,
		"code":       code,
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("verify-2fa status = %d, want 200", resp.StatusCode)
	}
	token, _ := body["token"].(string)
	if token == "" {
		t.Fatal("verify-2fa response missing token")
	}

	var cookie *http.Cookie
	for _, c := range resp.Cookies() {
		if c.Name == tokenCookieName {
			cookie = c
		}
	}
	if cookie == nil || cookie.Value != token {
		t.Fatal("verify-2fa did not set the token cookie")
	}
	if !cookie.HttpOnly {
		t.Fatal("token cookie must be HttpOnly")
	}

	resp, body = postJSON(t, srv.URL+"/verify-token", map[string]string{"token": token})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("verify-token status = %d, want 200", resp.StatusCode)
	}
	if body["email"] != "user@example.com" {
		t.Fatalf("verify-token email = %v, want user@example.com", body["email"])
	}

	resp, _ = postJSON(t, srv.URL+"/logout", map[string]string{"token": token})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("logout status = %d, want 200", resp.StatusCode)
	}

	resp, _ = postJSON(t, srv.URL+"/verify-token", map[string]string{"token": token})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("verify-token after logout status = %d, want 401", resp.StatusCode)
	}
}

func TestLogoutFromCookie(t *testing.T) {
	srv, sink := newTestAPI(t)

	postJSON(t, srv.URL+"/signup", map[string]string{
		"email":    "user@example.com",
		"password": "secret123",
	})
	_, body := postJSON(t, srv.URL+"/login", map[string]string{
		"email":    "user@example.com",
		"password": "secret123",
	})
	attemptID, _ := body["attempt_id"].(string)

	resp, body := postJSON(t, srv.URL+"/verify-2fa", map[string]string{
		"attempt_id": attemptID,
		"code":       sink.codeFor("user@example.com"),
	})
	token, _ := body["token"].(string)

	req, err := http.NewRequest(http.MethodPost, srv.URL+"/logout", nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	for _, c := range resp.Cookies() {
		req.AddCookie(c)
	}
	logoutResp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("logout request failed: %v", err)
	}
	defer logoutResp.Body.Close()

	if logoutResp.StatusCode != http.StatusOK {
		t.Fatalf("logout status = %d, want 200", logoutResp.StatusCode)
	}

	verifyResp, _ := postJSON(t, srv.URL+"/verify-token", map[string]string{"token": token})
	if verifyResp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("verify-token status = %d, want 401", verifyResp.StatusCode)
	}
}

func TestStatusMapping(t *testing.T) {
	srv, _ := newTestAPI(t)

	postJSON(t, srv.URL+"/signup", map[string]string{
		"email":    "taken@example.com",
		"password": "secret123",
	})

	cases := []struct {
		name string
		path string
		body map[string]string
		want int
	}{
		{"duplicate signup", "/signup", map[string]string{"email": "taken@example.com", "password": "secret123"}, http.StatusConflict},
		{"malformed email", "/signup", map[string]string{"email": "not-an-email", "password": "secret123"}, http.StatusBadRequest},
		{"short password", "/signup", map[string]string{"email": "new@example.com", "password": "short"}, http.StatusBadRequest},
		{"unknown user login", "/login", map[string]string{"email": "ghost@example.com", "password": "secret123"}, http.StatusUnauthorized},
		{"wrong password login", "/login", map[string]string{"email": "taken@example.com", "password": "wrongpass"}, http.StatusUnauthorized},
		{"bogus 2fa attempt", "/verify-2fa", map[string]string{"attempt_id": "nope", "code": "123456"}, http.StatusUnauthorized},
		{"garbage token", "/verify-token", map[string]string{"token": "garbage"}, http.StatusUnauthorized},
		{"missing logout token", "/logout", map[string]string{}, http.StatusBadRequest},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp, body := postJSON(t, srv.URL+tc.path, tc.body)
			if resp.StatusCode != tc.want {
				t.Fatalf("status = %d, want %d (body %v)", resp.StatusCode, tc.want, body)
			}
		})
	}
}

func TestRejectsWrongMethodAndBadJSON(t *testing.T) {
	srv, _ := newTestAPI(t)

	resp, err := http.Get(srv.URL + "/signup")
	if err != nil {
		t.Fatalf("GET /signup failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("GET /signup status = %d, want 405", resp.StatusCode)
	}
	if allow := resp.Header.Get("Allow"); allow != http.MethodPost {
		t.Fatalf("Allow = %q, want POST", allow)
	}

	resp, err = http.Post(srv.URL+"/signup", "application/json", strings.NewReader("{not json"))
	if err != nil {
		t.Fatalf("POST /signup failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("bad json status = %d, want 400", resp.StatusCode)
	}

	resp, err = http.Post(srv.URL+"/signup", "application/json", strings.NewReader(`{"email":"a@b.com","password":"secret123","extra":1}`))
	if err != nil {
		t.Fatalf("POST /signup failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("unknown field status = %d, want 400", resp.StatusCode)
	}
}

func TestHealthAndReadiness(t *testing.T) {
	srv, _ := newTestAPI(t)

	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("healthz status = %d, want 200", resp.StatusCode)
	}

	resp, err = http.Get(srv.URL + "/readyz")
	if err != nil {
		t.Fatalf("GET /readyz failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("readyz status = %d, want 200", resp.StatusCode)
	}
}

func TestMetricsEndpoints(t *testing.T) {
	srv, _ := newTestAPI(t)

	resp, err := http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("metrics status = %d, want 200", resp.StatusCode)
	}

	resp, err = http.Get(srv.URL + "/metrics/engine")
	if err != nil {
		t.Fatalf("GET /metrics/engine failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("engine metrics status = %d, want 200", resp.StatusCode)
	}

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(resp.Body); err != nil {
		t.Fatalf("read engine metrics: %v", err)
	}
	if !strings.Contains(buf.String(), "authgate_signup_success_total") {
		t.Fatal("engine metrics missing signup counter")
	}
}
