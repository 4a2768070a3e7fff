package authapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/gateward/gateward/internal/access"
	"github.com/gateward/gateward/internal/log"
	"github.com/gateward/gateward/internal/session"
	"github.com/gateward/gateward/internal/token"
	"github.com/gateward/gateward/internal/userstore"
)

const testSecret = "unit-test-shared-secret"

func newTestAPI(t *testing.T, store userstore.Store) (*API, *token.Codec) {
	t.Helper()
	codec, err := token.NewCodec(testSecret)
	if err != nil {
		t.Fatal(err)
	}
	if store == nil {
		m := userstore.NewMemory()
		if err := userstore.SeedDemo(m, "demo123"); err != nil {
			t.Fatal(err)
		}
		store = m
	}
	api, err := New(Options{
		Store:   store,
		Codec:   codec,
		Cookies: session.CookieWriter{Secure: true},
		Logger:  log.Nop(),
	})
	if err != nil {
		t.Fatal(err)
	}
	return api, codec
}

func newTestRouter(t *testing.T, api *API) chi.Router {
	t.Helper()
	r := chi.NewRouter()
	api.RegisterRoutes(r)
	return r
}

func postJSON(t *testing.T, h http.Handler, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var m map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &m); err != nil {
		t.Fatalf("decoding %q: %v", rec.Body.String(), err)
	}
	return m
}

func cookiesByName(rec *httptest.ResponseRecorder) map[string]*http.Cookie {
	out := make(map[string]*http.Cookie)
	for _, c := range rec.Result().Cookies() {
		out[c.Name] = c
	}
	return out
}

func TestLogin_Success(t *testing.T) {
	api, codec := newTestAPI(t, nil)
	r := newTestRouter(t, api)

	rec := postJSON(t, r, "/login", map[string]string{
		"email":    "member@example.com",
		"password": "demo123",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}

	body := decodeBody(t, rec)
	if body["success"] != true {
		t.Error("success flag missing")
	}
	user := body["user"].(map[string]any)
	if user["level"] != "member" || user["email"] != "member@example.com" {
		t.Errorf("user payload: %v", user)
	}

	cookies := cookiesByName(rec)
	verification, ok := cookies[session.VerificationCookie]
	if !ok {
		t.Fatal("verification cookie not set")
	}
	userData, ok := cookies[session.UserDataCookie]
	if !ok {
		t.Fatal("user_data cookie not set")
	}

	// the two cookies must agree: decrypting the token yields exactly the
	// canonical JSON carried by user_data
	plaintext, err := codec.Decrypt(verification.Value)
	if err != nil {
		t.Fatalf("issued token does not decrypt: %v", err)
	}
	decoded, err := url.QueryUnescape(userData.Value)
	if err != nil {
		t.Fatal(err)
	}
	if plaintext != decoded {
		t.Errorf("token plaintext %q != user_data %q", plaintext, decoded)
	}
}

func TestLogin_BadCredentials(t *testing.T) {
	api, _ := newTestAPI(t, nil)
	r := newTestRouter(t, api)

	cases := []map[string]string{
		{"email": "member@example.com", "password": "wrong"},
		{"email": "nobody@example.com", "password": "demo123"},
	}
	var bodies []string
	for _, c := range cases {
		rec := postJSON(t, r, "/login", c)
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("%v: status %d", c, rec.Code)
		}
		if len(rec.Result().Cookies()) != 0 {
			t.Errorf("%v: cookies set on failed login", c)
		}
		bodies = append(bodies, rec.Body.String())
	}
	// unknown user and wrong password must be indistinguishable
	if bodies[0] != bodies[1] {
		t.Errorf("failure bodies differ: %q vs %q", bodies[0], bodies[1])
	}
}

func TestLogin_MissingFields(t *testing.T) {
	api, _ := newTestAPI(t, nil)
	r := newTestRouter(t, api)

	for _, body := range []map[string]string{
		{"email": "member@example.com"},
		{"password": "demo123"},
		{},
	} {
		rec := postJSON(t, r, "/login", body)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("%v: status %d", body, rec.Code)
		}
	}
}

// failingStore simulates a storage fault.
type failingStore struct{}

func (failingStore) FindByEmail(context.Context, string) (*userstore.User, error) {
	return nil, errors.New("connection reset")
}

func TestLogin_StorageFault(t *testing.T) {
	api, _ := newTestAPI(t, failingStore{})
	r := newTestRouter(t, api)

	rec := postJSON(t, r, "/login", map[string]string{
		"email":    "member@example.com",
		"password": "demo123",
	})
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status %d", rec.Code)
	}
	// generic message only; detail stays in server logs
	if body := decodeBody(t, rec); body["error"] != "internal server error" {
		t.Errorf("leaked detail: %v", body)
	}
}

func TestLogout_Idempotent(t *testing.T) {
	api, _ := newTestAPI(t, nil)
	r := newTestRouter(t, api)

	for i := 0; i < 2; i++ {
		rec := postJSON(t, r, "/logout", nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("call %d: status %d", i+1, rec.Code)
		}
		// check the raw headers: parsing cannot tell Max-Age=0 apart
		// from no Max-Age attribute at all
		raw := rec.Header().Values("Set-Cookie")
		for _, name := range []string{session.VerificationCookie, session.UserDataCookie} {
			cleared := false
			for _, h := range raw {
				if strings.HasPrefix(h, name+"=;") && strings.Contains(h, "Max-Age=0") {
					cleared = true
				}
			}
			if !cleared {
				t.Errorf("call %d: %s not expired on the wire: %v", i+1, name, raw)
			}
		}
	}
}

func TestVerify_Match(t *testing.T) {
	api, codec := newTestAPI(t, nil)
	r := newTestRouter(t, api)

	desc := session.Descriptor{UserID: "u1", Email: "member@example.com", UserName: "Demo Member", Level: access.Member}
	canonical, _ := desc.CanonicalJSON()
	tok, err := codec.Encrypt(canonical)
	if err != nil {
		t.Fatal(err)
	}

	rec := postJSON(t, r, "/verify", map[string]any{
		"verification": tok,
		"userData":     desc,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	if body["valid"] != true || body["userId"] != "u1" || body["level"] != "member" {
		t.Errorf("body: %v", body)
	}
}

func TestVerify_TamperedDescriptor(t *testing.T) {
	api, codec := newTestAPI(t, nil)
	r := newTestRouter(t, api)

	desc := session.Descriptor{UserID: "u1", Email: "member@example.com", UserName: "Demo Member", Level: access.Member}
	canonical, _ := desc.CanonicalJSON()
	tok, err := codec.Encrypt(canonical)
	if err != nil {
		t.Fatal(err)
	}

	// claim premium with a member token
	forged := desc
	forged.Level = access.Premium
	rec := postJSON(t, r, "/verify", map[string]any{
		"verification": tok,
		"userData":     forged,
	})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status %d", rec.Code)
	}
}

func TestVerify_InvalidToken(t *testing.T) {
	api, _ := newTestAPI(t, nil)
	r := newTestRouter(t, api)

	desc := session.Descriptor{UserID: "u1", Level: access.Member}
	for _, tok := range []string{"garbage", "aa:bb", ""} {
		body := map[string]any{"verification": tok, "userData": desc}
		rec := postJSON(t, r, "/verify", body)
		want := http.StatusUnauthorized
		if tok == "" {
			want = http.StatusBadRequest
		}
		if rec.Code != want {
			t.Errorf("token %q: status %d, want %d", tok, rec.Code, want)
		}
	}
}

func TestVerify_MissingFields(t *testing.T) {
	api, _ := newTestAPI(t, nil)
	r := newTestRouter(t, api)

	rec := postJSON(t, r, "/verify", map[string]any{"verification": "aa:bb"})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("missing userData: status %d", rec.Code)
	}
}

func TestVerifyLocal(t *testing.T) {
	api, codec := newTestAPI(t, nil)

	desc := session.Descriptor{UserID: "u1", Email: "e", UserName: "n", Level: access.Admin}
	canonical, _ := desc.CanonicalJSON()
	tok, _ := codec.Encrypt(canonical)

	if !api.VerifyLocal(context.Background(), tok, desc) {
		t.Error("matching descriptor rejected")
	}
	forged := desc
	forged.UserID = "u2"
	if api.VerifyLocal(context.Background(), tok, forged) {
		t.Error("forged descriptor accepted")
	}
	if api.VerifyLocal(context.Background(), "junk", desc) {
		t.Error("junk token accepted")
	}
}
