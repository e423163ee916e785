package web

import (
	"context"
	"encoding/json"
	"io/fs"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/hpungsan/mesa/internal/capsule"
	"github.com/hpungsan/mesa/internal/config"
	"github.com/hpungsan/mesa/internal/db"
	"github.com/hpungsan/mesa/internal/ops"
)

type testServer struct {
	env     *ops.Env
	handler http.Handler
}

func setupTest(t *testing.T) *testServer {
	t.Helper()
	tmpDir := t.TempDir()
	database, err := db.Init(tmpDir)
	if err != nil {
		t.Fatalf("db.Init: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	cat, err := capsule.Default()
	if err != nil {
		t.Fatalf("capsule.Default: %v", err)
	}
	env, err := ops.NewEnv(database, config.DefaultConfig(), cat, tmpDir)
	if err != nil {
		t.Fatalf("ops.NewEnv: %v", err)
	}

	templateSub, err := fs.Sub(templateFS, "templates")
	if err != nil {
		t.Fatalf("template sub-FS: %v", err)
	}
	staticSub, err := fs.Sub(staticFS, "static")
	if err != nil {
		t.Fatalf("static sub-FS: %v", err)
	}

	h := &Handlers{
		env:      env,
		renderer: NewRenderer(templateSub, "test", nil),
	}
	return &testServer{env: env, handler: securityHeaders(h.routes(staticSub))}
}

func (s *testServer) do(t *testing.T, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func jsonGet(target string) *http.Request {
	req := httptest.NewRequest("GET", target, nil)
	req.Header.Set("Accept", "application/json")
	return req
}

func formPost(target string, form url.Values) *http.Request {
	req := httptest.NewRequest("POST", target, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

// seedSession starts a borrachos session and returns its ID.
func seedSession(t *testing.T, s *testServer, userID string) string {
	t.Helper()
	out, err := ops.StartSession(context.Background(), s.env, ops.StartSessionInput{CapsuleID: "borrachos", UserID: userID})
	if err != nil {
		t.Fatalf("seed session: %v", err)
	}
	return out.Session.ID
}

// seedWallet plays a full mild session for userID.
func seedWallet(t *testing.T, s *testServer, userID string) {
	t.Helper()
	id := seedSession(t, s, userID)
	for i := 0; i < 5; i++ {
		if _, err := ops.AttemptChallenge(context.Background(), s.env, ops.AttemptChallengeInput{SessionID: id}); err != nil {
			t.Fatalf("attempt %d: %v", i, err)
		}
	}
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode body: %v (%s)", err, rec.Body.String())
	}
	return out
}

// --- Catalog ---

func TestHandleCapsules_HTML(t *testing.T) {
	s := setupTest(t)

	rec := s.do(t, httptest.NewRequest("GET", "/capsules", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "<!DOCTYPE html>") {
		t.Error("expected full layout")
	}
	if !strings.Contains(body, "Borrachos") {
		t.Error("expected capsule name 'Borrachos' in response")
	}
	if !strings.Contains(body, "<strong>first toast</strong>") {
		t.Error("expected markdown description rendered to HTML")
	}
	if !strings.Contains(body, `/capsules/borrachos/challenges/filosofo`) {
		t.Error("expected links to each challenge card")
	}
}

func TestHandleCapsules_JSON(t *testing.T) {
	s := setupTest(t)

	rec := s.do(t, jsonGet("/capsules"))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}
	capsules := decodeBody(t, rec)["capsules"].([]any)
	if len(capsules) < 2 {
		t.Errorf("got %d capsules, want at least 2", len(capsules))
	}
}

func TestHandleCapsules_HtmxReturnsContentOnly(t *testing.T) {
	s := setupTest(t)

	req := httptest.NewRequest("GET", "/capsules", nil)
	req.Header.Set("HX-Request", "true")
	rec := s.do(t, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	body := rec.Body.String()
	if strings.Contains(body, "<!DOCTYPE") {
		t.Error("HTMX response should not include the layout")
	}
	if !strings.Contains(body, "Borrachos") {
		t.Error("expected content block in HTMX response")
	}
}

func TestRootRedirects(t *testing.T) {
	s := setupTest(t)

	rec := s.do(t, httptest.NewRequest("GET", "/", nil))
	if rec.Code != http.StatusFound {
		t.Fatalf("status = %d, want 302", rec.Code)
	}
	if loc := rec.Header().Get("Location"); loc != "/capsules" {
		t.Errorf("Location = %q, want /capsules", loc)
	}
}

func TestHandleChallenge(t *testing.T) {
	s := setupTest(t)

	rec := s.do(t, httptest.NewRequest("GET", "/capsules/borrachos/challenges/filosofo?tier=chaotic", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "<strong>worst life advice</strong>") {
		t.Error("expected the chaotic prompt rendered as markdown")
	}
	if !strings.Contains(body, "Loser picks the next song.") {
		t.Error("expected the social trigger")
	}

	rec = s.do(t, jsonGet("/capsules/borrachos/challenges/leyenda"))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if got := decodeBody(t, rec)["card_id"]; got != "borrachos_leyenda" {
		t.Errorf("card_id = %v, want borrachos_leyenda", got)
	}
}

func TestHandleChallenge_Errors(t *testing.T) {
	s := setupTest(t)

	tests := []struct {
		name   string
		target string
		status int
		code   string
	}{
		{"unknown capsule", "/capsules/nope/challenges/filosofo", http.StatusNotFound, "NOT_FOUND"},
		{"foreign archetype", "/capsules/borrachos/challenges/nobody", http.StatusUnprocessableEntity, "ARCHETYPE_MISMATCH"},
		{"bad tier", "/capsules/borrachos/challenges/filosofo?tier=extreme", http.StatusBadRequest, "INVALID_REQUEST"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(t, jsonGet(tt.target))
			if rec.Code != tt.status {
				t.Fatalf("status = %d, want %d", rec.Code, tt.status)
			}
			errObj := decodeBody(t, rec)["error"].(map[string]any)
			if errObj["code"] != tt.code {
				t.Errorf("code = %v, want %s", errObj["code"], tt.code)
			}
		})
	}
}

// --- Sessions ---

func TestHandleStartSession_Redirects(t *testing.T) {
	s := setupTest(t)

	rec := s.do(t, formPost("/sessions", url.Values{"capsule_id": {"borrachos"}, "user_id": {"ana"}}))
	if rec.Code != http.StatusFound {
		t.Fatalf("status = %d, want 302 (%s)", rec.Code, rec.Body.String())
	}
	loc := rec.Header().Get("Location")
	if !strings.HasPrefix(loc, "/sessions/") {
		t.Fatalf("Location = %q, want /sessions/<id>", loc)
	}

	page := s.do(t, httptest.NewRequest("GET", loc, nil))
	if page.Code != http.StatusOK {
		t.Fatalf("session page status = %d, want 200", page.Code)
	}
	body := page.Body.String()
	if !strings.Contains(body, "<strong>meaning of life</strong>") {
		t.Error("expected the current prompt on the session page")
	}
	if !strings.Contains(body, `class="phase">intro<`) {
		t.Error("expected the intro phase")
	}
}

func TestHandleStartSession_JSON(t *testing.T) {
	s := setupTest(t)

	req := formPost("/sessions", url.Values{"capsule_id": {"despecho"}, "tier": {"intense"}})
	req.Header.Set("Accept", "application/json")
	rec := s.do(t, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201", rec.Code)
	}
	sess := decodeBody(t, rec)["session"].(map[string]any)
	if sess["capsule_id"] != "despecho" || sess["tier"] != "intense" {
		t.Errorf("session = %v", sess)
	}
}

func TestHandleStartSession_UnknownCapsule(t *testing.T) {
	s := setupTest(t)

	rec := s.do(t, formPost("/sessions", url.Values{"capsule_id": {"nope"}}))
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "Error 422") {
		t.Error("expected the full error page")
	}
}

func TestHandleSession_JSON(t *testing.T) {
	s := setupTest(t)
	id := seedSession(t, s, "")

	rec := s.do(t, jsonGet("/sessions/"+id))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	out := decodeBody(t, rec)
	if out["session"].(map[string]any)["id"] != id {
		t.Errorf("session id = %v, want %s", out["session"], id)
	}
	if _, ok := out["attempts"]; ok {
		t.Error("attempts are opt-in for JSON")
	}
}

func TestHandleSession_NotFound(t *testing.T) {
	s := setupTest(t)

	rec := s.do(t, httptest.NewRequest("GET", "/sessions/missing", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "Error 404") || !strings.Contains(body, "session not found") {
		t.Errorf("expected full error page, got %s", body)
	}
}

func TestHandlePhase(t *testing.T) {
	s := setupTest(t)
	id := seedSession(t, s, "")

	rec := s.do(t, formPost("/sessions/"+id+"/phase", url.Values{"phase": {"challenge"}}))
	if rec.Code != http.StatusFound {
		t.Fatalf("status = %d, want 302", rec.Code)
	}

	req := formPost("/sessions/"+id+"/phase", url.Values{"phase": {"summary"}})
	req.Header.Set("Accept", "application/json")
	rec = s.do(t, req)
	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", rec.Code)
	}
	if code := decodeBody(t, rec)["error"].(map[string]any)["code"]; code != "INVALID_TRANSITION" {
		t.Errorf("code = %v, want INVALID_TRANSITION", code)
	}

	req = formPost("/sessions/"+id+"/phase", url.Values{"phase": {"recording"}})
	req.Header.Set("HX-Request", "true")
	rec = s.do(t, req)
	if got := rec.Header().Get("HX-Redirect"); got != "/sessions/"+id {
		t.Errorf("HX-Redirect = %q, want /sessions/%s", got, id)
	}
}

func TestHandleVote(t *testing.T) {
	s := setupTest(t)
	id := seedSession(t, s, "")
	joined, err := ops.JoinTable(context.Background(), s.env, ops.JoinTableInput{SessionID: id, Name: "Ana"})
	if err != nil {
		t.Fatalf("join: %v", err)
	}

	req := formPost("/sessions/"+id+"/votes", url.Values{"participant_id": {joined.Participant.ID}})
	req.Header.Set("HX-Request", "true")
	rec := s.do(t, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (%s)", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), `<span class="vote-count">1/3</span>`) {
		t.Errorf("unexpected tally fragment: %s", rec.Body.String())
	}

	req = formPost("/sessions/"+id+"/votes", url.Values{"participant_id": {"ghost"}})
	req.Header.Set("HX-Request", "true")
	rec = s.do(t, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `class="error-message"`) {
		t.Error("expected HTMX error fragment")
	}

	page := s.do(t, httptest.NewRequest("GET", "/sessions/"+id, nil))
	if !strings.Contains(page.Body.String(), "Ana") {
		t.Error("expected the participant on the session page")
	}
}

// --- Wallets ---

func TestHandleWallet(t *testing.T) {
	s := setupTest(t)
	seedWallet(t, s, "ana")

	rec := s.do(t, httptest.NewRequest("GET", "/wallets/ana", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "12 items") {
		t.Error("expected the wallet stats")
	}
	if !strings.Contains(body, "Redeem") {
		t.Error("expected redeem buttons")
	}

	rec = s.do(t, jsonGet("/wallets/ana?type=sticker"))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if items := decodeBody(t, rec)["items"].([]any); len(items) != 4 {
		t.Errorf("got %d stickers, want 4", len(items))
	}

	rec = s.do(t, jsonGet("/wallets/ana?type=coupon"))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}

	rec = s.do(t, httptest.NewRequest("GET", "/wallets", nil))
	if !strings.Contains(rec.Body.String(), `href="/wallets/ana"`) {
		t.Error("expected ana in the wallet index")
	}
}

func TestHandleRedeem(t *testing.T) {
	s := setupTest(t)
	seedWallet(t, s, "ana")

	rec := s.do(t, formPost("/wallets/ana/redeem", url.Values{"item_id": {"vault_borrachos"}}))
	if rec.Code != http.StatusFound {
		t.Fatalf("status = %d, want 302", rec.Code)
	}
	if loc := rec.Header().Get("Location"); loc != "/wallets/ana" {
		t.Errorf("Location = %q, want /wallets/ana", loc)
	}

	req := formPost("/wallets/ana/redeem", url.Values{"item_id": {"vault_borrachos"}})
	req.Header.Set("Accept", "application/json")
	rec = s.do(t, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	out := decodeBody(t, rec)
	if out["redeemed"] != false {
		t.Error("second redemption is a no-op")
	}
	code := out["item"].(map[string]any)["redemption_code"].(string)
	if !strings.HasPrefix(code, "VLT-") {
		t.Errorf("redemption_code = %q, want VLT- prefix", code)
	}

	page := s.do(t, httptest.NewRequest("GET", "/wallets/ana?type=vault", nil))
	if !strings.Contains(page.Body.String(), code) {
		t.Error("expected the redemption code on the wallet page")
	}
}

func TestHandlePurge_MissingConfirm(t *testing.T) {
	s := setupTest(t)

	rec := s.do(t, formPost("/wallets/purge", url.Values{}))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestHandlePurge_Responses(t *testing.T) {
	s := setupTest(t)
	seedWallet(t, s, "ana")

	req := formPost("/wallets/purge", url.Values{"confirm": {"true"}})
	req.Header.Set("Accept", "application/json")
	rec := s.do(t, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if msg := decodeBody(t, rec)["message"]; msg != "No expired items to purge" {
		t.Errorf("message = %v", msg)
	}

	req = formPost("/wallets/purge", url.Values{"confirm": {"true"}})
	req.Header.Set("HX-Request", "true")
	rec = s.do(t, req)
	if !strings.Contains(rec.Body.String(), `<div class="purge-result">No expired items to purge</div>`) {
		t.Errorf("unexpected fragment: %s", rec.Body.String())
	}

	rec = s.do(t, formPost("/wallets/purge", url.Values{"confirm": {"true"}, "user_id": {"ana"}}))
	if loc := rec.Header().Get("Location"); loc != "/wallets/ana" {
		t.Errorf("Location = %q, want /wallets/ana", loc)
	}
}

// --- Middleware and helpers ---

func TestSecurityHeaders(t *testing.T) {
	s := setupTest(t)

	rec := s.do(t, httptest.NewRequest("GET", "/static/style.css", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	for header, want := range map[string]string{
		"X-Content-Type-Options": "nosniff",
		"X-Frame-Options":        "DENY",
	} {
		if got := rec.Header().Get(header); got != want {
			t.Errorf("%s = %q, want %q", header, got, want)
		}
	}
	if !strings.Contains(rec.Header().Get("Content-Security-Policy"), "default-src 'self'") {
		t.Error("expected a restrictive CSP")
	}
}

func TestParseBoolParam(t *testing.T) {
	tests := []struct {
		query string
		want  bool
	}{
		{"flag=true", true},
		{"flag=1", true},
		{"flag=false", false},
		{"flag=yes", false},
		{"", false},
	}

	for _, tt := range tests {
		req := httptest.NewRequest("GET", "/?"+tt.query, nil)
		if got := parseBoolParam(req, "flag"); got != tt.want {
			t.Errorf("parseBoolParam(%q) = %v, want %v", tt.query, got, tt.want)
		}
	}
}

func TestDisplayID(t *testing.T) {
	if got := displayID("short"); got != "short" {
		t.Errorf("displayID(short) = %q", got)
	}
	if got := displayID("01HQZX0000000000000000"); got != "01HQZX0000..." {
		t.Errorf("displayID(long) = %q", got)
	}
}

func TestFormatVotes(t *testing.T) {
	if got := formatVotes(2, 3); got != "2/3" {
		t.Errorf("formatVotes(2, 3) = %q", got)
	}
	if got := formatVotes(2, 0); got != "2" {
		t.Errorf("formatVotes(2, 0) = %q", got)
	}
}

func TestRenderMarkdown(t *testing.T) {
	got := string(renderMarkdown("Stand **up** <script>alert(1)</script>"))
	if !strings.Contains(got, "<strong>up</strong>") {
		t.Errorf("expected emphasis, got %s", got)
	}
	if strings.Contains(got, "<script>") {
		t.Errorf("raw HTML must not pass through, got %s", got)
	}
}
