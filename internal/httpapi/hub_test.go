package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/campkeeper/campkeeper/internal/campaign"
)

const testSecret = "test-secret"

func testToken(t *testing.T, campaignID string, scopes []string) string {
	t.Helper()
	token, err := IssueToken(testSecret, campaignID, scopes, time.Hour, time.Now())
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	return token
}

func documentBody(t *testing.T, name string) []byte {
	t.Helper()
	doc := campaign.DefaultDocument()
	doc.Campaign.Name = name
	data, err := json.Marshal(doc)
	if err != nil {
		t.Fatalf("marshal document: %v", err)
	}
	return data
}

func doRequest(t *testing.T, hub *Hub, method, path, token string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	hub.ServeHTTP(rec, req)
	return rec
}

func TestHubRejectsMissingAndInvalidTokens(t *testing.T) {
	hub := NewHub(HubConfig{JWTSecret: testSecret})

	rec := doRequest(t, hub, http.MethodGet, "/v1/campaigns/default/document", "", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rec.Code)
	}

	wrong, err := IssueToken("other-secret", "default", []string{ScopeDocRead}, time.Hour, time.Now())
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	rec = doRequest(t, hub, http.MethodGet, "/v1/campaigns/default/document", wrong, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 with bad signature, got %d", rec.Code)
	}

	expired, err := IssueToken(testSecret, "default", []string{ScopeDocRead}, time.Hour, time.Now().Add(-2*time.Hour))
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	rec = doRequest(t, hub, http.MethodGet, "/v1/campaigns/default/document", expired, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 with expired token, got %d", rec.Code)
	}
}

func TestHubEnforcesCampaignAndScope(t *testing.T) {
	hub := NewHub(HubConfig{JWTSecret: testSecret})

	other := testToken(t, "other-campaign", []string{ScopeDocRead, ScopeDocWrite})
	rec := doRequest(t, hub, http.MethodGet, "/v1/campaigns/default/document", other, nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for campaign mismatch, got %d", rec.Code)
	}

	readOnly := testToken(t, "default", []string{ScopeDocRead})
	rec = doRequest(t, hub, http.MethodPut, "/v1/campaigns/default/document", readOnly, documentBody(t, "x"))
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for missing write scope, got %d", rec.Code)
	}
}

func TestHubDocumentRoundTrip(t *testing.T) {
	hub := NewHub(HubConfig{JWTSecret: testSecret})
	token := testToken(t, "default", []string{ScopeDocRead, ScopeDocWrite})

	rec := doRequest(t, hub, http.MethodGet, "/v1/campaigns/default/document", token, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 before first put, got %d", rec.Code)
	}

	rec = doRequest(t, hub, http.MethodPut, "/v1/campaigns/default/document", token, documentBody(t, "Stored Campaign"))
	if rec.Code != http.StatusOK {
		t.Fatalf("put failed: %d %s", rec.Code, rec.Body.String())
	}

	rec = doRequest(t, hub, http.MethodGet, "/v1/campaigns/default/document", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get failed: %d", rec.Code)
	}
	doc, err := campaign.DecodeDocument(rec.Body.Bytes())
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if doc.Campaign.Name != "Stored Campaign" {
		t.Fatalf("round trip changed document: %s", doc.Campaign.Name)
	}
}

func TestHubRejectsNonDocumentBody(t *testing.T) {
	hub := NewHub(HubConfig{JWTSecret: testSecret})
	token := testToken(t, "default", []string{ScopeDocWrite})
	rec := doRequest(t, hub, http.MethodPut, "/v1/campaigns/default/document", token, []byte(`"just a string"`))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for non-document body, got %d", rec.Code)
	}
}

func TestHubKeepsCampaignsSeparate(t *testing.T) {
	hub := NewHub(HubConfig{JWTSecret: testSecret})
	tokenA := testToken(t, "alpha", []string{ScopeDocRead, ScopeDocWrite})
	tokenB := testToken(t, "beta", []string{ScopeDocRead, ScopeDocWrite})

	rec := doRequest(t, hub, http.MethodPut, "/v1/campaigns/alpha/document", tokenA, documentBody(t, "Alpha"))
	if rec.Code != http.StatusOK {
		t.Fatalf("put alpha failed: %d", rec.Code)
	}
	rec = doRequest(t, hub, http.MethodGet, "/v1/campaigns/beta/document", tokenB, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("beta saw alpha's document: %d", rec.Code)
	}
}

func TestHubReleasesSubscriberOnClientClose(t *testing.T) {
	hub := NewHub(HubConfig{JWTSecret: testSecret})
	srv := httptest.NewServer(hub)
	defer srv.Close()
	token := testToken(t, "default", []string{ScopeDocRead})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	url := strings.Replace(srv.URL, "http", "ws", 1) + "/v1/campaigns/default/subscribe"
	conn, _, err := websocket.Dial(ctx, url, &websocket.DialOptions{
		HTTPHeader: http.Header{"Authorization": []string{"Bearer " + token}},
	})
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	var first hubFrame
	if err := wsjson.Read(ctx, conn, &first); err != nil {
		t.Fatalf("read first frame: %v", err)
	}

	subscriberCount := func() int {
		hub.mu.Lock()
		defer hub.mu.Unlock()
		return len(hub.campaignLocked("default").subscribers)
	}
	if n := subscriberCount(); n != 1 {
		t.Fatalf("expected 1 subscriber, got %d", n)
	}

	// The close must be noticed without any broadcast happening in between.
	_ = conn.Close(websocket.StatusNormalClosure, "")
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if subscriberCount() == 0 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("subscriber not released after client close")
}

func TestHubPersistsAcrossRestart(t *testing.T) {
	dir := t.TempDir()
	token := testToken(t, "default", []string{ScopeDocRead, ScopeDocWrite})

	hub := NewHub(HubConfig{JWTSecret: testSecret, DataDir: dir})
	rec := doRequest(t, hub, http.MethodPut, "/v1/campaigns/default/document", token, documentBody(t, "Durable"))
	if rec.Code != http.StatusOK {
		t.Fatalf("put failed: %d", rec.Code)
	}

	restarted := NewHub(HubConfig{JWTSecret: testSecret, DataDir: dir})
	rec = doRequest(t, restarted, http.MethodGet, "/v1/campaigns/default/document", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("document lost across restart: %d", rec.Code)
	}
	doc, err := campaign.DecodeDocument(rec.Body.Bytes())
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if doc.Campaign.Name != "Durable" {
		t.Fatalf("restart returned wrong document: %s", doc.Campaign.Name)
	}
}
