package remotesync

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/campkeeper/campkeeper/internal/campaign"
	"github.com/campkeeper/campkeeper/internal/httpapi"
)

func startHub(t *testing.T) (*httptest.Server, string) {
	t.Helper()
	hub := httpapi.NewHub(httpapi.HubConfig{JWTSecret: "test-secret"})
	srv := httptest.NewServer(hub)
	t.Cleanup(srv.Close)
	token, err := httpapi.IssueToken("test-secret", "default",
		[]string{httpapi.ScopeDocRead, httpapi.ScopeDocWrite}, time.Hour, time.Now())
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	return srv, token
}

func newHubClientForTest(t *testing.T, srv *httptest.Server, token string) *HubClient {
	t.Helper()
	client, err := NewHubClient(HubClientOptions{
		BaseURL:    srv.URL,
		CampaignID: "default",
		Token:      token,
		HTTPClient: srv.Client(),
	})
	if err != nil {
		t.Fatalf("new hub client: %v", err)
	}
	return client
}

func TestHubClientPublishFetchRoundTrip(t *testing.T) {
	srv, token := startHub(t)
	client := newHubClientForTest(t, srv, token)
	ctx := context.Background()

	_, exists, err := client.Fetch(ctx)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if exists {
		t.Fatalf("fresh hub reported a document")
	}

	doc := campaign.DefaultDocument()
	doc.Campaign.Name = "Pushed Through Client"
	if err := client.Publish(ctx, doc); err != nil {
		t.Fatalf("publish: %v", err)
	}

	got, exists, err := client.Fetch(ctx)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if !exists {
		t.Fatalf("document missing after publish")
	}
	if got.Campaign.Name != "Pushed Through Client" {
		t.Fatalf("round trip changed document: %s", got.Campaign.Name)
	}
}

func TestHubClientRejectedWithoutToken(t *testing.T) {
	srv, _ := startHub(t)
	client := newHubClientForTest(t, srv, "")
	if err := client.Publish(context.Background(), campaign.DefaultDocument()); err == nil {
		t.Fatalf("expected publish to fail without a token")
	}
}

func TestHubClientSubscribeSeesPublishes(t *testing.T) {
	srv, token := startHub(t)
	client := newHubClientForTest(t, srv, token)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	snapshots, err := client.Subscribe(ctx)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	first := <-snapshots
	if first.Err != nil {
		t.Fatalf("first snapshot errored: %v", first.Err)
	}
	if first.Exists {
		t.Fatalf("fresh hub sent a document on subscribe")
	}

	doc := campaign.DefaultDocument()
	doc.Campaign.Name = "Broadcast Me"
	if err := client.Publish(ctx, doc); err != nil {
		t.Fatalf("publish: %v", err)
	}

	for {
		select {
		case snap := <-snapshots:
			if snap.Err != nil {
				t.Fatalf("snapshot errored: %v", snap.Err)
			}
			if snap.Exists && snap.Doc.Campaign.Name == "Broadcast Me" {
				return
			}
		case <-ctx.Done():
			t.Fatalf("never received the published document")
		}
	}
}
