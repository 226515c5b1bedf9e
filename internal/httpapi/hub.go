// Package httpapi holds the two HTTP surfaces: the hub server that relays
// campaign documents between devices, and the local daemon API the browser UI
// talks to.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/campkeeper/campkeeper/internal/campaign"
)

type HubConfig struct {
	JWTSecret string
	// DataDir enables per-campaign document persistence when set; without it
	// the hub is memory-only and documents vanish on restart.
	DataDir      string
	MaxBodyBytes int64
	Logger       campaign.Logger
}

// Hub relays whole campaign documents. PUT replaces a campaign's document and
// fans it out to every subscriber; subscribers get the current state on
// connect. The hub never merges; last writer wins.
type Hub struct {
	cfg HubConfig

	mu        sync.Mutex
	campaigns map[string]*hubCampaign
}

type hubCampaign struct {
	data        []byte
	subscribers map[chan hubFrame]struct{}
	backend     campaign.Backend
}

// hubFrame is one subscription message. Document is nil when the campaign has
// no document yet.
type hubFrame struct {
	Exists   bool            `json:"exists"`
	Document json.RawMessage `json:"document,omitempty"`
}

func NewHub(cfg HubConfig) *Hub {
	if cfg.JWTSecret == "" {
		cfg.JWTSecret = "dev-secret"
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 64 << 20
	}
	return &Hub{
		cfg:       cfg,
		campaigns: map[string]*hubCampaign{},
	}
}

func (h *Hub) campaignLocked(id string) *hubCampaign {
	c, ok := h.campaigns[id]
	if !ok {
		c = &hubCampaign{subscribers: map[chan hubFrame]struct{}{}}
		if h.cfg.DataDir != "" {
			c.backend = campaign.NewJSONFileBackend(filepath.Join(h.cfg.DataDir, id+".json"))
			if data, err := c.backend.Load(); err != nil {
				h.logf("error loading persisted campaign %s: %v", id, err)
			} else {
				c.data = data
			}
		}
		h.campaigns[id] = c
	}
	return c
}

func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path == "/health" && r.Method == http.MethodGet {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		return
	}

	parts := strings.Split(strings.TrimPrefix(r.URL.Path, "/"), "/")
	if len(parts) != 4 || parts[0] != "v1" || parts[1] != "campaigns" {
		writeError(w, http.StatusNotFound, "not_found", "route not found")
		return
	}
	campaignID := parts[2]
	if campaignID == "" {
		writeError(w, http.StatusNotFound, "not_found", "missing campaign id")
		return
	}

	switch {
	case parts[3] == "document" && r.Method == http.MethodGet:
		h.handleGetDocument(w, r, campaignID)
	case parts[3] == "document" && r.Method == http.MethodPut:
		h.handlePutDocument(w, r, campaignID)
	case parts[3] == "subscribe" && r.Method == http.MethodGet:
		h.handleSubscribe(w, r, campaignID)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method for route")
	}
}

func (h *Hub) handleGetDocument(w http.ResponseWriter, r *http.Request, campaignID string) {
	if _, authErr := authorizeBearer(r.Header.Get("Authorization"), h.cfg.JWTSecret, campaignID, ScopeDocRead); authErr != nil {
		writeError(w, authErr.status, authErr.code, authErr.message)
		return
	}
	h.mu.Lock()
	data := h.campaignLocked(campaignID).data
	h.mu.Unlock()
	if data == nil {
		writeError(w, http.StatusNotFound, "not_found", "no document for campaign")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (h *Hub) handlePutDocument(w http.ResponseWriter, r *http.Request, campaignID string) {
	if _, authErr := authorizeBearer(r.Header.Get("Authorization"), h.cfg.JWTSecret, campaignID, ScopeDocWrite); authErr != nil {
		writeError(w, authErr.status, authErr.code, authErr.message)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, h.cfg.MaxBodyBytes)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, http.StatusRequestEntityTooLarge, "payload_too_large", "document exceeds configured limit")
			return
		}
		writeError(w, http.StatusBadRequest, "bad_request", "failed to read request body")
		return
	}
	if _, err := campaign.DecodeDocument(body); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "body is not a campaign document")
		return
	}

	h.mu.Lock()
	c := h.campaignLocked(campaignID)
	c.data = body
	if c.backend != nil {
		if err := c.backend.Save(body); err != nil {
			h.logf("error persisting campaign %s: %v", campaignID, err)
		}
	}
	frame := hubFrame{Exists: true, Document: body}
	for sub := range c.subscribers {
		// Non-blocking: a stalled subscriber drops intermediate frames and
		// catches up from its next delivered one, which carries full state.
		select {
		case sub <- frame:
		default:
		}
	}
	h.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]string{"status": "stored"})
}

func (h *Hub) handleSubscribe(w http.ResponseWriter, r *http.Request, campaignID string) {
	if _, authErr := authorizeBearer(r.Header.Get("Authorization"), h.cfg.JWTSecret, campaignID, ScopeDocRead); authErr != nil {
		writeError(w, authErr.status, authErr.code, authErr.message)
		return
	}
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close(websocket.StatusInternalError, "subscription ended")

	sub := make(chan hubFrame, 8)
	h.mu.Lock()
	c := h.campaignLocked(campaignID)
	c.subscribers[sub] = struct{}{}
	first := hubFrame{Exists: c.data != nil, Document: c.data}
	h.mu.Unlock()

	defer func() {
		h.mu.Lock()
		delete(c.subscribers, sub)
		h.mu.Unlock()
	}()

	// The hub only writes on this connection. CloseRead keeps control frames
	// processed and cancels ctx when the peer goes away, so a silently
	// disconnected subscriber is released without waiting for the next
	// broadcast write to fail.
	ctx := conn.CloseRead(r.Context())
	if err := writeFrame(ctx, conn, first); err != nil {
		return
	}
	for {
		select {
		case <-ctx.Done():
			conn.Close(websocket.StatusNormalClosure, "")
			return
		case frame := <-sub:
			if err := writeFrame(ctx, conn, frame); err != nil {
				return
			}
		}
	}
}

func writeFrame(ctx context.Context, conn *websocket.Conn, frame hubFrame) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return wsjson.Write(ctx, conn, frame)
}

func (h *Hub) logf(format string, args ...any) {
	if h.cfg.Logger == nil {
		return
	}
	h.cfg.Logger.Printf(format, args...)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]any{
		"code":    code,
		"message": message,
	})
}
