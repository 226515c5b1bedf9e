package remotesync

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/campkeeper/campkeeper/internal/campaign"
)

// HubClientOptions configures a client for the campaign hub. Zero values get
// conservative defaults.
type HubClientOptions struct {
	BaseURL    string
	CampaignID string
	Token      string
	HTTPClient *http.Client
	Logger     campaign.Logger
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

// HubClient is a RemoteStore backed by the campaign hub's HTTP and WebSocket
// API. Document reads and writes retry on 429 and 5xx with exponential
// backoff, honoring Retry-After.
type HubClient struct {
	baseURL    string
	campaignID string
	token      string
	httpClient *http.Client
	logger     campaign.Logger
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration
}

func NewHubClient(opts HubClientOptions) (*HubClient, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		return nil, campaign.ErrInvalidInput
	}
	campaignID := strings.TrimSpace(opts.CampaignID)
	if campaignID == "" {
		campaignID = "default"
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 20 * time.Second}
	}
	maxRetries := opts.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}
	baseDelay := opts.BaseDelay
	if baseDelay <= 0 {
		baseDelay = 100 * time.Millisecond
	}
	maxDelay := opts.MaxDelay
	if maxDelay <= 0 {
		maxDelay = 2 * time.Second
	}
	return &HubClient{
		baseURL:    baseURL,
		campaignID: campaignID,
		token:      strings.TrimSpace(opts.Token),
		httpClient: httpClient,
		logger:     opts.Logger,
		maxRetries: maxRetries,
		baseDelay:  baseDelay,
		maxDelay:   maxDelay,
	}, nil
}

func (c *HubClient) documentURL() string {
	return c.baseURL + "/v1/campaigns/" + c.campaignID + "/document"
}

// Publish PUTs the full document.
func (c *HubClient) Publish(ctx context.Context, doc campaign.Document) error {
	body, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	status, _, err := c.doJSON(ctx, http.MethodPut, c.documentURL(), body)
	if err != nil {
		return err
	}
	if status < 200 || status > 299 {
		return fmt.Errorf("hub rejected document: status=%d", status)
	}
	return nil
}

// Fetch GETs the remote document. A 404 means the hub holds no document yet.
func (c *HubClient) Fetch(ctx context.Context) (campaign.Document, bool, error) {
	status, body, err := c.doJSON(ctx, http.MethodGet, c.documentURL(), nil)
	if err != nil {
		return campaign.Document{}, false, err
	}
	if status == http.StatusNotFound {
		return campaign.Document{}, false, nil
	}
	if status < 200 || status > 299 {
		return campaign.Document{}, false, fmt.Errorf("hub fetch failed: status=%d", status)
	}
	doc, err := campaign.DecodeDocument(body)
	if err != nil {
		return campaign.Document{}, false, err
	}
	return doc, true, nil
}

func (c *HubClient) doJSON(ctx context.Context, method, url string, body []byte) (int, []byte, error) {
	for attempt := 0; ; attempt++ {
		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, url, reader)
		if err != nil {
			return 0, nil, err
		}
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if c.token != "" {
			req.Header.Set("Authorization", "Bearer "+c.token)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if attempt < c.maxRetries {
				if waitErr := sleepContext(ctx, c.retryDelay(attempt+1, "")); waitErr != nil {
					return 0, nil, waitErr
				}
				continue
			}
			return 0, nil, err
		}

		respBody, readErr := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if readErr != nil {
			return 0, nil, readErr
		}

		if (resp.StatusCode == http.StatusTooManyRequests || (resp.StatusCode >= 500 && resp.StatusCode <= 599)) && attempt < c.maxRetries {
			if waitErr := sleepContext(ctx, c.retryDelay(attempt+1, resp.Header.Get("Retry-After"))); waitErr != nil {
				return 0, nil, waitErr
			}
			continue
		}
		return resp.StatusCode, respBody, nil
	}
}

func (c *HubClient) retryDelay(attempt int, retryAfterHeader string) time.Duration {
	if retryAfter := parseRetryAfterSeconds(retryAfterHeader); retryAfter > 0 {
		if retryAfter > c.maxDelay {
			return c.maxDelay
		}
		return retryAfter
	}
	delay := c.baseDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= c.maxDelay {
			return c.maxDelay
		}
	}
	if delay > c.maxDelay {
		return c.maxDelay
	}
	return delay
}

func parseRetryAfterSeconds(header string) time.Duration {
	header = strings.TrimSpace(header)
	if header == "" {
		return 0
	}
	seconds, err := strconv.Atoi(header)
	if err != nil || seconds < 0 {
		return 0
	}
	return time.Duration(seconds) * time.Second
}

func sleepContext(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// wireSnapshot is the hub's subscription frame.
type wireSnapshot struct {
	Exists   bool            `json:"exists"`
	Document json.RawMessage `json:"document,omitempty"`
}

const subscribeReconnectCap = 30 * time.Second

// Subscribe opens the hub's WebSocket feed. The hub sends the current state
// as the first frame and one frame per subsequent change. Connection drops
// are retried with capped exponential backoff; each reconnect re-emits the
// current remote state, so the reconciler always converges.
func (c *HubClient) Subscribe(ctx context.Context) (<-chan Snapshot, error) {
	out := make(chan Snapshot, 1)
	go func() {
		defer close(out)
		delay := c.baseDelay
		for {
			err := c.readFeed(ctx, out)
			if ctx.Err() != nil {
				return
			}
			if err != nil {
				c.logf("hub subscription dropped: %v", err)
				select {
				case out <- Snapshot{Err: err}:
				case <-ctx.Done():
					return
				}
			}
			if waitErr := sleepContext(ctx, delay); waitErr != nil {
				return
			}
			delay *= 2
			if delay > subscribeReconnectCap {
				delay = subscribeReconnectCap
			}
		}
	}()
	return out, nil
}

func (c *HubClient) readFeed(ctx context.Context, out chan<- Snapshot) error {
	wsURL := strings.Replace(c.baseURL, "http", "ws", 1) +
		"/v1/campaigns/" + c.campaignID + "/subscribe"
	opts := &websocket.DialOptions{HTTPClient: c.httpClient}
	if c.token != "" {
		opts.HTTPHeader = http.Header{"Authorization": {"Bearer " + c.token}}
	}
	conn, _, err := websocket.Dial(ctx, wsURL, opts)
	if err != nil {
		return err
	}
	defer conn.Close(websocket.StatusNormalClosure, "")
	conn.SetReadLimit(64 << 20)

	for {
		var frame wireSnapshot
		if err := wsjson.Read(ctx, conn, &frame); err != nil {
			return err
		}
		snap := Snapshot{Exists: frame.Exists}
		if frame.Exists {
			doc, err := campaign.DecodeDocument(frame.Document)
			if err != nil {
				c.logf("hub sent undecodable document: %v", err)
				continue
			}
			snap.Doc = doc
		}
		select {
		case out <- snap:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (c *HubClient) logf(format string, args ...any) {
	if c.logger == nil {
		return
	}
	c.logger.Printf(format, args...)
}
