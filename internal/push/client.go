package push

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/ordercast/notify-service/internal/model"
	"go.uber.org/zap"
)

// ErrInvalidToken means the gateway reported the token permanently dead.
// Callers deactivate the endpoint; transient failures stay plain errors and
// the next order event retries naturally.
var ErrInvalidToken = errors.New("push token no longer valid")

// Gateway error strings that mean the token is permanently invalid.
var permanentReasons = map[string]bool{
	"NotRegistered":       true,
	"InvalidRegistration": true,
	"MismatchSenderId":    true,
}

// Target is one device token to notify.
type Target struct {
	Token    string
	Platform model.Platform
}

// Notification is the user-visible part of a push.
type Notification struct {
	Title string
	Body  string
	Data  map[string]string
}

// Settlement is the outcome of one target's send within a batch.
type Settlement struct {
	Target    Target
	MessageID string
	Err       error
}

// Sender is the delivery capability the dispatcher and registry depend on.
type Sender interface {
	Send(ctx context.Context, t Target, n Notification) (string, error)
	SendAll(ctx context.Context, targets []Target, n Notification) []Settlement
	EnsureRegistration(ctx context.Context, token string, platform model.Platform) (string, error)
}

// Client talks to the platform push gateway over HTTPS.
type Client struct {
	baseURL string
	apiKey  string
	httpc   *http.Client
	log     *zap.SugaredLogger
}

// NewClient constructs a gateway client.
func NewClient(baseURL, apiKey string, timeout time.Duration, logger *zap.SugaredLogger) *Client {
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpc:   &http.Client{Timeout: timeout},
		log:     logger,
	}
}

type sendResponse struct {
	MessageID string `json:"message_id"`
	Error     string `json:"error"`
}

// payload builds the platform-specific body. iOS follows APNs alert/sound/
// badge conventions; android (and unknown, which the colon heuristic could
// not classify) uses the FCM notification+data shape.
func payload(t Target, n Notification) map[string]interface{} {
	if t.Platform == model.PlatformIOS {
		return map[string]interface{}{
			"to": t.Token,
			"aps": map[string]interface{}{
				"alert": map[string]string{"title": n.Title, "body": n.Body},
				"sound": "default",
				"badge": 1,
			},
			"data": n.Data,
		}
	}
	return map[string]interface{}{
		"to":           t.Token,
		"priority":     "high",
		"notification": map[string]string{"title": n.Title, "body": n.Body},
		"data":         n.Data,
	}
}

// Send delivers one notification. Returns the gateway message id on
// success; ErrInvalidToken when the token is permanently dead.
func (c *Client) Send(ctx context.Context, t Target, n Notification) (string, error) {
	body, err := json.Marshal(payload(t, n))
	if err != nil {
		return "", err
	}
	resp, err := c.post(ctx, c.baseURL+"/send", body)
	if err != nil {
		return "", fmt.Errorf("push gateway: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		return "", ErrInvalidToken
	case resp.StatusCode >= 500:
		return "", fmt.Errorf("push gateway status %d", resp.StatusCode)
	}

	var out sendResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<16)).Decode(&out); err != nil {
		return "", fmt.Errorf("push gateway response: %w", err)
	}
	if out.Error != "" {
		if permanentReasons[out.Error] {
			return "", fmt.Errorf("%s: %w", out.Error, ErrInvalidToken)
		}
		return "", fmt.Errorf("push gateway: %s", out.Error)
	}
	return out.MessageID, nil
}

// SendAll fans one notification out to every target concurrently and
// collects every settlement. One token's failure never aborts the batch.
func (c *Client) SendAll(ctx context.Context, targets []Target, n Notification) []Settlement {
	results := make([]Settlement, len(targets))
	var wg sync.WaitGroup
	for i, t := range targets {
		wg.Add(1)
		go func(i int, t Target) {
			defer wg.Done()
			id, err := c.Send(ctx, t, n)
			results[i] = Settlement{Target: t, MessageID: id, Err: err}
		}(i, t)
	}
	wg.Wait()
	return results
}

type registrationResponse struct {
	RegistrationID string `json:"registration_id"`
	Error          string `json:"error"`
}

// EnsureRegistration pre-creates the per-device gateway handle. An
// already-exists answer is success: the existing handle is reused.
func (c *Client) EnsureRegistration(ctx context.Context, token string, platform model.Platform) (string, error) {
	body, err := json.Marshal(map[string]string{
		"token":    token,
		"platform": string(platform),
	})
	if err != nil {
		return "", err
	}
	resp, err := c.post(ctx, c.baseURL+"/registrations", body)
	if err != nil {
		return "", fmt.Errorf("push gateway: %w", err)
	}
	defer resp.Body.Close()

	var out registrationResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<16)).Decode(&out); err != nil {
		return "", fmt.Errorf("push gateway response: %w", err)
	}
	if resp.StatusCode == http.StatusConflict {
		// handle already exists for this token; reuse it
		return out.RegistrationID, nil
	}
	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("push gateway status %d: %s", resp.StatusCode, out.Error)
	}
	return out.RegistrationID, nil
}

func (c *Client) post(ctx context.Context, url string, body []byte) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "key="+c.apiKey)
	return c.httpc.Do(req)
}
