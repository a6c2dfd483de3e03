package sendgrid

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

const defaultBaseURL = "https://api.sendgrid.com"

// ErrMissingAPIKey is returned by Send when the client was built without an
// API key. Every send would fail, so callers should stop rather than skip.
var ErrMissingAPIKey = eris.New("sendgrid: api key not configured")

// Client sends transactional mail through the SendGrid v3 API.
type Client interface {
	Send(ctx context.Context, mail Mail) (int, error)
}

// Address is an email address with an optional display name.
type Address struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

// Mail is a single message to one or more recipients.
type Mail struct {
	From      Address
	To        []Address
	ReplyTo   *Address
	Subject   string
	PlainText string
	HTML      string
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL overrides the default API base URL.
func WithBaseURL(url string) Option {
	return func(c *httpClient) {
		c.baseURL = strings.TrimRight(url, "/")
	}
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

type httpClient struct {
	apiKey  string
	baseURL string
	http    *http.Client
}

// NewClient creates a SendGrid API client. An empty apiKey is accepted here
// and reported on the first Send.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		http: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

type personalization struct {
	To []Address `json:"to"`
}

type content struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

type sendRequest struct {
	Personalizations []personalization `json:"personalizations"`
	From             Address           `json:"from"`
	ReplyTo          *Address          `json:"reply_to,omitempty"`
	Subject          string            `json:"subject"`
	Content          []content         `json:"content"`
}

func buildRequest(m Mail) sendRequest {
	req := sendRequest{
		Personalizations: []personalization{{To: m.To}},
		From:             m.From,
		ReplyTo:          m.ReplyTo,
		Subject:          m.Subject,
	}
	// SendGrid requires text/plain to precede text/html.
	if m.PlainText != "" {
		req.Content = append(req.Content, content{Type: "text/plain", Value: m.PlainText})
	}
	if m.HTML != "" {
		req.Content = append(req.Content, content{Type: "text/html", Value: m.HTML})
	}
	return req
}

// Send posts the message and returns the HTTP status code. Any non-2xx
// status is an error.
func (c *httpClient) Send(ctx context.Context, m Mail) (int, error) {
	if c.apiKey == "" {
		return 0, ErrMissingAPIKey
	}
	if len(m.To) == 0 {
		return 0, eris.New("sendgrid: no recipients")
	}

	body, err := json.Marshal(buildRequest(m))
	if err != nil {
		return 0, eris.Wrap(err, "sendgrid: marshal request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v3/mail/send", bytes.NewReader(body))
	if err != nil {
		return 0, eris.Wrap(err, "sendgrid: create request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, eris.Wrap(err, "sendgrid: send request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return resp.StatusCode, eris.Errorf("sendgrid: unexpected status %d: %s", resp.StatusCode, string(respBody))
	}
	return resp.StatusCode, nil
}
