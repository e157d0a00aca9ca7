// ABOUTME: HTTP client for the analysis service's single query endpoint
// ABOUTME: Sends multipart or JSON bodies with optional bearer auth, decodes replies

package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"time"
)

// Encoding selects the request body format.
type Encoding string

const (
	EncodingMultipart Encoding = "multipart"
	EncodingJSON      Encoding = "json"
)

// maxReplyBytes caps how much of a response body is read.
const maxReplyBytes = 10 << 20

// HTTPError is returned for non-2xx responses. Detail carries the server's
// "detail" field when the body had one.
type HTTPError struct {
	StatusCode int
	Detail     string
}

func (e *HTTPError) Error() string {
	if e.Detail != "" {
		return e.Detail
	}
	return fmt.Sprintf("HTTP error! Status: %d", e.StatusCode)
}

// Signer mints a bearer token per request.
type Signer interface {
	Sign(subject string, ttl time.Duration) (string, error)
}

// Config configures a Client.
type Config struct {
	URL      string
	Encoding Encoding // default multipart

	// Token is sent verbatim as a bearer token. It takes precedence over
	// Signer.
	Token string
	// Signer, when set, mints a short-lived token for Subject per request.
	Signer  Signer
	Subject string

	HTTPClient *http.Client
}

// Client submits queries to the analysis service.
type Client struct {
	url      string
	encoding Encoding
	token    string
	signer   Signer
	subject  string
	client   *http.Client
	logger   *slog.Logger
}

// NewClient creates a client. Pass nil logger for default.
func NewClient(cfg Config, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	enc := cfg.Encoding
	if enc == "" {
		enc = EncodingMultipart
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	subject := cfg.Subject
	if subject == "" {
		subject = "insight-cli"
	}
	return &Client{
		url:      cfg.URL,
		encoding: enc,
		token:    cfg.Token,
		signer:   cfg.Signer,
		subject:  subject,
		client:   httpClient,
		logger:   logger.With("component", "transport"),
	}
}

// SubmitQuery posts one query with its conversation id and prior history and
// returns the decoded reply. Non-2xx responses return *HTTPError.
func (c *Client) SubmitQuery(ctx context.Context, query, conversationID string, history []HistoryEntry) (*Reply, error) {
	if history == nil {
		history = []HistoryEntry{}
	}

	body, contentType, err := c.encode(query, conversationID, history)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, body)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")

	if err := c.authorize(req); err != nil {
		return nil, err
	}

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxReplyBytes))
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	c.logger.Debug("query submitted",
		"conversation_id", conversationID,
		"history", len(history),
		"status", resp.StatusCode,
		"duration", time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &HTTPError{StatusCode: resp.StatusCode, Detail: parseDetail(raw)}
	}

	var reply Reply
	if err := json.Unmarshal(raw, &reply); err != nil {
		return nil, fmt.Errorf("decoding reply: %w", err)
	}
	return &reply, nil
}

func (c *Client) encode(query, conversationID string, history []HistoryEntry) (io.Reader, string, error) {
	switch c.encoding {
	case EncodingJSON:
		payload, err := json.Marshal(struct {
			Query          string         `json:"query"`
			ConversationID string         `json:"conversation_id"`
			History        []HistoryEntry `json:"history"`
		}{query, conversationID, history})
		if err != nil {
			return nil, "", fmt.Errorf("marshaling request: %w", err)
		}
		return bytes.NewReader(payload), "application/json", nil

	case EncodingMultipart:
		historyJSON, err := json.Marshal(history)
		if err != nil {
			return nil, "", fmt.Errorf("marshaling history: %w", err)
		}
		var buf bytes.Buffer
		mw := multipart.NewWriter(&buf)
		for _, field := range [][2]string{
			{"query", query},
			{"conversation_id", conversationID},
			{"history", string(historyJSON)},
		} {
			if err := mw.WriteField(field[0], field[1]); err != nil {
				return nil, "", fmt.Errorf("writing form field %s: %w", field[0], err)
			}
		}
		if err := mw.Close(); err != nil {
			return nil, "", fmt.Errorf("closing multipart body: %w", err)
		}
		return &buf, mw.FormDataContentType(), nil
	}
	return nil, "", fmt.Errorf("unsupported encoding %q", c.encoding)
}

func (c *Client) authorize(req *http.Request) error {
	switch {
	case c.token != "":
		req.Header.Set("Authorization", "Bearer "+c.token)
	case c.signer != nil:
		tok, err := c.signer.Sign(c.subject, 0)
		if err != nil {
			return fmt.Errorf("signing service token: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	return nil
}

// parseDetail extracts the "detail" field of an error body. String details
// are returned as-is; structured ones as their compact JSON.
func parseDetail(body []byte) string {
	var errResp struct {
		Detail json.RawMessage `json:"detail"`
	}
	if json.Unmarshal(body, &errResp) != nil || len(errResp.Detail) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(errResp.Detail, &s); err == nil {
		return s
	}
	if string(errResp.Detail) == "null" {
		return ""
	}
	var compact bytes.Buffer
	if err := json.Compact(&compact, errResp.Detail); err != nil {
		return string(errResp.Detail)
	}
	return compact.String()
}

// Reason returns the human-readable failure reason for err: the server
// detail, else the generic status text, else the error message.
func Reason(err error) string {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.Error()
	}
	return err.Error()
}
