package upload

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"fortunemagnet/internal/model"
)

// ErrNoMedia is returned by GetMedia when the fortune has no photo.
var ErrNoMedia = errors.New("fortune has no photo")

// APIError is a non-2xx response from the photo functions.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("photo api: %d %s: %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("photo api: %d: %s", e.Status, e.Message)
}

// StatusCode exposes the HTTP status for retry classification.
func (e *APIError) StatusCode() int { return e.Status }

// TokenSource returns the caller's current bearer token.
type TokenSource func(ctx context.Context) (string, error)

// StaticToken is a TokenSource that always returns tok.
func StaticToken(tok string) TokenSource {
	return func(context.Context) (string, error) { return tok, nil }
}

// FinalizeRequest is sent once the bytes are stored.
type FinalizeRequest struct {
	FortuneID string `json:"fortune_id"`
	Bucket    string `json:"bucket"`
	Path      string `json:"path"`
	Mime      string `json:"mime"`
	Width     *int   `json:"width,omitempty"`
	Height    *int   `json:"height,omitempty"`
	SizeBytes *int64 `json:"size_bytes,omitempty"`
}

// FinalizeResponse is the finalize result.
type FinalizeResponse struct {
	SignedURL string `json:"signedUrl"`
	Replaced  bool   `json:"replaced"`
}

// Client calls the photo functions.
type Client struct {
	baseURL string
	token   TokenSource
	http    *http.Client
}

// NewClient returns a Client for baseURL. A nil httpClient gets a traced default.
func NewClient(baseURL string, token TokenSource, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = NewHTTPClient(30 * time.Second)
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), token: token, http: httpClient}
}

// RequestTicket asks for an upload ticket. The ticket is returned undecoded
// so Normalize can absorb its shape.
func (c *Client) RequestTicket(ctx context.Context, fortuneID, mime string) (map[string]any, error) {
	var out map[string]any
	err := c.do(ctx, http.MethodPost, "/functions/photo-ticket", map[string]string{
		"fortune_id": fortuneID,
		"mime":       mime,
	}, &out)
	return out, err
}

// Finalize records the uploaded object.
func (c *Client) Finalize(ctx context.Context, req FinalizeRequest) (*FinalizeResponse, error) {
	var out FinalizeResponse
	if err := c.do(ctx, http.MethodPost, "/functions/fortune-photo", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SignFortune mints a read URL through the sign-only action. It returns ""
// when the fortune has no photo.
func (c *Client) SignFortune(ctx context.Context, fortuneID string, ttl time.Duration) (string, error) {
	var out struct {
		SignedURL *string `json:"signedUrl"`
	}
	err := c.do(ctx, http.MethodPost, "/functions/fortune-photo", map[string]any{
		"action":     "SIGN_ONLY",
		"fortune_id": fortuneID,
		"ttlSec":     int(ttl / time.Second),
	}, &out)
	if err != nil || out.SignedURL == nil {
		return "", err
	}
	return *out.SignedURL, nil
}

// DeletePhoto removes the fortune's photo.
func (c *Client) DeletePhoto(ctx context.Context, fortuneID string) error {
	return c.do(ctx, http.MethodPost, "/functions/fortune-photo", map[string]string{
		"action":     "DELETE",
		"fortune_id": fortuneID,
	}, nil)
}

// GetMedia fetches the fortune's media record.
func (c *Client) GetMedia(ctx context.Context, fortuneID string) (*model.MediaRecord, error) {
	var raw json.RawMessage
	if err := c.do(ctx, http.MethodGet, "/functions/fortune-photo?fortune_id="+url.QueryEscape(fortuneID), nil, &raw); err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound && apiErr.Code == "MEDIA_NOT_FOUND" {
			return nil, ErrNoMedia
		}
		return nil, err
	}
	return DecodeMediaEnvelope(raw)
}

// DecodeMediaEnvelope accepts {entry: {...}}, {entries: [...]} or a bare record.
func DecodeMediaEnvelope(raw []byte) (*model.MediaRecord, error) {
	var env struct {
		Entry   json.RawMessage   `json:"entry"`
		Entries []json.RawMessage `json:"entries"`
	}
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("decode media: %w", err)
	}

	body := raw
	switch {
	case env.Entry != nil:
		body = env.Entry
	case env.Entries != nil:
		if len(env.Entries) == 0 {
			return nil, ErrNoMedia
		}
		body = env.Entries[0]
	}
	if string(body) == "null" {
		return nil, ErrNoMedia
	}

	var rec model.MediaRecord
	if err := json.Unmarshal(body, &rec); err != nil {
		return nil, fmt.Errorf("decode media: %w", err)
	}
	if rec.Path == "" {
		return nil, ErrNoMedia
	}
	return &rec, nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != nil {
		tok, err := c.token(ctx)
		if err != nil {
			return fmt.Errorf("bearer token: %w", err)
		}
		if tok != "" {
			req.Header.Set("Authorization", "Bearer "+tok)
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{Status: resp.StatusCode, Message: strings.TrimSpace(string(b))}
		var e struct {
			Error string `json:"error"`
			Code  string `json:"code"`
		}
		if json.Unmarshal(b, &e) == nil && e.Error != "" {
			apiErr.Message, apiErr.Code = e.Error, e.Code
		}
		return apiErr
	}
	if out == nil || len(b) == 0 {
		return nil
	}
	return json.Unmarshal(b, out)
}
