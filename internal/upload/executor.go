package upload

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"path"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"fortunemagnet/internal/logging"
)

const maxErrorBody = 512

// Payload is the file being uploaded.
type Payload struct {
	Data        []byte
	ContentType string
	Filename    string
}

// StageError tags a pipeline failure with the stage that produced it.
// Status and Body are set for non-2xx HTTP responses.
type StageError struct {
	Stage  Stage
	Status int
	Body   string
	Err    error
}

func (e *StageError) Error() string {
	switch {
	case e.Status != 0 && e.Err != nil:
		return fmt.Sprintf("%s: status %d: %v", e.Stage, e.Status, e.Err)
	case e.Status != 0:
		return fmt.Sprintf("%s: status %d: %s", e.Stage, e.Status, e.Body)
	default:
		return fmt.Sprintf("%s: %v", e.Stage, e.Err)
	}
}

func (e *StageError) Unwrap() error { return e.Err }

// StatusCode exposes the HTTP status for retry classification.
func (e *StageError) StatusCode() int { return e.Status }

// Uploader transfers a payload as described by a ticket.
type Uploader interface {
	Execute(ctx context.Context, t *NormalizedTicket, p Payload) error
}

// Executor implements Uploader over HTTP. It never retries.
type Executor struct {
	client *http.Client
	log    *logging.Logger
}

// NewHTTPClient returns the traced client used for storage and API calls.
func NewHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Transport: otelhttp.NewTransport(http.DefaultTransport),
		Timeout:   timeout,
	}
}

// NewExecutor returns an Executor. A nil client gets a traced default.
func NewExecutor(client *http.Client, log *logging.Logger) *Executor {
	if client == nil {
		client = NewHTTPClient(2 * time.Minute)
	}
	if log == nil {
		log = logging.Nop()
	}
	return &Executor{client: client, log: log.With("upload_executor")}
}

// Execute runs the strategy selected by t.Method.
func (e *Executor) Execute(ctx context.Context, t *NormalizedTicket, p Payload) error {
	var (
		req *http.Request
		err error
	)
	switch t.Method {
	case MethodSignedPUT:
		req, err = signedPutRequest(ctx, t, p)
	case MethodMultipart:
		req, err = multipartRequest(ctx, t, p)
	default:
		req, err = rawPutRequest(ctx, t, p)
	}
	if err != nil {
		return &StageError{Stage: StageUpload, Err: err}
	}

	start := time.Now()
	resp, err := e.client.Do(req)
	if err != nil {
		return &StageError{Stage: StageUpload, Err: err}
	}
	defer resp.Body.Close()

	fields := map[string]any{
		"method":      t.Method,
		"upload_url":  logging.RedactURL(t.UploadURL),
		"http_status": resp.StatusCode,
		"bytes":       len(p.Data),
		"duration_ms": time.Since(start).Milliseconds(),
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4*maxErrorBody))
		serr := &StageError{Stage: StageUpload, Status: resp.StatusCode, Body: logging.Truncate(string(body), maxErrorBody)}
		e.log.Error("upload_transfer_failed", serr, fields)
		return serr
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	e.log.Info("upload_transferred", fields)
	return nil
}

// signedPutRequest uploads to a token-scoped signed endpoint. The token
// travels as a query parameter and only the content type is sent.
func signedPutRequest(ctx context.Context, t *NormalizedTicket, p Payload) (*http.Request, error) {
	u, err := url.Parse(t.UploadURL)
	if err != nil {
		return nil, fmt.Errorf("parse upload url: %w", err)
	}
	q := u.Query()
	if q.Get("token") == "" {
		q.Set("token", t.Token)
		u.RawQuery = q.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, u.String(), bytes.NewReader(p.Data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", contentType(p))
	return req, nil
}

// multipartRequest builds a form POST. Policy fields precede the file part
// and no custom headers are set: the boundary must come from the writer.
func multipartRequest(ctx context.Context, t *NormalizedTicket, p Payload) (*http.Request, error) {
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	for k, v := range t.FormFields {
		if err := w.WriteField(k, v); err != nil {
			return nil, err
		}
	}
	part, err := w.CreateFormFile(t.FormFieldName, filename(t, p))
	if err != nil {
		return nil, err
	}
	if _, err := part.Write(p.Data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.UploadURL, &body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req, nil
}

func rawPutRequest(ctx context.Context, t *NormalizedTicket, p Payload) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, t.UploadURL, bytes.NewReader(p.Data))
	if err != nil {
		return nil, err
	}
	for k, v := range t.Headers {
		req.Header.Set(k, v)
	}
	req.Header.Set("Content-Type", contentType(p))
	return req, nil
}

func contentType(p Payload) string {
	if p.ContentType != "" {
		return p.ContentType
	}
	return "application/octet-stream"
}

func filename(t *NormalizedTicket, p Payload) string {
	if p.Filename != "" {
		return p.Filename
	}
	if base := path.Base(t.Path); base != "." && base != "/" {
		return base
	}
	return "upload"
}
