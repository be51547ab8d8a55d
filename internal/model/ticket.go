package model

import "time"

// Upload methods a ticket can ask the client to use.
const (
	UploadMethodPUT           = "PUT"
	UploadMethodPOSTMultipart = "POST_MULTIPART"
)

// UploadTicket is a one-time authorization to write a single object.
// It is never persisted; every upload attempt gets a fresh one.
//
// The JSON shape carries several aliases for the same values because older
// clients read different field names.
type UploadTicket struct {
	Bucket        string            `json:"bucket"`
	Path          string            `json:"path"`
	UploadURL     string            `json:"url"`
	UploadMethod  string            `json:"uploadMethod"`
	Token         string            `json:"token,omitempty"`
	Headers       map[string]string `json:"headers,omitempty"`
	FormFieldName string            `json:"formFieldName,omitempty"`
	FormFields    map[string]string `json:"fields,omitempty"`
	ExpiresAt     time.Time         `json:"expiresAt"`
}

// Wire renders the ticket with all historical field aliases.
func (t UploadTicket) Wire() map[string]any {
	out := map[string]any{
		"bucket":             t.Bucket,
		"path":               t.Path,
		"bucketRelativePath": t.Path,
		"url":                t.UploadURL,
		"uploadUrl":          t.UploadURL,
		"signedUrl":          t.UploadURL,
		"uploadMethod":       t.UploadMethod,
		"expiresAt":          t.ExpiresAt.UTC().Format(time.RFC3339),
	}
	if t.Token != "" {
		out["token"] = t.Token
	}
	if len(t.Headers) > 0 {
		out["headers"] = t.Headers
	}
	if t.FormFieldName != "" {
		out["formFieldName"] = t.FormFieldName
	}
	if len(t.FormFields) > 0 {
		out["fields"] = t.FormFields
	}
	return out
}
