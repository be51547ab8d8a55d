package upload

import (
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"fortunemagnet/internal/logging"
)

// Execution strategies chosen by Normalize.
const (
	MethodSignedPUT = "SIGNED_PUT"
	MethodMultipart = "POST_MULTIPART"
	MethodPUT       = "PUT"
)

// OverwriteHeader lets an upload replace an existing object on backends
// that refuse overwrites by default.
const OverwriteHeader = "x-upsert"

const (
	defaultFieldName = "file"
	signedUploadPath = "/object/upload/sign/"
)

// Candidate keys in priority order; the first non-empty one wins.
var (
	urlKeys        = []string{"url", "uploadUrl", "upload_url", "signedUrl"}
	pathKeys       = []string{"bucketRelativePath", "path"}
	tokenKeys      = []string{"token", "uploadToken", "signedUploadToken", "signed_upload_token"}
	formFieldsKeys = []string{"fields", "formData", "formFields"}
)

// TicketShapeError reports a ticket that cannot be used. ReceivedKeys lists
// the top-level keys that were present.
type TicketShapeError struct {
	Missing      []string
	ReceivedKeys []string
	Reason       string
}

func (e *TicketShapeError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("invalid upload ticket: %s (received keys: %v)", e.Reason, e.ReceivedKeys)
	}
	return fmt.Sprintf("invalid upload ticket: missing %s (received keys: %v)",
		strings.Join(e.Missing, ", "), e.ReceivedKeys)
}

// TicketDebug records how each value was resolved. Secrets are redacted.
type TicketDebug struct {
	ReceivedKeys []string
	URLKey       string
	PathKey      string
	TokenKey     string
	URL          string
	Token        string
	Method       string
	Signed       bool
}

// Fields renders the snapshot as log fields.
func (d TicketDebug) Fields() map[string]any {
	return map[string]any{
		"received_keys": d.ReceivedKeys,
		"url_key":       d.URLKey,
		"path_key":      d.PathKey,
		"token_key":     d.TokenKey,
		"upload_url":    d.URL,
		"token":         d.Token,
		"method":        d.Method,
		"signed_flow":   d.Signed,
	}
}

// NormalizedTicket is the canonical form of an upload ticket.
type NormalizedTicket struct {
	Bucket        string
	Path          string
	UploadURL     string
	Token         string
	Method        string
	Signed        bool
	Headers       map[string]string
	FormFieldName string
	FormFields    map[string]string
	ExpiresAt     time.Time
	Debug         TicketDebug
}

// Normalize turns a raw ticket of any historical shape into a NormalizedTicket.
// raw may be a decoded JSON object or its encoded bytes. defaultBucket is used
// when the ticket names none. It never panics; every failure is a *TicketShapeError.
func Normalize(raw any, defaultBucket string) (*NormalizedTicket, error) {
	obj, ok := asObject(raw)
	if !ok {
		return nil, &TicketShapeError{Reason: fmt.Sprintf("expected an object, got %T", raw)}
	}
	keys := sortedKeys(obj)

	uploadURL, urlKey := firstString(obj, urlKeys)
	path, pathKey := firstString(obj, pathKeys)
	token, tokenKey := firstString(obj, tokenKeys)

	var missing []string
	if uploadURL == "" {
		missing = append(missing, "uploadUrl")
	}
	if path == "" {
		missing = append(missing, "bucketRelativePath")
	}
	if len(missing) > 0 {
		return nil, &TicketShapeError{Missing: missing, ReceivedKeys: keys}
	}

	urlToken := queryToken(uploadURL)
	if token == "" && urlToken != "" {
		token, tokenKey = urlToken, "url?token"
	}
	signedEndpoint := strings.Contains(uploadURL, signedUploadPath)
	signed := signedEndpoint || token != ""

	fieldName, _ := firstString(obj, []string{"formFieldName"})
	explicit, _ := firstString(obj, []string{"uploadMethod"})

	var method string
	switch {
	case signed && token != "":
		method = MethodSignedPUT
	case signedEndpoint:
		method = MethodMultipart
	case explicit != "":
		switch strings.ToUpper(explicit) {
		case "POST", MethodMultipart:
			method = MethodMultipart
		default:
			method = MethodPUT
		}
	case fieldName != "":
		method = MethodMultipart
	default:
		method = MethodPUT
	}

	headers := stringMap(obj["headers"])
	if signed {
		for k := range headers {
			if strings.EqualFold(k, OverwriteHeader) {
				delete(headers, k)
			}
		}
	} else if !hasHeader(headers, OverwriteHeader) {
		headers[OverwriteHeader] = "true"
	}

	var formFields map[string]string
	for _, k := range formFieldsKeys {
		if v, ok := obj[k]; ok && v != nil {
			formFields = stringMap(v)
			break
		}
	}

	if fieldName == "" {
		fieldName = defaultFieldName
	}
	bucket, _ := firstString(obj, []string{"bucket"})
	if bucket == "" {
		bucket = defaultBucket
	}

	var expiresAt time.Time
	if s, _ := firstString(obj, []string{"expiresAt", "expires_at"}); s != "" {
		expiresAt, _ = time.Parse(time.RFC3339, s)
	}

	return &NormalizedTicket{
		Bucket:        bucket,
		Path:          path,
		UploadURL:     uploadURL,
		Token:         token,
		Method:        method,
		Signed:        signed,
		Headers:       headers,
		FormFieldName: fieldName,
		FormFields:    formFields,
		ExpiresAt:     expiresAt,
		Debug: TicketDebug{
			ReceivedKeys: keys,
			URLKey:       urlKey,
			PathKey:      pathKey,
			TokenKey:     tokenKey,
			URL:          logging.RedactURL(uploadURL),
			Token:        logging.RedactToken(token),
			Method:       method,
			Signed:       signed,
		},
	}, nil
}

func asObject(raw any) (map[string]any, bool) {
	switch v := raw.(type) {
	case map[string]any:
		return v, v != nil
	case json.RawMessage:
		return decodeObject(v)
	case []byte:
		return decodeObject(v)
	default:
		return nil, false
	}
}

func decodeObject(b []byte) (map[string]any, bool) {
	var obj map[string]any
	if err := json.Unmarshal(b, &obj); err != nil || obj == nil {
		return nil, false
	}
	return obj, true
}

func sortedKeys(obj map[string]any) []string {
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func firstString(obj map[string]any, keys []string) (string, string) {
	for _, k := range keys {
		if s, ok := obj[k].(string); ok && strings.TrimSpace(s) != "" {
			return strings.TrimSpace(s), k
		}
	}
	return "", ""
}

// stringMap copies a JSON object into a string map, formatting scalars and
// dropping nulls. It never returns nil.
func stringMap(v any) map[string]string {
	out := map[string]string{}
	m, ok := v.(map[string]any)
	if !ok {
		return out
	}
	for k, val := range m {
		switch x := val.(type) {
		case nil:
		case string:
			out[k] = x
		case float64:
			out[k] = strconv.FormatFloat(x, 'f', -1, 64)
		default:
			out[k] = fmt.Sprint(x)
		}
	}
	return out
}

func hasHeader(h map[string]string, name string) bool {
	for k := range h {
		if strings.EqualFold(k, name) {
			return true
		}
	}
	return false
}

func queryToken(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return u.Query().Get("token")
}
