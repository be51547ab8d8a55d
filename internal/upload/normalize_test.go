package upload

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const bucket = "fortune-photos"

func TestNormalize_ShapeErrors(t *testing.T) {
	tests := []struct {
		name        string
		raw         any
		wantMissing []string
		wantKeys    []string
	}{
		{
			name:        "neither url nor path",
			raw:         map[string]any{"bucket": bucket, "expiresAt": "x"},
			wantMissing: []string{"uploadUrl", "bucketRelativePath"},
			wantKeys:    []string{"bucket", "expiresAt"},
		},
		{
			name:        "path only",
			raw:         map[string]any{"path": "u/a.jpg"},
			wantMissing: []string{"uploadUrl"},
			wantKeys:    []string{"path"},
		},
		{
			name:        "empty strings do not count",
			raw:         map[string]any{"url": "  ", "path": "u/a.jpg"},
			wantMissing: []string{"uploadUrl"},
			wantKeys:    []string{"path", "url"},
		},
		{
			name:     "not an object",
			raw:      []any{"url"},
			wantKeys: nil,
		},
		{
			name: "nil",
			raw:  nil,
		},
		{
			name: "invalid json bytes",
			raw:  []byte("[1,2"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			nt, err := Normalize(tt.raw, bucket)
			assert.Nil(t, nt)

			var shape *TicketShapeError
			require.True(t, errors.As(err, &shape))
			assert.Equal(t, tt.wantMissing, shape.Missing)
			assert.Equal(t, tt.wantKeys, shape.ReceivedKeys)
			assert.NotEmpty(t, shape.Error())
		})
	}
}

func TestNormalize_AliasPriority(t *testing.T) {
	nt, err := Normalize(map[string]any{
		"signedUrl":          "https://s3.local/c",
		"upload_url":         "https://s3.local/b",
		"uploadUrl":          "https://s3.local/a",
		"path":               "u/old.jpg",
		"bucketRelativePath": "u/new.jpg",
	}, bucket)
	require.NoError(t, err)
	assert.Equal(t, "https://s3.local/a", nt.UploadURL)
	assert.Equal(t, "uploadUrl", nt.Debug.URLKey)
	assert.Equal(t, "u/new.jpg", nt.Path)
	assert.Equal(t, bucket, nt.Bucket)
}

func TestNormalize_MethodSelection(t *testing.T) {
	tests := []struct {
		name       string
		raw        map[string]any
		wantMethod string
		wantSigned bool
	}{
		{
			name:       "default is PUT",
			raw:        map[string]any{"url": "https://s3.local/p", "path": "u/a.jpg"},
			wantMethod: MethodPUT,
		},
		{
			name:       "formFieldName without uploadMethod means multipart",
			raw:        map[string]any{"url": "https://s3.local/p", "path": "u/a.jpg", "formFieldName": "photo"},
			wantMethod: MethodMultipart,
		},
		{
			name:       "explicit POST",
			raw:        map[string]any{"url": "https://s3.local/p", "path": "u/a.jpg", "uploadMethod": "post"},
			wantMethod: MethodMultipart,
		},
		{
			name:       "explicit POST_MULTIPART",
			raw:        map[string]any{"url": "https://s3.local/p", "path": "u/a.jpg", "uploadMethod": "POST_MULTIPART"},
			wantMethod: MethodMultipart,
		},
		{
			name:       "explicit method wins over formFieldName",
			raw:        map[string]any{"url": "https://s3.local/p", "path": "u/a.jpg", "uploadMethod": "PUT", "formFieldName": "photo"},
			wantMethod: MethodPUT,
		},
		{
			name:       "signed endpoint without token falls back to multipart",
			raw:        map[string]any{"url": "https://sb.local/storage/v1/object/upload/sign/fortune-photos/u/a.jpg", "path": "u/a.jpg"},
			wantMethod: MethodMultipart,
			wantSigned: true,
		},
		{
			name:       "resolved token uses the signed upload regardless of url",
			raw:        map[string]any{"url": "https://s3.local/p", "path": "u/a.jpg", "signed_upload_token": "tok-123456789", "uploadMethod": "POST"},
			wantMethod: MethodSignedPUT,
			wantSigned: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			nt, err := Normalize(tt.raw, bucket)
			require.NoError(t, err)
			assert.Equal(t, tt.wantMethod, nt.Method)
			assert.Equal(t, tt.wantSigned, nt.Signed)
			assert.Equal(t, tt.wantMethod, nt.Debug.Method)
		})
	}
}

func TestNormalize_TokenInURL(t *testing.T) {
	nt, err := Normalize(map[string]any{
		"path": "photos/abc/def.jpg",
		"url":  "https://x/sign?token=abc",
	}, bucket)
	require.NoError(t, err)

	assert.Equal(t, "photos/abc/def.jpg", nt.Path)
	assert.Equal(t, MethodSignedPUT, nt.Method)
	assert.True(t, nt.Signed)
	assert.Equal(t, "abc", nt.Token)
	assert.Equal(t, "https://x/sign?redacted", nt.Debug.URL)
	assert.Equal(t, "***", nt.Debug.Token)
}

func TestNormalize_HeaderPolicy(t *testing.T) {
	t.Run("signed flow strips the overwrite header", func(t *testing.T) {
		nt, err := Normalize(map[string]any{
			"url":     "https://sb.local/object/upload/sign/b/u/a.jpg",
			"path":    "u/a.jpg",
			"headers": map[string]any{"X-Upsert": "true", "Content-Type": "image/png"},
		}, bucket)
		require.NoError(t, err)
		assert.Equal(t, map[string]string{"Content-Type": "image/png"}, nt.Headers)
	})

	t.Run("unsigned flow adds the overwrite header", func(t *testing.T) {
		nt, err := Normalize(map[string]any{"url": "https://s3.local/p", "path": "u/a.jpg"}, bucket)
		require.NoError(t, err)
		assert.Equal(t, "true", nt.Headers[OverwriteHeader])
	})

	t.Run("existing overwrite header is kept as is", func(t *testing.T) {
		nt, err := Normalize(map[string]any{
			"url":     "https://s3.local/p",
			"path":    "u/a.jpg",
			"headers": map[string]any{"X-Upsert": "false", "X-Skip": nil},
		}, bucket)
		require.NoError(t, err)
		assert.Equal(t, map[string]string{"X-Upsert": "false"}, nt.Headers)
	})
}

func TestNormalize_Defaults(t *testing.T) {
	nt, err := Normalize([]byte(`{"uploadUrl":"https://s3.local/b","path":"u/a.jpg","bucket":"other",
		"formData":{"key":"u/a.jpg","policy":"p","x-amz-date":20260501},"expiresAt":"2026-05-01T12:02:00Z"}`), bucket)
	require.NoError(t, err)

	assert.Equal(t, "other", nt.Bucket)
	assert.Equal(t, "file", nt.FormFieldName)
	assert.Equal(t, map[string]string{"key": "u/a.jpg", "policy": "p", "x-amz-date": "20260501"}, nt.FormFields)
	assert.Equal(t, 2026, nt.ExpiresAt.Year())
	assert.Equal(t, []string{"bucket", "expiresAt", "formData", "path", "uploadUrl"}, nt.Debug.ReceivedKeys)
}
