package handler

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"fortunemagnet/internal/auth"
	"fortunemagnet/internal/http/middleware"
	"fortunemagnet/internal/model"
	"fortunemagnet/internal/service"
	serviceMocks "fortunemagnet/internal/service/mocks"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const (
	testUser    = "user-1"
	testFortune = "7c9e6679-7425-40de-944b-e07fc1f90ae7"
)

// asUser stands in for the bearer middleware.
func asUser(uid string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		c.Locals(auth.UserIDLocalKey, uid)
		return c.Next()
	}
}

func postJSON(t *testing.T, app *fiber.App, path string, body any) *http.Response {
	t.Helper()
	b, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)
	return resp
}

func decode(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func TestHealthCheck(t *testing.T) {
	db, dbMock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer db.Close()

	app := fiber.New()
	app.Get("/health", HealthCheck(db))

	t.Run("healthy", func(t *testing.T) {
		dbMock.ExpectPing().WillReturnError(nil)

		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		resp, _ := app.Test(req)

		assert.Equal(t, http.StatusOK, resp.StatusCode)

		var body map[string]string
		json.NewDecoder(resp.Body).Decode(&body)
		assert.Equal(t, "healthy", body["status"])
	})

	t.Run("unhealthy", func(t *testing.T) {
		dbMock.ExpectPing().WillReturnError(errors.New("db error"))

		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		resp, _ := app.Test(req)

		assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

		var body errorPayload
		json.NewDecoder(resp.Body).Decode(&body)
		assert.Equal(t, "SERVICE_UNAVAILABLE", body.Code)
	})
}

func TestLivenessProbe(t *testing.T) {
	app := fiber.New()
	app.Get("/healthz", LivenessProbe())

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	resp, _ := app.Test(req)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestIssueTicket(t *testing.T) {
	mockSvc := new(serviceMocks.MockPhotoService)
	app := fiber.New()
	app.Use(middleware.RequestID())
	app.Post("/functions/photo-ticket", asUser(testUser), IssueTicket(mockSvc))

	t.Run("success renders every alias", func(t *testing.T) {
		ticket := &model.UploadTicket{
			Bucket:       "fortune-photos",
			Path:         testUser + "/" + testFortune + "-abc.jpg",
			UploadURL:    "https://s3.local/fortune-photos/x?X-Amz-Signature=1",
			UploadMethod: model.UploadMethodPUT,
			Headers:      map[string]string{"Content-Type": "image/jpeg"},
			ExpiresAt:    time.Date(2026, 5, 1, 12, 2, 0, 0, time.UTC),
		}
		mockSvc.On("IssueTicket", mock.Anything, testUser, service.TicketInput{FortuneID: testFortune, Mime: "image/jpeg"}).
			Return(ticket, nil).Once()

		resp := postJSON(t, app, "/functions/photo-ticket", map[string]string{"fortune_id": testFortune, "mime": "image/jpeg"})
		assert.Equal(t, http.StatusOK, resp.StatusCode)

		body := decode(t, resp)
		for _, k := range []string{"url", "uploadUrl", "signedUrl"} {
			assert.Equal(t, ticket.UploadURL, body[k], k)
		}
		assert.Equal(t, ticket.Path, body["path"])
		assert.Equal(t, ticket.Path, body["bucketRelativePath"])
		assert.Equal(t, "PUT", body["uploadMethod"])
		assert.Equal(t, "2026-05-01T12:02:00Z", body["expiresAt"])
		mockSvc.AssertExpectations(t)
	})

	t.Run("camelCase fortune id is accepted", func(t *testing.T) {
		mockSvc.On("IssueTicket", mock.Anything, testUser, service.TicketInput{FortuneID: testFortune, Mime: "image/png"}).
			Return(&model.UploadTicket{}, nil).Once()

		resp := postJSON(t, app, "/functions/photo-ticket", map[string]string{"fortuneId": testFortune, "mime": "image/png"})
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		mockSvc.AssertExpectations(t)
	})

	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"bad id", service.ErrInvalidFortuneID, http.StatusBadRequest, "INVALID_FORTUNE_ID"},
		{"bad mime", service.ErrUnsupportedMime, http.StatusBadRequest, "UNSUPPORTED_MIME"},
		{"bad dimensions", service.ErrInvalidDimension, http.StatusBadRequest, "INVALID_DIMENSIONS"},
		{"unauthenticated", service.ErrUnauthenticated, http.StatusUnauthorized, "UNAUTHENTICATED"},
		{"not owner", service.ErrNotOwner, http.StatusForbidden, "FORBIDDEN"},
		{"no entitlement", service.ErrNoEntitlement, http.StatusForbidden, "ENTITLEMENT_REQUIRED"},
		{"unknown fortune", service.ErrFortuneNotFound, http.StatusNotFound, "FORTUNE_NOT_FOUND"},
		{"presign failure", &service.StepError{Step: "presign", Err: errors.New("creds")}, http.StatusInternalServerError, "PRESIGN_FAILED"},
		{"anything else", errors.New("boom"), http.StatusInternalServerError, "INTERNAL_ERROR"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockSvc.On("IssueTicket", mock.Anything, testUser, mock.Anything).Return(nil, tt.err).Once()

			resp := postJSON(t, app, "/functions/photo-ticket", map[string]string{"fortune_id": testFortune, "mime": "image/png"})
			assert.Equal(t, tt.wantStatus, resp.StatusCode)

			var body errorPayload
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
			assert.Equal(t, tt.wantCode, body.Code)
			assert.NotEmpty(t, body.Error)
			assert.NotEmpty(t, body.RequestID)
			assert.NotContains(t, body.Error, "creds")
		})
	}

	t.Run("malformed body", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/functions/photo-ticket", bytes.NewBufferString("{"))
		req.Header.Set("Content-Type", "application/json")
		resp, _ := app.Test(req)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}

func TestFortunePhoto(t *testing.T) {
	mockSvc := new(serviceMocks.MockPhotoService)
	app := fiber.New()
	app.Post("/functions/fortune-photo", asUser(testUser), FortunePhoto(mockSvc))

	t.Run("finalize", func(t *testing.T) {
		w, h := 640, 480
		size := int64(2048)
		in := service.FinalizeInput{
			FortuneID: testFortune,
			Bucket:    "fortune-photos",
			Path:      testUser + "/a.jpg",
			Mime:      "image/jpeg",
			Width:     &w,
			Height:    &h,
			SizeBytes: &size,
		}
		mockSvc.On("Finalize", mock.Anything, testUser, in).
			Return(&service.FinalizeResult{SignedURL: "https://read/a", Replaced: true}, nil).Once()

		resp := postJSON(t, app, "/functions/fortune-photo", map[string]any{
			"fortune_id": testFortune, "bucket": "fortune-photos", "path": testUser + "/a.jpg",
			"mime": "image/jpeg", "width": 640, "height": 480, "size_bytes": 2048,
		})
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		body := decode(t, resp)
		assert.Equal(t, "https://read/a", body["signedUrl"])
		assert.Equal(t, true, body["replaced"])
		mockSvc.AssertExpectations(t)
	})

	t.Run("finalize upsert failure names the step", func(t *testing.T) {
		mockSvc.On("Finalize", mock.Anything, testUser, mock.Anything).
			Return(nil, &service.StepError{Step: "upsert", Err: errors.New("pq: deadlock")}).Once()

		resp := postJSON(t, app, "/functions/fortune-photo", map[string]any{"fortune_id": testFortune, "path": "u/a.jpg"})
		assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
		var body errorPayload
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		assert.Equal(t, "UPSERT_FAILED", body.Code)
		assert.Equal(t, "upsert failed", body.Error)
	})

	t.Run("sign only", func(t *testing.T) {
		mockSvc.On("SignOnly", mock.Anything, testUser, testFortune, 600*time.Second).Return("https://read/b", nil).Once()

		resp := postJSON(t, app, "/functions/fortune-photo", map[string]any{"action": "SIGN_ONLY", "fortune_id": testFortune, "ttlSec": 600})
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "https://read/b", decode(t, resp)["signedUrl"])
	})

	t.Run("sign only without photo returns null", func(t *testing.T) {
		mockSvc.On("SignOnly", mock.Anything, testUser, testFortune, time.Duration(0)).Return("", nil).Once()

		resp := postJSON(t, app, "/functions/fortune-photo", map[string]any{"action": "sign_only", "fortune_id": testFortune})
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		body := decode(t, resp)
		v, ok := body["signedUrl"]
		assert.True(t, ok)
		assert.Nil(t, v)
	})

	t.Run("negative ttl", func(t *testing.T) {
		resp := postJSON(t, app, "/functions/fortune-photo", map[string]any{"action": "SIGN_ONLY", "fortune_id": testFortune, "ttlSec": -1})
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("delete", func(t *testing.T) {
		mockSvc.On("DeletePhoto", mock.Anything, testUser, testFortune).Return(nil).Once()

		resp := postJSON(t, app, "/functions/fortune-photo", map[string]any{"action": "DELETE", "fortune_id": testFortune})
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, true, decode(t, resp)["deleted"])
	})

	t.Run("delete without photo", func(t *testing.T) {
		mockSvc.On("DeletePhoto", mock.Anything, testUser, testFortune).Return(service.ErrMediaNotFound).Once()

		resp := postJSON(t, app, "/functions/fortune-photo", map[string]any{"action": "DELETE", "fortune_id": testFortune})
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})

	t.Run("unknown action", func(t *testing.T) {
		resp := postJSON(t, app, "/functions/fortune-photo", map[string]any{"action": "RESIZE", "fortune_id": testFortune})
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		var body errorPayload
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		assert.Equal(t, "UNKNOWN_ACTION", body.Code)
	})
}

func TestGetFortunePhoto(t *testing.T) {
	mockSvc := new(serviceMocks.MockPhotoService)
	app := fiber.New()
	app.Get("/functions/fortune-photo", asUser(testUser), GetFortunePhoto(mockSvc))

	rec := &model.MediaRecord{FortuneID: testFortune, Bucket: "fortune-photos", Path: testUser + "/a.jpg", MimeType: "image/jpeg"}
	mockSvc.On("GetMedia", mock.Anything, testUser, testFortune).Return(rec, nil).Once()

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/functions/fortune-photo?fortune_id="+testFortune, nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Entry model.MediaRecord `json:"entry"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, rec.Path, body.Entry.Path)
}

func TestRegisterRoutes(t *testing.T) {
	db, _, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer db.Close()

	mockSvc := new(serviceMocks.MockPhotoService)
	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler()})
	RegisterRoutes(app, db, mockSvc, auth.Middleware(auth.NewVerifier("secret")))

	t.Run("functions require a bearer token", func(t *testing.T) {
		resp := postJSON(t, app, "/functions/photo-ticket", map[string]string{"fortune_id": testFortune, "mime": "image/png"})
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		assert.Equal(t, "no-store", resp.Header.Get(fiber.HeaderCacheControl))
		mockSvc.AssertNotCalled(t, "IssueTicket", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("valid token reaches the service", func(t *testing.T) {
		tok, err := auth.GenerateToken(testUser, []byte("secret"), time.Minute)
		require.NoError(t, err)
		mockSvc.On("GetMedia", mock.Anything, testUser, testFortune).Return(nil, service.ErrMediaNotFound).Once()

		req := httptest.NewRequest(http.MethodGet, "/functions/fortune-photo?fortune_id="+testFortune, nil)
		req.Header.Set("Authorization", "Bearer "+tok)
		resp, err := app.Test(req)
		require.NoError(t, err)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
		mockSvc.AssertExpectations(t)
	})

	t.Run("unknown route uses the error handler", func(t *testing.T) {
		resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/nope", nil))
		require.NoError(t, err)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
		var body errorPayload
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		assert.Equal(t, "NOT_FOUND", body.Code)
	})
}
