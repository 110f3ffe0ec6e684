package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/atvirokodosprendimai/swmanager/internal/adapters/sqlite"
	"github.com/atvirokodosprendimai/swmanager/internal/adapters/sqlite/gormsqlite"
	"github.com/atvirokodosprendimai/swmanager/internal/core/domain"
	"github.com/atvirokodosprendimai/swmanager/internal/core/usecase"
	"github.com/atvirokodosprendimai/swmanager/migrations"
)

type testServer struct {
	handler   http.Handler
	scheduler *usecase.TransitionScheduler
	auth      *usecase.AuthService
	apiKey    string
}

func newTestServer(t *testing.T, delay time.Duration, opts Options) *testServer {
	t.Helper()
	ctx := context.Background()

	db, err := gormsqlite.Open(filepath.Join(t.TempDir(), "api.sqlite"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	writeDB, err := db.WriteSQLDB()
	require.NoError(t, err)
	require.NoError(t, migrations.Up(ctx, writeDB))

	scheduler := usecase.NewTransitionScheduler(delay, 2, nil)
	softwareService := usecase.NewSoftwareService(sqlite.NewSoftwareRepository(db), scheduler, nil, nil)
	authService := usecase.NewAuthService(sqlite.NewAPIKeyRepository(db), 0)
	scheduler.Start(ctx, softwareService)
	t.Cleanup(func() { _ = scheduler.Close() })

	key, err := authService.Issue(ctx)
	require.NoError(t, err)

	return &testServer{
		handler:   NewHandler(softwareService, authService, opts).Router(),
		scheduler: scheduler,
		auth:      authService,
		apiKey:    key.Key,
	}
}

func (s *testServer) do(t *testing.T, method, path, body string, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func (s *testServer) authed(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	return s.do(t, method, path, body, map[string]string{"X-API-Key": s.apiKey})
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), "body: %s", rec.Body.String())
	return out
}

func errorMessage(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	return decodeBody[map[string]string](t, rec)["error"]
}

func TestCreateGetListDeleteSoftware(t *testing.T) {
	srv := newTestServer(t, time.Hour, Options{})

	rec := srv.authed(t, http.MethodPost, "/software", `{"name":"test"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decodeBody[softwareResponse](t, rec)
	assert.NotZero(t, created.ID)
	assert.Equal(t, "test", created.Name)
	assert.Equal(t, "1.0.0", created.Version)
	assert.Equal(t, "created", created.Status)

	rec = srv.authed(t, http.MethodGet, "/software/"+itoa(created.ID), "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, created, decodeBody[softwareResponse](t, rec))

	rec = srv.authed(t, http.MethodGet, "/software", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []softwareResponse{created}, decodeBody[[]softwareResponse](t, rec))

	rec = srv.authed(t, http.MethodDelete, "/software/"+itoa(created.ID), "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, created, decodeBody[softwareResponse](t, rec))

	rec = srv.authed(t, http.MethodGet, "/software/"+itoa(created.ID), "")
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Software with id = "+itoa(created.ID)+" doesn't exist", errorMessage(t, rec))
}

func TestListSoftwareEmptyIsArray(t *testing.T) {
	srv := newTestServer(t, time.Hour, Options{})

	rec := srv.authed(t, http.MethodGet, "/software", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "[]\n", rec.Body.String())
}

func TestCreateSoftwareRejectsBadBodies(t *testing.T) {
	srv := newTestServer(t, time.Hour, Options{})

	for name, body := range map[string]string{
		"malformed":  `{"name":`,
		"missing":    `{}`,
		"wrong type": `{"name":42}`,
		"empty":      `{"name":""}`,
		"blank":      `{"name":"   "}`,
		"not object": `[]`,
	} {
		t.Run(name, func(t *testing.T) {
			rec := srv.authed(t, http.MethodPost, "/software", body)
			assert.Equal(t, http.StatusUnprocessableEntity, rec.Code, rec.Body.String())
			assert.NotEmpty(t, errorMessage(t, rec))
		})
	}

	rec := srv.authed(t, http.MethodGet, "/software", "")
	assert.Equal(t, "[]\n", rec.Body.String())
}

func TestSoftwareRoutesUnknownID(t *testing.T) {
	srv := newTestServer(t, time.Hour, Options{})

	cases := []struct {
		method, path, body string
	}{
		{http.MethodGet, "/software/999", ""},
		{http.MethodDelete, "/software/999", ""},
		{http.MethodPatch, "/software/999/activate", ""},
		{http.MethodPatch, "/software/999/download", ""},
		{http.MethodPatch, "/software/999/version", `{"version":"2.0.0"}`},
		{http.MethodPatch, "/software/999/version", `{"version":"garbage"}`},
	}
	for _, tc := range cases {
		rec := srv.authed(t, tc.method, tc.path, tc.body)
		assert.Equal(t, http.StatusNotFound, rec.Code, "%s %s", tc.method, tc.path)
		assert.Equal(t, "Software with id = 999 doesn't exist", errorMessage(t, rec))
	}

	rec := srv.authed(t, http.MethodGet, "/software/abc", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Software with id = abc doesn't exist", errorMessage(t, rec))
}

func TestActivateReturnsPreTransitionRecordThenApplies(t *testing.T) {
	srv := newTestServer(t, 30*time.Millisecond, Options{})

	created := decodeBody[softwareResponse](t, srv.authed(t, http.MethodPost, "/software", `{"name":"app"}`))

	rec := srv.authed(t, http.MethodPatch, "/software/"+itoa(created.ID)+"/activate", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "created", decodeBody[softwareResponse](t, rec).Status)

	require.Eventually(t, func() bool {
		got := decodeBody[softwareResponse](t, srv.authed(t, http.MethodGet, "/software/"+itoa(created.ID), ""))
		return got.Status == "active"
	}, 2*time.Second, 10*time.Millisecond)

	before := srv.scheduler.Metrics().ScheduledTotal
	rec = srv.authed(t, http.MethodPatch, "/software/"+itoa(created.ID)+"/activate", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "active", decodeBody[softwareResponse](t, rec).Status)
	assert.Equal(t, before, srv.scheduler.Metrics().ScheduledTotal)
}

func TestDownloadSchedulesTransition(t *testing.T) {
	srv := newTestServer(t, time.Hour, Options{})

	created := decodeBody[softwareResponse](t, srv.authed(t, http.MethodPost, "/software", `{"name":"app"}`))
	rec := srv.authed(t, http.MethodPatch, "/software/"+itoa(created.ID)+"/download", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "created", decodeBody[softwareResponse](t, rec).Status)
	assert.Equal(t, 1, srv.scheduler.Pending())
}

func TestUpdateVersion(t *testing.T) {
	srv := newTestServer(t, time.Hour, Options{})
	created := decodeBody[softwareResponse](t, srv.authed(t, http.MethodPost, "/software", `{"name":"app"}`))
	path := "/software/" + itoa(created.ID) + "/version"

	rec := srv.authed(t, http.MethodPatch, path, `{"version":"0.0.0"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "Version Conflict", errorMessage(t, rec))

	rec = srv.authed(t, http.MethodPatch, path, `{"version":"1.0.0"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)

	for _, bad := range []string{"1.0.", "1.0", "v2.0.0", "1.0.0.0", "a.b.c"} {
		rec = srv.authed(t, http.MethodPatch, path, `{"version":"`+bad+`"}`)
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code, bad)
		assert.Equal(t, "Invalid Version Format", errorMessage(t, rec), bad)
	}

	rec = srv.authed(t, http.MethodPatch, path, `{}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = srv.authed(t, http.MethodPatch, path, `{"version":"2.0.0"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	updated := decodeBody[softwareResponse](t, rec)
	assert.Equal(t, "2.0.0", updated.Version)
	assert.Equal(t, "created", updated.Status)
	assert.Equal(t, "app", updated.Name)
}

func TestSoftwareRoutesRequireValidKey(t *testing.T) {
	srv := newTestServer(t, time.Hour, Options{})

	for name, header := range map[string]map[string]string{
		"missing": nil,
		"unknown": {"X-API-Key": "NOPE"},
		"bearer":  {"Authorization": "Bearer NOPE"},
	} {
		t.Run(name, func(t *testing.T) {
			rec := srv.do(t, http.MethodPost, "/software", `{"name":"x"}`, header)
			assert.Equal(t, http.StatusForbidden, rec.Code)
			assert.Equal(t, "Invalid API Key", errorMessage(t, rec))
		})
	}

	rec := srv.authed(t, http.MethodGet, "/software", "")
	assert.Equal(t, "[]\n", rec.Body.String())
}

func TestBearerTokenAccepted(t *testing.T) {
	srv := newTestServer(t, time.Hour, Options{})

	rec := srv.do(t, http.MethodGet, "/software", "", map[string]string{"Authorization": "Bearer " + srv.apiKey})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestDeactivatedKeyRejectedUntilReactivated(t *testing.T) {
	srv := newTestServer(t, time.Hour, Options{})

	rec := srv.do(t, http.MethodPatch, "/change-api-key-status", `{"key":"`+srv.apiKey+`","activated":false}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, apiKeyResponse{Key: srv.apiKey, Activated: false}, decodeBody[apiKeyResponse](t, rec))

	rec = srv.authed(t, http.MethodGet, "/software", "")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = srv.do(t, http.MethodPatch, "/change-api-key-status", `{"key":"`+srv.apiKey+`","activated":true}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = srv.authed(t, http.MethodGet, "/software", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAPIKeyLifecycle(t *testing.T) {
	srv := newTestServer(t, time.Hour, Options{})

	rec := srv.do(t, http.MethodGet, "/create-api-key", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	issued := decodeBody[issuedKeyResponse](t, rec)
	assert.Len(t, issued.Key, usecase.DefaultAPIKeyLength)

	rec = srv.do(t, http.MethodGet, "/get-all-api-keys", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	keys := decodeBody[[]apiKeyResponse](t, rec)
	assert.ElementsMatch(t, []apiKeyResponse{
		{Key: srv.apiKey, Activated: true},
		{Key: issued.Key, Activated: true},
	}, keys)

	rec = srv.do(t, http.MethodDelete, "/delete-api-key", `{"key":"`+issued.Key+`"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, issued.Key, decodeBody[issuedKeyResponse](t, rec).Key)

	rec = srv.do(t, http.MethodDelete, "/delete-api-key", `{"key":"`+issued.Key+`"}`, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Api key doesn't exist", errorMessage(t, rec))

	rec = srv.do(t, http.MethodPatch, "/change-api-key-status", `{"key":"MISSING","activated":true}`, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Api key doesn't exist", errorMessage(t, rec))

	rec = srv.do(t, http.MethodPatch, "/change-api-key-status", `{"key":"`+srv.apiKey+`"}`, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = srv.do(t, http.MethodDelete, "/delete-api-key", `not json`, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestAdminKeyProtectsKeyAdministration(t *testing.T) {
	srv := newTestServer(t, time.Hour, Options{AdminKey: "root-secret"})

	rec := srv.do(t, http.MethodGet, "/get-all-api-keys", "", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = srv.do(t, http.MethodGet, "/get-all-api-keys", "", map[string]string{"X-Admin-Key": "wrong"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = srv.do(t, http.MethodGet, "/get-all-api-keys", "", map[string]string{"X-Admin-Key": "root-secret"})
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = srv.do(t, http.MethodGet, "/create-api-key", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestIssueKeyRateLimited(t *testing.T) {
	srv := newTestServer(t, time.Hour, Options{IssueLimiter: rate.NewLimiter(rate.Every(time.Hour), 1)})

	rec := srv.do(t, http.MethodGet, "/create-api-key", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = srv.do(t, http.MethodGet, "/create-api-key", "", nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestRequestIDPropagation(t *testing.T) {
	srv := newTestServer(t, time.Hour, Options{})

	rec := srv.do(t, http.MethodGet, "/healthz", "", map[string]string{"X-Request-Id": "req-123"})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "req-123", rec.Header().Get("X-Request-Id"))

	rec = srv.do(t, http.MethodGet, "/healthz", "", nil)
	assert.Len(t, rec.Header().Get("X-Request-Id"), 36)
}

func TestHealthOpenAPIAndMetrics(t *testing.T) {
	srv := newTestServer(t, time.Hour, Options{})

	rec := srv.do(t, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"ok":true}`, rec.Body.String())

	rec = srv.do(t, http.MethodGet, "/openapi.json", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	spec := decodeBody[map[string]any](t, rec)
	assert.Equal(t, "3.0.3", spec["openapi"])
	assert.Contains(t, spec["paths"], "/software/{id}/version")

	srv.authed(t, http.MethodGet, "/software", "")
	rec = srv.do(t, http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `swmanager_http_requests_total{method="GET",route="/software",status="200"}`)
}

type failingKeyRepo struct {
	findFn func(ctx context.Context, key string) (domain.APIKey, error)
}

func (r *failingKeyRepo) Create(_ context.Context, key domain.APIKey) (domain.APIKey, error) {
	return key, nil
}

func (r *failingKeyRepo) Find(ctx context.Context, key string) (domain.APIKey, error) {
	return r.findFn(ctx, key)
}

func (r *failingKeyRepo) List(context.Context) ([]domain.APIKey, error) {
	return nil, errors.New("store down")
}

func (r *failingKeyRepo) SetActivated(context.Context, string, bool) (domain.APIKey, error) {
	return domain.APIKey{}, errors.New("store down")
}

func (r *failingKeyRepo) Delete(context.Context, string) (domain.APIKey, error) {
	return domain.APIKey{}, errors.New("store down")
}

func TestKeyStoreErrorsNeverAuthorize(t *testing.T) {
	repo := &failingKeyRepo{findFn: func(context.Context, string) (domain.APIKey, error) {
		return domain.APIKey{}, errors.New("store down")
	}}
	h := NewHandler(nil, usecase.NewAuthService(repo, 0), Options{}).Router()

	req := httptest.NewRequest(http.MethodGet, "/software", nil)
	req.Header.Set("X-API-Key", "ANY")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "internal server error", errorMessage(t, rec))

	req = httptest.NewRequest(http.MethodGet, "/get-all-api-keys", nil)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}
