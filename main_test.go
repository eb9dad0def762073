package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/FrogOnABike/tubely/internal/auth"
	"github.com/FrogOnABike/tubely/internal/database"
	"github.com/FrogOnABike/tubely/internal/ingest"
	"github.com/FrogOnABike/tubely/internal/media"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

type stubProber struct {
	calls atomic.Int32
	dims  media.Dimensions
}

func (p *stubProber) Probe(context.Context, string) (media.Dimensions, error) {
	p.calls.Add(1)
	return p.dims, nil
}

type copyRemuxer struct {
	calls atomic.Int32
}

func (c *copyRemuxer) FastStart(_ context.Context, in string) (string, error) {
	c.calls.Add(1)
	data, err := os.ReadFile(in)
	if err != nil {
		return "", err
	}
	out := in + media.ProcessedSuffix
	return out, os.WriteFile(out, data, 0o600)
}

type memoryObjects struct {
	mu   sync.Mutex
	puts map[string][]byte
}

func (m *memoryObjects) Put(_ context.Context, key string, body io.Reader, _ string) error {
	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.puts[key] = data
	return nil
}

func (m *memoryObjects) URL(key string) string { return "https://cdn.test/" + key }

type testAPI struct {
	server   *httptest.Server
	db       database.Client
	prober   *stubProber
	remuxer  *copyRemuxer
	objects  *memoryObjects
	tempRoot string
	assets   string
}

func newTestAPI(t *testing.T, platform string) *testAPI {
	t.Helper()
	dir := t.TempDir()
	db, err := database.NewClient(filepath.Join(dir, "tubely.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	api := &testAPI{
		db:       db,
		prober:   &stubProber{dims: media.Dimensions{Width: 1920, Height: 1080}},
		remuxer:  &copyRemuxer{},
		objects:  &memoryObjects{puts: map[string][]byte{}},
		tempRoot: filepath.Join(dir, "tmp"),
		assets:   filepath.Join(dir, "assets"),
	}
	require.NoError(t, ensureDirs(api.tempRoot, api.assets))

	cfg := &apiConfig{
		db:           db,
		jwtSecret:    testSecret,
		platform:     platform,
		filepathRoot: dir,
		assetsRoot:   api.assets,
		s3Bucket:     "tubely-test",
		port:         "8091",
		validate:     validator.New(),
		ingest: ingest.New(
			ingest.Config{TempRoot: api.tempRoot, AssetsRoot: api.assets, Port: "8091", ProcessTimeout: time.Second},
			db, api.objects, auth.Validator{Secret: testSecret}, api.prober, api.remuxer, nil,
		),
	}
	api.server = httptest.NewServer(cfg.routes())
	t.Cleanup(api.server.Close)
	return api
}

func (api *testAPI) newUser(t *testing.T, email string) (database.User, string) {
	t.Helper()
	user, err := api.db.CreateUser(database.CreateUserParams{Email: email, Password: "unused"})
	require.NoError(t, err)
	token, err := auth.MakeJWT(user.ID, testSecret, time.Hour)
	require.NoError(t, err)
	return user, token
}

func (api *testAPI) newVideo(t *testing.T, owner uuid.UUID) database.Video {
	t.Helper()
	video, err := api.db.CreateVideo(database.CreateVideoParams{Title: "boots", UserID: owner})
	require.NoError(t, err)
	return video
}

func (api *testAPI) upload(t *testing.T, path, field, mediaType, token string, data []byte) *http.Response {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	h := textproto.MIMEHeader{}
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename="upload"`, field))
	h.Set("Content-Type", mediaType)
	part, err := mw.CreatePart(h)
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req, err := http.NewRequest(http.MethodPost, api.server.URL+path, &body)
	require.NoError(t, err)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func (api *testAPI) assertNoScratch(t *testing.T) {
	t.Helper()
	entries, err := os.ReadDir(api.tempRoot)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestUploadVideoLandscape(t *testing.T) {
	api := newTestAPI(t, "dev")
	owner, token := api.newUser(t, "owner@example.com")
	video := api.newVideo(t, owner.ID)

	resp := api.upload(t, "/api/video_upload/"+video.ID.String(), "video", "video/mp4", token, []byte("mp4 bytes"))
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var got database.Video
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	require.NotNil(t, got.VideoURL)
	assert.Regexp(t, `^https://cdn\.test/landscape/[0-9a-f]{64}\.mp4$`, *got.VideoURL)

	stored, err := api.db.GetVideo(video.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.VideoURL)
	assert.Equal(t, *got.VideoURL, *stored.VideoURL)

	assert.Len(t, api.objects.puts, 1)
	assert.EqualValues(t, 1, api.prober.calls.Load())
	assert.EqualValues(t, 1, api.remuxer.calls.Load())
	api.assertNoScratch(t)
}

func TestUploadVideoWrongType(t *testing.T) {
	api := newTestAPI(t, "dev")
	owner, token := api.newUser(t, "owner@example.com")
	video := api.newVideo(t, owner.ID)

	resp := api.upload(t, "/api/video_upload/"+video.ID.String(), "video", "video/avi", token, []byte("avi bytes"))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var body errorResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "bad_request", body.Kind)

	stored, err := api.db.GetVideo(video.ID)
	require.NoError(t, err)
	assert.Nil(t, stored.VideoURL)
	assert.Zero(t, api.prober.calls.Load())
	assert.Zero(t, api.remuxer.calls.Load())
	api.assertNoScratch(t)
}

func TestUploadVideoNotOwner(t *testing.T) {
	api := newTestAPI(t, "dev")
	owner, _ := api.newUser(t, "owner@example.com")
	_, strangerToken := api.newUser(t, "stranger@example.com")
	video := api.newVideo(t, owner.ID)

	resp := api.upload(t, "/api/video_upload/"+video.ID.String(), "video", "video/mp4", strangerToken, []byte("mp4 bytes"))
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	stored, err := api.db.GetVideo(video.ID)
	require.NoError(t, err)
	assert.Nil(t, stored.VideoURL)
	assert.Equal(t, video.UpdatedAt.Unix(), stored.UpdatedAt.Unix())
	assert.Zero(t, api.prober.calls.Load())
	assert.Empty(t, api.objects.puts)
}

func TestUploadVideoAuthAndID(t *testing.T) {
	api := newTestAPI(t, "dev")
	owner, token := api.newUser(t, "owner@example.com")
	video := api.newVideo(t, owner.ID)

	tests := []struct {
		name   string
		path   string
		field  string
		token  string
		status int
		kind   string
	}{
		{"no token", "/api/video_upload/" + video.ID.String(), "video", "", http.StatusUnauthorized, "unauthorized"},
		{"garbage token", "/api/video_upload/" + video.ID.String(), "video", "garbage", http.StatusUnauthorized, "unauthorized"},
		{"bad id", "/api/video_upload/not-a-uuid", "video", token, http.StatusBadRequest, "bad_request"},
		{"wrong field", "/api/video_upload/" + video.ID.String(), "wrong_field", token, http.StatusBadRequest, "bad_request"},
		{"thumbnail no token", "/api/thumbnail_upload/" + video.ID.String(), "thumbnail", "", http.StatusUnauthorized, "unauthorized"},
		{"thumbnail bad id", "/api/thumbnail_upload/not-a-uuid", "thumbnail", token, http.StatusBadRequest, "bad_request"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := api.upload(t, tt.path, tt.field, "video/mp4", tt.token, []byte("mp4"))
			assert.Equal(t, tt.status, resp.StatusCode)

			var body errorResponse
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
			assert.Equal(t, tt.kind, body.Kind)
			assert.NotEmpty(t, body.Error)
		})
	}

	assert.Zero(t, api.prober.calls.Load())
}

func TestIngestLogLevel(t *testing.T) {
	for kind, want := range map[ingest.Kind]slog.Level{
		ingest.KindBadRequest:   slog.LevelWarn,
		ingest.KindUnauthorized: slog.LevelWarn,
		ingest.KindForbidden:    slog.LevelWarn,
		ingest.KindProcessing:   slog.LevelError,
		ingest.KindStorage:      slog.LevelError,
		ingest.KindInternal:     slog.LevelError,
	} {
		assert.Equal(t, want, ingestLogLevel(kind), kind.String())
	}
}

func TestUploadThumbnail(t *testing.T) {
	api := newTestAPI(t, "dev")
	owner, token := api.newUser(t, "owner@example.com")
	video := api.newVideo(t, owner.ID)

	resp := api.upload(t, "/api/thumbnail_upload/"+video.ID.String(), "thumbnail", "image/png", token, []byte("png bytes"))
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var got database.Video
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	require.NotNil(t, got.ThumbnailURL)
	assert.Equal(t, "http://localhost:8091/assets/"+video.ID.String()+".png", *got.ThumbnailURL)

	asset, err := http.Get(api.server.URL + "/assets/" + video.ID.String() + ".png")
	require.NoError(t, err)
	defer asset.Body.Close()
	data, err := io.ReadAll(asset.Body)
	require.NoError(t, err)
	assert.Equal(t, "png bytes", string(data))

	_, strangerToken := api.newUser(t, "stranger@example.com")
	resp = api.upload(t, "/api/thumbnail_upload/"+video.ID.String(), "thumbnail", "image/jpeg", strangerToken, []byte("jpeg bytes"))
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	_, err = os.Stat(filepath.Join(api.assets, video.ID.String()+".jpeg"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func postJSON(t *testing.T, url, token string, payload any) *http.Response {
	t.Helper()
	data, err := json.Marshal(payload)
	require.NoError(t, err)
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(data))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestUserLoginAndVideoFlow(t *testing.T) {
	api := newTestAPI(t, "dev")
	creds := map[string]string{"email": "new@example.com", "password": "hunter2hunter2"}

	resp := postJSON(t, api.server.URL+"/api/users", "", creds)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = postJSON(t, api.server.URL+"/api/users", "", map[string]string{"email": "nope", "password": "short"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = postJSON(t, api.server.URL+"/api/login", "", map[string]string{"email": creds["email"], "password": "wrong-password"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = postJSON(t, api.server.URL+"/api/login", "", creds)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var login struct {
		ID    uuid.UUID `json:"id"`
		Token string    `json:"token"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&login))
	require.NotEmpty(t, login.Token)

	resp = postJSON(t, api.server.URL+"/api/videos", login.Token, map[string]string{"title": "boots", "description": "a video"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var created database.Video
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))
	assert.Equal(t, login.ID, created.UserID)

	req, err := http.NewRequest(http.MethodGet, api.server.URL+"/api/videos", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+login.Token)
	list, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer list.Body.Close()
	var videos []database.Video
	require.NoError(t, json.NewDecoder(list.Body).Decode(&videos))
	require.Len(t, videos, 1)
	assert.Equal(t, created.ID, videos[0].ID)

	req, err = http.NewRequest(http.MethodDelete, api.server.URL+"/api/videos/"+created.ID.String(), nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+login.Token)
	del, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	del.Body.Close()
	assert.Equal(t, http.StatusNoContent, del.StatusCode)

	get, err := http.Get(api.server.URL + "/api/videos/" + created.ID.String())
	require.NoError(t, err)
	get.Body.Close()
	assert.Equal(t, http.StatusNotFound, get.StatusCode)
}

func TestReset(t *testing.T) {
	prod := newTestAPI(t, "prod")
	resp := postJSON(t, prod.server.URL+"/admin/reset", "", nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	dev := newTestAPI(t, "dev")
	dev.newUser(t, "owner@example.com")
	resp = postJSON(t, dev.server.URL+"/admin/reset", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	_, err := dev.db.GetUserByEmail("owner@example.com")
	assert.ErrorIs(t, err, database.ErrNotFound)
}
