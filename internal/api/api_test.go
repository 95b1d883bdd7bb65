package api

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/andresuchdata/audiodrive/backend-go/internal/analyzer"
	"github.com/andresuchdata/audiodrive/backend-go/internal/auth"
	"github.com/andresuchdata/audiodrive/backend-go/internal/drive"
	"github.com/andresuchdata/audiodrive/backend-go/internal/drive/drivetest"
	"github.com/andresuchdata/audiodrive/backend-go/internal/pipeline"
	"github.com/andresuchdata/audiodrive/backend-go/internal/store"
	"github.com/gin-gonic/gin"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

const rootID = "root"

type fakeAnalyzer struct {
	result json.RawMessage
	err    error
	calls  []string
}

func (f *fakeAnalyzer) Analyze(_ context.Context, fileID, name string) (json.RawMessage, error) {
	f.calls = append(f.calls, fileID+":"+name)
	return f.result, f.err
}

type testEnv struct {
	router   *gin.Engine
	provider *drivetest.Provider
	analyzer *fakeAnalyzer
	store    store.Store
	auth     *auth.Authenticator
	token    string
}

func newTestEnv(t *testing.T, oauthCfg *oauth2.Config) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	p := drivetest.New().
		AddFolder("album", "Album", rootID).
		AddFile("a", "A.mp3", "album", strings.Repeat("a", 1<<16)).
		AddFile("b", "B.wav", "album", "wav-bytes").
		AddFile("top", "intro.mp3", rootID, "intro")

	st, err := store.NewJSONStore(afero.NewMemMapFs(), "/data/db.json")
	require.NoError(t, err)

	authenticator := auth.New("admin", "pw", "jwt-secret", time.Hour)
	token, _, err := authenticator.Login("admin", "pw")
	require.NoError(t, err)

	an := &fakeAnalyzer{result: json.RawMessage(`{"bpm":120}`)}

	files := drive.NewService(p, drive.Options{RootFolderID: rootID})
	router := NewRouter(&Services{
		Files:    files,
		Analyzer: an,
		Store:    st,
		Auth:     authenticator,
		OAuth:    oauthCfg,
		Batch:    pipeline.NewWorker(files, an, st, pipeline.Config{WorkerCount: 1}),
	}, []string{"*"})

	return &testEnv{router: router, provider: p, analyzer: an, store: st, auth: authenticator, token: token}
}

func (e *testEnv) do(t *testing.T, method, target string, body any, authed bool) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, target, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if authed {
		req.Header.Set("Authorization", "Bearer "+e.token)
	}

	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func TestHealthAndMetrics(t *testing.T) {
	env := newTestEnv(t, nil)

	w := env.do(t, http.MethodGet, "/health", nil, false)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())

	w = env.do(t, http.MethodGet, "/metrics", nil, false)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "audiodrive_http_requests_total")
}

func TestLogin(t *testing.T) {
	env := newTestEnv(t, nil)

	w := env.do(t, http.MethodPost, "/api/login", map[string]string{"username": "admin", "password": "pw"}, false)
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	_, err := env.auth.Validate(body.Token)
	assert.NoError(t, err)

	w = env.do(t, http.MethodPost, "/api/login", map[string]string{"username": "admin", "password": "nope"}, false)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = env.do(t, http.MethodPost, "/api/login", map[string]string{"username": "admin"}, false)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestListFiles(t *testing.T) {
	env := newTestEnv(t, nil)

	w := env.do(t, http.MethodGet, "/api/files", nil, false)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/files", nil)
	req.Header.Set("Authorization", "Bearer forged")
	w = httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = env.do(t, http.MethodGet, "/api/files", nil, true)
	require.Equal(t, http.StatusOK, w.Code)

	var tree []map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &tree))
	require.Len(t, tree, 2)
	assert.Equal(t, "Album", tree[0]["path"])
	assert.Len(t, tree[0]["children"], 2)
	assert.Equal(t, "intro.mp3", tree[1]["path"])
	assert.NotContains(t, tree[1], "children")

	w = env.do(t, http.MethodGet, "/api/files?path=Album", nil, true)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"path":"Album/B.wav"`)

	w = env.do(t, http.MethodGet, "/api/files?path=Nope", nil, true)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestListFiles_ProviderFailure(t *testing.T) {
	env := newTestEnv(t, nil)
	env.provider.ListErr["album"] = drive.ErrProviderUnavailable

	w := env.do(t, http.MethodGet, "/api/files", nil, true)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), `"error"`)
}

func TestGetPath(t *testing.T) {
	env := newTestEnv(t, nil)

	w := env.do(t, http.MethodGet, "/api/files/b/path", nil, true)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"id":"b","path":"Album/B.wav"}`, w.Body.String())

	w = env.do(t, http.MethodGet, "/api/files/missing/path", nil, true)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDownload(t *testing.T) {
	env := newTestEnv(t, nil)

	w := env.do(t, http.MethodGet, "/api/download/b", nil, false)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "wav-bytes", w.Body.String())
	assert.Equal(t, "audio/wav", w.Header().Get("Content-Type"))
	assert.Equal(t, `attachment; filename=B.wav`, w.Header().Get("Content-Disposition"))

	w = env.do(t, http.MethodGet, "/api/download/missing", nil, false)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = env.do(t, http.MethodGet, "/api/download/album", nil, false)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDownload_OpenFailureBeforeBytes(t *testing.T) {
	env := newTestEnv(t, nil)
	env.provider.OpenErr["b"] = drive.ErrProviderUnavailable

	w := env.do(t, http.MethodGet, "/api/download/b", nil, false)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Empty(t, w.Header().Get("Content-Disposition"))
}

func TestDownloadFolder(t *testing.T) {
	env := newTestEnv(t, nil)

	w := env.do(t, http.MethodGet, "/api/download-folder/album", nil, true)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/zip", w.Header().Get("Content-Type"))
	assert.Equal(t, `attachment; filename=folder_album.zip`, w.Header().Get("Content-Disposition"))

	zr, err := zip.NewReader(bytes.NewReader(w.Body.Bytes()), int64(w.Body.Len()))
	require.NoError(t, err)
	names := make([]string, 0, len(zr.File))
	for _, f := range zr.File {
		names = append(names, f.Name)
	}
	assert.Equal(t, []string{"A.mp3", "B.wav"}, names)

	w = env.do(t, http.MethodGet, "/api/download-folder/album", nil, false)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestDownloadFolder_FailureBeforeBytes(t *testing.T) {
	env := newTestEnv(t, nil)
	env.provider.ListErr["album"] = drive.ErrProviderUnavailable

	w := env.do(t, http.MethodGet, "/api/download-folder/album", nil, true)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Empty(t, w.Header().Get("Content-Disposition"))
	assert.Contains(t, w.Header().Get("Content-Type"), "application/json")
}

func TestDownloadFolder_MidStreamFailureAbortsConnection(t *testing.T) {
	env := newTestEnv(t, nil)
	env.provider.ReadErr["b"] = errors.New("connection reset")

	assert.PanicsWithValue(t, http.ErrAbortHandler, func() {
		env.do(t, http.MethodGet, "/api/download-folder/album", nil, true)
	})
}

func TestAnalyze(t *testing.T) {
	env := newTestEnv(t, nil)

	w := env.do(t, http.MethodGet, "/api/analysis-result/b", nil, true)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = env.do(t, http.MethodGet, "/api/analyze/b", nil, true)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"bpm":120}`, w.Body.String())
	assert.Equal(t, []string{"b:B.wav"}, env.analyzer.calls)

	w = env.do(t, http.MethodGet, "/api/analysis-result/b", nil, true)
	require.Equal(t, http.StatusOK, w.Code)
	var one struct {
		Result json.RawMessage `json:"result"`
		Path   string          `json:"path"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &one))
	assert.JSONEq(t, `{"bpm":120}`, string(one.Result))
	assert.Equal(t, "Album/B.wav", one.Path)

	w = env.do(t, http.MethodGet, "/api/analysis-results", nil, false)
	require.Equal(t, http.StatusOK, w.Code)
	var all map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &all))
	require.Contains(t, all, "b")
	assert.JSONEq(t, `{"bpm":120}`, string(all["b"]))
}

func TestAnalyzeFolder(t *testing.T) {
	env := newTestEnv(t, nil)

	w := env.do(t, http.MethodPost, "/api/analyze-folder/album", nil, false)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = env.do(t, http.MethodPost, "/api/analyze-folder/album", nil, true)
	require.Equal(t, http.StatusOK, w.Code)
	var report pipeline.Report
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &report))
	assert.Equal(t, "album", report.FolderID)
	assert.Equal(t, 2, report.Completed)
	assert.Equal(t, []string{"a:A.mp3", "b:B.wav"}, env.analyzer.calls)

	rec, err := env.store.GetAnalysis(context.Background(), "a")
	require.NoError(t, err)
	assert.Equal(t, "Album/A.mp3", rec.Path)

	env.provider.ListErr["album"] = drive.ErrProviderUnavailable
	w = env.do(t, http.MethodPost, "/api/analyze-folder/album", nil, true)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestAnalyze_Failures(t *testing.T) {
	env := newTestEnv(t, nil)

	w := env.do(t, http.MethodGet, "/api/analyze/missing", nil, true)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Empty(t, env.analyzer.calls)

	env.analyzer.err = analyzer.ErrAnalysisFailed
	w = env.do(t, http.MethodGet, "/api/analyze/b", nil, true)
	assert.Equal(t, http.StatusInternalServerError, w.Code)

	all, err := env.store.ListAnalyses(context.Background())
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestAnalyze_PathFallsBackToName(t *testing.T) {
	env := newTestEnv(t, nil)
	env.provider.MetaErr["album"] = drive.ErrProviderUnavailable

	w := env.do(t, http.MethodGet, "/api/analyze/b", nil, true)
	require.Equal(t, http.StatusOK, w.Code)

	rec, err := env.store.GetAnalysis(context.Background(), "b")
	require.NoError(t, err)
	assert.Equal(t, "B.wav", rec.Path)
}

func TestSelections(t *testing.T) {
	env := newTestEnv(t, nil)
	a := map[string]string{"name": "A.mp3", "path": "Album/A.mp3"}
	b := map[string]string{"name": "intro.mp3", "path": "intro.mp3"}

	w := env.do(t, http.MethodPost, "/api/selected-files", a, true)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"added":true}`, w.Body.String())

	w = env.do(t, http.MethodPost, "/api/selected-files", a, true)
	assert.JSONEq(t, `{"added":false}`, w.Body.String())

	env.do(t, http.MethodPost, "/api/selected-files", b, true)

	w = env.do(t, http.MethodGet, "/api/selected-files", nil, true)
	assert.JSONEq(t, `[{"name":"A.mp3","path":"Album/A.mp3"},{"name":"intro.mp3","path":"intro.mp3"}]`, w.Body.String())

	w = env.do(t, http.MethodGet, "/api/selected-files?folderPath="+url.QueryEscape("Album"), nil, true)
	assert.JSONEq(t, `[{"name":"A.mp3","path":"Album/A.mp3"}]`, w.Body.String())

	w = env.do(t, http.MethodDelete, "/api/selected-files", a, true)
	assert.JSONEq(t, `{"removed":true}`, w.Body.String())

	w = env.do(t, http.MethodGet, "/api/selected-files?folderPath=Album", nil, true)
	assert.JSONEq(t, `[]`, w.Body.String())

	w = env.do(t, http.MethodPost, "/api/selected-files", map[string]string{"name": "x"}, true)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodGet, "/api/selected-files", nil, false)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestOAuthFlow(t *testing.T) {
	tokenSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "the-code", r.PostForm.Get("code"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"at","token_type":"Bearer","refresh_token":"rt-123","expires_in":3600}`))
	}))
	t.Cleanup(tokenSrv.Close)

	cfg := &oauth2.Config{
		ClientID:     "client",
		ClientSecret: "secret",
		RedirectURL:  "http://localhost:5000/oauth2callback",
		Endpoint: oauth2.Endpoint{
			AuthURL:  "https://accounts.example.com/auth",
			TokenURL: tokenSrv.URL,
		},
		Scopes: []string{"drive.readonly"},
	}
	env := newTestEnv(t, cfg)

	w := env.do(t, http.MethodGet, "/auth", nil, false)
	require.Equal(t, http.StatusFound, w.Code)
	loc, err := url.Parse(w.Header().Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, "offline", loc.Query().Get("access_type"))
	assert.Equal(t, "consent", loc.Query().Get("prompt"))
	state := loc.Query().Get("state")
	require.NotEmpty(t, state)

	cookies := w.Result().Cookies()
	require.NotEmpty(t, cookies)

	req := httptest.NewRequest(http.MethodGet, "/oauth2callback?state=wrong&code=the-code", nil)
	req.AddCookie(cookies[0])
	w = httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	req = httptest.NewRequest(http.MethodGet, "/oauth2callback?state="+state+"&code=the-code", nil)
	req.AddCookie(cookies[0])
	w = httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "rt-123")
}

func TestOAuthNotConfigured(t *testing.T) {
	env := newTestEnv(t, nil)

	w := env.do(t, http.MethodGet, "/auth", nil, false)
	assert.Equal(t, http.StatusNotImplemented, w.Code)
}

func TestNormalizeAllowedOrigins(t *testing.T) {
	origins, all := normalizeAllowedOrigins([]string{"http://a.test, http://b.test", ""})
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, origins)
	assert.False(t, all)

	_, all = normalizeAllowedOrigins([]string{"*"})
	assert.True(t, all)
}
