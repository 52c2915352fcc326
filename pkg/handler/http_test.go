package handler_test

import (
	"bytes"
	"context"
	"encoding/base64"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"regexp"
	"strings"
	"testing"

	"github.com/foomo/annotationserver/pkg/annotation"
	"github.com/foomo/annotationserver/pkg/handler"
	"github.com/foomo/annotationserver/pkg/session"
	"github.com/foomo/annotationserver/pkg/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

const basePath = "/annotations"

var sessionPattern = regexp.MustCompile(`name="session" value="([^"]+)"`)

type testServer struct {
	*httptest.Server
	store    *annotation.Store
	sessions *session.Manager
}

func newTestServer(t *testing.T, opts ...annotation.Option) *testServer {
	t.Helper()
	l := zaptest.NewLogger(t)
	s, err := storage.NewFilesystemStorage(t.TempDir())
	require.NoError(t, err)
	store := annotation.NewStore(l, s, opts...)
	sessions := session.NewManager(l, store)
	server := httptest.NewServer(handler.NewHTTP(l, store, sessions, handler.WithBasePath(basePath)))
	t.Cleanup(server.Close)
	return &testServer{Server: server, store: store, sessions: sessions}
}

func (s *testServer) get(t *testing.T, path string) (int, string) {
	t.Helper()
	res, err := http.Get(s.URL + basePath + path)
	require.NoError(t, err)
	defer res.Body.Close()
	body, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	return res.StatusCode, string(body)
}

func (s *testServer) postMultipart(t *testing.T, path string, fields map[string]string, file []byte) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	if file != nil {
		fw, err := mw.CreateFormFile("image", "chart.png")
		require.NoError(t, err)
		_, err = fw.Write(file)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	client := &http.Client{CheckRedirect: func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}}
	res, err := client.Post(s.URL+basePath+path, mw.FormDataContentType(), &buf)
	require.NoError(t, err)
	t.Cleanup(func() { _ = res.Body.Close() })
	return res
}

func sessionID(t *testing.T, body string) string {
	t.Helper()
	m := sessionPattern.FindStringSubmatch(body)
	require.Len(t, m, 2, "no session in %s", body)
	return m[1]
}

func TestPageEmpty(t *testing.T) {
	s := newTestServer(t)

	status, body := s.get(t, "/page?item=variance-analysis")
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, body, `<h1 data-role="heading">Variance Analysis</h1>`)
	assert.Contains(t, body, `<textarea name="text" data-role="text" rows="20" cols="80"></textarea>`)
	assert.Contains(t, body, `<img data-role="preview" alt="" hidden>`)
	assert.NotContains(t, body, session.Confirmation)
}

func TestPageMissingItem(t *testing.T) {
	s := newTestServer(t)

	status, _ := s.get(t, "/page")
	assert.Equal(t, http.StatusBadRequest, status)
	status, _ = s.get(t, "/popup?item=..%2Fetc")
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestPageSave(t *testing.T) {
	s := newTestServer(t)
	png := []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

	_, body := s.get(t, "/page?item=cash")
	id := sessionID(t, body)

	res := s.postMultipart(t, "/page", map[string]string{"session": id, "item": "cash", "text": "Operating cash balance"}, png)
	require.Equal(t, http.StatusOK, res.StatusCode)
	saved, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	assert.Contains(t, string(saved), session.Confirmation)
	assert.Contains(t, string(saved), `src="data:image/png;base64,`+base64.StdEncoding.EncodeToString(png)+`"`)

	// the session stays open, saving again without a file keeps the image
	res = s.postMultipart(t, "/page", map[string]string{"session": id, "item": "cash", "text": "updated"}, nil)
	require.Equal(t, http.StatusOK, res.StatusCode)

	record := s.store.Load(context.Background(), "cash").Record
	assert.Equal(t, "updated", record.Text)
	assert.Equal(t, "data:image/png;base64,"+base64.StdEncoding.EncodeToString(png), record.Image)
}

func TestPageSaveWithoutSession(t *testing.T) {
	s := newTestServer(t)

	res := s.postMultipart(t, "/page", map[string]string{"session": "unknown", "item": "cash", "text": "lost"}, nil)
	assert.Equal(t, http.StatusSeeOther, res.StatusCode)
	assert.Equal(t, basePath+"/page?item=cash", res.Header.Get("Location"))
	assert.Equal(t, annotation.StatusMissing, s.store.Load(context.Background(), "cash").Status)
}

func TestPageSaveAfterSessionEnded(t *testing.T) {
	s := newTestServer(t)

	_, body := s.get(t, "/page?item=cash")
	id := sessionID(t, body)
	require.True(t, s.sessions.Close(session.ModePage, id))

	res := s.postMultipart(t, "/page", map[string]string{"session": id, "item": "cash", "text": "lost"}, nil)
	assert.Equal(t, http.StatusSeeOther, res.StatusCode)
	assert.Equal(t, basePath+"/page?item=cash", res.Header.Get("Location"))
	assert.Equal(t, annotation.StatusMissing, s.store.Load(context.Background(), "cash").Status)
}

func TestPopupIgnoresPageSessions(t *testing.T) {
	s := newTestServer(t)

	_, body := s.get(t, "/page?item=cash")
	id := sessionID(t, body)

	res := s.postMultipart(t, "/popup/save", map[string]string{"session": id, "text": "from popup"}, nil)
	assert.Equal(t, http.StatusNoContent, res.StatusCode)
	assert.Equal(t, annotation.StatusMissing, s.store.Load(context.Background(), "cash").Status)

	res = s.postMultipart(t, "/popup/close", map[string]string{"session": id}, nil)
	assert.Equal(t, http.StatusNoContent, res.StatusCode)
	_, ok := s.sessions.Get(session.ModePage, id)
	assert.True(t, ok)
}

func TestPopupLifecycle(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()
	_, err := s.store.Save(ctx, "k1", "first <b>item</b>", nil, "")
	require.NoError(t, err)

	status, body := s.get(t, "/popup?item=k1")
	require.Equal(t, http.StatusOK, status)
	assert.Contains(t, body, "first &lt;b&gt;item&lt;/b&gt;")
	assert.Contains(t, body, `href="`+basePath+`/page?item=k1" target="_blank"`)
	first := sessionID(t, body)

	// cancel leaves the record untouched
	res := s.postMultipart(t, "/popup/close", map[string]string{"session": first}, nil)
	assert.Equal(t, http.StatusNoContent, res.StatusCode)
	assert.Equal(t, "first <b>item</b>", s.store.Load(ctx, "k1").Record.Text)

	// another item shows nothing of the previous one
	_, body = s.get(t, "/popup?item=k2")
	assert.NotContains(t, body, "first")
	second := sessionID(t, body)

	res = s.postMultipart(t, "/popup/save", map[string]string{"session": second, "text": "second item"}, nil)
	assert.Equal(t, http.StatusNoContent, res.StatusCode)
	assert.Equal(t, "second item", s.store.Load(ctx, "k2").Record.Text)
	assert.Equal(t, 0, s.sessions.Len())

	// the session is gone, saving again is a no-op
	res = s.postMultipart(t, "/popup/save", map[string]string{"session": second, "text": "ignored"}, nil)
	assert.Equal(t, http.StatusNoContent, res.StatusCode)
	assert.Equal(t, "second item", s.store.Load(ctx, "k2").Record.Text)

	res = s.postMultipart(t, "/popup/close", map[string]string{"session": second}, nil)
	assert.Equal(t, http.StatusNoContent, res.StatusCode)
}

func TestPopupSaveTooLarge(t *testing.T) {
	s := newTestServer(t, annotation.WithImageMaxBytes(2))

	_, body := s.get(t, "/popup?item=cash")
	res := s.postMultipart(t, "/popup/save", map[string]string{"session": sessionID(t, body), "text": "x"}, []byte("GIF89a"))
	assert.Equal(t, http.StatusRequestEntityTooLarge, res.StatusCode)
	assert.Equal(t, annotation.StatusMissing, s.store.Load(context.Background(), "cash").Status)
}

func TestStatic(t *testing.T) {
	s := newTestServer(t)

	status, body := s.get(t, "/static/popup.js")
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, body, "[data-item]")
}

func TestAPI(t *testing.T) {
	s := newTestServer(t)

	status, body := s.get(t, "/api/explanations/cash")
	assert.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"reply":{"item":"cash","status":"missing","record":{"text":"","image":""}}}`, body)

	req, err := http.NewRequest(http.MethodPut, s.URL+basePath+"/api/explanations/cash",
		strings.NewReader(`{"text":"Operating cash balance","image":"`+base64.StdEncoding.EncodeToString([]byte("GIF89a"))+`","imageName":"a.gif"}`))
	require.NoError(t, err)
	res, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer res.Body.Close()
	assert.Equal(t, http.StatusOK, res.StatusCode)

	status, body = s.get(t, "/api/explanations/cash")
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, body, `"status":"found"`)
	assert.Contains(t, body, `"image":"data:image/gif;base64,`)

	status, body = s.get(t, "/api/explanations")
	assert.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"reply":{"keys":["cash"]}}`, body)

	req, err = http.NewRequest(http.MethodPut, s.URL+basePath+"/api/explanations/cash", strings.NewReader(`{broken`))
	require.NoError(t, err)
	res, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer res.Body.Close()
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)
}

func TestAPICorrupt(t *testing.T) {
	fs, err := storage.NewFilesystemStorage(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, fs.Write(context.Background(), annotation.StorageKey("broken"), []byte("nope")))

	l := zaptest.NewLogger(t)
	store := annotation.NewStore(l, fs)
	server := httptest.NewServer(handler.NewHTTP(l, store, session.NewManager(l, store), handler.WithBasePath(basePath)))
	defer server.Close()

	res, err := http.Get(server.URL + basePath + "/api/explanations/" + url.PathEscape("broken"))
	require.NoError(t, err)
	defer res.Body.Close()
	body, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Contains(t, string(body), `"status":"corrupt"`)
	assert.Contains(t, string(body), `"text":""`)
}
