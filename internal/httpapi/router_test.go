package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	gormsqlite "github.com/glebarez/sqlite"
	"github.com/modsentry/moderation-api/internal/config"
	"github.com/modsentry/moderation-api/internal/contentsafety"
	"github.com/modsentry/moderation-api/internal/models"
	"github.com/modsentry/moderation-api/internal/moderation"
	"github.com/modsentry/moderation-api/internal/quota"
	"gorm.io/gorm"
)

const successBody = `{"categoriesAnalysis":[` +
	`{"category":"Hate","severity":0},` +
	`{"category":"SelfHarm","severity":0},` +
	`{"category":"Sexual","severity":0},` +
	`{"category":"Violence","severity":0}]}`

var pngBytes = append([]byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}, make([]byte, 64)...)

type fakeSafety struct {
	status int
	body   string
	err    error
}

func (f *fakeSafety) outcome() (*contentsafety.Outcome, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := &contentsafety.Outcome{StatusCode: f.status, Body: json.RawMessage(f.body)}
	if out.OK() {
		var decoded struct {
			CategoriesAnalysis []contentsafety.CategoryScore `json:"categoriesAnalysis"`
		}
		_ = json.Unmarshal([]byte(f.body), &decoded)
		out.Analysis = decoded.CategoriesAnalysis
	}
	return out, nil
}

func (f *fakeSafety) AnalyzeText(ctx context.Context, text string, categories []string, outputType string) (*contentsafety.Outcome, error) {
	return f.outcome()
}

func (f *fakeSafety) AnalyzeImage(ctx context.Context, base64Content string, categories []string, outputType string) (*contentsafety.Outcome, error) {
	return f.outcome()
}

func (f *fakeSafety) APIVersion() string { return "2024-09-01" }

type fakeBlobs struct {
	putErr  error
	objects map[string][]byte
}

func (f *fakeBlobs) Put(ctx context.Context, path string, data []byte, contentType string) error {
	if f.putErr != nil {
		return f.putErr
	}
	if f.objects == nil {
		f.objects = make(map[string][]byte)
	}
	f.objects[path] = data
	return nil
}

func (f *fakeBlobs) Exists(ctx context.Context, path string) (bool, error) {
	_, ok := f.objects[path]
	return ok, nil
}

func (f *fakeBlobs) TemporaryURL(ctx context.Context, path string, ttl time.Duration) (string, error) {
	return "https://example.blob.core.windows.net/" + path + "?sig=test", nil
}

type fakeCounter struct {
	counts map[string]int64
}

func (f *fakeCounter) IncrWindow(ctx context.Context, key string, window time.Duration) (int64, error) {
	if f.counts == nil {
		f.counts = make(map[string]int64)
	}
	f.counts[key]++
	return f.counts[key], nil
}

type testEnv struct {
	router *gin.Engine
	db     *gorm.DB
	user   *models.User
}

func setup(t *testing.T, safety *fakeSafety, blobs *fakeBlobs) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := gorm.Open(gormsqlite.Open("file:" + t.Name() + "?mode=memory&cache=shared"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&models.User{}, &moderation.Request{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}

	user := &models.User{Name: "t", Email: "t@example.com", APIToken: "valid-token", RequestsLimit: 10}
	if err := db.Create(user).Error; err != nil {
		t.Fatalf("create user: %v", err)
	}

	cfg := config.Config{RateLimitPerMinute: 30, HistoryPageSize: 20}
	tracker := quota.NewTracker(db)
	svc := moderation.NewService(moderation.NewRepo(db), tracker, safety, blobs, nil)
	router := NewRouter(db, cfg, &fakeCounter{}, svc, blobs, tracker, nil)

	return &testEnv{router: router, db: db, user: user}
}

func (e *testEnv) do(t *testing.T, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func postText(token, body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/text", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req
}

func postImage(t *testing.T, token, filename string, data []byte) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if filename != "" {
		fw, err := mw.CreateFormFile("image", filename)
		if err != nil {
			t.Fatalf("create form file: %v", err)
		}
		if _, err := fw.Write(data); err != nil {
			t.Fatalf("write form file: %v", err)
		}
	}
	_ = mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/image", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var m map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &m); err != nil {
		t.Fatalf("decode response %q: %v", w.Body.String(), err)
	}
	return m
}

func TestText_MissingToken(t *testing.T) {
	env := setup(t, &fakeSafety{status: 200, body: successBody}, &fakeBlobs{})

	w := env.do(t, postText("", `{"content":"hello"}`))
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", w.Code)
	}
	body := decodeBody(t, w)
	if body["error"] != "Missing API token. Provide it as Authorization: Bearer" {
		t.Fatalf("body = %v", body)
	}
}

func TestText_InvalidToken(t *testing.T) {
	env := setup(t, &fakeSafety{status: 200, body: successBody}, &fakeBlobs{})

	w := env.do(t, postText("wrong-token", `{"content":"hello"}`))
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", w.Code)
	}
	if decodeBody(t, w)["error"] != "Invalid API token" {
		t.Fatalf("unexpected body %s", w.Body.String())
	}
}

func TestText_Success(t *testing.T) {
	env := setup(t, &fakeSafety{status: 200, body: successBody}, &fakeBlobs{})

	w := env.do(t, postText("valid-token", `{"content":"hello"}`))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}

	body := decodeBody(t, w)
	if _, ok := body["request_id"].(float64); !ok {
		t.Fatalf("request_id missing or not numeric: %v", body)
	}
	result, ok := body["result"].([]any)
	if !ok || len(result) != 4 {
		t.Fatalf("result = %v, want 4 category entries", body["result"])
	}
	entry := result[0].(map[string]any)
	if _, ok := entry["category"]; !ok {
		t.Fatalf("result entries must carry category: %v", entry)
	}
	if _, ok := entry["severity"]; !ok {
		t.Fatalf("result entries must carry severity: %v", entry)
	}
}

func TestText_Validation(t *testing.T) {
	env := setup(t, &fakeSafety{status: 200, body: successBody}, &fakeBlobs{})

	w := env.do(t, postText("valid-token", `{}`))
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("missing content: status = %d, want 422", w.Code)
	}

	w = env.do(t, postText("valid-token", `{"content":"x","categories":["Hate","Spam"]}`))
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("bad category: status = %d, want 422", w.Code)
	}

	// validation failures never reach the ledger or the quota
	var count int64
	env.db.Model(&moderation.Request{}).Count(&count)
	if count != 0 {
		t.Fatalf("%d ledger records after validation failures, want 0", count)
	}
}

func TestText_UpstreamFailure(t *testing.T) {
	upstream := `{"error":{"code":"InternalError"}}`
	env := setup(t, &fakeSafety{status: 500, body: upstream}, &fakeBlobs{})

	w := env.do(t, postText("valid-token", `{"content":"hello"}`))
	if w.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", w.Code)
	}

	body := decodeBody(t, w)
	if body["error"] != "Azure Content Safety error" {
		t.Fatalf("error = %v", body["error"])
	}
	if body["status"] != float64(500) {
		t.Fatalf("status field = %v, want 500", body["status"])
	}
	if body["details"] == nil {
		t.Fatalf("details missing")
	}
	if _, ok := body["request_id"].(float64); !ok {
		t.Fatalf("request_id missing")
	}

	var rec moderation.Request
	if err := env.db.First(&rec).Error; err != nil {
		t.Fatalf("ledger record missing: %v", err)
	}
	if rec.Status != moderation.StatusFail {
		t.Fatalf("ledger status = %q, want fail", rec.Status)
	}
}

func TestText_QuotaExhausted(t *testing.T) {
	env := setup(t, &fakeSafety{status: 200, body: successBody}, &fakeBlobs{})

	env.db.Model(env.user).UpdateColumn("requests_used", env.user.RequestsLimit)

	w := env.do(t, postText("valid-token", `{"content":"hello"}`))
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", w.Code)
	}
	if decodeBody(t, w)["error"] != "Request limit exceeded" {
		t.Fatalf("unexpected body %s", w.Body.String())
	}

	var count int64
	env.db.Model(&moderation.Request{}).Count(&count)
	if count != 0 {
		t.Fatalf("rejected request must not reach the ledger")
	}

	var u models.User
	env.db.First(&u, env.user.ID)
	if u.RequestsUsed != env.user.RequestsLimit {
		t.Fatalf("requests_used changed on rejection: %d", u.RequestsUsed)
	}
}

func TestRateLimit(t *testing.T) {
	env := setup(t, &fakeSafety{status: 200, body: successBody}, &fakeBlobs{})

	var w *httptest.ResponseRecorder
	for i := 0; i < 31; i++ {
		w = env.do(t, postText("valid-token", `{"content":"hello"}`))
	}
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429 on request 31", w.Code)
	}
	if decodeBody(t, w)["message"] != "Too many requests. Please try again later." {
		t.Fatalf("unexpected body %s", w.Body.String())
	}
}

func TestImage_Success(t *testing.T) {
	env := setup(t, &fakeSafety{status: 200, body: successBody}, &fakeBlobs{})

	w := env.do(t, postImage(t, "valid-token", "photo.jpeg", pngBytes))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}

	body := decodeBody(t, w)
	if body["message"] != "Analyzed and uploaded successfully" {
		t.Fatalf("message = %v", body["message"])
	}
	upload, ok := body["upload"].(map[string]any)
	if !ok {
		t.Fatalf("upload block missing: %v", body)
	}
	path, _ := upload["path"].(string)
	if !strings.HasSuffix(path, ".jpg") {
		t.Fatalf("path = %q, want .jpeg normalized to .jpg", path)
	}
	if upload["original_filename"] != "photo.jpeg" {
		t.Fatalf("original_filename = %v", upload["original_filename"])
	}
	if upload["exists"] != true {
		t.Fatalf("exists = %v", upload["exists"])
	}
}

func TestImage_MissingFile(t *testing.T) {
	env := setup(t, &fakeSafety{status: 200, body: successBody}, &fakeBlobs{})

	w := env.do(t, postImage(t, "valid-token", "", nil))
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", w.Code)
	}
}

func TestImage_NotAnImage(t *testing.T) {
	env := setup(t, &fakeSafety{status: 200, body: successBody}, &fakeBlobs{})

	w := env.do(t, postImage(t, "valid-token", "doc.txt", []byte("plain text, not an image")))
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", w.Code)
	}
}

func TestImage_UploadFailureAfterAnalysis(t *testing.T) {
	env := setup(t, &fakeSafety{status: 200, body: successBody}, &fakeBlobs{putErr: context.DeadlineExceeded})

	w := env.do(t, postImage(t, "valid-token", "photo.png", pngBytes))
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", w.Code)
	}

	body := decodeBody(t, w)
	if body["error"] != "Upload failed after successful analysis" {
		t.Fatalf("error = %v", body["error"])
	}
	if body["analysis"] == nil {
		t.Fatalf("analysis body missing")
	}
	if _, ok := body["request_id"].(float64); !ok {
		t.Fatalf("request_id missing")
	}

	var rec moderation.Request
	if err := env.db.First(&rec).Error; err != nil {
		t.Fatalf("ledger record missing: %v", err)
	}
	if !strings.HasSuffix(rec.Content, "(upload failed)") {
		t.Fatalf("ledger content = %q, want (upload failed) suffix", rec.Content)
	}
}

func TestHistory_ListAndGet(t *testing.T) {
	env := setup(t, &fakeSafety{status: 200, body: successBody}, &fakeBlobs{})

	// two requests for our user
	env.do(t, postText("valid-token", `{"content":"first"}`))
	env.do(t, postText("valid-token", `{"content":"second"}`))

	// and one for somebody else
	other := &models.User{Name: "o", Email: "o@example.com", APIToken: "other-token", RequestsLimit: 10}
	if err := env.db.Create(other).Error; err != nil {
		t.Fatalf("create other user: %v", err)
	}
	env.do(t, postText("other-token", `{"content":"not yours"}`))

	req := httptest.NewRequest(http.MethodGet, "/requests", nil)
	req.Header.Set("Authorization", "Bearer valid-token")
	w := env.do(t, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}

	body := decodeBody(t, w)
	data, ok := body["data"].([]any)
	if !ok || len(data) != 2 {
		t.Fatalf("data = %v, want own 2 records", body["data"])
	}
	newest := data[0].(map[string]any)
	if newest["content"] != "second" {
		t.Fatalf("records not newest-first: %v", newest["content"])
	}

	// fetching the other user's record yields 404, not 403
	var theirs moderation.Request
	if err := env.db.Where("user_id = ?", other.ID).First(&theirs).Error; err != nil {
		t.Fatalf("load other record: %v", err)
	}
	req = httptest.NewRequest(http.MethodGet, "/requests/"+jsonNumber(theirs.ID), nil)
	req.Header.Set("Authorization", "Bearer valid-token")
	w = env.do(t, req)
	if w.Code != http.StatusNotFound {
		t.Fatalf("cross-owner fetch: status = %d, want 404", w.Code)
	}
}

func jsonNumber(id uint64) string {
	b, _ := json.Marshal(id)
	return string(b)
}
