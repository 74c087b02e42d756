package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/scry-research/internal/config"
	"github.com/phrazzld/scry-research/internal/domain"
	"github.com/phrazzld/scry-research/internal/knowledge"
	"github.com/phrazzld/scry-research/internal/service/auth"
	"github.com/phrazzld/scry-research/internal/store"
	"github.com/phrazzld/scry-research/internal/task"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

type fakeTasks struct {
	mu          sync.Mutex
	tasks       map[uuid.UUID]*domain.Task
	runs        []task.ReportRequest
	dispatchErr error
}

func newFakeTasks() *fakeTasks {
	return &fakeTasks{tasks: make(map[uuid.UUID]*domain.Task)}
}

func (f *fakeTasks) CreateTask(_ context.Context, subject string, mode domain.Mode) (uuid.UUID, error) {
	t, err := domain.NewTask(subject, mode)
	if err != nil {
		return uuid.Nil, fmt.Errorf("create task: %w", err)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tasks[t.ID] = t
	return t.ID, nil
}

func (f *fakeTasks) GetTask(_ context.Context, id uuid.UUID) (*domain.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tasks[id]
	if !ok {
		return nil, store.ErrTaskNotFound
	}
	c := *t
	return &c, nil
}

func (f *fakeTasks) RunTaskAsync(_ context.Context, req task.ReportRequest) error {
	if err := req.Validate(); err != nil {
		return err
	}
	if f.dispatchErr != nil {
		return fmt.Errorf("dispatch report job: %w", f.dispatchErr)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runs = append(f.runs, req)
	return nil
}

type fakeDocs struct {
	mu       sync.Mutex
	docs     map[string]*domain.Document
	contents map[string]string
	seq      int
}

func newFakeDocs() *fakeDocs {
	return &fakeDocs{docs: make(map[string]*domain.Document), contents: make(map[string]string)}
}

func (f *fakeDocs) StoreArtifact(_ context.Context, req knowledge.StoreRequest) (*domain.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	doc := &domain.Document{
		ID:        fmt.Sprintf("doc-%d", f.seq),
		OwnerID:   req.OwnerID,
		Subject:   strings.ToUpper(req.Subject),
		Filename:  domain.SafeFilename(req.Filename),
		FilePath:  "/srv/data/" + req.Filename,
		Type:      req.DocType,
		FileSize:  int64(len(req.Data)),
		CreatedAt: time.Now().Add(time.Duration(f.seq) * time.Second),
	}
	f.docs[doc.ID] = doc
	f.contents[doc.ID] = string(req.Data)
	return doc, nil
}

func (f *fakeDocs) ListDocuments(_ context.Context, subject string) ([]*domain.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*domain.Document
	for _, d := range f.docs {
		if d.Subject == strings.ToUpper(subject) {
			c := *d
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (f *fakeDocs) GetDocument(_ context.Context, id string) (*domain.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.docs[id]
	if !ok {
		return nil, store.ErrDocumentNotFound
	}
	c := *d
	return &c, nil
}

func (f *fakeDocs) DocumentContent(_ context.Context, id string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	content, ok := f.contents[id]
	if !ok {
		return "", store.ErrDocumentNotFound
	}
	return content, nil
}

func (f *fakeDocs) DeleteDocument(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.docs[id]; !ok {
		return store.ErrDocumentNotFound
	}
	delete(f.docs, id)
	delete(f.contents, id)
	return nil
}

type apiFixture struct {
	handler http.Handler
	tasks   *fakeTasks
	docs    *fakeDocs
	jwt     auth.JWTService
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	jwtService, err := auth.NewJWTService(config.AuthConfig{JWTSecret: testSecret, TokenLifetimeMinutes: 60})
	require.NoError(t, err)

	f := &apiFixture{tasks: newFakeTasks(), docs: newFakeDocs(), jwt: jwtService}
	f.handler = NewRouter(RouterDeps{
		Tasks:      f.tasks,
		Documents:  f.docs,
		JWTService: jwtService,
	})
	return f
}

func (f *apiFixture) token(t *testing.T, ownerID string) string {
	t.Helper()
	token, err := f.jwt.GenerateToken(context.Background(), ownerID)
	require.NoError(t, err)
	return token
}

func (f *apiFixture) do(t *testing.T, req *http.Request, ownerID string) *httptest.ResponseRecorder {
	t.Helper()
	if ownerID != "" {
		req.Header.Set("Authorization", "Bearer "+f.token(t, ownerID))
	}
	rr := httptest.NewRecorder()
	f.handler.ServeHTTP(rr, req)
	return rr
}

func jsonRequest(method, path, body string) *http.Request {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func uploadRequest(t *testing.T, subject, filename, content string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if subject != "" {
		require.NoError(t, mw.WriteField("subject", subject))
	}
	if filename != "" {
		part, err := mw.CreateFormFile("file", filename)
		require.NoError(t, err)
		_, err = part.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/documents", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestHealth(t *testing.T) {
	f := newAPIFixture(t)

	rr := f.do(t, httptest.NewRequest(http.MethodGet, "/health", nil), "")

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rr.Body.String())
}

func TestAPIRequiresAuthentication(t *testing.T) {
	f := newAPIFixture(t)

	for _, path := range []string{"/api/reports/" + uuid.NewString(), "/api/documents?subject=AAPL"} {
		rr := f.do(t, httptest.NewRequest(http.MethodGet, path, nil), "")
		assert.Equal(t, http.StatusUnauthorized, rr.Code, path)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/documents?subject=AAPL", nil)
	req.Header.Set("Authorization", "Bearer not-a-jwt")
	rr := httptest.NewRecorder()
	f.handler.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestCreateReport(t *testing.T) {
	f := newAPIFixture(t)

	rr := f.do(t, jsonRequest(http.MethodPost, "/api/reports",
		`{"mode":"stock","subject":"nvda","topic":"datacenter margins"}`), "owner-1")
	require.Equal(t, http.StatusAccepted, rr.Code, rr.Body.String())

	var resp CreateReportResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
	assert.Equal(t, "pending", resp.Status)
	id, err := uuid.Parse(resp.TaskID)
	require.NoError(t, err)

	require.Len(t, f.tasks.runs, 1)
	assert.Equal(t, task.ReportRequest{
		TaskID:  id,
		Mode:    domain.ModeStock,
		Topic:   "datacenter margins",
		Subject: "nvda",
		OwnerID: "owner-1",
	}, f.tasks.runs[0])

	got, err := f.tasks.GetTask(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "NVDA", got.Subject)
}

func TestCreateReportErrors(t *testing.T) {
	tests := []struct {
		name        string
		body        string
		dispatchErr error
		wantStatus  int
		wantMessage string
	}{
		{"malformed json", `{"mode":`, nil, http.StatusBadRequest, "Invalid request format"},
		{"unknown field", `{"mode":"MACRO","symbol":"X"}`, nil, http.StatusBadRequest, "Invalid request format"},
		{"missing mode", `{"subject":"AAPL"}`, nil, http.StatusBadRequest, "Invalid mode: required field"},
		{"unknown mode", `{"mode":"CRYPTO"}`, nil, http.StatusBadRequest, "Invalid mode: must be one of MACRO, STRATEGY, STOCK"},
		{"stock without subject", `{"mode":"STOCK"}`, nil, http.StatusBadRequest, "Subject is required for STOCK mode"},
		{"queue full", `{"mode":"MACRO"}`, task.ErrQueueFull, http.StatusServiceUnavailable, "Report queue is unavailable, try again later"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f := newAPIFixture(t)
			f.tasks.dispatchErr = tc.dispatchErr

			rr := f.do(t, jsonRequest(http.MethodPost, "/api/reports", tc.body), "owner-1")

			assert.Equal(t, tc.wantStatus, rr.Code)
			var resp struct {
				Error string `json:"error"`
			}
			require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
			assert.Equal(t, tc.wantMessage, resp.Error)
			assert.Empty(t, f.tasks.runs)
		})
	}
}

func TestGetReport(t *testing.T) {
	f := newAPIFixture(t)
	ctx := context.Background()

	id, err := f.tasks.CreateTask(ctx, "", domain.ModeMacro)
	require.NoError(t, err)
	f.tasks.tasks[id].Status = domain.TaskStatusCompleted
	f.tasks.tasks[id].Result = &domain.ReportResult{
		Preview: "# Outlook",
		Length:  9,
		File:    &domain.Document{ID: "doc-1", Filename: "r.pdf", FilePath: "/srv/data/r.pdf"},
	}

	rr := f.do(t, httptest.NewRequest(http.MethodGet, "/api/reports/"+id.String(), nil), "owner-1")
	require.Equal(t, http.StatusOK, rr.Code)

	var got domain.Task
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&got))
	assert.Equal(t, id, got.ID)
	assert.Equal(t, domain.TaskStatusCompleted, got.Status)
	require.NotNil(t, got.Result)
	assert.Equal(t, "doc-1", got.Result.File.ID)
	assert.Empty(t, got.Result.File.FilePath)

	// the stored record keeps its path
	assert.Equal(t, "/srv/data/r.pdf", f.tasks.tasks[id].Result.File.FilePath)
}

func TestGetReportErrors(t *testing.T) {
	f := newAPIFixture(t)

	rr := f.do(t, httptest.NewRequest(http.MethodGet, "/api/reports/not-a-uuid", nil), "owner-1")
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = f.do(t, httptest.NewRequest(http.MethodGet, "/api/reports/"+uuid.NewString(), nil), "owner-1")
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Contains(t, rr.Body.String(), "Task not found")
}

func TestDocumentLifecycle(t *testing.T) {
	f := newAPIFixture(t)

	rr := f.do(t, uploadRequest(t, "aapl", "notes.md", "# Apple notes"), "owner-1")
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	var doc domain.Document
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&doc))
	assert.Equal(t, "AAPL", doc.Subject)
	assert.Equal(t, "owner-1", doc.OwnerID)
	assert.Equal(t, domain.DocumentTypeUpload, doc.Type)
	assert.Empty(t, doc.FilePath)

	// another owner's upload under the same subject stays hidden
	rr = f.do(t, uploadRequest(t, "AAPL", "other.txt", "x"), "owner-2")
	require.Equal(t, http.StatusCreated, rr.Code)

	rr = f.do(t, httptest.NewRequest(http.MethodGet, "/api/documents?subject=aapl", nil), "owner-1")
	require.Equal(t, http.StatusOK, rr.Code)
	var listed []domain.Document
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&listed))
	require.Len(t, listed, 1)
	assert.Equal(t, doc.ID, listed[0].ID)

	rr = f.do(t, httptest.NewRequest(http.MethodGet, "/api/documents/"+doc.ID+"/content", nil), "owner-1")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, fmt.Sprintf(`{"id":%q,"content":"# Apple notes"}`, doc.ID), rr.Body.String())

	rr = f.do(t, httptest.NewRequest(http.MethodGet, "/api/documents/"+doc.ID+"/content", nil), "owner-2")
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = f.do(t, httptest.NewRequest(http.MethodDelete, "/api/documents/"+doc.ID, nil), "owner-2")
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = f.do(t, httptest.NewRequest(http.MethodDelete, "/api/documents/"+doc.ID, nil), "owner-1")
	assert.Equal(t, http.StatusNoContent, rr.Code)

	rr = f.do(t, httptest.NewRequest(http.MethodDelete, "/api/documents/"+doc.ID, nil), "owner-1")
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestUploadDocumentValidation(t *testing.T) {
	f := newAPIFixture(t)

	rr := f.do(t, uploadRequest(t, "", "notes.md", "x"), "owner-1")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), "Subject is required")

	rr = f.do(t, uploadRequest(t, "AAPL", "", ""), "owner-1")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), "File is required")

	rr = f.do(t, jsonRequest(http.MethodPost, "/api/documents", `{}`), "owner-1")
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = f.do(t, httptest.NewRequest(http.MethodGet, "/api/documents", nil), "owner-1")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}
