package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/operis/record-ingestion/internal/config"
	"github.com/operis/record-ingestion/internal/database"
	"github.com/operis/record-ingestion/internal/importer"
	"github.com/operis/record-ingestion/internal/metrics"
	"github.com/operis/record-ingestion/internal/processor"
)

var testCollector = metrics.NewCollector()

type fakeOperationStore struct {
	ops    map[int64]*database.Operation
	nextID int64
}

func newFakeOperationStore() *fakeOperationStore {
	return &fakeOperationStore{ops: make(map[int64]*database.Operation), nextID: 1}
}

func (f *fakeOperationStore) Create(_ context.Context, op *database.Operation) error {
	op.ID = f.nextID
	op.CreatedAt = time.Now().UTC()
	f.nextID++
	f.ops[op.ID] = op
	return nil
}

func (f *fakeOperationStore) GetByID(_ context.Context, id int64) (*database.Operation, error) {
	return f.ops[id], nil
}

func (f *fakeOperationStore) List(_ context.Context) ([]*database.Operation, error) {
	var out []*database.Operation
	for _, op := range f.ops {
		out = append(out, op)
	}
	return out, nil
}

func (f *fakeOperationStore) Delete(_ context.Context, id int64) error {
	delete(f.ops, id)
	return nil
}

type fakeRunner struct {
	lastOperation int64
	lastDocs      []importer.Document
	result        *importer.Result
}

func (f *fakeRunner) Import(_ context.Context, operationID int64, docs []importer.Document) *importer.Result {
	f.lastOperation = operationID
	f.lastDocs = docs
	if f.result != nil {
		return f.result
	}
	return &importer.Result{Rejected: map[processor.RejectReason]int{}}
}

func setupHandlers() (*mux.Router, *fakeOperationStore, *fakeRunner) {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)

	ops := newFakeOperationStore()
	runner := &fakeRunner{}

	h := &HTTPHandlers{
		operations: ops,
		importer:   runner,
		metrics:    testCollector,
		logger:     logger,
		importCfg: config.ImportConfig{
			MaxUploadSize: 10 << 20,
			UploadTimeout: time.Minute,
		},
	}

	router := mux.NewRouter()
	router.HandleFunc("/api/v1/operations", h.CreateOperation).Methods("POST")
	router.HandleFunc("/api/v1/operations/{operation_id}", h.GetOperation).Methods("GET")
	router.HandleFunc("/api/v1/operations/{operation_id}/import", h.ImportDocuments).Methods("POST")
	router.HandleFunc("/health/live", h.LivenessCheck).Methods("GET")

	return router, ops, runner
}

func multipartUpload(t *testing.T, filename string, content []byte) (*bytes.Buffer, string) {
	t.Helper()

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("files", filename)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	return &body, writer.FormDataContentType()
}

func TestCreateOperation(t *testing.T) {
	router, ops, _ := setupHandlers()

	body := bytes.NewBufferString(`{"name": "Operation North", "description": "wiretap export"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/operations", body)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)

	var resp OperationResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "Operation North", resp.Name)
	assert.NotZero(t, resp.ID)
	assert.Len(t, ops.ops, 1)
}

func TestCreateOperationMissingName(t *testing.T) {
	router, _, _ := setupHandlers()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/operations", bytes.NewBufferString(`{}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetOperationNotFound(t *testing.T) {
	router, _, _ := setupHandlers()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/operations/42", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetOperationInvalidID(t *testing.T) {
	router, _, _ := setupHandlers()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/operations/abc", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestImportDocuments(t *testing.T) {
	router, ops, runner := setupHandlers()
	require.NoError(t, ops.Create(context.Background(), &database.Operation{Name: "op"}))

	runner.result = &importer.Result{
		Persisted: 7,
		Skipped:   []string{"dup.html"},
		Rejected:  map[processor.RejectReason]int{processor.RejectMissingType: 2},
	}

	body, contentType := multipartUpload(t, "export.html", []byte("<table></table>"))
	req := httptest.NewRequest(http.MethodPost, "/api/v1/operations/1/import", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp ImportResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, int64(1), resp.OperationID)
	assert.Equal(t, 7, resp.Persisted)
	assert.Equal(t, []string{"dup.html"}, resp.Skipped)
	assert.Equal(t, 2, resp.Rejected["missing_type"])

	assert.Equal(t, int64(1), runner.lastOperation)
	require.Len(t, runner.lastDocs, 1)
	assert.Equal(t, "export.html", runner.lastDocs[0].Filename)
	assert.Equal(t, []byte("<table></table>"), runner.lastDocs[0].Content)
}

func TestImportDocumentsNoFiles(t *testing.T) {
	router, ops, _ := setupHandlers()
	require.NoError(t, ops.Create(context.Background(), &database.Operation{Name: "op"}))

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/operations/1/import", &body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestImportDocumentsUnknownOperation(t *testing.T) {
	router, _, runner := setupHandlers()

	body, contentType := multipartUpload(t, "export.html", []byte("x"))
	req := httptest.NewRequest(http.MethodPost, "/api/v1/operations/9/import", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Empty(t, runner.lastDocs)
}

func TestLivenessCheck(t *testing.T) {
	router, _, _ := setupHandlers()

	req := httptest.NewRequest(http.MethodGet, "/health/live", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}
