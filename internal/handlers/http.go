package handlers

import (
	"context"
	"database/sql"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/operis/record-ingestion/internal/config"
	"github.com/operis/record-ingestion/internal/database"
	"github.com/operis/record-ingestion/internal/importer"
	"github.com/operis/record-ingestion/internal/metrics"
)

// ImportRunner runs an import batch for one operation.
type ImportRunner interface {
	Import(ctx context.Context, operationID int64, docs []importer.Document) *importer.Result
}

// HTTPHandlers holds HTTP route handlers
type HTTPHandlers struct {
	db         *sql.DB
	operations database.OperationStore
	files      database.FileStore
	messages   *database.MessageRepository
	importer   ImportRunner
	metrics    *metrics.Collector
	logger     *logrus.Logger
	importCfg  config.ImportConfig
}

// CreateOperationRequest represents an operation creation request
type CreateOperationRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// OperationResponse represents an operation
type OperationResponse struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// OperationStatsResponse reports persisted volume for one operation
type OperationStatsResponse struct {
	OperationID  int64 `json:"operation_id"`
	MessageCount int   `json:"message_count"`
}

// FileResponse represents one ingested document
type FileResponse struct {
	ID               int64     `json:"id"`
	Name             string    `json:"name"`
	ContentHash      string    `json:"content_hash"`
	UploadedAt       time.Time `json:"uploaded_at"`
	TargetIdentifier *string   `json:"target_identifier,omitempty"`
	PeriodStart      *string   `json:"period_start,omitempty"`
	PeriodEnd        *string   `json:"period_end,omitempty"`
}

// ImportFailure reports one document that could not be imported
type ImportFailure struct {
	FileName string `json:"file_name"`
	Error    string `json:"error"`
}

// ImportResponse summarizes one import request
type ImportResponse struct {
	OperationID int64           `json:"operation_id"`
	Persisted   int             `json:"persisted"`
	Skipped     []string        `json:"skipped"`
	Rejected    map[string]int  `json:"rejected"`
	Failures    []ImportFailure `json:"failures"`
}

// HealthResponse represents a health check response
type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Version   string            `json:"version"`
	Services  map[string]string `json:"services"`
	Uptime    string            `json:"uptime"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error     string    `json:"error"`
	Message   string    `json:"message"`
	Code      string    `json:"code,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

var startTime = time.Now()

// NewHTTPHandlers creates new HTTP handlers
func NewHTTPHandlers(
	db *sql.DB,
	imp ImportRunner,
	collector *metrics.Collector,
	logger *logrus.Logger,
	importCfg config.ImportConfig,
) *HTTPHandlers {
	return &HTTPHandlers{
		db:         db,
		operations: database.NewOperationRepository(db),
		files:      database.NewFileRepository(db),
		messages:   database.NewMessageRepository(db),
		importer:   imp,
		metrics:    collector,
		logger:     logger,
		importCfg:  importCfg,
	}
}

// RegisterRoutes registers HTTP routes
func (h *HTTPHandlers) RegisterRoutes(router *mux.Router) {
	// Operation routes
	router.HandleFunc("/api/v1/operations", h.CreateOperation).Methods("POST")
	router.HandleFunc("/api/v1/operations", h.ListOperations).Methods("GET")
	router.HandleFunc("/api/v1/operations/{operation_id}", h.GetOperation).Methods("GET")
	router.HandleFunc("/api/v1/operations/{operation_id}", h.DeleteOperation).Methods("DELETE")
	router.HandleFunc("/api/v1/operations/{operation_id}/stats", h.GetOperationStats).Methods("GET")

	// Import routes
	router.HandleFunc("/api/v1/operations/{operation_id}/import", h.ImportDocuments).Methods("POST")
	router.HandleFunc("/api/v1/operations/{operation_id}/files", h.ListFiles).Methods("GET")

	// Health and monitoring routes
	router.HandleFunc("/health", h.HealthCheck).Methods("GET")
	router.HandleFunc("/health/ready", h.ReadinessCheck).Methods("GET")
	router.HandleFunc("/health/live", h.LivenessCheck).Methods("GET")

	router.Handle("/metrics", promhttp.Handler()).Methods("GET")
}

// CreateOperation creates a new investigation operation
func (h *HTTPHandlers) CreateOperation(w http.ResponseWriter, r *http.Request) {
	var req CreateOperationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.sendError(w, http.StatusBadRequest, "INVALID_BODY", "Failed to decode request body", err)
		return
	}
	if req.Name == "" {
		h.sendError(w, http.StatusBadRequest, "MISSING_NAME", "Operation name is required", nil)
		return
	}

	op := &database.Operation{Name: req.Name, Description: req.Description}
	if err := h.operations.Create(r.Context(), op); err != nil {
		h.sendError(w, http.StatusInternalServerError, "CREATE_FAILED", "Failed to create operation", err)
		return
	}

	h.sendJSON(w, http.StatusCreated, operationResponse(op))
}

// ListOperations lists all operations
func (h *HTTPHandlers) ListOperations(w http.ResponseWriter, r *http.Request) {
	ops, err := h.operations.List(r.Context())
	if err != nil {
		h.sendError(w, http.StatusInternalServerError, "LIST_FAILED", "Failed to list operations", err)
		return
	}

	responses := make([]OperationResponse, 0, len(ops))
	for _, op := range ops {
		responses = append(responses, operationResponse(op))
	}
	h.sendJSON(w, http.StatusOK, responses)
}

// GetOperation returns one operation by id
func (h *HTTPHandlers) GetOperation(w http.ResponseWriter, r *http.Request) {
	op, ok := h.lookupOperation(w, r)
	if !ok {
		return
	}
	h.sendJSON(w, http.StatusOK, operationResponse(op))
}

// DeleteOperation removes an operation and everything imported into it
func (h *HTTPHandlers) DeleteOperation(w http.ResponseWriter, r *http.Request) {
	op, ok := h.lookupOperation(w, r)
	if !ok {
		return
	}

	if err := h.operations.Delete(r.Context(), op.ID); err != nil {
		h.sendError(w, http.StatusInternalServerError, "DELETE_FAILED", "Failed to delete operation", err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// GetOperationStats reports the persisted message count for one operation
func (h *HTTPHandlers) GetOperationStats(w http.ResponseWriter, r *http.Request) {
	op, ok := h.lookupOperation(w, r)
	if !ok {
		return
	}

	count, err := h.messages.CountByOperation(r.Context(), op.ID)
	if err != nil {
		h.sendError(w, http.StatusInternalServerError, "STATS_FAILED", "Failed to count messages", err)
		return
	}

	h.sendJSON(w, http.StatusOK, OperationStatsResponse{
		OperationID:  op.ID,
		MessageCount: count,
	})
}

// ImportDocuments ingests a multipart batch of exported documents
func (h *HTTPHandlers) ImportDocuments(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	defer func() {
		h.metrics.RecordHistogram("import_duration_seconds", time.Since(start).Seconds())
	}()

	h.metrics.IncrementCounter("import_requests_total")

	op, ok := h.lookupOperation(w, r)
	if !ok {
		return
	}

	if err := r.ParseMultipartForm(h.importCfg.MaxUploadSize); err != nil {
		h.metrics.IncrementCounter("import_request_errors_total")
		h.sendError(w, http.StatusBadRequest, "INVALID_FORM", "Failed to parse multipart form", err)
		return
	}

	headers := r.MultipartForm.File["files"]
	if len(headers) == 0 {
		h.metrics.IncrementCounter("import_request_errors_total")
		h.sendError(w, http.StatusBadRequest, "MISSING_FILES", "At least one file is required", nil)
		return
	}

	docs := make([]importer.Document, 0, len(headers))
	for _, header := range headers {
		file, err := header.Open()
		if err != nil {
			h.metrics.IncrementCounter("import_request_errors_total")
			h.sendError(w, http.StatusBadRequest, "UNREADABLE_FILE", "Failed to open uploaded file", err)
			return
		}

		content, err := io.ReadAll(file)
		file.Close()
		if err != nil {
			h.metrics.IncrementCounter("import_request_errors_total")
			h.sendError(w, http.StatusBadRequest, "UNREADABLE_FILE", "Failed to read uploaded file", err)
			return
		}

		h.metrics.RecordHistogram("uploaded_document_size_bytes", float64(len(content)))
		docs = append(docs, importer.Document{
			Filename: header.Filename,
			Content:  content,
		})
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.importCfg.UploadTimeout)
	defer cancel()

	result := h.importer.Import(ctx, op.ID, docs)

	response := ImportResponse{
		OperationID: op.ID,
		Persisted:   result.Persisted,
		Skipped:     result.Skipped,
		Rejected:    make(map[string]int, len(result.Rejected)),
		Failures:    make([]ImportFailure, 0, len(result.Failures)),
	}
	if response.Skipped == nil {
		response.Skipped = []string{}
	}
	for reason, count := range result.Rejected {
		response.Rejected[string(reason)] = count
	}
	for _, failure := range result.Failures {
		response.Failures = append(response.Failures, ImportFailure{
			FileName: failure.Filename,
			Error:    failure.Err.Error(),
		})
	}

	h.sendJSON(w, http.StatusOK, response)
}

// ListFiles lists the documents already ingested into an operation
func (h *HTTPHandlers) ListFiles(w http.ResponseWriter, r *http.Request) {
	op, ok := h.lookupOperation(w, r)
	if !ok {
		return
	}

	files, err := h.files.ListByOperation(r.Context(), op.ID)
	if err != nil {
		h.sendError(w, http.StatusInternalServerError, "LIST_FAILED", "Failed to list files", err)
		return
	}

	responses := make([]FileResponse, 0, len(files))
	for _, f := range files {
		responses = append(responses, FileResponse{
			ID:               f.ID,
			Name:             f.Name,
			ContentHash:      f.ContentHash,
			UploadedAt:       f.UploadedAt,
			TargetIdentifier: f.TargetIdentifier,
			PeriodStart:      f.PeriodStart,
			PeriodEnd:        f.PeriodEnd,
		})
	}
	h.sendJSON(w, http.StatusOK, responses)
}

// HealthCheck handles health check requests
func (h *HTTPHandlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	services := map[string]string{
		"database": "healthy",
	}
	status := "healthy"

	if err := h.db.PingContext(r.Context()); err != nil {
		services["database"] = "unhealthy"
		status = "degraded"
	}
	h.metrics.RecordGauge("db_connections", float64(h.db.Stats().OpenConnections))

	h.sendJSON(w, http.StatusOK, HealthResponse{
		Status:    status,
		Timestamp: time.Now(),
		Version:   "1.0.0",
		Services:  services,
		Uptime:    time.Since(startTime).String(),
	})
}

// ReadinessCheck reports whether the service can accept traffic
func (h *HTTPHandlers) ReadinessCheck(w http.ResponseWriter, r *http.Request) {
	if err := h.db.PingContext(r.Context()); err != nil {
		h.sendError(w, http.StatusServiceUnavailable, "NOT_READY", "Database is unavailable", err)
		return
	}
	h.sendJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// LivenessCheck reports whether the process is alive
func (h *HTTPHandlers) LivenessCheck(w http.ResponseWriter, r *http.Request) {
	h.sendJSON(w, http.StatusOK, map[string]string{"status": "alive"})
}

// lookupOperation resolves the {operation_id} path variable. It writes the
// error response itself when the id is malformed or unknown.
func (h *HTTPHandlers) lookupOperation(w http.ResponseWriter, r *http.Request) (*database.Operation, bool) {
	raw := mux.Vars(r)["operation_id"]
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		h.sendError(w, http.StatusBadRequest, "INVALID_OPERATION_ID", "Operation id must be an integer", err)
		return nil, false
	}

	op, err := h.operations.GetByID(r.Context(), id)
	if err != nil {
		h.sendError(w, http.StatusInternalServerError, "LOOKUP_FAILED", "Failed to look up operation", err)
		return nil, false
	}
	if op == nil {
		h.sendError(w, http.StatusNotFound, "OPERATION_NOT_FOUND", "Operation does not exist", nil)
		return nil, false
	}
	return op, true
}

func operationResponse(op *database.Operation) OperationResponse {
	return OperationResponse{
		ID:          op.ID,
		Name:        op.Name,
		Description: op.Description,
		CreatedAt:   op.CreatedAt,
	}
}

func (h *HTTPHandlers) sendJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.WithError(err).Error("Failed to encode JSON response")
	}
}

func (h *HTTPHandlers) sendError(w http.ResponseWriter, statusCode int, code, message string, err error) {
	entry := h.logger.WithFields(logrus.Fields{
		"status_code": statusCode,
		"code":        code,
	})
	if err != nil {
		entry = entry.WithError(err)
	}
	entry.Error(message)

	errorResponse := ErrorResponse{
		Error:     message,
		Message:   message,
		Code:      code,
		Timestamp: time.Now(),
	}
	if err != nil {
		errorResponse.Error = err.Error()
	}

	h.sendJSON(w, statusCode, errorResponse)
}
