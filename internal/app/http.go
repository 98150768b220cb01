package app

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

type HTTPServer struct {
	service    *Service
	corsOrigin string
	log        *zap.Logger
}

func NewHTTPServer(service *Service, corsOrigin string, log *zap.Logger) *HTTPServer {
	if log == nil {
		log = zap.NewNop()
	}
	return &HTTPServer{service: service, corsOrigin: corsOrigin, log: log}
}

func (s *HTTPServer) Handler() http.Handler {
	return s.withMiddleware(http.HandlerFunc(s.handle))
}

func (s *HTTPServer) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		writeJSON(w, http.StatusNoContent, map[string]any{})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/health" {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/comments/sorted" {
		s.handleSortedComments(w, r)
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/comments" {
		s.handleSubmitComment(w, r)
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/comments" {
		s.handleMoreComments(w, r)
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/questions" {
		s.handleCreateQuestion(w, r)
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/questions" {
		s.handleListQuestions(w, r)
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/dashboard" {
		s.handleDashboard(w, r)
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/likes" {
		s.handleLike(w, r)
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/subscriptions" {
		s.handleSubscription(w, r)
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/notifications" {
		s.handlePendingNotifications(w, r)
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/notifications/stream" {
		s.handleNotificationStream(w, r)
		return
	}

	parts := splitPath(r.URL.Path)
	if len(parts) == 3 && parts[0] == "api" && parts[1] == "questions" {
		switch r.Method {
		case http.MethodGet:
			s.handleGetQuestion(w, r, parts[2])
			return
		case http.MethodPut:
			s.handleUpdateQuestion(w, r, parts[2])
			return
		}
	}
	if len(parts) == 3 && parts[0] == "api" && parts[1] == "comments" {
		switch r.Method {
		case http.MethodGet:
			s.handleGetComment(w, r, parts[2])
			return
		case http.MethodPut:
			s.handleUpdateComment(w, r, parts[2])
			return
		case http.MethodDelete:
			s.handleDeleteComment(w, r, parts[2])
			return
		}
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

func (s *HTTPServer) handleSortedComments(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	skip, _ := strconv.Atoi(query.Get("skip"))

	var traits []string
	if raw := strings.TrimSpace(query.Get("traits")); raw != "" {
		for _, trait := range strings.Split(raw, ",") {
			if trait = strings.TrimSpace(trait); trait != "" {
				traits = append(traits, trait)
			}
		}
	}

	page, err := s.service.ListSortedComments(r.Context(), ListSortedCommentsInput{
		QuestionURL: query.Get("question"),
		Traits:      traits,
		DateRange:   query.Get("dateRange"),
		SortBy:      query.Get("sortBy"),
		Skip:        skip,
	})
	if err != nil {
		s.writeMappedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (s *HTTPServer) handleSubmitComment(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ID        string `json:"id"`
		ParentID  string `json:"parentId"`
		AuthorID  string `json:"authorId"`
		Anonymous bool   `json:"anonymous"`
		Comment   string `json:"comment"`
		Type      string `json:"type"`
		Origin    string `json:"ip"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	if body.ParentID == "" || body.AuthorID == "" || body.Comment == "" {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", "parentId, authorId and comment are required", nil)
		return
	}
	if body.Type == "" {
		body.Type = ParentKindQuestion
	}

	author := s.service.Resolver().Resolve(body.AuthorID, body.Anonymous)
	comment, err := s.service.SubmitComment(r.Context(), SubmitCommentInput{
		ID:         body.ID,
		ParentID:   body.ParentID,
		Author:     author,
		Text:       body.Comment,
		ParentKind: body.Type,
		Origin:     body.Origin,
	})
	if err != nil {
		s.writeMappedError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, comment)
}

func (s *HTTPServer) handleMoreComments(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	parentID := query.Get("parentId")
	if parentID == "" {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", "parentId is required", nil)
		return
	}
	before := parseTime(query.Get("lastDate"))
	if before.IsZero() {
		before = time.Now().UTC()
	}
	page, err := s.service.MoreComments(r.Context(), parentID, before)
	if err != nil {
		s.writeMappedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (s *HTTPServer) handleCreateQuestion(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ID       string `json:"id"`
		Question string `json:"question"`
		AuthorID string `json:"authorId"`
		Context  string `json:"context"`
		URL      string `json:"url"`
		Image    string `json:"img"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	if body.Question == "" || body.AuthorID == "" {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", "question and authorId are required", nil)
		return
	}
	question, err := s.service.CreateQuestion(r.Context(), CreateQuestionInput{
		ID:       body.ID,
		Text:     body.Question,
		AuthorID: body.AuthorID,
		Context:  body.Context,
		URL:      body.URL,
		Image:    body.Image,
	})
	if err != nil {
		s.writeMappedError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, question)
}

func (s *HTTPServer) handleListQuestions(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	pageSize, _ := strconv.Atoi(query.Get("pageSize"))
	page, err := s.service.ListQuestions(r.Context(), parseTime(query.Get("lastDate")), pageSize)
	if err != nil {
		s.writeMappedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (s *HTTPServer) handleDashboard(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("userId")
	if userID == "" {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", "userId is required", nil)
		return
	}
	questions, err := s.service.Dashboard(r.Context(), userID)
	if err != nil {
		s.writeMappedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"questions": questions})
}

func (s *HTTPServer) handleGetQuestion(w http.ResponseWriter, r *http.Request, url string) {
	question, found, err := s.service.GetQuestionByURL(r.Context(), url)
	if err != nil {
		s.writeMappedError(w, err)
		return
	}
	if !found {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Question not found", nil)
		return
	}
	writeJSON(w, http.StatusOK, question)
}

func (s *HTTPServer) handleUpdateQuestion(w http.ResponseWriter, r *http.Request, questionID string) {
	var body struct {
		Question string `json:"question"`
		URL      string `json:"url"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	updated, err := s.service.UpdateQuestion(r.Context(), questionID, body.Question, body.URL)
	if err != nil {
		s.writeMappedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"updated": updated})
}

func (s *HTTPServer) handleGetComment(w http.ResponseWriter, r *http.Request, commentID string) {
	comment, found, err := s.service.GetComment(r.Context(), commentID)
	if err != nil {
		s.writeMappedError(w, err)
		return
	}
	if !found {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Comment not found", nil)
		return
	}
	writeJSON(w, http.StatusOK, comment)
}

func (s *HTTPServer) handleUpdateComment(w http.ResponseWriter, r *http.Request, commentID string) {
	var body struct {
		Comment  string `json:"comment"`
		AuthorID string `json:"authorId"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	if body.AuthorID == "" {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", "authorId is required", nil)
		return
	}
	updated, err := s.service.UpdateComment(r.Context(), commentID, body.AuthorID, body.Comment)
	if err != nil {
		s.writeMappedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"updated": updated})
}

func (s *HTTPServer) handleDeleteComment(w http.ResponseWriter, r *http.Request, commentID string) {
	deleted, err := s.service.DeleteComment(r.Context(), commentID)
	if err != nil {
		s.writeMappedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": deleted})
}

func (s *HTTPServer) handleLike(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Type      string `json:"type"`
		ID        string `json:"id"`
		UserID    string `json:"userId"`
		Operation string `json:"operation"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	if err := s.service.SetLike(r.Context(), body.Type, body.ID, body.UserID, body.Operation == "add"); err != nil {
		s.writeMappedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *HTTPServer) handleSubscription(w http.ResponseWriter, r *http.Request) {
	var body struct {
		QuestionID string `json:"questionId"`
		UserID     string `json:"userId"`
		Operation  string `json:"operation"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	if err := s.service.SetSubscription(r.Context(), body.QuestionID, body.UserID, body.Operation == "add"); err != nil {
		s.writeMappedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *HTTPServer) handlePendingNotifications(w http.ResponseWriter, r *http.Request) {
	authorID := r.URL.Query().Get("authorId")
	if authorID == "" {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", "authorId is required", nil)
		return
	}
	events, err := s.service.PendingNotifications(r.Context(), authorID)
	if err != nil {
		s.writeMappedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"notifications": events})
}

// handleNotificationStream delivers live notifications over SSE until the
// client disconnects.
func (s *HTTPServer) handleNotificationStream(w http.ResponseWriter, r *http.Request) {
	authorID := r.URL.Query().Get("authorId")
	if authorID == "" {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", "authorId is required", nil)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "STREAM_UNSUPPORTED", "Streaming unsupported", nil)
		return
	}

	events, stop, err := s.service.SubscribeNotifications(r.Context(), authorID)
	if err != nil {
		s.writeMappedError(w, err)
		return
	}
	defer stop()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case event, open := <-events:
			if !open {
				return
			}
			payload, err := json.Marshal(event)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "data: %s\n\n", payload)
			flusher.Flush()
		}
	}
}

func (s *HTTPServer) writeMappedError(w http.ResponseWriter, err error) {
	status, code, message, details := mapError(err)
	writeError(w, status, code, message, details)
}

func mapError(err error) (status int, code, message string, details any) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details
	}
	return http.StatusInternalServerError, "INTERNAL", "Internal error", nil
}

func (s *HTTPServer) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = randomRequestID()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		r = r.WithContext(ctx)

		started := time.Now()
		writer := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		setCORSHeaders(writer.Header(), s.corsOrigin)
		writer.Header().Set("X-Request-ID", requestID)

		next.ServeHTTP(writer, r)

		s.log.Info("request",
			zap.String("request_id", requestID),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", writer.status),
			zap.Int64("duration_ms", time.Since(started).Milliseconds()),
		)
	})
}

type requestIDKey struct{}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *statusRecorder) Flush() {
	if flusher, ok := r.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func randomRequestID() string {
	buf := make([]byte, 8)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

func setCORSHeaders(header http.Header, corsOrigin string) {
	header.Set("Access-Control-Allow-Origin", corsOrigin)
	header.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")
	header.Set("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,OPTIONS")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string, details any) {
	response := map[string]any{
		"code":  code,
		"error": message,
	}
	if details != nil {
		response["details"] = details
	}
	writeJSON(w, status, response)
}

func decodeBody(r *http.Request, target any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(target); err != nil {
		return fmt.Errorf("invalid JSON body")
	}
	return nil
}

func splitPath(path string) []string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

func parseTime(value string) time.Time {
	if value == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}
	}
	return t
}
