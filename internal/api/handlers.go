package api

import (
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/assessment-cli/internal/pipeline"
)

const multipartMemory = 8 << 20

// submitBody is the JSON form of a submission, accepted when no resume is
// attached.
type submitBody struct {
	Responses    map[string]any `json:"responses"`
	PersonalInfo map[string]any `json:"personalInfo"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.health.Ping(r.Context()); err != nil {
		zap.L().Warn("api: health check failed", zap.Error(err))
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	owner, _ := OwnerFrom(r.Context())
	sub := pipeline.Submission{
		AssessmentID: chi.URLParam(r, "id"),
		OwnerID:      owner,
	}

	if err := s.intake.Authorize(r.Context(), sub.AssessmentID, owner); err != nil {
		writeError(w, err)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxUploadBytes)
	if err := decodeSubmission(r, &sub); err != nil {
		writeError(w, err)
		return
	}

	receipt, err := s.intake.Submit(r.Context(), sub)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, receipt)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	owner, _ := OwnerFrom(r.Context())
	view, err := s.tracker.Status(r.Context(), chi.URLParam(r, "id"), owner)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleAttempts(w http.ResponseWriter, r *http.Request) {
	owner, _ := OwnerFrom(r.Context())
	attempts, err := s.tracker.Attempts(r.Context(), chi.URLParam(r, "id"), owner)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"attempts": attempts})
}

// decodeSubmission fills sub from a multipart form or a JSON body.
func decodeSubmission(r *http.Request, sub *pipeline.Submission) error {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/json" {
		var body submitBody
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			return eris.Wrap(pipeline.ErrInvalidInput, "invalid request body")
		}
		sub.Responses = body.Responses
		sub.PersonalInfo = body.PersonalInfo
		return nil
	}

	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return eris.Wrapf(pipeline.ErrInvalidInput, "request exceeds %d bytes", tooLarge.Limit)
		}
		return eris.Wrap(pipeline.ErrInvalidInput, "invalid multipart form")
	}

	if err := decodeField(r, "responses", &sub.Responses); err != nil {
		return err
	}
	if err := decodeField(r, "personalInfo", &sub.PersonalInfo); err != nil {
		return err
	}

	file, header, err := r.FormFile("resume")
	switch {
	case errors.Is(err, http.ErrMissingFile):
		return nil
	case err != nil:
		return eris.Wrap(pipeline.ErrInvalidInput, "invalid resume upload")
	}
	defer file.Close() //nolint:errcheck

	data, err := io.ReadAll(file)
	if err != nil {
		return eris.Wrap(pipeline.ErrInvalidInput, "read resume")
	}
	contentType := header.Header.Get("Content-Type")
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = http.DetectContentType(data)
	}
	sub.Resume = &pipeline.Upload{
		Name:        header.Filename,
		ContentType: contentType,
		Data:        data,
	}
	return nil
}

func decodeField(r *http.Request, name string, dst *map[string]any) error {
	raw := strings.TrimSpace(r.FormValue(name))
	if raw == "" {
		return nil
	}
	if err := json.Unmarshal([]byte(raw), dst); err != nil {
		return eris.Wrapf(pipeline.ErrInvalidInput, "%s is not a JSON object", name)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Debug("api: encode response", zap.Error(err))
	}
}

// statusFor maps pipeline errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case eris.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized
	case eris.Is(err, pipeline.ErrInvalidInput):
		return http.StatusBadRequest
	case eris.Is(err, pipeline.ErrForbidden):
		return http.StatusForbidden
	case eris.Is(err, pipeline.ErrNotFound):
		return http.StatusNotFound
	case eris.Is(err, pipeline.ErrAlreadyCompleted), eris.Is(err, pipeline.ErrTerminal), eris.Is(err, pipeline.ErrConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		zap.L().Error("api: request failed", zap.Error(err))
		msg = "internal error"
	}
	writeJSON(w, status, map[string]string{"error": msg})
}
