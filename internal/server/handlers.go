package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"whisper-desk/internal/domain"
)

type createJobRequest struct {
	InputFile string            `json:"input_file"`
	Model     string            `json:"model"`
	Options   map[string]string `json:"options"`
}

type createJobResponse struct {
	JobID string `json:"job_id"`
}

type tagsRequest struct {
	Tags []string `json:"tags"`
}

type notesRequest struct {
	Notes *string `json:"notes"`
}

func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return &domain.ValidationError{Field: "body", Message: err.Error()}
	}
	return nil
}

func (s *Server) createJob(w http.ResponseWriter, r *http.Request) {
	var req createJobRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, err)
		return
	}

	jobID, err := s.backend.StartTranscription(domain.TranscriptionConfig{
		InputFile: req.InputFile,
		Model:     req.Model,
		Options:   req.Options,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeData(w, http.StatusAccepted, createJobResponse{JobID: jobID})
}

func (s *Server) listJobs(w http.ResponseWriter, r *http.Request) {
	query, err := parseJobQuery(r.URL.Query())
	if err != nil {
		s.writeError(w, err)
		return
	}

	page, err := s.backend.ListHistory(query)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Envelope{
		Data: page.Items,
		Meta: &PageMeta{
			TotalCount: page.TotalCount,
			HasMore:    page.HasMore,
			Limit:      query.EffectiveLimit(),
			Offset:     query.EffectiveOffset(),
		},
	})
}

// parseJobQuery maps query parameters onto a JobQuery. Absent parameters stay
// nil so the defaults apply.
func parseJobQuery(values url.Values) (domain.JobQuery, error) {
	var q domain.JobQuery

	intParam := func(name string) (*int, error) {
		raw := strings.TrimSpace(values.Get(name))
		if raw == "" {
			return nil, nil
		}
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return nil, &domain.ValidationError{Field: name, Message: "must be a non-negative integer"}
		}
		return &n, nil
	}
	strParam := func(name string) *string {
		raw := strings.TrimSpace(values.Get(name))
		if raw == "" {
			return nil
		}
		return &raw
	}

	var err error
	if q.Limit, err = intParam("limit"); err != nil {
		return q, err
	}
	if q.Offset, err = intParam("offset"); err != nil {
		return q, err
	}
	q.Search = strParam("search")
	q.ModelFilter = strParam("model")
	q.FormatFilter = strParam("format")
	q.TagFilter = strParam("tag")
	q.DateFrom = strParam("date_from")
	q.DateTo = strParam("date_to")

	if raw := strParam("status"); raw != nil {
		status := domain.JobStatus(strings.ToLower(*raw))
		if !status.Valid() {
			return q, &domain.ValidationError{Field: "status", Message: fmt.Sprintf("unknown status %q", *raw)}
		}
		q.StatusFilter = &status
	}
	return q, nil
}

func (s *Server) getJob(w http.ResponseWriter, r *http.Request) {
	rec, err := s.backend.GetHistory(chi.URLParam(r, "jobID"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, rec)
}

func (s *Server) deleteJob(w http.ResponseWriter, r *http.Request) {
	if err := s.backend.DeleteHistory(chi.URLParam(r, "jobID")); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) updateTags(w http.ResponseWriter, r *http.Request) {
	var req tagsRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	rec, err := s.backend.UpdateTags(chi.URLParam(r, "jobID"), req.Tags)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, rec)
}

func (s *Server) updateNotes(w http.ResponseWriter, r *http.Request) {
	var req notesRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	rec, err := s.backend.UpdateNotes(chi.URLParam(r, "jobID"), req.Notes)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, rec)
}

func (s *Server) downloadResult(w http.ResponseWriter, r *http.Request) {
	path, err := s.backend.GetResultFilePath(chi.URLParam(r, "jobID"), chi.URLParam(r, "format"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filepath.Base(path)))
	http.ServeFile(w, r, path)
}

func (s *Server) exportResult(w http.ResponseWriter, r *http.Request) {
	rec, err := s.backend.ExportResult(chi.URLParam(r, "jobID"), chi.URLParam(r, "format"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, rec)
}

func (s *Server) listEvents(w http.ResponseWriter, r *http.Request) {
	since, err := parseSince(r.URL.Query())
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, s.backend.JobEvents(strings.TrimSpace(r.URL.Query().Get("job_id")), since))
}

func parseSince(values url.Values) (int64, error) {
	raw := strings.TrimSpace(values.Get("since"))
	if raw == "" {
		return 0, nil
	}
	since, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || since < 0 {
		return 0, &domain.ValidationError{Field: "since", Message: "must be a non-negative integer"}
	}
	return since, nil
}

func (s *Server) listModels(w http.ResponseWriter, _ *http.Request) {
	writeData(w, http.StatusOK, s.backend.GetWhisperModels())
}

func (s *Server) diagnostics(w http.ResponseWriter, _ *http.Request) {
	writeData(w, http.StatusOK, s.backend.GetDiagnostics())
}
