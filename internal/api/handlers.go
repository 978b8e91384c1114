package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	validator "gopkg.in/go-playground/validator.v9"

	"github.com/JakeFAU/assignment-webapp/internal/auth"
	"github.com/JakeFAU/assignment-webapp/internal/domain"
)

type assignmentRequest struct {
	Name          *string    `json:"name" validate:"required"`
	Points        *int       `json:"points" validate:"required"`
	NumOfAttempts *int       `json:"num_of_attempts" validate:"required"`
	Deadline      *time.Time `json:"deadline" validate:"required"`
}

type submissionRequest struct {
	SubmissionURL string `json:"submission_url" validate:"required,url"`
}

type assignmentResponse struct {
	ID                string    `json:"id"`
	Name              string    `json:"name"`
	Points            int       `json:"points"`
	NumOfAttempts     int       `json:"num_of_attempts"`
	Deadline          time.Time `json:"deadline"`
	CreatedBy         string    `json:"created_by"`
	AssignmentCreated time.Time `json:"assignment_created"`
	AssignmentUpdated time.Time `json:"assignment_updated"`
}

type submissionResponse struct {
	ID                string    `json:"id"`
	AssignmentID      string    `json:"assignment_id"`
	SubmissionURL     string    `json:"submission_url"`
	SubmissionDate    time.Time `json:"submission_date"`
	SubmissionUpdated time.Time `json:"submission_updated"`
}

func toAssignmentResponse(a domain.Assignment) assignmentResponse {
	return assignmentResponse{
		ID:                a.ID.String(),
		Name:              a.Name,
		Points:            a.Points,
		NumOfAttempts:     a.NumOfAttempts,
		Deadline:          a.Deadline.UTC(),
		CreatedBy:         a.CreatedBy.String(),
		AssignmentCreated: a.Created.UTC(),
		AssignmentUpdated: a.Updated.UTC(),
	}
}

func toSubmissionResponse(s domain.Submission) submissionResponse {
	return submissionResponse{
		ID:                s.ID.String(),
		AssignmentID:      s.AssignmentID.String(),
		SubmissionURL:     s.SubmissionURL,
		SubmissionDate:    s.Submitted.UTC(),
		SubmissionUpdated: s.Updated.UTC(),
	}
}

func (s *Server) caller(r *http.Request) auth.Principal {
	p, _ := auth.PrincipalFrom(r.Context())
	return p
}

func (s *Server) check(v any) error {
	if err := s.validate.Struct(v); err != nil {
		if fieldErrs, ok := err.(validator.ValidationErrors); ok && len(fieldErrs) > 0 {
			fe := fieldErrs[0]
			return fmt.Errorf("field %s failed %q: %w", fe.Field(), fe.Tag(), domain.ErrValidation)
		}
		return fmt.Errorf("%v: %w", err, domain.ErrValidation)
	}
	return nil
}

func (s *Server) readAssignment(r *http.Request) (domain.AssignmentInput, error) {
	var req assignmentRequest
	if err := decodeJSON(r, &req); err != nil {
		return domain.AssignmentInput{}, err
	}
	if err := s.check(req); err != nil {
		return domain.AssignmentInput{}, err
	}
	return domain.AssignmentInput{
		Name:          *req.Name,
		Points:        *req.Points,
		NumOfAttempts: *req.NumOfAttempts,
		Deadline:      *req.Deadline,
	}, nil
}

func (s *Server) listAssignments(w http.ResponseWriter, r *http.Request) {
	if hasBody(r) {
		writeError(w, http.StatusBadRequest, "request body not allowed")
		return
	}
	list, err := s.deps.Assignments.List(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	out := make([]assignmentResponse, 0, len(list))
	for _, a := range list {
		out = append(out, toAssignmentResponse(a))
	}
	writeJSON(w, http.StatusOK, map[string]any{"assignments": out})
}

func (s *Server) createAssignment(w http.ResponseWriter, r *http.Request) {
	in, err := s.readAssignment(r)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	created, err := s.deps.Assignments.Create(r.Context(), s.caller(r), in)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toAssignmentResponse(created))
}

func (s *Server) getAssignment(w http.ResponseWriter, r *http.Request) {
	if hasBody(r) {
		writeError(w, http.StatusBadRequest, "request body not allowed")
		return
	}
	a, err := s.deps.Assignments.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"assignment": toAssignmentResponse(a)})
}

func (s *Server) updateAssignment(w http.ResponseWriter, r *http.Request) {
	in, err := s.readAssignment(r)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if err := s.deps.Assignments.Update(r.Context(), s.caller(r), chi.URLParam(r, "id"), in); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) deleteAssignment(w http.ResponseWriter, r *http.Request) {
	if hasBody(r) {
		writeError(w, http.StatusBadRequest, "request body not allowed")
		return
	}
	if err := s.deps.Assignments.Delete(r.Context(), s.caller(r), chi.URLParam(r, "id")); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) submit(w http.ResponseWriter, r *http.Request) {
	// The target must resolve before the payload is looked at: bad id is 400,
	// unknown assignment is 404 whatever the body holds.
	id := chi.URLParam(r, "id")
	if _, err := s.deps.Assignments.Get(r.Context(), id); err != nil {
		writeServiceError(w, r, err)
		return
	}
	var req submissionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeServiceError(w, r, err)
		return
	}
	if err := s.check(req); err != nil {
		writeServiceError(w, r, err)
		return
	}
	sub, err := s.deps.Submissions.Submit(r.Context(), id, s.caller(r), req.SubmissionURL)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toSubmissionResponse(sub))
}

func (s *Server) listSubmissions(w http.ResponseWriter, r *http.Request) {
	subs, err := s.deps.Submissions.List(r.Context(), chi.URLParam(r, "id"), s.caller(r))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	out := make([]submissionResponse, 0, len(subs))
	for _, sub := range subs {
		out = append(out, toSubmissionResponse(sub))
	}
	writeJSON(w, http.StatusOK, map[string]any{"submissions": out})
}
