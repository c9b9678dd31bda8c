package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"

	"memberflow/auth"
	"memberflow/changereq"
	"memberflow/member"
)

type memberService interface {
	Register(ctx context.Context, req member.RegisterRequest) (member.Member, error)
	Update(ctx context.Context, id string, delta member.UpdateRequest) (member.Member, error)
	Delete(ctx context.Context, id string) error
	Get(ctx context.Context, id string) (member.Member, error)
	GetByEmail(ctx context.Context, email string) (member.Member, error)
	Search(ctx context.Context, filters member.Filters) ([]member.Member, int, error)
}

type exportService interface {
	ExportCSV(ctx context.Context, filters member.Filters, w io.Writer) error
	ExportXLSX(ctx context.Context, filters member.Filters, w io.Writer) error
}

type submitService interface {
	SubmitProfileUpdate(ctx context.Context, loginKey string, delta member.UpdateRequest) (changereq.ChangeRequest, error)
	SubmitDeleteRequest(ctx context.Context, loginKey string) (changereq.ChangeRequest, error)
	ListPending(ctx context.Context) ([]changereq.ChangeRequest, error)
}

type reviewService interface {
	Approve(ctx context.Context, requestID, reviewedBy string) (changereq.ChangeRequest, error)
	Reject(ctx context.Context, requestID, reviewedBy string, reason *string) (changereq.ChangeRequest, error)
}

type authService interface {
	Login(ctx context.Context, req auth.LoginRequest) (auth.LoginResult, error)
	ResetPassword(ctx context.Context, userName, newPassword string) error
	VerifyToken(tokenString string) (string, []string, error)
}

// Server wires the HTTP surface to the domain services.
type Server struct {
	memberService memberService
	exportService exportService
	submitService submitService
	reviewService reviewService
	authService   authService
	log           *slog.Logger
}

type ctxKey int

const (
	ctxKeyUserName ctxKey = iota
	ctxKeyRoles
)

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/login", s.handleLogin)
	mux.HandleFunc("POST /api/password", s.withAuth(s.handleChangePassword))

	mux.HandleFunc("GET /api/profile", s.withAuth(s.handleProfile))
	mux.HandleFunc("POST /api/profile/update-request", s.withAuth(s.handleSubmitUpdate))
	mux.HandleFunc("POST /api/profile/delete-request", s.withAuth(s.handleSubmitDelete))

	mux.HandleFunc("POST /api/members", s.withRole(auth.RoleAdmin, s.handleRegister))
	mux.HandleFunc("GET /api/members", s.withRole(auth.RoleAdmin, s.handleSearchMembers))
	mux.HandleFunc("GET /api/members/export", s.withRole(auth.RoleAdmin, s.handleExport))
	mux.HandleFunc("GET /api/members/{id}", s.withRole(auth.RoleAdmin, s.handleMember))
	mux.HandleFunc("PATCH /api/members/{id}", s.withRole(auth.RoleAdmin, s.handleUpdateMember))
	mux.HandleFunc("DELETE /api/members/{id}", s.withRole(auth.RoleAdmin, s.handleDeleteMember))

	mux.HandleFunc("GET /api/change-requests", s.withRole(auth.RoleAdmin, s.handlePendingRequests))
	mux.HandleFunc("POST /api/change-requests/{id}/approve", s.withRole(auth.RoleAdmin, s.handleApprove))
	mux.HandleFunc("POST /api/change-requests/{id}/reject", s.withRole(auth.RoleAdmin, s.handleReject))

	return mux
}

func (s *Server) withAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || token == "" {
			http.Error(w, "missing bearer token", http.StatusUnauthorized)
			return
		}
		userName, roles, err := s.authService.VerifyToken(token)
		if err != nil {
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}
		ctx := context.WithValue(r.Context(), ctxKeyUserName, userName)
		ctx = context.WithValue(ctx, ctxKeyRoles, roles)
		next(w, r.WithContext(ctx))
	}
}

func (s *Server) withRole(role auth.Role, next http.HandlerFunc) http.HandlerFunc {
	return s.withAuth(func(w http.ResponseWriter, r *http.Request) {
		roles, _ := r.Context().Value(ctxKeyRoles).([]string)
		if !slices.Contains(roles, string(role)) {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		next(w, r)
	})
}

func userNameFrom(r *http.Request) string {
	userName, _ := r.Context().Value(ctxKeyUserName).(string)
	return userName
}

type memberResponse struct {
	ID               string `json:"id"`
	Name             string `json:"name"`
	Email            string `json:"email"`
	PhoneNumber      string `json:"phoneNumber"`
	Age              int    `json:"age"`
	Place            string `json:"place"`
	RegistrationDate string `json:"registrationDate"`
	Version          int64  `json:"version"`
}

func toMemberResponse(m member.Member) memberResponse {
	return memberResponse{
		ID:               m.ID,
		Name:             m.Name,
		Email:            m.Email,
		PhoneNumber:      m.PhoneNumber,
		Age:              m.Age,
		Place:            m.Place,
		RegistrationDate: m.RegistrationDate.Format("2006-01-02"),
		Version:          m.Version,
	}
}

type changeRequestResponse struct {
	ID              string                `json:"id"`
	MemberID        string                `json:"memberId"`
	MemberEmail     string                `json:"memberEmail"`
	Type            string                `json:"type"`
	Status          string                `json:"status"`
	Before          member.Snapshot       `json:"before"`
	Requested       *member.UpdateRequest `json:"requested,omitempty"`
	SubmittedBy     string                `json:"submittedBy"`
	SubmittedAt     string                `json:"submittedAt"`
	ReviewedBy      *string               `json:"reviewedBy,omitempty"`
	ReviewedAt      *string               `json:"reviewedAt,omitempty"`
	RejectionReason *string               `json:"rejectionReason,omitempty"`
}

func toChangeRequestResponse(req changereq.ChangeRequest) changeRequestResponse {
	out := changeRequestResponse{
		ID:              req.ID,
		MemberID:        req.MemberID,
		MemberEmail:     req.MemberEmail,
		Type:            string(req.Type),
		Status:          string(req.Status),
		Before:          req.Before,
		Requested:       req.Requested,
		SubmittedBy:     req.SubmittedBy,
		SubmittedAt:     req.SubmittedAt.Format(time.RFC3339),
		ReviewedBy:      req.ReviewedBy,
		RejectionReason: req.RejectionReason,
	}
	if req.ReviewedAt != nil {
		v := req.ReviewedAt.Format(time.RFC3339)
		out.ReviewedAt = &v
	}
	return out
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req auth.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	result, err := s.authService.Login(r.Context(), req)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]any{
		"token":              result.Token,
		"mustChangePassword": result.MustChangePassword,
	})
}

func (s *Server) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	var req struct {
		NewPassword string `json:"newPassword"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	if err := s.authService.ResetPassword(r.Context(), userNameFrom(r), req.NewPassword); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request) {
	m, err := s.memberService.GetByEmail(r.Context(), userNameFrom(r))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, toMemberResponse(m))
}

func (s *Server) handleSubmitUpdate(w http.ResponseWriter, r *http.Request) {
	var delta member.UpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&delta); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if err := delta.Validate(); err != nil {
		s.writeError(w, err)
		return
	}

	created, err := s.submitService.SubmitProfileUpdate(r.Context(), userNameFrom(r), delta)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusAccepted, toChangeRequestResponse(created))
}

func (s *Server) handleSubmitDelete(w http.ResponseWriter, r *http.Request) {
	created, err := s.submitService.SubmitDeleteRequest(r.Context(), userNameFrom(r))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusAccepted, toChangeRequestResponse(created))
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req member.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	created, err := s.memberService.Register(r.Context(), req)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, toMemberResponse(created))
}

func (s *Server) handleSearchMembers(w http.ResponseWriter, r *http.Request) {
	members, total, err := s.memberService.Search(r.Context(), filtersFromQuery(r))
	if err != nil {
		s.writeError(w, err)
		return
	}

	items := make([]memberResponse, 0, len(members))
	for _, m := range members {
		items = append(items, toMemberResponse(m))
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"items": items, "total": total})
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	filters := filtersFromQuery(r)

	switch r.URL.Query().Get("format") {
	case "xlsx":
		w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		w.Header().Set("Content-Disposition", `attachment; filename="members.xlsx"`)
		if err := s.exportService.ExportXLSX(r.Context(), filters, w); err != nil {
			s.log.Error("xlsx export failed", "error", err)
		}
	case "", "csv":
		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("Content-Disposition", `attachment; filename="members.csv"`)
		if err := s.exportService.ExportCSV(r.Context(), filters, w); err != nil {
			s.log.Error("csv export failed", "error", err)
		}
	default:
		http.Error(w, "unsupported export format", http.StatusBadRequest)
	}
}

func (s *Server) handleMember(w http.ResponseWriter, r *http.Request) {
	m, err := s.memberService.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, toMemberResponse(m))
}

func (s *Server) handleUpdateMember(w http.ResponseWriter, r *http.Request) {
	var delta member.UpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&delta); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	updated, err := s.memberService.Update(r.Context(), r.PathValue("id"), delta)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, toMemberResponse(updated))
}

func (s *Server) handleDeleteMember(w http.ResponseWriter, r *http.Request) {
	if err := s.memberService.Delete(r.Context(), r.PathValue("id")); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handlePendingRequests(w http.ResponseWriter, r *http.Request) {
	requests, err := s.submitService.ListPending(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}

	items := make([]changeRequestResponse, 0, len(requests))
	for _, req := range requests {
		items = append(items, toChangeRequestResponse(req))
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (s *Server) handleApprove(w http.ResponseWriter, r *http.Request) {
	reviewed, err := s.reviewService.Approve(r.Context(), r.PathValue("id"), userNameFrom(r))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, toChangeRequestResponse(reviewed))
}

func (s *Server) handleReject(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Reason *string `json:"reason"`
	}
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}
	}

	reviewed, err := s.reviewService.Reject(r.Context(), r.PathValue("id"), userNameFrom(r), req.Reason)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, toChangeRequestResponse(reviewed))
}

func filtersFromQuery(r *http.Request) member.Filters {
	q := r.URL.Query()

	filters := member.Filters{
		Query:       q.Get("q"),
		Name:        q.Get("name"),
		Email:       q.Get("email"),
		PhoneNumber: q.Get("phone"),
		Place:       q.Get("place"),
		SortOrder:   q.Get("sortOrder"),
	}
	if v := q.Get("ageMin"); v != "" {
		filters.AgeMin, _ = strconv.Atoi(v)
	}
	if v := q.Get("ageMax"); v != "" {
		filters.AgeMax, _ = strconv.Atoi(v)
	}
	if v := q.Get("registeredOn"); v != "" {
		if t, err := time.Parse("2006-01-02", v); err == nil {
			filters.RegisteredOn = &t
		}
	}
	if v := q.Get("registeredFrom"); v != "" {
		if t, err := time.Parse("2006-01-02", v); err == nil {
			filters.RegisteredFrom = &t
		}
	}
	if v := q.Get("registeredUntil"); v != "" {
		if t, err := time.Parse("2006-01-02", v); err == nil {
			filters.RegisteredUntil = &t
		}
	}
	if v := q.Get("sortBy"); v != "" {
		filters.SortBy = strings.Split(v, ",")
	}
	if v := q.Get("page"); v != "" {
		filters.Page, _ = strconv.Atoi(v)
	}
	if v := q.Get("pageSize"); v != "" {
		filters.PageSize, _ = strconv.Atoi(v)
	}
	return filters
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.log.Error("encode response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, member.ErrNotFound),
		errors.Is(err, changereq.ErrRequestNotFound),
		errors.Is(err, auth.ErrIdentityNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, member.ErrDuplicateEmail),
		errors.Is(err, member.ErrDuplicatePhone),
		errors.Is(err, member.ErrVersionConflict),
		errors.Is(err, changereq.ErrRequestNotPending),
		errors.Is(err, changereq.ErrPendingRequestExists),
		errors.Is(err, auth.ErrDuplicateUserName):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, member.ErrValidation),
		errors.Is(err, changereq.ErrNoChanges),
		errors.Is(err, changereq.ErrUnsupportedChangeType),
		errors.Is(err, auth.ErrWeakPassword):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, auth.ErrInvalidCredentials):
		http.Error(w, err.Error(), http.StatusUnauthorized)
	default:
		s.log.Error("request failed", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}
