package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"

	"github.com/kozaktomas/face-attendance/internal/attendance"
	"github.com/kozaktomas/face-attendance/internal/constants"
	"github.com/kozaktomas/face-attendance/internal/jobs"
	"github.com/kozaktomas/face-attendance/internal/recognition"
	"github.com/kozaktomas/face-attendance/internal/registry"
)

// UsersHandler manages registered users and their gallery photos
type UsersHandler struct {
	registry   *registry.Registry
	gallery    *recognition.Gallery
	index      *recognition.Index
	jobManager *jobs.Manager
}

// NewUsersHandler creates a new users handler
func NewUsersHandler(reg *registry.Registry, gallery *recognition.Gallery, index *recognition.Index, jm *jobs.Manager) *UsersHandler {
	return &UsersHandler{
		registry:   reg,
		gallery:    gallery,
		index:      index,
		jobManager: jm,
	}
}

// UserResponse is a registered user with its gallery photo count
type UserResponse struct {
	registry.User
	Photos int `json:"photos"`
}

// UserRequest represents a user create or update request
type UserRequest struct {
	Name    string `json:"name"`
	Age     string `json:"age"`
	Address string `json:"address"`
}

func nameParam(r *http.Request) string {
	raw := chi.URLParam(r, "name")
	if name, err := url.PathUnescape(raw); err == nil {
		raw = name
	}
	return attendance.NormalizeName(raw)
}

// List returns all registered users
func (h *UsersHandler) List(w http.ResponseWriter, r *http.Request) {
	counts := h.gallery.SampleCounts()
	users := h.registry.List()
	result := make([]UserResponse, 0, len(users))
	for _, u := range users {
		result = append(result, UserResponse{User: u, Photos: counts[u.Name]})
	}
	respondJSON(w, http.StatusOK, result)
}

// Get returns one user
func (h *UsersHandler) Get(w http.ResponseWriter, r *http.Request) {
	u, err := h.registry.Get(nameParam(r))
	if err != nil {
		h.respondRegistryError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, UserResponse{User: u, Photos: h.gallery.SampleCounts()[u.Name]})
}

// Create registers a new user
func (h *UsersHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req UserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}
	u, err := h.registry.Add(req.Name, registry.Info{Age: req.Age, Address: req.Address})
	if err != nil {
		h.respondRegistryError(w, err)
		return
	}
	slog.Info("user added", "name", sanitizeForLog(u.Name))
	respondJSON(w, http.StatusCreated, UserResponse{User: u})
}

// Update changes user details; empty fields keep their current value
func (h *UsersHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req UserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}
	u, err := h.registry.Update(nameParam(r), registry.Info{Age: req.Age, Address: req.Address})
	if err != nil {
		h.respondRegistryError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, UserResponse{User: u, Photos: h.gallery.SampleCounts()[u.Name]})
}

// Delete removes a user together with their gallery photos
func (h *UsersHandler) Delete(w http.ResponseWriter, r *http.Request) {
	name := nameParam(r)
	if err := h.registry.Delete(name); err != nil {
		h.respondRegistryError(w, err)
		return
	}

	removed, err := h.gallery.Remove(name)
	if err != nil {
		slog.Error("remove gallery photos", "name", sanitizeForLog(name), "error", err)
	}
	if removed > 0 {
		h.syncGallery()
	}
	respondJSON(w, http.StatusOK, map[string]any{"deleted": true, "photos_removed": removed})
}

// Enroll stores an uploaded photo in the gallery and registers the person
// if needed. The multipart field is "photo".
func (h *UsersHandler) Enroll(w http.ResponseWriter, r *http.Request) {
	name := nameParam(r)
	if name == "" {
		respondError(w, http.StatusBadRequest, attendance.ErrEmptyPerson.Error())
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, constants.MaxUploadSize)
	if err := r.ParseMultipartForm(constants.MaxUploadSize); err != nil {
		respondError(w, http.StatusBadRequest, "failed to parse form")
		return
	}
	file, _, err := r.FormFile("photo")
	if err != nil {
		respondError(w, http.StatusBadRequest, "photo is required")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		respondError(w, http.StatusBadRequest, "failed to read photo")
		return
	}

	sample, err := h.gallery.Enroll(r.Context(), name, data)
	if errors.Is(err, recognition.ErrDuplicatePhoto) {
		respondError(w, http.StatusConflict, err.Error())
		return
	}
	if err != nil {
		slog.Warn("enrollment failed", "name", sanitizeForLog(name), "error", err)
		respondError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	if _, err := h.registry.Ensure(name); err != nil {
		slog.Error("register enrolled user", "name", sanitizeForLog(name), "error", err)
	}
	h.syncGallery()

	respondJSON(w, http.StatusCreated, map[string]string{
		"name": sample.Person,
		"path": sample.Path,
	})
}

// Gallery returns the number of enrolled photos per person
func (h *UsersHandler) Gallery(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"people":  h.gallery.SampleCounts(),
		"indexed": h.index.Len(),
	})
}

// ReloadGallery re-embeds every gallery photo in a background job
func (h *UsersHandler) ReloadGallery(w http.ResponseWriter, r *http.Request) {
	job, err := h.jobManager.SubmitExclusive(constants.JobKindGalleryReload, func(ctx context.Context, job *jobs.Job) (any, error) {
		err := h.gallery.Scan(ctx, func(done, total int) {
			job.SendEvent(jobs.Event{Type: "progress", Data: map[string]int{"done": done, "total": total}})
		})
		if err != nil {
			return nil, err
		}
		if _, err := h.registry.EnsureAll(h.gallery.People()); err != nil {
			return nil, err
		}
		h.syncGallery()
		return map[string]int{"samples": h.index.Len()}, nil
	})
	if errors.Is(err, jobs.ErrJobActive) {
		respondJSON(w, http.StatusConflict, map[string]string{
			"error":  "a gallery reload is already running",
			"job_id": job.ID(),
		})
		return
	}
	respondJSON(w, http.StatusAccepted, map[string]string{"job_id": job.ID()})
}

// syncGallery persists the gallery cache and rebuilds the index.
func (h *UsersHandler) syncGallery() {
	if err := h.gallery.SaveCache(); err != nil {
		slog.Error("save face encodings", "error", err)
	}
	h.index.Rebuild(h.gallery.Samples())
}

func (h *UsersHandler) respondRegistryError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, registry.ErrUserNotFound):
		respondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, registry.ErrUserExists):
		respondError(w, http.StatusConflict, err.Error())
	case errors.Is(err, attendance.ErrEmptyPerson):
		respondError(w, http.StatusBadRequest, err.Error())
	default:
		slog.Error("registry operation failed", "error", err)
		respondError(w, http.StatusInternalServerError, "registry operation failed")
	}
}
