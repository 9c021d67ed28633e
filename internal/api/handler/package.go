package handler

import (
	"errors"
	"net/http"
	"path/filepath"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/hszk-dev/abrpack/internal/domain/model"
	"github.com/hszk-dev/abrpack/internal/domain/repository"
	"github.com/hszk-dev/abrpack/internal/transcoder"
	"github.com/hszk-dev/abrpack/internal/usecase"
)

// Request/Response types

type CreatePackageRequest struct {
	InputPath    string `json:"input_path"`
	OriginalName string `json:"original_name"`
	Mode         string `json:"mode"`
}

type EnqueueResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

type PackageResponse struct {
	ID           string `json:"id"`
	OriginalName string `json:"original_name"`
	ManifestURL  string `json:"manifest_url"`
	SegmentType  string `json:"segment_type"`
	CreatedAt    string `json:"created_at"`
}

type ListPackagesResponse struct {
	Packages []PackageResponse `json:"packages"`
	Count    int               `json:"count"`
}

type UpdatePackageRequest struct {
	OriginalName *string `json:"original_name"`
}

type DeletePackageResponse struct {
	Removed bool `json:"removed"`
}

// PackageHandler handles package-related HTTP requests.
type PackageHandler struct {
	svc usecase.PackageService
}

// NewPackageHandler creates a new PackageHandler.
func NewPackageHandler(svc usecase.PackageService) *PackageHandler {
	return &PackageHandler{svc: svc}
}

// Routes mounts the package endpoints on r.
func (h *PackageHandler) Routes(r chi.Router) {
	r.Post("/packages", h.Create)
	r.Get("/packages", h.List)
	r.Get("/packages/{id}", h.Get)
	r.Patch("/packages/{id}", h.Update)
	r.Delete("/packages/{id}", h.Delete)
}

// Create handles POST /v1/packages.
// Original-mode ingests complete inline; HLS ingests are handed to the worker.
func (h *PackageHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreatePackageRequest
	if err := decodeJSON(w, r, &req); err != nil {
		Error(w, http.StatusBadRequest, "invalid_request", "Invalid JSON body")
		return
	}

	if req.InputPath == "" {
		Error(w, http.StatusBadRequest, "invalid_input_path", "Input path is required")
		return
	}

	mode := model.SegmentType(req.Mode)
	if !mode.IsValid() {
		Error(w, http.StatusBadRequest, "invalid_mode", "Mode must be one of original, ts, fmp4")
		return
	}

	name := req.OriginalName
	if name == "" {
		name = filepath.Base(req.InputPath)
	}

	input := usecase.IngestInput{
		InputPath:    req.InputPath,
		OriginalName: name,
		Mode:         mode,
	}

	if mode == model.SegmentOriginal {
		pkg, err := h.svc.IngestAndPackage(r.Context(), input)
		if err != nil {
			h.handleServiceError(w, err)
			return
		}
		JSON(w, http.StatusCreated, toPackageResponse(pkg))
		return
	}

	id, err := h.svc.Enqueue(r.Context(), input)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	JSON(w, http.StatusAccepted, EnqueueResponse{
		ID:     id.String(),
		Status: "queued",
	})
}

// List handles GET /v1/packages?q=&segment_type=
// q is matched against the original name and the manifest URL.
func (h *PackageHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := model.PackageFilter{
		OriginalName: q.Get("q"),
		ManifestURL:  q.Get("q"),
		SegmentType:  q.Get("segment_type"),
	}

	pkgs, err := h.svc.ListPackages(r.Context(), filter)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	resp := ListPackagesResponse{
		Packages: make([]PackageResponse, 0, len(pkgs)),
		Count:    len(pkgs),
	}
	for _, p := range pkgs {
		resp.Packages = append(resp.Packages, toPackageResponse(p))
	}
	JSON(w, http.StatusOK, resp)
}

// Get handles GET /v1/packages/{id}
func (h *PackageHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	pkg, err := h.svc.GetPackage(r.Context(), id)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	JSON(w, http.StatusOK, toPackageResponse(pkg))
}

// Update handles PATCH /v1/packages/{id}
func (h *PackageHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	var req UpdatePackageRequest
	if err := decodeJSON(w, r, &req); err != nil {
		Error(w, http.StatusBadRequest, "invalid_request", "Invalid JSON body")
		return
	}

	if err := h.svc.UpdatePackage(r.Context(), id, model.PackageUpdate{OriginalName: req.OriginalName}); err != nil {
		h.handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Delete handles DELETE /v1/packages/{id}
func (h *PackageHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	removed, err := h.svc.DeletePackage(r.Context(), id)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	JSON(w, http.StatusOK, DeletePackageResponse{Removed: removed})
}

func parseID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		Error(w, http.StatusBadRequest, "invalid_package_id", "Package ID must be a valid UUID")
		return uuid.Nil, false
	}
	return id, true
}

func (h *PackageHandler) handleServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, repository.ErrPackageNotFound):
		Error(w, http.StatusNotFound, "package_not_found", "Package not found")
	case errors.Is(err, model.ErrInvalidSegmentType):
		Error(w, http.StatusBadRequest, "invalid_mode", "Mode must be one of original, ts, fmp4")
	case errors.Is(err, model.ErrEmptyOriginalName):
		Error(w, http.StatusBadRequest, "invalid_original_name", "Original name cannot be empty")
	case errors.Is(err, model.ErrOriginalNameTooLong):
		Error(w, http.StatusBadRequest, "invalid_original_name", "Original name exceeds maximum length")
	case errors.Is(err, usecase.ErrInputNotFound):
		Error(w, http.StatusBadRequest, "input_not_found", "Input file does not exist")
	case errors.Is(err, usecase.ErrInputNotRegular):
		Error(w, http.StatusBadRequest, "invalid_input", "Input path is not a regular file")
	case errors.Is(err, transcoder.ErrEmptyLadder):
		Error(w, http.StatusUnprocessableEntity, "source_too_small", "No rendition fits the source resolution")
	case errors.Is(err, transcoder.ErrProbe):
		Error(w, http.StatusUnprocessableEntity, "probe_failed", "Source could not be inspected")
	case errors.Is(err, repository.ErrDuplicatePackage):
		Error(w, http.StatusConflict, "package_exists", "A package with this ID already exists")
	case errors.Is(err, transcoder.ErrEncode):
		Error(w, http.StatusInternalServerError, "encode_failed", "One or more renditions failed to encode")
	case errors.Is(err, transcoder.ErrCancelled):
		Error(w, http.StatusServiceUnavailable, "cancelled", "Packaging was cancelled")
	case errors.Is(err, usecase.ErrEncoderUnavailable):
		Error(w, http.StatusServiceUnavailable, "encoder_unavailable", "Packaging is not available in this process")
	case errors.Is(err, usecase.ErrQueueUnavailable):
		Error(w, http.StatusServiceUnavailable, "queue_unavailable", "Background packaging is not available")
	case errors.Is(err, usecase.ErrArtifactCleanup):
		Error(w, http.StatusInternalServerError, "artifact_cleanup_failed", "Package record removed but its files could not be deleted")
	case errors.Is(err, transcoder.ErrManifestWrite):
		Error(w, http.StatusInternalServerError, "manifest_write_failed", "Master playlist could not be written")
	case errors.Is(err, usecase.ErrCatalog):
		Error(w, http.StatusInternalServerError, "catalog_failure", "Catalog operation failed")
	default:
		Error(w, http.StatusInternalServerError, "internal_error", "An unexpected error occurred")
	}
}

func toPackageResponse(p *model.Package) PackageResponse {
	return PackageResponse{
		ID:           p.ID.String(),
		OriginalName: p.OriginalName,
		ManifestURL:  p.ManifestURL,
		SegmentType:  p.SegmentType.String(),
		CreatedAt:    p.CreatedAt.Format(time.RFC3339),
	}
}
