package file

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/fileversion/service/internal/middleware"
	"github.com/fileversion/service/internal/response"
)

// multipartMemory is the part of a multipart body kept in memory; the rest
// spills to temporary files.
const multipartMemory = 8 << 20

// FileService is the subset of *Service used by Handler.
type FileService interface {
	Upload(ctx context.Context, r io.Reader, size int64, originalName string, userID int64) (string, error)
	Retrieve(ctx context.Context, version string) ([]byte, error)
	Delete(ctx context.Context, version string, userID int64) error
}

// Handler holds HTTP handlers for file endpoints.
type Handler struct {
	svc       FileService
	maxUpload int64
	log       zerolog.Logger
}

// NewHandler creates a new file Handler. maxUploadBytes bounds the size of
// an upload request body.
func NewHandler(svc FileService, maxUploadBytes int64, log zerolog.Logger) *Handler {
	return &Handler{svc: svc, maxUpload: maxUploadBytes, log: log}
}

type uploadData struct {
	Version string `json:"version" example:"0b6f2a5e-6a4c-4f0e-8b8e-1f7d8f1e2c3a.png"`
}

// Upload godoc
//
//	@Summary		Upload a file
//	@Description	Stores the file under a new version identifier and records a created audit entry.
//	@Tags			files
//	@Accept			multipart/form-data
//	@Produce		json
//	@Security		BearerAuth
//	@Param			file	formData	file	true	"File to upload"
//	@Success		201		{object}	response.Envelope{data=uploadData}
//	@Failure		400		{object}	response.Envelope
//	@Failure		401		{object}	response.Envelope
//	@Failure		413		{object}	response.Envelope
//	@Failure		500		{object}	response.Envelope
//	@Router			/file/private [post]
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	id, ok := middleware.IdentityFrom(r.Context())
	if !ok {
		h.log.Error().Str("path", r.URL.Path).Msg("private route reached without identity")
		response.InternalError(w)
		return
	}

	if r.ContentLength > h.maxUpload {
		response.PayloadTooLarge(w, "file too large")
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)

	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			response.PayloadTooLarge(w, "file too large")
			return
		}
		response.BadRequest(w, "invalid multipart form")
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	src, header, err := r.FormFile("file")
	if err != nil {
		response.BadRequest(w, "file is required")
		return
	}
	defer src.Close()

	version, err := h.svc.Upload(r.Context(), src, header.Size, header.Filename, id.UserID)
	if err != nil {
		response.InternalError(w)
		return
	}

	response.Created(w, uploadData{Version: version})
}

// Delete godoc
//
//	@Summary		Delete a file version
//	@Description	Records a deleted audit entry and removes the object. Deleting a missing version succeeds.
//	@Tags			files
//	@Security		BearerAuth
//	@Param			version	path	string	true	"Version identifier"
//	@Success		200
//	@Failure		400	{object}	response.Envelope
//	@Failure		401	{object}	response.Envelope
//	@Failure		500	{object}	response.Envelope
//	@Router			/file/private/{version} [delete]
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := middleware.IdentityFrom(r.Context())
	if !ok {
		h.log.Error().Str("path", r.URL.Path).Msg("private route reached without identity")
		response.InternalError(w)
		return
	}

	err := h.svc.Delete(r.Context(), chi.URLParam(r, "version"), id.UserID)
	switch {
	case errors.Is(err, ErrInvalidVersion):
		response.BadRequest(w, err.Error())
	case err != nil:
		response.InternalError(w)
	default:
		response.Empty(w)
	}
}

// Retrieve godoc
//
//	@Summary		Download a file version
//	@Description	Returns the raw bytes stored under the version identifier. No authentication is required.
//	@Tags			files
//	@Produce		octet-stream
//	@Param			version	path		string	true	"Version identifier"
//	@Success		200		{file}		binary
//	@Failure		400		{object}	response.Envelope
//	@Failure		404		{object}	response.Envelope
//	@Failure		500		{object}	response.Envelope
//	@Router			/file/public/{version} [get]
func (h *Handler) Retrieve(w http.ResponseWriter, r *http.Request) {
	data, err := h.svc.Retrieve(r.Context(), chi.URLParam(r, "version"))
	if err != nil {
		var notFound *NotFoundError
		switch {
		case errors.As(err, &notFound):
			response.NotFound(w, notFound.Error())
		case errors.Is(err, ErrInvalidVersion):
			response.BadRequest(w, err.Error())
		default:
			response.InternalError(w)
		}
		return
	}

	response.Binary(w, data)
}
