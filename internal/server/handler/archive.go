package handler

import (
	"io"
	"log/slog"
	"net/http"

	"github.com/kterrell/tradegate/internal/domain"
)

// ArchiveHandler serves the cold-storage archive: monthly JSONL files of
// settled orders and audit events written to S3 by the archival loop.
type ArchiveHandler struct {
	blobs  domain.BlobReader
	logger *slog.Logger
}

// NewArchiveHandler creates an ArchiveHandler over the given blob reader.
func NewArchiveHandler(blobs domain.BlobReader, logger *slog.Logger) *ArchiveHandler {
	return &ArchiveHandler{
		blobs:  blobs,
		logger: logger,
	}
}

type listArchivesResponse struct {
	Archives []domain.BlobInfo `json:"archives"`
}

// ListArchives lists archive files, optionally under a prefix such as
// "archive/orders/".
// GET /api/v1/archives?prefix=archive/orders/
func (h *ArchiveHandler) ListArchives(w http.ResponseWriter, r *http.Request) {
	prefix := r.URL.Query().Get("prefix")
	if prefix == "" {
		prefix = "archive/"
	}

	infos, err := h.blobs.List(r.Context(), prefix)
	if err != nil {
		writeDomainError(w, h.logger, r, err)
		return
	}

	if infos == nil {
		infos = []domain.BlobInfo{}
	}
	writeJSON(w, http.StatusOK, listArchivesResponse{Archives: infos})
}

// GetArchive streams a single archive file back to the client as JSONL.
// GET /api/v1/archives/{path...}
func (h *ArchiveHandler) GetArchive(w http.ResponseWriter, r *http.Request) {
	path := pathParam(r, "path")
	if path == "" {
		writeError(w, http.StatusBadRequest, "missing archive path")
		return
	}

	body, err := h.blobs.Get(r.Context(), path)
	if err != nil {
		writeDomainError(w, h.logger, r, err)
		return
	}
	defer body.Close()

	w.Header().Set("Content-Type", "application/x-ndjson")
	if _, err := io.Copy(w, body); err != nil {
		h.logger.WarnContext(r.Context(), "handler: archive stream interrupted",
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
	}
}
