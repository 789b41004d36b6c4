package web

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/alphaops/contactsync/internal/core"
	"github.com/alphaops/contactsync/internal/logging"
	"github.com/alphaops/contactsync/internal/mapping"
)

type previewResponse struct {
	Batch            *core.Batch `json:"batch"`
	SkippedEmptyRows int         `json:"skipped_empty_rows"`
	ArchiveKey       string      `json:"archive_key,omitempty"`
}

// handleImportUpload parses an uploaded CSV, maps its headers to the
// canonical columns, and reconciles every row against the live table.
// Nothing is written; the returned batch is what a subsequent apply
// call commits.
func (s *Server) handleImportUpload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logging.FromContext(ctx)

	if err := s.limiter.Acquire(ctx); err != nil {
		s.respondError(w, r, err)
		return
	}
	defer s.limiter.Release()

	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.Import.MaxFileSize)
	if err := r.ParseMultipartForm(s.cfg.Import.MaxFileSize); err != nil {
		s.respondError(w, r, badRequest(fmt.Errorf("invalid request body: %w", err)))
		return
	}

	mode := core.UpdateMode(r.FormValue("mode"))
	if mode == "" {
		mode = core.ModeReplace
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		s.respondError(w, r, badRequest(fmt.Errorf("invalid request body: missing file field: %w", err)))
		return
	}
	defer file.Close()

	parsed, err := mapping.ParseCSV(file)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	batch, err := s.service.Reconcile(ctx, parsed.Records, mode)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	// Archiving the raw upload is best effort; a storage hiccup must
	// not fail the preview.
	var archiveKey string
	if s.archiver.Enabled() {
		if _, err := file.Seek(0, io.SeekStart); err == nil {
			archiveKey, err = s.archiver.Archive(ctx, header.Filename, file, header.Size)
			if err != nil {
				slog.Warn("archiving upload failed", "filename", header.Filename, "error", err)
				archiveKey = ""
			}
		}
	}

	log.Info("import preview",
		"filename", header.Filename,
		"mode", string(mode),
		"rows", len(parsed.Records),
		"updates", batch.Summary.UpdatedCount,
		"new", batch.Summary.NewCount,
		"duplicates", batch.Summary.DuplicatesCount,
	)

	respondJSON(w, http.StatusOK, previewResponse{
		Batch:            batch,
		SkippedEmptyRows: parsed.SkippedEmptyRows,
		ArchiveKey:       archiveKey,
	})
}

// handleArchiveURL returns a temporary download link for an archived
// upload, addressed by the archive key the preview response returned.
func (s *Server) handleArchiveURL(w http.ResponseWriter, r *http.Request) {
	if !s.archiver.Enabled() {
		respondJSON(w, http.StatusNotFound, ErrorResponse{
			Error:   "file archiving is not configured",
			Message: "File archiving is not configured",
			Code:    "ARC001",
		})
		return
	}

	key := r.URL.Query().Get("key")
	if key == "" {
		s.respondError(w, r, badRequest(fmt.Errorf("invalid request body: key query parameter is required")))
		return
	}

	url, err := s.archiver.PresignGet(r.Context(), key, 15*time.Minute)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"url": url})
}

type previewRequest struct {
	Records []core.IncomingRecord `json:"records"`
	Mode    core.UpdateMode       `json:"mode"`
}

// handleImportPreview reconciles already-mapped records posted as JSON.
// Clients that did their own column mapping can skip the upload path.
func (s *Server) handleImportPreview(w http.ResponseWriter, r *http.Request) {
	var req previewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, r, badRequest(fmt.Errorf("invalid request body: %w", err)))
		return
	}
	if req.Mode == "" {
		req.Mode = core.ModeReplace
	}

	batch, err := s.service.Reconcile(r.Context(), req.Records, req.Mode)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, previewResponse{Batch: batch})
}

type applyRequest struct {
	Batch     *core.Batch     `json:"batch"`
	Selection *core.Selection `json:"selection"`
}

// handleImportApply commits a previously previewed batch, optionally
// filtered by a selection. The response carries the snapshot id needed
// to undo the commit.
func (s *Server) handleImportApply(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logging.FromContext(ctx)

	var req applyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, r, badRequest(fmt.Errorf("invalid request body: %w", err)))
		return
	}
	if req.Batch == nil {
		s.respondError(w, r, badRequest(fmt.Errorf("invalid request body: batch is required")))
		return
	}

	result, err := s.service.Apply(ctx, req.Batch, req.Selection)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	log.Info("batch applied",
		"snapshot_id", result.SnapshotID,
		"updated", result.UpdatedCount,
		"inserted", result.InsertedCount,
	)
	respondJSON(w, http.StatusOK, result)
}
