package web

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/alphaops/contactsync/internal/logging"
)

// snapshotSummary is the listing projection of a snapshot. The backup
// and preview payloads can be large, so the list endpoint carries
// metadata only; GET /snapshots/{id} returns the complete record,
// change preview included. Service.ListSnapshots still returns full
// snapshots for callers that need them in bulk.
type snapshotSummary struct {
	ID                     string `json:"id"`
	Name                   string `json:"snapshot_name"`
	Timestamp              string `json:"timestamp"`
	RolledBack             bool   `json:"rolled_back"`
	BackedUpRecords        int    `json:"backed_up_records"`
	EstimatedUpdatedCount  int    `json:"estimated_updated_count"`
	EstimatedInsertedCount int    `json:"estimated_inserted_count"`
	InsertedRecords        int    `json:"inserted_records"`
}

func (s *Server) handleListSnapshots(w http.ResponseWriter, r *http.Request) {
	snapshots, err := s.service.ListSnapshots(r.Context())
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	summaries := make([]snapshotSummary, 0, len(snapshots))
	for _, snap := range snapshots {
		summaries = append(summaries, snapshotSummary{
			ID:                     snap.ID,
			Name:                   snap.Name,
			Timestamp:              snap.Timestamp.UTC().Format(time.RFC3339),
			RolledBack:             snap.RolledBack,
			BackedUpRecords:        len(snap.RecordsBackup),
			EstimatedUpdatedCount:  snap.UpdateDetails.EstimatedUpdatedCount,
			EstimatedInsertedCount: snap.UpdateDetails.EstimatedInsertedCount,
			InsertedRecords:        len(snap.UpdateDetails.InsertedRecordIDs),
		})
	}

	respondJSON(w, http.StatusOK, map[string]any{"snapshots": summaries, "total": len(summaries)})
}

func (s *Server) handleGetSnapshot(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	snap, err := s.service.GetSnapshot(r.Context(), id)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, snap)
}

func (s *Server) handleRollback(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	result, err := s.service.Rollback(r.Context(), id)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	logging.FromContext(r.Context()).Info("snapshot rolled back",
		"snapshot_id", id,
		"restored", result.RestoredCount,
		"deleted", result.DeletedCount,
		"warnings", len(result.Warnings),
	)
	respondJSON(w, http.StatusOK, result)
}

func (s *Server) handleDeleteSnapshot(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := s.service.DeleteSnapshot(r.Context(), id); err != nil {
		s.respondError(w, r, err)
		return
	}

	logging.FromContext(r.Context()).Info("snapshot deleted", "snapshot_id", id)
	respondJSON(w, http.StatusOK, map[string]any{"deleted": true, "id": id})
}

func (s *Server) handleDeleteAllSnapshots(w http.ResponseWriter, r *http.Request) {
	olderThanDays := queryInt(r.URL.Query().Get("older_than_days"), 0)
	if olderThanDays < 0 {
		olderThanDays = 0
	}

	deleted, err := s.service.DeleteAllSnapshots(r.Context(), olderThanDays)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	logging.FromContext(r.Context()).Info("snapshots purged",
		"deleted", deleted,
		"older_than_days", olderThanDays,
	)
	respondJSON(w, http.StatusOK, map[string]any{"deleted_count": deleted})
}
