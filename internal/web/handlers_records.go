package web

import (
	"encoding/csv"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/alphaops/contactsync/internal/core"
	"github.com/alphaops/contactsync/internal/logging"
	"github.com/alphaops/contactsync/internal/mapping"
)

type recordListResponse struct {
	Records []core.Contact `json:"records"`
	Total   int64          `json:"total"`
	Limit   int            `json:"limit"`
	Offset  int            `json:"offset"`
}

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

func (s *Server) handleListRecords(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	limit := queryInt(q.Get("limit"), defaultListLimit)
	if limit <= 0 || limit > maxListLimit {
		limit = defaultListLimit
	}
	offset := queryInt(q.Get("offset"), 0)
	if offset < 0 {
		offset = 0
	}

	opt := core.ListOptions{
		Search: q.Get("search"),
		Limit:  limit,
		Offset: offset,
	}

	contacts, total, err := s.service.ListContacts(r.Context(), opt)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, recordListResponse{
		Records: contacts,
		Total:   total,
		Limit:   limit,
		Offset:  offset,
	})
}

func (s *Server) handleGetRecord(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.respondError(w, r, badRequest(err))
		return
	}

	contact, ok, err := s.service.GetContact(r.Context(), id)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	if !ok {
		respondJSON(w, http.StatusNotFound, ErrorResponse{
			Error:   fmt.Sprintf("record %d not found", id),
			Message: "The requested record does not exist",
			Code:    "REC001",
		})
		return
	}

	respondJSON(w, http.StatusOK, contact)
}

func (s *Server) handleDeleteRecord(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.respondError(w, r, badRequest(err))
		return
	}

	deleted, err := s.service.DeleteContact(r.Context(), id)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	if !deleted {
		respondJSON(w, http.StatusNotFound, ErrorResponse{
			Error:   fmt.Sprintf("record %d not found", id),
			Message: "The requested record does not exist",
			Code:    "REC001",
		})
		return
	}

	logging.FromContext(r.Context()).Info("record deleted", "id", id)
	respondJSON(w, http.StatusOK, map[string]any{"deleted": true, "id": id})
}

// handleExportRecords streams the whole table as a CSV download with
// the canonical column headers, so an export re-imports cleanly.
func (s *Server) handleExportRecords(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	const pageSize = 1000
	filename := fmt.Sprintf("contacts-%s.csv", time.Now().UTC().Format("20060102"))

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))

	cw := csv.NewWriter(w)
	if err := cw.Write(mapping.CanonicalColumns); err != nil {
		return
	}

	offset := 0
	for {
		contacts, _, err := s.service.ListContacts(ctx, core.ListOptions{Limit: pageSize, Offset: offset})
		if err != nil {
			// Headers are already out; all we can do is stop.
			logging.FromContext(ctx).Error("export aborted", "error", err, "offset", offset)
			return
		}
		for _, c := range contacts {
			row := []string{c.Company, c.Name, c.Surname, c.Email, c.Position, c.Phone}
			if err := cw.Write(row); err != nil {
				return
			}
		}
		if len(contacts) < pageSize {
			break
		}
		offset += pageSize
	}
	cw.Flush()
}

func pathID(r *http.Request) (int64, error) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid record id %q", raw)
	}
	return id, nil
}

func queryInt(raw string, fallback int) int {
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}
