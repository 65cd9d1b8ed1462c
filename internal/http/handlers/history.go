package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"postergen/internal/domain"
)

type historyEntry struct {
	ID          string         `json:"id"`
	Prompt      string         `json:"prompt"`
	AspectRatio string         `json:"aspect_ratio"`
	Images      []historyImage `json:"images"`
	Timestamp   string         `json:"timestamp"`
}

type historyImage struct {
	ID     string `json:"id"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

// HistoryList lists past generation records, oldest first. Image bytes are
// omitted; only metadata is returned. Optional ?limit=N caps the result to
// the most recent N records.
func (a *App) HistoryList(w http.ResponseWriter, r *http.Request) {
	records, err := a.History.List(r.Context())
	if err != nil {
		a.Logger.Error().Err(err).Msg("handler: history list failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to read history")
		return
	}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 {
			a.error(w, http.StatusBadRequest, "bad_request", "limit must be a positive integer")
			return
		}
		if len(records) > limit {
			records = records[len(records)-limit:]
		}
	}
	entries := make([]historyEntry, 0, len(records))
	for _, rec := range records {
		entries = append(entries, toHistoryEntry(rec))
	}
	a.json(w, http.StatusOK, map[string]any{"records": entries})
}

type historyDetailImage struct {
	ID     string `json:"id"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
	Image  []byte `json:"image,omitempty"`
}

type historyDetail struct {
	ID          string               `json:"id"`
	Prompt      string               `json:"prompt"`
	AspectRatio string               `json:"aspect_ratio"`
	Images      []historyDetailImage `json:"images"`
	Timestamp   string               `json:"timestamp"`
}

// HistoryGet returns one record by id, including the stored image bytes.
func (a *App) HistoryGet(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "id required")
		return
	}
	records, err := a.History.List(r.Context())
	if err != nil {
		a.Logger.Error().Err(err).Msg("handler: history read failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to read history")
		return
	}
	for _, rec := range records {
		if rec.ID != id {
			continue
		}
		detail := historyDetail{
			ID:          rec.ID,
			Prompt:      rec.Prompt,
			AspectRatio: rec.AspectRatio,
			Timestamp:   rec.CreatedAt.Format(time.RFC3339),
		}
		for _, img := range rec.Images {
			detail.Images = append(detail.Images, historyDetailImage{ID: img.ID, Width: img.Width, Height: img.Height, Image: img.Data})
		}
		a.json(w, http.StatusOK, detail)
		return
	}
	a.error(w, http.StatusNotFound, "not_found", domain.ErrNotFound.Error())
}

func toHistoryEntry(rec domain.HistoryRecord) historyEntry {
	entry := historyEntry{
		ID:          rec.ID,
		Prompt:      rec.Prompt,
		AspectRatio: rec.AspectRatio,
		Timestamp:   rec.CreatedAt.Format(time.RFC3339),
	}
	for _, img := range rec.Images {
		entry.Images = append(entry.Images, historyImage{ID: img.ID, Width: img.Width, Height: img.Height})
	}
	return entry
}
