package microservice

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/illmade-knight/go-hostwatch/pkg/cache"
	"github.com/illmade-knight/go-hostwatch/pkg/measurement"
	"github.com/rs/zerolog"
)

type latestHandler struct {
	cache  cache.SnapshotCache
	logger zerolog.Logger
}

// list serves every snapshot of one kind.
func (h *latestHandler) list(w http.ResponseWriter, r *http.Request) {
	kind, ok := parseKind(w, r)
	if !ok {
		return
	}
	snapshots, err := h.cache.List(r.Context(), kind)
	if err != nil {
		h.logger.Error().Err(err).Str("kind", string(kind)).Msg("Failed to list snapshots.")
		http.Error(w, "cache unavailable", http.StatusBadGateway)
		return
	}
	if snapshots == nil {
		snapshots = []measurement.Snapshot{}
	}
	writeJSON(w, snapshots)
}

// fetch serves the snapshot of one kind/subject pair. Subjects may contain
// slashes.
func (h *latestHandler) fetch(w http.ResponseWriter, r *http.Request) {
	kind, ok := parseKind(w, r)
	if !ok {
		return
	}
	key := measurement.SnapshotKey(kind, r.PathValue("subject"))
	snapshot, err := h.cache.Fetch(r.Context(), key)
	if errors.Is(err, cache.ErrNotFound) {
		http.Error(w, "no reading for "+key, http.StatusNotFound)
		return
	}
	if err != nil {
		h.logger.Error().Err(err).Str("key", key).Msg("Failed to fetch snapshot.")
		http.Error(w, "cache unavailable", http.StatusBadGateway)
		return
	}
	writeJSON(w, snapshot)
}

func parseKind(w http.ResponseWriter, r *http.Request) (measurement.Kind, bool) {
	kind, err := measurement.ParseKind(r.PathValue("kind"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return "", false
	}
	return kind, true
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
