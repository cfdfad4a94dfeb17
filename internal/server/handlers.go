package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/nhle/bcfeed/internal/model"
	"github.com/nhle/bcfeed/internal/store"
	bcsync "github.com/nhle/bcfeed/internal/sync"
)

type startSyncResponse struct {
	RunID string `json:"run_id"`
}

// handleStartSync starts a run. With ?reset=true the backlog checkpoint
// is cleared first.
func (s *Server) handleStartSync(w http.ResponseWriter, r *http.Request) error {
	if r.URL.Query().Get("reset") == "true" {
		err := s.syncer.ResetCheckpoint(r.Context())
		if errors.Is(err, bcsync.ErrSyncAlreadyRunning) {
			return errConflict("a sync is already running", err)
		}
		if err != nil {
			return errInternal("could not reset the checkpoint", err)
		}
	}

	runID, err := s.syncer.StartSync(r.Context())
	if errors.Is(err, bcsync.ErrSyncAlreadyRunning) {
		return errConflict("a sync is already running", err)
	}
	if err != nil {
		return errInternal("could not start sync", err)
	}

	s.logger.Info("sync started", "run", runID)
	respondJSON(w, http.StatusAccepted, startSyncResponse{RunID: runID})
	return nil
}

func (s *Server) handleCancelSync(w http.ResponseWriter, _ *http.Request) error {
	if !s.syncer.Cancel() {
		return errConflict("no sync is running", nil)
	}
	w.WriteHeader(http.StatusAccepted)
	return nil
}

func (s *Server) handleSyncStatus(w http.ResponseWriter, _ *http.Request) error {
	respondJSON(w, http.StatusOK, s.syncer.Status())
	return nil
}

// handleSyncStream relays the progress events of the current run as
// server-sent events. The stream ends after the Done event.
func (s *Server) handleSyncStream(w http.ResponseWriter, r *http.Request) {
	rc := http.NewResponseController(w)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	for ev := range s.syncer.SubscribeProgress() {
		if r.Context().Err() != nil {
			return
		}
		if err := writeEvent(w, ev); err != nil {
			s.logger.Debug("progress stream closed", "err", err)
			return
		}
		if err := rc.Flush(); err != nil {
			s.logger.Debug("progress stream flush", "err", err)
			return
		}
	}
}

// writeEvent writes ev in event-stream framing. The terminal event is
// named "done" so clients can close the stream.
func writeEvent(w http.ResponseWriter, ev model.ProgressEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}

	name := "progress"
	if ev.Done {
		name = "done"
	}
	_, err = fmt.Fprintf(w, "id: %d\nevent: %s\ndata: %s\n\n", ev.Seq, name, data)
	return err
}

// handleListReleases serves the feed. Query parameters: q, window
// (week, month, 3months, year, all), type (album, track), sort (newest,
// oldest, uploader_az, uploader_za) and page.
func (s *Server) handleListReleases(w http.ResponseWriter, r *http.Request) error {
	q := r.URL.Query()

	var filter store.ReleaseFilter
	filter.Query = q.Get("q")

	if since, ok := store.WindowStart(q.Get("window"), s.now()); ok {
		filter.Since = &since
	}

	switch q.Get("type") {
	case "":
	case "album", "ALBUM":
		filter.Type = model.ReleaseTypeAlbum
	case "track", "TRACK":
		filter.Type = model.ReleaseTypeTrack
	default:
		return errBadRequest("type must be album or track")
	}

	page := 1
	if raw := q.Get("page"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return errBadRequest("page must be a positive integer")
		}
		page = n
	}

	sort := q.Get("sort")
	if sort == "" {
		sort = store.SortNewest
	}

	result, err := s.feed.ListReleases(r.Context(), filter, sort, page, store.DefaultPerPage)
	if err != nil {
		return errInternal("could not list releases", err)
	}

	respondJSON(w, http.StatusOK, result)
	return nil
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) error {
	stats, err := s.feed.Stats(r.Context(), s.now())
	if err != nil {
		return errInternal("could not compute stats", err)
	}
	respondJSON(w, http.StatusOK, stats)
	return nil
}

// handleHealth reports whether the database answers.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) error {
	if err := s.feed.Ping(r.Context()); err != nil {
		return errUnavailable("database unavailable", err)
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	return nil
}
