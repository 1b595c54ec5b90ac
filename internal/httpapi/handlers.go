package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/MimeLyc/synced-lyrics/internal/config"
	"github.com/MimeLyc/synced-lyrics/internal/errs"
	"github.com/MimeLyc/synced-lyrics/internal/lyriccache"
	"github.com/MimeLyc/synced-lyrics/internal/service"
	"github.com/MimeLyc/synced-lyrics/pkg/log"
)

func (s *Server) handleLyrics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if s.authorizer != nil {
		if err := s.authorizer.Authorize(r); err != nil {
			log.Info("lyrics request rejected: %v", err)
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
	}

	q := r.URL.Query()
	req := service.Request{
		Artist:        q.Get("artist"),
		Song:          q.Get("song"),
		Album:         q.Get("album"),
		Duration:      q.Get("duration"),
		Platform:      q.Get("platform"),
		SourceTrackID: q.Get("trackId"),
		Enhanced:      parseBool(q.Get("enhanced"), true),
		Debug:         parseBool(q.Get("debug"), false),
	}
	if videoID := q.Get("videoId"); videoID != "" && req.SourceTrackID == "" {
		req.SourceTrackID = videoID
		if req.Platform == "" {
			req.Platform = string(lyriccache.PlatformYouTubeMusic)
		}
	}

	lyrics, err := s.lyrics.GetLyrics(r.Context(), req)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, lyrics)
	case errs.Is(err, errs.Validation):
		writeError(w, http.StatusBadRequest, err.Error())
	case errs.Is(err, errs.NotFound):
		log.Debug("no lyrics for %q by %q: %v", req.Song, req.Artist, err)
		writeError(w, http.StatusNotFound, "no lyrics found")
	default:
		log.Error("lyrics request failed: %v", err)
		writeError(w, http.StatusNotFound, "no lyrics found")
	}
}

func parseBool(raw string, def bool) bool {
	if raw == "" {
		return def
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return def
	}
	return v
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	out := map[string]any{}
	if s.index != nil {
		stats, err := s.index.Stats(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		out["index"] = stats
	}
	if s.responses != nil {
		out["response_cache"] = s.responses.Stats()
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handlePrune(w http.ResponseWriter, r *http.Request) {
	if s.pruner == nil {
		writeError(w, http.StatusNotImplemented, "pruner is not configured")
		return
	}
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	report, err := s.pruner.Run(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"error":  err.Error(),
			"report": report,
		})
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleSettings(w http.ResponseWriter, r *http.Request) {
	if s.settings == nil {
		writeError(w, http.StatusNotImplemented, "settings store is not configured")
		return
	}

	switch r.Method {
	case http.MethodGet:
		settings, err := s.settings.GetRuntimeSettings()
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, settings)
	case http.MethodPut:
		var req config.RuntimeSettings
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid json body")
			return
		}
		if err := req.Validate(); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		saved, err := s.settings.UpdateRuntimeSettings(req)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if s.apply != nil {
			if err := s.apply(saved); err != nil {
				writeError(w, http.StatusInternalServerError, err.Error())
				return
			}
		}
		writeJSON(w, http.StatusOK, saved)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{
		"error": msg,
	})
}
