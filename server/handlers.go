package server

import (
	"encoding/json"
	"net/http"
	"strconv"

	"stemdeck/core/engine"
	"stemdeck/core/importer"
	"stemdeck/logger"
	"stemdeck/model"

	"github.com/gorilla/mux"
)

// APIHandler exposes the engine command surface over HTTP. One route
// per command; payloads mirror the command parameters.
type APIHandler struct {
	engine *engine.Engine
}

// NewAPIHandler creates the handler set.
func NewAPIHandler(eng *engine.Engine) *APIHandler {
	return &APIHandler{engine: eng}
}

// RegisterRoutes attaches every command route to the router.
func (h *APIHandler) RegisterRoutes(router *mux.Router) {
	// Playback
	router.HandleFunc("/api/playback/play", h.PlaySongHandler).Methods(http.MethodPost)
	router.HandleFunc("/api/playback/pause", h.PausePlaybackHandler).Methods(http.MethodPost)
	router.HandleFunc("/api/playback/resume", h.ResumePlaybackHandler).Methods(http.MethodPost)
	router.HandleFunc("/api/playback/stop", h.StopPlaybackHandler).Methods(http.MethodPost)
	router.HandleFunc("/api/playback/seek", h.SeekHandler).Methods(http.MethodPost)
	router.HandleFunc("/api/playback/master-volume", h.MasterVolumeHandler).Methods(http.MethodPost)
	router.HandleFunc("/api/playback/status", h.PlaybackStatusHandler).Methods(http.MethodGet)

	// Stems
	router.HandleFunc("/api/stems/{id}/volume", h.StemVolumeHandler).Methods(http.MethodPost)
	router.HandleFunc("/api/stems/{id}/mute", h.StemMuteHandler).Methods(http.MethodPost)
	router.HandleFunc("/api/stems/{id}/solo", h.StemSoloHandler).Methods(http.MethodPost)

	// Library
	router.HandleFunc("/api/library/import", h.ImportHandler).Methods(http.MethodPost)
	router.HandleFunc("/api/songs", h.GetSongsHandler).Methods(http.MethodGet)
	router.HandleFunc("/api/songs/{id}", h.GetSongHandler).Methods(http.MethodGet)
	router.HandleFunc("/api/songs/{id}", h.DeleteSongHandler).Methods(http.MethodDelete)
	router.HandleFunc("/api/songs/{id}/stems", h.GetSongStemsHandler).Methods(http.MethodGet)

	// Setlists
	router.HandleFunc("/api/setlists", h.GetSetlistsHandler).Methods(http.MethodGet)
	router.HandleFunc("/api/setlists", h.CreateSetlistHandler).Methods(http.MethodPost)
	router.HandleFunc("/api/setlists/{id}", h.GetSetlistHandler).Methods(http.MethodGet)
	router.HandleFunc("/api/setlists/{id}", h.UpdateSetlistHandler).Methods(http.MethodPut)
	router.HandleFunc("/api/setlists/{id}", h.DeleteSetlistHandler).Methods(http.MethodDelete)
	router.HandleFunc("/api/setlists/{id}/songs", h.AddSetlistSongHandler).Methods(http.MethodPost)
	router.HandleFunc("/api/setlists/{id}/songs/{song_id}", h.RemoveSetlistSongHandler).Methods(http.MethodDelete)
	router.HandleFunc("/api/setlists/{id}/order", h.ReorderSetlistHandler).Methods(http.MethodPut)
	router.HandleFunc("/api/setlists/{id}/preload", h.PreloadSetlistHandler).Methods(http.MethodPost)

	// Audio configuration
	router.HandleFunc("/api/audio/devices", h.GetDevicesHandler).Methods(http.MethodGet)
	router.HandleFunc("/api/audio/device", h.SwitchDeviceHandler).Methods(http.MethodPost)
	router.HandleFunc("/api/audio/buffer-size", h.BufferSizeHandler).Methods(http.MethodPost)
	router.HandleFunc("/api/audio/sample-rate", h.SampleRateHandler).Methods(http.MethodPost)
	router.HandleFunc("/api/audio/settings", h.GetSettingsHandler).Methods(http.MethodGet)

	// Cache
	router.HandleFunc("/api/cache/stats", h.CacheStatsHandler).Methods(http.MethodGet)
	router.HandleFunc("/api/cache/size", h.CacheSizeHandler).Methods(http.MethodPost)
	router.HandleFunc("/api/cache/clear", h.CacheClearHandler).Methods(http.MethodPost)

	// Events
	router.HandleFunc("/ws/events", h.EventsHandler)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("failed to encode response", logger.Err(err))
	}
}

// errorStatus maps stable error kinds to HTTP statuses.
func errorStatus(kind string) int {
	switch kind {
	case "NotFound", "FileNotFound":
		return http.StatusNotFound
	case "UniqueViolation", "DuplicateSource":
		return http.StatusConflict
	case "UnsupportedFormat", "NoSongLoaded", "InvalidSeekPosition", "SampleRateUnsupported":
		return http.StatusBadRequest
	case "DeviceUnavailable", "DeviceDisconnected":
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	kind := engine.ErrorKind(err)
	writeJSON(w, errorStatus(kind), map[string]any{
		"error":   kind,
		"message": err.Error(),
	})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error": "BadRequest", "message": "invalid JSON body",
		})
		return false
	}
	return true
}

func ok(w http.ResponseWriter) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// --- Playback ----------------------------------------------------------

func (h *APIHandler) PlaySongHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SongID string `json:"song_id"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if err := h.engine.PlaySong(req.SongID); err != nil {
		writeError(w, err)
		return
	}
	ok(w)
}

func (h *APIHandler) PausePlaybackHandler(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.PausePlayback(); err != nil {
		writeError(w, err)
		return
	}
	ok(w)
}

func (h *APIHandler) ResumePlaybackHandler(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.ResumePlayback(); err != nil {
		writeError(w, err)
		return
	}
	ok(w)
}

func (h *APIHandler) StopPlaybackHandler(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.StopPlayback(); err != nil {
		writeError(w, err)
		return
	}
	ok(w)
}

func (h *APIHandler) SeekHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Seconds float64 `json:"seconds"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if err := h.engine.SeekToPosition(req.Seconds); err != nil {
		writeError(w, err)
		return
	}
	ok(w)
}

func (h *APIHandler) MasterVolumeHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Volume float32 `json:"volume"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if err := h.engine.SetMasterVolume(req.Volume); err != nil {
		writeError(w, err)
		return
	}
	ok(w)
}

func (h *APIHandler) PlaybackStatusHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"state":   h.engine.PlaybackState(),
		"seconds": h.engine.CurrentPosition(),
	})
}

// --- Stems -------------------------------------------------------------

func (h *APIHandler) StemVolumeHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Volume float32 `json:"volume"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if err := h.engine.SetStemVolume(mux.Vars(r)["id"], req.Volume); err != nil {
		writeError(w, err)
		return
	}
	ok(w)
}

func (h *APIHandler) StemMuteHandler(w http.ResponseWriter, r *http.Request) {
	muted, err := h.engine.ToggleStemMute(mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"muted": muted})
}

func (h *APIHandler) StemSoloHandler(w http.ResponseWriter, r *http.Request) {
	solo, err := h.engine.ToggleStemSolo(mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"solo": solo})
}

// --- Library -----------------------------------------------------------

func (h *APIHandler) ImportHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Paths         []string `json:"paths"`
		Title         string   `json:"title"`
		Artist        string   `json:"artist"`
		Key           string   `json:"key"`
		Tempo         *float64 `json:"tempo"`
		TimeSignature string   `json:"time_signature"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	songID, err := h.engine.ImportFiles(importer.Request{
		Paths:         req.Paths,
		Title:         req.Title,
		Artist:        req.Artist,
		Key:           req.Key,
		Tempo:         req.Tempo,
		TimeSignature: req.TimeSignature,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"song_id": songID})
}

func parseTempo(value string) *float64 {
	if value == "" {
		return nil
	}
	if v, err := strconv.ParseFloat(value, 64); err == nil {
		return &v
	}
	return nil
}

func (h *APIHandler) GetSongsHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := model.SongFilter{
		Query:    q.Get("query"),
		TempoMin: parseTempo(q.Get("tempo_min")),
		TempoMax: parseTempo(q.Get("tempo_max")),
		Key:      q.Get("key"),
		SortBy:   q.Get("sort_by"),
	}
	songs, err := h.engine.FilterSongs(filter)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, songs)
}

func (h *APIHandler) GetSongHandler(w http.ResponseWriter, r *http.Request) {
	song, err := h.engine.GetSong(mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, song)
}

func (h *APIHandler) DeleteSongHandler(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.DeleteSong(mux.Vars(r)["id"]); err != nil {
		writeError(w, err)
		return
	}
	ok(w)
}

func (h *APIHandler) GetSongStemsHandler(w http.ResponseWriter, r *http.Request) {
	stems, err := h.engine.GetSongStems(mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stems)
}

// --- Setlists ----------------------------------------------------------

func (h *APIHandler) GetSetlistsHandler(w http.ResponseWriter, r *http.Request) {
	setlists, err := h.engine.GetAllSetlists()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, setlists)
}

func (h *APIHandler) CreateSetlistHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	setlist, err := h.engine.CreateSetlist(req.Name)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, setlist)
}

func (h *APIHandler) GetSetlistHandler(w http.ResponseWriter, r *http.Request) {
	setlist, err := h.engine.GetSetlist(mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, setlist)
}

func (h *APIHandler) UpdateSetlistHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name    string   `json:"name"`
		SongIDs []string `json:"song_ids"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if err := h.engine.UpdateSetlist(mux.Vars(r)["id"], req.Name, req.SongIDs); err != nil {
		writeError(w, err)
		return
	}
	ok(w)
}

func (h *APIHandler) DeleteSetlistHandler(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.DeleteSetlist(mux.Vars(r)["id"]); err != nil {
		writeError(w, err)
		return
	}
	ok(w)
}

func (h *APIHandler) AddSetlistSongHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SongID string `json:"song_id"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if err := h.engine.AddSongToSetlist(mux.Vars(r)["id"], req.SongID); err != nil {
		writeError(w, err)
		return
	}
	ok(w)
}

func (h *APIHandler) RemoveSetlistSongHandler(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	if err := h.engine.RemoveSongFromSetlist(vars["id"], vars["song_id"]); err != nil {
		writeError(w, err)
		return
	}
	ok(w)
}

func (h *APIHandler) ReorderSetlistHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SongIDs []string `json:"song_ids"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if err := h.engine.ReorderSetlistSongs(mux.Vars(r)["id"], req.SongIDs); err != nil {
		writeError(w, err)
		return
	}
	ok(w)
}

func (h *APIHandler) PreloadSetlistHandler(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.PreloadSetlist(mux.Vars(r)["id"]); err != nil {
		writeError(w, err)
		return
	}
	ok(w)
}

// --- Audio configuration -----------------------------------------------

func (h *APIHandler) GetDevicesHandler(w http.ResponseWriter, r *http.Request) {
	devices, err := h.engine.GetAudioDevices()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, devices)
}

func (h *APIHandler) SwitchDeviceHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if err := h.engine.SwitchAudioDevice(req.Name); err != nil {
		writeError(w, err)
		return
	}
	ok(w)
}

func (h *APIHandler) BufferSizeHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Frames int `json:"frames"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if err := h.engine.SetBufferSize(req.Frames); err != nil {
		writeError(w, err)
		return
	}
	ok(w)
}

func (h *APIHandler) SampleRateHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Hz int `json:"hz"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if err := h.engine.SetSampleRate(req.Hz); err != nil {
		writeError(w, err)
		return
	}
	ok(w)
}

func (h *APIHandler) GetSettingsHandler(w http.ResponseWriter, r *http.Request) {
	settings, err := h.engine.GetAudioSettings()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, settings)
}

// --- Cache -------------------------------------------------------------

func (h *APIHandler) CacheStatsHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.engine.GetCacheStats())
}

func (h *APIHandler) CacheSizeHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Bytes int64 `json:"bytes"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if err := h.engine.SetCacheSize(req.Bytes); err != nil {
		writeError(w, err)
		return
	}
	ok(w)
}

func (h *APIHandler) CacheClearHandler(w http.ResponseWriter, r *http.Request) {
	h.engine.ClearCache()
	ok(w)
}
