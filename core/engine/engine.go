package engine

import (
	"context"
	"fmt"
	"math"
	"sync"

	"stemdeck/config"
	"stemdeck/core/audio"
	"stemdeck/core/importer"
	"stemdeck/core/watcher"
	"stemdeck/logger"
	"stemdeck/model"
	"stemdeck/repository"
)

// stemControl is the control plane's shadow of one active stem's
// runtime mix. The mixer owns the truth; the shadow serves toggles
// and level-event labelling without touching the audio thread.
type stemControl struct {
	id   string
	gain float32
	mute bool
	solo bool
}

// Engine is the control plane: it wires the store, cache, loader,
// mixer, output driver, importer and watcher behind the stable
// command surface, and pushes events to subscribed UI shells.
type Engine struct {
	cfg      *config.Config
	songs    repository.SongRepository
	stems    repository.StemRepository
	setlists repository.SetlistRepository
	settings repository.SettingsRepository

	decoder  *audio.Decoder
	loader   *audio.Loader
	cache    *audio.SongCache
	mixer    *audio.Mixer
	output   *audio.OutputDriver
	importer *importer.Importer
	watcher  *watcher.LibraryWatcher
	bus      *Bus

	mu           sync.Mutex
	activeSongID string
	activeStems  []stemControl
	preloaded    map[string][]string // setlist id -> pinned song ids
	pendingGains map[int]float32     // coalesced inbox overflow, stem index -> gain

	// sendMu serializes producers on the mixer's single-producer
	// inbox ring.
	sendMu sync.Mutex

	done chan struct{}
}

// New wires an engine from configuration and an open metadata store.
func New(cfg *config.Config,
	songs repository.SongRepository,
	stems repository.StemRepository,
	setlists repository.SetlistRepository,
	settings repository.SettingsRepository,
) (*Engine, error) {
	e := &Engine{
		cfg:          cfg,
		songs:        songs,
		stems:        stems,
		setlists:     setlists,
		settings:     settings,
		bus:          NewBus(),
		preloaded:    make(map[string][]string),
		pendingGains: make(map[int]float32),
		done:         make(chan struct{}),
	}

	e.decoder = audio.NewDecoder(cfg.SampleRate)
	e.loader = audio.NewLoader(stems, e.decoder, cfg.DecodeWorkers, func(songID string, current, total int) {
		e.bus.Publish(EventLoadProgress, map[string]any{
			"song_id": songID, "current": current, "total": total,
		})
	})

	persisted, err := settings.GetAudioSettings()
	if err != nil {
		logger.Warn("failed to read audio settings, using defaults", logger.Err(err))
		persisted = model.DefaultAudioSettings()
	}
	budget := persisted.CacheBudgetBytes
	if budget <= 0 {
		budget = cfg.CacheBudgetBytes
	}

	e.cache = audio.NewSongCache(budget, e.loadSong, func(warn error) {
		e.bus.Publish(EventCacheWarning, map[string]any{
			"kind": ErrorKind(warn), "message": warn.Error(),
		})
	})

	e.mixer = audio.NewMixer()

	e.output, err = audio.NewOutputDriver(e.mixer, e.onDeviceLost)
	if err != nil {
		return nil, fmt.Errorf("failed to create output driver: %w", err)
	}

	e.importer = importer.NewImporter(e.decoder, songs, stems, func(current, total int) {
		e.bus.Publish(EventImportProgress, map[string]any{
			"current": current, "total": total,
		})
	})

	if cfg.WatchLibrary {
		e.watcher = watcher.NewLibraryWatcher(stems, func(songID, stemID, path string) {
			e.bus.Publish(EventLibraryMissing, map[string]any{
				"song_id": songID, "stem_id": stemID, "path": path,
			})
		})
	}

	return e, nil
}

// Start opens the output stream from persisted settings and begins
// telemetry forwarding. A missing output device is reported as an
// event, not a startup failure: the library remains usable.
func (e *Engine) Start() error {
	settings, err := e.settings.GetAudioSettings()
	if err != nil {
		settings = model.DefaultAudioSettings()
	}
	if err := e.output.SetSampleRate(settings.SampleRate); err != nil {
		logger.Warn("persisted sample rate rejected", logger.Err(err))
	}
	if err := e.output.Start(settings.OutputDevice, settings.BufferSize); err != nil {
		logger.Error("failed to start audio output", logger.Err(err))
		e.publishAudioError(err)
	}

	if e.watcher != nil {
		if err := e.watcher.Start(); err != nil {
			logger.Warn("library watcher unavailable", logger.Err(err))
			e.watcher = nil
		}
	}

	go e.telemetryLoop()
	return nil
}

// Close stops telemetry, the output stream and the watcher.
func (e *Engine) Close() {
	close(e.done)
	if e.watcher != nil {
		e.watcher.Close()
	}
	e.output.Close()
}

// Subscribe attaches a UI shell to the event stream.
func (e *Engine) Subscribe() (int, <-chan Event) {
	return e.bus.Subscribe()
}

// Unsubscribe detaches a UI shell.
func (e *Engine) Unsubscribe(id int) {
	e.bus.Unsubscribe(id)
}

// loadSong is the cache's miss handler.
func (e *Engine) loadSong(ctx context.Context, songID string) (*audio.DecodedSong, error) {
	song, err := e.loader.Load(ctx, songID)
	if err != nil {
		return nil, err
	}
	e.bus.Publish(EventLoadComplete, map[string]any{"song_id": songID})
	return song, nil
}

func (e *Engine) onDeviceLost() {
	// Keep all engine state; pause and wait for the user to pick a
	// new device.
	e.sendCommand(audio.Command{Kind: audio.CmdPause})
	e.publishAudioError(audio.ErrDeviceDisconnected)
}

func (e *Engine) publishAudioError(err error) {
	e.bus.Publish(EventAudioError, map[string]any{
		"kind": ErrorKind(err), "message": err.Error(),
	})
}

// sendCommand delivers a message to the mixer inbox. The inbox ring
// is single-producer, so all sends funnel through sendMu. On
// overflow, gain updates coalesce (newest value per stem wins) and
// are flushed by the telemetry loop; other commands spin briefly
// since the callback drains the ring every buffer.
func (e *Engine) sendCommand(cmd audio.Command) {
	e.sendMu.Lock()
	defer e.sendMu.Unlock()

	if e.mixer.SendCommand(cmd) {
		return
	}
	if cmd.Kind == audio.CmdSetStemGain {
		e.mu.Lock()
		e.pendingGains[cmd.Stem] = cmd.Gain
		e.mu.Unlock()
		return
	}
	for !e.mixer.SendCommand(cmd) {
		// Inbox is drained within one buffer period (~10 ms).
	}
}

// --- Playback commands -------------------------------------------------

// PlaySong loads a song (from cache or disk), installs it in the
// mixer and starts playback from the beginning. The active song is
// always pinned in the cache.
func (e *Engine) PlaySong(songID string) error {
	if _, err := e.songs.GetSongByID(songID); err != nil {
		return err
	}

	e.cache.Pin(songID)
	song, err := e.cache.GetOrLoad(context.Background(), songID)
	if err != nil {
		e.cache.Unpin(songID)
		e.publishAudioError(err)
		return err
	}

	e.mu.Lock()
	prev := e.activeSongID
	e.activeSongID = songID
	e.activeStems = e.activeStems[:0]
	for _, stem := range song.Stems {
		e.activeStems = append(e.activeStems, stemControl{
			id:   stem.ID,
			gain: stem.Gain,
			mute: stem.Muted,
		})
	}
	e.pendingGains = make(map[int]float32)
	e.mu.Unlock()

	if prev != "" {
		e.cache.Unpin(prev)
	}

	e.sendCommand(audio.Command{Kind: audio.CmdLoadSong, Song: song})
	e.sendCommand(audio.Command{Kind: audio.CmdPlay})
	return nil
}

// PausePlayback pauses the transport, keeping position.
func (e *Engine) PausePlayback() error {
	if !e.hasActiveSong() {
		return audio.ErrNoSongLoaded
	}
	e.sendCommand(audio.Command{Kind: audio.CmdPause})
	return nil
}

// ResumePlayback resumes from pause (or restarts from zero when
// stopped).
func (e *Engine) ResumePlayback() error {
	if !e.hasActiveSong() {
		return audio.ErrNoSongLoaded
	}
	e.sendCommand(audio.Command{Kind: audio.CmdPlay})
	return nil
}

// StopPlayback stops the transport and resets position to zero.
func (e *Engine) StopPlayback() error {
	if !e.hasActiveSong() {
		return audio.ErrNoSongLoaded
	}
	e.sendCommand(audio.Command{Kind: audio.CmdStop})
	return nil
}

// SeekToPosition moves the transport to the given time, clamped to
// the song bounds. Transport state is unchanged.
func (e *Engine) SeekToPosition(seconds float64) error {
	if !e.hasActiveSong() {
		return audio.ErrNoSongLoaded
	}
	if math.IsNaN(seconds) || math.IsInf(seconds, 0) {
		return audio.ErrInvalidSeekPosition
	}
	if seconds < 0 {
		seconds = 0
	}
	frames := int(seconds * float64(e.cfg.SampleRate))
	e.sendCommand(audio.Command{Kind: audio.CmdSeek, Frames: frames})
	return nil
}

// CurrentPosition returns the transport position in seconds.
func (e *Engine) CurrentPosition() float64 {
	return float64(e.mixer.Position()) / float64(e.cfg.SampleRate)
}

// PlaybackState returns the transport state name.
func (e *Engine) PlaybackState() string {
	return e.mixer.State().String()
}

// SetMasterVolume sets the master gain, clamped to [0, 1].
func (e *Engine) SetMasterVolume(v float32) error {
	e.sendCommand(audio.Command{Kind: audio.CmdSetMasterGain, Gain: v})
	return nil
}

func (e *Engine) hasActiveSong() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.activeSongID != ""
}

// --- Stem commands -----------------------------------------------------

// stemIndex resolves a stem id within the active song. Caller holds
// e.mu.
func (e *Engine) stemIndex(stemID string) (int, bool) {
	for i := range e.activeStems {
		if e.activeStems[i].id == stemID {
			return i, true
		}
	}
	return -1, false
}

// SetStemVolume sets a stem's runtime gain (clamped to [0, 1]) and
// persists it as the stem's default.
func (e *Engine) SetStemVolume(stemID string, v float32) error {
	if v < 0 {
		v = 0
	}
	if v > 1 {
		v = 1
	}

	e.mu.Lock()
	if idx, ok := e.stemIndex(stemID); ok {
		e.activeStems[idx].gain = v
		e.mu.Unlock()
		e.sendCommand(audio.Command{Kind: audio.CmdSetStemGain, Stem: idx, Gain: v})
	} else {
		e.mu.Unlock()
	}

	return e.stems.UpdateStemGain(stemID, v)
}

// ToggleStemMute flips a stem's mute flag and persists the new
// default. Returns the new state.
func (e *Engine) ToggleStemMute(stemID string) (bool, error) {
	e.mu.Lock()
	idx, active := e.stemIndex(stemID)
	var muted bool
	if active {
		e.activeStems[idx].mute = !e.activeStems[idx].mute
		muted = e.activeStems[idx].mute
		e.mu.Unlock()
		e.sendCommand(audio.Command{Kind: audio.CmdSetStemMute, Stem: idx, Flag: muted})
	} else {
		e.mu.Unlock()
		stem, err := e.stems.GetStemByID(stemID)
		if err != nil {
			return false, err
		}
		muted = !stem.Muted
	}

	if err := e.stems.UpdateStemMute(stemID, muted); err != nil {
		return muted, err
	}
	return muted, nil
}

// ToggleStemSolo flips a stem's solo flag. Solo is session state and
// is not persisted. Returns the new state.
func (e *Engine) ToggleStemSolo(stemID string) (bool, error) {
	e.mu.Lock()
	idx, active := e.stemIndex(stemID)
	if !active {
		e.mu.Unlock()
		return false, fmt.Errorf("stem %s: %w", stemID, repository.ErrNotFound)
	}
	e.activeStems[idx].solo = !e.activeStems[idx].solo
	solo := e.activeStems[idx].solo
	e.mu.Unlock()

	e.sendCommand(audio.Command{Kind: audio.CmdSetStemSolo, Stem: idx, Flag: solo})
	return solo, nil
}

// --- Library commands --------------------------------------------------

// ImportFiles ingests the given files as a new song.
func (e *Engine) ImportFiles(req importer.Request) (string, error) {
	songID, err := e.importer.Import(req)
	if err != nil {
		return "", err
	}
	if e.watcher != nil {
		if err := e.watcher.Refresh(); err != nil {
			logger.Warn("watcher refresh failed after import", logger.Err(err))
		}
	}
	return songID, nil
}

// GetAllSongs lists the library sorted by the given column.
func (e *Engine) GetAllSongs(sortBy string) ([]*model.Song, error) {
	return e.songs.GetAllSongs(sortBy)
}

// GetSong returns one song.
func (e *Engine) GetSong(songID string) (*model.Song, error) {
	return e.songs.GetSongByID(songID)
}

// GetSongStems returns a song's stems in display order.
func (e *Engine) GetSongStems(songID string) ([]*model.Stem, error) {
	return e.stems.GetStemsBySongID(songID)
}

// SearchSongs searches song name and artist.
func (e *Engine) SearchSongs(query string) ([]*model.Song, error) {
	return e.songs.SearchSongs(query)
}

// FilterSongs applies query/tempo/key filters. Tempo bounds are
// clamped to the valid [20, 300] range.
func (e *Engine) FilterSongs(filter model.SongFilter) ([]*model.Song, error) {
	clampTempo := func(v *float64) *float64 {
		if v == nil {
			return nil
		}
		t := *v
		if t < 20 {
			t = 20
		}
		if t > 300 {
			t = 300
		}
		return &t
	}
	filter.TempoMin = clampTempo(filter.TempoMin)
	filter.TempoMax = clampTempo(filter.TempoMax)
	return e.songs.FilterSongs(filter)
}

// DeleteSong removes a song, its stems and setlist memberships. If
// the song is playing, playback stops first.
func (e *Engine) DeleteSong(songID string) error {
	e.mu.Lock()
	isActive := e.activeSongID == songID
	if isActive {
		e.activeSongID = ""
		e.activeStems = e.activeStems[:0]
	}
	e.mu.Unlock()

	if isActive {
		e.sendCommand(audio.Command{Kind: audio.CmdStop})
		e.sendCommand(audio.Command{Kind: audio.CmdLoadSong, Song: nil})
		e.cache.Unpin(songID)
	}
	e.cache.Evict(songID)

	if err := e.songs.DeleteSong(songID); err != nil {
		return err
	}
	if e.watcher != nil {
		if err := e.watcher.Refresh(); err != nil {
			logger.Warn("watcher refresh failed after delete", logger.Err(err))
		}
	}
	return nil
}

// --- Setlist commands --------------------------------------------------

// CreateSetlist creates an empty, uniquely named setlist.
func (e *Engine) CreateSetlist(name string) (*model.Setlist, error) {
	return e.setlists.CreateSetlist(name)
}

// GetSetlist returns one setlist with its ordered songs.
func (e *Engine) GetSetlist(id string) (*model.Setlist, error) {
	return e.setlists.GetSetlistByID(id)
}

// GetAllSetlists lists every setlist.
func (e *Engine) GetAllSetlists() ([]*model.Setlist, error) {
	return e.setlists.GetAllSetlists()
}

// UpdateSetlist renames a setlist and replaces its contents.
func (e *Engine) UpdateSetlist(id, name string, songIDs []string) error {
	return e.setlists.UpdateSetlist(id, name, songIDs)
}

// DeleteSetlist removes a setlist, releasing any preload pins it held.
func (e *Engine) DeleteSetlist(id string) error {
	e.releasePreload(id)
	return e.setlists.DeleteSetlist(id)
}

// AddSongToSetlist appends a song to a setlist.
func (e *Engine) AddSongToSetlist(setlistID, songID string) error {
	if _, err := e.songs.GetSongByID(songID); err != nil {
		return err
	}
	return e.setlists.AddSongToSetlist(setlistID, songID)
}

// RemoveSongFromSetlist removes a song from a setlist.
func (e *Engine) RemoveSongFromSetlist(setlistID, songID string) error {
	return e.setlists.RemoveSongFromSetlist(setlistID, songID)
}

// ReorderSetlistSongs atomically replaces a setlist's ordering.
func (e *Engine) ReorderSetlistSongs(setlistID string, songIDs []string) error {
	return e.setlists.ReorderSetlistSongs(setlistID, songIDs)
}

// PreloadSetlist decodes and pins every song of a setlist so that
// switching between them during a set never touches the disk. The
// load runs in the background; progress arrives as events. Preloading
// a setlist releases the pins of any previously preloaded one.
func (e *Engine) PreloadSetlist(setlistID string) error {
	setlist, err := e.setlists.GetSetlistByID(setlistID)
	if err != nil {
		return err
	}

	e.mu.Lock()
	for id := range e.preloaded {
		if id != setlistID {
			e.releasePreloadLocked(id)
		}
	}
	alreadyPinned := e.preloaded[setlistID]
	e.preloaded[setlistID] = nil
	e.mu.Unlock()

	for _, songID := range alreadyPinned {
		e.cache.Unpin(songID)
	}

	go func() {
		pinned := make([]string, 0, len(setlist.SongIDs))
		for i, songID := range setlist.SongIDs {
			e.cache.Pin(songID)
			if _, err := e.cache.GetOrLoad(context.Background(), songID); err != nil {
				e.cache.Unpin(songID)
				logger.Error("preload failed",
					logger.F("setlistId", setlistID),
					logger.F("songId", songID),
					logger.Err(err))
				e.publishAudioError(err)
				continue
			}
			pinned = append(pinned, songID)
			e.bus.Publish(EventPreloadProgress, map[string]any{
				"setlist_id": setlistID, "current": i + 1, "total": len(setlist.SongIDs),
			})
		}

		e.mu.Lock()
		e.preloaded[setlistID] = pinned
		e.mu.Unlock()

		e.bus.Publish(EventPreloadComplete, map[string]any{"setlist_id": setlistID})
	}()
	return nil
}

// releasePreload unpins a preloaded setlist's songs.
func (e *Engine) releasePreload(setlistID string) {
	e.mu.Lock()
	e.releasePreloadLocked(setlistID)
	e.mu.Unlock()
}

func (e *Engine) releasePreloadLocked(setlistID string) {
	pinned := e.preloaded[setlistID]
	delete(e.preloaded, setlistID)
	for _, songID := range pinned {
		e.cache.Unpin(songID)
	}
}

// --- Audio configuration commands --------------------------------------

// GetAudioDevices lists the host playback devices.
func (e *Engine) GetAudioDevices() ([]audio.DeviceInfo, error) {
	return e.output.Devices()
}

// SwitchAudioDevice moves the output stream to the named device
// without dropping transport state, and persists the choice.
func (e *Engine) SwitchAudioDevice(name string) error {
	if err := e.output.Switch(name); err != nil {
		e.publishAudioError(err)
		return err
	}
	settings, err := e.settings.GetAudioSettings()
	if err != nil {
		return err
	}
	settings.OutputDevice = name
	return e.settings.SaveAudioSettings(settings)
}

// SetBufferSize recreates the stream with a new buffer size.
func (e *Engine) SetBufferSize(frames int) error {
	if frames < 64 || frames > 4096 {
		return fmt.Errorf("buffer size %d out of range [64, 4096]", frames)
	}
	if err := e.output.SetBufferSize(frames); err != nil {
		return err
	}
	settings, err := e.settings.GetAudioSettings()
	if err != nil {
		return err
	}
	settings.BufferSize = frames
	return e.settings.SaveAudioSettings(settings)
}

// SetSampleRate recreates the stream at a new device rate. Decoded
// data stays at the canonical rate.
func (e *Engine) SetSampleRate(hz int) error {
	if err := e.output.SetSampleRate(hz); err != nil {
		return err
	}
	settings, err := e.settings.GetAudioSettings()
	if err != nil {
		return err
	}
	settings.SampleRate = hz
	return e.settings.SaveAudioSettings(settings)
}

// GetAudioSettings returns the persisted audio configuration.
func (e *Engine) GetAudioSettings() (model.AudioSettings, error) {
	return e.settings.GetAudioSettings()
}

// --- Cache commands ----------------------------------------------------

// GetCacheStats returns cache occupancy.
func (e *Engine) GetCacheStats() audio.CacheStats {
	return e.cache.Stats()
}

// SetCacheSize updates the cache byte budget and persists it.
func (e *Engine) SetCacheSize(bytes int64) error {
	if bytes < 0 {
		return fmt.Errorf("cache budget must be non-negative")
	}
	e.cache.SetBudget(bytes)
	settings, err := e.settings.GetAudioSettings()
	if err != nil {
		return err
	}
	settings.CacheBudgetBytes = bytes
	return e.settings.SaveAudioSettings(settings)
}

// ClearCache evicts every unpinned song.
func (e *Engine) ClearCache() {
	e.cache.Clear()
}
