package audio

import "errors"

// Source-file and decode errors.
var (
	ErrFileNotFound      = errors.New("audio file not found")
	ErrUnsupportedFormat = errors.New("unsupported audio format")
	ErrCorruptStream     = errors.New("corrupt audio stream")
)

// Device errors.
var (
	ErrDeviceUnavailable     = errors.New("audio device unavailable")
	ErrDeviceDisconnected    = errors.New("audio device disconnected")
	ErrSampleRateUnsupported = errors.New("sample rate unsupported by device")
)

// Playback state errors.
var (
	ErrNoSongLoaded        = errors.New("no song loaded")
	ErrInvalidSeekPosition = errors.New("invalid seek position")
)

// ErrBudgetBelowPinnedSet is a warning: the cache byte budget is
// smaller than the pinned working set, so the effective budget is
// raised to cover the pins.
var ErrBudgetBelowPinnedSet = errors.New("cache budget below pinned set")

// SongLoadError wraps the first stem failure that aborted a song load.
// Partial loads are never returned; a single stem failure fails the
// whole song.
type SongLoadError struct {
	SongID string
	StemID string
	Err    error
}

func (e *SongLoadError) Error() string {
	return "song load failed for " + e.SongID + " (stem " + e.StemID + "): " + e.Err.Error()
}

func (e *SongLoadError) Unwrap() error {
	return e.Err
}
