package engine

import (
	"errors"

	"stemdeck/core/audio"
	"stemdeck/core/importer"
	"stemdeck/db"
	"stemdeck/repository"
)

// ErrorKind maps an engine error to its stable wire name. UI shells
// switch on these; messages are for humans only.
func ErrorKind(err error) string {
	var loadErr *audio.SongLoadError
	switch {
	case err == nil:
		return ""
	case errors.Is(err, audio.ErrFileNotFound):
		return "FileNotFound"
	case errors.Is(err, audio.ErrUnsupportedFormat):
		return "UnsupportedFormat"
	case errors.Is(err, audio.ErrCorruptStream):
		return "CorruptStream"
	case errors.Is(err, importer.ErrDuplicateSource):
		return "DuplicateSource"
	case errors.Is(err, importer.ErrFileNotFound):
		return "FileNotFound"
	case errors.Is(err, importer.ErrMetadataExtractionFailed):
		return "MetadataExtractionFailed"
	case errors.As(err, &loadErr):
		return "SongLoadFailed"
	case errors.Is(err, audio.ErrDeviceUnavailable):
		return "DeviceUnavailable"
	case errors.Is(err, audio.ErrDeviceDisconnected):
		return "DeviceDisconnected"
	case errors.Is(err, audio.ErrSampleRateUnsupported):
		return "SampleRateUnsupported"
	case errors.Is(err, audio.ErrNoSongLoaded):
		return "NoSongLoaded"
	case errors.Is(err, audio.ErrInvalidSeekPosition):
		return "InvalidSeekPosition"
	case errors.Is(err, audio.ErrBudgetBelowPinnedSet):
		return "BudgetBelowPinnedSet"
	case errors.Is(err, repository.ErrNotFound):
		return "NotFound"
	case errors.Is(err, repository.ErrUniqueViolation):
		return "UniqueViolation"
	case errors.Is(err, db.ErrStoreCorrupt):
		return "StoreCorrupt"
	default:
		return "IoError"
	}
}
