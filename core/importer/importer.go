package importer

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"stemdeck/core/audio"
	"stemdeck/logger"
	"stemdeck/model"
	"stemdeck/repository"

	"github.com/google/uuid"
)

var (
	// ErrNoFiles is returned for an import with zero files.
	ErrNoFiles = errors.New("import requires at least one file")
	// ErrFileNotFound mirrors the decoder's file error for paths that
	// disappear between selection and import.
	ErrFileNotFound = errors.New("file not found")
	// ErrDuplicateSource is returned when a file is already part of
	// the library (or repeated within one import).
	ErrDuplicateSource = errors.New("duplicate source file")
	// ErrMetadataExtractionFailed wraps probe failures.
	ErrMetadataExtractionFailed = errors.New("metadata extraction failed")
)

// Request describes one import: a set of files grouped as the stems
// of a single new song.
type Request struct {
	Paths         []string
	Title         string
	Artist        string
	Key           string
	TimeSignature string
	Tempo         *float64
}

// ProgressFunc reports per-file progress during an import.
type ProgressFunc func(current, total int)

// Importer ingests user-chosen audio files into the library. Files
// are never copied; the store records absolute paths.
type Importer struct {
	prober   *audio.Decoder
	songs    repository.SongRepository
	stems    repository.StemRepository
	progress ProgressFunc
}

// NewImporter creates an import pipeline. progress may be nil.
func NewImporter(prober *audio.Decoder, songs repository.SongRepository, stems repository.StemRepository, progress ProgressFunc) *Importer {
	return &Importer{prober: prober, songs: songs, stems: stems, progress: progress}
}

// Import groups the given files as one new song and persists it
// atomically: if any stem fails extraction or insert, nothing is
// created.
func (im *Importer) Import(req Request) (string, error) {
	if len(req.Paths) == 0 {
		return "", ErrNoFiles
	}
	if req.Title == "" {
		return "", fmt.Errorf("import requires a title")
	}

	known, err := im.stems.GetAllSourceHashes()
	if err != nil {
		return "", fmt.Errorf("failed to load known source hashes: %w", err)
	}

	// Stable stem ordering regardless of picker order.
	paths := append([]string(nil), req.Paths...)
	sort.Strings(paths)

	songID := uuid.NewString()
	stems := make([]*model.Stem, 0, len(paths))
	maxDuration := 0.0

	for i, path := range paths {
		abs, err := filepath.Abs(path)
		if err != nil {
			return "", fmt.Errorf("failed to resolve %s: %w", path, err)
		}

		hash, err := SourceHash(abs)
		if err != nil {
			return "", err
		}
		if _, dup := known[hash]; dup {
			return "", fmt.Errorf("%s: %w", abs, ErrDuplicateSource)
		}
		known[hash] = struct{}{}

		info, err := im.prober.Probe(abs)
		if err != nil {
			return "", fmt.Errorf("%s: %w: %v", abs, ErrMetadataExtractionFailed, err)
		}

		stat, err := os.Stat(abs)
		if err != nil {
			return "", fmt.Errorf("failed to stat %s: %w", abs, err)
		}

		channels := info.Channels
		if channels > 2 {
			// Sources with more channels are downmixed to stereo at
			// decode time; the stored stem reflects that.
			channels = 2
		}

		stems = append(stems, &model.Stem{
			ID:         uuid.NewString(),
			SongID:     songID,
			Name:       DetectStemName(abs),
			FilePath:   abs,
			FileSize:   stat.Size(),
			SampleRate: info.SampleRate,
			Channels:   channels,
			Duration:   info.Duration,
			Gain:       0.8,
			Position:   i,
			SourceHash: hash,
		})
		if info.Duration > maxDuration {
			maxDuration = info.Duration
		}

		if im.progress != nil {
			im.progress(i+1, len(paths))
		}
	}

	song := &model.Song{
		ID:            songID,
		Name:          req.Title,
		Artist:        req.Artist,
		Key:           req.Key,
		Tempo:         req.Tempo,
		TimeSignature: req.TimeSignature,
		Duration:      maxDuration,
	}

	if err := im.songs.CreateSongWithStems(song, stems); err != nil {
		return "", fmt.Errorf("failed to persist import: %w", err)
	}

	logger.Info("imported song",
		logger.F("songId", songID),
		logger.F("title", req.Title),
		logger.F("stems", len(stems)))
	return songID, nil
}
