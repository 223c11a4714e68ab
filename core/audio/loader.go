package audio

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"stemdeck/logger"
	"stemdeck/model"

	"golang.org/x/sync/errgroup"
)

// StemSource supplies a song's stem list. Satisfied by the stem
// repository.
type StemSource interface {
	GetStemsBySongID(songID string) ([]*model.Stem, error)
}

// ProgressFunc is invoked after each stem finishes decoding.
type ProgressFunc func(songID string, current, total int)

// Loader materializes songs as DecodedSong via bounded parallel
// decode. Decode order across stems is irrelevant; results are
// assembled back into display order.
type Loader struct {
	stems    StemSource
	decoder  *Decoder
	workers  int
	progress ProgressFunc
}

// NewLoader creates a song loader. progress may be nil.
func NewLoader(stems StemSource, decoder *Decoder, workers int, progress ProgressFunc) *Loader {
	if workers < 1 {
		workers = 1
	}
	return &Loader{stems: stems, decoder: decoder, workers: workers, progress: progress}
}

// Load decodes every stem of the song. A single stem failure cancels
// the remaining decodes and fails the whole load: partial stem sets
// would break the sample-lock guarantee between stems.
func (l *Loader) Load(ctx context.Context, songID string) (*DecodedSong, error) {
	stems, err := l.stems.GetStemsBySongID(songID)
	if err != nil {
		return nil, fmt.Errorf("failed to list stems for song %s: %w", songID, err)
	}
	if len(stems) == 0 {
		return nil, &SongLoadError{SongID: songID, Err: fmt.Errorf("song has no stems")}
	}

	started := time.Now()
	decoded := make([]DecodedStem, len(stems))
	var completed atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(l.workers)

	for i, stem := range stems {
		g.Go(func() error {
			// The cancel flag is polled between stems, not mid-stem.
			if err := gctx.Err(); err != nil {
				return err
			}

			pcm, frames, err := l.decoder.DecodeFile(stem.FilePath)
			if err != nil {
				return &SongLoadError{SongID: songID, StemID: stem.ID, Err: err}
			}

			decoded[i] = DecodedStem{
				ID:     stem.ID,
				Name:   stem.Name,
				Gain:   stem.Gain,
				Muted:  stem.Muted,
				PCM:    pcm,
				Frames: frames,
			}

			if l.progress != nil {
				l.progress(songID, int(completed.Add(1)), len(stems))
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	song := &DecodedSong{ID: songID, Stems: decoded}
	logger.Info("song decoded",
		logger.F("songId", songID),
		logger.F("stems", len(stems)),
		logger.F("bytes", song.Bytes()),
		logger.F("elapsed", time.Since(started)))
	return song, nil
}
