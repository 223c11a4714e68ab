package engine

import (
	"time"

	"stemdeck/core/audio"
)

const (
	telemetryPollInterval = 50 * time.Millisecond
	positionInterval      = 100 * time.Millisecond // ~10 Hz
	levelsInterval        = 50 * time.Millisecond  // ~20 Hz
)

// telemetryLoop drains the mixer's outbox and converts snapshots into
// throttled UI events. It also flushes gain updates that were
// coalesced during inbox overflow.
func (e *Engine) telemetryLoop() {
	ticker := time.NewTicker(telemetryPollInterval)
	defer ticker.Stop()

	var (
		lastState    = audio.StateStopped
		lastSession  uint32
		haveState    bool
		lastPosition time.Time
		lastLevels   time.Time
	)

	for {
		select {
		case <-e.done:
			return
		case <-ticker.C:
		}

		e.flushPendingGains()

		// Drain everything queued, keeping only the newest snapshot;
		// state transitions are never skipped.
		var latest audio.Telemetry
		have := false
		for {
			t, ok := e.mixer.PollTelemetry()
			if !ok {
				break
			}
			if have && (t.State != latest.State || t.Session != latest.Session) {
				e.emitSnapshot(latest, &lastState, &lastSession, &haveState, &lastPosition, &lastLevels)
			}
			latest = t
			have = true
		}
		if have {
			e.emitSnapshot(latest, &lastState, &lastSession, &haveState, &lastPosition, &lastLevels)
		}
	}
}

func (e *Engine) emitSnapshot(t audio.Telemetry,
	lastState *audio.State, lastSession *uint32, haveState *bool,
	lastPosition, lastLevels *time.Time,
) {
	now := time.Now()

	if !*haveState || t.State != *lastState || t.Session != *lastSession {
		*haveState = true
		*lastState = t.State
		*lastSession = t.Session
		e.bus.Publish(EventPlaybackState, map[string]any{
			"state": t.State.String(),
		})
	}

	if now.Sub(*lastPosition) >= positionInterval {
		*lastPosition = now
		e.bus.Publish(EventPlaybackPosition, map[string]any{
			"seconds": float64(t.Frames) / float64(e.cfg.SampleRate),
		})
	}

	if t.State == audio.StatePlaying && now.Sub(*lastLevels) >= levelsInterval {
		*lastLevels = now

		e.mu.Lock()
		levels := make(map[string]float32, len(e.activeStems))
		for i := range e.activeStems {
			if i >= t.StemCount {
				break
			}
			levels[e.activeStems[i].id] = t.StemPeaks[i]
		}
		e.mu.Unlock()

		e.bus.Publish(EventPlaybackLevels, map[string]any{
			"levels": levels,
			"master": t.Master,
		})
	}
}

// flushPendingGains retries gain commands that hit a full inbox.
func (e *Engine) flushPendingGains() {
	e.mu.Lock()
	if len(e.pendingGains) == 0 {
		e.mu.Unlock()
		return
	}
	pending := e.pendingGains
	e.pendingGains = make(map[int]float32)
	e.mu.Unlock()

	for stem, gain := range pending {
		e.sendMu.Lock()
		sent := e.mixer.SendCommand(audio.Command{Kind: audio.CmdSetStemGain, Stem: stem, Gain: gain})
		e.sendMu.Unlock()
		if !sent {
			e.mu.Lock()
			if _, exists := e.pendingGains[stem]; !exists {
				e.pendingGains[stem] = gain
			}
			e.mu.Unlock()
		}
	}
}
