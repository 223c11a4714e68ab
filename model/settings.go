package model

// AudioSettings is the persisted audio configuration. An empty
// OutputDevice selects the system default.
type AudioSettings struct {
	OutputDevice     string `json:"outputDevice"`
	BufferSize       int    `json:"bufferSize"` // frames
	SampleRate       int    `json:"sampleRate"` // hz
	Theme            string `json:"theme"`
	CacheBudgetBytes int64  `json:"cacheBudgetBytes"`
}

// DefaultAudioSettings returns the settings written on first run.
func DefaultAudioSettings() AudioSettings {
	return AudioSettings{
		BufferSize:       512,
		SampleRate:       48000,
		Theme:            "dark",
		CacheBudgetBytes: 2 << 30,
	}
}
