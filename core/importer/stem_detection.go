package importer

import (
	"path/filepath"
	"strings"
	"unicode"
)

// stemKeyword maps a filename keyword to its display name. Ordered by
// priority: the first match wins.
type stemKeyword struct {
	keyword string
	display string
}

var stemKeywords = []stemKeyword{
	{"vocals", "Vocals"},
	{"vox", "Vox"},
	{"drums", "Drums"},
	{"bass", "Bass"},
	{"keys", "Keys"},
	{"keyboard", "Keyboard"},
	{"piano", "Piano"},
	{"guitar", "Guitar"},
	{"synth", "Synth"},
	{"pad", "Pad"},
	{"strings", "Strings"},
	{"orchestra", "Orchestra"},
	{"click", "Click"},
	{"guide", "Guide"},
}

func matchKeyword(s string) (string, bool) {
	for _, k := range stemKeywords {
		if strings.Contains(s, k.keyword) {
			return k.display, true
		}
	}
	return "", false
}

// DetectStemName derives a stem display name from a filename using
// the common stem keywords. It tries, in order: the segment after
// " - ", the segment after the last underscore, a parenthesised
// segment, then the whole name; unmatched names fall back to the
// cleaned filename.
func DetectStemName(filename string) string {
	base := strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))
	lower := strings.ToLower(base)

	// "Song Name - Vocals.wav"
	if parts := strings.SplitN(lower, " - ", 2); len(parts) == 2 {
		if name, ok := matchKeyword(parts[1]); ok {
			return name
		}
	}

	// "song_vocals.wav"
	if idx := strings.LastIndex(lower, "_"); idx >= 0 {
		if name, ok := matchKeyword(lower[idx+1:]); ok {
			return name
		}
	}

	// "Song (Vocals).wav"
	if start := strings.Index(lower, "("); start >= 0 {
		if end := strings.Index(lower[start:], ")"); end > 0 {
			if name, ok := matchKeyword(lower[start+1 : start+end]); ok {
				return name
			}
		}
	}

	// Bare keyword anywhere.
	if name, ok := matchKeyword(lower); ok {
		return name
	}

	return cleanFilename(base)
}

// cleanFilename strips trailing counters and capitalizes.
func cleanFilename(name string) string {
	cleaned := strings.TrimRightFunc(name, func(r rune) bool {
		return unicode.IsDigit(r) || r == '_' || r == ' '
	})
	if len(cleaned) < 2 {
		cleaned = name
	}
	if cleaned == "" {
		return cleaned
	}
	runes := []rune(cleaned)
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}
