package assistant

import "strings"

// DefaultVoicePreference lists name fragments of voices that sound natural.
var DefaultVoicePreference = []string{"Google", "Samantha", "Daniel"}

// PickVoice returns the first voice whose name contains one of preferred,
// falling back to the first voice. ok is false when voices is empty.
func PickVoice(voices []Voice, preferred []string) (Voice, bool) {
	if len(voices) == 0 {
		return Voice{}, false
	}

	for _, v := range voices {
		for _, p := range preferred {
			if p != "" && strings.Contains(v.Name, p) {
				return v, true
			}
		}
	}

	return voices[0], true
}

func findVoice(voices []Voice, name string) (Voice, bool) {
	for _, v := range voices {
		if v.Name == name {
			return v, true
		}
	}

	return Voice{}, false
}
