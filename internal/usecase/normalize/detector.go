package normalize

// ScriptDetector classifies input by Unicode script ranges. The corpus is
// indexed in English, so the only distinction that matters downstream is
// "English" versus "Japanese" (hiragana, katakana, or CJK ideographs).
type ScriptDetector struct{}

// Detect returns "ja" when the text contains any Japanese script rune,
// otherwise "en".
func (ScriptDetector) Detect(text string) string {
	for _, r := range text {
		switch {
		case r >= 0x3040 && r <= 0x309F: // hiragana
			return "ja"
		case r >= 0x30A0 && r <= 0x30FF: // katakana
			return "ja"
		case r >= 0x4E00 && r <= 0x9FFF: // CJK ideographs
			return "ja"
		}
	}
	return "en"
}
