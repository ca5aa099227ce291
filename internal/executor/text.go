// internal/executor/text.go
package executor

// ContainsCJK reports whether text holds CJK ideographs, hiragana or katakana.
// Such text cannot be typed through synthesized key events and is pasted instead.
func ContainsCJK(text string) bool {
	for _, r := range text {
		switch {
		case r >= 0x4E00 && r <= 0x9FFF:
			return true
		case r >= 0x3040 && r <= 0x309F:
			return true
		case r >= 0x30A0 && r <= 0x30FF:
			return true
		}
	}
	return false
}
