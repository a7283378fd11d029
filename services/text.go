package services

import "strings"

// CleanText trims surrounding whitespace and keeps everything else as
// submitted. An empty result means the submission carries no text.
func CleanText(raw string) string {
	return strings.TrimSpace(raw)
}
