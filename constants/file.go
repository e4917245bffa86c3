package constants

import "strings"

// AllowedExtensions holds the default media extensions accepted for ingestion.
var AllowedExtensions = map[string]struct{}{
	"mp3":  {},
	"mp4":  {},
	"wav":  {},
	"m4a":  {},
	"mov":  {},
	"mkv":  {},
	"webm": {},
}

// NormalizeExt lowercases and trims the dot from a file extension.
func NormalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}
