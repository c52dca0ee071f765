package http1

import (
	"path"
	"strings"
)

// DefaultContentType is used for unknown or missing extensions.
const DefaultContentType = "application/octet-stream"

var contentTypes = map[string]string{
	".html": "text/html; charset=UTF-8",
	".htm":  "text/html; charset=UTF-8",
	".txt":  "text/plain; charset=UTF-8",
	".css":  "text/css; charset=UTF-8",
	".js":   "application/javascript; charset=UTF-8",
	".json": "application/json; charset=UTF-8",
	".xml":  "application/xml; charset=UTF-8",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
	".svg":  "image/svg+xml",
	".ico":  "image/x-icon",
	".webp": "image/webp",
}

// ContentTypeFor returns the media type for a file name based on its
// extension (case-insensitive).
func ContentTypeFor(name string) string {
	ext := strings.ToLower(path.Ext(name))
	if ct, ok := contentTypes[ext]; ok {
		return ct
	}
	return DefaultContentType
}
