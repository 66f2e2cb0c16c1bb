package publish

import (
	"path/filepath"
	"strings"
)

var contentTypes = map[string]string{
	".png":  "image/png",
	".pdf":  "application/pdf",
	".xlsx": "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	".svg":  "image/svg+xml",
	".md":   "text/markdown",
}

// ContentType maps an artifact file name to its attachment content type.
func ContentType(name string) string {
	if ct, ok := contentTypes[strings.ToLower(filepath.Ext(name))]; ok {
		return ct
	}
	return "application/octet-stream"
}
