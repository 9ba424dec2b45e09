package httpapi

import (
	"net/http"
	"path"
	"strings"
)

// normalizeBasePath turns a configured mount point into "" or "/seg[/seg]"
// without a trailing slash.
func normalizeBasePath(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return ""
	}
	cleaned := path.Clean("/" + trimmed)
	if cleaned == "/" {
		return ""
	}
	return cleaned
}

// mountAt serves h under prefix. The bare prefix redirects to the state
// endpoint.
func mountAt(prefix string, h http.Handler) http.Handler {
	if prefix == "" {
		return h
	}
	root := http.NewServeMux()
	root.Handle(prefix+"/", http.StripPrefix(prefix, h))
	root.Handle(prefix, http.RedirectHandler(prefix+"/api/state", http.StatusFound))
	return root
}
