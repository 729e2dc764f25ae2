package backend

import (
	"net/http"

	"github.com/gorilla/handlers"
)

// withCompression gzips or deflates responses for clients accepting it, if enabled
func (b *Backend) withCompression(h http.Handler) http.Handler {
	if !b.config.Compress {
		return h
	}
	return handlers.CompressHandler(h)
}
