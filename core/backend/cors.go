// Copyright 2021 Dalarub & Ettrich GmbH - All Rights Reserved
// Unauthorized copying of this file, via any medium is strictly prohibited
// Proprietary and confidential
// info@dalarub.com
//

package backend

import (
	"net/http"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
)

var corsDefaultHeaders = []string{"Accept", "Content-Type", "Content-Length", "Accept-Encoding", "Authorization", "If-None-Match", "X-Request-Id"}

// handleCORS answers preflight requests and sets the CORS headers for all routes of router
func (b *Backend) handleCORS(router *mux.Router) {
	c := b.config.CORS
	origins := c.Origins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	headers := c.Headers
	if len(headers) == 0 {
		headers = corsDefaultHeaders
	}
	maxAge := c.MaxAge
	if maxAge == 0 {
		maxAge = 86400 // 24 hours
	}
	router.Use(handlers.CORS(
		handlers.AllowedOrigins(origins),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions}),
		handlers.AllowedHeaders(headers),
		handlers.ExposedHeaders([]string{"Etag", "X-Request-Id"}),
		handlers.MaxAge(maxAge),
		handlers.OptionStatusCode(http.StatusNoContent),
	))
}
