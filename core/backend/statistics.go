// Copyright 2021 Dalarub & Ettrich GmbH - All Rights Reserved
// Unauthorized copying of this file, via any medium is strictly prohibited
// Proprietary and confidential
// info@dalarub.com
//

package backend

import (
	"crypto/sha1"
	"encoding/hex"
	"net/http"
	"sort"
	"strings"

	"github.com/goccy/go-json"

	"github.com/relabs-tech/autorest/core/logger"
	"github.com/relabs-tech/autorest/core/store"
)

// resourceStatistics represents information about a record type
type resourceStatistics struct {
	Resource   string `json:"resource"`
	Collection string `json:"collection"`
	Count      int64  `json:"count"`
}

// statisticsDetails represents information about the backend resources
type statisticsDetails struct {
	Resources []resourceStatistics `json:"resources"`
}

func (b *Backend) statistics(w http.ResponseWriter, r *http.Request) {
	var names sort.StringSlice
	for name := range b.resources {
		names = append(names, name)
	}
	// Sort the resources so that ETag is unchanged regardless of the order of resources
	names.Sort()

	s := statisticsDetails{Resources: []resourceStatistics{}}
	for _, name := range names {
		collection := b.resources[name].recordType.Collection()
		count, err := b.store.Count(r.Context(), collection, store.Document{})
		if err != nil {
			logger.FromContext(r.Context()).WithError(err).Errorln("Error 4028: Count")
			http.Error(w, "Error 4028", http.StatusInternalServerError)
			return
		}
		s.Resources = append(s.Resources, resourceStatistics{
			Resource:   name,
			Collection: collection,
			Count:      count,
		})
	}

	jsonData, _ := json.Marshal(s)
	etag := bytesToEtag(jsonData)
	w.Header().Set("Etag", etag)
	if ifNoneMatchFound(r.Header.Get("If-None-Match"), etag) {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Write(jsonData)
}

func bytesToEtag(b []byte) string {
	hash := sha1.Sum(b)
	return "\"" + hex.EncodeToString(hash[:]) + "\""
}

// ifNoneMatchFound returns true if etag is found in ifNoneMatch. The format of ifNoneMatch is one
// of the following:
// If-None-Match: "<etag_value>"
// If-None-Match: "<etag_value>", "<etag_value>", …
// If-None-Match: *
func ifNoneMatchFound(ifNoneMatch, etag string) bool {
	ifNoneMatch = strings.Trim(ifNoneMatch, " ")
	if len(ifNoneMatch) == 0 {
		return false
	}
	if ifNoneMatch == "*" {
		return true
	}
	for _, s := range strings.Split(ifNoneMatch, ",") {
		s = strings.Trim(s, " \"")
		t := strings.Trim(etag, " \"")
		if s == t {
			return true
		}
	}
	return false
}
