// Copyright 2021 Dalarub & Ettrich GmbH - All Rights Reserved
// Unauthorized copying of this file, via any medium is strictly prohibited
// Proprietary and confidential
// info@dalarub.com
//

package backend

import (
	"fmt"
	"strings"

	"github.com/goccy/go-json"
)

// Configuration holds a complete backend configuration
type Configuration struct {
	// Path is the mount path of all routes. It always ends with a slash.
	Path string `json:"path"`
	// Pluralize derives route prefixes from the plural of the type name
	Pluralize bool `json:"pluralize"`
	// Lowercase derives route prefixes from the lower-cased type name. Defaults to true.
	Lowercase bool `json:"lowercase"`
	// Exclude lists record types which get no routes
	Exclude []string `json:"exclude"`
	// Puts enables PUT as an alias for create and update
	Puts bool `json:"puts"`
	// Relate enables the maintenance of inverse references on create and delete
	Relate bool `json:"relate"`
	// CaseSensitive makes static route segments case sensitive. Defaults to true.
	CaseSensitive bool `json:"case_sensitive"`
	// Strict distinguishes routes with and without trailing slash. Defaults to true.
	Strict bool `json:"strict"`
	// CORS answers preflight requests and adds CORS headers to all responses
	CORS *corsConfiguration `json:"cors"`
	// Compress gzips responses for clients accepting it
	Compress bool `json:"compress"`
	// Statistics adds GET {path}_statistics
	Statistics bool `json:"statistics"`
}

// corsConfiguration describes the CORS policy
type corsConfiguration struct {
	Origins []string `json:"origins"`
	Headers []string `json:"headers"`
	MaxAge  int      `json:"max_age"`
}

// ParseConfiguration parses a JSON configuration and applies the defaults. An empty
// string yields the default configuration.
func ParseConfiguration(config string) (*Configuration, error) {
	c := Configuration{
		Path:          "/",
		Lowercase:     true,
		CaseSensitive: true,
		Strict:        true,
	}
	if strings.TrimSpace(config) != "" {
		if err := json.Unmarshal([]byte(config), &c); err != nil {
			return nil, fmt.Errorf("parse error in backend configuration: %w", err)
		}
	}
	if !strings.HasPrefix(c.Path, "/") {
		c.Path = "/" + c.Path
	}
	if !strings.HasSuffix(c.Path, "/") {
		c.Path += "/"
	}
	return &c, nil
}

func (c *Configuration) excluded(typeName string) bool {
	for _, name := range c.Exclude {
		if name == typeName {
			return true
		}
	}
	return false
}
