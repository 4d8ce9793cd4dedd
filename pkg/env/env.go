// Package env reads the few settings needed before config.Load runs, such as
// the log format of the migrate and cron binaries.
package env

import (
	"os"
	"slices"
	"strconv"
	"strings"
)

// Get returns the trimmed value of key, or fallback when it is unset or blank.
func Get(key, fallback string) string {
	if val := strings.TrimSpace(os.Getenv(key)); val != "" {
		return val
	}
	return fallback
}

// Bool parses key with strconv.ParseBool. Unparsable values yield fallback.
func Bool(key string, fallback bool) bool {
	val, err := strconv.ParseBool(Get(key, ""))
	if err != nil {
		return fallback
	}
	return val
}

// OneOf returns the lowercased value of key when it is one of allowed.
func OneOf(key, fallback string, allowed ...string) string {
	val := strings.ToLower(Get(key, fallback))
	if slices.Contains(allowed, val) {
		return val
	}
	return fallback
}
