// Package instance names the running process for logs and lock ownership.
package instance

import "os"

// GetID returns EPIGUARD_INSTANCE_ID, then DYNO, then the hostname, then "local".
func GetID() string {
	for _, key := range []string{"EPIGUARD_INSTANCE_ID", "DYNO"} {
		if id := os.Getenv(key); id != "" {
			return id
		}
	}
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return "local"
}
