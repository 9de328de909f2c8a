package timezone

import (
	"os"
	"time"

	log "github.com/sirupsen/logrus"
)

var currentLocation *time.Location

// Initialize sets the process timezone from the TZ environment variable.
// It should be called once at startup; Now falls back to lazy
// initialization otherwise.
func Initialize() {
	tzName := "UTC"
	if envTZ := os.Getenv("TZ"); envTZ != "" {
		tzName = envTZ
	}

	loc, err := time.LoadLocation(tzName)
	if err != nil {
		log.Warnf("Failed to load timezone %s from environment: %v. Falling back to UTC.", tzName, err)
		currentLocation = time.UTC
		return
	}

	log.Infof("Successfully initialized timezone to %s", tzName)
	currentLocation = loc
}

// Now returns the current time in the configured timezone.
func Now() time.Time {
	if currentLocation == nil {
		Initialize()
	}
	return time.Now().In(currentLocation)
}

// Format formats t in the configured timezone.
func Format(t time.Time, layout string) string {
	if currentLocation == nil {
		Initialize()
	}
	return t.In(currentLocation).Format(layout)
}
