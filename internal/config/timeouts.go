package config

import (
	"os"
	"strconv"
	"time"
)

// Timeouts holds the configurable waits and retry limits.
type Timeouts struct {
	Operation          time.Duration // Deadline for one whole fleet operation
	Node               time.Duration // Deadline for one node's create or delete
	CreatePollInterval time.Duration // Interval between create operation polls
	DeletePollInterval time.Duration // Interval between delete operation polls
	MaxPollErrors      int           // Consecutive failed polls before giving up
	ImageWait          time.Duration // Wait for a snapshot image to become available
	RetryMaxAttempts   int           // Maximum retries of a rejected API request
	RetryInitialDelay  time.Duration // Initial delay between API retries
}

// LoadTimeouts loads timeouts from environment variables. Unset or
// invalid values fall back to the default.
//
// Environment Variables:
//   - HDISTCC_TIMEOUT_OPERATION (default: 30m)
//   - HDISTCC_TIMEOUT_NODE (default: 10m)
//   - HDISTCC_POLL_INTERVAL_CREATE (default: 2s)
//   - HDISTCC_POLL_INTERVAL_DELETE (default: 1s)
//   - HDISTCC_MAX_POLL_ERRORS (default: 5)
//   - HDISTCC_TIMEOUT_IMAGE_WAIT (default: 5m)
//   - HDISTCC_RETRY_MAX_ATTEMPTS (default: 5)
//   - HDISTCC_RETRY_INITIAL_DELAY (default: 1s)
func LoadTimeouts() *Timeouts {
	return &Timeouts{
		Operation:          parseDuration("HDISTCC_TIMEOUT_OPERATION", 30*time.Minute),
		Node:               parseDuration("HDISTCC_TIMEOUT_NODE", 10*time.Minute),
		CreatePollInterval: parseDuration("HDISTCC_POLL_INTERVAL_CREATE", 2*time.Second),
		DeletePollInterval: parseDuration("HDISTCC_POLL_INTERVAL_DELETE", time.Second),
		MaxPollErrors:      parseInt("HDISTCC_MAX_POLL_ERRORS", 5),
		ImageWait:          parseDuration("HDISTCC_TIMEOUT_IMAGE_WAIT", 5*time.Minute),
		RetryMaxAttempts:   parseInt("HDISTCC_RETRY_MAX_ATTEMPTS", 5),
		RetryInitialDelay:  parseDuration("HDISTCC_RETRY_INITIAL_DELAY", time.Second),
	}
}

func parseDuration(envVar string, defaultVal time.Duration) time.Duration {
	d, err := time.ParseDuration(os.Getenv(envVar))
	if err != nil || d <= 0 {
		return defaultVal
	}
	return d
}

func parseInt(envVar string, defaultVal int) int {
	i, err := strconv.Atoi(os.Getenv(envVar))
	if err != nil || i <= 0 {
		return defaultVal
	}
	return i
}
