package main

import (
	"strings"
	"sync/atomic"

	"github.com/google/uuid"
)

// correlationNamespace scopes name-based ids to this CLI.
var correlationNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://github.com/mad-lab-fau/carwatch"))

var correlationIDValue atomic.Value

func init() {
	correlationIDValue.Store("")
}

// newCorrelationID derives a stable id from the normalized invocation so the
// same command line always reports the same id.
func newCorrelationID(arguments []string) string {
	if len(arguments) == 0 {
		return uuid.Nil.String()
	}
	normalized := make([]string, 0, len(arguments))
	for _, argument := range arguments {
		normalized = append(normalized, strings.TrimSpace(argument))
	}
	return uuid.NewSHA1(correlationNamespace, []byte(strings.Join(normalized, "\x1f"))).String()
}

func setCurrentCorrelationID(correlationID string) {
	correlationIDValue.Store(strings.TrimSpace(correlationID))
}

func currentCorrelationID() string {
	value, _ := correlationIDValue.Load().(string)
	return value
}
