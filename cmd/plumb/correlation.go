package main

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"sync/atomic"
)

// The correlation id ties one invocation's JSON output to its operational
// stream entries. It is derived from argv, so re-running the same plumb
// command yields the same id.
var activeCorrelationID atomic.Value

func init() {
	activeCorrelationID.Store("")
}

// newCorrelationID hashes the normalized argv down to a 12-byte hex id.
func newCorrelationID(arguments []string) string {
	if len(arguments) == 0 {
		return strings.Repeat("0", 24)
	}
	hasher := sha256.New()
	for _, argument := range arguments {
		_, _ = hasher.Write([]byte(strings.TrimSpace(argument)))
		_, _ = hasher.Write([]byte{0x1f})
	}
	return hex.EncodeToString(hasher.Sum(nil)[:12])
}

func setCurrentCorrelationID(correlationID string) {
	activeCorrelationID.Store(strings.TrimSpace(correlationID))
}

func currentCorrelationID() string {
	value, _ := activeCorrelationID.Load().(string)
	return value
}
