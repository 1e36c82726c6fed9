package orchestrator

import (
	"fmt"
	"os"
)

// consumerName returns this process's name for the index'th stream
// consumer task. With no override it is parser-<host>-<pid>-<index>, so
// the stream's per-consumer pending set stays disjoint across a fleet of
// orchestrators each running multiple consumer goroutines; an operator
// override (CONSUMER_NAME) replaces the auto-generated prefix but keeps
// the per-index suffix so multiple consumer goroutines in the same
// process still stay disjoint from each other.
func consumerName(override string, index int) string {
	if override != "" {
		return fmt.Sprintf("%s-%d", override, index)
	}
	host, err := os.Hostname()
	if err != nil {
		host = "unknown"
	}
	return fmt.Sprintf("parser-%s-%d-%d", host, os.Getpid(), index)
}
