package common

import (
	"os"

	"github.com/apex/log"
)

// Component base structure for a Component
type Component struct {
	LogTags log.Fields
}

// CopyLogTags helper function for creating a copy of the log tags, which can then be
// extended for a single operation without altering the component tags
func (c Component) CopyLogTags() log.Fields {
	result := log.Fields{}
	for k, v := range c.LogTags {
		result[k] = v
	}
	return result
}

// GetUnitTestNatsURI helper function to read the NATS server used by unit tests. An
// empty string means no server is available.
func GetUnitTestNatsURI() string {
	return os.Getenv("NATS_URI")
}
