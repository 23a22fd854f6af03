package store

import (
	"fmt"
	"strings"
)

// MaxSessionIDLength matches the VARCHAR(255) id column of the SQL stores.
const MaxSessionIDLength = 255

// ValidateSessionID checks that a session ID is non-empty, single-line and
// fits the storage column.
func ValidateSessionID(id string) error {
	if id == "" {
		return fmt.Errorf("session id is empty")
	}
	if len(id) > MaxSessionIDLength {
		return fmt.Errorf("session id too long: %d chars (max %d)", len(id), MaxSessionIDLength)
	}
	if strings.ContainsAny(id, "\r\n\x00") {
		return fmt.Errorf("session id contains control characters")
	}
	return nil
}
