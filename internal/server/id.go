package server

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"
)

// generateRequestID creates a unique pipeline request ID.
// Format: med-<timestamp>-<random>
func generateRequestID() string {
	timestamp := time.Now().Unix()
	random := make([]byte, 4)
	if _, err := rand.Read(random); err != nil {
		return fmt.Sprintf("med-%d", timestamp)
	}
	return fmt.Sprintf("med-%d-%s", timestamp, hex.EncodeToString(random))
}
