package assembly

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"
)

// generateID creates a new unique assembly job ID.
// Format: asm-<timestamp>-<random>
// Example: asm-1701432000-a1b2c3d4
func generateID() string {
	timestamp := time.Now().Unix()
	random := make([]byte, 4)
	if _, err := rand.Read(random); err != nil {
		// Fallback to timestamp only if crypto/rand fails
		return fmt.Sprintf("asm-%d", timestamp)
	}
	return fmt.Sprintf("asm-%d-%s", timestamp, hex.EncodeToString(random))
}
