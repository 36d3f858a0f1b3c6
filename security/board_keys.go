package security

import (
	"golang.org/x/crypto/bcrypt"

	"queue-system/internal/status"
)

// BoardKeyChecker authenticates lobby display boards. A board presents a
// shared key; the checker compares it against the configured bcrypt hashes.
// With no hashes configured the check is disabled and every board passes.
type BoardKeyChecker struct {
	hashes []string
}

func NewBoardKeyChecker(hashes []string) *BoardKeyChecker {
	return &BoardKeyChecker{hashes: hashes}
}

// Enabled reports whether board access is restricted at all.
func (c *BoardKeyChecker) Enabled() bool {
	return len(c.hashes) > 0
}

// Check returns nil when the key matches any configured hash, or
// status.ErrBoardKeyInvalid otherwise. Disabled checkers accept everything.
func (c *BoardKeyChecker) Check(key string) error {
	if !c.Enabled() {
		return nil
	}
	for _, hash := range c.hashes {
		if bcrypt.CompareHashAndPassword([]byte(hash), []byte(key)) == nil {
			return nil
		}
	}
	return status.ErrBoardKeyInvalid
}
