package common

import (
	"fmt"
	"time"
)

// Account is the identity used for authorization and trade attribution.
// The password credential is opaque to the core: the core only ever
// compares it, never hashes or derives it.
type Account struct {
	ID           uint64
	Username     string
	Password     string
	RegisteredAt time.Time
}

func (a Account) String() string {
	return fmt.Sprintf("AccountID: %d\nUsername:  %s\nRegistered: %v",
		a.ID, a.Username, a.RegisteredAt.Format(time.RFC3339))
}
