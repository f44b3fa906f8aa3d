package bruteforce

import (
	"fmt"
	"time"
)

// LockedError reports that an account is locked until a point in time.
// PermanentLockSentinel as the timestamp marks a permanent lock.
type LockedError struct {
	Until time.Time
}

func (e *LockedError) Error() string {
	if e.Until.Equal(PermanentLockSentinel) {
		return "account permanently locked"
	}
	return fmt.Sprintf("account locked until %s", e.Until.Format(time.RFC3339))
}
