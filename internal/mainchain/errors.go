package mainchain

import (
	"fmt"

	"github.com/thunder-project/thunder/internal/hash"
)

// ErrBlockNotFound is returned by Task.VerifyBmm when the validator's
// commitment response comes up short: Ancestor is the first mainchain
// block in the requested range whose BMM commitment the validator failed
// to return.
type ErrBlockNotFound struct {
	Ancestor hash.Hash
}

func (e *ErrBlockNotFound) Error() string {
	return fmt.Sprintf("mainchain: block not found: %s", e.Ancestor)
}
