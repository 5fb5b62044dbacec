package archive

import (
	"fmt"

	"github.com/thunder-project/thunder/internal/hash"
)

// ErrBlockUnknown reports a header or body the archive has never stored.
// The archive's own lookups report absence through their found result;
// walletsync returns this error when a block it must replay is missing.
type ErrBlockUnknown struct {
	BlockHash hash.BlockHash
}

func (e *ErrBlockUnknown) Error() string {
	return fmt.Sprintf("archive: block unknown: %s", e.BlockHash)
}
