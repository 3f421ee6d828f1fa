// File: affinity/errors.go
// Author: momentics <momentics@gmail.com>

package affinity

import (
	"errors"
	"fmt"
)

// ErrUnsupported is returned where thread affinity cannot be set.
var ErrUnsupported = errors.New("affinity: not supported on this platform")

// CPUError reports a CPU index outside the machine's range.
type CPUError struct {
	CPU int
}

func (e *CPUError) Error() string {
	return fmt.Sprintf("affinity: cpu %d out of range", e.CPU)
}
