// File: affinity/affinity.go
// Author: momentics <momentics@gmail.com>
//
// Platform-neutral API for CPU affinity. Platform-specific implementations
// are selected by build tags.

package affinity

import "runtime"

// Pin locks the calling goroutine to its OS thread and restricts that thread
// to cpuID. The returned release func unlocks the thread; it is safe to call
// even when pinning failed.
func Pin(cpuID int) (release func(), err error) {
	runtime.LockOSThread()
	if err := SetAffinity(cpuID); err != nil {
		runtime.UnlockOSThread()
		return func() {}, err
	}
	return runtime.UnlockOSThread, nil
}

// SetAffinity pins the current OS thread to a logical CPU on supported
// platforms. On unsupported platforms it returns ErrUnsupported.
func SetAffinity(cpuID int) error {
	if cpuID < 0 || cpuID >= runtime.NumCPU() {
		return &CPUError{CPU: cpuID}
	}
	return setAffinityPlatform(cpuID)
}
