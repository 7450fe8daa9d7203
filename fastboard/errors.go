package fastboard

import (
	"errors"
	"fmt"
	"strings"
)

var ErrNoExpChannel = errors.New("no EXP bus port claimed")
var ErrNoNetChannel = errors.New("no NET bus port claimed")
var ErrFlashBusy = errors.New("a flash is already running")

// UnknownAddressError reports a flash request against an EXP address
// that isn't in the fixed address table.
type UnknownAddressError struct {
	Address string
}

func (e *UnknownAddressError) Error() string {
	return fmt.Sprintf("unknown EXP board address: %s", e.Address)
}

// FirmwareNotFoundError reports a failed catalog lookup along with the
// versions that were actually available under the key.
type FirmwareNotFoundError struct {
	Key       string
	Version   string
	Available []string
}

func (e *FirmwareNotFoundError) Error() string {
	if len(e.Available) == 0 {
		return fmt.Sprintf("firmware not found for key %q version %q (catalog has none)", e.Key, e.Version)
	}
	return fmt.Sprintf("firmware not found for key %q version %q (available: %s)",
		e.Key, e.Version, strings.Join(e.Available, ", "))
}

// StreamError reports an I/O failure while streaming a firmware image.
// The flash is aborted, never retried.
type StreamError struct {
	Path      string
	BytesSent int64
	Err       error
}

func (e *StreamError) Error() string {
	return fmt.Sprintf("firmware stream %q failed after %d bytes: %s", e.Path, e.BytesSent, e.Err)
}

func (e *StreamError) Unwrap() error {
	return e.Err
}
