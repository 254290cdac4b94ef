//go:build windows

package protocol

// StdoutToBinary is a no-op on this platform. Grounded on
// original_source/util.py's stdout_to_binary, which calls
// msvcrt.setmode(..., os.O_BINARY) to stop the C runtime's stdio layer
// from translating "\n" to "\r\n" on stdout. Go's os package never opens
// file descriptors in that C-runtime text mode in the first place, so
// there is no equivalent translation to disable; the call is kept so the
// startup path matches the original's shape and the no-op is explicit
// rather than silently absent.
func StdoutToBinary() error {
	return nil
}
