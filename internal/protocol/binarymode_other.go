//go:build !windows

package protocol

// StdoutToBinary is a no-op on every platform except Windows. Grounded on
// original_source/util.py's stdout_to_binary, which only does anything
// under sys.platform == "win32".
func StdoutToBinary() error {
	return nil
}
