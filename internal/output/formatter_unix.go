//go:build !windows
// +build !windows

package output

// enableANSI reports ANSI support for the terminal behind fd.
// Unix terminals support colors without setup.
func enableANSI(fd uintptr) bool {
	return true
}
