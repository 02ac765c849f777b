//go:build windows
// +build windows

package output

import (
	"syscall"
	"unsafe"
)

// Windows API constants for enabling ANSI
const enableVirtualTerminalProcessing = 0x0004

var (
	kernel32           = syscall.NewLazyDLL("kernel32.dll")
	procGetConsoleMode = kernel32.NewProc("GetConsoleMode")
	procSetConsoleMode = kernel32.NewProc("SetConsoleMode")
)

// enableANSI turns on virtual terminal processing for the console behind fd (Windows 10+)
func enableANSI(fd uintptr) bool {
	var mode uint32
	if ret, _, _ := procGetConsoleMode.Call(fd, uintptr(unsafe.Pointer(&mode))); ret == 0 {
		return false
	}

	mode |= enableVirtualTerminalProcessing
	ret, _, _ := procSetConsoleMode.Call(fd, uintptr(mode))
	return ret != 0
}
