//go:build linux

package cache

import (
	"os"
	"syscall"
)

// accessTime reads the true atime from the platform-specific stat
// struct where available.
func accessTime(info os.FileInfo) int64 {
	if st, ok := info.Sys().(*syscall.Stat_t); ok {
		return st.Atim.Sec
	}
	return info.ModTime().Unix()
}
