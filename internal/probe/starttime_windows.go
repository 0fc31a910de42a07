//go:build windows

package probe

import gopsproc "github.com/shirou/gopsutil/v4/process"

// StartUnix returns pid's process start time as Unix seconds using
// gopsutil's WinAPI-backed CreateTime, or 0 if it cannot be determined.
func StartUnix(pid int) int64 {
	if pid <= 0 {
		return 0
	}
	p, err := gopsproc.NewProcess(int32(pid))
	if err != nil {
		return 0
	}
	ms, err := p.CreateTime()
	if err != nil || ms <= 0 {
		return 0
	}
	return ms / 1000
}
