package uevent

import (
	"bufio"
	"os"
	"strings"
)

// Probe locations, package variables so tests can retarget them.
var (
	udevControlPath = "/run/udev/control"
	procMountsPath  = "/proc/self/mounts"
)

// udevIsRunning reports whether the udev daemon appears to be active on
// this host: its control socket exists, or /dev is a devtmpfs the daemon
// would be managing. Best effort; a false result only downgrades the
// monitor to the none group.
func udevIsRunning() bool {
	if _, err := os.Stat(udevControlPath); err == nil {
		return true
	}

	return devIsDevtmpfs()
}

// devIsDevtmpfs scans the mount table for a devtmpfs on /dev.
func devIsDevtmpfs() bool {
	f, err := os.Open(procMountsPath)
	if err != nil {
		return false
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 3 {
			continue
		}

		if fields[1] == "/dev" && fields[2] == "devtmpfs" {
			return true
		}
	}

	return false
}
