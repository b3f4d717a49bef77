package infra

import (
	"fmt"
	"runtime"
)

var (
	// Version and CommitSHA are set at build time with -ldflags "-X ..."
	Version     = "latest"
	CommitSHA   = "development build"
	programName = "fabgw"
)

// GetVersionInfo returns the version information of the program
func GetVersionInfo() string {
	return fmt.Sprintf("%s:\n Version: %s\n Commit SHA: %s\n Go version: %s\n OS/Arch: %s\n",
		programName, Version, CommitSHA, runtime.Version(),
		fmt.Sprintf("%s/%s", runtime.GOOS, runtime.GOARCH))
}
