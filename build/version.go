package build

var CurrentCommit string

// BuildVersion is the local build version, set by build system
const BuildVersion = "0.1.0"

func UserVersion() string {
	return BuildVersion + CurrentCommit
}
