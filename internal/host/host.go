// Package host collects identifying metadata about the machine under test.
package host

import (
	"os"
)

// Info identifies the machine a result was measured on.
type Info struct {
	Hostname      string `json:"hostname"`
	KernelRelease string `json:"kernel_release"`
	Machine       string `json:"machine"`
}

// Collect gathers host metadata. A non-empty override replaces the
// system hostname, which is useful when results are produced inside a
// container.
func Collect(override string) Info {
	info := uname()

	info.Hostname = override
	if info.Hostname == "" {
		if name, err := os.Hostname(); err == nil {
			info.Hostname = name
		}
	}

	return info
}
