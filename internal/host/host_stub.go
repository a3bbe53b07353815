//go:build !linux

package host

func uname() Info {
	return Info{}
}
