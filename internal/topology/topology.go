// Package topology models the socket/UPI link inventory of a machine and
// the user-supplied list of links and ports known to be down.
package topology

import (
	"fmt"
)

// Topology describes the point-to-point link inventory of a server.
type Topology struct {
	// Sockets is the number of CPU sockets. Defaults to 2.
	Sockets int `yaml:"sockets" json:"sockets"`

	// LinksPerSocket is the number of UPI links per socket.
	// Defaults to 4.
	LinksPerSocket int `yaml:"upis" json:"upis"`
}

// Default returns the two-socket, four-link layout of a Sapphire Rapids
// module.
func Default() Topology {
	return Topology{
		Sockets:        2,
		LinksPerSocket: 4,
	}
}

// Validate checks the topology dimensions.
func (t Topology) Validate() error {
	if t.Sockets < 0 {
		return fmt.Errorf("sockets must not be negative")
	}

	if t.LinksPerSocket < 0 {
		return fmt.Errorf("upis must not be negative")
	}

	return nil
}

// Contains reports whether the port exists on this topology.
func (t Topology) Contains(p Port) bool {
	return p.Socket >= 0 && p.Socket < t.Sockets &&
		p.Link >= 0 && p.Link < t.LinksPerSocket
}

// DirectedCapacity is the number of link endpoints on the machine, which
// is also the number of directed samples a healthy run reports.
func (t Topology) DirectedCapacity() int {
	return t.Sockets * t.LinksPerSocket
}

// Port is one endpoint of a link: a socket and a link index on it.
type Port struct {
	Socket int `json:"socket"`
	Link   int `json:"link"`
}

// String returns the "socket-link" form used on the command line.
func (p Port) String() string {
	return fmt.Sprintf("%d-%d", p.Socket, p.Link)
}

// Link is a bidirectional link given by its two endpoints.
type Link struct {
	A Port
	B Port
}

// Key returns the direction-independent identity of the link.
func (l Link) Key() LinkKey {
	return CanonicalKey(l.A, l.B)
}

// LinkKey identifies a bidirectional link regardless of direction.
type LinkKey string

// CanonicalKey builds the key for the link between a and b. The endpoint
// on the lower socket comes first; on equal sockets the given order is
// kept.
func CanonicalKey(a, b Port) LinkKey {
	if a.Socket > b.Socket {
		a, b = b, a
	}

	return LinkKey(a.String() + ":" + b.String())
}
