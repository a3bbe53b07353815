package topology

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

const (
	// PortsFormat is the expected shape of a down-ports spec.
	PortsFormat = "s-u,s-u,..."
	// LinksFormat is the expected shape of a down-links spec.
	LinksFormat = "s-u:s-u,s-u:s-u,..."
)

// SpecError reports a malformed token in a down-ports or down-links spec.
type SpecError struct {
	// Option is the command line option the spec came from.
	Option string
	// Format is the expected spec format.
	Format string
	// Token is the offending token.
	Token string
	Err   error
}

func (e *SpecError) Error() string {
	return fmt.Sprintf(
		"the %s format is %s (invalid token %q)",
		e.Option, e.Format, e.Token,
	)
}

func (e *SpecError) Unwrap() error {
	return e.Err
}

// ParsePorts parses a comma-separated list of "socket-link" tokens.
// An empty spec yields no ports. Range checking is left to the caller.
func ParsePorts(spec string) ([]Port, error) {
	if spec == "" {
		return nil, nil
	}

	tokens := strings.Split(spec, ",")
	ports := make([]Port, 0, len(tokens))

	for _, tok := range tokens {
		p, err := parsePort(tok)
		if err != nil {
			return nil, &SpecError{
				Option: "--down-ports",
				Format: PortsFormat,
				Token:  tok,
				Err:    err,
			}
		}

		ports = append(ports, p)
	}

	return ports, nil
}

// ParseLinks parses a comma-separated list of "socket-link:socket-link"
// tokens. An empty spec yields no links.
func ParseLinks(spec string) ([]Link, error) {
	if spec == "" {
		return nil, nil
	}

	tokens := strings.Split(spec, ",")
	links := make([]Link, 0, len(tokens))

	for _, tok := range tokens {
		l, err := parseLink(tok)
		if err != nil {
			return nil, &SpecError{
				Option: "--down-links",
				Format: LinksFormat,
				Token:  tok,
				Err:    err,
			}
		}

		links = append(links, l)
	}

	return links, nil
}

func parseLink(tok string) (Link, error) {
	ends := strings.Split(tok, ":")
	if len(ends) != 2 {
		return Link{}, fmt.Errorf("expected 2 endpoints, got %d", len(ends))
	}

	a, err := parsePort(ends[0])
	if err != nil {
		return Link{}, err
	}

	b, err := parsePort(ends[1])
	if err != nil {
		return Link{}, err
	}

	return Link{A: a, B: b}, nil
}

func parsePort(tok string) (Port, error) {
	fields := strings.Split(tok, "-")
	if len(fields) != 2 {
		return Port{}, fmt.Errorf("expected 2 fields, got %d", len(fields))
	}

	socket, err := strconv.Atoi(strings.TrimSpace(fields[0]))
	if err != nil {
		return Port{}, fmt.Errorf("parsing socket: %w", err)
	}

	link, err := strconv.Atoi(strings.TrimSpace(fields[1]))
	if err != nil {
		return Port{}, fmt.Errorf("parsing link: %w", err)
	}

	return Port{Socket: socket, Link: link}, nil
}

// ExclusionSet holds the links and ports that must not be scored.
// It is immutable once built.
type ExclusionSet struct {
	links map[LinkKey]struct{}
	ports map[Port]struct{}
}

// NewExclusionSet parses both specs and keeps the entries that exist on
// the topology. Entries referencing a socket or link index outside the
// topology are dropped without error, so one exclusion list can be shared
// across a heterogeneous fleet. Ports are parsed first; a malformed token
// in either spec fails the whole set.
func NewExclusionSet(t Topology, downPorts, downLinks string) (*ExclusionSet, error) {
	ports, err := ParsePorts(downPorts)
	if err != nil {
		return nil, err
	}

	links, err := ParseLinks(downLinks)
	if err != nil {
		return nil, err
	}

	set := &ExclusionSet{
		links: make(map[LinkKey]struct{}, len(links)),
		ports: make(map[Port]struct{}, len(ports)),
	}

	for _, p := range ports {
		if !t.Contains(p) {
			continue
		}

		set.ports[p] = struct{}{}
	}

	for _, l := range links {
		if !t.Contains(l.A) || !t.Contains(l.B) {
			continue
		}

		set.links[l.Key()] = struct{}{}
	}

	return set, nil
}

// ExcludesPort reports whether the port is down.
func (s *ExclusionSet) ExcludesPort(p Port) bool {
	if s == nil {
		return false
	}

	_, ok := s.ports[p]

	return ok
}

// ExcludesLink reports whether the link between a and b is down, in
// either direction.
func (s *ExclusionSet) ExcludesLink(a, b Port) bool {
	if s == nil {
		return false
	}

	_, ok := s.links[CanonicalKey(a, b)]

	return ok
}

// LinkCount returns the number of distinct excluded links.
func (s *ExclusionSet) LinkCount() int {
	if s == nil {
		return 0
	}

	return len(s.links)
}

// PortCount returns the number of distinct excluded ports.
func (s *ExclusionSet) PortCount() int {
	if s == nil {
		return 0
	}

	return len(s.ports)
}

// CoversTopology reports whether every link of the topology is excluded.
// Each link accounts for two directed samples.
func (s *ExclusionSet) CoversTopology(t Topology) bool {
	return 2*s.LinkCount() >= t.DirectedCapacity()
}

// Links returns the excluded link keys in sorted order.
func (s *ExclusionSet) Links() []LinkKey {
	if s == nil {
		return nil
	}

	keys := make([]LinkKey, 0, len(s.links))
	for k := range s.links {
		keys = append(keys, k)
	}

	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

	return keys
}

// Ports returns the excluded ports ordered by socket, then link.
func (s *ExclusionSet) Ports() []Port {
	if s == nil {
		return nil
	}

	ports := make([]Port, 0, len(s.ports))
	for p := range s.ports {
		ports = append(ports, p)
	}

	sort.Slice(ports, func(i, j int) bool {
		if ports[i].Socket != ports[j].Socket {
			return ports[i].Socket < ports[j].Socket
		}

		return ports[i].Link < ports[j].Link
	})

	return ports
}
