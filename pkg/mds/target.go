package mds

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/fusion-flap/flap-w7x-mdsplus/pkg/common"
)

// Scheme selects the transport to the archive server.
type Scheme string

const (
	SchemeSSH Scheme = "ssh"
	SchemeTCP Scheme = "tcp"
)

// Target is where and as whom to connect.
type Target struct {
	Scheme Scheme
	User   string
	Host   string // may carry a port
}

// NewTarget builds the default ssh target used for a user and server name.
// A server given as a URL ("tcp://host:8000") selects its scheme.
func NewTarget(user, server string) (Target, error) {
	if strings.Contains(server, "://") {
		t, err := ParseTarget(server)
		if err != nil {
			return Target{}, err
		}
		if t.User == "" {
			t.User = user
		}
		return t, nil
	}
	return Target{Scheme: SchemeSSH, User: user, Host: server}, nil
}

// ParseTarget parses "ssh://user@host" or "tcp://host[:port]".
func ParseTarget(s string) (Target, error) {
	u, err := url.Parse(s)
	if err != nil {
		return Target{}, fmt.Errorf("%w: invalid server %q: %w", common.ErrFormat, s, err)
	}
	t := Target{Scheme: Scheme(u.Scheme), Host: u.Host}
	if u.User != nil {
		t.User = u.User.Username()
	}
	switch t.Scheme {
	case SchemeSSH, SchemeTCP:
	default:
		return Target{}, fmt.Errorf("%w: unsupported scheme %q in server %q", common.ErrFormat, u.Scheme, s)
	}
	if t.Host == "" {
		return Target{}, fmt.Errorf("%w: no host in server %q", common.ErrFormat, s)
	}
	return t, nil
}

// String returns the connection URL, e.g. "ssh://user@host".
func (t Target) String() string {
	if t.User == "" {
		return string(t.Scheme) + "://" + t.Host
	}
	return string(t.Scheme) + "://" + t.User + "@" + t.Host
}

// SplitNodeRef splits "[\]tree::node" into the tree name (without the
// leading backslash) and the node path.
func SplitNodeRef(ref string) (tree, node string, err error) {
	parts := strings.Split(ref, "::")
	if len(parts) != 2 {
		return "", "", fmt.Errorf("%w: invalid mds name %q, missing tree name? Data name is tree::node",
			common.ErrFormat, ref)
	}
	tree = strings.TrimPrefix(strings.TrimSpace(parts[0]), `\`)
	if tree == "" {
		return "", "", fmt.Errorf("%w: empty tree name in %q", common.ErrFormat, ref)
	}
	return tree, parts[1], nil
}
