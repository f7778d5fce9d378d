// Package cluster manages one shared backend connection per named cluster.
package cluster

import (
	"errors"
	"fmt"
	"net"
	"strconv"
)

// ErrInvalidDescriptor is returned for descriptors that cannot be connected.
var ErrInvalidDescriptor = errors.New("cluster: invalid descriptor")

// Node is one cluster member. TransportPort is the node-to-node port the
// cluster advertises; clients talk to the matching HTTP port when one is set.
type Node struct {
	Host          string
	TransportPort int
}

// Descriptor identifies a cluster and how to reach it. HTTPPorts is
// parallel to Nodes; a missing or zero entry falls back to TransportPort.
type Descriptor struct {
	Name      string
	Driver    string
	Scheme    string
	Nodes     []Node
	HTTPPorts []int

	Username  string
	Password  string
	APIKey    string
	KeyPrefix string
}

// Validate checks the descriptor names a cluster with at least one node.
// The memory driver needs no nodes.
func (d Descriptor) Validate() error {
	if d.Name == "" {
		return fmt.Errorf("cluster name is required: %w", ErrInvalidDescriptor)
	}
	if d.Driver == "" {
		return fmt.Errorf("cluster %q: driver is required: %w", d.Name, ErrInvalidDescriptor)
	}
	if d.Driver != "memory" && len(d.Nodes) == 0 {
		return fmt.Errorf("cluster %q: at least one node is required: %w", d.Name, ErrInvalidDescriptor)
	}
	for i, n := range d.Nodes {
		if n.Host == "" {
			return fmt.Errorf("cluster %q: node %d host is required: %w", d.Name, i, ErrInvalidDescriptor)
		}
		if d.port(i) <= 0 {
			return fmt.Errorf("cluster %q: node %d has no port: %w", d.Name, i, ErrInvalidDescriptor)
		}
	}
	return nil
}

func (d Descriptor) port(i int) int {
	if i < len(d.HTTPPorts) && d.HTTPPorts[i] > 0 {
		return d.HTTPPorts[i]
	}
	return d.Nodes[i].TransportPort
}

// Addrs returns host:port client addresses, one per node.
func (d Descriptor) Addrs() []string {
	out := make([]string, 0, len(d.Nodes))
	for i, n := range d.Nodes {
		out = append(out, net.JoinHostPort(n.Host, strconv.Itoa(d.port(i))))
	}
	return out
}

// URLs returns scheme://host:port base URLs, one per node. Scheme defaults
// to http.
func (d Descriptor) URLs() []string {
	scheme := d.Scheme
	if scheme == "" {
		scheme = "http"
	}
	addrs := d.Addrs()
	for i, a := range addrs {
		addrs[i] = scheme + "://" + a
	}
	return addrs
}

// withNodes returns a copy of d carrying nodes and their HTTP ports.
func (d Descriptor) withNodes(nodes []Node, httpPorts []int) Descriptor {
	d.Nodes = nodes
	d.HTTPPorts = httpPorts
	return d
}
