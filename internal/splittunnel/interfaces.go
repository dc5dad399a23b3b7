package splittunnel

import (
	"github.com/vpn-linux/split-tunnel/internal/procevents"
	"github.com/vpn-linux/split-tunnel/internal/routing"
)

// ProcessScanner resolves executable paths and finds running matches.
// *proc.Scanner satisfies this.
type ProcessScanner interface {
	ExePath(pid int) (string, bool)
	PidsForPath(path string) []int
}

// Steering places a pid (and its descendants) into a steering cgroup, or
// moves them back to the parent cgroup. *cgroups.Steering satisfies this.
type Steering interface {
	Place(pid int, memberFile string)
	Remove(pid int, parentMemberFile string)
}

// NetworkCoordinator applies and reverts the routing and firewall side
// effects. *routing.Coordinator satisfies this.
type NetworkCoordinator interface {
	SetupFirewall() error
	TeardownFirewall()
	UpdateMasquerade(interfaceName string) routing.Outcome
	AddRoutingPolicy(sourceIP string, table int) routing.Outcome
	RemoveRoutingPolicy(sourceIP string, table int) routing.Outcome
	UpdateRoutes(gatewayIP, interfaceName, tunnelName, tunnelRemoteIP string)
	SetupReversePathFiltering()
	TeardownReversePathFiltering()
}

// EventChannel streams kernel exec/exit notifications.
// *procevents.Channel satisfies this.
type EventChannel interface {
	Open() error
	Close()
	Events() <-chan procevents.Event
	IsOpen() bool
}
