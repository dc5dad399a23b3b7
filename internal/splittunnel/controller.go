// Package splittunnel orchestrates per-application split tunneling.
//
// The controller classifies every process on the system against two
// path-keyed app lists and keeps classified processes (and their
// descendants) in the matching traffic-steering cgroup, across exec/exit
// events, app list changes, network changes and VPN connect/disconnect.
//
// All mutable state (the two app tables, the network and tunnel snapshots,
// the event channel) is guarded by one mutex: public operations and kernel
// event handling interleave but never run concurrently.
package splittunnel

import (
	"sync"

	"github.com/vpn-linux/split-tunnel/internal/config"
	"github.com/vpn-linux/split-tunnel/internal/log"
	"github.com/vpn-linux/split-tunnel/internal/procevents"
)

// Controller is the public surface the daemon drives.
type Controller struct {
	mu sync.Mutex

	cgroups *config.CgroupsConfig
	routing *config.RoutingConfig

	procs    ProcessScanner
	steering Steering
	network  NetworkCoordinator
	channel  EventChannel

	exclusions appTable
	vpnOnly    appTable

	prevNetScan       NetScan
	prevTunnelLocalIP string
}

// NewController wires a controller from its collaborators.
func NewController(cfg *config.Config, procs ProcessScanner, steering Steering, network NetworkCoordinator, channel EventChannel) *Controller {
	return &Controller{
		cgroups:    cfg.Cgroups,
		routing:    cfg.Routing,
		procs:      procs,
		steering:   steering,
		network:    network,
		channel:    channel,
		exclusions: appTable{},
		vpnOnly:    appTable{},
	}
}

// Connect establishes the split-tunnel state for a new VPN connection. If a
// connection already exists it is torn down first. A failure to open the
// kernel event channel aborts the attempt with no side effects applied.
func (c *Controller) Connect(params Params, tunnelName, tunnelLocalIP, tunnelRemoteIP string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.channel.IsOpen() {
		log.Infof("Existing connection already exists, disconnecting first")
		c.disconnectLocked()
	}

	if err := c.channel.Open(); err != nil {
		return err
	}

	if err := c.network.SetupFirewall(); err != nil {
		log.Warnf("Failed to set up firewall anchors: %v", err)
	}

	c.updateNetworkLocked(params.NetScan, tunnelName, tunnelLocalIP, tunnelRemoteIP)
	c.updateAppsLocked(params.ExcludedApps, params.VPNOnlyApps)

	c.network.SetupReversePathFiltering()

	go c.consumeEvents(c.channel.Events())

	log.Infof("Split tunnel connected")
	return nil
}

// Disconnect tears down all split-tunnel state. Safe to call from any
// state; a second call is a no-op.
func (c *Controller) Disconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disconnectLocked()
}

// disconnectLocked silences the event source first, reverts side effects
// while the addresses needed to revert them are still known, and restores
// rp_filter last as a pure cleanup step.
func (c *Controller) disconnectLocked() {
	if c.channel.IsOpen() {
		c.channel.Close()
	}

	c.network.TeardownFirewall()

	c.removeAllAppsLocked()

	c.network.RemoveRoutingPolicy(c.prevNetScan.IPAddress, c.routing.BypassTable)
	c.network.RemoveRoutingPolicy(c.prevTunnelLocalIP, c.routing.VPNOnlyTable)

	c.network.TeardownReversePathFiltering()

	c.prevNetScan = NetScan{}
	c.prevTunnelLocalIP = ""
}

// UpdateSplitTunnel applies changed connection parameters. The network is
// updated before the apps: app tracking is gated on the network snapshot
// this call stores.
func (c *Controller) UpdateSplitTunnel(params Params, tunnelName, tunnelLocalIP, tunnelRemoteIP string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.updateNetworkLocked(params.NetScan, tunnelName, tunnelLocalIP, tunnelRemoteIP)
	c.updateAppsLocked(params.ExcludedApps, params.VPNOnlyApps)
}

// UpdateApps reconciles the tracked app tables against new lists.
func (c *Controller) UpdateApps(excludedApps, vpnOnlyApps []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.updateAppsLocked(excludedApps, vpnOnlyApps)
}

// updateNetworkLocked diffs the incoming network state against the stored
// snapshot, applies masquerade and policy-rule changes only for what
// actually changed, unconditionally re-applies the routes (replace is cheap
// and idempotent) and stores the new snapshot.
func (c *Controller) updateNetworkLocked(netScan NetScan, tunnelName, tunnelLocalIP, tunnelRemoteIP string) {
	log.Debugf("Network update: previous gateway %q, new gateway %q, tunnel device %q",
		c.prevNetScan.GatewayIP, netScan.GatewayIP, tunnelName)

	if c.prevNetScan.InterfaceName != netScan.InterfaceName {
		c.network.UpdateMasquerade(netScan.InterfaceName)
	}

	// Packets sourced from the physical interface go out the physical
	// interface.
	if c.prevNetScan.IPAddress != netScan.IPAddress {
		c.network.RemoveRoutingPolicy(c.prevNetScan.IPAddress, c.routing.BypassTable)
		c.network.AddRoutingPolicy(netScan.IPAddress, c.routing.BypassTable)
	}

	// Packets sourced from the tunnel address go out the tunnel.
	if c.prevTunnelLocalIP != tunnelLocalIP {
		c.network.RemoveRoutingPolicy(c.prevTunnelLocalIP, c.routing.VPNOnlyTable)
		c.network.AddRoutingPolicy(tunnelLocalIP, c.routing.VPNOnlyTable)
	}

	c.network.UpdateRoutes(netScan.GatewayIP, netScan.InterfaceName, tunnelName, tunnelRemoteIP)

	c.prevNetScan = netScan
	c.prevTunnelLocalIP = tunnelLocalIP
}

// updateAppsLocked reconciles both tables: per table, evict apps not on the
// new list, then add and populate apps that are new.
func (c *Controller) updateAppsLocked(excludedApps, vpnOnlyApps []string) {
	// Exclusions are only tracked while a physical network is present.
	if !c.prevNetScan.IsValid() {
		excludedApps = nil
	}

	warnOverlap(excludedApps, vpnOnlyApps)

	c.removeApps(excludedApps, c.exclusions, c.cgroups.ExclusionsParentFile)
	c.addApps(excludedApps, c.exclusions, c.cgroups.ExclusionsFile)

	c.removeApps(vpnOnlyApps, c.vpnOnly, c.cgroups.VPNOnlyParentFile)
	c.addApps(vpnOnlyApps, c.vpnOnly, c.cgroups.VPNOnlyFile)
}

// warnOverlap surfaces executable paths configured on both lists. Exclusion
// wins for such paths; that is likely a configuration mistake, so it is
// reported rather than silently resolved.
func warnOverlap(excludedApps, vpnOnlyApps []string) {
	vpnOnly := make(map[string]struct{}, len(vpnOnlyApps))
	for _, app := range vpnOnlyApps {
		vpnOnly[app] = struct{}{}
	}
	for _, app := range excludedApps {
		if _, ok := vpnOnly[app]; ok {
			log.Warnf("App %s is on both the excluded and VPN-only lists; exclusion takes precedence", app)
		}
	}
}

// addApps creates entries for newly listed apps and places every currently
// running match into the steering cgroup.
func (c *Controller) addApps(apps []string, table appTable, memberFile string) {
	for _, app := range apps {
		if table.contains(app) {
			continue
		}
		table[app] = map[int]struct{}{}
		for _, pid := range c.procs.PidsForPath(app) {
			log.Infof("Tracking pid %d for app %s", pid, app)
			c.steering.Place(pid, memberFile)
			table.track(app, pid)
		}
	}
}

// removeApps evicts every tracked app not in keepApps, moving its pids back
// to the parent cgroup.
func (c *Controller) removeApps(keepApps []string, table appTable, parentMemberFile string) {
	keep := make(map[string]struct{}, len(keepApps))
	for _, app := range keepApps {
		keep[app] = struct{}{}
	}

	for app, pids := range table {
		if _, ok := keep[app]; ok {
			continue
		}
		for pid := range pids {
			log.Infof("Untracking pid %d for app %s", pid, app)
			c.steering.Remove(pid, parentMemberFile)
		}
		delete(table, app)
	}
}

// removeAllAppsLocked evicts everything from both tables.
func (c *Controller) removeAllAppsLocked() {
	log.Infof("Removing all apps from steering cgroups")
	c.removeApps(nil, c.exclusions, c.cgroups.ExclusionsParentFile)
	c.removeApps(nil, c.vpnOnly, c.cgroups.VPNOnlyParentFile)
}

// consumeEvents processes kernel events one at a time until the channel
// closes on disconnect.
func (c *Controller) consumeEvents(events <-chan procevents.Event) {
	for event := range events {
		switch event.Kind {
		case procevents.EventExec:
			c.onExec(event.Pid)
		case procevents.EventExit:
			c.onExit(event.Pid)
		}
	}
}

// onExec classifies a newly exec'd process. A path on both lists resolves
// to exclusion (checked first). Exclusion tracking is gated on a valid
// network snapshot; VPN-only tracking is not, since it forces traffic onto
// the tunnel regardless of the physical network.
func (c *Controller) onExec(pid int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	// May be absent if the process was so short-lived it exited before we
	// could read its path; ignore it.
	app, ok := c.procs.ExePath(pid)
	if !ok {
		return
	}

	if c.exclusions.contains(app) {
		if c.prevNetScan.IsValid() {
			log.Infof("Adding pid %d to VPN exclusions for app %s", pid, app)
			c.exclusions.track(app, pid)
			c.steering.Place(pid, c.cgroups.ExclusionsFile)
		}
	} else if c.vpnOnly.contains(app) {
		log.Infof("Adding pid %d to VPN-only for app %s", pid, app)
		c.vpnOnly.track(app, pid)
		c.steering.Place(pid, c.cgroups.VPNOnlyFile)
	}
}

// onExit drops the pid from both tables. No cgroup action is needed: the
// kernel releases membership when a process exits.
func (c *Controller) onExit(pid int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.exclusions.dropPid(pid)
	c.vpnOnly.dropPid(pid)
}
