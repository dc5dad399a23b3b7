package splittunnel

import "sort"

// Status is a point-in-time snapshot of the controller state, served by the
// HTTP API.
type Status struct {
	Connected     bool             `json:"connected"`
	NetScan       NetScan          `json:"net_scan"`
	TunnelLocalIP string           `json:"tunnel_local_ip,omitempty"`
	Excluded      map[string][]int `json:"excluded"`
	VPNOnly       map[string][]int `json:"vpn_only"`
}

// Status returns a snapshot of the current state.
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()

	return Status{
		Connected:     c.channel.IsOpen(),
		NetScan:       c.prevNetScan,
		TunnelLocalIP: c.prevTunnelLocalIP,
		Excluded:      snapshotTable(c.exclusions),
		VPNOnly:       snapshotTable(c.vpnOnly),
	}
}

func snapshotTable(table appTable) map[string][]int {
	snapshot := make(map[string][]int, len(table))
	for app, pids := range table {
		list := make([]int, 0, len(pids))
		for pid := range pids {
			list = append(list, pid)
		}
		sort.Ints(list)
		snapshot[app] = list
	}
	return snapshot
}
