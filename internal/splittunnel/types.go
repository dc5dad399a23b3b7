package splittunnel

// NetScan is the observed physical network state: the uplink interface, its
// gateway and its local address.
type NetScan struct {
	InterfaceName string `json:"interface_name"`
	GatewayIP     string `json:"gateway_ip"`
	IPAddress     string `json:"ip_address"`
}

// IsValid reports whether a physical network is present. App exclusions are
// only tracked while this holds; without an uplink there is nothing to
// bypass to.
func (n NetScan) IsValid() bool {
	return n.InterfaceName != "" && n.IPAddress != ""
}

// Params carries the network state and app lists of a connect or
// reconfigure request.
type Params struct {
	NetScan      NetScan
	ExcludedApps []string
	VPNOnlyApps  []string
}

// appTable maps an executable path to the set of pids currently tracked and
// steered for it. A tracked app with no running matches has an empty set.
type appTable map[string]map[int]struct{}

func (t appTable) track(app string, pid int) {
	t[app][pid] = struct{}{}
}

func (t appTable) dropPid(pid int) {
	for _, pids := range t {
		delete(pids, pid)
	}
}

func (t appTable) contains(app string) bool {
	_, ok := t[app]
	return ok
}
