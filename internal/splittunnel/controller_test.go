package splittunnel

import (
	"testing"

	"github.com/vpn-linux/split-tunnel/internal/config"
	"github.com/vpn-linux/split-tunnel/internal/log"
)

func init() {
	log.DisableLogs()
}

const (
	exclusionsFile       = "/cg/exclusions/cgroup.procs"
	exclusionsParentFile = "/cg/cgroup.procs"
	vpnOnlyFile          = "/cg/vpnonly/cgroup.procs"
	vpnOnlyParentFile    = "/cg/cgroup.procs.vpn"
)

func testConfig() *config.Config {
	return &config.Config{
		Cgroups: &config.CgroupsConfig{
			ExclusionsFile:       exclusionsFile,
			ExclusionsParentFile: exclusionsParentFile,
			VPNOnlyFile:          vpnOnlyFile,
			VPNOnlyParentFile:    vpnOnlyParentFile,
		},
		Routing: &config.RoutingConfig{
			BypassTable:  100,
			VPNOnlyTable: 101,
			RulePriority: 101,
		},
	}
}

type testHarness struct {
	controller *Controller
	scanner    *mockScanner
	steering   *mockSteering
	network    *mockCoordinator
	channel    *mockChannel
}

func newHarness(exePaths map[int]string) *testHarness {
	scanner := &mockScanner{exePaths: exePaths}
	steering := &mockSteering{}
	network := &mockCoordinator{}
	channel := &mockChannel{}
	return &testHarness{
		controller: NewController(testConfig(), scanner, steering, network, channel),
		scanner:    scanner,
		steering:   steering,
		network:    network,
		channel:    channel,
	}
}

func validParams(excluded, vpnOnly []string) Params {
	return Params{
		NetScan: NetScan{
			InterfaceName: "eth0",
			GatewayIP:     "192.168.1.1",
			IPAddress:     "192.168.1.50",
		},
		ExcludedApps: excluded,
		VPNOnlyApps:  vpnOnly,
	}
}

func TestConnect_OpenFailureAbortsWithNoSideEffects(t *testing.T) {
	h := newHarness(nil)
	h.channel.failOpen = true

	err := h.controller.Connect(validParams(nil, nil), "tun0", "10.8.0.2", "10.8.0.1")
	if err == nil {
		t.Fatal("Expected error when event channel cannot open")
	}
	if len(h.network.calls) != 0 {
		t.Errorf("Expected no network side effects, got %v", h.network.calls)
	}
	if len(h.steering.placed) != 0 {
		t.Errorf("Expected no cgroup placements, got %v", h.steering.placed)
	}
}

func TestConnect_AppliesFullSetup(t *testing.T) {
	h := newHarness(map[int]string{100: "/usr/bin/browser"})

	err := h.controller.Connect(validParams([]string{"/usr/bin/browser"}, nil), "tun0", "10.8.0.2", "10.8.0.1")
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	for _, call := range []string{
		"setupFirewall",
		"updateMasquerade(eth0)",
		"addPolicy(192.168.1.50,100)",
		"addPolicy(10.8.0.2,101)",
		"updateRoutes(192.168.1.1,eth0,tun0,10.8.0.1)",
		"setupRPFilter",
	} {
		if !h.network.contains(call) {
			t.Errorf("Expected call %q, got %v", call, h.network.calls)
		}
	}

	if !h.steering.placedPids()[100] {
		t.Errorf("Expected pid 100 placed, got %v", h.steering.placed)
	}

	status := h.controller.Status()
	if !status.Connected {
		t.Error("Expected connected status")
	}
	if got := status.Excluded["/usr/bin/browser"]; len(got) != 1 || got[0] != 100 {
		t.Errorf("Expected tracked pid 100, got %v", got)
	}
}

func TestNetworkGating(t *testing.T) {
	h := newHarness(map[int]string{200: "/usr/bin/torrent"})

	// No valid network snapshot: the excluded list is forced empty.
	h.controller.UpdateApps([]string{"/usr/bin/torrent"}, nil)

	if len(h.controller.Status().Excluded) != 0 {
		t.Errorf("Expected empty exclusion table without a network, got %v", h.controller.Status().Excluded)
	}
	if len(h.steering.placed) != 0 {
		t.Errorf("Expected no placements without a network, got %v", h.steering.placed)
	}

	// After a valid network snapshot the same call populates the table from
	// running matches.
	h.controller.UpdateSplitTunnel(validParams([]string{"/usr/bin/torrent"}, nil), "tun0", "10.8.0.2", "10.8.0.1")

	status := h.controller.Status()
	if got := status.Excluded["/usr/bin/torrent"]; len(got) != 1 || got[0] != 200 {
		t.Errorf("Expected tracked pid 200, got %v", status.Excluded)
	}
	if !h.steering.placedPids()[200] {
		t.Errorf("Expected pid 200 placed, got %v", h.steering.placed)
	}
}

func TestExclusionPrecedence(t *testing.T) {
	h := newHarness(map[int]string{})
	h.controller.UpdateSplitTunnel(
		validParams([]string{"/usr/bin/app"}, []string{"/usr/bin/app"}),
		"tun0", "10.8.0.2", "10.8.0.1")

	// A newly observed exec for the doubly listed path lands in the
	// exclusion cgroup, not the VPN-only cgroup.
	h.scanner.exePaths[300] = "/usr/bin/app"
	h.controller.onExec(300)

	if len(h.steering.placed) != 1 || h.steering.placed[0].file != exclusionsFile {
		t.Fatalf("Expected a single placement into the exclusion cgroup, got %v", h.steering.placed)
	}

	status := h.controller.Status()
	if got := status.Excluded["/usr/bin/app"]; len(got) != 1 || got[0] != 300 {
		t.Errorf("Expected pid 300 in exclusions, got %v", status.Excluded)
	}
	if got := status.VPNOnly["/usr/bin/app"]; len(got) != 0 {
		t.Errorf("Expected no pids in VPN-only, got %v", got)
	}
}

func TestOnExec(t *testing.T) {
	tests := []struct {
		name         string
		network      bool
		app          string
		excluded     []string
		vpnOnly      []string
		expectFile   string
		expectNoCall bool
	}{
		{
			name:       "excluded app with network",
			network:    true,
			app:        "/usr/bin/browser",
			excluded:   []string{"/usr/bin/browser"},
			expectFile: exclusionsFile,
		},
		{
			name:       "vpn-only app without network is still placed",
			network:    false,
			app:        "/usr/bin/mail",
			vpnOnly:    []string{"/usr/bin/mail"},
			expectFile: vpnOnlyFile,
		},
		{
			name:         "untracked app is ignored",
			network:      true,
			app:          "/usr/bin/other",
			excluded:     []string{"/usr/bin/browser"},
			expectNoCall: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(map[int]string{})
			if tt.network {
				h.controller.UpdateSplitTunnel(validParams(tt.excluded, tt.vpnOnly), "tun0", "10.8.0.2", "10.8.0.1")
			} else {
				h.controller.UpdateApps(tt.excluded, tt.vpnOnly)
			}
			h.steering.placed = nil

			h.scanner.exePaths[500] = tt.app
			h.controller.onExec(500)

			if tt.expectNoCall {
				if len(h.steering.placed) != 0 {
					t.Errorf("Expected no placement, got %v", h.steering.placed)
				}
				return
			}
			if len(h.steering.placed) != 1 || h.steering.placed[0].pid != 500 || h.steering.placed[0].file != tt.expectFile {
				t.Errorf("Expected pid 500 placed into %s, got %v", tt.expectFile, h.steering.placed)
			}
		})
	}
}

func TestOnExec_VanishedProcessIsIgnored(t *testing.T) {
	h := newHarness(map[int]string{})
	h.controller.UpdateSplitTunnel(validParams([]string{"/usr/bin/browser"}, nil), "tun0", "10.8.0.2", "10.8.0.1")

	h.controller.onExec(12345) // no exe path resolvable

	if len(h.steering.placed) != 0 {
		t.Errorf("Expected no placement for vanished process, got %v", h.steering.placed)
	}
}

func TestOnExit_CleansBothTablesAndIsIdempotent(t *testing.T) {
	h := newHarness(map[int]string{600: "/usr/bin/browser", 601: "/usr/bin/mail"})
	h.controller.UpdateSplitTunnel(
		validParams([]string{"/usr/bin/browser"}, []string{"/usr/bin/mail"}),
		"tun0", "10.8.0.2", "10.8.0.1")

	h.controller.onExit(600)
	h.controller.onExit(601)

	status := h.controller.Status()
	if len(status.Excluded["/usr/bin/browser"]) != 0 {
		t.Errorf("Expected pid 600 dropped, got %v", status.Excluded)
	}
	if len(status.VPNOnly["/usr/bin/mail"]) != 0 {
		t.Errorf("Expected pid 601 dropped, got %v", status.VPNOnly)
	}

	// A second exit for the same pid is a no-op.
	h.controller.onExit(600)
	if len(h.steering.removed) != 0 {
		t.Errorf("Expected no cgroup action on exit, got %v", h.steering.removed)
	}
}

func TestUpdateApps_RemovedAppIsEvicted(t *testing.T) {
	h := newHarness(map[int]string{700: "/usr/bin/browser"})
	h.controller.UpdateSplitTunnel(validParams([]string{"/usr/bin/browser"}, nil), "tun0", "10.8.0.2", "10.8.0.1")

	h.controller.UpdateApps(nil, nil)

	if len(h.steering.removed) != 1 || h.steering.removed[0].pid != 700 || h.steering.removed[0].file != exclusionsParentFile {
		t.Errorf("Expected pid 700 moved to parent cgroup, got %v", h.steering.removed)
	}
	if len(h.controller.Status().Excluded) != 0 {
		t.Errorf("Expected empty table, got %v", h.controller.Status().Excluded)
	}
}

func TestUpdateNetwork_DiffsAgainstSnapshot(t *testing.T) {
	h := newHarness(nil)
	params := validParams(nil, nil)
	h.controller.UpdateSplitTunnel(params, "tun0", "10.8.0.2", "10.8.0.1")

	h.network.calls = nil
	h.controller.UpdateSplitTunnel(params, "tun0", "10.8.0.2", "10.8.0.1")

	// Unchanged interface and addresses: no masquerade or policy churn.
	for _, call := range h.network.calls {
		if call != "updateRoutes(192.168.1.1,eth0,tun0,10.8.0.1)" {
			t.Errorf("Expected only a route update, got %v", h.network.calls)
		}
	}
	// Routes are always re-applied; replace is idempotent.
	if !h.network.contains("updateRoutes(192.168.1.1,eth0,tun0,10.8.0.1)") {
		t.Errorf("Expected unconditional route update, got %v", h.network.calls)
	}
}

func TestUpdateNetwork_AddressChangeReplacesPolicy(t *testing.T) {
	h := newHarness(nil)
	h.controller.UpdateSplitTunnel(validParams(nil, nil), "tun0", "10.8.0.2", "10.8.0.1")

	h.network.calls = nil
	params := validParams(nil, nil)
	params.NetScan.IPAddress = "192.168.1.99"
	h.controller.UpdateSplitTunnel(params, "tun0", "10.8.0.2", "10.8.0.1")

	// Old rule removed before the new one is added.
	if !h.network.contains("removePolicy(192.168.1.50,100)") || !h.network.contains("addPolicy(192.168.1.99,100)") {
		t.Errorf("Expected policy replacement, got %v", h.network.calls)
	}
}

func TestDisconnect_TeardownCompleteness(t *testing.T) {
	h := newHarness(map[int]string{800: "/usr/bin/browser", 801: "/usr/bin/mail"})
	if err := h.controller.Connect(
		validParams([]string{"/usr/bin/browser"}, []string{"/usr/bin/mail"}),
		"tun0", "10.8.0.2", "10.8.0.1"); err != nil {
		t.Fatal(err)
	}

	h.controller.Disconnect()

	status := h.controller.Status()
	if status.Connected {
		t.Error("Expected disconnected status")
	}
	if len(status.Excluded) != 0 || len(status.VPNOnly) != 0 {
		t.Errorf("Expected empty app tables, got %v / %v", status.Excluded, status.VPNOnly)
	}
	if status.NetScan != (NetScan{}) || status.TunnelLocalIP != "" {
		t.Errorf("Expected cleared snapshots, got %+v / %q", status.NetScan, status.TunnelLocalIP)
	}

	for _, call := range []string{
		"teardownFirewall",
		"removePolicy(192.168.1.50,100)",
		"removePolicy(10.8.0.2,101)",
		"teardownRPFilter",
	} {
		if !h.network.contains(call) {
			t.Errorf("Expected teardown call %q, got %v", call, h.network.calls)
		}
	}

	// Tracked pids were moved back to the parent cgroups.
	removed := map[steeringCall]bool{}
	for _, call := range h.steering.removed {
		removed[call] = true
	}
	if !removed[steeringCall{pid: 800, file: exclusionsParentFile}] {
		t.Errorf("Expected pid 800 moved to exclusions parent, got %v", h.steering.removed)
	}
	if !removed[steeringCall{pid: 801, file: vpnOnlyParentFile}] {
		t.Errorf("Expected pid 801 moved to vpn-only parent, got %v", h.steering.removed)
	}

	// Disconnecting again is a no-op.
	h.controller.Disconnect()
	if h.channel.closeN != 1 {
		t.Errorf("Expected one channel close, got %d", h.channel.closeN)
	}
}

func TestConnect_WhileConnectedDisconnectsFirst(t *testing.T) {
	h := newHarness(nil)
	if err := h.controller.Connect(validParams(nil, nil), "tun0", "10.8.0.2", "10.8.0.1"); err != nil {
		t.Fatal(err)
	}

	if err := h.controller.Connect(validParams(nil, nil), "tun0", "10.8.0.3", "10.8.0.1"); err != nil {
		t.Fatal(err)
	}

	if h.channel.closeN != 1 || h.channel.openCount != 2 {
		t.Errorf("Expected close=1 open=2, got close=%d open=%d", h.channel.closeN, h.channel.openCount)
	}
	if !h.network.contains("teardownFirewall") {
		t.Errorf("Expected full teardown before reconnect, got %v", h.network.calls)
	}
	if !h.controller.Status().Connected {
		t.Error("Expected connected after reconnect")
	}
}
