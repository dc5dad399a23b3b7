package splittunnel

import (
	"fmt"

	"github.com/vpn-linux/split-tunnel/internal/errors"
	"github.com/vpn-linux/split-tunnel/internal/procevents"
	"github.com/vpn-linux/split-tunnel/internal/routing"
)

// Mock types for testing

type mockScanner struct {
	exePaths map[int]string // pid -> executable path
}

func (m *mockScanner) ExePath(pid int) (string, bool) {
	path, ok := m.exePaths[pid]
	return path, ok
}

func (m *mockScanner) PidsForPath(path string) []int {
	var pids []int
	for pid, exe := range m.exePaths {
		if exe == path {
			pids = append(pids, pid)
		}
	}
	return pids
}

type steeringCall struct {
	pid  int
	file string
}

type mockSteering struct {
	placed  []steeringCall
	removed []steeringCall
}

func (m *mockSteering) Place(pid int, memberFile string) {
	m.placed = append(m.placed, steeringCall{pid: pid, file: memberFile})
}

func (m *mockSteering) Remove(pid int, parentMemberFile string) {
	m.removed = append(m.removed, steeringCall{pid: pid, file: parentMemberFile})
}

func (m *mockSteering) placedPids() map[int]bool {
	pids := map[int]bool{}
	for _, call := range m.placed {
		pids[call.pid] = true
	}
	return pids
}

// mockCoordinator records every side-effect call as a readable string.
type mockCoordinator struct {
	calls []string
}

func (m *mockCoordinator) record(format string, args ...interface{}) {
	m.calls = append(m.calls, fmt.Sprintf(format, args...))
}

func (m *mockCoordinator) SetupFirewall() error {
	m.record("setupFirewall")
	return nil
}

func (m *mockCoordinator) TeardownFirewall() {
	m.record("teardownFirewall")
}

func (m *mockCoordinator) UpdateMasquerade(interfaceName string) routing.Outcome {
	m.record("updateMasquerade(%s)", interfaceName)
	return routing.Applied
}

func (m *mockCoordinator) AddRoutingPolicy(sourceIP string, table int) routing.Outcome {
	if sourceIP == "" {
		m.record("addPolicy(empty)")
		return routing.Skipped
	}
	m.record("addPolicy(%s,%d)", sourceIP, table)
	return routing.Applied
}

func (m *mockCoordinator) RemoveRoutingPolicy(sourceIP string, table int) routing.Outcome {
	if sourceIP == "" {
		m.record("removePolicy(empty)")
		return routing.Skipped
	}
	m.record("removePolicy(%s,%d)", sourceIP, table)
	return routing.Applied
}

func (m *mockCoordinator) UpdateRoutes(gatewayIP, interfaceName, tunnelName, tunnelRemoteIP string) {
	m.record("updateRoutes(%s,%s,%s,%s)", gatewayIP, interfaceName, tunnelName, tunnelRemoteIP)
}

func (m *mockCoordinator) SetupReversePathFiltering() {
	m.record("setupRPFilter")
}

func (m *mockCoordinator) TeardownReversePathFiltering() {
	m.record("teardownRPFilter")
}

func (m *mockCoordinator) contains(call string) bool {
	for _, c := range m.calls {
		if c == call {
			return true
		}
	}
	return false
}

type mockChannel struct {
	open      bool
	failOpen  bool
	events    chan procevents.Event
	openCount int
	closeN    int
}

func (m *mockChannel) Open() error {
	if m.failOpen {
		return errors.New(errors.ErrCodeConnector, "socket unavailable")
	}
	m.open = true
	m.openCount++
	m.events = make(chan procevents.Event)
	return nil
}

func (m *mockChannel) Close() {
	if !m.open {
		return
	}
	m.open = false
	m.closeN++
	close(m.events)
}

func (m *mockChannel) Events() <-chan procevents.Event {
	return m.events
}

func (m *mockChannel) IsOpen() bool {
	return m.open
}
