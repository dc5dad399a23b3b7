package routing

import (
	"github.com/vpn-linux/split-tunnel/internal/firewall"
	"github.com/vpn-linux/split-tunnel/internal/shell"
)

// Mock types for testing

type anchorCall struct {
	dir     firewall.Direction
	name    string
	enabled bool
	table   firewall.Table
	rules   []string
}

type mockAnchors struct {
	enableCalls  []anchorCall
	replaceCalls []anchorCall
	failAll      bool
}

func (m *mockAnchors) SetAnchorEnabled(dir firewall.Direction, name string, enabled bool, table firewall.Table) error {
	m.enableCalls = append(m.enableCalls, anchorCall{dir: dir, name: name, enabled: enabled, table: table})
	if m.failAll {
		return errFirewall
	}
	return nil
}

func (m *mockAnchors) ReplaceAnchorContent(dir firewall.Direction, name string, ruleLines []string, table firewall.Table) error {
	m.replaceCalls = append(m.replaceCalls, anchorCall{dir: dir, name: name, table: table, rules: ruleLines})
	if m.failAll {
		return errFirewall
	}
	return nil
}

type mockExecutor struct {
	commands []string
	results  map[string]shell.Result
}

func (m *mockExecutor) Execute(command string) shell.Result {
	m.commands = append(m.commands, command)
	if result, ok := m.results[command]; ok {
		return result
	}
	return shell.Result{}
}
