// Package firewall manages the iptables anchors used for traffic steering.
//
// An anchor is a dedicated chain whose content can be replaced without
// touching other rules, toggled by inserting or removing a single jump from
// the built-in chain of its table. The daemon uses two anchors: a mangle
// anchor that marks packets from the steering cgroups and a nat anchor that
// masquerades bypass traffic out the physical uplink.
package firewall

import (
	"strings"

	"github.com/coreos/go-iptables/iptables"

	"github.com/vpn-linux/split-tunnel/internal/errors"
	"github.com/vpn-linux/split-tunnel/internal/log"
)

// Direction selects which built-in chains an anchor hooks into.
type Direction int

const (
	DirectionInput Direction = iota
	DirectionOutput
	DirectionBoth
)

// Table is an iptables table name.
type Table string

const (
	TableMangle Table = "mangle"
	TableNat    Table = "nat"
)

// Anchors toggles named anchors and replaces their content.
// The controller consumes this interface; *IPTables implements it.
type Anchors interface {
	SetAnchorEnabled(dir Direction, name string, enabled bool, table Table) error
	ReplaceAnchorContent(dir Direction, name string, ruleLines []string, table Table) error
}

// IPTables implements Anchors on top of the iptables userspace tools.
type IPTables struct {
	ipt *iptables.IPTables
}

// New returns an IPTables anchor manager for IPv4.
func New() (*IPTables, error) {
	ipt, err := iptables.NewWithProtocol(iptables.ProtocolIPv4)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeFirewall, "failed to initialize iptables", err)
	}
	return &IPTables{ipt: ipt}, nil
}

// builtinChains maps a direction to the built-in chains of a table. Mangle
// tagging happens on locally generated traffic (OUTPUT); nat masquerading
// happens after routing (POSTROUTING).
func builtinChains(dir Direction, table Table) []string {
	input := "PREROUTING"
	output := "POSTROUTING"
	if table == TableMangle {
		input = "INPUT"
		output = "OUTPUT"
	}

	switch dir {
	case DirectionInput:
		return []string{input}
	case DirectionOutput:
		return []string{output}
	default:
		return []string{input, output}
	}
}

// SetAnchorEnabled creates (or removes) the anchor chain and its jump from
// the built-in chains of the table.
func (f *IPTables) SetAnchorEnabled(dir Direction, name string, enabled bool, table Table) error {
	tbl := string(table)

	if enabled {
		log.Infof("Enabling anchor %s in %s", name, tbl)
		if err := f.ipt.NewChain(tbl, name); err != nil {
			// Chain may survive an unclean shutdown; reuse it empty.
			exists, listErr := f.ipt.ChainExists(tbl, name)
			if listErr != nil || !exists {
				return errors.Wrap(errors.ErrCodeFirewall, "failed to create anchor chain "+name, err)
			}
			if err := f.ipt.ClearChain(tbl, name); err != nil {
				return errors.Wrap(errors.ErrCodeFirewall, "failed to clear anchor chain "+name, err)
			}
		}
		for _, builtin := range builtinChains(dir, table) {
			if err := f.ipt.AppendUnique(tbl, builtin, "-j", name); err != nil {
				return errors.Wrap(errors.ErrCodeFirewall, "failed to hook anchor "+name+" into "+builtin, err)
			}
		}
		return nil
	}

	log.Infof("Disabling anchor %s in %s", name, tbl)
	for _, builtin := range builtinChains(dir, table) {
		if err := f.ipt.DeleteIfExists(tbl, builtin, "-j", name); err != nil {
			return errors.Wrap(errors.ErrCodeFirewall, "failed to unhook anchor "+name+" from "+builtin, err)
		}
	}
	if err := f.ipt.ClearAndDeleteChain(tbl, name); err != nil {
		return errors.Wrap(errors.ErrCodeFirewall, "failed to delete anchor chain "+name, err)
	}
	return nil
}

// ReplaceAnchorContent flushes the anchor chain and appends the given rule
// lines. An empty ruleLines leaves the anchor present but inert.
func (f *IPTables) ReplaceAnchorContent(dir Direction, name string, ruleLines []string, table Table) error {
	tbl := string(table)

	if err := f.ipt.ClearChain(tbl, name); err != nil {
		return errors.Wrap(errors.ErrCodeFirewall, "failed to flush anchor chain "+name, err)
	}

	for _, line := range ruleLines {
		spec := ruleSpec(line)
		if len(spec) == 0 {
			continue
		}
		log.Debugf("Anchor %s/%s += %s", tbl, name, line)
		if err := f.ipt.Append(tbl, name, spec...); err != nil {
			return errors.Wrap(errors.ErrCodeFirewall, "failed to append rule to anchor "+name, err)
		}
	}
	return nil
}

// ruleSpec splits a rendered rule line into the argument vector iptables
// expects.
func ruleSpec(line string) []string {
	return strings.Fields(line)
}
