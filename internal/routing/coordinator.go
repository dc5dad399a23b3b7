// Package routing applies and reverts the network-level side effects of
// split tunneling: the firewall anchors, the source-IP policy rules, the
// default routes in the two steering routing tables and the reverse-path
// filter override.
//
// Everything here degrades gracefully. A failed side effect is logged and
// the rest of the operation continues; nothing is rolled back because of an
// unrelated failure.
package routing

import (
	"fmt"
	"strings"

	"github.com/vishvananda/netlink"

	"github.com/vpn-linux/split-tunnel/internal/config"
	"github.com/vpn-linux/split-tunnel/internal/firewall"
	"github.com/vpn-linux/split-tunnel/internal/log"
	"github.com/vpn-linux/split-tunnel/internal/shell"
)

const (
	rpFilterKey = "net.ipv4.conf.all.rp_filter"

	// rpFilterLoose is required because split-tunnel traffic legitimately
	// arrives and departs on interfaces the routing table does not predict.
	rpFilterLoose = "2"
)

// Coordinator owns the routing and firewall side effects of one connection.
type Coordinator struct {
	anchors  firewall.Anchors
	sh       shell.Executor
	routing  *config.RoutingConfig
	fwConfig *config.FirewallConfig

	savedRPFilter string
}

// NewCoordinator returns a Coordinator applying side effects through anchors
// and sh, parameterized by cfg.
func NewCoordinator(anchors firewall.Anchors, sh shell.Executor, cfg *config.Config) *Coordinator {
	return &Coordinator{
		anchors:  anchors,
		sh:       sh,
		routing:  cfg.Routing,
		fwConfig: cfg.Firewall,
	}
}

// SetupFirewall enables the packet-tagging anchor and the masquerade anchor.
// The tagging anchor is unaffected by network changes; the masquerade
// anchor's content is updated separately via UpdateMasquerade.
func (c *Coordinator) SetupFirewall() error {
	if err := c.anchors.SetAnchorEnabled(firewall.DirectionOutput, c.fwConfig.TagAnchor, true, firewall.TableMangle); err != nil {
		return err
	}
	return c.anchors.SetAnchorEnabled(firewall.DirectionOutput, c.fwConfig.MasqueradeAnchor, true, firewall.TableNat)
}

// TeardownFirewall disables both anchors. Failures are logged; teardown
// always attempts every anchor.
func (c *Coordinator) TeardownFirewall() {
	if err := c.anchors.SetAnchorEnabled(firewall.DirectionOutput, c.fwConfig.MasqueradeAnchor, false, firewall.TableNat); err != nil {
		log.Warnf("Failed to disable masquerade anchor: %v", err)
	}
	if err := c.anchors.SetAnchorEnabled(firewall.DirectionOutput, c.fwConfig.TagAnchor, false, firewall.TableMangle); err != nil {
		log.Warnf("Failed to disable tag anchor: %v", err)
	}
}

// UpdateMasquerade points the masquerade anchor at the physical interface,
// or clears it when the interface name is empty (not connected).
func (c *Coordinator) UpdateMasquerade(interfaceName string) Outcome {
	var rules []string
	if interfaceName == "" {
		log.Infof("Removing masquerade rules, not connected")
	} else {
		log.Infof("Updating masquerade rules for interface %s", interfaceName)
		rules = firewall.RenderRules(c.fwConfig.MasqueradeRules, interfaceName)
	}

	if err := c.anchors.ReplaceAnchorContent(firewall.DirectionOutput, c.fwConfig.MasqueradeAnchor, rules, firewall.TableNat); err != nil {
		log.Warnf("Failed to update masquerade anchor: %v", err)
		return Failed
	}
	return Applied
}

// AddRoutingPolicy adds a source-address policy rule directing traffic from
// sourceIP to the given table. No-op on an empty address.
func (c *Coordinator) AddRoutingPolicy(sourceIP string, table int) Outcome {
	if sourceIP == "" {
		return Skipped
	}

	rule, err := buildSourceRule(sourceIP, table, c.routing.RulePriority)
	if err != nil {
		log.Warnf("Not adding routing policy: %v", err)
		return Failed
	}

	log.Debugf("Adding IP rule [%s]", ruleString(rule))
	if err := netlink.RuleAdd(rule); err != nil {
		log.Warnf("Failed to add IP rule [%s]: %v", ruleString(rule), err)
		return Failed
	}
	return Applied
}

// RemoveRoutingPolicy removes the source-address policy rule for sourceIP.
// No-op on an empty address; removing an absent rule is a logged failure
// only.
func (c *Coordinator) RemoveRoutingPolicy(sourceIP string, table int) Outcome {
	if sourceIP == "" {
		return Skipped
	}

	rule, err := buildSourceRule(sourceIP, table, c.routing.RulePriority)
	if err != nil {
		log.Warnf("Not removing routing policy: %v", err)
		return Failed
	}

	log.Debugf("Deleting IP rule [%s]", ruleString(rule))
	if err := netlink.RuleDel(rule); err != nil {
		log.Warnf("Failed to delete IP rule [%s]: %v", ruleString(rule), err)
		return Failed
	}
	return Applied
}

// UpdateRoutes replaces the default routes in both steering tables and
// flushes the routing cache. Either route is left as-is when its
// gateway/device pair is unknown: no traffic is tagged into an unconnected
// table, so a stale route there is harmless.
func (c *Coordinator) UpdateRoutes(gatewayIP, interfaceName, tunnelName, tunnelRemoteIP string) {
	log.Infof("Updating default route in table %d via %s dev %s and table %d via %s dev %s",
		c.routing.BypassTable, gatewayIP, interfaceName,
		c.routing.VPNOnlyTable, tunnelRemoteIP, tunnelName)

	if gatewayIP == "" || interfaceName == "" {
		log.Infof("Not updating bypass route - configuration not known - gateway: %q interface: %q",
			gatewayIP, interfaceName)
	} else {
		c.replaceDefaultRoute(gatewayIP, interfaceName, c.routing.BypassTable)
	}

	if tunnelRemoteIP == "" || tunnelName == "" {
		log.Warnf("Tunnel configuration not known yet, can't configure VPN-only route - remote: %q device: %q",
			tunnelRemoteIP, tunnelName)
	} else {
		c.replaceDefaultRoute(tunnelRemoteIP, tunnelName, c.routing.VPNOnlyTable)
	}

	// Route replace does not invalidate cached lookups on its own.
	if result := c.sh.Execute("ip route flush cache"); result.ExitCode != 0 {
		log.Warnf("Failed to flush route cache: %s", strings.TrimSpace(result.Stderr))
	}
}

// replaceDefaultRoute replaces (idempotently) the default route in table.
func (c *Coordinator) replaceDefaultRoute(gatewayIP, linkName string, table int) Outcome {
	link, err := netlink.LinkByName(linkName)
	if err != nil {
		log.Warnf("Failed to resolve link %q: %v", linkName, err)
		return Failed
	}

	route, err := buildDefaultRoute(gatewayIP, link.Attrs().Index, table)
	if err != nil {
		log.Warnf("Not updating route in table %d: %v", table, err)
		return Failed
	}

	log.Debugf("Replacing default route in table %d via %s dev %s", table, gatewayIP, linkName)
	if err := netlink.RouteReplace(route); err != nil {
		log.Warnf("Failed to replace default route in table %d: %v", table, err)
		return Failed
	}
	return Applied
}

// SetupReversePathFiltering reads the current rp_filter value and, when it
// is not already loose, saves it and switches to loose mode. A failed read
// records no prior value and changes nothing.
func (c *Coordinator) SetupReversePathFiltering() {
	result := c.sh.Execute(fmt.Sprintf("sysctl -n '%s'", rpFilterKey))
	if result.ExitCode != 0 {
		log.Warnf("Unable to read current %s value", rpFilterKey)
		c.savedRPFilter = ""
		return
	}

	current := strings.TrimSpace(result.Stdout)
	if current == rpFilterLoose {
		log.Infof("%s already %s (loose mode); nothing to do", rpFilterKey, rpFilterLoose)
		return
	}

	c.savedRPFilter = current
	log.Infof("Storing old %s value: %s, setting loose mode", rpFilterKey, current)
	if result := c.sh.Execute(fmt.Sprintf("sysctl -w '%s=%s'", rpFilterKey, rpFilterLoose)); result.ExitCode != 0 {
		log.Warnf("Failed to set %s to loose mode", rpFilterKey)
	}
}

// TeardownReversePathFiltering restores the saved rp_filter value verbatim,
// if one was saved.
func (c *Coordinator) TeardownReversePathFiltering() {
	if c.savedRPFilter == "" {
		return
	}

	log.Infof("Restoring %s to %s", rpFilterKey, c.savedRPFilter)
	if result := c.sh.Execute(fmt.Sprintf("sysctl -w '%s=%s'", rpFilterKey, c.savedRPFilter)); result.ExitCode != 0 {
		log.Warnf("Failed to restore %s", rpFilterKey)
	}
	c.savedRPFilter = ""
}
