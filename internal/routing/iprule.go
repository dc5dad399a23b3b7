package routing

import (
	"fmt"
	"net"

	"github.com/vishvananda/netlink"

	"github.com/vpn-linux/split-tunnel/internal/errors"
)

// buildSourceRule builds a policy rule directing traffic sourced from ip to
// the given routing table at the configured priority.
func buildSourceRule(ip string, table int, priority int) (*netlink.Rule, error) {
	addr := net.ParseIP(ip)
	if addr == nil {
		return nil, errors.Newf(errors.ErrCodeRouting, "invalid source address %q", ip)
	}

	rule := netlink.NewRule()
	rule.Table = table
	rule.Priority = priority
	if addr.To4() != nil {
		rule.Family = netlink.FAMILY_V4
		rule.Src = &net.IPNet{IP: addr, Mask: net.CIDRMask(32, 32)}
	} else {
		rule.Family = netlink.FAMILY_V6
		rule.Src = &net.IPNet{IP: addr, Mask: net.CIDRMask(128, 128)}
	}
	return rule, nil
}

func ruleString(rule *netlink.Rule) string {
	return fmt.Sprintf("rule %d: from %s -> table %d", rule.Priority, rule.Src, rule.Table)
}
