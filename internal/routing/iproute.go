package routing

import (
	"net"

	"github.com/vishvananda/netlink"

	"github.com/vpn-linux/split-tunnel/internal/errors"
)

// buildDefaultRoute builds the default route for table via gateway on the
// link with the given index. A nil Dst is the default destination.
func buildDefaultRoute(gatewayIP string, linkIndex int, table int) (*netlink.Route, error) {
	gw := net.ParseIP(gatewayIP)
	if gw == nil {
		return nil, errors.Newf(errors.ErrCodeRouting, "invalid gateway address %q", gatewayIP)
	}

	family := netlink.FAMILY_V4
	if gw.To4() == nil {
		family = netlink.FAMILY_V6
	}

	return &netlink.Route{
		Table:     table,
		Gw:        gw,
		LinkIndex: linkIndex,
		Family:    family,
	}, nil
}
