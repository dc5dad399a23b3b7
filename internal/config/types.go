package config

// Config is the top-level daemon configuration.
type Config struct {
	// Cgroups identifies the steering cgroup membership files by role.
	Cgroups *CgroupsConfig `toml:"cgroups" validate:"required"`
	// Routing holds policy-routing table numbers and the source-IP rule priority.
	Routing *RoutingConfig `toml:"routing" validate:"required"`
	// Firewall holds the iptables anchor names and masquerade rule templates.
	Firewall *FirewallConfig `toml:"firewall" validate:"required"`
	// Apps holds the default app lists, used when a connect request carries
	// none. Both may be replaced at runtime via the API.
	Apps *AppsConfig `toml:"apps"`
	// API configures the HTTP control/status server.
	API *APIConfig `toml:"api"`

	absConfigFilePath string
}

// CgroupsConfig lists the membership files of the two steering cgroups.
// Removing a pid from a steering cgroup is done by writing it into the
// parent's membership file, so the parents are configured alongside.
type CgroupsConfig struct {
	// ExclusionsFile is the membership file of the bypass-VPN cgroup.
	ExclusionsFile string `toml:"exclusions_file" validate:"required"`
	// ExclusionsParentFile is the membership file of the bypass cgroup's parent.
	ExclusionsParentFile string `toml:"exclusions_parent_file" validate:"required"`
	// VPNOnlyFile is the membership file of the force-VPN cgroup.
	VPNOnlyFile string `toml:"vpn_only_file" validate:"required"`
	// VPNOnlyParentFile is the membership file of the force-VPN cgroup's parent.
	VPNOnlyParentFile string `toml:"vpn_only_parent_file" validate:"required"`
}

// RoutingConfig holds the two dedicated routing tables and the fixed
// priority of the source-IP policy rules.
type RoutingConfig struct {
	// BypassTable is the routing table holding the default route out the
	// physical uplink for excluded apps.
	BypassTable int `toml:"bypass_table" validate:"required,min=1"`
	// VPNOnlyTable is the routing table holding the default route through the
	// tunnel for VPN-only apps.
	VPNOnlyTable int `toml:"vpn_only_table" validate:"required,min=1"`
	// RulePriority is the priority of both source-IP policy rules.
	RulePriority int `toml:"rule_priority" validate:"required,min=1"`
}

// FirewallConfig holds the anchor names and the masquerade rule templates.
// Templates may reference {{interface}}, the physical uplink name.
type FirewallConfig struct {
	// TagAnchor is the mangle-table anchor that marks packets from the
	// steering cgroups. Enabled for the whole lifetime of a connection.
	TagAnchor string `toml:"tag_anchor" validate:"required"`
	// MasqueradeAnchor is the nat-table anchor whose content follows the
	// physical interface.
	MasqueradeAnchor string `toml:"masquerade_anchor" validate:"required"`
	// MasqueradeRules are the rendered contents of the masquerade anchor.
	MasqueradeRules []string `toml:"masquerade_rules" validate:"required,min=1"`
}

// AppsConfig holds the two configured app lists, keyed by absolute
// executable path.
type AppsConfig struct {
	// Excluded apps bypass the VPN: their traffic is steered out the
	// physical uplink.
	Excluded []string `toml:"excluded" validate:"dive,abs_path"`
	// VPNOnly apps are forced through the tunnel.
	VPNOnly []string `toml:"vpn_only" validate:"dive,abs_path"`
}

// APIConfig configures the HTTP control/status server.
type APIConfig struct {
	// Enable turns the API server on (default: true).
	Enable bool `toml:"enable"`
	// Listen is the listen address, host:port.
	Listen string `toml:"listen" validate:"required_if=Enable true,omitempty,hostname_port"`
}
