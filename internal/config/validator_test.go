package config

import (
	"strings"
	"testing"
)

func validTestConfig() *Config {
	return &Config{
		Cgroups: &CgroupsConfig{
			ExclusionsFile:       "/cg/bypass/cgroup.procs",
			ExclusionsParentFile: "/cg/cgroup.procs",
			VPNOnlyFile:          "/cg/vpnonly/cgroup.procs",
			VPNOnlyParentFile:    "/cg/cgroup.procs",
		},
		Routing: &RoutingConfig{
			BypassTable:  100,
			VPNOnlyTable: 101,
			RulePriority: 101,
		},
		Firewall: &FirewallConfig{
			TagAnchor:        "100.tagPkts",
			MasqueradeAnchor: "100.transIp",
			MasqueradeRules:  []string{"-o {{interface}} -j MASQUERADE"},
		},
		Apps: &AppsConfig{},
		API:  &APIConfig{Enable: true, Listen: "127.0.0.1:8090"},
	}
}

func TestValidateConfig_Success(t *testing.T) {
	if err := validTestConfig().ValidateConfig(); err != nil {
		t.Errorf("Expected no error, got: %v", err)
	}
}

func TestValidateConfig_MissingSections(t *testing.T) {
	config := &Config{}

	err := config.ValidateConfig()
	if err == nil {
		t.Fatal("Expected error for missing sections")
	}

	msg := err.Error()
	for _, section := range []string{"cgroups", "routing", "firewall"} {
		if !strings.Contains(msg, section) {
			t.Errorf("Expected error to mention missing '%s' section, got: %v", section, msg)
		}
	}
}

func TestValidateConfig_SameRoutingTables(t *testing.T) {
	config := validTestConfig()
	config.Routing.VPNOnlyTable = config.Routing.BypassTable

	err := config.ValidateConfig()
	if err == nil {
		t.Fatal("Expected error for equal routing tables")
	}
	if !strings.Contains(err.Error(), "must differ") {
		t.Errorf("Unexpected error message: %v", err)
	}
}

func TestValidateConfig_RelativeAppPath(t *testing.T) {
	config := validTestConfig()
	config.Apps.Excluded = []string{"browser"}

	err := config.ValidateConfig()
	if err == nil {
		t.Fatal("Expected error for relative app path")
	}
	if !strings.Contains(err.Error(), "absolute path") {
		t.Errorf("Unexpected error message: %v", err)
	}
}

func TestValidateConfig_MissingCgroupFile(t *testing.T) {
	config := validTestConfig()
	config.Cgroups.VPNOnlyFile = ""

	if err := config.ValidateConfig(); err == nil {
		t.Error("Expected error for empty vpn_only_file")
	}
}

func TestValidateConfig_BadListenAddress(t *testing.T) {
	config := validTestConfig()
	config.API.Listen = "not-an-address"

	err := config.ValidateConfig()
	if err == nil {
		t.Fatal("Expected error for malformed listen address")
	}
	if !strings.Contains(err.Error(), "host:port") {
		t.Errorf("Unexpected error message: %v", err)
	}
}

func TestValidateConfig_ZeroRulePriority(t *testing.T) {
	config := validTestConfig()
	config.Routing.RulePriority = 0

	if err := config.ValidateConfig(); err == nil {
		t.Error("Expected error for zero rule priority")
	}
}
