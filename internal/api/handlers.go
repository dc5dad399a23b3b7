package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"path/filepath"

	"github.com/vpn-linux/split-tunnel/internal/log"
	"github.com/vpn-linux/split-tunnel/internal/splittunnel"
)

// UpdateAppsRequest replaces both app lists.
type UpdateAppsRequest struct {
	Excluded []string `json:"excluded"`
	VPNOnly  []string `json:"vpn_only"`
}

// ConnectRequest carries everything the controller needs to engage split
// tunneling: the observed physical network, the tunnel endpoints and the
// initial app lists. An absent app list falls back to the configured one.
type ConnectRequest struct {
	NetScan        splittunnel.NetScan `json:"net_scan"`
	TunnelName     string              `json:"tunnel_name"`
	TunnelLocalIP  string              `json:"tunnel_local_ip"`
	TunnelRemoteIP string              `json:"tunnel_remote_ip"`
	Excluded       []string            `json:"excluded"`
	VPNOnly        []string            `json:"vpn_only"`
}

// errorResponse is the JSON body of every failed request.
type errorResponse struct {
	Error string `json:"error"`
}

// handleStatus returns the controller's current snapshot.
// GET /api/v1/status
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.controller.Status())
}

// handleConnect engages split tunneling with the supplied network state.
// POST /api/v1/connect
func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request) {
	var req ConnectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	if req.Excluded == nil {
		req.Excluded = s.apps.Excluded
	}
	if req.VPNOnly == nil {
		req.VPNOnly = s.apps.VPNOnly
	}

	if err := validateAppPaths(req.Excluded, req.VPNOnly); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	params := splittunnel.Params{
		NetScan:      req.NetScan,
		ExcludedApps: req.Excluded,
		VPNOnlyApps:  req.VPNOnly,
	}
	if err := s.controller.Connect(params, req.TunnelName, req.TunnelLocalIP, req.TunnelRemoteIP); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, s.controller.Status())
}

// handleDisconnect reverts all split tunneling state.
// POST /api/v1/disconnect
func (s *Server) handleDisconnect(w http.ResponseWriter, r *http.Request) {
	s.controller.Disconnect()
	writeJSON(w, http.StatusOK, s.controller.Status())
}

// handleUpdateApps replaces the tracked app lists.
// POST /api/v1/apps
func (s *Server) handleUpdateApps(w http.ResponseWriter, r *http.Request) {
	var req UpdateAppsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	if err := validateAppPaths(req.Excluded, req.VPNOnly); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	log.Infof("[API] Updating app lists: %d excluded, %d vpn-only", len(req.Excluded), len(req.VPNOnly))
	s.controller.UpdateApps(req.Excluded, req.VPNOnly)

	writeJSON(w, http.StatusOK, s.controller.Status())
}

func validateAppPaths(lists ...[]string) error {
	for _, list := range lists {
		for _, app := range list {
			if !filepath.IsAbs(app) {
				return fmt.Errorf("app path must be absolute: %s", app)
			}
		}
	}
	return nil
}

func writeJSON(w http.ResponseWriter, statusCode int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Errorf("Failed to encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, errorResponse{Error: message})
}
