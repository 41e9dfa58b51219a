package query

import (
	"encoding/json"
	"net/http"

	"github.com/HerbHall/switchyard/internal/plugin"
	"github.com/HerbHall/switchyard/internal/server"
)

// Routes returns the read-only HTTP routes, relative to the API prefix.
func (s *Service) Routes() []plugin.Route {
	return []plugin.Route{
		{Method: "GET", Path: "/summary", Handler: s.handleSummary},
		{Method: "GET", Path: "/hosts", Handler: s.handleHosts},
		{Method: "GET", Path: "/ports", Handler: s.handlePorts},
		{Method: "GET", Path: "/traffic", Handler: s.handleTraffic},
		{Method: "GET", Path: "/health", Handler: s.handleHealth},
		{Method: "GET", Path: "/models", Handler: s.handleModels},
		{Method: "GET", Path: "/device/{name}", Handler: s.handleDevice},
		{Method: "GET", Path: "/stream", Handler: s.handleStream},
	}
}

func (s *Service) handleSummary(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.Summary())
}

func (s *Service) handleHosts(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.Hosts())
}

func (s *Service) handlePorts(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.Ports())
}

func (s *Service) handleTraffic(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.Traffic())
}

func (s *Service) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.Health())
}

func (s *Service) handleModels(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.Models())
}

func (s *Service) handleDevice(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if name == "" {
		server.BadRequest(w, "device name is required", r.URL.Path)
		return
	}
	v, ok := s.Device(name)
	if !ok {
		server.NotFound(w, "device "+name+" is not configured", r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
