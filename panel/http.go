package panel

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strings"

	stderrors "errors"

	"github.com/c360/stagelink/errors"
	"github.com/c360/stagelink/interaction"
	"github.com/c360/stagelink/module"
)

// registerRoutes installs the panel API on the given mux.
func (s *Service) registerRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/snapshot", s.handleSnapshot)
	mux.HandleFunc("/api/modules", s.handleModules)
	mux.HandleFunc("/api/instances", s.handleInstances)
	mux.HandleFunc("/api/instances/", s.handleInstanceAction)
	mux.HandleFunc("/api/interactions", s.handleInteractions)
	mux.HandleFunc("/api/connections", s.handleConnections)
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/ws", s.hub.ServeWS)

	if s.metrics != nil {
		mux.Handle("/metrics", s.metrics.Handler())
	}
	if s.cfg != nil && s.cfg.Panel.StaticDir != "" {
		mux.Handle("/", http.FileServer(http.Dir(s.cfg.Panel.StaticDir)))
	}
}

// extractInstanceID pulls and validates an instance ID plus trailing
// action from paths like /api/instances/{id}/config.
func extractInstanceID(path, prefix string) (id, action string, ok bool) {
	rest := strings.TrimPrefix(path, prefix)
	rest = strings.TrimSuffix(rest, "/")
	parts := strings.Split(rest, "/")
	if len(parts) == 0 || parts[0] == "" {
		return "", "", false
	}

	decoded, err := url.QueryUnescape(parts[0])
	if err != nil || decoded == "" || decoded == "." || decoded == ".." {
		return "", "", false
	}
	if strings.ContainsAny(decoded, "/\\") {
		return "", "", false
	}

	if len(parts) > 1 {
		action = parts[1]
	}
	return decoded, action, true
}

func (s *Service) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("Failed to encode response", "error", err)
	}
}

// writeError maps classified errors onto HTTP status codes.
func (s *Service) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case stderrors.Is(err, errors.ErrNoSuchInstance), stderrors.Is(err, errors.ErrUnknownModule):
		status = http.StatusNotFound
	case errors.IsInvalid(err):
		status = http.StatusBadRequest
	case errors.IsTransient(err):
		status = http.StatusServiceUnavailable
	}
	s.writeJSON(w, status, map[string]string{"error": err.Error()})
}

func (s *Service) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.writeJSON(w, http.StatusOK, s.CurrentSnapshot())
}

// handleModules lists the registered module types with their manifests.
func (s *Service) handleModules(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"modules": s.registry.Available()})
}

// handleInstances lists live module instances.
func (s *Service) handleInstances(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"instances": s.ModuleStatuses()})
}

// handleInstanceAction dispatches per-instance mutations:
// POST /api/instances/{id}/config and POST /api/instances/{id}/mode.
func (s *Service) handleInstanceAction(w http.ResponseWriter, r *http.Request) {
	id, action, ok := extractInstanceID(r.URL.Path, "/api/instances/")
	if !ok {
		http.Error(w, "invalid instance id", http.StatusBadRequest)
		return
	}
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	switch action {
	case "config":
		var body struct {
			Config module.Config `json:"config"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}
		if err := s.SetModuleConfig(r.Context(), id, body.Config); err != nil {
			s.writeError(w, err)
			return
		}
		s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})

	case "mode":
		var body struct {
			Mode module.Mode `json:"mode"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}
		if err := s.SetModuleMode(id, body.Mode); err != nil {
			s.writeError(w, err)
			return
		}
		s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})

	default:
		http.Error(w, "unknown action", http.StatusNotFound)
	}
}

// handleInteractions implements list, add, update, and remove of stored
// interactions.
func (s *Service) handleInteractions(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.writeJSON(w, http.StatusOK, map[string]any{"interactions": s.store.List()})

	case http.MethodPost:
		var ia interaction.Interaction
		if err := json.NewDecoder(r.Body).Decode(&ia); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}
		added, err := s.AddInteraction(r.Context(), ia)
		if err != nil {
			s.writeError(w, err)
			return
		}
		s.writeJSON(w, http.StatusCreated, added)

	case http.MethodPut:
		var body struct {
			Old interaction.Interaction `json:"old"`
			New interaction.Interaction `json:"new"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}
		replaced, err := s.UpdateInteraction(r.Context(), body.Old, body.New)
		if err != nil {
			s.writeError(w, err)
			return
		}
		s.writeJSON(w, http.StatusOK, replaced)

	case http.MethodDelete:
		var ia interaction.Interaction
		if err := json.NewDecoder(r.Body).Decode(&ia); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}
		removed, err := s.RemoveInteraction(r.Context(), ia)
		if err != nil {
			s.writeError(w, err)
			return
		}
		if !removed {
			http.Error(w, "interaction not found", http.StatusNotFound)
			return
		}
		s.writeJSON(w, http.StatusOK, map[string]string{"status": "removed"})

	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Service) handleConnections(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"connections": s.ConnectionInfos()})
}

func (s *Service) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	live := len(s.instances)
	s.mu.Unlock()
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status":       "ok",
		"panel":        s.deps.PanelID,
		"instances":    live,
		"interactions": s.store.Len(),
		"ws_clients":   s.hub.ClientCount(),
	})
}
