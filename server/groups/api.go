package groups

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sardaralii/music-assistant/conf"
	"github.com/sardaralii/music-assistant/log"
)

// forcedContentLength is the bogus length advertised to players whose HTTP
// profile requires one; the stream has no real length.
const forcedContentLength = 4294967296

// HTTP profiles selecting the content-length strategy per player
const (
	HTTPProfileDefault      = "default"
	HTTPProfileForcedLength = "forced_content_length"
	HTTPProfileChunked      = "chunked"
)

// Router returns the chi router with the group command surface and the
// universal group stream endpoints.
func (p *Provider) Router() http.Handler {
	r := chi.NewRouter()
	r.Post("/groups", p.handleCreateGroup)
	r.Put("/groups/{groupID}", p.handleUpdateGroup)
	r.Delete("/groups/{groupID}", p.handleDeleteGroup)
	r.Get("/ugp/{groupID}.aac", p.serveStream)
	return r
}

// registerStreamRoute makes the stream endpoint live for the given group.
// Serving is refused for groups that were never registered or have been
// removed; registration is explicit so removal cleans up deterministically.
func (p *Provider) registerStreamRoute(groupID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.routes[groupID] = true
}

func (p *Provider) unregisterStreamRoute(groupID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.routes, groupID)
}

func (p *Provider) routeRegistered(groupID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.routes[groupID]
}

// createGroupRequest is the request body for creating a group player
type createGroupRequest struct {
	GroupType string   `json:"groupType"`
	Name      string   `json:"name"`
	Members   []string `json:"members"`
}

func (p *Provider) handleCreateGroup(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req createGroupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		p.sendError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	player, err := p.CreateGroup(ctx, req.GroupType, req.Name, req.Members)
	if err != nil {
		log.Error(ctx, "Failed to create group", "type", req.GroupType, "name", req.Name, err)
		switch {
		case errors.Is(err, ErrProviderUnavailable), errors.Is(err, ErrPlayerUnavailable):
			p.sendError(w, http.StatusNotFound, err.Error())
		case errors.Is(err, ErrUnsupportedOperation):
			p.sendError(w, http.StatusBadRequest, err.Error())
		default:
			p.sendError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}
	p.sendJSON(w, http.StatusCreated, player)
}

// updateGroupRequest is the request body for updating a group configuration.
// Omitted fields keep their current value.
type updateGroupRequest struct {
	Name    string   `json:"name"`
	Members []string `json:"members"`
	Enabled *bool    `json:"enabled"`
}

func (p *Provider) handleUpdateGroup(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	groupID := chi.URLParam(r, "groupID")

	var req updateGroupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		p.sendError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	cfg, err := p.UpdateGroup(ctx, groupID, req.Name, req.Members, req.Enabled)
	if err != nil {
		log.Error(ctx, "Failed to update group", "groupID", groupID, err)
		if errors.Is(err, ErrPlayerUnavailable) {
			p.sendError(w, http.StatusNotFound, err.Error())
		} else {
			p.sendError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}
	p.sendJSON(w, http.StatusOK, cfg)
}

func (p *Provider) handleDeleteGroup(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	groupID := chi.URLParam(r, "groupID")

	if err := p.DeleteGroup(ctx, groupID); err != nil {
		log.Error(ctx, "Failed to delete group", "groupID", groupID, err)
		if errors.Is(err, ErrPlayerUnavailable) {
			p.sendError(w, http.StatusNotFound, err.Error())
		} else {
			p.sendError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// serveStream relays the group's broadcast stream chunks to one member until
// the stream ends or the connection breaks.
func (p *Provider) serveStream(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	groupID := chi.URLParam(r, "groupID")
	memberID := r.URL.Query().Get("player_id") // optional

	if !p.routeRegistered(groupID) {
		http.Error(w, fmt.Sprintf("Unknown UGP player: %s", groupID), http.StatusNotFound)
		return
	}
	stream := p.getStream(groupID)
	if stream == nil || stream.Done() {
		http.Error(w, fmt.Sprintf("%v: %s", ErrStreamNotFound, groupID), http.StatusNotFound)
		return
	}

	header := w.Header()
	header.Set("Server", "Music Assistant")
	header.Set("Content-Type", stream.OutputFormat().MimeType())
	header.Set("Accept-Ranges", "none")
	header.Set("Cache-Control", "no-cache,must-revalidate")
	header.Set("Pragma", "no-cache")
	header.Set("Connection", "close")

	switch p.httpProfileFor(memberID) {
	case HTTPProfileForcedLength:
		header.Set("Content-Length", fmt.Sprint(forcedContentLength))
	default:
		// unbounded/chunked: let the server pick chunked transfer encoding
	}
	w.WriteHeader(http.StatusOK)

	flusher, _ := w.(http.Flusher)
	log.Debug(ctx, "Start serving UGP audio stream", "groupID", groupID, "playerID", memberID,
		"remote", r.RemoteAddr)

	chunks, detach := stream.Subscribe()
	defer detach()
	for {
		select {
		case chunk, ok := <-chunks:
			if !ok || len(chunk) == 0 {
				return
			}
			if _, err := w.Write(chunk); err != nil {
				log.Debug(ctx, "Stream subscriber disconnected", "groupID", groupID, "playerID", memberID, err)
				return
			}
			if flusher != nil {
				flusher.Flush()
			}
		case <-ctx.Done():
			return
		}
	}
}

// httpProfileFor resolves the requesting member's configured HTTP profile
func (p *Provider) httpProfileFor(memberID string) string {
	if memberID == "" {
		return HTTPProfileDefault
	}
	member, ok := p.registry.Get(memberID)
	if !ok || member.HTTPProfile == "" {
		return HTTPProfileDefault
	}
	return member.HTTPProfile
}

// StreamBaseURL returns the base URL group members use to reach the stream
// endpoints. It must be reachable from the players' network.
func (p *Provider) StreamBaseURL() string {
	if conf.Server.BaseURL != "" {
		return conf.Server.BaseURL
	}
	address := conf.Server.Address
	if address == "" || address == "0.0.0.0" {
		address = "127.0.0.1"
	}
	return fmt.Sprintf("http://%s:%d", address, conf.Server.Port)
}

func (p *Provider) sendJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Error("Failed to encode JSON response", err)
	}
}

func (p *Provider) sendError(w http.ResponseWriter, status int, message string) {
	p.sendJSON(w, status, map[string]string{"error": message})
}
