package players

import (
	"context"
	"sync"

	"github.com/sardaralii/music-assistant/log"
	"github.com/sardaralii/music-assistant/model"
)

// Controller issues the actual transport commands for players of one provider.
// Implementations talk to the real devices; the registry only dispatches.
type Controller interface {
	Stop(ctx context.Context, playerID string) error
	Play(ctx context.Context, playerID string) error
	Pause(ctx context.Context, playerID string) error
	Power(ctx context.Context, playerID string, powered bool) error
	SyncMany(ctx context.Context, leaderID string, memberIDs []string) error
	Unsync(ctx context.Context, playerID string) error
	PlayMedia(ctx context.Context, playerID string, media model.PlayerMedia) error
	EnqueueNextMedia(ctx context.Context, playerID string, media model.PlayerMedia) error
}

// Registry is an in-memory implementation of model.PlayerRegistry. Player
// records are mutated in place; attribute writes are last-write-wins. Remote
// commands are dispatched to the Controller registered for the player's
// provider and are best-effort: a missing controller is logged, not an error.
type Registry struct {
	mu          sync.RWMutex
	players     map[string]*model.Player
	order       []string
	providers   map[string]*model.ProviderInfo
	controllers map[string]Controller
	observers   []func(playerID string)
}

var _ model.PlayerRegistry = (*Registry)(nil)

// NewRegistry creates an empty player registry
func NewRegistry() *Registry {
	return &Registry{
		players:     map[string]*model.Player{},
		providers:   map[string]*model.ProviderInfo{},
		controllers: map[string]Controller{},
	}
}

// RegisterProvider makes a player provider known to the registry
func (r *Registry) RegisterProvider(info *model.ProviderInfo, ctrl Controller) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[info.Domain] = info
	if ctrl != nil {
		r.controllers[info.Domain] = ctrl
	}
}

// Subscribe registers a callback invoked on every player update
func (r *Registry) Subscribe(fn func(playerID string)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.observers = append(r.observers, fn)
}

func (r *Registry) Get(playerID string) (*model.Player, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.players[playerID]
	return p, ok
}

func (r *Registry) GetProvider(domain string) (*model.ProviderInfo, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[domain]
	return p, ok
}

// All returns all registered players in insertion order
func (r *Registry) All() []*model.Player {
	r.mu.RLock()
	defer r.mu.RUnlock()
	result := make([]*model.Player, 0, len(r.order))
	for _, id := range r.order {
		result = append(result, r.players[id])
	}
	return result
}

func (r *Registry) RegisterOrUpdate(player *model.Player) {
	r.mu.Lock()
	if _, ok := r.players[player.ID]; !ok {
		r.order = append(r.order, player.ID)
	}
	r.players[player.ID] = player
	r.mu.Unlock()
	log.Debug("Player registered", "playerID", player.ID, "provider", player.Provider)
	r.notify(player.ID)
}

func (r *Registry) Remove(playerID string) {
	r.mu.Lock()
	delete(r.players, playerID)
	for i, id := range r.order {
		if id == playerID {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	r.mu.Unlock()
	log.Debug("Player removed", "playerID", playerID)
}

func (r *Registry) Update(playerID string) {
	r.notify(playerID)
}

func (r *Registry) notify(playerID string) {
	r.mu.RLock()
	observers := make([]func(string), len(r.observers))
	copy(observers, r.observers)
	r.mu.RUnlock()
	for _, fn := range observers {
		fn(playerID)
	}
}

func (r *Registry) controllerFor(playerID string) (Controller, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	player, ok := r.players[playerID]
	if !ok {
		return nil, false
	}
	ctrl, ok := r.controllers[player.Provider]
	return ctrl, ok
}

func (r *Registry) dispatch(playerID, cmd string, fn func(Controller) error) error {
	ctrl, ok := r.controllerFor(playerID)
	if !ok {
		log.Debug("No controller for player, dropping command", "playerID", playerID, "cmd", cmd)
		return nil
	}
	if err := fn(ctrl); err != nil {
		log.Warn("Player command failed", "playerID", playerID, "cmd", cmd, err)
		return err
	}
	return nil
}

func (r *Registry) CmdStop(ctx context.Context, playerID string) error {
	return r.dispatch(playerID, "stop", func(c Controller) error { return c.Stop(ctx, playerID) })
}

func (r *Registry) CmdPlay(ctx context.Context, playerID string) error {
	return r.dispatch(playerID, "play", func(c Controller) error { return c.Play(ctx, playerID) })
}

func (r *Registry) CmdPause(ctx context.Context, playerID string) error {
	return r.dispatch(playerID, "pause", func(c Controller) error { return c.Pause(ctx, playerID) })
}

func (r *Registry) CmdPower(ctx context.Context, playerID string, powered bool) error {
	return r.dispatch(playerID, "power", func(c Controller) error { return c.Power(ctx, playerID, powered) })
}

func (r *Registry) CmdSyncMany(ctx context.Context, leaderID string, memberIDs []string) error {
	return r.dispatch(leaderID, "sync_many", func(c Controller) error { return c.SyncMany(ctx, leaderID, memberIDs) })
}

func (r *Registry) CmdUnsync(ctx context.Context, playerID string) error {
	return r.dispatch(playerID, "unsync", func(c Controller) error { return c.Unsync(ctx, playerID) })
}

func (r *Registry) PlayMedia(ctx context.Context, playerID string, media model.PlayerMedia) error {
	return r.dispatch(playerID, "play_media", func(c Controller) error { return c.PlayMedia(ctx, playerID, media) })
}

func (r *Registry) EnqueueNextMedia(ctx context.Context, playerID string, media model.PlayerMedia) error {
	return r.dispatch(playerID, "enqueue_next_media", func(c Controller) error { return c.EnqueueNextMedia(ctx, playerID, media) })
}
