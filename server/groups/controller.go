package groups

import (
	"context"
	"fmt"

	"github.com/sardaralii/music-assistant/core/players"
	"github.com/sardaralii/music-assistant/model"
)

// controller adapts the provider to the registry's per-provider command sink,
// so commands addressed to a group player (e.g. a sync group that is itself a
// member of a universal group) dispatch like any other player command.
type controller struct {
	p *Provider
}

// Controller returns the command sink to register for ProviderDomain
func (p *Provider) Controller() players.Controller {
	return &controller{p: p}
}

// Info returns the registry descriptor for the group player provider
func (p *Provider) Info() *model.ProviderInfo {
	return &model.ProviderInfo{Domain: ProviderDomain, Name: "Player Groups"}
}

func (c *controller) Stop(ctx context.Context, playerID string) error {
	return c.p.CmdStop(ctx, playerID)
}

func (c *controller) Play(ctx context.Context, playerID string) error {
	return c.p.CmdPlay(ctx, playerID)
}

func (c *controller) Pause(ctx context.Context, playerID string) error {
	return c.p.CmdPause(ctx, playerID)
}

func (c *controller) Power(ctx context.Context, playerID string, powered bool) error {
	return c.p.CmdPower(ctx, playerID, powered)
}

// group players never participate in native sync themselves
func (c *controller) SyncMany(_ context.Context, leaderID string, _ []string) error {
	return fmt.Errorf("%w: sync on group player %s", ErrUnsupportedOperation, leaderID)
}

func (c *controller) Unsync(_ context.Context, playerID string) error {
	return fmt.Errorf("%w: unsync on group player %s", ErrUnsupportedOperation, playerID)
}

func (c *controller) PlayMedia(ctx context.Context, playerID string, media model.PlayerMedia) error {
	return c.p.PlayMedia(ctx, playerID, media)
}

func (c *controller) EnqueueNextMedia(ctx context.Context, playerID string, media model.PlayerMedia) error {
	return c.p.EnqueueNextMedia(ctx, playerID, media)
}
