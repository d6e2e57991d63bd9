package model

import "context"

// PlayerRegistry is the contract the group coordination core consumes from the
// player controller. It stores per-player state, issues low-level transport
// commands to the real devices and notifies observers of attribute changes.
// Commands are independent, retryable remote operations; the registry owns its
// own retry/reporting policy.
type PlayerRegistry interface {
	// Get returns the player with the given id, or false if it is not registered
	Get(playerID string) (*Player, bool)
	// GetProvider returns info about a registered player provider by domain
	GetProvider(domain string) (*ProviderInfo, bool)
	// RegisterOrUpdate inserts or replaces a player record
	RegisterOrUpdate(player *Player)
	// Remove deletes a player record
	Remove(playerID string)
	// Update flushes the player's (mutated) attributes to observers
	Update(playerID string)

	CmdStop(ctx context.Context, playerID string) error
	CmdPlay(ctx context.Context, playerID string) error
	CmdPause(ctx context.Context, playerID string) error
	CmdPower(ctx context.Context, playerID string, powered bool) error
	// CmdSyncMany joins all given members to the leader in one call
	CmdSyncMany(ctx context.Context, leaderID string, memberIDs []string) error
	// CmdUnsync detaches the player from whatever it is currently synced to
	CmdUnsync(ctx context.Context, playerID string) error
	PlayMedia(ctx context.Context, playerID string, media PlayerMedia) error
	EnqueueNextMedia(ctx context.Context, playerID string, media PlayerMedia) error
}
