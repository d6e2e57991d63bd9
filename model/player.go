package model

import (
	"slices"
	"time"
)

// PlayerState represents the playback state of a player
type PlayerState string

const (
	PlayerStateIdle    PlayerState = "idle"
	PlayerStatePlaying PlayerState = "playing"
	PlayerStatePaused  PlayerState = "paused"
)

// PlayerType distinguishes real devices from virtual group players
type PlayerType string

const (
	PlayerTypePlayer PlayerType = "player"
	PlayerTypeGroup  PlayerType = "group"
)

// PlayerFeature is an optional capability of a player
type PlayerFeature string

const (
	FeaturePower     PlayerFeature = "power"
	FeatureVolumeSet PlayerFeature = "volume_set"
	FeaturePause     PlayerFeature = "pause"
	FeatureMute      PlayerFeature = "volume_mute"
	FeatureSync      PlayerFeature = "sync"
	FeatureEnqueue   PlayerFeature = "enqueue"
)

// DeviceInfo holds descriptive device metadata
type DeviceInfo struct {
	Model        string `json:"model"`
	Manufacturer string `json:"manufacturer"`
}

// Player represents a player known to the registry. Group players are virtual
// players exposing the same attributes as real devices.
type Player struct {
	ID                string          `json:"id"`
	Provider          string          `json:"provider"`
	Type              PlayerType      `json:"type"`
	Name              string          `json:"name"`
	Available         bool            `json:"available"`
	Powered           bool            `json:"powered"`
	State             PlayerState     `json:"state"`
	DeviceInfo        DeviceInfo      `json:"deviceInfo"`
	SupportedFeatures []PlayerFeature `json:"supportedFeatures"`

	// ActiveGroup is set on a member when a group player has claimed it
	ActiveGroup string `json:"activeGroup,omitempty"`
	// ActiveSource identifies whichever logical player owns the current output
	ActiveSource string `json:"activeSource,omitempty"`
	// SyncedTo is set when this player mirrors another player's output
	SyncedTo string `json:"syncedTo,omitempty"`
	// GroupChilds is non-empty for group players and for players currently
	// acting as a physical sync leader
	GroupChilds []string `json:"groupChilds,omitempty"`

	CurrentMedia           *PlayerMedia `json:"currentMedia,omitempty"`
	ElapsedTime            float64      `json:"elapsedTime"`
	ElapsedTimeLastUpdated time.Time    `json:"elapsedTimeLastUpdated"`

	// HTTPProfile selects the content-length strategy when this player is
	// served an audio stream: "default", "forced_content_length" or "chunked"
	HTTPProfile string `json:"httpProfile,omitempty"`
}

// HasFeature reports whether the player supports the given feature
func (p *Player) HasFeature(feature PlayerFeature) bool {
	return slices.Contains(p.SupportedFeatures, feature)
}

// ProviderInfo describes a player provider (player ecosystem) known to the registry
type ProviderInfo struct {
	Domain string `json:"domain"`
	Name   string `json:"name"`
	// SupportsSync is true when the provider can natively synchronize its players
	SupportsSync bool `json:"supportsSync"`
}
