package groups

import (
	"context"
	"fmt"
	"io"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/sardaralii/music-assistant/core/metrics"
	"github.com/sardaralii/music-assistant/core/transcode"
	"github.com/sardaralii/music-assistant/log"
	"github.com/sardaralii/music-assistant/model"
	"github.com/sardaralii/music-assistant/model/id"
)

const (
	// ProviderDomain is the provider id group players are registered under
	ProviderDomain = "player_group"

	// UniversalPrefix namespaces universal group player ids
	UniversalPrefix = "ugp_"
	// SyncGroupPrefix namespaces sync group player ids
	SyncGroupPrefix = "syncgroup_"

	// GroupTypeUniversal marks a group of heterogeneous players unified by
	// server-side re-streaming; any other group type is the domain of a
	// sync-capable player provider
	GroupTypeUniversal = "universal"
)

// StreamSources resolves the audio sources the group engine itself does not
// produce: announcements and playback-queue driven flow streams.
type StreamSources interface {
	AnnouncementStream(ctx context.Context, url string, format model.AudioFormat, preAnnounce bool) (io.ReadCloser, error)
	FlowStream(ctx context.Context, queueID, queueItemID string, format model.AudioFormat) (io.ReadCloser, error)
}

// Provider is the virtual player provider for group players: it maintains the
// group-as-player abstraction, routes group-directed commands to members and
// operates the universal group broadcast streams.
type Provider struct {
	registry   model.PlayerRegistry
	config     ConfigStore
	transcoder transcode.Transcoder
	sources    StreamSources
	metrics    *metrics.Metrics
	warmup     time.Duration
	chunkSize  int

	mu      sync.Mutex
	streams map[string]*Stream
	routes  map[string]bool
}

// NewProvider creates the group player provider. Call RegisterAll once the
// registry has been populated to bring up all configured groups.
func NewProvider(registry model.PlayerRegistry, store ConfigStore, tc transcode.Transcoder) *Provider {
	return &Provider{
		registry:   registry,
		config:     store,
		transcoder: tc,
		warmup:     defaultWarmupDelay,
		streams:    map[string]*Stream{},
		routes:     map[string]bool{},
	}
}

// SetStreamSources wires the announcement/flow source resolver
func (p *Provider) SetStreamSources(s StreamSources) {
	p.sources = s
}

// SetMetrics wires Prometheus instrumentation
func (p *Provider) SetMetrics(m *metrics.Metrics) {
	p.metrics = m
}

// SetStreamWarmupDelay overrides the broadcast stream warm-up delay
func (p *Provider) SetStreamWarmupDelay(d time.Duration) {
	p.warmup = d
}

// SetStreamChunkSize overrides the broadcast stream read size
func (p *Provider) SetStreamChunkSize(size int) {
	p.chunkSize = size
}

// IsUniversal reports whether the given group player id is a universal group
func IsUniversal(groupID string) bool {
	return strings.HasPrefix(groupID, UniversalPrefix)
}

// IsSyncGroup reports whether the given group player id is a sync group
func IsSyncGroup(groupID string) bool {
	return strings.HasPrefix(groupID, SyncGroupPrefix)
}

// CreateGroup validates the request, persists a new group configuration and
// registers the resulting group player.
func (p *Provider) CreateGroup(ctx context.Context, groupType, name string, members []string) (*model.Player, error) {
	prefix := SyncGroupPrefix
	if groupType == GroupTypeUniversal {
		prefix = UniversalPrefix
	} else {
		provider, ok := p.registry.GetProvider(groupType)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrProviderUnavailable, groupType)
		}
		if !provider.SupportsSync {
			return nil, fmt.Errorf("%w: provider %s does not support creating groups",
				ErrUnsupportedOperation, provider.Name)
		}
	}

	groupID := prefix + id.NewShort()
	members = p.filterMembers(groupType, members)
	cfg := GroupConfig{
		GroupID:   groupID,
		GroupType: groupType,
		Name:      name,
		Members:   members,
		Enabled:   true,
	}
	if err := p.config.SaveGroupConfig(cfg); err != nil {
		return nil, fmt.Errorf("persisting group config: %w", err)
	}
	log.Info(ctx, "Group created", "groupID", groupID, "type", groupType, "members", members)
	return p.registerGroupPlayer(groupID, groupType, name, members)
}

// RegisterAll idempotently registers every configured group that is not yet
// present in the registry. Invoked at startup and whenever a new underlying
// player appears, so a late-joining member can complete a previously
// incomplete group.
func (p *Provider) RegisterAll(ctx context.Context) error {
	configs, err := p.config.GroupConfigs()
	if err != nil {
		return err
	}
	var result *multierror.Error
	for _, cfg := range configs {
		if !cfg.Enabled {
			continue
		}
		if _, ok := p.registry.Get(cfg.GroupID); ok {
			continue // already registered
		}
		if _, err := p.registerGroupPlayer(cfg.GroupID, cfg.GroupType, cfg.Name, cfg.Members); err != nil {
			log.Debug(ctx, "Group not (yet) registered", "groupID", cfg.GroupID, err)
			result = multierror.Append(result, fmt.Errorf("group %s: %w", cfg.GroupID, err))
		}
	}
	return result.ErrorOrNil()
}

// OnPlayerAdded handles a new player appearing in the registry; a late joiner
// may complete a previously incomplete group.
func (p *Provider) OnPlayerAdded(ctx context.Context, playerID string) {
	if strings.HasPrefix(playerID, UniversalPrefix) || strings.HasPrefix(playerID, SyncGroupPrefix) {
		return
	}
	if err := p.RegisterAll(ctx); err != nil {
		log.Debug(ctx, "Not all groups registered after player added", "playerID", playerID, err)
	}
}

// OnGroupConfigChanged reacts to a changed group configuration entry:
// a disabled group is powered off, and a changed member list is re-filtered
// and pushed to the registered group player.
func (p *Provider) OnGroupConfigChanged(ctx context.Context, cfg GroupConfig) {
	if !cfg.Enabled {
		if err := p.CmdPower(ctx, cfg.GroupID, false); err != nil {
			log.Warn(ctx, "Failed to power off disabled group", "groupID", cfg.GroupID, err)
		}
		return
	}
	members := p.filterMembers(cfg.GroupType, cfg.Members)
	cfg.Members = members
	if err := p.config.SaveGroupConfig(cfg); err != nil {
		log.Error(ctx, "Failed to persist filtered group members", "groupID", cfg.GroupID, err)
	}
	if group, ok := p.registry.Get(cfg.GroupID); ok {
		group.Name = cfg.Name
		group.GroupChilds = members
		p.registry.Update(cfg.GroupID)
	}
}

// UpdateGroup applies changes to an existing group's configuration entry:
// persists the new entry and pushes the effects to the registered group
// player. A nil enabled pointer keeps the current setting; empty name and nil
// members likewise.
func (p *Provider) UpdateGroup(ctx context.Context, groupID, name string, members []string, enabled *bool) (GroupConfig, error) {
	configs, err := p.config.GroupConfigs()
	if err != nil {
		return GroupConfig{}, err
	}
	idx := slices.IndexFunc(configs, func(c GroupConfig) bool { return c.GroupID == groupID })
	if idx == -1 {
		return GroupConfig{}, fmt.Errorf("%w: no configuration for group %s", ErrPlayerUnavailable, groupID)
	}
	cfg := configs[idx]
	if name != "" {
		cfg.Name = name
	}
	if members != nil {
		cfg.Members = members
	}
	if enabled != nil {
		cfg.Enabled = *enabled
	}
	if err := p.config.SaveGroupConfig(cfg); err != nil {
		return GroupConfig{}, err
	}
	p.OnGroupConfigChanged(ctx, cfg)
	if updated, err := p.config.GroupConfigs(); err == nil {
		if idx := slices.IndexFunc(updated, func(c GroupConfig) bool { return c.GroupID == groupID }); idx != -1 {
			return updated[idx], nil
		}
	}
	return cfg, nil
}

// DeleteGroup removes the group's configuration entry and tears down the
// registered group player.
func (p *Provider) DeleteGroup(ctx context.Context, groupID string) error {
	configs, err := p.config.GroupConfigs()
	if err != nil {
		return err
	}
	if !slices.ContainsFunc(configs, func(c GroupConfig) bool { return c.GroupID == groupID }) {
		return fmt.Errorf("%w: no configuration for group %s", ErrPlayerUnavailable, groupID)
	}
	if err := p.config.RemoveGroupConfig(groupID); err != nil {
		return err
	}
	p.OnGroupConfigRemoved(ctx, groupID)
	return nil
}

// OnGroupConfigRemoved handles removal of a group's configuration entry. If
// the group is powered, every powered active member is released first; members
// that are mid-playback and not synced elsewhere are stopped.
func (p *Provider) OnGroupConfigRemoved(ctx context.Context, groupID string) {
	group, ok := p.registry.Get(groupID)
	if !ok {
		return
	}
	if group.Powered {
		for _, member := range p.groupMembers(group, memberFilter{onlyPowered: true}) {
			member.ActiveGroup = ""
			if member.State == model.PlayerStateIdle {
				continue
			}
			if member.SyncedTo != "" {
				continue
			}
			memberID := member.ID
			go func() {
				if err := p.registry.CmdStop(ctx, memberID); err != nil {
					log.Warn(ctx, "Failed to stop group member", "playerID", memberID, err)
				}
			}()
		}
	}
	p.unregisterStreamRoute(groupID)
	p.registry.Remove(groupID)
	log.Info(ctx, "Group player removed", "groupID", groupID)
}

// registerGroupPlayer validates membership, computes the group's feature set
// and inserts the virtual group player into the registry.
func (p *Provider) registerGroupPlayer(groupID, groupType, name string, members []string) (*model.Player, error) {
	features := []model.PlayerFeature{model.FeaturePower, model.FeatureVolumeSet}

	resolved := 0
	for _, memberID := range members {
		if _, ok := p.registry.Get(memberID); ok {
			resolved++
		}
	}
	if resolved == 0 {
		return nil, fmt.Errorf("%w: none of the group members resolve", ErrPlayerUnavailable)
	}

	deviceInfo := model.DeviceInfo{Model: "Sync Group"}
	if groupType == GroupTypeUniversal {
		deviceInfo = model.DeviceInfo{Model: "Universal Group", Manufacturer: "Music Assistant"}
		p.registerStreamRoute(groupID)
	} else {
		provider, ok := p.registry.GetProvider(groupType)
		if !ok {
			return nil, fmt.Errorf("%w: provider for syncgroup %s", ErrProviderUnavailable, groupType)
		}
		deviceInfo.Manufacturer = provider.Name
		// pause/mute only when every prospective member supports them
		for _, feature := range []model.PlayerFeature{model.FeaturePause, model.FeatureMute} {
			supported := true
			for _, memberID := range members {
				member, ok := p.registry.Get(memberID)
				if ok && !member.HasFeature(feature) {
					supported = false
					break
				}
			}
			if supported {
				features = append(features, feature)
			}
		}
	}

	player := &model.Player{
		ID:                groupID,
		Provider:          ProviderDomain,
		Type:              model.PlayerTypeGroup,
		Name:              name,
		Available:         true,
		Powered:           false,
		State:             model.PlayerStateIdle,
		DeviceInfo:        deviceInfo,
		SupportedFeatures: features,
		GroupChilds:       slices.Clone(members),
		ActiveSource:      groupID,
	}
	p.registry.RegisterOrUpdate(player)
	p.updateAttributes(player)
	return player, nil
}

// filterMembers drops proposed member ids that can not be part of a group of
// the given type. For sync groups only players of the matching provider are
// retained. For universal groups, other universal groups are excluded (no
// nesting), as are children of a sync group that is itself in the list
// (avoids double-counting speakers reachable through two entries).
func (p *Provider) filterMembers(groupType string, proposed []string) []string {
	if groupType != GroupTypeUniversal {
		var result []string
		for _, memberID := range proposed {
			player, ok := p.registry.Get(memberID)
			if ok && player.Provider == groupType {
				result = append(result, memberID)
			}
		}
		return result
	}
	var syncgroupChilds []string
	for _, memberID := range proposed {
		if !IsSyncGroup(memberID) {
			continue
		}
		if syncgroup, ok := p.registry.Get(memberID); ok {
			syncgroupChilds = append(syncgroupChilds, syncgroup.GroupChilds...)
		}
	}
	var result []string
	for _, memberID := range proposed {
		if _, ok := p.registry.Get(memberID); !ok {
			continue
		}
		if IsUniversal(memberID) {
			continue
		}
		if slices.Contains(syncgroupChilds, memberID) {
			continue
		}
		result = append(result, memberID)
	}
	return result
}

// updateAttributes recomputes the group's mirrored playback attributes from
// the first active member, falling back to idle when none exists.
func (p *Provider) updateAttributes(group *model.Player) {
	members := p.groupMembers(group, memberFilter{activeOnly: true})
	if len(members) == 0 {
		group.State = model.PlayerStateIdle
		group.ActiveSource = group.ID
	} else {
		first := members[0]
		group.State = first.State
		if group.CurrentMedia != nil {
			group.CurrentMedia = first.CurrentMedia
		}
		group.ElapsedTime = first.ElapsedTime
		group.ElapsedTimeLastUpdated = first.ElapsedTimeLastUpdated
	}
	p.registry.Update(group.ID)
}

// getGroup resolves a group player id, mapping a missing player to the
// unavailable error
func (p *Provider) getGroup(groupID string) (*model.Player, error) {
	group, ok := p.registry.Get(groupID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrPlayerUnavailable, groupID)
	}
	return group, nil
}

// Shutdown stops all live broadcast streams
func (p *Provider) Shutdown() {
	p.mu.Lock()
	streams := make([]*Stream, 0, len(p.streams))
	for _, stream := range p.streams {
		streams = append(streams, stream)
	}
	p.streams = map[string]*Stream{}
	p.mu.Unlock()
	for _, stream := range streams {
		stream.Stop()
	}
}
