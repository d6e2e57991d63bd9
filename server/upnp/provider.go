package upnp

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/sardaralii/music-assistant/core/players"
	"github.com/sardaralii/music-assistant/log"
	"github.com/sardaralii/music-assistant/model"
)

// Domain is the provider id UPnP/Sonos speakers are registered under
const Domain = "upnp"

// Provider discovers UPnP/Sonos zone players and exposes them as players in
// the registry. It implements the registry's controller contract: transport
// commands become SOAP calls, sync commands use the speakers' native zone
// grouping (x-rincon join).
type Provider struct {
	registry  model.PlayerRegistry
	discovery *discovery
	soap      *soapClient
	interval  time.Duration

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

var _ players.Controller = (*Provider)(nil)

// NewProvider creates the UPnP speaker provider. interval controls how often
// the network is re-scanned; zero means a 5 minute default.
func NewProvider(registry model.PlayerRegistry, interval time.Duration) *Provider {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &Provider{
		registry:  registry,
		discovery: newDiscovery(),
		soap:      newSOAPClient(),
		interval:  interval,
		stopCh:    make(chan struct{}),
	}
}

// ProviderInfo describes this provider to the registry
func (p *Provider) ProviderInfo() *model.ProviderInfo {
	return &model.ProviderInfo{Domain: Domain, Name: "UPnP / Sonos", SupportsSync: true}
}

// Start runs an initial discovery scan and begins periodic re-scanning
func (p *Provider) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return nil
	}
	p.running = true
	p.mu.Unlock()

	log.Info(ctx, "Starting UPnP speaker discovery", "interval", p.interval)
	p.runDiscovery(ctx)

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				p.runDiscovery(ctx)
			case <-p.stopCh:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
	return nil
}

// Shutdown stops the periodic discovery loop
func (p *Provider) Shutdown() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	p.mu.Unlock()
	close(p.stopCh)
	p.wg.Wait()
}

func (p *Provider) runDiscovery(ctx context.Context) {
	speakers, err := p.discovery.scan(ctx)
	if err != nil {
		log.Error(ctx, "UPnP discovery failed", err)
		return
	}
	if len(speakers) > 0 {
		if err := p.discovery.fetchZoneTopology(ctx, speakers[0]); err != nil {
			// without topology every speaker is treated as standalone
			log.Warn(ctx, "Failed to fetch zone topology", err)
			for _, speaker := range speakers {
				speaker.Coordinator = true
				speaker.GroupMembers = []string{speaker.UUID}
				p.discovery.cache.set(speaker)
			}
		}
	}
	for _, speaker := range p.discovery.cache.all() {
		p.publish(ctx, speaker)
	}
}

// publish maps one discovered speaker onto a registry player record
func (p *Provider) publish(ctx context.Context, speaker *Speaker) {
	player, ok := p.registry.Get(speaker.UUID)
	if !ok {
		player = &model.Player{
			ID:       speaker.UUID,
			Provider: Domain,
			Type:     model.PlayerTypePlayer,
			State:    model.PlayerStateIdle,
			SupportedFeatures: []model.PlayerFeature{
				model.FeatureVolumeSet, model.FeatureMute, model.FeaturePause,
				model.FeatureSync, model.FeatureEnqueue,
			},
		}
	}
	player.Name = speaker.RoomName
	player.Available = true
	player.Powered = true
	player.DeviceInfo = model.DeviceInfo{Model: speaker.ModelName, Manufacturer: "Sonos"}

	player.SyncedTo = ""
	player.GroupChilds = nil
	if speaker.Coordinator {
		for _, uuid := range speaker.GroupMembers {
			if uuid != speaker.UUID {
				player.GroupChilds = append(player.GroupChilds, uuid)
			}
		}
	} else if leader := coordinatorUUID(speaker); leader != "" {
		player.SyncedTo = leader
	}

	if state, err := p.transportState(ctx, speaker); err == nil {
		player.State = state
		if state == model.PlayerStatePlaying {
			if elapsed, err := p.positionInfo(ctx, speaker); err == nil {
				player.ElapsedTime = float64(elapsed)
				player.ElapsedTimeLastUpdated = time.Now()
			}
		}
	}
	p.registry.RegisterOrUpdate(player)
}

// coordinatorUUID derives the group coordinator's UUID from the zone group id
// (format "RINCON_xxx:nnn")
func coordinatorUUID(speaker *Speaker) string {
	if idx := strings.LastIndex(speaker.ZoneGroupID, ":"); idx > 0 {
		return speaker.ZoneGroupID[:idx]
	}
	return speaker.ZoneGroupID
}

func (p *Provider) transportState(ctx context.Context, speaker *Speaker) (model.PlayerState, error) {
	respBody, err := p.soap.transport(ctx, speaker, "GetTransportInfo",
		getTransportInfoAction{XmlnsU: avTransportURN, InstanceID: 0})
	if err != nil {
		return model.PlayerStateIdle, err
	}
	var resp getTransportInfoResponse
	if err := extractSOAPResponse(respBody, &resp); err != nil {
		return model.PlayerStateIdle, err
	}
	switch resp.CurrentTransportState {
	case transportStatePlaying, transportStateTransitioning:
		return model.PlayerStatePlaying, nil
	case transportStatePaused:
		return model.PlayerStatePaused, nil
	default:
		return model.PlayerStateIdle, nil
	}
}

func (p *Provider) positionInfo(ctx context.Context, speaker *Speaker) (int, error) {
	respBody, err := p.soap.transport(ctx, speaker, "GetPositionInfo",
		getPositionInfoAction{XmlnsU: avTransportURN, InstanceID: 0})
	if err != nil {
		return 0, err
	}
	var resp getPositionInfoResponse
	if err := extractSOAPResponse(respBody, &resp); err != nil {
		return 0, err
	}
	return parseClockDuration(resp.RelTime), nil
}

// speaker resolves a player id to a cached speaker
func (p *Provider) speaker(playerID string) (*Speaker, error) {
	speaker, ok := p.discovery.cache.get(playerID)
	if !ok {
		return nil, ErrSpeakerNotFound
	}
	return speaker, nil
}

// coordinator resolves a player id to the speaker all transport commands for
// its zone group must be addressed to
func (p *Provider) coordinator(playerID string) (*Speaker, error) {
	speaker, err := p.speaker(playerID)
	if err != nil {
		return nil, err
	}
	if speaker.Coordinator {
		return speaker, nil
	}
	if leader, ok := p.discovery.cache.get(coordinatorUUID(speaker)); ok && leader.Coordinator {
		return leader, nil
	}
	// coordinator unknown, try the speaker itself
	return speaker, nil
}

func (p *Provider) Stop(ctx context.Context, playerID string) error {
	speaker, err := p.coordinator(playerID)
	if err != nil {
		return err
	}
	_, err = p.soap.transport(ctx, speaker, "Stop",
		stopAction{XmlnsU: avTransportURN, InstanceID: 0})
	return err
}

func (p *Provider) Play(ctx context.Context, playerID string) error {
	speaker, err := p.coordinator(playerID)
	if err != nil {
		return err
	}
	_, err = p.soap.transport(ctx, speaker, "Play",
		playAction{XmlnsU: avTransportURN, InstanceID: 0, Speed: "1"})
	return err
}

func (p *Provider) Pause(ctx context.Context, playerID string) error {
	speaker, err := p.coordinator(playerID)
	if err != nil {
		return err
	}
	_, err = p.soap.transport(ctx, speaker, "Pause",
		pauseAction{XmlnsU: avTransportURN, InstanceID: 0})
	return err
}

// Power is a registry-state-only toggle: zone players have no power switch,
// so powering off simply stops playback.
func (p *Provider) Power(ctx context.Context, playerID string, powered bool) error {
	if !powered {
		if err := p.Stop(ctx, playerID); err != nil {
			log.Debug(ctx, "Stop on power off failed", "playerID", playerID, err)
		}
	}
	if player, ok := p.registry.Get(playerID); ok {
		player.Powered = powered
		p.registry.Update(playerID)
	}
	return nil
}

// SyncMany joins the given members to the leader's zone group using the
// native x-rincon transport URI.
func (p *Provider) SyncMany(ctx context.Context, leaderID string, memberIDs []string) error {
	if _, err := p.speaker(leaderID); err != nil {
		return err
	}
	for _, memberID := range memberIDs {
		speaker, err := p.speaker(memberID)
		if err != nil {
			return err
		}
		_, err = p.soap.transport(ctx, speaker, "SetAVTransportURI", setAVTransportURIAction{
			XmlnsU:     avTransportURN,
			InstanceID: 0,
			CurrentURI: "x-rincon:" + leaderID,
		})
		if err != nil {
			return err
		}
		if player, ok := p.registry.Get(memberID); ok {
			player.SyncedTo = leaderID
			p.registry.Update(memberID)
		}
	}
	if leader, ok := p.registry.Get(leaderID); ok {
		for _, memberID := range memberIDs {
			if !slices.Contains(leader.GroupChilds, memberID) {
				leader.GroupChilds = append(leader.GroupChilds, memberID)
			}
		}
		p.registry.Update(leaderID)
	}
	return nil
}

// Unsync makes the player the coordinator of its own standalone group again
func (p *Provider) Unsync(ctx context.Context, playerID string) error {
	speaker, err := p.speaker(playerID)
	if err != nil {
		return err
	}
	_, err = p.soap.transport(ctx, speaker, "BecomeCoordinatorOfStandaloneGroup",
		becomeStandaloneAction{XmlnsU: avTransportURN, InstanceID: 0})
	if err != nil {
		return err
	}
	if player, ok := p.registry.Get(playerID); ok {
		player.SyncedTo = ""
		p.registry.Update(playerID)
	}
	return nil
}

func (p *Provider) PlayMedia(ctx context.Context, playerID string, media model.PlayerMedia) error {
	speaker, err := p.coordinator(playerID)
	if err != nil {
		return err
	}
	metadata := buildDIDLMetadata(playerID, media.Title, media.URI, mimeTypeFor(media))
	_, err = p.soap.transport(ctx, speaker, "SetAVTransportURI", setAVTransportURIAction{
		XmlnsU:             avTransportURN,
		InstanceID:         0,
		CurrentURI:         media.URI,
		CurrentURIMetaData: metadata,
	})
	if err != nil {
		return err
	}
	return p.Play(ctx, playerID)
}

func (p *Provider) EnqueueNextMedia(ctx context.Context, playerID string, media model.PlayerMedia) error {
	speaker, err := p.coordinator(playerID)
	if err != nil {
		return err
	}
	metadata := buildDIDLMetadata(playerID, media.Title, media.URI, mimeTypeFor(media))
	_, err = p.soap.transport(ctx, speaker, "SetNextAVTransportURI", setNextAVTransportURIAction{
		XmlnsU:          avTransportURN,
		InstanceID:      0,
		NextURI:         media.URI,
		NextURIMetaData: metadata,
	})
	return err
}

// SetVolume sets the master channel volume (0-100) on one speaker
func (p *Provider) SetVolume(ctx context.Context, playerID string, volume int) error {
	speaker, err := p.speaker(playerID)
	if err != nil {
		return err
	}
	if volume < 0 {
		volume = 0
	}
	if volume > 100 {
		volume = 100
	}
	_, err = p.soap.rendering(ctx, speaker, "SetVolume", setVolumeAction{
		XmlnsU:        renderingControlURN,
		InstanceID:    0,
		Channel:       "Master",
		DesiredVolume: volume,
	})
	return err
}

// SetMute mutes or unmutes the master channel on one speaker
func (p *Provider) SetMute(ctx context.Context, playerID string, mute bool) error {
	speaker, err := p.speaker(playerID)
	if err != nil {
		return err
	}
	desired := 0
	if mute {
		desired = 1
	}
	_, err = p.soap.rendering(ctx, speaker, "SetMute", setMuteAction{
		XmlnsU:      renderingControlURN,
		InstanceID:  0,
		Channel:     "Master",
		DesiredMute: desired,
	})
	return err
}

func mimeTypeFor(media model.PlayerMedia) string {
	return model.AudioFormat{ContentType: model.ContentTypeFromURI(media.URI)}.MimeType()
}

