package groups

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sardaralii/music-assistant/log"
	"github.com/sardaralii/music-assistant/model"
)

// taskGroup runs best-effort member commands in parallel and joins them.
// Individual failures are the callers' concern (they log, never propagate),
// matching the optimistic fan-out semantics of group commands.
type taskGroup struct {
	wg sync.WaitGroup
}

func (t *taskGroup) Go(fn func()) {
	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		fn()
	}()
}

func (t *taskGroup) Wait() {
	t.wg.Wait()
}

func (p *Provider) incCommand(command string) {
	if p.metrics != nil {
		p.metrics.IncGroupCommand(command)
	}
}

// CmdStop stops playback on the group. Sync groups forward to the sync
// leader; universal groups stop every active playing member in parallel and
// terminate the group's broadcast stream. Group state is set to idle
// optimistically either way.
func (p *Provider) CmdStop(ctx context.Context, groupID string) error {
	group, err := p.getGroup(groupID)
	if err != nil {
		return err
	}
	p.incCommand("stop")

	if IsSyncGroup(groupID) {
		if leader := p.syncLeader(group); leader != nil {
			if err := p.registry.CmdStop(ctx, leader.ID); err != nil {
				log.Warn(ctx, "Stop command to sync leader failed", "groupID", groupID, "leader", leader.ID, err)
			}
		}
	} else {
		var tg taskGroup
		for _, member := range p.groupMembers(group, memberFilter{activeOnly: true, onlyPlaying: true}) {
			memberID := member.ID
			tg.Go(func() {
				if err := p.registry.CmdStop(ctx, memberID); err != nil {
					log.Warn(ctx, "Stop command to group member failed", "groupID", groupID, "playerID", memberID, err)
				}
			})
		}
		tg.Wait()
		// abort the stream session
		if stream := p.popStream(groupID); stream != nil && !stream.Done() {
			stream.Stop()
		}
	}

	group.State = model.PlayerStateIdle
	p.registry.Update(groupID)
	return nil
}

// CmdPlay resumes playback on a sync group by forwarding to the sync leader.
// Universal groups do not support it.
func (p *Provider) CmdPlay(ctx context.Context, groupID string) error {
	group, err := p.getGroup(groupID)
	if err != nil {
		return err
	}
	if !IsSyncGroup(groupID) {
		return fmt.Errorf("%w: play on universal group %s", ErrUnsupportedOperation, groupID)
	}
	p.incCommand("play")
	if leader := p.syncLeader(group); leader != nil {
		return p.registry.CmdPlay(ctx, leader.ID)
	}
	return nil
}

// CmdPause pauses playback on a sync group by forwarding to the sync leader.
// Universal groups do not support it.
func (p *Provider) CmdPause(ctx context.Context, groupID string) error {
	group, err := p.getGroup(groupID)
	if err != nil {
		return err
	}
	if !IsSyncGroup(groupID) {
		return fmt.Errorf("%w: pause on universal group %s", ErrUnsupportedOperation, groupID)
	}
	p.incCommand("pause")
	if leader := p.syncLeader(group); leader != nil {
		return p.registry.CmdPause(ctx, leader.ID)
	}
	return nil
}

// CmdPower powers the group on or off. Powering off a playing group forces a
// stop first. All per-member actions run concurrently; within one member the
// stop/power sub-steps stay sequential. Powering on a sync group triggers a
// resync afterwards.
func (p *Provider) CmdPower(ctx context.Context, groupID string, powered bool) error {
	group, err := p.getGroup(groupID)
	if err != nil {
		return err
	}
	p.incCommand("power")

	if !powered && (group.State == model.PlayerStatePlaying || group.State == model.PlayerStatePaused) {
		if err := p.CmdStop(ctx, groupID); err != nil {
			return err
		}
	}

	var tg taskGroup
	if powered {
		for _, member := range p.groupMembers(group, memberFilter{}) {
			needsStop := (member.State == model.PlayerStatePlaying || member.State == model.PlayerStatePaused) &&
				member.ActiveSource != group.ActiveSource
			needsPower := !member.Powered
			if needsStop || needsPower {
				tg.Go(func() {
					if needsStop {
						// stop foreign content before it leaks into the group
						if err := p.registry.CmdStop(ctx, member.ID); err != nil {
							log.Warn(ctx, "Failed to stop member before group power on", "playerID", member.ID, err)
						}
					}
					if needsPower {
						if err := p.registry.CmdPower(ctx, member.ID, true); err != nil {
							log.Warn(ctx, "Failed to power on group member", "playerID", member.ID, err)
						}
					}
				})
			}
			// claim the member for this group
			member.ActiveGroup = group.ID
			member.ActiveSource = group.ActiveSource
		}
	} else {
		for _, member := range p.groupMembers(group, memberFilter{onlyPowered: true, activeOnly: true}) {
			member.ActiveGroup = ""
			member.ActiveSource = ""
			if member.Powered {
				tg.Go(func() {
					if err := p.registry.CmdPower(ctx, member.ID, false); err != nil {
						log.Warn(ctx, "Failed to power off group member", "playerID", member.ID, err)
					}
				})
			}
		}
	}
	tg.Wait()

	if powered && IsSyncGroup(groupID) {
		if err := p.resyncGroup(ctx, group); err != nil {
			return err
		}
	}

	group.Powered = powered
	p.registry.Update(groupID)
	return nil
}

// CmdVolumeSet is intentionally a no-op: group volume is aggregated by the
// player registry, not at this layer.
func (p *Provider) CmdVolumeSet(ctx context.Context, groupID string, volume int) error {
	log.Trace(ctx, "Group volume is handled by the player registry", "groupID", groupID, "volume", volume)
	return nil
}

// PlayMedia starts playback of the given media on the group. Sync groups
// forward to the elected leader; universal groups (re)build their broadcast
// stream and point every active powered member at its per-member stream URL.
func (p *Provider) PlayMedia(ctx context.Context, groupID string, media model.PlayerMedia) error {
	group, err := p.getGroup(groupID)
	if err != nil {
		return err
	}
	p.incCommand("play_media")

	// power on, or resync an already powered sync group
	if group.Powered && IsSyncGroup(groupID) {
		if err := p.resyncGroup(ctx, group); err != nil {
			return err
		}
	} else if err := p.CmdPower(ctx, groupID, true); err != nil {
		return err
	}

	// optimistic state: playing, elapsed just started
	group.CurrentMedia = &media
	group.ElapsedTime = 0
	group.ElapsedTimeLastUpdated = time.Now().Add(-time.Second)
	group.State = model.PlayerStatePlaying
	p.registry.Update(groupID)

	if IsSyncGroup(groupID) {
		leader, err := p.selectSyncLeader(group)
		if err != nil {
			return err
		}
		return p.registry.PlayMedia(ctx, leader.ID, media)
	}

	// universal group: replace any stream still in flight
	if existing := p.popStream(groupID); existing != nil && !existing.Done() {
		existing.Stop()
	}

	source, err := p.resolveSource(ctx, media)
	if err != nil {
		return err
	}
	stream := NewStream(source, p.transcoder, p.metrics)
	stream.SetWarmupDelay(p.warmup)
	stream.SetChunkSize(p.chunkSize)
	p.putStream(groupID, stream)

	baseURL := fmt.Sprintf("%s/ugp/%s.aac", p.StreamBaseURL(), groupID)
	var tg taskGroup
	for _, member := range p.groupMembers(group, memberFilter{onlyPowered: true, activeOnly: true}) {
		memberID := member.ID
		tg.Go(func() {
			memberMedia := model.PlayerMedia{
				URI:       fmt.Sprintf("%s?player_id=%s", baseURL, memberID),
				MediaType: model.MediaTypeFlowStream,
				Title:     group.Name,
				QueueID:   group.ID,
			}
			if err := p.registry.PlayMedia(ctx, memberID, memberMedia); err != nil {
				log.Warn(ctx, "Failed to send stream url to group member", "groupID", groupID, "playerID", memberID, err)
			}
		})
	}
	tg.Wait()
	return nil
}

// EnqueueNextMedia enqueues the next media item on a sync group's leader.
// Universal groups do not support it.
func (p *Provider) EnqueueNextMedia(ctx context.Context, groupID string, media model.PlayerMedia) error {
	group, err := p.getGroup(groupID)
	if err != nil {
		return err
	}
	if !IsSyncGroup(groupID) {
		return fmt.Errorf("%w: enqueue on universal group %s", ErrUnsupportedOperation, groupID)
	}
	p.incCommand("enqueue_next_media")
	if leader := p.syncLeader(group); leader != nil {
		return p.registry.EnqueueNextMedia(ctx, leader.ID, media)
	}
	return nil
}

// PollGroup recomputes the group's mirrored playback attributes
func (p *Provider) PollGroup(_ context.Context, groupID string) error {
	group, err := p.getGroup(groupID)
	if err != nil {
		return err
	}
	p.updateAttributes(group)
	return nil
}

// resolveSource picks the audio source for a universal group play request:
// announcements and queue-driven flows come from the stream sources
// collaborator, anything else is treated as a direct URI for the transcoder.
func (p *Provider) resolveSource(ctx context.Context, media model.PlayerMedia) (AudioSource, error) {
	switch {
	case media.MediaType == model.MediaTypeAnnouncement:
		if p.sources == nil {
			return AudioSource{}, fmt.Errorf("%w: no announcement source configured", ErrProviderUnavailable)
		}
		reader, err := p.sources.AnnouncementStream(ctx, media.AnnouncementURL, UGPFormat, media.PreAnnounce)
		if err != nil {
			return AudioSource{}, err
		}
		return AudioSource{Reader: reader, Format: UGPFormat}, nil
	case media.QueueID != "" && media.QueueItemID != "":
		if p.sources == nil {
			return AudioSource{}, fmt.Errorf("%w: no queue flow source configured", ErrProviderUnavailable)
		}
		reader, err := p.sources.FlowStream(ctx, media.QueueID, media.QueueItemID, UGPFormat)
		if err != nil {
			return AudioSource{}, err
		}
		return AudioSource{Reader: reader, Format: UGPFormat}, nil
	default:
		return AudioSource{
			URI:    media.URI,
			Format: model.AudioFormat{ContentType: model.ContentTypeFromURI(media.URI)},
		}, nil
	}
}

func (p *Provider) putStream(groupID string, stream *Stream) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.streams[groupID] = stream
}

func (p *Provider) popStream(groupID string) *Stream {
	p.mu.Lock()
	defer p.mu.Unlock()
	stream := p.streams[groupID]
	delete(p.streams, groupID)
	return stream
}

// getStream returns the live stream for a group without removing it
func (p *Provider) getStream(groupID string) *Stream {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.streams[groupID]
}
