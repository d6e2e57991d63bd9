package groups

import (
	"context"
	"fmt"

	"github.com/sardaralii/music-assistant/model"
)

// syncLeader returns the member currently acting as the physical sync leader
// for the given sync group, or nil when no member is leading yet.
func (p *Provider) syncLeader(group *model.Player) *model.Player {
	if group.SyncedTo != "" {
		// should not happen for a group player, but must not crash
		if leader, ok := p.registry.Get(group.SyncedTo); ok {
			return leader
		}
		return nil
	}
	// the (first/only) member that has group childs is the active leader
	for _, member := range p.groupMembers(group, memberFilter{}) {
		if len(member.GroupChilds) > 0 {
			return member
		}
	}
	return nil
}

// selectSyncLeader returns the current leader or elects a new one. It prefers
// the first active member that is not claimed by another group and whose
// active source does not conflict with the group's; failing that, it falls
// back to the first member regardless of power or activity. A group with zero
// members is a data-integrity bug.
func (p *Provider) selectSyncLeader(group *model.Player) (*model.Player, error) {
	if leader := p.syncLeader(group); leader != nil {
		return leader, nil
	}
	for _, member := range p.groupMembers(group, memberFilter{activeOnly: true}) {
		if member.ActiveGroup != "" && member.ActiveGroup != group.ID {
			continue
		}
		if member.ActiveSource != "" && member.ActiveSource != group.ActiveSource {
			continue
		}
		return member, nil
	}
	for _, member := range p.groupMembers(group, memberFilter{}) {
		return member, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrNoGroupMembers, group.ID)
}

// resyncGroup elects a leader and joins every active member that is not
// already following it. Members synced to a different leader are unsynced
// first, then all pending members are joined in one batch call.
func (p *Provider) resyncGroup(ctx context.Context, group *model.Player) error {
	leader, err := p.selectSyncLeader(group)
	if err != nil {
		return err
	}
	var toSync []string
	for _, member := range p.groupMembers(group, memberFilter{activeOnly: true}) {
		if member.ID == leader.ID {
			continue
		}
		if member.SyncedTo == leader.ID {
			continue
		}
		if member.SyncedTo != "" && member.SyncedTo != leader.ID {
			if err := p.registry.CmdUnsync(ctx, member.ID); err != nil {
				return err
			}
		}
		toSync = append(toSync, member.ID)
	}
	if len(toSync) > 0 {
		return p.registry.CmdSyncMany(ctx, leader.ID, toSync)
	}
	return nil
}
