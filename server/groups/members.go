package groups

import "github.com/sardaralii/music-assistant/model"

// memberFilter selects which group children are yielded by groupMembers
type memberFilter struct {
	onlyPowered bool
	onlyPlaying bool
	activeOnly  bool
}

// groupMembers resolves the group's children against the live registry state
// and returns them in the group's member order. Unavailable players are
// skipped; the group player itself is never yielded. The registry is consulted
// on every call so the result always reflects current truth.
func (p *Provider) groupMembers(group *model.Player, filter memberFilter) []*model.Player {
	var result []*model.Player
	for _, childID := range group.GroupChilds {
		child, ok := p.registry.Get(childID)
		if !ok || !child.Available {
			continue
		}
		if child.ID == group.ID {
			continue
		}
		if filter.onlyPowered && !child.Powered {
			continue
		}
		if filter.activeOnly && child.ActiveGroup != group.ID {
			continue
		}
		if filter.onlyPlaying &&
			child.State != model.PlayerStatePlaying && child.State != model.PlayerStatePaused {
			continue
		}
		result = append(result, child)
	}
	return result
}
