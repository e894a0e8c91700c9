package pseudonym

import (
	"slices"
	"sync"
)

// ChannelState is the participant list of one channel, most recent first,
// plus the mappings derived from it.
type ChannelState struct {
	Participants []string
	Mapping      Mapping
}

// Mapper owns the per-channel pseudonym state of one bot.
type Mapper struct {
	selfID   string
	mu       sync.RWMutex
	channels map[string]*ChannelState
}

func NewMapper(selfID string) *Mapper {
	return &Mapper{
		selfID:   selfID,
		channels: make(map[string]*ChannelState),
	}
}

// Known reports whether the channel has been seeded.
func (m *Mapper) Known(channelID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.channels[channelID]
	return ok
}

// Observe records authorID as the most recent participant of channelID and
// returns the refreshed mapping. seed is only used on first contact: channel
// members followed by recent message authors, oldest first.
func (m *Mapper) Observe(channelID, authorID string, seed []string) Mapping {
	m.mu.Lock()
	defer m.mu.Unlock()

	var list []string
	if st, ok := m.channels[channelID]; ok {
		list = append([]string{authorID}, st.Participants...)
	} else {
		chrono := append(slices.Clone(seed), authorID)
		slices.Reverse(chrono)
		list = chrono
	}
	list = m.normalize(list)

	st := &ChannelState{
		Participants: list,
		Mapping:      Build(list, m.selfID),
	}
	m.channels[channelID] = st
	return st.Mapping
}

// Mapping returns the current mapping of a channel.
func (m *Mapper) Mapping(channelID string) (Mapping, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	st, ok := m.channels[channelID]
	if !ok {
		return Mapping{}, false
	}
	return st.Mapping, true
}

// Participants returns a copy of the channel participant list.
func (m *Mapper) Participants(channelID string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if st, ok := m.channels[channelID]; ok {
		return slices.Clone(st.Participants)
	}
	return nil
}

// normalize keeps the first occurrence of every id, drops the bot itself
// and caps the list at MaxTokens.
func (m *Mapper) normalize(list []string) []string {
	seen := make(map[string]struct{}, len(list))
	out := make([]string, 0, min(len(list), MaxTokens))
	for _, id := range list {
		if id == "" || id == m.selfID {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
		if len(out) == MaxTokens {
			break
		}
	}
	return out
}
