package core

import (
	"fmt"
	"sort"

	"github.com/vovakirdan/wirechat-relay/internal/proto"
)

// Channel groups connections subscribed to the same name. Guarded by Hub.mu.
type Channel struct {
	Name    string
	members map[*Conn]struct{}
}

func newChannel(name string) *Channel {
	return &Channel{
		Name:    name,
		members: make(map[*Conn]struct{}),
	}
}

// add inserts a connection. Returns true if newly added.
func (ch *Channel) add(c *Conn) bool {
	if _, exists := ch.members[c]; exists {
		return false
	}
	ch.members[c] = struct{}{}
	return true
}

// remove deletes a connection. Returns true if removed.
func (ch *Channel) remove(c *Conn) bool {
	if _, exists := ch.members[c]; !exists {
		return false
	}
	delete(ch.members, c)
	return true
}

func (ch *Channel) empty() bool {
	return len(ch.members) == 0
}

func (ch *Channel) snapshot(exclude *Conn) []*Conn {
	out := make([]*Conn, 0, len(ch.members))
	for c := range ch.members {
		if c != exclude {
			out = append(out, c)
		}
	}
	return out
}

// ChannelInfo describes one channel for inspection.
type ChannelInfo struct {
	Name    string   `json:"name"`
	Members []string `json:"members"`
}

// JoinChannel moves c into the named channel. Leaving the previous channel, entering
// the new one and updating c's channel happen in one critical section; departure and
// arrival notices and the confirmation to c follow. Joining the current channel only
// repeats the confirmation.
func (h *Hub) JoinChannel(c *Conn, name string) error {
	h.fanout.Lock()
	defer h.fanout.Unlock()

	h.mu.Lock()
	if _, live := h.conns[c]; !live {
		h.mu.Unlock()
		return ErrConnClosed
	}
	if c.identity == "" {
		h.mu.Unlock()
		return ErrUnauthenticated
	}
	if name == "" {
		h.mu.Unlock()
		return ErrChannelRequired
	}
	if c.channel == name {
		h.mu.Unlock()
		c.Send(joinedNotice(name))
		return nil
	}

	prev := c.channel
	var left []*Conn
	if prev != "" {
		left = h.removeLocked(c)
	}

	ch, ok := h.channels[name]
	if !ok {
		ch = newChannel(name)
		h.channels[name] = ch
	}
	ch.add(c)
	c.channel = name
	peers := ch.snapshot(c)
	identity := c.identity
	h.mu.Unlock()

	if prev != "" {
		deliver(left, departureNotice(prev, identity))
	}
	deliver(peers, arrivalNotice(name, identity))
	c.Send(joinedNotice(name))

	c.log.Info().Str("user", identity).Str("channel", name).Str("previous", prev).Msg("joined channel")
	return nil
}

// LeaveChannel removes c from its channel and announces the departure to the
// remaining members. It returns the channel that was left.
func (h *Hub) LeaveChannel(c *Conn) (string, error) {
	h.fanout.Lock()
	defer h.fanout.Unlock()

	h.mu.Lock()
	if c.channel == "" {
		h.mu.Unlock()
		return "", ErrNotInChannel
	}
	prev := c.channel
	identity := c.identity
	peers := h.removeLocked(c)
	h.mu.Unlock()

	deliver(peers, departureNotice(prev, identity))
	return prev, nil
}

// Broadcast delivers msg to every current member of the named channel except exclude
// (which may be nil) and returns the number of members it was queued for. Recipients
// are snapshotted under the registry lock; delivery happens after the lock is released.
func (h *Hub) Broadcast(name string, msg proto.Outbound, exclude *Conn) int {
	h.fanout.Lock()
	defer h.fanout.Unlock()

	h.mu.Lock()
	ch, ok := h.channels[name]
	if !ok {
		h.mu.Unlock()
		return 0
	}
	recipients := ch.snapshot(exclude)
	h.mu.Unlock()

	return deliver(recipients, msg)
}

// BroadcastAll delivers msg to every live connection, in or out of a channel.
func (h *Hub) BroadcastAll(msg proto.Outbound) int {
	h.fanout.Lock()
	defer h.fanout.Unlock()

	h.mu.Lock()
	recipients := make([]*Conn, 0, len(h.conns))
	for c := range h.conns {
		recipients = append(recipients, c)
	}
	h.mu.Unlock()

	return deliver(recipients, msg)
}

// ListChannels returns every channel with its members' identities, sorted by name.
func (h *Hub) ListChannels() []ChannelInfo {
	h.mu.Lock()
	defer h.mu.Unlock()

	return h.listChannelsLocked()
}

func (h *Hub) listChannelsLocked() []ChannelInfo {
	out := make([]ChannelInfo, 0, len(h.channels))
	for name, ch := range h.channels {
		members := make([]string, 0, len(ch.members))
		for c := range ch.members {
			members = append(members, c.identity)
		}
		sort.Strings(members)
		out = append(out, ChannelInfo{Name: name, Members: members})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// removeLocked takes c out of its channel, dropping the channel when it becomes
// empty, and returns the remaining members. Caller holds h.mu and c.channel != "".
func (h *Hub) removeLocked(c *Conn) []*Conn {
	ch, ok := h.channels[c.channel]
	c.channel = ""
	if !ok {
		return nil
	}
	ch.remove(c)
	if ch.empty() {
		delete(h.channels, ch.Name)
		return nil
	}
	return ch.snapshot(nil)
}

func deliver(recipients []*Conn, msg proto.Outbound) int {
	n := 0
	for _, c := range recipients {
		if c.Send(msg) {
			n++
		}
	}
	return n
}

func joinedNotice(name string) proto.System {
	return proto.System{Text: fmt.Sprintf("joined channel %s", name), Code: CodeJoined}
}

func arrivalNotice(name, identity string) proto.System {
	return proto.System{Text: fmt.Sprintf("%s joined channel %s", identity, name), Code: CodeUserJoined}
}

func departureNotice(name, identity string) proto.System {
	return proto.System{Text: fmt.Sprintf("%s left channel %s", identity, name), Code: CodeUserLeft}
}
