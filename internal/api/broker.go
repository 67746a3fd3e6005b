package api

import (
    "sync"

    "fieldroute/internal/metrics"
)

type SSEEvent struct {
    Type string
    Data map[string]any
}

// Topics are scoped by tenant so one tenant never sees another's feed.
func teamTopic(tenant, teamID string) string { return tenant + "/team/" + teamID }
func dispatchTopic(tenant string) string      { return tenant + "/dispatch" }

type Broker struct {
    mu      sync.Mutex
    subs    map[string]map[chan SSEEvent]struct{} // topic -> set of channels
}

func NewBroker() *Broker {
    return &Broker{subs: map[string]map[chan SSEEvent]struct{}{}}
}

func (b *Broker) Subscribe(topic string) chan SSEEvent {
    ch := make(chan SSEEvent, 8)
    b.mu.Lock()
    if b.subs[topic] == nil { b.subs[topic] = map[chan SSEEvent]struct{}{} }
    b.subs[topic][ch] = struct{}{}
    b.mu.Unlock()
    return ch
}

func (b *Broker) Unsubscribe(topic string, ch chan SSEEvent) {
    b.mu.Lock()
    m := b.subs[topic]
    _, ok := m[ch]
    if ok {
        delete(m, ch)
        if len(m) == 0 { delete(b.subs, topic) }
    }
    b.mu.Unlock()
    if ok { close(ch) }
}

// Publish drops the event for subscribers whose buffer is full.
func (b *Broker) Publish(topic string, evt SSEEvent) {
    b.mu.Lock()
    m := b.subs[topic]
    for ch := range m {
        select { case ch <- evt: default: }
    }
    b.mu.Unlock()
}

// publishTeam sends evt to the team's own topic and the tenant dispatch topic.
func (s *Server) publishTeam(tenant, teamID string, evt SSEEvent) {
    s.Broker.Publish(teamTopic(tenant, teamID), evt)
    s.Broker.Publish(dispatchTopic(tenant), evt)
}

func trackFeedClient(transport string) func() {
    g := metrics.FeedClients.WithLabelValues(transport)
    g.Inc()
    return g.Dec
}
