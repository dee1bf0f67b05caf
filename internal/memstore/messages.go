// Package memstore holds in-process implementations of the storage collaborators,
// used in dev mode (storage: memory) and in tests.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cwrk-planet/comms-service/internal/domain"
	"github.com/cwrk-planet/comms-service/internal/pagination"
)

type MessageStore struct {
	mu   sync.RWMutex
	log  []domain.ChatMessage
	last time.Time
	now  func() time.Time
}

func NewMessageStore() *MessageStore {
	return &MessageStore{now: time.Now}
}

// Append assigns id and sentAt and stores the message. sentAt never goes
// backwards even if the wall clock does.
func (s *MessageStore) Append(_ context.Context, m domain.ChatMessage) (domain.ChatMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	at := s.now().UTC()
	if !at.After(s.last) {
		at = s.last.Add(time.Microsecond)
	}
	s.last = at

	m.ID = uuid.NewString()
	m.SentAt = at
	s.log = append(s.log, m)
	return m, nil
}

// Conversation returns up to limit messages between user1 and user2 older than
// the before cursor, oldest first.
func (s *MessageStore) Conversation(_ context.Context, user1, user2, before string, limit int) ([]domain.ChatMessage, string, error) {
	cur, err := pagination.Decode(before)
	if err != nil {
		return nil, "", err
	}
	limit = pagination.ClampLimit(limit)

	s.mu.RLock()
	var page []domain.ChatMessage
	for i := len(s.log) - 1; i >= 0 && len(page) < limit; i-- {
		m := s.log[i]
		if !between(m, user1, user2) {
			continue
		}
		if cur != nil && !cur.Before(m.SentAt, m.ID) {
			continue
		}
		page = append(page, m)
	}
	s.mu.RUnlock()

	var next string
	if len(page) == limit {
		oldest := page[len(page)-1]
		next, _ = pagination.Encode(pagination.Cursor{At: oldest.SentAt, ID: oldest.ID})
	}
	reverse(page)
	return page, next, nil
}

func (s *MessageStore) Conversations(_ context.Context, userID string) ([]domain.ConversationSummary, error) {
	s.mu.RLock()
	byPeer := make(map[string]*domain.ConversationSummary)
	for _, m := range s.log {
		if m.SenderID != userID && m.ReceiverID != userID {
			continue
		}
		peer := m.Counterpart(userID)
		sum, ok := byPeer[peer]
		if !ok {
			sum = &domain.ConversationSummary{CounterpartID: peer}
			byPeer[peer] = sum
		}
		sum.LastMessage = m
		sum.MessageCount++
	}
	s.mu.RUnlock()

	out := make([]domain.ConversationSummary, 0, len(byPeer))
	for _, sum := range byPeer {
		out = append(out, *sum)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].LastMessage.SentAt.After(out[j].LastMessage.SentAt)
	})
	return out, nil
}

// All returns every stored message in persistence order.
func (s *MessageStore) All() []domain.ChatMessage {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.ChatMessage, len(s.log))
	copy(out, s.log)
	return out
}

func between(m domain.ChatMessage, a, b string) bool {
	return (m.SenderID == a && m.ReceiverID == b) || (m.SenderID == b && m.ReceiverID == a)
}

func reverse(ms []domain.ChatMessage) {
	for i, j := 0, len(ms)-1; i < j; i, j = i+1, j-1 {
		ms[i], ms[j] = ms[j], ms[i]
	}
}
