package postgres

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/cwrk-planet/comms-service/internal/domain"
	"github.com/cwrk-planet/comms-service/internal/pagination"
)

type ChatRepository struct {
	q querier
}

func NewChatRepository(q querier) *ChatRepository {
	return &ChatRepository{q: q}
}

func (r *ChatRepository) Append(ctx context.Context, m domain.ChatMessage) (domain.ChatMessage, error) {
	m.ID = uuid.NewString()

	var fileURL, fileName, fileType *string
	if a := m.Attachment; a != nil {
		fileURL, fileName, fileType = nullIfEmpty(a.URL), nullIfEmpty(a.Name), nullIfEmpty(a.MimeType)
	}

	var sentAt time.Time
	err := r.q.QueryRow(ctx, queryInsertMessage,
		m.ID, m.SenderID, m.ReceiverID, m.Body, fileURL, fileName, fileType,
	).Scan(&sentAt)
	if err != nil {
		return domain.ChatMessage{}, mapPgError(err)
	}
	m.SentAt = sentAt.UTC()
	return m, nil
}

// Conversation возвращает страницу переписки (старые -> новые) с курсором "before".
func (r *ChatRepository) Conversation(ctx context.Context, user1, user2, before string, limit int) ([]domain.ChatMessage, string, error) {
	limit = pagination.ClampLimit(limit)
	cur, err := pagination.Decode(before)
	if err != nil {
		return nil, "", fmt.Errorf("decode cursor: %w", err)
	}

	var at, id any
	if cur != nil {
		at, id = cur.At, cur.ID
	}

	rows, err := r.q.Query(ctx, queryConversation, user1, user2, at, id, limit)
	if err != nil {
		return nil, "", err
	}
	defer rows.Close()

	out := make([]domain.ChatMessage, 0, limit)
	for rows.Next() {
		var (
			m                          domain.ChatMessage
			fileURL, fileName, fileTyp *string
		)
		if err := rows.Scan(&m.ID, &m.SenderID, &m.ReceiverID, &m.Body, &fileURL, &fileName, &fileTyp, &m.SentAt); err != nil {
			return nil, "", err
		}
		m.Attachment = toAttachment(fileURL, fileName, fileTyp)
		m.SentAt = m.SentAt.UTC()
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, "", err
	}

	var next string
	if len(out) == limit {
		oldest := out[len(out)-1]
		if c, e := pagination.Encode(pagination.Cursor{At: oldest.SentAt, ID: oldest.ID}); e == nil {
			next = c
		}
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, next, nil
}

func (r *ChatRepository) Conversations(ctx context.Context, userID string) ([]domain.ConversationSummary, error) {
	rows, err := r.q.Query(ctx, queryConversations, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.ConversationSummary
	for rows.Next() {
		var (
			s                          domain.ConversationSummary
			fileURL, fileName, fileTyp *string
			cnt                        int64
		)
		m := &s.LastMessage
		if err := rows.Scan(&s.CounterpartID, &m.ID, &m.SenderID, &m.ReceiverID, &m.Body,
			&fileURL, &fileName, &fileTyp, &m.SentAt, &cnt); err != nil {
			return nil, err
		}
		m.Attachment = toAttachment(fileURL, fileName, fileTyp)
		m.SentAt = m.SentAt.UTC()
		s.MessageCount = int(cnt)
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].LastMessage.SentAt.After(out[j].LastMessage.SentAt)
	})
	return out, nil
}

func toAttachment(url, name, typ *string) *domain.Attachment {
	if url == nil {
		return nil
	}
	return &domain.Attachment{URL: *url, Name: deref(name), MimeType: deref(typ)}
}
