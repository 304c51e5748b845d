package routing

import (
	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/nextlevelbuilder/botchat/internal/bus"
	"github.com/nextlevelbuilder/botchat/internal/store"
	"github.com/nextlevelbuilder/botchat/pkg/protocol"
)

func messagePayload(m *store.MessageData) protocol.MessagePayload {
	return protocol.MessagePayload{
		ID:          m.ID.String(),
		ChannelID:   m.ChannelID.String(),
		SenderID:    m.SenderID.String(),
		SenderName:  m.SenderName,
		SenderIsBot: m.SenderIsBot,
		Content:     m.Content,
		CreatedAt:   m.CreatedAt,
	}
}

// MessageFromPayload rebuilds a message from a message.created payload.
func MessageFromPayload(p protocol.MessagePayload) (store.MessageData, error) {
	id, err := uuid.Parse(p.ID)
	if err != nil {
		return store.MessageData{}, err
	}
	channelID, err := uuid.Parse(p.ChannelID)
	if err != nil {
		return store.MessageData{}, err
	}
	senderID, err := uuid.Parse(p.SenderID)
	if err != nil {
		return store.MessageData{}, err
	}
	return store.MessageData{
		ID:          id,
		ChannelID:   channelID,
		SenderID:    senderID,
		Content:     p.Content,
		CreatedAt:   p.CreatedAt,
		SenderName:  p.SenderName,
		SenderIsBot: p.SenderIsBot,
	}, nil
}

func publish(events bus.EventPublisher, name string, payload interface{}) {
	if events == nil {
		return
	}
	events.Broadcast(bus.Event{Name: name, Payload: payload})
}

func idStrings(ids []uuid.UUID) []string {
	return lo.Map(ids, func(id uuid.UUID, _ int) string { return id.String() })
}
