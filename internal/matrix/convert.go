package matrix

import (
	"maunium.net/go/mautrix/event"

	"github.com/Aman-CERP/roomdex/internal/chat"
)

// convert maps a protocol event to a chat event. ok is false for events
// roomdex does not consume. Types are matched by name since the class
// differs between timeline and state delivery.
func convert(evt *event.Event) (chat.Event, bool) {
	room := evt.RoomID.String()

	switch evt.Type.Type {
	case event.EventMessage.Type:
		content := evt.Content.AsMessage()
		msg := chat.Message{
			Room:        room,
			ID:          evt.ID.String(),
			Sender:      evt.Sender.String(),
			Timestamp:   evt.Timestamp,
			Content:     messageContent(content),
			ExternalURL: rawString(evt.Content.Raw, "external_url"),
		}
		if rel := content.RelatesTo; rel != nil && rel.Type == event.RelReplace && content.NewContent != nil {
			msg.Edit = &chat.Edit{
				Target:     rel.EventID.String(),
				NewContent: messageContent(content.NewContent),
			}
		}
		return msg, true

	case event.StateRoomName.Type:
		return chat.RoomName{Room: room, Name: evt.Content.AsRoomName().Name}, true

	case event.StateTombstone.Type:
		content := evt.Content.AsTombstone()
		return chat.Tombstone{
			Room:      room,
			Successor: content.ReplacementRoom.String(),
			Reason:    content.Body,
		}, true

	case event.StateMember.Type:
		return chat.MemberChange{Room: room, UserID: evt.GetStateKey()}, true

	default:
		return nil, false
	}
}

func messageContent(c *event.MessageEventContent) chat.MessageContent {
	return chat.MessageContent{
		Kind:          string(c.MsgType),
		Body:          c.Body,
		Format:        string(c.Format),
		FormattedBody: c.FormattedBody,
	}
}

func rawString(raw map[string]any, key string) string {
	if raw == nil {
		return ""
	}
	s, _ := raw[key].(string)
	return s
}
