package document

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Aman-CERP/roomdex/internal/chat"
)

// BuilderDeps are the chat collaborators the builder reads from.
type BuilderDeps struct {
	Identity chat.Identity
	Members  chat.Members
	Logger   *slog.Logger
}

// Builder converts chat messages into SearchDocuments.
type Builder struct {
	identity chat.Identity
	members  chat.Members
	logger   *slog.Logger
}

// NewBuilder creates a Builder. Members may be nil, in which case sender
// profiles are left empty.
func NewBuilder(deps BuilderDeps) *Builder {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Builder{
		identity: deps.Identity,
		members:  deps.Members,
		logger:   logger,
	}
}

// Build returns the document for msg, or nil when msg is not indexable:
// the bot's own messages (edits included) and unsupported kinds are skipped.
func (b *Builder) Build(ctx context.Context, msg chat.Message) *SearchDocument {
	if b.identity != nil && msg.Sender == b.identity.UserID() {
		return nil
	}

	content, eventID := msg.Content, msg.ID
	if msg.Edit != nil {
		content, eventID = msg.Edit.NewContent, msg.Edit.Target
	}

	body, ok := renderBody(content)
	if !ok {
		return nil
	}

	doc := &SearchDocument{
		EventID:     NormalizeEventID(eventID),
		Body:        body,
		ExternalURL: msg.ExternalURL,
		SenderID:    msg.Sender,
		Timestamp:   msg.Timestamp,
		RoomID:      msg.Room,
	}
	b.resolveSender(ctx, msg, doc)
	return doc
}

// renderBody produces the indexed body, false for unsupported kinds.
func renderBody(c chat.MessageContent) (string, bool) {
	text := plainText(c)

	switch c.Kind {
	case chat.KindText:
		return strings.TrimLeft(text, " \t\r\n"), true
	case chat.KindImage:
		return fmt.Sprintf("[Image] %s", text), true
	case chat.KindFile:
		return fmt.Sprintf("[File] %s", text), true
	case chat.KindVideo:
		return fmt.Sprintf("[Video] %s", text), true
	default:
		return "", false
	}
}

// plainText prefers the plain body, kept as written apart from the reply
// fallback. The HTML body is only used, sanitized, when the plain one is empty.
func plainText(c chat.MessageContent) string {
	body := StripReplyFallback(c.Body)
	if strings.TrimSpace(body) == "" && c.Format == chat.FormatHTML && c.FormattedBody != "" {
		return Sanitize(StripHTMLReply(c.FormattedBody))
	}
	return body
}

func (b *Builder) resolveSender(ctx context.Context, msg chat.Message, doc *SearchDocument) {
	if b.members == nil {
		return
	}

	member, ok, err := b.members.Member(ctx, msg.Room, msg.Sender)
	if err != nil {
		b.logger.Warn("member_lookup_failed",
			slog.String("room_id", msg.Room),
			slog.String("sender_id", msg.Sender),
			slog.String("error", err.Error()))
		return
	}
	if !ok {
		return
	}

	doc.SenderDisplayName = member.DisplayName
	if member.AvatarURL != "" && b.identity != nil {
		doc.SenderAvatar = AvatarURL(b.identity.Homeserver(), member.AvatarURL)
	}
}
