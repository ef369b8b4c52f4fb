// Package chat defines the chat-protocol events roomdex consumes and the
// collaborator interfaces the ingestion core needs from a chat client.
//
// Events are a closed set of concrete types; consumers dispatch with a type
// switch on Event.
package chat

import "context"

// Event is one delivered chat event.
type Event interface {
	// RoomID is the room the event was sent in.
	RoomID() string
	isEvent()
}

// Message kinds.
const (
	KindText   = "m.text"
	KindNotice = "m.notice"
	KindEmote  = "m.emote"
	KindImage  = "m.image"
	KindFile   = "m.file"
	KindVideo  = "m.video"
	KindAudio  = "m.audio"
)

// FormatHTML is the only rich-text format the protocol defines.
const FormatHTML = "org.matrix.custom.html"

// MessageContent is the payload of a message or of an edit's replacement.
type MessageContent struct {
	Kind          string
	Body          string
	Format        string
	FormattedBody string
}

// Edit marks a message as replacing the content of Target.
type Edit struct {
	Target     string
	NewContent MessageContent
}

// Message is a room message, possibly an edit of an earlier one.
type Message struct {
	Room   string
	ID     string
	Sender string
	// Timestamp is the origin server time in milliseconds since the epoch.
	Timestamp int64
	Content   MessageContent
	Edit      *Edit
	// ExternalURL is the raw "external_url" field of the content, if any.
	ExternalURL string
}

// RoomName reports a new room display name.
type RoomName struct {
	Room string
	Name string
}

// Tombstone reports that Room has been replaced by Successor.
type Tombstone struct {
	Room      string
	Successor string
	Reason    string
}

// MemberChange reports a membership or profile change for UserID.
type MemberChange struct {
	Room   string
	UserID string
}

func (m Message) RoomID() string      { return m.Room }
func (r RoomName) RoomID() string     { return r.Room }
func (t Tombstone) RoomID() string    { return t.Room }
func (m MemberChange) RoomID() string { return m.Room }

func (Message) isEvent()      {}
func (RoomName) isEvent()     {}
func (Tombstone) isEvent()    {}
func (MemberChange) isEvent() {}

// Member is the profile of a room member as the room sees it.
type Member struct {
	DisplayName string
	// AvatarURL is a content reference such as mxc://server/media.
	AvatarURL string
}

// Members looks up room member profiles.
type Members interface {
	// Member returns the profile of user in room. ok is false when the user
	// is not a member.
	Member(ctx context.Context, room, user string) (m Member, ok bool, err error)
}

// Joiner joins rooms.
type Joiner interface {
	JoinRoom(ctx context.Context, room string) error
}

// Identity describes the logged-in account.
type Identity interface {
	// UserID is the account the bot syncs as.
	UserID() string
	// Homeserver is the base URL media downloads resolve against.
	Homeserver() string
}

// Directory resolves configured room references.
type Directory interface {
	// ResolveRoom turns an alias (#room:server) or id (!id:server) into a room id.
	ResolveRoom(ctx context.Context, ref string) (string, error)
	// RoomName returns the current display name of room, "" if unset.
	RoomName(ctx context.Context, room string) (string, error)
}
