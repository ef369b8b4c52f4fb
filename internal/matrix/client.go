// Package matrix adapts a Matrix homeserver connection (mautrix-go) to the
// chat collaborator interfaces: it logs in, persists the session, turns the
// sync stream into chat events and answers membership and room lookups.
package matrix

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"maunium.net/go/mautrix"
	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"

	"github.com/Aman-CERP/roomdex/internal/chat"
	rxerrors "github.com/Aman-CERP/roomdex/internal/errors"
)

// Config configures a Client.
type Config struct {
	HomeserverURL   string
	Username        string
	DeviceName      string
	SessionPath     string
	MemberCacheSize int
	Logger          *slog.Logger
}

// Client is the chat collaborator backed by a Matrix homeserver.
type Client struct {
	cfg     Config
	client  *mautrix.Client
	members *memberCache
	logger  *slog.Logger
}

var (
	_ chat.Members   = (*Client)(nil)
	_ chat.Joiner    = (*Client)(nil)
	_ chat.Identity  = (*Client)(nil)
	_ chat.Directory = (*Client)(nil)
)

// New creates an unauthenticated client.
func New(cfg Config) (*Client, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	client, err := mautrix.NewClient(cfg.HomeserverURL, "", "")
	if err != nil {
		return nil, rxerrors.ConfigError("invalid homeserver url", err).
			WithDetail("homeserver_url", cfg.HomeserverURL)
	}

	c := &Client{cfg: cfg, client: client, logger: logger}
	c.members, err = newMemberCache(cfg.MemberCacheSize, c.fetchMember)
	if err != nil {
		return nil, fmt.Errorf("create member cache: %w", err)
	}
	return c, nil
}

// Authenticate restores the saved session or, failing that, logs in with
// password and saves the new session. An empty password only restores.
func (c *Client) Authenticate(ctx context.Context, password string) error {
	s, err := LoadSession(c.cfg.SessionPath)
	if err != nil {
		c.logger.Warn("session_unreadable", slog.String("error", err.Error()))
	}
	if s.Valid() && s.HomeserverURL == c.cfg.HomeserverURL {
		err := c.restore(ctx, s)
		if err == nil {
			return nil
		}
		c.logger.Warn("session_restore_failed", slog.String("error", err.Error()))
	}

	if password == "" {
		return rxerrors.New(rxerrors.ErrCodeSessionInvalid, "no usable session and no password", nil).
			WithSuggestion("run 'roomdex login' or set ROOMDEX_PASSWORD")
	}
	return c.Login(ctx, password)
}

func (c *Client) restore(ctx context.Context, s *Session) error {
	c.client.SetCredentials(id.UserID(s.UserID), s.AccessToken)
	c.client.DeviceID = id.DeviceID(s.DeviceID)

	who, err := c.client.Whoami(ctx)
	if err != nil {
		c.client.ClearCredentials()
		return fmt.Errorf("whoami: %w", err)
	}
	if who.UserID.String() != s.UserID {
		c.client.ClearCredentials()
		return fmt.Errorf("session belongs to %s, token resolves to %s", s.UserID, who.UserID)
	}

	c.logger.Info("session_restored",
		slog.String("user_id", s.UserID),
		slog.String("device_id", s.DeviceID))
	return nil
}

// Login performs a password login and persists the session.
func (c *Client) Login(ctx context.Context, password string) error {
	resp, err := c.client.Login(ctx, &mautrix.ReqLogin{
		Type: mautrix.AuthTypePassword,
		Identifier: mautrix.UserIdentifier{
			Type: mautrix.IdentifierTypeUser,
			User: c.cfg.Username,
		},
		Password:                 password,
		InitialDeviceDisplayName: c.cfg.DeviceName,
		StoreCredentials:         true,
	})
	if err != nil {
		return rxerrors.New(rxerrors.ErrCodeChatLoginFailed, "login failed", err).
			WithDetail("username", c.cfg.Username)
	}

	s := &Session{
		HomeserverURL: c.cfg.HomeserverURL,
		UserID:        resp.UserID.String(),
		DeviceID:      resp.DeviceID.String(),
		AccessToken:   resp.AccessToken,
	}
	if err := SaveSession(c.cfg.SessionPath, s); err != nil {
		return rxerrors.ConfigError("save session", err)
	}

	c.logger.Info("logged_in",
		slog.String("user_id", s.UserID),
		slog.String("device_id", s.DeviceID))
	return nil
}

// Sync streams events into out, in delivery order, until ctx is cancelled.
// The backlog delivered by the first sync is skipped. Sending blocks, so a
// slow consumer slows the sync instead of reordering events.
func (c *Client) Sync(ctx context.Context, out chan<- chat.Event) error {
	syncer, ok := c.client.Syncer.(*mautrix.DefaultSyncer)
	if !ok {
		return fmt.Errorf("unexpected syncer %T", c.client.Syncer)
	}
	syncer.OnSync(c.client.DontProcessOldEvents)

	forward := func(ctx context.Context, evt *event.Event) {
		ev, ok := convert(evt)
		if !ok {
			return
		}
		select {
		case out <- ev:
		case <-ctx.Done():
		}
	}
	for _, t := range []event.Type{event.EventMessage, event.StateRoomName, event.StateTombstone, event.StateMember} {
		syncer.OnEventType(t, forward)
	}

	c.logger.Info("sync_started", slog.String("user_id", c.UserID()))
	err := c.client.SyncWithContext(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		return rxerrors.New(rxerrors.ErrCodeChatUnavailable, "sync stopped", err)
	}
	return nil
}

// JoinRoom joins room. Joining a room already joined succeeds.
func (c *Client) JoinRoom(ctx context.Context, room string) error {
	if _, err := c.client.JoinRoomByID(ctx, id.RoomID(room)); err != nil {
		return fmt.Errorf("join %s: %w", room, err)
	}
	c.logger.Info("room_joined", slog.String("room_id", room))
	return nil
}

// ResolveRoom implements chat.Directory.
func (c *Client) ResolveRoom(ctx context.Context, ref string) (string, error) {
	if strings.HasPrefix(ref, "!") {
		return ref, nil
	}
	resp, err := c.client.ResolveAlias(ctx, id.RoomAlias(ref))
	if err != nil {
		return "", fmt.Errorf("resolve alias %s: %w", ref, err)
	}
	return resp.RoomID.String(), nil
}

// RoomName implements chat.Directory.
func (c *Client) RoomName(ctx context.Context, room string) (string, error) {
	var content event.RoomNameEventContent
	err := c.client.StateEvent(ctx, id.RoomID(room), event.StateRoomName, "", &content)
	if errors.Is(err, mautrix.MNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("room name of %s: %w", room, err)
	}
	return content.Name, nil
}

// Member implements chat.Members. Profiles are cached until a member event
// for the same user arrives.
func (c *Client) Member(ctx context.Context, room, user string) (chat.Member, bool, error) {
	return c.members.Member(ctx, room, user)
}

// InvalidateMember drops a cached profile.
func (c *Client) InvalidateMember(room, user string) {
	c.members.Invalidate(room, user)
}

func (c *Client) fetchMember(ctx context.Context, room, user string) (chat.Member, bool, error) {
	var content event.MemberEventContent
	err := c.client.StateEvent(ctx, id.RoomID(room), event.StateMember, user, &content)
	if errors.Is(err, mautrix.MNotFound) {
		return chat.Member{}, false, nil
	}
	if err != nil {
		return chat.Member{}, false, fmt.Errorf("member %s in %s: %w", user, room, err)
	}
	if content.Membership != event.MembershipJoin && content.Membership != event.MembershipInvite {
		return chat.Member{}, false, nil
	}
	return chat.Member{
		DisplayName: content.Displayname,
		AvatarURL:   string(content.AvatarURL),
	}, true, nil
}

// UserID implements chat.Identity.
func (c *Client) UserID() string {
	return c.client.UserID.String()
}

// Homeserver implements chat.Identity.
func (c *Client) Homeserver() string {
	return strings.TrimRight(c.cfg.HomeserverURL, "/")
}
