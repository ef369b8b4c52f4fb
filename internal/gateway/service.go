// Package gateway serves search queries over the indexed messages: a Service
// that turns requests into engine queries and a chi router exposing it.
package gateway

import (
	"context"
	"errors"
	"log/slog"

	"github.com/Aman-CERP/roomdex/internal/engine"
	rxerrors "github.com/Aman-CERP/roomdex/internal/errors"
	"github.com/Aman-CERP/roomdex/internal/mapping"
)

// DefaultPageSize is used when no page size is configured.
const DefaultPageSize = 20

// Message is one search result as clients see it.
type Message struct {
	EventID     string  `json:"event_id"`
	HTMLBody    string  `json:"html_body"`
	ExternalURL *string `json:"external_url"`
	DisplayName *string `json:"display_name"`
	AvatarURL   *string `json:"avatar_url"`
	Timestamp   int64   `json:"timestamp"`
	RoomID      string  `json:"room_id"`
}

// Page is one page of results, newest first.
type Page struct {
	Messages []Message `json:"messages"`
	HasMore  bool      `json:"has_more"`
}

// Group is one searchable index and the room it holds.
type Group struct {
	IndexName string `json:"index_name"`
	RoomName  string `json:"room_name"`
}

// ServiceConfig contains the Service dependencies.
type ServiceConfig struct {
	Store    mapping.Store
	Engine   engine.Engine
	PageSize int
	Logger   *slog.Logger
}

// Service answers search and room-listing requests. It only reads.
type Service struct {
	store    mapping.Store
	engine   engine.Engine
	pageSize int
	logger   *slog.Logger
}

// NewService creates a Service.
func NewService(cfg ServiceConfig) *Service {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	pageSize := cfg.PageSize
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return &Service{store: cfg.Store, engine: cfg.Engine, pageSize: pageSize, logger: logger}
}

// Search runs text against index, newest first. A non-nil before restricts
// results to messages strictly older than it.
func (s *Service) Search(ctx context.Context, index, text string, before *int64) (*Page, error) {
	if err := engine.ValidateIndexName(index); err != nil {
		return nil, rxerrors.ValidationError("invalid index name", err).WithDetail("index", index)
	}

	res, err := s.engine.Search(ctx, index, engine.Query{Text: text, Before: before, Limit: s.pageSize})
	if err != nil {
		if errors.Is(err, engine.ErrIndexNotFound) {
			return nil, rxerrors.New(rxerrors.ErrCodeIndexNotFound, "index does not exist", err).
				WithDetail("index", index)
		}
		if _, ok := rxerrors.As(err); ok {
			return nil, err
		}
		return nil, rxerrors.New(rxerrors.ErrCodeSearchFailed, "search failed", err).
			WithDetail("index", index)
	}

	page := &Page{Messages: make([]Message, 0, len(res.Hits)), HasMore: res.HasMore()}
	for _, h := range res.Hits {
		d := h.Document
		page.Messages = append(page.Messages, Message{
			EventID:     d.EventID,
			HTMLBody:    h.Highlighted,
			ExternalURL: optional(d.ExternalURL),
			DisplayName: optional(d.SenderDisplayName),
			AvatarURL:   optional(d.SenderAvatar),
			Timestamp:   d.Timestamp,
			RoomID:      d.RoomID,
		})
	}
	return page, nil
}

// Rooms lists every bound room.
func (s *Service) Rooms(ctx context.Context) ([]Group, error) {
	rooms, err := s.store.List(ctx)
	if err != nil {
		return nil, rxerrors.StoreError("list rooms", err)
	}
	groups := make([]Group, 0, len(rooms))
	for _, r := range rooms {
		groups = append(groups, Group{IndexName: r.IndexName, RoomName: r.Name()})
	}
	return groups, nil
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
