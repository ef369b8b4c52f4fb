package engine

import (
	"context"
	"fmt"
	"html"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/Aman-CERP/roomdex/internal/document"
)

// MeiliConfig configures the Meilisearch adapter.
type MeiliConfig struct {
	URL     string
	Key     string
	Timeout time.Duration
	// TaskPoll is the interval between task status checks.
	TaskPoll time.Duration
	// TaskTimeout bounds how long EnsureIndex waits for one task.
	TaskTimeout time.Duration
}

// MeiliEngine implements Engine against the Meilisearch REST API.
type MeiliEngine struct {
	client *resty.Client
	cfg    MeiliConfig
	logger *slog.Logger
}

var _ Engine = (*MeiliEngine)(nil)

// meiliError is the error body Meilisearch returns.
type meiliError struct {
	Message string `json:"message"`
	Code    string `json:"code"`
	Type    string `json:"type"`
}

type meiliTask struct {
	TaskUID int64       `json:"taskUid"`
	UID     int64       `json:"uid"`
	Status  string      `json:"status"`
	Error   *meiliError `json:"error"`
}

// NewMeiliEngine creates the adapter. No request is made until first use.
func NewMeiliEngine(cfg MeiliConfig, logger *slog.Logger) *MeiliEngine {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.TaskPoll <= 0 {
		cfg.TaskPoll = 50 * time.Millisecond
	}
	if cfg.TaskTimeout <= 0 {
		cfg.TaskTimeout = 30 * time.Second
	}

	client := resty.New().
		SetBaseURL(cfg.URL).
		SetTimeout(cfg.Timeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("User-Agent", "roomdex")
	if cfg.Key != "" {
		client.SetAuthToken(cfg.Key)
	}

	return &MeiliEngine{client: client, cfg: cfg, logger: logger}
}

func (m *MeiliEngine) request(ctx context.Context) *resty.Request {
	return m.client.R().SetContext(ctx).SetError(&meiliError{})
}

// apiError turns a failed response into an error carrying Meilisearch's message.
func apiError(op string, resp *resty.Response) error {
	if e, ok := resp.Error().(*meiliError); ok && e.Message != "" {
		return fmt.Errorf("%s: %s (%s, status %d)", op, e.Message, e.Code, resp.StatusCode())
	}
	return fmt.Errorf("%s: status %d: %s", op, resp.StatusCode(), resp.String())
}

// EnsureIndex implements Engine.
func (m *MeiliEngine) EnsureIndex(ctx context.Context, name string) error {
	if err := ValidateIndexName(name); err != nil {
		return err
	}

	resp, err := m.request(ctx).SetPathParam("uid", name).Get("/indexes/{uid}")
	if err != nil {
		return fmt.Errorf("get index %s: %w", name, err)
	}
	created := false
	switch {
	case resp.StatusCode() == http.StatusNotFound:
		var task meiliTask
		resp, err = m.request(ctx).
			SetBody(map[string]string{"uid": name, "primaryKey": PrimaryKey}).
			SetResult(&task).
			Post("/indexes")
		if err != nil {
			return fmt.Errorf("create index %s: %w", name, err)
		}
		if resp.IsError() {
			return apiError("create index "+name, resp)
		}
		if err := m.waitTask(ctx, task.TaskUID); err != nil {
			return fmt.Errorf("create index %s: %w", name, err)
		}
		created = true
	case resp.IsError():
		return apiError("get index "+name, resp)
	}

	// applied on every call, so a setup that failed halfway completes later
	settings := []struct {
		path  string
		value []string
	}{
		{"filterable-attributes", []string{"sender_id", "timestamp"}},
		{"sortable-attributes", []string{"timestamp"}},
	}
	for _, s := range settings {
		var task meiliTask
		resp, err := m.request(ctx).
			SetPathParam("uid", name).
			SetPathParam("setting", s.path).
			SetBody(s.value).
			SetResult(&task).
			Put("/indexes/{uid}/settings/{setting}")
		if err != nil {
			return fmt.Errorf("set %s on %s: %w", s.path, name, err)
		}
		if resp.IsError() {
			return apiError("set "+s.path+" on "+name, resp)
		}
		if err := m.waitTask(ctx, task.TaskUID); err != nil {
			return fmt.Errorf("set %s on %s: %w", s.path, name, err)
		}
	}

	if created {
		m.logger.Info("meilisearch_index_created", slog.String("index", name))
	} else {
		m.logger.Debug("meilisearch_index_settings_applied", slog.String("index", name))
	}
	return nil
}

// waitTask polls an asynchronous task until it finishes.
func (m *MeiliEngine) waitTask(ctx context.Context, uid int64) error {
	ctx, cancel := context.WithTimeout(ctx, m.cfg.TaskTimeout)
	defer cancel()

	ticker := time.NewTicker(m.cfg.TaskPoll)
	defer ticker.Stop()

	for {
		var task meiliTask
		resp, err := m.request(ctx).
			SetPathParam("task", strconv.FormatInt(uid, 10)).
			SetResult(&task).
			Get("/tasks/{task}")
		if err != nil {
			return fmt.Errorf("task %d: %w", uid, err)
		}
		if resp.IsError() {
			return apiError(fmt.Sprintf("task %d", uid), resp)
		}

		switch task.Status {
		case "succeeded":
			return nil
		case "failed", "canceled":
			if task.Error != nil {
				return fmt.Errorf("task %d %s: %s (%s)", uid, task.Status, task.Error.Message, task.Error.Code)
			}
			return fmt.Errorf("task %d %s", uid, task.Status)
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("task %d: %w", uid, ctx.Err())
		case <-ticker.C:
		}
	}
}

// Upsert implements Engine. The write is enqueued; Meilisearch applies it
// asynchronously.
func (m *MeiliEngine) Upsert(ctx context.Context, index string, docs ...document.SearchDocument) error {
	if len(docs) == 0 {
		return nil
	}

	var task meiliTask
	resp, err := m.request(ctx).
		SetPathParam("uid", index).
		SetQueryParam("primaryKey", PrimaryKey).
		SetBody(docs).
		SetResult(&task).
		Post("/indexes/{uid}/documents")
	if err != nil {
		return fmt.Errorf("upsert into %s: %w", index, err)
	}
	if resp.IsError() {
		return apiError("upsert into "+index, resp)
	}

	m.logger.Debug("meilisearch_documents_enqueued",
		slog.String("index", index),
		slog.Int("count", len(docs)),
		slog.Int64("task_uid", task.TaskUID))
	return nil
}

type meiliSearchRequest struct {
	Q                     string   `json:"q"`
	Sort                  []string `json:"sort"`
	AttributesToSearchOn  []string `json:"attributesToSearchOn"`
	AttributesToHighlight []string `json:"attributesToHighlight"`
	HighlightPreTag       string   `json:"highlightPreTag"`
	HighlightPostTag      string   `json:"highlightPostTag"`
	Filter                string   `json:"filter,omitempty"`
	Limit                 int      `json:"limit"`
}

type meiliHit struct {
	document.SearchDocument
	Formatted struct {
		Body string `json:"body"`
	} `json:"_formatted"`
}

type meiliSearchResponse struct {
	Hits               []meiliHit `json:"hits"`
	EstimatedTotalHits int        `json:"estimatedTotalHits"`
	Limit              int        `json:"limit"`
}

// Search implements Engine.
func (m *MeiliEngine) Search(ctx context.Context, index string, q Query) (*Result, error) {
	body := meiliSearchRequest{
		Q:                     q.Text,
		Sort:                  []string{"timestamp:desc"},
		AttributesToSearchOn:  []string{"body"},
		AttributesToHighlight: []string{"body"},
		HighlightPreTag:       HighlightPreTag,
		HighlightPostTag:      HighlightPostTag,
		Limit:                 q.Limit,
	}
	if q.Before != nil {
		body.Filter = fmt.Sprintf("timestamp < %d", *q.Before)
	}

	var out meiliSearchResponse
	resp, err := m.request(ctx).
		SetPathParam("uid", index).
		SetBody(body).
		SetResult(&out).
		Post("/indexes/{uid}/search")
	if err != nil {
		return nil, fmt.Errorf("search %s: %w", index, err)
	}
	if resp.StatusCode() == http.StatusNotFound {
		return nil, fmt.Errorf("search %s: %w", index, ErrIndexNotFound)
	}
	if resp.IsError() {
		return nil, apiError("search "+index, resp)
	}

	res := &Result{
		Hits:           make([]Hit, 0, len(out.Hits)),
		EstimatedTotal: out.EstimatedTotalHits,
		Limit:          out.Limit,
	}
	for _, h := range out.Hits {
		// _formatted is the stored text plus the tags, unescaped
		highlighted := escapeHighlighted(h.Formatted.Body)
		if h.Formatted.Body == "" {
			highlighted = html.EscapeString(h.Body)
		}
		res.Hits = append(res.Hits, Hit{Document: h.SearchDocument, Highlighted: highlighted})
	}
	return res, nil
}

// Close implements Engine.
func (m *MeiliEngine) Close() error {
	return nil
}
