// Package feed assembles one viewer's live view of a chat: the live tail plus
// backward-loaded history merged into a single ascending sequence, with media
// and link decoration resolved lazily.
package feed

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"program-chat-service/internal/errkind"
	"program-chat-service/internal/models"
	"program-chat-service/internal/preview"
	"program-chat-service/internal/repositories"
)

// URLResolver resolves storage paths to viewable URLs. An empty result means
// "media temporarily unavailable".
type URLResolver interface {
	Resolve(ctx context.Context, storagePath string) string
	Invalidate(storagePath string)
}

// PreviewFetcher resolves best-effort link previews.
type PreviewFetcher interface {
	Fetch(ctx context.Context, rawURL string) *preview.Preview
}

// Sender appends a composed message on behalf of the viewer. The HTTP layer
// wraps membership checks and broadcasting around the repository append.
type Sender interface {
	Send(ctx context.Context, chatID, senderEmail string, payload models.Payload) (models.Message, error)
}

// Entry is one renderable message.
type Entry struct {
	Message  models.Message   `json:"message"`
	Mine     bool             `json:"mine"`
	MediaURL string           `json:"media_url,omitempty"`
	Preview  *preview.Preview `json:"preview,omitempty"`
}

// DaySection groups consecutive entries by calendar day for separator
// rendering.
type DaySection struct {
	Day     time.Time `json:"day"`
	Entries []Entry   `json:"entries"`
}

// Options tune a feed session.
type Options struct {
	LiveTailLimit int
	PageSize      int
	// LoadOlderDebounce is the minimum interval between pagination trigger
	// fires, so fast scrolling does not stack redundant fetches.
	LoadOlderDebounce time.Duration
}

func (o *Options) fill() {
	if o.LiveTailLimit <= 0 {
		o.LiveTailLimit = 50
	}
	if o.PageSize <= 0 {
		o.PageSize = 30
	}
	if o.LoadOlderDebounce <= 0 {
		o.LoadOlderDebounce = 400 * time.Millisecond
	}
}

// Controller owns the merged message sequence for one (chat, viewer) session.
// All mutations run under one lock; the async work (resolution, preview
// fetches) happens outside it.
type Controller struct {
	chat     models.Chat
	viewer   string
	messages repositories.MessageRepository
	sender   Sender
	resolver URLResolver
	previews PreviewFetcher
	opts     Options

	mu        sync.Mutex
	sequence  []models.Message
	seen      map[int64]struct{}
	exhausted bool
	lastLoad  time.Time
	draft     string

	previewCache map[string]*preview.Preview
}

// NewController builds a feed session. resolver and previews may be nil;
// entries then carry no media URLs or link previews.
func NewController(chat models.Chat, viewerEmail string, messages repositories.MessageRepository, sender Sender, resolver URLResolver, previews PreviewFetcher, opts Options) *Controller {
	opts.fill()
	return &Controller{
		chat:         chat,
		viewer:       models.NormalizeEmail(viewerEmail),
		messages:     messages,
		sender:       sender,
		resolver:     resolver,
		previews:     previews,
		opts:         opts,
		seen:         make(map[int64]struct{}),
		previewCache: make(map[string]*preview.Preview),
	}
}

// Start loads the initial live tail window.
func (c *Controller) Start(ctx context.Context) error {
	tail, err := c.messages.LiveTail(ctx, c.chat.ID, c.opts.LiveTailLimit)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.merge(tail)
	c.mu.Unlock()
	return nil
}

// ApplyLive folds a message delivered by the live subscription into the
// sequence. Messages already seen are ignored, so live delivery after a tail
// reload cannot duplicate.
func (c *Controller) ApplyLive(msg models.Message) {
	c.mu.Lock()
	c.merge([]models.Message{msg})
	c.mu.Unlock()
}

// LoadOlderPage fetches the page before the oldest loaded message. It
// debounces trigger fires and goes inert once history is exhausted. The
// returned count is the number of newly merged messages.
func (c *Controller) LoadOlderPage(ctx context.Context) (int, error) {
	c.mu.Lock()
	if c.exhausted || len(c.sequence) == 0 {
		c.mu.Unlock()
		return 0, nil
	}
	if since := time.Since(c.lastLoad); since < c.opts.LoadOlderDebounce {
		c.mu.Unlock()
		return 0, nil
	}
	c.lastLoad = time.Now()
	boundary := c.sequence[0].ID
	c.mu.Unlock()

	page, err := c.messages.LoadOlder(ctx, c.chat.ID, boundary, c.opts.PageSize)
	if err != nil {
		return 0, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if len(page) == 0 {
		// Sticky until the session resets.
		c.exhausted = true
		return 0, nil
	}
	return c.merge(page), nil
}

// Exhausted reports whether backward pagination has hit the start of history.
func (c *Controller) Exhausted() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.exhausted
}

// merge inserts unseen messages and keeps the sequence ascending by
// (timestamp, id). Callers hold c.mu.
func (c *Controller) merge(msgs []models.Message) int {
	added := 0
	for _, msg := range msgs {
		if _, ok := c.seen[msg.ID]; ok {
			continue
		}
		c.seen[msg.ID] = struct{}{}
		c.sequence = insertOrdered(c.sequence, msg)
		added++
	}
	return added
}

func insertOrdered(seq []models.Message, msg models.Message) []models.Message {
	i := len(seq)
	for i > 0 && after(seq[i-1], msg) {
		i--
	}
	seq = append(seq, models.Message{})
	copy(seq[i+1:], seq[i:])
	seq[i] = msg
	return seq
}

// after reports a > b in the store's total order.
func after(a, b models.Message) bool {
	if !a.Timestamp.Equal(b.Timestamp) {
		return a.Timestamp.After(b.Timestamp)
	}
	return a.ID > b.ID
}

// Entries renders the merged sequence: bubble side by case-insensitive email
// comparison, media resolved through the signed-URL resolver, link previews
// attached when available. Resolution failures leave the entry without its
// decoration and never error.
func (c *Controller) Entries(ctx context.Context) []Entry {
	c.mu.Lock()
	snapshot := make([]models.Message, len(c.sequence))
	copy(snapshot, c.sequence)
	c.mu.Unlock()

	entries := make([]Entry, 0, len(snapshot))
	for _, msg := range snapshot {
		entry := Entry{
			Message: msg,
			Mine:    models.NormalizeEmail(msg.SenderEmail) == c.viewer,
		}
		if msg.Media != nil && c.resolver != nil {
			entry.MediaURL = c.resolver.Resolve(ctx, msg.Media.StoragePath)
		}
		if msg.Link != "" && c.previews != nil {
			entry.Preview = c.linkPreview(ctx, msg.Link)
		}
		entries = append(entries, entry)
	}
	return entries
}

// DaySections buckets entries by the calendar day of their timestamps.
func (c *Controller) DaySections(ctx context.Context) []DaySection {
	entries := c.Entries(ctx)

	var sections []DaySection
	for _, entry := range entries {
		day := entry.Message.Timestamp.Truncate(24 * time.Hour)
		if n := len(sections); n > 0 && sections[n-1].Day.Equal(day) {
			sections[n-1].Entries = append(sections[n-1].Entries, entry)
			continue
		}
		sections = append(sections, DaySection{Day: day, Entries: []Entry{entry}})
	}
	return sections
}

// ReportMediaFailure tells the session a resolved URL stopped loading; the
// cached entry is dropped so the next render re-resolves.
func (c *Controller) ReportMediaFailure(storagePath string) {
	if c.resolver != nil {
		c.resolver.Invalidate(storagePath)
	}
}

// SetDraft replaces the composer content.
func (c *Controller) SetDraft(text string) {
	c.mu.Lock()
	c.draft = text
	c.mu.Unlock()
}

// Draft returns the current composer content.
func (c *Controller) Draft() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.draft
}

// Send classifies and appends the composer draft. Success clears the draft;
// failure preserves it so the user can retry, and the error's kind tells the
// caller whether to show a permission alert or a generic retry prompt.
func (c *Controller) Send(ctx context.Context) (models.Message, error) {
	if c.viewer == "" || c.chat.ID == "" {
		return models.Message{}, errkind.Validation(errors.New("no identity or chat bound"))
	}

	c.mu.Lock()
	draft := c.draft
	c.mu.Unlock()

	payload := models.ClassifyText(draft)
	if err := payload.Validate(); err != nil {
		return models.Message{}, errkind.Validation(err)
	}

	msg, err := c.sender.Send(ctx, c.chat.ID, c.viewer, payload)
	if err != nil {
		return models.Message{}, err
	}

	c.mu.Lock()
	c.draft = ""
	c.merge([]models.Message{msg})
	c.mu.Unlock()
	return msg, nil
}

func (c *Controller) linkPreview(ctx context.Context, link string) *preview.Preview {
	c.mu.Lock()
	if p, ok := c.previewCache[link]; ok {
		c.mu.Unlock()
		return p
	}
	c.mu.Unlock()

	p := c.previews.Fetch(ctx, link)
	if p == nil {
		log.Printf("link preview unavailable for %s", link)
	}
	// Negative results are cached too: one failed fetch per link per session.
	c.mu.Lock()
	c.previewCache[link] = p
	c.mu.Unlock()
	return p
}
