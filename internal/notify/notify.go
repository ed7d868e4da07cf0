// Package notify delivers the daily digest as a push notification via
// an ntfy topic.
package notify

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"newsward/internal/config"
	"newsward/internal/core"
	"newsward/internal/logger"
	"newsward/internal/store"

	"github.com/cenkalti/backoff/v4"
)

const (
	topStories     = 3   // articles spelled out in the notification body
	summaryMaxLen  = 200 // per-story summary length in the body
	publishTimeout = 15 * time.Second
	publishTries   = 3
)

// Storage is the notifier's view of the article store.
type Storage interface {
	DigestArticles(ctx context.Context, date string) ([]store.FeedItem, error)
	NotifiedCount(ctx context.Context, date string) (int, error)
	MarkNotified(ctx context.Context, articleIDs []int64) error
}

// Ranker orders digest articles for delivery. The default keeps the
// store's order, longest stories first.
type Ranker interface {
	Rank(items []store.FeedItem) []store.FeedItem
}

type storeOrderRanker struct{}

func (storeOrderRanker) Rank(items []store.FeedItem) []store.FeedItem { return items }

// Notifier sends digest notifications for one publication.
type Notifier struct {
	store  Storage
	cfg    config.Ntfy
	client *http.Client
	ranker Ranker
}

// New wires a notifier. A nil ranker keeps the store's ordering.
func New(st Storage, cfg config.Ntfy, ranker Ranker) *Notifier {
	if ranker == nil {
		ranker = storeOrderRanker{}
	}
	return &Notifier{
		store:  st,
		cfg:    cfg,
		client: &http.Client{Timeout: publishTimeout},
		ranker: ranker,
	}
}

// ntfy JSON publish payload.
type message struct {
	Topic    string   `json:"topic"`
	Title    string   `json:"title"`
	Message  string   `json:"message"`
	Priority int      `json:"priority"`
	Tags     []string `json:"tags,omitempty"`
	Click    string   `json:"click,omitempty"`
	Actions  []action `json:"actions,omitempty"`
	Attach   string   `json:"attach,omitempty"`
	Filename string   `json:"filename,omitempty"`
}

type action struct {
	Action string `json:"action"`
	Label  string `json:"label"`
	URL    string `json:"url"`
}

// SendDigest delivers the digest for one edition date and marks the
// included articles notified. At most topN ranked articles are included
// (0 means all). An edition already delivered is skipped unless force
// is set. Returns the number of articles delivered.
func (n *Notifier) SendDigest(ctx context.Context, slug, date string, topN int, force bool) (int, error) {
	if !force {
		already, err := n.store.NotifiedCount(ctx, date)
		if err != nil {
			return 0, err
		}
		if already > 0 {
			logger.Info("digest already delivered", "date", date, "notified", already)
			return 0, nil
		}
	}

	items, err := n.store.DigestArticles(ctx, date)
	if err != nil {
		return 0, err
	}
	if len(items) == 0 {
		logger.Info("nothing to deliver", "date", date)
		return 0, nil
	}
	items = n.ranker.Rank(items)
	if topN > 0 && len(items) > topN {
		items = items[:topN]
	}

	msg := n.buildMessage(slug, date, items)
	if err := n.publish(ctx, msg); err != nil {
		return 0, err
	}

	ids := make([]int64, len(items))
	for i, it := range items {
		ids[i] = it.ID
	}
	if err := n.store.MarkNotified(ctx, ids); err != nil {
		return len(items), core.Wrap(core.KindUpstream, err, "digest sent but not recorded")
	}

	logger.Info("digest delivered", "date", date, "articles", len(items))
	return len(items), nil
}

func (n *Notifier) buildMessage(slug, date string, items []store.FeedItem) message {
	msg := message{
		Topic:    n.cfg.Topic,
		Title:    fmt.Sprintf("📰 %s - %d new articles", displayName(slug), len(items)),
		Message:  digestBody(items),
		Priority: 3,
		Tags:     []string{"newspaper", "news"},
	}
	if n.cfg.ClickURL != "" {
		msg.Click = n.cfg.ClickURL
		msg.Actions = []action{{Action: "view", Label: "Read Digest", URL: n.cfg.ClickURL}}
	}
	if n.cfg.AttachFull {
		full := textDigest(slug, date, items)
		msg.Attach = "data:text/plain;base64," + base64.StdEncoding.EncodeToString([]byte(full))
		msg.Filename = "news-digest-" + date + ".txt"
	}
	return msg
}

// publish posts the payload, retrying transient and rate-limit
// failures.
func (n *Notifier) publish(ctx context.Context, msg message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return core.E(core.KindInternal, "encode notification", err)
	}
	endpoint := strings.TrimRight(n.cfg.URL, "/") + "/" + n.cfg.Topic

	op := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
		if err != nil {
			return backoff.Permanent(core.E(core.KindConfig, "bad ntfy url %s", endpoint, err))
		}
		req.Header.Set("Content-Type", "application/json")
		if n.cfg.Token != "" {
			req.Header.Set("Authorization", "Bearer "+n.cfg.Token)
		}

		resp, err := n.client.Do(req)
		if err != nil {
			return core.E(core.KindTransient, "post notification", err)
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusOK:
			return nil
		case resp.StatusCode == http.StatusTooManyRequests:
			return core.E(core.KindRateLimited, "ntfy rate limited")
		case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
			return backoff.Permanent(core.E(core.KindAuth, "ntfy rejected token"))
		case resp.StatusCode >= 500:
			return core.E(core.KindUpstream, "ntfy returned %d", resp.StatusCode)
		default:
			detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			return backoff.Permanent(core.E(core.KindData, "ntfy returned %d: %s", resp.StatusCode, string(detail)))
		}
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), publishTries-1), ctx)
	return backoff.Retry(op, policy)
}

// digestBody writes the top stories, one bullet each, with a trailing
// count of what was left out.
func digestBody(items []store.FeedItem) string {
	top := items
	if len(top) > topStories {
		top = top[:topStories]
	}

	parts := make([]string, 0, len(top)+1)
	for _, it := range top {
		line := "• "
		if it.Section != "" {
			line += "[" + it.Section + "] "
		}
		line += it.Title
		if s := briefSummary(it.Summary); s != "" {
			line += "\n  " + s
		}
		parts = append(parts, line)
	}
	if rest := len(items) - len(top); rest > 0 {
		parts = append(parts, fmt.Sprintf("... and %d more articles", rest))
	}
	return strings.Join(parts, "\n\n")
}

// briefSummary strips the folded key points and truncates for the
// notification body.
func briefSummary(s string) string {
	if i := strings.Index(s, "Key Points:"); i >= 0 {
		s = s[:i]
	}
	s = strings.TrimSpace(s)
	if r := []rune(s); len(r) > summaryMaxLen {
		s = string(r[:summaryMaxLen-3]) + "..."
	}
	return s
}

// textDigest is the full-text attachment, grouped by section.
func textDigest(slug, date string, items []store.FeedItem) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s NEWS DIGEST\n%s • %d Articles\n", strings.ToUpper(displayName(slug)), date, len(items))

	sections := map[string][]store.FeedItem{}
	order := []string{}
	for _, it := range items {
		section := it.Section
		if section == "" {
			section = "General"
		}
		if _, seen := sections[section]; !seen {
			order = append(order, section)
		}
		sections[section] = append(sections[section], it)
	}

	for _, section := range order {
		fmt.Fprintf(&b, "\n%s\n%s\n\n", strings.ToUpper(section), strings.Repeat("=", len(section)))
		for _, it := range sections[section] {
			b.WriteString(it.Title + "\n")
			if it.Summary != "" {
				b.WriteString(it.Summary + "\n")
			}
			if it.URL != "" {
				b.WriteString("Read more: " + it.URL + "\n")
			}
			b.WriteString("\n" + strings.Repeat("-", 50) + "\n\n")
		}
	}
	return b.String()
}

// displayName prettifies a publication slug for human-facing text.
func displayName(slug string) string {
	words := strings.FieldsFunc(slug, func(r rune) bool { return r == '-' || r == '_' })
	for i, w := range words {
		if w != "" {
			words[i] = strings.ToUpper(w[:1]) + w[1:]
		}
	}
	if len(words) == 0 {
		return slug
	}
	return strings.Join(words, " ")
}
