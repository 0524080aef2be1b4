package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/dev-tams/sqlbackup/internal/config"
)

const (
	StatusSuccess = "success"
	StatusFailure = "failure"
)

// Event is the notification payload shared by all notifier implementations.
// Bytes is -1 when the artifact size could not be measured.
type Event struct {
	DB          string `json:"db"`
	Status      string `json:"status"`
	Trigger     string `json:"trigger"`
	Filename    string `json:"filename,omitempty"`
	Bytes       int64  `json:"bytes"`
	Remaining   int    `json:"remaining"`
	Deleted     int    `json:"deleted"`
	Stage       string `json:"stage,omitempty"`
	Mirror      string `json:"mirror,omitempty"`
	MirrorError string `json:"mirror_error,omitempty"`
	Duration    string `json:"duration"`
	Error       string `json:"error,omitempty"`
}

// Summary renders event as one line, e.g.
// "sqlbackup success: shop_2026-10-18_02-00-00.sql.gz (1.2 MB, 7 kept, 1 deleted)".
func Summary(e Event) string {
	if e.Status != StatusSuccess {
		return fmt.Sprintf("sqlbackup %s: %s backup of %s failed during %s: %s", e.Status, e.Trigger, e.DB, e.Stage, e.Error)
	}
	size := "size unknown"
	if e.Bytes >= 0 {
		size = humanize.Bytes(uint64(e.Bytes))
	}
	return fmt.Sprintf("sqlbackup %s: %s (%s, %d kept, %d deleted)", e.Status, e.Filename, size, e.Remaining, e.Deleted)
}

type Notifier interface {
	Notify(ctx context.Context, event Event) error
}

type route struct {
	kind     string
	statuses map[string]bool
	notifier Notifier
}

// Dispatcher fans an event out to every route that subscribed to its status.
type Dispatcher struct {
	routes []route
}

func NewDispatcher(cfgs []config.NotificationConfig) (*Dispatcher, error) {
	d := &Dispatcher{routes: make([]route, 0, len(cfgs))}
	for i, n := range cfgs {
		statuses, err := parseOn(n.On)
		if err != nil {
			return nil, fmt.Errorf("notifications[%d]: %w", i, err)
		}

		kind := strings.ToLower(strings.TrimSpace(n.Type))
		nf, err := newNotifier(kind, n.Config)
		if err != nil {
			return nil, fmt.Errorf("notifications[%d] %s: %w", i, n.Type, err)
		}
		d.routes = append(d.routes, route{kind: kind, statuses: statuses, notifier: nf})
	}
	return d, nil
}

func newNotifier(kind string, c config.NotificationDetails) (Notifier, error) {
	switch kind {
	case "webhook":
		return NewWebhook(c.URL, c.Headers)
	case "email":
		return NewEmail(c.SMTPHost, c.SMTPPort, c.From, c.To, c.Username, c.Password)
	default:
		return nil, fmt.Errorf("unsupported notification type %q", kind)
	}
}

// Notify delivers to every matching route; one failing route never stops the
// rest and all failures come back joined.
func (d *Dispatcher) Notify(ctx context.Context, event Event) error {
	if d == nil {
		return nil
	}

	var errs []error
	for i, r := range d.routes {
		if !r.statuses[event.Status] {
			continue
		}
		if err := r.notifier.Notify(ctx, event); err != nil {
			errs = append(errs, fmt.Errorf("%s route %d: %w", r.kind, i, err))
		}
	}
	return errors.Join(errs...)
}

// parseOn maps the route's `on` list to the statuses it receives.
func parseOn(raw []string) (map[string]bool, error) {
	statuses := make(map[string]bool, 2)
	for _, v := range raw {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case StatusSuccess:
			statuses[StatusSuccess] = true
		case StatusFailure:
			statuses[StatusFailure] = true
		case "both":
			statuses[StatusSuccess] = true
			statuses[StatusFailure] = true
		default:
			return nil, fmt.Errorf("on contains unsupported value %q", v)
		}
	}
	if len(statuses) == 0 {
		return nil, fmt.Errorf("on must include success, failure, or both")
	}
	return statuses, nil
}
