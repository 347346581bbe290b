package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/eshaffer321/recon-monitor/internal/domain/alerts"
	"github.com/eshaffer321/recon-monitor/internal/infrastructure/storage"
)

// Audiences
const (
	AudienceUser       = "user"
	AudienceAP         = "ap"
	AudienceFinance    = "finance"
	AudienceCompliance = "compliance"
)

// Routing maps audiences to recipients.
type Routing struct {
	// UserDomain turns a cardholder name into an address when it has none.
	UserDomain string
	AP         []string
	Finance    []string
	Compliance []string
}

// severityAudiences routes consolidated alert digests.
var severityAudiences = map[alerts.Severity][]string{
	alerts.SeverityCritical: {AudienceFinance, AudienceCompliance},
	alerts.SeverityHigh:     {AudienceFinance, AudienceAP},
	alerts.SeverityMedium:   {AudienceAP},
	alerts.SeverityLow:      {AudienceAP},
	alerts.SeverityInfo:     {AudienceAP},
}

// Recipients returns the addresses of an audience. owner is used for the
// user audience.
func (r Routing) Recipients(audience, owner string) []string {
	switch audience {
	case AudienceUser:
		if owner == "" {
			return nil
		}
		if strings.Contains(owner, "@") || r.UserDomain == "" {
			return []string{owner}
		}
		return []string{owner + "@" + r.UserDomain}
	case AudienceAP:
		return r.AP
	case AudienceFinance:
		return r.Finance
	case AudienceCompliance:
		return r.Compliance
	}
	return nil
}

// DispatchResult counts what a dispatch delivered.
type DispatchResult struct {
	Digests      int `json:"digests"`
	Reminders    int `json:"reminders"`
	Deduplicated int `json:"deduplicated"`
	Failed       int `json:"failed"`
}

// Dispatcher sends alert digests by severity and card ageing reminders, at
// most once per (day, audience, stage, transaction).
type Dispatcher struct {
	notifiers []Notifier
	reminders storage.ReminderRepository
	routing   Routing
	logger    *slog.Logger
}

// NewDispatcher creates a dispatcher. reminders may be nil, in which case
// reminders are not deduplicated.
func NewDispatcher(routing Routing, reminders storage.ReminderRepository, logger *slog.Logger, notifiers ...Notifier) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		notifiers: notifiers,
		reminders: reminders,
		routing:   routing,
		logger:    logger.With("system", "notify"),
	}
}

// Dispatch delivers alerts. dedupKey scopes reminder deduplication, normally
// the run date, so a rerun on the same day does not nag twice.
func (d *Dispatcher) Dispatch(ctx context.Context, dedupKey string, list []alerts.Alert) (DispatchResult, error) {
	var result DispatchResult
	var errs []error

	bySeverity := make(map[alerts.Severity][]alerts.Alert)
	var reminders []alerts.Alert
	for _, a := range list {
		if a.Stage != "" {
			reminders = append(reminders, a)
			continue
		}
		bySeverity[a.Severity] = append(bySeverity[a.Severity], a)
	}

	for _, sev := range []alerts.Severity{alerts.SeverityCritical, alerts.SeverityHigh, alerts.SeverityMedium, alerts.SeverityLow, alerts.SeverityInfo} {
		group := bySeverity[sev]
		if len(group) == 0 {
			continue
		}
		for _, audience := range severityAudiences[sev] {
			msg := Message{
				Audience:   audience,
				Recipients: d.routing.Recipients(audience, ""),
				Subject:    fmt.Sprintf("Reconciliation Alert - %s: %d issue(s) detected", strings.ToUpper(string(sev)), len(group)),
				Severity:   sev,
				Alerts:     payloads(group),
			}
			if err := d.send(ctx, msg); err != nil {
				result.Failed++
				errs = append(errs, err)
				continue
			}
			result.Digests++
		}
	}

	for _, a := range reminders {
		sent, err := d.remind(ctx, dedupKey, a)
		switch {
		case err != nil:
			result.Failed++
			errs = append(errs, err)
		case sent:
			result.Reminders++
		default:
			result.Deduplicated++
		}
	}

	d.logger.Info("dispatch complete",
		"digests", result.Digests,
		"reminders", result.Reminders,
		"deduplicated", result.Deduplicated,
		"failed", result.Failed,
	)
	return result, errors.Join(errs...)
}

func (d *Dispatcher) remind(ctx context.Context, dedupKey string, a alerts.Alert) (bool, error) {
	txnID := ""
	if len(a.AffectedEntities) > 0 {
		txnID = a.AffectedEntities[0]
	}
	stage := string(a.Stage)

	if d.reminders != nil {
		already, err := d.reminders.ReminderSent(dedupKey, a.Audience, stage, txnID)
		if err != nil {
			return false, fmt.Errorf("reminder lookup %s: %w", a.ID, err)
		}
		if already {
			return false, nil
		}
	}

	msg := Message{
		Audience:   a.Audience,
		Recipients: d.routing.Recipients(a.Audience, a.Owner),
		Subject:    fmt.Sprintf("[%s] %s", stage, a.Title),
		Severity:   a.Severity,
		Alerts:     payloads([]alerts.Alert{a}),
	}
	if err := d.send(ctx, msg); err != nil {
		return false, err
	}

	if d.reminders != nil {
		_, err := d.reminders.MarkReminderSent(storage.Reminder{
			RunID:         dedupKey,
			Audience:      a.Audience,
			Stage:         stage,
			TransactionID: txnID,
		})
		if err != nil {
			return true, fmt.Errorf("reminder record %s: %w", a.ID, err)
		}
	}
	return true, nil
}

// send delivers to every notifier. A message counts as failed if any
// notifier fails.
func (d *Dispatcher) send(ctx context.Context, msg Message) error {
	var errs []error
	for _, n := range d.notifiers {
		if err := n.Notify(ctx, msg); err != nil {
			d.logger.Warn("notifier failed", "notifier", n.Name(), "subject", msg.Subject, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", n.Name(), err))
		}
	}
	return errors.Join(errs...)
}

func payloads(list []alerts.Alert) []AlertPayload {
	out := make([]AlertPayload, len(list))
	for i, a := range list {
		out[i] = toPayload(a)
	}
	return out
}
