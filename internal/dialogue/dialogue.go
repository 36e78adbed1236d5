// Package dialogue implements the conversation engine: the router that decides
// which flow owns a message, the slot-filling flows (valuation, browse, test
// drive, contact, about) and the rules for merging and validating entities.
//
// The engine is pure with respect to its collaborators. Classification,
// inventory lookups and lead persistence are injected as interfaces, and
// persistence side effects are applied after the reply for a turn has been
// computed.
package dialogue

import (
	"context"
	"log/slog"
	"time"

	"github.com/BTreeMap/AutoSherpa/internal/content"
	"github.com/BTreeMap/AutoSherpa/internal/models"
)

// Classifier turns one user message into an intent, entities and a confidence.
// Implementations may fail; the router degrades failures to IntentOther.
type Classifier interface {
	Classify(ctx context.Context, message string, sess *models.Session) (models.Classification, error)
}

// ClassifierFunc adapts a function to the Classifier interface.
type ClassifierFunc func(ctx context.Context, message string, sess *models.Session) (models.Classification, error)

// Classify calls f.
func (f ClassifierFunc) Classify(ctx context.Context, message string, sess *models.Session) (models.Classification, error) {
	return f(ctx, message, sess)
}

// Inventory is the read side of the car catalogue.
type Inventory interface {
	// QueryInventory returns matching cars ordered by ascending price. No results is not an error.
	QueryInventory(ctx context.Context, filter models.InventoryFilter) ([]models.CarRecord, error)
	// ListDistinct returns the distinct values of field among cars matching filter.
	ListDistinct(ctx context.Context, field models.InventoryField, filter models.InventoryFilter) ([]string, error)
}

// LeadSaver persists leads captured by flows and returns their identifier.
type LeadSaver interface {
	SaveLead(ctx context.Context, lead models.Lead) (string, error)
}

// Event names something observable that happened during a turn.
type Event string

const (
	EventClarification     Event = "clarification"
	EventClassifierFailed  Event = "classifier_failed"
	EventInventoryFailed   Event = "inventory_failed"
	EventLeadSaved         Event = "lead_saved"
	EventLeadFailed        Event = "lead_failed"
	EventFlowPanic         Event = "flow_panic"
	EventConversationEnded Event = "conversation_ended"
)

// Reporter receives engine events for observability.
type Reporter interface {
	ReportEvent(ctx context.Context, event Event, attrs ...any)
	ReportError(ctx context.Context, event Event, err error, attrs ...any)
}

// logReporter is the default Reporter; it only logs.
type logReporter struct{}

func (logReporter) ReportEvent(ctx context.Context, event Event, attrs ...any) {
	slog.Debug("dialogue event", append([]any{"event", event}, attrs...)...)
}

func (logReporter) ReportError(ctx context.Context, event Event, err error, attrs ...any) {
	slog.Error("dialogue error", append([]any{"event", event, "error", err}, attrs...)...)
}

// Default tuning values.
const (
	DefaultConfidenceThreshold = 0.6
	DefaultPageSize            = 3
	DefaultMaxResults          = 20
	DefaultOptionLimit         = 6
	DefaultClassifierTimeout   = 10 * time.Second
)

// Opts holds router configuration.
type Opts struct {
	ConfidenceThreshold float64
	PageSize            int
	MaxResults          int
	OptionLimit         int
	HistoryLimit        int
	ClassifierTimeout   time.Duration
	Location            *time.Location
	Content             *content.Content
	Reporter            Reporter
	Now                 func() time.Time
}

// Option configures the router.
type Option func(*Opts)

// WithConfidenceThreshold sets the confidence below which an idle user is asked to clarify.
func WithConfidenceThreshold(threshold float64) Option {
	return func(o *Opts) { o.ConfidenceThreshold = threshold }
}

// WithPageSize sets how many cars are shown per page.
func WithPageSize(n int) Option {
	return func(o *Opts) { o.PageSize = n }
}

// WithMaxResults caps the number of cars fetched per search.
func WithMaxResults(n int) Option {
	return func(o *Opts) { o.MaxResults = n }
}

// WithOptionLimit caps the number of inventory-derived type and brand choices.
func WithOptionLimit(n int) Option {
	return func(o *Opts) { o.OptionLimit = n }
}

// WithHistoryLimit bounds the conversation history kept on the session.
func WithHistoryLimit(n int) Option {
	return func(o *Opts) { o.HistoryLimit = n }
}

// WithClassifierTimeout bounds each classifier call.
func WithClassifierTimeout(d time.Duration) Option {
	return func(o *Opts) { o.ClassifierTimeout = d }
}

// WithLocation sets the time zone used to schedule test drives.
func WithLocation(loc *time.Location) Option {
	return func(o *Opts) { o.Location = loc }
}

// WithContent sets the dealership copy.
func WithContent(c *content.Content) Option {
	return func(o *Opts) { o.Content = c }
}

// WithReporter sets the event sink.
func WithReporter(r Reporter) Option {
	return func(o *Opts) { o.Reporter = r }
}

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(o *Opts) { o.Now = now }
}

func (o *Opts) applyDefaults() {
	if o.ConfidenceThreshold <= 0 {
		o.ConfidenceThreshold = DefaultConfidenceThreshold
	}
	if o.PageSize <= 0 {
		o.PageSize = DefaultPageSize
	}
	if o.MaxResults <= 0 {
		o.MaxResults = DefaultMaxResults
	}
	if o.OptionLimit <= 0 {
		o.OptionLimit = DefaultOptionLimit
	}
	if o.HistoryLimit <= 0 {
		o.HistoryLimit = models.DefaultHistoryLimit
	}
	if o.ClassifierTimeout <= 0 {
		o.ClassifierTimeout = DefaultClassifierTimeout
	}
	if o.Location == nil {
		o.Location = indiaLocation()
	}
	if o.Content == nil {
		o.Content = content.Default()
	}
	if o.Reporter == nil {
		o.Reporter = logReporter{}
	}
	if o.Now == nil {
		o.Now = time.Now
	}
}

func indiaLocation() *time.Location {
	if loc, err := time.LoadLocation("Asia/Kolkata"); err == nil {
		return loc
	}
	return time.FixedZone("IST", 5*60*60+30*60)
}
