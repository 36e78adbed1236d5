package dialogue

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/BTreeMap/AutoSherpa/internal/models"
)

// flow is one conversation purpose. Handle returns false to yield a message
// it does not recognise at a terminal step back to the router.
type flow interface {
	Kind() models.FlowKind
	Enter(ctx context.Context, t *turn) models.Reply
	Handle(ctx context.Context, t *turn) (models.Reply, bool)
	Seed(ctx context.Context, t *turn, entities map[string]string)
}

// Router decides which flow owns each inbound message and applies the
// resulting side effects.
type Router struct {
	classifier Classifier
	inventory  Inventory
	leads      LeadSaver
	opts       Opts
	flows      map[models.FlowKind]flow
}

// NewRouter creates a Router. A nil classifier classifies every message as
// IntentOther with zero confidence.
func NewRouter(classifier Classifier, inventory Inventory, leads LeadSaver, opts ...Option) *Router {
	r := &Router{classifier: classifier, inventory: inventory, leads: leads}
	for _, opt := range opts {
		opt(&r.opts)
	}
	r.opts.applyDefaults()
	r.flows = map[models.FlowKind]flow{
		models.FlowValuation: newValuationFlow(r),
		models.FlowBrowse:    newBrowseFlow(r),
		models.FlowTestDrive: newTestDriveFlow(r),
		models.FlowContact:   newContactFlow(r),
		models.FlowAbout:     newAboutFlow(r),
	}
	return r
}

// Route computes the reply to one message and applies its side effects.
// It returns nil when nothing should be sent.
func (r *Router) Route(ctx context.Context, sess *models.Session, message string) *models.Reply {
	t := &turn{sess: sess, text: strings.TrimSpace(message), now: r.opts.Now()}

	if sess.ConversationEnded {
		if !isRestart(t.text) {
			slog.Debug("Router.Route: conversation ended, suppressing reply", "phone", sess.Phone)
			return nil
		}
		sess.Reset()
		reply := r.mainMenu(sess)
		return r.finish(ctx, t, reply)
	}

	reply := r.dispatch(ctx, t)
	return r.finish(ctx, t, reply)
}

func (r *Router) dispatch(ctx context.Context, t *turn) models.Reply {
	sess := t.sess
	if isMenuCommand(t.text) {
		return r.mainMenu(sess)
	}

	if f, ok := r.flows[sess.Step.Flow()]; ok {
		reply, handled := r.guard(ctx, t, func() (models.Reply, bool) { return f.Handle(ctx, t) })
		if handled {
			return reply
		}
		slog.Debug("Router.dispatch: flow yielded", "flow", f.Kind(), "step", sess.Step, "phone", sess.Phone)
		sess.Step = models.StepIdle
	}

	if sess.Step.IsIdle() && isGreeting(t.text) {
		return r.mainMenu(sess)
	}

	var cls models.Classification
	if intent, ok := menuIntent(t.text); ok {
		cls = models.Classification{Intent: intent, Confidence: 1}
	} else {
		cls = r.classify(ctx, t)
	}
	sess.LastIntent = cls.Intent
	sess.LastEntities = cls.Entities
	sess.LastConfidence = cls.Confidence

	if cls.Confidence < r.opts.ConfidenceThreshold && !sess.InActiveFlow() && sess.Step != models.StepIntentClarify {
		r.opts.Reporter.ReportEvent(ctx, EventClarification, "intent", cls.Intent, "confidence", cls.Confidence)
		return clarificationReply(sess)
	}

	r.seed(ctx, t, cls)

	reply, _ := r.guard(ctx, t, func() (models.Reply, bool) { return r.enter(ctx, t, cls.Intent), true })
	return reply
}

func (r *Router) enter(ctx context.Context, t *turn, intent models.Intent) models.Reply {
	switch intent {
	case models.IntentGreeting:
		return r.mainMenu(t.sess)
	case models.IntentBrowseCars:
		return r.flows[models.FlowBrowse].Enter(ctx, t)
	case models.IntentCarValuation:
		return r.flows[models.FlowValuation].Enter(ctx, t)
	case models.IntentTestDrive:
		if t.sess.SelectedCar == nil {
			return withPrefix(r.flows[models.FlowBrowse].Enter(ctx, t), "Let's find a car for your test drive first! 🚗")
		}
		return r.flows[models.FlowTestDrive].Enter(ctx, t)
	case models.IntentContactTeam:
		return r.flows[models.FlowContact].Enter(ctx, t)
	case models.IntentAboutUs:
		return r.flows[models.FlowAbout].Enter(ctx, t)
	default:
		return fallbackReply(t.sess)
	}
}

// seed merges classified entities into the slots of the flows the intent targets.
func (r *Router) seed(ctx context.Context, t *turn, cls models.Classification) {
	if len(cls.Entities) == 0 {
		return
	}
	var targets []models.FlowKind
	switch cls.Intent {
	case models.IntentBrowseCars:
		targets = []models.FlowKind{models.FlowBrowse}
	case models.IntentCarValuation:
		targets = []models.FlowKind{models.FlowValuation}
	case models.IntentTestDrive:
		targets = []models.FlowKind{models.FlowTestDrive, models.FlowBrowse}
	case models.IntentContactTeam:
		targets = []models.FlowKind{models.FlowContact}
	}
	for _, kind := range targets {
		r.flows[kind].Seed(ctx, t, cls.Entities)
	}
}

// classify never fails: errors, panics, timeouts and empty results degrade to IntentOther.
func (r *Router) classify(ctx context.Context, t *turn) (cls models.Classification) {
	if r.classifier == nil {
		return models.Unclassified()
	}
	ctx, cancel := context.WithTimeout(ctx, r.opts.ClassifierTimeout)
	defer cancel()
	defer func() {
		if rec := recover(); rec != nil {
			r.opts.Reporter.ReportError(ctx, EventClassifierFailed, fmt.Errorf("classifier panic: %v", rec), "phone", t.sess.Phone)
			cls = models.Unclassified()
		}
	}()

	cls, err := r.classifier.Classify(ctx, t.text, t.sess)
	if err != nil {
		r.opts.Reporter.ReportError(ctx, EventClassifierFailed, err, "phone", t.sess.Phone)
		return models.Unclassified()
	}
	if cls.Intent == "" {
		r.opts.Reporter.ReportError(ctx, EventClassifierFailed, fmt.Errorf("empty classification"), "phone", t.sess.Phone)
		return models.Unclassified()
	}
	cls.Intent = models.ParseIntent(string(cls.Intent))
	cls.Confidence = models.ClampConfidence(cls.Confidence)
	return cls
}

// guard runs a flow handler, turning a panic into an apology and dropping
// any side effects the handler queued.
func (r *Router) guard(ctx context.Context, t *turn, fn func() (models.Reply, bool)) (reply models.Reply, handled bool) {
	defer func() {
		if rec := recover(); rec != nil {
			r.opts.Reporter.ReportError(ctx, EventFlowPanic, fmt.Errorf("flow panic: %v", rec), "step", t.sess.Step, "phone", t.sess.Phone)
			t.effects = nil
			reply, handled = apologyReply(t.sess), true
		}
	}()
	return fn()
}

// finish applies side effects, bounds the options and records the turn.
func (r *Router) finish(ctx context.Context, t *turn, reply models.Reply) *models.Reply {
	sess := t.sess
	for _, e := range t.effects {
		if r.leads == nil {
			slog.Warn("Router.finish: no lead saver configured, dropping lead", "kind", e.lead.Kind())
			continue
		}
		id, err := r.leads.SaveLead(ctx, e.lead)
		if err != nil {
			r.opts.Reporter.ReportError(ctx, EventLeadFailed, err, "kind", e.lead.Kind(), "phone", sess.Phone)
			if e.onFailure != nil {
				if alt := e.onFailure(sess); alt != nil {
					reply = *alt
				}
			}
			continue
		}
		r.opts.Reporter.ReportEvent(ctx, EventLeadSaved, "kind", e.lead.Kind(), "id", id, "phone", sess.Phone)
	}

	if len(reply.Options) > models.MaxReplyOptions {
		reply.Options = reply.Options[:models.MaxReplyOptions]
	}
	sess.ClampCursor()
	sess.AppendHistory(models.RoleUser, t.text, r.opts.HistoryLimit)
	sess.AppendHistory(models.RoleAssistant, reply.Message, r.opts.HistoryLimit)
	sess.UpdatedAt = t.now
	return &reply
}
