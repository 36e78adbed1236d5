package dialogue

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/BTreeMap/AutoSherpa/internal/models"
)

// Contact option labels.
const (
	OptionCallUs          = "📞 Call us now"
	OptionRequestCallback = "📧 Request callback"
	OptionVisitShowroom   = "📍 Visit showroom"

	CallbackMorning   = "🌅 Morning(9-12PM)"
	CallbackAfternoon = "🌞 Afternoon(12-4PM)"
	CallbackEvening   = "🌆 Evening(4PM-8PM)"
)

var (
	contactMenuOptions = []string{OptionCallUs, OptionRequestCallback, OptionVisitShowroom}
	callbackTimes      = []string{CallbackMorning, CallbackAfternoon, CallbackEvening}
	doneOptions        = []string{OptionExplore, OptionEnd}
)

type contactFlow struct {
	r     *Router
	slots slotMachine
}

func newContactFlow(r *Router) *contactFlow {
	return &contactFlow{r: r, slots: slotMachine{
		flow: models.FlowContact,
		specs: []SlotSpec{
			{
				Name:    models.SlotTime,
				Step:    models.StepContactCallbackTime,
				Prompt:  "🕐 When would you like us to call you back?",
				Options: callbackTimes,
				Validate: keywordChoice(map[string]string{
					"morning": CallbackMorning, "afternoon": CallbackAfternoon, "noon": CallbackAfternoon, "evening": CallbackEvening,
				}, "Please choose a time slot from the options."),
			},
			{
				Name:     models.SlotName,
				Step:     models.StepContactCallbackName,
				Prompt:   "👤 May I have your name?",
				Validate: validateName,
			},
			{
				Name:     models.SlotPhone,
				Step:     models.StepContactCallbackPhone,
				Prompt:   "📱 Please share your 10-digit mobile number.",
				Validate: validatePhone,
			},
			{
				Name:     models.SlotReason,
				Step:     models.StepContactCallbackReason,
				Prompt:   "💬 What would you like to discuss? (e.g. buying a car, selling your car, service)",
				Validate: freeText(2, 300, "Please tell us briefly what you'd like to discuss."),
			},
		},
	}}
}

func (f *contactFlow) Kind() models.FlowKind { return models.FlowContact }

func (f *contactFlow) Seed(ctx context.Context, t *turn, entities map[string]string) {
	f.slots.seed(ctx, t, entities)
}

// Enter skips the menu when the classification already carried callback details.
func (f *contactFlow) Enter(ctx context.Context, t *turn) models.Reply {
	if f.slots.anyFilled(t.sess.SlotsFor(models.FlowContact)) {
		return f.advance(ctx, t)
	}
	return f.menu(t)
}

func (f *contactFlow) menu(t *turn) models.Reply {
	t.sess.Step = models.StepContactMenu
	return models.Reply{Message: f.r.opts.Content.Contact.Intro, Options: slices.Clone(contactMenuOptions)}
}

func (f *contactFlow) Handle(ctx context.Context, t *turn) (models.Reply, bool) {
	sess := t.sess
	norm := normalizeLabel(t.text)

	switch sess.Step {
	case models.StepContactMenu:
		switch {
		case strings.Contains(norm, "callback") || strings.Contains(norm, "call back") || strings.Contains(norm, "call me"):
			return f.advance(ctx, t), true
		case strings.Contains(norm, "call"):
			return f.info(t, f.r.opts.Content.Contact.Call), true
		case strings.Contains(norm, "visit") || strings.Contains(norm, "showroom") || strings.Contains(norm, "address"):
			return f.info(t, f.r.opts.Content.Contact.Visit), true
		}
		return models.Reply{}, false
	case models.StepContactDone:
		switch {
		case isExplore(t.text):
			return f.r.mainMenu(sess), true
		case isEnd(t.text):
			return f.r.end(ctx, sess), true
		}
		return models.Reply{}, false
	}

	current, ok := f.slots.specAt(sess.Step)
	if rejected := f.slots.absorb(ctx, t, current, ok); rejected != nil {
		return *rejected, true
	}
	return f.advance(ctx, t), true
}

func (f *contactFlow) info(t *turn, block string) models.Reply {
	t.sess.Step = models.StepContactDone
	return models.Reply{
		Message: strings.TrimRight(block, "\n") + "\n\nIs there anything else I can help you with?",
		Options: slices.Clone(doneOptions),
	}
}

func (f *contactFlow) advance(ctx context.Context, t *turn) models.Reply {
	if spec, ok := f.slots.next(t.sess.SlotsFor(models.FlowContact)); ok {
		return f.slots.ask(ctx, t, spec)
	}
	return f.complete(t)
}

// complete queues the callback request. The thank-you is returned even if saving fails.
func (f *contactFlow) complete(t *turn) models.Reply {
	s := t.sess.SlotsFor(models.FlowContact)
	req := models.CallbackRequest{
		Name:          s.Value(models.SlotName),
		Phone:         s.Value(models.SlotPhone),
		Reason:        s.Value(models.SlotReason),
		PreferredTime: s.Value(models.SlotTime),
		RequestedAt:   t.now,
	}
	t.save(req, nil)
	t.sess.ClearSlots(models.FlowContact)
	t.sess.Step = models.StepContactDone

	msg := fmt.Sprintf("✅ Thank you, %s! Our team will call you on %s during %s.\n\n💬 Topic: %s\n\nIs there anything else I can help you with?",
		req.Name, req.Phone, req.PreferredTime, req.Reason)
	return models.Reply{Message: msg, Options: slices.Clone(doneOptions)}
}
