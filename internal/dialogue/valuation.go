package dialogue

import (
	"context"
	"fmt"

	"github.com/BTreeMap/AutoSherpa/internal/models"
)

type valuationFlow struct {
	r     *Router
	slots slotMachine
}

func newValuationFlow(r *Router) *valuationFlow {
	return &valuationFlow{r: r, slots: slotMachine{
		flow: models.FlowValuation,
		specs: []SlotSpec{
			{
				Name:     models.SlotBrand,
				Step:     models.StepValuationBrand,
				Prompt:   "Great! Let's find out what your car is worth. 💰\n\nWhich brand is your car?",
				Options:  models.ValuationBrands,
				Validate: validateValuationBrand,
			},
			{
				Name:     models.SlotModel,
				Step:     models.StepValuationModel,
				Prompt:   "Which model is it? (e.g. i20, Swift, Nexon)",
				Validate: freeText(1, 50, "Please type your car's model name."),
			},
			{
				Name:     models.SlotYear,
				Step:     models.StepValuationYear,
				Prompt:   "📅 Which year was it manufactured?",
				Options:  models.ValuationYears,
				Validate: validateYear,
			},
			{
				Name:     models.SlotFuel,
				Step:     models.StepValuationFuel,
				Prompt:   "⛽ What's the fuel type?",
				Options:  models.FuelOptions,
				Validate: oneOf("Please choose a fuel type from the options."),
			},
			{
				Name:     models.SlotKms,
				Step:     models.StepValuationKms,
				Prompt:   "📏 How many kilometres has it been driven?",
				Options:  models.KmsOptions,
				Validate: validateKms,
			},
			{
				Name:     models.SlotOwner,
				Step:     models.StepValuationOwner,
				Prompt:   "👤 Which owner are you?",
				Options:  models.OwnerOptions,
				Validate: validateOwner,
			},
			{
				Name:     models.SlotCondition,
				Step:     models.StepValuationCondition,
				Prompt:   "⭐ How would you describe the car's condition?",
				Options:  models.ConditionOptions,
				Validate: oneOf("Please choose the condition from the options."),
			},
			{
				Name:     models.SlotName,
				Step:     models.StepValuationName,
				Prompt:   "Almost done! 👤 What's your name?",
				Validate: validateName,
			},
			{
				Name:     models.SlotPhone,
				Step:     models.StepValuationPhone,
				Prompt:   "📱 Please share your 10-digit mobile number so our team can reach you.",
				Validate: validatePhone,
			},
			{
				Name:     models.SlotLocation,
				Step:     models.StepValuationLocation,
				Prompt:   "📍 Which city are you located in?",
				Validate: freeText(2, 50, "Please type your city."),
			},
		},
	}}
}

func (f *valuationFlow) Kind() models.FlowKind { return models.FlowValuation }

func (f *valuationFlow) Seed(ctx context.Context, t *turn, entities map[string]string) {
	f.slots.seed(ctx, t, entities)
}

func (f *valuationFlow) Enter(ctx context.Context, t *turn) models.Reply {
	return f.advance(ctx, t)
}

func (f *valuationFlow) Handle(ctx context.Context, t *turn) (models.Reply, bool) {
	sess := t.sess
	if sess.Step == models.StepValuationComplete {
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

func (f *valuationFlow) advance(ctx context.Context, t *turn) models.Reply {
	if spec, ok := f.slots.next(t.sess.SlotsFor(models.FlowValuation)); ok {
		return f.slots.ask(ctx, t, spec)
	}
	return f.complete(t)
}

func (f *valuationFlow) complete(t *turn) models.Reply {
	s := t.sess.SlotsFor(models.FlowValuation)
	lead := models.ValuationLead{
		Name:        s.Value(models.SlotName),
		Phone:       s.Value(models.SlotPhone),
		Location:    s.Value(models.SlotLocation),
		Brand:       s.Value(models.SlotBrand),
		Model:       s.Value(models.SlotModel),
		Year:        s.Value(models.SlotYear),
		Fuel:        s.Value(models.SlotFuel),
		Kms:         s.Value(models.SlotKms),
		Owner:       s.Value(models.SlotOwner),
		Condition:   s.Value(models.SlotCondition),
		SubmittedAt: t.now,
	}
	t.save(lead, nil)
	t.sess.ClearSlots(models.FlowValuation)
	t.sess.Step = models.StepValuationComplete

	msg := fmt.Sprintf("✅ Thank you, %s! We've received your valuation request.\n\n"+
		"🚗 Car: %s %s %s (%s)\n"+
		"📏 Driven: %s km | 👤 %s owner | ⭐ %s condition\n"+
		"📱 Phone: %s\n"+
		"📍 Location: %s\n\n"+
		"What happens next:\n"+
		"1. Our evaluation expert will call you within 24 hours\n"+
		"2. We'll schedule a free inspection at your convenience\n"+
		"3. You'll get the best price offer for your car",
		lead.Name, lead.Year, lead.Brand, lead.Model, lead.Fuel,
		lead.Kms, lead.Owner, lead.Condition, lead.Phone, lead.Location)
	return models.Reply{Message: msg, Options: []string{OptionExplore, OptionEnd}}
}
