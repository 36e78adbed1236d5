package dialogue

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strconv"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/BTreeMap/AutoSherpa/internal/models"
)

// Browse option labels.
const (
	OptionAllTypes       = "All Types"
	OptionAnyBrand       = "Any Brand"
	OptionBrowseMore     = "Browse More Cars"
	OptionChangeCriteria = "Change criteria"
	OptionNotifyMe       = "Notify me"
	OptionTryAgain       = "Try again"
	OptionBookTestDrive  = "Book Test Drive"
	OptionChangeBudget   = "Change Budget"
	OptionChangeType     = "Change Type"
	OptionChangeBrand    = "Change Brand"
	OptionStartOver      = "Start Over"
)

var changeOptions = []string{OptionChangeBudget, OptionChangeType, OptionChangeBrand, OptionStartOver}

var rupeePrinter = message.NewPrinter(language.MustParse("en-IN"))

// FormatRupees renders an amount with Indian digit grouping, e.g. ₹8,00,000.
func FormatRupees(amount int64) string {
	return rupeePrinter.Sprintf("₹%d", amount)
}

type browseFlow struct {
	r     *Router
	slots slotMachine
}

func newBrowseFlow(r *Router) *browseFlow {
	f := &browseFlow{r: r}
	f.slots = slotMachine{
		flow: models.FlowBrowse,
		specs: []SlotSpec{
			{
				Name:     models.SlotBudget,
				Step:     models.StepBrowseBudget,
				Prompt:   "💰 What's your budget range?",
				Options:  models.BudgetLabels(),
				Validate: validateBudget,
			},
			{
				Name:     models.SlotType,
				Step:     models.StepBrowseType,
				Prompt:   "🚗 What type of car are you looking for?",
				Dynamic:  f.typeOptions,
				Validate: wildcardChoice(OptionAllTypes, "Please choose a car type from the options."),
			},
			{
				Name:     models.SlotBrand,
				Step:     models.StepBrowseBrand,
				Prompt:   "🏷️ Any preferred brand?",
				Dynamic:  f.brandOptions,
				Validate: wildcardChoice(OptionAnyBrand, "Please choose a brand from the options."),
			},
		},
	}
	return f
}

func (f *browseFlow) Kind() models.FlowKind { return models.FlowBrowse }

func (f *browseFlow) Seed(ctx context.Context, t *turn, entities map[string]string) {
	if changed := f.slots.seed(ctx, t, entities); len(changed) > 0 {
		t.sess.ResetBrowse()
	}
}

func (f *browseFlow) Enter(ctx context.Context, t *turn) models.Reply {
	t.sess.ResetBrowse()
	return f.advance(ctx, t)
}

func (f *browseFlow) Handle(ctx context.Context, t *turn) (models.Reply, bool) {
	sess := t.sess
	norm := normalizeLabel(t.text)

	switch norm {
	case "change budget":
		return f.change(ctx, t, models.SlotBudget), true
	case "change type":
		return f.change(ctx, t, models.SlotType), true
	case "change brand":
		return f.change(ctx, t, models.SlotBrand), true
	case "start over":
		sess.ClearSlots(models.FlowBrowse)
		sess.ResetBrowse()
		return f.advance(ctx, t), true
	case "change criteria":
		return f.changeMenu(t), true
	}

	switch sess.Step {
	case models.StepBrowseResults, models.StepBrowseCarDetails:
		if norm == "browse more cars" || norm == "more" || norm == "show more" {
			return f.showPage(t, ""), true
		}
		if norm == "book test drive" && sess.Step == models.StepBrowseCarDetails && sess.SelectedCar != nil {
			return f.r.flows[models.FlowTestDrive].Enter(ctx, t), true
		}
		if i, ok := f.pick(t); ok {
			return f.details(t, i), true
		}
	case models.StepBrowseNoResults:
		if norm == "notify me" {
			sess.ResetBrowse()
			return withPrefix(f.r.mainMenu(sess), "🔔 Got it! We'll let you know as soon as a matching car arrives."), true
		}
	case models.StepBrowseError:
		if norm == "try again" || norm == "retry" {
			return f.search(ctx, t), true
		}
	}

	if hasChangeWord(norm) {
		return f.changeMenu(t), true
	}

	current, ok := f.slots.specAt(sess.Step)
	if ok {
		if rejected := f.slots.absorb(ctx, t, current, true); rejected != nil {
			return *rejected, true
		}
		return f.advance(ctx, t), true
	}

	if sess.Step == models.StepBrowseChange {
		before := sess.SlotsFor(models.FlowBrowse).Clone()
		f.slots.absorb(ctx, t, SlotSpec{}, false)
		if !maps.Equal(before, sess.SlotsFor(models.FlowBrowse)) {
			sess.ResetBrowse()
			return f.advance(ctx, t), true
		}
		return f.changeMenu(t), true
	}
	return models.Reply{}, false
}

func hasChangeWord(norm string) bool {
	for _, w := range strings.Fields(norm) {
		switch w {
		case "change", "modify", "different":
			return true
		}
	}
	return false
}

func (f *browseFlow) advance(ctx context.Context, t *turn) models.Reply {
	if spec, ok := f.slots.next(t.sess.SlotsFor(models.FlowBrowse)); ok {
		return f.slots.ask(ctx, t, spec)
	}
	return f.search(ctx, t)
}

// change clears one criterion and asks for it again; the others are kept.
func (f *browseFlow) change(ctx context.Context, t *turn, slot string) models.Reply {
	delete(t.sess.SlotsFor(models.FlowBrowse), slot)
	t.sess.ResetBrowse()
	spec, _ := f.slots.spec(slot)
	return f.slots.ask(ctx, t, spec)
}

func (f *browseFlow) changeMenu(t *turn) models.Reply {
	t.sess.Step = models.StepBrowseChange
	s := t.sess.SlotsFor(models.FlowBrowse)
	msg := fmt.Sprintf("📋 Your current search:\n💰 Budget: %s\n🚗 Type: %s\n🏷️ Brand: %s\n\nWhat would you like to change?",
		describeSlot(s, models.SlotBudget), describeSlot(s, models.SlotType), describeSlot(s, models.SlotBrand))
	return models.Reply{Message: msg, Options: slices.Clone(changeOptions)}
}

func describeSlot(s models.Slots, name string) string {
	switch {
	case !s.Filled(name):
		return "Not set"
	case s.IsWildcard(name):
		return "Any"
	default:
		return s.Value(name)
	}
}

func (f *browseFlow) filter(s models.Slots, fields ...string) models.InventoryFilter {
	var filter models.InventoryFilter
	for _, name := range fields {
		switch name {
		case models.SlotBudget:
			if b, ok := models.LookupBudget(s.Value(models.SlotBudget)); ok {
				r := b.Range
				filter.Budget = &r
			}
		case models.SlotType:
			filter.Type = s.Value(models.SlotType)
		case models.SlotBrand:
			filter.Brand = s.Value(models.SlotBrand)
		}
	}
	return filter
}

func (f *browseFlow) typeOptions(ctx context.Context, t *turn) []string {
	filter := f.filter(t.sess.SlotsFor(models.FlowBrowse), models.SlotBudget)
	return f.choices(ctx, t, models.FieldType, filter, OptionAllTypes, models.DefaultCarTypes)
}

func (f *browseFlow) brandOptions(ctx context.Context, t *turn) []string {
	filter := f.filter(t.sess.SlotsFor(models.FlowBrowse), models.SlotBudget, models.SlotType)
	return f.choices(ctx, t, models.FieldBrand, filter, OptionAnyBrand, models.DefaultBrowseBrands)
}

// choices lists inventory values for a criterion, prefixed with its wildcard.
// Lookup failures fall back to the default vocabulary.
func (f *browseFlow) choices(ctx context.Context, t *turn, field models.InventoryField, filter models.InventoryFilter, wildcard string, defaults []string) []string {
	var values []string
	if f.r.inventory == nil {
		values = defaults
	} else {
		var err error
		values, err = f.r.inventory.ListDistinct(ctx, field, filter)
		if err != nil {
			f.r.opts.Reporter.ReportError(ctx, EventInventoryFailed, err, "field", field, "phone", t.sess.Phone)
			values = defaults
		}
	}
	if len(values) > f.r.opts.OptionLimit {
		values = values[:f.r.opts.OptionLimit]
	}
	return append([]string{wildcard}, values...)
}

func (f *browseFlow) search(ctx context.Context, t *turn) models.Reply {
	sess := t.sess
	sess.ResetBrowse()
	filter := f.filter(sess.SlotsFor(models.FlowBrowse), models.SlotBudget, models.SlotType, models.SlotBrand)
	filter.Limit = f.r.opts.MaxResults

	var cars []models.CarRecord
	var err error
	if f.r.inventory == nil {
		err = fmt.Errorf("no inventory configured")
	} else {
		cars, err = f.r.inventory.QueryInventory(ctx, filter)
	}
	if err != nil {
		f.r.opts.Reporter.ReportError(ctx, EventInventoryFailed, err, "phone", sess.Phone)
		sess.Step = models.StepBrowseError
		return models.Reply{
			Message: "Oops! Something went wrong fetching cars. Try again?",
			Options: []string{OptionTryAgain, OptionChangeCriteria},
		}
	}

	slices.SortStableFunc(cars, func(a, b models.CarRecord) int {
		switch {
		case a.Price < b.Price:
			return -1
		case a.Price > b.Price:
			return 1
		}
		return 0
	})
	if len(cars) > f.r.opts.MaxResults {
		cars = cars[:f.r.opts.MaxResults]
	}

	if len(cars) == 0 {
		sess.Step = models.StepBrowseNoResults
		return models.Reply{
			Message: "😔 Sorry, we don't have any cars matching your criteria right now.\n\nWould you like to change your search, or shall we notify you when one arrives?",
			Options: []string{OptionChangeCriteria, OptionNotifyMe},
		}
	}

	sess.FilteredCars = cars
	sess.CarIndex = 0
	return f.showPage(t, fmt.Sprintf("🎉 Found %d car(s) matching your criteria!", len(cars)))
}

// showPage lists the next window of results and advances the cursor past it.
func (f *browseFlow) showPage(t *turn, header string) models.Reply {
	sess := t.sess
	sess.ClampCursor()
	sess.Step = models.StepBrowseResults
	start := sess.CarIndex
	total := len(sess.FilteredCars)
	if start >= total {
		return models.Reply{
			Message: "That's all the cars matching your criteria. 🚗\n\nPick a car from the list above or change your search.",
			Options: []string{OptionChangeCriteria},
		}
	}
	end := min(start+f.r.opts.PageSize, total)

	var b strings.Builder
	if header != "" {
		b.WriteString(header)
		b.WriteString("\n\n")
	}
	options := make([]string, 0, end-start+2)
	for i := start; i < end; i++ {
		car := sess.FilteredCars[i]
		fmt.Fprintf(&b, "%d. %s - %s\n", i+1, car.Title(), FormatRupees(car.Price))
		options = append(options, carLabel(i, car))
	}
	fmt.Fprintf(&b, "\nShowing %d-%d of %d. Select a car to see details.", start+1, end, total)

	sess.CarIndex = end
	if end < total {
		options = append(options, OptionBrowseMore)
	}
	options = append(options, OptionChangeCriteria)
	return models.Reply{Message: b.String(), Options: options}
}

func carLabel(i int, car models.CarRecord) string {
	return fmt.Sprintf("%d. %s", i+1, car.Title())
}

// pick resolves a displayed car from its number or its label.
func (f *browseFlow) pick(t *turn) (int, bool) {
	sess := t.sess
	shown := min(sess.CarIndex, len(sess.FilteredCars))
	text := strings.TrimSpace(t.text)

	digits := text
	if i := strings.IndexFunc(text, func(r rune) bool { return r < '0' || r > '9' }); i >= 0 {
		digits = text[:i]
		if rest := strings.TrimSpace(text[i:]); rest != "" && !strings.HasPrefix(rest, ".") && !strings.HasPrefix(rest, ")") {
			digits = ""
		}
	}
	if n, err := strconv.Atoi(digits); err == nil && n >= 1 && n <= shown {
		return n - 1, true
	}

	for i := 0; i < shown; i++ {
		car := sess.FilteredCars[i]
		if strings.EqualFold(text, carLabel(i, car)) || strings.EqualFold(text, car.Title()) {
			return i, true
		}
	}
	return 0, false
}

func (f *browseFlow) details(t *turn, i int) models.Reply {
	sess := t.sess
	car := sess.FilteredCars[i]
	sess.SelectedCar = &car
	sess.Step = models.StepBrowseCarDetails

	var b strings.Builder
	fmt.Fprintf(&b, "🚗 *%s*\n\n💰 Price: %s\n", car.Title(), FormatRupees(car.Price))
	if car.Year > 0 {
		fmt.Fprintf(&b, "📅 Year: %d\n", car.Year)
	}
	if car.Fuel != "" {
		fmt.Fprintf(&b, "⛽ Fuel: %s\n", car.Fuel)
	}
	if car.Transmission != "" {
		fmt.Fprintf(&b, "⚙️ Transmission: %s\n", car.Transmission)
	}
	if car.KmsDriven > 0 {
		fmt.Fprintf(&b, "📏 Driven: %s km\n", rupeePrinter.Sprintf("%d", car.KmsDriven))
	}
	if car.Owner != "" {
		fmt.Fprintf(&b, "👤 Owner: %s\n", car.Owner)
	}
	if car.Color != "" {
		fmt.Fprintf(&b, "🎨 Colour: %s\n", car.Color)
	}
	b.WriteString("\nWould you like to book a test drive?")

	reply := models.Reply{Message: b.String(), Options: []string{OptionBookTestDrive}}
	if sess.CarIndex < len(sess.FilteredCars) {
		reply.Options = append(reply.Options, OptionBrowseMore)
	}
	reply.Options = append(reply.Options, OptionChangeCriteria)
	if car.ImageURL != "" {
		reply.Messages = []models.Attachment{{Type: models.AttachmentImage, URL: car.ImageURL, Caption: car.Title()}}
	}
	return reply
}
