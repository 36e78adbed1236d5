package dialogue

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/BTreeMap/AutoSherpa/internal/models"
)

// Test drive option labels.
const (
	TimeMorning    = "🌅 Morning (10 AM)"
	TimeAfternoon  = "☀️ Afternoon (1 PM)"
	TimeEvening    = "🌆 Evening (4 PM)"
	ModeShowroom   = "🏢 Showroom visit"
	ModeHome       = "🏠 Home test drive"
	OptionConfirm  = "Confirm"
	OptionReject   = "Reject"
	OptionRetry    = "Retry"
	OptionYes      = "Yes"
	OptionNo       = "No"
	testDriveIntro = "Great choice! 🚗 Let's book your test drive"
)

var (
	testDriveDays  = []string{DayToday, DayTomorrow, DayAfterTomorrow}
	testDriveSlots = []string{TimeMorning, TimeAfternoon, TimeEvening}
	testDriveModes = []string{ModeShowroom, ModeHome}

	slotHours = map[string]int{TimeMorning: 10, TimeAfternoon: 13, TimeEvening: 16}
	dayOffset = map[string]int{DayToday: 0, DayTomorrow: 1, DayAfterTomorrow: 2}
)

type testDriveFlow struct {
	r     *Router
	slots slotMachine
}

func newTestDriveFlow(r *Router) *testDriveFlow {
	return &testDriveFlow{r: r, slots: slotMachine{
		flow: models.FlowTestDrive,
		specs: []SlotSpec{
			{
				Name:     models.SlotDate,
				Step:     models.StepTestDriveDate,
				Prompt:   "📅 When would you like to come for the test drive?",
				Options:  testDriveDays,
				Validate: dateValidator(r.opts.Now, r.opts.Location),
			},
			{
				Name:    models.SlotTime,
				Step:    models.StepTestDriveTime,
				Prompt:  "⏰ Which time slot works best for you?",
				Options: testDriveSlots,
				Validate: keywordChoice(map[string]string{
					"morning": TimeMorning, "afternoon": TimeAfternoon, "noon": TimeAfternoon, "evening": TimeEvening,
				}, "Please choose a time slot from the options."),
			},
			{
				Name:     models.SlotName,
				Step:     models.StepTestDriveName,
				Prompt:   "👤 May I have your name?",
				Validate: validateName,
			},
			{
				Name:     models.SlotPhone,
				Step:     models.StepTestDrivePhone,
				Prompt:   "📱 Please share your 10-digit mobile number.",
				Validate: validatePhone,
			},
			{
				Name:     models.SlotLicense,
				Step:     models.StepTestDriveLicense,
				Prompt:   "🪪 Do you have a valid driving license?",
				Options:  []string{OptionYes, OptionNo},
				Validate: validateYesNo,
			},
			{
				Name:    models.SlotMode,
				Step:    models.StepTestDriveLocationMode,
				Prompt:  "📍 Where would you like to take the test drive?",
				Options: testDriveModes,
				Validate: keywordChoice(map[string]string{
					"showroom": ModeShowroom, "visit": ModeShowroom, "home": ModeHome, "doorstep": ModeHome,
				}, "Please choose showroom visit or home test drive."),
			},
			{
				Name:     models.SlotAddress,
				Step:     models.StepTestDriveAddress,
				Prompt:   "🏠 Please share your full address for the home test drive.",
				Validate: freeText(5, 200, "Please share a complete address (at least 5 characters)."),
				Skip:     func(s models.Slots) bool { return s.Value(models.SlotMode) != ModeHome },
			},
		},
	}}
}

func (f *testDriveFlow) Kind() models.FlowKind { return models.FlowTestDrive }

func (f *testDriveFlow) Seed(ctx context.Context, t *turn, entities map[string]string) {
	f.slots.seed(ctx, t, entities)
}

func (f *testDriveFlow) Enter(ctx context.Context, t *turn) models.Reply {
	car := t.sess.SelectedCar
	if car == nil {
		return withPrefix(f.r.flows[models.FlowBrowse].Enter(ctx, t), "Let's find a car for your test drive first! 🚗")
	}
	return withPrefix(f.advance(ctx, t), fmt.Sprintf("%s: *%s*", testDriveIntro, car.Title()))
}

func (f *testDriveFlow) Handle(ctx context.Context, t *turn) (models.Reply, bool) {
	sess := t.sess
	norm := normalizeLabel(t.text)

	switch sess.Step {
	case models.StepTestDriveConfirm:
		switch norm {
		case "confirm", "yes", "retry", "book", "confirm booking":
			return f.book(t), true
		case "reject", "no", "cancel":
			return models.Reply{
				Message: "No problem, your booking is on hold. Reply Confirm when you're ready, or type Main Menu to go back.",
				Options: []string{OptionConfirm, OptionReject},
			}, true
		}
		return f.summary(t), true
	case models.StepTestDriveComplete:
		switch {
		case isExplore(t.text):
			sess.ClearSlots(models.FlowBrowse)
			return f.r.flows[models.FlowBrowse].Enter(ctx, t), true
		case isEnd(t.text):
			return f.r.end(ctx, sess), true
		}
		return models.Reply{}, false
	}

	if sess.SelectedCar == nil {
		return f.Enter(ctx, t), true
	}
	current, ok := f.slots.specAt(sess.Step)
	if rejected := f.slots.absorb(ctx, t, current, ok); rejected != nil {
		return *rejected, true
	}
	return f.advance(ctx, t), true
}

func (f *testDriveFlow) advance(ctx context.Context, t *turn) models.Reply {
	if spec, ok := f.slots.next(t.sess.SlotsFor(models.FlowTestDrive)); ok {
		return f.slots.ask(ctx, t, spec)
	}
	return f.summary(t)
}

func (f *testDriveFlow) summary(t *turn) models.Reply {
	sess := t.sess
	sess.Step = models.StepTestDriveConfirm
	s := sess.SlotsFor(models.FlowTestDrive)
	where := "Showroom: " + f.r.opts.Content.ShowroomAddress
	if s.Value(models.SlotMode) == ModeHome {
		where = "Home: " + s.Value(models.SlotAddress)
	}
	msg := fmt.Sprintf("📋 Please confirm your test drive:\n\n"+
		"🚗 Car: %s\n📅 Date: %s\n⏰ Time: %s\n👤 Name: %s\n📱 Phone: %s\n🪪 License: %s\n📍 %s",
		sess.SelectedCar.Title(), s.Value(models.SlotDate), s.Value(models.SlotTime),
		s.Value(models.SlotName), s.Value(models.SlotPhone), s.Value(models.SlotLicense), where)
	return models.Reply{Message: msg, Options: []string{OptionConfirm, OptionReject}}
}

// book queues the booking and clears the slots. If saving fails the slots
// come back and the user is offered a retry.
func (f *testDriveFlow) book(t *turn) models.Reply {
	sess := t.sess
	s := sess.SlotsFor(models.FlowTestDrive)
	car := *sess.SelectedCar
	at := ScheduleTestDrive(t.now, f.r.opts.Location, s.Value(models.SlotDate), s.Value(models.SlotTime))

	booking := models.TestDriveBooking{
		UserPhone:     sess.Phone,
		Car:           car.Title(),
		CarID:         car.ID,
		ScheduledAt:   at,
		Name:          s.Value(models.SlotName),
		Phone:         s.Value(models.SlotPhone),
		HasLicense:    s.Value(models.SlotLicense) == OptionYes,
		HomeTestDrive: s.Value(models.SlotMode) == ModeHome,
		Address:       s.Value(models.SlotAddress),
		PreferredDay:  s.Value(models.SlotDate),
		PreferredSlot: s.Value(models.SlotTime),
		RequestedAt:   t.now,
	}
	snapshot := s.Clone()
	t.save(booking, func(sess *models.Session) *models.Reply {
		sess.Slots[models.FlowTestDrive] = snapshot
		sess.Step = models.StepTestDriveConfirm
		return &models.Reply{
			Message: "⚠️ Sorry, we couldn't save your booking right now. Please try again.",
			Options: []string{OptionRetry},
		}
	})
	sess.ClearSlots(models.FlowTestDrive)
	sess.Step = models.StepTestDriveComplete

	var b strings.Builder
	fmt.Fprintf(&b, "✅ Your test drive is booked, %s!\n\n🚗 %s\n📅 %s\n", booking.Name, booking.Car, at.Format("Monday, 2 Jan 2006 at 3:04 PM"))
	if booking.HomeTestDrive {
		fmt.Fprintf(&b, "🏠 We'll bring the car to: %s\n", booking.Address)
	} else {
		fmt.Fprintf(&b, "📍 %s\n", f.r.opts.Content.ShowroomAddress)
	}
	if !booking.HasLicense {
		b.WriteString("\n🪪 Please bring someone with a valid driving license along.\n")
	}
	b.WriteString("\nOur team will call you to confirm. See you soon!")
	return models.Reply{Message: b.String(), Options: []string{OptionExploreMore, OptionEnd}}
}

// ScheduleTestDrive turns a day choice and time slot into a concrete time in loc.
// Unknown slots default to the morning slot.
func ScheduleTestDrive(now time.Time, loc *time.Location, day, slot string) time.Time {
	now = now.In(loc)
	hour, ok := slotHours[slot]
	if !ok {
		hour = slotHours[TimeMorning]
	}
	if offset, ok := dayOffset[day]; ok {
		d := now.AddDate(0, 0, offset)
		return time.Date(d.Year(), d.Month(), d.Day(), hour, 0, 0, 0, loc)
	}
	if d, err := time.ParseInLocation(explicitDateDisplay, day, loc); err == nil {
		return time.Date(d.Year(), d.Month(), d.Day(), hour, 0, 0, 0, loc)
	}
	d := now.AddDate(0, 0, 1)
	return time.Date(d.Year(), d.Month(), d.Day(), hour, 0, 0, 0, loc)
}
