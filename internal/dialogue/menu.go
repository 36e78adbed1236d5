package dialogue

import (
	"context"
	"slices"
	"strings"

	"github.com/BTreeMap/AutoSherpa/internal/models"
)

// Main menu option labels.
const (
	OptionBrowse    = "🚗 Browse Used Cars"
	OptionValuation = "💰 Get Car Valuation"
	OptionContact   = "📞 Contact Our Team"
	OptionAbout     = "ℹ️ About Us"
)

// MainMenuOptions are the four top-level choices shown on the main menu,
// the clarification prompt and the fallback reply.
var MainMenuOptions = []string{OptionBrowse, OptionValuation, OptionContact, OptionAbout}

// Shared terminal options.
const (
	OptionExplore     = "Explore"
	OptionExploreMore = "Explore More"
	OptionEnd         = "End Conversation"
	OptionMainMenu    = "🏠 Main Menu"
)

// menuLabels maps normalized option labels, current and legacy, to the intent they select.
var menuLabels = map[string]models.Intent{
	"browse used cars":  models.IntentBrowseCars,
	"browse cars":       models.IntentBrowseCars,
	"get car valuation": models.IntentCarValuation,
	"car valuation":     models.IntentCarValuation,
	"get valuation":     models.IntentCarValuation,
	"contact our team":  models.IntentContactTeam,
	"contact us":        models.IntentContactTeam,
	"contact team":      models.IntentContactTeam,
	"about us":          models.IntentAboutUs,
	"book test drive":   models.IntentTestDrive,
}

var greetings = map[string]bool{
	"hi": true, "hii": true, "hiii": true, "hello": true, "helo": true, "hey": true, "hy": true,
	"hola": true, "namaste": true, "hi there": true, "hello there": true, "hey there": true,
	"good morning": true, "good afternoon": true, "good evening": true,
}

var restartWords = []string{"start", "begin", "new", "restart"}

var menuCommands = map[string]bool{
	"main menu": true, "menu": true, "back to menu": true, "back to main menu": true,
}

var endCommands = map[string]bool{
	"end conversation": true, "end": true, "bye": true, "goodbye": true, "exit": true, "quit": true,
}

// normalizeLabel lowercases s and keeps only ASCII letters, digits and single
// spaces, so emoji-prefixed option labels compare equal to typed text.
func normalizeLabel(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '\'':
		default:
			b.WriteByte(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

func menuIntent(text string) (models.Intent, bool) {
	intent, ok := menuLabels[normalizeLabel(text)]
	return intent, ok
}

func isGreeting(text string) bool {
	return greetings[normalizeLabel(text)]
}

// isRestart reports whether text may reopen an ended conversation.
func isRestart(text string) bool {
	norm := normalizeLabel(text)
	if norm == "" {
		return false
	}
	for _, w := range restartWords {
		if strings.Contains(norm, w) {
			return true
		}
	}
	if greetings[norm] {
		return true
	}
	for _, w := range strings.Fields(norm) {
		if greetings[w] {
			return true
		}
	}
	return false
}

func isMenuCommand(text string) bool { return menuCommands[normalizeLabel(text)] }

func isExplore(text string) bool {
	norm := normalizeLabel(text)
	return norm == "explore" || norm == "explore more"
}

func isEnd(text string) bool { return endCommands[normalizeLabel(text)] }

func (r *Router) mainMenu(sess *models.Session) models.Reply {
	sess.Step = models.StepMainMenu
	return models.Reply{
		Message: r.opts.Content.Greeting + "\n\nPlease choose an option:",
		Options: slices.Clone(MainMenuOptions),
	}
}

func clarificationReply(sess *models.Session) models.Reply {
	sess.Step = models.StepIntentClarify
	return models.Reply{
		Message: "I'm not quite sure what you're looking for. 🤔\n\nCould you pick one of these?",
		Options: slices.Clone(MainMenuOptions),
	}
}

func fallbackReply(sess *models.Session) models.Reply {
	sess.Step = models.StepMainMenu
	return models.Reply{
		Message: "I can help you find a car, value your current car or get in touch with our team. Please choose an option:",
		Options: slices.Clone(MainMenuOptions),
	}
}

func apologyReply(sess *models.Session) models.Reply {
	sess.Step = models.StepMainMenu
	return models.Reply{
		Message: "Sorry, something went wrong on our side. 🙏 Please choose an option to continue:",
		Options: slices.Clone(MainMenuOptions),
	}
}

// end closes the conversation. Further messages get no reply until a restart phrase.
func (r *Router) end(ctx context.Context, sess *models.Session) models.Reply {
	sess.End()
	r.opts.Reporter.ReportEvent(ctx, EventConversationEnded, "phone", sess.Phone)
	return models.Reply{Message: r.opts.Content.Farewell}
}

func withPrefix(reply models.Reply, prefix string) models.Reply {
	if prefix != "" {
		reply.Message = prefix + "\n\n" + reply.Message
	}
	return reply
}
