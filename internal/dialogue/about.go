package dialogue

import (
	"context"

	"github.com/BTreeMap/AutoSherpa/internal/models"
)

// aboutFlow is a stateless menu over the about-us topics.
type aboutFlow struct {
	r *Router
}

func newAboutFlow(r *Router) *aboutFlow { return &aboutFlow{r: r} }

func (f *aboutFlow) Kind() models.FlowKind { return models.FlowAbout }

func (f *aboutFlow) Seed(context.Context, *turn, map[string]string) {}

func (f *aboutFlow) Enter(_ context.Context, t *turn) models.Reply {
	t.sess.Step = models.StepAboutMenu
	return models.Reply{Message: f.r.opts.Content.About.Intro, Options: f.options()}
}

func (f *aboutFlow) Handle(_ context.Context, t *turn) (models.Reply, bool) {
	topic, ok := f.r.opts.Content.FindTopic(t.text)
	if !ok {
		return models.Reply{}, false
	}
	t.sess.Step = models.StepAboutMenu
	return models.Reply{Message: topic.Body, Options: f.options()}, true
}

func (f *aboutFlow) options() []string {
	return append(f.r.opts.Content.TopicTitles(), OptionMainMenu)
}
