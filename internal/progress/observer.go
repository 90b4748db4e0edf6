package progress

import (
	"time"

	"github.com/JakeFAU/filmmeta/internal/crawler"
)

// ItemObserver returns a callback matching the scheduler's observer
// signature that turns each collected record into an item event.
func ItemObserver(
	emitter Emitter,
	runID [16]byte,
	now func() time.Time,
) func(step, total int, target crawler.ScrapeTarget, record crawler.MediaRecord) {
	if now == nil {
		now = time.Now
	}
	return func(step, total int, target crawler.ScrapeTarget, record crawler.MediaRecord) {
		if emitter == nil {
			return
		}
		stage := StageItemDone
		if record.IsDegraded() {
			stage = StageItemDegraded
		}
		emitter.Emit(Event{
			RunID: runID,
			TS:    now().UTC(),
			Stage: stage,
			Step:  step,
			Total: total,
			URL:   target.SourceURL,
			Title: target.HintTitle,
		})
	}
}
