package photo

import (
	"context"
	"errors"
	"fmt"

	"github.com/muvahhid/molayeri-sub002/util"
	"github.com/muvahhid/molayeri-sub002/util/log"
)

// Progress statuses.
const (
	StatusDone    = "done"
	StatusFailed  = "failed"
	StatusDropped = "dropped"
)

// Progress is published once per picked file.
type Progress struct {
	Index     int    `json:"index"`
	Total     int    `json:"total"`
	Name      string `json:"name"`
	Status    string `json:"status"`
	PhotoID   string `json:"photo_id,omitempty"`
	SizeBytes int    `json:"size_bytes,omitempty"`
	Error     string `json:"error,omitempty"`
}

// ProgressFunc receives progress updates. It must not block for long.
type ProgressFunc func(Progress)

// FileError pairs a picked file with the reason it was skipped.
type FileError struct {
	Name string `json:"name"`
	Err  error  `json:"-"`
}

func (e FileError) Error() string {
	return fmt.Sprintf("%s: %v", e.Name, e.Err)
}

// AddReport summarizes one AddFiles call.
type AddReport struct {
	Added        []*Photo    `json:"added"`
	Failed       []FileError `json:"failed"`
	Dropped      int         `json:"dropped"`
	LimitReached bool        `json:"limit_reached"`
	Ready        bool        `json:"ready"`
	Shortfall    int         `json:"shortfall"`
	MaxCount     int         `json:"max_count"`
}

// Err returns ErrCapacityExceeded when files were dropped for lack of room.
func (r AddReport) Err() error {
	if r.LimitReached {
		return fmt.Errorf("%w: maximum %d photos", ErrCapacityExceeded, r.MaxCount)
	}
	return nil
}

// Orchestrator feeds picked files through the normalizer into a batch, one
// file at a time.
type Orchestrator struct {
	normalizer *Normalizer
	progress   ProgressFunc

	processed *util.SafeCounter
	failed    *util.SafeCounter
}

// NewOrchestrator creates an orchestrator around n.
func NewOrchestrator(n *Normalizer) *Orchestrator {
	return &Orchestrator{
		normalizer: n,
		processed:  util.NewSafeCounter(0),
		failed:     util.NewSafeCounter(0),
	}
}

// OnProgress registers fn to receive per-file progress.
func (o *Orchestrator) OnProgress(fn ProgressFunc) {
	o.progress = fn
}

// Stats returns the number of files normalized and rejected so far.
func (o *Orchestrator) Stats() (processed, failed int) {
	return o.processed.Value(), o.failed.Value()
}

// AddFiles normalizes at most Room() sources from the front of the selection
// and appends them to b. The rest are dropped and reported. A file that fails
// to decode or encode is skipped without affecting the others. Only a
// canceled context or an unusable pipeline stops the loop; photos added
// before that stay in the batch.
func (o *Orchestrator) AddFiles(ctx context.Context, b *Batch, sources []Source) (AddReport, error) {
	report := AddReport{MaxCount: b.MaxCount()}
	if o == nil || o.normalizer == nil {
		return report, ErrPipelineUnavailable
	}

	room := b.Room()
	if room < 0 {
		room = 0
	}
	take := sources
	if len(sources) > room {
		take = sources[:room]
		report.Dropped = len(sources) - room
		for i, src := range sources[room:] {
			o.publish(Progress{Index: room + i, Total: len(sources), Name: src.Name, Status: StatusDropped})
		}
	}

	finish := func() AddReport {
		report.LimitReached = report.Dropped > 0
		report.Ready = b.Ready()
		report.Shortfall = b.Shortfall()
		return report
	}

	for i, src := range take {
		if err := checkContext(ctx); err != nil {
			return finish(), err
		}

		res, err := o.normalizer.Normalize(ctx, src)
		if err != nil {
			if ctx.Err() != nil {
				return finish(), ctx.Err()
			}
			if errors.Is(err, ErrPipelineUnavailable) {
				return finish(), err
			}
			o.failed.Increment()
			log.Printf("Orchestrator: skipping %q: %v", src.Name, err)
			report.Failed = append(report.Failed, FileError{Name: src.Name, Err: err})
			o.publish(Progress{Index: i, Total: len(sources), Name: src.Name, Status: StatusFailed, Error: err.Error()})
			continue
		}

		p := NewPhoto(src.Name, res)
		if b.Append(p) > 0 {
			// Another writer filled the batch while this file was processing.
			report.Dropped++
			o.publish(Progress{Index: i, Total: len(sources), Name: src.Name, Status: StatusDropped})
			continue
		}
		o.processed.Increment()
		report.Added = append(report.Added, p)
		o.publish(Progress{Index: i, Total: len(sources), Name: src.Name, Status: StatusDone, PhotoID: p.ID, SizeBytes: p.SizeBytes})
	}

	return finish(), nil
}

func (o *Orchestrator) publish(p Progress) {
	log.Debugf("Orchestrator: %s %d/%d %q", p.Status, p.Index+1, p.Total, p.Name)
	if o.progress != nil {
		o.progress(p)
	}
}
