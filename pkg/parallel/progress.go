package parallel

import (
	"github.com/eunmann/ibu/pkg/format"
	"github.com/eunmann/ibu/pkg/logging"
)

// progressProcessor counts records locally and reports them to a shared
// tracker at batch boundaries.
type progressProcessor struct {
	inner   Processor
	tracker *logging.ProgressTracker
	pending int64
}

// WithProgress wraps proc so that every completed batch is added to
// tracker before proc's own OnBatchComplete runs.
func WithProgress(proc Processor, tracker *logging.ProgressTracker) Processor {
	return &progressProcessor{inner: proc, tracker: tracker}
}

func (p *progressProcessor) ProcessRecord(r format.Record) error {
	p.pending++
	return p.inner.ProcessRecord(r)
}

func (p *progressProcessor) OnBatchComplete() error {
	p.tracker.Add(p.pending)
	p.pending = 0
	if bc, ok := p.inner.(BatchCompleter); ok {
		return bc.OnBatchComplete()
	}
	return nil
}

func (p *progressProcessor) Clone() Processor {
	return &progressProcessor{inner: p.inner.Clone(), tracker: p.tracker}
}

func (p *progressProcessor) SetTID(tid int) {
	if ta, ok := p.inner.(ThreadAware); ok {
		ta.SetTID(tid)
	}
}

func (p *progressProcessor) TID() (int, bool) {
	if ta, ok := p.inner.(ThreadAware); ok {
		return ta.TID()
	}
	return 0, false
}
