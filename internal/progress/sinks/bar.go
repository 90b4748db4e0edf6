package sinks

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"sync"

	"github.com/JakeFAU/filmmeta/internal/progress"
)

// BarSink renders a one-line terminal progress display:
//
//	[ 12/240]   5% Amélie
//
// The label is the item's hint title at a fixed width.
type BarSink struct {
	mu    sync.Mutex
	out   io.Writer
	width int
	open  bool
}

// NewBarSink writes to out with labels of width runes.
func NewBarSink(out io.Writer, width int) *BarSink {
	if width <= 0 {
		width = progress.DefaultLabelWidth
	}
	return &BarSink{out: out, width: width}
}

// Consume redraws the line for each item and ends it when the batch finishes.
func (b *BarSink) Consume(_ context.Context, batch []progress.Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, evt := range batch {
		switch {
		case evt.IsItem():
			if _, err := io.WriteString(b.out, "\r"+b.line(evt)); err != nil {
				return fmt.Errorf("write progress line: %w", err)
			}
			b.open = true
		case evt.Stage == progress.StageBatchDone || evt.Stage == progress.StageBatchError:
			if err := b.endLine(); err != nil {
				return err
			}
		}
	}
	return nil
}

func (b *BarSink) line(evt progress.Event) string {
	digits := len(strconv.Itoa(evt.Total))
	pct := 0
	if evt.Total > 0 {
		pct = evt.Step * 100 / evt.Total
	}
	marker := " "
	if evt.Stage == progress.StageItemDegraded {
		marker = "!"
	}
	return fmt.Sprintf("[%*d/%d] %3d%%%s%s", digits, evt.Step, evt.Total, pct, marker, progress.Label(evt.Title, b.width))
}

func (b *BarSink) endLine() error {
	if !b.open {
		return nil
	}
	b.open = false
	if _, err := io.WriteString(b.out, "\n"); err != nil {
		return fmt.Errorf("write progress line: %w", err)
	}
	return nil
}

// Close terminates a dangling progress line.
func (b *BarSink) Close(context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.endLine()
}
