package progress

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Stage denotes the milestone an Event represents.
type Stage string

// Supported progress stages.
const (
	StageBatchStart   Stage = "BATCH_START"
	StageItemDone     Stage = "ITEM_DONE"
	StageItemDegraded Stage = "ITEM_DEGRADED"
	StageBatchDone    Stage = "BATCH_DONE"
	StageBatchError   Stage = "BATCH_ERROR"
)

// Event is one progress milestone of a batch run.
type Event struct {
	// RunID is the batch run in 16-byte UUID form.
	RunID [16]byte
	TS    time.Time
	Stage Stage
	// Step is the 1-based collection count for item stages.
	Step  int
	Total int
	URL   string
	// Title is the hint title of the item, used as the display label.
	Title string
	Dur   time.Duration
	Note  string
	// Degraded is the batch's final degraded count, set on BATCH_DONE and
	// BATCH_ERROR.
	Degraded int
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.RunID == [16]byte{} {
		return errors.New("run id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Stage {
	case StageBatchStart, StageBatchDone, StageBatchError:
	case StageItemDone, StageItemDegraded:
		if e.Step <= 0 || (e.Total > 0 && e.Step > e.Total) {
			return fmt.Errorf("item step %d out of range (total %d)", e.Step, e.Total)
		}
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	if e.Degraded < 0 {
		return errors.New("degraded must be >= 0")
	}
	return nil
}

// IsItem reports whether the event describes a single collected item.
func (e Event) IsItem() bool {
	return e.Stage == StageItemDone || e.Stage == StageItemDegraded
}

// RunUUID converts the binary run ID to uuid.UUID.
func (e Event) RunUUID() uuid.UUID {
	return uuid.UUID(e.RunID)
}

// UUIDToBytes encodes a uuid.UUID into the Event form.
func UUIDToBytes(id uuid.UUID) [16]byte {
	var dest [16]byte
	copy(dest[:], id[:])
	return dest
}

// ParseRunID converts a textual run ID. Unparseable IDs map to the zero value.
func ParseRunID(runID string) [16]byte {
	id, err := uuid.Parse(runID)
	if err != nil {
		return [16]byte{}
	}
	return UUIDToBytes(id)
}
