// Package voting implements the per (user, complaint) vote state machine and
// the service that applies its transitions to storage.
package voting

import (
	"fmt"

	"queryforum/backend/internal/apperrors"
	"queryforum/backend/internal/models"
)

// NoVote is the state of a pair with no vote row.
const NoVote models.VoteType = ""

// Action is the storage operation a transition needs.
type Action string

const (
	ActionInsert Action = "insert"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// Transition describes one step of the vote state machine. UpDelta and
// DownDelta are the tally adjustments the step implies; they document the
// contract and are checked in tests, while stored tallies are always
// recounted.
type Transition struct {
	From      models.VoteType
	To        models.VoteType
	Action    Action
	UpDelta   int
	DownDelta int
}

// Reconcile computes the transition from current when the user requests a
// vote in direction requested. Requesting the current direction retracts
// the vote.
func Reconcile(current, requested models.VoteType) (Transition, error) {
	if !requested.Valid() {
		return Transition{}, apperrors.Invalid("vote_type", "must be up or down")
	}
	if current != NoVote && !current.Valid() {
		return Transition{}, fmt.Errorf("stored vote has unknown direction %q", current)
	}

	t := Transition{From: current}
	switch {
	case current == NoVote:
		t.To = requested
		t.Action = ActionInsert
		t.adjust(requested, +1)
	case current == requested:
		t.To = NoVote
		t.Action = ActionDelete
		t.adjust(current, -1)
	default:
		t.To = requested
		t.Action = ActionUpdate
		t.adjust(current, -1)
		t.adjust(requested, +1)
	}
	return t, nil
}

func (t *Transition) adjust(side models.VoteType, delta int) {
	if side == models.VoteUp {
		t.UpDelta += delta
	} else {
		t.DownDelta += delta
	}
}
