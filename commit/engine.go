// Package commit aggregates per-participant accept/decline decisions and
// owns the reservation invariant: an intent is bound to at most one live
// cycle at a time.
package commit

import (
	"time"

	"swapring/core/errs"
	"swapring/core/types"
	"swapring/state"
)

// AcceptOutcome reports the side effects of one accept.
type AcceptOutcome struct {
	Commit             *types.Commit
	BecameReady        bool
	CancelledProposals []string
	ReleasedIntents    []string
}

// DeclineOutcome reports the side effects of one decline.
type DeclineOutcome struct {
	Commit          *types.Commit
	ReleasedIntents []string
}

// Accept records one participant's accept. The caller must be the
// participant actor, or an agent whose delegation subject is that actor. An
// intent already reserved by another cycle is a conflict. When the last
// participant accepts, the commit flips to ready, every participant intent
// becomes reserved, and all other open proposals sharing any of those
// intents are cancelled with their reservations released.
func Accept(snap *state.Snapshot, proposalID, intentID string, caller types.Actor, delegation *types.Delegation, now time.Time) (AcceptOutcome, *errs.Error) {
	proposal, commitRecord, err := lookup(snap, proposalID)
	if err != nil {
		return AcceptOutcome{}, err
	}
	participant, ok := proposal.ParticipantByIntent(intentID)
	if !ok {
		return AcceptOutcome{}, errs.ConstraintViolation("intent %s is not a participant of proposal %s", intentID, proposalID)
	}
	if err := checkIdentity(caller, delegation, participant.Actor); err != nil {
		return AcceptOutcome{}, err
	}
	switch commitRecord.Phase {
	case types.CommitCancelled:
		return AcceptOutcome{}, errs.Conflict("proposal %s is cancelled", proposalID)
	case types.CommitReady:
		if _, accepted := commitRecord.Accepted[intentID]; accepted {
			return AcceptOutcome{Commit: commitRecord}, nil
		}
		return AcceptOutcome{}, errs.Conflict("proposal %s already reached unanimity", proposalID)
	}
	if reservation, held := snap.Reservations[intentID]; held && reservation.CycleID != proposalID {
		return AcceptOutcome{}, errs.Conflict("intent %s is reserved by another cycle", intentID).
			WithDetail("cycle_id", reservation.CycleID)
	}

	nowISO := types.FormatTime(now)
	next := commitRecord.Clone()
	if next.Accepted == nil {
		next.Accepted = make(map[string]string)
	}
	next.Accepted[intentID] = nowISO
	next.UpdatedAt = nowISO
	snap.Commits[proposalID] = next
	snap.Reservations[intentID] = &types.Reservation{CycleID: proposalID, ReservedAt: nowISO}

	outcome := AcceptOutcome{Commit: next}
	if next.Unanimous(proposal.IntentIDs()) {
		next.Phase = types.CommitReady
		updated := proposal.Clone()
		updated.Status = types.ProposalCommitted
		snap.Proposals[proposalID] = updated
		for _, id := range proposal.IntentIDs() {
			if intent := snap.Intents[id]; intent != nil {
				reserved := intent.Clone()
				reserved.Status = types.IntentReserved
				reserved.UpdatedAt = nowISO
				snap.Intents[id] = reserved
			}
		}
		outcome.BecameReady = true
		outcome.CancelledProposals, outcome.ReleasedIntents = cancelRivals(snap, proposal, nowISO)
	}
	return outcome, nil
}

// Decline cancels the commit immediately and releases every reservation the
// cycle held. Declines are sticky; declining an already-ready commit is a
// conflict.
func Decline(snap *state.Snapshot, proposalID, intentID string, caller types.Actor, delegation *types.Delegation, now time.Time) (DeclineOutcome, *errs.Error) {
	proposal, commitRecord, err := lookup(snap, proposalID)
	if err != nil {
		return DeclineOutcome{}, err
	}
	participant, ok := proposal.ParticipantByIntent(intentID)
	if !ok {
		return DeclineOutcome{}, errs.ConstraintViolation("intent %s is not a participant of proposal %s", intentID, proposalID)
	}
	if err := checkIdentity(caller, delegation, participant.Actor); err != nil {
		return DeclineOutcome{}, err
	}
	if commitRecord.Phase == types.CommitReady {
		return DeclineOutcome{}, errs.Conflict("proposal %s already reached unanimity", proposalID)
	}
	nowISO := types.FormatTime(now)
	if commitRecord.Phase == types.CommitCancelled {
		return DeclineOutcome{Commit: commitRecord}, nil
	}

	next := commitRecord.Clone()
	if next.Declined == nil {
		next.Declined = make(map[string]string)
	}
	next.Declined[intentID] = nowISO
	next.Phase = types.CommitCancelled
	next.UpdatedAt = nowISO
	snap.Commits[proposalID] = next

	released := CancelProposal(snap, proposalID, nowISO)
	return DeclineOutcome{Commit: next, ReleasedIntents: released}, nil
}

// CancelProposal marks the proposal cancelled and releases every
// reservation scoped to it, returning the released intent ids.
func CancelProposal(snap *state.Snapshot, proposalID, nowISO string) []string {
	if proposal := snap.Proposals[proposalID]; proposal != nil && proposal.Status != types.ProposalCancelled {
		updated := proposal.Clone()
		updated.Status = types.ProposalCancelled
		snap.Proposals[proposalID] = updated
	}
	if record := snap.Commits[proposalID]; record != nil && record.Phase != types.CommitCancelled {
		next := record.Clone()
		next.Phase = types.CommitCancelled
		next.UpdatedAt = nowISO
		snap.Commits[proposalID] = next
	}
	return ReleaseReservations(snap, proposalID, nowISO)
}

// ReleaseReservations removes every reservation bound to the cycle and
// reactivates intents that were flipped to reserved.
func ReleaseReservations(snap *state.Snapshot, cycleID, nowISO string) []string {
	var released []string
	for intentID, reservation := range snap.Reservations {
		if reservation.CycleID != cycleID {
			continue
		}
		delete(snap.Reservations, intentID)
		released = append(released, intentID)
		if intent := snap.Intents[intentID]; intent != nil && intent.Status == types.IntentReserved {
			active := intent.Clone()
			active.Status = types.IntentActive
			active.UpdatedAt = nowISO
			snap.Intents[intentID] = active
		}
	}
	return released
}

// cancelRivals cancels every other open proposal sharing an intent with the
// winning cycle.
func cancelRivals(snap *state.Snapshot, winner *types.CycleProposal, nowISO string) (cancelled, released []string) {
	winning := make(map[string]bool)
	for _, id := range winner.IntentIDs() {
		winning[id] = true
	}
	for pid, rival := range snap.Proposals {
		if pid == winner.ID || rival.Status != types.ProposalOpen {
			continue
		}
		shares := false
		for _, id := range rival.IntentIDs() {
			if winning[id] {
				shares = true
				break
			}
		}
		if !shares {
			continue
		}
		releasedHere := releaseRivalReservations(snap, pid, winning, nowISO)
		released = append(released, releasedHere...)
		markCancelled(snap, pid, nowISO)
		cancelled = append(cancelled, pid)
	}
	return cancelled, released
}

// releaseRivalReservations drops the rival's reservations except those now
// owned by the winning cycle's intents.
func releaseRivalReservations(snap *state.Snapshot, proposalID string, winning map[string]bool, nowISO string) []string {
	var released []string
	for intentID, reservation := range snap.Reservations {
		if reservation.CycleID != proposalID || winning[intentID] {
			continue
		}
		delete(snap.Reservations, intentID)
		released = append(released, intentID)
		if intent := snap.Intents[intentID]; intent != nil && intent.Status == types.IntentReserved {
			active := intent.Clone()
			active.Status = types.IntentActive
			active.UpdatedAt = nowISO
			snap.Intents[intentID] = active
		}
	}
	return released
}

func markCancelled(snap *state.Snapshot, proposalID, nowISO string) {
	if proposal := snap.Proposals[proposalID]; proposal != nil {
		updated := proposal.Clone()
		updated.Status = types.ProposalCancelled
		snap.Proposals[proposalID] = updated
	}
	if record := snap.Commits[proposalID]; record != nil {
		next := record.Clone()
		next.Phase = types.CommitCancelled
		next.UpdatedAt = nowISO
		snap.Commits[proposalID] = next
	}
}

func lookup(snap *state.Snapshot, proposalID string) (*types.CycleProposal, *types.Commit, *errs.Error) {
	proposal, ok := snap.Proposals[proposalID]
	if !ok {
		return nil, nil, errs.NotFound("proposal %s not found", proposalID)
	}
	record, ok := snap.Commits[proposalID]
	if !ok {
		record = &types.Commit{ProposalID: proposalID, Phase: types.CommitPending}
		snap.Commits[proposalID] = record
	}
	return proposal, record, nil
}

func checkIdentity(caller types.Actor, delegation *types.Delegation, participant types.Actor) *errs.Error {
	if caller.Equal(participant) {
		return nil
	}
	if caller.Type == types.ActorAgent && delegation != nil && delegation.SubjectActor.Equal(participant) {
		return nil
	}
	return errs.Forbidden("caller does not match the participant actor")
}
