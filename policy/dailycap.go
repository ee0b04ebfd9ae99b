package policy

import (
	"time"

	"swapring/core/errs"
	"swapring/core/types"
	"swapring/state"
)

// ApplyDailyCap charges an intent mutation against the subject's UTC-day
// spend ledger. The charge is the delta of active max_usd between the
// previous and next record, so cancels free budget and updates charge only
// the increase. The ledger entry is written when the check passes; a later
// failure in the same operation rolls it back with the snapshot.
func ApplyDailyCap(snap *state.Snapshot, delegation *types.Delegation, prev, next *types.SwapIntent, now time.Time) *errs.Error {
	if delegation == nil || delegation.Policy.MaxValuePerDayUSD <= 0 {
		return nil
	}
	delta := next.ActiveMaxUSD() - prev.ActiveMaxUSD()
	subject := delegation.SubjectActor.Key()
	day := types.UTCDay(now)
	days := snap.PolicySpendDaily[subject]
	used := days[day]
	cap := delegation.Policy.MaxValuePerDayUSD
	if used+delta > cap {
		return errs.Forbidden("daily value cap exceeded for %s", subject).
			Reason("daily_cap_exceeded").
			WithDetail("used_usd", used).
			WithDetail("delta_usd", delta).
			WithDetail("max_value_per_day_usd", cap)
	}
	if days == nil {
		days = make(map[string]float64)
		snap.PolicySpendDaily[subject] = days
	}
	nextUsed := used + delta
	if nextUsed < 0 {
		nextUsed = 0
	}
	days[day] = nextUsed
	return nil
}
