package domain

import "fmt"

// Allocation describes how many shares a sell takes from one lot.
// Full means the lot's entire share count is consumed and the lot closes;
// otherwise the lot stays open with its shares reduced by Taken.
type Allocation struct {
	Lot   *Trade
	Taken int64
	Full  bool
}

// MatchForSell decomposes a sell of the given share count across open lots,
// oldest first. Lots must be sorted by ID ascending (purchase order); the
// tie-break is strictly increasing ID, never price or size.
//
// The caller is responsible for verifying ownership beforehand; an
// insufficient lot set here is a contract violation, not a user error.
func MatchForSell(lots []*Trade, shares int64) ([]Allocation, error) {
	if shares <= 0 {
		return nil, fmt.Errorf("match for sell: share count must be positive, got %d", shares)
	}

	allocs := make([]Allocation, 0, len(lots))
	remaining := shares
	for _, lot := range lots {
		if remaining == 0 {
			break
		}
		if !lot.IsOpen() || lot.Shares <= 0 {
			return nil, fmt.Errorf("match for sell: lot %d is not an open lot", lot.ID)
		}
		take := lot.Shares
		if remaining < take {
			take = remaining
		}
		allocs = append(allocs, Allocation{
			Lot:   lot,
			Taken: take,
			Full:  take == lot.Shares,
		})
		remaining -= take
	}
	if remaining > 0 {
		return nil, fmt.Errorf("match for sell: lots cover only %d of %d requested shares", shares-remaining, shares)
	}
	return allocs, nil
}
