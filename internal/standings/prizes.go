package standings

import (
	"cmp"
	"slices"

	"github.com/AdamBeresnev/quiniela/internal/quiniela"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var cent = decimal.New(1, -2)

type Payout struct {
	EntryID uuid.UUID       `json:"entry_id"`
	Rank    int             `json:"rank"`
	Prize   decimal.Decimal `json:"prize"`
	Winner  bool            `json:"winner"`
}

type Distribution struct {
	// Payouts follows the order of the ranked input.
	Payouts   []Payout
	TotalPaid decimal.Decimal
	// Unpaid lists tiers whose rank no entry holds, e.g. rank 2 after a
	// two-way tie for first.
	Unpaid []quiniela.PrizeTier
}

// Distribute pays each prize tier to the tie group holding that exact rank.
// A group's share is the tier amount divided by the group size, truncated to
// cents; the leftover cents go one at a time to group members in display
// order, so every paid tier sums exactly to its amount. Tiers with no
// matching group are not paid to anyone. Every member of a paid group is a
// winner, even when its share rounds down to zero.
func Distribute(ranked []Ranked, tiers []quiniela.PrizeTier) Distribution {
	groups := Groups(ranked)
	prizes := make(map[uuid.UUID]decimal.Decimal, len(ranked))
	winners := make(map[uuid.UUID]bool)

	sortedTiers := slices.Clone(tiers)
	slices.SortFunc(sortedTiers, func(a, b quiniela.PrizeTier) int {
		return cmp.Compare(a.Rank, b.Rank)
	})

	dist := Distribution{TotalPaid: decimal.Zero}
	for _, tier := range sortedTiers {
		if !tier.Amount.IsPositive() {
			continue
		}
		group := groups[tier.Rank]
		if len(group) == 0 {
			dist.Unpaid = append(dist.Unpaid, tier)
			continue
		}

		for i, share := range SplitAmount(tier.Amount, len(group)) {
			id := group[i].EntryID
			prizes[id] = prizes[id].Add(share)
			winners[id] = true
		}
		dist.TotalPaid = dist.TotalPaid.Add(tier.Amount)
	}

	dist.Payouts = make([]Payout, len(ranked))
	for i, r := range ranked {
		dist.Payouts[i] = Payout{
			EntryID: r.EntryID,
			Rank:    r.Rank,
			Prize:   prizes[r.EntryID],
			Winner:  winners[r.EntryID],
		}
	}
	return dist
}

// SplitAmount divides amount into n shares that differ by at most one cent
// and sum exactly to amount. Sub-cent residue, if amount carries any, goes to
// the first share.
func SplitAmount(amount decimal.Decimal, n int) []decimal.Decimal {
	if n <= 0 {
		return nil
	}

	count := decimal.NewFromInt(int64(n))
	base := amount.Div(count).Truncate(2)
	remainder := amount.Sub(base.Mul(count))
	extraCents := remainder.Div(cent).Truncate(0).IntPart()
	residue := remainder.Sub(cent.Mul(decimal.NewFromInt(extraCents)))

	shares := make([]decimal.Decimal, n)
	for i := range shares {
		shares[i] = base
		if int64(i) < extraCents {
			shares[i] = shares[i].Add(cent)
		}
	}
	shares[0] = shares[0].Add(residue)
	return shares
}
