// Package settle turns a group's expense list into per-member balances and
// a minimal set of payments that clears them.
package settle

import (
	"math"
	"sort"

	"github.com/mabesi/mysplit/internal/models"
)

// Epsilon is the two-decimal money tolerance: balances within Epsilon of
// zero are considered settled.
const Epsilon = 0.01

// Balance is the net position of one member. Positive means the group owes
// them, negative means they owe the group.
type Balance struct {
	MemberID   string  `json:"memberId"`
	MemberName string  `json:"memberName"`
	Amount     float64 `json:"balance"`
}

// Transfer is a single payment from one member to another, identified by
// display name.
type Transfer struct {
	From   string  `json:"from"`
	To     string  `json:"to"`
	Amount float64 `json:"amount"`
}

// Plan is the settlement result: one balance per member, in member-list
// order, and the payments that discharge them.
type Plan struct {
	Balances  []Balance  `json:"balances"`
	Transfers []Transfer `json:"transactions"`
}

// Settle computes the settlement plan for a group. It is pure and
// deterministic: the same snapshot always yields the same balances and the
// same transfer order.
//
// Each expense credits the payer with the full amount and debits every
// split participant with amount/k, k being the split size. All participants
// are debited the same share, so aggregate rounding error is carried
// implicitly rather than redistributed; it stays under Epsilon. Expenses
// with an empty split are skipped as a defensive no-op.
//
// Debtors (balance < -Epsilon) are matched greedily against creditors
// (balance > Epsilon): most negative against most positive, ties keeping
// member-list order. The loop emits at most one transfer per matched pair
// and advances whichever side reaches near-zero, so the number of transfers
// never exceeds the number of members with a nonzero balance minus one.
func Settle(g *models.Group) Plan {
	byID := make(map[string]float64, len(g.Members))
	for _, m := range g.Members {
		byID[m.ID] = 0
	}

	for _, e := range g.Expenses {
		k := len(e.SplitAmong)
		if k == 0 {
			continue
		}
		share := e.Amount / float64(k)
		byID[e.PaidBy] += e.Amount
		for _, id := range e.SplitAmong {
			byID[id] -= share
		}
	}

	balances := make([]Balance, len(g.Members))
	for i, m := range g.Members {
		balances[i] = Balance{MemberID: m.ID, MemberName: m.Name, Amount: byID[m.ID]}
	}

	var debtors, creditors []Balance
	for _, b := range balances {
		switch {
		case b.Amount < -Epsilon:
			debtors = append(debtors, b)
		case b.Amount > Epsilon:
			creditors = append(creditors, b)
		}
	}
	sort.SliceStable(debtors, func(i, j int) bool {
		return debtors[i].Amount < debtors[j].Amount
	})
	sort.SliceStable(creditors, func(i, j int) bool {
		return creditors[i].Amount > creditors[j].Amount
	})

	var transfers []Transfer
	i, j := 0, 0
	for i < len(debtors) && j < len(creditors) {
		debtor := &debtors[i]
		creditor := &creditors[j]

		amount := math.Min(math.Abs(debtor.Amount), creditor.Amount)
		transfers = append(transfers, Transfer{
			From:   debtor.MemberName,
			To:     creditor.MemberName,
			Amount: amount,
		})

		debtor.Amount += amount
		creditor.Amount -= amount

		if math.Abs(debtor.Amount) < Epsilon {
			i++
		}
		if creditor.Amount < Epsilon {
			j++
		}
	}

	return Plan{Balances: balances, Transfers: transfers}
}
