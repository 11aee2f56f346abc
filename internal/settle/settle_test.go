package settle

import (
	"math"
	"reflect"
	"testing"

	"github.com/mabesi/mysplit/internal/models"
)

func group(members []models.Member, expenses []models.Expense) *models.Group {
	return &models.Group{
		ID:       "grp-test",
		Name:     "Test",
		OwnerID:  members[0].ID,
		Members:  members,
		Expenses: expenses,
	}
}

func TestSettle(t *testing.T) {
	alice := models.Member{ID: "user-a", Name: "Alice", Status: models.StatusActive}
	bob := models.Member{ID: "user-b", Name: "Bob", Status: models.StatusActive}
	carol := models.Member{ID: "user-c", Name: "Carol", Status: models.StatusActive}

	tests := []struct {
		name     string
		members  []models.Member
		expenses []models.Expense
		validate func(t *testing.T, plan Plan)
	}{
		{
			name:     "no expenses yields zero balances and no transfers",
			members:  []models.Member{alice, bob},
			expenses: nil,
			validate: func(t *testing.T, plan Plan) {
				if len(plan.Balances) != 2 {
					t.Fatalf("got %d balances, want 2", len(plan.Balances))
				}
				for _, b := range plan.Balances {
					if b.Amount != 0 {
						t.Errorf("%s balance = %v, want 0", b.MemberName, b.Amount)
					}
				}
				if len(plan.Transfers) != 0 {
					t.Errorf("got %d transfers, want 0", len(plan.Transfers))
				}
			},
		},
		{
			name:    "one dinner split three ways",
			members: []models.Member{alice, bob, carol},
			expenses: []models.Expense{
				{ID: "exp-1", Title: "Dinner", Amount: 90, PaidBy: "user-a",
					SplitAmong: []string{"user-a", "user-b", "user-c"}},
			},
			validate: func(t *testing.T, plan Plan) {
				want := map[string]float64{"Alice": 60, "Bob": -30, "Carol": -30}
				for _, b := range plan.Balances {
					if math.Abs(b.Amount-want[b.MemberName]) > Epsilon {
						t.Errorf("%s balance = %v, want %v", b.MemberName, b.Amount, want[b.MemberName])
					}
				}
				wantTransfers := []Transfer{
					{From: "Bob", To: "Alice", Amount: 30},
					{From: "Carol", To: "Alice", Amount: 30},
				}
				if !reflect.DeepEqual(plan.Transfers, wantTransfers) {
					t.Errorf("transfers = %v, want %v", plan.Transfers, wantTransfers)
				}
			},
		},
		{
			name:    "payer outside the split owes nothing back",
			members: []models.Member{alice, bob},
			expenses: []models.Expense{
				{ID: "exp-1", Title: "Gift", Amount: 40, PaidBy: "user-a",
					SplitAmong: []string{"user-b"}},
			},
			validate: func(t *testing.T, plan Plan) {
				if len(plan.Transfers) != 1 {
					t.Fatalf("got %d transfers, want 1", len(plan.Transfers))
				}
				tr := plan.Transfers[0]
				if tr.From != "Bob" || tr.To != "Alice" || math.Abs(tr.Amount-40) > Epsilon {
					t.Errorf("transfer = %+v, want Bob pays Alice 40", tr)
				}
			},
		},
		{
			name:    "cross-paid expenses cancel out",
			members: []models.Member{alice, bob},
			expenses: []models.Expense{
				{ID: "exp-1", Title: "Lunch", Amount: 30, PaidBy: "user-a",
					SplitAmong: []string{"user-a", "user-b"}},
				{ID: "exp-2", Title: "Taxi", Amount: 30, PaidBy: "user-b",
					SplitAmong: []string{"user-a", "user-b"}},
			},
			validate: func(t *testing.T, plan Plan) {
				if len(plan.Transfers) != 0 {
					t.Errorf("got %d transfers, want 0", len(plan.Transfers))
				}
			},
		},
		{
			name:    "empty split is skipped",
			members: []models.Member{alice, bob},
			expenses: []models.Expense{
				{ID: "exp-1", Title: "Broken", Amount: 99, PaidBy: "user-a", SplitAmong: nil},
			},
			validate: func(t *testing.T, plan Plan) {
				for _, b := range plan.Balances {
					if b.Amount != 0 {
						t.Errorf("%s balance = %v, want 0", b.MemberName, b.Amount)
					}
				}
			},
		},
		{
			name:    "biggest debtor pairs with biggest creditor first",
			members: []models.Member{alice, bob, carol},
			expenses: []models.Expense{
				{ID: "exp-1", Title: "Hotel", Amount: 120, PaidBy: "user-a",
					SplitAmong: []string{"user-b", "user-c"}},
				{ID: "exp-2", Title: "Breakfast", Amount: 30, PaidBy: "user-b",
					SplitAmong: []string{"user-c"}},
			},
			validate: func(t *testing.T, plan Plan) {
				// Alice +120, Bob -30, Carol -90.
				if len(plan.Transfers) != 2 {
					t.Fatalf("got %d transfers, want 2: %v", len(plan.Transfers), plan.Transfers)
				}
				first := plan.Transfers[0]
				if first.From != "Carol" || first.To != "Alice" || math.Abs(first.Amount-90) > Epsilon {
					t.Errorf("first transfer = %+v, want Carol pays Alice 90", first)
				}
				second := plan.Transfers[1]
				if second.From != "Bob" || second.To != "Alice" || math.Abs(second.Amount-30) > Epsilon {
					t.Errorf("second transfer = %+v, want Bob pays Alice 30", second)
				}
			},
		},
		{
			name:    "uneven thirds stay within tolerance",
			members: []models.Member{alice, bob, carol},
			expenses: []models.Expense{
				{ID: "exp-1", Title: "Groceries", Amount: 100, PaidBy: "user-a",
					SplitAmong: []string{"user-a", "user-b", "user-c"}},
			},
			validate: func(t *testing.T, plan Plan) {
				var sum float64
				for _, b := range plan.Balances {
					sum += b.Amount
				}
				if math.Abs(sum) > Epsilon {
					t.Errorf("balances sum to %v, want ~0", sum)
				}
				for _, tr := range plan.Transfers {
					if math.Abs(tr.Amount-100.0/3) > Epsilon {
						t.Errorf("transfer amount = %v, want ~33.33", tr.Amount)
					}
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := group(tt.members, tt.expenses)
			plan := Settle(g)
			tt.validate(t, plan)
		})
	}
}

// Settling twice must yield the same plan; the input snapshot is not
// mutated.
func TestSettleDeterministic(t *testing.T) {
	g := group(
		[]models.Member{
			{ID: "user-a", Name: "Alice", Status: models.StatusActive},
			{ID: "user-b", Name: "Bob", Status: models.StatusActive},
			{ID: "user-c", Name: "Carol", Status: models.StatusActive},
			{ID: "user-d", Name: "Dave", Status: models.StatusActive},
		},
		[]models.Expense{
			{ID: "exp-1", Title: "Rent", Amount: 400, PaidBy: "user-a",
				SplitAmong: []string{"user-a", "user-b", "user-c", "user-d"}},
			{ID: "exp-2", Title: "Internet", Amount: 60, PaidBy: "user-b",
				SplitAmong: []string{"user-a", "user-b", "user-c", "user-d"}},
			{ID: "exp-3", Title: "Pizza", Amount: 45, PaidBy: "user-c",
				SplitAmong: []string{"user-b", "user-c", "user-d"}},
		},
	)

	first := Settle(g)
	second := Settle(g)
	if !reflect.DeepEqual(first, second) {
		t.Errorf("plans differ between runs:\nfirst  %v\nsecond %v", first, second)
	}

	// Every transfer discharges debt: applying the plan to the balances
	// must leave everyone within Epsilon of zero.
	net := make(map[string]float64)
	for _, b := range first.Balances {
		net[b.MemberName] = b.Amount
	}
	for _, tr := range first.Transfers {
		net[tr.From] += tr.Amount
		net[tr.To] -= tr.Amount
	}
	for name, amount := range net {
		if math.Abs(amount) > Epsilon {
			t.Errorf("%s left with %v after applying transfers, want ~0", name, amount)
		}
	}
}
