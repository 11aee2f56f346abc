package models

import (
	"errors"
	"testing"
)

func testGroup() *Group {
	g := NewGroup("grp-test", "Trip", Member{ID: "user-owner", Name: "Owner"})
	g.Members = append(g.Members,
		Member{ID: "user-b", Name: "Bob", Status: StatusActive},
		Member{ID: "user-c", Name: "Carol", Status: StatusPending},
	)
	return g
}

func TestAddMember(t *testing.T) {
	tests := []struct {
		name    string
		member  Member
		wantErr error
		wantLen int
	}{
		{
			name:    "new member is appended",
			member:  Member{ID: "user-d", Name: "Dave", Status: StatusActive},
			wantLen: 4,
		},
		{
			name:    "same id is idempotent",
			member:  Member{ID: "user-b", Name: "Bob", Status: StatusActive},
			wantLen: 3,
		},
		{
			name:    "name held by active member is rejected",
			member:  Member{ID: "user-d", Name: "bob", Status: StatusActive},
			wantErr: ErrNameTaken,
			wantLen: 3,
		},
		{
			name:    "name held by pending member is allowed",
			member:  Member{ID: "user-d", Name: "Carol", Status: StatusActive},
			wantLen: 4,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := testGroup()
			err := g.AddMember(tt.member)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("AddMember error = %v, want %v", err, tt.wantErr)
			}
			if len(g.Members) != tt.wantLen {
				t.Errorf("got %d members, want %d", len(g.Members), tt.wantLen)
			}
		})
	}
}

func TestAddMemberDefaultsToPending(t *testing.T) {
	g := testGroup()
	if err := g.AddMember(Member{ID: "user-d", Name: "Dave"}); err != nil {
		t.Fatalf("AddMember failed: %v", err)
	}
	m, ok := g.FindMember("user-d")
	if !ok {
		t.Fatal("member not found after add")
	}
	if !m.Pending() {
		t.Errorf("status = %q, want pending", m.Status)
	}
}

func TestRemoveMember(t *testing.T) {
	g := testGroup()
	g.AddExpense(Expense{ID: "exp-1", Title: "Dinner", Amount: 30, PaidBy: "user-b",
		SplitAmong: []string{"user-owner", "user-b"}})
	g.AddExpense(Expense{ID: "exp-2", Title: "Taxi", Amount: 10, PaidBy: "user-owner",
		SplitAmong: []string{"user-owner", "user-b"}})
	g.AddExpense(Expense{ID: "exp-3", Title: "Bob's ticket", Amount: 25, PaidBy: "user-owner",
		SplitAmong: []string{"user-b"}})

	t.Run("owner cannot be removed", func(t *testing.T) {
		if err := g.RemoveMember("user-owner"); !errors.Is(err, ErrOwnerRemoval) {
			t.Errorf("RemoveMember(owner) = %v, want ErrOwnerRemoval", err)
		}
	})

	t.Run("unknown member", func(t *testing.T) {
		if err := g.RemoveMember("user-nope"); !errors.Is(err, ErrMemberNotFound) {
			t.Errorf("RemoveMember(unknown) = %v, want ErrMemberNotFound", err)
		}
	})

	t.Run("removal scrubs every reference", func(t *testing.T) {
		if err := g.RemoveMember("user-b"); err != nil {
			t.Fatalf("RemoveMember failed: %v", err)
		}
		if _, ok := g.FindMember("user-b"); ok {
			t.Error("member still present after removal")
		}
		if _, ok := g.FindExpense("exp-1"); ok {
			t.Error("expense paid by removed member survived")
		}
		e2, ok := g.FindExpense("exp-2")
		if !ok {
			t.Fatal("unrelated expense was dropped")
		}
		if e2.Splits("user-b") {
			t.Errorf("exp-2 split = %v, still references the removed member", e2.SplitAmong)
		}
		if len(e2.SplitAmong) != 1 || e2.SplitAmong[0] != "user-owner" {
			t.Errorf("exp-2 split = %v, want [user-owner]", e2.SplitAmong)
		}
		if _, ok := g.FindExpense("exp-3"); ok {
			t.Error("expense split solely with the removed member survived")
		}
	})
}

func TestMergeMember(t *testing.T) {
	g := testGroup()
	g.AddExpense(Expense{ID: "exp-1", Title: "Dinner", Amount: 30, PaidBy: "user-c",
		SplitAmong: []string{"user-owner", "user-c"}})
	// Split already contains both ids; merging must not duplicate.
	g.AddExpense(Expense{ID: "exp-2", Title: "Hotel", Amount: 100, PaidBy: "user-owner",
		SplitAmong: []string{"user-b", "user-c"}})

	if err := g.MergeMember("user-c", "user-b"); err != nil {
		t.Fatalf("MergeMember failed: %v", err)
	}

	if _, ok := g.FindMember("user-c"); ok {
		t.Error("old member survived the merge")
	}

	e1, _ := g.FindExpense("exp-1")
	if e1.PaidBy != "user-b" {
		t.Errorf("exp-1 paidBy = %q, want user-b", e1.PaidBy)
	}
	if e1.Splits("user-c") || !e1.Splits("user-b") {
		t.Errorf("exp-1 split = %v, want user-c replaced by user-b", e1.SplitAmong)
	}

	e2, _ := g.FindExpense("exp-2")
	if len(e2.SplitAmong) != 1 || e2.SplitAmong[0] != "user-b" {
		t.Errorf("exp-2 split = %v, want deduplicated [user-b]", e2.SplitAmong)
	}
}

func TestMergeMemberUnknownIDs(t *testing.T) {
	g := testGroup()
	if err := g.MergeMember("user-nope", "user-b"); !errors.Is(err, ErrMemberNotFound) {
		t.Errorf("MergeMember(unknown old) = %v, want ErrMemberNotFound", err)
	}
	if err := g.MergeMember("user-b", "user-nope"); !errors.Is(err, ErrMemberNotFound) {
		t.Errorf("MergeMember(unknown new) = %v, want ErrMemberNotFound", err)
	}
}

func TestMemberNamed(t *testing.T) {
	g := testGroup()
	if _, ok := g.MemberNamed("BOB"); !ok {
		t.Error("case-insensitive lookup failed for active member")
	}
	// Carol is pending and must not match.
	if _, ok := g.MemberNamed("Carol"); ok {
		t.Error("pending member matched MemberNamed")
	}
}

func TestCloneIsDeep(t *testing.T) {
	g := testGroup()
	g.AddExpense(Expense{ID: "exp-1", Title: "Dinner", Amount: 30, PaidBy: "user-b",
		SplitAmong: []string{"user-owner", "user-b"}})

	cp := g.Clone()
	cp.Members[0].Name = "changed"
	cp.Expenses[0].SplitAmong[0] = "changed"

	if g.Members[0].Name == "changed" {
		t.Error("clone shares member backing array")
	}
	if g.Expenses[0].SplitAmong[0] == "changed" {
		t.Error("clone shares split backing array")
	}
}

func TestApplyUpdate(t *testing.T) {
	g := testGroup()
	name := "Renamed"
	g.ApplyUpdate(GroupUpdate{Name: &name})
	if g.Name != "Renamed" {
		t.Errorf("name = %q, want Renamed", g.Name)
	}
	if g.ImageURL != "" {
		t.Errorf("imageURL changed unexpectedly: %q", g.ImageURL)
	}
}

func TestAddExpenseFillsDefaults(t *testing.T) {
	g := testGroup()
	g.AddExpense(Expense{Title: "Coffee", Amount: 4, PaidBy: "user-b",
		SplitAmong: []string{"user-b", "user-owner"}})

	e := g.Expenses[len(g.Expenses)-1]
	if e.ID == "" {
		t.Error("expense ID not generated")
	}
	if e.CreatedAt == 0 {
		t.Error("CreatedAt not set")
	}
	if e.Date != e.CreatedAt {
		t.Errorf("date = %d, want defaulted to CreatedAt %d", e.Date, e.CreatedAt)
	}
}
