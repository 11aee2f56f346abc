package sqlite

import (
	"context"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/mabesi/mysplit/internal/models"
	"github.com/mabesi/mysplit/internal/storage"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func sampleGroup() *models.Group {
	g := models.NewGroup("grp-trip", "Trip", models.Member{ID: "user-a", Name: "Alice"})
	g.Members = append(g.Members, models.Member{ID: "user-b", Name: "Bob", Status: models.StatusPending})
	g.AddExpense(models.Expense{
		ID: "exp-1", Title: "Dinner", Amount: 42.5, PaidBy: "user-a",
		SplitAmong: []string{"user-a", "user-b"}, CreatedBy: "user-a",
	})
	return g
}

func TestStore(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	t.Run("SaveGroup then GetGroup round-trips", func(t *testing.T) {
		g := sampleGroup()
		if err := store.SaveGroup(ctx, g); err != nil {
			t.Fatalf("SaveGroup failed: %v", err)
		}

		got, err := store.GetGroup(ctx, g.ID)
		if err != nil {
			t.Fatalf("GetGroup failed: %v", err)
		}
		if !reflect.DeepEqual(got, g) {
			t.Errorf("round-trip mismatch:\ngot  %+v\nwant %+v", got, g)
		}
	})

	t.Run("SaveGroup overwrites", func(t *testing.T) {
		g := sampleGroup()
		if err := store.SaveGroup(ctx, g); err != nil {
			t.Fatalf("SaveGroup failed: %v", err)
		}
		g.Name = "Renamed"
		if err := store.SaveGroup(ctx, g); err != nil {
			t.Fatalf("second SaveGroup failed: %v", err)
		}

		got, err := store.GetGroup(ctx, g.ID)
		if err != nil {
			t.Fatalf("GetGroup failed: %v", err)
		}
		if got.Name != "Renamed" {
			t.Errorf("name = %q, want Renamed", got.Name)
		}
	})

	t.Run("GetGroup on a missing id returns nil", func(t *testing.T) {
		got, err := store.GetGroup(ctx, "grp-missing")
		if err != nil {
			t.Fatalf("GetGroup failed: %v", err)
		}
		if got != nil {
			t.Errorf("got %+v, want nil", got)
		}
	})

	t.Run("AllGroups returns every saved group", func(t *testing.T) {
		other := models.NewGroup("grp-other", "Other", models.Member{ID: "user-z", Name: "Zoe"})
		if err := store.SaveGroup(ctx, other); err != nil {
			t.Fatalf("SaveGroup failed: %v", err)
		}

		all, err := store.AllGroups(ctx)
		if err != nil {
			t.Fatalf("AllGroups failed: %v", err)
		}
		if _, ok := all["grp-trip"]; !ok {
			t.Error("grp-trip missing from AllGroups")
		}
		if _, ok := all["grp-other"]; !ok {
			t.Error("grp-other missing from AllGroups")
		}
	})
}

func TestDirtyFlags(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	dirty, err := store.IsDirty(ctx, "grp-a")
	if err != nil {
		t.Fatalf("IsDirty failed: %v", err)
	}
	if dirty {
		t.Error("fresh store reports a dirty group")
	}

	if err := store.MarkDirty(ctx, "grp-a"); err != nil {
		t.Fatalf("MarkDirty failed: %v", err)
	}
	// Marking twice must not error or duplicate.
	if err := store.MarkDirty(ctx, "grp-a"); err != nil {
		t.Fatalf("second MarkDirty failed: %v", err)
	}
	if err := store.MarkDirty(ctx, "grp-b"); err != nil {
		t.Fatalf("MarkDirty failed: %v", err)
	}

	ids, err := store.DirtyGroupIDs(ctx)
	if err != nil {
		t.Fatalf("DirtyGroupIDs failed: %v", err)
	}
	if len(ids) != 2 {
		t.Fatalf("got %d dirty ids, want 2: %v", len(ids), ids)
	}

	if err := store.ClearDirty(ctx, "grp-a"); err != nil {
		t.Fatalf("ClearDirty failed: %v", err)
	}
	dirty, err = store.IsDirty(ctx, "grp-a")
	if err != nil {
		t.Fatalf("IsDirty failed: %v", err)
	}
	if dirty {
		t.Error("grp-a still dirty after ClearDirty")
	}
	dirty, _ = store.IsDirty(ctx, "grp-b")
	if !dirty {
		t.Error("grp-b lost its dirty flag")
	}
}

func TestDeviceState(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	uid, err := store.UserID(ctx)
	if err != nil {
		t.Fatalf("UserID failed: %v", err)
	}
	if uid != "" {
		t.Errorf("fresh store user id = %q, want empty", uid)
	}

	if err := store.SetUserID(ctx, "user-device"); err != nil {
		t.Fatalf("SetUserID failed: %v", err)
	}
	uid, err = store.UserID(ctx)
	if err != nil {
		t.Fatalf("UserID failed: %v", err)
	}
	if uid != "user-device" {
		t.Errorf("user id = %q, want user-device", uid)
	}

	ids, err := store.GroupIDs(ctx)
	if err != nil {
		t.Fatalf("GroupIDs failed: %v", err)
	}
	if len(ids) != 0 {
		t.Errorf("fresh store group ids = %v, want empty", ids)
	}

	want := []string{"grp-a", "grp-b"}
	if err := store.SetGroupIDs(ctx, want); err != nil {
		t.Fatalf("SetGroupIDs failed: %v", err)
	}
	ids, err = store.GroupIDs(ctx)
	if err != nil {
		t.Fatalf("GroupIDs failed: %v", err)
	}
	if !reflect.DeepEqual(ids, want) {
		t.Errorf("group ids = %v, want %v", ids, want)
	}
}

func TestDeleteGroup(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	g := sampleGroup()
	if err := store.SaveGroup(ctx, g); err != nil {
		t.Fatalf("SaveGroup failed: %v", err)
	}
	if err := store.MarkDirty(ctx, g.ID); err != nil {
		t.Fatalf("MarkDirty failed: %v", err)
	}

	if err := store.DeleteGroup(ctx, g.ID); err != nil {
		t.Fatalf("DeleteGroup failed: %v", err)
	}

	got, err := store.GetGroup(ctx, g.ID)
	if err != nil {
		t.Fatalf("GetGroup failed: %v", err)
	}
	if got != nil {
		t.Errorf("group still present after delete: %+v", got)
	}
	dirty, err := store.IsDirty(ctx, g.ID)
	if err != nil {
		t.Fatalf("IsDirty failed: %v", err)
	}
	if dirty {
		t.Error("dirty flag survived the delete")
	}

	// Deleting a missing group is a no-op.
	if err := store.DeleteGroup(ctx, "grp-missing"); err != nil {
		t.Errorf("DeleteGroup(missing) = %v, want nil", err)
	}
}

func TestPendingOps(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	ops := []*storage.PendingOp{
		{GroupID: "grp-a", Kind: storage.OpRemoveMember, MemberID: "user-b"},
		{GroupID: "grp-a", Kind: storage.OpDeleteExpense, ExpenseID: "exp-1"},
		{GroupID: "grp-b", Kind: storage.OpSetMemberStatus, MemberID: "user-c", Status: models.StatusActive},
	}
	for _, op := range ops {
		if err := store.EnqueueOp(ctx, op); err != nil {
			t.Fatalf("EnqueueOp failed: %v", err)
		}
		if op.ID == 0 {
			t.Fatal("EnqueueOp did not assign an id")
		}
	}

	t.Run("scoped to the group, enqueue order", func(t *testing.T) {
		got, err := store.PendingOps(ctx, "grp-a")
		if err != nil {
			t.Fatalf("PendingOps failed: %v", err)
		}
		if len(got) != 2 {
			t.Fatalf("got %d ops, want 2", len(got))
		}
		if got[0].Kind != storage.OpRemoveMember || got[0].MemberID != "user-b" {
			t.Errorf("first op = %+v, want the member removal", got[0])
		}
		if got[1].Kind != storage.OpDeleteExpense || got[1].ExpenseID != "exp-1" {
			t.Errorf("second op = %+v, want the expense delete", got[1])
		}
	})

	t.Run("delete confirms one op", func(t *testing.T) {
		if err := store.DeleteOp(ctx, ops[0].ID); err != nil {
			t.Fatalf("DeleteOp failed: %v", err)
		}
		got, err := store.PendingOps(ctx, "grp-a")
		if err != nil {
			t.Fatalf("PendingOps failed: %v", err)
		}
		if len(got) != 1 || got[0].Kind != storage.OpDeleteExpense {
			t.Errorf("got %+v, want only the expense delete", got)
		}
		// Confirming twice is harmless.
		if err := store.DeleteOp(ctx, ops[0].ID); err != nil {
			t.Errorf("second DeleteOp = %v, want nil", err)
		}
	})

	t.Run("group delete purges the journal", func(t *testing.T) {
		if err := store.SaveGroup(ctx, models.NewGroup("grp-a", "Trip", models.Member{ID: "user-a", Name: "Alice"})); err != nil {
			t.Fatalf("SaveGroup failed: %v", err)
		}
		if err := store.DeleteGroup(ctx, "grp-a"); err != nil {
			t.Fatalf("DeleteGroup failed: %v", err)
		}
		got, err := store.PendingOps(ctx, "grp-a")
		if err != nil {
			t.Fatalf("PendingOps failed: %v", err)
		}
		if len(got) != 0 {
			t.Errorf("journal not purged with the group: %+v", got)
		}
		other, err := store.PendingOps(ctx, "grp-b")
		if err != nil {
			t.Fatalf("PendingOps failed: %v", err)
		}
		if len(other) != 1 {
			t.Errorf("unrelated group's journal touched: %+v", other)
		}
	})
}

func TestReopenPersists(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "persist.db")
	ctx := context.Background()

	store, err := New(path)
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	g := sampleGroup()
	if err := store.SaveGroup(ctx, g); err != nil {
		t.Fatalf("SaveGroup failed: %v", err)
	}
	if err := store.MarkDirty(ctx, g.ID); err != nil {
		t.Fatalf("MarkDirty failed: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	reopened, err := New(path)
	if err != nil {
		t.Fatalf("Failed to reopen store: %v", err)
	}
	defer reopened.Close()

	got, err := reopened.GetGroup(ctx, g.ID)
	if err != nil {
		t.Fatalf("GetGroup failed: %v", err)
	}
	if got == nil || got.Name != g.Name {
		t.Errorf("group did not survive reopen: %+v", got)
	}
	dirty, err := reopened.IsDirty(ctx, g.ID)
	if err != nil {
		t.Fatalf("IsDirty failed: %v", err)
	}
	if !dirty {
		t.Error("dirty flag did not survive reopen")
	}
}
