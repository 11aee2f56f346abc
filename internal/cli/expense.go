package cli

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/google/subcommands"

	"github.com/mabesi/mysplit/internal/models"
	"github.com/mabesi/mysplit/internal/settle"
)

type addExpenseCmd struct {
	group  string
	title  string
	amount string
	paidBy string
	split  string
	date   string
}

func (*addExpenseCmd) Name() string     { return "add-expense" }
func (*addExpenseCmd) Synopsis() string { return "record an expense" }
func (*addExpenseCmd) Usage() string {
	return `mysplit add-expense -group <group id> -title <text> -amount <n.nn> -paid-by <member> [-split <m1,m2,...>] [-date YYYY-MM-DD]

  Records an expense split equally among the -split members, or among
  everyone in the group when -split is omitted.
`
}

func (c *addExpenseCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.group, "group", "", "Group id.")
	f.StringVar(&c.title, "title", "", "What the expense was for.")
	f.StringVar(&c.amount, "amount", "", "Amount, e.g. 42.50.")
	f.StringVar(&c.paidBy, "paid-by", "", "Member who paid (id or name).")
	f.StringVar(&c.split, "split", "", "Comma-separated members to split among; defaults to all.")
	f.StringVar(&c.date, "date", "", "Expense date as YYYY-MM-DD; defaults to today.")
}

func (c *addExpenseCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if c.group == "" || c.title == "" || c.amount == "" || c.paidBy == "" {
		fmt.Fprintln(os.Stderr, "Error: -group, -title, -amount and -paid-by are required.")
		return subcommands.ExitUsageError
	}

	amount, err := models.ParseAmount(c.amount)
	if err != nil {
		return fail(err)
	}

	var date int64
	if c.date != "" {
		t, err := time.ParseInLocation("2006-01-02", c.date, time.Local)
		if err != nil {
			return fail(fmt.Errorf("invalid -date %q: %w", c.date, err))
		}
		date = t.UnixMilli()
	}

	a, err := openApp(ctx)
	if err != nil {
		return fail(err)
	}
	defer a.close(ctx)

	g, err := a.session.GetGroup(ctx, c.group)
	if err != nil {
		return fail(err)
	}
	if g == nil {
		fmt.Fprintln(os.Stderr, "No group with that id.")
		return subcommands.ExitFailure
	}

	payer, err := resolveMember(g, c.paidBy)
	if err != nil {
		return fail(err)
	}

	var splitAmong []string
	if c.split == "" {
		for _, m := range g.Members {
			splitAmong = append(splitAmong, m.ID)
		}
	} else {
		splitAmong, err = resolveMembers(g, c.split)
		if err != nil {
			return fail(err)
		}
	}

	if err := a.session.AddExpense(ctx, c.group, c.title, amount, payer.ID, splitAmong, date); err != nil {
		return fail(err)
	}
	fmt.Printf("Recorded %q: %.2f paid by %s, split %d ways.\n", c.title, amount, payer.Name, len(splitAmong))
	return subcommands.ExitSuccess
}

type deleteExpenseCmd struct {
	group string
}

func (*deleteExpenseCmd) Name() string     { return "delete-expense" }
func (*deleteExpenseCmd) Synopsis() string { return "delete an expense" }
func (*deleteExpenseCmd) Usage() string {
	return "mysplit delete-expense -group <group id> <expense id>\n"
}

func (c *deleteExpenseCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.group, "group", "", "Group id.")
}

func (c *deleteExpenseCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if c.group == "" || f.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "Error: -group and an expense id are required.")
		return subcommands.ExitUsageError
	}

	a, err := openApp(ctx)
	if err != nil {
		return fail(err)
	}
	defer a.close(ctx)

	if err := a.session.DeleteExpense(ctx, c.group, f.Arg(0)); err != nil {
		return fail(err)
	}
	fmt.Println("Expense deleted.")
	return subcommands.ExitSuccess
}

type settleCmd struct{}

func (*settleCmd) Name() string     { return "settle" }
func (*settleCmd) Synopsis() string { return "show balances and who pays whom" }
func (*settleCmd) Usage() string    { return "mysplit settle <group id>\n" }

func (*settleCmd) SetFlags(_ *flag.FlagSet) {}

func (c *settleCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "Error: a group id is required.")
		return subcommands.ExitUsageError
	}

	a, err := openApp(ctx)
	if err != nil {
		return fail(err)
	}
	defer a.close(ctx)

	g, err := a.session.GetGroup(ctx, f.Arg(0))
	if err != nil {
		return fail(err)
	}
	if g == nil {
		fmt.Fprintln(os.Stderr, "No group with that id.")
		return subcommands.ExitFailure
	}

	plan := settle.Settle(g)
	fmt.Println("Balances:")
	for _, b := range plan.Balances {
		fmt.Printf("  %-20s %+8.2f\n", b.MemberName, b.Amount)
	}
	fmt.Println("Transfers:")
	if len(plan.Transfers) == 0 {
		fmt.Println("  all settled")
	}
	for _, t := range plan.Transfers {
		fmt.Printf("  %s pays %s %.2f\n", t.From, t.To, t.Amount)
	}
	return subcommands.ExitSuccess
}
