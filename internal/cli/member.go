package cli

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/google/subcommands"
)

type addMemberCmd struct {
	group string
	name  string
}

func (*addMemberCmd) Name() string     { return "add-member" }
func (*addMemberCmd) Synopsis() string { return "add a member directly (no approval needed)" }
func (*addMemberCmd) Usage() string {
	return `mysplit add-member -group <group id> -name <display name>

  Adds an active member on behalf of the group, for people who do not
  run the app themselves.
`
}

func (c *addMemberCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.group, "group", "", "Group id.")
	f.StringVar(&c.name, "name", "", "Display name of the new member.")
}

func (c *addMemberCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if c.group == "" || c.name == "" {
		fmt.Fprintln(os.Stderr, "Error: -group and -name are required.")
		return subcommands.ExitUsageError
	}

	a, err := openApp(ctx)
	if err != nil {
		return fail(err)
	}
	defer a.close(ctx)

	m, err := a.session.AddMember(ctx, c.group, c.name)
	if err != nil {
		return fail(err)
	}
	fmt.Printf("Added %q as %s.\n", m.Name, m.ID)
	return subcommands.ExitSuccess
}

type removeMemberCmd struct {
	group string
}

func (*removeMemberCmd) Name() string     { return "remove-member" }
func (*removeMemberCmd) Synopsis() string { return "remove a member and their paid expenses" }
func (*removeMemberCmd) Usage() string {
	return `mysplit remove-member -group <group id> <member id or name>

  Removes the member. Expenses they paid are removed with them; other
  expenses simply stop splitting with them.
`
}

func (c *removeMemberCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.group, "group", "", "Group id.")
}

func (c *removeMemberCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if c.group == "" || f.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "Error: -group and a member id or name are required.")
		return subcommands.ExitUsageError
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
	m, err := resolveMember(g, f.Arg(0))
	if err != nil {
		return fail(err)
	}

	if err := a.session.RemoveMember(ctx, c.group, m.ID); err != nil {
		return fail(err)
	}
	fmt.Printf("Removed %q from the group.\n", m.Name)
	return subcommands.ExitSuccess
}

type approveCmd struct {
	group string
}

func (*approveCmd) Name() string     { return "approve" }
func (*approveCmd) Synopsis() string { return "approve a pending member" }
func (*approveCmd) Usage() string {
	return `mysplit approve -group <group id> <member id or name>

  Activates a pending member. If an existing member already has the same
  name, the two entries are merged into one.
`
}

func (c *approveCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.group, "group", "", "Group id.")
}

func (c *approveCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if c.group == "" || f.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "Error: -group and a member id or name are required.")
		return subcommands.ExitUsageError
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
	m, err := resolveMember(g, f.Arg(0))
	if err != nil {
		return fail(err)
	}
	if !m.Pending() {
		fmt.Printf("%q is already an active member.\n", m.Name)
		return subcommands.ExitSuccess
	}

	if err := a.session.ApproveMember(ctx, c.group, m.ID); err != nil {
		return fail(err)
	}
	fmt.Printf("Approved %q.\n", m.Name)
	return subcommands.ExitSuccess
}

type rejectCmd struct {
	group string
}

func (*rejectCmd) Name() string     { return "reject" }
func (*rejectCmd) Synopsis() string { return "reject a pending member" }
func (*rejectCmd) Usage() string {
	return "mysplit reject -group <group id> <member id or name>\n"
}

func (c *rejectCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.group, "group", "", "Group id.")
}

func (c *rejectCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if c.group == "" || f.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "Error: -group and a member id or name are required.")
		return subcommands.ExitUsageError
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
	m, err := resolveMember(g, f.Arg(0))
	if err != nil {
		return fail(err)
	}
	if !m.Pending() {
		fmt.Fprintf(os.Stderr, "%q is not pending; use remove-member instead.\n", m.Name)
		return subcommands.ExitFailure
	}

	if err := a.session.RejectMember(ctx, c.group, m.ID); err != nil {
		return fail(err)
	}
	fmt.Printf("Rejected %q.\n", m.Name)
	return subcommands.ExitSuccess
}
