package cli

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/google/subcommands"

	"github.com/mabesi/mysplit/internal/session"
)

type createCmd struct {
	name string
	user string
}

func (*createCmd) Name() string     { return "create" }
func (*createCmd) Synopsis() string { return "create a new group" }
func (*createCmd) Usage() string {
	return `mysplit create -name <group name> -user <your display name>

  Creates a group owned by you and prints its shareable id.
`
}

func (c *createCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.name, "name", "", "Group name.")
	f.StringVar(&c.user, "user", "", "Your display name inside the group.")
}

func (c *createCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if c.name == "" || c.user == "" {
		fmt.Fprintln(os.Stderr, "Error: -name and -user are required.")
		return subcommands.ExitUsageError
	}

	a, err := openApp(ctx)
	if err != nil {
		return fail(err)
	}
	defer a.close(ctx)

	g, err := a.session.CreateGroup(ctx, c.name, c.user)
	if err != nil {
		return fail(err)
	}
	fmt.Printf("Created group %q\nShare this id to invite others: %s\n", g.Name, g.ID)
	return subcommands.ExitSuccess
}

type joinCmd struct {
	user string
}

func (*joinCmd) Name() string     { return "join" }
func (*joinCmd) Synopsis() string { return "join an existing group by id" }
func (*joinCmd) Usage() string {
	return `mysplit join -user <your display name> <group id>

  Adds you to the group as a pending member awaiting owner approval.
`
}

func (c *joinCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.user, "user", "", "Your display name inside the group.")
}

func (c *joinCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() != 1 || c.user == "" {
		fmt.Fprintln(os.Stderr, "Error: a group id and -user are required.")
		return subcommands.ExitUsageError
	}
	groupID := f.Arg(0)

	a, err := openApp(ctx)
	if err != nil {
		return fail(err)
	}
	defer a.close(ctx)

	res, err := a.session.JoinGroup(ctx, groupID, c.user)
	if err != nil {
		return fail(err)
	}
	switch res.Status {
	case session.StatusJoined:
		fmt.Printf("Joined %q; waiting for the owner to approve you.\n", res.Group.Name)
	case session.StatusAlreadyMember:
		fmt.Printf("You are already in this group as %q.\n", res.MemberName)
	case session.StatusGroupNotFound:
		fmt.Fprintln(os.Stderr, "No group with that id.")
		return subcommands.ExitFailure
	case session.StatusNameTaken:
		fmt.Fprintf(os.Stderr, "The name %q is already taken in this group.\n", c.user)
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

type groupsCmd struct{}

func (*groupsCmd) Name() string             { return "groups" }
func (*groupsCmd) Synopsis() string         { return "list your groups" }
func (*groupsCmd) Usage() string            { return "mysplit groups\n" }
func (*groupsCmd) SetFlags(_ *flag.FlagSet) {}

func (c *groupsCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	a, err := openApp(ctx)
	if err != nil {
		return fail(err)
	}
	defer a.close(ctx)

	ids := a.session.MyGroups()
	if len(ids) == 0 {
		fmt.Println("No groups yet. Use 'mysplit create' or 'mysplit join'.")
		return subcommands.ExitSuccess
	}
	for _, id := range ids {
		g, err := a.session.GetGroup(ctx, id)
		if err != nil || g == nil {
			fmt.Printf("%-24s (unavailable)\n", id)
			continue
		}
		fmt.Printf("%-24s %s  (%d members, %d expenses)\n", g.ID, g.Name, len(g.Members), len(g.Expenses))
	}
	return subcommands.ExitSuccess
}

type showCmd struct{}

func (*showCmd) Name() string             { return "show" }
func (*showCmd) Synopsis() string         { return "show a group's members and expenses" }
func (*showCmd) Usage() string            { return "mysplit show <group id>\n" }
func (*showCmd) SetFlags(_ *flag.FlagSet) {}

func (c *showCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
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

	fmt.Printf("%s (%s)\n", g.Name, g.ID)
	fmt.Println("Members:")
	for _, m := range g.Members {
		marker := ""
		if m.ID == g.OwnerID {
			marker = " (owner)"
		} else if m.Pending() {
			marker = " (pending approval)"
		}
		fmt.Printf("  %-20s %s%s\n", m.Name, m.ID, marker)
	}
	fmt.Println("Expenses:")
	if len(g.Expenses) == 0 {
		fmt.Println("  none")
	}
	for _, e := range g.Expenses {
		payer := e.PaidBy
		if m, ok := g.FindMember(e.PaidBy); ok {
			payer = m.Name
		}
		fmt.Printf("  %-20s %8.2f  paid by %-12s on %s  [%s]\n",
			e.Title, e.Amount, payer, time.UnixMilli(e.Date).Format("2006-01-02"), e.ID)
	}
	return subcommands.ExitSuccess
}

type renameCmd struct {
	group string
	name  string
}

func (*renameCmd) Name() string     { return "rename" }
func (*renameCmd) Synopsis() string { return "rename a group" }
func (*renameCmd) Usage() string {
	return "mysplit rename -group <group id> -name <new name>\n"
}

func (c *renameCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.group, "group", "", "Group id.")
	f.StringVar(&c.name, "name", "", "New group name.")
}

func (c *renameCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if c.group == "" || c.name == "" {
		fmt.Fprintln(os.Stderr, "Error: -group and -name are required.")
		return subcommands.ExitUsageError
	}

	a, err := openApp(ctx)
	if err != nil {
		return fail(err)
	}
	defer a.close(ctx)

	if err := a.session.RenameGroup(ctx, c.group, c.name); err != nil {
		return fail(err)
	}
	fmt.Println("Group renamed.")
	return subcommands.ExitSuccess
}

type setImageCmd struct {
	group string
	uri   string
}

func (*setImageCmd) Name() string     { return "set-image" }
func (*setImageCmd) Synopsis() string { return "set the group picture" }
func (*setImageCmd) Usage() string {
	return "mysplit set-image -group <group id> -uri <image data uri or url>\n"
}

func (c *setImageCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.group, "group", "", "Group id.")
	f.StringVar(&c.uri, "uri", "", "Image data URI or URL.")
}

func (c *setImageCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if c.group == "" || c.uri == "" {
		fmt.Fprintln(os.Stderr, "Error: -group and -uri are required.")
		return subcommands.ExitUsageError
	}

	a, err := openApp(ctx)
	if err != nil {
		return fail(err)
	}
	defer a.close(ctx)

	if err := a.session.UpdateGroupImage(ctx, c.group, c.uri); err != nil {
		return fail(err)
	}
	fmt.Println("Group image updated.")
	return subcommands.ExitSuccess
}

type deleteCmd struct {
	yes bool
}

func (*deleteCmd) Name() string     { return "delete" }
func (*deleteCmd) Synopsis() string { return "delete a group permanently" }
func (*deleteCmd) Usage() string {
	return `mysplit delete -yes <group id>

  Destroys the group locally and remotely. Not recoverable.
`
}

func (c *deleteCmd) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&c.yes, "yes", false, "Confirm the deletion.")
}

func (c *deleteCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "Error: a group id is required.")
		return subcommands.ExitUsageError
	}
	if !c.yes {
		fmt.Fprintln(os.Stderr, "Refusing to delete without -yes; deletion is not recoverable.")
		return subcommands.ExitUsageError
	}

	a, err := openApp(ctx)
	if err != nil {
		return fail(err)
	}
	defer a.close(ctx)

	if err := a.session.DeleteGroup(ctx, f.Arg(0)); err != nil {
		return fail(err)
	}
	fmt.Println("Group deleted.")
	return subcommands.ExitSuccess
}

type syncCmd struct{}

func (*syncCmd) Name() string     { return "sync" }
func (*syncCmd) Synopsis() string { return "push unsynced local edits now" }
func (*syncCmd) Usage() string    { return "mysplit sync\n" }

func (*syncCmd) SetFlags(_ *flag.FlagSet) {}

func (c *syncCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	a, err := openApp(ctx)
	if err != nil {
		return fail(err)
	}
	defer a.session.Close()
	defer a.local.Close()

	remaining := a.session.SyncNow(ctx)
	switch {
	case remaining < 0:
		return fail(fmt.Errorf("sync pass could not run"))
	case remaining == 0:
		fmt.Println("All groups in sync.")
	default:
		fmt.Printf("%d group(s) still dirty; will retry next time.\n", remaining)
	}
	return subcommands.ExitSuccess
}
