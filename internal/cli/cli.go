// Package cli implements the mysplit command line application: a thin
// shell over a Session, one subcommand per user action.
package cli

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/google/subcommands"

	"github.com/mabesi/mysplit/internal/config"
	"github.com/mabesi/mysplit/internal/models"
	"github.com/mabesi/mysplit/internal/session"
	"github.com/mabesi/mysplit/internal/storage"
	"github.com/mabesi/mysplit/internal/storage/httprpc"
	"github.com/mabesi/mysplit/internal/storage/memory"
	"github.com/mabesi/mysplit/internal/storage/sqlite"
)

// Register the subcommands. A main package calls Register, then Execute on
// the user-selected one.
func Register(c *subcommands.Commander) {
	c.Register(&createCmd{}, "groups")
	c.Register(&joinCmd{}, "groups")
	c.Register(&groupsCmd{}, "groups")
	c.Register(&showCmd{}, "groups")
	c.Register(&renameCmd{}, "groups")
	c.Register(&setImageCmd{}, "groups")
	c.Register(&deleteCmd{}, "groups")

	c.Register(&addMemberCmd{}, "members")
	c.Register(&removeMemberCmd{}, "members")
	c.Register(&approveCmd{}, "members")
	c.Register(&rejectCmd{}, "members")

	c.Register(&addExpenseCmd{}, "expenses")
	c.Register(&deleteExpenseCmd{}, "expenses")
	c.Register(&settleCmd{}, "expenses")

	c.Register(&syncCmd{}, "sync")
}

// app bundles what every command needs.
type app struct {
	cfg     config.Config
	local   storage.Local
	session *session.Session
}

// openApp builds a session from the environment configuration.
func openApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	local, err := sqlite.New(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open local store: %w", err)
	}

	var remote storage.Remote
	switch cfg.Backend {
	case config.BackendMemory:
		remote = memory.New()
	default:
		remote = httprpc.New(cfg.RemoteURL, cfg.PollInterval)
	}

	s, err := session.New(ctx, local, remote, session.Options{Debounce: cfg.Debounce})
	if err != nil {
		local.Close()
		return nil, err
	}
	return &app{cfg: cfg, local: local, session: s}, nil
}

// close syncs outstanding local edits and releases everything. The CLI is
// short-lived, so the debounced background pass rarely gets a chance to
// fire; a final synchronous pass stands in for it. Groups that stay dirty
// simply wait for the next invocation.
func (a *app) close(ctx context.Context) {
	if remaining := a.session.SyncNow(ctx); remaining > 0 {
		fmt.Fprintf(os.Stderr, "%d group(s) not synced yet; run 'mysplit sync' when online\n", remaining)
	}
	a.session.Close()
	a.local.Close()
}

// fail prints an error and returns the failure exit status.
func fail(err error) subcommands.ExitStatus {
	fmt.Fprintln(os.Stderr, "Error:", err)
	return subcommands.ExitFailure
}

// resolveMember accepts a member id or a display name.
func resolveMember(g *models.Group, ref string) (models.Member, error) {
	if m, ok := g.FindMember(ref); ok {
		return m, nil
	}
	for _, m := range g.Members {
		if m.SameName(ref) {
			return m, nil
		}
	}
	return models.Member{}, fmt.Errorf("no member %q in group %s", ref, g.ID)
}

func resolveMembers(g *models.Group, csv string) ([]string, error) {
	var ids []string
	for _, ref := range strings.Split(csv, ",") {
		ref = strings.TrimSpace(ref)
		if ref == "" {
			continue
		}
		m, err := resolveMember(g, ref)
		if err != nil {
			return nil, err
		}
		ids = append(ids, m.ID)
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("no split members given")
	}
	return ids, nil
}
