package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/jmehdipour/clinic-crm/internal/auth"
	"github.com/jmehdipour/clinic-crm/internal/config"
	"github.com/jmehdipour/clinic-crm/internal/model"
	"github.com/jmehdipour/clinic-crm/internal/rowstore"
	"github.com/spf13/cobra"
)

// tabHeaders are the header rows written by seed. Unknown tabs get genericHeaders.
var tabHeaders = map[string]model.Row{
	model.TabCustomers: {"id", "name", "phone", "email", "createdAt", "image"},
	model.TabDentists:  {"id", "name", "position", "department", "createdAt", "image"},
	model.TabUsers:     {"id", "password", "name", "dataset", "image", "address", "role"},
}

var genericHeaders = model.Row{"id", "name", "detail", "note", "createdAt", "image"}

type seedOpts struct {
	Login    string
	Password string
	Name     string
	Dataset  string
	Role     string
}

var seedFlags seedOpts

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Write tab headers and a bootstrap admin into the row store",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		if cfg.Auth.UserDataset == "" {
			return errors.New("auth.user_dataset is required")
		}

		opts := seedFlags
		if opts.Password == "" {
			if opts.Password, err = readSecret(cmd.InOrStdin(), cmd.ErrOrStderr(), "admin password: "); err != nil {
				return err
			}
		}

		store, closeStore, err := openStore(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer closeStore()

		return seed(cmd.Context(), store, cfg, opts, cmd.OutOrStdout())
	},
}

func init() {
	f := seedCmd.Flags()
	f.StringVar(&seedFlags.Login, "login", "admin", "admin login")
	f.StringVar(&seedFlags.Password, "password", "", "admin password (prompted when empty)")
	f.StringVar(&seedFlags.Name, "name", "Administrator", "admin display name")
	f.StringVar(&seedFlags.Dataset, "dataset", "", "dataset the admin works in")
	f.StringVar(&seedFlags.Role, "role", "admin", "admin role")
	_ = seedCmd.MarkFlagRequired("dataset")
}

// seed is idempotent: headers are overwritten and an existing admin row is kept.
func seed(ctx context.Context, store rowstore.Store, cfg config.Config, opts seedOpts, out io.Writer) error {
	hw, ok := store.(rowstore.HeaderWriter)
	if !ok {
		return fmt.Errorf("store driver %q cannot write headers; create the tabs by hand", cfg.Store.Driver)
	}

	for _, tab := range cfg.Data.Tabs {
		headers, ok := tabHeaders[tab]
		if !ok {
			headers = genericHeaders
		}
		if err := hw.SetHeaders(ctx, opts.Dataset, tab, headers); err != nil {
			return fmt.Errorf("headers %s/%s: %w", opts.Dataset, tab, err)
		}
	}
	if err := hw.SetHeaders(ctx, cfg.Auth.UserDataset, cfg.Auth.UsersTab, tabHeaders[model.TabUsers]); err != nil {
		return fmt.Errorf("headers %s/%s: %w", cfg.Auth.UserDataset, cfg.Auth.UsersTab, err)
	}
	fmt.Fprintf(out, ">> Headers written for %d tabs\n", len(cfg.Data.Tabs)+1)

	hash, err := auth.HashPassword(opts.Password)
	if err != nil {
		return err
	}
	admin := model.UserRecord{
		ID:           opts.Login,
		PasswordHash: hash,
		Name:         opts.Name,
		Dataset:      opts.Dataset,
		Role:         opts.Role,
	}

	err = addUser(ctx, store, cfg.Auth.UserDataset, cfg.Auth.UsersTab, admin.Row())
	switch {
	case errors.Is(err, rowstore.ErrDuplicateID):
		fmt.Fprintf(out, ">> User %q already exists, left unchanged\n", opts.Login)
	case err != nil:
		return fmt.Errorf("add user %q: %w", opts.Login, err)
	default:
		fmt.Fprintf(out, ">> User %q created\n", opts.Login)
	}
	return nil
}

// addUser appends row unless its login is taken. Backends without a unique
// append get a read-then-append, which is enough for a one-off bootstrap.
func addUser(ctx context.Context, store rowstore.Store, dataset, tab string, row model.Row) error {
	if ua, ok := store.(rowstore.UniqueAppender); ok {
		return ua.AppendUnique(ctx, dataset, tab, row)
	}
	rows, err := store.FetchRows(ctx, dataset, tab)
	if err != nil {
		return err
	}
	for _, r := range rows {
		if model.SameID(r.ID(), row.ID()) {
			return rowstore.ErrDuplicateID
		}
	}
	return store.AppendRow(ctx, dataset, tab, row)
}
