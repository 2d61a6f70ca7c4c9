package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/LucasAro/JuscashCase/board"
	"github.com/LucasAro/JuscashCase/client"
	"github.com/LucasAro/JuscashCase/domain"
	"github.com/LucasAro/JuscashCase/render"
)

func passwordFlag(cmd *cobra.Command, p *string) {
	cmd.Flags().StringVar(p, "password", "", "password (or BOARDCTL_PASSWORD)")
}

func resolvePassword(p string) (string, error) {
	if p == "" {
		p = os.Getenv("BOARDCTL_PASSWORD")
	}
	if p == "" {
		return "", errors.New("password is required")
	}
	return p, nil
}

func newRegisterCmd(a *app) *cobra.Command {
	var name, email, password string
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create an account",
		RunE: func(cmd *cobra.Command, args []string) error {
			pw, err := resolvePassword(password)
			if err != nil {
				return err
			}
			u, err := a.client.Register(cmd.Context(), name, email, pw)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Conta criada para %s (%s)\n", u.Name, u.Email)
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "full name")
	cmd.Flags().StringVar(&email, "email", "", "email address")
	passwordFlag(cmd, &password)
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func newLoginCmd(a *app) *cobra.Command {
	var email, password string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in and keep the session",
		RunE: func(cmd *cobra.Command, args []string) error {
			pw, err := resolvePassword(password)
			if err != nil {
				return err
			}
			u, err := a.session.Login(cmd.Context(), email, pw)
			if errors.Is(err, client.ErrUnauthorized) {
				return errors.New("email ou senha inválidos")
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Bem-vindo, %s\n", u.Name)
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "email address")
	passwordFlag(cmd, &password)
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func newLogoutCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Revoke the session",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.session.Logout(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Sessão encerrada")
			return nil
		},
	}
}

func parseDateFlag(raw string) (*domain.Date, error) {
	if raw == "" {
		return nil, nil
	}
	d, err := domain.ParseDate(raw)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (a *app) newBoard(pageSize int) *board.Board {
	return board.New(client.NewStore(a.client, a.session), board.Options{
		PageSize: pageSize,
		Logger:   a.logger,
	})
}

func newBoardCmd(a *app) *cobra.Command {
	var search, from, to string
	var pages, pageSize, width int
	cmd := &cobra.Command{
		Use:   "board",
		Short: "Show the board",
		RunE: func(cmd *cobra.Command, args []string) error {
			dateFrom, err := parseDateFlag(from)
			if err != nil {
				return err
			}
			dateTo, err := parseDateFlag(to)
			if err != nil {
				return err
			}
			if pages < 1 {
				pages = 1
			}

			b := a.newBoard(pageSize)
			defer b.Close()
			filters := board.NewFilterController(b, 0, nil)
			defer filters.Close()
			filters.SetFilter(domain.Filter{Search: search, DateFrom: dateFrom, DateTo: dateTo})

			ctx := cmd.Context()
			if err := filters.Submit(ctx); err != nil {
				return err
			}
			for i := 1; i < pages && b.Snapshot().HasMore(); i++ {
				if err := b.SentinelVisible(ctx); err != nil {
					return err
				}
			}
			fmt.Fprintln(cmd.OutOrStdout(), render.Board(b.Snapshot(), width, a.now()))
			return nil
		},
	}
	cmd.Flags().StringVar(&search, "search", "", "case number or party name")
	cmd.Flags().StringVar(&from, "from", "", "publication date from (YYYY-MM-DD)")
	cmd.Flags().StringVar(&to, "to", "", "publication date to (YYYY-MM-DD)")
	cmd.Flags().IntVar(&pages, "pages", 1, "pages to load per column")
	cmd.Flags().IntVar(&pageSize, "page-size", board.DefaultPageSize, "records per column and page")
	cmd.Flags().IntVar(&width, "width", defaultWidth, "terminal width")
	return cmd
}

func parseIDArg(raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", raw)
	}
	return id, nil
}

func newMoveCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "move <id> <status>",
		Short: "Move a publication to another column",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseIDArg(args[0])
			if err != nil {
				return err
			}
			to, err := domain.ParseStatus(args[1])
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			store := client.NewStore(a.client, a.session)
			p, err := store.FetchByID(ctx, id)
			if err != nil {
				return err
			}

			b := a.newBoard(board.DefaultPageSize)
			defer b.Close()
			if err := b.ResetAndLoad(ctx, domain.Filter{Search: p.CaseNumber}); err != nil {
				return err
			}
			m, err := b.Move(ctx, board.MoveRequest{ItemID: id, From: p.Status, To: to})
			if err != nil {
				if notice := b.Notice(); notice != "" {
					return errors.New(notice)
				}
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "#%d %s: %s → %s\n",
				m.Record.ID, m.Record.CaseNumber, render.ColumnTitle(p.Status), render.ColumnTitle(m.Record.Status))
			return nil
		},
	}
}

func newShowCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show the full card of a publication",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseIDArg(args[0])
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			store := client.NewStore(a.client, a.session)
			p, err := store.FetchByID(ctx, id)
			if err != nil {
				return err
			}
			history, err := store.History(ctx, id)
			if errors.Is(err, client.ErrUnauthorized) {
				return err
			}
			if err != nil {
				a.logger.WithError(err).Debug("status history unavailable")
				history = nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), render.Detail(p, history))
			return nil
		},
	}
}
