package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/LucasAro/JuscashCase/client"
)

const (
	defaultAPI   = "http://localhost:8080"
	defaultWidth = 160
)

// app holds the wiring shared by every boardctl command.
type app struct {
	apiURL      string
	sessionPath string
	debug       bool

	client  *client.Client
	session *client.Session
	logger  *log.Logger
	now     func() time.Time
}

func defaultSessionPath() string {
	if p := os.Getenv("BOARDCTL_SESSION"); p != "" {
		return p
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		return ".boardctl-session.json"
	}
	return filepath.Join(dir, "boardctl", "session.json")
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// setup builds the client and restores the persisted session.
func (a *app) setup(cmd *cobra.Command) error {
	a.logger = log.New()
	a.logger.SetOutput(cmd.ErrOrStderr())
	a.logger.SetLevel(log.WarnLevel)
	if a.debug {
		a.logger.SetLevel(log.DebugLevel)
	}
	if a.now == nil {
		a.now = time.Now
	}
	a.client = client.New(a.apiURL, nil)
	a.session = client.NewSession(a.client, a.sessionPath)
	errOut := cmd.ErrOrStderr()
	a.session.OnReject(func(error) {
		fmt.Fprintln(errOut, "Sessão expirada. Faça login novamente com `boardctl login`.")
	})
	return a.session.Load()
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "boardctl",
		Short:         "Kanban board of legal publications",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
	}
	root.PersistentFlags().StringVar(&a.apiURL, "api", envOr("BOARDCTL_API", defaultAPI), "publications API base URL")
	root.PersistentFlags().StringVar(&a.sessionPath, "session", defaultSessionPath(), "session file")
	root.PersistentFlags().BoolVar(&a.debug, "debug", false, "verbose logging")

	root.AddCommand(
		newRegisterCmd(a),
		newLoginCmd(a),
		newLogoutCmd(a),
		newBoardCmd(a),
		newMoveCmd(a),
		newShowCmd(a),
	)
	return root
}

func execute(ctx context.Context, a *app, args []string, out, errOut io.Writer) error {
	root := newRootCmd(a)
	root.SetArgs(args)
	root.SetOut(out)
	root.SetErr(errOut)
	return root.ExecuteContext(ctx)
}

func main() {
	if err := execute(context.Background(), &app{}, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "Erro: %v\n", err)
		os.Exit(1)
	}
}
