package cmd

import (
	"context"
	"errors"
	"io"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	internal "github.com/ZanzyTHEbar/sports-data-agent/sda"
	"github.com/ZanzyTHEbar/sports-data-agent/sda/auth"
	"github.com/ZanzyTHEbar/sports-data-agent/sda/chat"
	"github.com/ZanzyTHEbar/sports-data-agent/sda/db"
	"github.com/ZanzyTHEbar/sports-data-agent/sda/harness"
	"github.com/ZanzyTHEbar/sports-data-agent/sda/harness/adapters"
	ports "github.com/ZanzyTHEbar/sports-data-agent/sda/harness/ports"
	"github.com/ZanzyTHEbar/sports-data-agent/sda/thread"
	"github.com/ZanzyTHEbar/sports-data-agent/sda/ui"
)

var (
	threadID    string
	hideTools   bool
	loginUser   string
	askQuestion string
)

var _ chat.Display = (*ui.Terminal)(nil)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Log in and chat with the agent about the loaded tables",
	RunE:  runChat,
}

func init() {
	chatCmd.Flags().StringVarP(&threadID, "thread", "t", internal.DefaultThreadID, "conversation thread to use")
	chatCmd.Flags().BoolVar(&hideTools, "hide-thoughts", false, "hide tool calls and tool outputs")
	chatCmd.Flags().StringVarP(&loginUser, "user", "u", "", "username to log in as")
	chatCmd.Flags().StringVarP(&askQuestion, "ask", "a", "", "ask a single question and exit")
	rootCmd.AddCommand(chatCmd)
}

func runChat(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	display, err := ui.NewTerminal(os.Stdout, ui.Options{
		ShowThoughtProcess: cfg.UI.ShowThoughtProcess && !hideTools,
		WordWrap:           cfg.UI.WordWrap,
		Styled:             stdoutIsTerminal(),
	})
	if err != nil {
		return err
	}

	creds, err := auth.LoadCredentials(cfg.Auth.CredentialsFile)
	if err != nil {
		return err
	}
	gate := auth.NewFileAuthenticator(creds, cfg.Auth.MaxAttempts, logger)
	if err := login(ctx, gate); err != nil {
		return err
	}

	conn, reg, err := loadCatalog(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()
	if cfg.Data.Watch {
		go func() {
			if err := reg.Watch(ctx, cfg.Data.WatchDebounce); err != nil {
				logger.Error().Err(err).Msg("catalog watch stopped")
			}
		}()
	}

	factory := harness.NewFactory(cfg, logger)
	provider, err := factory.CreateProvider()
	if err != nil {
		return err
	}
	store := thread.NewStore()
	agent, err := factory.CreateOrchestrator(provider, store, reg)
	if err != nil {
		return err
	}

	var checkpoints ports.CheckpointStore
	if cfg.Checkpoint.Enabled {
		cpConn, err := db.Open(ctx, dbOptions(cfg.CheckpointDSN()), logger)
		if err != nil {
			return err
		}
		defer cpConn.Close()
		cp, err := adapters.NewSQLCheckpointStore(ctx, cpConn)
		if err != nil {
			return err
		}
		checkpoints = cp
	}

	svc := chat.NewService(chat.Config{
		Agent:       agent,
		Store:       store,
		Gate:        gate,
		Display:     display,
		Checkpoints: checkpoints,
		Logger:      logger,
	})

	if askQuestion != "" {
		_, err := svc.Send(ctx, threadID, askQuestion)
		return err
	}

	id, _ := gate.Identity()
	display.Welcome(id.Name)
	display.Tables(reg.ListTables())
	if _, err := svc.Replay(ctx, threadID); err != nil {
		return err
	}
	pterm.Info.Println("Ask a question about sports data. Type /help for commands.")

	for {
		line, err := readLine("> ")
		if errors.Is(err, io.EOF) || ctx.Err() != nil {
			return nil
		}
		if err != nil {
			return err
		}
		line = strings.TrimSpace(line)

		switch line {
		case "":
			continue
		case "/exit", "/quit":
			return nil
		case "/help":
			pterm.Println("/thoughts  toggle tool calls and outputs\n/tables    list the loaded tables\n/new       start a new thread\n/logout    log out and exit\n/exit      quit")
			continue
		case "/thoughts":
			display.SetShowThoughtProcess(!display.ShowThoughtProcess())
			continue
		case "/tables":
			display.Tables(reg.ListTables())
			continue
		case "/new":
			threadID = "thread-" + uuid.NewString()
			pterm.Info.Println("Started " + threadID)
			continue
		case "/logout":
			gate.Logout()
			return nil
		}

		if _, err := svc.Send(ctx, threadID, line); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			// already shown; the thread stays usable
			logger.Debug().Err(err).Msg("turn failed")
		}
	}
}

// login prompts until the gate accepts or locks the user out.
func login(ctx context.Context, gate *auth.FileAuthenticator) error {
	user := loginUser
	for gate.Status() != auth.StatusSuccess {
		if user == "" {
			var err error
			if user, err = readLine("Username: "); err != nil {
				return err
			}
		}
		pw, err := readPassword("Password: ")
		if err != nil {
			return err
		}

		res := gate.Login(ctx, user, pw)
		switch {
		case ctx.Err() != nil:
			return ctx.Err()
		case errors.Is(res.Err, auth.ErrLockedOut):
			return res.Err
		case res.Err != nil:
			pterm.Error.Println("Username/password is incorrect")
			user = loginUser
		}
	}
	return nil
}
