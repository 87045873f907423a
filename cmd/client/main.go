package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/chzyer/readline"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/clementraoulgithub/gui-tcp-server/internal/backend"
	"github.com/clementraoulgithub/gui-tcp-server/internal/client"
	"github.com/clementraoulgithub/gui-tcp-server/internal/config"
	"github.com/clementraoulgithub/gui-tcp-server/internal/domain"
	"github.com/clementraoulgithub/gui-tcp-server/internal/logging"
	"github.com/clementraoulgithub/gui-tcp-server/internal/ws"
)

type options struct {
	debug    bool
	pretty   bool
	register bool
	plain    bool
	user     string
	password string
}

func newClientCommand() *cobra.Command {
	var o options

	cmd := &cobra.Command{
		Use:     "zchat",
		Short:   "Console chat client for a zChat relay",
		Example: "ZCHAT_USERNAME=alice ZCHAT_PASSWORD=pw zchat --register",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), o, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}

	cmd.Flags().BoolVarP(&o.debug, "debug", "d", false, "Enable debug logging (overrides ZCHAT_DEBUG)")
	cmd.Flags().BoolVar(&o.pretty, "pretty", true, "Human readable log output")
	cmd.Flags().BoolVar(&o.register, "register", false, "Create the account before logging in")
	cmd.Flags().BoolVar(&o.plain, "plain", false, "Read input line by line without line editing")
	cmd.Flags().StringVarP(&o.user, "user", "u", "", "Username (overrides ZCHAT_USERNAME)")
	cmd.Flags().StringVarP(&o.password, "password", "p", "", "Password (overrides ZCHAT_PASSWORD)")

	return cmd
}

func run(ctx context.Context, o options, in io.Reader, out io.Writer) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if o.user != "" {
		cfg.Client.Username = o.user
	}
	if o.password != "" {
		cfg.Client.Password = o.password
	}
	if err := cfg.ValidateClient(); err != nil {
		return err
	}
	cc := cfg.Client
	if cc.Password == "" {
		return fmt.Errorf("ZCHAT_PASSWORD or --password is required")
	}

	logger := logging.New(os.Stderr, o.debug || cfg.Debug, o.pretty)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	api := backend.New(backend.Options{
		BaseURL: cc.ServerURL,
		RPS:     cc.BackendRPS,
		Burst:   5,
		Logger:  logger,
	})
	if o.register {
		_, err = api.Register(ctx, cc.Username, cc.Password)
	} else {
		_, err = api.Login(ctx, cc.Username, cc.Password)
	}
	if err != nil {
		return err
	}

	conn, err := ws.Dial(ctx, cc.WSURL, api.Token(), logger)
	if err != nil {
		return err
	}

	sess := client.New(client.Options{
		User:         cc.Username,
		Transport:    conn,
		Backend:      api,
		IdleDelay:    cc.IdleDelay,
		ReplyWelcome: cc.ReplyWelcome,
		MaxPending:   cc.MaxPendingMessages,
		Logger:       logger,
	})
	if err := sess.Start(ctx); err != nil {
		_ = conn.Close()
		return err
	}
	defer sess.Logout()

	con := newConsole(out)
	next := scanLines(in)
	if !o.plain && isTerminal(in) {
		rl, err := readline.NewEx(&readline.Config{
			Prompt:          cc.Username + "> ",
			HistoryFile:     filepath.Join(os.TempDir(), ".zchat_history"),
			HistoryLimit:    100,
			InterruptPrompt: "^C",
			EOFPrompt:       "/quit",
		})
		if err != nil {
			logger.Warn().Err(err).Msg("readline unavailable, using plain input")
		} else {
			defer rl.Close()
			con = newConsole(rl.Stdout())
			next = readlineLines(rl)
		}
	}
	con.printf("logged in as %s, /help for commands", cc.Username)

	r := &repl{sess: sess, api: api, con: con, current: domain.HomeRoom, page: cc.HistoryPage, log: logger}
	if _, err := sess.LoadOlder(ctx, 0, cc.HistoryPage, domain.HomeRoom); err != nil {
		logger.Warn().Err(err).Msg("initial history")
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer cancel()
		err := sess.Inbox().Run(ctx, con.handlers(func() { con.printf("* disconnected") }))
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	// The reader may stay blocked on input after shutdown; it is not part of
	// the group.
	lines := make(chan string)
	go func() {
		defer close(lines)
		for {
			line, err := next()
			if err != nil {
				return
			}
			select {
			case lines <- line:
			case <-ctx.Done():
				return
			}
		}
	}()

	g.Go(func() error {
		defer cancel()
		for {
			select {
			case <-ctx.Done():
				return nil
			case line, ok := <-lines:
				if !ok {
					return nil
				}
				if r.exec(ctx, line) {
					return nil
				}
			}
		}
	})

	g.Go(func() error {
		<-ctx.Done()
		sess.Logout()
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	if cause := sess.Cause(); cause != nil {
		return fmt.Errorf("connection lost: %w", cause)
	}
	return nil
}

// repl runs one input line at a time against the session.
type repl struct {
	sess    *client.Session
	api     *backend.Client
	con     *console
	current string
	page    int
	log     zerolog.Logger
}

// exec reports whether the user asked to quit.
func (r *repl) exec(ctx context.Context, line string) bool {
	if line == "" {
		return false
	}
	c, err := parseCommand(line)
	if err != nil {
		r.con.printf("! %v", err)
		return false
	}

	switch c.kind {
	case cmdSay:
		r.send(r.current, c.text, nil)
	case cmdTo:
		r.current = c.target
		r.con.printf("* now talking in %s", r.current)
	case cmdDM:
		r.send(c.target, c.text, nil)
	case cmdReply:
		id := c.id
		r.send(r.current, c.text, &id)
	case cmdReact:
		if err := r.sess.React(c.id, c.count, c.op); err != nil {
			r.con.printf("! %v", err)
		}
	case cmdOlder:
		start := r.sess.OldestID(r.current)
		msgs, err := r.sess.LoadOlder(ctx, start, r.page, r.current)
		if err != nil {
			r.con.printf("! %v", err)
			return false
		}
		if len(msgs) == 0 {
			r.con.printf("* no older messages")
		}
	case cmdRead:
		if r.current == domain.HomeRoom {
			return false
		}
		if err := r.sess.MarkRead(ctx, r.current); err != nil {
			r.con.printf("! %v", err)
		}
	case cmdWho:
		r.con.printf("* %d connection(s)", r.sess.ConnCount())
		for _, e := range r.sess.Presence() {
			r.con.printf("  %-16s %s%s", e.Username, e.Status, avatarNote(e))
		}
	case cmdThreads:
		for _, t := range r.sess.Threads() {
			marker := " "
			if t.Key == r.current {
				marker = ">"
			}
			r.con.printf("%s %-16s %d message(s), %d unread", marker, t.Key, len(t.Messages), t.Unread)
		}
	case cmdIcon:
		data, err := os.ReadFile(c.target)
		if err != nil {
			r.con.printf("! %v", err)
			return false
		}
		if err := r.api.SetUserIcon(ctx, r.sess.User(), data); err != nil {
			r.con.printf("! %v", err)
			return false
		}
		r.con.printf("* picture updated")
	case cmdAvatar:
		if err := r.sess.RefreshAvatar(ctx, c.target); err != nil {
			r.con.printf("! %v", err)
		}
	case cmdHelp:
		r.con.printf("%s", helpText)
	case cmdQuit:
		return true
	}
	return false
}

func (r *repl) send(to, text string, replyTo *int64) {
	if _, err := r.sess.Send(to, text, replyTo); err != nil {
		r.log.Debug().Err(err).Str("to", to).Msg("send failed")
		r.con.printf("! %v", err)
	}
}

// scanLines reads newline separated input. It returns io.EOF at the end.
func scanLines(in io.Reader) func() (string, error) {
	sc := bufio.NewScanner(in)
	return func() (string, error) {
		if sc.Scan() {
			return sc.Text(), nil
		}
		if err := sc.Err(); err != nil {
			return "", err
		}
		return "", io.EOF
	}
}

// readlineLines reads with line editing. Ctrl+C and Ctrl+D end the input.
func readlineLines(rl *readline.Instance) func() (string, error) {
	return func() (string, error) {
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			return "", io.EOF
		}
		return line, err
	}
}

func isTerminal(in io.Reader) bool {
	f, ok := in.(*os.File)
	return ok && f == os.Stdin && readline.DefaultIsTerminal()
}

func main() {
	if err := newClientCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
