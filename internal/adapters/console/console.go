// Package console is the softphone's line-oriented presentation layer. It
// owns no call state: it reads snapshots and forwards commands.
package console

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/dkeye/LiveCall/internal/app/call"
	"github.com/dkeye/LiveCall/internal/domain"
	"github.com/rs/zerolog/log"
)

const noticeBuffer = 32

// ErrQuit is returned by Run when the user types quit.
var ErrQuit = errors.New("quit")

type Phone interface {
	Invite(ctx context.Context, id domain.UserID, autoRecord bool) error
	Accept(ctx context.Context, autoRecord bool) error
	Reject(ctx context.Context) error
	End(ctx context.Context) error
	ToggleMute(ctx context.Context) (bool, error)
	StartRecording(ctx context.Context) error
	StopRecording(ctx context.Context) error
	Snapshot() domain.CallSession
}

type Roster interface {
	Self() domain.User
	Snapshot() []domain.User
}

type Console struct {
	phone  Phone
	roster Roster
	in     io.Reader
	dir    string

	mu  sync.Mutex
	out io.Writer

	notices chan call.Notice
}

// New builds a console. Finished recordings are written to dir.
func New(phone Phone, roster Roster, in io.Reader, out io.Writer, dir string) *Console {
	return &Console{
		phone:   phone,
		roster:  roster,
		in:      in,
		out:     out,
		dir:     dir,
		notices: make(chan call.Notice, noticeBuffer),
	}
}

// Notify is the machine's notice callback. It never blocks.
func (c *Console) Notify(n call.Notice) {
	select {
	case c.notices <- n:
	default:
		log.Warn().Str("module", "console").Str("kind", n.Kind.String()).Msg("notice dropped")
	}
}

// Run reads commands until ctx is done, input ends or the user quits.
func (c *Console) Run(ctx context.Context) error {
	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(c.in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	c.printf("logged in as %s (%s), type help for commands\n", c.roster.Self().Name, c.roster.Self().UserID)
	for {
		select {
		case <-ctx.Done():
			return nil
		case n := <-c.notices:
			c.show(n)
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if err := c.Exec(ctx, line); err != nil {
				if errors.Is(err, ErrQuit) {
					return ErrQuit
				}
				c.printf("error: %v\n", err)
			}
		}
	}
}

// Exec runs one command line.
func (c *Console) Exec(ctx context.Context, line string) error {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil
	}
	cmd, args := fields[0], fields[1:]
	autoRecord := len(args) > 0 && args[len(args)-1] == "+rec"
	if autoRecord {
		args = args[:len(args)-1]
	}

	switch cmd {
	case "users", "ls":
		c.listUsers()
		return nil
	case "call":
		if len(args) != 1 {
			return errors.New("usage: call <number|name|id> [+rec]")
		}
		u, err := c.pick(args[0])
		if err != nil {
			return err
		}
		c.printf("calling %s...\n", u.Name)
		return c.phone.Invite(ctx, u.UserID, autoRecord)
	case "accept":
		return c.phone.Accept(ctx, autoRecord)
	case "reject":
		return c.phone.Reject(ctx)
	case "end", "hangup":
		return c.phone.End(ctx)
	case "mute":
		muted, err := c.phone.ToggleMute(ctx)
		if err != nil {
			return err
		}
		if muted {
			c.printf("microphone muted\n")
		} else {
			c.printf("microphone live\n")
		}
		return nil
	case "rec":
		if len(args) != 1 {
			return errors.New("usage: rec start|stop")
		}
		switch args[0] {
		case "start":
			if err := c.phone.StartRecording(ctx); err != nil {
				return err
			}
			c.printf("recording\n")
			return nil
		case "stop":
			return c.phone.StopRecording(ctx)
		}
		return errors.New("usage: rec start|stop")
	case "status":
		c.status()
		return nil
	case "help", "?":
		c.help()
		return nil
	case "quit", "exit":
		return ErrQuit
	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func (c *Console) pick(arg string) (domain.User, error) {
	users := c.roster.Snapshot()
	if i, err := strconv.Atoi(arg); err == nil && i >= 1 && i <= len(users) {
		return users[i-1], nil
	}
	for _, u := range users {
		if string(u.UserID) == arg || strings.EqualFold(u.Name, arg) {
			return u, nil
		}
	}
	return domain.User{}, fmt.Errorf("%q is not online", arg)
}

func (c *Console) listUsers() {
	users := c.roster.Snapshot()
	if len(users) == 0 {
		c.printf("nobody else is online\n")
		return
	}
	for i, u := range users {
		c.printf("%2d. %s (%s)\n", i+1, u.Name, u.UserID)
	}
}

func (c *Console) status() {
	s := c.phone.Snapshot()
	if s.Idle() {
		c.printf("idle\n")
		return
	}
	line := fmt.Sprintf("%s call with %s: %s", s.Direction, s.Partner.Name, s.State)
	if s.State == domain.CallActive {
		line += " " + domain.FormatDuration(s.ElapsedSeconds)
	}
	if s.Muted {
		line += " [muted]"
	}
	if s.Recording {
		line += " [rec]"
	}
	c.printf("%s\n", line)
}

func (c *Console) help() {
	c.printf(`commands:
  users                      list online users
  call <n|name|id> [+rec]    call a user, +rec records automatically
  accept [+rec]              answer the incoming call
  reject                     decline the incoming call
  end                        hang up or cancel
  mute                       toggle the microphone
  rec start|stop             record the local audio
  status                     show the current call
  quit
`)
}

func (c *Console) show(n call.Notice) {
	who := n.Partner.Name
	switch n.Kind {
	case call.NoticeIncomingCall:
		c.printf("incoming call from %s (%s), accept or reject?\n", who, n.Partner.UserID)
	case call.NoticeActive:
		c.printf("connected with %s\n", who)
	case call.NoticeRejected:
		if n.Err != nil {
			c.printf("%s is busy\n", who)
		} else {
			c.printf("%s declined the call\n", who)
		}
	case call.NoticeBusyRejected:
		c.printf("missed call from %s while busy\n", who)
	case call.NoticeEnded:
		c.printf("call with %s ended (%s)\n", who, endReason(n))
	case call.NoticeTimedOut:
		c.printf("no answer from %s\n", who)
	case call.NoticeFailed:
		c.printf("call with %s failed: %v\n", who, n.Err)
	case call.NoticeRecordingReady:
		c.save(n)
	}
}

func endReason(n call.Notice) string {
	if n.Err != nil {
		return n.Err.Error()
	}
	if n.Reason == "" {
		return "ended"
	}
	return n.Reason
}

func (c *Console) save(n call.Notice) {
	a := n.Artifact
	if a == nil {
		return
	}
	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		c.printf("could not save recording: %v\n", err)
		return
	}
	path := filepath.Join(c.dir, a.Name)
	if err := os.WriteFile(path, a.Data, 0o644); err != nil {
		c.printf("could not save recording: %v\n", err)
		return
	}
	log.Info().Str("module", "console").Str("file", path).Int("chunks", len(a.Chunks)).Msg("recording saved")
	c.printf("recording saved to %s (%s, %d bytes)\n", path, a.MimeType, len(a.Data))
}

func (c *Console) printf(format string, args ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.out, format, args...)
}
