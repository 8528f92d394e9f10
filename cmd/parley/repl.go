package main

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/parley-ai/parley/pkg/config"
	"github.com/parley-ai/parley/pkg/history"
	"github.com/parley-ai/parley/pkg/session"
	"github.com/parley-ai/parley/pkg/types"
)

// repl is the interactive chat loop. Plain lines become turns; lines starting
// with "/" are commands.
type repl struct {
	mgr       *session.Manager
	sess      *session.ChatSession
	store     history.Store
	providers *config.ProvidersSection
	allowlist *config.ModelAllowlistSection
	out       io.Writer
}

func (r *repl) loop(in io.Reader) error {
	meta := r.sess.Meta()
	fmt.Fprintf(r.out, "parley — %s/%s, thread %s\n", meta.Provider, meta.ModelID, r.sess.ThreadID)
	fmt.Fprintln(r.out, "type a message, or /help for commands")

	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for {
		fmt.Fprint(r.out, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(r.out)
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "/") {
			quit, err := r.command(line)
			if err != nil {
				fmt.Fprintf(r.out, "error: %v\n", err)
			}
			if quit {
				return nil
			}
			continue
		}

		if err := r.sendAndStream(line); err != nil {
			fmt.Fprintf(r.out, "error: %v\n", err)
		}
	}
}

// sendAndStream sends one user turn and prints the stream until it ends.
func (r *repl) sendAndStream(text string) error {
	events, detach := r.sess.Subscribe()
	defer detach()

	if err := r.sess.SendTurn(types.NewUserMessage(text)); err != nil {
		return err
	}

	for ev := range events {
		switch ev.Type {
		case types.EventContent:
			fmt.Fprint(r.out, ev.Delta)
		case types.EventFunctionCall:
			for _, c := range ev.Calls {
				fmt.Fprintf(r.out, "\n[tool call %s(%s)]\n", c.Name, c.ArgumentsJSON)
			}
		case types.EventUsage:
			// Printed with the summary line below.
		case types.EventError:
			fmt.Fprintf(r.out, "\n[stream ended: %s]\n", ev.Message)
			return nil
		case types.EventDone:
			fmt.Fprintln(r.out)
			return nil
		}
	}
	return nil
}

func (r *repl) command(line string) (quit bool, err error) {
	fields := strings.Fields(line)
	cmd, args := fields[0], fields[1:]

	switch cmd {
	case "/quit", "/exit":
		return true, nil

	case "/help":
		fmt.Fprintln(r.out, "/provider <name> [model], /provider! <name> [model], /model <id>,")
		fmt.Fprintln(r.out, "/fork <turn> [label], /threads, /rename <label>, /cancel, /status, /quit")
		return false, nil

	case "/provider", "/provider!":
		if len(args) < 1 {
			return false, fmt.Errorf("usage: %s <name> [model]", cmd)
		}
		model := ""
		if len(args) > 1 {
			model = args[1]
		}
		mode := session.Deferred
		if cmd == "/provider!" {
			mode = session.Immediate
		}
		return false, r.switchProvider(args[0], model, mode)

	case "/model":
		if len(args) != 1 {
			return false, fmt.Errorf("usage: /model <id>")
		}
		return false, r.switchProvider(string(r.sess.Meta().Provider), args[0], session.Deferred)

	case "/fork":
		if len(args) < 1 {
			return false, fmt.Errorf("usage: /fork <turn> [label]")
		}
		at, err := strconv.Atoi(args[0])
		if err != nil {
			return false, fmt.Errorf("invalid turn index %q", args[0])
		}
		label := strings.Join(args[1:], " ")
		return false, r.fork(at, label)

	case "/threads":
		return false, r.listThreads()

	case "/rename":
		if len(args) < 1 {
			return false, fmt.Errorf("usage: /rename <label>")
		}
		return false, r.store.Rename(r.sess.ThreadID, strings.Join(args, " "))

	case "/cancel":
		r.sess.Cancel()
		return false, nil

	case "/status":
		meta := r.sess.Meta()
		fmt.Fprintf(r.out, "%s/%s — thread %s — %s\n", meta.Provider, meta.ModelID, r.sess.ThreadID, r.sess.Status())
		if last := r.sess.LastError(); last != "" {
			fmt.Fprintf(r.out, "last error: %s\n", last)
		}
		return false, nil

	default:
		return false, fmt.Errorf("unknown command %s", cmd)
	}
}

func (r *repl) switchProvider(name, model string, mode session.ReconfigureMode) error {
	provider, err := types.ParseProvider(name)
	if err != nil {
		return err
	}
	meta, err := r.providers.Meta(provider, model)
	if err != nil {
		return err
	}
	if !r.allowlist.Allowed(string(meta.Provider), meta.ModelID) {
		return fmt.Errorf("model %s/%s is not in the allowlist", meta.Provider, meta.ModelID)
	}
	if err := r.sess.Reconfigure(meta, mode); err != nil {
		return err
	}
	when := "from the next turn"
	if mode == session.Immediate {
		when = "now"
	}
	fmt.Fprintf(r.out, "switched to %s/%s (%s)\n", meta.Provider, meta.ModelID, when)
	return nil
}

// fork branches the current thread and moves the repl onto the fork.
func (r *repl) fork(at int, label string) error {
	info, err := r.store.Fork(r.sess.ThreadID, at, label)
	if err != nil {
		return err
	}

	meta := r.sess.Meta()
	sess, err := r.mgr.Open(info.ID, meta)
	if err != nil {
		return err
	}
	old := r.sess
	r.sess = sess
	_ = r.mgr.Close(old.ID)

	fmt.Fprintf(r.out, "forked at turn %d → thread %s\n", at, info.ID)
	return nil
}

func (r *repl) listThreads() error {
	infos, err := r.store.ListThreads()
	if err != nil {
		return err
	}
	for _, info := range infos {
		marker := " "
		if info.ID == r.sess.ThreadID {
			marker = "*"
		}
		label := info.Label
		if label == "" {
			label = "(unlabelled)"
		}
		fmt.Fprintf(r.out, "%s %s  %-24s %d turns  %s\n",
			marker, info.ID, label, info.TurnCount, info.CreatedAt.Format(time.DateTime))
	}
	return nil
}
