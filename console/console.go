// Package console is a line-oriented front end for a session controller.
// Each input line is one operator action; the log entries it produced are
// echoed back.
package console

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	coremqtt "github.com/kilianp07/motorctl/core/mqtt"
	"github.com/kilianp07/motorctl/core/motor"
	"github.com/kilianp07/motorctl/core/session"
)

// Controller is the subset of session.Controller driven by the console.
type Controller interface {
	SelectMotor(id motor.ID) error
	StartMotor(dir motor.Direction) error
	StopMotor() time.Duration
	SelectedMotor() motor.ID
	Motors() int
	Status() coremqtt.Status
	Phase() session.Phase
	Log() *session.EventLog
}

const help = `commands:
  select N | N     select motor N
  forward | f      start the selected motor forward
  backward | b     start the selected motor backward
  stop | s         stop the selected motor
  status           show link status, selected motor and phase
  log              print the whole event log
  help             show this help
  quit             end the session`

var errQuit = errors.New("quit")

// Console reads commands from in and writes feedback to out.
type Console struct {
	ctrl    Controller
	out     io.Writer
	printed int
}

// New returns a Console for ctrl writing to out.
func New(ctrl Controller, out io.Writer) *Console {
	return &Console{ctrl: ctrl, out: out}
}

// Run processes lines from in until EOF, "quit" or ctx is done.
func (c *Console) Run(ctx context.Context, in io.Reader) error {
	lines := make(chan string)
	scanErr := make(chan error, 1)
	done := make(chan struct{})
	defer close(done)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			case <-done:
				return
			}
		}
		scanErr <- sc.Err()
	}()

	c.printf("motorctl: %d motors, motor %d selected, broker %s. Type help.\n",
		c.ctrl.Motors(), c.ctrl.SelectedMotor(), c.ctrl.Status())
	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				select {
				case err := <-scanErr:
					return err
				default:
					return nil
				}
			}
			if err := c.Execute(line); err != nil {
				if errors.Is(err, errQuit) {
					return nil
				}
				c.printf("error: %v\n", err)
			}
			c.flush()
		}
	}
}

// Execute runs a single command line.
func (c *Console) Execute(line string) error {
	fields := strings.Fields(strings.ToLower(line))
	if len(fields) == 0 {
		return nil
	}
	switch fields[0] {
	case "select", "sel", "m":
		if len(fields) != 2 {
			return fmt.Errorf("usage: select N")
		}
		return c.selectMotor(fields[1])
	case "forward", "f":
		return c.ctrl.StartMotor(motor.Forward)
	case "backward", "b":
		return c.ctrl.StartMotor(motor.Backward)
	case "stop", "s":
		c.ctrl.StopMotor()
		return nil
	case "status":
		c.printf("broker %s, motor %d selected, %s\n", c.ctrl.Status(), c.ctrl.SelectedMotor(), c.ctrl.Phase())
		return nil
	case "log":
		entries := c.ctrl.Log().Entries()
		for _, e := range entries {
			c.printf("  %s\n", e)
		}
		c.printed = len(entries)
		return nil
	case "help", "?":
		c.printf("%s\n", help)
		return nil
	case "quit", "exit", "q":
		return errQuit
	}
	if len(fields) == 1 {
		if _, err := strconv.Atoi(fields[0]); err == nil {
			return c.selectMotor(fields[0])
		}
	}
	return fmt.Errorf("unknown command %q, type help", line)
}

func (c *Console) selectMotor(arg string) error {
	n, err := strconv.Atoi(arg)
	if err != nil {
		return fmt.Errorf("%w: %q", motor.ErrInvalidMotor, arg)
	}
	return c.ctrl.SelectMotor(motor.ID(n))
}

func (c *Console) flush() {
	entries := c.ctrl.Log().Since(c.printed)
	for _, e := range entries {
		c.printf("%s\n", e)
	}
	c.printed += len(entries)
}

func (c *Console) printf(format string, args ...any) {
	_, _ = fmt.Fprintf(c.out, format, args...)
}
