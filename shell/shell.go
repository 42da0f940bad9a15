package shell

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/chzyer/readline"
	"github.com/kballard/go-shellquote"
	"github.com/rs/zerolog/log"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/domino14/shapstack/board"
	"github.com/domino14/shapstack/config"
	"github.com/domino14/shapstack/shapley"
)

var (
	errNoData            = errors.New("no data in this line")
	errWrongOptionSyntax = errors.New("wrong format; all options need arguments")
	errNoBoard           = errors.New("please generate a board first with the `gen` command")
	errQuit              = errors.New("sending quit signal")
)

type ShellController struct {
	l   *readline.Instance
	out io.Writer

	config *config.Config

	boardSeed int64
	ref       *board.Board
	sim       *shapley.Simulator
	stepper   *shapley.Stepper
	highlight board.PieceID

	simCtx        context.Context
	simCancel     context.CancelFunc
	simTicker     *time.Ticker
	simTickerDone chan bool
	simDone       chan struct{}
	simLogFile    *os.File

	printer *message.Printer
}

type shellcmd struct {
	cmd     string
	args    []string
	options CmdOptions
}

func filterInput(r rune) (rune, bool) {
	switch r {
	// block CtrlZ feature
	case readline.CharCtrlZ:
		return r, false
	}
	return r, true
}

func showMessage(msg string, w io.Writer) {
	io.WriteString(w, msg)
	io.WriteString(w, "\n")
}

// NewShellController sets up an interactive shell on the terminal.
func NewShellController(cfg *config.Config) *ShellController {
	sc := newShellController(cfg, os.Stderr)
	l, err := readline.NewEx(&readline.Config{
		Prompt:          "\033[36mshapstack>\033[0m ",
		HistoryFile:     "/tmp/shapstack_readline.tmp",
		AutoComplete:    NewShellCompleter(sc),
		EOFPrompt:       "exit",
		InterruptPrompt: "^C",

		HistorySearchFold:   true,
		FuncFilterInputRune: filterInput,
	})
	if err != nil {
		panic(err)
	}
	sc.l = l
	sc.out = l.Stderr()
	return sc
}

// NewBatchController runs commands without a terminal, writing results to w.
func NewBatchController(cfg *config.Config, w io.Writer) *ShellController {
	return newShellController(cfg, w)
}

func newShellController(cfg *config.Config, out io.Writer) *ShellController {
	return &ShellController{
		out:       out,
		config:    cfg,
		highlight: board.NoPiece,
		printer:   message.NewPrinter(language.English),
	}
}

func (sc *ShellController) showMessage(msg string) {
	showMessage(msg, sc.out)
}

func (sc *ShellController) showError(err error) {
	sc.showMessage("Error: " + err.Error())
}

// count formats n with thousands separators.
func (sc *ShellController) count(n int) string {
	return sc.printer.Sprintf("%d", n)
}

func extractFields(line string) (*shellcmd, error) {
	fields, err := shellquote.Split(line)
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return nil, errNoData
	}
	cmd := fields[0]
	var args []string
	options := CmdOptions{}
	for i := 1; i < len(fields); i++ {
		if strings.HasPrefix(fields[i], "-") && len(fields[i]) > 1 {
			if _, err := strconv.Atoi(fields[i]); err == nil {
				// negative numbers are arguments
				args = append(args, fields[i])
				continue
			}
			if i == len(fields)-1 {
				return nil, errWrongOptionSyntax
			}
			key := fields[i][1:]
			options[key] = append(options[key], fields[i+1])
			i++
			continue
		}
		args = append(args, fields[i])
	}
	return &shellcmd{cmd: cmd, args: args, options: options}, nil
}

func (sc *ShellController) standardModeSwitch(line string, sig chan os.Signal) (*Response, error) {
	cmd, err := extractFields(line)
	if err != nil {
		return nil, err
	}
	switch cmd.cmd {
	case "exit", "bye":
		sig <- syscall.SIGINT
		return nil, errQuit
	case "help":
		if len(cmd.args) == 0 {
			return usage("standard")
		}
		return usageTopic(cmd.args[0])
	case "gen":
		return sc.gen(cmd)
	case "step":
		return sc.step(cmd)
	case "run":
		return sc.run(cmd)
	case "iterate":
		return sc.iterate(cmd)
	case "reset":
		return sc.reset(cmd)
	case "show":
		return sc.show(cmd)
	case "contrib":
		return sc.contrib(cmd)
	case "highlight":
		return sc.setHighlight(cmd)
	case "hist":
		return sc.hist(cmd)
	case "sim":
		return sc.simCommand(cmd)
	case "log":
		return sc.setLog(cmd)
	case "replay":
		return sc.replay(cmd)
	case "sweep":
		return sc.sweep(cmd)
	default:
		log.Debug().Msgf("you said: %v", strconv.Quote(line))
		return nil, fmt.Errorf("unknown command %q; try `help`", cmd.cmd)
	}
}

// Execute runs a single command line, as given on the command line.
func (sc *ShellController) Execute(sig chan os.Signal, line string) {
	resp, err := sc.standardModeSwitch(line, sig)
	if err != nil {
		sc.showError(err)
	} else if resp != nil {
		sc.showMessage(resp.message)
	}
	if sc.simDone != nil {
		// a `sim` run from the command line finishes before the next command
		<-sc.simDone
		sc.simDone = nil
		sc.showMessage(sc.sim.ContributionStats())
	}
}

func (sc *ShellController) Loop(sig chan os.Signal) {
	defer sc.l.Close()

	for {
		line, err := sc.l.Readline()
		if err == readline.ErrInterrupt {
			if len(line) == 0 {
				sig <- syscall.SIGINT
				break
			} else {
				continue
			}
		} else if err == io.EOF {
			sig <- syscall.SIGINT
			break
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		resp, err := sc.standardModeSwitch(line, sig)
		if err != nil {
			if errors.Is(err, errQuit) {
				break
			}
			sc.showError(err)
			continue
		}
		if resp != nil {
			sc.showMessage(resp.message)
		}
	}
	log.Debug().Msgf("Exiting readline loop...")
}

// Cleanup stops a running simulation and closes any open log file.
func (sc *ShellController) Cleanup() {
	if sc.sim != nil && sc.sim.IsSimming() {
		sc.stopSim()
	}
	sc.closeLog()
}
