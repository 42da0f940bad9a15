package shell

import (
	"strconv"
	"strings"

	"github.com/kballard/go-shellquote"
)

// ShellCompleter provides context-aware autocomplete for shell commands
type ShellCompleter struct {
	sc *ShellController
}

func NewShellCompleter(sc *ShellController) *ShellCompleter {
	return &ShellCompleter{sc: sc}
}

// CommandMetadata holds autocomplete information for a command
type CommandMetadata struct {
	Options []string
	Args    []string
}

var commandMetadata = map[string]CommandMetadata{
	"sim": {
		Options: []string{"-stop", "-tolerance", "-cutoff", "-check"},
		Args:    []string{"stop", "show"},
	},
	"sweep": {
		Options: []string{"-count", "-iters", "-threads", "-start"},
	},
	"hist": {
		Options: []string{"-bins"},
	},
	"log": {
		Args: []string{"off"},
	},
	"help": {
		Args: []string{"gen", "step", "run", "sim", "sweep", "replay", "log", "hist", "highlight"},
	},
}

var commandNames = []string{
	"gen", "show", "step", "run", "iterate", "reset", "replay", "contrib",
	"highlight", "hist", "sim", "log", "sweep", "help", "exit",
}

var stopValues = []string{"90", "95", "98", "99"}

// Do implements the readline.AutoComplete interface
func (c *ShellCompleter) Do(line []rune, pos int) ([][]rune, int) {
	text := string(line[:pos])

	fields, err := shellquote.Split(text)
	if err != nil {
		// unterminated quote and the like
		fields = strings.Fields(text)
	}
	endsWithSpace := len(text) > 0 && text[len(text)-1] == ' '

	var prefix string
	var completions []string

	if len(fields) == 0 || (len(fields) == 1 && !endsWithSpace) {
		if len(fields) == 1 {
			prefix = fields[0]
		}
		completions = commandNames
	} else {
		cmdName := fields[0]
		if !endsWithSpace {
			prefix = fields[len(fields)-1]
		}

		var lastCompleteField string
		if endsWithSpace {
			lastCompleteField = fields[len(fields)-1]
		} else if len(fields) > 1 {
			lastCompleteField = fields[len(fields)-2]
		}
		if lastCompleteField == "-stop" {
			completions = stopValues
		}

		// piece ids for commands that take them
		if completions == nil && (cmdName == "highlight" || cmdName == "replay") && c.sc.ref != nil {
			for _, id := range c.sc.ref.PieceIDs() {
				completions = append(completions, strconv.Itoa(int(id)))
			}
			if cmdName == "highlight" {
				completions = append(completions, "off")
			}
		}

		if completions == nil {
			if metadata, exists := commandMetadata[cmdName]; exists {
				if strings.HasPrefix(prefix, "-") || len(metadata.Args) == 0 {
					completions = metadata.Options
				} else {
					completions = metadata.Args
				}
			}
		}
	}

	var matches [][]rune
	for _, completion := range completions {
		if strings.HasPrefix(completion, prefix) {
			matches = append(matches, []rune(completion[len(prefix):]))
		}
	}
	return matches, len(prefix)
}
