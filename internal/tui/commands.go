package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/tatianab/chronicle/internal/chapter"
	"github.com/tatianab/chronicle/internal/engine"
	"github.com/tatianab/chronicle/internal/journal"
	"github.com/tatianab/chronicle/internal/models"
)

// Engine is the part of the turn engine the table loop drives.
type Engine interface {
	ProcessTurn(ctx context.Context, input string) (*engine.TurnResult, error)
	State() (models.WorldState, error)
	Snapshot(label string) (string, error)
	ChapterStart(slug, title string) (chapter.State, error)
	ChapterStatus() (chapter.State, error)
	ChapterCompile() (string, error)
	ChapterEnd() (string, error)
}

// ErrUnknownCommand is returned by Execute for a command it does not know.
var ErrUnknownCommand = errors.New("unknown command")

const commandHelp = "Commands: /snapshot [label], /chapter start <slug> [title], /chapter status, " +
	"/chapter compile, /chapter end, /quit. Anything else is played as a turn."

// IsCommand reports whether line is a table command rather than a turn.
func IsCommand(line string) bool {
	return strings.HasPrefix(strings.TrimSpace(line), "/")
}

// Execute runs a table command and returns what to show the game master.
func Execute(e Engine, line string) (string, error) {
	name, args, _ := strings.Cut(strings.TrimSpace(line), " ")
	args = strings.TrimSpace(args)

	switch name {
	case "/help":
		return commandHelp, nil
	case "/snapshot":
		path, err := e.Snapshot(args)
		if err != nil {
			return "", err
		}
		return "Snapshot saved: " + path, nil
	case "/chapter":
		return chapterCommand(e, args)
	default:
		return "", fmt.Errorf("%w: %s", ErrUnknownCommand, name)
	}
}

func chapterCommand(e Engine, args string) (string, error) {
	sub, rest, _ := strings.Cut(args, " ")
	switch sub {
	case "start":
		slug, title, err := chapter.ParseStartArgs(rest)
		if err != nil {
			return "", err
		}
		st, err := e.ChapterStart(slug, title)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("Chapter started: %s (%s)", st.Title, st.Slug), nil
	case "status", "":
		st, err := e.ChapterStatus()
		if err != nil {
			return "", err
		}
		return DescribeChapter(st), nil
	case "compile":
		path, err := e.ChapterCompile()
		if err != nil {
			return "", err
		}
		return "Chapter compiled: " + path, nil
	case "end":
		path, err := e.ChapterEnd()
		if err != nil {
			return "", err
		}
		if path == "" {
			return "Chapter ended with no turns; nothing compiled.", nil
		}
		return "Chapter ended and compiled: " + path, nil
	default:
		return "", fmt.Errorf("%w: /chapter %s", ErrUnknownCommand, sub)
	}
}

// DescribeChapter renders chapter state in one line.
func DescribeChapter(st chapter.State) string {
	if !st.Active {
		return "No active chapter."
	}
	turns := make([]string, len(st.Turns))
	for i, t := range st.Turns {
		turns[i] = journal.FormatTurn(t)
	}
	list := "none yet"
	if len(turns) > 0 {
		list = strings.Join(turns, ", ")
	}
	return fmt.Sprintf("Chapter %q (%s), turns: %s", st.Title, st.Slug, list)
}
