package cli

import (
	"bufio"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/peterh/liner"

	"github.com/calvinalkan/jifdb/internal/config"
	"github.com/calvinalkan/jifdb/pkg/jifdb"

	flag "github.com/spf13/pflag"
)

const shellHelp = `Commands:
  collections                   List collection files
  open <collection>             Open (or create) a collection
  close <collection>            Save and close a collection
  create <collection> <json>    Create a document
  get <collection> [id]         Print one or all documents
  update <collection> <id> <json>    Merge fields into a document
  replace <collection> <id> <json>   Replace a document's fields
  delete <collection> <id>      Delete a document
  save [collection]             Save one or all open collections
  drop <collection>             Delete a collection and its file
  status                        Show open collections and unsaved changes
  help                          Show this help
  exit / quit / q               Save everything and exit`

var shellCommands = []string{
	"collections", "open", "close", "create", "get", "update", "replace",
	"delete", "save", "drop", "status", "help", "exit", "quit",
}

// ShellCmd returns the shell command.
func ShellCmd(cfg *config.Config, env map[string]string) *Command {
	return &Command{
		Flags: flag.NewFlagSet("shell", flag.ContinueOnError),
		Usage: "shell",
		Short: "Interactive shell",
		Long: `Start an interactive shell on the database. The database stays open for
the whole session, so changes are only written on save, close, drop or exit.

` + shellHelp,
		Exec: func(ctx context.Context, io *IO, _ []string) error {
			return withDB(cfg, io, func(db *jifdb.DB) error {
				lines := newLineReader(io.in, historyFile(env))
				defer lines.Close()

				sh := &shell{db: db, io: io, lines: lines}

				return sh.run(ctx)
			})
		},
	}
}

// lineReader is the input side of the shell: line editing on a terminal,
// plain lines otherwise.
type lineReader interface {
	Prompt(prompt string) (string, error)
	AppendHistory(line string)
	Close() error
}

// newLineReader uses liner when reading the process's own stdin.
func newLineReader(in io.Reader, history string) lineReader {
	if f, ok := in.(*os.File); ok && f == os.Stdin {
		return newLinerReader(history)
	}

	if in == nil {
		in = strings.NewReader("")
	}

	return &plainReader{scanner: bufio.NewScanner(in)}
}

type linerReader struct {
	state   *liner.State
	history string
}

func newLinerReader(history string) *linerReader {
	state := liner.NewLiner()
	state.SetCtrlCAborts(true)
	state.SetCompleter(completeShell)

	if history != "" {
		if f, err := os.Open(history); err == nil {
			_, _ = state.ReadHistory(f)
			_ = f.Close()
		}
	}

	return &linerReader{state: state, history: history}
}

func (r *linerReader) Prompt(prompt string) (string, error) {
	line, err := r.state.Prompt(prompt)
	if errors.Is(err, liner.ErrPromptAborted) {
		return "", io.EOF
	}

	return line, err
}

func (r *linerReader) AppendHistory(line string) {
	r.state.AppendHistory(line)
}

// Close saves history and restores the terminal.
func (r *linerReader) Close() error {
	if r.history != "" {
		if f, err := os.Create(r.history); err == nil {
			_, _ = r.state.WriteHistory(f)
			_ = f.Close()
		}
	}

	return r.state.Close()
}

type plainReader struct {
	scanner *bufio.Scanner
}

func (r *plainReader) Prompt(string) (string, error) {
	if r.scanner.Scan() {
		return r.scanner.Text(), nil
	}

	err := r.scanner.Err()
	if err != nil {
		return "", err
	}

	return "", io.EOF
}

func (*plainReader) AppendHistory(string) {}

func (*plainReader) Close() error { return nil }

func historyFile(env map[string]string) string {
	if home := env["HOME"]; home != "" {
		return filepath.Join(home, ".jifdb_history")
	}

	return ""
}

func completeShell(line string) []string {
	var out []string

	for _, cmd := range shellCommands {
		if strings.HasPrefix(cmd, strings.ToLower(line)) {
			out = append(out, cmd)
		}
	}

	return out
}

type shell struct {
	db    *jifdb.DB
	io    *IO
	lines lineReader
}

func (s *shell) run(ctx context.Context) error {
	s.io.Println("jifdb shell on " + s.db.RootPath() + " (type 'help' for commands)")

	for ctx.Err() == nil {
		line, err := s.lines.Prompt("jifdb> ")
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}

			return err
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		s.lines.AppendHistory(line)

		done, err := s.exec(line)
		if err != nil {
			s.io.Println("error:", err)
		}

		if done {
			return nil
		}
	}

	return nil
}

// exec runs one shell line. Reports done=true on exit.
func (s *shell) exec(line string) (bool, error) {
	cmd, rest, _ := strings.Cut(line, " ")
	rest = strings.TrimSpace(rest)

	switch strings.ToLower(cmd) {
	case "exit", "quit", "q":
		return true, nil
	case "help", "?":
		s.io.Println(shellHelp)
	case "collections", "ls":
		return false, execCollections(s.io, s.db, true)
	case "status":
		s.status()
	case "open":
		c, err := s.db.OpenCollection(rest)
		if err != nil {
			return false, err
		}

		s.io.Printf("%s: %d documents, next id %d\n", c.Name(), c.Len(), c.NextID())
	case "close":
		return false, s.db.CloseCollection(rest)
	case "save":
		if rest == "" {
			return false, s.db.SaveAll()
		}

		return false, s.db.SaveCollection(rest)
	case "drop":
		_, err := existingCollection(s.db, rest)
		if err != nil {
			return false, err
		}

		return false, s.db.DeleteCollection(rest)
	case "create":
		name, data, _ := strings.Cut(rest, " ")

		return false, s.withCollection(name, func(c *jifdb.Collection) error {
			doc, err := c.CreateJSON([]byte(data))
			if err != nil {
				return err
			}

			return s.io.PrintJSON(doc, false)
		})
	case "get":
		return false, s.get(rest)
	case "update", "replace":
		return false, s.update(strings.ToLower(cmd) == "replace", rest)
	case "delete", "del":
		args := strings.Fields(rest)
		if len(args) != 2 {
			return false, errArgCount
		}

		id, err := parseID(args[1])
		if err != nil {
			return false, err
		}

		return false, s.withCollection(args[0], func(c *jifdb.Collection) error {
			doc, err := c.Delete(id)
			if err != nil {
				return err
			}

			return s.io.PrintJSON(doc, false)
		})
	default:
		s.io.Println("unknown command:", cmd, "(type 'help' for commands)")
	}

	return false, nil
}

func (s *shell) withCollection(name string, fn func(c *jifdb.Collection) error) error {
	c, err := s.db.OpenCollection(name)
	if err != nil {
		return err
	}

	return fn(c)
}

func (s *shell) get(rest string) error {
	args := strings.Fields(rest)
	if len(args) < 1 || len(args) > 2 {
		return errArgCount
	}

	return s.withCollection(args[0], func(c *jifdb.Collection) error {
		if len(args) == 2 {
			id, err := parseID(args[1])
			if err != nil {
				return err
			}

			doc, err := c.ReadID(id)
			if err != nil {
				return err
			}

			return s.io.PrintJSON(doc, true)
		}

		docs, err := c.Read()
		if err != nil {
			return err
		}

		for _, doc := range docs {
			err = s.io.PrintJSON(doc, false)
			if err != nil {
				return err
			}
		}

		return nil
	})
}

func (s *shell) update(replace bool, rest string) error {
	name, rest, _ := strings.Cut(rest, " ")
	idArg, data, _ := strings.Cut(strings.TrimSpace(rest), " ")

	id, err := parseID(idArg)
	if err != nil {
		return err
	}

	return s.withCollection(name, func(c *jifdb.Collection) error {
		var (
			doc jifdb.Document
			err error
		)

		if replace {
			doc, err = c.ReplaceJSON(id, []byte(data))
		} else {
			doc, err = c.UpdateJSON(id, []byte(data))
		}

		if err != nil {
			return err
		}

		return s.io.PrintJSON(doc, false)
	})
}

func (s *shell) status() {
	names := s.db.Collections()
	if len(names) == 0 {
		s.io.Println("no open collections")

		return
	}

	for _, name := range names {
		c, err := s.db.OpenCollection(name)
		if err != nil {
			continue
		}

		state := "saved"
		if c.Dirty() {
			state = "unsaved changes"
		}

		s.io.Printf("%s\t%d documents\t%s\n", name, c.Len(), state)
	}
}
