package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/chzyer/readline"
	"github.com/colorfulnotion/incmerkle/log"
	"github.com/colorfulnotion/incmerkle/storage"
	"github.com/spf13/cobra"
)

const shellHelp = `commands:
  insert <value...>        append leaves
  update <index> <value>   replace a leaf
  leaf <index>             print a leaf
  root [json]              print the root
  proof <index> [hex]      print a Merkle path
  print [json]             render the tree
  help                     this text
  exit                     leave the shell
`

func (a *app) shellCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "shell",
		Short: "Interactive shell over the tree at --data-path",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withStore(func(s *storage.TreeStore) error {
				rl, err := readline.NewEx(&readline.Config{
					Prompt:      fmt.Sprintf("merkletree[%s]> ", s.Spec().ID),
					HistoryFile: filepath.Join(a.dataPath, "shell_history.txt"),
					Stdout:      cmd.OutOrStdout(),
				})
				if err != nil {
					return fmt.Errorf("failed to start readline: %w", err)
				}
				defer rl.Close()
				return runShell(cmd.Context(), s, rl, rl.Stdout())
			})
		},
	}
}

type lineReader interface {
	Readline() (string, error)
}

// runShell executes one command per line until EOF or exit. Command errors
// are printed and do not end the session.
func runShell(ctx context.Context, s *storage.TreeStore, in lineReader, out io.Writer) error {
	for {
		line, err := in.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			continue
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		if fields[0] == "exit" || fields[0] == "quit" {
			return nil
		}
		if err := shellExec(ctx, s, out, fields[0], fields[1:]); err != nil {
			log.Debug(log.CLIMonitoring, "shell command failed", "cmd", fields[0], "err", err)
			fmt.Fprintf(out, "❌ %v\n", err)
		}
	}
}

// shellOption strips a trailing option word from args. Any other trailing
// option word is rejected.
func shellOption(args []string, want string) ([]string, bool, error) {
	if len(args) == 0 {
		return args, false, nil
	}
	switch last := args[len(args)-1]; last {
	case want:
		return args[:len(args)-1], true, nil
	case "json", "hex":
		return nil, false, fmt.Errorf("option %q does not apply, want %q", last, want)
	}
	return args, false, nil
}

func shellExec(ctx context.Context, s *storage.TreeStore, out io.Writer, name string, args []string) error {
	switch name {
	case "help":
		fmt.Fprint(out, shellHelp)
		return nil
	case "insert":
		if len(args) == 0 {
			return fmt.Errorf("usage: insert <value...>")
		}
		return runInsert(ctx, s, out, args)
	case "update":
		if len(args) != 2 {
			return fmt.Errorf("usage: update <index> <value>")
		}
		return runUpdate(ctx, s, out, args)
	case "leaf":
		if len(args) != 1 {
			return fmt.Errorf("usage: leaf <index>")
		}
		return runLeaf(s, out, args)
	case "root", "print":
		rest, asJSON, err := shellOption(args, "json")
		if err != nil {
			return err
		}
		if len(rest) != 0 {
			return fmt.Errorf("usage: %s [json]", name)
		}
		if name == "root" {
			return runRoot(s, out, asJSON)
		}
		return runPrint(s, out, asJSON)
	case "proof":
		rest, asHex, err := shellOption(args, "hex")
		if err != nil {
			return err
		}
		if len(rest) != 1 {
			return fmt.Errorf("usage: proof <index> [hex]")
		}
		return runProof(ctx, s, out, rest, asHex)
	default:
		return fmt.Errorf("unknown command %q, try help", name)
	}
}
