package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/colorfulnotion/incmerkle/merkle"
	"github.com/colorfulnotion/incmerkle/storage"
	"github.com/spf13/cobra"
	"github.com/yudai/gojsondiff"
	"github.com/yudai/gojsondiff/formatter"
)

func diffCmd() *cobra.Command {
	var noColor bool
	cmd := &cobra.Command{
		Use:   "diff [data-path-a] [data-path-b]",
		Short: "Compare the full state of two stored trees",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			left, err := dumpStore(args[0])
			if err != nil {
				return err
			}
			right, err := dumpStore(args[1])
			if err != nil {
				return err
			}
			return writeDiff(cmd.OutOrStdout(), left, right, !noColor)
		},
	}
	cmd.Flags().BoolVar(&noColor, "no-color", false, "Disable ANSI colors")
	return cmd
}

func dumpStore(path string) ([]byte, error) {
	s, err := storage.Open(path, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	defer s.Close()
	var data []byte
	err = s.View(func(t *merkle.Tree) error {
		data, err = json.Marshal(t)
		return err
	})
	return data, err
}

// writeDiff prints an ASCII delta of two JSON tree dumps.
func writeDiff(out io.Writer, left, right []byte, coloring bool) error {
	delta, err := gojsondiff.New().Compare(left, right)
	if err != nil {
		return fmt.Errorf("error diffing JSON: %w", err)
	}
	if !delta.Modified() {
		fmt.Fprintln(out, "trees match ✅")
		return nil
	}
	// the formatter walks the decoded left document
	var leftObj interface{}
	if err := json.Unmarshal(left, &leftObj); err != nil {
		return err
	}
	asciiFmt := formatter.NewAsciiFormatter(leftObj, formatter.AsciiFormatterConfig{
		ShowArrayIndex: true,
		Coloring:       coloring,
	})
	asciiDiff, err := asciiFmt.Format(delta)
	if err != nil {
		return fmt.Errorf("error formatting diff: %w", err)
	}
	fmt.Fprintln(out, asciiDiff)
	return nil
}
