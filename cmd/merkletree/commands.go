package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/colorfulnotion/incmerkle/field"
	"github.com/colorfulnotion/incmerkle/hasher"
	"github.com/colorfulnotion/incmerkle/log"
	"github.com/colorfulnotion/incmerkle/merkle"
	"github.com/colorfulnotion/incmerkle/storage"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/spf13/cobra"
)

// proofFile is the document written by `proof` and read by `verify`.
type proofFile struct {
	Hasher string        `json:"hasher"`
	Root   field.Element `json:"root"`
	Leaf   field.Element `json:"leaf"`
	Proof  *merkle.Proof `json:"proof"`
}

func parseIndex(s string) (uint64, error) {
	idx, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid leaf index %q", s)
	}
	return idx, nil
}

func parseLeaves(args []string) ([]field.Element, error) {
	values := make([]field.Element, len(args))
	for i, arg := range args {
		v, err := field.FromString(arg)
		if err != nil {
			return nil, err
		}
		values[i] = v
	}
	return values, nil
}

func writeJSON(out io.Writer, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, string(data))
	return err
}

func runInsert(ctx context.Context, s *storage.TreeStore, out io.Writer, args []string) error {
	values, err := parseLeaves(args)
	if err != nil {
		return err
	}
	var first uint64
	if len(values) == 1 {
		first, err = s.Insert(ctx, values[0])
	} else {
		first, err = s.InsertBatch(ctx, values)
	}
	if err != nil {
		return err
	}
	for i, v := range values {
		fmt.Fprintf(out, "leaf %d = %s\n", first+uint64(i), v)
	}
	fmt.Fprintf(out, "root %s\n", s.Root())
	return nil
}

func runUpdate(ctx context.Context, s *storage.TreeStore, out io.Writer, args []string) error {
	idx, err := parseIndex(args[0])
	if err != nil {
		return err
	}
	v, err := field.FromString(args[1])
	if err != nil {
		return err
	}
	if err := s.Update(ctx, idx, v); err != nil {
		return err
	}
	fmt.Fprintf(out, "leaf %d = %s\nroot %s\n", idx, v, s.Root())
	return nil
}

func runLeaf(s *storage.TreeStore, out io.Writer, args []string) error {
	idx, err := parseIndex(args[0])
	if err != nil {
		return err
	}
	v, err := s.Leaf(idx)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, v)
	return nil
}

func runRoot(s *storage.TreeStore, out io.Writer, asJSON bool) error {
	if asJSON {
		return writeJSON(out, s.Snapshot())
	}
	fmt.Fprintln(out, s.Root())
	return nil
}

func runProof(ctx context.Context, s *storage.TreeStore, out io.Writer, args []string, asHex bool) error {
	idx, err := parseIndex(args[0])
	if err != nil {
		return err
	}
	proof, err := s.MerkleProof(ctx, idx)
	if err != nil {
		return err
	}
	if asHex {
		data, err := proof.MarshalBinary()
		if err != nil {
			return err
		}
		fmt.Fprintln(out, hexutil.Encode(data))
		return nil
	}
	leaf, err := s.Leaf(idx)
	if err != nil {
		return err
	}
	return writeJSON(out, proofFile{
		Hasher: s.Spec().Hasher,
		Root:   s.Root(),
		Leaf:   leaf,
		Proof:  proof,
	})
}

func runPrint(s *storage.TreeStore, out io.Writer, asJSON bool) error {
	return s.View(func(t *merkle.Tree) error {
		if asJSON {
			return writeJSON(out, t)
		}
		fmt.Fprint(out, t.ToTree().String())
		return nil
	})
}

func (a *app) initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create an empty tree from --spec at --data-path",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.openStore(true)
			if err != nil {
				return err
			}
			defer s.Close()
			spec := s.Spec()
			snap := s.Snapshot()
			fmt.Fprintf(cmd.OutOrStdout(), "tree %s at %s\n  depth %d, hasher %s, zero %s\n  %d leaves, root %s\n",
				spec.ID, a.dataPath, spec.Depth, spec.Hasher, spec.ZeroValue, snap.Size, snap.Root)
			return nil
		},
	}
}

func (a *app) insertCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "insert [value...]",
		Short: "Append leaves (decimal or 0x hex)",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withStore(func(s *storage.TreeStore) error {
				return runInsert(cmd.Context(), s, cmd.OutOrStdout(), args)
			})
		},
	}
}

func (a *app) updateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "update [index] [value]",
		Short: "Replace an inserted leaf and rebuild the tree",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withStore(func(s *storage.TreeStore) error {
				return runUpdate(cmd.Context(), s, cmd.OutOrStdout(), args)
			})
		},
	}
}

func (a *app) leafCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "leaf [index]",
		Short: "Print an inserted leaf",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withStore(func(s *storage.TreeStore) error {
				return runLeaf(s, cmd.OutOrStdout(), args)
			})
		},
	}
}

func (a *app) rootCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "root",
		Short: "Print the current root",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withStore(func(s *storage.TreeStore) error {
				return runRoot(s, cmd.OutOrStdout(), asJSON)
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print root, size and depth as JSON")
	return cmd
}

func (a *app) proofCmd() *cobra.Command {
	var asHex bool
	cmd := &cobra.Command{
		Use:   "proof [index]",
		Short: "Print the Merkle path of an inserted leaf",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withStore(func(s *storage.TreeStore) error {
				return runProof(cmd.Context(), s, cmd.OutOrStdout(), args, asHex)
			})
		},
	}
	cmd.Flags().BoolVar(&asHex, "hex", false, "Print the binary proof encoding as hex")
	return cmd
}

func verifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify [proof-file]",
		Short: "Check a proof document written by `proof`",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			var pf proofFile
			if err := json.Unmarshal(data, &pf); err != nil {
				return fmt.Errorf("%s: %w", args[0], err)
			}
			if pf.Proof == nil {
				return fmt.Errorf("%s: no proof", args[0])
			}
			h, err := hasher.ByName(pf.Hasher)
			if err != nil {
				return err
			}
			got, err := merkle.ComputeRoot(h, pf.Leaf, pf.Proof)
			if err != nil {
				return err
			}
			if got != pf.Root {
				return fmt.Errorf("proof for leaf %d computes root %s, want %s", pf.Proof.Index, got, pf.Root)
			}
			log.Debug(log.CLIMonitoring, "proof verified", "index", pf.Proof.Index, "root", got.Short())
			fmt.Fprintf(cmd.OutOrStdout(), "✅ proof for leaf %d is valid\n", pf.Proof.Index)
			return nil
		},
	}
}

func (a *app) printCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "print",
		Short: "Render the computed nodes of the tree",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withStore(func(s *storage.TreeStore) error {
				return runPrint(s, cmd.OutOrStdout(), asJSON)
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Dump the full tree state as JSON")
	return cmd
}

func hashCmd() *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "hash [left] [right]",
		Short: "Fold one value or combine two with a hasher",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			h, err := hasher.ByName(name)
			if err != nil {
				return err
			}
			values, err := parseLeaves(args)
			if err != nil {
				return err
			}
			if len(values) == 1 {
				fmt.Fprintln(cmd.OutOrStdout(), h.HashOne(values[0]))
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), h.Hash(values[0], values[1]))
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "hasher", hasher.Poseidon2Name, fmt.Sprintf("Hasher %v", hasher.Names()))
	return cmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "merkletree %s (commit %s, built %s)\n", Version, Commit, BuildTime)
		},
	}
}
