package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/colorfulnotion/incmerkle/log"
	"github.com/colorfulnotion/incmerkle/merkleerrors"
	"github.com/colorfulnotion/incmerkle/storage"
	"github.com/colorfulnotion/incmerkle/telemetry"
	"github.com/colorfulnotion/incmerkle/treespec"
	"github.com/spf13/cobra"
)

type app struct {
	dataPath     string
	specID       string
	logLevel     string
	debug        string
	otlpEndpoint string

	specChanged bool
	telemetry   *telemetry.Client
}

func newRootCmd() *cobra.Command {
	a := &app{}
	rootCmd := &cobra.Command{
		Use:           "merkletree",
		Short:         "Incremental fixed-depth Merkle tree",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if a.telemetry == nil {
				return nil
			}
			return a.telemetry.Shutdown(context.Background())
		},
	}
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	defaultPath := filepath.Join(os.Getenv("HOME"), ".merkletree")
	rootCmd.PersistentFlags().StringVarP(&a.dataPath, "data-path", "d", defaultPath, "Tree data directory")
	rootCmd.PersistentFlags().StringVar(&a.specID, "spec", "dev", fmt.Sprintf("Tree spec preset %v or JSON file", treespec.Presets()))
	rootCmd.PersistentFlags().StringVar(&a.logLevel, "log-level", "info", "Log level (trace, debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&a.debug, "debug", "", "Debug modules to enable (tree_mod,store_mod,cli_mod or all)")
	rootCmd.PersistentFlags().StringVar(&a.otlpEndpoint, "otlp-endpoint", "", "OTLP/HTTP trace collector (e.g., localhost:4318)")

	rootCmd.AddCommand(
		a.initCmd(),
		a.insertCmd(),
		a.updateCmd(),
		a.leafCmd(),
		a.rootCmd(),
		a.proofCmd(),
		verifyCmd(),
		a.printCmd(),
		diffCmd(),
		a.shellCmd(),
		hashCmd(),
		versionCmd(),
	)
	return rootCmd
}

func (a *app) setup(cmd *cobra.Command) error {
	if _, err := log.ParseLevel(a.logLevel); err != nil {
		return err
	}
	log.InitLogger(a.logLevel)
	log.EnableModules(a.debug)
	a.specChanged = cmd.Flags().Changed("spec")

	client, err := telemetry.NewClient(cmd.Context(), a.otlpEndpoint, telemetry.DefaultServiceName)
	if err != nil {
		return err
	}
	a.telemetry = client
	if client.Enabled() {
		log.Info(log.CLIMonitoring, "tracing enabled", "endpoint", a.otlpEndpoint)
	}
	return nil
}

// openStore opens the tree at --data-path. The spec is only enforced when
// creating the tree or when --spec was given explicitly.
func (a *app) openStore(create bool) (*storage.TreeStore, error) {
	var spec *treespec.TreeSpec
	if create || a.specChanged {
		var err error
		if spec, err = treespec.ReadSpec(a.specID); err != nil {
			return nil, err
		}
	}
	s, err := storage.Open(a.dataPath, spec)
	if errors.Is(err, merkleerrors.ErrStoreUninitialized) {
		return nil, fmt.Errorf("%s: run `merkletree init` first: %w", a.dataPath, err)
	}
	return s, err
}

// withStore runs fn against the tree, closing the store afterwards.
func (a *app) withStore(fn func(s *storage.TreeStore) error) error {
	s, err := a.openStore(false)
	if err != nil {
		return err
	}
	defer s.Close()
	return fn(s)
}
