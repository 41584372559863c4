// cmd/mica/main.go
//
// Entry point for the mica CLI. Every command loads the user configuration,
// opens the workspace for the project directory (or the global profile with
// -g), applies its edit and writes the descriptor back.

package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/gemologic/mica/internal/config"
	"github.com/gemologic/mica/internal/logbook"
	"github.com/gemologic/mica/internal/workspace"
)

var version = "0.1.0-dev"

// app carries the persistent flags and the lazily opened workspace.
type app struct {
	global bool
	dir    string
	out    io.Writer
	errOut io.Writer

	ws *workspace.Workspace
}

func main() {
	if err := newRootCmd(os.Stdout, os.Stderr).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "mica: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd(out, errOut io.Writer) *cobra.Command {
	a := &app{out: out, errOut: errOut}
	rootCmd := &cobra.Command{
		Use:   "mica",
		Short: "Manage Nix development environments declaratively",
		Long: `mica keeps a default.nix (or the global profile.nix) in sync with a small
declarative state: presets, packages, pins, env and shell hooks.

Edits made by hand outside the mica: markers are preserved on every write.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.SetOut(out)
	rootCmd.SetErr(errOut)
	rootCmd.PersistentFlags().BoolVarP(&a.global, "global", "g", false, "Operate on the global profile instead of the project")
	rootCmd.PersistentFlags().StringVarP(&a.dir, "dir", "C", ".", "Project directory")

	rootCmd.AddCommand(
		a.initCmd(),
		a.listCmd(),
		a.addCmd(),
		a.removeCmd(),
		a.envCmd(),
		a.shellCmd(),
		a.applyCmd(),
		a.unapplyCmd(),
		a.updateCmd(),
		a.pinCmd(),
		a.syncCmd(),
		a.diffCmd(),
		a.presetsCmd(),
		a.generationsCmd(),
		a.logCmd(),
	)
	return rootCmd
}

// open loads the configuration and the workspace once per invocation.
func (a *app) open() (*workspace.Workspace, error) {
	if a.ws != nil {
		return a.ws, nil
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	book, err := logbook.New(cfg.LogPath())
	if err != nil {
		return nil, err
	}
	ws, err := workspace.Open(a.dir, cfg, workspace.WithLogbook(book))
	if err != nil {
		return nil, err
	}
	a.ws = ws
	return ws, nil
}

func (a *app) printf(format string, args ...any) {
	fmt.Fprintf(a.out, format, args...)
}

func (a *app) warnf(format string, args ...any) {
	fmt.Fprintf(a.errOut, "warning: "+format, args...)
}
