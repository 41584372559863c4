package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/gemologic/mica/internal/config"
	"github.com/gemologic/mica/internal/nixgen"
	"github.com/gemologic/mica/internal/state"
)

func (a *app) initCmd() *cobra.Command {
	var repo, rev, sha, branch, name string
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create default.nix (or the global profile with -g)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, err := a.open()
			if err != nil {
				return err
			}
			if err := config.InitConfigDir(ws.Config().Dir); err != nil {
				return err
			}
			pin := state.Pin{
				Name:    strings.TrimSpace(name),
				URL:     ws.Config().ResolveRepo(repo),
				Rev:     strings.TrimSpace(rev),
				SHA256:  strings.TrimSpace(sha),
				Branch:  strings.TrimSpace(branch),
				Updated: ws.Now().UTC().Truncate(24 * time.Hour),
			}
			if a.global {
				if _, err := ws.InitProfile(pin); err != nil {
					return err
				}
				a.printf("created %s\n", ws.Config().ProfileNixPath())
				return nil
			}
			if _, err := ws.InitProject(pin); err != nil {
				return err
			}
			a.printf("created %s\n", ws.ProjectPath())
			return nil
		},
	}
	cmd.Flags().StringVar(&repo, "repo", "", "Repository URL (default: $MICA_NIXPKGS_REPO or config)")
	cmd.Flags().StringVar(&rev, "rev", "", "Pinned revision")
	cmd.Flags().StringVar(&sha, "sha256", "", "Tarball hash for the revision")
	cmd.Flags().StringVar(&branch, "branch", "", "Branch the revision was taken from")
	cmd.Flags().StringVar(&name, "tarball-name", "", "Optional fetchTarball name")
	_ = cmd.MarkFlagRequired("rev")
	_ = cmd.MarkFlagRequired("sha256")
	return cmd
}

func (a *app) listCmd() *cobra.Command {
	var asYAML bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "Show the current state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.load()
			if err != nil {
				return err
			}
			if asYAML {
				var data []byte
				if s.project != nil {
					data, err = state.MarshalProject(s.project)
				} else {
					data, err = state.MarshalProfile(s.profile)
				}
				if err != nil {
					return err
				}
				_, err = a.out.Write(data)
				return err
			}
			a.printState(s)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asYAML, "yaml", false, "Print the state as YAML")
	return cmd
}

func (a *app) printState(s subject) {
	a.printf("pin: %s\n", pinLabel(s.pin()))
	if presets := s.presets(); len(presets) > 0 {
		a.printf("presets: %s\n", strings.Join(presets, ", "))
	}
	pkgs := s.packages()
	if len(pkgs.Added) > 0 {
		a.printf("added: %s\n", strings.Join(pkgs.Added, " "))
	}
	if len(pkgs.Removed) > 0 {
		a.printf("removed: %s\n", strings.Join(pkgs.Removed, " "))
	}
	for _, name := range pkgs.PinnedNames() {
		entry := pkgs.Pinned[name]
		a.printf("pinned: %s %s (%s)\n", name, entry.Version, pinLabel(entry.Pin))
	}
	if s.project == nil {
		return
	}
	for _, name := range s.project.PinNames() {
		a.printf("pin %s: %s\n", name, pinLabel(s.project.Pins[name]))
	}
	for _, key := range s.project.EnvKeys() {
		a.printf("env %s = %s\n", key, nixgen.RenderEnvValue(s.project.Env[key]))
	}
	if s.project.ShellHook != "" {
		a.printf("shellHook:\n%s", indent(s.project.ShellHook))
	}
}

func indent(text string) string {
	var b strings.Builder
	for _, l := range strings.Split(strings.TrimRight(text, "\n"), "\n") {
		b.WriteString("  ")
		b.WriteString(l)
		b.WriteString("\n")
	}
	return b.String()
}

func (a *app) addCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "add PACKAGE...",
		Short: "Add packages",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.edit(func(s subject) error {
				s.packages().Add(args...)
				return nil
			})
		},
	}
}

func (a *app) removeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove PACKAGE...",
		Short: "Remove packages, including ones a preset provides",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.edit(func(s subject) error {
				s.packages().Remove(args...)
				return nil
			})
		},
	}
}

func (a *app) envCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "env",
		Short: "Manage environment variables",
	}
	var expr bool
	setCmd := &cobra.Command{
		Use:   "set KEY VALUE",
		Short: "Set an environment variable",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			value := state.Literal(args[1])
			if expr {
				value = state.Expr(args[1])
			}
			return a.editProject(func(p *state.Project) error {
				return p.SetEnv(args[0], value)
			})
		},
	}
	setCmd.Flags().BoolVar(&expr, "expr", false, "Treat VALUE as a Nix expression")
	unsetCmd := &cobra.Command{
		Use:   "unset KEY",
		Short: "Remove an environment variable",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.editProject(func(p *state.Project) error {
				if !p.UnsetEnv(args[0]) {
					return fmt.Errorf("env %s is not set", args[0])
				}
				return nil
			})
		},
	}
	cmd.AddCommand(setCmd, unsetCmd)
	return cmd
}

func (a *app) shellCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "shell",
		Short: "Manage the shell hook",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "set CONTENT",
			Short: "Replace the shell hook",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return a.editProject(func(p *state.Project) error {
					p.SetShellHook(args[0])
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "clear",
			Short: "Remove the shell hook",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return a.editProject(func(p *state.Project) error {
					p.ClearShellHook()
					return nil
				})
			},
		},
	)
	return cmd
}

func (a *app) applyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "apply PRESET...",
		Short: "Activate presets",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, err := a.open()
			if err != nil {
				return err
			}
			catalog, err := ws.Presets()
			if err != nil {
				return err
			}
			if _, err := catalog.Resolve(args); err != nil {
				return err
			}
			return a.edit(func(s subject) error {
				s.applyPresets(args...)
				return nil
			})
		},
	}
}

func (a *app) unapplyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "unapply PRESET...",
		Short: "Deactivate presets",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.edit(func(s subject) error {
				s.unapplyPresets(args...)
				return nil
			})
		},
	}
}

func (a *app) updateCmd() *cobra.Command {
	var u state.PinUpdate
	cmd := &cobra.Command{
		Use:   "update",
		Short: "Update the primary pin, or pin one package with --package",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.edit(func(s subject) error {
				s.updatePin(u, a)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&u.Package, "package", "", "Pin this package instead of updating the primary pin")
	cmd.Flags().StringVar(&u.URL, "url", "", "Repository URL")
	cmd.Flags().StringVar(&u.Rev, "rev", "", "Revision")
	cmd.Flags().StringVar(&u.SHA256, "sha256", "", "Tarball hash")
	cmd.Flags().StringVar(&u.Branch, "branch", "", "Branch")
	return cmd
}

func (a *app) pinCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pin",
		Short: "Manage extra named pins",
	}
	var pin state.Pin
	addCmd := &cobra.Command{
		Use:   "add NAME",
		Short: "Add a named pin usable as a function parameter",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.editProject(func(p *state.Project) error {
				return p.AddExtraPin(args[0], pin, a.ws.Now())
			})
		},
	}
	addCmd.Flags().StringVar(&pin.URL, "url", "", "Repository URL")
	addCmd.Flags().StringVar(&pin.Rev, "rev", "", "Revision")
	addCmd.Flags().StringVar(&pin.SHA256, "sha256", "", "Tarball hash")
	addCmd.Flags().StringVar(&pin.Branch, "branch", "", "Branch")
	addCmd.Flags().StringVar(&pin.Name, "tarball-name", "", "Optional fetchTarball name")
	_ = addCmd.MarkFlagRequired("url")
	_ = addCmd.MarkFlagRequired("rev")
	_ = addCmd.MarkFlagRequired("sha256")

	removeCmd := &cobra.Command{
		Use:   "remove NAME",
		Short: "Remove a named pin, or the pin of a package",
		Long: `Remove a named pin. When no named pin matches, the per-package pin set
by "update --package NAME" is dropped and the package follows the primary
pin again.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]
			return a.edit(func(s subject) error {
				if s.project != nil {
					if err := s.project.RemoveExtraPin(name); !errors.Is(err, state.ErrPinNotFound) {
						return err
					}
				}
				if s.packages().Unpin(name) {
					return nil
				}
				return fmt.Errorf("%w: %s", state.ErrPinNotFound, name)
			})
		},
	}
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List pins",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.load()
			if err != nil {
				return err
			}
			a.printf("primary: %s\n", pinLabel(s.pin()))
			if s.project != nil {
				for _, name := range s.project.PinNames() {
					a.printf("%s: %s\n", name, pinLabel(s.project.Pins[name]))
				}
			}
			pkgs := s.packages()
			for _, name := range pkgs.PinnedNames() {
				a.printf("package %s: %s\n", name, pinLabel(pkgs.Pinned[name].Pin))
			}
			return nil
		},
	}
	cmd.AddCommand(addCmd, removeCmd, listCmd)
	return cmd
}
