package main

import (
	"errors"
	"strings"

	"github.com/spf13/cobra"

	"github.com/gemologic/mica/internal/assemble"
	"github.com/gemologic/mica/internal/tui"
)

var errProfileOnly = errors.New("this command is only available for the global profile (use -g)")

func (a *app) syncCmd() *cobra.Command {
	var fromNix bool
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Regenerate the descriptor from state",
		Long: `Regenerate the descriptor from state.

For a project the state lives in default.nix itself, so sync rewrites the
file in canonical form. For the profile, --from-nix first refreshes
profile.yaml from hand edits made to profile.nix.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.load()
			if err != nil {
				return err
			}
			if fromNix && s.profile != nil {
				if err := a.ws.RefreshProfileFromNix(s.profile); err != nil {
					return err
				}
			}
			return a.save(s)
		},
	}
	cmd.Flags().BoolVar(&fromNix, "from-nix", false, "Refresh state from the descriptor before regenerating")
	return cmd
}

func (a *app) diffCmd() *cobra.Command {
	var full, preview bool
	cmd := &cobra.Command{
		Use:   "diff",
		Short: "Show how the descriptor differs from what mica would write",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.load()
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("full") {
				full = a.ws.Config().Settings.Diff.Full
			}
			if preview || full {
				var lines []assemble.DiffLine
				title := a.ws.ProjectPath()
				if s.project != nil {
					lines, err = a.ws.PreviewProject(s.project)
				} else {
					title = a.ws.Config().ProfileNixPath()
					lines, err = a.ws.PreviewProfile(s.profile)
				}
				if err != nil {
					return err
				}
				if preview {
					return tui.RunDiff(title, lines)
				}
				a.printf("%s\n", tui.RenderLines(lines, false))
				return nil
			}
			var changes []assemble.SectionChange
			if s.project != nil {
				changes, err = a.ws.DiffProject(s.project)
			} else {
				changes, err = a.ws.DiffProfile(s.profile)
			}
			if err != nil {
				return err
			}
			a.printf("%s", assemble.Summary(changes))
			return nil
		},
	}
	cmd.Flags().BoolVar(&full, "full", false, "Print the full line diff")
	cmd.Flags().BoolVar(&preview, "preview", false, "Open the interactive diff viewer")
	return cmd
}

func (a *app) presetsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "presets [QUERY]",
		Short: "List presets, or fuzzy search them",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, err := a.open()
			if err != nil {
				return err
			}
			catalog, err := ws.Presets()
			if err != nil {
				return err
			}
			query := ""
			if len(args) == 1 {
				query = args[0]
			}
			found := catalog.Search(query)
			if len(found) == 0 {
				a.printf("no presets match %q\n", query)
				return nil
			}
			width := 0
			for _, p := range found {
				width = max(width, len(p.Name))
			}
			for _, p := range found {
				a.printf("%-*s  %3d  %s\n", width, p.Name, p.Order, p.Description)
			}
			return nil
		},
	}
}

func (a *app) generationsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "generations",
		Short: "List recorded profile generations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !a.global {
				return errProfileOnly
			}
			s, err := a.load()
			if err != nil {
				return err
			}
			if len(s.profile.Generations) == 0 {
				a.printf("no generations recorded\n")
				return nil
			}
			for _, gen := range s.profile.Generations {
				a.printf("%4d  %s  %s\n", gen.ID, gen.Timestamp.Format("2006-01-02 15:04"), strings.Join(gen.Packages, " "))
			}
			return nil
		},
	}
}

func (a *app) logCmd() *cobra.Command {
	var lines int
	cmd := &cobra.Command{
		Use:   "log",
		Short: "Show recent mica operations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, err := a.open()
			if err != nil {
				return err
			}
			entries, total := ws.Logbook().Tail(lines)
			if total == 0 {
				a.printf("log is empty\n")
				return nil
			}
			for _, entry := range entries {
				a.printf("%s\n", entry)
			}
			if total > len(entries) {
				a.printf("(%d of %d entries, %s)\n", len(entries), total, ws.Logbook().Path())
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&lines, "lines", "n", 20, "Number of entries to show")
	return cmd
}
