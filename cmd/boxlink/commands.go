package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/nerrad567/boxlink/internal/boxsync"
)

// defaultWait bounds how long one-shot commands wait for a box.
const defaultWait = 5 * time.Second

func loginURLCmd(gf *globalFlags) *cobra.Command {
	var currentURL string

	cmd := &cobra.Command{
		Use:   "login-url",
		Short: "Print the box login page that redirects back to --url",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := bootstrap(cmd.Context(), gf)
			if err != nil {
				return err
			}
			defer a.Close()

			loginURL, err := a.loginURL(cmd.Context(), currentURL)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), loginURL)
			return nil
		},
	}
	cmd.Flags().StringVar(&currentURL, "url", "", "URL the box should redirect to after login")
	_ = cmd.MarkFlagRequired("url") //nolint:errcheck // flag is defined above
	return cmd
}

// loginURL uses the stored origin, falling back to hub.origin.
func (a *app) loginURL(ctx context.Context, currentURL string) (string, error) {
	u, err := a.core.LoginURL(ctx, currentURL)
	if errors.Is(err, boxsync.ErrNotConfigured) && a.cfg.Hub.Origin != "" {
		return a.core.Session().LoginURL(currentURL, a.cfg.Hub.Origin), nil
	}
	return u, err
}

func servicesCmd(gf *globalFlags) *cobra.Command {
	var (
		refresh bool
		tag     string
		asJSON  bool
		wait    time.Duration
	)

	cmd := &cobra.Command{
		Use:     "services",
		Aliases: []string{"ls"},
		Short:   "List cached services, optionally refreshing them from the box",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := bootstrap(ctx, gf)
			if err != nil {
				return err
			}
			defer a.Close()

			if refresh {
				if err := a.connect(ctx, wait); err != nil {
					return err
				}
				if _, err := a.core.Reconciler().RunCycle(ctx); err != nil {
					return fmt.Errorf("refreshing services: %w", err)
				}
			}

			services, err := a.core.Services(ctx)
			if err != nil {
				return err
			}
			if tag != "" {
				services = slices.DeleteFunc(services, func(s boxsync.Service) bool { return !s.HasTag(tag) })
			}
			return printServices(cmd.OutOrStdout(), services, asJSON)
		},
	}
	cmd.Flags().BoolVar(&refresh, "refresh", false, "Fetch services from the box before listing")
	cmd.Flags().StringVar(&tag, "tag", "", "Only list services carrying this tag")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON instead of a table")
	cmd.Flags().DurationVar(&wait, "wait", defaultWait, "How long to wait for a box when refreshing")
	return cmd
}

func boxesCmd(gf *globalFlags) *cobra.Command {
	var (
		asJSON bool
		wait   time.Duration
	)

	cmd := &cobra.Command{
		Use:   "boxes",
		Short: "Browse for boxes and list the ones found",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := bootstrap(ctx, gf)
			if err != nil {
				return err
			}
			defer a.Close()

			if _, err := a.core.Init(ctx, ""); err != nil {
				return err
			}
			a.core.Scheduler().Disable()

			// Boxes keep arriving for as long as discovery runs.
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(wait):
			}
			return printBoxes(cmd.OutOrStdout(), a.core, asJSON)
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON instead of a table")
	cmd.Flags().DurationVar(&wait, "wait", defaultWait, "How long to browse")
	return cmd
}

// connect starts the core without polling and waits until a box is
// selected.
func (a *app) connect(ctx context.Context, wait time.Duration) error {
	if _, err := a.core.Init(ctx, ""); err != nil {
		return err
	}
	a.core.Scheduler().Disable()

	deadline := time.NewTimer(wait)
	defer deadline.Stop()
	tick := time.NewTicker(100 * time.Millisecond)
	defer tick.Stop()
	for !a.core.Configured(ctx) {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline.C:
			return fmt.Errorf("no box found within %s: %w", wait, boxsync.ErrNotConfigured)
		case <-tick.C:
		}
	}
	return nil
}

func printServices(w io.Writer, services []boxsync.Service, asJSON bool) error {
	if services == nil {
		services = []boxsync.Service{}
	}
	slices.SortFunc(services, func(a, b boxsync.Service) int { return strings.Compare(a.ID, b.ID) })
	if asJSON {
		return writeJSON(w, services)
	}
	if len(services) == 0 {
		fmt.Fprintln(w, "no services cached")
		return nil
	}

	rows := make([][]string, len(services))
	for i, s := range services {
		rows[i] = []string{s.ID, orDash(s.Type), orDash(s.Adapter), orDash(strings.Join(s.Tags, ",")), stateSummary(s.State)}
	}
	fmt.Fprintln(w, renderTable([]string{"ID", "Type", "Adapter", "Tags", "State"}, rows))
	return nil
}

type boxRow struct {
	Index     int      `json:"index"`
	Name      string   `json:"name"`
	Port      int      `json:"port"`
	Addresses []string `json:"addresses"`
	Active    bool     `json:"active"`
}

func printBoxes(w io.Writer, core *boxsync.Core, asJSON bool) error {
	boxes := core.Boxes()
	_, active, hasActive := core.ActiveBox()

	out := make([]boxRow, len(boxes))
	for i, b := range boxes {
		out[i] = boxRow{Index: i, Name: b.Name, Port: b.Port, Addresses: b.Addresses, Active: hasActive && i == active}
	}
	if asJSON {
		return writeJSON(w, out)
	}
	if len(out) == 0 {
		fmt.Fprintln(w, "no boxes found")
		return nil
	}

	rows := make([][]string, len(out))
	for i, b := range out {
		mark := ""
		if b.Active {
			mark = "*"
		}
		rows[i] = []string{strconv.Itoa(b.Index), mark, b.Name, strconv.Itoa(b.Port), strings.Join(b.Addresses, ", ")}
	}
	fmt.Fprintln(w, renderTable([]string{"#", "Active", "Name", "Port", "Addresses"}, rows))
	return nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// stateSummary renders state as compact JSON, cut to a table-friendly width.
func stateSummary(state boxsync.State) string {
	if len(state) == 0 {
		return "-"
	}
	b, err := json.Marshal(state)
	if err != nil {
		return "?"
	}
	const maxWidth = 48
	if len(b) > maxWidth {
		return string(b[:maxWidth-3]) + "..."
	}
	return string(b)
}

func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}
