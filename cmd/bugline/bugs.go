package main

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"bugline/internal/app"
	"bugline/internal/domain"
	"bugline/internal/metric"
	"bugline/internal/store/bugs"
	buglinesdk "bugline/sdk/go"
)

func bugsCmd() *cobra.Command {
	b := &cobra.Command{Use: "bugs", Short: "Work with bugs"}
	b.AddCommand(bugsListCmd())
	b.AddCommand(bugsAddCmd())
	b.AddCommand(bugsResolveCmd())
	b.AddCommand(bugsAssignCmd())
	return b
}

// withClient builds a client, loads the bug list, runs fn, waits for every
// call and turns toasts and diagnostics into an error. Store metrics go to
// --metrics-file when it is set.
func withClient(cmd *cobra.Command, fn func(c *app.Client) error) (err error) {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	reg := prometheus.NewRegistry()
	m := metric.NewMetrics()
	if err := m.RegisterStore(reg); err != nil {
		return err
	}
	defer func() {
		if werr := writeMetrics(reg, viper.GetString("metrics-file")); werr != nil {
			err = errors.Join(err, werr)
		}
	}()

	c := app.NewClient(cmd.Context(), app.Options{
		BaseURL:     cfg.Client.BaseURL,
		Timeout:     cfg.Client.Timeout,
		CacheWindow: cfg.Client.CacheWindow,
		Logger:      logger,
		Metrics:     m,
	})
	c.LoadBugs()
	c.Wait()
	if err := settle(c); err != nil {
		return fmt.Errorf("load bugs: %w", err)
	}
	if err := fn(c); err != nil {
		return err
	}
	c.Wait()
	return settle(c)
}

// writeMetrics dumps g in the node_exporter textfile format.
func writeMetrics(g prometheus.Gatherer, path string) error {
	if path == "" {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, g); err != nil {
		return fmt.Errorf("write metrics: %w", err)
	}
	logger.Debug("metrics written", zap.String("path", path))
	return nil
}

func settle(c *app.Client) error {
	var errs []error
	for _, msg := range c.Toasts() {
		errs = append(errs, errors.New(msg))
	}
	errs = append(errs, c.Diagnostics()...)
	return errors.Join(errs...)
}

func bugsListCmd() *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List unresolved bugs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd, func(c *app.Client) error {
				items := c.UnresolvedBugs()
				if all {
					items = c.State().Bugs.List
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				printBugs(items)
				if last := c.State().Bugs.LastFetch; last != nil {
					fmt.Printf("%d bugs, fetched %s\n", len(items), humanize.Time(*last))
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "include resolved bugs")
	return cmd
}

func printBugs(items []domain.Bug) {
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(table.Row{"ID", "Description", "User", "Status"})
	for _, b := range items {
		user := ""
		if b.UserID != nil {
			user = strconv.FormatInt(*b.UserID, 10)
		}
		status := "open"
		if b.Resolved {
			status = "resolved"
		}
		tw.AppendRow(table.Row{b.ID, b.Description, user, status})
	}
	tw.Render()
}

func bugsAddCmd() *cobra.Command {
	var userID int64
	cmd := &cobra.Command{
		Use:   "add <description>",
		Short: "File a bug",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			nb := bugs.NewBug{Description: strings.Join(args, " ")}
			if cmd.Flags().Changed("user") {
				nb.UserID = &userID
			}
			return withClient(cmd, func(c *app.Client) error {
				before := len(c.State().Bugs.List)
				c.AddBug(nb)
				c.Wait()
				list := c.State().Bugs.List
				if len(list) > before {
					return printResult(list[len(list)-1])
				}
				return nil
			})
		},
	}
	cmd.Flags().Int64Var(&userID, "user", 0, "assignee user id")
	return cmd
}

func bugsResolveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "resolve <id>",
		Short: "Mark a bug resolved",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid bug id %q", args[0])
			}
			return withClient(cmd, func(c *app.Client) error {
				c.ResolveBug(id)
				c.Wait()
				return printBug(c, id)
			})
		},
	}
}

func bugsAssignCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "assign <id> <user>",
		Short: "Assign a bug to a user",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid bug id %q", args[0])
			}
			userID, err := strconv.ParseInt(args[1], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid user id %q", args[1])
			}
			return withClient(cmd, func(c *app.Client) error {
				c.AssignUser(id, userID)
				c.Wait()
				return printBug(c, id)
			})
		},
	}
}

func printBug(c *app.Client, id int64) error {
	for _, b := range c.State().Bugs.List {
		if b.ID == id {
			return printResult(b)
		}
	}
	return nil
}

func printResult(b domain.Bug) error {
	if viper.GetBool("json") {
		return printJSON(b)
	}
	printBugs([]domain.Bug{b})
	return nil
}

func eventsCmd() *cobra.Command {
	ev := &cobra.Command{Use: "events", Short: "Activity log"}
	ev.AddCommand(eventsTailCmd())
	return ev
}

func eventsTailCmd() *cobra.Command {
	var n int
	var evtType string
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Show recent events",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			client := buglinesdk.New(cfg.Client.BaseURL)
			client.Timeout = cfg.Client.Timeout
			items, err := client.Events(cmd.Context(), n, evtType)
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(items)
			}
			tw := table.NewWriter()
			tw.SetOutputMirror(os.Stdout)
			tw.AppendHeader(table.Row{"ID", "When", "Type", "Bug", "Changes"})
			for _, e := range items {
				when := e.TS
				if ts, err := time.Parse(time.RFC3339Nano, e.TS); err == nil {
					when = humanize.Time(ts)
				}
				tw.AppendRow(table.Row{e.ID, when, e.Type, e.EntityID, formatPayload(e.Payload)})
			}
			tw.Render()
			return nil
		},
	}
	cmd.Flags().IntVar(&n, "limit", 20, "number of events")
	cmd.Flags().StringVar(&evtType, "type", "", "event type filter (bug.created, bug.updated)")
	return cmd
}

func formatPayload(p map[string]any) string {
	parts := make([]string, 0, len(p))
	for k, v := range p {
		parts = append(parts, fmt.Sprintf("%s=%v", k, v))
	}
	sort.Strings(parts)
	return strings.Join(parts, " ")
}
