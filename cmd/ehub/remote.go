package main

import (
	"fmt"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"eventhub/internal/domain"
	eventhubsdk "eventhub/sdk/go"
)

// remoteCmd drives a running eventhub server through the Go SDK.
func remoteCmd() *cobra.Command {
	remote := &cobra.Command{Use: "remote", Short: "Talk to a running eventhub server"}
	pf := remote.PersistentFlags()
	pf.String("url", "http://127.0.0.1:8080", "server URL")
	pf.String("api-key", "", "curator API key")
	pf.String("token", "", "curator bearer token")
	_ = viper.BindPFlag("remote-url", pf.Lookup("url"))
	_ = viper.BindPFlag("api-key", pf.Lookup("api-key"))
	_ = viper.BindPFlag("token", pf.Lookup("token"))

	scrape := &cobra.Command{
		Use:   "scrape [source]",
		Short: "Trigger a run on the server",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := newRemoteClient()
			if len(args) == 1 {
				sum, err := c.TriggerOne(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return printSummaries([]domain.RunSummary{fromSDKSummary(sum)})
			}
			sums, err := c.TriggerAll(cmd.Context())
			if err != nil {
				return err
			}
			out := make([]domain.RunSummary, 0, len(sums))
			for _, s := range sums {
				out = append(out, fromSDKSummary(s))
			}
			return printSummaries(out)
		},
	}

	var logSource string
	var logLimit int
	logs := &cobra.Command{
		Use:   "logs",
		Short: "Show recent run logs from the server",
		RunE: func(cmd *cobra.Command, args []string) error {
			items, err := newRemoteClient().RecentLogs(cmd.Context(), logSource, logLimit)
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(items)
			}
			tw := newTable("Started", "Source", "Status", "Found", "New", "Updated", "Inactive", "Error")
			for _, l := range items {
				tw.AppendRow(table.Row{
					l.StartedAt.Format(time.RFC3339), l.SourceName, l.Status,
					l.Counts.Found, l.Counts.New, l.Counts.Updated, l.Counts.Inactive, l.ErrorMessage,
				})
			}
			tw.Render()
			return nil
		},
	}
	logs.Flags().StringVar(&logSource, "source", "", "source slug")
	logs.Flags().IntVarP(&logLimit, "limit", "n", 20, "number of logs")

	var q eventhubsdk.EventQuery
	events := &cobra.Command{
		Use:   "events",
		Short: "List catalog events from the server",
		RunE: func(cmd *cobra.Command, args []string) error {
			page, err := newRemoteClient().ListEvents(cmd.Context(), q)
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(page)
			}
			tw := newTable("ID", "Title", "Starts", "Venue", "Status", "Source")
			for _, ev := range page.Events {
				tw.AppendRow(table.Row{ev.ID, ev.Title, formatTime(ev.StartTime), ev.VenueName, ev.Status, ev.SourceName})
			}
			tw.AppendFooter(table.Row{"", fmt.Sprintf("page %d of %d (%d events)", page.Page, page.TotalPages, page.Total)})
			tw.Render()
			return nil
		},
	}
	events.Flags().StringVar(&q.City, "city", "", "city")
	events.Flags().StringVar(&q.Search, "search", "", "free text search")
	events.Flags().StringVar(&q.Status, "status", "", "status filter")
	events.Flags().StringVar(&q.Category, "category", "", "category filter")
	events.Flags().StringVar(&q.DateFrom, "from", "", "earliest start")
	events.Flags().StringVar(&q.DateTo, "to", "", "latest start")
	events.Flags().BoolVar(&q.IncludeInactive, "include-inactive", false, "include retired events")
	events.Flags().IntVar(&q.Page, "page", 1, "page number")
	events.Flags().IntVar(&q.Limit, "limit", 24, "page size")

	var notes string
	imp := &cobra.Command{
		Use:   "import <id>",
		Short: "Mark an event imported on the server",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ev, err := newRemoteClient().ImportEvent(cmd.Context(), args[0], notes)
			if err != nil {
				return err
			}
			return printJSON(ev)
		},
	}
	imp.Flags().StringVar(&notes, "notes", "", "import notes")

	remote.AddCommand(scrape, logs, events, imp)
	return remote
}

func newRemoteClient() *eventhubsdk.Client {
	c := eventhubsdk.New(viper.GetString("remote-url"))
	c.APIKey = viper.GetString("api-key")
	c.BearerToken = viper.GetString("token")
	return c
}

func fromSDKSummary(s eventhubsdk.RunSummary) domain.RunSummary {
	return domain.RunSummary{
		Source:   s.Source,
		RunID:    s.RunID,
		Found:    s.Found,
		New:      s.New,
		Updated:  s.Updated,
		Inactive: s.Inactive,
		Error:    s.Error,
	}
}
