package main

import (
	"encoding/json"

	"github.com/hpcloud/tail"
	"github.com/spf13/cobra"

	"github.com/grovetools/mesh/pkg/paths"
	"github.com/grovetools/mesh/pkg/presence"
)

func newFeedCmd() *cobra.Command {
	var follow bool
	var limit int

	cmd := &cobra.Command{
		Use:   "feed",
		Short: "Show the mesh activity feed",
		RunE: func(cmd *cobra.Command, args []string) error {
			feed := presence.NewFeed(0)
			events, err := feed.Recent(limit)
			if err != nil {
				return err
			}
			for _, event := range events {
				line, err := presence.FormatLine(event)
				if err != nil {
					continue
				}
				cmd.Println(line)
			}

			if !follow {
				return nil
			}

			// Tail from the end so only new events stream.
			t, err := tail.TailFile(paths.FeedPath(), tail.Config{
				Follow:    true,
				ReOpen:    true,
				MustExist: false,
				Location:  &tail.SeekInfo{Offset: 0, Whence: 2},
				Logger:    tail.DiscardingLogger,
			})
			if err != nil {
				return err
			}
			for line := range t.Lines {
				var event presence.Event
				if err := json.Unmarshal([]byte(line.Text), &event); err != nil {
					continue
				}
				formatted, err := presence.FormatLine(event)
				if err != nil {
					continue
				}
				cmd.Println(formatted)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&follow, "follow", false, "stream new events as they arrive")
	cmd.Flags().IntVar(&limit, "limit", 20, "number of recent events to show")
	return cmd
}
