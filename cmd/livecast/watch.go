package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/tasteshift/live/internal/domain"
	"github.com/tasteshift/live/internal/live"
	"github.com/tasteshift/live/internal/media"
)

var watchCmd = &cobra.Command{
	Use:   "watch [broadcaster_user_id]",
	Short: "Watch a live broadcast",
	Long: `Looks up the broadcaster's live record, calls their channel and plays the
received media. Use --channel to call a channel directly and --record to
open a known live record.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		channel, _ := cmd.Flags().GetString("channel")
		recordID, _ := cmd.Flags().GetString("record")
		recordDir, _ := cmd.Flags().GetString("record-dir")
		ephemeral, _ := cmd.Flags().GetBool("ephemeral")
		plain, _ := cmd.Flags().GetBool("plain")

		var target domain.UserID
		if len(args) == 1 {
			target = domain.UserID(args[0])
		}
		if target == "" && channel == "" && recordID == "" {
			return errors.New("give a broadcaster user id, --channel or --record")
		}

		api := recordsClient()
		req := live.OpenRequest{
			Role:    domain.RoleViewer,
			Self:    user.ID,
			Target:  target,
			Channel: domain.Identity(channel),
			Backing: domain.Ephemeral{},
		}

		if !ephemeral {
			var (
				rec domain.LiveRecord
				err error
			)
			switch {
			case recordID != "":
				rec, err = api.Fetch(ctx, domain.RecordID(recordID))
			case target != "":
				rec, err = live.FindLive(ctx, api, target)
			}
			switch {
			case err != nil && req.Channel == "":
				return errors.New(domain.Reason(err))
			case err == nil && rec.ID != "":
				req.Target = rec.UserID
				if req.Channel == "" {
					req.Channel = rec.Channel()
				}
				req.Backing = domain.Backed{ID: rec.ID}
			}
		}

		counter := &media.Counter{}
		deps := live.Deps{
			Directories: directories(),
			SinkOptions: []media.SinkOption{media.WithOutput(counter)},
			Config:      cfg.Live,
		}
		if !ephemeral {
			deps.Records = api
		}
		if recordDir == "" {
			recordDir = cfg.Live.RecordDir
		}
		if recordDir != "" {
			rec, err := media.NewRecorder(recordDir, fmt.Sprintf("%s-%d", user.ID, time.Now().Unix()))
			if err != nil {
				return err
			}
			defer rec.Close()
			deps.SinkOptions = append(deps.SinkOptions, media.WithPacketTap(rec))
		}

		view, err := live.Open(ctx, deps, req)
		if err != nil {
			return err
		}
		defer view.Wait()
		defer view.Close()

		return present(ctx, view, presenter{plain: plain, author: user.Handle, counter: counter})
	},
}

func init() {
	rootCmd.AddCommand(watchCmd)
	watchCmd.Flags().StringP("channel", "c", "", "channel to call directly")
	watchCmd.Flags().StringP("record", "r", "", "live record id to open")
	watchCmd.Flags().String("record-dir", "", "save received media as .ivf/.ogg in this directory")
}
