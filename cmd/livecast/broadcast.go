package main

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/tasteshift/live/internal/domain"
	"github.com/tasteshift/live/internal/live"
	"github.com/tasteshift/live/internal/media"
)

var broadcastCmd = &cobra.Command{
	Use:   "broadcast",
	Short: "Go live from this machine's camera and microphone",
	Long: `Registers your channel in the directory and serves every viewer that calls
it. Without a camera a simulated feed is sent instead.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		channel, _ := cmd.Flags().GetString("channel")
		ephemeral, _ := cmd.Flags().GetBool("ephemeral")
		plain, _ := cmd.Flags().GetBool("plain")

		api := recordsClient()
		req := live.OpenRequest{
			Role:    domain.RoleBroadcaster,
			Self:    user.ID,
			Channel: domain.Identity(channel),
			Backing: domain.Ephemeral{},
		}

		deps := live.Deps{
			Directories: directories(),
			Capturer:    media.HardwareCapturer(),
			Config:      cfg.Live,
		}

		if !ephemeral {
			rec, err := live.GoLive(ctx, api, user.ID, req.Channel)
			if err != nil {
				return err
			}
			req.Channel = rec.Channel()
			req.Backing = domain.Backed{ID: rec.ID}
			deps.Records = api
			defer func() {
				ectx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := live.EndLive(ectx, api, rec); err != nil {
					log.Warn().Err(err).Str("module", "livecast").Str("record", string(rec.ID)).Msg("live record not removed")
				}
			}()
		}

		view, err := live.Open(ctx, deps, req)
		if err != nil {
			return err
		}
		defer view.Wait()
		defer view.Close()

		return present(ctx, view, presenter{plain: plain, author: user.Handle})
	},
}

func init() {
	rootCmd.AddCommand(broadcastCmd)
	broadcastCmd.Flags().StringP("channel", "c", "", "channel to register (default tasteshift-<user>)")
}
