package live

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/tasteshift/live/internal/domain"
)

// Lobby is the part of the records API used to announce and find live
// sessions.
type Lobby interface {
	Create(ctx context.Context, rec domain.LiveRecord) (domain.LiveRecord, error)
	List(ctx context.Context) ([]domain.LiveRecord, error)
	Delete(ctx context.Context, id domain.RecordID, owner domain.UserID) error
}

// GoLive announces a broadcast by uid. The record carries the channel
// viewers will call.
func GoLive(ctx context.Context, lobby Lobby, uid domain.UserID, channel domain.Identity) (domain.LiveRecord, error) {
	rec, err := lobby.Create(ctx, domain.LiveRecord{
		UserID:    uid,
		IsLive:    true,
		ChannelID: domain.ResolveChannel(channel, uid),
	})
	if err != nil {
		return domain.LiveRecord{}, fmt.Errorf("go live: %w", err)
	}
	log.Info().Str("module", "live.lobby").Str("record", string(rec.ID)).Str("channel", rec.Channel().String()).Msg("live record created")
	return rec, nil
}

// EndLive removes the record created by GoLive. A record that is already
// gone is not an error.
func EndLive(ctx context.Context, lobby Lobby, rec domain.LiveRecord) error {
	err := lobby.Delete(ctx, rec.ID, rec.UserID)
	if err != nil && !errors.Is(err, domain.ErrRecordNotFound) {
		return fmt.Errorf("end live: %w", err)
	}
	return nil
}

// FindLive returns the newest live record of target.
func FindLive(ctx context.Context, lobby Lobby, target domain.UserID) (domain.LiveRecord, error) {
	recs, err := lobby.List(ctx)
	if err != nil {
		return domain.LiveRecord{}, fmt.Errorf("find live: %w", err)
	}
	var (
		found domain.LiveRecord
		ok    bool
	)
	for _, r := range recs {
		if !r.IsLive || r.UserID != target {
			continue
		}
		if !ok || r.CreatedAt.After(found.CreatedAt) {
			found, ok = r, true
		}
	}
	if !ok {
		return domain.LiveRecord{}, domain.ErrLiveEnded
	}
	return found, nil
}
