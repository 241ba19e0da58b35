package domain

import "time"

// RecordID identifies the document that backs a live session.
type RecordID string

type Comment struct {
	ID     string `json:"id,omitempty"`
	Author string `json:"user"`
	Text   string `json:"text"`
}

// LiveRecord is the document store view of a live story.
type LiveRecord struct {
	ID        RecordID  `json:"id"`
	UserID    UserID    `json:"userId"`
	MediaURL  string    `json:"mediaUrl,omitempty"`
	IsLive    bool      `json:"isLive"`
	ChannelID Identity  `json:"channelId,omitempty"`
	Likes     int       `json:"likes"`
	Comments  []Comment `json:"comments"`
	CreatedAt time.Time `json:"timestamp"`
}

// Channel resolves the rendezvous name of the record's broadcaster.
func (r LiveRecord) Channel() Identity {
	return ResolveChannel(r.ChannelID, r.UserID)
}

// LiveMetadata is what a live view displays next to the video.
type LiveMetadata struct {
	Viewers  int       `json:"viewers"`
	Likes    int       `json:"likes"`
	Comments []Comment `json:"comments"`
}

// Backing tells the metadata sync whether a session has a stored record.
// It is either Backed or Ephemeral.
type Backing interface {
	backing()
}

// Backed is a session persisted under a record id.
type Backed struct {
	ID RecordID
}

// Ephemeral is a demo session without a record. Nothing is sent anywhere.
type Ephemeral struct{}

func (Backed) backing()    {}
func (Ephemeral) backing() {}
