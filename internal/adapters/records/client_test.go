package records

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tasteshift/live/internal/app"
	"github.com/tasteshift/live/internal/app/orch"
	"github.com/tasteshift/live/internal/config"
	"github.com/tasteshift/live/internal/core"
	"github.com/tasteshift/live/internal/domain"
	"github.com/tasteshift/live/internal/store"

	httpadapter "github.com/tasteshift/live/internal/adapters/http"
)

var _ core.RecordClient = (*Client)(nil)

func newAPI(t *testing.T, limit int) *Client {
	t.Helper()
	gin.SetMode(gin.TestMode)
	cfg := &config.Config{
		Mode:       "test",
		Secret:     "test",
		ReadLimit:  1 << 16,
		PingPeriod: time.Minute,
		Records:    config.RecordsConfig{CommentLimit: limit, CommentWindow: time.Minute},
	}
	r := httpadapter.SetupRouter(context.Background(), cfg, orch.New(app.SimplePolicy{}), store.NewMemStore())
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return New(srv.URL+"/api/", WithHTTPClient(srv.Client()))
}

func TestClientRoundTrip(t *testing.T) {
	c := newAPI(t, 0)
	ctx := context.Background()

	rec, err := c.Create(ctx, domain.LiveRecord{UserID: "u1", IsLive: true})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := c.AppendComment(ctx, rec.ID, "ann", "yum"); err != nil {
		t.Fatalf("AppendComment: %v", err)
	}
	if err := c.IncrementLike(ctx, rec.ID); err != nil {
		t.Fatalf("IncrementLike: %v", err)
	}

	got, err := c.Fetch(ctx, rec.ID)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if got.Likes != 1 || len(got.Comments) != 1 || got.Comments[0].Text != "yum" {
		t.Fatalf("unexpected record %+v", got)
	}

	recs, err := c.List(ctx)
	if err != nil || len(recs) != 1 {
		t.Fatalf("List: %v %+v", err, recs)
	}
}

func TestClientErrors(t *testing.T) {
	c := newAPI(t, 1)
	ctx := context.Background()

	rec, err := c.Create(ctx, domain.LiveRecord{UserID: "owner", IsLive: true})
	if err != nil {
		t.Fatal(err)
	}
	_ = c.AppendComment(ctx, rec.ID, "ann", "first")

	tests := []struct {
		name string
		err  error
		want error
	}{
		{"fetch missing", func() error { _, err := c.Fetch(ctx, "nope"); return err }(), domain.ErrRecordNotFound},
		{"like missing", c.IncrementLike(ctx, "nope"), domain.ErrRecordNotFound},
		{"delete stranger", c.Delete(ctx, rec.ID, "other"), domain.ErrForbidden},
		{"comment flood", c.AppendComment(ctx, rec.ID, "ann", "second"), domain.ErrRateLimited},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !errors.Is(tt.err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, tt.err)
			}
		})
	}

	if err := c.Delete(ctx, rec.ID, "owner"); err != nil {
		t.Fatalf("owner delete: %v", err)
	}
}

func TestClientContextCancel(t *testing.T) {
	c := newAPI(t, 0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := c.Fetch(ctx, "x"); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
