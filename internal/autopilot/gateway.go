package autopilot

import (
	"context"
	"time"

	"postpilot/internal/generator"
	"postpilot/internal/publisher"
	"postpilot/internal/store"
)

// Gateway is the narrow read/write contract the runner needs from the post
// store. Both the JSON-file store and the Redis store satisfy it; the runner
// never owns the collection, only transient records obtained per call.
type Gateway interface {
	GetProfile(ctx context.Context) (store.Profile, bool, error)
	ListPosts(ctx context.Context) ([]store.ScheduledPost, error)
	GetPost(ctx context.Context, id string) (store.ScheduledPost, bool, error)
	GetPillar(ctx context.Context, id string) (store.Pillar, bool, error)
	GetTemplate(ctx context.Context, id string) (store.Template, bool, error)
	ClaimPost(ctx context.Context, id string, claimedAt time.Time, stuckRun time.Duration) (store.ScheduledPost, bool, error)
	FinishPost(ctx context.Context, id string, claimedAt time.Time, patch store.PostPatch) error
}

// Generator produces post copy from assembled context.
type Generator interface {
	Generate(ctx context.Context, gen generator.Context) (generator.Result, error)
}

// Publisher submits finished copy and returns the external post id.
type Publisher interface {
	Publish(ctx context.Context, text string) (publisher.Result, error)
}
