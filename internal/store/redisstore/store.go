// Package redisstore is an alternative post-store gateway backed by Redis,
// for operators running the watch loop on a different host than the
// dashboard. It covers the read/claim/finish contract the autopilot runner
// needs plus the upserts required to seed a queue.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"postpilot/internal/store"
)

const defaultPrefix = "postpilot"

type Store struct {
	client *redis.Client
	prefix string
}

func New(redisURL string, prefix string) (*Store, error) {
	url := strings.TrimSpace(redisURL)
	if url == "" {
		return nil, errors.New("redis url is required")
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	client := redis.NewClient(opts)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	p := strings.TrimSpace(prefix)
	if p == "" {
		p = defaultPrefix
	}
	return &Store{client: client, prefix: p}, nil
}

func (s *Store) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Close()
}

func (s *Store) key(parts ...string) string {
	return s.prefix + ":" + strings.Join(parts, ":")
}

func (s *Store) getJSON(ctx context.Context, key string, out any) (bool, error) {
	data, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(data, out); err != nil {
		return false, fmt.Errorf("parse %s: %w", key, err)
	}
	return true, nil
}

func (s *Store) setJSON(ctx context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, key, data, 0).Err()
}

// --- profile, pillars, templates ---

func (s *Store) GetProfile(ctx context.Context) (store.Profile, bool, error) {
	var p store.Profile
	ok, err := s.getJSON(ctx, s.key("profile"), &p)
	return p, ok, err
}

func (s *Store) UpsertProfile(ctx context.Context, profile store.Profile) error {
	if strings.TrimSpace(profile.BrandName) == "" {
		return errors.New("brand_name is required")
	}
	profile.UpdatedAt = time.Now().UTC()
	return s.setJSON(ctx, s.key("profile"), profile)
}

func (s *Store) GetPillar(ctx context.Context, id string) (store.Pillar, bool, error) {
	var p store.Pillar
	ok, err := s.getJSON(ctx, s.key("pillar", strings.TrimSpace(id)), &p)
	return p, ok, err
}

func (s *Store) UpsertPillar(ctx context.Context, pillar store.Pillar) (store.Pillar, error) {
	if strings.TrimSpace(pillar.ID) == "" {
		pillar.ID = store.NewID()
	}
	pillar.UpdatedAt = time.Now().UTC()
	if pillar.CreatedAt.IsZero() {
		pillar.CreatedAt = pillar.UpdatedAt
	}
	if err := s.setJSON(ctx, s.key("pillar", pillar.ID), pillar); err != nil {
		return store.Pillar{}, err
	}
	return pillar, nil
}

func (s *Store) GetTemplate(ctx context.Context, id string) (store.Template, bool, error) {
	var t store.Template
	ok, err := s.getJSON(ctx, s.key("template", strings.TrimSpace(id)), &t)
	return t, ok, err
}

func (s *Store) UpsertTemplate(ctx context.Context, tpl store.Template) (store.Template, error) {
	if strings.TrimSpace(tpl.ID) == "" {
		tpl.ID = store.NewID()
	}
	tpl.UpdatedAt = time.Now().UTC()
	if tpl.CreatedAt.IsZero() {
		tpl.CreatedAt = tpl.UpdatedAt
	}
	if err := s.setJSON(ctx, s.key("template", tpl.ID), tpl); err != nil {
		return store.Template{}, err
	}
	return tpl, nil
}

// --- scheduled posts ---

func (s *Store) ListPosts(ctx context.Context) ([]store.ScheduledPost, error) {
	ids, err := s.client.SMembers(ctx, s.key("posts")).Result()
	if err != nil {
		return nil, err
	}
	out := make([]store.ScheduledPost, 0, len(ids))
	for _, id := range ids {
		var p store.ScheduledPost
		ok, err := s.getJSON(ctx, s.key("post", id), &p)
		if err != nil {
			return nil, err
		}
		if !ok {
			// Dangling index entry; drop it.
			_ = s.client.SRem(ctx, s.key("posts"), id).Err()
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

func (s *Store) GetPost(ctx context.Context, id string) (store.ScheduledPost, bool, error) {
	var p store.ScheduledPost
	ok, err := s.getJSON(ctx, s.key("post", strings.TrimSpace(id)), &p)
	return p, ok, err
}

func (s *Store) UpsertPost(ctx context.Context, post store.ScheduledPost) (store.ScheduledPost, error) {
	if strings.TrimSpace(post.ID) == "" {
		post.ID = store.NewID()
	}
	if strings.TrimSpace(post.Status) == "" {
		post.Status = store.StatusScheduled
	}
	if !store.IsKnownStatus(post.Status) {
		return store.ScheduledPost{}, fmt.Errorf("unknown status: %q", post.Status)
	}
	post.UpdatedAt = time.Now().UTC()
	if post.CreatedAt.IsZero() {
		post.CreatedAt = post.UpdatedAt
	}
	if err := s.setJSON(ctx, s.key("post", post.ID), post); err != nil {
		return store.ScheduledPost{}, err
	}
	if err := s.client.SAdd(ctx, s.key("posts"), post.ID).Err(); err != nil {
		return store.ScheduledPost{}, err
	}
	return post, nil
}

// ClaimPost takes the per-post claim key with SET NX and a TTL at the
// stuck-run horizon, so a crashed run releases its claims by expiry.
func (s *Store) ClaimPost(ctx context.Context, id string, claimedAt time.Time, stuckRun time.Duration) (store.ScheduledPost, bool, error) {
	want := strings.TrimSpace(id)
	if want == "" {
		return store.ScheduledPost{}, false, errors.New("id is required")
	}
	if claimedAt.IsZero() {
		claimedAt = time.Now().UTC()
	}
	claimedAt = claimedAt.UTC()
	if stuckRun <= 0 {
		stuckRun = 2 * time.Hour
	}

	post, ok, err := s.GetPost(ctx, want)
	if err != nil || !ok {
		return store.ScheduledPost{}, false, err
	}
	if post.Status != store.StatusScheduled && post.Status != store.StatusFailed {
		return store.ScheduledPost{}, false, nil
	}

	token := claimedAt.Format(time.RFC3339Nano)
	acquired, err := s.client.SetNX(ctx, s.key("claim", want), token, stuckRun).Result()
	if err != nil {
		return store.ScheduledPost{}, false, err
	}
	if !acquired {
		return store.ScheduledPost{}, false, nil
	}
	post.RunningAt = claimedAt
	return post, true, nil
}

func (s *Store) FinishPost(ctx context.Context, id string, claimedAt time.Time, patch store.PostPatch) error {
	want := strings.TrimSpace(id)
	if want == "" {
		return errors.New("id is required")
	}
	claimKey := s.key("claim", want)
	token, err := s.client.Get(ctx, claimKey).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return err
	}
	if errors.Is(err, redis.Nil) || token != claimedAt.UTC().Format(time.RFC3339Nano) {
		return store.ErrStaleClaim
	}

	post, ok, err := s.GetPost(ctx, want)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: post %s", store.ErrNotFound, want)
	}
	if patch.Status != "" && patch.Status != post.Status {
		if !store.CanTransition(post.Status, patch.Status) {
			return fmt.Errorf("invalid post status transition: %q -> %q (post_id=%s)", post.Status, patch.Status, want)
		}
		post.Status = patch.Status
	}
	if patch.Content != nil {
		post.Content = *patch.Content
	}
	if patch.Error != nil {
		post.Error = strings.TrimSpace(*patch.Error)
	}
	if patch.ExternalPostID != nil {
		post.ExternalPostID = strings.TrimSpace(*patch.ExternalPostID)
	}
	if patch.Metrics != nil {
		if !patch.Metrics.GeneratedAt.IsZero() {
			post.Metrics.GeneratedAt = patch.Metrics.GeneratedAt
		}
		if !patch.Metrics.PublishedAt.IsZero() {
			post.Metrics.PublishedAt = patch.Metrics.PublishedAt
		}
		if strings.TrimSpace(patch.Metrics.Model) != "" {
			post.Metrics.Model = strings.TrimSpace(patch.Metrics.Model)
		}
	}
	post.RunningAt = time.Time{}
	post.UpdatedAt = time.Now().UTC()
	if err := s.setJSON(ctx, s.key("post", want), post); err != nil {
		return err
	}
	return s.client.Del(ctx, claimKey).Err()
}

// --- mirror writes ---
//
// The Put and Delete methods write records verbatim, timestamps included.
// They exist for the mirror: the file store assigns IDs and timestamps, and
// the queue copy must match it byte for byte.

func (s *Store) PutProfile(ctx context.Context, profile store.Profile) error {
	return s.setJSON(ctx, s.key("profile"), profile)
}

func (s *Store) PutPillar(ctx context.Context, pillar store.Pillar) error {
	if strings.TrimSpace(pillar.ID) == "" {
		return errors.New("pillar id is required")
	}
	return s.setJSON(ctx, s.key("pillar", pillar.ID), pillar)
}

func (s *Store) PutTemplate(ctx context.Context, tpl store.Template) error {
	if strings.TrimSpace(tpl.ID) == "" {
		return errors.New("template id is required")
	}
	return s.setJSON(ctx, s.key("template", tpl.ID), tpl)
}

func (s *Store) PutPost(ctx context.Context, post store.ScheduledPost) error {
	if strings.TrimSpace(post.ID) == "" {
		return errors.New("post id is required")
	}
	if err := s.setJSON(ctx, s.key("post", post.ID), post); err != nil {
		return err
	}
	return s.client.SAdd(ctx, s.key("posts"), post.ID).Err()
}

func (s *Store) DeletePillar(ctx context.Context, id string) error {
	return s.client.Del(ctx, s.key("pillar", strings.TrimSpace(id))).Err()
}

func (s *Store) DeleteTemplate(ctx context.Context, id string) error {
	return s.client.Del(ctx, s.key("template", strings.TrimSpace(id))).Err()
}

func (s *Store) DeletePost(ctx context.Context, id string) error {
	want := strings.TrimSpace(id)
	if want == "" {
		return errors.New("id is required")
	}
	if err := s.client.SRem(ctx, s.key("posts"), want).Err(); err != nil {
		return err
	}
	return s.client.Del(ctx, s.key("post", want), s.key("claim", want)).Err()
}
