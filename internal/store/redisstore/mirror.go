package redisstore

import (
	"context"
	"time"

	"postpilot/internal/store"
)

// Mirror pairs the file-backed manager with the redis queue. The file stays
// the content library and source of truth for authoring; every write is
// copied into redis so a watch loop on another host sees the same queue, and
// Load overlays the queue's post records so run outcomes written by that
// host show up in the dashboard.
//
// Ideas are file-only: the runner never reads them, their fields are
// denormalized onto the post at scheduling time.
type Mirror struct {
	*store.Manager
	queue *Store
}

func NewMirror(m *store.Manager, queue *Store) *Mirror {
	return &Mirror{Manager: m, queue: queue}
}

const mirrorTimeout = 3 * time.Second

// Load returns the file document with queue post records overlaid by ID.
// An unreachable queue degrades to the plain file view.
func (mr *Mirror) Load() (store.Document, error) {
	doc, err := mr.Manager.Load()
	if err != nil {
		return doc, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), mirrorTimeout)
	defer cancel()
	queued, err := mr.queue.ListPosts(ctx)
	if err != nil {
		return doc, nil
	}
	byID := make(map[string]store.ScheduledPost, len(queued))
	for _, p := range queued {
		byID[p.ID] = p
	}
	for i, p := range doc.Posts {
		if q, ok := byID[p.ID]; ok {
			doc.Posts[i] = q
		}
	}
	return doc, nil
}

func (mr *Mirror) UpsertProfile(ctx context.Context, profile store.Profile) error {
	if err := mr.Manager.UpsertProfile(ctx, profile); err != nil {
		return err
	}
	got, ok, err := mr.Manager.GetProfile(ctx)
	if err != nil || !ok {
		return err
	}
	return mr.queue.PutProfile(ctx, got)
}

func (mr *Mirror) UpsertPillar(ctx context.Context, pillar store.Pillar) (store.Pillar, error) {
	out, err := mr.Manager.UpsertPillar(ctx, pillar)
	if err != nil {
		return out, err
	}
	return out, mr.queue.PutPillar(ctx, out)
}

func (mr *Mirror) DeletePillar(ctx context.Context, id string) error {
	if err := mr.Manager.DeletePillar(ctx, id); err != nil {
		return err
	}
	return mr.queue.DeletePillar(ctx, id)
}

func (mr *Mirror) UpsertTemplate(ctx context.Context, tpl store.Template) (store.Template, error) {
	out, err := mr.Manager.UpsertTemplate(ctx, tpl)
	if err != nil {
		return out, err
	}
	return out, mr.queue.PutTemplate(ctx, out)
}

func (mr *Mirror) DeleteTemplate(ctx context.Context, id string) error {
	if err := mr.Manager.DeleteTemplate(ctx, id); err != nil {
		return err
	}
	return mr.queue.DeleteTemplate(ctx, id)
}

func (mr *Mirror) UpsertPost(ctx context.Context, post store.ScheduledPost) (store.ScheduledPost, error) {
	out, err := mr.Manager.UpsertPost(ctx, post)
	if err != nil {
		return out, err
	}
	return out, mr.queue.PutPost(ctx, out)
}

func (mr *Mirror) UpdatePostStatus(ctx context.Context, id string, status string, patch store.PostPatch) error {
	if err := mr.Manager.UpdatePostStatus(ctx, id, status, patch); err != nil {
		return err
	}
	got, ok, err := mr.Manager.GetPost(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	return mr.queue.PutPost(ctx, got)
}

func (mr *Mirror) DeletePost(ctx context.Context, id string) error {
	if err := mr.Manager.DeletePost(ctx, id); err != nil {
		return err
	}
	return mr.queue.DeletePost(ctx, id)
}
