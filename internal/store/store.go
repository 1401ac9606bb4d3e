package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrStaleClaim is returned by FinishPost when another writer advanced the
// post after our claim. The in-memory outcome is dropped, not persisted.
var ErrStaleClaim = errors.New("post claim is stale")

// ErrNotFound is returned by update paths when the target record is gone.
var ErrNotFound = errors.New("record not found")

const lockTimeout = 5 * time.Second

// Manager owns the JSON document on disk. All mutations take a sidecar
// .lock file and rewrite the document atomically, so concurrent processes
// (a watch loop plus a manual run) stay consistent.
type Manager struct {
	Path string
}

func NewManager(path string) *Manager {
	return &Manager{Path: strings.TrimSpace(path)}
}

func NewID() string {
	return uuid.NewString()
}

func (m *Manager) Load() (Document, error) {
	path := strings.TrimSpace(m.Path)
	if path == "" {
		return Document{}, errors.New("store path is empty")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Document{Version: StoreVersion}, nil
		}
		return Document{}, err
	}
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return Document{}, fmt.Errorf("parse store: %w", err)
	}
	if doc.Version <= 0 {
		doc.Version = StoreVersion
	}
	return doc, nil
}

func (m *Manager) mutate(fn func(doc *Document) error) error {
	path := strings.TrimSpace(m.Path)
	if path == "" {
		return errors.New("store path is empty")
	}
	lockPath := path + ".lock"
	return withFileLock(lockPath, lockTimeout, func() error {
		doc, err := m.Load()
		if err != nil {
			return err
		}
		if err := fn(&doc); err != nil {
			return err
		}
		doc.Version = StoreVersion
		return writeJSONAtomic(path, doc)
	})
}

// --- profile ---

func (m *Manager) GetProfile(ctx context.Context) (Profile, bool, error) {
	if err := ctx.Err(); err != nil {
		return Profile{}, false, err
	}
	doc, err := m.Load()
	if err != nil {
		return Profile{}, false, err
	}
	if doc.Profile == nil {
		return Profile{}, false, nil
	}
	return *doc.Profile, true, nil
}

func (m *Manager) UpsertProfile(ctx context.Context, profile Profile) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if strings.TrimSpace(profile.BrandName) == "" {
		return errors.New("brand_name is required")
	}
	return m.mutate(func(doc *Document) error {
		profile.UpdatedAt = time.Now().UTC()
		doc.Profile = &profile
		return nil
	})
}

// --- pillars ---

func (m *Manager) ListPillars(ctx context.Context) ([]Pillar, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	doc, err := m.Load()
	if err != nil {
		return nil, err
	}
	out := append([]Pillar(nil), doc.Pillars...)
	sort.Slice(out, func(i, j int) bool { return out[i].Title < out[j].Title })
	return out, nil
}

func (m *Manager) GetPillar(ctx context.Context, id string) (Pillar, bool, error) {
	if err := ctx.Err(); err != nil {
		return Pillar{}, false, err
	}
	doc, err := m.Load()
	if err != nil {
		return Pillar{}, false, err
	}
	want := strings.TrimSpace(id)
	for _, p := range doc.Pillars {
		if p.ID == want {
			return p, true, nil
		}
	}
	return Pillar{}, false, nil
}

func (m *Manager) UpsertPillar(ctx context.Context, pillar Pillar) (Pillar, error) {
	if err := ctx.Err(); err != nil {
		return Pillar{}, err
	}
	if strings.TrimSpace(pillar.Title) == "" {
		return Pillar{}, errors.New("title is required")
	}
	now := time.Now().UTC()
	if strings.TrimSpace(pillar.ID) == "" {
		pillar.ID = NewID()
	}
	pillar.UpdatedAt = now
	err := m.mutate(func(doc *Document) error {
		for i := range doc.Pillars {
			if doc.Pillars[i].ID != pillar.ID {
				continue
			}
			pillar.CreatedAt = doc.Pillars[i].CreatedAt
			doc.Pillars[i] = pillar
			return nil
		}
		pillar.CreatedAt = now
		doc.Pillars = append(doc.Pillars, pillar)
		return nil
	})
	if err != nil {
		return Pillar{}, err
	}
	return pillar, nil
}

func (m *Manager) DeletePillar(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	want := strings.TrimSpace(id)
	if want == "" {
		return errors.New("id is required")
	}
	return m.mutate(func(doc *Document) error {
		kept := doc.Pillars[:0]
		for _, p := range doc.Pillars {
			if p.ID == want {
				continue
			}
			kept = append(kept, p)
		}
		doc.Pillars = kept
		return nil
	})
}

// --- templates ---

func (m *Manager) ListTemplates(ctx context.Context) ([]Template, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	doc, err := m.Load()
	if err != nil {
		return nil, err
	}
	out := append([]Template(nil), doc.Templates...)
	sort.Slice(out, func(i, j int) bool { return out[i].Title < out[j].Title })
	return out, nil
}

func (m *Manager) GetTemplate(ctx context.Context, id string) (Template, bool, error) {
	if err := ctx.Err(); err != nil {
		return Template{}, false, err
	}
	doc, err := m.Load()
	if err != nil {
		return Template{}, false, err
	}
	want := strings.TrimSpace(id)
	for _, t := range doc.Templates {
		if t.ID == want {
			return t, true, nil
		}
	}
	return Template{}, false, nil
}

func (m *Manager) UpsertTemplate(ctx context.Context, tpl Template) (Template, error) {
	if err := ctx.Err(); err != nil {
		return Template{}, err
	}
	if strings.TrimSpace(tpl.Title) == "" {
		return Template{}, errors.New("title is required")
	}
	if strings.TrimSpace(tpl.Prompt) == "" {
		return Template{}, errors.New("prompt is required")
	}
	now := time.Now().UTC()
	if strings.TrimSpace(tpl.ID) == "" {
		tpl.ID = NewID()
	}
	tpl.UpdatedAt = now
	err := m.mutate(func(doc *Document) error {
		for i := range doc.Templates {
			if doc.Templates[i].ID != tpl.ID {
				continue
			}
			tpl.CreatedAt = doc.Templates[i].CreatedAt
			doc.Templates[i] = tpl
			return nil
		}
		tpl.CreatedAt = now
		doc.Templates = append(doc.Templates, tpl)
		return nil
	})
	if err != nil {
		return Template{}, err
	}
	return tpl, nil
}

func (m *Manager) DeleteTemplate(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	want := strings.TrimSpace(id)
	if want == "" {
		return errors.New("id is required")
	}
	return m.mutate(func(doc *Document) error {
		kept := doc.Templates[:0]
		for _, t := range doc.Templates {
			if t.ID == want {
				continue
			}
			kept = append(kept, t)
		}
		doc.Templates = kept
		return nil
	})
}

// --- ideas ---

func (m *Manager) ListIdeas(ctx context.Context) ([]Idea, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	doc, err := m.Load()
	if err != nil {
		return nil, err
	}
	out := append([]Idea(nil), doc.Ideas...)
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *Manager) UpsertIdea(ctx context.Context, idea Idea) (Idea, error) {
	if err := ctx.Err(); err != nil {
		return Idea{}, err
	}
	if strings.TrimSpace(idea.Summary) == "" {
		return Idea{}, errors.New("summary is required")
	}
	now := time.Now().UTC()
	if strings.TrimSpace(idea.ID) == "" {
		idea.ID = NewID()
	}
	idea.UpdatedAt = now
	err := m.mutate(func(doc *Document) error {
		for i := range doc.Ideas {
			if doc.Ideas[i].ID != idea.ID {
				continue
			}
			idea.CreatedAt = doc.Ideas[i].CreatedAt
			doc.Ideas[i] = idea
			return nil
		}
		idea.CreatedAt = now
		doc.Ideas = append(doc.Ideas, idea)
		return nil
	})
	if err != nil {
		return Idea{}, err
	}
	return idea, nil
}

func (m *Manager) DeleteIdea(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	want := strings.TrimSpace(id)
	if want == "" {
		return errors.New("id is required")
	}
	return m.mutate(func(doc *Document) error {
		kept := doc.Ideas[:0]
		for _, idea := range doc.Ideas {
			if idea.ID == want {
				continue
			}
			kept = append(kept, idea)
		}
		doc.Ideas = kept
		return nil
	})
}

// --- scheduled posts ---

func (m *Manager) ListPosts(ctx context.Context) ([]ScheduledPost, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	doc, err := m.Load()
	if err != nil {
		return nil, err
	}
	return append([]ScheduledPost(nil), doc.Posts...), nil
}

func (m *Manager) GetPost(ctx context.Context, id string) (ScheduledPost, bool, error) {
	if err := ctx.Err(); err != nil {
		return ScheduledPost{}, false, err
	}
	doc, err := m.Load()
	if err != nil {
		return ScheduledPost{}, false, err
	}
	want := strings.TrimSpace(id)
	for _, p := range doc.Posts {
		if p.ID == want {
			return p, true, nil
		}
	}
	return ScheduledPost{}, false, nil
}

func (m *Manager) UpsertPost(ctx context.Context, post ScheduledPost) (ScheduledPost, error) {
	if err := ctx.Err(); err != nil {
		return ScheduledPost{}, err
	}
	now := time.Now().UTC()
	if strings.TrimSpace(post.ID) == "" {
		post.ID = NewID()
	}
	if strings.TrimSpace(post.Status) == "" {
		post.Status = StatusScheduled
	}
	if !IsKnownStatus(post.Status) {
		return ScheduledPost{}, fmt.Errorf("unknown status: %q", post.Status)
	}
	post.UpdatedAt = now
	err := m.mutate(func(doc *Document) error {
		for i := range doc.Posts {
			if doc.Posts[i].ID != post.ID {
				continue
			}
			post.CreatedAt = doc.Posts[i].CreatedAt
			doc.Posts[i] = post
			return nil
		}
		post.CreatedAt = now
		doc.Posts = append(doc.Posts, post)
		return nil
	})
	if err != nil {
		return ScheduledPost{}, err
	}
	return post, nil
}

func (m *Manager) DeletePost(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	want := strings.TrimSpace(id)
	if want == "" {
		return errors.New("id is required")
	}
	return m.mutate(func(doc *Document) error {
		kept := doc.Posts[:0]
		for _, p := range doc.Posts {
			if p.ID == want {
				continue
			}
			kept = append(kept, p)
		}
		doc.Posts = kept
		return nil
	})
}

// UpdatePostStatus is the operator-side status write (cancel, manual publish,
// re-queue). It enforces the transition table, unlike UpsertPost which is the
// form-save path.
func (m *Manager) UpdatePostStatus(ctx context.Context, id string, status string, patch PostPatch) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	want := strings.TrimSpace(id)
	if want == "" {
		return errors.New("id is required")
	}
	if !IsKnownStatus(status) {
		return fmt.Errorf("unknown status: %q", status)
	}
	return m.mutate(func(doc *Document) error {
		for i := range doc.Posts {
			if doc.Posts[i].ID != want {
				continue
			}
			post := doc.Posts[i]
			if err := transitionPostStatus(&post, status); err != nil {
				return err
			}
			applyPostPatch(&post, patch)
			post.UpdatedAt = time.Now().UTC()
			doc.Posts[i] = post
			return nil
		}
		return fmt.Errorf("%w: post %s", ErrNotFound, want)
	})
}

// ClaimPost conditionally marks a post in-flight for one autopilot run.
// The claim is accepted only while the post is still scheduled or failed and
// no live claim exists; stale claims older than stuckRun are taken over.
func (m *Manager) ClaimPost(ctx context.Context, id string, claimedAt time.Time, stuckRun time.Duration) (ScheduledPost, bool, error) {
	if err := ctx.Err(); err != nil {
		return ScheduledPost{}, false, err
	}
	want := strings.TrimSpace(id)
	if want == "" {
		return ScheduledPost{}, false, errors.New("id is required")
	}
	if claimedAt.IsZero() {
		claimedAt = time.Now().UTC()
	}
	claimedAt = claimedAt.UTC()

	var out ScheduledPost
	claimed := false
	err := m.mutate(func(doc *Document) error {
		for i := range doc.Posts {
			if doc.Posts[i].ID != want {
				continue
			}
			post := doc.Posts[i]
			if post.Status != StatusScheduled && post.Status != StatusFailed {
				return nil
			}
			if !post.RunningAt.IsZero() {
				if stuckRun <= 0 || claimedAt.Sub(post.RunningAt) <= stuckRun {
					return nil
				}
				// Abandoned claim from a crashed run; take it over.
			}
			post.RunningAt = claimedAt
			post.UpdatedAt = claimedAt
			doc.Posts[i] = post
			out = post
			claimed = true
			return nil
		}
		return nil
	})
	if err != nil {
		return ScheduledPost{}, false, err
	}
	return out, claimed, nil
}

// FinishPost releases a claim and applies the run outcome. When the stored
// claim no longer matches claimedAt a concurrent writer advanced the post
// first; the patch is dropped and ErrStaleClaim returned.
func (m *Manager) FinishPost(ctx context.Context, id string, claimedAt time.Time, patch PostPatch) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	want := strings.TrimSpace(id)
	if want == "" {
		return errors.New("id is required")
	}
	return m.mutate(func(doc *Document) error {
		for i := range doc.Posts {
			if doc.Posts[i].ID != want {
				continue
			}
			post := doc.Posts[i]
			if !claimedAt.IsZero() && !post.RunningAt.Equal(claimedAt.UTC()) {
				return ErrStaleClaim
			}
			if patch.Status != "" && patch.Status != post.Status {
				if err := transitionPostStatus(&post, patch.Status); err != nil {
					return err
				}
			}
			applyPostPatch(&post, patch)
			post.RunningAt = time.Time{}
			post.UpdatedAt = time.Now().UTC()
			doc.Posts[i] = post
			return nil
		}
		return fmt.Errorf("%w: post %s", ErrNotFound, want)
	})
}

func applyPostPatch(post *ScheduledPost, patch PostPatch) {
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
		merged := post.Metrics
		if !patch.Metrics.GeneratedAt.IsZero() {
			merged.GeneratedAt = patch.Metrics.GeneratedAt
		}
		if !patch.Metrics.PublishedAt.IsZero() {
			merged.PublishedAt = patch.Metrics.PublishedAt
		}
		if strings.TrimSpace(patch.Metrics.Model) != "" {
			merged.Model = strings.TrimSpace(patch.Metrics.Model)
		}
		post.Metrics = merged
	}
}

func writeJSONAtomic(path string, payload any) error {
	if strings.TrimSpace(path) == "" {
		return errors.New("path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := fmt.Sprintf("%s.tmp-%d", path, time.Now().UTC().UnixNano())
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return nil
}

func withFileLock(lockPath string, timeout time.Duration, fn func() error) error {
	if err := os.MkdirAll(filepath.Dir(lockPath), 0o755); err != nil {
		return err
	}
	start := time.Now().UTC()
	for {
		f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
		if err == nil {
			_ = f.Close()
			break
		}
		if !errors.Is(err, os.ErrExist) {
			return err
		}
		if timeout > 0 && time.Since(start) > timeout {
			return fmt.Errorf("acquire lock timeout: %s", lockPath)
		}
		time.Sleep(20 * time.Millisecond)
	}
	defer os.Remove(lockPath)
	return fn()
}
