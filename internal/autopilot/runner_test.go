package autopilot

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"postpilot/internal/generator"
	"postpilot/internal/publisher"
	"postpilot/internal/store"
)

type fakeGenerator struct {
	calls  []generator.Context
	result generator.Result
	err    error
}

func (f *fakeGenerator) Generate(_ context.Context, gen generator.Context) (generator.Result, error) {
	f.calls = append(f.calls, gen)
	if f.err != nil {
		return generator.Result{}, f.err
	}
	return f.result, nil
}

type fakePublisher struct {
	calls  []string
	urn    string
	failOn string
	err    error
}

func (f *fakePublisher) Publish(_ context.Context, text string) (publisher.Result, error) {
	f.calls = append(f.calls, text)
	if f.err != nil && (f.failOn == "" || strings.Contains(text, f.failOn)) {
		return publisher.Result{}, f.err
	}
	return publisher.Result{URN: f.urn}, nil
}

// brokenGateway lets a test fail a single gateway operation while delegating
// everything else to the real file store.
type brokenGateway struct {
	*store.Manager
	listErr   error
	claimErr  error
	finishErr error
}

func (g *brokenGateway) ListPosts(ctx context.Context) ([]store.ScheduledPost, error) {
	if g.listErr != nil {
		return nil, g.listErr
	}
	return g.Manager.ListPosts(ctx)
}

func (g *brokenGateway) ClaimPost(ctx context.Context, id string, claimedAt time.Time, stuckRun time.Duration) (store.ScheduledPost, bool, error) {
	if g.claimErr != nil {
		return store.ScheduledPost{}, false, g.claimErr
	}
	return g.Manager.ClaimPost(ctx, id, claimedAt, stuckRun)
}

func (g *brokenGateway) FinishPost(ctx context.Context, id string, claimedAt time.Time, patch store.PostPatch) error {
	if g.finishErr != nil {
		return g.finishErr
	}
	return g.Manager.FinishPost(ctx, id, claimedAt, patch)
}

func newTestStore(t *testing.T) *store.Manager {
	t.Helper()
	return store.NewManager(filepath.Join(t.TempDir(), "store.json"))
}

func seedProfile(t *testing.T, m *store.Manager) {
	t.Helper()
	err := m.UpsertProfile(context.Background(), store.Profile{
		BrandName:      "Acme Consulting",
		Voice:          "direct, practical",
		TargetAudience: "founders",
		Goals:          "inbound leads",
	})
	if err != nil {
		t.Fatalf("seed profile: %v", err)
	}
}

func seedPost(t *testing.T, m *store.Manager, post store.ScheduledPost) store.ScheduledPost {
	t.Helper()
	saved, err := m.UpsertPost(context.Background(), post)
	if err != nil {
		t.Fatalf("seed post: %v", err)
	}
	return saved
}

func mustGetPost(t *testing.T, m *store.Manager, id string) store.ScheduledPost {
	t.Helper()
	post, ok, err := m.GetPost(context.Background(), id)
	if err != nil || !ok {
		t.Fatalf("get post %s: ok=%v err=%v", id, ok, err)
	}
	return post
}

func TestRunOnceGeneratesAndPublishes(t *testing.T) {
	m := newTestStore(t)
	seedProfile(t, m)
	pillar, err := m.UpsertPillar(context.Background(), store.Pillar{Title: "Hiring", Description: "How to hire well", Active: true})
	if err != nil {
		t.Fatalf("seed pillar: %v", err)
	}
	tpl, err := m.UpsertTemplate(context.Background(), store.Template{Title: "Listicle", Structure: "hook, 3 points, cta", Prompt: "Write a listicle.", CallToAction: "Follow for more"})
	if err != nil {
		t.Fatalf("seed template: %v", err)
	}
	at := time.Now().UTC().Add(-time.Minute)
	post := seedPost(t, m, store.ScheduledPost{
		PillarID:     pillar.ID,
		TemplateID:   tpl.ID,
		Autopilot:    true,
		ScheduledFor: &at,
	})

	gen := &fakeGenerator{result: generator.Result{Content: "Five hiring lessons.", Model: "claude-sonnet-4-5"}}
	pub := &fakePublisher{urn: "urn:li:share:123"}
	r := &Runner{Store: m, Generator: gen, Publisher: pub}

	report, err := r.RunOnce(context.Background(), Options{})
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if len(report.Items) != 1 || report.Published() != 1 {
		t.Fatalf("expected exactly one published item, got %+v", report.Items)
	}
	item := report.Items[0]
	if item.PostID != post.ID || item.ExternalPostID != "urn:li:share:123" || item.Unpersisted {
		t.Fatalf("unexpected item result: %+v", item)
	}

	if len(gen.calls) != 1 {
		t.Fatalf("expected one generation call, got %d", len(gen.calls))
	}
	gc := gen.calls[0]
	if gc.BrandName != "Acme Consulting" || gc.PillarTitle != "Hiring" || gc.TemplatePrompt != "Write a listicle." {
		t.Fatalf("generation context missing profile/pillar/template fields: %+v", gc)
	}
	if len(pub.calls) != 1 || pub.calls[0] != "Five hiring lessons." {
		t.Fatalf("publisher calls = %v", pub.calls)
	}

	got := mustGetPost(t, m, post.ID)
	if got.Status != store.StatusPosted {
		t.Fatalf("status = %q, want posted", got.Status)
	}
	if got.Content != "Five hiring lessons." || got.ExternalPostID != "urn:li:share:123" {
		t.Fatalf("persisted post = %+v", got)
	}
	if got.Metrics.PublishedAt.IsZero() || got.Metrics.GeneratedAt.IsZero() || got.Metrics.Model != "claude-sonnet-4-5" {
		t.Fatalf("metrics not recorded: %+v", got.Metrics)
	}
	if !got.RunningAt.IsZero() {
		t.Fatalf("claim not released: %v", got.RunningAt)
	}
}

func TestRunOnceIsIdempotent(t *testing.T) {
	m := newTestStore(t)
	seedProfile(t, m)
	seedPost(t, m, store.ScheduledPost{Autopilot: true})

	gen := &fakeGenerator{result: generator.Result{Content: "Post body."}}
	pub := &fakePublisher{urn: "urn:li:share:1"}
	r := &Runner{Store: m, Generator: gen, Publisher: pub}

	if _, err := r.RunOnce(context.Background(), Options{}); err != nil {
		t.Fatalf("first run: %v", err)
	}
	report, err := r.RunOnce(context.Background(), Options{})
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if len(report.Items) != 0 {
		t.Fatalf("second run visited posts: %+v", report.Items)
	}
	if len(pub.calls) != 1 {
		t.Fatalf("publish called %d times, want 1", len(pub.calls))
	}
}

func TestRunOnceDryRunMutatesNothing(t *testing.T) {
	m := newTestStore(t)
	seedProfile(t, m)
	empty := seedPost(t, m, store.ScheduledPost{Autopilot: true})
	drafted := seedPost(t, m, store.ScheduledPost{Autopilot: true, Content: "Already written."})

	gen := &fakeGenerator{result: generator.Result{Content: "Preview body."}}
	pub := &fakePublisher{urn: "urn:li:share:9"}
	r := &Runner{Store: m, Generator: gen, Publisher: pub}

	report, err := r.RunOnce(context.Background(), Options{DryRun: true})
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if !report.DryRun {
		t.Fatal("report not marked dry-run")
	}
	if report.Generated() != 1 || report.Skipped() != 1 || report.Published() != 0 {
		t.Fatalf("unexpected outcomes: %+v", report.Items)
	}
	for _, item := range report.Items {
		if item.PostID == drafted.ID && item.Reason != ReasonAlreadyHasContent {
			t.Fatalf("drafted post reason = %q", item.Reason)
		}
	}
	if len(gen.calls) != 1 {
		t.Fatalf("generator calls = %d, want 1", len(gen.calls))
	}
	if len(pub.calls) != 0 {
		t.Fatalf("dry run published: %v", pub.calls)
	}

	for _, id := range []string{empty.ID, drafted.ID} {
		got := mustGetPost(t, m, id)
		if got.Status != store.StatusScheduled || got.ExternalPostID != "" || !got.RunningAt.IsZero() {
			t.Fatalf("dry run mutated post %s: %+v", id, got)
		}
	}
	if got := mustGetPost(t, m, empty.ID); got.Content != "" {
		t.Fatalf("dry run persisted generated content: %q", got.Content)
	}
}

func TestRunOnceItemFailureDoesNotAbortRun(t *testing.T) {
	m := newTestStore(t)
	seedProfile(t, m)
	early := time.Now().UTC().Add(-2 * time.Minute)
	late := time.Now().UTC().Add(-time.Minute)
	bad := seedPost(t, m, store.ScheduledPost{Autopilot: true, Content: "Bad post.", ScheduledFor: &early})
	good := seedPost(t, m, store.ScheduledPost{Autopilot: true, Content: "Good post.", ScheduledFor: &late})

	pub := &fakePublisher{urn: "urn:li:share:2", failOn: "Bad", err: errors.New("429 too many requests")}
	r := &Runner{Store: m, Publisher: pub}

	report, err := r.RunOnce(context.Background(), Options{})
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if report.Failed() != 1 || report.Published() != 1 {
		t.Fatalf("unexpected outcomes: %+v", report.Items)
	}

	gotBad := mustGetPost(t, m, bad.ID)
	if gotBad.Status != store.StatusFailed || !strings.Contains(gotBad.Error, "429") {
		t.Fatalf("failed post not recorded: %+v", gotBad)
	}
	gotGood := mustGetPost(t, m, good.ID)
	if gotGood.Status != store.StatusPosted {
		t.Fatalf("later post not published: %+v", gotGood)
	}
}

func TestRunOnceClassifiesGenerationErrors(t *testing.T) {
	cases := []struct {
		name       string
		genErr     error
		wantPrefix string
	}{
		{"rate_limited", errors.New("429 Too Many Requests: rate limit exceeded"), "rate-limited: "},
		{"auth", errors.New("401 Unauthorized: invalid api key"), "auth: "},
		{"other", errors.New("model overloaded"), "model overloaded"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			m := newTestStore(t)
			seedProfile(t, m)
			post := seedPost(t, m, store.ScheduledPost{Autopilot: true})

			r := &Runner{Store: m, Generator: &fakeGenerator{err: tc.genErr}, Publisher: &fakePublisher{urn: "urn:li:share:9"}}
			report, err := r.RunOnce(context.Background(), Options{})
			if err != nil {
				t.Fatalf("RunOnce: %v", err)
			}
			if report.Failed() != 1 {
				t.Fatalf("unexpected report: %+v", report.Items)
			}
			if !strings.HasPrefix(report.Items[0].Error, tc.wantPrefix) {
				t.Fatalf("item error = %q, want prefix %q", report.Items[0].Error, tc.wantPrefix)
			}
			got := mustGetPost(t, m, post.ID)
			if got.Status != store.StatusFailed || !strings.HasPrefix(got.Error, tc.wantPrefix) {
				t.Fatalf("persisted error = %q (status %s), want prefix %q", got.Error, got.Status, tc.wantPrefix)
			}
		})
	}
}

func TestRunOnceClaimFailureReportsStoreReason(t *testing.T) {
	m := newTestStore(t)
	seedProfile(t, m)
	seedPost(t, m, store.ScheduledPost{Autopilot: true, Content: "ready to go"})

	g := &brokenGateway{Manager: m, claimErr: errors.New("lock file held")}
	r := &Runner{Store: g, Publisher: &fakePublisher{urn: "urn:li:share:9"}}

	report, err := r.RunOnce(context.Background(), Options{})
	if err == nil {
		t.Fatal("expected run-level error for claim failure")
	}
	if report.Failed() != 1 {
		t.Fatalf("unexpected report: %+v", report.Items)
	}
	if report.Items[0].Reason != ReasonStore {
		t.Fatalf("reason = %q, want %q", report.Items[0].Reason, ReasonStore)
	}
}

func TestRunOnceGenerationFailureRecordsError(t *testing.T) {
	m := newTestStore(t)
	seedProfile(t, m)
	post := seedPost(t, m, store.ScheduledPost{Autopilot: true})

	gen := &fakeGenerator{err: errors.New("model overloaded")}
	pub := &fakePublisher{urn: "urn:li:share:3"}
	r := &Runner{Store: m, Generator: gen, Publisher: pub}

	report, err := r.RunOnce(context.Background(), Options{})
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if report.Failed() != 1 || report.Items[0].Reason != ReasonGeneration {
		t.Fatalf("unexpected report: %+v", report.Items)
	}
	if len(pub.calls) != 0 {
		t.Fatal("publish attempted after failed generation")
	}
	got := mustGetPost(t, m, post.ID)
	if got.Status != store.StatusFailed || !strings.Contains(got.Error, "model overloaded") {
		t.Fatalf("failure not persisted: %+v", got)
	}
}

func TestRunOnceRetryKeepsGeneratedContent(t *testing.T) {
	m := newTestStore(t)
	seedProfile(t, m)
	post := seedPost(t, m, store.ScheduledPost{Autopilot: true})

	gen := &fakeGenerator{result: generator.Result{Content: "Generated once."}}
	pub := &fakePublisher{err: errors.New("502 bad gateway")}
	r := &Runner{Store: m, Generator: gen, Publisher: pub}

	if _, err := r.RunOnce(context.Background(), Options{}); err != nil {
		t.Fatalf("first run: %v", err)
	}
	got := mustGetPost(t, m, post.ID)
	if got.Status != store.StatusFailed || got.Content != "Generated once." {
		t.Fatalf("generated content not preserved on publish failure: %+v", got)
	}

	// The retry publishes the stored content without regenerating.
	pub.err = nil
	pub.urn = "urn:li:share:4"
	report, err := r.RunOnce(context.Background(), Options{})
	if err != nil {
		t.Fatalf("retry run: %v", err)
	}
	if report.Published() != 1 {
		t.Fatalf("retry did not publish: %+v", report.Items)
	}
	if len(gen.calls) != 1 {
		t.Fatalf("generator called %d times, want 1", len(gen.calls))
	}
	got = mustGetPost(t, m, post.ID)
	if got.Status != store.StatusPosted || got.Error != "" {
		t.Fatalf("retry outcome not persisted: %+v", got)
	}
}

func TestRunOnceSkipsConcurrentlyClaimedPost(t *testing.T) {
	m := newTestStore(t)
	seedProfile(t, m)
	post := seedPost(t, m, store.ScheduledPost{Autopilot: true, Content: "Claimed elsewhere."})

	// Another run holds a live claim.
	if _, ok, err := m.ClaimPost(context.Background(), post.ID, time.Now().UTC(), time.Hour); err != nil || !ok {
		t.Fatalf("pre-claim: ok=%v err=%v", ok, err)
	}

	pub := &fakePublisher{urn: "urn:li:share:5"}
	r := &Runner{Store: m, Publisher: pub}

	report, err := r.RunOnce(context.Background(), Options{})
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if report.Skipped() != 1 || report.Items[0].Reason != ReasonAlreadyProcessed {
		t.Fatalf("claimed post not skipped: %+v", report.Items)
	}
	if len(pub.calls) != 0 {
		t.Fatal("claimed post was published")
	}
}

func TestRunOnceNeverTouchesManualOrTerminalPosts(t *testing.T) {
	m := newTestStore(t)
	seedProfile(t, m)
	manual := seedPost(t, m, store.ScheduledPost{Autopilot: false, Content: "Manual."})
	posted := seedPost(t, m, store.ScheduledPost{Autopilot: true, Content: "Done.", Status: store.StatusPosted})
	cancelled := seedPost(t, m, store.ScheduledPost{Autopilot: true, Content: "Dropped.", Status: store.StatusCancelled})

	pub := &fakePublisher{urn: "urn:li:share:6"}
	r := &Runner{Store: m, Publisher: pub}

	report, err := r.RunOnce(context.Background(), Options{})
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if len(report.Items) != 0 || len(pub.calls) != 0 {
		t.Fatalf("ineligible posts were visited: %+v", report.Items)
	}
	for _, p := range []store.ScheduledPost{manual, posted, cancelled} {
		got := mustGetPost(t, m, p.ID)
		if got.Status != p.Status {
			t.Fatalf("post %s status changed: %q -> %q", p.ID, p.Status, got.Status)
		}
	}
}

func TestRunOnceSelectionFailureIsRunLevel(t *testing.T) {
	m := newTestStore(t)
	g := &brokenGateway{Manager: m, listErr: errors.New("disk gone")}
	r := &Runner{Store: g, Publisher: &fakePublisher{urn: "urn:li:share:7"}}

	_, err := r.RunOnce(context.Background(), Options{})
	if err == nil || !strings.Contains(err.Error(), "list posts") {
		t.Fatalf("expected run-level selection error, got %v", err)
	}
}

func TestRunOnceFlagsUnpersistedPublish(t *testing.T) {
	m := newTestStore(t)
	seedProfile(t, m)
	post := seedPost(t, m, store.ScheduledPost{Autopilot: true, Content: "Will publish."})

	g := &brokenGateway{Manager: m, finishErr: errors.New("write denied")}
	pub := &fakePublisher{urn: "urn:li:share:8"}
	r := &Runner{Store: g, Publisher: pub}

	report, err := r.RunOnce(context.Background(), Options{})
	if err == nil || !strings.Contains(err.Error(), post.ID) || !strings.Contains(err.Error(), "urn:li:share:8") {
		t.Fatalf("run error should name the post and external id, got %v", err)
	}
	if len(report.Items) != 1 {
		t.Fatalf("report missing item: %+v", report.Items)
	}
	item := report.Items[0]
	if item.Outcome != OutcomePublished || !item.Unpersisted || item.ExternalPostID != "urn:li:share:8" {
		t.Fatalf("unpersisted publish not flagged: %+v", item)
	}
	if !report.HasUnpersisted() {
		t.Fatal("report.HasUnpersisted() = false")
	}
}

func TestRunOnceGenerationRequiresProfile(t *testing.T) {
	m := newTestStore(t)
	seedPost(t, m, store.ScheduledPost{Autopilot: true})

	gen := &fakeGenerator{result: generator.Result{Content: "unused"}}
	r := &Runner{Store: m, Generator: gen, Publisher: &fakePublisher{}}

	report, err := r.RunOnce(context.Background(), Options{})
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if report.Failed() != 1 || !strings.Contains(report.Items[0].Error, "profile") {
		t.Fatalf("missing profile should fail the item: %+v", report.Items)
	}
	if len(gen.calls) != 0 {
		t.Fatal("generator called without a profile")
	}
}

func TestRunPostPublishesImmediately(t *testing.T) {
	m := newTestStore(t)
	seedProfile(t, m)
	future := time.Now().UTC().Add(48 * time.Hour)
	post := seedPost(t, m, store.ScheduledPost{Autopilot: false, Content: "Ship it.", ScheduledFor: &future})

	pub := &fakePublisher{urn: "urn:li:share:now"}
	r := &Runner{Store: m, Publisher: pub}

	res, err := r.RunPost(context.Background(), post.ID)
	if err != nil {
		t.Fatalf("RunPost: %v", err)
	}
	if res.Outcome != OutcomePublished || res.ExternalPostID != "urn:li:share:now" {
		t.Fatalf("unexpected result: %+v", res)
	}
	got := mustGetPost(t, m, post.ID)
	if got.Status != store.StatusPosted {
		t.Fatalf("status = %q", got.Status)
	}
}

func TestRunPostUnknownID(t *testing.T) {
	m := newTestStore(t)
	r := &Runner{Store: m, Publisher: &fakePublisher{}}
	if _, err := r.RunPost(context.Background(), "missing"); err == nil {
		t.Fatal("expected error for unknown post")
	}
}

func TestReportSummary(t *testing.T) {
	report := Report{
		Items: []ItemResult{
			{PostID: "p1", Outcome: OutcomePublished, ExternalPostID: "urn:li:share:1"},
			{PostID: "p2", Outcome: OutcomeFailed, Reason: ReasonPublish, Error: "429", Unpersisted: true},
		},
	}
	s := report.Summary()
	for _, want := range []string{"1 published", "1 failed", "urn:li:share:1", "NOT PERSISTED"} {
		if !strings.Contains(s, want) {
			t.Fatalf("summary missing %q:\n%s", want, s)
		}
	}
}
