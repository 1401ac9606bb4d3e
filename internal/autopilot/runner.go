package autopilot

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"postpilot/internal/generator"
	"postpilot/internal/store"
)

const (
	defaultStepTimeout = 90 * time.Second
	defaultStuckRun    = 2 * time.Hour
)

// Runner drives one autopilot pass: select due posts, generate missing copy,
// publish, and reconcile each post's persisted state. Items are processed
// one at a time in selector order; one item's failure never aborts the run.
type Runner struct {
	Store     Gateway
	Generator Generator
	Publisher Publisher

	// StepTimeout bounds every external call so one unresponsive dependency
	// cannot stall the remainder of the run.
	StepTimeout time.Duration
	// StuckRun is the horizon after which an abandoned claim is taken over.
	StuckRun time.Duration

	Log logrus.FieldLogger
}

type Options struct {
	DryRun    bool
	LookAhead time.Duration
}

func (r *Runner) log() logrus.FieldLogger {
	if r != nil && r.Log != nil {
		return r.Log
	}
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func (r *Runner) stepTimeout() time.Duration {
	if r != nil && r.StepTimeout > 0 {
		return r.StepTimeout
	}
	return defaultStepTimeout
}

func (r *Runner) stuckRun() time.Duration {
	if r != nil && r.StuckRun > 0 {
		return r.StuckRun
	}
	return defaultStuckRun
}

// RunOnce executes one run and returns the itemized report. The returned
// error is non-nil only for run-level failures: the candidate set could not
// be enumerated, or an outcome could not be written back (in which case the
// report entry carries Unpersisted and the error lists the write failures).
func (r *Runner) RunOnce(ctx context.Context, opts Options) (Report, error) {
	if r == nil || r.Store == nil {
		return Report{}, errors.New("runner is not configured")
	}
	if opts.LookAhead < 0 {
		opts.LookAhead = 0
	}
	now := time.Now().UTC()
	report := Report{StartedAt: now, DryRun: opts.DryRun}

	posts, err := r.listPosts(ctx)
	if err != nil {
		return report, fmt.Errorf("list posts: %w", err)
	}
	profile, profileOK, err := r.getProfile(ctx)
	if err != nil {
		return report, fmt.Errorf("load profile: %w", err)
	}

	due := SelectDue(posts, now, opts.LookAhead)
	r.log().WithFields(logrus.Fields{
		"due":     len(due),
		"total":   len(posts),
		"dry_run": opts.DryRun,
	}).Info("autopilot run started")

	var persistErrs []error
	for _, item := range due {
		res := r.processItem(ctx, profile, profileOK, item, opts, &persistErrs)
		report.Items = append(report.Items, res)
	}
	report.FinishedAt = time.Now().UTC()

	r.log().WithFields(logrus.Fields{
		"published": report.Published(),
		"generated": report.Generated(),
		"skipped":   report.Skipped(),
		"failed":    report.Failed(),
	}).Info("autopilot run finished")

	if len(persistErrs) > 0 {
		return report, errors.Join(persistErrs...)
	}
	return report, nil
}

// RunPost processes one post immediately, regardless of schedule and
// autopilot flag. Used by the operator's "post now" action.
func (r *Runner) RunPost(ctx context.Context, id string) (ItemResult, error) {
	if r == nil || r.Store == nil {
		return ItemResult{}, errors.New("runner is not configured")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return ItemResult{}, errors.New("post id is required")
	}
	stepCtx, cancel := context.WithTimeout(ctx, r.stepTimeout())
	post, ok, err := r.Store.GetPost(stepCtx, id)
	cancel()
	if err != nil {
		return ItemResult{}, fmt.Errorf("load post: %w", err)
	}
	if !ok {
		return ItemResult{}, fmt.Errorf("post not found: %s", id)
	}
	profile, profileOK, err := r.getProfile(ctx)
	if err != nil {
		return ItemResult{}, fmt.Errorf("load profile: %w", err)
	}

	var persistErrs []error
	res := r.processItem(ctx, profile, profileOK, post, Options{}, &persistErrs)
	return res, errors.Join(persistErrs...)
}

func (r *Runner) listPosts(ctx context.Context) ([]store.ScheduledPost, error) {
	stepCtx, cancel := context.WithTimeout(ctx, r.stepTimeout())
	defer cancel()
	return r.Store.ListPosts(stepCtx)
}

func (r *Runner) getProfile(ctx context.Context) (store.Profile, bool, error) {
	stepCtx, cancel := context.WithTimeout(ctx, r.stepTimeout())
	defer cancel()
	return r.Store.GetProfile(stepCtx)
}

func (r *Runner) processItem(ctx context.Context, profile store.Profile, profileOK bool, item store.ScheduledPost, opts Options, persistErrs *[]error) ItemResult {
	log := r.log().WithField("post_id", item.ID)
	res := ItemResult{PostID: item.ID}

	// Acquire: re-read (and in live mode claim) immediately before acting,
	// so a concurrent or duplicate run cannot double-process the item.
	var (
		current   store.ScheduledPost
		claimedAt time.Time
	)
	if opts.DryRun {
		stepCtx, cancel := context.WithTimeout(ctx, r.stepTimeout())
		got, ok, err := r.Store.GetPost(stepCtx, item.ID)
		cancel()
		if err != nil {
			*persistErrs = append(*persistErrs, fmt.Errorf("re-read post %s: %w", item.ID, err))
			res.Outcome = OutcomeFailed
			res.Reason = ReasonStore
			res.Error = err.Error()
			return res
		}
		if !ok || store.IsTerminalStatus(got.Status) || (got.Status != store.StatusScheduled && got.Status != store.StatusFailed) {
			res.Outcome = OutcomeSkipped
			res.Reason = ReasonAlreadyProcessed
			return res
		}
		current = got
	} else {
		claimedAt = time.Now().UTC()
		stepCtx, cancel := context.WithTimeout(ctx, r.stepTimeout())
		got, ok, err := r.Store.ClaimPost(stepCtx, item.ID, claimedAt, r.stuckRun())
		cancel()
		if err != nil {
			*persistErrs = append(*persistErrs, fmt.Errorf("claim post %s: %w", item.ID, err))
			res.Outcome = OutcomeFailed
			res.Reason = ReasonStore
			res.Error = err.Error()
			return res
		}
		if !ok {
			log.Info("post no longer eligible, skipping")
			res.Outcome = OutcomeSkipped
			res.Reason = ReasonAlreadyProcessed
			return res
		}
		current = got
	}

	// Ensure content.
	content := current.Content
	generated := false
	var metrics store.PostMetrics
	if strings.TrimSpace(content) == "" {
		genText, model, err := r.generateContent(ctx, profile, profileOK, current)
		if err != nil {
			msg := err.Error()
			if class := generationErrorClass(err); class != "" {
				msg = class + ": " + msg
				log = log.WithField("error_class", class)
			}
			log.WithError(err).Warn("generation failed")
			res.Outcome = OutcomeFailed
			res.Reason = ReasonGeneration
			res.Error = msg
			if !opts.DryRun {
				r.persistFailure(ctx, current.ID, claimedAt, msg, nil, &res, persistErrs)
			}
			return res
		}
		content = genText
		generated = true
		metrics.GeneratedAt = time.Now().UTC()
		metrics.Model = model
	}

	// Simulate-only short-circuit: nothing is published, nothing persisted.
	if opts.DryRun {
		if generated {
			res.Outcome = OutcomeGenerated
		} else {
			res.Outcome = OutcomeSkipped
			res.Reason = ReasonAlreadyHasContent
		}
		return res
	}

	// Publish.
	if r.Publisher == nil {
		err := errors.New("publisher is not configured")
		res.Outcome = OutcomeFailed
		res.Reason = ReasonPublish
		res.Error = err.Error()
		r.persistFailure(ctx, current.ID, claimedAt, err.Error(), contentPatch(generated, content), &res, persistErrs)
		return res
	}
	stepCtx, cancel := context.WithTimeout(ctx, r.stepTimeout())
	pub, err := r.Publisher.Publish(stepCtx, content)
	cancel()
	if err != nil {
		log.WithError(err).Warn("publish failed")
		res.Outcome = OutcomeFailed
		res.Reason = ReasonPublish
		res.Error = err.Error()
		// Generated content is preserved so the retry skips regeneration.
		r.persistFailure(ctx, current.ID, claimedAt, err.Error(), contentPatch(generated, content), &res, persistErrs)
		return res
	}

	metrics.PublishedAt = time.Now().UTC()
	res.Outcome = OutcomePublished
	res.ExternalPostID = pub.URN

	empty := ""
	patch := store.PostPatch{
		Status:         store.StatusPosted,
		Error:          &empty,
		ExternalPostID: &pub.URN,
		Metrics:        &metrics,
	}
	if generated {
		patch.Content = &content
	}
	if err := r.finishPost(ctx, current.ID, claimedAt, patch); err != nil {
		// The post is live on the network but the store write failed; the
		// report is the only record left, so flag it loudly.
		log.WithError(err).Error("publish succeeded but write-back failed")
		res.Unpersisted = true
		*persistErrs = append(*persistErrs, fmt.Errorf("persist publish outcome for post %s (external id %s): %w", current.ID, pub.URN, err))
		return res
	}
	log.WithField("external_post_id", pub.URN).Info("post published")
	return res
}

// generationErrorClass names the likely failure class for the persisted
// error text and the log line. Classification never changes retry behavior;
// a failed post is retried on the next run either way.
func generationErrorClass(err error) string {
	switch {
	case generator.IsLikelyRateLimitError(err):
		return "rate-limited"
	case generator.IsLikelyAuthError(err):
		return "auth"
	}
	return ""
}

func contentPatch(generated bool, content string) *string {
	if !generated {
		return nil
	}
	return &content
}

// persistFailure writes a failed outcome back. A stale claim means another
// writer advanced the post first; that is a skip, not an error. Any other
// write failure flags the report entry as unpersisted.
func (r *Runner) persistFailure(ctx context.Context, id string, claimedAt time.Time, msg string, content *string, res *ItemResult, persistErrs *[]error) {
	patch := store.PostPatch{
		Status:  store.StatusFailed,
		Error:   &msg,
		Content: content,
	}
	err := r.finishPost(ctx, id, claimedAt, patch)
	if err == nil {
		return
	}
	if errors.Is(err, store.ErrStaleClaim) {
		res.Outcome = OutcomeSkipped
		res.Reason = ReasonClaimLost
		res.Error = ""
		return
	}
	res.Unpersisted = true
	*persistErrs = append(*persistErrs, fmt.Errorf("persist failure outcome for post %s: %w", id, err))
}

func (r *Runner) finishPost(ctx context.Context, id string, claimedAt time.Time, patch store.PostPatch) error {
	stepCtx, cancel := context.WithTimeout(ctx, r.stepTimeout())
	defer cancel()
	return r.Store.FinishPost(stepCtx, id, claimedAt, patch)
}

func (r *Runner) generateContent(ctx context.Context, profile store.Profile, profileOK bool, post store.ScheduledPost) (string, string, error) {
	if r.Generator == nil {
		return "", "", errors.New("generator is not configured")
	}
	if !profileOK {
		return "", "", errors.New("publishing profile is not configured")
	}

	gen := generator.Context{
		BrandName: profile.BrandName,
		Voice:     profile.Voice,
		Audience:  profile.TargetAudience,
		Goals:     profile.Goals,
		IdeaHook:  post.IdeaHook,
		IdeaAngle: post.IdeaAngle,
	}
	if strings.TrimSpace(post.Audience) != "" {
		gen.Audience = post.Audience
	}

	// Pillar and template context is best-effort: a missing or unreadable
	// reference degrades quality, it never fails the generation.
	if id := strings.TrimSpace(post.PillarID); id != "" {
		stepCtx, cancel := context.WithTimeout(ctx, r.stepTimeout())
		pillar, ok, err := r.Store.GetPillar(stepCtx, id)
		cancel()
		if err != nil {
			r.log().WithField("pillar_id", id).WithError(err).Warn("pillar lookup failed")
		} else if ok {
			gen.PillarTitle = pillar.Title
			gen.PillarDescription = pillar.Description
		}
	}
	if id := strings.TrimSpace(post.TemplateID); id != "" {
		stepCtx, cancel := context.WithTimeout(ctx, r.stepTimeout())
		tpl, ok, err := r.Store.GetTemplate(stepCtx, id)
		cancel()
		if err != nil {
			r.log().WithField("template_id", id).WithError(err).Warn("template lookup failed")
		} else if ok {
			gen.TemplateStructure = tpl.Structure
			gen.TemplatePrompt = tpl.Prompt
			gen.TemplateCallToAction = tpl.CallToAction
		}
	}

	stepCtx, cancel := context.WithTimeout(ctx, r.stepTimeout())
	defer cancel()
	result, err := r.Generator.Generate(stepCtx, gen)
	if err != nil {
		return "", "", err
	}
	return result.Content, result.Model, nil
}
