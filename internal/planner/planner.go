// Package planner runs the daily planning pipeline: plan lock, selection,
// policy, difficulty and prompt matching.
package planner

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/verte-zerg/dayplan/internal/difficulty"
	"github.com/verte-zerg/dayplan/internal/history"
	"github.com/verte-zerg/dayplan/internal/ledger"
	"github.com/verte-zerg/dayplan/internal/logger"
	"github.com/verte-zerg/dayplan/internal/matcher"
	"github.com/verte-zerg/dayplan/internal/migrate"
	"github.com/verte-zerg/dayplan/internal/model"
	"github.com/verte-zerg/dayplan/internal/planlock"
	"github.com/verte-zerg/dayplan/internal/policy"
	"github.com/verte-zerg/dayplan/internal/selector"
)

const (
	defaultHistoryLimit = 60
	defaultDeepLessons  = 2
	defaultWorld        = "core"
	shownCardWindow     = 20
)

// ProfileReader supplies axis profiles. A nil profile means none exists.
type ProfileReader interface {
	AxisProfile(ctx context.Context, userID string) (model.AxisProfile, error)
}

// HistoryStore reads and writes practice records.
type HistoryStore interface {
	PracticeHistory(ctx context.Context, userID string, limit int) ([]history.RawRecord, error)
	RecordPracticeStart(ctx context.Context, rec model.PracticeRecord) error
	RecordPracticeComplete(ctx context.Context, rec model.PracticeRecord) error
}

// SnapshotStore persists the difficulty engine state.
type SnapshotStore interface {
	LoadSnapshot(ctx context.Context, userID string) (*model.PerformanceSnapshot, error)
	SaveSnapshot(ctx context.Context, userID string, snap model.PerformanceSnapshot) error
}

// ShownCardStore tracks which prompts were displayed.
type ShownCardStore interface {
	ShownCards(ctx context.Context, userID string, limit int) ([]model.ShownCard, error)
	RecordShownCard(ctx context.Context, userID string, card model.ShownCard) error
}

// Content is the lesson and vocabulary catalog.
type Content interface {
	planlock.Resolver
	LessonsForCluster(cluster model.Cluster) []model.LessonMeta
	Cards() []model.VocabCard
}

// Options configure a planner session. An empty UserID is a guest and a nil
// Policy means policy.DefaultConfig.
type Options struct {
	UserID       string
	Lang         string
	HistoryLimit int
	DeepLessons  int
	Policy       *policy.Config
	Rotation     *selector.Rotation
	Now          func() time.Time
}

// Deps are the collaborators. Every field may be nil.
type Deps struct {
	Profiles  ProfileReader
	History   HistoryStore
	Snapshots SnapshotStore
	Plans     planlock.Persistence
	Content   Content
	Cards     ShownCardStore
	Rounds    *ledger.Ledger
	Guest     *migrate.Migrator
	Writer    *Writer
	Log       *logger.Logger
}

// Request is one planning call.
type Request struct {
	WorldID       string
	RequestedMode model.Mode
	ContextTag    string
	SecondaryTags []string
	Signals       policy.Signals
}

// Result is the planning outcome. Plan is always usable.
type Result struct {
	Plan        model.TodayPlan
	Lessons     []model.LessonMeta
	Decision    policy.Decision
	Prompts     matcher.Pick
	Reused      bool
	Diagnostics []Diagnostic
}

// Planner is one user session. It is safe for concurrent use, though calls
// are expected to be sequential.
type Planner struct {
	opts     Options
	deps     Deps
	userID   string
	lock     *planlock.Lock
	selector *selector.Selector
	matcher  *matcher.Matcher
	cards    map[string]model.VocabCard
	policy   policy.Config
	log      *logger.Logger

	mu     sync.Mutex
	engine *difficulty.Engine
}

// New creates a planner session.
func New(opts Options, deps Deps) *Planner {
	if opts.HistoryLimit <= 0 {
		opts.HistoryLimit = defaultHistoryLimit
	}
	if opts.DeepLessons <= 0 {
		opts.DeepLessons = defaultDeepLessons
	}
	if opts.Rotation == nil {
		opts.Rotation = selector.NewRotation(nil)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	rules := policy.DefaultConfig()
	if opts.Policy != nil {
		rules = *opts.Policy
	}
	userID := opts.UserID
	if userID == "" {
		userID = model.GuestUserID
	}
	log := logger.OrNop(deps.Log).With("user", userID)
	if deps.Writer == nil {
		deps.Writer = NewWriter(log)
	}

	var resolver planlock.Resolver
	var cards []model.VocabCard
	if deps.Content != nil {
		resolver = deps.Content
		cards = deps.Content.Cards()
	}
	byID := make(map[string]model.VocabCard, len(cards))
	for _, c := range cards {
		byID[c.ID] = c
	}
	return &Planner{
		opts:     opts,
		deps:     deps,
		userID:   userID,
		lock:     planlock.New(deps.Plans, resolver, log),
		selector: selector.New(opts.Rotation, opts.Lang),
		matcher:  matcher.New(cards),
		cards:    byID,
		policy:   rules,
		log:      log,
	}
}

// UserID returns the session user id.
func (p *Planner) UserID() string {
	return p.userID
}

// Guest reports whether the session is anonymous.
func (p *Planner) Guest() bool {
	return p.opts.UserID == ""
}

// Writer returns the background write queue.
func (p *Planner) Writer() *Writer {
	return p.deps.Writer
}

// Today returns the current canonical day key.
func (p *Planner) Today() string {
	return history.DayKeyOf(p.opts.Now())
}

// PlanToday returns today's plan, reusing the cached one when its identity matches.
func (p *Planner) PlanToday(ctx context.Context, req Request) Result {
	var diags diagnostics
	if n := p.deps.Writer.Retry(); n > 0 {
		p.log.Info("retrying failed writes", "count", n)
	}

	req.ContextTag = strings.TrimSpace(req.ContextTag)
	today := p.Today()
	worldID := req.WorldID
	if worldID == "" {
		worldID = defaultWorld
	}
	id := planlock.Identity{
		DayKey:        today,
		WorldID:       worldID,
		RequestedMode: req.RequestedMode,
		ContextTag:    planlock.Tag(req.ContextTag),
	}
	log := p.log.With("day", today)

	lockDecision := p.lock.Check(ctx, id)
	if lockDecision.Err != nil {
		diags.add("planlock", KindCacheCorruption, lockDecision.Err)
	}
	if lockDecision.State == planlock.StateReused && lockDecision.Plan != nil {
		log.Debug("plan reused", "run_id", lockDecision.RunID)
		return p.reused(*lockDecision.Plan, lockDecision.Lessons, diags)
	}
	log = log.With("run_id", lockDecision.RunID)
	log.Debug("plan rebuild", "reason", lockDecision.Reason)

	profile := p.readProfile(ctx, &diags, log)
	records := p.readHistory(ctx, &diags, log)

	baseline := p.selector.Select(profile, records, today)
	decision := policy.Apply(baseline, req.Signals, p.policy)
	if req.RequestedMode != "" {
		decision.Mode = req.RequestedMode
		decision.Reason += "|requested=" + string(req.RequestedMode)
		decision.PolicyApplied = decision.Mode != baseline.Mode || decision.Variant != model.VariantNone
	}

	engine := p.engineFor(ctx, &diags, log)
	count := 1
	if decision.Mode == model.ModeDeep {
		count = p.opts.DeepLessons
	}
	cluster, lessons, fallback := p.pickLessons(engine, decision.Cluster, completedLessons(records), count)
	decision.Cluster = cluster

	pick := p.matcher.Match(p.promptContext(ctx, req, today, &diags, log))

	plan := model.TodayPlan{
		Mode:           decision.Mode,
		Variant:        decision.Variant,
		Cluster:        cluster,
		ModuleID:       string(cluster),
		LessonIDs:      lessonIDs(lessons),
		Difficulty:     string(engine.Preferred()),
		Reason:         baseline.Reason + "|policy=" + decision.Reason,
		FallbackReason: fallback,
	}
	if pick.Primary != nil {
		plan.PrimaryCardID = pick.Primary.ID
	}
	if pick.Secondary != nil {
		plan.SecondaryCardID = pick.Secondary.ID
	}

	committed, err := p.lock.Commit(ctx, id, lockDecision.RunID, plan)
	if err != nil {
		diags.add("planlock", KindWriteFailure, err)
	}
	p.recordShown(today, pick)

	return Result{
		Plan:        committed,
		Lessons:     lessons,
		Decision:    decision,
		Prompts:     pick,
		Diagnostics: diags.list,
	}
}

func (p *Planner) reused(plan model.TodayPlan, lessons []model.LessonMeta, diags diagnostics) Result {
	res := Result{
		Plan:    plan,
		Lessons: lessons,
		Reused:  true,
		Decision: policy.Decision{
			Cluster: plan.Cluster,
			Mode:    plan.Mode,
			Lang:    p.selector.Lang(),
			Variant: plan.Variant,
			Reason:  plan.Reason,
		},
		Diagnostics: diags.list,
	}
	if card, ok := p.cards[plan.PrimaryCardID]; ok {
		res.Prompts.Primary = &card
	}
	if card, ok := p.cards[plan.SecondaryCardID]; ok {
		res.Prompts.Secondary = &card
	}
	return res
}

func (p *Planner) readProfile(ctx context.Context, diags *diagnostics, log *logger.Logger) model.AxisProfile {
	if p.deps.Profiles == nil {
		return nil
	}
	profile, err := p.deps.Profiles.AxisProfile(ctx, p.userID)
	if err != nil {
		log.Warn("profile read failed", "stage", "profile", "error", err)
		diags.add("profile", KindMissingInput, err)
		return nil
	}
	return profile
}

func (p *Planner) readHistory(ctx context.Context, diags *diagnostics, log *logger.Logger) []model.PracticeRecord {
	if p.deps.History == nil {
		return nil
	}
	raws, err := p.deps.History.PracticeHistory(ctx, p.userID, p.opts.HistoryLimit)
	if err != nil {
		log.Warn("history read failed", "stage", "history", "error", err)
		diags.add("history", KindMissingInput, err)
		return nil
	}
	records, dropped := history.Canonicalize(raws)
	if dropped > 0 {
		log.Warn("history records dropped", "stage", "history", "dropped", dropped)
		diags.add("history", KindUnparsableData, fmt.Errorf("%d records with unparsable day dropped", dropped))
	}
	return records
}

func (p *Planner) engineFor(ctx context.Context, diags *diagnostics, log *logger.Logger) *difficulty.Engine {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.engine != nil {
		return p.engine
	}
	var snap model.PerformanceSnapshot
	if p.deps.Snapshots != nil {
		stored, err := p.deps.Snapshots.LoadSnapshot(ctx, p.userID)
		switch {
		case err != nil:
			log.Warn("snapshot read failed", "stage", "difficulty", "error", err)
			if diags != nil {
				diags.add("difficulty", KindMissingInput, err)
			}
		case stored != nil:
			snap = *stored
		}
	}
	p.engine = difficulty.New(snap)
	return p.engine
}

// pickLessons selects lessons from cluster, walking the rotation when the
// cluster has nothing pending. When every cluster is exhausted the starting
// cluster is recycled.
func (p *Planner) pickLessons(engine *difficulty.Engine, cluster model.Cluster, completed map[string]bool, n int) (model.Cluster, []model.LessonMeta, string) {
	if p.deps.Content == nil {
		return cluster, nil, "no_content"
	}
	if picked := engine.PickLessons(p.deps.Content.LessonsForCluster(cluster), completed, n); len(picked) > 0 {
		return cluster, picked, ""
	}
	for _, next := range p.opts.Rotation.Order(cluster) {
		if picked := engine.PickLessons(p.deps.Content.LessonsForCluster(next), completed, n); len(picked) > 0 {
			return next, picked, fmt.Sprintf("exhausted:%s->%s", cluster, next)
		}
	}
	picked := engine.PickLessons(p.deps.Content.LessonsForCluster(cluster), nil, n)
	if len(picked) == 0 {
		return cluster, nil, "no_lessons:" + string(cluster)
	}
	return cluster, picked, "exhausted:all->recycle"
}

func (p *Planner) promptContext(ctx context.Context, req Request, today string, diags *diagnostics, log *logger.Logger) matcher.Context {
	mctx := matcher.Context{
		PrimaryTag:        req.ContextTag,
		SecondaryTags:     req.SecondaryTags,
		LastShownDateByID: map[string]string{},
	}
	if p.deps.Cards == nil {
		return mctx
	}
	shown, err := p.deps.Cards.ShownCards(ctx, p.userID, shownCardWindow)
	if err != nil {
		log.Warn("shown cards read failed", "stage", "matcher", "error", err)
		diags.add("matcher", KindMissingInput, err)
		return mctx
	}
	for _, card := range shown {
		mctx.RecentlyShownIDs = append(mctx.RecentlyShownIDs, card.CardID)
		if _, seen := mctx.LastShownDateByID[card.CardID]; !seen {
			mctx.LastShownDateByID[card.CardID] = card.DayKey
		}
		if card.DayKey == today {
			mctx.ShownTodayCount++
			mctx.PerDayAvoid = append(mctx.PerDayAvoid, card.CardID)
		}
	}
	return mctx
}

func (p *Planner) recordShown(today string, pick matcher.Pick) {
	if p.deps.Cards == nil {
		return
	}
	for _, card := range []*model.VocabCard{pick.Primary, pick.Secondary} {
		if card == nil {
			continue
		}
		shown := model.ShownCard{CardID: card.ID, DayKey: today}
		p.deps.Writer.Submit(Task{Name: "shown_card", Run: func(ctx context.Context) error {
			return p.deps.Cards.RecordShownCard(ctx, p.userID, shown)
		}})
	}
	p.markGuestState()
}

func (p *Planner) markGuestState() {
	if !p.Guest() || p.deps.Guest == nil {
		return
	}
	p.deps.Writer.Submit(Task{Name: "guest_pending", Run: p.deps.Guest.MarkPending})
}

func completedLessons(records []model.PracticeRecord) map[string]bool {
	done := map[string]bool{}
	for _, rec := range records {
		if rec.Completed && rec.LessonID != "" {
			done[rec.LessonID] = true
		}
	}
	return done
}

func lessonIDs(lessons []model.LessonMeta) []string {
	ids := make([]string, len(lessons))
	for i, l := range lessons {
		ids[i] = l.ID
	}
	return ids
}
