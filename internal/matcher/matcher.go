// Package matcher picks support prompts from the vocabulary catalog by tag.
package matcher

import (
	"sort"

	"github.com/verte-zerg/dayplan/internal/model"
)

const (
	softAvoidWindow   = 5
	bufferGuardWindow = 3
)

// TriggerTags signal elevated need and unlock a secondary prompt.
var TriggerTags = map[string]bool{
	"overwhelm": true,
	"anxiety":   true,
	"panic":     true,
	"burnout":   true,
	"stuck":     true,
}

// Context is the behavioral context for a pick.
type Context struct {
	PrimaryTag    string
	SecondaryTags []string
	// RecentlyShownIDs is ordered most recent first.
	RecentlyShownIDs []string
	PerDayAvoid      []string
	// LastShownDateByID maps card ids to canonical day keys.
	LastShownDateByID map[string]string
	ShownTodayCount   int
}

// Pick is the matcher output. Secondary is nil when not applicable.
type Pick struct {
	Primary   *model.VocabCard
	Secondary *model.VocabCard
	Pool      string
}

// Pool names reported in Pick.Pool.
const (
	PoolPrimary   = "primary"
	PoolSecondary = "secondary"
	PoolGlobal    = "global"
)

// Matcher selects cards from a read-only catalog.
type Matcher struct {
	cards []model.VocabCard
	byID  map[string]model.VocabCard
}

// New creates a matcher over cards. The slice is copied.
func New(cards []model.VocabCard) *Matcher {
	m := &Matcher{
		cards: append([]model.VocabCard(nil), cards...),
		byID:  make(map[string]model.VocabCard, len(cards)),
	}
	for _, c := range m.cards {
		m.byID[c.ID] = c
	}
	return m
}

// Match runs the primary pick and, when eligible, the secondary pick.
func (m *Matcher) Match(ctx Context) Pick {
	primary, pool := m.PickPrimary(ctx)
	out := Pick{Primary: primary, Pool: pool}
	if primary != nil {
		out.Secondary = m.PickSecondary(ctx, *primary)
	}
	return out
}

// PickPrimary walks the primary, secondary and global pools and returns the
// first card that survives filtering.
func (m *Matcher) PickPrimary(ctx Context) (*model.VocabCard, string) {
	pools := []struct {
		name  string
		cards []model.VocabCard
	}{
		{PoolPrimary, m.withTags(func(c model.VocabCard) bool { return ctx.PrimaryTag != "" && contains(c.TagsPrimary, ctx.PrimaryTag) })},
		{PoolSecondary, m.withTags(func(c model.VocabCard) bool { return intersects(c.TagsSecondary, ctx.SecondaryTags) })},
		{PoolGlobal, m.cards},
	}
	for _, p := range pools {
		if len(p.cards) == 0 {
			continue
		}
		if card, ok := m.choose(p.cards, ctx, p.name == PoolGlobal); ok {
			return &card, p.name
		}
	}
	return nil, ""
}

// PickSecondary returns a complementary card when nothing was shown today and
// a trigger tag is present.
func (m *Matcher) PickSecondary(ctx Context, primary model.VocabCard) *model.VocabCard {
	if ctx.ShownTodayCount != 0 {
		return nil
	}
	tags := allTags(ctx)
	triggered := false
	for _, tag := range tags {
		if TriggerTags[tag] {
			triggered = true
			break
		}
	}
	if !triggered {
		return nil
	}
	topTag := ""
	if len(primary.TagsPrimary) > 0 {
		topTag = primary.TagsPrimary[0]
	}
	candidates := m.withTags(func(c model.VocabCard) bool {
		if c.ID == primary.ID {
			return false
		}
		return topTag == "" || !contains(c.TagsPrimary, topTag)
	})
	if len(candidates) == 0 {
		return nil
	}
	if card, ok := m.choose(candidates, ctx, false); ok {
		return &card
	}
	return nil
}

func (m *Matcher) choose(pool []model.VocabCard, ctx Context, global bool) (model.VocabCard, bool) {
	var regular, buffer []model.VocabCard
	for _, c := range pool {
		if c.IsBuffer {
			buffer = append(buffer, c)
		} else {
			regular = append(regular, c)
		}
	}
	if card, ok := pickFrom(regular, ctx); ok {
		return card, true
	}
	if !global && m.recentBuffer(ctx.RecentlyShownIDs) {
		return model.VocabCard{}, false
	}
	return pickFrom(buffer, ctx)
}

// recentBuffer reports whether any of the last three shown cards was a buffer card.
func (m *Matcher) recentBuffer(recent []string) bool {
	for i, id := range recent {
		if i >= bufferGuardWindow {
			break
		}
		if c, ok := m.byID[id]; ok && c.IsBuffer {
			return true
		}
	}
	return false
}

func pickFrom(cards []model.VocabCard, ctx Context) (model.VocabCard, bool) {
	if len(cards) == 0 {
		return model.VocabCard{}, false
	}
	survivors := hardAvoid(SoftAvoid(cards, ctx.RecentlyShownIDs), ctx.PerDayAvoid)
	if len(survivors) == 0 {
		return model.VocabCard{}, false
	}
	sortCards(survivors, ctx.LastShownDateByID)
	return survivors[0], true
}

// SoftAvoid drops cards among the last five shown, unless that would leave
// nothing, in which case the input is returned unchanged.
func SoftAvoid(cards []model.VocabCard, recent []string) []model.VocabCard {
	window := recent
	if len(window) > softAvoidWindow {
		window = window[:softAvoidWindow]
	}
	filtered := exclude(cards, window)
	if len(filtered) == 0 {
		return cards
	}
	return filtered
}

func hardAvoid(cards []model.VocabCard, avoid []string) []model.VocabCard {
	return exclude(cards, avoid)
}

func exclude(cards []model.VocabCard, ids []string) []model.VocabCard {
	if len(ids) == 0 {
		return append([]model.VocabCard(nil), cards...)
	}
	skip := make(map[string]bool, len(ids))
	for _, id := range ids {
		skip[id] = true
	}
	out := make([]model.VocabCard, 0, len(cards))
	for _, c := range cards {
		if !skip[c.ID] {
			out = append(out, c)
		}
	}
	return out
}

// sortCards orders by weight desc, then unseen first, then oldest shown, then id.
func sortCards(cards []model.VocabCard, lastShown map[string]string) {
	sort.SliceStable(cards, func(i, j int) bool {
		a, b := cards[i], cards[j]
		if a.Weight != b.Weight {
			return a.Weight > b.Weight
		}
		da, seenA := lastShown[a.ID]
		db, seenB := lastShown[b.ID]
		if seenA != seenB {
			return !seenA
		}
		if da != db {
			return da < db
		}
		return a.ID < b.ID
	})
}

func (m *Matcher) withTags(keep func(model.VocabCard) bool) []model.VocabCard {
	var out []model.VocabCard
	for _, c := range m.cards {
		if keep(c) {
			out = append(out, c)
		}
	}
	return out
}

func allTags(ctx Context) []string {
	tags := make([]string, 0, len(ctx.SecondaryTags)+1)
	if ctx.PrimaryTag != "" {
		tags = append(tags, ctx.PrimaryTag)
	}
	return append(tags, ctx.SecondaryTags...)
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

func intersects(a, b []string) bool {
	for _, s := range a {
		if contains(b, s) {
			return true
		}
	}
	return false
}
