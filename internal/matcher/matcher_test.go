package matcher

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/verte-zerg/dayplan/internal/model"
)

func catalog() []model.VocabCard {
	return []model.VocabCard{
		{ID: "breathe", TagsPrimary: []string{"anxiety"}, TagsSecondary: []string{"calm"}, Weight: 2},
		{ID: "ground", TagsPrimary: []string{"anxiety"}, TagsSecondary: []string{"focus"}, Weight: 1},
		{ID: "pause", TagsPrimary: []string{"overwhelm"}, TagsSecondary: []string{"anxiety"}, Weight: 1},
		{ID: "list", TagsPrimary: []string{"stuck"}, TagsSecondary: []string{"focus"}, Weight: 3},
		{ID: "rest", TagsPrimary: []string{"tired"}, Weight: 1, IsBuffer: true},
		{ID: "smile", TagsPrimary: []string{"joy"}, Weight: 0.5},
	}
}

func TestPrimaryPoolOrder(t *testing.T) {
	m := New(catalog())

	card, pool := m.PickPrimary(Context{PrimaryTag: "anxiety"})
	require.NotNil(t, card)
	require.Equal(t, "breathe", card.ID)
	require.Equal(t, PoolPrimary, pool)

	card, pool = m.PickPrimary(Context{PrimaryTag: "unknown", SecondaryTags: []string{"focus"}})
	require.NotNil(t, card)
	require.Equal(t, "list", card.ID)
	require.Equal(t, PoolSecondary, pool)

	card, pool = m.PickPrimary(Context{PrimaryTag: "unknown"})
	require.NotNil(t, card)
	require.Equal(t, "list", card.ID)
	require.Equal(t, PoolGlobal, pool)
}

func TestSoftAvoidFallsBackToUnfiltered(t *testing.T) {
	m := New(catalog())
	card, _ := m.PickPrimary(Context{PrimaryTag: "anxiety", RecentlyShownIDs: []string{"breathe"}})
	require.Equal(t, "ground", card.ID)

	card, _ = m.PickPrimary(Context{PrimaryTag: "anxiety", RecentlyShownIDs: []string{"breathe", "ground"}})
	require.NotNil(t, card, "soft avoid must never empty the pool")
	require.Equal(t, "breathe", card.ID)
}

func TestSoftAvoidOnlyLastFive(t *testing.T) {
	cards := []model.VocabCard{{ID: "a"}, {ID: "b"}}
	out := SoftAvoid(cards, []string{"x1", "x2", "x3", "x4", "x5", "a"})
	require.Len(t, out, 2)
	out = SoftAvoid(cards, []string{"a"})
	require.Len(t, out, 1)
	require.Equal(t, "b", out[0].ID)
	out = SoftAvoid(cards, []string{"a", "b"})
	require.Len(t, out, 2)
}

func TestHardAvoidCanEmptyPool(t *testing.T) {
	m := New(catalog())
	card, pool := m.PickPrimary(Context{PrimaryTag: "anxiety", PerDayAvoid: []string{"breathe", "ground"}})
	require.NotNil(t, card)
	require.Equal(t, PoolGlobal, pool, "primary pool emptied by hard avoid falls through")
	require.Equal(t, "list", card.ID)
}

func TestSortByLastShown(t *testing.T) {
	m := New([]model.VocabCard{
		{ID: "c", TagsPrimary: []string{"t"}, Weight: 1},
		{ID: "b", TagsPrimary: []string{"t"}, Weight: 1},
		{ID: "a", TagsPrimary: []string{"t"}, Weight: 1},
	})
	card, _ := m.PickPrimary(Context{PrimaryTag: "t", LastShownDateByID: map[string]string{
		"a": "2024-01-03",
		"b": "2024-01-01",
	}})
	require.Equal(t, "c", card.ID, "unseen sorts first")

	card, _ = m.PickPrimary(Context{PrimaryTag: "t", LastShownDateByID: map[string]string{
		"a": "2024-01-03",
		"b": "2024-01-01",
		"c": "2024-01-02",
	}})
	require.Equal(t, "b", card.ID, "oldest shown first")

	card, _ = m.PickPrimary(Context{PrimaryTag: "t"})
	require.Equal(t, "a", card.ID, "id order breaks ties")
}

func TestBufferGuard(t *testing.T) {
	m := New(catalog())

	card, _ := m.PickPrimary(Context{PrimaryTag: "tired"})
	require.Equal(t, "rest", card.ID)

	card, pool := m.PickPrimary(Context{PrimaryTag: "tired", RecentlyShownIDs: []string{"smile", "rest"}})
	require.NotNil(t, card)
	require.Equal(t, PoolGlobal, pool)
	require.Equal(t, "list", card.ID)

	onlyBuffer := New([]model.VocabCard{{ID: "rest", TagsPrimary: []string{"tired"}, IsBuffer: true}})
	card, pool = onlyBuffer.PickPrimary(Context{PrimaryTag: "tired", RecentlyShownIDs: []string{"rest"}})
	require.NotNil(t, card, "global pool lifts the buffer restriction")
	require.Equal(t, PoolGlobal, pool)

	card, _ = m.PickPrimary(Context{PrimaryTag: "tired", RecentlyShownIDs: []string{"a", "b", "c", "rest"}})
	require.Equal(t, "rest", card.ID, "buffer older than three shows does not block")
}

func TestSecondaryPick(t *testing.T) {
	m := New(catalog())

	pick := m.Match(Context{PrimaryTag: "anxiety", SecondaryTags: []string{"stuck"}})
	require.NotNil(t, pick.Primary)
	require.Equal(t, "breathe", pick.Primary.ID)
	require.NotNil(t, pick.Secondary)
	require.Equal(t, "list", pick.Secondary.ID)

	pick = m.Match(Context{PrimaryTag: "anxiety", SecondaryTags: []string{"stuck"}, ShownTodayCount: 1})
	require.Nil(t, pick.Secondary)

	pick = m.Match(Context{PrimaryTag: "joy"})
	require.Nil(t, pick.Secondary, "no trigger tag")

	pick = m.Match(Context{PrimaryTag: "anxiety"})
	require.NotNil(t, pick.Secondary)
	require.Equal(t, "list", pick.Secondary.ID, "candidates come from the whole catalog")

	pick = New([]model.VocabCard{
		{ID: "breathe", TagsPrimary: []string{"anxiety", "panic"}, Weight: 2},
		{ID: "ground", TagsPrimary: []string{"anxiety"}, Weight: 5},
		{ID: "smile", TagsPrimary: []string{"joy"}, Weight: 0.5},
	}).Match(Context{PrimaryTag: "panic"})
	require.Equal(t, "breathe", pick.Primary.ID)
	require.NotNil(t, pick.Secondary)
	require.Equal(t, "smile", pick.Secondary.ID, "cards sharing the top primary tag are excluded")
}

func TestEmptyCatalog(t *testing.T) {
	pick := New(nil).Match(Context{PrimaryTag: "anxiety"})
	require.Nil(t, pick.Primary)
	require.Nil(t, pick.Secondary)
}
