package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppiankov/clausewise/internal/model"
)

func openTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "clausewise.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleResult(id string, at time.Time, entities ...model.Entity) *model.AnalysisResult {
	return &model.AnalysisResult{
		ID:         id,
		AnalyzedAt: at,
		Document: model.Document{
			ID:     "doc-" + id,
			Source: id + ".txt",
			Format: model.FormatText,
			Text:   "1. The Buyer shall pay $500.",
			Clauses: []model.Clause{{
				DocumentID: "doc-" + id,
				Span:       model.Span{Start: 0, End: 28},
				Text:       "1. The Buyer shall pay $500.",
				Entities:   entities,
				Label:      "payment",
			}},
		},
		Classification: "sales_contract",
		Summary:        "Document classified as sales_contract with 1 clauses extracted.",
		Stats:          model.Stats{Clauses: 1, Entities: len(entities)},
		Complete:       true,
	}
}

func countEntities(t *testing.T, s *SQLiteStore, id string) int {
	t.Helper()
	var n int
	require.NoError(t, s.db.QueryRow(`SELECT COUNT(*) FROM entities WHERE analysis_id=?`, id).Scan(&n))
	return n
}

func TestSchemaCreationIdempotent(t *testing.T) {
	s := openTestStore(t)
	for i := 0; i < 3; i++ {
		require.NoError(t, initSchema(context.Background(), s.db))
	}
}

func TestSaveGet(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	at := time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)
	money := model.Entity{Text: "$500", Category: model.EntityMonetaryAmount, Span: model.Span{Start: 23, End: 27}, Confidence: 0.95}

	require.NoError(t, s.Save(ctx, sampleResult("a", at, money)))

	got, err := s.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "sales_contract", got.Classification)
	assert.True(t, got.AnalyzedAt.Equal(at))
	require.Len(t, got.Clauses(), 1)
	assert.Equal(t, []model.Entity{money}, got.Clauses()[0].Entities)
	assert.Equal(t, 1, countEntities(t, s, "a"))
}

func TestSave_ReplacesEntities(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	e1 := model.Entity{Text: "$500", Category: model.EntityMonetaryAmount, Span: model.Span{Start: 23, End: 27}, Confidence: 0.95}
	e2 := model.Entity{Text: "Buyer", Category: model.EntityParty, Span: model.Span{Start: 7, End: 12}, Confidence: 0.75}

	require.NoError(t, s.Save(ctx, sampleResult("a", time.Now(), e1, e2)))
	require.NoError(t, s.Save(ctx, sampleResult("a", time.Now(), e1)))

	assert.Equal(t, 1, countEntities(t, s, "a"))
}

func TestGet_NotFound(t *testing.T) {
	_, err := openTestStore(t).Get(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestList_NewestFirst(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)

	require.NoError(t, s.Save(ctx, sampleResult("old", base)))
	require.NoError(t, s.Save(ctx, sampleResult("new", base.Add(time.Hour))))
	require.NoError(t, s.Save(ctx, sampleResult("mid", base.Add(1500*time.Millisecond))))

	all, err := s.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []string{"new", "mid", "old"}, []string{all[0].ID, all[1].ID, all[2].ID})
	assert.Equal(t, "new.txt", all[0].Source)
	assert.Equal(t, model.FormatText, all[0].Format)
	assert.True(t, all[0].Complete)

	limited, err := s.List(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}

func TestFindByEntity(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	money := model.Entity{Text: "$500", Category: model.EntityMonetaryAmount, Span: model.Span{Start: 23, End: 27}, Confidence: 0.95}

	require.NoError(t, s.Save(ctx, sampleResult("with", time.Now(), money)))
	require.NoError(t, s.Save(ctx, sampleResult("without", time.Now())))

	found, err := s.FindByEntity(ctx, model.EntityMonetaryAmount, "$500", 10)
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "with", found[0].ID)

	none, err := s.FindByEntity(ctx, model.EntityDuration, "$500", 10)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestDelete_Cascades(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	money := model.Entity{Text: "$500", Category: model.EntityMonetaryAmount, Span: model.Span{Start: 23, End: 27}, Confidence: 0.95}

	require.NoError(t, s.Save(ctx, sampleResult("a", time.Now(), money)))
	require.NoError(t, s.Delete(ctx, "a"))

	_, err := s.Get(ctx, "a")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, 0, countEntities(t, s, "a"))

	assert.ErrorIs(t, s.Delete(ctx, "a"), ErrNotFound)
}
