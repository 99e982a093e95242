package vectorstore

import (
	"testing"

	"github.com/wandersure/wandersure-api/internal/models"
)

func TestMatchFromRow(t *testing.T) {
	names := []string{"product", "benefit_name", "similarity_score", "embedding", "embedding_original", "coverage_limit"}
	values := []any{"AnnualMulti", "Baggage delay", float64(0.87), []float32{0.1}, []float32{0.2}, int64(1500)}

	match, ok := matchFromRow(models.TableBenefits, names, values)
	if !ok {
		t.Fatal("expected row to produce a match")
	}
	if match.Table != models.TableBenefits {
		t.Errorf("table = %q", match.Table)
	}
	if match.SimilarityScore == nil || *match.SimilarityScore != 0.87 {
		t.Errorf("similarity = %v, want 0.87 promoted out of fields", match.SimilarityScore)
	}
	if _, found := match.Fields["similarity_score"]; found {
		t.Error("similarity_score must not remain in fields")
	}
	for _, col := range []string{"embedding", "embedding_original"} {
		if _, found := match.Fields[col]; found {
			t.Errorf("%s must never be shipped to callers", col)
		}
	}
	if match.Fields["coverage_limit"] != int64(1500) {
		t.Errorf("coverage_limit = %v", match.Fields["coverage_limit"])
	}
}

func TestMatchFromRowFloat32Score(t *testing.T) {
	match, ok := matchFromRow(models.TableBenefits, []string{"similarity_score"}, []any{float32(0.5)})
	if !ok || match.SimilarityScore == nil {
		t.Fatal("float32 score must be accepted")
	}
	if *match.SimilarityScore != 0.5 {
		t.Errorf("score = %v, want 0.5", *match.SimilarityScore)
	}
}

func TestMatchFromRowFiltersSentinels(t *testing.T) {
	names := []string{"benefit_name", "condition_exists"}

	if _, ok := matchFromRow(models.TableBenefitConditions, names, []any{"Cancellation", false}); ok {
		t.Error("condition_exists=false rows must be dropped")
	}
	if _, ok := matchFromRow(models.TableBenefitConditions, names, []any{"Cancellation", true}); !ok {
		t.Error("condition_exists=true rows must survive")
	}
}

func TestSortByScoreDescStability(t *testing.T) {
	matches := []models.PolicyMatch{
		{Table: "a", SimilarityScore: score(0.5), Fields: map[string]any{"n": 1}},
		{Table: "a", SimilarityScore: score(0.5), Fields: map[string]any{"n": 2}},
		{Table: "b", Fields: map[string]any{"n": 3}},
		{Table: "b", SimilarityScore: score(0.9), Fields: map[string]any{"n": 4}},
		{Table: "b", Fields: map[string]any{"n": 5}},
	}
	SortByScoreDesc(matches)

	wantOrder := []int{4, 1, 2, 3, 5}
	for i, want := range wantOrder {
		if matches[i].Fields["n"] != want {
			t.Errorf("position %d = %v, want %d (ties and unscored keep insertion order)", i, matches[i].Fields["n"], want)
		}
	}
}
