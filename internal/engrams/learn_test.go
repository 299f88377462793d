package engrams_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentoven/larder/internal/engrams"
	"github.com/agentoven/larder/internal/errs"
	"github.com/agentoven/larder/internal/pipelines"
	"github.com/agentoven/larder/pkg/models"
)

func TestLearn_CommandThenMatch(t *testing.T) {
	s, db, _ := newEngramStore(t)
	ctx := context.Background()

	u, err := s.Learn(ctx, engrams.LearnRequest{
		Pattern:           "Put the {item} in {zone}",
		CommandType:       models.CommandAdd,
		ParamMapping:      map[string]string{"itemName": "{item}", "zone": "{zone}"},
		ExampleInput:      "put the milk in A2",
		ExampleExtraction: map[string]string{"item": "milk", "zone": "A2"},
	}, pipelines.NewStore(db, 0))
	require.NoError(t, err)
	assert.Equal(t, "put the {item} in {zone}", u.Pattern)
	assert.Equal(t, 0, u.TTLLevel)

	entries, err := s.Cached(ctx)
	require.NoError(t, err)
	m := engrams.FindMatch("put the rice in B1", entries)
	require.NotNil(t, m)
	assert.Equal(t, &models.Command{Type: models.CommandAdd, ItemName: "rice", Quantity: 1, Zone: "B1"}, m.Command)
}

func TestLearn_Rejects(t *testing.T) {
	s, db, _ := newEngramStore(t)
	ctx := context.Background()
	ps := pipelines.NewStore(db, 0)
	require.NoError(t, ps.Save(ctx, &models.Pipeline{
		Name:        "items_by_tag_in_zone",
		SQLTemplate: "SELECT i.name FROM items i WHERE $1 <> '' AND $2 <> ''",
		Params:      []string{"tag_name", "zone_name"},
	}))

	tests := []struct {
		name string
		req  engrams.LearnRequest
		kind errs.Kind
	}{
		{"no target", engrams.LearnRequest{Pattern: "got any {item} left", ExampleInput: "got any milk left"}, errs.KindValidation},
		{"both targets", engrams.LearnRequest{Pattern: "got any {item} left", CommandType: models.CommandCheck, PipelineName: "x"}, errs.KindValidation},
		{"too short", engrams.LearnRequest{Pattern: "{item} left", CommandType: models.CommandCheck}, errs.KindValidation},
		{"mapping to absent placeholder", engrams.LearnRequest{
			Pattern: "got any {item} left", CommandType: models.CommandCheck,
			ParamMapping: map[string]string{"zone": "{zone}"},
		}, errs.KindValidation},
		{"extraction mismatch", engrams.LearnRequest{
			Pattern: "got any {item} left", CommandType: models.CommandCheck,
			ParamMapping:      map[string]string{"itemName": "{item}"},
			ExampleInput:      "got any milk left",
			ExampleExtraction: map[string]string{"item": "cheese"},
		}, errs.KindValidation},
		{"unknown pipeline", engrams.LearnRequest{
			Pattern: "show me all {tag} in {zone}", PipelineName: "nope",
			ParamMapping: map[string]string{"tag_name": "{tag}"},
		}, errs.KindNotFound},
		{"pipeline param unmapped", engrams.LearnRequest{
			Pattern: "show me all {tag} in {zone}", PipelineName: "items_by_tag_in_zone",
			ParamMapping:      map[string]string{"tag_name": "{tag}"},
			ExampleInput:      "show me all dairy in A2",
			ExampleExtraction: map[string]string{"tag": "dairy"},
		}, errs.KindValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.Learn(ctx, tt.req, ps)
			require.Error(t, err)
			assert.True(t, errs.Is(err, tt.kind), "Learn() error = %v, want kind %s", err, tt.kind)
		})
	}

	entries, err := s.Cached(ctx)
	require.NoError(t, err)
	assert.Empty(t, entries, "nothing is saved on rejection")
}

func TestLearn_Pipeline(t *testing.T) {
	s, db, _ := newEngramStore(t)
	ctx := context.Background()
	ps := pipelines.NewStore(db, 0)
	p := &models.Pipeline{
		Name:        "items_by_tag_in_zone",
		SQLTemplate: "SELECT i.name FROM items i WHERE $1 <> '' AND $2 <> ''",
		Params:      []string{"tag_name", "zone_name"},
	}
	require.NoError(t, ps.Save(ctx, p))

	u, err := s.Learn(ctx, engrams.LearnRequest{
		Pattern:           "show me all {tag} in {zone}",
		PipelineName:      "items_by_tag_in_zone",
		ParamMapping:      map[string]string{"tag_name": "{tag}", "zone_name": "{zone}"},
		ExampleInput:      "show me all dairy in A2",
		ExampleExtraction: map[string]string{"tag": "dairy", "zone": "A2"},
	}, ps)
	require.NoError(t, err)
	assert.Equal(t, p.ID, u.PipelineID)
	assert.Equal(t, map[string]int{"tag_name": 1, "zone_name": 2}, u.ParamMapping)
}
