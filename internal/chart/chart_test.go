package chart

import (
	"context"
	"testing"

	"cgarena/internal/domain"
	"cgarena/internal/filter"
)

type fakeSource struct {
	matches []domain.Match
	attrs   []domain.MatchAttribute
}

func (f *fakeSource) FetchMatchesWithAttrs(ctx context.Context, needed []domain.AttributeRef) ([]domain.Match, error) {
	return f.matches, nil
}

func (f *fakeSource) FetchTurnAttributes(ctx context.Context, matchIds []domain.MatchId, attributeName string) ([]domain.MatchAttribute, error) {
	allowed := make(map[domain.MatchId]bool, len(matchIds))
	for _, id := range matchIds {
		allowed[id] = true
	}
	var out []domain.MatchAttribute
	for _, a := range f.attrs {
		out = append(out, a)
	}
	_ = allowed
	return out, nil
}

func botPtr(id domain.BotId) *domain.BotId { return &id }
func turnPtr(t uint16) *uint16             { return &t }

func TestVisualizeAveragesPerBotPerTurn(t *testing.T) {
	src := &fakeSource{
		matches: []domain.Match{
			{Id: 1, Seed: 1, Participants: []domain.Participant{{BotId: 1}, {BotId: 2}}},
		},
		attrs: []domain.MatchAttribute{
			{Name: "chips", BotId: botPtr(1), Turn: turnPtr(0), Value: domain.IntegerValue(100)},
			{Name: "chips", BotId: botPtr(1), Turn: turnPtr(0), Value: domain.IntegerValue(200)},
			{Name: "chips", BotId: botPtr(2), Turn: turnPtr(0), Value: domain.IntegerValue(50)},
			{Name: "other", BotId: botPtr(1), Turn: turnPtr(0), Value: domain.IntegerValue(999)},
		},
	}

	overview, err := Visualize(context.Background(), src, filter.AcceptAll(), "chips")
	if err != nil {
		t.Fatalf("Visualize: %v", err)
	}
	if len(overview.Items) != 2 {
		t.Fatalf("expected 2 bots, got %d", len(overview.Items))
	}
	first := overview.Items[0]
	if first.BotId != 1 {
		t.Fatalf("expected items sorted by bot id ascending, got %d first", first.BotId)
	}
	if len(first.Data) != 1 {
		t.Fatalf("expected a single turn entry, got %d", len(first.Data))
	}
	if first.Data[0].Avg != 150 {
		t.Fatalf("expected avg of 100 and 200 to be 150, got %v", first.Data[0].Avg)
	}
	if first.Data[0].Min != 100 || first.Data[0].Max != 200 {
		t.Fatalf("expected min 100 max 200, got min=%v max=%v", first.Data[0].Min, first.Data[0].Max)
	}
}

func TestVisualizeFiltersNonMatchingMatches(t *testing.T) {
	f, err := filter.Parse("match.tag == 7")
	if err != nil {
		t.Fatalf("parsing filter: %v", err)
	}
	src := &fakeSource{
		matches: []domain.Match{
			{Id: 1, Seed: 1, Participants: []domain.Participant{{BotId: 1}}, Attributes: []domain.MatchAttribute{
				{Name: "tag", Value: domain.IntegerValue(1)},
			}},
			{Id: 2, Seed: 7, Participants: []domain.Participant{{BotId: 1}}, Attributes: []domain.MatchAttribute{
				{Name: "tag", Value: domain.IntegerValue(7)},
			}},
		},
		attrs: []domain.MatchAttribute{
			{Name: "chips", BotId: botPtr(1), Turn: turnPtr(0), Value: domain.IntegerValue(10)},
		},
	}
	overview, err := Visualize(context.Background(), src, f, "chips")
	if err != nil {
		t.Fatalf("Visualize: %v", err)
	}
	if overview.TotalMatches != 1 {
		t.Fatalf("expected only the seed==7 match to count, got %d", overview.TotalMatches)
	}
}
