package search

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/streamsieve/streamsieve/internal/indexer/types"
)

func candidates(titles ...string) []types.Result {
	out := make([]types.Result, 0, len(titles))
	for _, title := range titles {
		out = append(out, types.Result{Title: title})
	}
	return out
}

func titlesOf(results []types.Result) []string {
	out := make([]string, 0, len(results))
	for _, r := range results {
		out = append(out, r.Title)
	}
	return out
}

func TestRelevanceDropsHomepageNoise(t *testing.T) {
	filter := NewRelevanceFilter(RelevanceConfig{})
	in := candidates(
		"One Fast Move 2024 1080p WEB",
		"One Piece S01E01 720p",
		"The Shawshank Redemption",
	)
	out := filter.Apply(in, "One Fast Move", "")
	assert.Equal(t, []string{"One Fast Move 2024 1080p WEB"}, titlesOf(out))
}

func TestRelevanceThresholdBoundaries(t *testing.T) {
	filter := NewRelevanceFilter(RelevanceConfig{})

	// K=1: the single token must match.
	out := filter.Apply(candidates("Dune 2021 2160p", "Arrival 2016"), "Dune", "")
	assert.Equal(t, []string{"Dune 2021 2160p"}, titlesOf(out))

	// K=2: both tokens required.
	out = filter.Apply(candidates("Blade Runner 1982", "Blade Trinity"), "Blade Runner", "")
	assert.Equal(t, []string{"Blade Runner 1982"}, titlesOf(out))

	// K=3: ceil(3*0.6)=2 tokens suffice.
	out = filter.Apply(candidates("Mad Max Fury 1080p", "Mad Max", "Fury 2014"), "Mad Max Fury", "")
	assert.Equal(t, []string{"Mad Max Fury 1080p", "Mad Max"}, titlesOf(out))
}

func TestRelevanceStopWordOnlyDisablesFilter(t *testing.T) {
	filter := NewRelevanceFilter(RelevanceConfig{})
	in := candidates("Totally Unrelated Release", "Another One")
	out := filter.Apply(in, "The It", "")
	assert.Len(t, out, 2)
}

func TestRelevanceIMDBBypass(t *testing.T) {
	filter := NewRelevanceFilter(RelevanceConfig{})
	in := candidates("weird release name tt1234567", "weird release name")
	out := filter.Apply(in, "Some Specific Movie", "tt1234567")
	assert.Equal(t, []string{"weird release name tt1234567"}, titlesOf(out))
}

func TestRelevanceNormalization(t *testing.T) {
	filter := NewRelevanceFilter(RelevanceConfig{})

	// Apostrophes collapse within words, punctuation becomes spaces.
	out := filter.Apply(candidates("Schitts.Creek.S01.1080p"), "Schitt's Creek", "")
	assert.Len(t, out, 1)

	// Whole-word match: "one" must not match inside "bone".
	out = filter.Apply(candidates("Bone Collector 1999"), "One", "")
	assert.Empty(t, out)
}

func TestRelevanceMonotonicInThreshold(t *testing.T) {
	loose := NewRelevanceFilter(RelevanceConfig{ShortTitleThreshold: 1.0, LongTitleThreshold: 0.3})
	strict := NewRelevanceFilter(RelevanceConfig{ShortTitleThreshold: 1.0, LongTitleThreshold: 0.9})

	in := candidates(
		"Lord Rings Return King 2003",
		"Lord Rings",
		"Return 2003",
	)
	title := "Lord Rings Return King"
	assert.GreaterOrEqual(t, len(loose.Apply(in, title, "")), len(strict.Apply(in, title, "")))
}
