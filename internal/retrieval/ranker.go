package retrieval

import (
	"fmt"
	"sort"
)

// Rank turns an over-fetched candidate set into the final ordered citation
// list: normalize similarities to [0,1], drop overlapping chunks from the
// same source, order the survivors, truncate to k, and assign ranks and
// display labels.
//
// An empty candidate set yields an empty citation list without error. A
// candidate missing its ID, text, or source URL is rejected with
// ErrInvalidInput: ranking never papers over a malformed record.
func Rank(candidates []Candidate, k int) ([]Citation, error) {
	if k <= 0 {
		return nil, fmt.Errorf("%w: k must be positive, got %d", ErrInvalidInput, k)
	}
	if len(candidates) == 0 {
		return []Citation{}, nil
	}
	for i, c := range candidates {
		if c.Chunk.ID == "" || c.Chunk.Text == "" || c.Chunk.SourceURL == "" {
			return nil, fmt.Errorf("%w: candidate %d is missing chunk id, text, or source url", ErrInvalidInput, i)
		}
	}

	scored := normalizeScores(candidates)
	deduped := dropOverlapping(scored)

	sortCitations(deduped)

	if len(deduped) > k {
		deduped = deduped[:k]
	}
	for i := range deduped {
		deduped[i].Rank = i + 1
		deduped[i].Label = citationLabel(i+1, deduped[i])
	}
	return deduped, nil
}

// normalizeScores min-max scales raw similarities into [0,1]. When every
// candidate shares one similarity there is no spread to scale, so all
// scores become 1.0.
func normalizeScores(candidates []Candidate) []Citation {
	min, max := candidates[0].Similarity, candidates[0].Similarity
	for _, c := range candidates[1:] {
		if c.Similarity < min {
			min = c.Similarity
		}
		if c.Similarity > max {
			max = c.Similarity
		}
	}

	out := make([]Citation, 0, len(candidates))
	for _, c := range candidates {
		score := 1.0
		if max > min {
			score = (c.Similarity - min) / (max - min)
		}
		out = append(out, Citation{
			ChunkID:   c.Chunk.ID,
			Text:      c.Chunk.Text,
			SourceURL: c.Chunk.SourceURL,
			Title:     c.Chunk.Title,
			Position:  c.Chunk.Position,
			Score:     score,
		})
	}
	return out
}

// dropOverlapping removes near-duplicate chunks. Ingestion slices documents
// with overlapping windows, so chunks from the same source at adjacent
// positions repeat most of their text; only the best-scoring one survives.
// Candidates are processed in final citation order so the outcome does not
// depend on index ordering.
func dropOverlapping(citations []Citation) []Citation {
	ordered := make([]Citation, len(citations))
	copy(ordered, citations)
	sortCitations(ordered)

	keptPositions := make(map[string][]int)
	kept := make([]Citation, 0, len(ordered))
	for _, c := range ordered {
		if overlapsKept(keptPositions[c.SourceURL], c.Position) {
			continue
		}
		keptPositions[c.SourceURL] = append(keptPositions[c.SourceURL], c.Position)
		kept = append(kept, c)
	}
	return kept
}

// overlapsKept reports whether position is within one slot of any already
// kept position from the same source.
func overlapsKept(positions []int, position int) bool {
	for _, p := range positions {
		d := position - p
		if d >= -1 && d <= 1 {
			return true
		}
	}
	return false
}

// sortCitations applies the total order: score descending, then position
// ascending, then chunk ID ascending. The ID tiebreak makes the order fully
// deterministic for equal-score, equal-position candidates.
func sortCitations(citations []Citation) {
	sort.Slice(citations, func(i, j int) bool {
		if citations[i].Score != citations[j].Score {
			return citations[i].Score > citations[j].Score
		}
		if citations[i].Position != citations[j].Position {
			return citations[i].Position < citations[j].Position
		}
		return citations[i].ChunkID < citations[j].ChunkID
	})
}

// citationLabel builds the display label shown alongside an answer, falling
// back to the source URL when the document has no title.
func citationLabel(rank int, c Citation) string {
	title := c.Title
	if title == "" {
		title = c.SourceURL
	}
	return fmt.Sprintf("Source %d: %s", rank, title)
}
