package chat

import (
	"context"
	"math"
	"sort"
)

// Retriever ranks a user's previously embedded messages against a query
// vector. The contract is threshold filter + top-K by cosine similarity;
// the scan is exact, over candidates in stable storage order, so equal
// scores keep their insertion order.
type Retriever struct {
	repo      *Repo
	threshold float64
	limit     int
	scanLimit int
}

func NewRetriever(repo *Repo, threshold float64, limit int) *Retriever {
	if threshold <= 0 {
		threshold = 0.7
	}
	if limit <= 0 {
		limit = 5
	}
	return &Retriever{repo: repo, threshold: threshold, limit: limit, scanLimit: 2000}
}

func (r *Retriever) Retrieve(ctx context.Context, query []float32, userID string) ([]RetrievedItem, error) {
	msgs, err := r.repo.ListEmbeddedByUser(ctx, userID, r.scanLimit)
	if err != nil {
		return nil, err
	}

	items := make([]RetrievedItem, 0, len(msgs))
	for _, m := range msgs {
		if m.Embedding == nil {
			continue
		}
		vec := m.Embedding.Slice()
		if len(vec) != len(query) {
			// stored under a different embedding model; unusable
			continue
		}
		sim := CosineSimilarity(query, vec)
		if sim > r.threshold {
			items = append(items, RetrievedItem{Content: m.Content, Similarity: sim})
		}
	}

	sort.SliceStable(items, func(i, j int) bool {
		return items[i].Similarity > items[j].Similarity
	})

	if len(items) > r.limit {
		items = items[:r.limit]
	}
	return items, nil
}

// CosineSimilarity compares the orientation of two equal-length vectors.
// Returns 0 for a zero-magnitude vector.
func CosineSimilarity(a, b []float32) float64 {
	var dot, magA, magB float64
	for i := 0; i < len(a) && i < len(b); i++ {
		dot += float64(a[i]) * float64(b[i])
		magA += float64(a[i]) * float64(a[i])
		magB += float64(b[i]) * float64(b[i])
	}
	if magA == 0 || magB == 0 {
		return 0
	}
	return dot / (math.Sqrt(magA) * math.Sqrt(magB))
}
