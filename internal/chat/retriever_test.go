package chat

import (
	"context"
	"math"
	"testing"

	"github.com/pgvector/pgvector-go"
)

func insertEmbedded(t *testing.T, repo *Repo, userID, convID, content string, vec []float32) {
	t.Helper()
	v := pgvector.NewVector(vec)
	if err := repo.InsertMessage(context.Background(), &Message{
		ConversationID: convID,
		UserID:         userID,
		Role:           "user",
		Content:        content,
		Embedding:      &v,
	}); err != nil {
		t.Fatalf("insert %q: %v", content, err)
	}
}

func TestRetriever_EmptyForNewUser(t *testing.T) {
	db := openTestDB(t)
	repo := NewRepo(db)
	r := NewRetriever(repo, 0.7, 5)

	items, err := r.Retrieve(context.Background(), []float32{1, 0, 0}, seedUser(20))
	if err != nil {
		t.Fatalf("retrieve: %v", err)
	}
	if len(items) != 0 {
		t.Fatalf("expected empty result, got %d items", len(items))
	}
}

func TestRetriever_ThresholdAndRanking(t *testing.T) {
	db := openTestDB(t)
	repo := NewRepo(db)
	uid := seedUser(21)

	conv := &Conversation{UserID: uid, Title: "t"}
	if err := repo.CreateConversation(context.Background(), conv); err != nil {
		t.Fatalf("create conversation: %v", err)
	}

	// query [1,0,0]: similarities are 1.0, ~0.995, 0.0, ~0.707
	insertEmbedded(t, repo, uid, conv.ID, "exact", []float32{1, 0, 0})
	insertEmbedded(t, repo, uid, conv.ID, "close", []float32{10, 1, 0})
	insertEmbedded(t, repo, uid, conv.ID, "orthogonal", []float32{0, 1, 0})
	insertEmbedded(t, repo, uid, conv.ID, "diagonal", []float32{1, 1, 0})

	r := NewRetriever(repo, 0.7, 5)
	items, err := r.Retrieve(context.Background(), []float32{1, 0, 0}, uid)
	if err != nil {
		t.Fatalf("retrieve: %v", err)
	}

	if len(items) != 3 {
		t.Fatalf("expected 3 items above threshold, got %d", len(items))
	}
	if items[0].Content != "exact" || items[1].Content != "close" || items[2].Content != "diagonal" {
		t.Fatalf("unexpected ranking: %+v", items)
	}
	if math.Abs(items[0].Similarity-1.0) > 1e-6 {
		t.Fatalf("expected self-similarity 1.0, got %f", items[0].Similarity)
	}
}

func TestRetriever_LimitAndScope(t *testing.T) {
	db := openTestDB(t)
	repo := NewRepo(db)
	uid := seedUser(22)
	other := seedUser(23)

	conv := &Conversation{UserID: uid, Title: "t"}
	if err := repo.CreateConversation(context.Background(), conv); err != nil {
		t.Fatalf("create conversation: %v", err)
	}
	otherConv := &Conversation{UserID: other, Title: "t"}
	if err := repo.CreateConversation(context.Background(), otherConv); err != nil {
		t.Fatalf("create conversation: %v", err)
	}

	for i := 0; i < 4; i++ {
		insertEmbedded(t, repo, uid, conv.ID, "mine", []float32{1, 0, 0})
	}
	// another user's identical vector must never appear
	insertEmbedded(t, repo, other, otherConv.ID, "theirs", []float32{1, 0, 0})

	r := NewRetriever(repo, 0.7, 2)
	items, err := r.Retrieve(context.Background(), []float32{1, 0, 0}, uid)
	if err != nil {
		t.Fatalf("retrieve: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected limit of 2, got %d", len(items))
	}
	for _, it := range items {
		if it.Content != "mine" {
			t.Fatalf("retrieved another user's message: %+v", it)
		}
	}
}

func TestRetriever_SkipsMismatchedDimensions(t *testing.T) {
	db := openTestDB(t)
	repo := NewRepo(db)
	uid := seedUser(24)

	conv := &Conversation{UserID: uid, Title: "t"}
	if err := repo.CreateConversation(context.Background(), conv); err != nil {
		t.Fatalf("create conversation: %v", err)
	}
	insertEmbedded(t, repo, uid, conv.ID, "old-model", []float32{1, 0})
	insertEmbedded(t, repo, uid, conv.ID, "current", []float32{1, 0, 0})

	r := NewRetriever(repo, 0.7, 5)
	items, err := r.Retrieve(context.Background(), []float32{1, 0, 0}, uid)
	if err != nil {
		t.Fatalf("retrieve: %v", err)
	}
	if len(items) != 1 || items[0].Content != "current" {
		t.Fatalf("expected only the matching-dimension vector, got %+v", items)
	}
}

func TestCosineSimilarity(t *testing.T) {
	cases := []struct {
		a, b []float32
		want float64
	}{
		{[]float32{1, 0}, []float32{1, 0}, 1},
		{[]float32{1, 0}, []float32{0, 1}, 0},
		{[]float32{1, 0}, []float32{-1, 0}, -1},
		{[]float32{0, 0}, []float32{1, 0}, 0},
	}
	for _, tc := range cases {
		got := CosineSimilarity(tc.a, tc.b)
		if math.Abs(got-tc.want) > 1e-9 {
			t.Fatalf("cosine(%v,%v) = %f, want %f", tc.a, tc.b, got, tc.want)
		}
	}
}
