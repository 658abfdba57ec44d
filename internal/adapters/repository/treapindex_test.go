package repository

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sort"
	"sync"
	"testing"
)

func TestTreapIndex_BasicOperations(t *testing.T) {
	ctx := context.Background()
	idx := NewTreapIndex(WithSeed(1))

	if n, _ := idx.Count(ctx, "lead"); n != 0 {
		t.Errorf("expected count 0, got %d", n)
	}

	if err := idx.Set(ctx, "U1", "Lead", 850.5); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n, _ := idx.Count(ctx, "LEAD"); n != 1 {
		t.Errorf("expected count 1, got %d", n)
	}

	entry, err := idx.Rank(ctx, "u1", "lead")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if entry.Rank != 1 || entry.Score != 850.5 || entry.UserID != "u1" || entry.Instrument != "lead" {
		t.Errorf("unexpected entry %+v", entry)
	}

	if _, err := idx.Rank(ctx, "ghost", "lead"); err != ErrNotFound {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if _, err := idx.Top(ctx, "lead", 0); err != ErrInvalidLimit {
		t.Errorf("expected ErrInvalidLimit, got %v", err)
	}
	if err := idx.Set(ctx, "", "lead", 1); err != ErrInvalidKey {
		t.Errorf("expected ErrInvalidKey, got %v", err)
	}
}

func TestTreapIndex_SetReplaces(t *testing.T) {
	ctx := context.Background()
	idx := NewTreapIndex(WithSeed(2))

	_ = idx.Set(ctx, "a", "lead", 100)
	_ = idx.Set(ctx, "b", "lead", 200)
	_ = idx.Set(ctx, "a", "lead", 300)

	top, err := idx.Top(ctx, "lead", 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(top) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(top))
	}
	if top[0].UserID != "a" || top[0].Score != 300 {
		t.Errorf("expected a first with 300, got %+v", top[0])
	}

	_ = idx.Set(ctx, "a", "lead", 50)
	top, _ = idx.Top(ctx, "lead", 10)
	if top[0].UserID != "b" {
		t.Errorf("expected b first after a dropped, got %+v", top[0])
	}
}

func TestTreapIndex_TiesAndRanks(t *testing.T) {
	ctx := context.Background()
	idx := NewTreapIndex(WithSeed(3))

	_ = idx.Set(ctx, "carol", "drums", 500)
	_ = idx.Set(ctx, "alice", "drums", 500)
	_ = idx.Set(ctx, "bob", "drums", 700)
	_ = idx.Set(ctx, "dave", "drums", 100)

	top, _ := idx.Top(ctx, "drums", 10)
	want := []struct {
		user string
		rank int
	}{{"bob", 1}, {"alice", 2}, {"carol", 2}, {"dave", 4}}
	for i, w := range want {
		if top[i].UserID != w.user || top[i].Rank != w.rank {
			t.Errorf("position %d: expected %s rank %d, got %+v", i, w.user, w.rank, top[i])
		}
	}

	e, _ := idx.Rank(ctx, "carol", "drums")
	if e.Rank != 2 {
		t.Errorf("expected tied rank 2, got %d", e.Rank)
	}
	e, _ = idx.Rank(ctx, "dave", "drums")
	if e.Rank != 4 {
		t.Errorf("expected rank 4, got %d", e.Rank)
	}
}

func TestTreapIndex_CombinedBoard(t *testing.T) {
	ctx := context.Background()
	idx := NewTreapIndex(WithSeed(4))

	_ = idx.Set(ctx, "alice", "lead", 900)
	_ = idx.Set(ctx, "alice", "drums", 950)
	_ = idx.Set(ctx, "bob", "bass", 100)

	all, err := idx.Top(ctx, AllInstruments, 25)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(all))
	}
	if all[0].Instrument != "drums" || all[1].Instrument != "lead" || all[2].UserID != "bob" {
		t.Errorf("unexpected combined order %+v", all)
	}

	lead, _ := idx.Top(ctx, "lead", 25)
	if len(lead) != 1 {
		t.Errorf("instrument board should only hold its own rows, got %+v", lead)
	}
}

func TestTreapIndex_MatchesSortedOrder(t *testing.T) {
	ctx := context.Background()
	idx := NewTreapIndex(WithSeed(5))
	r := rand.New(rand.NewPCG(7, 7))

	scores := map[string]float64{}
	for i := 0; i < 2000; i++ {
		user := fmt.Sprintf("user-%03d", r.IntN(400))
		score := float64(r.IntN(5000)) / 4
		scores[user] = score
		if err := idx.Set(ctx, user, "lead", score); err != nil {
			t.Fatalf("set: %v", err)
		}
	}

	type row struct {
		user  string
		score float64
	}
	rows := make([]row, 0, len(scores))
	for u, s := range scores {
		rows = append(rows, row{u, s})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].score != rows[j].score {
			return rows[i].score > rows[j].score
		}
		return rows[i].user < rows[j].user
	})

	top, _ := idx.Top(ctx, "lead", len(rows))
	if len(top) != len(rows) {
		t.Fatalf("expected %d rows, got %d", len(rows), len(top))
	}
	for i := range rows {
		if top[i].UserID != rows[i].user || top[i].Score != rows[i].score {
			t.Fatalf("position %d: expected %+v, got %+v", i, rows[i], top[i])
		}
		e, _ := idx.Rank(ctx, rows[i].user, "lead")
		if e.Rank != top[i].Rank {
			t.Fatalf("rank mismatch for %s: %d vs %d", rows[i].user, e.Rank, top[i].Rank)
		}
	}
}

func TestTreapIndex_ConcurrentAccess(t *testing.T) {
	ctx := context.Background()
	idx := NewTreapIndex()

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				_ = idx.Set(ctx, fmt.Sprintf("u%d-%d", g, i), "vocals", float64(i))
				_, _ = idx.Top(ctx, "vocals", 10)
			}
		}(g)
	}
	wg.Wait()

	if n, _ := idx.Count(ctx, "vocals"); n != 1600 {
		t.Errorf("expected 1600 entries, got %d", n)
	}
}

func BenchmarkTreapIndex_Set(b *testing.B) {
	ctx := context.Background()
	idx := NewTreapIndex(WithSeed(9))
	for i := 0; i < b.N; i++ {
		_ = idx.Set(ctx, fmt.Sprintf("u%d", i%10000), "lead", float64(i%7919))
	}
}
