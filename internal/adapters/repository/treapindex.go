package repository

import (
	"context"
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/okian/festrank/pkg/metrics"
)

// In-memory LeaderboardIndex backed by one treap per board.
//
// Ordering: score DESC, then member ASC. "less" means ranks earlier, so an
// in-order traversal yields the leaderboard from best to worst. Subtree
// sizes make rank queries O(log n).

// scoreScale fixes scores to six decimals so equal aggregates compare equal.
const scoreScale = 1_000_000

type scoreFP int64

func toFixedPoint(x float64) scoreFP {
	switch {
	case math.IsNaN(x):
		return 0
	case x*scoreScale >= math.MaxInt64:
		return scoreFP(math.MaxInt64)
	case x*scoreScale <= math.MinInt64:
		return scoreFP(math.MinInt64)
	}
	return scoreFP(math.Round(x * scoreScale))
}

func toFloat(x scoreFP) float64 {
	return float64(x) / scoreScale
}

type node struct {
	id    string
	score scoreFP
	prio  uint64
	left  *node
	right *node
	size  int
}

func nsize(n *node) int {
	if n == nil {
		return 0
	}
	return n.size
}

func fix(n *node) {
	if n != nil {
		n.size = 1 + nsize(n.left) + nsize(n.right)
	}
}

// less returns true if (aScore, aID) appears before (bScore, bID).
func less(aScore scoreFP, aID string, bScore scoreFP, bID string) bool {
	if aScore != bScore {
		return aScore > bScore
	}
	return aID < bID
}

func rotateRight(y *node) *node {
	x := y.left
	y.left = x.right
	x.right = y
	fix(y)
	fix(x)
	return x
}

func rotateLeft(x *node) *node {
	y := x.right
	x.right = y.left
	y.left = x
	fix(x)
	fix(y)
	return y
}

func insert(n *node, id string, score scoreFP, prio uint64) *node {
	if n == nil {
		return &node{id: id, score: score, prio: prio, size: 1}
	}
	if less(score, id, n.score, n.id) {
		n.left = insert(n.left, id, score, prio)
		if n.left.prio > n.prio {
			n = rotateRight(n)
		}
	} else {
		n.right = insert(n.right, id, score, prio)
		if n.right.prio > n.prio {
			n = rotateLeft(n)
		}
	}
	fix(n)
	return n
}

func deleteNode(n *node, id string, score scoreFP) *node {
	if n == nil {
		return nil
	}
	switch {
	case score == n.score && id == n.id:
		if n.left == nil {
			return n.right
		}
		if n.right == nil {
			return n.left
		}
		if n.left.prio > n.right.prio {
			n = rotateRight(n)
			n.right = deleteNode(n.right, id, score)
		} else {
			n = rotateLeft(n)
			n.left = deleteNode(n.left, id, score)
		}
	case less(score, id, n.score, n.id):
		n.left = deleteNode(n.left, id, score)
	default:
		n.right = deleteNode(n.right, id, score)
	}
	fix(n)
	return n
}

// countAbove returns how many nodes score strictly higher than score.
func countAbove(n *node, score scoreFP) int {
	count := 0
	for n != nil {
		if n.score > score {
			count += nsize(n.left) + 1
			n = n.right
		} else {
			n = n.left
		}
	}
	return count
}

// collectTopN appends up to limit nodes in rank order.
func collectTopN(n *node, limit int, out *[]*node) {
	if n == nil || len(*out) >= limit {
		return
	}
	collectTopN(n.left, limit, out)
	if len(*out) < limit {
		*out = append(*out, n)
	}
	if len(*out) < limit {
		collectTopN(n.right, limit, out)
	}
}

type board struct {
	root *node
	byID map[string]scoreFP
}

func (b *board) set(id string, score scoreFP, prio uint64) {
	if old, ok := b.byID[id]; ok {
		if old == score {
			return
		}
		b.root = deleteNode(b.root, id, old)
	}
	b.byID[id] = score
	b.root = insert(b.root, id, score, prio)
}

// TreapIndex is the in-memory LeaderboardIndex.
type TreapIndex struct {
	mu     sync.RWMutex
	boards map[string]*board
	rng    *rand.Rand
	seed   uint64
}

// NewTreapIndex constructs an empty treap index.
func NewTreapIndex(opts ...TreapOption) *TreapIndex {
	t := &TreapIndex{
		boards: make(map[string]*board),
		seed:   uint64(time.Now().UnixNano()),
	}
	for _, opt := range opts {
		opt(t)
	}
	t.rng = rand.New(rand.NewPCG(t.seed, t.seed^0x9e3779b97f4a7c15)) //nolint:gosec // priorities only
	return t
}

func (t *TreapIndex) board(name string) *board {
	b, ok := t.boards[name]
	if !ok {
		b = &board{byID: make(map[string]scoreFP)}
		t.boards[name] = b
	}
	return b
}

// Set implements LeaderboardIndex.Set in O(log n) expected time.
func (t *TreapIndex) Set(ctx context.Context, userID, instrument string, score float64) error {
	start := time.Now()
	defer func() {
		metrics.RecordRepositoryUpdateLatency("treap", float64(time.Since(start).Microseconds())/1000)
	}()

	if Key(userID) == "" || Key(instrument) == "" {
		return ErrInvalidKey
	}
	id := member(userID, instrument)
	fp := toFixedPoint(score)

	t.mu.Lock()
	t.board(Key(instrument)).set(id, fp, t.rng.Uint64())
	t.board(AllInstruments).set(id, fp, t.rng.Uint64())
	size := len(t.boards[Key(instrument)].byID)
	t.mu.Unlock()

	metrics.UpdateLeaderboardSize(Key(instrument), size)
	return nil
}

// Top implements LeaderboardIndex.Top.
func (t *TreapIndex) Top(ctx context.Context, instrument string, n int) ([]Entry, error) {
	start := time.Now()
	defer func() {
		metrics.RecordRepositoryQueryLatency("treap", float64(time.Since(start).Microseconds())/1000)
	}()

	if n < 1 {
		metrics.RecordErrorByComponent("repository", "invalid_limit")
		return nil, ErrInvalidLimit
	}

	t.mu.RLock()
	defer t.mu.RUnlock()

	b, ok := t.boards[Key(instrument)]
	if !ok {
		return []Entry{}, nil
	}
	nodes := make([]*node, 0, min(n, len(b.byID)))
	collectTopN(b.root, n, &nodes)

	out := make([]Entry, len(nodes))
	for i, nd := range nodes {
		user, inst := splitMember(nd.id)
		rank := i + 1
		if i > 0 && nd.score == nodes[i-1].score {
			rank = out[i-1].Rank
		}
		out[i] = Entry{Rank: rank, UserID: user, Instrument: inst, Score: toFloat(nd.score)}
	}
	return out, nil
}

// Rank implements LeaderboardIndex.Rank in O(log n).
func (t *TreapIndex) Rank(ctx context.Context, userID, instrument string) (Entry, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	b, ok := t.boards[Key(instrument)]
	if !ok {
		return Entry{}, ErrNotFound
	}
	score, ok := b.byID[member(userID, instrument)]
	if !ok {
		return Entry{}, ErrNotFound
	}
	return Entry{
		Rank:       countAbove(b.root, score) + 1,
		UserID:     Key(userID),
		Instrument: Key(instrument),
		Score:      toFloat(score),
	}, nil
}

// Count implements LeaderboardIndex.Count.
func (t *TreapIndex) Count(ctx context.Context, instrument string) (int, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if b, ok := t.boards[Key(instrument)]; ok {
		return len(b.byID), nil
	}
	return 0, nil
}

// Close implements LeaderboardIndex.Close.
func (t *TreapIndex) Close() error { return nil }
