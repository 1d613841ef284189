// Package cache holds previously composed questions, indexed by content hash
// and by (focus kind, topic, difficulty) bucket.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/pavelanni/interviewer/internal/model"
	"github.com/pavelanni/interviewer/internal/skills"
)

// unobservedEffectiveness ranks questions with fewer than two observed
// scores between poor and good discriminators.
const unobservedEffectiveness = 10.0

// Key identifies a cache bucket.
type Key struct {
	Focus      model.FocusKind
	Topic      string
	Difficulty model.Difficulty
}

func newKey(focus model.FocusKind, topic string, d model.Difficulty) Key {
	return Key{Focus: focus, Topic: skills.Fold(topic), Difficulty: d}
}

type entry struct {
	q        model.Question
	seq      int
	uses     int
	lastUsed time.Time

	// running score statistics (Welford)
	n    int
	mean float64
	m2   float64
}

func (e *entry) effectiveness() float64 {
	if e.n < 2 {
		return unobservedEffectiveness
	}
	return math.Sqrt(e.m2 / float64(e.n))
}

// Stats is a read-only view of a cached question's usage.
type Stats struct {
	Uses          int
	LastUsed      time.Time
	Observations  int
	MeanScore     float64
	Effectiveness float64
}

// Cache is safe for concurrent use.
type Cache struct {
	mu        sync.RWMutex
	byHash    map[string]*entry
	buckets   map[Key][]string
	bucketCap int
	seq       int
	now       func() time.Time
}

// New creates a cache that keeps at most bucketCap questions per bucket.
// A cap of zero or less disables eviction.
func New(bucketCap int) *Cache {
	return &Cache{
		byHash:    make(map[string]*entry),
		buckets:   make(map[Key][]string),
		bucketCap: bucketCap,
		now:       time.Now,
	}
}

// Hash computes the content address of q from its text and scoring contract.
func Hash(q model.Question) string {
	contract := struct {
		Text       string                   `json:"text"`
		Kind       model.QuestionKind       `json:"kind"`
		Difficulty model.Difficulty         `json:"difficulty"`
		Topic      string                   `json:"topic"`
		Focus      model.FocusKind          `json:"focus"`
		Expected   model.ExpectedComponents `json:"expected"`
		Parent     string                   `json:"parent,omitempty"`
	}{q.Text, q.Kind, q.Difficulty, skills.Fold(q.Topic), q.FocusKind, q.Expected, q.ParentHash}
	data, _ := json.Marshal(contract)
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Insert publishes q and returns it with its hash set. Inserting a question
// whose hash is already present returns the stored copy unchanged.
func (c *Cache) Insert(q model.Question) model.Question {
	if q.Hash == "" {
		q.Hash = Hash(q)
	}
	q = cloneQuestion(q)

	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.byHash[q.Hash]; ok {
		return cloneQuestion(e.q)
	}
	c.seq++
	c.byHash[q.Hash] = &entry{q: q, seq: c.seq}
	k := newKey(q.FocusKind, q.Topic, q.Difficulty)
	c.buckets[k] = append(c.buckets[k], q.Hash)
	c.evict(k, q.Hash)
	return cloneQuestion(q)
}

// evict trims bucket k to the cap, dropping the least effective questions.
// keep is never evicted.
func (c *Cache) evict(k Key, keep string) {
	hashes := c.buckets[k]
	if c.bucketCap <= 0 || len(hashes) <= c.bucketCap {
		return
	}
	candidates := make([]*entry, 0, len(hashes))
	for _, h := range hashes {
		if h != keep {
			candidates = append(candidates, c.byHash[h])
		}
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		ei, ej := candidates[i].effectiveness(), candidates[j].effectiveness()
		if ei != ej {
			return ei < ej
		}
		return candidates[i].seq < candidates[j].seq
	})
	drop := make(map[string]bool)
	for _, e := range candidates[:len(hashes)-c.bucketCap] {
		drop[e.q.Hash] = true
		delete(c.byHash, e.q.Hash)
	}
	kept := hashes[:0:0]
	for _, h := range hashes {
		if !drop[h] {
			kept = append(kept, h)
		}
	}
	c.buckets[k] = kept
}

// Lookup returns the least-used question in the bucket whose hash is not in
// exclude. Ties go to the question used least recently, then the oldest.
func (c *Cache) Lookup(focus model.FocusKind, topic string, d model.Difficulty, exclude map[string]bool) (model.Question, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var best *entry
	for _, h := range c.buckets[newKey(focus, topic, d)] {
		if exclude[h] {
			continue
		}
		e := c.byHash[h]
		if best == nil || less(e, best) {
			best = e
		}
	}
	if best == nil {
		return model.Question{}, false
	}
	return cloneQuestion(best.q), true
}

func less(a, b *entry) bool {
	if a.uses != b.uses {
		return a.uses < b.uses
	}
	if !a.lastUsed.Equal(b.lastUsed) {
		return a.lastUsed.Before(b.lastUsed)
	}
	return a.seq < b.seq
}

// Get returns the question with the given hash.
func (c *Cache) Get(hash string) (model.Question, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.byHash[hash]
	if !ok {
		return model.Question{}, false
	}
	return cloneQuestion(e.q), true
}

// RecordUse counts one more use of hash. Unknown hashes are ignored.
func (c *Cache) RecordUse(hash string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.byHash[hash]; ok {
		e.uses++
		e.lastUsed = c.now()
	}
}

// RecordOutcome folds the overall score of a closed turn into the
// question's effectiveness.
func (c *Cache) RecordOutcome(hash string, score int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.byHash[hash]
	if !ok {
		return
	}
	e.n++
	x := float64(score)
	delta := x - e.mean
	e.mean += delta / float64(e.n)
	e.m2 += delta * (x - e.mean)
}

// Stats reports usage statistics for hash.
func (c *Cache) Stats(hash string) (Stats, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.byHash[hash]
	if !ok {
		return Stats{}, false
	}
	return Stats{
		Uses:          e.uses,
		LastUsed:      e.lastUsed,
		Observations:  e.n,
		MeanScore:     e.mean,
		Effectiveness: e.effectiveness(),
	}, true
}

// Len returns the number of cached questions.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.byHash)
}

func cloneQuestion(q model.Question) model.Question {
	q.Expected.RequiredConcepts = cloneStrings(q.Expected.RequiredConcepts)
	q.Expected.OptionalConcepts = cloneStrings(q.Expected.OptionalConcepts)
	q.Expected.KeyTerms = cloneStrings(q.Expected.KeyTerms)
	q.Expected.DepthIndicators = cloneStrings(q.Expected.DepthIndicators)
	q.SuggestedFollowUps = cloneStrings(q.SuggestedFollowUps)
	return q
}

func cloneStrings(s []string) []string {
	if s == nil {
		return nil
	}
	return append([]string(nil), s...)
}
