package tone

import (
	"math"
	"strings"
	"sync"
	"time"

	"github.com/unsaidlabs/tonecore/pkg/config"
	"github.com/unsaidlabs/tonecore/pkg/nlp"
	"github.com/unsaidlabs/tonecore/pkg/scan"
)

const (
	streamWindow   = 8
	streamAlpha    = 0.6
	logScoreCap    = 6.0
	memoryTTL      = 10 * time.Second
	lockAlertSevere = 500 * time.Millisecond
	lockAlertThreat = 400 * time.Millisecond
	lockCaution     = 400 * time.Millisecond
)

// MemoryEntry is the short-lived conversational state for one field.
type MemoryEntry struct {
	LastTone          string
	Timestamp         time.Time
	SecondPersonCount int
	Addressee         string
}

// ConversationMemory keeps per-field entries with a 10 second TTL. Reads of
// expired entries miss; writes refresh the timestamp.
type ConversationMemory struct {
	mu      sync.Mutex
	entries map[string]MemoryEntry
	now     func() time.Time
}

// NewConversationMemory builds an empty memory.
func NewConversationMemory() *ConversationMemory {
	return &ConversationMemory{entries: make(map[string]MemoryEntry), now: time.Now}
}

// Get returns a live entry for the field, if any.
func (m *ConversationMemory) Get(fieldID string) (MemoryEntry, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.entries[fieldID]
	if !ok || m.now().Sub(entry.Timestamp) > memoryTTL {
		delete(m.entries, fieldID)
		return MemoryEntry{}, false
	}
	return entry, true
}

// Put stores an entry stamped now.
func (m *ConversationMemory) Put(fieldID string, entry MemoryEntry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry.Timestamp = m.now()
	m.entries[fieldID] = entry
}

// Reset drops one field's entry, or everything when fieldID is empty.
func (m *ConversationMemory) Reset(fieldID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if fieldID == "" {
		m.entries = make(map[string]MemoryEntry)
		return
	}
	delete(m.entries, fieldID)
}

// streamState is the per-field incremental state machine.
type streamState struct {
	tokens   []string
	partial  strings.Builder
	lastDist map[string]float64
	lockTone string
	lockUntil time.Time
}

// Streams is the live-typing controller: one state machine per field id,
// fed a character at a time.
type Streams struct {
	mu        sync.Mutex
	states    map[string]*streamState
	scanner   *scan.Scanner
	profanity *ProfanityDetector
	memory    *ConversationMemory
	now       func() time.Time
}

// NewStreams wires the controller. The memory instance is shared with the
// scorer so hysteresis sees live-typing finalizations.
func NewStreams(cfg *config.Provider, scanner *scan.Scanner, memory *ConversationMemory) *Streams {
	return &Streams{
		states:    make(map[string]*streamState),
		scanner:   scanner,
		profanity: NewProfanityDetector(cfg.ProfanityLexicons()),
		memory:    memory,
		now:       time.Now,
	}
}

func (s *Streams) state(fieldID string) *streamState {
	st, ok := s.states[fieldID]
	if !ok {
		st = &streamState{
			lastDist: map[string]float64{"clear": 1.0 / 3, "caution": 1.0 / 3, "alert": 1.0 / 3},
		}
		s.states[fieldID] = st
	}
	return st
}

// FeedChar consumes one character for a field. Whitespace closes the pending
// token; sentence terminators additionally finalize the sentence.
func (s *Streams) FeedChar(fieldID, contextKey string, ch rune) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.state(fieldID)

	switch {
	case ch == ' ' || ch == '\t' || ch == '\n':
		s.closeToken(st, contextKey)
	case ch == '.' || ch == '!' || ch == '?':
		s.closeToken(st, contextKey)
		s.finalizeSentence(fieldID, st, contextKey)
	default:
		st.partial.WriteRune(ch)
	}
}

func (s *Streams) closeToken(st *streamState, contextKey string) {
	if st.partial.Len() == 0 {
		return
	}
	tok := nlp.NormalizeText(st.partial.String())
	st.partial.Reset()
	if tok == "" {
		return
	}
	st.tokens = append(st.tokens, tok)
	if len(st.tokens) > streamWindow {
		st.tokens = st.tokens[len(st.tokens)-streamWindow:]
	}
	s.fastToken(st, contextKey)
}

// fastToken rescans the 8-token window, accumulates clamped log-scores per
// bucket, takes provisional locks on severe content, and EWMA-blends the
// softmaxed distribution into the smoothed state.
func (s *Streams) fastToken(st *streamState, contextKey string) {
	hits := s.scanner.ScanTokens(st.tokens, contextKey)

	logScores := map[string]float64{"clear": 0, "caution": 0, "alert": 0}
	intensityBump := 0.0
	for _, h := range hits {
		logScores[h.Bucket] += h.Weight
		if h.Weight > 0.8 {
			intensityBump += 0.1
		}
	}
	logScores["alert"] += intensityBump * 0.6
	logScores["caution"] += intensityBump * 0.2

	prof := s.profanity.Analyze(st.tokens)
	if prof.Count > 0 {
		logScores["alert"] += prof.AlertBoost() * 2
	}

	now := s.now()
	switch {
	case prof.MaxSeverity == "strong" || prof.HasTargetedSecondPerson:
		st.lockTone = "alert"
		st.lockUntil = now.Add(lockAlertSevere)
	case hasType(hits, "threat") || s.windowTargetedImperative(st.tokens):
		st.lockTone = "alert"
		st.lockUntil = now.Add(lockAlertThreat)
	case hasType(hits, "dismissive") && logScores["alert"]+logScores["caution"] > 0.8:
		st.lockTone = "caution"
		st.lockUntil = now.Add(lockCaution)
	}

	for bucket := range logScores {
		if logScores[bucket] > logScoreCap {
			logScores[bucket] = logScoreCap
		}
	}

	dist := stableSoftmax3(logScores)
	for _, bucket := range bucketOrder {
		st.lastDist[bucket] = streamAlpha*dist[bucket] + (1-streamAlpha)*st.lastDist[bucket]
	}
}

func (s *Streams) windowTargetedImperative(tokens []string) bool {
	hasYou, hasImp := false, false
	for _, tok := range tokens {
		if tok == "you" || tok == "your" {
			hasYou = true
		}
		if imperativeVerbs[tok] {
			hasImp = true
		}
	}
	return hasYou && hasImp
}

// GetCurrent returns the one-hot lock distribution while a provisional lock
// is live, else the smoothed distribution.
func (s *Streams) GetCurrent(fieldID string) Dist {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.state(fieldID)

	if st.lockTone != "" && s.now().Before(st.lockUntil) {
		dist := map[string]float64{"clear": 0, "caution": 0, "alert": 0}
		dist[st.lockTone] = 1
		return Dist{Primary: st.lockTone, Dist: dist}
	}

	dist := make(map[string]float64, 3)
	for _, bucket := range bucketOrder {
		dist[bucket] = st.lastDist[bucket]
	}
	return finalize(dist)
}

// finalizeSentence reruns the window math, commits the result to
// conversation memory, and clears the token window.
func (s *Streams) finalizeSentence(fieldID string, st *streamState, contextKey string) {
	if len(st.tokens) > 0 {
		s.fastToken(st, contextKey)
	}

	dist := make(map[string]float64, 3)
	for _, bucket := range bucketOrder {
		dist[bucket] = st.lastDist[bucket]
	}
	final := finalize(dist)

	secondPerson := 0
	addressee := ""
	for _, tok := range st.tokens {
		switch tok {
		case "you", "your", "you're", "ur", "u":
			secondPerson++
			addressee = "second_person"
		}
	}
	s.memory.Put(fieldID, MemoryEntry{
		LastTone:          final.Primary,
		SecondPersonCount: secondPerson,
		Addressee:         addressee,
	})
	st.tokens = nil
}

// Reset deletes the stream and its conversation memory.
func (s *Streams) Reset(fieldID string) {
	s.mu.Lock()
	delete(s.states, fieldID)
	s.mu.Unlock()
	s.memory.Reset(fieldID)
}

func hasType(hits []scan.Hit, ttype string) bool {
	for _, h := range hits {
		if h.Type == ttype {
			return true
		}
	}
	return false
}

func stableSoftmax3(logScores map[string]float64) map[string]float64 {
	maxV := math.Inf(-1)
	for _, bucket := range bucketOrder {
		if logScores[bucket] > maxV {
			maxV = logScores[bucket]
		}
	}
	dist := make(map[string]float64, 3)
	var denom float64
	for _, bucket := range bucketOrder {
		e := math.Exp(logScores[bucket] - maxV)
		dist[bucket] = e
		denom += e
	}
	for _, bucket := range bucketOrder {
		dist[bucket] /= denom
	}
	return dist
}
