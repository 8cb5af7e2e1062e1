package dupgate

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
	"time"
	"unicode"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"scenariomarket/internal/config"
	"scenariomarket/internal/models"
	"scenariomarket/internal/repository"
)

type Decision string

const (
	DecisionAllow Decision = "allow"
	DecisionWarn  Decision = "warn"
	DecisionBlock Decision = "block"
)

type Match struct {
	ScenarioID     uint64          `json:"scenario_id"`
	Similarity     int             `json:"similarity"`
	HolderUsername string          `json:"holder_username"`
	CurrentPrice   decimal.Decimal `json:"current_price"`
}

type Result struct {
	Decision Decision `json:"decision"`
	Matches  []Match  `json:"matches"`
}

// CandidateLister is the read-only slice of the repository the gate needs.
type CandidateLister interface {
	ListDupCandidates(ctx context.Context, category string, since time.Time, limit int) ([]repository.DupCandidate, error)
	FindScenarioByFingerprint(ctx context.Context, category, fingerprint string) (*models.Scenario, error)
}

// Gate scores a proposed scenario against recently active ones in the same
// category. Read-only and idempotent; safe to run on every debounced
// keystroke of the creation form.
type Gate struct {
	Repo   CandidateLister
	Config config.DupGateConfig
	Logger *zap.Logger
}

// Evaluate never returns an error to the caller: a failed candidate lookup
// degrades to allow, since blocking all creation is the worse failure.
func (g *Gate) Evaluate(ctx context.Context, title, description, category string) Result {
	if g == nil {
		return Result{Decision: DecisionAllow}
	}
	title = strings.TrimSpace(title)
	if len([]rune(title)) < g.Config.MinTitleLength {
		return Result{Decision: DecisionAllow}
	}

	fp := Fingerprint(title, description)

	// Exact-fingerprint fast path: an indexed equality lookup settles
	// verbatim duplicates without scanning candidates. Lookup failures
	// degrade to the similarity scan below.
	if existing, err := g.Repo.FindScenarioByFingerprint(ctx, category, fp); err == nil && existing != nil {
		return Result{Decision: DecisionBlock, Matches: []Match{{
			ScenarioID:   existing.ID,
			Similarity:   100,
			CurrentPrice: existing.CurrentPrice,
		}}}
	}

	since := time.Now().UTC().Add(-g.Config.RecentWindow)
	candidates, err := g.Repo.ListDupCandidates(ctx, category, since, g.Config.CandidateLimit)
	if err != nil {
		if g.Logger != nil {
			g.Logger.Warn("duplicate candidate lookup failed, allowing", zap.Error(err))
		}
		return Result{Decision: DecisionAllow}
	}

	proposed := tokenize(title + " " + description)

	var matches []Match
	for _, cand := range candidates {
		score := 0
		if cand.Fingerprint == fp {
			score = 100
		} else {
			score = Similarity(proposed, tokenize(cand.Title+" "+cand.Description))
		}
		if score < g.Config.WarnThreshold {
			continue
		}
		matches = append(matches, Match{
			ScenarioID:     cand.ScenarioID,
			Similarity:     score,
			HolderUsername: cand.HolderUsername,
			CurrentPrice:   cand.CurrentPrice,
		})
	}
	if len(matches) == 0 {
		return Result{Decision: DecisionAllow}
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i].Similarity > matches[j].Similarity })

	decision := DecisionWarn
	if matches[0].Similarity >= g.Config.BlockThreshold {
		decision = DecisionBlock
	}
	return Result{Decision: decision, Matches: matches}
}

// Fingerprint hashes the normalized content: lowercased, punctuation stripped,
// whitespace collapsed. Two scenarios differing only in case, spacing or
// punctuation fingerprint identically.
func Fingerprint(title, description string) string {
	norm := normalize(title) + "\n" + normalize(description)
	sum := sha256.Sum256([]byte(norm))
	return hex.EncodeToString(sum[:])
}

// Similarity is the Sorensen-Dice coefficient over token sets, scaled 0-100.
func Similarity(a, b map[string]struct{}) int {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	shared := 0
	for tok := range a {
		if _, ok := b[tok]; ok {
			shared++
		}
	}
	return int(float64(2*shared) / float64(len(a)+len(b)) * 100)
}

func normalize(s string) string {
	var sb strings.Builder
	prevSpace := false
	for _, r := range strings.ToLower(s) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			sb.WriteRune(r)
			prevSpace = false
		case unicode.IsSpace(r):
			if !prevSpace && sb.Len() > 0 {
				sb.WriteRune(' ')
				prevSpace = true
			}
		}
	}
	return strings.TrimSpace(sb.String())
}

func tokenize(s string) map[string]struct{} {
	out := map[string]struct{}{}
	for _, tok := range strings.Fields(normalize(s)) {
		if len(tok) < 2 {
			continue
		}
		out[tok] = struct{}{}
	}
	return out
}
