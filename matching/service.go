package matching

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/pharmdata/remisia_backend/config"
	"github.com/pharmdata/remisia_backend/models"
)

// LineResult is the matching outcome for one sale line: the ranked
// candidates plus the best candidate per laboratory.
type LineResult struct {
	SaleLineId   int               `json:"sale_line_id"`
	Designation  string            `json:"designation"`
	ProductCode  string            `json:"product_code"`
	AnnualQty    int               `json:"annual_qty"`
	AnnualAmount decimal.Decimal   `json:"annual_amount"`
	Candidates   []Candidate       `json:"candidates"`
	BestByLab    map[int]Candidate `json:"best_by_lab"`
	Unmatched    bool              `json:"unmatched"`
}

// Service orchestrates the cascade over whole import batches and keeps
// the persistent per-code match cache.
type Service struct {
	catalog CatalogProvider
	refs    ReferenceProvider
	memory  *Memory
	indexes *Indexes
	matcher *Matcher
	logger  *logrus.Logger
}

func NewService(catalog CatalogProvider, refs ReferenceProvider, memory *Memory) *Service {
	indexes := NewIndexes(catalog, DefaultIndexTTL)
	return &Service{
		catalog: catalog,
		refs:    refs,
		memory:  memory,
		indexes: indexes,
		matcher: NewMatcher(indexes, memory, refs),
		logger:  config.GetLogger(),
	}
}

func (s *Service) Matcher() *Matcher { return s.matcher }
func (s *Service) Memory() *Memory   { return s.memory }
func (s *Service) Indexes() *Indexes { return s.indexes }

// MatchBatch runs the cascade for every sale line against all active
// laboratories and keeps the best candidate per laboratory. minScore
// applies to this batch only; zero or negative means the default
// threshold.
func (s *Service) MatchBatch(ctx context.Context, lines []models.SaleLine, minScore float64) ([]LineResult, error) {
	s.logger.WithField("lines", len(lines)).Info("matching import batch")

	results := make([]LineResult, 0, len(lines))
	for _, line := range lines {
		result := LineResult{
			SaleLineId:   line.ID,
			Designation:  line.Designation,
			ProductCode:  line.ProductCode,
			AnnualQty:    line.AnnualQty,
			AnnualAmount: line.AnnualAmount,
			BestByLab:    make(map[int]Candidate),
		}

		candidates, err := s.matcher.FindCandidates(ctx, line.Designation, line.ProductCode, 0, minScore)
		if err != nil {
			return nil, err
		}

		if len(candidates) == 0 {
			result.Unmatched = true
		} else {
			result.Candidates = candidates
			for _, c := range candidates {
				best, seen := result.BestByLab[c.LaboratoryId]
				if !seen || c.Score > best.Score {
					result.BestByLab[c.LaboratoryId] = c
				}
			}
		}
		results = append(results, result)
	}

	matched := 0
	for _, r := range results {
		if !r.Unmatched {
			matched++
		}
	}
	s.logger.WithFields(logrus.Fields{
		"matched":   matched,
		"unmatched": len(results) - matched,
	}).Info("matching finished")

	return results, nil
}

// MatchForLab evaluates a single line against one laboratory. Unknown
// laboratories surface as a not-found error scoped to that laboratory.
func (s *Service) MatchForLab(ctx context.Context, line models.SaleLine, labId int) ([]Candidate, error) {
	return s.matcher.FindCandidates(ctx, line.Designation, line.ProductCode, labId, 0)
}

// InvalidateIndexes must be called after any catalog or reference
// change; nothing invalidates implicitly.
func (s *Service) InvalidateIndexes() {
	s.indexes.Invalidate()
}

// CachedMatch is the stored outcome of a registry reconciliation for
// one product code. Validated entries are served from cache forever;
// provisional ones are recomputed on demand.
type CachedMatch struct {
	MatchedCode         string          `json:"matched_code"`
	MatchedDenomination string          `json:"matched_denomination"`
	Score               float64         `json:"score"`
	MatchType           string          `json:"match_type"`
	ReferencePrice      decimal.Decimal `json:"reference_price"`
}

type BatchStats struct {
	Total     int           `json:"total"`
	FromCache int           `json:"from_cache"`
	Computed  int           `json:"computed"`
	Results   []BatchResult `json:"results"`
}

const matchCacheSet = "match:cache:keys"

func matchCacheKey(code string) string {
	return "match:code:" + code
}

// ReconcileAgainstReference matches a batch of sale lines against the
// reference registry, serving cache hits and computing only the new
// codes through the vectorized batch path.
func (s *Service) ReconcileAgainstReference(ctx context.Context, lines []models.SaleLine, threshold float64) (*BatchStats, error) {
	stats := &BatchStats{Total: len(lines)}

	var toCompute []models.SaleLine
	for _, line := range lines {
		code := NormalizeCode(line.ProductCode)
		if code == "" {
			toCompute = append(toCompute, line)
			continue
		}
		var cached CachedMatch
		hit, err := config.GetRedisObject(matchCacheKey(code), &cached)
		if err != nil {
			config.LogError(s.logger, "matching", "ReconcileAgainstReference", "cache read", code, err)
			hit = false
		}
		if hit {
			stats.FromCache++
			stats.Results = append(stats.Results, BatchResult{
				SourceCode:          line.ProductCode,
				SourceDesignation:   line.Designation,
				MatchedCode:         cached.MatchedCode,
				MatchedDenomination: cached.MatchedDenomination,
				ReferencePrice:      cached.ReferencePrice,
				Score:               cached.Score,
				Matched:             cached.MatchedCode != "",
			})
			continue
		}
		toCompute = append(toCompute, line)
	}

	if len(toCompute) > 0 {
		refs, err := s.refs.All(ctx)
		if err != nil {
			return nil, err
		}
		computed := BatchMatch(ctx, toCompute, refs, threshold)
		for _, result := range computed {
			s.storeCachedMatch(result)
		}
		stats.Computed = len(computed)
		stats.Results = append(stats.Results, computed...)
	}

	s.logger.WithFields(logrus.Fields{
		"total":     stats.Total,
		"fromCache": stats.FromCache,
		"computed":  stats.Computed,
	}).Info("reference reconciliation finished")
	return stats, nil
}

func (s *Service) storeCachedMatch(result BatchResult) {
	code := NormalizeCode(result.SourceCode)
	if code == "" || !result.Matched {
		return
	}
	cached := CachedMatch{
		MatchedCode:         result.MatchedCode,
		MatchedDenomination: result.MatchedDenomination,
		Score:               result.Score,
		MatchType:           "fuzzy",
		ReferencePrice:      result.ReferencePrice,
	}
	key := matchCacheKey(code)
	if err := config.SetRedisObject(key, cached, 0); err != nil {
		config.LogError(s.logger, "matching", "storeCachedMatch", "cache write", code, err)
		return
	}
	if err := config.AddRedisSet(matchCacheSet, key); err != nil {
		config.LogError(s.logger, "matching", "storeCachedMatch", "cache index", code, err)
	}
}

// InvalidateCache drops one cached code, or every cached match when
// code is empty. Must be called after a reference-table refresh.
func (s *Service) InvalidateCache(code string) error {
	if code != "" {
		return config.RemoveRedisKey(matchCacheKey(NormalizeCode(code)))
	}
	return config.RemoveRedisSetMembers(matchCacheSet)
}

// cache lifespan for derived indexes mirrors the config value used by
// the redis layer, so both caches age together.
func IndexTTLFromEnv() time.Duration {
	return config.GetCacheLifespan()
}
