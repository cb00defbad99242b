package matching

import (
	"context"
	"runtime"
	"sync"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/pharmdata/remisia_backend/models"
)

// BatchResult is one row of a bulk reconciliation: a sale line scored
// against the whole reference registry.
type BatchResult struct {
	SourceCode          string          `json:"source_code"`
	SourceDesignation   string          `json:"source_designation"`
	MatchedCode         string          `json:"matched_code"`
	MatchedDenomination string          `json:"matched_denomination"`
	ReferencePrice      decimal.Decimal `json:"reference_price"`
	Score               float64         `json:"score"`
	Matched             bool            `json:"matched"`
}

var batchTracer = otel.Tracer("github.com/pharmdata/remisia_backend/matching")

// BatchMatch reconciles every sale line against the full reference
// registry in one pass: both sides are normalized once, a dense
// similarity matrix is computed in parallel over independent rows, and
// each row keeps its best column. Rows under the threshold are
// reported unmatched with their best score.
//
// The compute phase is pure: workers write disjoint matrix rows, so
// no locking is needed.
func BatchMatch(ctx context.Context, lines []models.SaleLine, refs []models.ReferenceRecord, threshold float64) []BatchResult {
	if len(lines) == 0 || len(refs) == 0 {
		return nil
	}

	_, span := batchTracer.Start(ctx, "matching.BatchMatch")
	defer span.End()
	span.SetAttributes(
		attribute.Int("lines", len(lines)),
		attribute.Int("refs", len(refs)),
	)

	lineNames := make([]string, len(lines))
	for i, line := range lines {
		lineNames[i] = Normalize(line.Designation)
	}
	refNames := make([]string, len(refs))
	for j, ref := range refs {
		refNames[j] = Normalize(ref.Denomination)
	}

	scores := mat.NewDense(len(lines), len(refs), nil)

	workers := runtime.GOMAXPROCS(0)
	if workers > len(lines) {
		workers = len(lines)
	}
	rows := make(chan int)
	var wg sync.WaitGroup
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func() {
			defer wg.Done()
			for i := range rows {
				row := scores.RawRowView(i)
				for j := range refNames {
					row[j] = tokenSetScore(lineNames[i], refNames[j])
				}
			}
		}()
	}
	for i := range lines {
		rows <- i
	}
	close(rows)
	wg.Wait()

	results := make([]BatchResult, len(lines))
	for i, line := range lines {
		bestIdx := floats.MaxIdx(scores.RawRowView(i))
		bestScore := scores.At(i, bestIdx)

		result := BatchResult{
			SourceCode:        line.ProductCode,
			SourceDesignation: line.Designation,
			Score:             bestScore,
		}
		if bestScore >= threshold {
			result.Matched = true
			result.MatchedCode = refs[bestIdx].ProductCode
			result.MatchedDenomination = refs[bestIdx].Denomination
			result.ReferencePrice = refs[bestIdx].ReferencePrice
		}
		results[i] = result
	}
	return results
}
