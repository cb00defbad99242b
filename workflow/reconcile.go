package workflow

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/pharmdata/remisia_backend/appctx"
	"github.com/pharmdata/remisia_backend/config"
	"github.com/pharmdata/remisia_backend/matching"
	"github.com/pharmdata/remisia_backend/models"
	"github.com/pharmdata/remisia_backend/utils"
)

// ReconcileSummary reports what one import reconciliation did.
type ReconcileSummary struct {
	ImportId      int `json:"import_id"`
	Lines         int `json:"lines"`
	Matched       int `json:"matched"`
	Unmatched     int `json:"unmatched"`
	MatchesSaved  int `json:"matches_saved"`
	AutoValidated int `json:"auto_validated"`
}

// ReconcileImport matches every sale line of an import against the
// active catalogs, replaces the stored per-laboratory matches in one
// transaction, and records exact-code hits in the equivalence memory
// as validated. Laboratories a line was evaluated against but not
// matched to keep a row with a zero product id, so an absent row
// always means the pair was never evaluated.
func ReconcileImport(ctx context.Context, service *matching.Service, importId int, minScore float64) (*ReconcileSummary, error) {
	db := config.GetDB()
	logger := config.GetLogger()

	lines, err := models.ListSaleLinesByImport(ctx, importId)
	if err != nil {
		config.LogError(logger, "workflow", "ReconcileImport", "list sale lines", importId, err)
		return nil, err
	}

	summary := &ReconcileSummary{ImportId: importId, Lines: len(lines)}
	if len(lines) == 0 {
		return summary, nil
	}

	labs, err := models.ListActiveLaboratories(ctx)
	if err != nil {
		config.LogError(logger, "workflow", "ReconcileImport", "list laboratories", importId, err)
		return nil, err
	}

	results, err := service.MatchBatch(ctx, lines, minScore)
	if err != nil {
		config.LogError(logger, "workflow", "ReconcileImport", "match batch", importId, err)
		return nil, err
	}

	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, result := range results {
			saved, err := saveLineMatches(tx, result, labs)
			if err != nil {
				return err
			}
			summary.MatchesSaved += saved
			if result.Unmatched {
				summary.Unmatched++
			} else {
				summary.Matched++
			}
		}
		return nil
	})
	if err != nil {
		config.LogError(logger, "workflow", "ReconcileImport", "save matches", importId, err)
		return nil, err
	}

	validated, err := recordExactMatches(ctx, service.Memory(), results)
	if err != nil {
		config.LogError(logger, "workflow", "ReconcileImport", "record equivalences", importId, err)
		return nil, err
	}
	summary.AutoValidated = validated

	fields := logrus.Fields{
		"importId":  importId,
		"matched":   summary.Matched,
		"unmatched": summary.Unmatched,
		"saved":     summary.MatchesSaved,
	}
	if correlationId, ok := appctx.GetString(ctx, appctx.ContextKeyCorrelationId); ok {
		fields["correlationId"] = correlationId
	}
	logger.WithFields(fields).Info("import reconciled")
	return summary, nil
}

// saveLineMatches replaces the stored matches of one line with the new
// evaluation: the best candidate per laboratory, and a zero-product
// row for every active laboratory without one.
func saveLineMatches(tx *gorm.DB, result matching.LineResult, labs []models.Laboratory) (int, error) {
	if err := tx.Where("sale_line_id = ?", result.SaleLineId).
		Delete(&models.SaleMatch{}).Error; err != nil {
		return 0, err
	}

	saved := 0
	for _, lab := range labs {
		match := models.SaleMatch{
			SaleLineId:   result.SaleLineId,
			LaboratoryId: lab.ID,
			Score:        decimal.Zero,
		}
		if best, found := result.BestByLab[lab.ID]; found {
			match.ProductId = best.ProductId
			match.Score = decimal.NewFromFloat(best.Score)
			match.MatchType = best.Type.String()
			match.MatchedOn = best.MatchedOn
		}
		if err := tx.Create(&match).Error; err != nil {
			return saved, err
		}
		saved++
	}
	return saved, nil
}

// recordExactMatches feeds exact-code hits into the equivalence
// memory. An exact code needs no human review, so the whole group is
// validated on the spot.
func recordExactMatches(ctx context.Context, memory *matching.Memory, results []matching.LineResult) (int, error) {
	validated := 0
	for _, result := range results {
		for _, candidate := range result.Candidates {
			if candidate.Type != matching.MatchExactCode {
				continue
			}
			lineCode := matching.NormalizeCode(result.ProductCode)
			catalogCode := matching.NormalizeCode(candidate.ProductCode)
			if lineCode == "" || catalogCode == "" {
				continue
			}

			union, err := memory.Union(ctx, lineCode, catalogCode, matching.UnionMeta{
				MatchType:      candidate.Type.String(),
				Score:          candidate.Score,
				DesignationA:   result.Designation,
				DesignationB:   candidate.CommercialName,
				SourceA:        "import",
				SourceB:        "catalog",
				GenericGroupId: candidate.GenericGroupId,
			})
			if err != nil {
				return validated, err
			}
			count, err := memory.ValidateGroup(ctx, union.GroupId)
			if err != nil {
				return validated, err
			}
			validated += count
		}
	}
	return validated, nil
}

// ValidateEquivalence marks one product code as human-confirmed in the
// equivalence memory.
func ValidateEquivalence(ctx context.Context, memory *matching.Memory, productCode string) error {
	code := matching.NormalizeCode(productCode)
	ok, err := memory.Validate(ctx, code)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("equivalence %s: %w", code, utils.ErrorRecordNotFound)
	}
	return nil
}

// RefreshCatalogs reloads the matching indexes and drops provisional
// cache entries after any catalog or reference change.
func RefreshCatalogs(service *matching.Service) error {
	service.InvalidateIndexes()
	return service.InvalidateCache("")
}
