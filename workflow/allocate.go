package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/pharmdata/remisia_backend/allocation"
	"github.com/pharmdata/remisia_backend/appctx"
	"github.com/pharmdata/remisia_backend/config"
	"github.com/pharmdata/remisia_backend/models"
	"github.com/pharmdata/remisia_backend/utils"
)

// BuildAllocationProblem assembles the optimizer input for one import
// from the stored matches: lines, active laboratories, and the best
// matched product per (line, laboratory) pair. Zero-product rows stay
// out, they only mark evaluated-but-unmatched pairs.
func BuildAllocationProblem(ctx context.Context, importId int) (*allocation.Problem, error) {
	db := config.GetDB()
	logger := config.GetLogger()

	lines, err := models.ListSaleLinesByImport(ctx, importId)
	if err != nil {
		config.LogError(logger, "workflow", "BuildAllocationProblem", "list sale lines", importId, err)
		return nil, err
	}

	labs, err := models.ListActiveLaboratories(ctx)
	if err != nil {
		config.LogError(logger, "workflow", "BuildAllocationProblem", "list laboratories", importId, err)
		return nil, err
	}

	problem := &allocation.Problem{
		Lines:   lines,
		Matches: map[allocation.MatchKey]allocation.LineMatch{},
		Labs:    map[int]models.Laboratory{},
	}
	for _, lab := range labs {
		problem.Labs[lab.ID] = lab
	}
	if len(lines) == 0 {
		return problem, nil
	}

	products, err := models.ListActiveProducts(ctx)
	if err != nil {
		config.LogError(logger, "workflow", "BuildAllocationProblem", "list products", importId, err)
		return nil, err
	}
	productById := make(map[int]models.CatalogProduct, len(products))
	for _, product := range products {
		productById[product.ID] = product
	}

	lineIds := make([]int, 0, len(lines))
	for _, line := range lines {
		lineIds = append(lineIds, line.ID)
	}
	var matches []models.SaleMatch
	if err := db.WithContext(ctx).
		Where("sale_line_id IN ? AND product_id > 0", lineIds).
		Find(&matches).Error; err != nil {
		config.LogError(logger, "workflow", "BuildAllocationProblem", "list matches", importId, err)
		return nil, err
	}

	for _, match := range matches {
		product, found := productById[match.ProductId]
		if !found {
			// product retired since reconciliation
			continue
		}
		key := allocation.MatchKey{SaleLineId: match.SaleLineId, LaboratoryId: match.LaboratoryId}
		problem.Matches[key] = allocation.LineMatch{
			ProductId:       match.ProductId,
			UnitPriceHT:     product.UnitPriceHT,
			LineDiscountPct: product.LineDiscountPct,
		}
	}

	fields := logrus.Fields{
		"importId": importId,
		"lines":    len(problem.Lines),
		"pairs":    len(problem.Matches),
	}
	if pharmacyId, ok := appctx.GetInt(ctx, appctx.ContextKeyPharmacyId); ok {
		fields["pharmacyId"] = pharmacyId
	}
	logger.WithFields(fields).Debug("allocation problem assembled")
	return problem, nil
}

// OptimizeImport runs the exact allocation over one import's stored
// matches, under the given per-laboratory objectives.
func OptimizeImport(ctx context.Context, importId int, inputs []*allocation.NewObjective, timeLimit time.Duration) (*allocation.Result, error) {
	objectives := make([]*allocation.Objective, 0, len(inputs))
	for _, input := range inputs {
		if err := input.Validate(); err != nil {
			return nil, err
		}
		objectives = append(objectives, input.ToObjective())
	}

	problem, err := BuildAllocationProblem(ctx, importId)
	if err != nil {
		return nil, err
	}
	for _, obj := range objectives {
		lab, found := problem.Labs[obj.LaboratoryId]
		if !found {
			// distinguish an inactive laboratory from an unknown one
			known, lookupErr := models.GetLaboratory(ctx, obj.LaboratoryId)
			if lookupErr != nil {
				return nil, fmt.Errorf("objective laboratory %d: %w", obj.LaboratoryId, utils.ErrorLaboratoryNotFound)
			}
			return nil, fmt.Errorf("objective laboratory %s: %w", known.Name, utils.ErrorInactiveLaboratory)
		}
		obj.LaboratoryName = lab.Name
	}
	return allocation.Solve(ctx, problem, objectives, timeLimit), nil
}

// SuggestCombo runs the greedy multi-laboratory suggestion over one
// import's stored matches.
func SuggestCombo(ctx context.Context, importId, primaryLabId, maxLabs int) (*allocation.ComboResult, error) {
	problem, err := BuildAllocationProblem(ctx, importId)
	if err != nil {
		return nil, err
	}
	return allocation.FindBestCombo(problem, primaryLabId, maxLabs), nil
}
