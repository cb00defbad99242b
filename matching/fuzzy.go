package matching

import (
	"strings"

	fuzzy "github.com/paul-mannino/go-fuzzywuzzy"

	"github.com/pharmdata/remisia_backend/utils"
)

// Similarity scorers, all returning [0,100]. The raw library calls are
// kept behind these wrappers so every caller goes through the same
// lowercasing and clamping.

func ratioScore(a, b string) float64 {
	if a == "" || b == "" {
		return 0
	}
	return utils.ClampScore(float64(fuzzy.Ratio(strings.ToLower(a), strings.ToLower(b))))
}

func partialRatioScore(a, b string) float64 {
	if a == "" || b == "" {
		return 0
	}
	return utils.ClampScore(float64(fuzzy.PartialRatio(strings.ToLower(a), strings.ToLower(b))))
}

func tokenSetScore(a, b string) float64 {
	if a == "" || b == "" {
		return 0
	}
	return utils.ClampScore(float64(fuzzy.TokenSetRatio(strings.ToLower(a), strings.ToLower(b))))
}

// componentWeights for the tier-3 weighted score.
const (
	moleculeWeight = 0.50
	dosageWeight   = 0.30
	formWeight     = 0.20
)

// componentScore computes the weighted similarity between two extracted
// component sets. Weights of absent components are redistributed over
// the present ones, so a designation without a form token is not
// penalized for it.
func componentScore(query, target Components) float64 {
	var scores []float64
	var weights []float64

	if query.Molecule != "" && target.Molecule != "" {
		scores = append(scores, tokenSetScore(query.Molecule, target.Molecule))
		weights = append(weights, moleculeWeight)
	}

	if query.Dosage != "" && target.Dosage != "" {
		qd := strings.ReplaceAll(strings.ToLower(query.Dosage), " ", "")
		td := strings.ReplaceAll(strings.ToLower(target.Dosage), " ", "")
		if qd == td {
			scores = append(scores, 100)
		} else {
			scores = append(scores, ratioScore(qd, td))
		}
		weights = append(weights, dosageWeight)
	}

	if query.Form != "" && target.Form != "" {
		scores = append(scores, partialRatioScore(query.Form, target.Form))
		weights = append(weights, formWeight)
	}

	if len(scores) == 0 {
		return 0
	}

	var totalWeight float64
	for _, w := range weights {
		totalWeight += w
	}
	var score float64
	for i, s := range scores {
		score += s * weights[i] / totalWeight
	}
	return utils.ClampScore(score)
}

// moleculeScore is the tier-3 molecule-only similarity, used both for
// candidate pre-selection and for the generic-group upgrade check.
func moleculeScore(query, target Components) float64 {
	return tokenSetScore(query.Molecule, target.Molecule)
}
