package ranking

import "cgarena/internal/domain"

// NewFromAlgorithm builds a Ranker for the configured algorithm name,
// used by cmd/cgarena when applying the [ranking] TOML table.
func NewFromAlgorithm(alg Algorithm, elo EloConfig, openSkill OpenSkillConfig, trueSkill TrueSkillConfig) (Ranker, error) {
	switch alg {
	case AlgorithmElo:
		return NewElo(elo), nil
	case AlgorithmOpenSkill:
		return NewOpenSkill(openSkill), nil
	case AlgorithmTrueSkill:
		return NewTrueSkill(trueSkill), nil
	default:
		return nil, domain.ValidationFailedf("unknown ranking algorithm %q", string(alg))
	}
}
