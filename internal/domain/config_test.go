package domain_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rezkam/rapo/internal/domain"
)

func validRule() domain.RuleConfig {
	return domain.RuleConfig{
		NormalizationType: domain.NormalizationNone,
		CorrelationConfig: []domain.CorrelationRule{{FieldA: "k", FieldB: "k"}},
	}
}

func TestRuleConfig_Validate(t *testing.T) {
	require.NoError(t, validRule().Validate())

	empty := validRule()
	empty.CorrelationConfig = nil
	require.ErrorIs(t, empty.Validate(), domain.ErrConfigInvalid)

	badNorm := validRule()
	badNorm.NormalizationType = "bogus"
	require.ErrorIs(t, badNorm.Validate(), domain.ErrConfigInvalid)

	badShift := validRule()
	badShift.TimeShiftFrom = 10
	badShift.TimeShiftTo = 5
	require.ErrorIs(t, badShift.Validate(), domain.ErrConfigInvalid)
}

func TestControlConfig_Validate(t *testing.T) {
	cfg := domain.ControlConfig{
		ControlID:    "c1",
		PeriodType:   domain.PeriodDay,
		PeriodNumber: 1,
		Parallelism:  1,
		Rule:         validRule(),
	}
	require.NoError(t, cfg.Validate())

	cfg.PeriodType = "X"
	require.ErrorIs(t, cfg.Validate(), domain.ErrConfigInvalid)
}

func TestCorrelationLimit_Cap(t *testing.T) {
	none := domain.CorrelationLimit{Mode: domain.CorrelationLimitNone}
	_, ok := none.Cap(100, 200)
	assert.False(t, ok)

	fixed := domain.CorrelationLimit{Mode: domain.CorrelationLimitFixed, Fixed: 50}
	cap, ok := fixed.Cap(100, 200)
	require.True(t, ok)
	assert.Equal(t, 50, cap)

	auto := domain.CorrelationLimit{Mode: domain.CorrelationLimitAuto}
	cap, ok = auto.Cap(100, 1000)
	require.True(t, ok)
	assert.Equal(t, 2500, cap)
}

func TestAlgorithmDefaults_Resolve(t *testing.T) {
	boolPtr := func(v bool) *bool { return &v }
	normPtr := func(v domain.NormalizationType) *domain.NormalizationType { return &v }

	// No global defaults, no overrides: engine zero values.
	fuzzy, dm, norm := domain.AlgorithmDefaults{}.Resolve(domain.RuleOverrides{})
	assert.False(t, fuzzy)
	assert.False(t, dm)
	assert.Equal(t, domain.NormalizationNone, norm)

	// Global defaults fill what the control left unset.
	defaults := domain.AlgorithmDefaults{
		FuzzyOptimization:   boolPtr(true),
		DiscrepancyMatching: boolPtr(true),
		NormalizationType:   normPtr(domain.NormalizationMinMax),
	}
	fuzzy, dm, norm = defaults.Resolve(domain.RuleOverrides{})
	assert.True(t, fuzzy)
	assert.True(t, dm)
	assert.Equal(t, domain.NormalizationMinMax, norm)

	// A per-control value always wins over the global default.
	fuzzy, dm, norm = defaults.Resolve(domain.RuleOverrides{
		FuzzyOptimization: boolPtr(false),
		NormalizationType: normPtr(domain.NormalizationZNorm),
	})
	assert.False(t, fuzzy)
	assert.True(t, dm, "unset override still takes the default")
	assert.Equal(t, domain.NormalizationZNorm, norm)

	// An explicit "default" normalization defers to the global setting.
	_, _, norm = defaults.Resolve(domain.RuleOverrides{
		NormalizationType: normPtr(domain.NormalizationDefault),
	})
	assert.Equal(t, domain.NormalizationMinMax, norm)
}

func TestCorrelationType_Best(t *testing.T) {
	assert.Equal(t, domain.CorrelationO, domain.Best(domain.CorrelationO, domain.CorrelationF))
	assert.Equal(t, domain.CorrelationF, domain.Best(domain.CorrelationM, domain.CorrelationF))
	assert.Equal(t, domain.CorrelationA, domain.Best(domain.CorrelationNone, domain.CorrelationA))
}
