// Package domain holds the types shared by every stage of the
// reconciliation engine: control and rule configuration, the process
// lifecycle, and the result vocabulary. None of it talks to a database.
package domain

import (
	"fmt"
	"time"
)

// PeriodType selects the unit the window resolver uses to turn
// (period_back, period_number) into a concrete calendar interval.
type PeriodType string

const (
	PeriodDay   PeriodType = "D"
	PeriodWeek  PeriodType = "W"
	PeriodMonth PeriodType = "M"
)

func (p PeriodType) Valid() bool {
	switch p {
	case PeriodDay, PeriodWeek, PeriodMonth:
		return true
	default:
		return false
	}
}

// NormalizationType selects how numeric discrepancy operands are rescaled
// before their tolerance is checked.
type NormalizationType string

const (
	NormalizationNone    NormalizationType = "none"
	NormalizationDefault NormalizationType = "default"
	NormalizationMinMax  NormalizationType = "minmax"
	NormalizationRank    NormalizationType = "rank"
	NormalizationZNorm   NormalizationType = "z_norm"
)

func (n NormalizationType) Valid() bool {
	switch n {
	case NormalizationNone, NormalizationDefault, NormalizationMinMax, NormalizationRank, NormalizationZNorm:
		return true
	default:
		return false
	}
}

// resolved normalizes the "default resolves to none unless overridden
// globally" rule — callers that have no global ALGORITHM override
// pass nil.
func (n NormalizationType) resolved(globalOverride *NormalizationType) NormalizationType {
	if n != NormalizationDefault {
		return n
	}
	if globalOverride != nil {
		return *globalOverride
	}
	return NormalizationNone
}

// AlgorithmDefaults carries the [ALGORITHM] section of the global
// configuration: engine-wide defaults for the toggles a control's
// rule_config may override. Nil fields mean no global default exists.
type AlgorithmDefaults struct {
	FuzzyOptimization   *bool
	DiscrepancyMatching *bool
	NormalizationType   *NormalizationType
}

// RuleOverrides holds a control's own values for the same toggles as read
// from the catalogue, before defaulting: nil means the control left the
// flag unset and the global default (if any) applies.
type RuleOverrides struct {
	FuzzyOptimization   *bool
	DiscrepancyMatching *bool
	NormalizationType   *NormalizationType
}

// Resolve merges global defaults with a control's overrides: the control
// wins where it set a value, the global default fills the rest, and the
// engine's zero values (false, none) back everything still unset.
func (d AlgorithmDefaults) Resolve(o RuleOverrides) (fuzzy, discrepancyMatching bool, norm NormalizationType) {
	norm = NormalizationNone
	switch {
	case o.NormalizationType != nil && *o.NormalizationType != NormalizationDefault:
		norm = *o.NormalizationType
	case d.NormalizationType != nil:
		norm = *d.NormalizationType
	}
	switch {
	case o.FuzzyOptimization != nil:
		fuzzy = *o.FuzzyOptimization
	case d.FuzzyOptimization != nil:
		fuzzy = *d.FuzzyOptimization
	}
	switch {
	case o.DiscrepancyMatching != nil:
		discrepancyMatching = *o.DiscrepancyMatching
	case d.DiscrepancyMatching != nil:
		discrepancyMatching = *d.DiscrepancyMatching
	}
	return fuzzy, discrepancyMatching, norm
}

// CorrelationLimitMode is the tri-state shape of rule_config.correlation_limit
// (`false | true | integer`).
type CorrelationLimitMode int

const (
	CorrelationLimitNone  CorrelationLimitMode = iota // false: no cap
	CorrelationLimitAuto                              // true: ceil(2.5 * max(|A|,|B|))
	CorrelationLimitFixed                             // integer: use it verbatim
)

// CorrelationLimit models rule_config.correlation_limit.
type CorrelationLimit struct {
	Mode  CorrelationLimitMode
	Fixed int // only meaningful when Mode == CorrelationLimitFixed
}

// Cap returns the maximum number of COMB candidate pairs allowed, given the
// observed cardinalities of SOURCE_A and SOURCE_B. ok is false when there is
// no cap (CorrelationLimitNone).
func (l CorrelationLimit) Cap(sizeA, sizeB int) (limit int, ok bool) {
	switch l.Mode {
	case CorrelationLimitNone:
		return 0, false
	case CorrelationLimitFixed:
		return l.Fixed, true
	case CorrelationLimitAuto:
		maxSize := sizeA
		if sizeB > maxSize {
			maxSize = sizeB
		}
		return int((25*maxSize + 9) / 10), true // ceil(2.5 * maxSize)
	default:
		return 0, false
	}
}

// CorrelationRule is one entry of rule_config.correlation_config: a
// (field_a, field_b) pair whose equality contributes to pairing A and B rows.
type CorrelationRule struct {
	FieldA      string
	FieldB      string
	AllowNull   bool // null = null counts as a match for this pair
	FormulaMode bool // field_a/field_b are expressions, not column references
}

// DiscrepancyRule is one entry of rule_config.discrepancy_config: a
// (field_a, field_b) numeric pair measured against a tolerance.
type DiscrepancyRule struct {
	FieldA               string
	FieldB               string
	NumericToleranceFrom float64
	NumericToleranceTo   float64
	PercentageMode       bool
	FormulaMode          bool
	FormulaAlias         string // used as the field name in discrepancy descriptions when set
}

// Name returns the label used in discrepancy descriptions for this rule.
func (d DiscrepancyRule) Name() string {
	if d.FormulaAlias != "" {
		return d.FormulaAlias
	}
	return d.FieldA
}

// RuleConfig is a control's rule_config.
type RuleConfig struct {
	NeedIssuesA         bool
	NeedIssuesB         bool
	NeedReconsA         bool
	NeedReconsB         bool
	AllowDuplicates     bool
	FuzzyOptimization   bool
	DiscrepancyMatching bool
	NormalizationType   NormalizationType

	TimeShiftFrom     int // seconds, inclusive
	TimeShiftTo       int // seconds, inclusive
	TimeToleranceFrom int // seconds, inclusive
	TimeToleranceTo   int // seconds, inclusive

	CorrelationLimit CorrelationLimit

	OutputLimitA *int
	OutputLimitB *int

	CorrelationConfig []CorrelationRule
	DiscrepancyConfig []DiscrepancyRule
}

// Validate applies the CONFIG_INVALID checks: malformed
// rule_config, unknown period_type, unknown normalization_type, empty
// correlation_config.
func (r RuleConfig) Validate() error {
	if len(r.CorrelationConfig) == 0 {
		return fmt.Errorf("%w: correlation_config must not be empty", ErrConfigInvalid)
	}
	if !r.NormalizationType.Valid() {
		return fmt.Errorf("%w: unknown normalization_type %q", ErrConfigInvalid, r.NormalizationType)
	}
	if r.TimeShiftFrom > r.TimeShiftTo {
		return fmt.Errorf("%w: time_shift_from must not exceed time_shift_to", ErrConfigInvalid)
	}
	if r.TimeToleranceFrom > r.TimeToleranceTo {
		return fmt.Errorf("%w: time_tolerance_from must not exceed time_tolerance_to", ErrConfigInvalid)
	}
	for i, c := range r.CorrelationConfig {
		if c.FieldA == "" || c.FieldB == "" {
			return fmt.Errorf("%w: correlation_config[%d] missing field_a/field_b", ErrConfigInvalid, i)
		}
	}
	for i, d := range r.DiscrepancyConfig {
		if d.NumericToleranceFrom > d.NumericToleranceTo {
			return fmt.Errorf("%w: discrepancy_config[%d] numeric_tolerance_from exceeds numeric_tolerance_to", ErrConfigInvalid, i)
		}
	}
	return nil
}

// ResolvedNormalization applies the default-resolves-to-none-unless-globally-overridden
// rule for this rule set.
func (r RuleConfig) ResolvedNormalization(globalOverride *NormalizationType) NormalizationType {
	return r.NormalizationType.resolved(globalOverride)
}

// IterationConfig is one entry of control.iteration_config: an alternative
// window parameterization executed, with its own fresh process_id, after
// the base run.
type IterationConfig struct {
	Label        string
	PeriodBack   int
	PeriodNumber int
	PeriodType   PeriodType
	Status       string // "Y" honored, anything else skipped
}

// Enabled reports whether this iteration should run.
func (i IterationConfig) Enabled() bool { return i.Status == "Y" }

// ControlConfig is a control's full configuration.
type ControlConfig struct {
	ControlID string

	SourceNameA, SourceNameB             string
	SourceDateFieldA, SourceDateFieldB   string
	SourceKeyFieldA, SourceKeyFieldB     string // empty means "use row identity"
	SourceFilterA, SourceFilterB         string
	OutputTableA, OutputTableB           string

	PeriodBack   int
	PeriodNumber int
	PeriodType   PeriodType

	Parallelism   int // 1-N, not recommended > 4
	Timeout       time.Duration
	InstanceLimit int
	OutputLimit   *int

	// PreparationSQL runs once after the run reaches STARTED, before any
	// stage; PrerequisiteSQL is then evaluated and a zero scalar result
	// vetoes the run with PREREQUISITE_FAILED. Both optional.
	PreparationSQL  string
	PrerequisiteSQL string

	Rule RuleConfig

	IterationConfig []IterationConfig
}

// Validate applies the control-level CONFIG_INVALID checks.
func (c ControlConfig) Validate() error {
	if c.ControlID == "" {
		return fmt.Errorf("%w: control_id must not be empty", ErrConfigInvalid)
	}
	if !c.PeriodType.Valid() {
		return fmt.Errorf("%w: unknown period_type %q", ErrConfigInvalid, c.PeriodType)
	}
	if c.PeriodNumber <= 0 {
		return fmt.Errorf("%w: period_number must be positive", ErrConfigInvalid)
	}
	if c.PeriodBack < 0 {
		return fmt.Errorf("%w: period_back must not be negative", ErrConfigInvalid)
	}
	if c.Parallelism <= 0 {
		return fmt.Errorf("%w: parallelism must be positive", ErrConfigInvalid)
	}
	if err := c.Rule.Validate(); err != nil {
		return err
	}
	for i, it := range c.IterationConfig {
		if !it.PeriodType.Valid() {
			return fmt.Errorf("%w: iteration_config[%d] unknown period_type %q", ErrConfigInvalid, i, it.PeriodType)
		}
	}
	return nil
}

// KeyFieldOrAlias returns the column name SOURCE_A/SOURCE_B exposes its
// synthesized unique key under: the configured key field if present,
// otherwise the alias a caller must supply for the row-identity fallback.
func KeyFieldOrAlias(configuredField, fallbackAlias string) string {
	if configuredField != "" {
		return configuredField
	}
	return fallbackAlias
}
