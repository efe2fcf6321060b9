package engine

import (
	"sort"

	"github.com/rezkam/rapo/internal/domain"
)

// SplitResults partitions a side's classified rows into STAGE (Success) and
// ERROR (Loss, Duplicate, Discrepancy) sets and applies output_limit:
// ERROR is truncated to the first N rows ordered by (date, key).
func SplitResults(rows []domain.ResultRow, outputLimit *int) (stage, errs []domain.ResultRow) {
	for _, r := range rows {
		if r.ResultType == domain.ResultSuccess {
			stage = append(stage, r)
		} else {
			errs = append(errs, r)
		}
	}

	sort.Slice(errs, func(i, j int) bool {
		if !errs[i].Date.Equal(errs[j].Date) {
			return errs[i].Date.Before(errs[j].Date)
		}
		return errs[i].SourceKey < errs[j].SourceKey
	})
	if outputLimit != nil && *outputLimit >= 0 && len(errs) > *outputLimit {
		errs = errs[:*outputLimit]
	}

	return stage, errs
}
