// Package store persists consent versions.
package store

import (
	"slices"
	"sort"

	"healthcommons/internal/consent/models"
)

// sortHistory orders consents by grantor-visible history: newest first,
// versions of the same chain descending.
func sortHistory(consents []*models.Consent) {
	sort.SliceStable(consents, func(i, j int) bool {
		if !consents[i].CreatedAt.Equal(consents[j].CreatedAt) {
			return consents[i].CreatedAt.After(consents[j].CreatedAt)
		}
		return consents[i].Version > consents[j].Version
	})
}

func cloneAll(consents []*models.Consent) []*models.Consent {
	out := make([]*models.Consent, 0, len(consents))
	for _, c := range consents {
		out = append(out, c.Clone())
	}
	return slices.Clip(out)
}
