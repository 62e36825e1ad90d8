package intent

import (
	"context"
	"strings"

	"github.com/antzucaro/matchr"

	"github.com/your-org/facesort/internal/models"
	"github.com/your-org/facesort/internal/registry"
)

// fuzzyThreshold is the minimum Jaro-Winkler similarity for a fuzzy name match.
const fuzzyThreshold = 0.88

// resolve finds the owner's person referred to by name: an exact
// case-insensitive match first, then the earliest person whose name contains
// the query, then the closest name by Jaro-Winkler.
func (r *Router) resolve(ctx context.Context, ownerID, name string) (*models.Person, error) {
	query := registry.NormalizeName(name)
	if query == "" {
		return nil, registry.ErrNotFound
	}

	if p, err := r.registry.GetByName(ctx, ownerID, name); err != nil || p != nil {
		return p, err
	}

	persons, err := r.registry.List(ctx, ownerID)
	if err != nil {
		return nil, err
	}

	normalized := make([]string, len(persons))
	for i, p := range persons {
		normalized[i] = registry.NormalizeName(p.Name)
		if normalized[i] == query {
			return &persons[i], nil
		}
	}
	for i := range persons {
		if strings.Contains(normalized[i], query) {
			return &persons[i], nil
		}
	}

	best, bestScore := -1, fuzzyThreshold
	for i := range persons {
		if score := matchr.JaroWinkler(query, normalized[i], false); score >= bestScore && (best == -1 || score > bestScore) {
			best, bestScore = i, score
		}
	}
	if best == -1 {
		return nil, registry.ErrNotFound
	}
	return &persons[best], nil
}
