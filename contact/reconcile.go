package contact

import "nodetrace/models"

// IDSet is a set of contact identifiers.
type IDSet map[string]struct{}

// NewIDSet builds a set from ids, skipping empty strings.
func NewIDSet(ids []string) IDSet {
	set := make(IDSet, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		set[id] = struct{}{}
	}
	return set
}

// Has reports whether id is in the set.
func (s IDSet) Has(id string) bool {
	_, ok := s[id]
	return ok
}

// Reconcile returns the contacts whose id is in exposed, in input order,
// with HealthStatus set to SICK. Inputs are not modified.
func Reconcile(local []models.Contact, exposed IDSet) []models.Contact {
	matched := make([]models.Contact, 0)
	for _, c := range local {
		if !exposed.Has(c.ID) {
			continue
		}
		c.HealthStatus = models.HealthStatusSick
		matched = append(matched, c)
	}
	return matched
}
