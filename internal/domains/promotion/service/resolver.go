package service

import (
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"

	"promo-engine/internal/domains/promotion/model"
)

// Resolver deterministically picks one winner among eligible promotions.
// The ordering is total: priority descending, combined benefit descending,
// promotion id ascending. No two eligible promotions can tie indefinitely.
type Resolver struct{}

func NewResolver() *Resolver {
	return &Resolver{}
}

// Resolve returns the selected promotion and, when more than one candidate
// was eligible, a ConflictResolution naming the deciding criterion.
func (r *Resolver) Resolve(eligible []*model.EligiblePromotion) (*model.EligiblePromotion, *model.ConflictResolution) {
	if len(eligible) == 0 {
		return nil, nil
	}
	if len(eligible) == 1 {
		return eligible[0], nil
	}

	survivors, exclusivityDropped := r.dropExclusivePairs(eligible)
	sortCandidates(survivors)
	winner := survivors[0]

	rejected := make([]uuid.UUID, 0, len(eligible)-1)
	for _, candidate := range eligible {
		if candidate.Promotion.ID != winner.Promotion.ID {
			rejected = append(rejected, candidate.Promotion.ID)
		}
	}

	conflictType, reason := r.decidingCriterion(survivors, exclusivityDropped, winner)

	return winner, &model.ConflictResolution{
		ConflictType:         conflictType,
		SelectedPromotionID:  winner.Promotion.ID,
		RejectedPromotionIDs: rejected,
		Reason:               reason,
	}
}

// dropExclusivePairs removes the loser of every exclusiveWith pair and
// reports whether exclusivity changed the outcome.
func (r *Resolver) dropExclusivePairs(eligible []*model.EligiblePromotion) ([]*model.EligiblePromotion, bool) {
	eliminated := make(map[uuid.UUID]bool)

	for i := 0; i < len(eligible); i++ {
		for j := i + 1; j < len(eligible); j++ {
			a, b := eligible[i], eligible[j]
			if eliminated[a.Promotion.ID] || eliminated[b.Promotion.ID] {
				continue
			}
			if !a.Promotion.IsExclusiveWith(b.Promotion.ID) && !b.Promotion.IsExclusiveWith(a.Promotion.ID) {
				continue
			}
			if candidateLess(a, b) {
				eliminated[b.Promotion.ID] = true
			} else {
				eliminated[a.Promotion.ID] = true
			}
		}
	}

	if len(eliminated) == 0 {
		return append([]*model.EligiblePromotion(nil), eligible...), false
	}

	survivors := make([]*model.EligiblePromotion, 0, len(eligible))
	for _, candidate := range eligible {
		if !eliminated[candidate.Promotion.ID] {
			survivors = append(survivors, candidate)
		}
	}
	return survivors, true
}

func (r *Resolver) decidingCriterion(survivors []*model.EligiblePromotion, exclusivityDropped bool, winner *model.EligiblePromotion) (model.ConflictType, string) {
	if exclusivityDropped {
		return model.ConflictExclusivity,
			fmt.Sprintf("exclusivity: %q wins over mutually exclusive candidates", winner.Promotion.Name)
	}
	if len(survivors) > 1 && winner.Priority > survivors[1].Priority {
		return model.ConflictPriority,
			fmt.Sprintf("priority: %q has the highest priority (%d)", winner.Promotion.Name, winner.Priority)
	}
	return model.ConflictCustomerBenefit,
		fmt.Sprintf("customer_benefit: %q grants the largest combined benefit (%s)",
			winner.Promotion.Name, winner.CombinedBenefit().String())
}

// candidateLess reports whether a beats b in the total order.
func candidateLess(a, b *model.EligiblePromotion) bool {
	if a.Priority != b.Priority {
		return a.Priority > b.Priority
	}
	benefitA, benefitB := a.CombinedBenefit(), b.CombinedBenefit()
	if !benefitA.Equal(benefitB) {
		return benefitA.GreaterThan(benefitB)
	}
	return strings.Compare(a.Promotion.ID.String(), b.Promotion.ID.String()) < 0
}

func sortCandidates(candidates []*model.EligiblePromotion) {
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidateLess(candidates[i], candidates[j])
	})
}
