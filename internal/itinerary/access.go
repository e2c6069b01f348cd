package itinerary

import (
	"context"

	"gorm.io/gorm"
)

// AccessPolicy decides whether userID may read and mutate trip. Implementations
// receive the active transaction so their reads are consistent with the caller's.
type AccessPolicy interface {
	CanManageTrip(ctx context.Context, tx *gorm.DB, userID string, trip Trip) (bool, error)
}

// AccessPolicyFunc adapts a function to AccessPolicy.
type AccessPolicyFunc func(ctx context.Context, tx *gorm.DB, userID string, trip Trip) (bool, error)

func (f AccessPolicyFunc) CanManageTrip(ctx context.Context, tx *gorm.DB, userID string, trip Trip) (bool, error) {
	return f(ctx, tx, userID, trip)
}

// OwnerPolicy grants access to the user that created the trip.
var OwnerPolicy AccessPolicy = AccessPolicyFunc(func(_ context.Context, _ *gorm.DB, userID string, trip Trip) (bool, error) {
	return userID != "" && trip.UserID == userID, nil
})

// AnyOf grants access when at least one policy does. Errors stop evaluation.
func AnyOf(policies ...AccessPolicy) AccessPolicy {
	return AccessPolicyFunc(func(ctx context.Context, tx *gorm.DB, userID string, trip Trip) (bool, error) {
		for _, policy := range policies {
			if policy == nil {
				continue
			}
			allowed, err := policy.CanManageTrip(ctx, tx, userID, trip)
			if err != nil {
				return false, err
			}
			if allowed {
				return true, nil
			}
		}
		return false, nil
	})
}
