package appointment

import (
	"context"

	log "github.com/sirupsen/logrus"
	"github.com/timebok/timebok/pkg/interval"
)

// CheckAdmit admits candidate for the practitioner when no other appointment overlaps it.
// excludeId is skipped so an appointment never conflicts with itself while being moved.
// On rejection the returned *ConflictError lists every colliding appointment.
func CheckAdmit(ctx context.Context, repo Repository, practitionerId int, candidate interval.Interval, excludeId int64) error {
	overlapping, err := repo.ListOverlapping(ctx, practitionerId, candidate, excludeId)
	if err != nil {
		return err
	}
	if len(overlapping) == 0 {
		return nil
	}

	ids := make([]int64, 0, len(overlapping))
	for _, a := range overlapping {
		ids = append(ids, a.Id)
	}
	log.Debugf("candidate %s for practitioner %d conflicts with %v", candidate, practitionerId, ids)
	return &ConflictError{ConflictingIds: ids}
}
