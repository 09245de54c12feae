package simplify

import (
	"math/rand"

	"go.viam.com/pointproc/pointcloud"
	"go.viam.com/pointproc/utils"
)

// Random removes each active point independently with probability
// removedPercentage/100, drawing from a source seeded with seed. It returns the
// number of points removed.
func Random(cloud pointcloud.RemovableCloud, removedPercentage float64, seed int64) (int, error) {
	if err := utils.CheckPercentage("removed_percentage", removedPercentage); err != nil {
		return 0, err
	}
	//nolint:gosec
	rng := rand.New(rand.NewSource(seed))
	removed := 0
	for _, i := range cloud.Active() {
		if rng.Float64()*100 < removedPercentage {
			cloud.Remove(i)
			removed++
		}
	}
	return removed, nil
}
