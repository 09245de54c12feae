package smooth

import (
	"math"
	"sort"

	"go.viam.com/pointproc/neighbors"
	"go.viam.com/pointproc/pointcloud"
	"go.viam.com/pointproc/utils"
)

// RemoveOutliers scores every active point by the mean distance to its k
// nearest neighbors and removes the thresholdPercent percent with the largest
// scores, rounded to the nearest count. On equal scores higher indices are
// removed first. It returns the number of points removed.
func RemoveOutliers(
	cloud pointcloud.RemovableCloud,
	k int,
	thresholdPercent float64,
	mode utils.ConcurrencyMode,
) (int, error) {
	if err := utils.CheckPositiveInt("k", k); err != nil {
		return 0, err
	}
	if err := utils.CheckPercentage("threshold_percent", thresholdPercent); err != nil {
		return 0, err
	}
	idx := neighbors.New(cloud)
	active := idx.Active()
	toRemove := int(math.Round(thresholdPercent / 100 * float64(len(active))))
	if toRemove == 0 {
		return 0, nil
	}

	scores, err := idx.MeanDistances(k, mode)
	if err != nil {
		return 0, err
	}
	order := make([]int, len(active))
	for j := range order {
		order[j] = j
	}
	sort.Slice(order, func(a, b int) bool {
		sa, sb := scores[order[a]], scores[order[b]]
		if sa != sb {
			return sa > sb
		}
		return order[a] > order[b]
	})
	for _, j := range order[:toRemove] {
		cloud.Remove(active[j])
	}
	return toRemove, nil
}
