package utils

import (
	"fmt"
	"math"
	"runtime"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.viam.com/utils"
)

// ParallelFactor controls the max level of parallelization. This might be useful
// to set in tests where too much parallelism actually slows tests down in
// aggregate.
var ParallelFactor = runtime.GOMAXPROCS(0)

func init() {
	if ParallelFactor <= 0 {
		ParallelFactor = 1
	}
}

// ConcurrencyMode selects how per-point work of a pass is executed.
type ConcurrencyMode int

const (
	// Sequential runs every work item on the calling goroutine, in index order.
	Sequential ConcurrencyMode = iota
	// Parallel splits work items into groups that run on separate goroutines.
	// Completion order is not deterministic but results are, as long as each
	// item only writes its own output slot.
	Parallel
)

// String returns the config name of the mode.
func (m ConcurrencyMode) String() string {
	switch m {
	case Sequential:
		return "sequential"
	case Parallel:
		return "parallel"
	default:
		return fmt.Sprintf("ConcurrencyMode(%d)", int(m))
	}
}

// ParseConcurrencyMode parses a config value. The empty string means Sequential.
func ParseConcurrencyMode(s string) (ConcurrencyMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "sequential":
		return Sequential, nil
	case "parallel":
		return Parallel, nil
	default:
		return Sequential, errors.Errorf("unknown concurrency mode %q", s)
	}
}

type (
	// BeforeParallelGroupWorkFunc executes before any work starts with the calculated group size.
	BeforeParallelGroupWorkFunc func(groupSize int)
	// MemberWorkFunc runs for each work item (member) of a group.
	MemberWorkFunc func(memberNum, workNum int)
	// GroupWorkDoneFunc runs when a single group's work is done; helpful for merge stages.
	GroupWorkDoneFunc func()
	// GroupWorkFunc runs to determine what work members should do, if any.
	GroupWorkFunc func(groupNum, groupSize, from, to int) (MemberWorkFunc, GroupWorkDoneFunc)
)

// GroupWorkParallel parallelizes the given size of work over multiple workers.
// A panic in any group is recovered and returned as an error once all other
// groups have finished.
func GroupWorkParallel(totalSize int, before BeforeParallelGroupWorkFunc, groupWork GroupWorkFunc) error {
	numGroups := ParallelFactor
	if totalSize < numGroups {
		numGroups = totalSize
	}
	if numGroups <= 0 {
		return nil
	}
	groupSize := int(math.Floor(float64(totalSize) / float64(numGroups)))
	extra := totalSize - groupSize*numGroups

	if before != nil {
		before(numGroups)
	}

	var (
		wait  sync.WaitGroup
		errMu sync.Mutex
		errs  error
	)
	wait.Add(numGroups)
	for groupNum := 0; groupNum < numGroups; groupNum++ {
		utils.PanicCapturingGo(func() {
			defer wait.Done()
			defer func() {
				if thePanic := recover(); thePanic != nil {
					errMu.Lock()
					errs = multierr.Combine(errs, errors.Errorf("panic in parallel group %d: %v", groupNum, thePanic))
					errMu.Unlock()
				}
			}()

			thisGroupSize := groupSize
			thisExtra := 0
			if groupNum == (numGroups - 1) {
				thisExtra = extra
				thisGroupSize += thisExtra
			}
			from := groupSize * groupNum
			to := (groupSize * (groupNum + 1)) + thisExtra
			memberWork, groupWorkDone := groupWork(groupNum, thisGroupSize, from, to)
			if memberWork != nil {
				memberNum := 0
				for workNum := from; workNum < to; workNum++ {
					memberWork(memberNum, workNum)
					memberNum++
				}
			}
			if groupWorkDone != nil {
				groupWorkDone()
			}
		})
	}
	wait.Wait()
	return errs
}

// ParallelFor calls fn for every i in [0, n) using the given mode. fn must only
// write state owned by item i.
func ParallelFor(mode ConcurrencyMode, n int, fn func(i int)) error {
	if n <= 0 {
		return nil
	}
	if mode == Sequential || ParallelFactor == 1 || n == 1 {
		for i := 0; i < n; i++ {
			fn(i)
		}
		return nil
	}
	return GroupWorkParallel(n, nil, func(groupNum, groupSize, from, to int) (MemberWorkFunc, GroupWorkDoneFunc) {
		return func(memberNum, workNum int) {
			fn(workNum)
		}, nil
	})
}
