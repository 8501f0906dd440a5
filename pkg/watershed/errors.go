package watershed

import "fmt"

// InvariantError reports a broken geodesic distance during propagation: a
// settled neighbor seen from distance class d must sit at exactly d-1.
// The flood state is unusable once this happens.
type InvariantError struct {
	Voxel    int
	X, Y, Z  int
	Expected int32
	Observed int32
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("geodesic distance invariant violated at voxel %d (%d, %d, %d): expected distance %d, observed %d",
		e.Voxel, e.X, e.Y, e.Z, e.Expected, e.Observed)
}
