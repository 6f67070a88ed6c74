package api

import (
	"evrptw/internal/apperr"
)

// maxLocations bounds the distance matrix a single request may allocate.
const maxLocations = 2000

// validateSolveRequest checks request-level limits; the instance itself is
// validated by InstanceSpec.Build.
func validateSolveRequest(req *SolveRequest) error {
	var ve apperr.ValidationErrors
	if req.Instance.Name == "" {
		req.Instance.Name = "unnamed"
	}
	if n := len(req.Instance.Locations); n == 0 {
		ve.Add("instance.locations", "at least a depot is required")
	} else if n > maxLocations {
		ve.Addf("instance.locations", "%d locations exceed the limit of %d", n, maxLocations)
	}
	if req.Seed != nil && *req.Seed < 0 {
		ve.Add("seed", "must be >= 0")
	}
	if ve.HasErrors() {
		return ve.ToAppError()
	}
	return nil
}
