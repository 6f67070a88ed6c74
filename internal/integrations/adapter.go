// Package integrations defines where problem instances come from. Adapters
// live in subpackages.
package integrations

import (
	"context"

	"evrptw/internal/model"
)

// InstanceSource loads a problem instance from an external reference, such as
// a file path.
type InstanceSource interface {
	Name() string
	Load(ctx context.Context, ref string) (model.InstanceSpec, error)
}
