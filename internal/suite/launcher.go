package suite

import (
	"context"

	"github.com/torosent/echobench/internal/target"
)

// Process is a running target that can be stopped.
type Process interface {
	Stop(ctx context.Context) error
}

// Launcher starts a target and returns once it is ready for load.
type Launcher interface {
	Launch(ctx context.Context, spec target.Spec) (Process, error)
}

// ManagerLauncher launches targets as local processes.
type ManagerLauncher struct {
	Manager *target.Manager
}

func (l ManagerLauncher) Launch(ctx context.Context, spec target.Spec) (Process, error) {
	h, err := l.Manager.Start(ctx, spec)
	if err != nil {
		return nil, err
	}
	return h, nil
}
