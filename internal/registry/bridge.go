package registry

import (
	"context"
	"strings"

	"faas/internal/orchestrator"
)

// Bridge is the registry bridge of spec §4.5: on create/update it persists
// the row, writes the handler file, and asks the Maintainer to reconcile
// the pool; on delete it drains the pool first, then removes the handler
// directory and the row.
type Bridge struct {
	store      *Store
	handlers   *HandlerStore
	maintainer *orchestrator.Maintainer
	poolCfg    orchestrator.PoolConfig
	volumeRoot string
}

func NewBridge(store *Store, handlers *HandlerStore, maintainer *orchestrator.Maintainer, poolCfg orchestrator.PoolConfig, volumeRoot string) *Bridge {
	return &Bridge{
		store:      store,
		handlers:   handlers,
		maintainer: maintainer,
		poolCfg:    poolCfg,
		volumeRoot: volumeRoot,
	}
}

func (b *Bridge) CreateFunction(ctx context.Context, f *Function) (*Function, error) {
	f.Route = canonicalizeRoute(f.Route)

	created, err := b.store.Create(ctx, f)
	if err != nil {
		return nil, err
	}

	if err := b.handlers.Write(created.ID, created.Language, created.Code); err != nil {
		return nil, err
	}

	b.maintainer.MaintainAll(ctx, []orchestrator.FunctionSpec{b.spec(created)})
	return created, nil
}

// UpdateFunction overwrites the row and the handler file. It never forces
// a container restart: existing warm containers already bind-mount the
// handler volume read-only, so they pick up the new code on their next
// exec (spec §4.5). Maintain is still invoked in case pool sizing changed.
func (b *Bridge) UpdateFunction(ctx context.Context, f *Function) (*Function, error) {
	f.Route = canonicalizeRoute(f.Route)

	updated, err := b.store.Update(ctx, f)
	if err != nil {
		return nil, err
	}

	if err := b.handlers.Write(updated.ID, updated.Language, updated.Code); err != nil {
		return nil, err
	}

	b.maintainer.MaintainAll(ctx, []orchestrator.FunctionSpec{b.spec(updated)})
	return updated, nil
}

func (b *Bridge) DeleteFunction(ctx context.Context, id int64) error {
	f, err := b.store.GetByID(ctx, id)
	if err != nil {
		return err
	}

	b.maintainer.DropAndDispose(ctx, f.ID)
	if err := b.handlers.Remove(f.ID); err != nil {
		return err
	}
	_, err = b.store.Delete(ctx, f.ID)
	return err
}

func (b *Bridge) GetByID(ctx context.Context, id int64) (*Function, error) {
	return b.store.GetByID(ctx, id)
}

func (b *Bridge) GetByRoute(ctx context.Context, route string) (*Function, error) {
	return b.store.GetByRoute(ctx, canonicalizeRoute(route))
}

func (b *Bridge) List(ctx context.Context) ([]*Function, error) {
	return b.store.List(ctx)
}

// ListFunctionSpecs implements orchestrator.FunctionLister for the warmup
// loop, translating every registered Function into the narrow view the
// orchestrator package needs without that package importing this one.
func (b *Bridge) ListFunctionSpecs(ctx context.Context) ([]orchestrator.FunctionSpec, error) {
	fns, err := b.store.List(ctx)
	if err != nil {
		return nil, err
	}
	specs := make([]orchestrator.FunctionSpec, 0, len(fns))
	for _, f := range fns {
		specs = append(specs, b.spec(f))
	}
	return specs, nil
}

func (b *Bridge) spec(f *Function) orchestrator.FunctionSpec {
	return orchestrator.FunctionSpec{
		ID:              f.ID,
		ImageName:       f.ImageName,
		SharedVolume:    b.volumeRoot,
		PoolSize:        b.poolCfg.PoolSize,
		ContainerMemory: b.poolCfg.ContainerMemory,
		NetworkMode:     b.poolCfg.NetworkMode,
	}
}

func canonicalizeRoute(route string) string {
	if !strings.HasPrefix(route, "/") {
		return "/" + route
	}
	return route
}
