package core

// async_file_store.go – asynchronous facade over the file store. A single
// worker goroutine applies mutations in arrival order, which preserves the
// contract that Contains observes a block as soon as PutAsync returns.

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

type asyncStoreOp struct {
	run  func() (interface{}, error)
	done chan asyncStoreResult
}

type asyncStoreResult struct {
	value interface{}
	err   error
}

// AsyncFileBlockStore serializes operations onto a FileBlockStore through a
// bounded request channel.
type AsyncFileBlockStore struct {
	inner *FileBlockStore
	ops   chan asyncStoreOp
	stop  chan struct{}
	log   *zap.SugaredLogger
}

// NewAsyncFileBlockStore opens the underlying file store and starts the
// worker.
func NewAsyncFileBlockStore(root string, logger *zap.Logger) (*AsyncFileBlockStore, error) {
	inner, err := NewFileBlockStore(root)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &AsyncFileBlockStore{
		inner: inner,
		ops:   make(chan asyncStoreOp, 64),
		stop:  make(chan struct{}),
		log:   logger.Sugar(),
	}
	go s.worker()
	return s, nil
}

func (s *AsyncFileBlockStore) worker() {
	for {
		select {
		case <-s.stop:
			return
		case op := <-s.ops:
			v, err := op.run()
			if err != nil {
				s.log.Warnf("async store op failed: %v", err)
			}
			op.done <- asyncStoreResult{value: v, err: err}
		}
	}
}

// Close stops the worker. Outstanding submissions fail with ErrTimeout once
// their context expires.
func (s *AsyncFileBlockStore) Close() { close(s.stop) }

func (s *AsyncFileBlockStore) submit(ctx context.Context, run func() (interface{}, error)) (interface{}, error) {
	op := asyncStoreOp{run: run, done: make(chan asyncStoreResult, 1)}
	select {
	case s.ops <- op:
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: store submit: %v", ErrTimeout, ctx.Err())
	case <-s.stop:
		return nil, fmt.Errorf("%w: store closed", ErrIO)
	}
	select {
	case res := <-op.done:
		return res.value, res.err
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: store wait: %v", ErrTimeout, ctx.Err())
	}
}

// PutAsync stores b via the worker.
func (s *AsyncFileBlockStore) PutAsync(ctx context.Context, b *DagBlock) error {
	_, err := s.submit(ctx, func() (interface{}, error) { return nil, s.inner.Put(b) })
	return err
}

// GetAsync loads id via the worker.
func (s *AsyncFileBlockStore) GetAsync(ctx context.Context, id Cid) (*DagBlock, error) {
	v, err := s.submit(ctx, func() (interface{}, error) { return s.inner.Get(id) })
	if err != nil {
		return nil, err
	}
	b, _ := v.(*DagBlock)
	return b, nil
}

// DeleteAsync removes id via the worker.
func (s *AsyncFileBlockStore) DeleteAsync(ctx context.Context, id Cid) error {
	_, err := s.submit(ctx, func() (interface{}, error) { return nil, s.inner.Delete(id) })
	return err
}

// ContainsAsync reports presence of id via the worker.
func (s *AsyncFileBlockStore) ContainsAsync(ctx context.Context, id Cid) (bool, error) {
	v, err := s.submit(ctx, func() (interface{}, error) { return s.inner.Contains(id) })
	if err != nil {
		return false, err
	}
	ok, _ := v.(bool)
	return ok, nil
}

// ListBlocksAsync snapshots all blocks via the worker.
func (s *AsyncFileBlockStore) ListBlocksAsync(ctx context.Context) ([]*DagBlock, error) {
	v, err := s.submit(ctx, func() (interface{}, error) { return s.inner.ListBlocks() })
	if err != nil {
		return nil, err
	}
	blocks, _ := v.([]*DagBlock)
	return blocks, nil
}

// PruneExpiredAsync prunes via the worker.
func (s *AsyncFileBlockStore) PruneExpiredAsync(ctx context.Context, now uint64) ([]Cid, error) {
	v, err := s.submit(ctx, func() (interface{}, error) { return s.inner.PruneExpired(now) })
	if err != nil {
		return nil, err
	}
	ids, _ := v.([]Cid)
	return ids, nil
}

// Sync exposes the serialized synchronous view for callers that hold no
// context.
func (s *AsyncFileBlockStore) Sync() *FileBlockStore { return s.inner }

var _ AsyncStorageService = (*AsyncFileBlockStore)(nil)
