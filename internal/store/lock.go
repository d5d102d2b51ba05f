package store

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"
)

// 进程内每个文件路径一把读写锁
var pathLocks sync.Map

func pathLock(path string) *sync.RWMutex {
	key := path
	if abs, err := filepath.Abs(path); err == nil {
		key = filepath.Clean(abs)
	}
	mu, _ := pathLocks.LoadOrStore(key, &sync.RWMutex{})
	return mu.(*sync.RWMutex)
}

const flockRetryDelay = 20 * time.Millisecond

// lockFile 获取跨进程排他锁,返回解锁函数
func lockFile(ctx context.Context, path string) (func(), error) {
	fl := flock.New(path + ".lock")
	ok, err := fl.TryLockContext(ctx, flockRetryDelay)
	if err != nil {
		return nil, fmt.Errorf("failed to lock %s: %w", path, err)
	}
	if !ok {
		return nil, fmt.Errorf("failed to lock %s: %w", path, ctx.Err())
	}
	return func() { _ = fl.Unlock() }, nil
}
