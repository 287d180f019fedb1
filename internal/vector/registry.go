package vector

import (
	"context"
	"sync"

	"feedscope-go/pkg/log"

	lru "github.com/hashicorp/golang-lru/v2"
)

// registrySize 限制同时缓存的用户集合句柄数量，超出后按 LRU 淘汰。
// 句柄本身只缓存集合 ID，淘汰后下次访问会重新解析。
const registrySize = 256

// Registry 按用户缓存 Store 句柄，避免每次请求都走一遍集合解析。
type Registry struct {
	backend Backend
	mu      sync.Mutex
	stores  *lru.Cache[uint, *Store]
}

// NewRegistry 创建一个新的 Registry 实例。
func NewRegistry(backend Backend) (*Registry, error) {
	stores, err := lru.NewWithEvict[uint, *Store](registrySize, func(userID uint, _ *Store) {
		log.Debugf("[VectorRegistry] 淘汰用户 %d 的集合句柄", userID)
	})
	if err != nil {
		return nil, err
	}
	return &Registry{backend: backend, stores: stores}, nil
}

// For 返回指定用户的向量存取句柄，集合不存在时创建。
func (r *Registry) For(ctx context.Context, userID uint) (*Store, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if store, ok := r.stores.Get(userID); ok {
		return store, nil
	}

	collectionID, err := r.backend.GetOrCreateCollection(ctx, CollectionName(userID))
	if err != nil {
		return nil, err
	}

	store := &Store{backend: r.backend, collectionID: collectionID, userID: userID}
	r.stores.Add(userID, store)
	return store, nil
}

// Evict 丢弃某个用户的缓存句柄（例如集合被外部重建后）。
func (r *Registry) Evict(userID uint) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stores.Remove(userID)
}
