package matrix

import (
	"context"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/Aman-CERP/roomdex/internal/chat"
)

// DefaultMemberCacheSize is used when no cache size is configured.
const DefaultMemberCacheSize = 1024

type memberEntry struct {
	member chat.Member
	ok     bool
}

type fetchMember func(ctx context.Context, room, user string) (chat.Member, bool, error)

// memberCache memoizes member profile lookups per (room, user). Entries are
// dropped when a member event for that pair arrives.
type memberCache struct {
	cache *lru.Cache[string, memberEntry]
	fetch fetchMember
}

func newMemberCache(size int, fetch fetchMember) (*memberCache, error) {
	if size <= 0 {
		size = DefaultMemberCacheSize
	}
	cache, err := lru.New[string, memberEntry](size)
	if err != nil {
		return nil, err
	}
	return &memberCache{cache: cache, fetch: fetch}, nil
}

func memberKey(room, user string) string {
	return room + "\x00" + user
}

// Member returns the cached profile or fetches it. Failed lookups are not
// cached.
func (c *memberCache) Member(ctx context.Context, room, user string) (chat.Member, bool, error) {
	key := memberKey(room, user)
	if e, ok := c.cache.Get(key); ok {
		return e.member, e.ok, nil
	}

	m, ok, err := c.fetch(ctx, room, user)
	if err != nil {
		return chat.Member{}, false, err
	}
	c.cache.Add(key, memberEntry{member: m, ok: ok})
	return m, ok, nil
}

// Invalidate drops the entry for (room, user).
func (c *memberCache) Invalidate(room, user string) {
	c.cache.Remove(memberKey(room, user))
}

func (c *memberCache) Len() int {
	return c.cache.Len()
}
