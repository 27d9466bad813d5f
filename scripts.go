package redis

import (
	"context"
	"sync"

	"github.com/zeebo/xxh3"

	"github.com/pior/redis/resp"
)

type cachedScript struct {
	source string
	sha    string
}

// scriptCache maps script sources to the hash the server returned when
// loading them. Sources are indexed by their xxh3 hash; a collision replaces
// the older entry.
type scriptCache struct {
	mu      sync.RWMutex
	scripts map[uint64]cachedScript
}

func newScriptCache() *scriptCache {
	return &scriptCache{scripts: make(map[uint64]cachedScript)}
}

func (s *scriptCache) lookup(source string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.scripts[xxh3.HashString(source)]
	if !ok || entry.source != source {
		return "", false
	}
	return entry.sha, true
}

func (s *scriptCache) store(source, sha string) {
	s.mu.Lock()
	s.scripts[xxh3.HashString(source)] = cachedScript{source: source, sha: sha}
	s.mu.Unlock()
}

func (s *scriptCache) len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.scripts)
}

func (s *scriptCache) clear() {
	s.mu.Lock()
	clear(s.scripts)
	s.mu.Unlock()
}

func (s *scriptCache) all() []cachedScript {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]cachedScript, 0, len(s.scripts))
	for _, entry := range s.scripts {
		out = append(out, entry)
	}
	return out
}

// reload loads every cached script on conn. The requests are pipelined.
func (s *scriptCache) reload(ctx context.Context, conn *Connection) error {
	scripts := s.all()
	for _, script := range scripts {
		if err := conn.Write(NewScriptLoadCommand(script.source).Args); err != nil {
			return err
		}
	}
	if err := conn.Flush(ctx); err != nil {
		return err
	}

	var firstErr error
	for _, script := range scripts {
		v, err := conn.Receive(ctx, nil)
		if err != nil {
			return err
		}
		if v.IsError() {
			if firstErr == nil {
				firstErr = newServerError(v)
			}
			continue
		}
		if sha := v.Text(); sha != script.sha {
			s.store(script.source, sha)
		}
	}
	return firstErr
}

// Eval runs a Lua script. With Config.UseScriptCache, the script is loaded
// once and invoked with EVALSHA; it is reloaded transparently when the
// server lost it.
func (c *Client) Eval(ctx context.Context, script string, keys []string, args ...resp.Value) (resp.Value, error) {
	if !c.config.UseScriptCache {
		return Execute(ctx, c, NewEvalCommand(script, keys, args...))
	}

	sha, ok := c.scripts.lookup(script)
	if !ok {
		var err error
		sha, err = Execute(ctx, c, NewScriptLoadCommand(script))
		if err != nil {
			return resp.Value{}, err
		}
		c.scripts.store(script, sha)
	}
	return Execute(ctx, c, NewEvalSHACommand(sha, keys, args...))
}

// ScriptFlush removes all scripts from the server and forgets the cached
// ones.
func (c *Client) ScriptFlush(ctx context.Context) error {
	if _, err := Execute(ctx, c, NewScriptFlushCommand()); err != nil {
		return err
	}
	c.scripts.clear()
	return nil
}
