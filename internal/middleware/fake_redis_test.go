package middleware

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// fakeRedis is a map-backed stand-in for the few redis.Client commands the
// middleware uses.
type fakeRedis struct {
	mu      sync.Mutex
	data    map[string]string
	failGet bool
	evalRes []interface{}
	evalErr error
	evals   int
}

func newFakeRedis() *fakeRedis { return &fakeRedis{data: map[string]string{}} }

func (f *fakeRedis) Get(_ context.Context, key string) *redis.StringCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failGet {
		return redis.NewStringResult("", context.DeadlineExceeded)
	}
	v, ok := f.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (f *fakeRedis) Set(_ context.Context, key string, value interface{}, _ time.Duration) *redis.StatusCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.data[key] = toString(value)
	return redis.NewStatusResult("OK", nil)
}

func (f *fakeRedis) SetEx(ctx context.Context, key string, value interface{}, ttl time.Duration) *redis.StatusCmd {
	return f.Set(ctx, key, value, ttl)
}

func (f *fakeRedis) SetNX(_ context.Context, key string, value interface{}, _ time.Duration) *redis.BoolCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.data[key]; ok {
		return redis.NewBoolResult(false, nil)
	}
	f.data[key] = toString(value)
	return redis.NewBoolResult(true, nil)
}

func (f *fakeRedis) Del(_ context.Context, keys ...string) *redis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, k := range keys {
		if _, ok := f.data[k]; ok {
			delete(f.data, k)
			n++
		}
	}
	return redis.NewIntResult(n, nil)
}

func (f *fakeRedis) Eval(context.Context, string, []string, ...interface{}) *redis.Cmd {
	return f.eval()
}

func (f *fakeRedis) EvalSha(context.Context, string, []string, ...interface{}) *redis.Cmd {
	return f.eval()
}

func (f *fakeRedis) EvalRO(context.Context, string, []string, ...interface{}) *redis.Cmd {
	return f.eval()
}

func (f *fakeRedis) EvalShaRO(context.Context, string, []string, ...interface{}) *redis.Cmd {
	return f.eval()
}

func (f *fakeRedis) ScriptExists(_ context.Context, hashes ...string) *redis.BoolSliceCmd {
	return redis.NewBoolSliceResult(make([]bool, len(hashes)), nil)
}

func (f *fakeRedis) ScriptLoad(context.Context, string) *redis.StringCmd {
	return redis.NewStringResult("sha", nil)
}

func (f *fakeRedis) eval() *redis.Cmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.evals++
	return redis.NewCmdResult(f.evalRes, f.evalErr)
}

func (f *fakeRedis) keys() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.data))
	for k := range f.data {
		out = append(out, k)
	}
	return out
}

func toString(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case []byte:
		return string(t)
	}
	return ""
}
