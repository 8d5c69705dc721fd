// ABOUTME: Conformance tests run against every key-value backend.
// ABOUTME: Redis is exercised through an in-process miniredis server.

package kv

import (
	"context"
	"path/filepath"
	"sort"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func backends(t *testing.T) map[string]func(t *testing.T) Store {
	return map[string]func(t *testing.T) Store{
		BackendMemory: func(t *testing.T) Store {
			return NewMemory()
		},
		BackendBolt: func(t *testing.T) Store {
			s, err := NewBolt(filepath.Join(t.TempDir(), "data", "kv.db"))
			require.NoError(t, err)
			return s
		},
		BackendSQLite: func(t *testing.T) Store {
			s, err := NewSQLite(filepath.Join(t.TempDir(), "kv.sqlite"))
			require.NoError(t, err)
			return s
		},
		BackendRedis: func(t *testing.T) Store {
			mr := miniredis.RunT(t)
			s, err := NewRedis("redis://" + mr.Addr())
			require.NoError(t, err)
			return s
		},
	}
}

func TestStoreConformance(t *testing.T) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := open(t)
			t.Cleanup(func() { _ = s.Close() })

			t.Run("get missing", func(t *testing.T) {
				_, err := s.Get(ctx, "nope")
				assert.ErrorIs(t, err, ErrNotFound)
			})

			t.Run("set then get", func(t *testing.T) {
				require.NoError(t, s.Set(ctx, "conversation:a", []byte(`{"id":"a"}`)))
				got, err := s.Get(ctx, "conversation:a")
				require.NoError(t, err)
				assert.Equal(t, `{"id":"a"}`, string(got))
			})

			t.Run("set overwrites", func(t *testing.T) {
				require.NoError(t, s.Set(ctx, "conversation:b", []byte("one")))
				require.NoError(t, s.Set(ctx, "conversation:b", []byte("two")))
				got, err := s.Get(ctx, "conversation:b")
				require.NoError(t, err)
				assert.Equal(t, "two", string(got))
			})

			t.Run("keys by pattern", func(t *testing.T) {
				require.NoError(t, s.Set(ctx, "other:x", []byte("x")))
				keys, err := s.Keys(ctx, "conversation:*")
				require.NoError(t, err)
				sort.Strings(keys)
				assert.Equal(t, []string{"conversation:a", "conversation:b"}, keys)
			})

			t.Run("keys no match", func(t *testing.T) {
				keys, err := s.Keys(ctx, "missing:*")
				require.NoError(t, err)
				assert.Empty(t, keys)
			})

			t.Run("wildcards match any byte", func(t *testing.T) {
				for _, k := range []string{"path:a/b", "path:c", "path:d/e/f"} {
					require.NoError(t, s.Set(ctx, k, []byte("v")))
				}

				keys, err := s.Keys(ctx, "path:*")
				require.NoError(t, err)
				sort.Strings(keys)
				assert.Equal(t, []string{"path:a/b", "path:c", "path:d/e/f"}, keys)

				keys, err = s.Keys(ctx, "path:?")
				require.NoError(t, err)
				assert.Equal(t, []string{"path:c"}, keys)

				keys, err = s.Keys(ctx, "path:[ab]/*")
				require.NoError(t, err)
				assert.Equal(t, []string{"path:a/b"}, keys)
			})

			t.Run("ping", func(t *testing.T) {
				assert.NoError(t, s.Ping(ctx))
			})
		})
	}
}

func TestMemoryCopiesValues(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()

	v := []byte("hello")
	require.NoError(t, s.Set(ctx, "k", v))
	v[0] = 'j'

	got, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "hello", string(got))

	got[0] = 'y'
	again, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "hello", string(again))
}

func TestBoltPersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	p := filepath.Join(t.TempDir(), "kv.db")

	s, err := NewBolt(p)
	require.NoError(t, err)
	require.NoError(t, s.Set(ctx, "conversation:keep", []byte("v")))
	require.NoError(t, s.Close())

	s, err = NewBolt(p)
	require.NoError(t, err)
	defer s.Close()

	got, err := s.Get(ctx, "conversation:keep")
	require.NoError(t, err)
	assert.Equal(t, "v", string(got))
}

func TestOpen(t *testing.T) {
	t.Run("default is memory", func(t *testing.T) {
		s, err := Open(Config{})
		require.NoError(t, err)
		assert.IsType(t, &Memory{}, s)
	})

	t.Run("sqlite", func(t *testing.T) {
		s, err := Open(Config{Backend: BackendSQLite, Path: filepath.Join(t.TempDir(), "x.db")})
		require.NoError(t, err)
		defer s.Close()
		assert.IsType(t, &SQLite{}, s)
	})

	t.Run("unknown backend", func(t *testing.T) {
		_, err := Open(Config{Backend: "etcd"})
		assert.ErrorContains(t, err, "unknown store backend")
	})

	t.Run("bolt needs path", func(t *testing.T) {
		_, err := Open(Config{Backend: BackendBolt})
		assert.Error(t, err)
	})

	t.Run("redis bad url", func(t *testing.T) {
		_, err := Open(Config{Backend: BackendRedis, URL: "http://nope"})
		assert.Error(t, err)
	})
}

func TestLiteralPrefix(t *testing.T) {
	assert.Equal(t, "conversation:", literalPrefix("conversation:*"))
	assert.Equal(t, "abc", literalPrefix("abc"))
	assert.Equal(t, "", literalPrefix("*"))
	assert.Equal(t, "a", literalPrefix("a[bc]"))
}

func TestCompileGlob(t *testing.T) {
	tests := []struct {
		pattern string
		key     string
		want    bool
	}{
		{"conversation:*", "conversation:abc", true},
		{"conversation:*", "conversation:a/b", true},
		{"conversation:*", "other:abc", false},
		{"a?c", "a/c", true},
		{"a?c", "ac", false},
		{"[abc]x", "bx", true},
		{"[^abc]x", "bx", false},
		{"[a-c]x", "cx", true},
		{`a\*b`, "a*b", true},
		{`a\*b`, "axb", false},
		{"a.b", "axb", false},
		{"a+b", "a+b", true},
		{"*", "line\nbreak", true},
	}
	for _, tt := range tests {
		t.Run(tt.pattern+"/"+tt.key, func(t *testing.T) {
			re, err := compileGlob(tt.pattern)
			require.NoError(t, err)
			assert.Equal(t, tt.want, re.MatchString(tt.key))
		})
	}

	_, err := compileGlob("a[bc")
	assert.ErrorContains(t, err, "unterminated")
}
