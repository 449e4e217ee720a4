package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/spf13/afero"
)

const (
	plainExt      = ".json"
	compressedExt = ".json.zst"
)

// record is a value stored in an ordered table.
type record interface {
	Key() string
	Order() int64
}

type entry struct {
	order      int64
	compressed bool
}

type indexKey struct {
	id string
	entry
}

// codec encodes records as JSON, optionally zstd compressed.
type codec struct {
	compress bool
	enc      *zstd.Encoder
	dec      *zstd.Decoder
}

func newCodec(compress bool) (*codec, error) {
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, fmt.Errorf("store: zstd writer: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		enc.Close()
		return nil, fmt.Errorf("store: zstd reader: %w", err)
	}
	return &codec{compress: compress, enc: enc, dec: dec}, nil
}

func (c *codec) encode(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	if c.compress {
		return c.enc.EncodeAll(data, nil), nil
	}
	return data, nil
}

func (c *codec) decode(data []byte, compressed bool, out any) error {
	if compressed {
		raw, err := c.dec.DecodeAll(data, nil)
		if err != nil {
			return fmt.Errorf("zstd: %w", err)
		}
		data = raw
	}
	return json.Unmarshal(data, out)
}

func (c *codec) close() {
	c.enc.Close()
	c.dec.Close()
}

// table keeps one file per record. The file name carries the ordering key so
// only ids and orders are held in memory; record bodies are read on demand.
type table[T record] struct {
	fs    afero.Fs
	dir   string
	codec *codec

	mu    sync.RWMutex
	index map[string]entry
}

func openTable[T record](fs afero.Fs, dir string, c *codec) (*table[T], error) {
	if err := fs.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("store: mkdir %s: %w", dir, err)
	}
	t := &table[T]{fs: fs, dir: dir, codec: c, index: make(map[string]entry)}

	infos, err := afero.ReadDir(fs, dir)
	if err != nil {
		return nil, fmt.Errorf("store: read %s: %w", dir, err)
	}
	for _, fi := range infos {
		if fi.IsDir() {
			continue
		}
		id, e, ok := parseName(fi.Name())
		if !ok {
			continue
		}
		if prev, dup := t.index[id]; dup {
			// A crash between writing the new file and removing the old one
			// leaves two; the newer order wins.
			stale := prev
			if e.order < prev.order {
				stale = e
			} else {
				t.index[id] = e
			}
			_ = fs.Remove(t.path(id, stale))
			continue
		}
		t.index[id] = e
	}
	return t, nil
}

func (t *table[T]) path(id string, e entry) string {
	ext := plainExt
	if e.compressed {
		ext = compressedExt
	}
	return filepath.Join(t.dir, fmt.Sprintf("%019d-%s%s", e.order, url.PathEscape(id), ext))
}

func parseName(name string) (string, entry, bool) {
	var e entry
	switch {
	case strings.HasSuffix(name, compressedExt):
		e.compressed = true
		name = strings.TrimSuffix(name, compressedExt)
	case strings.HasSuffix(name, plainExt):
		name = strings.TrimSuffix(name, plainExt)
	default:
		return "", e, false
	}
	orderPart, idPart, ok := strings.Cut(name, "-")
	if !ok || idPart == "" {
		return "", e, false
	}
	order, err := strconv.ParseInt(orderPart, 10, 64)
	if err != nil {
		return "", e, false
	}
	id, err := url.PathUnescape(idPart)
	if err != nil {
		return "", e, false
	}
	e.order = order
	return id, e, true
}

func orderOf(v record) int64 {
	if o := v.Order(); o > 0 {
		return o
	}
	return 0
}

func (t *table[T]) put(items []T) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, v := range items {
		id := v.Key()
		data, err := t.codec.encode(v)
		if err != nil {
			return fmt.Errorf("store: marshal %s: %w", id, err)
		}
		e := entry{order: orderOf(v), compressed: t.codec.compress}
		final := t.path(id, e)
		tmp := final + ".tmp"
		if err := afero.WriteFile(t.fs, tmp, data, 0o644); err != nil {
			return fmt.Errorf("store: write %s: %w", id, err)
		}
		if err := t.fs.Rename(tmp, final); err != nil {
			_ = t.fs.Remove(tmp)
			return fmt.Errorf("store: rename %s: %w", id, err)
		}
		if prev, ok := t.index[id]; ok && prev != e {
			_ = t.fs.Remove(t.path(id, prev))
		}
		t.index[id] = e
	}
	return nil
}

func (t *table[T]) get(id string) (T, bool, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var zero T
	e, ok := t.index[id]
	if !ok {
		return zero, false, nil
	}
	v, err := t.read(id, e)
	if err != nil {
		if os.IsNotExist(err) {
			return zero, false, nil
		}
		return zero, false, err
	}
	return v, true, nil
}

// read must be called with t.mu held.
func (t *table[T]) read(id string, e entry) (T, error) {
	var v T
	data, err := afero.ReadFile(t.fs, t.path(id, e))
	if err != nil {
		return v, err
	}
	if err := t.codec.decode(data, e.compressed, &v); err != nil {
		return v, fmt.Errorf("store: decode %s: %w", id, err)
	}
	return v, nil
}

func (t *table[T]) delete(ids []string) ([]string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	removed := make([]string, 0, len(ids))
	for _, id := range ids {
		e, ok := t.index[id]
		if !ok {
			continue
		}
		if err := t.fs.Remove(t.path(id, e)); err != nil && !os.IsNotExist(err) {
			return removed, fmt.Errorf("store: remove %s: %w", id, err)
		}
		delete(t.index, id)
		removed = append(removed, id)
	}
	return removed, nil
}

func (t *table[T]) clear() ([]string, error) {
	t.mu.Lock()
	ids := make([]string, 0, len(t.index))
	for id := range t.index {
		ids = append(ids, id)
	}
	t.mu.Unlock()
	return t.delete(ids)
}

func (t *table[T]) has(id string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.index[id]
	return ok
}

func (t *table[T]) ids() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]string, 0, len(t.index))
	for id := range t.index {
		out = append(out, id)
	}
	return out
}

func (t *table[T]) count() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.index)
}

// keys returns a snapshot of the index, newest first.
func (t *table[T]) keys() []indexKey {
	t.mu.RLock()
	out := make([]indexKey, 0, len(t.index))
	for id, e := range t.index {
		out = append(out, indexKey{id: id, entry: e})
	}
	t.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].order != out[j].order {
			return out[i].order > out[j].order
		}
		return out[i].id > out[j].id
	})
	return out
}

// scan walks records newest first, reading one file at a time. fn returns
// false to stop. Records deleted or rewritten after the snapshot was taken
// are skipped.
func (t *table[T]) scan(ctx context.Context, fn func(T) bool) error {
	for _, k := range t.keys() {
		if err := ctx.Err(); err != nil {
			return err
		}

		t.mu.RLock()
		cur, ok := t.index[k.id]
		if !ok || cur != k.entry {
			t.mu.RUnlock()
			continue
		}
		v, err := t.read(k.id, cur)
		t.mu.RUnlock()
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			slog.Warn("Skipping unreadable record", "dir", t.dir, "id", k.id, "error", err)
			continue
		}
		if !fn(v) {
			return nil
		}
	}
	return nil
}
