/*
 * MIT License
 *
 * Copyright (c) 2026 Nicolas JUHEL
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 *
 */

// Package syncmap provides a generic, type-checked wrapper over
// sync.Map. A registry keyed by id benefits from sync.Map's
// read-mostly performance, but the interface should hand back values
// of a fixed type rather than any — this wrapper does the cast once so
// callers never see an ok=false from a type mismatch that can only
// ever be a programmer error.
package syncmap

import "sync"

// Map is a type-safe, concurrency-safe map from K to V.
type Map[K comparable, V any] struct {
	m sync.Map
}

func (o *Map[K, V]) cast(in any, ok bool) (V, bool) {
	if !ok {
		var zero V
		return zero, false
	}
	v, k := in.(V)
	return v, k
}

func (o *Map[K, V]) Load(key K) (value V, ok bool) {
	raw, found := o.m.Load(key)
	return o.cast(raw, found)
}

func (o *Map[K, V]) Store(key K, value V) {
	o.m.Store(key, value)
}

func (o *Map[K, V]) LoadOrStore(key K, value V) (actual V, loaded bool) {
	raw, found := o.m.LoadOrStore(key, value)
	return o.cast(raw, found)
}

func (o *Map[K, V]) LoadAndDelete(key K) (value V, loaded bool) {
	raw, found := o.m.LoadAndDelete(key)
	return o.cast(raw, found)
}

func (o *Map[K, V]) Delete(key K) {
	o.m.Delete(key)
}

// Range calls f for each key in the map. Values that fail the type
// cast are dropped silently; under this package's contract (a single
// owner per Map instance, one concrete V) that path is unreachable.
func (o *Map[K, V]) Range(f func(key K, value V) bool) {
	o.m.Range(func(k, v any) bool {
		key, ok := k.(K)
		if !ok {
			return true
		}
		val, ok := o.cast(v, true)
		if !ok {
			o.m.Delete(k)
			return true
		}
		return f(key, val)
	})
}

// Len walks the map counting entries. sync.Map has no O(1) length, so
// this is O(n); the registries do not call it.
func (o *Map[K, V]) Len() int {
	n := 0
	o.Range(func(K, V) bool {
		n++
		return true
	})
	return n
}
