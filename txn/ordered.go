// MIT License
//
// Copyright (c) 2022-2026 GoAkt Team
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.

package txn

import "container/list"

type orderedEntry[K comparable, V any] struct {
	key   K
	value V
}

// orderedMap is a map that iterates in insertion order.
type orderedMap[K comparable, V any] struct {
	index map[K]*list.Element
	order *list.List
}

func newOrderedMap[K comparable, V any]() *orderedMap[K, V] {
	return &orderedMap[K, V]{
		index: make(map[K]*list.Element),
		order: list.New(),
	}
}

// PutIfAbsent adds the entry at the back and returns false when the key already exists
func (m *orderedMap[K, V]) PutIfAbsent(key K, value V) bool {
	if _, ok := m.index[key]; ok {
		return false
	}
	m.index[key] = m.order.PushBack(&orderedEntry[K, V]{key: key, value: value})
	return true
}

func (m *orderedMap[K, V]) Get(key K) (V, bool) {
	if element, ok := m.index[key]; ok {
		return element.Value.(*orderedEntry[K, V]).value, true
	}
	var zero V
	return zero, false
}

func (m *orderedMap[K, V]) Contains(key K) bool {
	_, ok := m.index[key]
	return ok
}

func (m *orderedMap[K, V]) Delete(key K) bool {
	element, ok := m.index[key]
	if !ok {
		return false
	}
	m.order.Remove(element)
	delete(m.index, key)
	return true
}

// Front returns the oldest entry
func (m *orderedMap[K, V]) Front() (K, V, bool) {
	element := m.order.Front()
	if element == nil {
		var key K
		var value V
		return key, value, false
	}
	entry := element.Value.(*orderedEntry[K, V])
	return entry.key, entry.value, true
}

// Values returns the values in insertion order
func (m *orderedMap[K, V]) Values() []V {
	values := make([]V, 0, m.order.Len())
	for element := m.order.Front(); element != nil; element = element.Next() {
		values = append(values, element.Value.(*orderedEntry[K, V]).value)
	}
	return values
}

func (m *orderedMap[K, V]) Len() int {
	return m.order.Len()
}
