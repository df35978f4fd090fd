// Copyright (C) 2021 Toitware ApS.
//
// This library is free software; you can redistribute it and/or
// modify it under the terms of the GNU Lesser General Public
// License as published by the Free Software Foundation; version
// 2.1 only.
//
// This library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the GNU
// Lesser General Public License for more details.
//
// The license can be found in the file `LICENSE` in the top level
// directory of this repository.

package set

// Set is an unordered collection of distinct values.
// The zero value is an empty set; Add allocates when needed.
type Set[T comparable] map[T]struct{}

func New[T comparable](values ...T) Set[T] {
	res := Set[T]{}
	for _, v := range values {
		res[v] = struct{}{}
	}
	return res
}

func (s *Set[T]) Add(values ...T) {
	if *s == nil {
		*s = Set[T]{}
	}

	for _, v := range values {
		(*s)[v] = struct{}{}
	}
}

func (s Set[T]) Remove(values ...T) {
	if s == nil {
		return
	}

	for _, v := range values {
		delete(s, v)
	}
}

func (s Set[T]) Contains(v T) bool {
	if s == nil {
		return false
	}

	_, exists := s[v]
	return exists
}

func (s Set[T]) Values() []T {
	var res []T
	if s == nil {
		return res
	}

	for k := range s {
		res = append(res, k)
	}
	return res
}

// String is a set of strings.
type String = Set[string]

func NewString(strs ...string) String {
	return New(strs...)
}
