/**
 * Copyright 2020 TryFix Engineering.
 * All rights reserved.
 * Authors:
 *    Gayan Yapa (gmbyapa@gmail.com)
 */

package backend

import "time"

// Builder opens a backend for the given store name.
type Builder func(name string) (Backend, error)

type Backend interface {
	// Name returns the name of the store
	Name() string
	String() string
	Persistent() bool
	// Get looks for the value of a given key. Will return nil if the value does not exist
	Get(key []byte) ([]byte, error)
	// Set writes the given key:value pair with an optional expiry
	Set(key []byte, value []byte, expiry time.Duration) error
	Delete(key []byte) error
	Flush() error
	Close() error
}
