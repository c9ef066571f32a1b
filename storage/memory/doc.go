// Package memory provides an in-memory implementation of storage.Store.
//
// All state lives in maps guarded by a single RWMutex, which makes the
// check-and-consume operations trivially atomic. Records are copied on the
// way in and out so callers never share memory with the store.
//
// Suitable for development, tests and single-instance deployments; state is
// lost on restart.
package memory
