// Package entity defines the typed views of the shared single-table
// record schema.
//
// Every entity kind is a row in the same physical table, distinguished
// by its discriminator (see the Kind constants). This package owns the
// encoding of each kind into a store.Record and the decoding back into
// a strongly-typed struct, so the open attribute map never leaks past
// the storage boundary.
package entity
