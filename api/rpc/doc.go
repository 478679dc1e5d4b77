// Package rpc defines the strata gRPC service: its messages, the service
// descriptor the server registers and a client stub.
//
// Messages are plain structs encoded with a JSON codec registered under the
// "json" content subtype, so they reuse the domain types of pkg/types and
// pkg/editor directly. Clients dial with CallOptions to select it.
package rpc
