/*
Package api implements the strata gRPC API server and the node health
endpoints.

The API server is how editors and the strata CLI reach the draft overlay:
every content, page and theme operation of the editor and theme services is
exposed as a unary RPC, and the event broker is exposed as a server stream.

# Architecture

	┌──────────────────── CLIENT (CLI / admin UI) ─────────────────┐
	│                                                              │
	│  ┌──────────────────────────────────────────────┐            │
	│  │    gRPC client, JSON codec (api/rpc)          │            │
	│  │    authorization: Bearer <session token>      │            │
	│  └──────────────────┬───────────────────────────┘            │
	└─────────────────────┼────────────────────────────────────────┘
	                      │ TCP (api-addr)     unix socket (data dir)
	                      │                          │
	┌─────────────────────▼──────────────────────────▼─────────────┐
	│  ┌──────────────────────────────────────────────┐            │
	│  │          gRPC API Server (pkg/api)            │            │
	│  │  - session authentication                     │            │
	│  │  - read-only local socket                     │            │
	│  │  - status code mapping                        │            │
	│  │  - metrics instrumentation                    │            │
	│  └──────────────────┬───────────────────────────┘            │
	│                     │                                        │
	│  ┌──────────────────▼───────────────────────────┐            │
	│  │  editor.Service   theme.Service   Manager     │            │
	│  └───────────────────────────────────────────────┘            │
	└──────────────────────────────────────────────────────────────┘

# Listeners

The TCP listener requires a session token on every call. Sessions are issued
by an admin, or over the unix socket, which any local user with access to the
data directory can reach:

	strata token issue alice          # over the socket
	strata --token <t> content drafts # over TCP

The socket only serves reads (List*, Get*, Watch*, RenderContent) and token
management. Writes always carry the identity of an editor, whose drafts they
touch.

# Errors

Domain errors are mapped to status codes: missing records are NotFound,
conflicted drafts Aborted, stale drafts and invalid page transitions
FailedPrecondition, malformed payloads InvalidArgument and a node without a
leader Unavailable. Anything else is Internal.

# Health

HealthServer serves /health, /ready, /live, /components and /metrics on its
own address, so probes keep working while the API is saturated. /ready
fails without a known leader, with an unreadable store, or while the node
has more than a few hundred raft entries left to apply.
*/
package api
