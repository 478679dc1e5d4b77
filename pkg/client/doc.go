/*
Package client provides a Go client library for the strata gRPC API.

Client wraps the api/rpc stub with one blocking method
per operation, each bounded by a timeout (DefaultTimeout unless changed with
SetTimeout). It is what the strata CLI uses.

# Connecting

Two listeners exist on a node:

	// TCP API, every call carries the session token
	c, err := client.NewClient("127.0.0.1:8090", token)

	// unix socket, reads and token management only
	c, err := client.NewLocalClient("/var/lib/strata/strata.sock", "")

A first token is obtained over the socket:

	local, _ := client.NewLocalClient(socket, "")
	issued, _ := local.IssueToken("alice", manager.RoleEditor, 8*time.Hour)

# Drafts

Writes apply to the drafts of the session user and stay invisible to the
site until committed:

	c.UpdateContents([]*types.SerializedContent{{UID: uid, Type: "text", Value: &v}})
	c.Commit(uid, "fix typo")

Status codes returned by the server are passed through unchanged; use
status.Code to tell a conflict (Aborted) from a stale draft
(FailedPrecondition).
*/
package client
