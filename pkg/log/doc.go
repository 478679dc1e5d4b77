/*
Package log provides structured logging for strata using zerolog.

A single global Logger is configured once by Init and shared by every
package. Child loggers carry the fields that make a line traceable back to
the thing it is about:

	log.WithComponent("editor")      // component=editor
	log.WithNodeID(cfg.Node.ID)      // node_id=node-1

The record helpers extend an existing logger, so a line keeps its component:

	log.WithContentUID(s.logger, uid)         // content_uid=...
	log.WithPageUID(s.logger, uid)            // page_uid=...
	log.WithUser(s.logger, session.User)      // user=...

# Configuration

	log.Init(log.Config{
		Level:      log.InfoLevel,
		JSONOutput: true,
		Output:     os.Stderr,
	})

Level accepts debug, info, warn and error; unknown values fall back to info.
With JSONOutput unset the console writer prints RFC 3339 timestamps, which
is what `strata serve` uses on a terminal.

# Adapting other loggers

Libraries that only accept an io.Writer (raft, the standard library http
server) get one from Writer, which logs each written line at info level
under the given component:

	raftCfg.LogOutput = log.Writer("raft")

# Helpers

Info, Debug, Warn, Error, Errorf and Fatal log through the global logger
without a component. Prefer a component logger in package code.
*/
package log
