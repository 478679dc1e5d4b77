// Package site serves the public pages of a strata node over HTTP.
//
// Requests are resolved to a page by host and path, and rendered from
// committed contents only: drafts, contents that were never committed and
// offline pages are invisible to visitors. Rendered pages are cached until
// an event that may change them (commit, page change, theme change) arrives
// from the broker.
//
// An editor can preview a page with its drafts applied by adding ?preview=1
// and sending its session token, either as a bearer token or in the
// strata_token cookie. Previews are never cached.
package site
