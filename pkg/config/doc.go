/*
Package config loads the configuration of a strata node.

Values come, by increasing precedence, from defaults, an optional YAML file
named by the "config" key, STRATA_ environment variables (also read from .env
and .env.local), and command line flags. Nested keys map to variables with
dots and dashes replaced by underscores:

	less.gridcolumn       STRATA_LESS_GRIDCOLUMN
	site.rate-limit       STRATA_SITE_RATE_LIMIT
	rewriting.scheme.root STRATA_REWRITING_SCHEME_ROOT

Content schemes and site hosts are maps and can only be set from the file:

	rewriting:
	  scheme:
	    content:
	      Article: $parent/$content->title
	site:
	  hosts:
	    www.example.com: <root page uid>
*/
package config
