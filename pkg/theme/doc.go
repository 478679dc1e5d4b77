/*
Package theme manages site themes on disk.

A theme is a directory under Config.Dir holding template overrides, LESS
sources and generated assets:

	themes/
	  default/
	    templates/            *.tmpl overrides loaded by the renderer
	    less/
	      admin-variables.less
	      grid_constant.less  generated by SaveGrid
	    img/grid.png          generated by SaveGrid

The active theme is stored as the replicated setting "theme.current", so
every node of a cluster serves the same theme.

# LESS variables

ParseLess groups "@name: value;" declarations by the "// #header" comment
that precedes them. Each variable gets a suggested widget (color for
values starting with "#", default for pixel sizes, font otherwise) and is
read-only when its value references another variable or it is listed in
DisabledFields. SaveVariables rewrites only the named variables and keeps
every other line.

# Grid

SaveGrid computes the fluid column and gutter percentages for the
configured column count, writes them as LESS constants and draws a PNG
background showing the columns.

# Reloading

Watcher follows the active theme's directories with fsnotify and calls
back once file changes settle, which the site uses to reload templates.
*/
package theme
