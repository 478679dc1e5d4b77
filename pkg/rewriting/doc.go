/*
Package rewriting maps pages to URLs and URLs back to pages.

Generator builds a page URL from a scheme. Schemes are picked in this order:
the _root_ scheme for root pages, the _content_ scheme registered for the
type of the page's main content, then the _default_ scheme. A scheme is a path
pattern with these parameters:

	$parent        URL of the parent page
	$uid           page UID
	$title         urlized page title
	$date          creation date, yymmdd
	$datetime      creation date and time, yymmddHHMM
	$time          creation time, HHMMSS
	$content->x    urlized field x of the main content

With PreserveOnline, pages already online keep their URL. With
PreserveUnicity, a URL already taken in the same tree gets a -1, -2...
suffix.

Router resolves a request to a page: the host selects the tree, then the path
is matched exactly with trailing-slash tolerance.
*/
package rewriting
