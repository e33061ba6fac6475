package docs

import (
	"net/url"
	"path"
	"regexp"
	"strings"

	"golang.org/x/net/html"
)

// markdownLink matches [text](target "title"); group 1 is "!" for images.
var markdownLink = regexp.MustCompile(`(!?)\[[^\]]*\]\(\s*<?([^)\s>]+)>?(?:\s+"[^"]*")?\s*\)`)

// Key is the visited-set key of a page: the hash route with its query
// removed for hash-routed pages, else the URL path.
func Key(u *url.URL) string {
	if route, ok := hashRoute(u); ok {
		return "#" + route
	}
	p := u.EscapedPath()
	if p == "" {
		p = "/"
	}
	return p
}

// hashRoute returns "/2025-01/" for https://host/#/2025-01/?id=x. A
// trailing README or .md is dropped so every spelling of a page agrees.
func hashRoute(u *url.URL) (string, bool) {
	if !strings.HasPrefix(u.Fragment, "/") {
		return "", false
	}
	route, _, _ := strings.Cut(u.Fragment, "?")
	route = strings.TrimSuffix(route, ".md")
	if path.Base(route) == "README" {
		route = strings.TrimSuffix(route, "README")
	}
	return route, true
}

// sourceURL is where the text of a page lives: hash routes map to the
// markdown file behind them, README.md for directories.
func sourceURL(base *url.URL, u *url.URL) (string, bool) {
	route, ok := hashRoute(u)
	if !ok {
		s := *u
		s.Fragment = ""
		return s.String(), false
	}
	file := strings.TrimPrefix(route, "/")
	switch {
	case file == "" || strings.HasSuffix(file, "/"):
		file += "README.md"
	case !strings.HasSuffix(file, ".md"):
		file += ".md"
	}
	s := *base
	s.Path = strings.TrimRight(base.Path, "/") + "/" + file
	s.RawQuery, s.Fragment = "", ""
	return s.String(), true
}

// FileSlug names the raw text file of a page. Directory routes end in
// README, and "/" becomes "_" so the route can be recovered from the name.
func FileSlug(u *url.URL) string {
	var p string
	if route, ok := hashRoute(u); ok {
		p = route
	} else {
		p = u.Path
		p = strings.TrimSuffix(p, path.Ext(p))
	}
	if p == "" || strings.HasSuffix(p, "/") {
		p += "README"
	}
	p = strings.TrimPrefix(strings.TrimSuffix(p, ".md"), "/")
	return strings.ReplaceAll(p, "/", "_")
}

// markdownLinks resolves link targets in a markdown page served at route.
// Relative targets resolve against the route's directory, as docsify does.
func markdownLinks(base *url.URL, route, text string) []string {
	var out []string
	for _, m := range markdownLink.FindAllStringSubmatch(text, -1) {
		if m[1] == "!" {
			continue
		}
		if link, ok := resolveRouteLink(base, route, m[2]); ok {
			out = append(out, link)
		}
	}
	return out
}

func resolveRouteLink(base *url.URL, route, target string) (string, bool) {
	switch {
	case strings.HasPrefix(target, "#/"):
		return routeURL(base, target[1:]), true
	case strings.HasPrefix(target, "#"), strings.HasPrefix(target, "mailto:"):
		return "", false
	}
	t, err := url.Parse(target)
	if err != nil {
		return "", false
	}
	if t.IsAbs() {
		if !sameOrigin(base, t) {
			return "", false
		}
		return t.String(), true
	}
	if t.Path == "" {
		return "", false
	}
	var p string
	if strings.HasPrefix(t.Path, "/") {
		p = path.Clean(t.Path)
	} else {
		dir := route
		if !strings.HasSuffix(dir, "/") {
			dir = path.Dir(dir)
		}
		p = path.Join(dir, t.Path)
	}
	if ext := path.Ext(p); ext != "" && ext != ".md" {
		// assets are not pages
		return "", false
	}
	p = strings.TrimSuffix(p, ".md")
	if path.Base(p) == "README" {
		p = strings.TrimSuffix(p, "README")
	}
	if strings.HasSuffix(t.Path, "/") && !strings.HasSuffix(p, "/") {
		p += "/"
	}
	return routeURL(base, p), true
}

func routeURL(base *url.URL, route string) string {
	if !strings.HasPrefix(route, "/") {
		route = "/" + route
	}
	s := *base
	s.Path = strings.TrimRight(base.Path, "/") + "/"
	s.RawQuery = ""
	s.Fragment = route
	return s.String()
}

// htmlLinks resolves every <a href> under the given nodes against page.
func htmlLinks(base, page *url.URL, nodes ...*html.Node) []string {
	var out []string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "a" {
			for _, a := range n.Attr {
				if a.Key != "href" {
					continue
				}
				ref, err := url.Parse(strings.TrimSpace(a.Val))
				if err != nil || ref.Scheme == "mailto" {
					continue
				}
				abs := page.ResolveReference(ref)
				if !sameOrigin(base, abs) {
					continue
				}
				if _, ok := hashRoute(abs); !ok && ref.Path == "" {
					// in-page anchor
					continue
				}
				out = append(out, abs.String())
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	for _, n := range nodes {
		if n != nil {
			walk(n)
		}
	}
	return out
}

func sameOrigin(a, b *url.URL) bool {
	return strings.EqualFold(a.Scheme, b.Scheme) && strings.EqualFold(a.Host, b.Host)
}

// findNode returns the first element matching a "#id", ".class" or tag
// selector.
func findNode(n *html.Node, selector string) *html.Node {
	if n == nil || selector == "" {
		return nil
	}
	if n.Type == html.ElementNode && matches(n, selector) {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findNode(c, selector); found != nil {
			return found
		}
	}
	return nil
}

func matches(n *html.Node, selector string) bool {
	switch {
	case strings.HasPrefix(selector, "#"):
		return attr(n, "id") == selector[1:]
	case strings.HasPrefix(selector, "."):
		for _, c := range strings.Fields(attr(n, "class")) {
			if c == selector[1:] {
				return true
			}
		}
		return false
	default:
		return n.Data == selector
	}
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}
