// File: router/router.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Router is a per-HTTP-method tree of path segments, matching static
// segments literally, ":name" segments against exactly one path
// component, and a trailing "*name" segment against the rest of the
// path. It is generic over the handler type so this package never
// depends on httpx, and httpx instantiates it with its own HandlerFunc.

package router

import (
	"fmt"
	"strings"

	"github.com/momentics/reactorhttp/api"
)

// MatchOutcome distinguishes "no such path" from "path exists, wrong
// method" so callers can answer 404 vs 405.
type MatchOutcome int

const (
	NotFoundURL MatchOutcome = iota
	NotFoundMethod
	Found
)

// Router routes (method, path) pairs to a handler of type H.
type Router[H any] struct {
	roots map[string]*node[H]
}

// New returns an empty router.
func New[H any]() *Router[H] {
	return &Router[H]{roots: make(map[string]*node[H])}
}

// Handle registers h for method+pattern. pattern segments starting with
// ":" bind a single path component by name; a segment starting with "*"
// must be the last segment and captures everything remaining. Returns
// api.ErrRouteConflict if the exact (method, pattern) is already bound,
// or a parameter/wildcard name conflicts with an existing registration
// sharing the same tree position.
func (r *Router[H]) Handle(method, pattern string, h H) error {
	root, ok := r.roots[method]
	if !ok {
		root = &node[H]{}
		r.roots[method] = root
	}

	segments := splitPath(pattern)
	cur := root
	for i, seg := range segments {
		switch {
		case strings.HasPrefix(seg, ":"):
			name := seg[1:]
			if cur.param == nil {
				cur.param = &node[H]{segment: name, kind: nodeParam}
			} else if cur.param.segment != name {
				return fmt.Errorf("router: %w: %q binds param %q, existing sibling binds %q", api.ErrRouteConflict, pattern, name, cur.param.segment)
			}
			cur = cur.param

		case strings.HasPrefix(seg, "*"):
			if i != len(segments)-1 {
				return fmt.Errorf("router: wildcard segment %q must be last in %q", seg, pattern)
			}
			name := seg[1:]
			if cur.wildcard == nil {
				cur.wildcard = &node[H]{segment: name, kind: nodeWildcard}
			} else if cur.wildcard.segment != name {
				return fmt.Errorf("router: %w: %q binds wildcard %q, existing sibling binds %q", api.ErrRouteConflict, pattern, name, cur.wildcard.segment)
			}
			cur = cur.wildcard

		default:
			child := cur.staticChild(seg)
			if child == nil {
				child = &node[H]{segment: seg, kind: nodeStatic}
				cur.children = append(cur.children, child)
			}
			cur = child
		}
	}

	if cur.hasHandler {
		return fmt.Errorf("router: %w: %s %s already registered", api.ErrRouteConflict, method, pattern)
	}
	cur.handler = h
	cur.hasHandler = true
	return nil
}

// Match looks up method+path. On Found it also returns the captured
// route parameters. On a miss it distinguishes NotFoundMethod (some
// other method matches the same path) from NotFoundURL.
func (r *Router[H]) Match(method, path string) (h H, params map[string]string, outcome MatchOutcome) {
	segments := splitPath(path)

	if root, ok := r.roots[method]; ok {
		if matched, p, ok := matchNode(root, segments, map[string]string{}); ok {
			return matched, p, Found
		}
	}
	for m, root := range r.roots {
		if m == method {
			continue
		}
		if _, _, ok := matchNode(root, segments, nil); ok {
			var zero H
			return zero, nil, NotFoundMethod
		}
	}
	var zero H
	return zero, nil, NotFoundURL
}

func matchNode[H any](n *node[H], segments []string, params map[string]string) (H, map[string]string, bool) {
	if len(segments) == 0 {
		if n.hasHandler {
			return n.handler, params, true
		}
		var zero H
		return zero, nil, false
	}

	seg, rest := segments[0], segments[1:]

	if child := n.staticChild(seg); child != nil {
		if h, p, ok := matchNode(child, rest, params); ok {
			return h, p, true
		}
	}
	if n.param != nil {
		p := params
		if p != nil {
			p = cloneParams(p)
			p[n.param.segment] = seg
		}
		if h, p2, ok := matchNode(n.param, rest, p); ok {
			return h, p2, true
		}
	}
	if n.wildcard != nil && n.wildcard.hasHandler {
		p := params
		if p != nil {
			p = cloneParams(p)
			p[n.wildcard.segment] = strings.Join(segments, "/")
		}
		return n.wildcard.handler, p, true
	}

	var zero H
	return zero, nil, false
}

func splitPath(path string) []string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}
