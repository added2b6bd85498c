// File: router/router_test.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package router

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/momentics/reactorhttp/api"
)

type handler func(string) string

func TestStaticBeatsParamBeatsWildcard(t *testing.T) {
	r := New[handler]()
	require.NoError(t, r.Handle("GET", "/users/me", func(string) string { return "me" }))
	require.NoError(t, r.Handle("GET", "/users/:id", func(string) string { return "id" }))
	require.NoError(t, r.Handle("GET", "/users/*rest", func(string) string { return "rest" }))

	h, params, outcome := r.Match("GET", "/users/me")
	require.Equal(t, Found, outcome)
	require.Equal(t, "me", h(""))
	require.Empty(t, params)

	h, params, outcome = r.Match("GET", "/users/42")
	require.Equal(t, Found, outcome)
	require.Equal(t, "id", h(""))
	require.Equal(t, "42", params["id"])

	h, params, outcome = r.Match("GET", "/users/42/orders/7")
	require.Equal(t, Found, outcome)
	require.Equal(t, "rest", h(""))
	require.Equal(t, "42/orders/7", params["rest"])
}

func TestNotFoundVsMethodNotAllowed(t *testing.T) {
	r := New[handler]()
	require.NoError(t, r.Handle("GET", "/widgets", func(string) string { return "list" }))

	_, _, outcome := r.Match("POST", "/widgets")
	require.Equal(t, NotFoundMethod, outcome)

	_, _, outcome = r.Match("GET", "/gadgets")
	require.Equal(t, NotFoundURL, outcome)
}

func TestDuplicateRegistrationConflicts(t *testing.T) {
	r := New[handler]()
	require.NoError(t, r.Handle("GET", "/a/:x", func(string) string { return "1" }))
	err := r.Handle("GET", "/a/:x", func(string) string { return "2" })
	require.Error(t, err)
	require.True(t, errors.Is(err, api.ErrRouteConflict))
}

func TestConflictingParamNamesAtSamePosition(t *testing.T) {
	r := New[handler]()
	require.NoError(t, r.Handle("GET", "/a/:x", func(string) string { return "1" }))
	err := r.Handle("GET", "/a/:y", func(string) string { return "2" })
	require.Error(t, err)
	require.True(t, errors.Is(err, api.ErrRouteConflict))
}

func TestWildcardMustBeLastSegment(t *testing.T) {
	r := New[handler]()
	err := r.Handle("GET", "/a/*rest/b", func(string) string { return "1" })
	require.Error(t, err)
}

func TestRootPath(t *testing.T) {
	r := New[handler]()
	require.NoError(t, r.Handle("GET", "/", func(string) string { return "root" }))
	h, _, outcome := r.Match("GET", "/")
	require.Equal(t, Found, outcome)
	require.Equal(t, "root", h(""))
}
