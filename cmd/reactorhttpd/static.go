// File: cmd/reactorhttpd/static.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// staticHandler serves files under root through the router's wildcard
// capture, rejecting any path that escapes root after cleaning.

package main

import (
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/momentics/reactorhttp/httpx"
)

func staticHandler(root string) httpx.HandlerFunc {
	cleanRoot := filepath.Clean(root)
	return func(req *httpx.HttpRequest, resp *httpx.HttpResponse) {
		rel := strings.TrimPrefix(req.Param("filepath"), "/")
		full := filepath.Join(cleanRoot, filepath.Clean("/"+rel))
		if full != cleanRoot && !strings.HasPrefix(full, cleanRoot+string(filepath.Separator)) {
			resp.SetStatus(403, "Forbidden")
			resp.SetContentType("text/plain; charset=utf-8")
			resp.SetBody([]byte("403 forbidden\n"))
			return
		}

		data, err := os.ReadFile(full)
		if err != nil {
			resp.SetStatus(404, "Not Found")
			resp.SetContentType("text/plain; charset=utf-8")
			resp.SetBody([]byte("404 not found\n"))
			return
		}

		ct := mime.TypeByExtension(filepath.Ext(full))
		if ct == "" {
			ct = "application/octet-stream"
		}
		resp.SetContentType(ct)
		resp.SetBody(data)
	}
}
