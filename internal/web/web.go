// Package web embeds the browser client served alongside the chat endpoint.
package web

import (
	"embed"
	"io/fs"
)

//go:embed static
var content embed.FS

// Assets returns the client files rooted at the static directory.
func Assets() fs.FS {
	sub, err := fs.Sub(content, "static")
	if err != nil {
		// static is embedded at build time; Sub cannot fail for it.
		panic(err)
	}
	return sub
}
