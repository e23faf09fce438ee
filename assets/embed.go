// Package assets bundles the static files shipped with the binary.
package assets

import _ "embed"

// OfflinePage is the fallback page shown when connectivity is lost.
//
//go:embed offline.html
var OfflinePage string

// BridgeLibrary is the JavaScript runtime injected into trusted pages so
// they can call the native bridge.
//
//go:embed bridge.js
var BridgeLibrary string

// BlobDownloader serializes blob: URLs into data URIs for the shell, which
// cannot fetch them out of band.
//
//go:embed blob_download.js
var BlobDownloader string
