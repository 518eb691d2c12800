package assets

import "github.com/spaghettifunk/lumen/engine/renderer/metadata"

// Loader reads one file into a Resource. Loaders are called from job
// system workers and must not touch renderer state.
type Loader interface {
	Load(path string, params any) (*metadata.Resource, error)
}
