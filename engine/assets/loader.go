package assets

import "github.com/spaghettifunk/rootsig/engine/renderer/metadata"

// Loader turns one file into the binding descriptions it declares.
type Loader interface {
	Load(path string) (*metadata.Resource, error)
}
