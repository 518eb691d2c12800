package loaders

import (
	"fmt"
	"os"

	"github.com/spaghettifunk/lumen/engine/config"
	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
)

// ConfigLoader decodes renderer settings files. The resource data is a
// *config.Settings.
type ConfigLoader struct{}

func (cl *ConfigLoader) Load(path string, params any) (*metadata.Resource, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	s, err := config.Decode(buf)
	if err != nil {
		return nil, fmt.Errorf("func Load - %s: %w", path, err)
	}
	return &metadata.Resource{
		Name:     resourceName(path),
		FullPath: path,
		Type:     metadata.ResourceTypeConfig,
		DataSize: uint64(len(buf)),
		Data:     s,
	}, nil
}
