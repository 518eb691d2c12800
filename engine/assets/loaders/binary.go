package loaders

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
)

type BinaryLoader struct{}

func resourceName(path string) string {
	return strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
}

func (bl *BinaryLoader) Load(path string, params any) (*metadata.Resource, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return &metadata.Resource{
		Name:     resourceName(path),
		FullPath: path,
		Type:     metadata.ResourceTypeBinary,
		DataSize: uint64(len(buf)),
		Data:     buf,
	}, nil
}

type TextLoader struct{}

func (tl *TextLoader) Load(path string, params any) (*metadata.Resource, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return &metadata.Resource{
		Name:     resourceName(path),
		FullPath: path,
		Type:     metadata.ResourceTypeText,
		DataSize: uint64(len(buf)),
		Data:     string(buf),
	}, nil
}
