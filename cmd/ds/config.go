package main

import (
	"context"
	"fmt"
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/bobg/ds"
	"github.com/bobg/ds/store"
)

// config is the contents of a config file.
// JSON config files work too, since JSON is YAML.
//
//	owner: alice
//	cache_size: 4096
//	log_level: debug
//	store:
//	  type: compress
//	  compressor: zstd
//	  nested:
//	    type: file
//	    root: /var/lib/ds
type config struct {
	Owner     string                 `yaml:"owner"`
	CacheSize int                    `yaml:"cache_size"`
	LogLevel  string                 `yaml:"log_level"`
	Store     map[string]interface{} `yaml:"store"`

	filename string
}

func loadConfig(filename string) (*config, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, errors.Wrapf(err, "opening config file %s", filename)
	}
	defer f.Close()

	var conf config
	if err = yaml.NewDecoder(f).Decode(&conf); err != nil {
		return nil, errors.Wrapf(err, "decoding config file %s", filename)
	}
	if conf.Store == nil {
		return nil, fmt.Errorf("config file %s missing `store` parameter", filename)
	}
	conf.filename = filename
	return &conf, nil
}

func (c *config) backend(ctx context.Context) (ds.Backend, error) {
	typ, ok := c.Store["type"].(string)
	if !ok {
		return nil, fmt.Errorf("config file %s missing store `type` parameter", c.filename)
	}
	b, err := store.Create(ctx, typ, c.Store)
	return b, errors.Wrapf(err, "creating %s-type store", typ)
}

// path finds the on-disk location of the configured store, if any,
// looking through decorators to the innermost store.
func (c *config) path() string {
	m := c.Store
	for m != nil {
		for _, key := range []string{"root", "dir", "conn"} {
			if s, ok := m[key].(string); ok {
				return s
			}
		}
		m, _ = m["nested"].(map[string]interface{})
	}
	return ""
}

func backendFromConfig(ctx context.Context, filename string) (ds.Backend, error) {
	conf, err := loadConfig(filename)
	if err != nil {
		return nil, err
	}
	return conf.backend(ctx)
}
