// Command ds is a CLI interface to a datastore.
package main

import (
	"context"
	"flag"

	"github.com/bobg/subcmd"
	"github.com/sirupsen/logrus"

	"github.com/bobg/ds"
	_ "github.com/bobg/ds/store/badger"
	_ "github.com/bobg/ds/store/compress"
	_ "github.com/bobg/ds/store/file"
	_ "github.com/bobg/ds/store/gcs"
	_ "github.com/bobg/ds/store/logging"
	_ "github.com/bobg/ds/store/mem"
	_ "github.com/bobg/ds/store/pg"
	_ "github.com/bobg/ds/store/sqlite3"
)

type maincmd struct {
	d   *ds.Datastore
	b   ds.Backend
	log *logrus.Logger
}

func main() {
	var (
		configFile = flag.String("config", "dsconf.yaml", "path to config file")
		logLevel   = flag.String("log-level", "", "log level (overrides config)")
	)
	flag.Parse()

	log := logrus.New()

	if *configFile == "" {
		log.Fatal("Config value not set")
	}

	ctx := context.Background()

	conf, err := loadConfig(*configFile)
	if err != nil {
		log.Fatal(err)
	}
	if conf.Owner == "" {
		log.Fatalf("Config file %s missing `owner` parameter", *configFile)
	}
	if *logLevel != "" {
		conf.LogLevel = *logLevel
	}
	if conf.LogLevel != "" {
		level, err := logrus.ParseLevel(conf.LogLevel)
		if err != nil {
			log.Fatalf("Parsing log level %s: %s", conf.LogLevel, err)
		}
		log.SetLevel(level)
	}

	b, err := conf.backend(ctx)
	if err != nil {
		log.Fatal(err)
	}

	d, err := ds.Open(ctx, b, ds.Config{
		Owner:     ds.Agent(conf.Owner),
		CacheSize: conf.CacheSize,
		Path:      conf.path(),
		Logger:    log,
	})
	if err != nil {
		log.Fatalf("Opening datastore: %s", err)
	}

	err = subcmd.Run(ctx, maincmd{d: d, b: b, log: log}, flag.Args())
	if err != nil {
		log.Fatal(err)
	}
}

func (c maincmd) Subcmds() map[string]subcmd.Subcmd {
	return map[string]subcmd.Subcmd{
		"get":            c.get,
		"head":           c.head,
		"history":        c.history,
		"identities":     c.identities,
		"list-addresses": c.listAddresses,
		"owners":         c.owners,
		"put":            c.put,
		"register":       c.register,
		"seed":           c.seed,
		"sync":           c.sync,
		"update":         c.update,
	}
}
