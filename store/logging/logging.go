// Package logging implements a backend that delegates everything to a nested backend,
// logging operations as they happen.
package logging

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/bobg/ds"
	"github.com/bobg/ds/store"
)

var _ ds.Backend = &Store{}

// Store is a logging wrapper around a nested backend.
type Store struct {
	s   ds.Backend
	log logrus.FieldLogger
}

// New produces a new Store.
// If log is nil, the logrus standard logger is used.
func New(s ds.Backend, log logrus.FieldLogger) *Store {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Store{s: s, log: log}
}

func (s *Store) Get(ctx context.Context, a ds.Address) ([]byte, error) {
	b, err := s.s.Get(ctx, a)
	entry := s.log.WithField("address", a)
	if err != nil {
		entry.WithError(err).Error("Get")
	} else {
		entry.WithField("size", len(b)).Info("Get")
	}
	return b, err
}

func (s *Store) ListAddresses(ctx context.Context, start ds.Address, f func(ds.Address) error) error {
	s.log.WithField("start", start).Info("ListAddresses")
	return s.s.ListAddresses(ctx, start, func(a ds.Address) error {
		err := f(a)
		entry := s.log.WithField("address", a)
		if err != nil {
			entry.WithError(err).Error("  in ListAddresses")
		} else {
			entry.Debug("  ListAddresses")
		}
		return err
	})
}

func (s *Store) Put(ctx context.Context, b []byte) (ds.Address, bool, error) {
	a, added, err := s.s.Put(ctx, b)
	if err != nil {
		s.log.WithError(err).Error("Put")
	} else {
		s.log.WithFields(logrus.Fields{"address": a, "added": added}).Info("Put")
	}
	return a, added, err
}

func (s *Store) Append(ctx context.Context, owner ds.Agent, id ds.Identity, prev, addr ds.Address) error {
	err := s.s.Append(ctx, owner, id, prev, addr)
	entry := s.log.WithFields(logrus.Fields{
		"owner":    owner,
		"identity": id,
		"prev":     prev,
		"address":  addr,
	})
	if err != nil {
		entry.WithError(err).Error("Append")
	} else {
		entry.Info("Append")
	}
	return err
}

func (s *Store) History(ctx context.Context, owner ds.Agent, id ds.Identity) ([]ds.Address, error) {
	hist, err := s.s.History(ctx, owner, id)
	entry := s.log.WithFields(logrus.Fields{"owner": owner, "identity": id})
	if err != nil {
		entry.WithError(err).Error("History")
	} else {
		entry.WithField("len", len(hist)).Info("History")
	}
	return hist, err
}

func (s *Store) Histories(ctx context.Context, owner ds.Agent, f func(ds.Identity, []ds.Address) error) error {
	s.log.WithField("owner", owner).Info("Histories")
	return s.s.Histories(ctx, owner, func(id ds.Identity, hist []ds.Address) error {
		err := f(id, hist)
		entry := s.log.WithFields(logrus.Fields{"identity": id, "len": len(hist)})
		if err != nil {
			entry.WithError(err).Error("  in Histories")
		} else {
			entry.Debug("  Histories")
		}
		return err
	})
}

func (s *Store) ListOwners(ctx context.Context, f func(ds.Agent) error) error {
	s.log.Info("ListOwners")
	return s.s.ListOwners(ctx, func(owner ds.Agent) error {
		err := f(owner)
		entry := s.log.WithField("owner", owner)
		if err != nil {
			entry.WithError(err).Error("  in ListOwners")
		} else {
			entry.Debug("  ListOwners")
		}
		return err
	})
}

func init() {
	store.Register("logging", func(ctx context.Context, conf map[string]interface{}) (ds.Backend, error) {
		nested, err := store.Nested(ctx, conf)
		if err != nil {
			return nil, err
		}
		return New(nested, nil), nil
	})
}
