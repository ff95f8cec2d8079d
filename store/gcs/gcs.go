// Package gcs implements a backend on Google Cloud Storage.
package gcs

import (
	"context"
	"encoding/hex"
	stderrs "errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"cloud.google.com/go/storage"
	"github.com/pkg/errors"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/bobg/ds"
	"github.com/bobg/ds/store"
)

var _ ds.Backend = &Store{}

// Store is a Google Cloud Storage-based backend.
//
// Each object lives in a bucket object named "o:" plus its hex address.
// Each history entry lives in its own bucket object named
// "h:<hex owner>:<hex identity>:<sequence number>",
// created with a does-not-exist precondition,
// so two writers racing to extend the same history cannot both succeed.
type Store struct {
	bucket *storage.BucketHandle
}

// New produces a new Store.
func New(bucket *storage.BucketHandle) *Store {
	return &Store{bucket: bucket}
}

// Get gets the bytes at address `a`.
func (s *Store) Get(ctx context.Context, a ds.Address) ([]byte, error) {
	name := objectName(a)
	b, err := s.read(ctx, name)
	if stderrs.Is(err, storage.ErrObjectNotExist) {
		return nil, ds.ErrNotFound
	}
	return b, err
}

func (s *Store) read(ctx context.Context, name string) ([]byte, error) {
	r, err := s.bucket.Object(name).NewReader(ctx)
	if err != nil {
		return nil, errors.Wrapf(err, "reading info of object %s", name)
	}
	defer r.Close()

	b := make([]byte, r.Attrs.Size)
	_, err = io.ReadFull(r, b)
	return b, errors.Wrapf(err, "reading contents of object %s", name)
}

// create writes a new bucket object.
// It reports false, with no error, if the object already exists.
func (s *Store) create(ctx context.Context, name string, b []byte) (bool, error) {
	w := s.bucket.Object(name).If(storage.Conditions{DoesNotExist: true}).NewWriter(ctx)
	if _, err := w.Write(b); err != nil {
		w.Close()
		if isPreconditionFailed(err) {
			return false, nil
		}
		return false, errors.Wrapf(err, "writing object %s", name)
	}
	err := w.Close()
	if isPreconditionFailed(err) {
		return false, nil
	}
	return err == nil, errors.Wrapf(err, "closing object %s", name)
}

func isPreconditionFailed(err error) bool {
	var e *googleapi.Error
	return stderrs.As(err, &e) && e.Code == http.StatusPreconditionFailed
}

// Put adds bytes to the store if they weren't already present.
func (s *Store) Put(ctx context.Context, b []byte) (ds.Address, bool, error) {
	a := ds.AddressOf(b)
	added, err := s.create(ctx, objectName(a), b)
	return a, added, err
}

// ListAddresses produces all addresses in the store, in lexicographic order.
func (s *Store) ListAddresses(ctx context.Context, start ds.Address, f func(ds.Address) error) error {
	// Google Cloud Storage iterators have no API for starting in the middle of a bucket.
	// But they can filter by object-name prefix.
	// So we take (the hex encoding of) `start` and repeatedly compute prefixes for the objects we want.
	// If `start` is e67a, for example, the sequence of generated prefixes is:
	//   e67b e67c e67d e67e e67f
	//   e68 e69 e6a e6b e6c e6d e6e e6f
	//   e7 e8 e9 ea eb ec ed ee ef
	//   f
	return eachHexPrefix(start.String(), false, func(prefix string) error {
		return s.listAddresses(ctx, prefix, f)
	})
}

func (s *Store) listAddresses(ctx context.Context, prefix string, f func(ds.Address) error) error {
	iter := s.bucket.Objects(ctx, &storage.Query{Prefix: "o:" + prefix})
	for {
		obj, err := iter.Next()
		if stderrs.Is(err, iterator.Done) {
			return nil
		}
		if err != nil {
			return err
		}
		a, err := ds.AddressFromHex(strings.TrimPrefix(obj.Name, "o:"))
		if err != nil {
			return errors.Wrapf(err, "decoding object name %s", obj.Name)
		}
		if err = f(a); err != nil {
			return err
		}
	}
}

// Append implements ds.Recorder.
func (s *Store) Append(ctx context.Context, owner ds.Agent, id ds.Identity, prev, addr ds.Address) error {
	hist, err := s.History(ctx, owner, id)
	if err != nil && !errors.Is(err, ds.ErrNotFound) {
		return err
	}
	if err = ds.CheckAppend(hist, prev); err != nil {
		return err
	}

	name := historyObjName(owner, id, len(hist))
	created, err := s.create(ctx, name, addr[:])
	if err != nil {
		return err
	}
	if !created {
		return ds.ErrConflict
	}
	return nil
}

// History implements ds.Recorder.
func (s *Store) History(ctx context.Context, owner ds.Agent, id ds.Identity) ([]ds.Address, error) {
	var hist []ds.Address
	err := s.eachHistoryObj(ctx, historyPrefix(owner)+hex.EncodeToString([]byte(id))+":", func(_ ds.Identity, seq int, a ds.Address) error {
		if seq != len(hist) {
			return fmt.Errorf("history of %s has a gap at %d", id, len(hist))
		}
		hist = append(hist, a)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(hist) == 0 {
		return nil, ds.ErrNotFound
	}
	return hist, nil
}

// Histories implements ds.Recorder.
func (s *Store) Histories(ctx context.Context, owner ds.Agent, f func(ds.Identity, []ds.Address) error) error {
	m := make(map[ds.Identity][]ds.Address)
	err := s.eachHistoryObj(ctx, historyPrefix(owner), func(id ds.Identity, seq int, a ds.Address) error {
		if seq != len(m[id]) {
			return fmt.Errorf("history of %s has a gap at %d", id, len(m[id]))
		}
		m[id] = append(m[id], a)
		return nil
	})
	if err != nil {
		return err
	}

	// Bucket order is hex-name order, which is not identity order
	// when one identity is a prefix of another.
	ids := make([]ds.Identity, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	for _, id := range ids {
		if err := f(id, m[id]); err != nil {
			return err
		}
	}
	return nil
}

// ListOwners implements ds.Recorder.
func (s *Store) ListOwners(ctx context.Context, f func(ds.Agent) error) error {
	var (
		owners []ds.Agent
		iter   = s.bucket.Objects(ctx, &storage.Query{Prefix: "h:", Delimiter: ":"})
	)
	for {
		attrs, err := iter.Next()
		if stderrs.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return errors.Wrap(err, "iterating over history objects")
		}
		if attrs.Prefix == "" {
			continue
		}
		o, err := hex.DecodeString(strings.TrimSuffix(strings.TrimPrefix(attrs.Prefix, "h:"), ":"))
		if err != nil {
			return errors.Wrapf(err, "decoding owner prefix %s", attrs.Prefix)
		}
		owners = append(owners, ds.Agent(o))
	}

	sort.Slice(owners, func(i, j int) bool { return owners[i] < owners[j] })
	for _, owner := range owners {
		if err := f(owner); err != nil {
			return err
		}
	}
	return nil
}

// eachHistoryObj calls f on every history entry whose object name begins with prefix,
// in bucket order.
func (s *Store) eachHistoryObj(ctx context.Context, prefix string, f func(ds.Identity, int, ds.Address) error) error {
	iter := s.bucket.Objects(ctx, &storage.Query{Prefix: prefix})
	for {
		attrs, err := iter.Next()
		if stderrs.Is(err, iterator.Done) {
			return nil
		}
		if err != nil {
			return errors.Wrap(err, "iterating over history objects")
		}
		id, seq, err := parseHistoryObjName(attrs.Name)
		if err != nil {
			return errors.Wrapf(err, "decoding object name %s", attrs.Name)
		}
		b, err := s.read(ctx, attrs.Name)
		if err != nil {
			return err
		}
		if len(b) != len(ds.Address{}) {
			return fmt.Errorf("history object %s has wrong size %d", attrs.Name, len(b))
		}
		if err = f(id, seq, ds.AddressFromBytes(b)); err != nil {
			return err
		}
	}
}

func eachHexPrefix(prefix string, incl bool, f func(string) error) error {
	prefix = strings.ToLower(prefix)
	for len(prefix) > 0 {
		end := hexval(prefix[len(prefix)-1:][0])
		if !incl {
			end++
		}
		prefix = prefix[:len(prefix)-1]
		for c := end; c < 16; c++ {
			err := f(prefix + string(hexdigit(c)))
			if err != nil {
				return err
			}
		}
	}
	return nil
}

func hexval(b byte) int {
	switch {
	case '0' <= b && b <= '9':
		return int(b - '0')
	case 'a' <= b && b <= 'f':
		return int(10 + b - 'a')
	case 'A' <= b && b <= 'F':
		return int(10 + b - 'A')
	}
	return 0
}

func hexdigit(n int) byte {
	if n < 10 {
		return byte(n + '0')
	}
	return byte(n - 10 + 'a')
}

func objectName(a ds.Address) string {
	return "o:" + a.String()
}

func historyPrefix(owner ds.Agent) string {
	return "h:" + hex.EncodeToString([]byte(owner)) + ":"
}

func historyObjName(owner ds.Agent, id ds.Identity, seq int) string {
	return fmt.Sprintf("%s%s:%020d", historyPrefix(owner), hex.EncodeToString([]byte(id)), seq)
}

var historyNameRegex = regexp.MustCompile(`^h:[0-9a-f]*:([0-9a-f]*):(\d{20})$`)

func parseHistoryObjName(name string) (ds.Identity, int, error) {
	m := historyNameRegex.FindStringSubmatch(name)
	if len(m) < 3 {
		return "", 0, errors.New("malformed name")
	}
	id, err := hex.DecodeString(m[1])
	if err != nil {
		return "", 0, errors.Wrap(err, "hex-decoding identity")
	}
	seq, err := strconv.Atoi(m[2])
	if err != nil {
		return "", 0, errors.Wrap(err, "parsing sequence number")
	}
	return ds.Identity(id), seq, nil
}

func init() {
	store.Register("gcs", func(ctx context.Context, conf map[string]interface{}) (ds.Backend, error) {
		var options []option.ClientOption
		creds, ok := conf["creds"].(string)
		if !ok {
			return nil, errors.New(`missing "creds" parameter`)
		}
		bucketName, ok := conf["bucket"].(string)
		if !ok {
			return nil, errors.New(`missing "bucket" parameter`)
		}
		options = append(options, option.WithCredentialsFile(creds))
		c, err := storage.NewClient(ctx, options...)
		if err != nil {
			return nil, errors.Wrap(err, "creating cloud storage client")
		}
		return New(c.Bucket(bucketName)), nil
	})
}
