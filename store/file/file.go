// Package file implements a backend as a file hierarchy.
//
// Objects live beneath ROOT/objects,
// in a file named for the hex address
// inside two levels of directories named for its first two and four hex digits.
// Objects are written to a temporary file that is fsynced and then renamed into place,
// so a completed Put survives a crash.
//
// Histories live in ROOT/branches/OWNER/IDENTITY,
// one hex address per line, oldest first,
// with OWNER and IDENTITY multibase-encoded.
// Each append is fsynced and guarded by a file lock.
package file

import (
	"bufio"
	"bytes"
	"context"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/bobg/flock"
	"github.com/multiformats/go-multibase"
	"github.com/pkg/errors"

	"github.com/bobg/ds"
	"github.com/bobg/ds/store"
)

var _ ds.Backend = &Store{}

// Store is a file-based implementation of a backend.
type Store struct {
	root    string
	flocker flock.Locker
}

// New produces a new Store storing data beneath `root`.
func New(root string) *Store {
	return &Store{root: root}
}

// Root returns the directory beneath which s stores data.
func (s *Store) Root() string {
	return s.root
}

func (s *Store) objroot() string {
	return filepath.Join(s.root, "objects")
}

func (s *Store) objpath(a ds.Address) string {
	h := a.String()
	return filepath.Join(s.objroot(), h[:2], h[:4], h)
}

// Get gets the bytes at address `a`.
func (s *Store) Get(_ context.Context, a ds.Address) ([]byte, error) {
	path := s.objpath(a)
	b, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, ds.ErrNotFound
	}
	return b, errors.Wrapf(err, "reading %s", path)
}

// Put adds bytes to the store if they weren't already present.
func (s *Store) Put(_ context.Context, b []byte) (ds.Address, bool, error) {
	var (
		a    = ds.AddressOf(b)
		path = s.objpath(a)
		dir  = filepath.Dir(path)
	)

	if _, err := os.Stat(path); err == nil {
		return a, false, nil
	}

	err := os.MkdirAll(dir, 0755)
	if err != nil {
		return a, false, errors.Wrapf(err, "ensuring path %s exists", dir)
	}

	err = safeWrite(path, b, 0644)
	if err != nil {
		return ds.Zero, false, errors.Wrapf(err, "writing %s", path)
	}

	return a, true, nil
}

// ListAddresses produces all addresses in the store, in lexicographic order.
func (s *Store) ListAddresses(ctx context.Context, start ds.Address, f func(ds.Address) error) error {
	topLevel, err := os.ReadDir(s.objroot())
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return errors.Wrapf(err, "reading dir %s", s.objroot())
	}

	startHex := start.String()
	topIndex := sort.Search(len(topLevel), func(n int) bool {
		return topLevel[n].Name() >= startHex[:2]
	})
	for i := topIndex; i < len(topLevel); i++ {
		topInfo := topLevel[i]
		if !topInfo.IsDir() {
			continue
		}
		topName := topInfo.Name()
		if len(topName) != 2 {
			continue
		}
		if _, err = strconv.ParseInt(topName, 16, 64); err != nil {
			continue
		}

		midLevel, err := os.ReadDir(filepath.Join(s.objroot(), topName))
		if err != nil {
			return errors.Wrapf(err, "reading dir %s/%s", s.objroot(), topName)
		}
		midIndex := sort.Search(len(midLevel), func(n int) bool {
			return midLevel[n].Name() >= startHex[:4]
		})
		for j := midIndex; j < len(midLevel); j++ {
			midInfo := midLevel[j]
			if !midInfo.IsDir() {
				continue
			}
			midName := midInfo.Name()
			if len(midName) != 4 {
				continue
			}
			if _, err = strconv.ParseInt(midName, 16, 64); err != nil {
				continue
			}

			objInfos, err := os.ReadDir(filepath.Join(s.objroot(), topName, midName))
			if err != nil {
				return errors.Wrapf(err, "reading dir %s/%s/%s", s.objroot(), topName, midName)
			}

			index := sort.Search(len(objInfos), func(n int) bool {
				return objInfos[n].Name() > startHex
			})
			for k := index; k < len(objInfos); k++ {
				objInfo := objInfos[k]
				if objInfo.IsDir() {
					continue
				}

				a, err := ds.AddressFromHex(objInfo.Name())
				if err != nil {
					continue
				}

				err = f(a)
				if err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func encodeName(s string) string {
	encoded, _ := multibase.Encode(multibase.Base32, []byte(s))
	return encoded
}

func decodeName(name string) (string, error) {
	enc, b, err := multibase.Decode(name)
	if err != nil {
		return "", err
	}
	if enc != multibase.Base32 {
		return "", errors.New("wrong encoding")
	}
	return string(b), nil
}

func (s *Store) branchroot() string {
	return filepath.Join(s.root, "branches")
}

func (s *Store) ownerdir(owner ds.Agent) string {
	return filepath.Join(s.branchroot(), encodeName(string(owner)))
}

func (s *Store) historypath(owner ds.Agent, id ds.Identity) string {
	return filepath.Join(s.ownerdir(owner), encodeName(string(id)))
}

func (s *Store) lockpath(owner ds.Agent, id ds.Identity) string {
	return filepath.Join(s.ownerdir(owner), ".locks", encodeName(string(id)))
}

// readHistory parses a history file.
// It also returns the length of the well-formed prefix of the file,
// which is shorter than the file only after an interrupted append.
func readHistory(path string) ([]ds.Address, int64, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, 0, ds.ErrNotFound
	}
	if err != nil {
		return nil, 0, errors.Wrapf(err, "reading %s", path)
	}

	var (
		result []ds.Address
		good   int64
		sc     = bufio.NewScanner(bytes.NewReader(data))
	)
	for sc.Scan() {
		line := sc.Text()
		if int(good)+len(line) >= len(data) {
			// Final line with no newline: an interrupted append.
			break
		}
		a, err := ds.AddressFromHex(line)
		if err != nil {
			return nil, 0, errors.Wrapf(err, "parsing line %d of %s", len(result)+1, path)
		}
		result = append(result, a)
		good += int64(len(line)) + 1
	}
	return result, good, errors.Wrapf(sc.Err(), "scanning %s", path)
}

// Append implements ds.Recorder.
func (s *Store) Append(_ context.Context, owner ds.Agent, id ds.Identity, prev, addr ds.Address) error {
	var (
		path     = s.historypath(owner, id)
		lockpath = s.lockpath(owner, id)
	)

	// A non-zero prev can only succeed against an existing history.
	// Checking early keeps a failed first append from creating the owner directory.
	if prev != ds.Zero {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			return ds.ErrConflict
		}
	}

	err := os.MkdirAll(filepath.Dir(lockpath), 0755)
	if err != nil {
		return errors.Wrapf(err, "ensuring path %s exists", filepath.Dir(lockpath))
	}
	lf, err := os.OpenFile(lockpath, os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return errors.Wrapf(err, "creating lock file %s", lockpath)
	}
	lf.Close()

	err = s.flocker.Lock(lockpath)
	if err != nil {
		return errors.Wrapf(err, "locking %s", lockpath)
	}
	defer s.flocker.Unlock(lockpath)

	history, good, err := readHistory(path)
	if errors.Is(err, ds.ErrNotFound) {
		// ok
	} else if err != nil {
		return err
	}
	if err = ds.CheckAppend(history, prev); err != nil {
		return err
	}

	if info, err := os.Stat(path); err == nil && info.Size() > good {
		err = os.Truncate(path, good)
		if err != nil {
			return errors.Wrapf(err, "truncating partial entry in %s", path)
		}
	}

	return safeAppend(path, []byte(addr.String()+"\n"))
}

// History implements ds.Recorder.
func (s *Store) History(_ context.Context, owner ds.Agent, id ds.Identity) ([]ds.Address, error) {
	h, _, err := readHistory(s.historypath(owner, id))
	if err == nil && len(h) == 0 {
		// Only a torn first entry.
		return nil, ds.ErrNotFound
	}
	return h, err
}

// Histories implements ds.Recorder.
func (s *Store) Histories(_ context.Context, owner ds.Agent, f func(ds.Identity, []ds.Address) error) error {
	dir := s.ownerdir(owner)
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return errors.Wrapf(err, "reading dir %s", dir)
	}

	type pair struct {
		id   ds.Identity
		name string
	}
	var pairs []pair
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		id, err := decodeName(e.Name())
		if err != nil {
			continue
		}
		pairs = append(pairs, pair{id: ds.Identity(id), name: e.Name()})
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].id < pairs[j].id })

	for _, p := range pairs {
		h, _, err := readHistory(filepath.Join(dir, p.name))
		if err != nil {
			return errors.Wrapf(err, "reading history of %s", p.id)
		}
		if len(h) == 0 {
			// Only a torn first entry.
			continue
		}
		if err = f(p.id, h); err != nil {
			return err
		}
	}
	return nil
}

// ListOwners implements ds.Recorder.
func (s *Store) ListOwners(ctx context.Context, f func(ds.Agent) error) error {
	entries, err := os.ReadDir(s.branchroot())
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return errors.Wrapf(err, "reading dir %s", s.branchroot())
	}

	var owners []ds.Agent
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		owner, err := decodeName(e.Name())
		if err != nil {
			continue
		}
		ok, err := s.hasHistory(ctx, ds.Agent(owner))
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		owners = append(owners, ds.Agent(owner))
	}
	sort.Slice(owners, func(i, j int) bool { return owners[i] < owners[j] })

	for _, owner := range owners {
		if err = f(owner); err != nil {
			return err
		}
	}
	return nil
}

// hasHistory tells whether owner has at least one non-empty history.
// An owner directory can exist without one
// when its only appends were interrupted or lost a race.
func (s *Store) hasHistory(ctx context.Context, owner ds.Agent) (bool, error) {
	var found bool
	err := s.Histories(ctx, owner, func(ds.Identity, []ds.Address) error {
		found = true
		return errStop
	})
	if errors.Is(err, errStop) {
		err = nil
	}
	return found, err
}

var errStop = errors.New("stop")

func init() {
	store.Register("file", func(_ context.Context, conf map[string]interface{}) (ds.Backend, error) {
		root, ok := conf["root"].(string)
		if !ok {
			return nil, errors.New(`missing "root" parameter`)
		}
		return New(root), nil
	})
}
