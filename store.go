package wxmatrix

// This file contains the namespaced key value storage used to persist the
// matrix settings.  Values are kept as flat primitive keys inside a namespace,
// the file backed store writes them as YAML with the keys sorted so that
// saving unchanged settings produces identical bytes.

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"sync"

	"github.com/go-stack/stack"
	"github.com/karlmutch/errors"

	"gopkg.in/yaml.v2"
)

// Store is a namespaced key value store of primitive values.  Getters return
// the supplied default when a key is missing or holds a value of another kind.
// Puts are staged until Commit.
type Store interface {
	GetBool(ns string, key string, def bool) bool
	GetUint8(ns string, key string, def uint8) uint8
	GetUint16(ns string, key string, def uint16) uint16

	PutBool(ns string, key string, v bool)
	PutUint8(ns string, key string, v uint8)
	PutUint16(ns string, key string, v uint16)

	Commit() (err errors.Error)
}

type namespaces map[string]map[string]interface{}

// kv is the in memory representation shared by the store implementations
type kv struct {
	data namespaces
	sync.Mutex
}

func (s *kv) get(ns string, key string) (v interface{}, ok bool) {
	s.Lock()
	defer s.Unlock()
	keys, ok := s.data[ns]
	if !ok {
		return nil, false
	}
	v, ok = keys[key]
	return v, ok
}

func (s *kv) put(ns string, key string, v interface{}) {
	s.Lock()
	defer s.Unlock()
	if s.data == nil {
		s.data = namespaces{}
	}
	keys, ok := s.data[ns]
	if !ok {
		keys = map[string]interface{}{}
		s.data[ns] = keys
	}
	keys[key] = v
}

// number extracts an integer from a stored value, YAML decoding hands back
// int for small values
func number(v interface{}) (n int64, ok bool) {
	switch val := v.(type) {
	case int:
		return int64(val), true
	case int64:
		return val, true
	case uint64:
		return int64(val), true
	case float64:
		return int64(val), true
	}
	return 0, false
}

func (s *kv) GetBool(ns string, key string, def bool) bool {
	v, ok := s.get(ns, key)
	if !ok {
		return def
	}
	if b, isBool := v.(bool); isBool {
		return b
	}
	return def
}

func (s *kv) GetUint8(ns string, key string, def uint8) uint8 {
	v, ok := s.get(ns, key)
	if !ok {
		return def
	}
	if n, isNum := number(v); isNum && n >= 0 && n <= 0xFF {
		return uint8(n)
	}
	return def
}

func (s *kv) GetUint16(ns string, key string, def uint16) uint16 {
	v, ok := s.get(ns, key)
	if !ok {
		return def
	}
	if n, isNum := number(v); isNum && n >= 0 && n <= 0xFFFF {
		return uint16(n)
	}
	return def
}

func (s *kv) PutBool(ns string, key string, v bool) {
	s.put(ns, key, v)
}

func (s *kv) PutUint8(ns string, key string, v uint8) {
	s.put(ns, key, int(v))
}

func (s *kv) PutUint16(ns string, key string, v uint16) {
	s.put(ns, key, int(v))
}

func (s *kv) marshal() (out []byte, err errors.Error) {
	s.Lock()
	defer s.Unlock()
	if s.data == nil {
		s.data = namespaces{}
	}
	out, errGo := yaml.Marshal(s.data)
	if errGo != nil {
		return nil, errors.Wrap(errGo).With("stack", stack.Trace().TrimRuntime())
	}
	return out, nil
}

// MemStore keeps values in memory only
type MemStore struct {
	kv

	// Commits counts calls to Commit
	Commits int
	// FailCommit makes Commit fail, simulating a worn out flash
	FailCommit bool
}

// NewMemStore creates an empty in memory store
func NewMemStore() *MemStore {
	return &MemStore{}
}

func (s *MemStore) Commit() (err errors.Error) {
	s.Commits++
	if s.FailCommit {
		return errors.New("commit failed").With("stack", stack.Trace().TrimRuntime())
	}
	return nil
}

// Bytes returns the serialized form of the store as a FileStore would write it
func (s *MemStore) Bytes() (out []byte, err errors.Error) {
	return s.marshal()
}

// FileStore persists every namespace into a single YAML document
type FileStore struct {
	kv
	path string
}

// OpenFileStore loads the store at path, a missing file is an empty store
func OpenFileStore(path string) (s *FileStore, err errors.Error) {
	s = &FileStore{path: path}
	s.data = namespaces{}

	raw, errGo := ioutil.ReadFile(path)
	if errGo != nil {
		if os.IsNotExist(errGo) {
			return s, nil
		}
		return nil, errors.Wrap(errGo).With("path", path).With("stack", stack.Trace().TrimRuntime())
	}
	if errGo = yaml.Unmarshal(raw, &s.data); errGo != nil {
		return nil, errors.Wrap(errGo).With("path", path).With("stack", stack.Trace().TrimRuntime())
	}
	if s.data == nil {
		s.data = namespaces{}
	}
	return s, nil
}

// Path is the file backing the store
func (s *FileStore) Path() string {
	return s.path
}

// Commit writes the store to a temporary file alongside the target and renames
// it into place
func (s *FileStore) Commit() (err errors.Error) {
	out, err := s.marshal()
	if err != nil {
		return err
	}

	tmp, errGo := ioutil.TempFile(filepath.Dir(s.path), filepath.Base(s.path)+".")
	if errGo != nil {
		return errors.Wrap(errGo).With("path", s.path).With("stack", stack.Trace().TrimRuntime())
	}
	defer os.Remove(tmp.Name())

	if _, errGo = tmp.Write(out); errGo != nil {
		tmp.Close()
		return errors.Wrap(errGo).With("path", tmp.Name()).With("stack", stack.Trace().TrimRuntime())
	}
	if errGo = tmp.Close(); errGo != nil {
		return errors.Wrap(errGo).With("path", tmp.Name()).With("stack", stack.Trace().TrimRuntime())
	}
	if errGo = os.Rename(tmp.Name(), s.path); errGo != nil {
		return errors.Wrap(errGo).With("path", s.path).With("stack", stack.Trace().TrimRuntime())
	}
	return nil
}
