package artifact

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"time"
)

// zip local file header or end-of-central-directory record (empty archive).
var zipMagic = [][]byte{[]byte("PK\x03\x04"), []byte("PK\x05\x06")}

// Store inspects artifacts rooted at one run's scope.
type Store struct {
	scope Scope
	now   func() time.Time
}

// StoreOption customizes a Store during construction.
type StoreOption func(*Store)

// WithClock overrides the clock used for manifest timestamps.
func WithClock(clock func() time.Time) StoreOption {
	return func(s *Store) {
		s.now = clock
	}
}

// NewStore builds a store for a run.
func NewStore(scope Scope, opts ...StoreOption) *Store {
	store := &Store{
		scope: scope,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(store)
	}
	return store
}

// Path resolves ref within the store's scope.
func (s *Store) Path(ref Ref) string {
	return ref.Path(s.scope)
}

// Check inspects the artifact on disk and returns its status.
func (s *Store) Check(ref Ref) (CheckResult, error) {
	path := ref.Path(s.scope)
	if path == "" {
		err := fmt.Errorf("artifact: %s path could not be resolved", ref.ID)
		return CheckResult{Ref: ref, Path: path, State: StateError, Err: err}, err
	}
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return CheckResult{Ref: ref, Path: path, State: StateMissing}, nil
		}
		return CheckResult{Ref: ref, Path: path, State: StateError, Err: err}, err
	}
	switch ref.Kind {
	case KindDirectory:
		if !info.IsDir() {
			return invalidResult(ref, path, fmt.Errorf("artifact: expected directory"))
		}
		entries, readErr := os.ReadDir(path)
		if readErr != nil {
			return CheckResult{Ref: ref, Path: path, State: StateError, Err: readErr}, readErr
		}
		if len(entries) == 0 {
			return CheckResult{Ref: ref, Path: path, State: StateMissing}, nil
		}
		return CheckResult{Ref: ref, Path: path, State: StateReady}, nil
	case KindArchive:
		if info.IsDir() {
			return invalidResult(ref, path, fmt.Errorf("artifact: expected archive got directory"))
		}
		if info.Size() == 0 {
			return invalidResult(ref, path, fmt.Errorf("artifact: %s is empty", path))
		}
		if err := checkZipMagic(path); err != nil {
			return invalidResult(ref, path, err)
		}
		return CheckResult{Ref: ref, Path: path, State: StateReady, Size: info.Size()}, nil
	case KindManifest:
		if _, loadErr := LoadManifest(path); loadErr != nil {
			return invalidResult(ref, path, loadErr)
		}
		return CheckResult{Ref: ref, Path: path, State: StateReady, Size: info.Size()}, nil
	default:
		if info.IsDir() {
			return invalidResult(ref, path, fmt.Errorf("artifact: expected file got directory"))
		}
		if info.Size() == 0 {
			return invalidResult(ref, path, fmt.Errorf("artifact: %s is empty", path))
		}
		return CheckResult{Ref: ref, Path: path, State: StateReady, Size: info.Size()}, nil
	}
}

// CheckAll runs Check for each ref and reports whether every non-optional
// artifact is ready.
func (s *Store) CheckAll(refs []Ref) ([]CheckResult, bool) {
	results := make([]CheckResult, 0, len(refs))
	ready := true
	for _, ref := range refs {
		res, _ := s.Check(ref)
		results = append(results, res)
		if !res.Ready() && !ref.Optional {
			ready = false
		}
	}
	return results, ready
}

func checkZipMagic(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	head := make([]byte, 4)
	if _, err := io.ReadFull(f, head); err != nil {
		return fmt.Errorf("artifact: %s is not a zip archive", path)
	}
	for _, magic := range zipMagic {
		if bytes.Equal(head, magic) {
			return nil
		}
	}
	return fmt.Errorf("artifact: %s is not a zip archive", path)
}

func invalidResult(ref Ref, path string, err error) (CheckResult, error) {
	return CheckResult{Ref: ref, Path: path, State: StateInvalid, Err: err}, err
}
