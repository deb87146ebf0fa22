package suite

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gofrs/flock"
)

// ErrAddressBusy is returned when another suite holds the lock for a target address.
var ErrAddressBusy = errors.New("target address is in use by another suite")

// addressLocks holds one advisory lock file per target address.
type addressLocks struct {
	held []*flock.Flock
}

func lockPath(dir, address string) string {
	name := strings.NewReplacer(":", "_", "/", "_", "[", "", "]", "").Replace(address)
	return filepath.Join(dir, "echobench-"+name+".lock")
}

// acquireAddressLocks locks every distinct address or none of them.
func acquireAddressLocks(dir string, addresses []string) (*addressLocks, error) {
	if dir == "" {
		dir = os.TempDir()
	}
	locks := &addressLocks{}
	seen := make(map[string]bool)
	for _, addr := range addresses {
		if addr == "" || seen[addr] {
			continue
		}
		seen[addr] = true

		fl := flock.New(lockPath(dir, addr))
		ok, err := fl.TryLock()
		if err != nil {
			locks.release()
			return nil, fmt.Errorf("lock %s: %w", addr, err)
		}
		if !ok {
			locks.release()
			return nil, fmt.Errorf("%s: %w (lock file %s)", addr, ErrAddressBusy, fl.Path())
		}
		locks.held = append(locks.held, fl)
	}
	return locks, nil
}

func (l *addressLocks) release() {
	if l == nil {
		return
	}
	for _, fl := range l.held {
		_ = fl.Unlock()
	}
	l.held = nil
}
