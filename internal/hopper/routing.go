package hopper

import (
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/sys/unix"
)

// DefaultRTTablesPath is where Linux keeps routing table name
// assignments; the attack table must be registered here before "ip
// rule ... table attack" resolves the name.
const DefaultRTTablesPath = "/etc/iproute2/rt_tables"

const (
	attackTableID   = 200
	attackTableName = "attack"
)

// ensureRoutingTable appends "<id> attack" to path if no line already
// names the attack table, guarded by an flock so concurrent processes
// on the same host never race the append. Idempotent across restarts.
func ensureRoutingTable(path string) error {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX); err != nil {
		return fmt.Errorf("locking %s: %w", path, err)
	}
	defer unix.Flock(int(f.Fd()), unix.LOCK_UN)

	data, err := io.ReadAll(f)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}
	if rtTablesHasEntry(string(data), attackTableName) {
		return nil
	}

	if _, err := f.Seek(0, io.SeekEnd); err != nil {
		return fmt.Errorf("seeking %s: %w", path, err)
	}
	line := fmt.Sprintf("%d\t%s\n", attackTableID, attackTableName)
	if _, err := f.WriteString(line); err != nil {
		return fmt.Errorf("appending to %s: %w", path, err)
	}
	return nil
}

func rtTablesHasEntry(contents, name string) bool {
	for _, line := range strings.Split(contents, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) == 2 && fields[1] == name {
			return true
		}
	}
	return false
}
