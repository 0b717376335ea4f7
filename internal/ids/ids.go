// Package ids issues identifiers. Trade ids are ULIDs so positions, holdings
// and their history records sort by open time; accounts and funding requests
// use random UUIDs.
package ids

import (
	cryptoRand "crypto/rand"
	"encoding/binary"
	"io"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

var (
	mu   sync.Mutex
	mono io.Reader
	last uint64
)

func init() {
	var seed int64
	_ = binary.Read(cryptoRand.Reader, binary.LittleEndian, &seed)
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	mono = ulid.Monotonic(rand.New(rand.NewSource(seed)), 0)
}

// Trade returns a monotonic ULID string. Ids issued by one process strictly increase.
func Trade() string {
	mu.Lock()
	defer mu.Unlock()

	ms := ulid.Timestamp(time.Now().UTC())
	if ms < last {
		// Clock stepped back; stay on the last timestamp so ordering holds.
		ms = last
	}
	id, err := ulid.New(ms, mono)
	if err != nil {
		// Entropy for this millisecond is exhausted.
		ms++
		id = ulid.MustNew(ms, mono)
	}
	last = ms
	return id.String()
}

func New() string {
	return uuid.NewString()
}

func Valid(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}
