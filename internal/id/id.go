// Package id generates time-sortable identifiers for positions and orders.
package id

import (
	cryptoRand "crypto/rand"
	"encoding/binary"
	"io"
	"math/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// Prefixes mark orders placed by this bot on the exchange.
const (
	clientOrderPrefix = "smc-"
	closeOrderPrefix  = "smc-x-"
)

var (
	mu   sync.Mutex
	mono io.Reader
)

func init() {
	var seed int64
	_ = binary.Read(cryptoRand.Reader, binary.LittleEndian, &seed)
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	// Monotonic keeps IDs from the same millisecond increasing.
	mono = ulid.Monotonic(rand.New(rand.NewSource(seed)), 0)
}

// New returns a ULID string.
func New() string {
	mu.Lock()
	defer mu.Unlock()

	id, err := ulid.New(ulid.Timestamp(time.Now().UTC()), mono)
	if err != nil {
		panic(err)
	}
	return id.String()
}

// ClientOrderID returns an exchange client order id (30 chars, under Binance's 36 limit).
func ClientOrderID() string {
	return clientOrderPrefix + New()
}

// CloseOrderID returns the client order id of the exit order for a position.
// It depends only on positionID so resubmitting a close reuses the same id.
func CloseOrderID(positionID string) string {
	return closeOrderPrefix + positionID
}
