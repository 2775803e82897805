package trading

import (
	"crypto/rand"
	"math/big"
)

const (
	tradeIDPrefix   = "TRADE-"
	tradeIDLength   = 8
	tradeIDAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"
)

// IDGenerator produces trade identifiers
type IDGenerator func() string

var alphabetSize = big.NewInt(int64(len(tradeIDAlphabet)))

// NewTradeID returns "TRADE-" followed by 8 random base-36 characters
func NewTradeID() string {
	buf := make([]byte, len(tradeIDPrefix)+tradeIDLength)
	copy(buf, tradeIDPrefix)
	for i := len(tradeIDPrefix); i < len(buf); i++ {
		n, err := rand.Int(rand.Reader, alphabetSize)
		if err != nil {
			// crypto/rand does not fail on supported platforms
			panic(err)
		}
		buf[i] = tradeIDAlphabet[n.Int64()]
	}
	return string(buf)
}
