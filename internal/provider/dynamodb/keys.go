package dynamodb

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"
)

// PK/SK prefix constants.
const (
	prefixStrategy  = "STRATEGY#"
	prefixExecution = "EXEC#"
	prefixEvent     = "EVENT#"
	prefixType      = "TYPE#"

	pkEventLog = "EVENTLOG"
	skConfig   = "CONFIG"
)

func strategyPK(id string) string  { return prefixStrategy + id }
func executionPK(id string) string { return prefixExecution + id }
func configSK() string             { return skConfig }

func typeIndexPK(kind string) string { return prefixType + kind }

// sortTime renders t so lexical order matches chronological order.
func sortTime(t time.Time) string { return t.UTC().Format("2006-01-02T15:04:05.000000000Z") }

func strategyIndexSK(createdAt time.Time, id string) string {
	return sortTime(createdAt) + "#" + id
}

func executionTruthSK(id string) string { return prefixExecution + id }

func executionListSK(createdAt time.Time, id string) string {
	return prefixExecution + sortTime(createdAt) + "#" + id
}

func eventSK(ts time.Time) string {
	nonce := make([]byte, 4)
	_, _ = rand.Read(nonce)
	return fmt.Sprintf("%s%013d#%s", prefixEvent, ts.UnixMilli(), hex.EncodeToString(nonce))
}

func ttlEpoch(d time.Duration) int64 {
	return time.Now().Add(d).Unix()
}

func isExpired(epoch int64) bool {
	return epoch > 0 && time.Now().Unix() > epoch
}
