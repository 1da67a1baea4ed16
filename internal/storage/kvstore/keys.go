package kvstore

import (
	"fmt"
	"time"
)

// Index keys embed the record timestamp as zero-padded UnixNano so that
// ascending byte order equals ascending creation time. Twenty digits cover
// the full int64 range.

func agentKey(id string) []byte {
	return []byte("agent:" + id)
}

const agentPrefix = "agent:"

func sessionKey(id string) []byte {
	return []byte("session:" + id)
}

func sessionIndexKey(createdAt time.Time, id string) []byte {
	return fmt.Appendf(nil, "session_index:%020d:%s", createdAt.UnixNano(), id)
}

const sessionIndexPrefix = "session_index:"

func messageKey(uuid string) []byte {
	return []byte("message:" + uuid)
}

func messageIndexKey(sessionID string, createdAt time.Time, uuid string) []byte {
	return fmt.Appendf(nil, "session_messages:%s:%020d:%s", sessionID, createdAt.UnixNano(), uuid)
}

func messageIndexPrefix(sessionID string) []byte {
	return []byte("session_messages:" + sessionID + ":")
}
