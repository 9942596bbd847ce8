package util

import (
	"crypto/md5"
	"encoding/hex"
	"encoding/json"

	"github.com/google/uuid"
)

// NewSessionID tags the log lines of one decode call
func NewSessionID() string {
	return uuid.NewString()
}

// Md5ThenHex is a quick hasher
func Md5ThenHex(value []byte) string {
	hasher := md5.New()
	hasher.Write(value)
	return hex.EncodeToString(hasher.Sum(nil))
}

// ContentID is a stable UUID for a codestream, derived from its bytes
func ContentID(data []byte) string {
	hash := md5.Sum(data)
	id, err := uuid.FromBytes(hash[:])
	if err != nil {
		return ""
	}
	return id.String()
}

// HashUUID is a stable UUID for any JSON serializable value
func HashUUID(value any) string {
	raw, err := json.Marshal(value)
	if err != nil {
		return ""
	}
	return ContentID(raw)
}
