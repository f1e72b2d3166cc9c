package auth

import (
	"crypto/rand"
	"encoding/base64"
)

func generateToken(length int) string {
	arr := make([]byte, length)
	rand.Read(arr)
	return base64.URLEncoding.EncodeToString(arr)
}
