// Package integrity проверяет целостность загружаемых данных по
// подписи HMAC-SHA256, ключом служит секрет аккаунта.
package integrity

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

type Verifier struct {
	key []byte
}

func New(key string) Verifier {
	return Verifier{key: []byte(key)}
}

// Signature возвращает hex-подпись данных в нижнем регистре.
func (v Verifier) Signature(data []byte) string {
	mac := hmac.New(sha256.New, v.key)
	mac.Write(data)
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify сверяет подпись за постоянное время.
func (v Verifier) Verify(data []byte, signature string) bool {
	expected, err := hex.DecodeString(signature)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, v.key)
	mac.Write(data)
	return hmac.Equal(mac.Sum(nil), expected)
}
