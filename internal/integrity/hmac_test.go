package integrity

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestVerify(t *testing.T) {
	v := New("secret-key")
	data := []byte("file payload")

	sig := v.Signature(data)
	require.True(t, v.Verify(data, sig))
}

func TestVerifyWrongKey(t *testing.T) {
	data := []byte("file payload")
	sig := New("secret-key").Signature(data)

	require.False(t, New("other-key").Verify(data, sig))
}

func TestVerifyTamperedData(t *testing.T) {
	v := New("secret-key")
	sig := v.Signature([]byte("file payload"))

	require.False(t, v.Verify([]byte("file payload changed"), sig))
	require.False(t, v.Verify([]byte("file payload"), "zzz"))
}
