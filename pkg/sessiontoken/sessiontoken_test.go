package sessiontoken

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef")

func TestCodecRoundTrip(t *testing.T) {
	codec, err := NewCodec(testSecret, "warden-test", time.Hour)
	require.NoError(t, err)

	raw, err := codec.Encode("user-1", "sess-1", true, false)
	require.NoError(t, err)
	require.NotEmpty(t, raw)

	claims, err := codec.Decode(raw)
	require.NoError(t, err)
	require.Equal(t, "user-1", claims.Subject)
	require.Equal(t, "sess-1", claims.SessionID)
	require.True(t, claims.MFAVerified)
	require.False(t, claims.MFAPending)
}

func TestCodecRejectsShortSecret(t *testing.T) {
	_, err := NewCodec([]byte("too-short"), "warden-test", time.Hour)
	require.Error(t, err)
}

func TestDecode_WrongSecret(t *testing.T) {
	codec, err := NewCodec(testSecret, "warden-test", time.Hour)
	require.NoError(t, err)
	other, err := NewCodec([]byte("fedcba9876543210fedcba9876543210"), "warden-test", time.Hour)
	require.NoError(t, err)

	raw, err := codec.Encode("user-1", "sess-1", false, true)
	require.NoError(t, err)

	_, err = other.Decode(raw)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestDecode_WrongIssuer(t *testing.T) {
	codec, err := NewCodec(testSecret, "warden-test", time.Hour)
	require.NoError(t, err)
	otherIssuer, err := NewCodec(testSecret, "someone-else", time.Hour)
	require.NoError(t, err)

	raw, err := codec.Encode("user-1", "sess-1", false, false)
	require.NoError(t, err)

	_, err = otherIssuer.Decode(raw)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestDecode_Tampered(t *testing.T) {
	codec, err := NewCodec(testSecret, "warden-test", time.Hour)
	require.NoError(t, err)

	raw, err := codec.Encode("user-1", "sess-1", true, false)
	require.NoError(t, err)

	parts := strings.Split(raw, ".")
	require.Len(t, parts, 3)
	tampered := parts[0] + "." + parts[1] + "." + strings.Repeat("A", len(parts[2]))

	_, err = codec.Decode(tampered)
	require.ErrorIs(t, err, ErrInvalidToken)
}
