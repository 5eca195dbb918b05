package links

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pribylovaa/go-auth-service/internal/cryptox"
	"github.com/stretchr/testify/require"
)

const (
	linkKey = "link-key-0123456789abcdef0123456"
	linkIV  = "link-iv-01234567"
)

func newCodec(t *testing.T, ttl time.Duration) *Codec {
	t.Helper()
	c, err := New(linkKey, linkIV, ttl)
	require.NoError(t, err)
	return c
}

func TestCodec_RoundTrip(t *testing.T) {
	t.Parallel()

	c := newCodec(t, time.Hour)
	for i := 0; i < 50; i++ {
		id := uuid.New()
		for _, act := range []Action{ActionVerify, ActionReset} {
			tok, err := c.Encode(id, act)
			require.NoError(t, err)

			got, err := c.Decode(tok, act)
			require.NoError(t, err)
			require.Equal(t, id, got)
		}
	}
}

func TestCodec_DeterministicWithoutTTL(t *testing.T) {
	t.Parallel()

	c := newCodec(t, 0)
	id := uuid.New()

	a, err := c.Encode(id, ActionVerify)
	require.NoError(t, err)
	b, err := c.Encode(id, ActionVerify)
	require.NoError(t, err)
	require.Equal(t, a, b)

	other, err := c.Encode(uuid.New(), ActionVerify)
	require.NoError(t, err)
	require.NotEqual(t, a, other)
}

func TestCodec_CrossUserNeverMatches(t *testing.T) {
	t.Parallel()

	c := newCodec(t, 0)
	alice, bob := uuid.New(), uuid.New()

	tokA, err := c.Encode(alice, ActionReset)
	require.NoError(t, err)

	got, err := c.Decode(tokA, ActionReset)
	require.NoError(t, err)
	require.Equal(t, alice, got)
	require.NotEqual(t, bob, got)
}

func TestCodec_CorruptedOrTruncated(t *testing.T) {
	t.Parallel()

	c := newCodec(t, time.Hour)
	id := uuid.New()
	tok, err := c.Encode(id, ActionVerify)
	require.NoError(t, err)

	bad := []string{
		"",
		"not-hex",
		tok[:len(tok)-2],
		tok[:32],
		tok[2:],
	}

	// Переворачиваем по одному hex-символу в каждом блоке.
	for i := 0; i < len(tok); i += 32 {
		b := []byte(tok)
		if b[i] == '0' {
			b[i] = '1'
		} else {
			b[i] = '0'
		}
		bad = append(bad, string(b))
	}

	for _, in := range bad {
		got, err := c.Decode(in, ActionVerify)
		if err == nil {
			// Повреждение может случайно дать корректное дополнение,
			// но не может дать чужой валидный идентификатор.
			require.Equal(t, id, got)
			continue
		}
		require.ErrorIs(t, err, ErrInvalidLink)
		require.Equal(t, uuid.Nil, got)
	}
}

func TestCodec_ActionMismatch(t *testing.T) {
	t.Parallel()

	c := newCodec(t, time.Hour)
	tok, err := c.Encode(uuid.New(), ActionVerify)
	require.NoError(t, err)

	_, err = c.Decode(tok, ActionReset)
	require.ErrorIs(t, err, ErrInvalidLink)
}

func TestCodec_Expired(t *testing.T) {
	t.Parallel()

	c := newCodec(t, time.Minute)
	base := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return base }

	tok, err := c.Encode(uuid.New(), ActionReset)
	require.NoError(t, err)

	c.now = func() time.Time { return base.Add(59 * time.Second) }
	_, err = c.Decode(tok, ActionReset)
	require.NoError(t, err)

	c.now = func() time.Time { return base.Add(time.Minute) }
	_, err = c.Decode(tok, ActionReset)
	require.ErrorIs(t, err, ErrLinkExpired)
}

func TestCodec_ForeignPayloadRejected(t *testing.T) {
	t.Parallel()

	c := newCodec(t, 0)
	enc := func(s string) string {
		out, err := cryptox.Encrypt(s, linkKey, linkIV)
		require.NoError(t, err)
		return out
	}

	cases := []string{
		`not json`,
		`{"userId":"` + uuid.NewString() + `"}`,
		`{"uid":"nope","act":"verify"}`,
		`{"uid":"00000000-0000-0000-0000-000000000000","act":"verify"}`,
		`{"uid":"` + uuid.NewString() + `","act":"verify"} {}`,
	}
	for _, p := range cases {
		_, err := c.Decode(enc(p), ActionVerify)
		require.ErrorIs(t, err, ErrInvalidLink, p)
	}

	// Ссылка, зашифрованная другим ключом.
	other, err := cryptox.Encrypt(`{"uid":"`+uuid.NewString()+`","act":"verify"}`,
		"another-key-0123456789abcdef0123", linkIV)
	require.NoError(t, err)
	_, err = c.Decode(other, ActionVerify)
	require.Error(t, err)
}

func TestNew_Errors(t *testing.T) {
	t.Parallel()

	_, err := New("short", linkIV, 0)
	require.ErrorIs(t, err, cryptox.ErrCrypto)

	_, err = New(linkKey, linkIV, -time.Second)
	require.Error(t, err)

	c := newCodec(t, 0)
	_, err = c.Encode(uuid.Nil, ActionVerify)
	require.ErrorIs(t, err, ErrInvalidLink)
}
