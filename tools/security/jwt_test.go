package security

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestIssueAndSubject(t *testing.T) {
	opts := DefaultOptions([]byte("s3cret"))
	tok, exp, err := Issue(opts, "17")
	require.NoError(t, err)
	require.True(t, exp.After(time.Now()))

	sub, err := Subject(opts, tok)
	require.NoError(t, err)
	require.Equal(t, "17", sub)
}

func TestSubjectRejects(t *testing.T) {
	opts := DefaultOptions([]byte("s3cret"))
	tok, _, err := Issue(opts, "17")
	require.NoError(t, err)

	t.Run("wrong secret", func(t *testing.T) {
		_, err := Subject(DefaultOptions([]byte("other")), tok)
		require.ErrorIs(t, err, ErrInvalidToken)
	})
	t.Run("wrong alg", func(t *testing.T) {
		o := opts
		o.Alg = "HS512"
		_, err := Subject(o, tok)
		require.ErrorIs(t, err, ErrInvalidToken)
	})
	t.Run("garbage", func(t *testing.T) {
		_, err := Subject(opts, "not-a-jwt")
		require.ErrorIs(t, err, ErrInvalidToken)
	})
	t.Run("expired", func(t *testing.T) {
		o := opts
		o.TTL = time.Millisecond
		old, _, err := Issue(o, "17")
		require.NoError(t, err)
		time.Sleep(1100 * time.Millisecond)
		_, err = Subject(opts, old)
		require.ErrorIs(t, err, ErrInvalidToken)
	})
}

func TestUnsupportedAlg(t *testing.T) {
	o := DefaultOptions([]byte("x"))
	o.Alg = "RS256"
	_, _, err := Issue(o, "1")
	require.Error(t, err)
	_, err = Subject(o, "a.b.c")
	require.Error(t, err)
	require.NotErrorIs(t, err, ErrInvalidToken)
}
