package redisx

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"
)

func TestFromEnvUnset(t *testing.T) {
	t.Setenv("REDIS_ADDR", "")
	require.Nil(t, FromEnv())
}

func TestFromEnvAndReadyCheck(t *testing.T) {
	s := miniredis.RunT(t)
	t.Setenv("REDIS_ADDR", s.Addr())

	rdb := FromEnv()
	require.NotNil(t, rdb)
	defer rdb.Close()

	check := ReadyCheck(rdb)
	require.NoError(t, check(context.Background()))

	s.Close()
	require.Error(t, check(context.Background()))
}
