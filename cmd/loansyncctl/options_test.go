package main

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRedisOptionsAddr(t *testing.T) {
	var o = redisOptions{Host: "cache.internal", Port: 6380}
	var c = o.client()
	defer c.Close()
	require.Equal(t, "cache.internal:6380", c.Options().Addr)
}
