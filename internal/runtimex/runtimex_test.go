package runtimex

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPanicOnError(t *testing.T) {
	require.NotPanics(t, func() { PanicOnError(nil, "x") })
	require.PanicsWithError(t, "parse: mocked", func() {
		PanicOnError(errors.New("mocked"), "parse")
	})
}

func TestMust(t *testing.T) {
	var code int
	saved := exit
	exit = func(c int) { code = c }
	defer func() { exit = saved }()
	Must(nil, "nothing")
	require.Equal(t, 0, code)
	Must(errors.New("mocked"), "something")
	require.Equal(t, 1, code)
}
