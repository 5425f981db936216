package meta

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWalkOrder(t *testing.T) {
	m := station(t)

	var visits []string
	err := Walk(m, func(path string, g *Group, v *Variable) error {
		if v == nil {
			visits = append(visits, "g:"+path)
		} else {
			visits = append(visits, "v:"+path+":"+v.Name)
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{
		"g:/",
		"v:/:temp",
		"g:/obs",
		"v:/obs:salinity",
		"g:/obs/raw",
	}, visits)
}

func TestWalkSkipGroup(t *testing.T) {
	m := station(t)

	var visits []string
	err := Walk(m, func(path string, g *Group, v *Variable) error {
		if v == nil && path == "/obs" {
			return SkipGroup
		}
		if v != nil {
			visits = append(visits, v.Name)
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"temp"}, visits)
}

func TestWalkStopsOnError(t *testing.T) {
	m := station(t)
	boom := errors.New("boom")

	calls := 0
	err := Walk(m, func(path string, g *Group, v *Variable) error {
		calls++
		if v != nil && v.Name == "temp" {
			return boom
		}
		return nil
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 2, calls)
}
