package db

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWalkDescendants(t *testing.T) {
	tree := map[int][]int{
		1: {2, 3},
		2: {4, 5},
		3: {},
		4: {},
		5: {6},
		6: {},
	}
	children := func(id int) ([]int, error) {
		return tree[id], nil
	}

	result, err := walkDescendants(children, 1)
	require.NoError(t, err)
	require.ElementsMatch(t, []int{2, 3, 4, 5, 6}, result)
}

func TestWalkDescendantsLeaf(t *testing.T) {
	children := func(id int) ([]int, error) {
		return nil, nil
	}

	result, err := walkDescendants(children, 42)
	require.NoError(t, err)
	require.Empty(t, result)
}

func TestWalkDescendantsError(t *testing.T) {
	boom := errors.New("query failed")
	children := func(id int) ([]int, error) {
		if id == 2 {
			return nil, boom
		}
		return []int{2}, nil
	}

	_, err := walkDescendants(children, 1)
	require.ErrorIs(t, err, boom)
}
