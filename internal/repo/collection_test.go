package repo

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCollectionName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "3f2b9c1e-7d4a-4e2b-9a1c-0f5e6d7c8b9a", want: "papers_3f2b9c1e-7d4a-4e2b-9a1c-0f5e6d7c8b9a"},
		{in: "a b/c:d", want: "papers_a_b_c_d"},
		{in: "v1.2_x", want: "papers_v1.2_x"},
		{in: "", want: "papers_"},
		{in: "é", want: "papers__"},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, CollectionName(tt.in))
	}

	long := CollectionName(strings.Repeat("x", 100))
	require.Len(t, long, 63)
	require.True(t, strings.HasPrefix(long, "papers_"))
}
