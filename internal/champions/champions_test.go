package champions

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	cases := []struct {
		name    string
		in      string
		want    []int
		wantErr bool
	}{
		{name: "ids", in: `[3, 1, 2, 3]`, want: []int{1, 2, 3}},
		{name: "entries", in: `[{"id": 266, "name": "Aatrox"}, {"id": 103, "name": "Ahri"}]`, want: []int{103, 266}},
		{name: "empty", in: `[]`, wantErr: true},
		{name: "non-positive", in: `[0, 1]`, wantErr: true},
		{name: "garbage", in: `{"id": 1}`, wantErr: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Parse([]byte(tc.in))
			if tc.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, []int(got))
		})
	}
}

func TestFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "champions.json")
	require.NoError(t, os.WriteFile(path, []byte(`[5, 4]`), 0o600))

	cat, err := FromFile(path)
	require.NoError(t, err)
	ids, err := cat.IDs(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []int{4, 5}, ids)

	_, err = FromFile(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

func TestDefault(t *testing.T) {
	ids, err := Default().IDs(context.Background())
	require.NoError(t, err)
	assert.Len(t, ids, DefaultPoolSize)
	assert.Equal(t, 1, ids[0])
}
