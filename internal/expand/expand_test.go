package expand

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Brite-Nites/serper-tap/internal/domain"
	"github.com/Brite-Nites/serper-tap/internal/zips"
)

func TestQueriesOrderingAndCount(t *testing.T) {
	src, err := zips.NewStaticSource("AZ,85003\nAZ,85001\nAZ,85002\n")
	require.NoError(t, err)

	rows, err := Queries(src, domain.JobParams{JobID: "j1", Keyword: "bars", State: "AZ", Pages: 2})
	require.NoError(t, err)
	require.Len(t, rows, 6) // 3 zips x 2 pages

	// Lexicographic (zip, page) order, per spec §4.2 determinism.
	want := []struct{ zip string; page int }{
		{"85001", 1}, {"85001", 2},
		{"85002", 1}, {"85002", 2},
		{"85003", 1}, {"85003", 2},
	}
	for i, w := range want {
		assert.Equal(t, w.zip, rows[i].Zip)
		assert.Equal(t, w.page, rows[i].Page)
		assert.Equal(t, domain.QueryQueued, rows[i].Status)
		assert.Equal(t, w.zip+" bars", rows[i].Q)
	}
}

func TestQueriesRejectsZeroPages(t *testing.T) {
	src, err := zips.NewStaticSource("AZ,85001\n")
	require.NoError(t, err)
	_, err = Queries(src, domain.JobParams{JobID: "j1", Keyword: "bars", State: "AZ", Pages: 0})
	assert.Error(t, err)
}

func TestQueriesUnknownState(t *testing.T) {
	src, err := zips.NewStaticSource("AZ,85001\n")
	require.NoError(t, err)
	_, err = Queries(src, domain.JobParams{JobID: "j1", Keyword: "bars", State: "ZZ", Pages: 1})
	assert.Error(t, err)
}
