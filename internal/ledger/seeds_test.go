package ledger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/idiom-bytes/canada-spends-municipality-scraper/internal/scrape"
)

const seedsFixture = `census_subdivision_id,municipality_name,type,province_id,province,page_url
5915022,Vancouver,City,59,British Columbia,https://vancouver.ca/finance
5915055,Burnaby,City,59,British Columbia,https://burnaby.ca/reports
3520005,Toronto,City,35,Ontario,https://toronto.ca/finance
4611040,Winnipeg,City,46,Manitoba,
`

func writeSeeds(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "seeds.csv")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestReadSeeds(t *testing.T) {
	seeds, err := ReadSeeds(writeSeeds(t, seedsFixture))
	require.NoError(t, err)
	require.Len(t, seeds, 4)

	assert.Equal(t, scrape.Seed{
		CSDID:      "5915022",
		Name:       "Vancouver",
		Type:       "City",
		ProvinceID: "59",
		Province:   "British Columbia",
		PageURL:    "https://vancouver.ca/finance",
	}, seeds[0])
	assert.Empty(t, seeds[3].PageURL)
}

func TestReadSeedsMissingFile(t *testing.T) {
	seeds, err := ReadSeeds(filepath.Join(t.TempDir(), "absent.csv"))
	require.NoError(t, err)
	assert.Nil(t, seeds)
}

func TestReadSeedsShuffledColumns(t *testing.T) {
	seeds, err := ReadSeeds(writeSeeds(t, "page_url,census_subdivision_id\nhttps://x.example.com,1234\n"))
	require.NoError(t, err)
	require.Len(t, seeds, 1)
	assert.Equal(t, "1234", seeds[0].CSDID)
	assert.Equal(t, "https://x.example.com", seeds[0].PageURL)
}

func TestFilterSeeds(t *testing.T) {
	seeds, err := ReadSeeds(writeSeeds(t, seedsFixture))
	require.NoError(t, err)

	statuses := map[StatusKey]StatusRow{
		{CSDID: "5915022", Type: "City"}: {Status: scrape.StatusOK, NeedsReparse: "NO"},
		{CSDID: "5915055", Type: "City"}: {Status: scrape.StatusFail, NeedsReparse: "YES"},
		{CSDID: "3520005", Type: "City"}: {Status: scrape.StatusOK, NeedsReparse: "YES"},
	}

	tests := []struct {
		name   string
		filter SeedFilter
		want   []string
	}{
		{"no filter", SeedFilter{}, []string{"5915022", "5915055", "3520005", "4611040"}},
		{"by csd", SeedFilter{CSD: "3520005"}, []string{"3520005"}},
		{"by name substring", SeedFilter{Municipality: "van"}, []string{"5915022"}},
		{"limit", SeedFilter{Limit: 2}, []string{"5915022", "5915055"}},
		// 4611040 has never been processed, so retry filters keep it.
		{"retry failed", SeedFilter{RetryFailed: true}, []string{"5915055", "4611040"}},
		{"retry incomplete", SeedFilter{RetryIncomplete: true}, []string{"5915055", "3520005", "4611040"}},
		{"retry either", SeedFilter{RetryFailed: true, RetryIncomplete: true}, []string{"5915055", "3520005", "4611040"}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := FilterSeeds(seeds, tc.filter, statuses)
			ids := make([]string, 0, len(got))
			for _, s := range got {
				ids = append(ids, s.CSDID)
			}
			assert.Equal(t, tc.want, ids)
		})
	}
}
