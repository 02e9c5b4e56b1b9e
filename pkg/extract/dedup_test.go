package extract

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeduplicator(t *testing.T) {
	d := NewDeduplicator()

	assert.True(t, d.ShouldProcess(KeyOf("Person", 1)))
	assert.False(t, d.ShouldProcess(KeyOf("Person", 1)))
	assert.True(t, d.ShouldProcess(KeyOf("Household", 1)))
	assert.True(t, d.ShouldProcess(CompositeKey("1", "2")))
	assert.True(t, d.ShouldProcess(CompositeKey("12")))

	assert.Equal(t, 4, d.Seen())
	assert.Equal(t, 1, d.Dropped())
}

// Page boundaries shift while a collection is walked, so the second page
// repeats the tail of the first.
func TestOverlappingPagesWrittenOnce(t *testing.T) {
	pages := [][]int{{1, 2, 3, 4, 5}, {4, 5, 6, 7, 8}}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := 0
		if r.URL.Query().Get("page") == "2" {
			n = 1
		}
		items := make([]string, 0, len(pages[n]))
		for _, id := range pages[n] {
			items = append(items, fmt.Sprintf(`{"type":"Person","id":"%d"}`, id))
		}
		next := `"people?page=2"`
		if n == 1 {
			next = "null"
		}
		fmt.Fprintf(w, `{"data":[%s],"links":{"next":%s}}`, strings.Join(items, ","), next)
	}))
	defer srv.Close()

	p := newTestPaginator(t, srv.URL, NewResolver())
	d := NewDeduplicator()

	var written []int64
	for item, err := range p.Items(context.Background(), "people", Options{}, FetchWindow{}) {
		require.NoError(t, err)
		if d.ShouldProcess(KeyOf(item.Type, item.ID)) {
			written = append(written, item.ID)
		}
	}

	assert.Equal(t, []int64{1, 2, 3, 4, 5, 6, 7, 8}, written)
	assert.Equal(t, 2, d.Dropped())
}
