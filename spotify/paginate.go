package spotify

import (
	"context"
	"net/url"
	"strconv"

	"github.com/xeptore/spotd/iterutil"
)

// ExtractFunc decodes one page body into typed records. pageLen is the raw
// item count of the page before any caller-side filtering, which is what
// end-of-pages detection must be based on.
type ExtractFunc[T any] func(body []byte) (items []T, pageLen int, err error)

// isLastPage is the end-of-pages heuristic: the API exposes no cursor, so a
// page shorter than the requested limit is taken as the final one. A
// collection whose size is an exact multiple of limit costs one extra
// empty-page round.
func isLastPage(pageLen, limit int) bool {
	return pageLen < limit
}

// CollectAll sweeps a list endpoint from offset 0 in increments of limit and
// accumulates every record, preserving arrival order.
func CollectAll[T any](ctx context.Context, client *Client, endpoint Endpoint, limit int, extract ExtractFunc[T]) ([]T, error) {
	var all []T
	for offset := range iterutil.Offsets(limit) {
		params := make(url.Values, 2)
		params.Set("limit", strconv.Itoa(limit))
		params.Set("offset", strconv.Itoa(offset))

		resp, err := client.Get(ctx, endpoint, params, nil)
		if nil != err {
			return nil, err
		}
		if resp.NotFound() {
			break
		}

		items, pageLen, err := extract(resp.Body)
		if nil != err {
			return nil, err
		}
		all = append(all, items...)

		if isLastPage(pageLen, limit) {
			break
		}
	}
	return all, nil
}
