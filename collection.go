package onedrived

import (
	"context"
	"encoding/json"
	"fmt"
)

type itemPage struct {
	Value    []map[string]json.RawMessage `json:"value"`
	NextLink string                       `json:"@odata.nextLink"`
}

// ItemCollection walks a paginated listing. It is created with the first
// page already fetched.
type ItemCollection struct {
	fetch     *fetcher
	page      *itemPage
	pageCount int
}

// HasNext reports whether the last fetched page links to another page.
func (c *ItemCollection) HasNext() bool {
	return c.page.NextLink != ""
}

// PageCount is the number of pages returned by Next so far.
func (c *ItemCollection) PageCount() int {
	return c.pageCount
}

// Next returns the items of the next page. The first call returns the
// page the collection was created with and does not contact the server.
// Once the last page has been returned, Next fails with ErrNoMorePages.
func (c *ItemCollection) Next(ctx context.Context) ([]*Item, error) {
	if c.pageCount > 0 {
		if c.page.NextLink == "" {
			return nil, ErrNoMorePages
		}

		page := new(itemPage)
		if err := c.fetch.get(ctx, c.page.NextLink, page); err != nil {
			return nil, fmt.Errorf("page %v: %w", c.pageCount+1, err)
		}

		c.page = page
	}

	c.pageCount++

	items := make([]*Item, 0, len(c.page.Value))
	for _, payload := range c.page.Value {
		item, err := newItem(payload)
		if err != nil {
			return nil, fmt.Errorf("page %v: %w", c.pageCount, err)
		}

		items = append(items, item)
	}

	return items, nil
}

// All drains the remaining pages of the collection,
// including the resident page if it was not returned yet.
func (c *ItemCollection) All(ctx context.Context) ([]*Item, error) {
	var all []*Item

	if c.pageCount == 0 {
		items, err := c.Next(ctx)
		if err != nil {
			return nil, err
		}

		all = append(all, items...)
	}

	for c.HasNext() {
		items, err := c.Next(ctx)
		if err != nil {
			return nil, err
		}

		all = append(all, items...)
	}

	return all, nil
}
