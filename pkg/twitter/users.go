package twitter

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	errs "tweetharvest/pkg/errors"
)

// LookupUsers resolves up to MaxLookupBatch handles to account objects in one
// request. Handles the API could not resolve are returned in missing.
func (c *Client) LookupUsers(ctx context.Context, handles []string) (users []User, missing []string, err error) {
	if len(handles) == 0 {
		return nil, nil, nil
	}
	if len(handles) > MaxLookupBatch {
		return nil, nil, &errs.Error{
			Type:    errs.ErrorTypeConfig,
			Message: fmt.Sprintf("lookup batch of %d exceeds limit of %d", len(handles), MaxLookupBatch),
		}
	}

	params := NewParams(
		"usernames", strings.Join(handles, ","),
		"user.fields", "id,username,name",
	)

	c.logger.DebugWithFields("looking up users", map[string]interface{}{
		"count": len(handles),
	})

	var resp UsersResponse
	if err := c.GetJSON(ctx, UsersByPath, params, &resp); err != nil {
		return nil, nil, err
	}

	found := make(map[string]bool, len(resp.Data))
	for _, u := range resp.Data {
		found[strings.ToLower(u.Username)] = true
	}
	for _, h := range handles {
		if !found[strings.ToLower(h)] {
			missing = append(missing, h)
		}
	}

	return resp.Data, missing, nil
}

// ConversationIDs returns the distinct conversation ids referenced by the
// records of a stored page, in order of first appearance.
func ConversationIDs(body []byte) ([]string, error) {
	var page struct {
		Data []Tweet `json:"data"`
	}
	if err := json.Unmarshal(body, &page); err != nil {
		return nil, &errs.Error{
			Type:    errs.ErrorTypeParsing,
			Message: fmt.Sprintf("failed to parse page: %v", err),
		}
	}

	seen := make(map[string]bool, len(page.Data))
	var ids []string
	for _, t := range page.Data {
		if t.ConversationID == "" || seen[t.ConversationID] {
			continue
		}
		seen[t.ConversationID] = true
		ids = append(ids, t.ConversationID)
	}
	return ids, nil
}
