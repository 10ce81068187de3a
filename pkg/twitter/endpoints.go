package twitter

import (
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"

	errs "tweetharvest/pkg/errors"
	"tweetharvest/pkg/ratelimit"
)

const (
	// SearchAllPath is the full-archive search endpoint
	SearchAllPath = "/tweets/search/all"

	// UserTweetsPath is the per-account timeline endpoint; {id} is replaced by the key
	UserTweetsPath = "/users/{id}/tweets"

	// UsersByPath resolves handles to account objects
	UsersByPath = "/users/by"

	// TimelinePageCap is how many timeline pages the API will serve for one account
	TimelinePageCap = 32

	// MaxLookupBatch is the most handles one lookup request may carry
	MaxLookupBatch = 100
)

const (
	tweetFields = "attachments,author_id,conversation_id,created_at,entities,geo,id,in_reply_to_user_id,lang,possibly_sensitive,public_metrics,referenced_tweets,reply_settings,source,text,withheld"
	expansions  = "attachments.poll_ids,attachments.media_keys,author_id,geo.place_id,in_reply_to_user_id,referenced_tweets.id,entities.mentions.username,referenced_tweets.id.author_id"
	mediaFields = "duration_ms,height,media_key,preview_image_url,type,url,width,public_metrics,alt_text"
	placeFields = "contained_within,country,country_code,full_name,geo,id,name,place_type"
	pollFields  = "duration_minutes,end_datetime,id,options,voting_status"
	userFields  = "created_at,description,entities,id,location,name,pinned_tweet_id,profile_image_url,protected,public_metrics,url,username,verified,withheld"

	// archiveStart is the earliest start_time full-archive search accepts
	archiveStart = "2006-03-21T00:00:00Z"
)

// Endpoint describes the parameter contract of one paginated endpoint
type Endpoint struct {
	Name  string
	Class ratelimit.Class
	// PathTemplate may contain {id}, replaced by the escaped query key
	PathTemplate string
	// TokenParam is the request parameter that carries the continuation token
	TokenParam string
	// MaxPages caps successful pages per key; zero means unlimited
	MaxPages int
	// KeyParam names the parameter the key is written to; empty when the key lives in the path
	KeyParam string
	// KeyFormat renders the key into KeyParam
	KeyFormat string
	// MinResults and MaxResults bound max_results; equal values demand that exact value
	MinResults int
	MaxResults int
}

var endpoints = map[string]Endpoint{
	"search": {
		Name:         "search",
		Class:        ratelimit.ClassSearch,
		PathTemplate: SearchAllPath,
		TokenParam:   "next_token",
		KeyParam:     "query",
		KeyFormat:    "%s",
		MinResults:   10,
		MaxResults:   500,
	},
	"conversation": {
		Name:         "conversation",
		Class:        ratelimit.ClassSearch,
		PathTemplate: SearchAllPath,
		TokenParam:   "next_token",
		KeyParam:     "query",
		KeyFormat:    "conversation_id:%s",
		MinResults:   500,
		MaxResults:   500,
	},
	"timeline": {
		Name:         "timeline",
		Class:        ratelimit.ClassTimeline,
		PathTemplate: UserTweetsPath,
		TokenParam:   "pagination_token",
		MaxPages:     TimelinePageCap,
		MinResults:   100,
		MaxResults:   100,
	},
}

// LookupEndpoint returns the contract registered under name
func LookupEndpoint(name string) (Endpoint, error) {
	ep, ok := endpoints[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return Endpoint{}, &errs.Error{
			Type:    errs.ErrorTypeConfig,
			Message: fmt.Sprintf("unknown endpoint %q (want one of %s)", name, strings.Join(EndpointNames(), ", ")),
		}
	}
	return ep, nil
}

// EndpointNames lists the registered endpoint names
func EndpointNames() []string {
	names := make([]string, 0, len(endpoints))
	for name := range endpoints {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Path returns the request path for key
func (e Endpoint) Path(key string) string {
	return strings.ReplaceAll(e.PathTemplate, "{id}", url.PathEscape(key))
}

// DefaultParams returns the base parameters used when none are configured
func (e Endpoint) DefaultParams() Params {
	p := NewParams(
		"max_results", strconv.Itoa(e.MaxResults),
		"tweet.fields", tweetFields,
		"expansions", expansions,
		"media.fields", mediaFields,
		"place.fields", placeFields,
		"poll.fields", pollFields,
		"user.fields", userFields,
	)
	if e.Class == ratelimit.ClassSearch {
		p = p.With("start_time", archiveStart)
	}
	return p
}

// QueryParams returns the first-page parameters for key: base with the key
// applied and any continuation token removed.
func (e Endpoint) QueryParams(key string, base Params) Params {
	p := base.Without(e.TokenParam)
	if e.KeyParam != "" {
		p = p.With(e.KeyParam, fmt.Sprintf(e.KeyFormat, key))
	}
	return p
}

// Validate checks base against the endpoint's parameter contract
func (e Endpoint) Validate(base Params) error {
	raw, ok := base.Get("max_results")
	if !ok {
		return e.contractError("max_results is required")
	}
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return e.contractError(fmt.Sprintf("max_results %q is not an integer", raw))
	}
	if e.MinResults == e.MaxResults && n != e.MaxResults {
		return e.contractError(fmt.Sprintf("max_results must be exactly %d, got %d", e.MaxResults, n))
	}
	if n < e.MinResults || n > e.MaxResults {
		return e.contractError(fmt.Sprintf("max_results must be between %d and %d, got %d", e.MinResults, e.MaxResults, n))
	}
	if base.Has(e.TokenParam) {
		return e.contractError(fmt.Sprintf("%s must not be set in base parameters", e.TokenParam))
	}
	if e.KeyParam != "" && base.Has(e.KeyParam) {
		return e.contractError(fmt.Sprintf("%s is derived from the query key and must not be set", e.KeyParam))
	}
	return nil
}

// ValidateKey checks that key can be used with this endpoint
func (e Endpoint) ValidateKey(key string) error {
	if strings.TrimSpace(key) == "" {
		return e.contractError("empty query key")
	}
	if e.KeyParam == "" && !IsNumericID(key) {
		return e.contractError(fmt.Sprintf("key %q is not a numeric account id", key))
	}
	return nil
}

func (e Endpoint) contractError(msg string) error {
	return &errs.Error{
		Type:    errs.ErrorTypeConfig,
		Message: fmt.Sprintf("%s endpoint: %s", e.Name, msg),
	}
}

// IsNumericID reports whether s is a non-empty string of digits
func IsNumericID(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// IsValidHandle checks if a handle is valid according to the platform's rules
func IsValidHandle(handle string) bool {
	if handle == "" || len(handle) > 15 {
		return false
	}

	// Handles can only contain letters, numbers and underscores
	for _, char := range handle {
		if !((char >= 'a' && char <= 'z') ||
			(char >= 'A' && char <= 'Z') ||
			(char >= '0' && char <= '9') ||
			char == '_') {
			return false
		}
	}

	return true
}

// SanitizeHandle strips a leading @, a profile URL prefix and surrounding space
func SanitizeHandle(handle string) string {
	handle = strings.TrimSpace(handle)
	for _, prefix := range []string{"https://twitter.com/", "https://x.com/", "http://twitter.com/", "http://x.com/"} {
		handle = strings.TrimPrefix(handle, prefix)
	}
	handle = strings.TrimPrefix(handle, "@")
	handle = strings.TrimRight(handle, "/ ")
	return handle
}
