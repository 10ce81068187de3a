package twitter

import "encoding/json"

// Response is the envelope returned by the v2 tweet endpoints.
// Records are kept raw so artifacts can be written byte for byte.
type Response struct {
	Data     []json.RawMessage `json:"data"`
	Includes json.RawMessage   `json:"includes,omitempty"`
	Meta     *Meta             `json:"meta"`
	Errors   []APIError        `json:"errors,omitempty"`
}

// Meta carries pagination information
type Meta struct {
	ResultCount int    `json:"result_count"`
	NextToken   string `json:"next_token,omitempty"`
	NewestID    string `json:"newest_id,omitempty"`
	OldestID    string `json:"oldest_id,omitempty"`
}

// APIError is a partial error reported inside a 200 response
type APIError struct {
	Title  string `json:"title"`
	Detail string `json:"detail"`
	Type   string `json:"type"`
	Value  string `json:"value,omitempty"`
}

// User is the subset of a user object the harvester needs
type User struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Name     string `json:"name,omitempty"`
}

// UsersResponse is the envelope returned by the user lookup endpoint
type UsersResponse struct {
	Data   []User     `json:"data"`
	Errors []APIError `json:"errors,omitempty"`
}

// Tweet is the subset of a tweet object used for follow-up queries
type Tweet struct {
	ID             string `json:"id"`
	ConversationID string `json:"conversation_id,omitempty"`
	AuthorID       string `json:"author_id,omitempty"`
}
