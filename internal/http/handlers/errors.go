package handlers

// Client-facing messages. Clients match on these strings, so they are fixed.
const (
	MsgMissingURL        = `Missing "url" parameter`
	MsgInvalidURL        = "Invalid Reddit URL"
	MsgMissingSubreddit  = `Missing "subreddit" parameter`
	MsgInvalidSubreddit  = "Invalid subreddit name"
	MsgThreadFailed      = "Failed to fetch Reddit thread"
	MsgSearchFailed      = "Failed to search Reddit"
	MsgNotFound          = "Not found"
	MsgMethodNotAllowed  = "Method not allowed"
	MsgRateLimited       = "Rate limit exceeded"
	MsgInternal          = "Internal server error"
	upstreamErrorMessage = "Reddit API error: %d %s"
	invalidSortMessage   = "Invalid sort parameter. Allowed: %s"
)
