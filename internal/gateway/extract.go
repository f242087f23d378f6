package gateway

import "github.com/tidwall/gjson"

// suggestedPaths lists the known locations of the compressed text within
// the upstream payload, nested shape first. Older deployments wrap the
// response under "results", newer ones return it flat, and some revisions
// name the field "compressed" instead of "suggested". Both shapes are
// permanently supported.
var suggestedPaths = []string{
	"results.response.texts.suggested",
	"response.texts.suggested",
	"results.response.texts.compressed",
	"response.texts.compressed",
	"compressed",
}

// extractSuggestedText walks the known paths and returns the first string
// hit. A payload with no recognizable text path returns ok=false; callers
// must treat that as a hard failure, never as an empty result.
func extractSuggestedText(body []byte) (string, bool) {
	for _, path := range suggestedPaths {
		if v := gjson.GetBytes(body, path); v.Type == gjson.String {
			return v.String(), true
		}
	}
	return "", false
}
