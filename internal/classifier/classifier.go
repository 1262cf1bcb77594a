// Package classifier decides what an upstream HTTP response means for the
// failover loop: success, failover (try the next key), or a fatal
// pass-through that must reach the client unchanged.
package classifier

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/dlclark/regexp2"
)

// Outcome is the three-way verdict the Request Router acts on.
type Outcome int

const (
	Success Outcome = iota
	Failover
	FatalPassThrough
)

func (o Outcome) String() string {
	switch o {
	case Success:
		return "success"
	case Failover:
		return "failover"
	default:
		return "fatal-pass-through"
	}
}

// Result is the full classification: the outcome plus everything the
// router needs if it has to surface this response to the client.
type Result struct {
	Outcome       Outcome
	QuotaRelated  bool
	IsHTML        bool
	IsCloudflare  bool
	StatusCode    int
	Body          []byte
}

var (
	quotaWords = regexp2.MustCompile(
		`积分不足|insufficient|invalid|unauthorized|quota|rate limit|credit|balance`,
		regexp2.IgnoreCase)
	quotaSubset = regexp2.MustCompile(
		`积分不足|quota|credit|balance`,
		regexp2.IgnoreCase)
	errorTypeWords = regexp2.MustCompile(
		`permission|insufficient|over_quota|billing`,
		regexp2.IgnoreCase)
	errorTypeQuotaSubset = regexp2.MustCompile(`billing`, regexp2.IgnoreCase)

	cloudflareMarker = regexp2.MustCompile(`cloudflare`, regexp2.IgnoreCase)
	cloudflareChallenge = regexp2.MustCompile(`just a moment|__cf_chl_opt`, regexp2.IgnoreCase)
)

func matches(re *regexp2.Regexp, s string) bool {
	if s == "" {
		return false
	}
	ok, _ := re.MatchString(s)
	return ok
}

type errorBody struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// Classify inspects status and body per spec.md §4.4's decision table.
func Classify(statusCode int, body []byte) Result {
	res := Result{StatusCode: statusCode, Body: body}

	switch {
	case statusCode >= 200 && statusCode <= 299:
		res.Outcome = Success
		return res

	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden:
		res.Outcome = Failover
		return res

	case statusCode >= 500:
		res.Outcome = Failover
		if looksLikeHTML(body) {
			res.IsHTML = true
			if matches(cloudflareMarker, string(body)) && matches(cloudflareChallenge, string(body)) {
				res.IsCloudflare = true
			}
		}
		return res

	case statusCode == http.StatusBadRequest:
		var parsed errorBody
		if err := json.Unmarshal(body, &parsed); err == nil {
			msgHit := matches(quotaWords, parsed.Error.Message)
			typeHit := matches(errorTypeWords, parsed.Error.Type)

			if msgHit || typeHit {
				res.Outcome = Failover
				res.QuotaRelated = matches(quotaSubset, parsed.Error.Message) || matches(errorTypeQuotaSubset, parsed.Error.Type)
				return res
			}
		}
		res.Outcome = FatalPassThrough
		return res

	default:
		res.Outcome = FatalPassThrough
		return res
	}
}

func looksLikeHTML(body []byte) bool {
	trimmed := strings.TrimSpace(string(body))
	lower := strings.ToLower(trimmed)
	return strings.HasPrefix(lower, "<!doctype html") || strings.HasPrefix(lower, "<html")
}
