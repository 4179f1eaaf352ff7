package protocol

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/samber/lo"
)

// Endpoint names one service method of the game API.
type Endpoint struct {
	Service string
	Method  string
}

var (
	DeviceLogin             = Endpoint{"UserService", "DeviceLogin8"}
	EmailPasswordAuthorize  = Endpoint{"UserService", "UserEmailPasswordAuthorize2"}
	HeartBeat               = Endpoint{"UserService", "HeartBeat4"}
	AddStarbux              = Endpoint{"UserService", "AddStarbux2"}
	CollectDailyReward      = Endpoint{"UserService", "CollectDailyReward2"}
	GetLatestVersion        = Endpoint{"SettingService", "GetLatestVersion3"}
	GetTodayLiveOps         = Endpoint{"LiveOpsService", "GetTodayLiveOps2"}
	GetShipByUserID         = Endpoint{"ShipService", "GetShipByUserId"}
	ListAllCharactersOfUser = Endpoint{"CharacterService", "ListAllCharactersOfUser"}
	CollectAllResources     = Endpoint{"RoomService", "CollectAllResources"}
	UpgradeRoom             = Endpoint{"RoomService", "UpgradeRoom2"}
	ListSystemMessages      = Endpoint{"MessageService", "ListSystemMessagesForUser3"}
	CollectReward           = Endpoint{"MessageService", "CollectReward2"}
	ListAllTaskDesigns      = Endpoint{"TaskService", "ListAllTaskDesigns2"}
	ListTasksOfAUser        = Endpoint{"TaskService", "ListTasksOfAUser"}
	CollectTaskCompletion   = Endpoint{"TaskService", "CollectTaskCompletion"}
	FinishTraining          = Endpoint{"TrainingService", "FinishTraining"}
	AddResearch             = Endpoint{"ResearchService", "AddResearch"}
)

// ParseEndpoint reads "Service/Method", with or without a leading slash.
func ParseEndpoint(s string) (Endpoint, error) {
	parts := strings.Split(strings.Trim(s, "/"), "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return Endpoint{}, fmt.Errorf("endpoint must look like Service/Method, got %q", s)
	}
	return Endpoint{Service: parts[0], Method: parts[1]}, nil
}

// Path returns "/Service/Method".
func (e Endpoint) Path() string {
	return "/" + e.Service + "/" + e.Method
}

func (e Endpoint) String() string {
	return e.Service + "/" + e.Method
}

// URL joins base, the endpoint path and an encoded query.
func (e Endpoint) URL(base string, q *Query) string {
	u := strings.TrimRight(base, "/") + e.Path()
	if q == nil || q.Len() == 0 {
		return u
	}
	return u + "?" + q.Encode()
}

// Query is an ordered query string. The server reads parameters by name, but
// keeping insertion order makes logged URLs match the order callers wrote.
type Query struct {
	keys   []string
	values []string
}

func NewQuery() *Query {
	return &Query{}
}

// Set appends or replaces key.
func (q *Query) Set(key, value string) *Query {
	if _, i, ok := lo.FindIndexOf(q.keys, func(k string) bool { return k == key }); ok {
		q.values[i] = value
		return q
	}
	q.keys = append(q.keys, key)
	q.values = append(q.values, value)
	return q
}

// Get returns the value of key.
func (q *Query) Get(key string) (string, bool) {
	_, i, ok := lo.FindIndexOf(q.keys, func(k string) bool { return k == key })
	if !ok {
		return "", false
	}
	return q.values[i], true
}

func (q *Query) Len() int {
	return len(q.keys)
}

// Encode renders the query with each value escaped.
func (q *Query) Encode() string {
	var b strings.Builder
	for i, k := range q.keys {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(url.QueryEscape(k))
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(q.values[i]))
	}
	return b.String()
}

var secretParams = []string{"accessToken", "refreshToken", "password", "checksum"}

// RedactURL masks secret query parameters so URLs can be logged.
func RedactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.RawQuery == "" {
		return raw
	}
	parts := strings.Split(u.RawQuery, "&")
	for i, p := range parts {
		key, _, found := strings.Cut(p, "=")
		if found && lo.Contains(secretParams, key) {
			parts[i] = key + "=REDACTED"
		}
	}
	u.RawQuery = strings.Join(parts, "&")
	return u.String()
}
