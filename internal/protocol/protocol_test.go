package protocol

import (
	"strings"
	"testing"
)

const loginBody = `<UserService><UserLogin UserId="42" accessToken="AT-1"><User Id="42" Name="Major" LastHeartBeatDate="2024-01-02T03:04:05" Credits="120" DailyRewardStatus="0" FreeStarbuxReceivedToday="3"/></UserLogin></UserService>`

func TestParseTree(t *testing.T) {
	root, err := Parse([]byte(loginBody))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if root.Name != "UserService" {
		t.Fatalf("root = %s", root.Name)
	}
	user := root.Path("UserLogin", "User")
	if user == nil {
		t.Fatal("UserLogin/User not found")
	}
	if user.AttrOr("Name", "") != "Major" {
		t.Fatalf("Name = %q", user.AttrOr("Name", ""))
	}
	if n, ok := user.Int("Credits"); !ok || n != 120 {
		t.Fatalf("Credits = %d, %v", n, ok)
	}
	if _, ok := user.Int("Missing"); ok {
		t.Fatal("missing attribute reported present")
	}
	if root.Find("User") != user {
		t.Fatal("Find did not return the same node as Path")
	}
	if root.Path("UserLogin", "Nope", "User") != nil {
		t.Fatal("Path through a missing child should be nil")
	}
}

func TestParseRejectsNonXML(t *testing.T) {
	for _, body := range []string{"", "Service Unavailable", "<a><b></a>"} {
		if _, err := Parse([]byte(body)); err == nil {
			t.Errorf("Parse(%q) succeeded", body)
		}
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		outcome Outcome
		kind    ErrorKind
		message string
	}{
		{"ok", loginBody, OutcomeOK, ErrorNone, ""},
		{
			"application error",
			`<UserService><AddStarbux errorMessage="Not enough gas" errorCode="12"/></UserService>`,
			OutcomeErrorMarker, ErrorApplication, "Not enough gas",
		},
		{
			"auth expired",
			`<UserService><HeartBeat errorMessage="Failed to authorize access token"/></UserService>`,
			OutcomeErrorMarker, ErrorAuthExpired, MarkerAuthFailed,
		},
		{
			"marker in unparseable body",
			`oops errorMessage="Broken" <x`,
			OutcomeErrorMarker, ErrorApplication, "Broken",
		},
		{"malformed", "Service Unavailable", OutcomeMalformed, ErrorNone, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := Classify([]byte(tt.body))
			if r.Outcome != tt.outcome || r.Error != tt.kind || r.Message != tt.message {
				t.Fatalf("Classify = %v/%q/%q, want %v/%q/%q",
					r.Outcome, r.Error, r.Message, tt.outcome, tt.kind, tt.message)
			}
			if r.Raw != tt.body {
				t.Fatal("raw body not preserved")
			}
		})
	}
}

func TestClassifyKeepsCode(t *testing.T) {
	r := Classify([]byte(`<S><X errorCode="7"/></S>`))
	if r.Outcome != OutcomeErrorMarker || r.Code != "7" {
		t.Fatalf("Classify = %+v", r)
	}
}

func TestExtract(t *testing.T) {
	body := `<UserService><UserLogin accessToken="abc-123" refreshToken="R1" RequireReload="True"/></UserService>`
	if v, ok := Extract(body, "accessToken"); !ok || v != "abc-123" {
		t.Fatalf("accessToken = %q, %v", v, ok)
	}
	if v, ok := Extract(body, "refreshToken"); !ok || v != "R1" {
		t.Fatalf("refreshToken = %q, %v", v, ok)
	}
	if _, ok := Extract(body, "email"); ok {
		t.Fatal("absent marker extracted")
	}
	if _, ok := Extract(`accessToken="unterminated`, "accessToken"); ok {
		t.Fatal("unterminated marker extracted")
	}
	if !strings.Contains(body, MarkerRequireReload) {
		t.Fatal("RequireReload marker mismatch")
	}
}

func TestEndpointURL(t *testing.T) {
	q := NewQuery().
		Set("deviceKey", "k").
		Set("advertisingKey", "").
		Set("email", "a+b@c.com").
		Set("deviceKey", "k2")
	got := DeviceLogin.URL("https://api.example.com/", q)
	want := "https://api.example.com/UserService/DeviceLogin8?deviceKey=k2&advertisingKey=&email=a%2Bb%40c.com"
	if got != want {
		t.Fatalf("URL = %s\nwant  %s", got, want)
	}
	if v, ok := q.Get("email"); !ok || v != "a+b@c.com" {
		t.Fatalf("Get(email) = %q, %v", v, ok)
	}
	if HeartBeat.URL("http://x", nil) != "http://x/UserService/HeartBeat4" {
		t.Fatal("URL without query")
	}
}

func TestParseEndpoint(t *testing.T) {
	e, err := ParseEndpoint("/ShipService/GetShipByUserId")
	if err != nil || e != GetShipByUserID {
		t.Fatalf("ParseEndpoint = %v, %v", e, err)
	}
	for _, bad := range []string{"", "OnlyService", "a/b/c", "/x/"} {
		if _, err := ParseEndpoint(bad); err == nil {
			t.Errorf("ParseEndpoint(%q) succeeded", bad)
		}
	}
}

func TestRedactURL(t *testing.T) {
	in := "https://h/UserService/HeartBeat4?clientDateTime=2024-01-01T00%3A00%3A00&checksum=abc&accessToken=secret&refreshToken=r&password=p"
	out := RedactURL(in)
	for _, secret := range []string{"abc", "secret", "refreshToken=r", "password=p"} {
		if strings.Contains(out, secret) {
			t.Errorf("RedactURL left %q in %s", secret, out)
		}
	}
	if !strings.Contains(out, "clientDateTime=2024-01-01T00%3A00%3A00") {
		t.Errorf("RedactURL altered non-secret params: %s", out)
	}
}
