package fakeapi

import (
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/tachikoma-bot/tachikoma/internal/protocol"
)

func get(t *testing.T, srv *httptest.Server, path string, q url.Values) string {
	t.Helper()
	resp, err := http.Post(srv.URL+path+"?"+q.Encode(), "application/x-www-form-urlencoded", nil)
	if err != nil {
		t.Fatalf("POST %s: %v", path, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return string(body)
}

func TestDeviceLoginIssuesGuestTokens(t *testing.T) {
	fake := New(Options{})
	srv := httptest.NewServer(fake)
	defer srv.Close()

	body := get(t, srv, "/UserService/DeviceLogin8", url.Values{"deviceKey": {"k"}, "deviceType": {"DeviceTypeAndroid"}})
	token, ok := protocol.Extract(body, "accessToken")
	if !ok || token != "access-1" {
		t.Fatalf("accessToken = %q (%v), body %s", token, ok, body)
	}
	res := protocol.Classify([]byte(body))
	if !res.OK() {
		t.Fatalf("login payload classified as %s", res.Outcome)
	}
	if got := res.Root.Find("User").AttrOr("Name", ""); got != "Guest" {
		t.Fatalf("Name = %q", got)
	}
}

func TestUnknownTokenIsRejected(t *testing.T) {
	fake := New(Options{})
	srv := httptest.NewServer(fake)
	defer srv.Close()

	body := get(t, srv, "/ShipService/GetShipByUserId", url.Values{"accessToken": {"nope"}})
	res := protocol.Classify([]byte(body))
	if !res.AuthExpired() {
		t.Fatalf("expected auth failure, got %s: %s", res.Outcome, body)
	}
}

func TestAuthorizeBindsTokenToAccount(t *testing.T) {
	fake := New(Options{RequireReload: true})
	acct := fake.AddAccount("a@b.com", "x", "Motoko")
	srv := httptest.NewServer(fake)
	defer srv.Close()

	login := get(t, srv, "/UserService/DeviceLogin8", url.Values{"deviceKey": {"k"}})
	token, _ := protocol.Extract(login, "accessToken")

	bad := get(t, srv, "/UserService/UserEmailPasswordAuthorize2", url.Values{
		"email": {"a@b.com"}, "password": {"wrong"}, "accessToken": {token},
	})
	if !strings.Contains(bad, "Email or password is incorrect") {
		t.Fatalf("bad password body = %s", bad)
	}

	good := get(t, srv, "/UserService/UserEmailPasswordAuthorize2", url.Values{
		"email": {"A@B.com"}, "password": {"x"}, "accessToken": {token},
	})
	if rt, _ := protocol.Extract(good, "refreshToken"); rt != acct.RefreshToken {
		t.Fatalf("refreshToken = %q, want %q", rt, acct.RefreshToken)
	}
	if !strings.Contains(good, `RequireReload="True"`) {
		t.Fatalf("RequireReload missing: %s", good)
	}

	relogin := get(t, srv, "/UserService/DeviceLogin8", url.Values{"refreshToken": {acct.RefreshToken}})
	if !strings.Contains(relogin, `Name="Motoko"`) || !strings.Contains(relogin, `Email="a@b.com"`) {
		t.Fatalf("refresh token login = %s", relogin)
	}
}

func TestScriptedRepliesComeFirst(t *testing.T) {
	fake := New(Options{})
	fake.Enqueue("/SettingService/GetLatestVersion3", Reply{Body: "<X/>"})
	fake.FailNext("/SettingService/GetLatestVersion3", http.StatusBadGateway, 1)
	srv := httptest.NewServer(fake)
	defer srv.Close()

	if body := get(t, srv, "/SettingService/GetLatestVersion3", nil); body != "<X/>" {
		t.Fatalf("first reply = %q", body)
	}
	resp, err := http.Get(srv.URL + "/SettingService/GetLatestVersion3")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadGateway {
		t.Fatalf("second status = %d", resp.StatusCode)
	}
	if body := get(t, srv, "/SettingService/GetLatestVersion3", nil); !strings.Contains(body, "RoomDesignVersion") {
		t.Fatalf("default reply = %q", body)
	}
	if n := fake.Count("/SettingService/GetLatestVersion3"); n != 3 {
		t.Fatalf("Count = %d, want 3", n)
	}
}

func TestStarbuxCapAndDailyReward(t *testing.T) {
	fake := New(Options{})
	srv := httptest.NewServer(fake)
	defer srv.Close()

	login := get(t, srv, "/UserService/DeviceLogin8", url.Values{"deviceKey": {"k"}})
	token, _ := protocol.Extract(login, "accessToken")

	for _, qty := range []string{"5", "5"} {
		body := get(t, srv, "/UserService/AddStarbux2", url.Values{"quantity": {qty}, "accessToken": {token}})
		if strings.Contains(body, "errorMessage") {
			t.Fatalf("AddStarbux %s rejected: %s", qty, body)
		}
	}
	over := get(t, srv, "/UserService/AddStarbux2", url.Values{"quantity": {"1"}, "accessToken": {token}})
	if !strings.Contains(over, "limit reached") {
		t.Fatalf("over cap body = %s", over)
	}
	if got := fake.FreeStarbux("g1"); got != 10 {
		t.Fatalf("FreeStarbux = %d", got)
	}

	first := get(t, srv, "/UserService/CollectDailyReward2", url.Values{"accessToken": {token}})
	second := get(t, srv, "/UserService/CollectDailyReward2", url.Values{"accessToken": {token}})
	if strings.Contains(first, "errorMessage") || !strings.Contains(second, protocol.MarkerAlreadyClaimed) {
		t.Fatalf("daily reward bodies: %s / %s", first, second)
	}
}

func TestExpireTokens(t *testing.T) {
	fake := New(Options{})
	srv := httptest.NewServer(fake)
	defer srv.Close()

	login := get(t, srv, "/UserService/DeviceLogin8", url.Values{"deviceKey": {"k"}})
	token, _ := protocol.Extract(login, "accessToken")
	fake.ExpireTokens()

	body := get(t, srv, "/UserService/HeartBeat4", url.Values{"accessToken": {token}})
	if !strings.Contains(body, protocol.MarkerAuthFailed) {
		t.Fatalf("expired token accepted: %s", body)
	}
	if got := fake.Paths(); len(got) != 2 || got[1] != "/UserService/HeartBeat4" {
		t.Fatalf("Paths = %v", got)
	}
}
