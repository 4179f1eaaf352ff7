package game

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/tachikoma-bot/tachikoma/internal/clock"
	"github.com/tachikoma-bot/tachikoma/internal/device"
	apperrors "github.com/tachikoma-bot/tachikoma/internal/errors"
	"github.com/tachikoma-bot/tachikoma/internal/fakeapi"
	"github.com/tachikoma-bot/tachikoma/internal/logging"
	"github.com/tachikoma-bot/tachikoma/internal/protocol"
	"github.com/tachikoma-bot/tachikoma/internal/session"
	"github.com/tachikoma-bot/tachikoma/internal/transport"
)

const (
	addStarbuxPath  = "/UserService/AddStarbux2"
	dailyRewardPath = "/UserService/CollectDailyReward2"
	deviceLoginPath = "/UserService/DeviceLogin8"
)

// largest always picks the biggest allowed quantity.
func largest(n int) int { return n - 1 }

func newService(t *testing.T, fake *fakeapi.Server, refreshToken string, opts Options) (*Service, *clock.Fake) {
	t.Helper()
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	fc := clock.NewFake(time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC))
	log := logging.NewWithWriter(io.Discard, logging.DefaultConfig())
	tr := transport.New(transport.Options{
		Clock:   fc,
		Limiter: transport.NewRateLimiter(1000, time.Minute, fc),
		Retry:   transport.RetryPolicy{MaxAttempts: 1},
		Logger:  log,
	})
	sess := session.New(device.New("en", refreshToken), session.Options{
		BaseURL:   srv.URL,
		Transport: tr,
		Time:      clock.NewSource(fc, 0),
		Logger:    log,
	})
	if err := sess.Login(context.Background(), "", ""); err != nil {
		t.Fatalf("Login: %v", err)
	}
	if opts.Intn == nil {
		opts.Intn = largest
	}
	opts.Logger = log
	return New(sess, opts), fc
}

func TestGrabFlyingStarbuxHonoursCooldownAndCap(t *testing.T) {
	fake := fakeapi.New(fakeapi.Options{VerifyChecksums: true})
	svc, fc := newService(t, fake, "", Options{StarbuxMax: 7})
	ctx := context.Background()

	ok, err := svc.GrabFlyingStarbux(ctx)
	if !ok || err != nil {
		t.Fatalf("first grab: ok=%v err=%v", ok, err)
	}
	if ok, _ := svc.GrabFlyingStarbux(ctx); ok {
		t.Fatal("grab inside the cooldown called the server")
	}

	fc.Advance(DefaultStarbuxCooldown + time.Second)
	if ok, err := svc.GrabFlyingStarbux(ctx); !ok || err != nil {
		t.Fatalf("second grab: ok=%v err=%v", ok, err)
	}
	if !svc.StarbuxDone() {
		t.Fatal("cap not reached after 7 starbux")
	}

	fc.Advance(DefaultStarbuxCooldown + time.Second)
	if ok, _ := svc.GrabFlyingStarbux(ctx); ok {
		t.Fatal("grab past the cap called the server")
	}

	calls := fake.CallsTo(addStarbuxPath)
	if len(calls) != 2 {
		t.Fatalf("AddStarbux calls = %d, want 2", len(calls))
	}
	if calls[0].Query.Get("quantity") != "5" || calls[1].Query.Get("quantity") != "2" {
		t.Fatalf("quantities = %s, %s", calls[0].Query.Get("quantity"), calls[1].Query.Get("quantity"))
	}
	u, _ := svc.Session().User()
	if u.FreeStarbuxToday != 7 || u.Credits != 107 {
		t.Fatalf("user = %+v", u)
	}
}

func TestQuantityIsBoundedByRemainingCap(t *testing.T) {
	fake := fakeapi.New(fakeapi.Options{})
	var bounds []int
	svc, fc := newService(t, fake, "", Options{
		StarbuxMax: 8,
		Intn: func(n int) int {
			bounds = append(bounds, n)
			return n - 1
		},
	})
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		svc.GrabFlyingStarbux(ctx)
		fc.Advance(DefaultStarbuxCooldown)
	}
	if len(bounds) != 2 || bounds[0] != 5 || bounds[1] != 3 {
		t.Fatalf("quantity bounds = %v, want [5 3]", bounds)
	}
	if got := fake.FreeStarbux("g1"); got != 8 {
		t.Fatalf("server free starbux = %d, want 8", got)
	}
}

func TestGrabFlyingStarbuxReloadsOnEmptyReply(t *testing.T) {
	fake := fakeapi.New(fakeapi.Options{})
	fake.Enqueue(addStarbuxPath, fakeapi.Reply{Body: "<html>maintenance</html>"})
	svc, _ := newService(t, fake, "", Options{})

	ok, err := svc.GrabFlyingStarbux(context.Background())
	if ok || apperrors.KindOf(err) != apperrors.KindMalformed {
		t.Fatalf("ok=%v err=%v", ok, err)
	}
	if n := fake.Count(deviceLoginPath); n != 2 {
		t.Fatalf("device logins = %d, want 2", n)
	}
}

func TestFailedGrabKeepsCooldownClear(t *testing.T) {
	fake := fakeapi.New(fakeapi.Options{})
	fake.FailNext(addStarbuxPath, http.StatusServiceUnavailable, 1)
	svc, _ := newService(t, fake, "", Options{})
	ctx := context.Background()

	if ok, err := svc.GrabFlyingStarbux(ctx); ok || !apperrors.IsTransport(err) {
		t.Fatalf("ok=%v err=%v", ok, err)
	}
	if wait := svc.StarbuxReadyIn(); wait != 0 {
		t.Fatalf("cooldown %s after a failed claim", wait)
	}
	if ok, err := svc.GrabFlyingStarbux(ctx); !ok || err != nil {
		t.Fatalf("retry: ok=%v err=%v", ok, err)
	}
	if svc.StarbuxReadyIn() != DefaultStarbuxCooldown {
		t.Fatalf("cooldown = %s after a claim", svc.StarbuxReadyIn())
	}
}

func TestAddStarbuxSurvivesExpiredToken(t *testing.T) {
	fake := fakeapi.New(fakeapi.Options{VerifyChecksums: true})
	svc, _ := newService(t, fake, "", Options{})
	fake.ExpireTokens()

	total, err := svc.AddStarbux(context.Background(), 3)
	if err != nil || total != 3 {
		t.Fatalf("total=%d err=%v", total, err)
	}
	if n := fake.Count(addStarbuxPath); n != 2 {
		t.Fatalf("AddStarbux calls = %d, want 2", n)
	}
}

func TestCollectDailyReward(t *testing.T) {
	fake := fakeapi.New(fakeapi.Options{})
	acct := fake.AddAccount("a@b.com", "x", "Motoko")
	svc, _ := newService(t, fake, acct.RefreshToken, Options{})
	ctx := context.Background()

	got, err := svc.CollectDailyReward(ctx)
	if !got || err != nil {
		t.Fatalf("first collect: %v %v", got, err)
	}
	if arg := fake.CallsTo(dailyRewardPath)[0].Query.Get("argument"); arg != "500" {
		t.Fatalf("argument = %q", arg)
	}
	if got, err := svc.CollectDailyReward(ctx); got || err != nil {
		t.Fatalf("second collect: %v %v", got, err)
	}
	if n := fake.Count(dailyRewardPath); n != 1 {
		t.Fatalf("daily reward calls = %d, want 1", n)
	}
	if !svc.State().DailyCollected {
		t.Fatal("state not marked collected")
	}
}

func TestDailyRewardAlreadyCollected(t *testing.T) {
	fake := fakeapi.New(fakeapi.Options{})
	acct := fake.AddAccount("a@b.com", "x", "Motoko")
	fake.Enqueue(dailyRewardPath, fakeapi.Reply{Body: fakeapi.ErrorXML("UserService", "CollectDailyReward", protocol.MarkerAlreadyClaimed, "")})
	svc, _ := newService(t, fake, acct.RefreshToken, Options{})

	got, err := svc.CollectDailyReward(context.Background())
	if got || err != nil {
		t.Fatalf("got=%v err=%v", got, err)
	}
	if !svc.State().DailyCollected {
		t.Fatal("already collected reply did not mark the state")
	}
}

func TestGuestSkipsDailyReward(t *testing.T) {
	fake := fakeapi.New(fakeapi.Options{})
	svc, _ := newService(t, fake, "", Options{})

	if got, err := svc.CollectDailyReward(context.Background()); got || err != nil {
		t.Fatalf("got=%v err=%v", got, err)
	}
	if fake.Count(dailyRewardPath) != 0 {
		t.Fatal("guest claimed the daily reward")
	}
}

func TestCollectMessagesSkipsResources(t *testing.T) {
	fake := fakeapi.New(fakeapi.Options{VerifyChecksums: true})
	svc, _ := newService(t, fake, "", Options{})

	n, err := svc.CollectMessages(context.Background())
	if err != nil || n != 2 {
		t.Fatalf("claimed=%d err=%v", n, err)
	}
	var ids []string
	for _, c := range fake.CallsTo("/MessageService/CollectReward2") {
		ids = append(ids, c.Query.Get("messageId"))
	}
	if len(ids) != 2 || ids[0] != "1" || ids[1] != "3" {
		t.Fatalf("claimed messages = %v", ids)
	}
}

func TestCollectTaskRewards(t *testing.T) {
	fake := fakeapi.New(fakeapi.Options{})
	svc, _ := newService(t, fake, "", Options{})
	ctx := context.Background()

	n, err := svc.CollectTaskRewards(ctx)
	if err != nil || n != 1 {
		t.Fatalf("claimed=%d err=%v", n, err)
	}
	calls := fake.CallsTo("/TaskService/CollectTaskCompletion")
	if len(calls) != 1 || calls[0].Query.Get("taskDesignId") != "1" {
		t.Fatalf("task claims = %+v", calls)
	}
	if v := fake.CallsTo("/TaskService/ListAllTaskDesigns2")[0].Query.Get("designVersion"); v != "12" {
		t.Fatalf("designVersion = %q", v)
	}
	if n, _ := svc.CollectTaskRewards(ctx); n != 0 {
		t.Fatalf("collected task claimed again: %d", n)
	}
}

func TestCollectAllResources(t *testing.T) {
	fake := fakeapi.New(fakeapi.Options{})
	svc, fc := newService(t, fake, "", Options{})

	res, err := svc.CollectAllResources(context.Background())
	if err != nil {
		t.Fatalf("CollectAllResources: %v", err)
	}
	if res.Minerals != 1200 || res.Gas != 800 || res.Credits != 100 {
		t.Fatalf("resources = %+v", res)
	}
	st := svc.State()
	if st.Minerals != 1200 || st.Gas != 800 || !st.ResourcesAt.Equal(fc.Now()) {
		t.Fatalf("state = %+v", st)
	}
	if q := fake.CallsTo("/RoomService/CollectAllResources")[0].Query; q.Get("itemType") != "None" || q.Get("collectDate") == "" {
		t.Fatalf("query = %v", q)
	}
}

func TestGetShipAndCrew(t *testing.T) {
	fake := fakeapi.New(fakeapi.Options{})
	svc, _ := newService(t, fake, "", Options{})
	ctx := context.Background()

	ship, err := svc.GetShip(ctx)
	if err != nil {
		t.Fatalf("GetShip: %v", err)
	}
	if ship.Name != "Tachikoma" || len(ship.Rooms) != 2 || ship.Rooms[1].Status != "Upgrading" {
		t.Fatalf("ship = %+v", ship)
	}
	if uid := fake.CallsTo("/ShipService/GetShipByUserId")[0].Query.Get("userId"); uid != "g1" {
		t.Fatalf("userId = %q", uid)
	}

	crew, err := svc.ListCharacters(ctx)
	if err != nil || len(crew) != 2 || crew[0].Name != "Batou" {
		t.Fatalf("crew = %+v err=%v", crew, err)
	}
	if crew[0].TrainingEndDate.Year() != 2000 || !crew[1].TrainingEndDate.IsZero() {
		t.Fatalf("training dates = %v / %v", crew[0].TrainingEndDate, crew[1].TrainingEndDate)
	}
}

func TestApplicationErrorsSurface(t *testing.T) {
	fake := fakeapi.New(fakeapi.Options{})
	fake.Enqueue("/RoomService/UpgradeRoom2", fakeapi.Reply{Body: fakeapi.ErrorXML("RoomService", "UpgradeRoom", "Too many concurrent constructions", "")})
	fake.Enqueue("/TrainingService/FinishTraining", fakeapi.Reply{Body: fakeapi.ErrorXML("TrainingService", "FinishTraining", "Not training", "12")})
	svc, _ := newService(t, fake, "", Options{})
	ctx := context.Background()

	if err := svc.UpgradeRoom(ctx, "1", "11"); !apperrors.IsApplication(err) {
		t.Fatalf("UpgradeRoom err = %v", err)
	}
	err := svc.FinishTraining(ctx, "5")
	var e *apperrors.Error
	if !apperrors.As(err, &e) || e.Code != "12" {
		t.Fatalf("FinishTraining err = %v", err)
	}
	if err := svc.AddResearch(ctx, "3"); err != nil {
		t.Fatalf("AddResearch: %v", err)
	}
	if q := fake.CallsTo("/ResearchService/AddResearch")[0].Query; q.Get("researchStartDate") != "2024-05-06T07:08:09" {
		t.Fatalf("research query = %v", q)
	}
}

func TestMessageReward(t *testing.T) {
	tests := []struct {
		arg         string
		kind, amt   string
		collectable bool
	}{
		{"starbux:5", "starbux", "5", true},
		{"mineral:100", "mineral", "100", true},
		{"None", "", "", false},
		{"", "", "", false},
	}
	for _, tt := range tests {
		kind, amt, ok := Message{Argument: tt.arg}.Reward()
		if kind != tt.kind || amt != tt.amt || ok != tt.collectable {
			t.Errorf("Reward(%q) = %q %q %v", tt.arg, kind, amt, ok)
		}
	}
}
