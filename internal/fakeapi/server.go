// Package fakeapi is an in-process imitation of the game API. It keeps enough
// state to drive a whole session (device login, account authorize, token
// expiry, heartbeat, rewards) and lets tests script replies per path and
// inspect every call it received.
package fakeapi

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/samber/lo"

	"github.com/tachikoma-bot/tachikoma/internal/checksum"
	"github.com/tachikoma-bot/tachikoma/internal/clock"
	"github.com/tachikoma-bot/tachikoma/internal/logging"
)

// Call is one request the server received.
type Call struct {
	Method string
	Path   string
	Query  url.Values
}

// Reply is a scripted response.
type Reply struct {
	Status int
	Body   string
}

// Account is a registered player.
type Account struct {
	Email        string
	Password     string
	Name         string
	UserID       string
	RefreshToken string
}

// Options tune the fake. Zero values select defaults.
type Options struct {
	Checksum checksum.Engine
	// VerifyChecksums rejects requests whose checksum does not match.
	VerifyChecksums bool
	// RequireReload makes credential authorize responses ask for a reload.
	RequireReload bool
	// LastHeartBeat is reported in login payloads.
	LastHeartBeat time.Time
	Logger        *logging.Logger
}

// Server is the fake API. It implements http.Handler.
type Server struct {
	opts Options
	log  *logging.Logger

	mu       sync.Mutex
	scripted map[string][]Reply
	calls    []Call
	tokens   map[string]string // access token -> user id
	accounts []*Account
	guests   int
	issued   int
	players  map[string]*player
}

type player struct {
	name             string
	credits          int
	freeStarbux      int
	dailyCollected   bool
	rewardsCollected map[string]bool
	tasksCollected   map[string]bool
	heartbeats       int
}

// New returns a fake with no accounts.
func New(opts Options) *Server {
	if opts.LastHeartBeat.IsZero() {
		opts.LastHeartBeat = time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)
	}
	if opts.Logger == nil {
		opts.Logger = logging.GetGlobalLogger().WithComponent("fakeapi")
	}
	return &Server{
		opts:     opts,
		log:      opts.Logger,
		scripted: map[string][]Reply{},
		tokens:   map[string]string{},
		players:  map[string]*player{},
	}
}

// AddAccount registers an account and returns it.
func (s *Server) AddAccount(email, password, name string) *Account {
	s.mu.Lock()
	defer s.mu.Unlock()
	a := &Account{
		Email:        email,
		Password:     password,
		Name:         name,
		UserID:       fmt.Sprintf("%d", 1000+len(s.accounts)),
		RefreshToken: fmt.Sprintf("refresh-%d", len(s.accounts)+1),
	}
	s.accounts = append(s.accounts, a)
	s.players[a.UserID] = newPlayer(name)
	return a
}

func newPlayer(name string) *player {
	return &player{
		name:             name,
		credits:          100,
		rewardsCollected: map[string]bool{},
		tasksCollected:   map[string]bool{},
	}
}

// Enqueue scripts replies for path ("/Service/Method"). Scripted replies are
// served in order before the default behavior resumes.
func (s *Server) Enqueue(path string, replies ...Reply) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scripted[path] = append(s.scripted[path], replies...)
}

// FailNext makes the next n calls to path answer with status and no body.
func (s *Server) FailNext(path string, status, n int) {
	replies := make([]Reply, n)
	for i := range replies {
		replies[i] = Reply{Status: status}
	}
	s.Enqueue(path, replies...)
}

// ExpireTokens invalidates every access token issued so far.
func (s *Server) ExpireTokens() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens = map[string]string{}
}

// Calls returns every call received.
func (s *Server) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Call, len(s.calls))
	copy(out, s.calls)
	return out
}

// CallsTo returns the calls received on path.
func (s *Server) CallsTo(path string) []Call {
	return lo.Filter(s.Calls(), func(c Call, _ int) bool { return c.Path == path })
}

// Count returns how many calls path received.
func (s *Server) Count(path string) int {
	return len(s.CallsTo(path))
}

// Paths returns the called paths in order.
func (s *Server) Paths() []string {
	return lo.Map(s.Calls(), func(c Call, _ int) string { return c.Path })
}

// Heartbeats returns how many heartbeats the account user has sent.
func (s *Server) Heartbeats(userID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.players[userID]; ok {
		return p.heartbeats
	}
	return 0
}

// FreeStarbux returns the free starbux the user collected today.
func (s *Server) FreeStarbux(userID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.players[userID]; ok {
		return p.freeStarbux
	}
	return 0
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	call := Call{Method: r.Method, Path: r.URL.Path, Query: r.Form}

	s.mu.Lock()
	s.calls = append(s.calls, call)
	var reply *Reply
	if q := s.scripted[call.Path]; len(q) > 0 {
		reply = &q[0]
		s.scripted[call.Path] = q[1:]
	}
	s.mu.Unlock()

	s.log.Debug("Fake API call", "method", call.Method, "path", call.Path)

	if reply != nil {
		status := lo.Ternary(reply.Status == 0, http.StatusOK, reply.Status)
		w.WriteHeader(status)
		w.Write([]byte(reply.Body))
		return
	}

	status, body := s.route(call)
	w.Header().Set("Content-Type", "application/xml; charset=utf-8")
	w.WriteHeader(status)
	w.Write([]byte(body))
}

// route dispatches a call to the default behavior for its path.
func (s *Server) route(c Call) (int, string) {
	service, method, _ := strings.Cut(strings.TrimPrefix(c.Path, "/"), "/")
	switch c.Path {
	case "/UserService/DeviceLogin8":
		return s.deviceLogin(c)
	case "/UserService/UserEmailPasswordAuthorize2":
		return s.authorize(c)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	switch c.Path {
	case "/SettingService/GetLatestVersion3":
		return http.StatusOK, latestVersionXML
	case "/LiveOpsService/GetTodayLiveOps2":
		return http.StatusOK, liveOpsXML
	case "/TaskService/ListAllTaskDesigns2":
		return http.StatusOK, taskDesignsXML
	}

	userID, ok := s.tokens[c.Query.Get("accessToken")]
	if !ok {
		return http.StatusOK, ErrorXML(service, method, "Failed to authorize access token", "")
	}
	p := s.playerFor(userID)

	switch c.Path {
	case "/UserService/HeartBeat4":
		return s.heartbeat(c, p)
	case "/UserService/AddStarbux2":
		return s.addStarbux(c, p)
	case "/UserService/CollectDailyReward2":
		if p.dailyCollected {
			return http.StatusOK, ErrorXML(service, "CollectDailyReward", "You already collected this reward", "")
		}
		p.dailyCollected = true
		p.credits += 5
		return http.StatusOK, fmt.Sprintf(`<UserService><CollectDailyReward><User DailyRewardStatus="1" Credits="%d"/></CollectDailyReward></UserService>`, p.credits)
	case "/ShipService/GetShipByUserId":
		return http.StatusOK, shipXML
	case "/CharacterService/ListAllCharactersOfUser":
		return http.StatusOK, charactersXML
	case "/RoomService/CollectAllResources":
		return http.StatusOK, fmt.Sprintf(`<RoomService><CollectResources><Items><Item ItemType="Mineral" Quantity="1200"/><Item ItemType="Gas" Quantity="800"/></Items><User Credits="%d"/></CollectResources></RoomService>`, p.credits)
	case "/MessageService/ListSystemMessagesForUser3":
		return http.StatusOK, messagesXML
	case "/MessageService/CollectReward2":
		if !s.fresh(c.Query) {
			return http.StatusOK, ErrorXML(service, "CollectReward", "Invalid checksum", "1")
		}
		id := c.Query.Get("messageId")
		if p.rewardsCollected[id] {
			return http.StatusOK, ErrorXML(service, "CollectReward", "Reward already collected", "")
		}
		p.rewardsCollected[id] = true
		return http.StatusOK, fmt.Sprintf(`<MessageService><CollectReward><Message MessageId="%s"/></CollectReward></MessageService>`, id)
	case "/TaskService/ListTasksOfAUser":
		return http.StatusOK, tasksXML(p)
	case "/TaskService/CollectTaskCompletion":
		p.tasksCollected[c.Query.Get("taskDesignId")] = true
		return http.StatusOK, `<TaskService><CollectTaskCompletion success="true"/></TaskService>`
	}
	return http.StatusOK, genericOK(service, method)
}

// playerFor returns the state of userID, creating guest players on demand.
// The caller holds s.mu.
func (s *Server) playerFor(userID string) *player {
	p, ok := s.players[userID]
	if !ok {
		p = newPlayer("")
		s.players[userID] = p
	}
	return p
}

// issueToken mints a token for userID. The caller holds s.mu.
func (s *Server) issueToken(userID string) string {
	s.issued++
	token := fmt.Sprintf("access-%d", s.issued)
	s.tokens[token] = userID
	return token
}

func (s *Server) deviceLogin(c Call) (int, string) {
	q := c.Query
	deviceType := strings.TrimPrefix(q.Get("deviceType"), "DeviceType")
	if s.opts.VerifyChecksums && q.Get("checksum") != s.opts.Checksum.CreateDevice(q.Get("deviceKey"), deviceType) {
		return http.StatusOK, ErrorXML("UserService", "UserLogin", "Invalid checksum", "1")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var userID, name, email string
	if rt := q.Get("refreshToken"); rt != "" {
		a, ok := lo.Find(s.accounts, func(a *Account) bool { return a.RefreshToken == rt })
		if !ok {
			return http.StatusOK, ErrorXML("UserService", "UserLogin", "Invalid refresh token", "2")
		}
		userID, name, email = a.UserID, a.Name, a.Email
	} else {
		s.guests++
		userID = fmt.Sprintf("g%d", s.guests)
		name = "Guest"
	}
	p := s.playerFor(userID)
	token := s.issueToken(userID)
	return http.StatusOK, LoginXML(LoginData{
		UserID:        userID,
		Name:          name,
		Email:         email,
		AccessToken:   token,
		LastHeartBeat: s.opts.LastHeartBeat,
		Credits:       p.credits,
		FreeStarbux:   p.freeStarbux,
	})
}

func (s *Server) authorize(c Call) (int, string) {
	q := c.Query
	s.mu.Lock()
	defer s.mu.Unlock()

	token := q.Get("accessToken")
	if _, ok := s.tokens[token]; !ok {
		return http.StatusOK, ErrorXML("UserService", "UserLogin", "Failed to authorize access token", "")
	}

	if rt := q.Get("refreshToken"); rt != "" {
		a, ok := lo.Find(s.accounts, func(a *Account) bool { return a.RefreshToken == rt })
		if !ok {
			return http.StatusOK, ErrorXML("UserService", "UserLogin", "Invalid refresh token", "2")
		}
		s.tokens[token] = a.UserID
		p := s.playerFor(a.UserID)
		return http.StatusOK, LoginXML(LoginData{
			UserID: a.UserID, Name: a.Name, Email: a.Email, AccessToken: token,
			LastHeartBeat: s.opts.LastHeartBeat, Credits: p.credits, FreeStarbux: p.freeStarbux,
		})
	}

	email := q.Get("email")
	if s.opts.VerifyChecksums {
		want := s.opts.Checksum.EmailAuthorize(q.Get("deviceKey"), email, q.Get("clientDateTime"), token, s.opts.Checksum.SaltValue())
		if q.Get("checksum") != want {
			return http.StatusOK, ErrorXML("UserService", "UserLogin", "Invalid checksum", "1")
		}
	}
	a, ok := lo.Find(s.accounts, func(a *Account) bool {
		return strings.EqualFold(a.Email, email) && a.Password == q.Get("password")
	})
	if !ok {
		return http.StatusOK, ErrorXML("UserService", "UserLogin", "Email or password is incorrect", "3")
	}
	s.tokens[token] = a.UserID
	return http.StatusOK, AuthorizeXML(a.RefreshToken, s.opts.RequireReload)
}

// fresh reports whether q carries a freshness checksum matching its
// clientDateTime and accessToken. It always holds unless VerifyChecksums is set.
func (s *Server) fresh(q url.Values) bool {
	if !s.opts.VerifyChecksums {
		return true
	}
	ts, err := clock.Parse(q.Get("clientDateTime"))
	return err == nil && q.Get("checksum") == s.opts.Checksum.Freshness(clock.Ticks(ts), q.Get("accessToken"))
}

func (s *Server) heartbeat(c Call, p *player) (int, string) {
	if !s.fresh(c.Query) {
		return http.StatusOK, ErrorXML("UserService", "HeartBeat", "Invalid checksum", "1")
	}
	p.heartbeats++
	return http.StatusOK, HeartBeatXML(true)
}

func (s *Server) addStarbux(c Call, p *player) (int, string) {
	if !s.fresh(c.Query) {
		return http.StatusOK, ErrorXML("UserService", "AddStarbux", "Invalid checksum", "1")
	}
	var qty int
	fmt.Sscanf(c.Query.Get("quantity"), "%d", &qty)
	if qty < 1 || qty > 5 {
		return http.StatusOK, ErrorXML("UserService", "AddStarbux", "Invalid quantity", "4")
	}
	if p.freeStarbux+qty > 10 {
		return http.StatusOK, ErrorXML("UserService", "AddStarbux", "Daily free starbux limit reached", "5")
	}
	p.freeStarbux += qty
	p.credits += qty
	return http.StatusOK, AddStarbuxXML(p.freeStarbux, p.credits)
}
