package errors

import (
	"fmt"
	"io"
	"strings"
	"testing"

	"github.com/tachikoma-bot/tachikoma/internal/logging"
)

func quiet() *logging.Logger {
	return logging.NewWithWriter(io.Discard, logging.DefaultConfig())
}

func TestKindMatching(t *testing.T) {
	err := New(KindTransport, "transport.Do").WithLogger(quiet()).WithStatus(503).WithAttempts(3).Build()
	wrapped := fmt.Errorf("step: %w", err)

	if !IsTransport(wrapped) || IsLoginRejected(wrapped) {
		t.Fatalf("kind matching wrong for %v", wrapped)
	}
	if KindOf(wrapped) != KindTransport {
		t.Fatalf("KindOf = %q", KindOf(wrapped))
	}
	if KindOf(fmt.Errorf("plain")) != "" {
		t.Fatal("KindOf classified a plain error")
	}
	if !strings.Contains(err.Error(), "(status 503)") {
		t.Fatalf("Error() = %q", err.Error())
	}
}

func TestIsApplicationCoversMalformed(t *testing.T) {
	if !IsApplication(New(KindMalformed, "op").Silent().Build()) {
		t.Fatal("malformed is not an application failure")
	}
	if IsApplication(New(KindTransport, "op").Silent().Build()) {
		t.Fatal("transport counted as application failure")
	}
}

func TestAsLoginRejected(t *testing.T) {
	if AsLoginRejected(nil, "op") != nil {
		t.Fatal("nil error reclassified")
	}
	malformed := New(KindMalformed, "session.GetAccessToken").Silent().Build()
	err := AsLoginRejected(malformed, "session.Login")
	if !IsLoginRejected(err) || !Is(err, ErrMalformed) {
		t.Fatalf("AsLoginRejected = %v", err)
	}
	rejected := New(KindLoginRejected, "x").Silent().Build()
	if AsLoginRejected(rejected, "y") != error(rejected) {
		t.Fatal("already rejected error was rewrapped")
	}
}

func TestBuilderDefaults(t *testing.T) {
	err := New(KindConfiguration, "config.Load").Silent().Build()
	if err.Recoverable {
		t.Fatal("configuration errors must not be recoverable")
	}
	if !New(KindApplication, "op").Silent().Build().Recoverable {
		t.Fatal("application errors should be recoverable")
	}
	if got := New(KindApplication, "op").WithMessage("code %d", 7).Silent().Build().Message; got != "code 7" {
		t.Fatalf("Message = %q", got)
	}
}

func TestChain(t *testing.T) {
	c := NewChain(quiet())
	if c.Combined() != nil {
		t.Fatal("empty chain produced an error")
	}
	c.Add("messages", nil)
	c.Add("messages", New(KindApplication, "game.CollectMessages").WithMessage("nope").Silent().Build())
	c.Add("resources", fmt.Errorf("boom"))

	if c.Len() != 2 {
		t.Fatalf("Len = %d", c.Len())
	}
	err := c.Combined()
	if !IsApplication(err) || !strings.Contains(err.Error(), "2 steps failed") || !strings.Contains(err.Error(), "resources: boom") {
		t.Fatalf("Combined = %v", err)
	}
}

func TestPresent(t *testing.T) {
	if Present(nil) != nil {
		t.Fatal("Present(nil) != nil")
	}
	p := Present(fmt.Errorf("run: %w", New(KindLoginRejected, "session.Login").WithMessage("bad password").WithCode("3").Silent().Build()))
	if p.Kind != KindLoginRejected || p.Code != "3" || p.Message != "bad password" || len(p.Hints) == 0 {
		t.Fatalf("Present = %+v", p)
	}
	plain := Present(fmt.Errorf("login cancelled"))
	if plain.Message != "login cancelled" || plain.Hints != nil {
		t.Fatalf("Present(plain) = %+v", plain)
	}
}
