package setlink

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"
)

// tokenServer counts exchanges and hands out "token-N".
type tokenServer struct {
	*httptest.Server
	calls     int32
	status    int32
	expiresIn int
	delay     time.Duration
}

func newTokenServer(t *testing.T, expiresIn int) *tokenServer {
	t.Helper()

	ts := &tokenServer{status: http.StatusOK, expiresIn: expiresIn}
	ts.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&ts.calls, 1)

		if err := r.ParseForm(); err != nil {
			t.Errorf("ParseForm() error: %v", err)
		}
		if r.Method != http.MethodPost {
			t.Errorf("token request method = %s, want POST", r.Method)
		}
		if got := r.PostForm.Get("grant_type"); got != "client_credentials" {
			t.Errorf("grant_type = %q, want client_credentials", got)
		}
		if got := r.PostForm.Get("client_id"); got != "id" {
			t.Errorf("client_id = %q, want id", got)
		}

		if ts.delay > 0 {
			time.Sleep(ts.delay)
		}

		status := int(atomic.LoadInt32(&ts.status))
		if status != http.StatusOK {
			w.WriteHeader(status)
			_, _ = w.Write([]byte(`{"error":"invalid_client"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = fmt.Fprintf(w, `{"access_token":"token-%d","token_type":"bearer","expires_in":%d}`, n, ts.expiresIn)
	}))
	t.Cleanup(ts.Close)
	return ts
}

func (ts *tokenServer) Calls() int {
	return int(atomic.LoadInt32(&ts.calls))
}

func TestCredentialCache_ReusesTokenWithinWindow(t *testing.T) {
	server := newTokenServer(t, 3600)
	cache := NewCredentialCache("id", "secret", server.URL, time.Second, zap.NewNop())

	first, err := cache.Token(context.Background())
	if err != nil {
		t.Fatalf("Token() unexpected error: %v", err)
	}
	second, err := cache.Token(context.Background())
	if err != nil {
		t.Fatalf("Token() unexpected error: %v", err)
	}

	if first != second {
		t.Errorf("Token() returned %q then %q, want the same token", first, second)
	}
	if server.Calls() != 1 {
		t.Errorf("token endpoint calls = %d, want 1", server.Calls())
	}
}

func TestCredentialCache_RefreshesInsideSafetyMargin(t *testing.T) {
	server := newTokenServer(t, 3600)
	cache := NewCredentialCache("id", "secret", server.URL, time.Second, zap.NewNop())

	now := time.Now()
	cache.now = func() time.Time { return now }

	first, err := cache.Token(context.Background())
	if err != nil {
		t.Fatalf("Token() unexpected error: %v", err)
	}

	// 61s before expiry the token is still served.
	now = now.Add(3600*time.Second - 61*time.Second)
	if token, _ := cache.Token(context.Background()); token != first {
		t.Errorf("Token() outside margin = %q, want %q", token, first)
	}

	// 59s before expiry it is inside the margin and must be replaced.
	now = now.Add(2 * time.Second)
	second, err := cache.Token(context.Background())
	if err != nil {
		t.Fatalf("Token() unexpected error: %v", err)
	}
	if second == first {
		t.Error("Token() inside the safety margin should refresh")
	}
	if server.Calls() != 2 {
		t.Errorf("token endpoint calls = %d, want 2", server.Calls())
	}
}

func TestCredentialCache_FailureIsNotCached(t *testing.T) {
	server := newTokenServer(t, 3600)
	atomic.StoreInt32(&server.status, http.StatusUnauthorized)
	cache := NewCredentialCache("id", "secret", server.URL, time.Second, zap.NewNop())

	if _, err := cache.Token(context.Background()); !errors.Is(err, ErrUpstreamAuth) {
		t.Fatalf("Token() error = %v, want ErrUpstreamAuth", err)
	}

	atomic.StoreInt32(&server.status, http.StatusOK)
	token, err := cache.Token(context.Background())
	if err != nil {
		t.Fatalf("Token() after recovery unexpected error: %v", err)
	}
	if token == "" {
		t.Error("Token() after recovery returned an empty token")
	}
	if server.Calls() != 2 {
		t.Errorf("token endpoint calls = %d, want 2 (failure must not be cached)", server.Calls())
	}
}

func TestCredentialCache_MissingCredentials(t *testing.T) {
	server := newTokenServer(t, 3600)
	cache := NewCredentialCache("", "", server.URL, time.Second, zap.NewNop())

	if cache.Configured() {
		t.Error("Configured() = true without client id/secret")
	}
	if _, err := cache.Token(context.Background()); !errors.Is(err, ErrMissingCredentials) {
		t.Errorf("Token() error = %v, want ErrMissingCredentials", err)
	}
	if server.Calls() != 0 {
		t.Errorf("token endpoint calls = %d, want 0", server.Calls())
	}
}

func TestCredentialCache_CoalescesConcurrentRefreshes(t *testing.T) {
	server := newTokenServer(t, 3600)
	server.delay = 100 * time.Millisecond
	cache := NewCredentialCache("id", "secret", server.URL, time.Second, zap.NewNop())

	const callers = 20
	var wg sync.WaitGroup
	tokens := make([]string, callers)
	errs := make([]error, callers)
	start := make(chan struct{})

	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			tokens[i], errs[i] = cache.Token(context.Background())
		}(i)
	}
	close(start)
	wg.Wait()

	for i := 0; i < callers; i++ {
		if errs[i] != nil {
			t.Fatalf("caller %d error: %v", i, errs[i])
		}
		if tokens[i] != tokens[0] {
			t.Errorf("caller %d got %q, want %q", i, tokens[i], tokens[0])
		}
	}
	if server.Calls() != 1 {
		t.Errorf("token endpoint calls = %d, want 1", server.Calls())
	}
}

func TestCredentialCache_ConcurrentFailureSharedByWaiters(t *testing.T) {
	server := newTokenServer(t, 3600)
	server.delay = 100 * time.Millisecond
	atomic.StoreInt32(&server.status, http.StatusInternalServerError)
	cache := NewCredentialCache("id", "secret", server.URL, time.Second, zap.NewNop())

	const callers = 10
	var wg sync.WaitGroup
	var failures int32
	start := make(chan struct{})

	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			if _, err := cache.Token(context.Background()); errors.Is(err, ErrUpstreamAuth) {
				atomic.AddInt32(&failures, 1)
			}
		}()
	}
	close(start)
	wg.Wait()

	if failures != callers {
		t.Errorf("failures = %d, want %d", failures, callers)
	}
	if server.Calls() != 1 {
		t.Errorf("token endpoint calls = %d, want 1", server.Calls())
	}
}

func TestCredentialCache_Invalidate(t *testing.T) {
	server := newTokenServer(t, 3600)
	cache := NewCredentialCache("id", "secret", server.URL, time.Second, zap.NewNop())

	first, _ := cache.Token(context.Background())
	cache.Invalidate()
	second, _ := cache.Token(context.Background())

	if first == second {
		t.Error("Token() after Invalidate() should perform a new exchange")
	}
}
