package game

import (
	"context"
	"errors"
	"net/http"
	"sort"
	"sync"
	"testing"
	"time"

	"twovue/internal/broadcast"
	"twovue/internal/store"
	"twovue/internal/store/memstore"
)

type recordingNotifier struct {
	mu     sync.Mutex
	events []broadcast.Event
	games  []string
}

func (n *recordingNotifier) Publish(gameID string, ev broadcast.Event) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.games = append(n.games, gameID)
	n.events = append(n.events, ev)
}

func (n *recordingNotifier) snapshot() []broadcast.Event {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]broadcast.Event(nil), n.events...)
}

// failingRepo wraps a store and fails the named operation.
type failingRepo struct {
	Repository
	failOn string
	err    error
}

func (r *failingRepo) InsertGame(ctx context.Context, g store.Game) error {
	if r.failOn == "InsertGame" {
		return r.err
	}
	return r.Repository.InsertGame(ctx, g)
}

func (r *failingRepo) UpdateGame(ctx context.Context, g store.Game) error {
	if r.failOn == "UpdateGame" {
		return r.err
	}
	return r.Repository.UpdateGame(ctx, g)
}

func (r *failingRepo) CountTurns(ctx context.Context, gameID string) (int, error) {
	if r.failOn == "CountTurns" {
		return 0, r.err
	}
	return r.Repository.CountTurns(ctx, gameID)
}

// staleReadRepo reports every game as still waiting for player 2, the view
// another instance has before its join reaches the store.
type staleReadRepo struct {
	Repository
}

func (r staleReadRepo) GetGame(ctx context.Context, id string) (*store.Game, error) {
	g, err := r.Repository.GetGame(ctx, id)
	if err != nil {
		return nil, err
	}
	g.Player2Name = ""
	g.Status = store.GameStatusWaitingForPlayer2
	return g, nil
}

func newTestCoordinator(t *testing.T) (*Coordinator, *memstore.Store, *recordingNotifier) {
	t.Helper()
	st := memstore.New()
	n := &recordingNotifier{}
	return NewCoordinator(st, n, Options{}), st, n
}

func TestCreateJoinScenario(t *testing.T) {
	c, _, n := newTestCoordinator(t)
	ctx := context.Background()

	g, err := c.CreateGame(ctx, "Alice")
	if err != nil {
		t.Fatalf("create game: %v", err)
	}
	if g.Status != store.GameStatusWaitingForPlayer2 || g.Player2Name != "" {
		t.Fatalf("new game = %+v", g)
	}

	if err := c.JoinGame(ctx, g.ID, "Bob"); err != nil {
		t.Fatalf("join bob: %v", err)
	}
	got, err := c.GetGame(ctx, g.ID)
	if err != nil {
		t.Fatalf("get game: %v", err)
	}
	if got.Status != store.GameStatusInProgress || got.Player2Name != "Bob" {
		t.Fatalf("joined game = %+v", got.Game)
	}
	if !got.UpdatedAt.After(g.UpdatedAt) && !got.UpdatedAt.Equal(g.UpdatedAt) {
		t.Fatalf("updatedAt moved backwards: %v -> %v", g.UpdatedAt, got.UpdatedAt)
	}

	if err := c.JoinGame(ctx, g.ID, "Carol"); !errors.Is(err, ErrAlreadyFull) {
		t.Fatalf("join carol err = %v, want %v", err, ErrAlreadyFull)
	}
	after, _ := c.GetGame(ctx, g.ID)
	if after.Player2Name != "Bob" || !after.UpdatedAt.Equal(got.UpdatedAt) {
		t.Fatalf("rejected join modified game: %+v", after.Game)
	}

	events := n.snapshot()
	if len(events) != 1 || events[0].Type != broadcast.EventPlayerJoined || events[0].PlayerName != "Bob" {
		t.Fatalf("events = %+v", events)
	}
}

func TestJoinUnknownGame(t *testing.T) {
	c, _, n := newTestCoordinator(t)
	if err := c.JoinGame(context.Background(), "missing-game-id", "Bob"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want %v", err, ErrNotFound)
	}
	if len(n.snapshot()) != 0 {
		t.Fatal("no event expected for failed join")
	}
}

func TestConcurrentJoinsOneWins(t *testing.T) {
	c, _, n := newTestCoordinator(t)
	ctx := context.Background()
	g, err := c.CreateGame(ctx, "Alice")
	if err != nil {
		t.Fatalf("create game: %v", err)
	}

	const joiners = 16
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		ok   int
		full int
	)
	for i := 0; i < joiners; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			err := c.JoinGame(ctx, g.ID, "player-"+string(rune('a'+i)))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case errors.Is(err, ErrAlreadyFull):
				full++
			default:
				t.Errorf("unexpected join error: %v", err)
			}
		}(i)
	}
	wg.Wait()
	if ok != 1 || full != joiners-1 {
		t.Fatalf("successes = %d, rejections = %d", ok, full)
	}
	if len(n.snapshot()) != 1 {
		t.Fatalf("player_joined events = %d, want 1", len(n.snapshot()))
	}
}

func TestJoinAcrossInstancesOneWins(t *testing.T) {
	st := memstore.New()
	n := &recordingNotifier{}
	first := NewCoordinator(st, n, Options{})
	second := NewCoordinator(staleReadRepo{Repository: st}, n, Options{})
	ctx := context.Background()

	g, err := first.CreateGame(ctx, "Alice")
	if err != nil {
		t.Fatalf("create game: %v", err)
	}
	if err := first.JoinGame(ctx, g.ID, "Bob"); err != nil {
		t.Fatalf("first join: %v", err)
	}
	if err := second.JoinGame(ctx, g.ID, "Carol"); !errors.Is(err, ErrAlreadyFull) {
		t.Fatalf("second instance join err = %v, want ErrAlreadyFull", err)
	}
	got, err := st.GetGame(ctx, g.ID)
	if err != nil {
		t.Fatalf("get game: %v", err)
	}
	if got.Player2Name != "Bob" {
		t.Fatalf("player2 = %q, want Bob", got.Player2Name)
	}
	if len(n.snapshot()) != 1 {
		t.Fatalf("player_joined events = %d, want 1", len(n.snapshot()))
	}
}

func TestConcurrentJoinsThroughTwoCoordinators(t *testing.T) {
	st := memstore.New()
	n := &recordingNotifier{}
	instances := []*Coordinator{
		NewCoordinator(staleReadRepo{Repository: st}, n, Options{}),
		NewCoordinator(staleReadRepo{Repository: st}, n, Options{}),
	}
	ctx := context.Background()
	g, err := instances[0].CreateGame(ctx, "Alice")
	if err != nil {
		t.Fatalf("create game: %v", err)
	}

	errs := make(chan error, 8)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs <- instances[i%2].JoinGame(ctx, g.ID, "player-"+string(rune('a'+i)))
		}(i)
	}
	wg.Wait()
	close(errs)
	ok := 0
	for err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, ErrAlreadyFull):
		default:
			t.Fatalf("unexpected join error: %v", err)
		}
	}
	if ok != 1 {
		t.Fatalf("successful joins = %d, want 1", ok)
	}
	if len(n.snapshot()) != 1 {
		t.Fatalf("player_joined events = %d, want 1", len(n.snapshot()))
	}
}

func TestSubmitTurnSequencing(t *testing.T) {
	c, _, n := newTestCoordinator(t)
	ctx := context.Background()
	g, _ := c.CreateGame(ctx, "Alice")

	turn, err := c.SubmitTurn(ctx, g.ID, TurnSubmission{
		PlayerName:   "Alice",
		PhotoURL:     "https://photos.example/a.jpg",
		Tags:         []string{"cup", "book"},
		SharedTag:    "cup",
		DetectedTags: []string{"cup"},
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if turn.TurnNumber != 1 || turn.GameID != g.ID || turn.ID == "" {
		t.Fatalf("turn = %+v", turn)
	}

	second, err := c.SubmitTurn(ctx, g.ID, TurnSubmission{PlayerName: "Bob", PhotoURL: "https://photos.example/b.jpg"})
	if err != nil {
		t.Fatalf("second submit: %v", err)
	}
	if second.TurnNumber != 2 {
		t.Fatalf("second turn number = %d, want 2", second.TurnNumber)
	}
	if second.Tags == nil || second.DetectedTags == nil {
		t.Fatal("tags should be empty slices, not nil")
	}

	events := n.snapshot()
	if len(events) != 2 || events[1].Type != broadcast.EventTurnSubmitted || events[1].TurnNumber != 2 || events[1].PlayerName != "Bob" {
		t.Fatalf("events = %+v", events)
	}

	got, _ := c.GetGame(ctx, g.ID)
	if len(got.Turns) != 2 || got.Turns[0].TurnNumber != 1 || got.Turns[1].TurnNumber != 2 {
		t.Fatalf("turns = %+v", got.Turns)
	}
	if got.UpdatedAt.Before(second.CreatedAt) {
		t.Fatalf("updatedAt %v not bumped to %v", got.UpdatedAt, second.CreatedAt)
	}
}

func TestConcurrentSubmitsGetDistinctNumbers(t *testing.T) {
	c, st, _ := newTestCoordinator(t)
	ctx := context.Background()
	g, _ := c.CreateGame(ctx, "Alice")

	const n = 50
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.SubmitTurn(ctx, g.ID, TurnSubmission{PlayerName: "Alice", PhotoURL: "https://photos.example/x.jpg"})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("submit: %v", err)
		}
	}

	turns, err := st.ListTurns(ctx, g.ID)
	if err != nil {
		t.Fatalf("list turns: %v", err)
	}
	if len(turns) != n {
		t.Fatalf("turns = %d, want %d", len(turns), n)
	}
	numbers := make([]int, 0, n)
	for _, turn := range turns {
		numbers = append(numbers, turn.TurnNumber)
	}
	sort.Ints(numbers)
	for i, num := range numbers {
		if num != i+1 {
			t.Fatalf("turn numbers = %v, want 1..%d", numbers, n)
		}
	}
	if c.locks.size() != 0 {
		t.Fatalf("lock table size = %d, want 0", c.locks.size())
	}
}

func TestTwoSimultaneousFirstTurns(t *testing.T) {
	c, _, _ := newTestCoordinator(t)
	ctx := context.Background()
	g, _ := c.CreateGame(ctx, "Alice")

	start := make(chan struct{})
	results := make(chan int, 2)
	for _, player := range []string{"Alice", "Bob"} {
		go func(player string) {
			<-start
			turn, err := c.SubmitTurn(ctx, g.ID, TurnSubmission{PlayerName: player, PhotoURL: "https://photos.example/" + player})
			if err != nil {
				t.Errorf("submit %s: %v", player, err)
				results <- 0
				return
			}
			results <- turn.TurnNumber
		}(player)
	}
	close(start)
	a, b := <-results, <-results
	if a == b {
		t.Fatalf("both submissions got turn number %d", a)
	}
}

func TestSubmitTurnUnknownGame(t *testing.T) {
	c, st, n := newTestCoordinator(t)
	_, err := c.SubmitTurn(context.Background(), "nope", TurnSubmission{PlayerName: "Alice", PhotoURL: "u"})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want %v", err, ErrNotFound)
	}
	if cnt, _ := st.CountTurns(context.Background(), "nope"); cnt != 0 {
		t.Fatalf("turn count = %d, want 0", cnt)
	}
	if len(n.snapshot()) != 0 {
		t.Fatal("no event expected")
	}
}

func TestInvalidRequests(t *testing.T) {
	c, _, _ := newTestCoordinator(t)
	ctx := context.Background()
	if _, err := c.CreateGame(ctx, "   "); !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("create err = %v, want %v", err, ErrInvalidRequest)
	}
	g, _ := c.CreateGame(ctx, "Alice")
	if err := c.JoinGame(ctx, g.ID, ""); !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("join err = %v, want %v", err, ErrInvalidRequest)
	}
	if _, err := c.SubmitTurn(ctx, g.ID, TurnSubmission{PlayerName: "Alice"}); !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("submit err = %v, want %v", err, ErrInvalidRequest)
	}
}

func TestCreateGameRetriesTakenIDs(t *testing.T) {
	st := memstore.New()
	ids := []string{"quantum-vector-alpha", "quantum-vector-alpha", "neural-prism-omega"}
	next := 0
	c := NewCoordinator(st, nil, Options{NewGameID: func() string {
		id := ids[next]
		next++
		return id
	}})
	ctx := context.Background()
	first, err := c.CreateGame(ctx, "Alice")
	if err != nil {
		t.Fatalf("first create: %v", err)
	}
	second, err := c.CreateGame(ctx, "Dana")
	if err != nil {
		t.Fatalf("second create: %v", err)
	}
	if first.ID != "quantum-vector-alpha" || second.ID != "neural-prism-omega" {
		t.Fatalf("ids = %q, %q", first.ID, second.ID)
	}
}

func TestCreateGameGivesUpAfterAttempts(t *testing.T) {
	st := memstore.New()
	c := NewCoordinator(st, nil, Options{GameIDAttempts: 2, NewGameID: func() string { return "same-id-every-time" }})
	ctx := context.Background()
	if _, err := c.CreateGame(ctx, "Alice"); err != nil {
		t.Fatalf("first create: %v", err)
	}
	if _, err := c.CreateGame(ctx, "Bob"); !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("err = %v, want %v", err, ErrStoreUnavailable)
	}
}

func TestStoreFailureSurfacesAsUnavailable(t *testing.T) {
	st := memstore.New()
	boom := errors.New("connection refused")
	ctx := context.Background()

	c := NewCoordinator(&failingRepo{Repository: st, failOn: "InsertGame", err: boom}, nil, Options{})
	if _, err := c.CreateGame(ctx, "Alice"); !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("create err = %v, want %v", err, ErrStoreUnavailable)
	}

	seed := NewCoordinator(st, nil, Options{})
	g, _ := seed.CreateGame(ctx, "Alice")

	n := &recordingNotifier{}
	c = NewCoordinator(&failingRepo{Repository: st, failOn: "CountTurns", err: boom}, n, Options{})
	if _, err := c.SubmitTurn(ctx, g.ID, TurnSubmission{PlayerName: "Alice", PhotoURL: "u"}); !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("submit err = %v, want %v", err, ErrStoreUnavailable)
	}
	if len(n.snapshot()) != 0 {
		t.Fatal("no event expected after store failure")
	}
}

func TestSubmitTurnRollsBackWhenGameTouchFails(t *testing.T) {
	st := memstore.New()
	ctx := context.Background()
	g, _ := NewCoordinator(st, nil, Options{}).CreateGame(ctx, "Alice")

	n := &recordingNotifier{}
	c := NewCoordinator(&failingRepo{Repository: st, failOn: "UpdateGame", err: errors.New("timeout")}, n, Options{})
	if _, err := c.SubmitTurn(ctx, g.ID, TurnSubmission{PlayerName: "Alice", PhotoURL: "u"}); !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("err = %v, want %v", err, ErrStoreUnavailable)
	}
	if cnt, _ := st.CountTurns(ctx, g.ID); cnt != 0 {
		t.Fatalf("turn count = %d, want 0 after rollback", cnt)
	}
	if len(n.snapshot()) != 0 {
		t.Fatal("no event expected")
	}
}

func TestNowIsInjectable(t *testing.T) {
	fixed := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	c := NewCoordinator(memstore.New(), nil, Options{Now: func() time.Time { return fixed }})
	g, err := c.CreateGame(context.Background(), "Alice")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if !g.CreatedAt.Equal(fixed) || !g.UpdatedAt.Equal(fixed) {
		t.Fatalf("timestamps = %v / %v, want %v", g.CreatedAt, g.UpdatedAt, fixed)
	}
}

func TestMapGameError(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{ErrNotFound, http.StatusNotFound, "game_not_found"},
		{ErrAlreadyFull, http.StatusConflict, "game_already_full"},
		{ErrInvalidRequest, http.StatusBadRequest, "invalid_request"},
		{storeFailure(errors.New("down")), http.StatusServiceUnavailable, "service_unavailable"},
		{storeFailure(store.ErrNotFound), http.StatusNotFound, "game_not_found"},
		{errors.New("boom"), http.StatusInternalServerError, "internal_error"},
	}
	for _, tc := range cases {
		status, code := MapGameError(tc.err)
		if status != tc.status || code != tc.code {
			t.Fatalf("MapGameError(%v) = %d %q, want %d %q", tc.err, status, code, tc.status, tc.code)
		}
	}
}

func TestSubmitAfterGapKeepsNumbersUnique(t *testing.T) {
	c, st, _ := newTestCoordinator(t)
	ctx := context.Background()
	g, _ := c.CreateGame(ctx, "Alice")
	var second store.Turn
	for i := 0; i < 3; i++ {
		turn, err := c.SubmitTurn(ctx, g.ID, TurnSubmission{PlayerName: "Alice", PhotoURL: "u"})
		if err != nil {
			t.Fatalf("submit %d: %v", i, err)
		}
		if turn.TurnNumber == 2 {
			second = turn
		}
	}
	if err := st.DeleteTurn(ctx, second.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}

	turn, err := c.SubmitTurn(ctx, g.ID, TurnSubmission{PlayerName: "Bob", PhotoURL: "v"})
	if err != nil {
		t.Fatalf("submit after gap: %v", err)
	}
	if turn.TurnNumber != 4 {
		t.Fatalf("turn number = %d, want 4", turn.TurnNumber)
	}
}
