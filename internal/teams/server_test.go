package teams

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/Stalker400n/psi1-sub000/internal/playback"
	"github.com/Stalker400n/psi1-sub000/internal/realtime"
	"github.com/Stalker400n/psi1-sub000/internal/store"
)

const owner = "owner-1"

type testEnv struct {
	store  *store.MemoryStore
	hub    *realtime.Hub
	router http.Handler
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	st := store.NewMemoryStore()
	hub := realtime.NewHub()
	q := playback.NewQueueEngine(st, playback.NewTeamLocks())
	coord := playback.NewCoordinator(st, q, hub)
	return &testEnv{store: st, hub: hub, router: NewServer(st, q, coord).Router()}
}

type call struct {
	method string
	path   string
	body   any
	user   string
	role   string
}

func (e *testEnv) do(t *testing.T, c call) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if c.body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(c.body))
	}
	req := httptest.NewRequest(c.method, c.path, &buf)
	if c.user != "" {
		req.Header.Set("X-User-Id", c.user)
	}
	if c.role != "" {
		req.Header.Set("X-User-Role", c.role)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func (e *testEnv) createTeam(t *testing.T, songs ...string) store.Team {
	t.Helper()
	w := e.do(t, call{method: "POST", path: "/teams", body: map[string]string{"name": "crew"}, user: owner})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	team := decode[store.Team](t, w)
	for _, title := range songs {
		w := e.do(t, call{method: "POST", path: "/teams/" + team.ID + "/songs",
			body: map[string]any{"title": title, "duration": 200}, user: "member-1"})
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	}
	return team
}

type viewer struct {
	id   string
	mu   sync.Mutex
	msgs [][]byte
}

func newViewer(id string) *viewer { return &viewer{id: id} }

func (v *viewer) ID() string { return v.id }

func (v *viewer) Send(msg []byte) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.msgs = append(v.msgs, msg)
	return true
}

func (v *viewer) count() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.msgs)
}

func TestServer_Health(t *testing.T) {
	e := newTestEnv(t)
	w := e.do(t, call{method: "GET", path: "/health"})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "queue-service", decode[map[string]string](t, w)["service"])
}

func TestServer_MissingUser(t *testing.T) {
	e := newTestEnv(t)
	w := e.do(t, call{method: "POST", path: "/teams", body: map[string]string{"name": "x"}})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "missing user context", decode[map[string]string](t, w)["error"])
}

func TestServer_CreateAndGetTeam(t *testing.T) {
	e := newTestEnv(t)
	team := e.createTeam(t)
	assert.Equal(t, "crew", team.Name)
	assert.Equal(t, owner, team.CreatedBy)

	w := e.do(t, call{method: "GET", path: "/teams/" + team.ID, user: "anyone"})
	assert.Equal(t, http.StatusOK, w.Code)

	w = e.do(t, call{method: "GET", path: "/teams/nope", user: "anyone"})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = e.do(t, call{method: "POST", path: "/teams", body: map[string]string{"name": "  "}, user: owner})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestServer_QueueAndSongViews(t *testing.T) {
	e := newTestEnv(t)
	team := e.createTeam(t, "a", "b", "c")

	w := e.do(t, call{method: "GET", path: "/teams/" + team.ID + "/queue", user: "m"})
	require.Equal(t, http.StatusOK, w.Code)
	q := decode[struct {
		CurrentSongIndex int          `json:"currentSongIndex"`
		Songs            []store.Song `json:"songs"`
	}](t, w)
	require.Len(t, q.Songs, 3)
	assert.Equal(t, "a", q.Songs[0].Title)

	w = e.do(t, call{method: "GET", path: "/teams/" + team.ID + "/songs/current", user: "m"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "a", decode[store.Song](t, w).Title)

	w = e.do(t, call{method: "GET", path: "/teams/" + team.ID + "/songs/top", user: "m"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]store.Song](t, w), 3)

	w = e.do(t, call{method: "GET", path: "/teams/" + team.ID + "/songs/lowest", user: "m"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "c", decode[store.Song](t, w).Title, "equal ratings fall back to queue order")

	empty := e.createTeam(t)
	w = e.do(t, call{method: "GET", path: "/teams/" + empty.ID + "/songs/current", user: "m"})
	assert.Equal(t, http.StatusNotFound, w.Code)
	w = e.do(t, call{method: "GET", path: "/teams/" + empty.ID + "/queue", user: "m"})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, decode[struct {
		Songs []store.Song `json:"songs"`
	}](t, w).Songs)
}

func TestServer_AddSongValidation(t *testing.T) {
	e := newTestEnv(t)
	team := e.createTeam(t)
	path := "/teams/" + team.ID + "/songs"

	for name, body := range map[string]any{
		"no title":       map[string]any{"title": ""},
		"negative dur":   map[string]any{"title": "x", "duration": -1},
		"negative index": map[string]any{"title": "x", "index": -2},
	} {
		w := e.do(t, call{method: "POST", path: path, body: body, user: "m"})
		assert.Equal(t, http.StatusBadRequest, w.Code, name)
	}

	w := e.do(t, call{method: "POST", path: "/teams/ghost/songs", body: map[string]any{"title": "x"}, user: "m"})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestServer_InsertBeforePointerKeepsCurrentSong(t *testing.T) {
	e := newTestEnv(t)
	team := e.createTeam(t, "a", "b", "c")
	base := "/teams/" + team.ID

	w := e.do(t, call{method: "POST", path: base + "/playback/jump", body: map[string]int{"index": 2}, user: owner})
	require.Equal(t, http.StatusOK, w.Code)

	w = e.do(t, call{method: "POST", path: base + "/songs", body: map[string]any{"title": "early", "index": 0}, user: "m"})
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, 0, decode[store.Song](t, w).Index)

	w = e.do(t, call{method: "GET", path: base + "/songs/current", user: "m"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "c", decode[store.Song](t, w).Title)

	w = e.do(t, call{method: "GET", path: base + "/queue", user: "m"})
	assert.Len(t, decode[struct {
		Songs []store.Song `json:"songs"`
	}](t, w).Songs, 1)
}

func TestServer_MoveSong(t *testing.T) {
	e := newTestEnv(t)
	team := e.createTeam(t, "a", "b", "c")
	base := "/teams/" + team.ID

	songs, err := e.store.GetSongsForTeam(context.Background(), team.ID)
	require.NoError(t, err)
	first := songs[0].ID

	w := e.do(t, call{method: "PATCH", path: base + "/songs/" + first, body: map[string]int{"newIndex": 2}, user: "m"})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = e.do(t, call{method: "PATCH", path: base + "/songs/" + first, body: map[string]int{"newIndex": 9}, user: owner})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, store.MoveResult{SongID: first, From: 0, To: 2}, decode[store.MoveResult](t, w))

	w = e.do(t, call{method: "GET", path: base + "/songs/current", user: "m"})
	assert.Equal(t, "a", decode[store.Song](t, w).Title, "pointer follows the moved song")

	w = e.do(t, call{method: "PATCH", path: base + "/songs/missing", body: map[string]int{"newIndex": 0}, user: owner})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = e.do(t, call{method: "PATCH", path: base + "/songs/" + first, body: map[string]string{}, user: owner})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestServer_DeleteSong(t *testing.T) {
	e := newTestEnv(t)
	team := e.createTeam(t, "a", "b")
	base := "/teams/" + team.ID

	songs, err := e.store.GetSongsForTeam(context.Background(), team.ID)
	require.NoError(t, err)

	w := e.do(t, call{method: "DELETE", path: base + "/songs/" + songs[0].ID, user: "stranger"})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = e.do(t, call{method: "DELETE", path: base + "/songs/" + songs[0].ID, user: "member-1"})
	assert.Equal(t, http.StatusNoContent, w.Code, "the adder may remove their song")

	w = e.do(t, call{method: "DELETE", path: base + "/songs/" + songs[0].ID, user: owner})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = e.do(t, call{method: "GET", path: base + "/songs/current", user: "m"})
	assert.Equal(t, "b", decode[store.Song](t, w).Title)
}

func TestServer_DeleteSongChecksOwnerInsideTeamLock(t *testing.T) {
	ms := new(store.MockStore)
	locks := playback.NewTeamLocks()
	q := playback.NewQueueEngine(ms, locks)
	router := NewServer(ms, q, playback.NewCoordinator(ms, q, realtime.NewHub())).Router()

	var songReads atomic.Int32
	ms.On("GetTeamByID", mock.Anything, "t1").Return(&store.Team{ID: "t1", CreatedBy: owner}, nil)
	ms.On("GetSongsForTeam", mock.Anything, "t1").
		Run(func(mock.Arguments) { songReads.Add(1) }).
		Return([]store.Song{{ID: "s", TeamID: "t1", AddedBy: "member-1"}}, nil)
	ms.On("DeleteSong", mock.Anything, "t1", "s").Return(&store.Song{ID: "s"}, nil).Once()

	release, err := locks.Acquire(context.Background(), "t1")
	require.NoError(t, err)

	done := make(chan *httptest.ResponseRecorder, 1)
	go func() {
		req := httptest.NewRequest("DELETE", "/teams/t1/songs/s", nil)
		req.Header.Set("X-User-Id", "member-1")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		done <- w
	}()

	time.Sleep(50 * time.Millisecond)
	assert.Zero(t, songReads.Load(), "ownership is not read while another edit holds the team")

	release()
	select {
	case w := <-done:
		assert.Equal(t, http.StatusNoContent, w.Code, w.Body.String())
	case <-time.After(2 * time.Second):
		t.Fatal("delete did not finish")
	}
	ms.AssertCalled(t, "DeleteSong", mock.Anything, "t1", "s")
}

func TestServer_PlaybackFlow(t *testing.T) {
	e := newTestEnv(t)
	team := e.createTeam(t, "a", "b")
	base := "/teams/" + team.ID

	v := newViewer("v1")
	e.hub.Subscribe(team.ID, v)

	w := e.do(t, call{method: "POST", path: base + "/playback/play", user: "m"})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = e.do(t, call{method: "POST", path: base + "/playback/play", user: "mod", role: RoleModerator})
	require.Equal(t, http.StatusOK, w.Code)
	st := decode[playback.State](t, w)
	assert.True(t, st.IsPlaying)
	assert.NotNil(t, st.StartedAtUTC)
	assert.Equal(t, 1, v.count())

	time.Sleep(20 * time.Millisecond)
	w = e.do(t, call{method: "POST", path: base + "/playback/pause", user: owner})
	require.Equal(t, http.StatusOK, w.Code)
	st = decode[playback.State](t, w)
	assert.False(t, st.IsPlaying)
	assert.Nil(t, st.StartedAtUTC)
	assert.Greater(t, st.ElapsedSeconds, 0.0)

	w = e.do(t, call{method: "POST", path: base + "/playback/next", user: owner})
	require.Equal(t, http.StatusOK, w.Code)
	change := decode[songChangeResponse](t, w)
	require.NotNil(t, change.Song)
	assert.Equal(t, "b", change.Song.Title)
	assert.Zero(t, change.State.ElapsedSeconds)

	w = e.do(t, call{method: "POST", path: base + "/playback/next", user: owner})
	require.Equal(t, http.StatusOK, w.Code)
	change = decode[songChangeResponse](t, w)
	assert.Nil(t, change.Song, "end of queue")
	assert.Equal(t, 1, change.State.CurrentSongIndex)

	w = e.do(t, call{method: "POST", path: base + "/playback/previous", user: owner})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "a", decode[songChangeResponse](t, w).Song.Title)

	w = e.do(t, call{method: "POST", path: base + "/playback/jump", body: map[string]int{"index": 1}, user: owner})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, decode[songChangeResponse](t, w).State.CurrentSongIndex)

	w = e.do(t, call{method: "POST", path: base + "/playback/jump", body: map[string]string{}, user: owner})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = e.do(t, call{method: "GET", path: base + "/playback", user: "m"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, decode[playback.State](t, w).CurrentSongIndex)

	assert.Equal(t, 5, v.count(), "play, pause, next, previous, jump")
}

func TestServer_DatabaseErrors(t *testing.T) {
	ms := new(store.MockStore)
	q := playback.NewQueueEngine(ms, playback.NewTeamLocks())
	router := NewServer(ms, q, playback.NewCoordinator(ms, q, realtime.NewHub())).Router()

	ms.On("GetTeamByID", mock.Anything, "t1").Return(&store.Team{ID: "t1", CreatedBy: owner}, nil)
	ms.On("GetTeamByID", mock.Anything, "broken").Return(nil, errors.New("db down"))
	ms.On("GetSongsForTeam", mock.Anything, "t1").Return([]store.Song{{ID: "s", Index: 0}}, nil)
	ms.On("UpdateTeam", mock.Anything, "t1", mock.Anything).Return(nil, errors.New("db down"))

	req := httptest.NewRequest("GET", "/teams/broken", nil)
	req.Header.Set("X-User-Id", owner)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusInternalServerError, w.Code)

	req = httptest.NewRequest("POST", "/teams/t1/playback/play", nil)
	req.Header.Set("X-User-Id", owner)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "database error")
}

func signToken(t *testing.T, secret []byte, claims TokenClaims) string {
	t.Helper()
	claims.RegisteredClaims = jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
		IssuedAt:  jwt.NewNumericDate(time.Now()),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	require.NoError(t, err)
	return signed
}

func TestServer_JWTAuthentication(t *testing.T) {
	secret := []byte("test-secret")
	st := store.NewMemoryStore()
	q := playback.NewQueueEngine(st, playback.NewTeamLocks())
	router := NewServer(st, q, playback.NewCoordinator(st, q, realtime.NewHub())).WithJWT(secret).Router()

	post := func(auth string) *httptest.ResponseRecorder {
		req := httptest.NewRequest("POST", "/teams", bytes.NewBufferString(`{"name":"crew"}`))
		if auth != "" {
			req.Header.Set("Authorization", auth)
		}
		// Headers alone are not trusted once tokens are required.
		req.Header.Set("X-User-Id", "spoofed")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w
	}

	assert.Equal(t, http.StatusUnauthorized, post("").Code)
	assert.Equal(t, http.StatusUnauthorized, post("Token abc").Code)
	assert.Equal(t, http.StatusUnauthorized, post("Bearer not-a-jwt").Code)

	refresh := signToken(t, secret, TokenClaims{UserID: "u1", TokenType: "refresh"})
	assert.Equal(t, http.StatusUnauthorized, post("Bearer "+refresh).Code)

	wrongKey := signToken(t, []byte("other"), TokenClaims{UserID: "u1", TokenType: "access"})
	assert.Equal(t, http.StatusUnauthorized, post("Bearer "+wrongKey).Code)

	good := signToken(t, secret, TokenClaims{UserID: "u1", Role: RoleOwner, TokenType: "access"})
	w := post("Bearer " + good)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "u1", decode[store.Team](t, w).CreatedBy)
}

func TestServer_WebsocketRoute(t *testing.T) {
	st := store.NewMemoryStore()
	q := playback.NewQueueEngine(st, playback.NewTeamLocks())
	called := false
	router := NewServer(st, q, playback.NewCoordinator(st, q, realtime.NewHub())).
		WithWebsocket(func(w http.ResponseWriter, r *http.Request) {
			called = true
			w.WriteHeader(http.StatusSwitchingProtocols)
		}).Router()

	req := httptest.NewRequest("GET", "/ws", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.True(t, called, "websocket route is outside the auth group")
}
