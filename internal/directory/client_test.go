package directory_test

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omochice/room-chat-client/internal/chat"
	"github.com/omochice/room-chat-client/internal/directory"
)

type recordedRequest struct {
	Method string
	Path   string
	Body   map[string]any
}

type recorder struct {
	mu       sync.Mutex
	requests []recordedRequest
}

func (r *recorder) all() []recordedRequest {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]recordedRequest(nil), r.requests...)
}

func newServer(t *testing.T, status int, response string) (*httptest.Server, *recorder) {
	t.Helper()
	rec := &recorder{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		req := recordedRequest{Method: r.Method, Path: r.URL.Path}
		if r.Body != nil && r.ContentLength != 0 {
			_ = json.NewDecoder(r.Body).Decode(&req.Body)
		}
		rec.mu.Lock()
		rec.requests = append(rec.requests, req)
		rec.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(response))
	}))
	t.Cleanup(srv.Close)
	return srv, rec
}

func TestCreateRoom(t *testing.T) {
	srv, reqs := newServer(t, http.StatusOK, `{"success":true,"data":{"room_id":"abc"},"message":null}`)
	c := directory.New(srv.URL + "/")

	id, err := c.CreateRoom(t.Context(), "  lobby ", "")
	require.NoError(t, err)
	assert.Equal(t, "abc", id)

	require.Len(t, reqs.all(), 1)
	got := reqs.all()[0]
	assert.Equal(t, http.MethodPost, got.Method)
	assert.Equal(t, "/api/rooms", got.Path)
	assert.Equal(t, map[string]any{"name": "lobby", "password": nil}, got.Body)
}

func TestCreateRoom_WithPassword(t *testing.T) {
	srv, reqs := newServer(t, http.StatusOK, `{"success":true,"data":{"room_id":"abc"}}`)
	c := directory.New(srv.URL)

	_, err := c.CreateRoom(t.Context(), "vault", "s3cret")
	require.NoError(t, err)
	assert.Equal(t, "s3cret", reqs.all()[0].Body["password"])
}

func TestCreateRoom_BlankNameIsRejectedLocally(t *testing.T) {
	srv, reqs := newServer(t, http.StatusOK, `{"success":true}`)
	c := directory.New(srv.URL)

	_, err := c.CreateRoom(t.Context(), "   ", "")
	require.ErrorIs(t, err, chat.ErrValidation)
	assert.Empty(t, reqs.all())
}

func TestListRooms(t *testing.T) {
	srv, reqs := newServer(t, http.StatusOK, `{"success":true,"data":[
		{"id":"r1","name":"lobby","has_password":false,"user_count":2,"created_at":"2024-05-01T12:00:00Z"},
		{"id":"r2","name":"vault","has_password":true,"user_count":0,"created_at":"2024-05-02T08:30:00.5Z"}
	]}`)
	c := directory.New(srv.URL)

	rooms, err := c.ListRooms(t.Context())
	require.NoError(t, err)
	require.Len(t, rooms, 2)
	assert.Equal(t, directory.RoomInfo{
		ID: "r1", Name: "lobby", UserCount: 2,
		CreatedAt: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}, rooms[0])
	assert.True(t, rooms[1].HasPassword)
	assert.Equal(t, chat.Room{ID: "r2", Name: "vault"}, rooms[1].Room())
	assert.Equal(t, http.MethodGet, reqs.all()[0].Method)
}

func TestJoinRoom(t *testing.T) {
	srv, reqs := newServer(t, http.StatusOK, `{"success":true,"data":{"room_id":"r1","room_name":"lobby"}}`)
	c := directory.New(srv.URL)

	room, err := c.JoinRoom(t.Context(), "r1", "pw")
	require.NoError(t, err)
	assert.Equal(t, chat.Room{ID: "r1", Name: "lobby"}, room)
	assert.Equal(t, "/api/rooms/join", reqs.all()[0].Path)
	assert.Equal(t, map[string]any{"room_id": "r1", "password": "pw"}, reqs.all()[0].Body)
}

func TestJoinRoom_Rejected(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		message string
	}{
		{name: "wrong password", status: http.StatusUnauthorized, body: `{"success":false,"data":null,"message":"wrong password"}`, message: "wrong password"},
		{name: "missing room", status: http.StatusNotFound, body: `{"success":false,"message":"room not found"}`, message: "room not found"},
		{name: "no message", status: http.StatusOK, body: `{"success":false}`, message: "join room failed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _ := newServer(t, tt.status, tt.body)
			c := directory.New(srv.URL)

			_, err := c.JoinRoom(t.Context(), "r1", "")
			require.ErrorIs(t, err, chat.ErrDirectoryRequest)

			var derr *chat.DirectoryError
			require.True(t, errors.As(err, &derr))
			assert.Equal(t, tt.status, derr.Status)
			assert.Equal(t, tt.message, derr.Message)
			assert.Equal(t, tt.message, chat.Describe(err))
		})
	}
}

func TestUpdatePassword(t *testing.T) {
	srv, reqs := newServer(t, http.StatusOK, `{"success":true,"data":"password updated"}`)
	c := directory.New(srv.URL)

	require.NoError(t, c.UpdatePassword(t.Context(), "r1", " new "))
	assert.Equal(t, "/api/rooms/password", reqs.all()[0].Path)
	assert.Equal(t, map[string]any{"room_id": "r1", "new_password": "new"}, reqs.all()[0].Body)
}

func TestUpdatePassword_BlankIsRejectedLocally(t *testing.T) {
	srv, reqs := newServer(t, http.StatusOK, `{"success":true}`)
	c := directory.New(srv.URL)

	err := c.UpdatePassword(t.Context(), "r1", "  ")
	var verr *chat.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "new password", verr.Field)
	assert.Empty(t, reqs.all())
}

func TestNetworkFailure(t *testing.T) {
	srv, _ := newServer(t, http.StatusOK, `{}`)
	url := srv.URL
	srv.Close()

	c := directory.New(url, directory.WithTimeout(time.Second))
	_, err := c.ListRooms(t.Context())
	require.ErrorIs(t, err, chat.ErrDirectoryRequest)
	assert.Equal(t, "network error, please retry", chat.Describe(err))
}

func TestMalformedResponse(t *testing.T) {
	srv, _ := newServer(t, http.StatusBadGateway, `<html>bad gateway</html>`)
	c := directory.New(srv.URL)

	_, err := c.ListRooms(t.Context())
	var derr *chat.DirectoryError
	require.True(t, errors.As(err, &derr))
	assert.Equal(t, http.StatusBadGateway, derr.Status)
	assert.Empty(t, derr.Message)
}
