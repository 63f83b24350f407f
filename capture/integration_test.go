package capture

import (
	"context"
	"net/http"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/onnwee/ytchat-collector/db"
	"github.com/onnwee/ytchat-collector/marker"
	"github.com/onnwee/ytchat-collector/store"
	"github.com/onnwee/ytchat-collector/testutil"
	"github.com/onnwee/ytchat-collector/youtubeapi"
)

// mockLiveChat serves one live whose chat yields two pages and then ends. The first key is
// out of quota for chat requests.
func mockLiveChat(t *testing.T) *testutil.MockYouTubeServer {
	t.Helper()
	m := testutil.NewMockYouTubeServer(t)
	m.MockVideo(testutil.LiveVideo("vid1", "Live de teste", "Canal Ação", "chat1", "2024-05-01T21:00:00Z", ""))

	var mu sync.Mutex
	served := 0
	m.Handle(testutil.PathLiveChat, func(w http.ResponseWriter, r *http.Request, key string) {
		if key == "spent" {
			testutil.WriteQuotaExceeded(w)
			return
		}
		mu.Lock()
		defer mu.Unlock()
		served++
		switch served {
		case 1:
			testutil.WriteJSON(w, map[string]any{
				"nextPageToken": "p2",
				"items": []map[string]any{
					testutil.ChatItem("ana", "oi", "2024-05-01T21:00:01Z"),
					testutil.ChatItem("bot", "", "2024-05-01T21:00:02Z"),
				},
			})
		case 2:
			testutil.WriteJSON(w, map[string]any{
				"nextPageToken": "p3",
				"items":         []map[string]any{testutil.ChatItem("bia", "boa noite", "2024-05-01T21:00:03Z")},
			})
		default:
			testutil.WriteAPIError(w, http.StatusForbidden, "liveChatEnded")
		}
	})
	return m
}

func newAPI(t *testing.T, m *testutil.MockYouTubeServer) (*youtubeapi.API, *youtubeapi.Executor) {
	t.Helper()
	creds, err := youtubeapi.ParseCredentials([]string{"good", "spent"})
	if err != nil {
		t.Fatal(err)
	}
	f := youtubeapi.NewClientFactory(youtubeapi.ClientOptions{Timeout: 5 * time.Second, Endpoint: m.Endpoint()})
	e, err := youtubeapi.NewExecutor(context.Background(), creds, youtubeapi.WithClientFactory(f), youtubeapi.WithRetryDelay(0))
	if err != nil {
		t.Fatal(err)
	}
	return youtubeapi.NewAPI(e), e
}

func TestWorkerAgainstMockAPI(t *testing.T) {
	m := mockLiveChat(t)
	api, _ := newAPI(t, m)
	data := t.TempDir()
	w := New(Options{API: api, Markers: marker.NewPIDMarkers(filepath.Join(data, "chats")), DataDir: data, PollInterval: time.Millisecond})

	res, err := w.Run(context.Background(), "vid1")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.StopReason != "chat_ended" || res.Messages != 2 || res.Skipped != 1 || res.Pages != 2 {
		t.Fatalf("result = %+v", res)
	}
	rows := readRows(t, filepath.Join(res.Dir, store.ChatFile))
	if len(rows) != 3 || rows[1][2] != "ana" || rows[2][3] != "boa noite" {
		t.Fatalf("chat rows = %v", rows)
	}
	if filepath.Base(res.Dir) != "Canal_Acao__2024-05-01__21-00-00__vid1" {
		t.Fatalf("dir = %s", res.Dir)
	}
}

func TestWorkerRotatesSpentCredential(t *testing.T) {
	m := mockLiveChat(t)
	creds, err := youtubeapi.ParseCredentials([]string{"spent", "good"})
	if err != nil {
		t.Fatal(err)
	}
	f := youtubeapi.NewClientFactory(youtubeapi.ClientOptions{Timeout: 5 * time.Second, Endpoint: m.Endpoint()})
	e, err := youtubeapi.NewExecutor(context.Background(), creds, youtubeapi.WithClientFactory(f))
	if err != nil {
		t.Fatal(err)
	}
	data := t.TempDir()
	w := New(Options{API: youtubeapi.NewAPI(e), Markers: marker.NewPIDMarkers(filepath.Join(data, "chats")), DataDir: data, PollInterval: time.Millisecond})

	res, err := w.Run(context.Background(), "vid1")
	if err != nil || res.Messages != 2 {
		t.Fatalf("res=%+v err=%v", res, err)
	}
	if e.CurrentIndex() != 1 {
		t.Fatalf("credential index = %d, want 1", e.CurrentIndex())
	}
}

func TestWorkerMirrorsToDatabase(t *testing.T) {
	database := testutil.SetupTestDB(t)
	m := mockLiveChat(t)
	api, _ := newAPI(t, m)
	data := t.TempDir()
	sink := db.NewStore(database)
	w := New(Options{API: api, Markers: marker.NewPIDMarkers(filepath.Join(data, "chats")), DataDir: data, PollInterval: time.Millisecond, Sink: sink})

	ctx := context.Background()
	if _, err := database.ExecContext(ctx, `DELETE FROM chat_messages WHERE video_id='vid1'`); err != nil {
		t.Fatal(err)
	}
	if _, err := w.Run(ctx, "vid1"); err != nil {
		t.Fatalf("Run: %v", err)
	}
	n, err := sink.CountChatMessages(ctx, "vid1")
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Fatalf("stored messages = %d, want 2", n)
	}
}
